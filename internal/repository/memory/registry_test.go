package memory

import (
	"testing"

	"github.com/mamadbah2/compost/internal/repository"
	"github.com/mamadbah2/compost/internal/repository/registrytest"
)

func TestRegistryContract(t *testing.T) {
	registrytest.Run(t, func(t *testing.T) repository.Registry {
		return NewRegistry()
	})
}
