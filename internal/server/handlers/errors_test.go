package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/repository"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want int
	}{
		"not found":        {apperr.NotFound("get batch", "b-1", "batch not found"), http.StatusNotFound},
		"invalid state":    {apperr.InvalidState("advance", "A-001", "batch is finalized"), http.StatusConflict},
		"validation":       {apperr.Validation("finalize", "A-001", "final mass must be positive"), http.StatusUnprocessableEntity},
		"version conflict": {repository.Conflict("update batch", "A-001"), http.StatusConflict},
		"wrapped conflict": {fmt.Errorf("certify: %w", repository.Conflict("update batch", "A-001")), http.StatusConflict},
		"persistence":      {apperr.Persistence("update batch", "A-001", errors.New("disk full")), http.StatusInternalServerError},
		"unclassified":     {errors.New("boom"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}
