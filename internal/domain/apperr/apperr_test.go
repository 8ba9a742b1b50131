package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("load: %w", NotFound("get batch", "b-1", "batch not found"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "load: get batch b-1: batch not found", err.Error())
}

func TestPersistenceUnwrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := Persistence("update batch", "A-001", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "update batch A-001: disk full", err.Error())
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "batch not found", Describe(PartialItem("restore", "A-404", NotFound("get batch", "A-404", "batch not found"))))
	assert.Equal(t, "boom", Describe(errors.New("boom")))
	assert.Equal(t, "", Describe(nil))
}

func TestCauseKind(t *testing.T) {
	t.Parallel()

	wrapped := PartialItem("weekly advance", "A-003", InvalidState("advance", "A-003", "batch already at station 7"))
	assert.Equal(t, KindPartialItem, KindOf(wrapped))
	assert.Equal(t, KindInvalidState, CauseKind(wrapped))
	assert.Equal(t, KindPartialItem, CauseKind(PartialItem("restore", "A-001", errors.New("timeout"))))
	assert.Equal(t, KindValidation, CauseKind(Validation("restore", "", "mapping must not be empty")))
}
