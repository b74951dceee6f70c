package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategories(t *testing.T) {
	tests := []struct {
		name       string
		err        *StandardError
		validation bool
		remote     bool
		retryable  bool
	}{
		{"validation", NewValidationError("name is required"), true, false, false},
		{"not found", NewEntityNotFoundError("company", "c1"), true, false, false},
		{"role limit", NewRoleLimitExceededError("admin", 5), true, false, false},
		{"in progress", NewTransitionInProgressError("a1"), true, false, true},
		{"remote read", NewRemoteReadError("users", fmt.Errorf("boom")), false, true, true},
		{"remote write", NewRemoteWriteError("create", fmt.Errorf("boom")), false, true, true},
		{"message send", NewMessageSendFailedError(fmt.Errorf("boom")), false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("op: %w", tt.err)
			assert.Equal(t, tt.validation, IsValidation(wrapped))
			assert.Equal(t, tt.remote, IsRemote(wrapped))
			assert.Equal(t, tt.retryable, tt.err.Retryable)
		})
	}
}

func TestUnwrapAndIs(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewRemoteWriteError("update", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("wrap: %w", err), &StandardError{Code: ErrCodeRemoteWriteFailed})
	assert.True(t, HasCode(err, ErrCodeRemoteWriteFailed))
	assert.False(t, HasCode(err, ErrCodeRemoteReadFailed))
	assert.Equal(t, "update", err.Metadata["operation"])
}

func TestAsResult(t *testing.T) {
	assert.Equal(t, Result{Success: true}, AsResult(nil))

	res := AsResult(NewRoleLimitExceededError("admin", 5))
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeRoleLimitExceeded, res.Code)
	assert.Contains(t, res.Message, "Maximum of 5 admin users")

	res = AsResult(stderrors.New("plain"))
	assert.False(t, res.Success)
	assert.Equal(t, "plain", res.Message)
	assert.Equal(t, ErrorCode("INTERNAL_ERROR"), res.Code)
}

func TestConvertToBPMNError(t *testing.T) {
	stdErr := NewRemoteReadError("applications", stderrors.New("timeout"))
	bpmn := ConvertToBPMNError(stdErr)

	require.NotNil(t, bpmn)
	assert.Equal(t, "REMOTE_READ_FAILED", bpmn.Code)
	assert.Equal(t, 3, bpmn.Retries)
	assert.True(t, bpmn.Retryable)

	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "REMOTE_READ_FAILED", vars["errorCode"])
	assert.Equal(t, "applications", vars["collection"])
}

func TestNormalize(t *testing.T) {
	se := Normalize(stderrors.New("kaput"))
	assert.Equal(t, ErrorCode("INTERNAL_ERROR"), se.Code)
	assert.Equal(t, CategoryInternal, se.Category)

	orig := NewValidationError("x")
	assert.Same(t, orig, Normalize(fmt.Errorf("ctx: %w", orig)))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, CategoryRemote, GetErrorCategory(ErrCodeUploadFailed))
	assert.Equal(t, CategoryValidation, GetErrorCategory(ErrCodeDuplicateApplication))
	assert.Equal(t, 0, GetRetryCount(ErrCodeValidationFailed))
}
