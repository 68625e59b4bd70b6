package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransport("setSelected", cause)

	wrapped := fmt.Errorf("select rows: %w", err)

	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, HasCode(wrapped, CodeTransport))
	assert.Equal(t, http.StatusBadGateway, GetHTTPStatus(wrapped))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(NewCanceled("beforesortchange")))
	assert.False(t, IsCanceled(NewValidation("bad")))
	assert.False(t, IsCanceled(errors.New("plain")))
}

func TestGetHTTPStatus_PlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))
}
