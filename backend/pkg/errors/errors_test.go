package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsErrorType(t *testing.T) {
	graphErr := NewGraphQueryFailed("fetch profile", fmt.Errorf("connection reset"))
	assert.True(t, IsErrorType(graphErr, ErrorTypeGraph))
	assert.False(t, IsErrorType(graphErr, ErrorTypeConfig))

	cfgErr := NewConfigValidationFailed("NEO4J_URI", "is required")
	assert.True(t, IsErrorType(cfgErr, ErrorTypeConfig))

	// Wrapping preserves the classification
	wrapped := fmt.Errorf("startup failed: %w", graphErr)
	assert.True(t, IsErrorType(wrapped, ErrorTypeGraph))

	assert.False(t, IsErrorType(nil, ErrorTypeGraph))
	assert.False(t, IsErrorType(fmt.Errorf("plain"), ErrorTypeGraph))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewGraphConnectionFailed("bolt://localhost:7687", fmt.Errorf("refused"))))
	assert.True(t, IsRetryable(NewGraphQueryFailed("sync catalog", fmt.Errorf("timeout"))))
	assert.False(t, IsRetryable(NewContextCancelled("ranking pass", context.Canceled)))
	assert.False(t, IsRetryable(NewConfigValidationFailed("PORT", "is required")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestBaseError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("refused")
	err := NewGraphConnectionFailed("bolt://localhost:7687", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "bolt://localhost:7687")
}
