package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
	}{
		{"verification maps to 403", VerificationError("bad signature"), http.StatusForbidden},
		{"malformed maps to 400", MalformedError(errors.New("unexpected EOF")), http.StatusBadRequest},
		{"provider maps to 500", ProviderError("subscription create", 503), http.StatusInternalServerError},
		{"internal maps to 500", InternalError("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := InternalError("token request", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestProviderError_IncludesStatus(t *testing.T) {
	err := ProviderError("list subscriptions", 500)
	assert.Contains(t, err.Error(), "status 500")
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypeRateLimited, TypeOf(RateLimitedError(nil)))
	assert.Equal(t, TypeInternal, TypeOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", AuthFailedError(nil))
	assert.Equal(t, TypeAuthFailed, TypeOf(wrapped))
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", CredentialsInvalidError(nil))

	assert.True(t, IsType(wrapped, TypeCredentialsInvalid))
	assert.False(t, IsType(wrapped, TypeAuthFailed))
	assert.False(t, IsType(errors.New("plain"), TypeInternal))
}
