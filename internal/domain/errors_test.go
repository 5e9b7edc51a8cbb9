package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStorageError(t *testing.T) {
	assert.Nil(t, NewStorageError("get", nil))

	err := NewStorageError("get", errors.New("timeout"))
	var se *StorageError
	assert.True(t, errors.As(err, &se))
	assert.True(t, se.Retryable())
	assert.Equal(t, "storage get: timeout", err.Error())

	assert.Same(t, err, NewStorageError("outer", err))
}

func TestNewStorageError_KeepsValidationError(t *testing.T) {
	ve := NewValidationError("target", "userId and organizationId are mutually exclusive")

	err := NewStorageError("insert notification", fmt.Errorf("insert: %w", ve))

	var se *StorageError
	assert.False(t, errors.As(err, &se))
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestAuthError_Is(t *testing.T) {
	assert.ErrorIs(t, &AuthError{Reason: "no session"}, ErrUnauthorized)
	assert.ErrorIs(t, &AuthError{Reason: "admins only", Forbidden: true}, ErrForbidden)
	assert.NotErrorIs(t, &AuthError{Reason: "admins only", Forbidden: true}, ErrUnauthorized)
}
