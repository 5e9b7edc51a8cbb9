package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	// ErrTokenUnregistered is returned by a push transport when the endpoint no longer accepts messages.
	ErrTokenUnregistered = errors.New("push token unregistered")
)

// ValidationError reports malformed input with field-level detail. Never retried.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrBadRequest }

// AuthError reports a missing or insufficient session. Never retried.
type AuthError struct {
	Reason    string
	Forbidden bool
}

func (e *AuthError) Error() string { return e.Reason }

func (e *AuthError) Is(target error) bool {
	if e.Forbidden {
		return target == ErrForbidden
	}
	return target == ErrUnauthorized
}

// StorageError wraps a store failure. The caller should treat it as retryable.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err unless it is nil, already a StorageError, or a ValidationError
// raised by the store. Malformed input is never retryable.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Retryable is always true; it lets callers ask without a type switch.
func (e *StorageError) Retryable() bool { return true }

// DeliveryError is a single push-transport failure, isolated to one token.
type DeliveryError struct {
	NotificationID int64
	TokenID        string
	Err            error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver notification %d to token %s: %v", e.NotificationID, e.TokenID, e.Err)
}
func (e *DeliveryError) Unwrap() error { return e.Err }
