package shared

import (
	"errors"
	"sort"
	"strings"
)

// Error kinds shared by every domain package. Domain errors wrap one of these
// so the transport layer can map them without knowing the domain.
var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or association conflict.
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument indicates a request that breaks a business rule.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState indicates the record is not in a state that allows the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrForbidden indicates the principal may not perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError carries field level messages from declarative validation.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from a field map.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrInvalidArgument) match validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument
}
