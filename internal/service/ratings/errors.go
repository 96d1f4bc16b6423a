package ratings

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aimd54/addon-ratings/internal/repository"
)

// Sentinel errors.
var (
	ErrNotFound        = repository.ErrNotFound
	ErrUnauthenticated = errors.New("authentication credentials were not provided")
	ErrConflict        = errors.New("conflict")
)

// ValidationError names the offending input fields. The "non_field_errors"
// key holds errors not tied to one field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
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

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// PermissionError is a 403 with a user-facing message.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	return e.Message
}

func forbidden() *PermissionError {
	return &PermissionError{Message: "You do not have permission to perform this action."}
}

// ConflictError is a write that would violate a uniqueness rule.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Unwrap makes errors.Is(err, ErrConflict) hold.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ThrottledError reports that a throttle scope is exhausted.
type ThrottledError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("request was throttled, expected available in %d seconds", int(e.RetryAfter.Seconds()+0.999))
}
