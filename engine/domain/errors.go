package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrNotFound marks an absent entity. Graph queries translate it into empty results.
	ErrNotFound = errors.New("not found")
	// ErrGraphUnavailable marks a transient graph store failure. Callers may retry with backoff.
	ErrGraphUnavailable = errors.New("graph unavailable")
	// ErrConfiguration marks invalid engine configuration, raised at construction.
	ErrConfiguration = errors.New("invalid configuration")

	ErrInvalidEvent      = errors.New("invalid risk event")
	ErrInvalidSeverity   = errors.New("invalid severity")
	ErrInvalidConfidence = errors.New("confidence out of range")
	ErrInvalidNode       = errors.New("invalid node")
	ErrInvalidEdge       = errors.New("invalid edge")
)

// GraphUnavailableError wraps the store failure that caused a GraphUnavailable condition.
type GraphUnavailableError struct {
	Op    string
	Cause error
}

func (e *GraphUnavailableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrGraphUnavailable, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrGraphUnavailable, e.Op, e.Cause)
}

// Is lets errors.Is(err, ErrGraphUnavailable) match.
func (e *GraphUnavailableError) Is(target error) bool { return target == ErrGraphUnavailable }

func (e *GraphUnavailableError) Unwrap() error { return e.Cause }

// Unavailable wraps cause as a GraphUnavailableError for operation op.
func Unavailable(op string, cause error) error {
	return &GraphUnavailableError{Op: op, Cause: cause}
}

// IsUnavailable reports whether err is retryable graph unavailability.
func IsUnavailable(err error) bool { return errors.Is(err, ErrGraphUnavailable) }

// ConfigurationError names the offending setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// EntityFailure records one failed unit of work inside a batch.
type EntityFailure struct {
	EntityID string `json:"entity_id"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

// NewEntityFailure creates an EntityFailure with the message pre-rendered for serialization.
func NewEntityFailure(id string, err error) EntityFailure {
	f := EntityFailure{EntityID: id, Err: err}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

func (f EntityFailure) Error() string {
	return fmt.Sprintf("entity %s: %s", f.EntityID, f.Message)
}

func (f EntityFailure) Unwrap() error { return f.Err }

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
