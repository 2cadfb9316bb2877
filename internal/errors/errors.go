package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeConfig     ErrorType = "config"
	ErrTypeMetadata   ErrorType = "metadata"
	ErrTypeCatalog    ErrorType = "catalog"
	ErrTypeExecution  ErrorType = "execution"
	ErrTypeDelivery   ErrorType = "delivery"
	ErrTypeDatabase   ErrorType = "database"
	ErrTypeValidation ErrorType = "validation"
	ErrTypeNotFound   ErrorType = "not_found"
	ErrTypeInternal   ErrorType = "internal"
)

// Inspection helpers re-exported from cockroachdb/errors so callers only
// import this package.
var (
	Is          = crdb.Is
	As          = crdb.As
	WithHint    = crdb.WithHint
	GetAllHints = crdb.GetAllHints
	WithStack   = crdb.WithStack
)

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// Suggestions collects the suggestions of every structured error in the
// chain followed by any cockroachdb hints.
func Suggestions(err error) []string {
	var out []string

	for e := err; e != nil; e = crdb.UnwrapOnce(e) {
		if structErr, ok := e.(*Error); ok {
			out = append(out, structErr.Suggestions...)
		}
	}

	return append(out, GetAllHints(err)...)
}

// IsFatal reports whether the error must abort a run before delivery.
// Delivery failures are reported but leave computed output valid.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return GetType(err) != ErrTypeDelivery
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your pipeline_config.toml syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewEditionError reports a table edition that cannot be used for aggregation.
func NewEditionError(table, edition, reason string) *Error {
	return Newf(ErrTypeMetadata, "'%s' %s for table %s", edition, reason, table).
		WithSuggestion("update d3_edition_metadata to fix")
}
