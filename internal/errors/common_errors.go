package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the kind of failure a pipeline stage reports
type ErrorType string

const (
	ErrTypeSchema   ErrorType = "SCHEMA"
	ErrTypeGeometry ErrorType = "GEOMETRY"
	ErrTypeValue    ErrorType = "VALUE"
	ErrTypeIO       ErrorType = "IO"
	ErrTypeConfig   ErrorType = "CONFIG"
	ErrTypeSink     ErrorType = "SINK"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewSchemaError reports a required column that the input table lacks.
func NewSchemaError(column, table string) *AppError {
	return NewAppError(ErrTypeSchema, fmt.Sprintf("required column %q missing from %s", column, table), nil).
		WithContext("column", column).
		WithContext("table", table)
}

// NewGeometryError creates a geometry-related error
func NewGeometryError(message string, cause error) *AppError {
	return NewAppError(ErrTypeGeometry, message, cause)
}

// NewValueError reports a cell that cannot be interpreted.
// Row is zero based over data rows; pass -1 when no row applies.
func NewValueError(column string, row int, value string) *AppError {
	msg := fmt.Sprintf("invalid value %q in column %q", value, column)
	if row >= 0 {
		msg = fmt.Sprintf("invalid value %q in column %q at row %d", value, column, row)
	}
	return NewAppError(ErrTypeValue, msg, nil).
		WithContext("column", column).
		WithContext("row", row)
}

// NewIOError creates a file access error
func NewIOError(path string, cause error) *AppError {
	return NewAppError(ErrTypeIO, fmt.Sprintf("cannot access %s", path), cause).
		WithContext("path", path)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewSinkError creates an error for an external output sink
func NewSinkError(sink string, cause error) *AppError {
	return NewAppError(ErrTypeSink, fmt.Sprintf("%s sink failed", sink), cause).
		WithContext("sink", sink)
}

// IsType reports whether any error in err's chain is an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// ContextValue returns a context entry from the first AppError in err's chain.
func ContextValue(err error, key string) (interface{}, bool) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return nil, false
	}
	v, ok := appErr.Context[key]
	return v, ok
}
