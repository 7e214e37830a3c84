package errors

import (
	stderrors "errors"
	"fmt"

	"gomodsel/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the error code of the outermost AppError, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid         = "CONFIG_INVALID"
	CodeConfigurationConflict = "CONFIGURATION_CONFLICT"
	CodeInputShape            = "INPUT_SHAPE"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeDatabaseError         = "DATABASE_ERROR"
	CodeSinkError             = "SINK_ERROR"
	CodeInternalError         = "INTERNAL_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

// ConfigurationConflict reports colliding or malformed hyperparameter namespacing.
// It is fatal for the pipeline it concerns and is surfaced before any repetition runs.
func ConfigurationConflict(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    CodeConfigurationConflict,
		Message: fmt.Sprintf(format, args...),
		Cause:   core.ErrConfigurationConflict,
	}
}

// InputShape reports a feature/target mismatch that makes every split impossible.
func InputShape(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    CodeInputShape,
		Message: fmt.Sprintf(format, args...),
		Cause:   core.ErrInputShape,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func SinkError(sink string, cause error) *AppError {
	return &AppError{
		Code:    CodeSinkError,
		Message: fmt.Sprintf("%s sink error", sink),
		Cause:   cause,
	}
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

// IsConfigurationConflict reports whether err is a ConfigurationConflictError.
func IsConfigurationConflict(err error) bool {
	return stderrors.Is(err, core.ErrConfigurationConflict)
}

// IsInputShape reports whether err is an InputShapeError.
func IsInputShape(err error) bool {
	return stderrors.Is(err, core.ErrInputShape) || stderrors.Is(err, core.ErrInvalidTarget)
}
