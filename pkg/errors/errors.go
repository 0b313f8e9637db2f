// Package errors provides structured error types for simpleorm.
// All errors include a category, code, message, and retryable flag so callers
// can branch on failure kind with errors.Is / errors.As.
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategorySchema  ErrorCategory = "SCHEMA"
	ErrCategoryCodec   ErrorCategory = "CODEC"
	ErrCategoryConfig  ErrorCategory = "CONFIG"
	ErrCategoryStorage ErrorCategory = "STORAGE"
)

// Error codes for each category.
const (
	// Schema codes
	CodeUnsupportedField = "UNSUPPORTED_FIELD"
	CodeCyclicSchema     = "CYCLIC_SCHEMA"
	CodeInvalidSchema    = "INVALID_SCHEMA"

	// Codec codes
	CodeRange        = "RANGE"
	CodeCellMismatch = "CELL_MISMATCH"

	// Config codes
	CodeNotConfigured = "NOT_CONFIGURED"

	// Storage codes
	CodeStorage    = "STORAGE"
	CodeBusy       = "BUSY"
	CodeConstraint = "CONSTRAINT"
)

// Sentinels for errors.Is. Matching is by category and code, so any Error
// built with the same pair matches regardless of message or details.
var (
	ErrUnsupportedField = New(ErrCategorySchema, CodeUnsupportedField, "unsupported field")
	ErrCyclicSchema     = New(ErrCategorySchema, CodeCyclicSchema, "cyclic schema")
	ErrInvalidSchema    = New(ErrCategorySchema, CodeInvalidSchema, "invalid schema")
	ErrRange            = New(ErrCategoryCodec, CodeRange, "value out of range")
	ErrCellMismatch     = New(ErrCategoryCodec, CodeCellMismatch, "cell type mismatch")
	ErrNotConfigured    = New(ErrCategoryConfig, CodeNotConfigured, "not configured")
	ErrStorage          = New(ErrCategoryStorage, CodeStorage, "storage failure")
)

// Error is the structured error type used throughout the module.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Details) > 0 {
		msg = fmt.Sprintf("%s %s", msg, formatDetails(e.Details))
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
// Storage errors match ErrStorage regardless of their specific code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		if t.Category == ErrCategoryStorage && t.Code == CodeStorage {
			return e.Category == ErrCategoryStorage
		}
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details merged in.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	merged := make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	cp.Details = merged
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetDetails returns the details of the outermost *Error in the chain.
func GetDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStorage && code == CodeBusy
}

func formatDetails(details map[string]interface{}) string {
	// fixed key order keeps messages stable for logs and tests
	keys := []string{"table", "field", "id"}
	out := ""
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if v, ok := details[k]; ok {
			out += fmt.Sprintf("%s=%v ", k, v)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(details))
	for k := range details {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out += fmt.Sprintf("%s=%v ", k, details[k])
	}
	if out == "" {
		return ""
	}
	return "(" + out[:len(out)-1] + ")"
}

// Convenience constructors for common errors.

func NewUnsupportedFieldError(table, field, message string) *Error {
	return New(ErrCategorySchema, CodeUnsupportedField, message).
		WithDetails(map[string]interface{}{"table": table, "field": field})
}

func NewCyclicSchemaError(message string) *Error {
	return New(ErrCategorySchema, CodeCyclicSchema, message)
}

func NewInvalidSchemaError(message string) *Error {
	return New(ErrCategorySchema, CodeInvalidSchema, message)
}

func NewRangeError(message string) *Error {
	return New(ErrCategoryCodec, CodeRange, message)
}

func NewCellMismatchError(message string) *Error {
	return New(ErrCategoryCodec, CodeCellMismatch, message)
}

func NewNotConfiguredError(message string) *Error {
	return New(ErrCategoryConfig, CodeNotConfigured, message)
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

// Annotate attaches details to err. An *Error is copied with the details
// merged in; any other error is wrapped so errors.Is still reaches it.
func Annotate(err error, details map[string]interface{}) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e.WithDetails(details)
	}
	return fmt.Errorf("%s: %w", formatDetails(details), err)
}
