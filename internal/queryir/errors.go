package queryir

import (
	"errors"
	"fmt"
)

// ErrorKind classifies where a failure originated.
type ErrorKind string

const (
	// KindParse covers statements or clauses that could not be extracted.
	KindParse ErrorKind = "parse"

	// KindSafety covers mutations rejected before any network call.
	KindSafety ErrorKind = "safety"

	// KindExecution covers failures reported by the backing store.
	KindExecution ErrorKind = "execution"
)

// SQLSTATE-style codes for errors raised by the translator itself.
// Execution errors carry the backend's own code.
const (
	CodeSyntaxError    = "42601" // syntax_error
	CodeFeatureNotSupp = "0A000" // feature_not_supported
	CodeUnsafeMutation = "55000" // object_not_in_prerequisite_state
	CodeQueryCanceled  = "57014" // query_canceled
	CodeInternalError  = "XX000" // internal_error
)

// Error is the single error shape every caller observes, whichever layer
// failed. Message, Code and Detail mirror a conventional database driver
// error so callers need no special handling.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Detail  string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s error %s: %s (%s)", e.Kind, e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s error %s: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewParseError creates a syntax ParseError.
func NewParseError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindParse,
		Code:    CodeSyntaxError,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnsupportedError creates a ParseError for recognised but unsupported
// syntax. Strict mode raises these for fragments lenient mode would drop.
func NewUnsupportedError(fragment, reason string) *Error {
	return &Error{
		Kind:    KindParse,
		Code:    CodeFeatureNotSupp,
		Message: "unsupported condition: " + reason,
		Detail:  fragment,
	}
}

// NewSafetyError creates a SafetyError.
func NewSafetyError(message, detail string) *Error {
	return &Error{
		Kind:    KindSafety,
		Code:    CodeUnsafeMutation,
		Message: message,
		Detail:  detail,
	}
}

// NewExecutionError creates an ExecutionError. An empty code becomes
// CodeInternalError.
func NewExecutionError(code, message, detail string, err error) *Error {
	if code == "" {
		code = CodeInternalError
	}
	return &Error{
		Kind:    KindExecution,
		Code:    code,
		Message: message,
		Detail:  detail,
		Err:     err,
	}
}

// IsParseError returns true if err is, or wraps, a ParseError.
func IsParseError(err error) bool {
	return hasKind(err, KindParse)
}

// IsSafetyError returns true if err is, or wraps, a SafetyError.
func IsSafetyError(err error) bool {
	return hasKind(err, KindSafety)
}

// IsExecutionError returns true if err is, or wraps, an ExecutionError.
func IsExecutionError(err error) bool {
	return hasKind(err, KindExecution)
}

func hasKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
