package protocol

import (
	"errors"
	"fmt"
)

// Completion codes carried by OK/ERR lines. Negative codes are failures;
// syntax errors are kept apart from semantic violations so a caller can
// tell a mistyped command from a protocol bug.
const (
	CodeOK            = 0
	CodeViolation     = -1
	CodeSyntax        = -2
	CodeAuthFailure   = -3
	CodeNameConflict  = -4
	CodeUnknownTarget = -5
	CodeTimeout       = -6
	CodeSystem        = -7
)

var (
	// ErrProtocolViolation indicates an unexpected or forbidden command
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrSyntax indicates malformed command parameters
	ErrSyntax = errors.New("syntax error")

	// ErrAuthFailure indicates a bad password or authorization key
	ErrAuthFailure = errors.New("authorization failed")

	// ErrNameConflict indicates a duplicate device registration
	ErrNameConflict = errors.New("name already registered")

	// ErrUnknownTarget indicates a reference to a session that no longer exists
	ErrUnknownTarget = errors.New("unknown target")

	// ErrTimeout indicates a peer did not answer within its budget
	ErrTimeout = errors.New("timed out")

	// ErrSystem indicates an internal failure unrelated to the peer's input
	ErrSystem = errors.New("system error")
)

// Error is a per-command failure reported to the issuing session.
type Error struct {
	Code int
	Text string
	kind error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.Text)
}

// Unwrap exposes the sentinel so callers can use errors.Is.
func (e *Error) Unwrap() error {
	return e.kind
}

func newError(kind error, code int, format string, args ...any) *Error {
	return &Error{Code: code, Text: fmt.Sprintf(format, args...), kind: kind}
}

// Violation reports a command that is not allowed in the current context.
func Violation(format string, args ...any) *Error {
	return newError(ErrProtocolViolation, CodeViolation, format, args...)
}

// Syntax reports malformed parameters.
func Syntax(format string, args ...any) *Error {
	return newError(ErrSyntax, CodeSyntax, format, args...)
}

// AuthFailure reports a rejected password or key.
func AuthFailure(format string, args ...any) *Error {
	return newError(ErrAuthFailure, CodeAuthFailure, format, args...)
}

// NameConflict reports a duplicate device name.
func NameConflict(format string, args ...any) *Error {
	return newError(ErrNameConflict, CodeNameConflict, format, args...)
}

// UnknownTarget reports a reference to a vanished session.
func UnknownTarget(format string, args ...any) *Error {
	return newError(ErrUnknownTarget, CodeUnknownTarget, format, args...)
}

// System reports an internal failure.
func System(format string, args ...any) *Error {
	return newError(ErrSystem, CodeSystem, format, args...)
}

// AsError converts any error into a protocol Error, classifying unknown
// errors as system failures.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return System("%v", err)
}

// ErrorForCode maps a completion code received from a peer back to the
// matching sentinel.
func ErrorForCode(code int, text string) error {
	switch code {
	case CodeViolation:
		return newError(ErrProtocolViolation, code, "%s", text)
	case CodeSyntax:
		return newError(ErrSyntax, code, "%s", text)
	case CodeAuthFailure:
		return newError(ErrAuthFailure, code, "%s", text)
	case CodeNameConflict:
		return newError(ErrNameConflict, code, "%s", text)
	case CodeUnknownTarget:
		return newError(ErrUnknownTarget, code, "%s", text)
	case CodeTimeout:
		return newError(ErrTimeout, code, "%s", text)
	default:
		return newError(ErrSystem, code, "%s", text)
	}
}
