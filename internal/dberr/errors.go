// Package dberr defines the error kinds returned by the engine.
//
// Every failure surfaced by a public operation is an *Error whose Kind is one
// of the sentinels below, so callers can branch with errors.Is while still
// reaching the underlying driver error with errors.As.
package dberr

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrPrecondition marks a wrong argument shape, an unknown table or
	// column, or an unknown operator.
	ErrPrecondition = errors.New("precondition violation")

	// ErrValidation marks a filter or instance rejected by the type/operator
	// matrix, or a structurally invalid schema document. Never reaches the
	// execution engine.
	ErrValidation = errors.New("validation error")

	// ErrUnsupported marks a well-formed operator or type that reached SQL
	// translation without an implementation.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrExecution marks a statement rejected by the execution engine.
	ErrExecution = errors.New("execution failure")

	// ErrMigrationAborted marks a multi-statement migration that failed after
	// some statements were applied and could not be rolled back.
	ErrMigrationAborted = errors.New("migration aborted, manual recovery required")
)

// Error carries the kind, the operation and the offending parameter.
type Error struct {
	Kind  error
	Op    string
	Param string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Kind.Error())
	if e.Op != "" {
		buf.WriteString(" on ")
		buf.WriteString(e.Op)
	}
	if e.Param != "" {
		fmt.Fprintf(&buf, ": parameter %q", e.Param)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Preconditionf builds an ErrPrecondition error.
func Preconditionf(op, param, format string, args ...any) error {
	return &Error{Kind: ErrPrecondition, Op: op, Param: param, Msg: fmt.Sprintf(format, args...)}
}

// Validationf builds an ErrValidation error.
func Validationf(op, param, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Param: param, Msg: fmt.Sprintf(format, args...)}
}

// Unsupportedf builds an ErrUnsupported error.
func Unsupportedf(op, format string, args ...any) error {
	return &Error{Kind: ErrUnsupported, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Execution wraps a driver error together with the statement that caused it.
func Execution(stmt string, err error) error {
	return &Error{Kind: ErrExecution, Msg: compactStatement(stmt), Err: err}
}

// MigrationAborted wraps the failure of a partially applied migration step.
func MigrationAborted(op, step string, err error) error {
	return &Error{Kind: ErrMigrationAborted, Op: op, Msg: "failed at step " + step, Err: err}
}

// Is reports whether err carries the given kind. It is a shorthand for
// errors.Is kept for readability at call sites that switch over kinds.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

func compactStatement(stmt string) string {
	const maxLen = 160
	s := strings.Join(strings.Fields(stmt), " ")
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
