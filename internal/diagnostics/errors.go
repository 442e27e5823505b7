// Package diagnostics defines the compiler's error taxonomy. Every failure
// raised by the type rules, the resolver, the analyzer or the lowering pass
// is a *DiagnosticError carrying a kind, a stable code, an optional source
// position and a message.
package diagnostics

import (
	"errors"
	"fmt"

	"github.com/funvibe/flowc/internal/parsetree"
)

// Kind is the user facing error class.
type Kind string

const (
	SyntaxError Kind = "SyntaxError"
	NameError   Kind = "NameError"
	TypeError   Kind = "TypeError"
	Error       Kind = "Error"
)

// ErrorCode identifies a diagnostic. The letter after "Err" selects the kind:
// S syntax, N name, T type, E and C generic.
type ErrorCode string

const (
	ErrS001 ErrorCode = "S001" // malformed structure

	ErrN001 ErrorCode = "N001" // undefined name
	ErrN002 ErrorCode = "N002" // redefinition or duplicate name
	ErrN003 ErrorCode = "N003" // unknown operator, port or overload information

	ErrT001 ErrorCode = "T001" // incompatible types
	ErrT002 ErrorCode = "T002" // lossy conversion
	ErrT003 ErrorCode = "T003" // ambiguous promotion
	ErrT004 ErrorCode = "T004" // array dimension mismatch
	ErrT005 ErrorCode = "T005" // invalid accessor

	ErrE001 ErrorCode = "E001" // generic
	ErrE002 ErrorCode = "E002" // write-only binding or loop-only construct
	ErrC001 ErrorCode = "C001" // catalog consistency
)

// Kind derives the error class from the code prefix.
func (c ErrorCode) Kind() Kind {
	if c == "" {
		return Error
	}
	switch c[0] {
	case 'S':
		return SyntaxError
	case 'N':
		return NameError
	case 'T':
		return TypeError
	}
	return Error
}

// DiagnosticError is a single compiler diagnostic.
type DiagnosticError struct {
	Kind    Kind
	Code    ErrorCode
	Pos     parsetree.Pos
	Message string
}

func (e *DiagnosticError) Error() string {
	if e.Pos.IsZero() {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Message)
}

// New creates a diagnostic without a position. Type rules and resolvers
// return these; the analyzer attaches a position with At.
func New(code ErrorCode, msg string) *DiagnosticError {
	return &DiagnosticError{Kind: code.Kind(), Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code ErrorCode, format string, args ...interface{}) *DiagnosticError {
	return New(code, fmt.Sprintf(format, args...))
}

// NewError creates a positioned diagnostic.
func NewError(code ErrorCode, pos parsetree.Pos, msg string) *DiagnosticError {
	return &DiagnosticError{Kind: code.Kind(), Code: code, Pos: pos, Message: msg}
}

// At attaches pos to err. Diagnostics that already carry a position keep
// it, anything else is wrapped as a generic positioned error.
func At(err error, pos parsetree.Pos) error {
	if err == nil {
		return nil
	}
	var d *DiagnosticError
	if errors.As(err, &d) {
		if !d.Pos.IsZero() {
			return d
		}
		cp := *d
		cp.Pos = pos
		return &cp
	}
	return NewError(ErrE001, pos, err.Error())
}

// As extracts a *DiagnosticError from err.
func As(err error) (*DiagnosticError, bool) {
	var d *DiagnosticError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// KindOf returns the kind of err, or Error for non-diagnostic failures.
func KindOf(err error) Kind {
	if d, ok := As(err); ok {
		return d.Kind
	}
	return Error
}

// CodeOf returns the code of err, or the empty code.
func CodeOf(err error) ErrorCode {
	if d, ok := As(err); ok {
		return d.Code
	}
	return ""
}
