// Package errs classifies the errors raised while setting up and formulating
// dispatch problems. Numerical faults are never represented here: builders
// return raw values and let the outer solver detect divergence.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the error class.
type Kind string

const (
	// KindConfiguration covers malformed block lengths, unknown tokens and
	// duplicate callback registrations.
	KindConfiguration Kind = "configuration"
	// KindFormulation covers expressions referencing undeclared names or
	// that cannot be lowered to the solver's form.
	KindFormulation Kind = "formulation"
	// KindDimension covers vectors whose length does not match the problem.
	KindDimension Kind = "dimension"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrFormulation   = errors.New("formulation error")
	ErrDimension     = errors.New("dimension error")
)

// Error carries the class of a failure and the offending name or expression.
type Error struct {
	Kind Kind
	// Name is the offending block, token, stage or variable name.
	Name string
	// Expr is the offending expression for formulation errors.
	Expr string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	switch {
	case e.Expr != "" && e.Name != "":
		return fmt.Sprintf("[%s] %s (name=%s, expr=%q)", e.Kind, msg, e.Name, e.Expr)
	case e.Expr != "":
		return fmt.Sprintf("[%s] %s (expr=%q)", e.Kind, msg, e.Expr)
	case e.Name != "":
		return fmt.Sprintf("[%s] %s (name=%s)", e.Kind, msg, e.Name)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the class sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrFormulation:
		return e.Kind == KindFormulation
	case ErrDimension:
		return e.Kind == KindDimension
	}
	return false
}

// Config returns a configuration error naming the offending item.
func Config(name, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Name: name, Msg: fmt.Sprintf(format, args...)}
}

// Formulation returns a formulation error carrying the offending expression.
func Formulation(expr, name, format string, args ...any) *Error {
	return &Error{Kind: KindFormulation, Expr: expr, Name: name, Msg: fmt.Sprintf(format, args...)}
}

// Dimension reports a length mismatch. It never pads or truncates.
func Dimension(what string, want, got int) *Error {
	return &Error{Kind: KindDimension, Name: what, Msg: fmt.Sprintf("expected length %d, got %d", want, got)}
}

// KindOf returns the class of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
