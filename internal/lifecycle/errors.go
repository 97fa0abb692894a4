package lifecycle

import (
	"errors"
	"fmt"
)

// Kind classifies a lifecycle failure.
type Kind int

const (
	// Precondition means a required file, directory or setting is missing,
	// or the requested transition is not allowed in the current state.
	Precondition Kind = iota + 1
	// Consistency means recorded state does not match the file system: a
	// manifest entry is missing or stale, or a name does not match.
	Consistency
	// External means an external tool failed. Its log is kept.
	External
)

func (k Kind) String() string {
	switch k {
	case Precondition:
		return "precondition"
	case Consistency:
		return "consistency"
	case External:
		return "external"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a fatal lifecycle failure.
type Error struct {
	Kind Kind
	Path string // offending file or setting, if any
	Msg  string
	Hint string // what the operator may do about it
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a lifecycle error in err's chain, or 0.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}

// HintOf returns the hint of a lifecycle error in err's chain.
func HintOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Hint
	}
	return ""
}

func preconditionf(path, hint, format string, args ...interface{}) *Error {
	return &Error{Kind: Precondition, Path: path, Msg: fmt.Sprintf(format, args...), Hint: hint}
}

func consistency(path, msg string, err error) *Error {
	return &Error{Kind: Consistency, Path: path, Msg: msg, Err: err}
}

func external(msg string, err error) *Error {
	return &Error{Kind: External, Msg: msg, Err: err}
}
