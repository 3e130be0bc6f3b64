// Package errs defines the error taxonomy shared by the storage, registry and
// sync layers. Callers branch on Kind with KindOf or on package sentinels with
// errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind uint8

const (
	Unknown    Kind = iota
	Validation      // malformed input to an operation
	NotFound        // unknown task, list or workspace
	IO              // file system failure
	Conflict        // sync divergence or busy engine
	Transport       // network or auth failure
	Config          // registry/config corruption
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not found"
	case IO:
		return "io"
	case Conflict:
		return "conflict"
	case Transport:
		return "transport"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the failing operation, Err the cause.
type Error struct {
	Kind Kind
	Op   string
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
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a fixed message. Package-level sentinels
// are built with New.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf formats a classified error. A %w verb in format is honored.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err under op. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind != Unknown {
			return e.Kind
		}
		return KindOf(e.Err)
	}
	return Unknown
}

// Is reports whether err's chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
