// Package transport defines the remote object store the sync engine talks
// to, with a WebDAV implementation and an in-memory one for tests.
//
// Paths are slash-separated and relative to the remote root, e.g.
// "Work/Call vendor.md".
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskfold/internal/errs"
)

// Entry is one resource returned by List.
type Entry struct {
	Path     string
	IsDir    bool
	Modified time.Time
	ETag     string
	Size     int64
}

// Transport is a remote object store.
type Transport interface {
	// List returns the direct children of the collection at path.
	List(ctx context.Context, path string) ([]Entry, error)
	// Get returns the content of path and its modification time.
	Get(ctx context.Context, path string) ([]byte, time.Time, error)
	// Put creates or replaces path.
	Put(ctx context.Context, path string, data []byte) error
	// Delete removes path. Deleting a missing resource is a NotFound error.
	Delete(ctx context.Context, path string) error
	// MakeCollection creates the collection at path and its parents.
	MakeCollection(ctx context.Context, path string) error
}

// Kind classifies transport failures.
type Kind uint8

const (
	NotFound Kind = iota + 1
	AuthFailure
	ConnectionError
	ServerError
	// Rejected is a request the server refused for good, such as a 400 or
	// 412. Retrying it cannot succeed.
	Rejected
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case AuthFailure:
		return "authentication failed"
	case ConnectionError:
		return "connection error"
	case ServerError:
		return "server error"
	case Rejected:
		return "request rejected"
	default:
		return "unknown"
	}
}

// Error is a classified transport failure.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause and the transport error kind of the taxonomy, so
// errs.KindOf reports Transport (NotFound for missing resources).
func (e *Error) Unwrap() []error {
	cat := errs.New(errs.Transport, e.Kind.String())
	if e.Kind == NotFound {
		cat = errs.New(errs.NotFound, e.Kind.String())
	}
	if e.Err == nil {
		return []error{cat}
	}
	return []error{cat, e.Err}
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the transport kind of err, or 0 if err is not a transport
// error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

// IsTransient reports whether retrying err may succeed.
func IsTransient(err error) bool {
	k := KindOf(err)
	return k == ConnectionError || k == ServerError
}

// IsNotFound reports whether err means the remote resource does not exist.
func IsNotFound(err error) bool {
	return KindOf(err) == NotFound
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return KindOf(err) == AuthFailure
}
