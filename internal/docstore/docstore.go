// Package docstore defines the contract the application expects from its remote
// document store: single-document reads, live queries that redeliver the full
// result on every change, and atomic multi-document commits with a server-side
// increment primitive.
//
// Three backends implement Store: MemoryStore (in-process), FirestoreStore and
// MongoStore. Guard wraps any of them with path-based access rules.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Document is one record read from the store. Data is nil when Exists is false.
type Document struct {
	Path   string
	ID     string
	Data   map[string]any
	Exists bool
}

// Iterator delivers successive full snapshots of a watched query.
type Iterator interface {
	// Next blocks until the next snapshot is available. The first call returns
	// the current state of the query.
	Next(ctx context.Context) ([]Document, error)
	// Stop releases the underlying listener. Calling Stop more than once is safe.
	Stop()
}

// Store is the document-store contract shared by every backend.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Watch(ctx context.Context, q Query) (Iterator, error)
	Commit(ctx context.Context, ops []Op) error
}

// OpKind selects the write semantics of an Op.
type OpKind int

const (
	// OpCreate writes a new document and fails with AlreadyExists if it is present.
	OpCreate OpKind = iota
	// OpSet overwrites the document, creating it if needed.
	OpSet
	// OpUpdate changes the listed (dotted) fields and fails with NotFound if the
	// document is absent.
	OpUpdate
	// OpDelete removes the document. With MustExist it fails with NotFound if
	// the document is absent; otherwise deleting a missing document is a no-op.
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpSet:
		return "set"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Op is a single write inside a commit.
type Op struct {
	Kind      OpKind
	Path      string
	Data      map[string]any
	MustExist bool
}

// Increment is a field transform that atomically adds N to a numeric field.
// An absent field counts as zero.
type Increment struct {
	N int64
}

type serverTimestamp struct{}

// ServerTimestamp resolves to the commit time when used as a field value.
var ServerTimestamp = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Code classifies store failures.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeAlreadyExists    Code = "already_exists"
	CodePermissionDenied Code = "permission_denied"
	CodeInvalid          Code = "invalid"
	CodeUnavailable      Code = "unavailable"
)

var (
	ErrNotFound         = errors.New("docstore: document not found")
	ErrAlreadyExists    = errors.New("docstore: document already exists")
	ErrPermissionDenied = errors.New("docstore: permission denied")
	ErrInvalid          = errors.New("docstore: invalid argument")
	ErrUnavailable      = errors.New("docstore: unavailable")
	ErrStopped          = errors.New("docstore: iterator stopped")
)

// Error carries the path and operation that failed.
type Error struct {
	Code Code
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("docstore: %s %s: %s: %v", e.Op, e.Path, e.Code, e.Err)
	}
	return fmt.Sprintf("docstore: %s %s: %s", e.Op, e.Path, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrAlreadyExists:
		return e.Code == CodeAlreadyExists
	case ErrPermissionDenied:
		return e.Code == CodePermissionDenied
	case ErrInvalid:
		return e.Code == CodeInvalid
	case ErrUnavailable:
		return e.Code == CodeUnavailable
	}
	return false
}

func newError(code Code, op, path string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// AsError extracts the *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsPermissionDenied reports whether err is an authorization rejection.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// GetAll runs q once and returns its current result.
func GetAll(ctx context.Context, s Store, q Query) ([]Document, error) {
	it, err := s.Watch(ctx, q)
	if err != nil {
		return nil, err
	}
	defer it.Stop()
	return it.Next(ctx)
}
