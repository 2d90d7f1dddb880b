package docstore

import (
	"context"
	"sort"
)

// Access describes one read or write the guard must authorize.
type Access struct {
	UID       string
	Operation string // get, list, create, update, delete
	Path      string
	Fields    []string
	Data      map[string]any
	// Existing is the stored document for update and delete checks.
	Existing map[string]any
}

// Rules decides whether an access is allowed.
type Rules interface {
	Allow(ctx context.Context, a Access) bool
}

// RulesFunc adapts a function to Rules.
type RulesFunc func(ctx context.Context, a Access) bool

func (f RulesFunc) Allow(ctx context.Context, a Access) bool { return f(ctx, a) }

// IdentityFunc resolves the acting user for a request; "" means anonymous.
type IdentityFunc func(ctx context.Context) string

type guardedStore struct {
	inner    Store
	rules    Rules
	identity IdentityFunc
}

// Guard wraps a Store so every read and write is checked against rules for
// the identity carried by the context. A commit containing any denied op is
// rejected as a whole before it reaches the backend.
func Guard(inner Store, rules Rules, identity IdentityFunc) Store {
	return &guardedStore{inner: inner, rules: rules, identity: identity}
}

func (g *guardedStore) Get(ctx context.Context, path string) (Document, error) {
	if !g.rules.Allow(ctx, Access{UID: g.identity(ctx), Operation: "get", Path: path}) {
		return Document{}, newError(CodePermissionDenied, "get", path, nil)
	}
	return g.inner.Get(ctx, path)
}

func (g *guardedStore) Watch(ctx context.Context, q Query) (Iterator, error) {
	op := "list"
	if q.IsDocument() {
		op = "get"
	}
	if !g.rules.Allow(ctx, Access{UID: g.identity(ctx), Operation: op, Path: q.Path}) {
		return nil, newError(CodePermissionDenied, op, q.Path, nil)
	}
	return g.inner.Watch(ctx, q)
}

func (g *guardedStore) Commit(ctx context.Context, ops []Op) error {
	uid := g.identity(ctx)
	for _, op := range ops {
		a := Access{UID: uid, Path: op.Path, Data: op.Data, Fields: fieldNames(op.Data)}
		switch op.Kind {
		case OpCreate:
			a.Operation = "create"
		case OpSet, OpUpdate, OpDelete:
			existing, err := g.inner.Get(ctx, op.Path)
			if err != nil {
				return err
			}
			a.Existing = existing.Data
			switch {
			case op.Kind == OpDelete:
				a.Operation = "delete"
			case op.Kind == OpSet && !existing.Exists:
				a.Operation = "create"
			default:
				a.Operation = "update"
			}
		}
		if !g.rules.Allow(ctx, a) {
			return newError(CodePermissionDenied, a.Operation, op.Path, nil)
		}
	}
	return g.inner.Commit(ctx, ops)
}

func fieldNames(data map[string]any) []string {
	if len(data) == 0 {
		return nil
	}
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
