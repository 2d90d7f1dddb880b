package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Commits apply atomically under one lock
// and every watcher whose target a commit touches is woken to re-read the full
// result. It backs tests and the "memory" backend for local runs.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]map[string]any
	watchers map[int]*memoryIterator
	nextID   int
	now      func() time.Time
	hook     func(ops []Op) error
	commits  int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time used for ServerTimestamp.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		docs:     make(map[string]map[string]any),
		watchers: make(map[int]*memoryIterator),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCommitHook installs a function consulted before each commit; a non-nil
// return rejects the commit. Tests use it to simulate outages.
func (s *MemoryStore) SetCommitHook(hook func(ops []Op) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// ActiveWatchers returns the number of live iterators.
func (s *MemoryStore) ActiveWatchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// Commits returns the number of successful commits.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Paths lists the stored document paths under prefix, sorted.
func (s *MemoryStore) Paths(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.docs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if !IsDocumentPath(path) {
		return Document{}, newError(CodeInvalid, "get", path, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docLocked(path), nil
}

func (s *MemoryStore) docLocked(path string) Document {
	d := Document{Path: path, ID: Base(path)}
	if data, ok := s.docs[path]; ok {
		d.Exists = true
		d.Data = copyMap(data)
	}
	return d
}

func (s *MemoryStore) snapshotLocked(q Query) []Document {
	if q.IsDocument() {
		d := s.docLocked(q.Path)
		if !d.Exists {
			return []Document{}
		}
		return []Document{d}
	}
	var docs []Document
	for p := range s.docs {
		if Parent(p) == q.Path {
			docs = append(docs, s.docLocked(p))
		}
	}
	return q.Apply(docs)
}

func (s *MemoryStore) Watch(ctx context.Context, q Query) (Iterator, error) {
	if err := q.Validate(); err != nil {
		return nil, newError(CodeInvalid, "watch", q.Path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	it := &memoryIterator{
		store: s,
		id:    s.nextID,
		query: q,
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	s.watchers[it.id] = it
	return it, nil
}

func (s *MemoryStore) Commit(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return newError(CodeInvalid, "commit", "", fmt.Errorf("empty batch"))
	}
	for _, op := range ops {
		if !IsDocumentPath(op.Path) {
			return newError(CodeInvalid, op.Kind.String(), op.Path, nil)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hook != nil {
		if err := s.hook(ops); err != nil {
			return err
		}
	}

	// Stage every write against an overlay so a failing op leaves the store untouched.
	now := s.now()
	staged := make(map[string]map[string]any)
	deleted := make(map[string]bool)
	current := func(path string) (map[string]any, bool) {
		if deleted[path] {
			return nil, false
		}
		if d, ok := staged[path]; ok {
			return d, true
		}
		d, ok := s.docs[path]
		return d, ok
	}

	for _, op := range ops {
		existing, exists := current(op.Path)
		switch op.Kind {
		case OpCreate:
			if exists {
				return newError(CodeAlreadyExists, "create", op.Path, nil)
			}
			staged[op.Path] = resolveFields(nil, op.Data, now)
			delete(deleted, op.Path)
		case OpSet:
			staged[op.Path] = resolveFields(nil, op.Data, now)
			delete(deleted, op.Path)
		case OpUpdate:
			if !exists {
				return newError(CodeNotFound, "update", op.Path, nil)
			}
			next := copyMap(existing)
			for field, v := range op.Data {
				setField(next, field, resolveValue(Lookup(next, field), v, now))
			}
			staged[op.Path] = next
		case OpDelete:
			if !exists && op.MustExist {
				return newError(CodeNotFound, "delete", op.Path, nil)
			}
			delete(staged, op.Path)
			deleted[op.Path] = true
		default:
			return newError(CodeInvalid, op.Kind.String(), op.Path, nil)
		}
	}

	for p := range deleted {
		delete(s.docs, p)
	}
	for p, d := range staged {
		s.docs[p] = d
	}
	s.commits++

	for _, w := range s.watchers {
		for _, op := range ops {
			if w.query.Path == op.Path || w.query.Path == Parent(op.Path) {
				w.signal()
				break
			}
		}
	}
	return nil
}

type memoryIterator struct {
	store   *MemoryStore
	id      int
	query   Query
	dirty   chan struct{}
	done    chan struct{}
	once    sync.Once
	started bool
}

func (it *memoryIterator) signal() {
	select {
	case it.dirty <- struct{}{}:
	default:
	}
}

func (it *memoryIterator) Next(ctx context.Context) ([]Document, error) {
	if it.started {
		select {
		case <-it.dirty:
		case <-it.done:
			return nil, ErrStopped
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	select {
	case <-it.done:
		return nil, ErrStopped
	default:
	}
	it.started = true
	it.store.mu.Lock()
	defer it.store.mu.Unlock()
	return it.store.snapshotLocked(it.query), nil
}

func (it *memoryIterator) Stop() {
	it.once.Do(func() {
		close(it.done)
		it.store.mu.Lock()
		delete(it.store.watchers, it.id)
		it.store.mu.Unlock()
	})
}

func resolveFields(base, data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		var prev any
		if base != nil {
			prev = base[k]
		}
		out[k] = resolveValue(prev, v, now)
	}
	return out
}

func resolveValue(prev, v any, now time.Time) any {
	switch t := v.(type) {
	case Increment:
		if f, ok := prev.(float64); ok {
			return f + float64(t.N)
		}
		n, _ := toFloat(prev)
		return int64(n) + t.N
	case serverTimestamp:
		return now
	case map[string]any:
		var base map[string]any
		if m, ok := prev.(map[string]any); ok {
			base = m
		}
		return resolveFields(base, t, now)
	}
	return copyValue(v)
}

func setField(data map[string]any, field string, v any) {
	parts := strings.Split(field, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	}
	return v
}
