// Package live binds consumers to live document and collection queries.
//
// A Subscription holds at most one store listener at a time. Changing the
// query to one with a different semantic key tears the old listener down and
// starts a new one; re-submitting an equivalent query is a no-op. Every change
// in the store redelivers the complete, decoded result.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/errbus"
	"github.com/anonto42/folio/backend/internal/metrics"
)

// State is what a consumer renders.
type State[T any] struct {
	Data    []T
	Loading bool
	Err     error
}

// First returns the single record of a document query.
func (s State[T]) First() (T, bool) {
	if len(s.Data) == 0 {
		var zero T
		return zero, false
	}
	return s.Data[0], true
}

// Decoder maps a store document into a typed record.
type Decoder[T any] func(docstore.Document) (T, error)

// Option configures a Subscription.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics metrics.Recorder
}

// WithLogger sets the logger used for undecodable documents.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics reports established subscriptions.
func WithMetrics(m metrics.Recorder) Option {
	return func(o *options) { o.metrics = m }
}

// Subscription is a consumer's handle on one live query.
type Subscription[T any] struct {
	ctx    context.Context
	store  docstore.Store
	bus    *errbus.Bus
	decode Decoder[T]
	opts   options

	// deliver serializes listener calls so Close can wait out an in-flight one.
	deliver sync.Mutex

	mu        sync.Mutex
	closed    bool
	key       string
	gen       uint64
	teardown  func()
	state     State[T]
	nextID    int
	listeners map[int]func(State[T])
}

// New creates an idle subscription. ctx carries the session identity used for
// reads and bounds the subscription's lifetime.
func New[T any](ctx context.Context, store docstore.Store, bus *errbus.Bus, decode Decoder[T], opts ...Option) *Subscription[T] {
	o := options{logger: slog.Default(), metrics: metrics.Nop{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Subscription[T]{
		ctx:       ctx,
		store:     store,
		bus:       bus,
		decode:    decode,
		opts:      o,
		listeners: make(map[int]func(State[T])),
	}
}

// State returns the latest state.
func (s *Subscription[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnChange registers fn for every subsequent state change. Listeners must not
// call Close.
func (s *Subscription[T]) OnChange(fn func(State[T])) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Changes returns a channel that always holds the most recent undelivered
// state. The channel is never closed; stop reading after calling the returned
// cancel function.
func (s *Subscription[T]) Changes() (<-chan State[T], func()) {
	ch := make(chan State[T], 1)
	cancel := s.OnChange(func(st State[T]) {
		for {
			select {
			case ch <- st:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch, cancel
}

// Update points the subscription at q. A nil q settles immediately to an idle
// state with no listener. A q whose Key matches the active one is ignored.
// An invalid q is a programmer error and is returned without touching state.
func (s *Subscription[T]) Update(q *docstore.Query) error {
	if q != nil {
		if err := q.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if q == nil {
		wasActive := s.key != ""
		s.stopLocked()
		s.key = ""
		s.state = State[T]{}
		s.mu.Unlock()
		if wasActive {
			s.publish(s.currentGen(), State[T]{})
		}
		return nil
	}

	key := q.Key()
	if key == s.key {
		s.mu.Unlock()
		return nil
	}
	s.stopLocked()
	s.key = key
	s.gen++
	gen := s.gen
	s.state = State[T]{Loading: true}
	wctx, cancel := context.WithCancel(s.ctx)
	s.teardown = cancel
	s.mu.Unlock()

	go s.run(wctx, cancel, gen, *q)
	return nil
}

// Close tears down the listener. No listener is invoked after Close returns.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.key = ""
	s.mu.Unlock()

	s.deliver.Lock()
	s.deliver.Unlock()
}

func (s *Subscription[T]) stopLocked() {
	s.gen++
	if s.teardown != nil {
		s.teardown()
		s.teardown = nil
	}
}

func (s *Subscription[T]) currentGen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Subscription[T]) run(ctx context.Context, cancel context.CancelFunc, gen uint64, q docstore.Query) {
	it, err := s.store.Watch(ctx, q)
	if err != nil {
		s.fail(gen, q, err)
		cancel()
		return
	}
	s.opts.metrics.SubscriptionOpened()
	defer s.opts.metrics.SubscriptionClosed()
	defer it.Stop()

	// Stop the iterator as soon as the subscription moves on, so a blocked
	// Next returns even on backends that ignore ctx.
	go func() {
		<-ctx.Done()
		it.Stop()
	}()
	defer cancel()

	for {
		docs, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, docstore.ErrStopped) || ctx.Err() != nil {
				return
			}
			s.fail(gen, q, err)
			return
		}
		records := make([]T, 0, len(docs))
		for _, d := range docs {
			rec, err := s.decode(d)
			if err != nil {
				s.opts.logger.Warn("skipping undecodable document", "path", d.Path, "error", err)
				continue
			}
			records = append(records, rec)
		}
		if !s.publish(gen, State[T]{Data: records}) {
			return
		}
	}
}

func (s *Subscription[T]) fail(gen uint64, q docstore.Query, err error) {
	if docstore.IsPermissionDenied(err) {
		op := "list"
		if q.IsDocument() {
			op = "get"
		}
		s.opts.metrics.RecordPermissionDenied(op)
		s.bus.Emit(errbus.PermissionError{
			UID:       auth.UID(s.ctx),
			Path:      q.Path,
			Operation: op,
			Err:       err,
		})
	}
	s.publish(gen, State[T]{Err: err})
}

// publish stores st and notifies listeners if gen is still current. It
// reports false once the generation is stale.
func (s *Subscription[T]) publish(gen uint64, st State[T]) bool {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return false
	}
	s.state = st
	listeners := make([]func(State[T]), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
	return true
}
