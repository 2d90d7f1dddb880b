// Package errbus is a fire-and-forget channel for authorization rejections
// coming back from the document store. Producers emit, any number of listeners
// react; nothing is buffered between emissions.
package errbus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PermissionError describes a rejected read or write.
type PermissionError struct {
	UID       string
	Path      string
	Operation string
	Payload   map[string]any
	Err       error
	At        time.Time
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s %s", e.Operation, e.Path)
}

// Listener reacts to a PermissionError.
type Listener func(PermissionError)

// Bus fans each emitted error out to the listeners subscribed at that moment.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
	logger    *slog.Logger
}

// New creates a Bus. The logger reports listeners that panic.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{listeners: make(map[int]Listener), logger: logger}
}

// Subscribe registers fn and returns the function that removes it.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Emit delivers e synchronously to every current listener.
func (b *Bus) Emit(e PermissionError) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.deliver(fn, e)
	}
}

func (b *Bus) deliver(fn Listener, e PermissionError) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("permission error listener panicked", "path", e.Path, "operation", e.Operation, "panic", r)
		}
	}()
	fn(e)
}

// LogListener returns a listener that writes a diagnostic line per rejection.
func LogListener(logger *slog.Logger) Listener {
	return func(e PermissionError) {
		logger.Warn("store rejected operation",
			"uid", e.UID,
			"path", e.Path,
			"operation", e.Operation,
			"error", e.Err,
		)
	}
}
