package errbus

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitWithoutListeners(t *testing.T) {
	b := New(nil)
	assert.NotPanics(t, func() {
		b.Emit(PermissionError{Path: "books/b1", Operation: "update"})
	})
}

func TestEmitReachesEveryListener(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var got []string

	b.Subscribe(func(e PermissionError) {
		mu.Lock()
		got = append(got, "a:"+e.Path)
		mu.Unlock()
	})
	b.Subscribe(func(e PermissionError) {
		mu.Lock()
		got = append(got, "b:"+e.Path)
		mu.Unlock()
	})

	b.Emit(PermissionError{Path: "users/u2/notifications", Operation: "list", Err: errors.New("denied")})

	assert.ElementsMatch(t, []string{"a:users/u2/notifications", "b:users/u2/notifications"}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	calls := 0
	unsubscribe := b.Subscribe(func(PermissionError) { calls++ })

	b.Emit(PermissionError{Path: "chats/c1"})
	unsubscribe()
	unsubscribe()
	b.Emit(PermissionError{Path: "chats/c1"})

	assert.Equal(t, 1, calls)
}

func TestEmitHoldsNoState(t *testing.T) {
	b := New(nil)
	b.Emit(PermissionError{Path: "books/b1"})

	calls := 0
	b.Subscribe(func(PermissionError) { calls++ })
	assert.Equal(t, 0, calls, "late subscribers must not receive past emissions")
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	b := New(nil)
	b.Subscribe(func(PermissionError) { panic("boom") })
	var received PermissionError
	b.Subscribe(func(e PermissionError) { received = e })

	require.NotPanics(t, func() {
		b.Emit(PermissionError{Path: "reels/r1", Operation: "delete"})
	})
	assert.Equal(t, "reels/r1", received.Path)
	assert.False(t, received.At.IsZero())
}
