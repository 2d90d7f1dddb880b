package presence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/errbus"
	"github.com/anonto42/folio/backend/internal/metrics"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failureCounter struct {
	metrics.Nop
	n atomic.Int32
}

func (f *failureCounter) RecordHeartbeatFailure() { f.n.Add(1) }

func TestAnonymousSessionReturnsImmediately(t *testing.T) {
	mem := docstore.NewMemoryStore()
	h := New(mutation.NewBatcher(mem, errbus.New(nil), nil, nil), time.Millisecond, nil, nil)

	done := make(chan struct{})
	go func() {
		h.Run(context.Background(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run blocked for an anonymous session")
	}
	assert.Equal(t, 0, mem.Commits())
}

func TestWritesMarkerImmediatelyAndOnTicks(t *testing.T) {
	mem := docstore.NewMemoryStore()
	h := New(mutation.NewBatcher(mem, errbus.New(nil), nil, nil), 5*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(auth.WithIdentity(context.Background(), auth.Identity{UID: "u1"}))
	defer cancel()
	go h.Run(ctx, nil)

	require.Eventually(t, func() bool { return mem.Commits() >= 3 }, time.Second, time.Millisecond)
	doc, err := mem.Get(context.Background(), "presence/u1")
	require.NoError(t, err)
	require.True(t, doc.Exists)
	p, err := models.Decode[models.Presence](doc)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOnline, p.Status)
	assert.True(t, Online(p, time.Now(), time.Minute))
}

func TestFailuresAreSwallowedAndLoopContinues(t *testing.T) {
	mem := docstore.NewMemoryStore()
	var attempts atomic.Int32
	mem.SetCommitHook(func([]docstore.Op) error {
		attempts.Add(1)
		return errors.New("network down")
	})
	rec := &failureCounter{}
	h := New(mutation.NewBatcher(mem, errbus.New(nil), nil, nil), 2*time.Millisecond, nil, rec)

	ctx, cancel := context.WithCancel(auth.WithIdentity(context.Background(), auth.Identity{UID: "u1"}))
	defer cancel()
	go h.Run(ctx, nil)

	require.Eventually(t, func() bool { return rec.n.Load() >= 3 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestHiddenSessionSkipsWrites(t *testing.T) {
	mem := docstore.NewMemoryStore()
	h := New(mutation.NewBatcher(mem, errbus.New(nil), nil, nil), 2*time.Millisecond, nil, nil)

	vis := &Visibility{}
	vis.SetVisible(false)
	ctx, cancel := context.WithCancel(auth.WithIdentity(context.Background(), auth.Identity{UID: "u1"}))
	defer cancel()
	go h.Run(ctx, vis)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, mem.Commits())

	vis.SetVisible(true)
	require.Eventually(t, func() bool { return mem.Commits() > 0 }, time.Second, time.Millisecond)
}

func TestOnlineTreatsStaleMarkerAsOffline(t *testing.T) {
	now := time.Now()
	p := models.Presence{Status: models.PresenceOnline, LastSeen: now.Add(-5 * time.Minute)}
	assert.False(t, Online(p, now, 2*time.Minute))
	assert.True(t, Online(p, now, 10*time.Minute))
}
