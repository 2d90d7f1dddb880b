// Package presence keeps the session owner's online marker fresh.
package presence

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/metrics"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
)

// DefaultInterval is how often the marker is refreshed.
const DefaultInterval = 60 * time.Second

// Path is where uid's presence marker lives.
func Path(uid string) string { return docstore.Join("presence", uid) }

// Heartbeat writes presence markers.
type Heartbeat struct {
	batcher  *mutation.Batcher
	interval time.Duration
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// New creates a Heartbeat. A non-positive interval uses DefaultInterval.
func New(b *mutation.Batcher, interval time.Duration, logger *slog.Logger, rec metrics.Recorder) *Heartbeat {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Heartbeat{batcher: b, interval: interval, logger: logger, metrics: rec}
}

// Visibility reports whether the session is in the foreground. The zero value
// is visible.
type Visibility struct {
	hidden atomic.Bool
}

func (v *Visibility) SetVisible(visible bool) { v.hidden.Store(!visible) }

func (v *Visibility) Visible() bool { return v == nil || !v.hidden.Load() }

// Run writes the marker immediately and then on every tick while vis reports
// visible, until ctx is done. It returns at once for anonymous sessions.
// Write failures are logged and the loop keeps going.
func (h *Heartbeat) Run(ctx context.Context, vis *Visibility) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return
	}
	if vis.Visible() {
		h.beat(ctx, id.UID)
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if vis.Visible() {
				h.beat(ctx, id.UID)
			}
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context, uid string) {
	err := h.batcher.Begin().Set(Path(uid), map[string]any{
		"status":   models.PresenceOnline,
		"lastSeen": docstore.ServerTimestamp,
	}).Commit(ctx)
	if err != nil && ctx.Err() == nil {
		h.metrics.RecordHeartbeatFailure()
		h.logger.Warn("presence heartbeat failed", "uid", uid, "error", err)
	}
}

// Online reports whether p was refreshed within staleAfter of now.
func Online(p models.Presence, now time.Time, staleAfter time.Duration) bool {
	return p.Status == models.PresenceOnline && now.Sub(p.LastSeen) <= staleAfter
}
