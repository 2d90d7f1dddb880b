// Package mutation composes multi-document writes into one atomic commit.
package mutation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/errbus"
	"github.com/anonto42/folio/backend/internal/metrics"
)

// Batcher owns the commit path shared by every write in the application.
type Batcher struct {
	store   docstore.Store
	bus     *errbus.Bus
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewBatcher creates a Batcher. A nil recorder disables metrics.
func NewBatcher(store docstore.Store, bus *errbus.Bus, logger *slog.Logger, rec metrics.Recorder) *Batcher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{store: store, bus: bus, logger: logger, metrics: rec}
}

// Store returns the underlying store for reads.
func (b *Batcher) Store() docstore.Store { return b.store }

// Bus returns the permission error channel rejections are published on.
func (b *Batcher) Bus() *errbus.Bus { return b.bus }

// Metrics returns the recorder commits are reported to.
func (b *Batcher) Metrics() metrics.Recorder { return b.metrics }

// Begin starts an empty batch.
func (b *Batcher) Begin() *Batch {
	return &Batch{batcher: b}
}

// Batch accumulates ordered writes. It is not safe for concurrent use.
type Batch struct {
	batcher *Batcher
	ops     []docstore.Op
}

// Create adds a write that fails the whole batch if path already exists.
func (bt *Batch) Create(path string, data map[string]any) *Batch {
	bt.ops = append(bt.ops, docstore.Op{Kind: docstore.OpCreate, Path: path, Data: data})
	return bt
}

// Set adds an overwrite of path.
func (bt *Batch) Set(path string, data map[string]any) *Batch {
	bt.ops = append(bt.ops, docstore.Op{Kind: docstore.OpSet, Path: path, Data: data})
	return bt
}

// Update adds a field update that fails the whole batch if path is absent.
func (bt *Batch) Update(path string, fields map[string]any) *Batch {
	bt.ops = append(bt.ops, docstore.Op{Kind: docstore.OpUpdate, Path: path, Data: fields})
	return bt
}

// Increment adds an atomic counter change on path.field.
func (bt *Batch) Increment(path, field string, n int64) *Batch {
	return bt.Update(path, map[string]any{field: docstore.Increment{N: n}})
}

// Delete adds a delete of path; missing documents are ignored.
func (bt *Batch) Delete(path string) *Batch {
	bt.ops = append(bt.ops, docstore.Op{Kind: docstore.OpDelete, Path: path})
	return bt
}

// DeleteExisting adds a delete that fails the whole batch if path is absent.
func (bt *Batch) DeleteExisting(path string) *Batch {
	bt.ops = append(bt.ops, docstore.Op{Kind: docstore.OpDelete, Path: path, MustExist: true})
	return bt
}

// Len returns the number of queued writes.
func (bt *Batch) Len() int { return len(bt.ops) }

// Ops returns a copy of the queued writes.
func (bt *Batch) Ops() []docstore.Op {
	return append([]docstore.Op(nil), bt.ops...)
}

// Commit applies every queued write or none of them. Authorization rejections
// are published on the permission error channel before being returned. The
// batcher never retries; callers roll back optimistic state on error.
func (bt *Batch) Commit(ctx context.Context) error {
	b := bt.batcher
	if len(bt.ops) == 0 {
		return fmt.Errorf("%w: empty batch", docstore.ErrInvalid)
	}

	err := b.store.Commit(ctx, bt.ops)
	if err == nil {
		b.metrics.RecordCommit("ok")
		return nil
	}

	if docstore.IsPermissionDenied(err) {
		b.metrics.RecordCommit("permission_denied")
		b.metrics.RecordPermissionDenied(operationOf(err))
		b.bus.Emit(b.rejection(ctx, bt.ops, err))
		return err
	}
	b.metrics.RecordCommit("failed")
	b.logger.Debug("batch commit failed", "ops", len(bt.ops), "error", err, "uid", auth.UID(ctx))
	return err
}

func (b *Batcher) rejection(ctx context.Context, ops []docstore.Op, err error) errbus.PermissionError {
	pe := errbus.PermissionError{UID: auth.UID(ctx), Err: err}
	if se, ok := docstore.AsError(err); ok {
		pe.Path = se.Path
		pe.Operation = se.Op
	}
	for _, op := range ops {
		if op.Path == pe.Path {
			pe.Payload = op.Data
			break
		}
	}
	if pe.Path == "" && len(ops) > 0 {
		pe.Path = ops[0].Path
		pe.Operation = ops[0].Kind.String()
		pe.Payload = ops[0].Data
	}
	return pe
}

func operationOf(err error) string {
	if se, ok := docstore.AsError(err); ok {
		return se.Op
	}
	return "commit"
}
