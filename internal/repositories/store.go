package repositories

import (
	"context"
	"log/slog"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/live"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
)

// decodeAll decodes docs, skipping any that do not fit T.
func decodeAll[T any](docs []docstore.Document) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := models.Decode[T](d)
		if err != nil {
			slog.Warn("skipping undecodable document", "path", d.Path, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// getOne reads and decodes a single document, returning docstore.ErrNotFound
// when it is absent.
func getOne[T any](ctx context.Context, s docstore.Store, path string) (T, error) {
	doc, err := s.Get(ctx, path)
	if err != nil {
		var zero T
		return zero, err
	}
	return models.Decode[T](doc)
}

func watch[T any](ctx context.Context, b *mutation.Batcher, q docstore.Query, decode live.Decoder[T]) (*live.Subscription[T], error) {
	sub := live.New(ctx, b.Store(), b.Bus(), decode, live.WithMetrics(b.Metrics()))
	if err := sub.Update(&q); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}
