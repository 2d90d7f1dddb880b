package docstore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store on Cloud Firestore. Live queries use
// Firestore snapshot listeners; commits run in a transaction so preconditions
// are read and checked before any write is applied.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an initialized Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Get(ctx context.Context, path string) (Document, error) {
	ref := s.client.Doc(path)
	if ref == nil {
		return Document{}, newError(CodeInvalid, "get", path, nil)
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{Path: path, ID: ref.ID}, nil
		}
		return Document{}, mapFirestoreError("get", path, err)
	}
	return Document{Path: path, ID: ref.ID, Data: snap.Data(), Exists: true}, nil
}

func (s *FirestoreStore) Watch(ctx context.Context, q Query) (Iterator, error) {
	if err := q.Validate(); err != nil {
		return nil, newError(CodeInvalid, "watch", q.Path, err)
	}
	if q.IsDocument() {
		ref := s.client.Doc(q.Path)
		if ref == nil {
			return nil, newError(CodeInvalid, "get", q.Path, nil)
		}
		return &firestoreDocIterator{path: q.Path, it: ref.Snapshots(ctx)}, nil
	}
	coll := s.client.Collection(q.Path)
	if coll == nil {
		return nil, newError(CodeInvalid, "list", q.Path, nil)
	}
	fq := coll.Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	for _, o := range q.Orders {
		dir := firestore.Asc
		if o.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(o.Field, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return &firestoreQueryIterator{path: q.Path, it: fq.Snapshots(ctx)}, nil
}

func (s *FirestoreStore) Commit(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return newError(CodeInvalid, "commit", "", errors.New("empty batch"))
	}
	refs := make([]*firestore.DocumentRef, len(ops))
	for i, op := range ops {
		refs[i] = s.client.Doc(op.Path)
		if refs[i] == nil {
			return newError(CodeInvalid, op.Kind.String(), op.Path, nil)
		}
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Firestore requires every read in a transaction to precede its writes.
		for i, op := range ops {
			if op.Kind == OpSet || (op.Kind == OpDelete && !op.MustExist) {
				continue
			}
			_, err := tx.Get(refs[i])
			exists := err == nil
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			switch {
			case op.Kind == OpCreate && exists:
				return newError(CodeAlreadyExists, "create", op.Path, nil)
			case op.Kind != OpCreate && !exists:
				return newError(CodeNotFound, op.Kind.String(), op.Path, nil)
			}
		}
		for i, op := range ops {
			var err error
			switch op.Kind {
			case OpCreate:
				err = tx.Create(refs[i], toFirestoreMap(op.Data))
			case OpSet:
				err = tx.Set(refs[i], toFirestoreMap(op.Data))
			case OpUpdate:
				updates := make([]firestore.Update, 0, len(op.Data))
				for field, v := range op.Data {
					updates = append(updates, firestore.Update{Path: field, Value: toFirestoreValue(v)})
				}
				err = tx.Update(refs[i], updates)
			case OpDelete:
				err = tx.Delete(refs[i])
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return mapFirestoreError("commit", ops[0].Path, err)
}

type firestoreDocIterator struct {
	path string
	it   *firestore.DocumentSnapshotIterator
}

func (i *firestoreDocIterator) Next(ctx context.Context) ([]Document, error) {
	snap, err := i.it.Next()
	if err != nil {
		return nil, mapFirestoreError("get", i.path, err)
	}
	if !snap.Exists() {
		return []Document{}, nil
	}
	return []Document{{Path: i.path, ID: snap.Ref.ID, Data: snap.Data(), Exists: true}}, nil
}

func (i *firestoreDocIterator) Stop() { i.it.Stop() }

type firestoreQueryIterator struct {
	path string
	it   *firestore.QuerySnapshotIterator
}

func (i *firestoreQueryIterator) Next(ctx context.Context) ([]Document, error) {
	qs, err := i.it.Next()
	if err != nil {
		return nil, mapFirestoreError("list", i.path, err)
	}
	snaps, err := qs.Documents.GetAll()
	if err != nil {
		return nil, mapFirestoreError("list", i.path, err)
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Document{
			Path:   Join(i.path, snap.Ref.ID),
			ID:     snap.Ref.ID,
			Data:   snap.Data(),
			Exists: true,
		})
	}
	return docs, nil
}

func (i *firestoreQueryIterator) Stop() { i.it.Stop() }

func toFirestoreMap(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreValue(v any) any {
	switch t := v.(type) {
	case Increment:
		return firestore.Increment(t.N)
	case serverTimestamp:
		return firestore.ServerTimestamp
	case map[string]any:
		return toFirestoreMap(t)
	}
	return v
}

func mapFirestoreError(op, path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return newError(CodePermissionDenied, op, path, err)
	case codes.NotFound:
		return newError(CodeNotFound, op, path, err)
	case codes.AlreadyExists:
		return newError(CodeAlreadyExists, op, path, err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		return newError(CodeInvalid, op, path, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return newError(CodeUnavailable, op, path, err)
	}
	return err
}
