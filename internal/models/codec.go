package models

import (
	"fmt"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
)

var validate = validator.New()

// Meta carries the document identity. It is not stored in the document body.
type Meta struct {
	ID string `json:"id" bson:"-"`
}

// SetID records the document ID after decoding.
func (m *Meta) SetID(id string) { m.ID = id }

// Decode converts a schemaless store document into a typed record and
// validates its shape. A document that does not fit T is an error, never a
// half-filled record.
func Decode[T any](doc docstore.Document) (T, error) {
	var out T
	if !doc.Exists {
		return out, fmt.Errorf("decode %s: %w", doc.Path, docstore.ErrNotFound)
	}
	raw, err := bson.Marshal(doc.Data)
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", doc.Path, err)
	}
	if err := bson.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", doc.Path, err)
	}
	if r, ok := any(&out).(interface{ SetID(string) }); ok {
		r.SetID(doc.ID)
	}
	if err := validate.Struct(&out); err != nil {
		return out, fmt.Errorf("decode %s: invalid shape: %w", doc.Path, err)
	}
	return out, nil
}

// Encode validates a typed record and converts it into store fields.
func Encode(v any) (map[string]any, error) {
	if err := validate.Struct(v); err != nil {
		return nil, fmt.Errorf("encode: invalid shape: %w", err)
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	out, _ := docstore.FromBSON(m).(map[string]any)
	return out, nil
}

// Validate checks a request or record against its validate tags.
func Validate(v any) error {
	return validate.Struct(v)
}
