package policy

import (
	"context"
	"strings"

	"github.com/anonto42/folio/backend/internal/docstore"
)

// Public allows everyone, signed in or not.
func Public(context.Context, Request) bool { return true }

// Authenticated allows any signed-in user.
func Authenticated(_ context.Context, r Request) bool { return r.UID != "" }

// Is allows the user bound to the pattern variable name.
func Is(name string) Condition {
	return func(_ context.Context, r Request) bool {
		return r.UID != "" && r.UID == r.Vars[name]
	}
}

// IsNot allows signed-in users other than the one bound to name.
func IsNot(name string) Condition {
	return func(_ context.Context, r Request) bool {
		return r.UID != "" && r.UID != r.Vars[name]
	}
}

// DataIs allows writes whose (dotted) field equals the acting uid.
func DataIs(field string) Condition {
	return func(_ context.Context, r Request) bool {
		v, _ := docstore.Lookup(r.Data, field).(string)
		return r.UID != "" && v == r.UID
	}
}

// ExistingIs allows access when the stored document's field equals the acting uid.
func ExistingIs(field string) Condition {
	return func(_ context.Context, r Request) bool {
		v, _ := r.Existing[field].(string)
		return r.UID != "" && v == r.UID
	}
}

// OnlyFields allows signed-in updates that touch nothing but the named
// top-level fields. Dotted field paths count by their first segment.
func OnlyFields(fields ...string) Condition {
	allowed := make(map[string]bool, len(fields))
	for _, f := range fields {
		allowed[f] = true
	}
	return func(_ context.Context, r Request) bool {
		if r.UID == "" || len(r.Fields) == 0 {
			return false
		}
		for _, f := range r.Fields {
			top, _, _ := strings.Cut(f, ".")
			if !allowed[top] {
				return false
			}
		}
		return true
	}
}

// ExceptFields allows writes that leave the named top-level fields alone.
func ExceptFields(fields ...string) Condition {
	denied := make(map[string]bool, len(fields))
	for _, f := range fields {
		denied[f] = true
	}
	return func(_ context.Context, r Request) bool {
		for _, f := range r.Fields {
			top, _, _ := strings.Cut(f, ".")
			if denied[top] {
				return false
			}
		}
		return true
	}
}

// FieldIn allows writes that either leave field unset or set it to one of values.
func FieldIn(field string, values ...string) Condition {
	return func(_ context.Context, r Request) bool {
		v, ok := r.Data[field]
		if !ok {
			return true
		}
		s, _ := v.(string)
		for _, allowed := range values {
			if s == allowed {
				return true
			}
		}
		return false
	}
}

// ExistingMember allows users listed in the stored document's array field.
func ExistingMember(field string) Condition {
	return func(_ context.Context, r Request) bool {
		return r.UID != "" && contains(r.Existing[field], r.UID)
	}
}

// DataMember allows writes whose array field lists the acting uid.
func DataMember(field string) Condition {
	return func(_ context.Context, r Request) bool {
		return r.UID != "" && contains(r.Data[field], r.UID)
	}
}

// OwnerOf allows the user named by field on the document at the path built
// from the pattern variables.
func OwnerOf(path func(vars map[string]string) string, field string) Condition {
	return func(ctx context.Context, r Request) bool {
		if r.UID == "" {
			return false
		}
		data, ok := r.Get(ctx, path(r.Vars))
		if !ok {
			return false
		}
		v, _ := data[field].(string)
		return v == r.UID
	}
}

// MemberOf allows users listed in the array field of the document at path.
func MemberOf(path func(vars map[string]string) string, field string) Condition {
	return func(ctx context.Context, r Request) bool {
		if r.UID == "" {
			return false
		}
		data, ok := r.Get(ctx, path(r.Vars))
		if !ok {
			return false
		}
		return contains(data[field], r.UID)
	}
}

// Absent allows access when the document at path does not exist yet.
func Absent(path func(vars map[string]string) string) Condition {
	return func(ctx context.Context, r Request) bool {
		_, ok := r.Get(ctx, path(r.Vars))
		return r.UID != "" && !ok
	}
}

// Admin allows users whose profile carries role "admin".
func Admin(ctx context.Context, r Request) bool {
	if r.UID == "" {
		return false
	}
	data, ok := r.Get(ctx, "users/"+r.UID)
	if !ok {
		return false
	}
	role, _ := data["role"].(string)
	return role == "admin"
}

// AnyOf allows when at least one condition does.
func AnyOf(conds ...Condition) Condition {
	return func(ctx context.Context, r Request) bool {
		for _, c := range conds {
			if c != nil && c(ctx, r) {
				return true
			}
		}
		return false
	}
}

// AllOf allows when every condition does.
func AllOf(conds ...Condition) Condition {
	return func(ctx context.Context, r Request) bool {
		for _, c := range conds {
			if c == nil || !c(ctx, r) {
				return false
			}
		}
		return true
	}
}

func contains(list any, uid string) bool {
	switch l := list.(type) {
	case []any:
		for _, e := range l {
			if s, ok := e.(string); ok && s == uid {
				return true
			}
		}
	case []string:
		for _, s := range l {
			if s == uid {
				return true
			}
		}
	}
	return false
}
