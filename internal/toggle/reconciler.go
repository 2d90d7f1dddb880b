// Package toggle implements favorite, like, follow and view toggles.
//
// Each (actor, target, kind) triple has exactly one membership document whose
// existence is the toggle state. Every transition writes the membership change
// and the paired counter increments in one commit. Activation uses a create
// precondition and deactivation a must-exist delete, so when two sessions race
// the store rejects the losing commit and the counter never drifts from the
// membership count.
package toggle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/errbus"
	"github.com/anonto42/folio/backend/internal/live"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
)

// ErrSelf is returned for kinds that forbid acting on oneself.
var ErrSelf = errors.New("toggle: actor and target are the same")

// State is the toggle state of one (actor, target) pair.
type State int

const (
	Absent State = iota
	Present
)

func (s State) String() string {
	if s == Present {
		return "present"
	}
	return "absent"
}

// Counter is a denormalized count kept equal to the number of memberships.
type Counter struct {
	Path  string
	Field string
}

// Kind describes where a toggle's membership and counters live.
type Kind struct {
	Name string
	// Membership is the authoritative membership document.
	Membership func(actor, target string) string
	// Mirrors are secondary membership documents written alongside, such as the
	// follower's own "following" entry.
	Mirrors   func(actor, target string) []string
	Counters  func(actor, target string) []Counter
	AllowSelf bool
}

var (
	Favorite = Kind{
		Name:       "favorite",
		Membership: func(actor, book string) string { return docstore.Join("users", actor, "favorites", book) },
		Counters: func(_, book string) []Counter {
			return []Counter{{Path: docstore.Join("books", book), Field: "favoriteCount"}}
		},
		AllowSelf: true,
	}
	BookLike = Kind{
		Name:       "book_like",
		Membership: func(actor, book string) string { return docstore.Join("books", book, "likes", actor) },
		Counters: func(_, book string) []Counter {
			return []Counter{{Path: docstore.Join("books", book), Field: "likeCount"}}
		},
		AllowSelf: true,
	}
	ReelLike = Kind{
		Name:       "reel_like",
		Membership: func(actor, reel string) string { return docstore.Join("reels", reel, "likes", actor) },
		Counters: func(_, reel string) []Counter {
			return []Counter{{Path: docstore.Join("reels", reel), Field: "likeCount"}}
		},
		AllowSelf: true,
	}
	Follow = Kind{
		Name:       "follow",
		Membership: func(actor, user string) string { return docstore.Join("users", user, "followers", actor) },
		Mirrors: func(actor, user string) []string {
			return []string{docstore.Join("users", actor, "following", user)}
		},
		Counters: func(actor, user string) []Counter {
			return []Counter{
				{Path: docstore.Join("users", user), Field: "followerCount"},
				{Path: docstore.Join("users", actor), Field: "followingCount"},
			}
		},
	}
	StoryView = Kind{
		Name:       "story_view",
		Membership: func(actor, story string) string { return docstore.Join("stories", story, "views", actor) },
		Counters: func(_, story string) []Counter {
			return []Counter{{Path: docstore.Join("stories", story), Field: "viewCount"}}
		},
		AllowSelf: true,
	}
)

// CommentLike is the like toggle for comments in one thread, such as the
// comments of books/{entityID}. The target is the comment ID.
func CommentLike(collection, entityID string) Kind {
	comment := func(id string) string { return docstore.Join(collection, entityID, "comments", id) }
	return Kind{
		Name:       "comment_like",
		Membership: func(actor, id string) string { return docstore.Join(comment(id), "likes", actor) },
		Counters: func(_, id string) []Counter {
			return []Counter{{Path: comment(id), Field: "likeCount"}}
		},
		AllowSelf: true,
	}
}

// Hook runs after a call actually moved a pair to Present. Hooks must not
// block; slow follow-up work belongs on a background runner.
type Hook func(ctx context.Context, kind Kind, actor, target string)

// Reconciler applies toggle transitions.
type Reconciler struct {
	batcher *mutation.Batcher
	bus     *errbus.Bus
	logger  *slog.Logger
	hooks   []Hook
}

// NewReconciler creates a Reconciler writing through batcher.
func NewReconciler(batcher *mutation.Batcher, bus *errbus.Bus, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{batcher: batcher, bus: bus, logger: logger}
}

// OnActivate registers h. It is not safe to call concurrently with transitions.
func (r *Reconciler) OnActivate(h Hook) {
	r.hooks = append(r.hooks, h)
}

func (r *Reconciler) check(kind Kind, actor, target string) error {
	if actor == "" || target == "" {
		return fmt.Errorf("%w: %s toggle needs actor and target", docstore.ErrInvalid, kind.Name)
	}
	if !kind.AllowSelf && actor == target {
		return ErrSelf
	}
	return nil
}

// State reads the current membership state.
func (r *Reconciler) State(ctx context.Context, kind Kind, actor, target string) (State, error) {
	if err := r.check(kind, actor, target); err != nil {
		return Absent, err
	}
	doc, err := r.batcher.Store().Get(ctx, kind.Membership(actor, target))
	if err != nil {
		return Absent, err
	}
	if doc.Exists {
		return Present, nil
	}
	return Absent, nil
}

// Activate moves the pair to Present. It reports whether this call changed
// the state; activating an already present pair is a no-op.
func (r *Reconciler) Activate(ctx context.Context, kind Kind, actor, target string) (bool, error) {
	st, err := r.State(ctx, kind, actor, target)
	if err != nil || st == Present {
		return false, err
	}

	membership := kind.Membership(actor, target)
	record := map[string]any{
		"userId":    actor,
		"targetId":  target,
		"createdAt": docstore.ServerTimestamp,
	}
	b := r.batcher.Begin().Create(membership, record)
	if kind.Mirrors != nil {
		for _, p := range kind.Mirrors(actor, target) {
			b.Set(p, record)
		}
	}
	for _, c := range kind.Counters(actor, target) {
		b.Increment(c.Path, c.Field, 1)
	}

	err = b.Commit(ctx)
	if lostRace(err, membership, docstore.ErrAlreadyExists) {
		r.logger.Debug("toggle already active", "kind", kind.Name, "actor", actor, "target", target)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("activate %s: %w", kind.Name, err)
	}
	for _, h := range r.hooks {
		h(ctx, kind, actor, target)
	}
	return true, nil
}

// Deactivate moves the pair to Absent. Deactivating an absent pair is a no-op.
func (r *Reconciler) Deactivate(ctx context.Context, kind Kind, actor, target string) (bool, error) {
	st, err := r.State(ctx, kind, actor, target)
	if err != nil || st == Absent {
		return false, err
	}

	membership := kind.Membership(actor, target)
	b := r.batcher.Begin().DeleteExisting(membership)
	if kind.Mirrors != nil {
		for _, p := range kind.Mirrors(actor, target) {
			b.Delete(p)
		}
	}
	for _, c := range kind.Counters(actor, target) {
		b.Increment(c.Path, c.Field, -1)
	}

	err = b.Commit(ctx)
	if lostRace(err, membership, docstore.ErrNotFound) {
		r.logger.Debug("toggle already inactive", "kind", kind.Name, "actor", actor, "target", target)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deactivate %s: %w", kind.Name, err)
	}
	return true, nil
}

// Toggle flips the pair and returns the resulting state.
func (r *Reconciler) Toggle(ctx context.Context, kind Kind, actor, target string) (State, error) {
	st, err := r.State(ctx, kind, actor, target)
	if err != nil {
		return Absent, err
	}
	if st == Present {
		if _, err := r.Deactivate(ctx, kind, actor, target); err != nil {
			return Present, err
		}
		return Absent, nil
	}
	if _, err := r.Activate(ctx, kind, actor, target); err != nil {
		return Absent, err
	}
	return Present, nil
}

// Watch subscribes to the membership document so a consumer can render the
// live toggle state. The caller closes the returned subscription.
func (r *Reconciler) Watch(ctx context.Context, kind Kind, actor, target string) (*live.Subscription[models.Membership], error) {
	if err := r.check(kind, actor, target); err != nil {
		return nil, err
	}
	sub := live.New(ctx, r.batcher.Store(), r.bus, models.Decode[models.Membership], live.WithLogger(r.logger))
	q := docstore.Doc(kind.Membership(actor, target))
	if err := sub.Update(&q); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// StateOf converts a membership subscription state to a toggle State.
func StateOf(st live.State[models.Membership]) State {
	if _, ok := st.First(); ok {
		return Present
	}
	return Absent
}

// lostRace reports whether err is the precondition failure on the membership
// document itself, meaning a concurrent transition already reached the target state.
func lostRace(err error, membership string, sentinel error) bool {
	if !errors.Is(err, sentinel) {
		return false
	}
	se, ok := docstore.AsError(err)
	return ok && se.Path == membership
}
