// Package notify writes derived notifications into recipients' inboxes when
// an actor interacts with their content.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/metrics"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/tasks"
)

// ErrNoActor is returned when the context carries no signed-in actor.
var ErrNoActor = errors.New("notify: no authenticated actor")

// Outcome reports what Notify did with an event.
type Outcome string

const (
	Sent                 Outcome = "sent"
	SuppressedSelf       Outcome = "suppressed_self"
	SuppressedPreference Outcome = "suppressed_pref"
	Failed               Outcome = "failed"
)

// Event is one interaction worth telling Recipient about. The actor is the
// identity carried by the context.
type Event struct {
	Recipient string
	Type      models.NotificationType
	Link      string
	Text      string
}

// Fanout writes notifications. Notify is synchronous; Dispatch hands the
// same work to the background runner.
type Fanout struct {
	inbox   repositories.NotificationRepository
	users   repositories.UserRepository
	runner  *tasks.Runner
	logger  *slog.Logger
	metrics metrics.Recorder
}

// New creates a Fanout. A nil recorder disables metrics.
func New(inbox repositories.NotificationRepository, users repositories.UserRepository, runner *tasks.Runner, logger *slog.Logger, rec metrics.Recorder) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Fanout{inbox: inbox, users: users, runner: runner, logger: logger, metrics: rec}
}

// Notify delivers ev unless the actor is the recipient or the recipient has
// turned the event type off. A missing preference counts as enabled.
func (f *Fanout) Notify(ctx context.Context, ev Event) (Outcome, error) {
	actor, ok := auth.FromContext(ctx)
	if !ok {
		return Failed, ErrNoActor
	}
	if actor.UID == ev.Recipient {
		f.metrics.RecordNotification(string(SuppressedSelf))
		return SuppressedSelf, nil
	}

	prefs, err := f.inbox.GetPreferences(ctx, ev.Recipient)
	if err != nil {
		f.metrics.RecordNotification(string(Failed))
		return Failed, fmt.Errorf("read preferences of %s: %w", ev.Recipient, err)
	}
	if !prefs.Enabled(ev.Type) {
		f.metrics.RecordNotification(string(SuppressedPreference))
		return SuppressedPreference, nil
	}

	n := models.Notification{
		Type:  ev.Type,
		Text:  ev.Text,
		Link:  ev.Link,
		Actor: f.snapshot(ctx, actor),
	}
	if _, err := f.inbox.Create(ctx, ev.Recipient, n); err != nil {
		f.metrics.RecordNotification(string(Failed))
		return Failed, fmt.Errorf("write notification for %s: %w", ev.Recipient, err)
	}
	f.metrics.RecordNotification(string(Sent))
	return Sent, nil
}

// snapshot captures the actor's current name and avatar. The stored profile
// wins over token claims when it has them.
func (f *Fanout) snapshot(ctx context.Context, actor auth.Identity) models.ActorSnapshot {
	s := models.ActorSnapshot{ID: actor.UID, Name: actor.DisplayName, Avatar: actor.AvatarURL}
	if f.users == nil {
		return s
	}
	profile, err := f.users.GetUserByID(ctx, actor.UID)
	if err != nil {
		return s
	}
	if profile.DisplayName != "" {
		s.Name = profile.DisplayName
	}
	if profile.AvatarURL != "" {
		s.Avatar = profile.AvatarURL
	}
	return s
}

// Dispatch schedules ev in the background. Failures are logged by the
// runner and never reach the caller.
func (f *Fanout) Dispatch(ctx context.Context, ev Event) {
	f.DispatchFunc(ctx, string(ev.Type), func(context.Context) (Event, bool, error) {
		return ev, true, nil
	})
}

// Resolver builds an event in the background, typically after reading the
// entity that decides the recipient. ok=false means there is nothing to send.
type Resolver func(ctx context.Context) (ev Event, ok bool, err error)

// DispatchFunc schedules resolve followed by Notify in the background, with
// the caller's identity carried into the task.
func (f *Fanout) DispatchFunc(ctx context.Context, name string, resolve Resolver) {
	actor, _ := auth.FromContext(ctx)
	err := f.runner.Go(ctx, "notify."+name, func(tctx context.Context) error {
		tctx = auth.WithIdentity(tctx, actor)
		ev, ok, err := resolve(tctx)
		if err != nil || !ok {
			return err
		}
		_, err = f.Notify(tctx, ev)
		return err
	})
	if err != nil {
		f.metrics.RecordNotification(string(Failed))
		f.logger.Warn("notification not scheduled", "task", name, "error", err)
	}
}
