package notify

import (
	"context"
	"fmt"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/toggle"
)

// owner reads the author and title of an entity document.
func owner(ctx context.Context, s docstore.Store, path string) (author, title string, ok bool, err error) {
	doc, err := s.Get(ctx, path)
	if err != nil || !doc.Exists {
		return "", "", false, err
	}
	author, _ = doc.Data["authorId"].(string)
	title, _ = doc.Data["title"].(string)
	return author, title, author != "", nil
}

func actorName(ctx context.Context) string {
	if id, ok := auth.FromContext(ctx); ok && id.DisplayName != "" {
		return id.DisplayName
	}
	return "Someone"
}

// ToggleHook returns a toggle hook that notifies content owners about
// favorites, reel likes and new followers. Other kinds are silent.
func (f *Fanout) ToggleHook(store docstore.Store) toggle.Hook {
	return func(ctx context.Context, kind toggle.Kind, actor, target string) {
		switch kind.Name {
		case toggle.Favorite.Name:
			f.DispatchFunc(ctx, string(models.NotificationFavorite), func(ctx context.Context) (Event, bool, error) {
				author, title, ok, err := owner(ctx, store, docstore.Join("books", target))
				if !ok {
					return Event{}, false, err
				}
				return Event{
					Recipient: author,
					Type:      models.NotificationFavorite,
					Link:      "/books/" + target,
					Text:      fmt.Sprintf("%s added %q to their favorites", actorName(ctx), title),
				}, true, nil
			})
		case toggle.ReelLike.Name:
			f.DispatchFunc(ctx, string(models.NotificationReelLike), func(ctx context.Context) (Event, bool, error) {
				author, _, ok, err := owner(ctx, store, docstore.Join("reels", target))
				if !ok {
					return Event{}, false, err
				}
				return Event{
					Recipient: author,
					Type:      models.NotificationReelLike,
					Link:      "/reels/" + target,
					Text:      fmt.Sprintf("%s liked your reel", actorName(ctx)),
				}, true, nil
			})
		case toggle.Follow.Name:
			f.Dispatch(ctx, Event{
				Recipient: target,
				Type:      models.NotificationFollow,
				Link:      "/users/" + actor,
				Text:      fmt.Sprintf("%s started following you", actorName(ctx)),
			})
		}
	}
}

// CommentCreated notifies the entity owner about a new comment, or the parent
// comment's author about a reply.
func (f *Fanout) CommentCreated(ctx context.Context, store docstore.Store, target repositories.CommentTarget, c models.Comment) {
	if c.ParentID != "" {
		f.DispatchFunc(ctx, string(models.NotificationCommentReply), func(ctx context.Context) (Event, bool, error) {
			parent := docstore.Join(target.Collection, target.ID, "comments", c.ParentID)
			author, _, ok, err := owner(ctx, store, parent)
			if !ok {
				return Event{}, false, err
			}
			return Event{
				Recipient: author,
				Type:      models.NotificationCommentReply,
				Link:      fmt.Sprintf("/%s/%s#comment-%s", target.Collection, target.ID, c.ID),
				Text:      fmt.Sprintf("%s replied to your comment", actorName(ctx)),
			}, true, nil
		})
		return
	}

	typ := models.NotificationBookComment
	if target.Collection == "reels" {
		typ = models.NotificationReelComment
	}
	f.DispatchFunc(ctx, string(typ), func(ctx context.Context) (Event, bool, error) {
		author, title, ok, err := owner(ctx, store, docstore.Join(target.Collection, target.ID))
		if !ok {
			return Event{}, false, err
		}
		text := fmt.Sprintf("%s commented on your reel", actorName(ctx))
		if typ == models.NotificationBookComment {
			text = fmt.Sprintf("%s commented on %q", actorName(ctx), title)
		}
		return Event{
			Recipient: author,
			Type:      typ,
			Link:      fmt.Sprintf("/%s/%s#comment-%s", target.Collection, target.ID, c.ID),
			Text:      text,
		}, true, nil
	})
}
