package handlers

import (
	"net/http"
	"time"

	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/toggle"
	"github.com/labstack/echo/v4"
)

// StoryHandler handles story-related HTTP requests
type StoryHandler struct {
	storyRepository repositories.StoryRepository
	userRepository  repositories.UserRepository
	reconciler      *toggle.Reconciler
}

// NewStoryHandler creates a new StoryHandler
func NewStoryHandler(storyRepo repositories.StoryRepository, userRepo repositories.UserRepository, reconciler *toggle.Reconciler) *StoryHandler {
	return &StoryHandler{
		storyRepository: storyRepo,
		userRepository:  userRepo,
		reconciler:      reconciler,
	}
}

// RegisterStoryRoutes registers story-related routes
func (h *StoryHandler) RegisterStoryRoutes(g *echo.Group) {
	g.GET("/stories", h.GetStories)
	g.GET("/stories/:id", h.GetStory)
	g.POST("/stories", h.CreateStory)
	g.POST("/stories/:id/seen", h.MarkAsSeen)
}

// StoryAuthor is the compact author shown on a story ring.
type StoryAuthor struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// StoryResponse is the enriched story response
type StoryResponse struct {
	models.Story
	Author StoryAuthor `json:"author"`
	Unseen bool        `json:"unseen"`
}

func (h *StoryHandler) author(c echo.Context, cache map[string]StoryAuthor, uid string) StoryAuthor {
	if a, ok := cache[uid]; ok {
		return a
	}
	a := StoryAuthor{ID: uid}
	if user, err := h.userRepository.GetUserByID(c.Request().Context(), uid); err == nil {
		a.DisplayName = user.DisplayName
		a.AvatarURL = user.AvatarURL
	}
	cache[uid] = a
	return a
}

// GetStories returns active stories, with the caller's own story split out
func (h *StoryHandler) GetStories(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	stories, err := h.storyRepository.GetActiveStories(ctx)
	if err != nil {
		return storeError(err)
	}
	storyIDs := make([]string, len(stories))
	for i, s := range stories {
		storyIDs[i] = s.ID
	}
	seen, err := h.storyRepository.GetSeenStoryIDs(ctx, id.UID, storyIDs)
	if err != nil {
		return storeError(err)
	}

	authors := make(map[string]StoryAuthor)
	var currentUserStory *StoryResponse
	otherStories := make([]StoryResponse, 0, len(stories))
	for _, s := range stories {
		resp := StoryResponse{Story: s, Author: h.author(c, authors, s.AuthorID), Unseen: !seen[s.ID]}
		if s.AuthorID == id.UID {
			currentUserStory = &resp
			continue
		}
		otherStories = append(otherStories, resp)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"stories":          otherStories,
		"currentUserStory": currentUserStory,
	})
}

// GetStory returns a single story
func (h *StoryHandler) GetStory(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	story, err := h.storyRepository.GetStoryByID(ctx, c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	if !story.ExpiresAt.After(time.Now()) {
		return echo.NewHTTPError(http.StatusNotFound, "Story expired")
	}
	seen, err := h.storyRepository.HasSeen(ctx, story.ID, id.UID)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, StoryResponse{
		Story:  story,
		Author: h.author(c, map[string]StoryAuthor{}, story.AuthorID),
		Unseen: !seen,
	})
}

// CreateStory creates a new story that expires after a day
func (h *StoryHandler) CreateStory(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req models.CreateStoryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	story, err := h.storyRepository.CreateStory(c.Request().Context(), id, req)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, story)
}

// MarkAsSeen records the caller's view once and bumps the view counter
func (h *StoryHandler) MarkAsSeen(c echo.Context) error {
	return activate(c, h.reconciler, storyView)
}
