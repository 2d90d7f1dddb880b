package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/handlers"
	"github.com/anonto42/folio/backend/internal/media"
	"github.com/anonto42/folio/backend/internal/middleware"
	"github.com/anonto42/folio/backend/internal/mutation"
	"github.com/anonto42/folio/backend/internal/notify"
	"github.com/anonto42/folio/backend/internal/presence"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/tasks"
	"github.com/anonto42/folio/backend/internal/toggle"
	"github.com/labstack/echo/v4"
)

// Dependencies are the shared services the routes are built from.
type Dependencies struct {
	// Batcher writes through the access-guarded store.
	Batcher *mutation.Batcher
	// Probe is the unguarded store used by the health check.
	Probe   docstore.Store
	Backend string

	Runner   *tasks.Runner
	Uploader media.Uploader
	Logger   *slog.Logger

	// Authenticator protects /api/v1.
	Authenticator echo.MiddlewareFunc
	FirebaseAuth  middleware.IDTokenVerifier
	JWTSecret     string
	DevTokens     bool

	HeartbeatInterval time.Duration
	// Diagnostics is nil when no Postgres database is configured.
	Diagnostics repositories.DiagnosticsRepository
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Dependencies) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	b := deps.Batcher

	// Health check - always accessible
	health := handlers.NewHealthHandler(deps.Probe, deps.Backend)
	e.GET("/health", health.HealthCheck)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"message": "folio api"})
	})

	// --- Initialize Repositories ---
	userRepo := repositories.NewStoreUserRepository(b)
	bookRepo := repositories.NewStoreBookRepository(b, deps.Uploader)
	commentRepo := repositories.NewStoreCommentRepository(b)
	storyRepo := repositories.NewStoreStoryRepository(b)
	notificationRepo := repositories.NewStoreNotificationRepository(b)
	chatRepo := repositories.NewStoreChatRepository(b, bookRepo)

	reconciler := toggle.NewReconciler(b, b.Bus(), log)
	fanout := notify.New(notificationRepo, userRepo, deps.Runner, log, b.Metrics())
	reconciler.OnActivate(fanout.ToggleHook(b.Store()))

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	authHandler := handlers.NewAuthHandler(userRepo, deps.FirebaseAuth, deps.JWTSecret, deps.DevTokens)
	authHandler.RegisterAuthRoutes(authGroup)
	log.Info("auth routes configured", "firebase", deps.FirebaseAuth != nil, "dev_tokens", deps.DevTokens)

	// --- Protected routes ---
	api := e.Group("/api/v1")
	api.Use(deps.Authenticator)

	authHandler.RegisterSessionRoutes(api)
	handlers.NewUserHandler(userRepo).RegisterProfileRoutes(api)
	handlers.NewBookHandler(bookRepo).RegisterBookRoutes(api)
	handlers.NewFeedHandler(bookRepo, userRepo, reconciler).RegisterFeedRoutes(api)
	handlers.NewFavoriteHandler(reconciler, userRepo).RegisterFavoriteRoutes(api)
	handlers.NewLikeHandler(reconciler).RegisterLikeRoutes(api)
	handlers.NewFollowHandler(reconciler, userRepo).RegisterFollowRoutes(api)
	handlers.NewCommentHandler(commentRepo, fanout, b.Store()).RegisterCommentRoutes(api)
	handlers.NewStoryHandler(storyRepo, userRepo, reconciler).RegisterStoryRoutes(api)
	handlers.NewNotificationHandler(notificationRepo).RegisterNotificationRoutes(api)
	handlers.NewChatHandler(chatRepo).RegisterChatRoutes(api)

	heartbeat := presence.New(b, deps.HeartbeatInterval, log, b.Metrics())
	handlers.NewLiveHandler(b.Store(), b.Bus(), heartbeat, b.Metrics(), log).RegisterLiveRoutes(api)

	if deps.Diagnostics != nil {
		handlers.NewDiagnosticsHandler(deps.Diagnostics).RegisterDiagnosticsRoutes(api)
	}

	log.Info("all routes configured", "routes", len(e.Routes()))
}
