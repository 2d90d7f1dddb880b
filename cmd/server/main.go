package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/errbus"
	"github.com/anonto42/folio/backend/internal/media"
	"github.com/anonto42/folio/backend/internal/metrics"
	"github.com/anonto42/folio/backend/internal/middleware"
	"github.com/anonto42/folio/backend/internal/mutation"
	"github.com/anonto42/folio/backend/internal/policy"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/router"
	"github.com/anonto42/folio/backend/internal/tasks"
	"github.com/anonto42/folio/backend/pkg/config"
	"github.com/anonto42/folio/backend/pkg/firebase"
	"github.com/anonto42/folio/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const storySweepInterval = 10 * time.Minute

func main() {
	// Load configuration
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Initialize database connections
	db, err := config.InitDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	// Initialize Firebase when credentials are configured
	var fb *firebase.App
	if cfg.FirebaseCredentialsPath != "" {
		fb, err = firebase.InitFirebase(ctx, firebase.Options{
			CredentialsPath: cfg.FirebaseCredentialsPath,
			ProjectID:       cfg.FirebaseProjectID,
			StorageBucket:   cfg.FirebaseStorageBucket,
		}, logger)
		if err != nil {
			return err
		}
		defer fb.Close()
	}

	inner, err := openStore(ctx, cfg, db, fb)
	if err != nil {
		return err
	}
	logger.Info("document store ready", "backend", cfg.StoreBackend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	bus := errbus.New(logger)
	bus.Subscribe(errbus.LogListener(logger))

	runner := tasks.New(cfg.TaskConcurrency, logger, tasks.WithTimeout(30*time.Second), tasks.WithMetrics(collector))

	var diagnostics repositories.DiagnosticsRepository
	if db.Postgres != nil {
		repo := repositories.NewPostgresDiagnosticsRepository(db.Postgres)
		if err := repo.Migrate(); err != nil {
			return err
		}
		bus.Subscribe(repositories.DiagnosticsListener(repo, runner, logger))
		diagnostics = repo
	}

	guarded := docstore.Guard(inner, policy.Default(inner), auth.UID)
	batcher := mutation.NewBatcher(guarded, bus, logger, collector)

	// Expired stories are swept with system privileges.
	system := mutation.NewBatcher(inner, bus, logger, collector)
	go sweepStories(ctx, repositories.NewStoreStoryRepository(system), logger)

	var uploader media.Uploader
	if fb != nil && fb.Bucket != nil {
		uploader = media.NewChain(logger, media.NewStorageUploader(fb.Bucket, fb.BucketName, "covers"))
	}

	authenticator, verifier, err := authentication(cfg, fb)
	if err != nil {
		return err
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e, logger)
	router.SetupRoutes(e, router.Dependencies{
		Batcher:           batcher,
		Probe:             inner,
		Backend:           cfg.StoreBackend,
		Runner:            runner,
		Uploader:          uploader,
		Logger:            logger,
		Authenticator:     authenticator,
		FirebaseAuth:      verifier,
		JWTSecret:         cfg.JWTSecret,
		DevTokens:         cfg.JWTSecret != "" && !cfg.IsProduction(),
		HeartbeatInterval: cfg.HeartbeatInterval,
		Diagnostics:       diagnostics,
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		errc <- e.Start(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown", "error", err)
	}
	if err := runner.Close(shutdownCtx); err != nil {
		logger.Warn("background tasks did not finish", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// openStore builds the configured document store backend.
func openStore(ctx context.Context, cfg *config.Config, db *config.DB, fb *firebase.App) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		if fb == nil {
			return nil, errors.New("firestore backend requires FIREBASE_CREDENTIALS_PATH")
		}
		return docstore.NewFirestoreStore(fb.Firestore), nil
	case config.BackendMongo:
		if db.Mongo == nil {
			return nil, errors.New("mongo backend requires MONGO_URI")
		}
		store := docstore.NewMongoStore(db.Mongo, db.Mongo.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		return docstore.NewMemoryStore(), nil
	}
	return nil, errors.New("unknown STORE_BACKEND " + cfg.StoreBackend)
}

// authentication picks the session authenticator. Firebase ID tokens are
// accepted when Firebase is configured and locally signed tokens when a JWT
// secret is set; at least one is required.
func authentication(cfg *config.Config, fb *firebase.App) (echo.MiddlewareFunc, middleware.IDTokenVerifier, error) {
	var (
		chain    []echo.MiddlewareFunc
		verifier middleware.IDTokenVerifier
	)
	if cfg.JWTSecret != "" {
		chain = append(chain, middleware.JWTAuthMiddleware(cfg.JWTSecret))
	}
	if fb != nil {
		verifier = fb.AuthClient
		chain = append(chain, middleware.FirebaseAuthMiddleware(verifier))
	}
	if len(chain) == 0 {
		return nil, nil, errors.New("no authentication configured: set JWT_SECRET or FIREBASE_CREDENTIALS_PATH")
	}
	return middleware.FirstOf(chain...), verifier, nil
}

func sweepStories(ctx context.Context, stories repositories.StoryRepository, logger *slog.Logger) {
	ticker := time.NewTicker(storySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := stories.DeleteExpiredStories(ctx)
			if err != nil {
				logger.Warn("expired story sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired stories removed", "count", n)
			}
		}
	}
}
