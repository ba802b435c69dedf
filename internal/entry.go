// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/staykeep/internal/api"
	"github.com/starford/staykeep/internal/blob"
	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/metrics"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/notify"
	"github.com/starford/staykeep/internal/realtime"
	"github.com/starford/staykeep/internal/scheduler"
	"github.com/starford/staykeep/internal/store"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger initializes the structured JSON logger and installs it as default.
func (a *application) logger() *slog.Logger {
	var out io.Writer = os.Stdout
	if a.logOutput != nil {
		out = a.logOutput
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openBlobs builds the photo store. The returned handler serves local files
// and is nil for remote stores.
func openBlobs(ctx context.Context, cfg BlobConfig) (blob.Store, http.Handler, error) {
	switch cfg.Driver {
	case blob.DriverS3:
		s3, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			PathStyle:     cfg.S3.PathStyle,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	default:
		if err := os.MkdirAll(cfg.FS.Root, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create blob root: %w", err)
		}
		fs, err := blob.NewFS(cfg.FS.Root, cfg.FS.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs.Handler(), nil
	}
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Run starts the server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("blob_driver", cfg.Blob.Driver),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Entity store.
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	m := metrics.New()

	// Realtime feed: every committed write is fanned out to SSE subscribers.
	broker := realtime.NewBroker(realtime.WithDropHook(func(realtime.Event) { m.ObserveDrop() }))
	defer broker.Close()
	m.TrackSubscribers(broker.ClientCount)
	db.OnChange(func(c entity.Change) {
		broker.PublishChange(c)
		m.ObserveChange(c)
	})

	blobs, files, err := openBlobs(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	auth := identity.NewAuthenticator(cfg.Auth.Mode, cfg.Auth.Token, cfg.Auth.JWTSecret)
	apiRouter := api.NewRouter(api.Config{
		Store:  db,
		Auth:   auth,
		Blobs:  blobs,
		Events: broker,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, `{"status":"ok"}`)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(pingCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, `{"status":"unavailable"}`)
			return
		}
		writeStatus(w, http.StatusOK, `{"status":"ok"}`)
	})
	r.Handle("/metrics", m.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)
	if files != nil {
		r.Mount(cfg.Blob.FS.BaseURL, http.StripPrefix(cfg.Blob.FS.BaseURL, files))
	}

	var handler http.Handler = r
	if len(cfg.App.CORS.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   cfg.App.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler(r)
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Due-inspection reminders.
	if cfg.Scheduler.Enabled {
		templates := store.NewCollection[models.ChecklistTemplate](db, models.TableChecklistTemplates)
		sched := scheduler.New(templates, broker, notify.NewLog(logger), logger)
		g.Go(func() error {
			return sched.Run(gCtx, cfg.Scheduler.Spec)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams only end when their subscribers go away.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the scheduler stops with the server.
var errShutdown = errors.New("shutdown")
