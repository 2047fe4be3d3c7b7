// Mentor Relay - learning assistant chat server
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

	"github.com/ashureev/mentor-relay/internal/agent"
	"github.com/ashureev/mentor-relay/internal/api"
	"github.com/ashureev/mentor-relay/internal/catalog"
	"github.com/ashureev/mentor-relay/internal/chat"
	"github.com/ashureev/mentor-relay/internal/config"
	"github.com/ashureev/mentor-relay/internal/liveevents"
	"github.com/ashureev/mentor-relay/internal/middleware"
	"github.com/ashureev/mentor-relay/internal/session"
	"github.com/ashureev/mentor-relay/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "model", cfg.Agent.Model, "catalog_token", cfg.HasCatalogToken())

	archive, err := openArchive(cfg.Archive)
	if err != nil {
		slog.Error("Failed to initialize archive", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := archive.Close(); closeErr != nil {
			slog.Error("Failed to close archive", "error", closeErr)
		}
	}()

	catalogClient := catalog.New(catalog.Options{
		Token:         cfg.Catalog.APIToken,
		ContentURL:    cfg.Catalog.ContentURL,
		LiveEventsURL: cfg.Catalog.LiveEventsURL,
		WebURL:        cfg.Catalog.WebURL,
		Timeout:       cfg.Catalog.HTTPTimeout,
		CacheTTL:      cfg.Catalog.CacheTTL,
		Logger:        logger,
	})

	ollama, err := agent.NewOllamaClient(cfg.Agent.OllamaHost)
	if err != nil {
		slog.Error("Failed to initialize Ollama client", "error", err)
		os.Exit(1)
	}
	agents := agent.NewRegistry(ollama, catalogClient, agent.RegistryConfig{
		Model:      cfg.Agent.Model,
		MaxTurns:   cfg.Agent.MaxTurns,
		MaxHistory: cfg.Agent.MaxHistory,
	})

	sessions := session.NewStore(agents, session.WithTTLs(cfg.Session.ActivityTTL, cfg.Session.HeartbeatTTL))
	reaper := session.NewReaper(sessions, cfg.Session.SweepEvery, func(ev session.Eviction) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := archive.RecordEviction(ctx, ev.SessionID, string(ev.Reason), sessions.Now()); err != nil {
			slog.Warn("Failed to archive eviction", "session_id", ev.SessionID, "error", err)
		}
	})

	handler := api.NewHandler(api.Deps{
		Chat:           chat.NewService(sessions, reaper, agents, archive),
		Sessions:       sessions,
		Reaper:         reaper,
		Events:         liveevents.NewAggregator(catalogClient, liveevents.WithMaxPages(cfg.Catalog.MaxPages)),
		Archive:        archive,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	handler.RegisterRoutes(r)

	// Agent calls can take a while; WriteTimeout stays generous.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	reaper.Wait()

	slog.Info("Server stopped successfully")
}

// openArchive opens the SQLite transcript archive, or a no-op archive when
// archiving is disabled, and prunes turns past the retention window.
func openArchive(cfg config.ArchiveConfig) (store.Archive, error) {
	if !cfg.Enabled {
		slog.Info("Transcript archive disabled")
		return store.Noop{}, nil
	}

	archive, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := archive.Ping(ctx); err != nil {
		_ = archive.Close()
		return nil, err
	}
	slog.Info("Archive connected", "path", cfg.DBPath)

	if cfg.Retention > 0 {
		pruned, err := archive.PruneBefore(ctx, time.Now().Add(-cfg.Retention))
		if err != nil {
			slog.Warn("Failed to prune archive", "error", err)
		} else {
			slog.Info("Archive pruned", "turns_deleted", pruned, "retention", cfg.Retention)
		}
	}
	return archive, nil
}
