package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/database"
	"recruit-inbox/internal/engine"
	"recruit-inbox/internal/handlers"
	"recruit-inbox/internal/inbox"
	"recruit-inbox/internal/logger"
	"recruit-inbox/internal/middleware"
	"recruit-inbox/internal/profiles"
	"recruit-inbox/internal/utils"
	"recruit-inbox/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
)

// app holds every long-lived component so main can shut them down in order.
type app struct {
	cfg    *config.Config
	db     database.DBAdapter
	engine *engine.Engine
	server *handlers.Server
	http   *http.Server
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Type, err)
	}
	slog.Info("Database ready", "type", cfg.Database.Type, "resolution", db.Resolution())

	clock := utils.NewMonotonicClock(db.Resolution())
	metrics := utils.NewMetricsCollector()

	// Initialize actor system
	system := actor.NewActorSystem()
	inboxEngine := engine.NewEngine(system, metrics)

	directory := profiles.NewCachedDirectory(db, cfg.Inbox.ProfileCacheTTL)
	service := inbox.NewService(db, directory, inboxEngine.Publisher(), clock, metrics, cfg.Inbox)
	hub := websocket.NewHub(system.Root, inboxEngine.GetRelayActor(), cfg.Inbox.SessionBuffer)
	auth := middleware.NewAuthenticator(cfg.Auth)

	server := handlers.NewServer(system, inboxEngine, metrics, service, hub, auth)
	server.AllowedOrigins = cfg.AllowedOrigins
	server.MetricsEnabled = cfg.Server.MetricsEnabled
	server.RequestTimeout = cfg.Server.RequestTimeout

	return &app{
		cfg:    cfg,
		db:     db,
		engine: inboxEngine,
		server: server,
		http: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: server.NewRouter(),
		},
	}, nil
}

// shutdown stops accepting requests, detaches the relay and closes the store.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	a.engine.Stop()
	if err := a.db.Close(ctx); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if _, err := logger.Setup(cfg.Logger); err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("Startup failed", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", a.http.Addr)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			slog.Error("Server failed", "error", err)
		}
	}
	a.shutdown()
	slog.Info("Server stopped")
}
