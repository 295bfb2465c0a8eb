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

	"github.com/joho/godotenv"

	"github.com/utkarsh2338/NexMeet/internal/config"
	"github.com/utkarsh2338/NexMeet/internal/logging"
	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/meeting/mongostore"
	"github.com/utkarsh2338/NexMeet/internal/server"
	"github.com/utkarsh2338/NexMeet/internal/signaling"
	"github.com/utkarsh2338/NexMeet/internal/version"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(cfg.LogLevel, slog.LevelInfo)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Server, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	lifecycle := meeting.NewManager(store, meeting.Options{RetryAttempts: cfg.Store.RetryAttempts}, logger)

	// Meetings that were live when the server last stopped come back as
	// records only; their members rejoin over fresh connections.
	restored, err := lifecycle.Reconstruct(ctx)
	if err != nil {
		return err
	}
	logger.Info("restored active meetings", "count", restored)

	hub := signaling.NewHub(signaling.Config{
		DefaultCapacity: cfg.Meeting.DefaultCapacity,
		ChatMaxLength:   cfg.Meeting.ChatMaxLength,
	}, lifecycle, logger)

	sweeper := meeting.NewSweeper(store, lifecycle, hub.WithRoom, meeting.SweepConfig{
		Interval:      cfg.Meeting.SweepInterval,
		Retention:     cfg.Meeting.Retention,
		OrphanTimeout: cfg.Meeting.OrphanTimeout,
	}, logger)

	go hub.Run(ctx)
	go lifecycle.RunRetries(ctx)
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Routes(hub, cfg, store, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting signaling server", "addr", srv.Addr, "store", cfg.Store.Kind, "version", version.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if n := lifecycle.Pending(); n > 0 {
		logger.Warn("unsaved meeting writes dropped at shutdown", "count", n)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Server, logger *slog.Logger) (meeting.Store, func(), error) {
	if cfg.Store.Kind == "memory" {
		logger.Warn("using in-memory store, meetings will not survive a restart")
		return meeting.NewMemoryStore(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := mongostore.Connect(connectCtx, cfg.Store.MongoURI, cfg.Store.Database)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to mongodb", "database", cfg.Store.Database)

	return store, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			logger.Warn("mongodb disconnect failed", "error", err)
		}
	}, nil
}
