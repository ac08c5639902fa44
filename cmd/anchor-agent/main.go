package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anchorhq/anchor/internal/agent/config"
	"github.com/anchorhq/anchor/internal/agent/ctlapi"
	"github.com/anchorhq/anchor/internal/agent/engine"
	"github.com/anchorhq/anchor/internal/agent/listener"
	"github.com/anchorhq/anchor/internal/agent/localstore"
	"github.com/anchorhq/anchor/internal/agent/remote"
	"github.com/anchorhq/anchor/internal/agent/rules"
	"github.com/anchorhq/anchor/internal/agent/schedule"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to agent config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "error", err)
		os.Exit(1)
	}

	store, err := localstore.Open(cfg.DBPath())
	if err != nil {
		logger.Error("open device store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client := remote.NewClient(cfg.ServerURL, store)
	sink := rules.NewFileSink(cfg.RulesPath)
	eng := engine.New(store, client, sink, logger)
	lm := listener.NewManager(client, eng, logger)
	trigger := schedule.New(store, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Reinstall rules for any snapshot that survived a restart, then
	// converge against the shared store if a user is signed in.
	if err := eng.RestoreRules(ctx); err != nil {
		logger.Warn("restore block rules", "error", err)
	}
	if cred, err := store.Credential(ctx); err == nil && cred != nil {
		if _, err := eng.Sync(ctx, "startup"); err != nil {
			logger.Warn("startup sync", "error", err)
		}
		if err := lm.EnsureSubscribed(ctx, cred.UserID, false); err != nil {
			logger.Warn("startup subscribe", "error", err)
		}
	}

	go trigger.Run(ctx)

	api := ctlapi.New(eng, store, client, lm, logger)
	mux := http.NewServeMux()
	api.Routes(mux)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("agent control API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("control API error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down agent")
	lm.Teardown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control API shutdown error", "error", err)
	}
	logger.Info("agent stopped")
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".anchor", "agent.yaml")
	}
	return "agent.yaml"
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
