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

	"github.com/dgallion1/docblocks/internal/api"
	"github.com/dgallion1/docblocks/internal/config"
	"github.com/dgallion1/docblocks/internal/index"
	"github.com/dgallion1/docblocks/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	captioners, captionStats := pipeline.NewCaptionerFactory(cfg, log)

	var ix pipeline.Indexer
	var indexClient *index.Client
	if cfg.IndexURL != "" {
		indexClient = index.NewClient(cfg.IndexURL, cfg.IndexAPIKey, cfg.IndexBatchTokens)
		ix = indexClient
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := indexClient.Ping(pingCtx); err != nil {
			log.Warn("index not reachable at startup", "url", cfg.IndexURL, "error", err)
		}
		pingCancel()
	} else {
		log.Info("no index configured, chunks stay in memory")
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, captioners, ix, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, captionStats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		if indexClient != nil {
			indexClient.Close()
		}
	}()

	log.Info("starting docblocks",
		"port", cfg.Port,
		"workers", cfg.WorkerCount,
		"captioning", cfg.CaptionEnabled,
		"indexing", ix != nil,
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
	log.Info("stopped")
}
