package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/splgest/internal/api"
	"github.com/dgallion1/splgest/internal/config"
	"github.com/dgallion1/splgest/internal/index"
	"github.com/dgallion1/splgest/internal/pipeline"
	"github.com/dgallion1/splgest/internal/store"
)

func main() {
	cfg, err := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Error("open store", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}

	// Interfaces stay nil unless an index is configured.
	var (
		idxClient *index.Client
		indexer   pipeline.Indexer
		deleter   api.DocumentDeleter
	)
	if cfg.IndexURL != "" {
		idxClient = index.NewClient(cfg.IndexURL, cfg.IndexAPIKey)
		indexer = idxClient
		deleter = idxClient
	}

	orch := pipeline.NewOrchestrator(cfg, st, indexer, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, st, deleter, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		// Stop accepting uploads before the queue closes.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()

		if idxClient != nil {
			idxClient.Close()
		}
		if err := st.Close(); err != nil {
			log.Warn("close store", "error", err)
		}
	}()

	log.Info("starting splgest", "port", cfg.Port, "db_driver", cfg.DBDriver, "index_enabled", indexer != nil)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
