package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ratequote/internal/config"
	"ratequote/internal/db"
	"ratequote/internal/loader"
	"ratequote/internal/logger"
	"ratequote/internal/server"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := loader.Options{Path: cfg.RateCardPath}
	if cfg.UsesDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to connect db", "error", err)
		}
		defer pool.Close()
		// Verify connectivity proactively
		if err := pool.Ping(ctx); err != nil {
			log.Fatal("database ping failed", "error", err)
		}
		if err := loader.EnsureSchema(ctx, pool); err != nil {
			log.Fatal("rate card schema", "error", err)
		}
		opts.DB = pool
	}

	source, err := loader.NewByName(cfg.RateCardSource, opts)
	if err != nil {
		log.Fatal("rate card source", "error", err)
	}
	api := server.New(server.Deps{
		Catalog:     loader.NewLive(),
		Source:      source,
		ReloadToken: cfg.ReloadToken,
		Log:         log,
	})
	if _, err := api.Reload(ctx); err != nil {
		log.Fatal("initial rate card load failed", "source", cfg.RateCardSource, "error", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("api listening", "port", cfg.Port, "rate_card_source", cfg.RateCardSource)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
