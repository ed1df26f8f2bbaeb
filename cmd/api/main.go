package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/quest-engine/internal/app"
	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/handlers"
	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/internal/middleware"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Quest Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage_backend", cfg.StorageBackend,
		"locker", cfg.EffectiveLocker())

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startCancel()

	a, err := app.New(startCtx, cfg, log, app.Options{})
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	log.Info("Engine initialized successfully")

	var (
		progressQueue handlers.Enqueuer
		stream        handlers.Streamer
	)
	components := map[string]handlers.Pinger{"storage": a.Store}
	if a.Redis != nil {
		progressQueue = queue.NewProgressQueue(queue.NewClientFromRedis(a.Redis, log), log)
		stream = handlers.NewEventsHandler(a.Broadcaster, log)
	}

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(components, log))

	scenarioHandler := handlers.NewScenarioHandler(log, a.Registry)
	mux.Handle("/v1/scenarios", scenarioHandler)
	mux.Handle("/v1/scenarios/", scenarioHandler)

	mux.Handle("/v1/users/", handlers.NewUserHandler(a.Engine, progressQueue, stream, log))

	handler := middleware.Chain(mux, middleware.Logger(log), middleware.Recover(log))
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event stream holds connections open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := a.Close(); err != nil {
		log.Error("Error closing connections", "error", err)
	}

	log.Info("Server exited")
}
