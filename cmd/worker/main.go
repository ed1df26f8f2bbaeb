package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/quest-engine/internal/app"
	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Quest Engine Worker",
		"environment", cfg.Environment,
		"storage_backend", cfg.StorageBackend,
		"locker", cfg.EffectiveLocker(),
		"workers", cfg.WorkerCount,
		"renderer", cfg.Renderer)

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startCancel()

	a, err := app.New(startCtx, cfg, log, app.Options{RequireRedis: true})
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("Error closing connections", "error", err)
		}
	}()

	queueClient := queue.NewClientFromRedis(a.Redis, log)
	progressQueue := queue.NewProgressQueue(queueClient, log)
	storyQueue := queue.NewStoryEventQueue(queueClient, log)
	processor := worker.NewProcessor(a.Engine, app.NewRenderer(cfg, log), storyQueue, a.Broadcaster, log)
	log.Info("Processor initialized successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerCount; i++ {
		id := cfg.WorkerID
		if id != "" {
			id = fmt.Sprintf("%s-%d", id, i)
		}
		w := worker.New(id, progressQueue, processor, log)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	log.Info("Workers started, waiting for requests...")
	if err := g.Wait(); err != nil {
		log.Error("Worker error", "error", err)
		os.Exit(1)
	}
	log.Info("Worker exited")
}
