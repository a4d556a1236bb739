package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/genjobs/internal/app"
	"github.com/suPer8Hu/genjobs/internal/config"
	"github.com/suPer8Hu/genjobs/internal/db"
	"github.com/suPer8Hu/genjobs/internal/genjob"
	"github.com/suPer8Hu/genjobs/internal/logger"
	"github.com/suPer8Hu/genjobs/internal/observability"
	"github.com/suPer8Hu/genjobs/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, log, cfg, "genjobs-worker")
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect failed", "driver", cfg.DBDriver, "error", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("db migrate failed", "error", err)
	}
	repo := genjob.NewRepo(gdb)

	// Provider registry (route by job input provider + model)
	reg := app.BuildRegistry(cfg)
	proc := genjob.NewProcessor(repo, log, cfg.JobProcessingTimeout, app.BuildGenerators(cfg, reg, log))

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, rabbitmq.ConsumerConfig{
		Queue:       cfg.RabbitQueue,
		Concurrency: cfg.WorkerConcurrency,
		MaxAttempts: cfg.MaxDeliveryAttempts,
		RetryDelay:  cfg.RetryDelay,
	}, log)
	if err != nil {
		log.Fatal("rabbit consumer init failed", "error", err)
	}
	defer consumer.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit publisher init failed", "error", err)
	}
	defer pub.Close()

	reaper := genjob.NewReaper(repo, pub, log, genjob.ReaperConfig{
		RequeueAfter: cfg.JobRequeueAfter,
		Retention:    cfg.JobRetention,
	})

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", cfg.WorkerConcurrency, "providers", reg.Names())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx, proc.Process) })
	g.Go(func() error { return reaper.Run(gctx, cfg.ReaperInterval) })

	if err := g.Wait(); err != nil {
		log.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}
