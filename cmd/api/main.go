package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/genjobs/internal/app"
	"github.com/suPer8Hu/genjobs/internal/config"
	"github.com/suPer8Hu/genjobs/internal/db"
	"github.com/suPer8Hu/genjobs/internal/genjob"
	"github.com/suPer8Hu/genjobs/internal/httpapi"
	"github.com/suPer8Hu/genjobs/internal/httpapi/handlers"
	"github.com/suPer8Hu/genjobs/internal/logger"
	"github.com/suPer8Hu/genjobs/internal/observability"
	"github.com/suPer8Hu/genjobs/internal/store/rabbitmq"
	"github.com/suPer8Hu/genjobs/internal/store/redisstore"
)

const serviceName = "genjobs-api"

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

	shutdownOTel := observability.InitOTel(ctx, log, cfg, serviceName)
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

	deps := httpapi.RouterDeps{ServiceName: serviceName}
	if cfg.RedisAddr != "" {
		rds, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis unavailable, submission rate limit disabled", "error", err)
		} else {
			defer rds.Close()
			deps.Limiter = rds
		}
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit publisher init failed", "error", err)
	}
	defer pub.Close()

	reg := app.BuildRegistry(cfg)
	svc := genjob.NewService(genjob.NewRepo(gdb), pub, reg, log, cfg.JobProcessingTimeout)
	deps.Handler = handlers.NewHandler(gdb, cfg, log, svc)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", "addr", cfg.HTTPAddr, "providers", reg.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("api shutting down")
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("api exited with error", "error", err)
		os.Exit(1)
	}
}
