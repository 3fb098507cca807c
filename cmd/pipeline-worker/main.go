package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/restock-pipeline/api"
	"github.com/angelmondragon/restock-pipeline/api/routes"
	"github.com/angelmondragon/restock-pipeline/internal/bootstrap"
	"github.com/angelmondragon/restock-pipeline/internal/scheduler"
	"github.com/angelmondragon/restock-pipeline/pkg/config"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"github.com/angelmondragon/restock-pipeline/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "pipeline-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "pipeline-worker"

	logg = logger.New(logger.Options{
		ServiceName: "pipeline-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if !cfg.Redis.Enabled() {
		logg.Error(context.Background(), "pipeline worker requires redis", errors.New("RESTOCK_REDIS_URL or RESTOCK_REDIS_ADDR must be set"))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := bootstrap.Build(ctx, cfg, logg, reg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pipeline", err)
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logg.Error(context.Background(), "error closing clients", err)
		}
	}()

	lock, err := scheduler.NewRedisLock(rt.Redis, rt.Redis.LockKey("scheduler", cfg.App.Env), cfg.Pipeline.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create scheduler lock", err)
		os.Exit(1)
	}
	service, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:   logg,
		Registry: scheduler.PipelineRegistry(rt.Pipeline),
		Lock:     lock,
		Ledger:   rt.Ledger,
		Metrics:  metrics.NewJobMetrics(reg),
		Interval: cfg.Scheduler.Interval,
		RunHour:  cfg.Scheduler.RunHour,
		Location: cfg.Scheduler.Location(),
	})
	if err != nil {
		logg.Error(ctx, "failed to create scheduler", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(cfg, logg, routes.Deps{
		Runner:   rt.Pipeline,
		Ledger:   rt.LedgerReader(),
		Checks:   rt.ReadinessChecks(),
		Gatherer: reg,
	})

	logg.Info(ctx, "starting pipeline worker")
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return service.Run(gctx) })
	grp.Go(func() error { return api.Serve(gctx, cfg, logg, handler) })

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "pipeline worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "pipeline worker shutting down gracefully")
}
