package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/restock-pipeline/internal/bootstrap"
	"github.com/angelmondragon/restock-pipeline/internal/partition"
	"github.com/angelmondragon/restock-pipeline/pkg/config"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
)

const (
	exitFatal     = 1
	exitRetryable = 75 // EX_TEMPFAIL
)

func main() {
	os.Exit(run())
}

func run() int {
	logg := logger.New(logger.Options{ServiceName: "pipeline"})

	stageFlag := flag.String("stage", "", "stage to run: generate|aggregate|upload|all")
	dateFlag := flag.String("date", "", "processing date YYYY-MM-DD (default: today, UTC)")
	seed := flag.Bool("seed", false, "upsert the reference catalog before running")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return exitFatal
	}
	cfg.Service.Kind = "pipeline"

	logg = logger.New(logger.Options{
		ServiceName: "pipeline",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	stages, err := parseStages(*stageFlag, *seed)
	if err != nil {
		logg.Error(context.Background(), "invalid -stage", err)
		return exitFatal
	}
	date := *dateFlag
	if date == "" {
		date = time.Now().UTC().Format(partition.DateLayout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	rt, err := bootstrap.Build(ctx, cfg, logg, prometheus.NewRegistry())
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pipeline", err)
		return exitCode(err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logg.Error(ctx, "error closing clients", err)
		}
	}()

	if *seed {
		if err := rt.Catalog.Seed(ctx); err != nil {
			logg.Error(ctx, "catalog seed failed", err)
			return exitCode(err)
		}
		logg.Info(ctx, "catalog seeded")
	}

	for _, stage := range stages {
		rep, err := rt.Pipeline.Run(ctx, stage, date)
		if err != nil {
			logg.Error(logg.WithFields(ctx, pkgerrors.Inspect(err).Fields()), "stage failed", err)
			return exitCode(err)
		}
		printReport(rep)
	}
	return 0
}

// parseStages accepts one stage or "all". An empty value is allowed only
// when the run just seeds the catalog.
func parseStages(value string, seedOnly bool) ([]enums.Stage, error) {
	switch value {
	case "":
		if seedOnly {
			return nil, nil
		}
		return nil, fmt.Errorf("-stage is required")
	case "all":
		return enums.OrderedStages(), nil
	}
	stage, err := enums.ParseStage(value)
	if err != nil {
		return nil, err
	}
	return []enums.Stage{stage}, nil
}

func exitCode(err error) int {
	if pkgerrors.IsRetryable(err) {
		return exitRetryable
	}
	return exitFatal
}

func printReport(rep any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
}
