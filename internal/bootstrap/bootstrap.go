// Package bootstrap wires the pipeline from configuration for the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/restock-pipeline/api/controllers"
	"github.com/angelmondragon/restock-pipeline/internal/aggregation"
	"github.com/angelmondragon/restock-pipeline/internal/catalog"
	"github.com/angelmondragon/restock-pipeline/internal/emitter"
	"github.com/angelmondragon/restock-pipeline/internal/generator"
	"github.com/angelmondragon/restock-pipeline/internal/notify"
	"github.com/angelmondragon/restock-pipeline/internal/partition"
	"github.com/angelmondragon/restock-pipeline/internal/pipeline"
	"github.com/angelmondragon/restock-pipeline/internal/scheduler"
	"github.com/angelmondragon/restock-pipeline/pkg/bigquery"
	"github.com/angelmondragon/restock-pipeline/pkg/config"
	"github.com/angelmondragon/restock-pipeline/pkg/db"
	"github.com/angelmondragon/restock-pipeline/pkg/instance"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"github.com/angelmondragon/restock-pipeline/pkg/metrics"
	"github.com/angelmondragon/restock-pipeline/pkg/migrate"
	"github.com/angelmondragon/restock-pipeline/pkg/pubsub"
	"github.com/angelmondragon/restock-pipeline/pkg/redis"
	"github.com/angelmondragon/restock-pipeline/pkg/storage/gcs"
)

// Runtime holds the wired services and the clients that back them.
type Runtime struct {
	Pipeline *pipeline.Service
	Catalog  *catalog.Service
	DB       *db.Client
	// Redis and Ledger are nil when no Redis endpoint is configured.
	Redis  *redis.Client
	Ledger *scheduler.Ledger

	checks  map[string]controllers.Pinger
	closers []func() error
}

// Build connects every configured backend and assembles the pipeline. On
// error the clients opened so far are closed.
func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (rt *Runtime, err error) {
	rt = &Runtime{checks: map[string]controllers.Pinger{}}
	defer func() {
		if err != nil {
			err = multierr.Append(err, rt.Close())
			rt = nil
		}
	}()

	rt.DB, err = db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return rt, fmt.Errorf("bootstrap database: %w", err)
	}
	rt.closers = append(rt.closers, rt.DB.Close)
	rt.checks["db"] = rt.DB

	if err = migrate.MaybeRunDev(ctx, cfg, logg, rt.DB); err != nil {
		return rt, fmt.Errorf("dev migrations: %w", err)
	}

	rt.Catalog, err = catalog.NewService(rt.DB, catalog.NewRepository(rt.DB.DB()), cfg.Pipeline.CatalogTimeout, logg)
	if err != nil {
		return rt, err
	}

	var locker pipeline.Locker
	if cfg.Redis.Enabled() {
		rt.Redis, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return rt, fmt.Errorf("bootstrap redis: %w", err)
		}
		rt.closers = append(rt.closers, rt.Redis.Close)
		rt.checks["redis"] = rt.Redis
		locker = rt.Redis
		if rt.Ledger, err = scheduler.NewLedger(rt.Redis, cfg.Scheduler.LedgerTTL); err != nil {
			return rt, err
		}
	}

	raw, output, staging, err := rt.stores(ctx, cfg, logg)
	if err != nil {
		return rt, err
	}

	engine, err := rt.engine(ctx, cfg, logg, raw)
	if err != nil {
		return rt, err
	}

	gen, err := generator.New(raw, cfg.Generation, logg)
	if err != nil {
		return rt, err
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.PubSub.BatchTopic != "" {
		psClient, psErr := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if psErr != nil {
			return rt, fmt.Errorf("bootstrap pubsub: %w", psErr)
		}
		rt.closers = append(rt.closers, psClient.Close)
		rt.checks["pubsub"] = psClient
		if notifier, err = notify.NewPubSubNotifier(psClient, cfg.PubSub.PublishTimeout, logg); err != nil {
			return rt, err
		}
	}

	rt.Pipeline, err = pipeline.NewService(pipeline.ServiceParams{
		Catalog:   rt.Catalog,
		Generator: gen,
		Engine:    engine,
		Emitter:   emitter.New(staging, logg),
		Staging:   staging,
		Output:    output,
		Notifier:  notifier,
		Locker:    locker,
		Metrics:   metrics.NewPipelineMetrics(reg),
		Logger:    logg,
		Options: pipeline.Options{
			OrderCount:   cfg.Generation.OrderCount,
			StageTimeout: cfg.Pipeline.StageTimeout,
			LockTTL:      cfg.Pipeline.LockTTL,
			Owner:        instance.GetID(),
		},
	})
	if err != nil {
		return rt, err
	}
	return rt, nil
}

// stores returns the raw lake, the distributed output store and the local
// staging area. Raw and output share one backend under separate prefixes.
func (rt *Runtime) stores(ctx context.Context, cfg *config.Config, logg *logger.Logger) (raw, output, staging partition.Store, err error) {
	stagingStore, err := partition.NewLocalStore(cfg.Storage.StagingRoot)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("staging store: %w", err)
	}

	var lake partition.Store
	switch cfg.Storage.Backend {
	case config.StorageBackendGCS:
		client, gcsErr := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if gcsErr != nil {
			return nil, nil, nil, fmt.Errorf("bootstrap gcs: %w", gcsErr)
		}
		rt.closers = append(rt.closers, client.Close)
		store := partition.NewGCSStore(client)
		rt.checks["store"] = store
		lake = store
	default:
		store, localErr := partition.NewLocalStore(cfg.Storage.LakeRoot)
		if localErr != nil {
			return nil, nil, nil, fmt.Errorf("lake store: %w", localErr)
		}
		rt.checks["store"] = store
		lake = store
	}
	return partition.WithPrefix(lake, cfg.Storage.RawPrefix), partition.WithPrefix(lake, cfg.Storage.OutputPrefix), stagingStore, nil
}

func (rt *Runtime) engine(ctx context.Context, cfg *config.Config, logg *logger.Logger, raw partition.Store) (aggregation.Engine, error) {
	if cfg.Aggregation.Backend != config.AggregationBackendBigQuery {
		return aggregation.NewLocalEngine(raw, cfg.Aggregation.Workers, logg), nil
	}

	client, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap bigquery: %w", err)
	}
	rt.closers = append(rt.closers, client.Close)
	rt.checks["bigquery"] = client

	engine, err := aggregation.NewBigQueryEngine(client, aggregation.BigQueryTables{
		Bucket:         cfg.GCS.BucketName,
		RawPrefix:      cfg.Storage.RawPrefix,
		OrdersTable:    cfg.BigQuery.OrdersTable,
		InventoryTable: cfg.BigQuery.InventoryTable,
	}, logg)
	if err != nil {
		return nil, err
	}
	if cfg.BigQuery.EnsureTables {
		if err := engine.EnsureTables(ctx); err != nil {
			return nil, fmt.Errorf("ensure external tables: %w", err)
		}
	}
	return engine, nil
}

// ReadinessChecks returns the pingers behind /health/ready.
func (rt *Runtime) ReadinessChecks() map[string]controllers.Pinger {
	out := make(map[string]controllers.Pinger, len(rt.checks))
	for k, v := range rt.checks {
		out[k] = v
	}
	return out
}

// LedgerReader returns the ledger as an interface value, nil when Redis is off.
func (rt *Runtime) LedgerReader() controllers.LedgerReader {
	if rt.Ledger == nil {
		return nil
	}
	return rt.Ledger
}

// Close releases every client in reverse order of creation.
func (rt *Runtime) Close() error {
	var err error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i]())
	}
	rt.closers = nil
	return err
}
