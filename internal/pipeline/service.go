package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/restock-pipeline/internal/aggregation"
	"github.com/angelmondragon/restock-pipeline/internal/catalog"
	"github.com/angelmondragon/restock-pipeline/internal/generator"
	"github.com/angelmondragon/restock-pipeline/internal/notify"
	"github.com/angelmondragon/restock-pipeline/internal/partition"
	"github.com/angelmondragon/restock-pipeline/internal/replenishment"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"github.com/angelmondragon/restock-pipeline/pkg/metrics"
	"github.com/google/uuid"
)

type catalogReader interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

type eventGenerator interface {
	Generate(ctx context.Context, date string, products map[string]catalog.Product, storeIDs, warehouseIDs []string, orderCount int) (*generator.Result, error)
	Write(ctx context.Context, date string, res *generator.Result) error
}

type batchEmitter interface {
	Emit(ctx context.Context, date string, batches replenishment.Batches) (string, error)
}

// Locker guards a date against concurrent runs.
type Locker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope string, parts ...string) string
}

type Options struct {
	OrderCount   int
	StageTimeout time.Duration
	LockTTL      time.Duration
	// Owner prefixes lock values so a held lock names its instance.
	Owner string
}

type ServiceParams struct {
	Catalog   catalogReader
	Generator eventGenerator
	Engine    aggregation.Engine
	Emitter   batchEmitter
	// Staging receives emitted batches; Output is the distributed store
	// batches are uploaded to.
	Staging  partition.Store
	Output   partition.Store
	Notifier notify.Notifier
	Locker   Locker
	Metrics  *metrics.PipelineMetrics
	Logger   *logger.Logger
	Options  Options
}

// Service exposes the three idempotent per-date entry points.
type Service struct {
	catalog   catalogReader
	generator eventGenerator
	engine    aggregation.Engine
	emitter   batchEmitter
	staging   partition.Store
	output    partition.Store
	notifier  notify.Notifier
	locker    Locker
	metrics   *metrics.PipelineMetrics
	logg      *logger.Logger
	opts      Options
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog reader required")
	case params.Generator == nil:
		return nil, fmt.Errorf("generator required")
	case params.Engine == nil:
		return nil, fmt.Errorf("aggregation engine required")
	case params.Emitter == nil:
		return nil, fmt.Errorf("emitter required")
	case params.Staging == nil || params.Output == nil:
		return nil, fmt.Errorf("staging and output stores required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	opts := params.Options
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Hour
	}
	return &Service{
		catalog:   params.Catalog,
		generator: params.Generator,
		engine:    params.Engine,
		emitter:   params.Emitter,
		staging:   params.Staging,
		output:    params.Output,
		notifier:  notifier,
		locker:    params.Locker,
		metrics:   params.Metrics,
		logg:      logg,
		opts:      opts,
	}, nil
}

// Run dispatches to the entry point for stage.
func (s *Service) Run(ctx context.Context, stage enums.Stage, date string) (*Report, error) {
	switch stage {
	case enums.StageGenerate:
		return s.RunGeneration(ctx, date)
	case enums.StageAggregate:
		return s.RunAggregationAndReplenishment(ctx, date)
	case enums.StageUpload:
		return s.RunUpload(ctx, date)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown stage").WithDetail("stage", string(stage))
	}
}

// RunGeneration lands a fresh day of orders and inventory for date.
func (s *Service) RunGeneration(ctx context.Context, date string) (*Report, error) {
	return s.run(ctx, enums.StageGenerate, date, func(ctx context.Context, rep *Report) error {
		snap, err := s.catalog.Snapshot(ctx)
		if err != nil {
			return err
		}
		res, err := s.generator.Generate(ctx, date, snap.Products(), snap.StoreIDs(), snap.WarehouseIDs(), s.opts.OrderCount)
		if err != nil {
			return err
		}
		if err := s.generator.Write(ctx, date, res); err != nil {
			return err
		}
		rep.Orders = res.OrderCount()
		rep.InventoryRows = len(res.Inventory)
		s.metrics.AddRecords(enums.StageGenerate.String(), "orders", rep.Orders)
		s.metrics.AddRecords(enums.StageGenerate.String(), "inventory_rows", rep.InventoryRows)
		return nil
	})
}

// RunAggregationAndReplenishment reduces date's raw partitions, computes
// supplier batches against one catalog snapshot and emits them to staging.
func (s *Service) RunAggregationAndReplenishment(ctx context.Context, date string) (*Report, error) {
	return s.run(ctx, enums.StageAggregate, date, func(ctx context.Context, rep *Report) error {
		snap, err := s.catalog.Snapshot(ctx)
		if err != nil {
			return err
		}

		rows, err := s.engine.Aggregate(ctx, date)
		if err != nil {
			return err
		}
		known, dropped := aggregation.KnownOnly(rows, snap.Products())
		if len(dropped) > 0 {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"dropped_skus": dropped,
				"count":        len(dropped),
			}), "unknown skus dropped from aggregation")
			s.metrics.AddDropped(len(dropped))
		}

		batches := replenishment.Compute(known, snap.Rules())
		location, err := s.emitter.Emit(ctx, date, batches)
		if err != nil {
			return err
		}

		sum := replenishment.Summarize(batches)
		rep.SKUs = len(known)
		rep.DroppedSKUs = len(dropped)
		rep.Summary = &sum
		rep.Location = location
		s.metrics.AddRecords(enums.StageAggregate.String(), "skus", rep.SKUs)
		s.metrics.AddRecords(enums.StageAggregate.String(), "items", sum.Items)
		return nil
	})
}

// RunUpload mirrors date's staged batches into the output store and announces
// each uploaded file.
func (s *Service) RunUpload(ctx context.Context, date string) (*Report, error) {
	return s.run(ctx, enums.StageUpload, date, func(ctx context.Context, rep *Report) error {
		prefix := partition.BatchPrefix(date)
		files, err := partition.Mirror(ctx, s.staging, s.output, prefix, prefix)
		if err != nil {
			return partition.IOError(err, "upload batches", enums.DatasetSupplierOrders, date, prefix)
		}
		rep.Location = prefix
		rep.Files = files
		s.metrics.AddRecords(enums.StageUpload.String(), "files", len(files))

		return s.notifier.BatchesUploaded(ctx, date, files)
	})
}

func (s *Service) run(ctx context.Context, stage enums.Stage, date string, fn func(ctx context.Context, rep *Report) error) (*Report, error) {
	if _, err := partition.ParseDate(date); err != nil {
		return nil, withStage(err, stage, date)
	}

	runID := uuid.NewString()
	ctx = s.logg.WithRunID(ctx, runID)
	ctx = s.logg.WithDate(ctx, date)
	ctx = s.logg.WithStage(ctx, stage.String())

	rep := &Report{RunID: runID, Stage: stage, Date: date, StartedAt: time.Now().UTC()}
	s.logg.Info(ctx, "stage started")

	release, err := s.acquire(ctx, date, runID)
	if err != nil {
		s.finish(ctx, rep, err)
		return nil, withStage(err, stage, date)
	}
	defer release()

	runCtx := ctx
	if s.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.StageTimeout)
		defer cancel()
	}

	err = fn(runCtx, rep)
	if err == nil {
		err = runCtx.Err()
	}
	if err != nil {
		err = withStage(classify(err), stage, date)
		s.finish(ctx, rep, err)
		return nil, err
	}
	s.finish(ctx, rep, nil)
	return rep, nil
}

func (s *Service) finish(ctx context.Context, rep *Report, err error) {
	rep.Duration = time.Since(rep.StartedAt)
	code := ""
	if err != nil {
		code = string(pkgerrors.CodeOf(err))
	}
	s.metrics.ObserveStage(rep.Stage.String(), rep.Duration, code)

	fields := map[string]any{"duration_ms": rep.Duration.Milliseconds()}
	if err != nil {
		fields["code"] = code
		fields["retryable"] = pkgerrors.IsRetryable(err)
		s.logg.Error(s.logg.WithFields(ctx, fields), "stage failed", err)
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "stage completed")
}

// acquire takes the per-date lock when a locker is configured.
func (s *Service) acquire(ctx context.Context, date, runID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := s.locker.LockKey("run", date)
	owner := runID
	if s.opts.Owner != "" {
		owner = s.opts.Owner + ":" + runID
	}
	ok, err := s.locker.SetNX(ctx, key, owner, s.opts.LockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire date lock").WithDetail("lock", key)
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "another run owns this date").WithDetail("lock", key)
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := s.locker.ReleaseIfOwner(releaseCtx, key, owner); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "lock", key), "release date lock failed: "+err.Error())
		}
	}, nil
}

// classify turns bare context errors into typed ones; a timeout is retryable.
func classify(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stage timed out")
	case errors.Is(err, context.Canceled):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stage cancelled")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stage failed")
	}
}

// withStage attaches the stage and date to the outermost typed error.
func withStage(err error, stage enums.Stage, date string) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	details := map[string]any{"stage": stage.String()}
	if _, ok := typed.Details()["date"]; !ok {
		details["date"] = date
	}
	typed.WithDetails(details)
	return err
}
