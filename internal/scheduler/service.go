package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/restock-pipeline/internal/partition"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"github.com/angelmondragon/restock-pipeline/pkg/metrics"
	"go.uber.org/multierr"
)

const defaultInterval = 15 * time.Minute

// ServiceParams configure the scheduler service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Ledger   *Ledger
	Metrics  *metrics.JobMetrics
	Interval time.Duration
	// RunHour is the local hour from which the current date is due.
	RunHour  int
	Location *time.Location
}

// Service runs the day's stages on a fixed cadence once the run hour has
// passed, skipping stages the ledger already marks as succeeded.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	ledger   *Ledger
	metrics  *metrics.JobMetrics
	interval time.Duration
	runHour  int
	loc      *time.Location
	now      func() time.Time
}

// NewService builds a scheduler service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.RunHour < 0 || params.RunHour > 23 {
		return nil, fmt.Errorf("run hour must be within 0..23, got %d", params.RunHour)
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		ledger:   params.Ledger,
		metrics:  params.Metrics,
		interval: interval,
		runHour:  params.RunHour,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// Run starts the scheduler loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "scheduler context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

// DueDate returns the date a cycle at now should process, or false before
// the run hour.
func (s *Service) DueDate(now time.Time) (string, bool) {
	local := now.In(s.loc)
	if local.Hour() < s.runHour {
		return "", false
	}
	return local.Format(partition.DateLayout), true
}

func (s *Service) runCycle(ctx context.Context) (err error) {
	date, due := s.DueDate(s.now())
	if !due {
		s.logg.Debug(ctx, "before run hour; nothing due")
		return nil
	}
	ctx = s.logg.WithDate(ctx, date)

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another scheduler instance is running; skipping this cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			err = multierr.Append(err, relErr)
		}
	}()

	done, err := s.ledger.Succeeded(ctx, date)
	if err != nil {
		return err
	}

	s.logg.Info(ctx, "scheduled run starting")
	for _, job := range s.registry.Jobs() {
		if done[job.Stage()] {
			continue
		}
		if err := s.runJob(ctx, date, job); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

// runJob runs one stage and records its outcome. The first failure stops the
// cycle; the next tick retries from that stage.
func (s *Service) runJob(ctx context.Context, date string, job Job) error {
	name := job.Stage().String()
	jobCtx := s.logg.WithStage(ctx, name)
	jobCtx = s.logg.WithField(jobCtx, "event", "scheduler.job")
	s.logg.Info(jobCtx, "job start")

	start := time.Now()
	rep, runErr := job.Run(jobCtx, date)
	duration := time.Since(start)
	s.observeDuration(name, duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())

	entry := Entry{Stage: job.Stage(), Status: enums.RunStatusSucceeded, FinishedAt: s.now().UTC()}
	if rep != nil {
		entry.RunID = rep.RunID
	}
	if runErr != nil {
		entry.Status = enums.RunStatusFailed
		entry.Code = string(pkgerrors.CodeOf(runErr))
		s.recordFailure(name)
	} else {
		s.recordSuccess(name)
	}

	recErr := s.ledger.Record(context.WithoutCancel(ctx), date, entry)
	if runErr != nil {
		s.logg.Error(jobCtx, "job failed", runErr)
		return multierr.Append(fmt.Errorf("stage %s: %w", name, runErr), recErr)
	}
	if recErr != nil {
		return recErr
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}

func (s *Service) observeDuration(job string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDuration(job, duration)
}

func (s *Service) recordSuccess(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncSuccess(job)
}

func (s *Service) recordFailure(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncFailure(job)
}
