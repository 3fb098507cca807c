package scheduler

import (
	"context"

	"github.com/angelmondragon/restock-pipeline/internal/pipeline"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
)

// Job is one pipeline stage the scheduler runs for a date.
type Job interface {
	Stage() enums.Stage
	Run(ctx context.Context, date string) (*pipeline.Report, error)
}

// Registry tracks the stage jobs in execution order.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register appends a job.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

type stageRunner interface {
	Run(ctx context.Context, stage enums.Stage, date string) (*pipeline.Report, error)
}

type stageJob struct {
	stage  enums.Stage
	runner stageRunner
}

func (j stageJob) Stage() enums.Stage { return j.stage }

func (j stageJob) Run(ctx context.Context, date string) (*pipeline.Report, error) {
	return j.runner.Run(ctx, j.stage, date)
}

// PipelineRegistry registers every pipeline stage in execution order.
func PipelineRegistry(runner stageRunner) *Registry {
	registry := NewRegistry()
	for _, stage := range enums.OrderedStages() {
		registry.Register(stageJob{stage: stage, runner: runner})
	}
	return registry
}
