package scheduler

import (
	"context"
	"reflect"
	"testing"

	"github.com/angelmondragon/restock-pipeline/internal/pipeline"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
)

type recordingRunner struct {
	calls []enums.Stage
}

func (r *recordingRunner) Run(_ context.Context, stage enums.Stage, date string) (*pipeline.Report, error) {
	r.calls = append(r.calls, stage)
	return &pipeline.Report{Stage: stage, Date: date}, nil
}

func TestPipelineRegistryOrder(t *testing.T) {
	runner := &recordingRunner{}
	registry := PipelineRegistry(runner)
	jobs := registry.Jobs()
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if _, err := job.Run(context.Background(), "2025-06-01"); err != nil {
			t.Fatalf("run %s: %v", job.Stage(), err)
		}
	}
	want := []enums.Stage{enums.StageGenerate, enums.StageAggregate, enums.StageUpload}
	if !reflect.DeepEqual(runner.calls, want) {
		t.Fatalf("expected %v, got %v", want, runner.calls)
	}

	// caller cannot mutate internal slice
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("Jobs must return a copy")
	}
}

func TestRegistryIgnoresNil(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(nil)
	if jobs := registry.Jobs(); len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
}
