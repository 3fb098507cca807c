package enums

import "fmt"

// Stage identifies one pipeline entry point.
type Stage string

const (
	StageGenerate  Stage = "generate"
	StageAggregate Stage = "aggregate"
	StageUpload    Stage = "upload"
)

// validStages is in execution order.
var validStages = []Stage{
	StageGenerate,
	StageAggregate,
	StageUpload,
}

// String implements fmt.Stringer.
func (s Stage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known Stage.
func (s Stage) IsValid() bool {
	for _, candidate := range validStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStage converts raw input into a Stage.
func ParseStage(value string) (Stage, error) {
	for _, candidate := range validStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stage %q", value)
}

// OrderedStages returns a copy of the stages in execution order.
func OrderedStages() []Stage {
	out := make([]Stage, len(validStages))
	copy(out, validStages)
	return out
}

// RunStatus is the ledger state of a stage for one date.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

var validRunStatuses = []RunStatus{
	RunStatusSucceeded,
	RunStatusFailed,
}

func (s RunStatus) String() string {
	return string(s)
}

func (s RunStatus) IsValid() bool {
	for _, candidate := range validRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseRunStatus(value string) (RunStatus, error) {
	for _, candidate := range validRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid run status %q", value)
}
