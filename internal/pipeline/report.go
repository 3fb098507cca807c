package pipeline

import (
	"time"

	"github.com/angelmondragon/restock-pipeline/internal/replenishment"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
)

// Report describes one finished stage run.
type Report struct {
	RunID     string        `json:"run_id"`
	Stage     enums.Stage   `json:"stage"`
	Date      string        `json:"date"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Orders        int `json:"orders,omitempty"`
	InventoryRows int `json:"inventory_rows,omitempty"`

	SKUs        int                    `json:"skus,omitempty"`
	DroppedSKUs int                    `json:"dropped_skus,omitempty"`
	Summary     *replenishment.Summary `json:"summary,omitempty"`

	Location string   `json:"location,omitempty"`
	Files    []string `json:"files,omitempty"`
}
