package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/angelmondragon/restock-pipeline/pkg/enums"
)

const defaultLedgerTTL = 72 * time.Hour

// Entry is the last recorded outcome of one stage for one date.
type Entry struct {
	Stage      enums.Stage     `json:"stage"`
	Status     enums.RunStatus `json:"status"`
	RunID      string          `json:"run_id,omitempty"`
	Code       string          `json:"code,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// ledgerStore defines the Redis hash operations the ledger needs.
type ledgerStore interface {
	HSetWithTTL(ctx context.Context, key, field string, value any, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	LedgerKey(date string) string
}

// Ledger records stage outcomes per date in a Redis hash keyed by stage.
type Ledger struct {
	store ledgerStore
	ttl   time.Duration
}

func NewLedger(store ledgerStore, ttl time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("redis client required for ledger")
	}
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	return &Ledger{store: store, ttl: ttl}, nil
}

// Record overwrites the entry for e.Stage on date.
func (l *Ledger) Record(ctx context.Context, date string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	if err := l.store.HSetWithTTL(ctx, l.store.LedgerKey(date), e.Stage.String(), string(raw), l.ttl); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// Entries returns every recorded stage for date in execution order.
// Fields that do not decode are skipped.
func (l *Ledger) Entries(ctx context.Context, date string) ([]Entry, error) {
	fields, err := l.store.HGetAll(ctx, l.store.LedgerKey(date))
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	order := map[enums.Stage]int{}
	for i, st := range enums.OrderedStages() {
		order[st] = i
	}

	out := make([]Entry, 0, len(fields))
	for field, raw := range fields {
		stage, err := enums.ParseStage(field)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		e.Stage = stage
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].Stage] < order[out[j].Stage] })
	return out, nil
}

// Succeeded reports the stages already completed for date.
func (l *Ledger) Succeeded(ctx context.Context, date string) (map[enums.Stage]bool, error) {
	entries, err := l.Entries(ctx, date)
	if err != nil {
		return nil, err
	}
	done := make(map[enums.Stage]bool, len(entries))
	for _, e := range entries {
		if e.Status == enums.RunStatusSucceeded {
			done[e.Stage] = true
		}
	}
	return done, nil
}
