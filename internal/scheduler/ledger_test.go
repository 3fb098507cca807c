package scheduler

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/angelmondragon/restock-pipeline/pkg/enums"
)

func TestLedgerRoundTripInStageOrder(t *testing.T) {
	store := newMemRedis()
	ledger, err := NewLedger(store, time.Hour)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)

	if err := ledger.Record(ctx, "2025-06-01", Entry{Stage: enums.StageUpload, Status: enums.RunStatusFailed, Code: "PARTITION_IO", FinishedAt: at}); err != nil {
		t.Fatalf("record upload: %v", err)
	}
	if err := ledger.Record(ctx, "2025-06-01", Entry{Stage: enums.StageGenerate, Status: enums.RunStatusSucceeded, RunID: "r1", FinishedAt: at}); err != nil {
		t.Fatalf("record generate: %v", err)
	}
	store.hashes["restock:ledger:2025-06-01"]["bogus"] = "{}"
	store.hashes["restock:ledger:2025-06-01"][string(enums.StageAggregate)] = "not json"

	entries, err := ledger.Entries(ctx, "2025-06-01")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].Stage != enums.StageGenerate || entries[0].RunID != "r1" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Stage != enums.StageUpload || entries[1].Code != "PARTITION_IO" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if ttl := store.ttls["restock:ledger:2025-06-01"]; ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %s", ttl)
	}

	done, err := ledger.Succeeded(ctx, "2025-06-01")
	if err != nil {
		t.Fatalf("succeeded: %v", err)
	}
	if !reflect.DeepEqual(done, map[enums.Stage]bool{enums.StageGenerate: true}) {
		t.Fatalf("unexpected succeeded set %v", done)
	}

	empty, err := ledger.Entries(ctx, "2025-06-02")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no entries, got %+v", empty)
	}
}

func TestNewLedgerRequiresStore(t *testing.T) {
	if _, err := NewLedger(nil, time.Hour); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
