package retention

import (
	"context"
	"testing"
	"time"

	"wagermirror/internal/health"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

func TestRunOncePurgesAgedRows(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -60)
	if _, err := store.InsertEvent(ctx, model.LedgerEvent{Signature: "sig-old", IngestedAt: old}); err != nil {
		t.Fatalf("insert old event: %v", err)
	}
	if _, err := store.InsertEvent(ctx, model.LedgerEvent{Signature: "sig-new"}); err != nil {
		t.Fatalf("insert new event: %v", err)
	}

	monitor := health.NewMonitor(store, nil)
	sweeper := New(Config{RetentionDays: 30}, store, monitor, nil)

	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if store.EventCount() != 1 {
		t.Fatalf("event rows = %d, want only the recent one", store.EventCount())
	}

	record, found, err := store.GetHealth(ctx, model.ComponentRetention)
	if err != nil || !found {
		t.Fatalf("health missing: %v", err)
	}
	if record.Status != model.HealthOK {
		t.Fatalf("status = %v, want ok", record.Status)
	}
	if record.Metadata["events_purged"] != "1" {
		t.Fatalf("events_purged = %q, want 1", record.Metadata["events_purged"])
	}
}

func TestRunOnceLeavesRecentRoundsAlone(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	ctx := context.Background()

	if err := store.UpsertRound(ctx, model.Round{RoundID: 1, Status: model.StatusFinished}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	monitor := health.NewMonitor(store, nil)
	sweeper := New(Config{RetentionDays: 30}, store, monitor, nil)

	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, found, _ := store.GetRound(ctx, 1); !found {
		t.Fatalf("recently finished round was purged")
	}
}
