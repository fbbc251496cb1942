package health

import (
	"context"
	"errors"
	"testing"

	"wagermirror/internal/ledger"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

type fakeProber struct {
	status ledger.HealthStatus
	err    error
}

func (f fakeProber) HealthCheck(context.Context) (ledger.HealthStatus, error) {
	return f.status, f.err
}

func TestProbeLedgerHealthy(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	monitor := NewMonitor(store, nil)
	ctx := context.Background()

	monitor.ProbeLedger(ctx, fakeProber{status: ledger.HealthStatus{Healthy: true, BlockHeight: 12345}})

	record, found, err := store.GetHealth(ctx, model.ComponentLedgerRPC)
	if err != nil || !found {
		t.Fatalf("record missing: %v", err)
	}
	if record.Status != model.HealthOK {
		t.Fatalf("status = %q, want ok", record.Status)
	}
	if record.Metadata["block_height"] != "12345" {
		t.Fatalf("block_height = %q, want 12345", record.Metadata["block_height"])
	}
}

func TestProbeLedgerUnreachableNode(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	monitor := NewMonitor(store, nil)
	ctx := context.Background()

	monitor.ProbeLedger(ctx, fakeProber{err: errors.New("connection refused")})

	record, _, err := store.GetHealth(ctx, model.ComponentLedgerRPC)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != model.HealthError {
		t.Fatalf("status = %q, want error", record.Status)
	}
	if record.ErrorCount != 1 {
		t.Fatalf("error count = %d, want 1", record.ErrorCount)
	}
}

func TestProbeLedgerUnhealthyNode(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	monitor := NewMonitor(store, nil)
	ctx := context.Background()

	monitor.ProbeLedger(ctx, fakeProber{status: ledger.HealthStatus{Healthy: false, BlockHeight: 99}})

	record, _, err := store.GetHealth(ctx, model.ComponentLedgerRPC)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != model.HealthDegraded {
		t.Fatalf("status = %q, want degraded", record.Status)
	}
}

func TestProbeLedgerRecovers(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	monitor := NewMonitor(store, nil)
	ctx := context.Background()

	monitor.ProbeLedger(ctx, fakeProber{err: errors.New("connection refused")})
	monitor.ProbeLedger(ctx, fakeProber{status: ledger.HealthStatus{Healthy: true, BlockHeight: 100}})

	record, _, err := store.GetHealth(ctx, model.ComponentLedgerRPC)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != model.HealthOK {
		t.Fatalf("status = %q, want ok after recovery", record.Status)
	}
	if record.ErrorCount != 1 {
		t.Fatalf("lifetime error count = %d, want 1", record.ErrorCount)
	}
}
