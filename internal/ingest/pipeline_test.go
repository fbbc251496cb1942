package ingest

import (
	"context"
	"testing"
	"time"

	"wagermirror/internal/health"
	"wagermirror/internal/ledger"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

// fakeLedger serves a fixed signature window and canned log lines.
type fakeLedger struct {
	sigs     []ledger.SignatureInfo
	logs     map[string][]string
	sigCalls int
}

func (f *fakeLedger) FetchRecentSignatures(_ context.Context, untilSignature string, _ int) ([]ledger.SignatureInfo, error) {
	f.sigCalls++
	if untilSignature == "" {
		return f.sigs, nil
	}
	// Everything newer than the cursor; the window is newest first.
	var out []ledger.SignatureInfo
	for _, sig := range f.sigs {
		if sig.Signature == untilSignature {
			break
		}
		out = append(out, sig)
	}
	return out, nil
}

func (f *fakeLedger) FetchTransactionLogs(_ context.Context, signature string) (ledger.TransactionLogs, error) {
	return ledger.TransactionLogs{Signature: signature, Logs: f.logs[signature]}, nil
}

func (f *fakeLedger) FetchConfig(context.Context) (ledger.GameConfig, error) {
	return ledger.GameConfig{}, nil
}
func (f *fakeLedger) FetchCurrentRoundID(context.Context) (uint64, error) { return 0, nil }
func (f *fakeLedger) FetchRound(context.Context, uint64) (ledger.RoundAccount, error) {
	return ledger.RoundAccount{}, ledger.ErrNotFound
}
func (f *fakeLedger) FetchBetEntries(context.Context, uint64, uint32) ([]ledger.BetAccount, error) {
	return nil, nil
}
func (f *fakeLedger) RandomnessFulfilled(context.Context, string) (bool, error) { return false, nil }
func (f *fakeLedger) SubmitCloseBetting(context.Context, uint64, uint32) (ledger.TxResult, error) {
	return ledger.TxResult{}, nil
}
func (f *fakeLedger) SubmitSelectWinner(context.Context, uint64, []string) (ledger.TxResult, error) {
	return ledger.TxResult{}, nil
}
func (f *fakeLedger) HealthCheck(context.Context) (ledger.HealthStatus, error) {
	return ledger.HealthStatus{Healthy: true}, nil
}

func newTestPipeline(client ledger.Client, store mirror.Store) *Pipeline {
	monitor := health.NewMonitor(store, nil)
	return New(Config{MaxRetries: 0, RetryBackoff: time.Millisecond}, client, store, monitor, nil)
}

func TestRunOnceIngestsAndAdvancesCursor(t *testing.T) {
	initLine := newEventPayload(model.EventGameInitialized).
		u64(11).i64(1_700_000_000).i64(1_700_000_120).logLine()
	betLine := newEventPayload(model.EventBetPlaced).
		u64(11).pubkey(testKey(1)).u64(50_000_000).u8(1).u64(50_000_000).i64(1_700_000_120).boolean(true).logLine()

	client := &fakeLedger{
		sigs: []ledger.SignatureInfo{
			{Signature: "sig-bet", Slot: 101},
			{Signature: "sig-init", Slot: 100},
		},
		logs: map[string][]string{
			"sig-init": {initLine},
			"sig-bet":  {betLine},
		},
	}
	store := mirror.NewMemoryStore([]string{"Aurora"})
	pipeline := newTestPipeline(client, store)
	ctx := context.Background()

	if err := pipeline.RunOnce(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if store.EventCount() != 2 {
		t.Fatalf("event rows = %d, want 2", store.EventCount())
	}

	round, found, err := store.GetRound(ctx, 11)
	if err != nil || !found {
		t.Fatalf("round missing: %v", err)
	}
	if round.Status != model.StatusWaiting {
		t.Fatalf("status = %v, want waiting", round.Status)
	}
	if round.BetCount != 1 || round.TotalPot != 50_000_000 {
		t.Fatalf("pot mismatch: %+v", round)
	}

	record, found, err := store.GetHealth(ctx, model.ComponentIngestion)
	if err != nil || !found {
		t.Fatalf("health missing: %v", err)
	}
	if record.Metadata["last_signature"] != "sig-bet" {
		t.Fatalf("cursor = %q, want newest signature", record.Metadata["last_signature"])
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	line := newEventPayload(model.EventGameLocked).
		u64(11).u8(4).u64(200_000_000).pubkey(testKey(2)).logLine()

	client := &fakeLedger{
		sigs: []ledger.SignatureInfo{{Signature: "sig-lock", Slot: 110}},
		logs: map[string][]string{"sig-lock": {line}},
	}
	store := mirror.NewMemoryStore([]string{"Aurora"})
	pipeline := newTestPipeline(client, store)
	ctx := context.Background()

	if err := pipeline.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	history, _ := store.GetRoundHistory(ctx, 11)

	// Wipe the cursor so the second run replays the same window.
	store.UpsertHealth(ctx, model.ComponentHealth{Component: model.ComponentIngestion})
	if err := pipeline.RunOnce(ctx); err != nil {
		t.Fatalf("replay run: %v", err)
	}

	if store.EventCount() != 1 {
		t.Fatalf("replay duplicated event rows: %d", store.EventCount())
	}
	replayed, _ := store.GetRoundHistory(ctx, 11)
	if len(replayed) != len(history) {
		t.Fatalf("replay grew history: %d != %d", len(replayed), len(history))
	}
}

func TestRunOnceSkipsFailedTransactions(t *testing.T) {
	client := &fakeLedger{
		sigs: []ledger.SignatureInfo{{Signature: "sig-failed", Slot: 100, Failed: true}},
		logs: map[string][]string{},
	}
	store := mirror.NewMemoryStore([]string{"Aurora"})
	pipeline := newTestPipeline(client, store)

	if err := pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.EventCount() != 0 {
		t.Fatalf("failed transaction produced event rows")
	}
}

func TestRunOnceOnlyFetchesPastCursor(t *testing.T) {
	line := newEventPayload(model.EventGameReset).u64(11).u64(12).logLine()
	client := &fakeLedger{
		sigs: []ledger.SignatureInfo{{Signature: "sig-reset", Slot: 120}},
		logs: map[string][]string{"sig-reset": {line}},
	}
	store := mirror.NewMemoryStore([]string{"Aurora"})
	pipeline := newTestPipeline(client, store)
	ctx := context.Background()

	if err := pipeline.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Cursor now points at sig-reset; the next window is empty.
	if err := pipeline.RunOnce(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if store.EventCount() != 1 {
		t.Fatalf("event rows = %d, want 1", store.EventCount())
	}
	if client.sigCalls != 2 {
		t.Fatalf("signature fetches = %d, want 2", client.sigCalls)
	}
}
