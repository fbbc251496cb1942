package mirror

import (
	"context"
	"testing"
	"time"

	"wagermirror/internal/model"
)

var testRoster = []string{"Aurora", "Borealis", "Cascade"}

func TestUpsertRoundAssignsDisplayName(t *testing.T) {
	store := NewMemoryStore(testRoster)
	ctx := context.Background()

	for id := uint64(0); id < 5; id++ {
		if err := store.UpsertRound(ctx, model.Round{RoundID: id, Status: model.StatusWaiting}); err != nil {
			t.Fatalf("upsert round %d: %v", id, err)
		}
	}

	round, found, err := store.GetRound(ctx, 4)
	if err != nil || !found {
		t.Fatalf("round 4 not found: %v", err)
	}
	if round.DisplayName != testRoster[4%uint64(len(testRoster))] {
		t.Fatalf("display name %q, want roster slot %d", round.DisplayName, 4%len(testRoster))
	}
}

func TestUpsertRoundEmptyRoster(t *testing.T) {
	store := NewMemoryStore(nil)
	err := store.UpsertRound(context.Background(), model.Round{RoundID: 1})
	if err != ErrRosterEmpty {
		t.Fatalf("expected ErrRosterEmpty, got %v", err)
	}
}

func TestUpsertRoundStatusNeverRegresses(t *testing.T) {
	store := NewMemoryStore(testRoster)
	ctx := context.Background()

	if err := store.UpsertRound(ctx, model.Round{RoundID: 7, Status: model.StatusFinished, TotalPot: 900}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// A delayed poll result carrying an earlier phase must not win.
	if err := store.UpsertRound(ctx, model.Round{RoundID: 7, Status: model.StatusWaiting, TotalPot: 100}); err != nil {
		t.Fatalf("stale upsert: %v", err)
	}

	round, _, err := store.GetRound(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if round.Status != model.StatusFinished {
		t.Fatalf("status regressed to %v", round.Status)
	}
	if round.TotalPot != 900 {
		t.Fatalf("stale upsert overwrote pot: %d", round.TotalPot)
	}
}

func TestUpsertRoundKeepsFirstSeenAndName(t *testing.T) {
	store := NewMemoryStore(testRoster)
	ctx := context.Background()

	if err := store.UpsertRound(ctx, model.Round{RoundID: 2, Status: model.StatusWaiting}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	first, _, _ := store.GetRound(ctx, 2)

	if err := store.UpsertRound(ctx, model.Round{RoundID: 2, Status: model.StatusFinished}); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _, _ := store.GetRound(ctx, 2)

	if updated.FirstSeenAt != first.FirstSeenAt {
		t.Fatalf("first_seen_at changed on update")
	}
	if updated.DisplayName != first.DisplayName {
		t.Fatalf("display name changed on update")
	}
}

func TestPhaseSnapshotFirstWriteWins(t *testing.T) {
	store := NewMemoryStore(testRoster)
	ctx := context.Background()

	snap := model.PhaseSnapshot{RoundID: 3, Status: model.StatusWaiting, Source: model.SnapshotSourceEvent}
	inserted, err := store.RecordPhaseSnapshot(ctx, snap)
	if err != nil || !inserted {
		t.Fatalf("first snapshot: inserted=%v err=%v", inserted, err)
	}

	// The other polling path observes the same phase slightly later.
	snap.Source = model.SnapshotSourcePoll
	inserted, err = store.RecordPhaseSnapshot(ctx, snap)
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate phase snapshot was inserted")
	}

	history, err := store.GetRoundHistory(ctx, 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].Source != model.SnapshotSourceEvent {
		t.Fatalf("first observation source lost: %v", history[0].Source)
	}
}

func TestInsertEventDeduplicatesOnSignature(t *testing.T) {
	store := NewMemoryStore(testRoster)
	ctx := context.Background()

	event := model.LedgerEvent{Signature: "sig-1", EventName: model.EventBetPlaced}
	if inserted, err := store.InsertEvent(ctx, event); err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	if inserted, err := store.InsertEvent(ctx, event); err != nil || inserted {
		t.Fatalf("duplicate insert: inserted=%v err=%v", inserted, err)
	}
	if store.EventCount() != 1 {
		t.Fatalf("event count = %d, want 1", store.EventCount())
	}
}

func TestClaimJobSingleWinner(t *testing.T) {
	store := NewMemoryStore(testRoster)
	ctx := context.Background()

	a := model.ScheduledJob{ID: "a", RoundID: 9, Action: model.JobCloseBetting, Status: model.JobPending}
	b := model.ScheduledJob{ID: "b", RoundID: 9, Action: model.JobCloseBetting, Status: model.JobPending}

	claimedA, err := store.ClaimJob(ctx, a)
	if err != nil || !claimedA {
		t.Fatalf("first claim: claimed=%v err=%v", claimedA, err)
	}
	claimedB, err := store.ClaimJob(ctx, b)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimedB {
		t.Fatalf("both pollers claimed the same (round, action)")
	}

	// A different action on the same round is an independent job.
	c := model.ScheduledJob{ID: "c", RoundID: 9, Action: model.JobRequestPayout, Status: model.JobPending}
	if claimedC, err := store.ClaimJob(ctx, c); err != nil || !claimedC {
		t.Fatalf("independent action claim: claimed=%v err=%v", claimedC, err)
	}
}

func TestReleaseFailedJobAllowsReclaim(t *testing.T) {
	store := NewMemoryStore(testRoster)
	ctx := context.Background()

	job := model.ScheduledJob{ID: "x", RoundID: 5, Action: model.JobCloseBetting, Status: model.JobPending}
	if _, err := store.ClaimJob(ctx, job); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.FinishJob(ctx, "x", model.JobFailed, 3, "rpc timeout"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// Completed rows are kept; only failed rows are released.
	if err := store.ReleaseFailedJob(ctx, 5, model.JobCloseBetting); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, found, _ := store.GetJob(ctx, 5, model.JobCloseBetting); found {
		t.Fatalf("failed job still present after release")
	}

	retry := model.ScheduledJob{ID: "y", RoundID: 5, Action: model.JobCloseBetting, Status: model.JobPending}
	if claimed, err := store.ClaimJob(ctx, retry); err != nil || !claimed {
		t.Fatalf("reclaim: claimed=%v err=%v", claimed, err)
	}
}

func TestPurgeFinishedRoundsBeforeKeepsLiveRounds(t *testing.T) {
	store := NewMemoryStore(testRoster)
	ctx := context.Background()

	if err := store.UpsertRound(ctx, model.Round{RoundID: 1, Status: model.StatusFinished}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertRound(ctx, model.Round{RoundID: 2, Status: model.StatusWaiting}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertBets(ctx, []model.BetEntry{{RoundID: 1, BetIndex: 0, Wallet: "w", Amount: 10}}); err != nil {
		t.Fatalf("bets: %v", err)
	}

	purged, err := store.PurgeFinishedRoundsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged %d rounds, want 1", purged)
	}
	if _, found, _ := store.GetRound(ctx, 1); found {
		t.Fatalf("finished round survived the purge")
	}
	if bets, _ := store.GetBets(ctx, 1); len(bets) != 0 {
		t.Fatalf("dependent bets survived the purge")
	}
	if _, found, _ := store.GetRound(ctx, 2); !found {
		t.Fatalf("live round was purged")
	}
}
