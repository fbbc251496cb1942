package reconcile

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wagermirror/internal/health"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

func TestExpectedSplit(t *testing.T) {
	cases := []struct {
		pot       uint64
		bps       uint16
		wantFee   uint64
		wantPrize uint64
	}{
		{1_000_000, 500, 50_000, 950_000},
		{1_000_001, 500, 50_000, 950_001}, // fee rounds down
		{0, 500, 0, 0},
		{999, 10_000, 999, 0},
		{123_456_789, 250, 3_086_419, 120_370_370},
		{math.MaxUint64, 10_000, math.MaxUint64, 0},
		{math.MaxUint64, 250, 461168601842738790, math.MaxUint64 - 461168601842738790},
		{1_000_000, 60_000, 1_000_000, 0}, // corrupt config caps at 100%
	}
	for _, tc := range cases {
		prize, fee := ExpectedSplit(tc.pot, tc.bps)
		require.Equal(t, tc.wantFee, fee, "pot %d bps %d", tc.pot, tc.bps)
		require.Equal(t, tc.wantPrize, prize, "pot %d bps %d", tc.pot, tc.bps)
		require.Equal(t, tc.pot, prize+fee, "split must cover the pot exactly")
	}
}

func newTestReconciler(store mirror.Store, escalateAfter time.Duration, now time.Time) *Reconciler {
	monitor := health.NewMonitor(store, nil)
	r := New(Config{FeeBasisPoints: 500, EscalateAfter: escalateAfter}, store, monitor, nil)
	r.now = func() time.Time { return now }
	return r
}

func finishedRound(id uint64, prizeUnclaimed, feeUnclaimed uint64) model.Round {
	return model.Round{
		RoundID:              id,
		Status:               model.StatusFinished,
		TotalPot:             1_000_000,
		WinnerAddress:        "winnerWallet",
		WinnerPrizeUnclaimed: prizeUnclaimed,
		HouseFeeUnclaimed:    feeUnclaimed,
	}
}

func TestRunOnceMarksSettledRoundPaid(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	ctx := context.Background()
	require.NoError(t, store.UpsertRound(ctx, finishedRound(1, 0, 0)))

	r := newTestReconciler(store, time.Hour, time.Unix(1_700_000_000, 0))
	require.NoError(t, r.RunOnce(ctx))

	rec, found, err := store.GetReconciliation(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, model.ReconcilePaid, rec.Outcome)
	require.Equal(t, uint64(50_000), rec.ExpectedHouseFee)
	require.Equal(t, uint64(950_000), rec.ExpectedWinnerPrize)

	record, _, err := store.GetHealth(ctx, model.ComponentReconciler)
	require.NoError(t, err)
	require.Equal(t, model.HealthOK, record.Status)
}

func TestRunOnceFlagsUnclaimedPrize(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	ctx := context.Background()
	require.NoError(t, store.UpsertRound(ctx, finishedRound(2, 950_000, 0)))

	r := newTestReconciler(store, time.Hour, time.Unix(1_700_000_000, 0))
	require.NoError(t, r.RunOnce(ctx))

	rec, found, err := store.GetReconciliation(ctx, 2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, model.ReconcileUnclaimed, rec.Outcome)

	// Within the escalation window the component stays healthy.
	record, _, err := store.GetHealth(ctx, model.ComponentReconciler)
	require.NoError(t, err)
	require.Equal(t, model.HealthOK, record.Status)
	require.Equal(t, "1", record.Metadata["unclaimed_rounds"])
}

func TestRunOnceEscalatesStaleUnclaimed(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	ctx := context.Background()
	require.NoError(t, store.UpsertRound(ctx, finishedRound(3, 950_000, 50_000)))

	start := time.Unix(1_700_000_000, 0)
	r := newTestReconciler(store, time.Hour, start)
	require.NoError(t, r.RunOnce(ctx))

	// Still unclaimed two hours later.
	r.now = func() time.Time { return start.Add(2 * time.Hour) }
	require.NoError(t, r.RunOnce(ctx))

	record, _, err := store.GetHealth(ctx, model.ComponentReconciler)
	require.NoError(t, err)
	require.Equal(t, model.HealthDegraded, record.Status)
	require.Contains(t, record.Metadata["stuck_rounds"], "3")
}

func TestRunOnceFlagsShortfallImmediately(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	ctx := context.Background()
	// Reported prize does not match any expected split.
	require.NoError(t, store.UpsertRound(ctx, finishedRound(4, 123, 0)))

	r := newTestReconciler(store, time.Hour, time.Unix(1_700_000_000, 0))
	require.NoError(t, r.RunOnce(ctx))

	rec, found, err := store.GetReconciliation(ctx, 4)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, model.ReconcileShortfall, rec.Outcome)

	record, _, err := store.GetHealth(ctx, model.ComponentReconciler)
	require.NoError(t, err)
	require.Equal(t, model.HealthDegraded, record.Status)
}

func TestRunOnceSkipsSettledRounds(t *testing.T) {
	store := mirror.NewMemoryStore([]string{"Aurora"})
	ctx := context.Background()
	require.NoError(t, store.UpsertRound(ctx, finishedRound(5, 950_000, 0)))

	start := time.Unix(1_700_000_000, 0)
	r := newTestReconciler(store, time.Hour, start)
	require.NoError(t, r.RunOnce(ctx))

	// The winner claims; the next pass flips the outcome to paid and the
	// round stays paid afterwards.
	require.NoError(t, store.UpsertRound(ctx, finishedRound(5, 0, 0)))
	r.now = func() time.Time { return start.Add(10 * time.Minute) }
	require.NoError(t, r.RunOnce(ctx))

	rec, _, err := store.GetReconciliation(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, model.ReconcilePaid, rec.Outcome)
	firstChecked := rec.CheckedAt

	r.now = func() time.Time { return start.Add(20 * time.Minute) }
	require.NoError(t, r.RunOnce(ctx))
	rec, _, err = store.GetReconciliation(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, firstChecked, rec.CheckedAt, "paid rounds are not re-reconciled")
}
