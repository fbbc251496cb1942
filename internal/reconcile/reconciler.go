// Package reconcile checks finished rounds' payouts against the ledger's
// unclaimed-balance accounting.
package reconcile

import (
	"context"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"wagermirror/internal/health"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

// Config holds reconciler settings.
type Config struct {
	FeeBasisPoints uint16
	// EscalateAfter is how long an unclaimed balance may sit before the
	// reconciler's health flips to degraded.
	EscalateAfter time.Duration
	ScanLimit     int
}

// Reconciler compares expected payout splits against mirrored unclaimed
// balances for finished rounds.
type Reconciler struct {
	cfg     Config
	store   mirror.Store
	monitor *health.Monitor
	logger  *zap.Logger
	now     func() time.Time
}

func New(cfg Config, store mirror.Store, monitor *health.Monitor, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 100
	}
	if cfg.EscalateAfter <= 0 {
		cfg.EscalateAfter = time.Hour
	}
	return &Reconciler{
		cfg:     cfg,
		store:   store,
		monitor: monitor,
		logger:  logger,
		now:     time.Now,
	}
}

// ExpectedSplit returns the house fee (floor of the basis-point share)
// and winner prize (remainder). The two always sum to the pot exactly.
func ExpectedSplit(totalPot uint64, feeBasisPoints uint16) (prize, fee uint64) {
	// Cap at 100%. Anything larger only comes from a corrupt config
	// account and would overflow the division below.
	if feeBasisPoints > 10_000 {
		feeBasisPoints = 10_000
	}
	hi, lo := bits.Mul64(totalPot, uint64(feeBasisPoints))
	fee, _ = bits.Div64(hi, lo, 10_000)
	return totalPot - fee, fee
}

// Run invokes RunOnce on every tick until the context ends.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Warn("reconcile tick failed", zap.Error(err))
			}
		}
	}
}

// RunOnce reconciles every finished round that is not yet settled as
// paid, then refreshes the component health signal.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	rounds, err := r.store.ListRoundsByStatus(ctx, model.StatusFinished, r.cfg.ScanLimit)
	if err != nil {
		r.monitor.ReportError(ctx, model.ComponentReconciler, err)
		return fmt.Errorf("list finished rounds: %w", err)
	}

	for _, round := range rounds {
		prev, found, err := r.store.GetReconciliation(ctx, round.RoundID)
		if err != nil {
			r.monitor.ReportError(ctx, model.ComponentReconciler, err)
			return fmt.Errorf("load reconciliation %d: %w", round.RoundID, err)
		}
		if found && prev.Outcome == model.ReconcilePaid {
			continue
		}
		if err := r.reconcileRound(ctx, round); err != nil {
			r.monitor.ReportError(ctx, model.ComponentReconciler, err)
			return err
		}
	}

	return r.reportHealth(ctx)
}

func (r *Reconciler) reconcileRound(ctx context.Context, round model.Round) error {
	expectedPrize, expectedFee := ExpectedSplit(round.TotalPot, r.cfg.FeeBasisPoints)

	outcome := model.ReconcilePaid
	switch {
	case round.WinnerPrizeUnclaimed == 0 && round.HouseFeeUnclaimed == 0:
		outcome = model.ReconcilePaid
	case (round.WinnerPrizeUnclaimed == 0 || round.WinnerPrizeUnclaimed == expectedPrize) &&
		(round.HouseFeeUnclaimed == 0 || round.HouseFeeUnclaimed == expectedFee):
		// Funds await a manual claim. Documented fallback, not an error.
		outcome = model.ReconcileUnclaimed
	default:
		outcome = model.ReconcileShortfall
	}

	rec := model.PayoutReconciliation{
		RoundID:                round.RoundID,
		TotalPot:               round.TotalPot,
		ExpectedWinnerPrize:    expectedPrize,
		ExpectedHouseFee:       expectedFee,
		ReportedPrizeUnclaimed: round.WinnerPrizeUnclaimed,
		ReportedFeeUnclaimed:   round.HouseFeeUnclaimed,
		Outcome:                outcome,
		CheckedAt:              r.now().UTC(),
	}
	if err := r.store.UpsertReconciliation(ctx, rec); err != nil {
		return fmt.Errorf("record reconciliation %d: %w", round.RoundID, err)
	}

	if outcome != model.ReconcilePaid {
		r.logger.Info("payout awaits manual claim",
			zap.Uint64("round_id", round.RoundID),
			zap.String("outcome", string(outcome)),
			zap.Uint64("prize_unclaimed", round.WinnerPrizeUnclaimed),
			zap.Uint64("fee_unclaimed", round.HouseFeeUnclaimed),
		)
	}
	return nil
}

// reportHealth surfaces unclaimed or mismatched payouts as a distinct
// signal: degraded once anything is stuck past the escalation window or
// mismatched at all, otherwise ok with the open count in metadata.
func (r *Reconciler) reportHealth(ctx context.Context) error {
	unclaimed, err := r.store.ListReconciliationsByOutcome(ctx, model.ReconcileUnclaimed)
	if err != nil {
		r.monitor.ReportError(ctx, model.ComponentReconciler, err)
		return fmt.Errorf("list unclaimed: %w", err)
	}
	shortfalls, err := r.store.ListReconciliationsByOutcome(ctx, model.ReconcileShortfall)
	if err != nil {
		r.monitor.ReportError(ctx, model.ComponentReconciler, err)
		return fmt.Errorf("list shortfalls: %w", err)
	}

	deadline := r.now().Add(-r.cfg.EscalateAfter)
	var stuck []string
	for _, rec := range unclaimed {
		if rec.CheckedAt.Before(deadline) {
			stuck = append(stuck, strconv.FormatUint(rec.RoundID, 10))
		}
	}
	for _, rec := range shortfalls {
		stuck = append(stuck, strconv.FormatUint(rec.RoundID, 10))
	}

	metadata := map[string]string{
		"unclaimed_rounds": strconv.Itoa(len(unclaimed)),
		"shortfall_rounds": strconv.Itoa(len(shortfalls)),
	}
	if len(stuck) > 0 {
		metadata["stuck_rounds"] = strings.Join(stuck, ",")
		r.monitor.ReportDegraded(ctx, model.ComponentReconciler,
			fmt.Sprintf("%d round(s) past reconciliation window", len(stuck)), metadata)
		return nil
	}
	r.monitor.ReportOK(ctx, model.ComponentReconciler, metadata)
	return nil
}
