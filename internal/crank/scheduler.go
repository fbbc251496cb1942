// Package crank proposes phase transitions to the ledger program. The
// ledger enforces the real transitions; the scheduler only decides when
// enough wall-clock time and confirmation has elapsed to try one.
package crank

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wagermirror/internal/backoff"
	"wagermirror/internal/health"
	"wagermirror/internal/ledger"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

// zeroAddress is the default (all-zero) public key, meaning "unset".
const zeroAddress = "11111111111111111111111111111111"

// Config holds runtime settings for the scheduler.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Scheduler mirrors the live round on every tick and submits the crank
// instruction its preconditions allow. Safe to run from two overlapping
// tickers: every mutation is an idempotent upsert and the job table
// admits one (round, action) claim.
type Scheduler struct {
	cfg     Config
	ledger  ledger.Client
	store   mirror.Store
	monitor *health.Monitor
	logger  *zap.Logger
	now     func() time.Time
}

func NewScheduler(cfg Config, client ledger.Client, store mirror.Store, monitor *health.Monitor, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:     cfg,
		ledger:  client,
		store:   store,
		monitor: monitor,
		logger:  logger,
		now:     time.Now,
	}
}

// Run ticks at the given cadence until the context ends, reporting under
// the given component name. Both the fast path and the slow fallback call
// this with different intervals; overlap is safe by idempotency.
func (s *Scheduler) Run(ctx context.Context, component string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx, component); err != nil {
				s.logger.Warn("crank tick failed",
					zap.String("component", component), zap.Error(err))
			}
		}
	}
}

// Tick re-derives both progression preconditions from a fresh ledger
// read, mirrors the current round, and submits at most one instruction.
func (s *Scheduler) Tick(ctx context.Context, component string) error {
	currentID, err := s.fetchCurrentRoundID(ctx)
	if err != nil {
		s.monitor.ReportError(ctx, component, err)
		return fmt.Errorf("fetch round counter: %w", err)
	}

	if err := s.refreshSettled(ctx, currentID); err != nil {
		s.monitor.ReportError(ctx, component, err)
		return err
	}

	account, err := s.fetchRound(ctx, currentID)
	if errors.Is(err, ledger.ErrNotFound) {
		// No live round: nothing to crank until the next first bet.
		s.monitor.ReportOK(ctx, component, map[string]string{
			"current_round_id": strconv.FormatUint(currentID, 10),
			"round_state":      "absent",
		})
		return nil
	}
	if err != nil {
		s.monitor.ReportError(ctx, component, err)
		return fmt.Errorf("fetch round %d: %w", currentID, err)
	}

	round := toRound(account)
	if err := s.mirrorRound(ctx, round, account); err != nil {
		s.monitor.ReportError(ctx, component, err)
		return err
	}

	if err := s.maybeAdvance(ctx, round, account); err != nil {
		s.monitor.ReportError(ctx, component, err)
		return err
	}

	s.monitor.ReportOK(ctx, component, map[string]string{
		"current_round_id": strconv.FormatUint(round.RoundID, 10),
		"round_state":      round.Status.String(),
	})
	return nil
}

func (s *Scheduler) fetchCurrentRoundID(ctx context.Context) (uint64, error) {
	var id uint64
	err := backoff.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		id, err = s.ledger.FetchCurrentRoundID(ctx)
		return err
	})
	return id, err
}

func (s *Scheduler) fetchRound(ctx context.Context, roundID uint64) (ledger.RoundAccount, error) {
	var account ledger.RoundAccount
	notFound := false
	err := backoff.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		account, err = s.ledger.FetchRound(ctx, roundID)
		if errors.Is(err, ledger.ErrNotFound) {
			// Absence is an answer, not a transient failure.
			notFound = true
			return nil
		}
		notFound = false
		return err
	})
	if err != nil {
		return ledger.RoundAccount{}, err
	}
	if notFound {
		return ledger.RoundAccount{}, ledger.ErrNotFound
	}
	return account, nil
}

func toRound(account ledger.RoundAccount) model.Round {
	winner := account.Winner
	if winner == zeroAddress {
		winner = ""
	}
	vrfRequest := account.VRFRequest
	if vrfRequest == zeroAddress {
		vrfRequest = ""
	}
	return model.Round{
		RoundID:              account.RoundID,
		Status:               model.Status(account.Status),
		StartTime:            account.StartTime,
		BettingCloseTime:     account.BettingCloseTime,
		BetCount:             account.BetCount,
		TotalPot:             account.TotalPot,
		WinnerAddress:        winner,
		WinningBetIndex:      account.WinningBetIndex,
		VRFRequest:           vrfRequest,
		RandomnessFulfilled:  account.RandomnessFulfilled,
		WinnerPrizeUnclaimed: account.WinnerPrizeUnclaimed,
		HouseFeeUnclaimed:    account.HouseFeeUnclaimed,
	}
}

// mirrorRound folds the live account into the mirror: round row, poll
// phase snapshot, bet entries. All idempotent.
func (s *Scheduler) mirrorRound(ctx context.Context, round model.Round, account ledger.RoundAccount) error {
	if err := s.store.UpsertRound(ctx, round); err != nil {
		return fmt.Errorf("upsert round %d: %w", round.RoundID, err)
	}
	if round.Status != model.StatusIdle {
		snap := model.SnapshotFromRound(round, model.SnapshotSourcePoll, s.now())
		if _, err := s.store.RecordPhaseSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("record snapshot %d: %w", round.RoundID, err)
		}
	}

	if account.BetCount == 0 {
		return nil
	}
	var entries []ledger.BetAccount
	err := backoff.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		entries, err = s.ledger.FetchBetEntries(ctx, round.RoundID, account.BetCount)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch bet entries: %w", err)
	}
	bets := make([]model.BetEntry, 0, len(entries))
	for _, entry := range entries {
		bets = append(bets, model.BetEntry{
			RoundID:         entry.RoundID,
			BetIndex:        entry.BetIndex,
			Wallet:          entry.Wallet,
			Amount:          entry.Amount,
			PlacedAt:        entry.PlacedAt,
			PayoutCollected: entry.PayoutCollected,
		})
	}
	if err := s.store.UpsertBets(ctx, bets); err != nil {
		return fmt.Errorf("upsert bets: %w", err)
	}
	return nil
}

func (s *Scheduler) maybeAdvance(ctx context.Context, round model.Round, account ledger.RoundAccount) error {
	switch round.Status {
	case model.StatusWaiting:
		if round.BetCount == 0 || s.now().Unix() < round.BettingCloseTime {
			return nil
		}
		return s.submitAction(ctx, round, model.JobCloseBetting, func(ctx context.Context) (ledger.TxResult, error) {
			return s.ledger.SubmitCloseBetting(ctx, round.RoundID, round.BetCount)
		})

	case model.StatusAwaitingWinnerRandomness:
		fulfilled := account.RandomnessFulfilled
		if !fulfilled && round.VRFRequest != "" {
			var err error
			fulfilled, err = s.ledger.RandomnessFulfilled(ctx, round.VRFRequest)
			if err != nil {
				return fmt.Errorf("check randomness: %w", err)
			}
		}
		if !fulfilled {
			return nil
		}
		wallets, err := s.bettorWallets(ctx, round.RoundID)
		if err != nil {
			return err
		}
		return s.submitAction(ctx, round, model.JobRequestPayout, func(ctx context.Context) (ledger.TxResult, error) {
			return s.ledger.SubmitSelectWinner(ctx, round.RoundID, wallets)
		})

	default:
		return nil
	}
}

// settledScanLimit bounds how many finished rounds one tick re-reads.
const settledScanLimit = 25

// refreshSettled re-reads finished rounds whose unclaimed balances are
// still non-zero and folds the live state back into the mirror. Claim
// instructions emit no events, so polling is the only way to observe a
// winner or treasury collecting after settlement.
func (s *Scheduler) refreshSettled(ctx context.Context, currentID uint64) error {
	rounds, err := s.store.ListRoundsByStatus(ctx, model.StatusFinished, settledScanLimit)
	if err != nil {
		return fmt.Errorf("list finished rounds: %w", err)
	}
	for _, round := range rounds {
		if round.WinnerPrizeUnclaimed == 0 && round.HouseFeeUnclaimed == 0 {
			continue
		}
		if round.RoundID == currentID {
			// Mirrored by the main path below.
			continue
		}
		account, err := s.fetchRound(ctx, round.RoundID)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("refresh round %d: %w", round.RoundID, err)
		}
		if err := s.store.UpsertRound(ctx, toRound(account)); err != nil {
			return fmt.Errorf("upsert round %d: %w", round.RoundID, err)
		}
	}
	return nil
}

func (s *Scheduler) bettorWallets(ctx context.Context, roundID uint64) ([]string, error) {
	bets, err := s.store.GetBets(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	seen := make(map[string]struct{}, len(bets))
	wallets := make([]string, 0, len(bets))
	for _, bet := range bets {
		if _, dup := seen[bet.Wallet]; dup {
			continue
		}
		seen[bet.Wallet] = struct{}{}
		wallets = append(wallets, bet.Wallet)
	}
	return wallets, nil
}

// submitAction claims the (round, action) job and submits the instruction
// with bounded backoff. A "wrong phase" program error means another crank
// already advanced the round and is recorded as completed, not retried.
func (s *Scheduler) submitAction(ctx context.Context, round model.Round, action model.JobAction, submit func(context.Context) (ledger.TxResult, error)) error {
	if existing, found, err := s.store.GetJob(ctx, round.RoundID, action); err != nil {
		return fmt.Errorf("load job: %w", err)
	} else if found {
		if existing.Status != model.JobFailed {
			return nil
		}
		// Failed on a previous tick; preconditions were just re-derived
		// from live state, so release the row and claim again.
		if err := s.store.ReleaseFailedJob(ctx, round.RoundID, action); err != nil {
			return fmt.Errorf("release failed job: %w", err)
		}
	}

	job := model.ScheduledJob{
		ID:          uuid.NewString(),
		RoundID:     round.RoundID,
		Action:      action,
		Status:      model.JobPending,
		ScheduledAt: s.now().UTC(),
	}
	claimed, err := s.store.ClaimJob(ctx, job)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		// The other polling path got here first.
		return nil
	}

	attempts := 0
	stale := false
	err = backoff.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		attempts++
		result, err := submit(ctx)
		if err != nil {
			if ledger.IsStalePhase(err) {
				stale = true
				return nil
			}
			s.logger.Warn("crank submission failed",
				zap.Uint64("round_id", round.RoundID),
				zap.String("action", string(action)),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return err
		}
		s.logger.Info("crank submitted",
			zap.Uint64("round_id", round.RoundID),
			zap.String("action", string(action)),
			zap.String("signature", result.Signature),
		)
		return nil
	})

	switch {
	case stale:
		return s.store.FinishJob(ctx, job.ID, model.JobCompleted, attempts, "phase already advanced")
	case err != nil:
		if finishErr := s.store.FinishJob(ctx, job.ID, model.JobFailed, attempts, err.Error()); finishErr != nil {
			return fmt.Errorf("mark job failed: %w", finishErr)
		}
		return fmt.Errorf("submit %s for round %d: %w", action, round.RoundID, err)
	default:
		return s.store.FinishJob(ctx, job.ID, model.JobCompleted, attempts, "")
	}
}
