// Package mirror owns the off-chain copy of ledger state. All mutations
// are idempotent upserts keyed by unique constraints, so the fast and
// slow polling paths can run concurrently against the same store.
package mirror

import (
	"context"
	"errors"
	"time"

	"wagermirror/internal/model"
)

// ErrRosterEmpty is returned when a new round cannot be materialized
// because no display roster is configured.
var ErrRosterEmpty = errors.New("mirror: display roster is empty")

// Store is the persistence boundary for the round mirror. Two invariants
// are enforced by every implementation:
//
//  1. A round's status never regresses; an upsert carrying an earlier
//     status than the stored one is a no-op, not an error.
//  2. Insertions keyed by a unique constraint (phase snapshots, ledger
//     events, scheduled jobs) report whether the row was actually
//     inserted; replays converge to the same end state.
type Store interface {
	UpsertRound(ctx context.Context, round model.Round) error
	GetRound(ctx context.Context, roundID uint64) (model.Round, bool, error)
	GetLatestRound(ctx context.Context) (model.Round, bool, error)
	ListRoundsByStatus(ctx context.Context, status model.Status, limit int) ([]model.Round, error)

	RecordPhaseSnapshot(ctx context.Context, snapshot model.PhaseSnapshot) (bool, error)
	GetRoundHistory(ctx context.Context, roundID uint64) ([]model.PhaseSnapshot, error)

	UpsertBets(ctx context.Context, bets []model.BetEntry) error
	GetBets(ctx context.Context, roundID uint64) ([]model.BetEntry, error)

	InsertEvent(ctx context.Context, event model.LedgerEvent) (bool, error)

	ClaimJob(ctx context.Context, job model.ScheduledJob) (bool, error)
	GetJob(ctx context.Context, roundID uint64, action model.JobAction) (model.ScheduledJob, bool, error)
	FinishJob(ctx context.Context, id string, status model.JobStatus, attempts int, lastError string) error
	ReleaseFailedJob(ctx context.Context, roundID uint64, action model.JobAction) error

	UpsertReconciliation(ctx context.Context, rec model.PayoutReconciliation) error
	GetReconciliation(ctx context.Context, roundID uint64) (model.PayoutReconciliation, bool, error)
	ListReconciliationsByOutcome(ctx context.Context, outcome model.ReconcileOutcome) ([]model.PayoutReconciliation, error)

	UpsertHealth(ctx context.Context, record model.ComponentHealth) error
	GetHealth(ctx context.Context, component string) (model.ComponentHealth, bool, error)
	ListHealth(ctx context.Context) ([]model.ComponentHealth, error)

	PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeFinishedRoundsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
