package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wagermirror/internal/model"
)

// PostgresStore implements Store on pgx. Every insert-if-absent path is a
// single ON CONFLICT statement so concurrent invocations never need a
// read-then-write cycle.
type PostgresStore struct {
	pool   *pgxpool.Pool
	roster []string
}

// NewPostgresStore connects a pool and keeps the display roster used to
// materialize new rounds.
func NewPostgresStore(ctx context.Context, dsn string, roster []string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, roster: roster}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rounds (
		round_id BIGINT PRIMARY KEY,
		status SMALLINT NOT NULL,
		start_time BIGINT NOT NULL,
		betting_close_time BIGINT NOT NULL,
		bet_count BIGINT NOT NULL,
		total_pot NUMERIC(20,0) NOT NULL,
		winner_address TEXT NOT NULL DEFAULT '',
		winning_bet_index BIGINT NOT NULL DEFAULT 0,
		vrf_request TEXT NOT NULL DEFAULT '',
		randomness_fulfilled BOOLEAN NOT NULL DEFAULT FALSE,
		winner_prize_unclaimed NUMERIC(20,0) NOT NULL DEFAULT 0,
		house_fee_unclaimed NUMERIC(20,0) NOT NULL DEFAULT 0,
		display_name TEXT NOT NULL DEFAULT '',
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_checked_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rounds_last_checked ON rounds (last_checked_at)`,
	`CREATE INDEX IF NOT EXISTS idx_rounds_status ON rounds (status)`,
	`CREATE TABLE IF NOT EXISTS bet_entries (
		round_id BIGINT NOT NULL,
		bet_index BIGINT NOT NULL,
		wallet TEXT NOT NULL,
		amount NUMERIC(20,0) NOT NULL,
		placed_at BIGINT NOT NULL,
		payout_collected BOOLEAN NOT NULL DEFAULT FALSE,
		ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (round_id, bet_index)
	)`,
	`CREATE TABLE IF NOT EXISTS round_phase_history (
		round_id BIGINT NOT NULL,
		status SMALLINT NOT NULL,
		bet_count BIGINT NOT NULL,
		total_pot NUMERIC(20,0) NOT NULL,
		winner_address TEXT NOT NULL DEFAULT '',
		winning_bet_index BIGINT NOT NULL DEFAULT 0,
		winner_prize_unclaimed NUMERIC(20,0) NOT NULL DEFAULT 0,
		house_fee_unclaimed NUMERIC(20,0) NOT NULL DEFAULT 0,
		source TEXT NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (round_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_events (
		signature TEXT PRIMARY KEY,
		event_name TEXT NOT NULL,
		slot BIGINT NOT NULL,
		block_time BIGINT NOT NULL,
		round_id BIGINT,
		raw BYTEA,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_events_name ON ledger_events (event_name)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_events_round ON ledger_events (round_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_events_block_time ON ledger_events (block_time)`,
	`CREATE TABLE IF NOT EXISTS scheduled_jobs (
		id TEXT NOT NULL,
		round_id BIGINT NOT NULL,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		scheduled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ,
		last_error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (round_id, action)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_status ON scheduled_jobs (round_id, status)`,
	`CREATE TABLE IF NOT EXISTS payout_reconciliations (
		round_id BIGINT PRIMARY KEY,
		total_pot NUMERIC(20,0) NOT NULL,
		expected_winner_prize NUMERIC(20,0) NOT NULL,
		expected_house_fee NUMERIC(20,0) NOT NULL,
		reported_prize_unclaimed NUMERIC(20,0) NOT NULL,
		reported_fee_unclaimed NUMERIC(20,0) NOT NULL,
		outcome TEXT NOT NULL,
		checked_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS system_health (
		component TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		last_check TIMESTAMPTZ NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		error_count BIGINT NOT NULL DEFAULT 0,
		metadata JSONB NOT NULL DEFAULT '{}'
	)`,
}

// Migrate creates the mirror schema when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpsertRound creates the round row if absent or patches mutable fields.
// The guarded update makes a status regression a silent no-op. New rounds
// require a configured display roster entry.
func (s *PostgresStore) UpsertRound(ctx context.Context, round model.Round) error {
	if len(s.roster) == 0 {
		return ErrRosterEmpty
	}
	displayName := s.roster[round.RoundID%uint64(len(s.roster))]

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rounds (
			round_id, status, start_time, betting_close_time, bet_count, total_pot,
			winner_address, winning_bet_index, vrf_request, randomness_fulfilled,
			winner_prize_unclaimed, house_fee_unclaimed, display_name, first_seen_at, last_checked_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
		ON CONFLICT (round_id) DO UPDATE SET
			status = EXCLUDED.status,
			betting_close_time = EXCLUDED.betting_close_time,
			bet_count = EXCLUDED.bet_count,
			total_pot = EXCLUDED.total_pot,
			winner_address = EXCLUDED.winner_address,
			winning_bet_index = EXCLUDED.winning_bet_index,
			vrf_request = EXCLUDED.vrf_request,
			randomness_fulfilled = EXCLUDED.randomness_fulfilled,
			winner_prize_unclaimed = EXCLUDED.winner_prize_unclaimed,
			house_fee_unclaimed = EXCLUDED.house_fee_unclaimed,
			last_checked_at = now()
		WHERE rounds.status <= EXCLUDED.status
	`,
		int64(round.RoundID),
		int16(round.Status),
		round.StartTime,
		round.BettingCloseTime,
		int64(round.BetCount),
		round.TotalPot,
		round.WinnerAddress,
		int64(round.WinningBetIndex),
		round.VRFRequest,
		round.RandomnessFulfilled,
		round.WinnerPrizeUnclaimed,
		round.HouseFeeUnclaimed,
		displayName,
	)
	return err
}

const roundColumns = `round_id, status, start_time, betting_close_time, bet_count, total_pot,
	winner_address, winning_bet_index, vrf_request, randomness_fulfilled,
	winner_prize_unclaimed, house_fee_unclaimed, display_name, first_seen_at, last_checked_at`

func scanRound(row pgx.Row) (model.Round, error) {
	var r model.Round
	var roundID, betCount, winningIndex int64
	var status int16
	err := row.Scan(
		&roundID, &status, &r.StartTime, &r.BettingCloseTime, &betCount, &r.TotalPot,
		&r.WinnerAddress, &winningIndex, &r.VRFRequest, &r.RandomnessFulfilled,
		&r.WinnerPrizeUnclaimed, &r.HouseFeeUnclaimed, &r.DisplayName, &r.FirstSeenAt, &r.LastCheckedAt,
	)
	if err != nil {
		return model.Round{}, err
	}
	r.RoundID = uint64(roundID)
	r.Status = model.Status(status)
	r.BetCount = uint32(betCount)
	r.WinningBetIndex = uint32(winningIndex)
	return r, nil
}

func (s *PostgresStore) GetRound(ctx context.Context, roundID uint64) (model.Round, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE round_id=$1`, int64(roundID))
	r, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Round{}, false, nil
		}
		return model.Round{}, false, err
	}
	return r, true, nil
}

func (s *PostgresStore) GetLatestRound(ctx context.Context) (model.Round, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds ORDER BY round_id DESC LIMIT 1`)
	r, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Round{}, false, nil
		}
		return model.Round{}, false, err
	}
	return r, true, nil
}

func (s *PostgresStore) ListRoundsByStatus(ctx context.Context, status model.Status, limit int) ([]model.Round, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE status=$1 ORDER BY round_id DESC LIMIT $2`,
		int16(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordPhaseSnapshot inserts the history row unless the (round, status)
// pair already exists. First write wins; replays report inserted=false.
func (s *PostgresStore) RecordPhaseSnapshot(ctx context.Context, snap model.PhaseSnapshot) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO round_phase_history (
			round_id, status, bet_count, total_pot, winner_address, winning_bet_index,
			winner_prize_unclaimed, house_fee_unclaimed, source, observed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (round_id, status) DO NOTHING
	`,
		int64(snap.RoundID),
		int16(snap.Status),
		int64(snap.BetCount),
		snap.TotalPot,
		snap.WinnerAddress,
		int64(snap.WinningBetIndex),
		snap.WinnerPrizeUnclaimed,
		snap.HouseFeeUnclaimed,
		string(snap.Source),
		snap.ObservedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetRoundHistory(ctx context.Context, roundID uint64) ([]model.PhaseSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT round_id, status, bet_count, total_pot, winner_address, winning_bet_index,
			winner_prize_unclaimed, house_fee_unclaimed, source, observed_at
		FROM round_phase_history WHERE round_id=$1 ORDER BY status ASC
	`, int64(roundID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PhaseSnapshot
	for rows.Next() {
		var snap model.PhaseSnapshot
		var rid, betCount, winningIndex int64
		var status int16
		var source string
		if err := rows.Scan(&rid, &status, &betCount, &snap.TotalPot, &snap.WinnerAddress,
			&winningIndex, &snap.WinnerPrizeUnclaimed, &snap.HouseFeeUnclaimed,
			&source, &snap.ObservedAt); err != nil {
			return nil, err
		}
		snap.RoundID = uint64(rid)
		snap.Status = model.Status(status)
		snap.BetCount = uint32(betCount)
		snap.WinningBetIndex = uint32(winningIndex)
		snap.Source = model.SnapshotSource(source)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// UpsertBets batches bet rows. Bets are immutable on the ledger, so the
// conflict action only refreshes the payout flag.
func (s *PostgresStore) UpsertBets(ctx context.Context, bets []model.BetEntry) error {
	if len(bets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, bet := range bets {
		batch.Queue(`
			INSERT INTO bet_entries (round_id, bet_index, wallet, amount, placed_at, payout_collected, ingested_at)
			VALUES ($1,$2,$3,$4,$5,$6,now())
			ON CONFLICT (round_id, bet_index)
			DO UPDATE SET payout_collected = EXCLUDED.payout_collected
		`,
			int64(bet.RoundID),
			int64(bet.BetIndex),
			bet.Wallet,
			bet.Amount,
			bet.PlacedAt,
			bet.PayoutCollected,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bets {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) GetBets(ctx context.Context, roundID uint64) ([]model.BetEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT round_id, bet_index, wallet, amount, placed_at, payout_collected, ingested_at
		FROM bet_entries WHERE round_id=$1 ORDER BY bet_index ASC
	`, int64(roundID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BetEntry
	for rows.Next() {
		var bet model.BetEntry
		var rid, betIndex int64
		if err := rows.Scan(&rid, &betIndex, &bet.Wallet, &bet.Amount, &bet.PlacedAt,
			&bet.PayoutCollected, &bet.IngestedAt); err != nil {
			return nil, err
		}
		bet.RoundID = uint64(rid)
		bet.BetIndex = uint32(betIndex)
		out = append(out, bet)
	}
	return out, rows.Err()
}

// InsertEvent appends to the audit log, deduplicated on signature.
func (s *PostgresStore) InsertEvent(ctx context.Context, event model.LedgerEvent) (bool, error) {
	var roundID *int64
	if event.RoundID != nil {
		v := int64(*event.RoundID)
		roundID = &v
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_events (signature, event_name, slot, block_time, round_id, raw, processed, ingested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (signature) DO NOTHING
	`,
		event.Signature,
		event.EventName,
		int64(event.Slot),
		event.BlockTime,
		roundID,
		event.Raw,
		event.Processed,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimJob inserts the (round, action) row if absent. Only the claimer
// that got inserted=true may submit the instruction.
func (s *PostgresStore) ClaimJob(ctx context.Context, job model.ScheduledJob) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (id, round_id, action, status, attempts, scheduled_at, last_error)
		VALUES ($1,$2,$3,$4,$5,$6,'')
		ON CONFLICT (round_id, action) DO NOTHING
	`,
		job.ID,
		int64(job.RoundID),
		string(job.Action),
		string(job.Status),
		job.Attempts,
		job.ScheduledAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, roundID uint64, action model.JobAction) (model.ScheduledJob, bool, error) {
	var job model.ScheduledJob
	var rid int64
	var actionStr, statusStr string
	row := s.pool.QueryRow(ctx, `
		SELECT id, round_id, action, status, attempts, scheduled_at, completed_at, last_error
		FROM scheduled_jobs WHERE round_id=$1 AND action=$2
	`, int64(roundID), string(action))
	err := row.Scan(&job.ID, &rid, &actionStr, &statusStr, &job.Attempts,
		&job.ScheduledAt, &job.CompletedAt, &job.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ScheduledJob{}, false, nil
		}
		return model.ScheduledJob{}, false, err
	}
	job.RoundID = uint64(rid)
	job.Action = model.JobAction(actionStr)
	job.Status = model.JobStatus(statusStr)
	return job, true, nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, id string, status model.JobStatus, attempts int, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status=$2, attempts=$3, last_error=$4, completed_at=now()
		WHERE id=$1
	`, id, string(status), attempts, lastError)
	return err
}

// ReleaseFailedJob removes a failed row so the next tick can reclaim the
// action after re-deriving preconditions from live ledger state.
func (s *PostgresStore) ReleaseFailedJob(ctx context.Context, roundID uint64, action model.JobAction) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM scheduled_jobs WHERE round_id=$1 AND action=$2 AND status=$3
	`, int64(roundID), string(action), string(model.JobFailed))
	return err
}

func (s *PostgresStore) UpsertReconciliation(ctx context.Context, rec model.PayoutReconciliation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payout_reconciliations (
			round_id, total_pot, expected_winner_prize, expected_house_fee,
			reported_prize_unclaimed, reported_fee_unclaimed, outcome, checked_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (round_id) DO UPDATE SET
			reported_prize_unclaimed = EXCLUDED.reported_prize_unclaimed,
			reported_fee_unclaimed = EXCLUDED.reported_fee_unclaimed,
			outcome = EXCLUDED.outcome,
			checked_at = EXCLUDED.checked_at
	`,
		int64(rec.RoundID),
		rec.TotalPot,
		rec.ExpectedWinnerPrize,
		rec.ExpectedHouseFee,
		rec.ReportedPrizeUnclaimed,
		rec.ReportedFeeUnclaimed,
		string(rec.Outcome),
		rec.CheckedAt,
	)
	return err
}

func (s *PostgresStore) GetReconciliation(ctx context.Context, roundID uint64) (model.PayoutReconciliation, bool, error) {
	var rec model.PayoutReconciliation
	var rid int64
	var outcome string
	row := s.pool.QueryRow(ctx, `
		SELECT round_id, total_pot, expected_winner_prize, expected_house_fee,
			reported_prize_unclaimed, reported_fee_unclaimed, outcome, checked_at
		FROM payout_reconciliations WHERE round_id=$1
	`, int64(roundID))
	err := row.Scan(&rid, &rec.TotalPot, &rec.ExpectedWinnerPrize, &rec.ExpectedHouseFee,
		&rec.ReportedPrizeUnclaimed, &rec.ReportedFeeUnclaimed, &outcome, &rec.CheckedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PayoutReconciliation{}, false, nil
		}
		return model.PayoutReconciliation{}, false, err
	}
	rec.RoundID = uint64(rid)
	rec.Outcome = model.ReconcileOutcome(outcome)
	return rec, true, nil
}

func (s *PostgresStore) ListReconciliationsByOutcome(ctx context.Context, outcome model.ReconcileOutcome) ([]model.PayoutReconciliation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT round_id, total_pot, expected_winner_prize, expected_house_fee,
			reported_prize_unclaimed, reported_fee_unclaimed, outcome, checked_at
		FROM payout_reconciliations WHERE outcome=$1 ORDER BY round_id ASC
	`, string(outcome))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PayoutReconciliation
	for rows.Next() {
		var rec model.PayoutReconciliation
		var rid int64
		var outcomeStr string
		if err := rows.Scan(&rid, &rec.TotalPot, &rec.ExpectedWinnerPrize, &rec.ExpectedHouseFee,
			&rec.ReportedPrizeUnclaimed, &rec.ReportedFeeUnclaimed, &outcomeStr, &rec.CheckedAt); err != nil {
			return nil, err
		}
		rec.RoundID = uint64(rid)
		rec.Outcome = model.ReconcileOutcome(outcomeStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertHealth(ctx context.Context, record model.ComponentHealth) error {
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal health metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO system_health (component, status, last_check, last_error, error_count, metadata)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (component) DO UPDATE SET
			status = EXCLUDED.status,
			last_check = EXCLUDED.last_check,
			last_error = EXCLUDED.last_error,
			error_count = EXCLUDED.error_count,
			metadata = EXCLUDED.metadata
	`,
		record.Component,
		record.Status,
		record.LastCheck,
		record.LastError,
		int64(record.ErrorCount),
		raw,
	)
	return err
}

func (s *PostgresStore) GetHealth(ctx context.Context, component string) (model.ComponentHealth, bool, error) {
	var record model.ComponentHealth
	var errorCount int64
	var raw []byte
	row := s.pool.QueryRow(ctx, `
		SELECT component, status, last_check, last_error, error_count, metadata
		FROM system_health WHERE component=$1
	`, component)
	err := row.Scan(&record.Component, &record.Status, &record.LastCheck,
		&record.LastError, &errorCount, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ComponentHealth{}, false, nil
		}
		return model.ComponentHealth{}, false, err
	}
	record.ErrorCount = uint64(errorCount)
	if err := json.Unmarshal(raw, &record.Metadata); err != nil {
		return model.ComponentHealth{}, false, fmt.Errorf("unmarshal health metadata: %w", err)
	}
	return record, true, nil
}

func (s *PostgresStore) ListHealth(ctx context.Context) ([]model.ComponentHealth, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT component, status, last_check, last_error, error_count, metadata
		FROM system_health ORDER BY component ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ComponentHealth
	for rows.Next() {
		var record model.ComponentHealth
		var errorCount int64
		var raw []byte
		if err := rows.Scan(&record.Component, &record.Status, &record.LastCheck,
			&record.LastError, &errorCount, &raw); err != nil {
			return nil, err
		}
		record.ErrorCount = uint64(errorCount)
		if err := json.Unmarshal(raw, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal health metadata: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ledger_events WHERE ingested_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeFinishedRoundsBefore deletes finished rounds (and their bets,
// history and reconciliations) last touched before the cutoff.
func (s *PostgresStore) PurgeFinishedRoundsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT round_id FROM rounds WHERE status=$1 AND last_checked_at < $2`,
		int16(model.StatusFinished), cutoff)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, tx.Commit(ctx)
	}

	for _, table := range []string{"bet_entries", "round_phase_history", "payout_reconciliations", "scheduled_jobs", "rounds"} {
		if _, err := tx.Exec(ctx,
			`DELETE FROM `+table+` WHERE round_id = ANY($1)`, ids); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}
