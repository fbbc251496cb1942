package mirror

import (
	"context"
	"sort"
	"sync"
	"time"

	"wagermirror/internal/model"
)

type snapshotKey struct {
	roundID uint64
	status  model.Status
}

type betKey struct {
	roundID  uint64
	betIndex uint32
}

type jobKey struct {
	roundID uint64
	action  model.JobAction
}

// MemoryStore implements Store with in-process maps. Same invariant
// semantics as the Postgres backend; the single mutex stands in for the
// unique constraints.
type MemoryStore struct {
	mu     sync.Mutex
	roster []string

	rounds          map[uint64]model.Round
	bets            map[betKey]model.BetEntry
	snapshots       map[snapshotKey]model.PhaseSnapshot
	events          map[string]model.LedgerEvent
	jobs            map[jobKey]model.ScheduledJob
	reconciliations map[uint64]model.PayoutReconciliation
	health          map[string]model.ComponentHealth
}

func NewMemoryStore(roster []string) *MemoryStore {
	return &MemoryStore{
		roster:          roster,
		rounds:          make(map[uint64]model.Round),
		bets:            make(map[betKey]model.BetEntry),
		snapshots:       make(map[snapshotKey]model.PhaseSnapshot),
		events:          make(map[string]model.LedgerEvent),
		jobs:            make(map[jobKey]model.ScheduledJob),
		reconciliations: make(map[uint64]model.PayoutReconciliation),
		health:          make(map[string]model.ComponentHealth),
	}
}

func (s *MemoryStore) UpsertRound(_ context.Context, round model.Round) error {
	if len(s.roster) == 0 {
		return ErrRosterEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.rounds[round.RoundID]
	if !ok {
		round.DisplayName = s.roster[round.RoundID%uint64(len(s.roster))]
		round.FirstSeenAt = now
		round.LastCheckedAt = now
		s.rounds[round.RoundID] = round
		return nil
	}
	if round.Status < existing.Status {
		// Regression attempt: no-op by design.
		return nil
	}
	round.DisplayName = existing.DisplayName
	round.FirstSeenAt = existing.FirstSeenAt
	round.LastCheckedAt = now
	s.rounds[round.RoundID] = round
	return nil
}

func (s *MemoryStore) GetRound(_ context.Context, roundID uint64) (model.Round, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	return r, ok, nil
}

func (s *MemoryStore) GetLatestRound(_ context.Context) (model.Round, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest model.Round
	found := false
	for _, r := range s.rounds {
		if !found || r.RoundID > latest.RoundID {
			latest = r
			found = true
		}
	}
	return latest, found, nil
}

func (s *MemoryStore) ListRoundsByStatus(_ context.Context, status model.Status, limit int) ([]model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Round
	for _, r := range s.rounds {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundID > out[j].RoundID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) RecordPhaseSnapshot(_ context.Context, snap model.PhaseSnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey{roundID: snap.RoundID, status: snap.Status}
	if _, exists := s.snapshots[key]; exists {
		return false, nil
	}
	s.snapshots[key] = snap
	return true, nil
}

func (s *MemoryStore) GetRoundHistory(_ context.Context, roundID uint64) ([]model.PhaseSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PhaseSnapshot
	for key, snap := range s.snapshots {
		if key.roundID == roundID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *MemoryStore) UpsertBets(_ context.Context, bets []model.BetEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, bet := range bets {
		key := betKey{roundID: bet.RoundID, betIndex: bet.BetIndex}
		if existing, ok := s.bets[key]; ok {
			existing.PayoutCollected = bet.PayoutCollected
			s.bets[key] = existing
			continue
		}
		bet.IngestedAt = now
		s.bets[key] = bet
	}
	return nil
}

func (s *MemoryStore) GetBets(_ context.Context, roundID uint64) ([]model.BetEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BetEntry
	for key, bet := range s.bets {
		if key.roundID == roundID {
			out = append(out, bet)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BetIndex < out[j].BetIndex })
	return out, nil
}

func (s *MemoryStore) InsertEvent(_ context.Context, event model.LedgerEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.Signature]; exists {
		return false, nil
	}
	if event.IngestedAt.IsZero() {
		event.IngestedAt = time.Now().UTC()
	}
	s.events[event.Signature] = event
	return true, nil
}

// EventCount reports the audit-log size. Test helper.
func (s *MemoryStore) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *MemoryStore) ClaimJob(_ context.Context, job model.ScheduledJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := jobKey{roundID: job.RoundID, action: job.Action}
	if _, exists := s.jobs[key]; exists {
		return false, nil
	}
	s.jobs[key] = job
	return true, nil
}

func (s *MemoryStore) GetJob(_ context.Context, roundID uint64, action model.JobAction) (model.ScheduledJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobKey{roundID: roundID, action: action}]
	return job, ok, nil
}

func (s *MemoryStore) FinishJob(_ context.Context, id string, status model.JobStatus, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, job := range s.jobs {
		if job.ID == id {
			now := time.Now().UTC()
			job.Status = status
			job.Attempts = attempts
			job.LastError = lastError
			job.CompletedAt = &now
			s.jobs[key] = job
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) ReleaseFailedJob(_ context.Context, roundID uint64, action model.JobAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := jobKey{roundID: roundID, action: action}
	if job, ok := s.jobs[key]; ok && job.Status == model.JobFailed {
		delete(s.jobs, key)
	}
	return nil
}

func (s *MemoryStore) UpsertReconciliation(_ context.Context, rec model.PayoutReconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.reconciliations[rec.RoundID]; ok {
		existing.ReportedPrizeUnclaimed = rec.ReportedPrizeUnclaimed
		existing.ReportedFeeUnclaimed = rec.ReportedFeeUnclaimed
		existing.Outcome = rec.Outcome
		existing.CheckedAt = rec.CheckedAt
		s.reconciliations[rec.RoundID] = existing
		return nil
	}
	s.reconciliations[rec.RoundID] = rec
	return nil
}

func (s *MemoryStore) GetReconciliation(_ context.Context, roundID uint64) (model.PayoutReconciliation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.reconciliations[roundID]
	return rec, ok, nil
}

func (s *MemoryStore) ListReconciliationsByOutcome(_ context.Context, outcome model.ReconcileOutcome) ([]model.PayoutReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PayoutReconciliation
	for _, rec := range s.reconciliations {
		if rec.Outcome == outcome {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundID < out[j].RoundID })
	return out, nil
}

func (s *MemoryStore) UpsertHealth(_ context.Context, record model.ComponentHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[record.Component] = record
	return nil
}

func (s *MemoryStore) GetHealth(_ context.Context, component string) (model.ComponentHealth, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.health[component]
	return record, ok, nil
}

func (s *MemoryStore) ListHealth(_ context.Context) ([]model.ComponentHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ComponentHealth, 0, len(s.health))
	for _, record := range s.health {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out, nil
}

func (s *MemoryStore) PurgeEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for sig, event := range s.events {
		if event.IngestedAt.Before(cutoff) {
			delete(s.events, sig)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) PurgeFinishedRoundsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for id, round := range s.rounds {
		if round.Status != model.StatusFinished || !round.LastCheckedAt.Before(cutoff) {
			continue
		}
		delete(s.rounds, id)
		delete(s.reconciliations, id)
		for key := range s.bets {
			if key.roundID == id {
				delete(s.bets, key)
			}
		}
		for key := range s.snapshots {
			if key.roundID == id {
				delete(s.snapshots, key)
			}
		}
		for key := range s.jobs {
			if key.roundID == id {
				delete(s.jobs, key)
			}
		}
		purged++
	}
	return purged, nil
}
