package model

import "time"

// SnapshotSource records which path first observed a phase.
type SnapshotSource string

const (
	SnapshotSourceEvent SnapshotSource = "event"
	SnapshotSourcePoll  SnapshotSource = "poll"
)

// PhaseSnapshot is a point-in-time copy of a round taken the first time a
// phase is observed. At most one snapshot exists per (round, status) pair;
// later observations of the same phase are dropped, never merged.
type PhaseSnapshot struct {
	RoundID              uint64         `json:"round_id"`
	Status               Status         `json:"status"`
	BetCount             uint32         `json:"bet_count"`
	TotalPot             uint64         `json:"total_pot"`
	WinnerAddress        string         `json:"winner_address,omitempty"`
	WinningBetIndex      uint32         `json:"winning_bet_index"`
	WinnerPrizeUnclaimed uint64         `json:"winner_prize_unclaimed"`
	HouseFeeUnclaimed    uint64         `json:"house_fee_unclaimed"`
	Source               SnapshotSource `json:"source"`
	ObservedAt           time.Time      `json:"observed_at"`
}

// SnapshotFromRound builds the history row for the round's current phase.
func SnapshotFromRound(r Round, source SnapshotSource, observedAt time.Time) PhaseSnapshot {
	return PhaseSnapshot{
		RoundID:              r.RoundID,
		Status:               r.Status,
		BetCount:             r.BetCount,
		TotalPot:             r.TotalPot,
		WinnerAddress:        r.WinnerAddress,
		WinningBetIndex:      r.WinningBetIndex,
		WinnerPrizeUnclaimed: r.WinnerPrizeUnclaimed,
		HouseFeeUnclaimed:    r.HouseFeeUnclaimed,
		Source:               source,
		ObservedAt:           observedAt.UTC(),
	}
}
