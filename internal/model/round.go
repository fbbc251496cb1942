package model

import "time"

// Status is the round lifecycle phase as reported by the ledger program.
// The numeric order is the lifecycle order; a mirrored round never moves
// to a lower value.
type Status uint8

const (
	StatusIdle Status = iota
	StatusWaiting
	StatusAwaitingWinnerRandomness
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWaiting:
		return "waiting"
	case StatusAwaitingWinnerRandomness:
		return "awaiting_winner_randomness"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Valid reports whether the value is one of the known phases.
func (s Status) Valid() bool {
	return s <= StatusFinished
}

// Round is the mirrored copy of one on-ledger game round. The ledger is
// the source of truth for every field; the mirror only adds bookkeeping
// timestamps and presentation metadata.
type Round struct {
	RoundID              uint64    `json:"round_id"`
	Status               Status    `json:"status"`
	StartTime            int64     `json:"start_time"`
	BettingCloseTime     int64     `json:"betting_close_time"`
	BetCount             uint32    `json:"bet_count"`
	TotalPot             uint64    `json:"total_pot"`
	WinnerAddress        string    `json:"winner_address,omitempty"`
	WinningBetIndex      uint32    `json:"winning_bet_index"`
	VRFRequest           string    `json:"vrf_request,omitempty"`
	RandomnessFulfilled  bool      `json:"randomness_fulfilled"`
	WinnerPrizeUnclaimed uint64    `json:"winner_prize_unclaimed"`
	HouseFeeUnclaimed    uint64    `json:"house_fee_unclaimed"`
	DisplayName          string    `json:"display_name,omitempty"`
	FirstSeenAt          time.Time `json:"first_seen_at"`
	LastCheckedAt        time.Time `json:"last_checked_at"`
}

// BetEntry mirrors one bet PDA. Immutable after creation; bet indexes are
// assigned sequentially per round starting at 0.
type BetEntry struct {
	RoundID         uint64    `json:"round_id"`
	BetIndex        uint32    `json:"bet_index"`
	Wallet          string    `json:"wallet"`
	Amount          uint64    `json:"amount"`
	PlacedAt        int64     `json:"placed_at"`
	PayoutCollected bool      `json:"payout_collected"`
	IngestedAt      time.Time `json:"ingested_at"`
}
