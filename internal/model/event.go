package model

import "time"

// Names of the ledger program's emitted events. The set is closed; anything
// else parsed out of the logs becomes EventUnrecognized and keeps its raw
// payload for later reprocessing.
const (
	EventGameInitialized = "GameInitialized"
	EventBetPlaced       = "BetPlaced"
	EventGameLocked      = "GameLocked"
	EventWinnerSelected  = "WinnerSelected"
	EventGameReset       = "GameReset"
	EventUnrecognized    = "Unrecognized"
)

// GameInitializedData is the decoded GameInitialized payload.
type GameInitializedData struct {
	RoundID          uint64 `json:"round_id"`
	StartTime        int64  `json:"start_time"`
	BettingCloseTime int64  `json:"betting_close_time"`
}

// BetPlacedData is the decoded BetPlaced payload.
type BetPlacedData struct {
	RoundID          uint64 `json:"round_id"`
	Player           string `json:"player"`
	Amount           uint64 `json:"amount"`
	BetCount         uint8  `json:"bet_count"`
	TotalPot         uint64 `json:"total_pot"`
	BettingCloseTime int64  `json:"betting_close_time"`
	IsFirstBet       bool   `json:"is_first_bet"`
}

// GameLockedData is the decoded GameLocked payload.
type GameLockedData struct {
	RoundID       uint64 `json:"round_id"`
	FinalBetCount uint8  `json:"final_bet_count"`
	TotalPot      uint64 `json:"total_pot"`
	VRFRequest    string `json:"vrf_request"`
}

// WinnerSelectedData is the decoded WinnerSelected payload.
type WinnerSelectedData struct {
	RoundID         uint64 `json:"round_id"`
	Winner          string `json:"winner"`
	WinningBetIndex uint32 `json:"winning_bet_index"`
	TotalPot        uint64 `json:"total_pot"`
	HouseFee        uint64 `json:"house_fee"`
	WinnerPayout    uint64 `json:"winner_payout"`
}

// GameResetData is the decoded GameReset payload.
type GameResetData struct {
	OldRoundID uint64 `json:"old_round_id"`
	NewRoundID uint64 `json:"new_round_id"`
}

// ParsedEvent is one event decoded from a transaction's program logs.
// Decoded is nil for unrecognized events; Raw always carries the original
// payload bytes.
type ParsedEvent struct {
	Name    string
	RoundID *uint64
	Decoded interface{}
	Raw     []byte
}

// LedgerEvent is the audit-log row for one (signature, event) observation.
// Deduplicated on signature before insert; append-only afterwards.
type LedgerEvent struct {
	Signature  string    `json:"signature"`
	EventName  string    `json:"event_name"`
	Slot       uint64    `json:"slot"`
	BlockTime  int64     `json:"block_time"`
	RoundID    *uint64   `json:"round_id,omitempty"`
	Raw        []byte    `json:"raw"`
	Processed  bool      `json:"processed"`
	IngestedAt time.Time `json:"ingested_at"`
}
