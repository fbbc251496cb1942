package ledger

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested account does not exist on the
// ledger (e.g. the round PDA has not been created yet or was closed).
var ErrNotFound = errors.New("ledger: account not found")

// GameConfig mirrors the program's global config account.
type GameConfig struct {
	Authority              string
	Treasury               string
	HouseFeeBasisPoints    uint16
	MinBetLamports         uint64
	MaxBetLamports         uint64
	WaitingPhaseDuration   uint64
	ResolvingPhaseDuration uint64
}

// RoundAccount is the raw on-ledger round state, borsh-decoded.
type RoundAccount struct {
	RoundID              uint64
	Status               uint8
	StartTime            int64
	BettingCloseTime     int64
	BetCount             uint32
	TotalPot             uint64
	Winner               string
	WinningBetIndex      uint32
	VRFRequest           string
	VRFSeed              [32]byte
	RandomnessFulfilled  bool
	WinnerPrizeUnclaimed uint64
	HouseFeeUnclaimed    uint64
}

// BetAccount is the raw on-ledger bet entry, borsh-decoded.
type BetAccount struct {
	RoundID         uint64
	BetIndex        uint32
	Wallet          string
	Amount          uint64
	PlacedAt        int64
	PayoutCollected bool
}

// SignatureInfo is one entry of the recent-signatures window.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime int64
	Failed    bool
}

// TransactionLogs carries the program log lines of one confirmed transaction.
type TransactionLogs struct {
	Signature string
	Slot      uint64
	BlockTime int64
	Logs      []string
}

// TxResult is the outcome of a submitted crank instruction.
type TxResult struct {
	Signature string
}

// HealthStatus is the ledger RPC health probe result.
type HealthStatus struct {
	Healthy     bool
	BlockHeight uint64
}

// Client is the typed read/write boundary to the ledger program. Write
// calls are not idempotent on retry; callers re-derive preconditions from
// live state before resubmitting.
type Client interface {
	FetchConfig(ctx context.Context) (GameConfig, error)
	FetchCurrentRoundID(ctx context.Context) (uint64, error)
	FetchRound(ctx context.Context, roundID uint64) (RoundAccount, error)
	FetchBetEntries(ctx context.Context, roundID uint64, betCount uint32) ([]BetAccount, error)
	FetchRecentSignatures(ctx context.Context, untilSignature string, limit int) ([]SignatureInfo, error)
	FetchTransactionLogs(ctx context.Context, signature string) (TransactionLogs, error)
	RandomnessFulfilled(ctx context.Context, vrfRequest string) (bool, error)
	SubmitCloseBetting(ctx context.Context, roundID uint64, betCount uint32) (TxResult, error)
	SubmitSelectWinner(ctx context.Context, roundID uint64, bettorWallets []string) (TxResult, error)
	HealthCheck(ctx context.Context) (HealthStatus, error)
}

// stalePhaseMarkers are program error names meaning the phase already
// advanced past the attempted instruction. The submission raced another
// crank (or the fallback scan); the round is fine.
var stalePhaseMarkers = []string{
	"InvalidGameStatus",
	"GameAlreadySettled",
	"BettingClosed",
}

// IsStalePhase reports whether a submission error means the ledger already
// moved past the attempted transition. Treated as success by callers.
func IsStalePhase(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range stalePhaseMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
