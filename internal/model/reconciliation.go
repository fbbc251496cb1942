package model

import "time"

// ReconcileOutcome classifies how a finished round's payout settled.
type ReconcileOutcome string

const (
	// ReconcilePaid: both unclaimed balances are zero, direct payout worked.
	ReconcilePaid ReconcileOutcome = "paid"
	// ReconcileUnclaimed: the ledger fell back to unclaimed accounting and
	// the funds await a manual claim. A documented path, not an error.
	ReconcileUnclaimed ReconcileOutcome = "unclaimed"
	// ReconcileShortfall: reported unclaimed balances disagree with the
	// expected split. Needs operator attention.
	ReconcileShortfall ReconcileOutcome = "shortfall"
)

// PayoutReconciliation records the expected-vs-reported payout comparison
// for one finished round. One row per round.
type PayoutReconciliation struct {
	RoundID                uint64           `json:"round_id"`
	TotalPot               uint64           `json:"total_pot"`
	ExpectedWinnerPrize    uint64           `json:"expected_winner_prize"`
	ExpectedHouseFee       uint64           `json:"expected_house_fee"`
	ReportedPrizeUnclaimed uint64           `json:"reported_prize_unclaimed"`
	ReportedFeeUnclaimed   uint64           `json:"reported_fee_unclaimed"`
	Outcome                ReconcileOutcome `json:"outcome"`
	CheckedAt              time.Time        `json:"checked_at"`
}
