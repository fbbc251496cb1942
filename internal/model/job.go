package model

import "time"

// JobAction is a crank action that may be scheduled at most once per round.
type JobAction string

const (
	JobCloseBetting  JobAction = "close-betting"
	JobRequestPayout JobAction = "request-payout"
)

// JobStatus is the scheduled-job outcome state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ScheduledJob guards against double submission of the same crank action
// for the same round: the store enforces one row per (round, action).
type ScheduledJob struct {
	ID          string     `json:"id"`
	RoundID     uint64     `json:"round_id"`
	Action      JobAction  `json:"action"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}
