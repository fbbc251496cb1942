package model

import "time"

// Health status values for a component record.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthError    = "error"
)

// Component names used as system_health keys.
const (
	ComponentIngestion  = "event_ingestion"
	ComponentCrank      = "crank_scheduler"
	ComponentFallback   = "fallback_scanner"
	ComponentReconciler = "payout_reconciler"
	ComponentLedgerRPC  = "ledger_rpc"
	ComponentRetention  = "retention_sweep"
)

// ComponentHealth is the singleton per-component health record, upserted
// last-write-wins every cycle. Metadata carries free-form component state
// such as the ingestion signature cursor.
type ComponentHealth struct {
	Component  string            `json:"component"`
	Status     string            `json:"status"`
	LastCheck  time.Time         `json:"last_check"`
	LastError  string            `json:"last_error,omitempty"`
	ErrorCount uint64            `json:"error_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
