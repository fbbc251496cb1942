package health

import (
	"context"
	"strconv"
	"time"

	"wagermirror/internal/ledger"
	"wagermirror/internal/model"
)

// LedgerProber is the probe surface of the RPC client.
type LedgerProber interface {
	HealthCheck(ctx context.Context) (ledger.HealthStatus, error)
}

// ProbeLedger runs one node health probe and records the result under
// the ledger_rpc component.
func (m *Monitor) ProbeLedger(ctx context.Context, prober LedgerProber) {
	status, err := prober.HealthCheck(ctx)
	if err != nil {
		m.ReportError(ctx, model.ComponentLedgerRPC, err)
		return
	}
	metadata := map[string]string{
		"block_height": strconv.FormatUint(status.BlockHeight, 10),
	}
	if !status.Healthy {
		m.ReportDegraded(ctx, model.ComponentLedgerRPC, "node reports unhealthy", metadata)
		return
	}
	m.ReportOK(ctx, model.ComponentLedgerRPC, metadata)
}

// WatchLedger probes immediately, then on every interval until the
// context ends.
func (m *Monitor) WatchLedger(ctx context.Context, prober LedgerProber, interval time.Duration) {
	m.ProbeLedger(ctx, prober)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeLedger(ctx, prober)
		}
	}
}
