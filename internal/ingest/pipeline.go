// Package ingest turns the ledger's recent transaction window into the
// deduplicated audit log and first-observation phase history.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"wagermirror/internal/backoff"
	"wagermirror/internal/health"
	"wagermirror/internal/ledger"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

// Config holds runtime settings for the pipeline.
type Config struct {
	BatchLimit   int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Pipeline polls the ledger for new transactions and appends deduplicated
// event rows. The signature cursor lives in the component's health record
// and only advances after a fully successful batch, so a partial failure
// replays from the same cursor; unique constraints absorb the replay.
type Pipeline struct {
	cfg     Config
	ledger  ledger.Client
	store   mirror.Store
	monitor *health.Monitor
	logger  *zap.Logger
}

func New(cfg Config, client ledger.Client, store mirror.Store, monitor *health.Monitor, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 200
	}
	return &Pipeline{
		cfg:     cfg,
		ledger:  client,
		store:   store,
		monitor: monitor,
		logger:  logger,
	}
}

// Run invokes RunOnce on every tick until the context ends. A failed tick
// is logged and counted, never fatal.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Warn("ingestion tick failed", zap.Error(err))
			}
		}
	}
}

// RunOnce processes one batch of signatures newer than the cursor.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	cursor, err := p.monitor.Cursor(ctx, model.ComponentIngestion, "last_signature")
	if err != nil {
		p.monitor.ReportError(ctx, model.ComponentIngestion, err)
		return fmt.Errorf("load cursor: %w", err)
	}

	var sigs []ledger.SignatureInfo
	err = backoff.Retry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		sigs, err = p.ledger.FetchRecentSignatures(ctx, cursor, p.cfg.BatchLimit)
		return err
	})
	if err != nil {
		p.monitor.ReportError(ctx, model.ComponentIngestion, err)
		return fmt.Errorf("fetch signatures: %w", err)
	}

	if len(sigs) == 0 {
		p.monitor.ReportOK(ctx, model.ComponentIngestion, map[string]string{
			"last_signature": cursor,
		})
		return nil
	}

	// Signatures arrive newest first; replay them in ledger order.
	inserted := 0
	for i := len(sigs) - 1; i >= 0; i-- {
		n, err := p.processSignature(ctx, sigs[i])
		if err != nil {
			p.monitor.ReportError(ctx, model.ComponentIngestion, err)
			return fmt.Errorf("process %s: %w", sigs[i].Signature, err)
		}
		inserted += n
	}

	newest := sigs[0]
	p.monitor.ReportOK(ctx, model.ComponentIngestion, map[string]string{
		"last_signature": newest.Signature,
		"last_slot":      strconv.FormatUint(newest.Slot, 10),
	})
	p.logger.Info("ingestion batch complete",
		zap.Int("signatures", len(sigs)),
		zap.Int("events_inserted", inserted),
		zap.String("cursor", newest.Signature),
	)
	return nil
}

func (p *Pipeline) processSignature(ctx context.Context, sig ledger.SignatureInfo) (int, error) {
	if sig.Failed {
		return 0, nil
	}

	var logs ledger.TransactionLogs
	err := backoff.Retry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = p.ledger.FetchTransactionLogs(ctx, sig.Signature)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("fetch logs: %w", err)
	}

	events := ParseEvents(logs.Logs)
	if len(events) == 0 {
		return 0, nil
	}

	primary := events[0]
	record := model.LedgerEvent{
		Signature: sig.Signature,
		EventName: primary.Name,
		Slot:      sig.Slot,
		BlockTime: sig.BlockTime,
		RoundID:   primary.RoundID,
		Raw:       primary.Raw,
		Processed: primary.Name != model.EventUnrecognized,
	}
	inserted, err := p.store.InsertEvent(ctx, record)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	if !inserted {
		// Duplicate delivery (e.g. fast and slow poll racing); the phase
		// snapshots below are idempotent too, so skipping is just cheaper.
		return 0, nil
	}

	for _, event := range events {
		if err := p.applyEvent(ctx, event); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

// applyEvent folds one decoded event into the round mirror and records
// the phase snapshot if this is the first observation of that phase.
func (p *Pipeline) applyEvent(ctx context.Context, event model.ParsedEvent) error {
	status, ok := phaseForEvent(event.Name)
	if !ok || event.RoundID == nil {
		return nil
	}

	round, _, err := p.store.GetRound(ctx, *event.RoundID)
	if err != nil {
		return fmt.Errorf("load round %d: %w", *event.RoundID, err)
	}
	round.RoundID = *event.RoundID
	if status > round.Status {
		round.Status = status
	}

	switch data := event.Decoded.(type) {
	case model.GameInitializedData:
		round.StartTime = data.StartTime
		round.BettingCloseTime = data.BettingCloseTime
	case model.BetPlacedData:
		round.BetCount = uint32(data.BetCount)
		round.TotalPot = data.TotalPot
		round.BettingCloseTime = data.BettingCloseTime
	case model.GameLockedData:
		round.BetCount = uint32(data.FinalBetCount)
		round.TotalPot = data.TotalPot
		round.VRFRequest = data.VRFRequest
	case model.WinnerSelectedData:
		round.TotalPot = data.TotalPot
		round.WinnerAddress = data.Winner
		round.WinningBetIndex = data.WinningBetIndex
	}

	if err := p.store.UpsertRound(ctx, round); err != nil {
		return fmt.Errorf("upsert round %d: %w", round.RoundID, err)
	}

	snap := model.SnapshotFromRound(round, model.SnapshotSourceEvent, time.Now())
	snap.Status = status
	if _, err := p.store.RecordPhaseSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("record snapshot %d/%s: %w", round.RoundID, status, err)
	}
	return nil
}
