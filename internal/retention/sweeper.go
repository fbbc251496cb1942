// Package retention prunes aged audit rows so the mirror database stays
// bounded. Finished rounds and their dependents go together; live rounds
// are never touched.
package retention

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"wagermirror/internal/health"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

// Config holds sweep settings.
type Config struct {
	// RetentionDays is how long finished rounds and raw event rows are
	// kept after their last activity.
	RetentionDays int
	SweepInterval time.Duration
}

// Sweeper deletes event and round rows older than the retention window.
type Sweeper struct {
	cfg     Config
	store   mirror.Store
	monitor *health.Monitor
	logger  *zap.Logger
	now     func() time.Time
}

func New(cfg Config, store mirror.Store, monitor *health.Monitor, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 24 * time.Hour
	}
	return &Sweeper{
		cfg:     cfg,
		store:   store,
		monitor: monitor,
		logger:  logger,
		now:     time.Now,
	}
}

// Run sweeps once immediately, then on every interval until the context
// ends.
func (s *Sweeper) Run(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Warn("retention sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Warn("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce deletes everything older than the cutoff and reports the counts.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)

	events, err := s.store.PurgeEventsBefore(ctx, cutoff)
	if err != nil {
		s.monitor.ReportError(ctx, model.ComponentRetention, err)
		return err
	}
	rounds, err := s.store.PurgeFinishedRoundsBefore(ctx, cutoff)
	if err != nil {
		s.monitor.ReportError(ctx, model.ComponentRetention, err)
		return err
	}

	if events > 0 || rounds > 0 {
		s.logger.Info("retention sweep complete",
			zap.Time("cutoff", cutoff),
			zap.Int64("events_purged", events),
			zap.Int64("rounds_purged", rounds),
		)
	}
	s.monitor.ReportOK(ctx, model.ComponentRetention, map[string]string{
		"cutoff":        cutoff.Format(time.RFC3339),
		"events_purged": strconv.FormatInt(events, 10),
		"rounds_purged": strconv.FormatInt(rounds, 10),
	})
	return nil
}
