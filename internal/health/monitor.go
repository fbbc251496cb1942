// Package health aggregates per-component status records. Last write wins
// per component key; no business logic beyond that.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
)

// Monitor upserts one health record per named component per cycle.
type Monitor struct {
	store  mirror.Store
	logger *zap.Logger
}

func NewMonitor(store mirror.Store, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{store: store, logger: logger}
}

// ReportOK marks a component healthy, replacing its metadata.
func (m *Monitor) ReportOK(ctx context.Context, component string, metadata map[string]string) {
	prev, _, err := m.store.GetHealth(ctx, component)
	if err != nil {
		m.logger.Warn("health read failed", zap.String("component", component), zap.Error(err))
	}
	record := model.ComponentHealth{
		Component:  component,
		Status:     model.HealthOK,
		LastCheck:  time.Now().UTC(),
		ErrorCount: prev.ErrorCount,
		Metadata:   metadata,
	}
	if err := m.store.UpsertHealth(ctx, record); err != nil {
		m.logger.Warn("health upsert failed", zap.String("component", component), zap.Error(err))
	}
}

// ReportError marks a component failing and bumps its error counter. The
// error is recorded, never propagated; callers retry on their next tick.
func (m *Monitor) ReportError(ctx context.Context, component string, cause error) {
	prev, _, err := m.store.GetHealth(ctx, component)
	if err != nil {
		m.logger.Warn("health read failed", zap.String("component", component), zap.Error(err))
	}
	record := model.ComponentHealth{
		Component:  component,
		Status:     model.HealthError,
		LastCheck:  time.Now().UTC(),
		LastError:  cause.Error(),
		ErrorCount: prev.ErrorCount + 1,
		Metadata:   prev.Metadata,
	}
	if err := m.store.UpsertHealth(ctx, record); err != nil {
		m.logger.Warn("health upsert failed", zap.String("component", component), zap.Error(err))
	}
}

// ReportDegraded marks a component degraded without counting an error.
// Used for documented fallback outcomes that must stay visible.
func (m *Monitor) ReportDegraded(ctx context.Context, component, reason string, metadata map[string]string) {
	prev, _, err := m.store.GetHealth(ctx, component)
	if err != nil {
		m.logger.Warn("health read failed", zap.String("component", component), zap.Error(err))
	}
	record := model.ComponentHealth{
		Component:  component,
		Status:     model.HealthDegraded,
		LastCheck:  time.Now().UTC(),
		LastError:  reason,
		ErrorCount: prev.ErrorCount,
		Metadata:   metadata,
	}
	if err := m.store.UpsertHealth(ctx, record); err != nil {
		m.logger.Warn("health upsert failed", zap.String("component", component), zap.Error(err))
	}
}

// Cursor returns a metadata value of a component record, or "" when unset.
func (m *Monitor) Cursor(ctx context.Context, component, key string) (string, error) {
	record, ok, err := m.store.GetHealth(ctx, component)
	if err != nil || !ok {
		return "", err
	}
	return record.Metadata[key], nil
}

// Snapshot returns the latest record of every component.
func (m *Monitor) Snapshot(ctx context.Context) ([]model.ComponentHealth, error) {
	return m.store.ListHealth(ctx)
}
