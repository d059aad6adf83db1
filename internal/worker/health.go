package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pulsemon/pulsemon/internal/models"
)

// Checker probes registered health targets.
type Checker interface {
	RunChecks(ctx context.Context, names ...string) ([]*models.HealthCheckResult, error)
}

// DefaultHealthInterval is the probe cadence.
const DefaultHealthInterval = 30 * time.Second

// HealthWorker periodically probes every registered target.
type HealthWorker struct {
	checker  Checker
	interval time.Duration
	logger   *zap.Logger
}

// NewHealthWorker creates a HealthWorker; non-positive interval falls
// back to DefaultHealthInterval.
func NewHealthWorker(checker Checker, interval time.Duration, logger *zap.Logger) *HealthWorker {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthWorker{checker: checker, interval: interval, logger: logger}
}

// Tick probes all targets once.
func (w *HealthWorker) Tick(ctx context.Context) error {
	results, err := w.checker.RunChecks(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		if !res.Healthy {
			w.logger.Warn("health probe failed",
				zap.String("target", res.Target),
				zap.String("endpoint", res.Endpoint),
				zap.String("error", res.Error),
			)
		}
	}
	return nil
}

// Start runs the probe loop until the context is done. A failed tick is
// logged and never stops the loop.
func (w *HealthWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Warn("health check tick failed", zap.Error(err))
			}
		}
	}
}
