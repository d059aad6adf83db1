// Package worker contains the periodic background loops of the
// monitoring server. Each worker owns its ticker, runs until its
// context is cancelled, and exposes a single-tick method so tests can
// drive one iteration deterministically.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AlertEvaluator runs one alert evaluation pass.
type AlertEvaluator interface {
	EvaluateAll(ctx context.Context, now time.Time) error
}

// DefaultAlertInterval is the alert evaluation cadence.
const DefaultAlertInterval = 30 * time.Second

// AlertWorker periodically evaluates every enabled alert.
type AlertWorker struct {
	evaluator AlertEvaluator
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewAlertWorker creates an AlertWorker; non-positive interval falls
// back to DefaultAlertInterval.
func NewAlertWorker(evaluator AlertEvaluator, interval time.Duration, logger *zap.Logger) *AlertWorker {
	if interval <= 0 {
		interval = DefaultAlertInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertWorker{
		evaluator: evaluator,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Tick runs one evaluation pass.
func (w *AlertWorker) Tick(ctx context.Context) error {
	return w.evaluator.EvaluateAll(ctx, w.now())
}

// Start runs the evaluation loop until the context is done. A failed
// tick is logged and never stops the loop.
func (w *AlertWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Warn("alert evaluation tick failed", zap.Error(err))
			}
		}
	}
}
