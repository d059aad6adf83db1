package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner removes points older than a retention boundary.
type Pruner interface {
	Name() string
	Prune(ctx context.Context, olderThan time.Time) error
}

// Retention defaults.
const (
	DefaultRetention         = 24 * time.Hour
	DefaultRetentionInterval = 10 * time.Minute
)

// RetentionWorker periodically prunes every configured backend. A
// failure on one backend never prevents pruning the others.
type RetentionWorker struct {
	pruners   []Pruner
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewRetentionWorker creates a RetentionWorker; non-positive durations
// fall back to the defaults.
func NewRetentionWorker(
	pruners []Pruner,
	retention, interval time.Duration,
	logger *zap.Logger,
) *RetentionWorker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionWorker{
		pruners:   pruners,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Tick prunes every backend once.
func (w *RetentionWorker) Tick(ctx context.Context) error {
	boundary := w.now().Add(-w.retention)
	for _, p := range w.pruners {
		if err := p.Prune(ctx, boundary); err != nil {
			w.logger.Warn("prune failed",
				zap.String("backend", p.Name()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Start runs the prune loop until the context is done, with one final
// pass on shutdown.
func (w *RetentionWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.Tick(context.Background())
		case <-ticker.C:
			_ = w.Tick(ctx)
		}
	}
}
