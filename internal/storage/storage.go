// Package storage defines the uniform contract over the concrete
// metric backends and the write fan-out / tiered read policies that
// combine them.
package storage

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

// Backend is the capability surface every storage adapter satisfies.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Write persists one point; bounded by the caller's context.
	Write(ctx context.Context, point *models.MetricPoint) error
	// Query returns points for name within [from, to) matching all
	// filter tags, ordered by ascending timestamp.
	Query(ctx context.Context, name string, tags map[string]string, from, to time.Time) ([]*models.MetricPoint, error)
	// Prune removes points older than the boundary; idempotent.
	Prune(ctx context.Context, olderThan time.Time) error
}

// DefaultWriteTimeout bounds a single fan-out write so one slow backend
// cannot stall ingestion indefinitely.
const DefaultWriteTimeout = 5 * time.Second

// FanOut writes each point to every configured backend. A write
// succeeds when at least one backend accepts it; other failures are
// logged, not surfaced, so a slow secondary never cascades
// backpressure into ingestion.
type FanOut struct {
	backends []Backend
	timeout  time.Duration
	logger   *zap.Logger
}

// NewFanOut creates a fan-out writer; non-positive timeout falls back
// to DefaultWriteTimeout.
func NewFanOut(logger *zap.Logger, timeout time.Duration, backends ...Backend) *FanOut {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanOut{backends: backends, timeout: timeout, logger: logger}
}

// Write fans the point out to all backends.
func (f *FanOut) Write(ctx context.Context, point *models.MetricPoint) error {
	if len(f.backends) == 0 {
		return monerr.New(monerr.KindStorage, "no storage backends configured")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var succeeded int
	var firstErr error
	for _, b := range f.backends {
		if err := b.Write(ctx, point); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			f.logger.Warn("backend write failed",
				zap.String("backend", b.Name()),
				zap.String("metric", point.Name),
				zap.Error(err),
			)
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		return monerr.Wrap(monerr.KindStorage, "all storage backends rejected the write", firstErr)
	}
	return nil
}

// DefaultHotHorizon is how far back the hot buffer is considered
// canonical.
const DefaultHotHorizon = 15 * time.Minute

// Tiered reads from the backend whose retained range covers the
// request: the hot buffer for recent ranges, the durable store for
// history, and a deduplicated merge when the range straddles the
// horizon. On identical (timestamp, tags) identity the hot value wins,
// being the most recently written source.
type Tiered struct {
	hot     Backend
	durable Backend
	horizon time.Duration
	now     func() time.Time
}

// TieredOpt configures a Tiered reader.
type TieredOpt func(*Tiered)

// WithHorizon overrides the hot buffer horizon.
func WithHorizon(d time.Duration) TieredOpt {
	return func(t *Tiered) {
		if d > 0 {
			t.horizon = d
		}
	}
}

// WithNow overrides the time source, for tests.
func WithNow(now func() time.Time) TieredOpt {
	return func(t *Tiered) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTiered creates a tiered reader. Either backend may be nil; at
// least one must be set for queries to succeed.
func NewTiered(hot, durable Backend, opts ...TieredOpt) *Tiered {
	t := &Tiered{
		hot:     hot,
		durable: durable,
		horizon: DefaultHotHorizon,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Query selects the covering backend(s) and returns merged, ordered
// points.
func (t *Tiered) Query(
	ctx context.Context,
	name string,
	tags map[string]string,
	from, to time.Time,
) ([]*models.MetricPoint, error) {
	hotStart := t.now().Add(-t.horizon)

	switch {
	case t.hot == nil && t.durable == nil:
		return nil, monerr.New(monerr.KindStorage, "no storage backends configured")
	case t.durable == nil:
		return t.hot.Query(ctx, name, tags, from, to)
	case t.hot == nil:
		return t.durable.Query(ctx, name, tags, from, to)
	case !from.Before(hotStart):
		// Range is entirely within the hot horizon.
		return t.hot.Query(ctx, name, tags, from, to)
	case !to.After(hotStart):
		// Range ends before the hot horizon begins.
		return t.durable.Query(ctx, name, tags, from, to)
	}

	durablePoints, err := t.durable.Query(ctx, name, tags, from, to)
	if err != nil {
		return nil, err
	}
	hotPoints, err := t.hot.Query(ctx, name, tags, from, to)
	if err != nil {
		return nil, err
	}
	return MergePoints(durablePoints, hotPoints), nil
}

// MergePoints merges two ascending point sequences, deduplicating by
// (timestamp, tags) identity with the preferred sequence winning.
// Both inputs must already be ordered by timestamp.
func MergePoints(base, preferred []*models.MetricPoint) []*models.MetricPoint {
	seen := make(map[string]*models.MetricPoint, len(base)+len(preferred))
	order := make([]string, 0, len(base)+len(preferred))

	for _, p := range base {
		key := identity(p)
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		}
		seen[key] = p
	}
	for _, p := range preferred {
		key := identity(p)
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		}
		seen[key] = p
	}

	out := make([]*models.MetricPoint, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func identity(p *models.MetricPoint) string {
	return p.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + models.TagsKey(p.Tags)
}
