// Package memory implements the hot buffer: a fixed-capacity,
// per-metric-name ring held in memory for low-latency recent queries.
// Contents are lost on restart.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pulsemon/pulsemon/internal/models"
)

// DefaultCapacity is the per-name point capacity of the ring.
const DefaultCapacity = 10000

// ring is a fixed-capacity buffer of points in insertion order.
type ring struct {
	points []models.MetricPoint
	next   int
	full   bool
}

func (r *ring) append(p models.MetricPoint) {
	if len(r.points) < cap(r.points) && !r.full {
		r.points = append(r.points, p)
		if len(r.points) == cap(r.points) {
			r.next = 0
			r.full = true
		}
		return
	}
	r.points[r.next] = p
	r.next = (r.next + 1) % cap(r.points)
}

// snapshot returns the buffered points oldest first.
func (r *ring) snapshot() []models.MetricPoint {
	out := make([]models.MetricPoint, 0, len(r.points))
	if r.full {
		out = append(out, r.points[r.next:]...)
		out = append(out, r.points[:r.next]...)
		return out
	}
	return append(out, r.points...)
}

// MetricRepository stores recent points per metric name.
type MetricRepository struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*ring
}

// NewMetricRepository creates a hot buffer with the given per-name
// capacity; non-positive capacity falls back to DefaultCapacity.
func NewMetricRepository(capacity int) *MetricRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MetricRepository{
		capacity: capacity,
		series:   make(map[string]*ring),
	}
}

// Name identifies the backend in logs.
func (r *MetricRepository) Name() string { return "memory" }

// Write appends the point to its metric's ring, evicting the oldest
// point once the ring is at capacity. O(1) amortized.
func (r *MetricRepository) Write(ctx context.Context, point *models.MetricPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.series[point.Name]
	if !ok {
		s = &ring{points: make([]models.MetricPoint, 0, r.capacity)}
		r.series[point.Name] = s
	}
	s.append(*point)
	return nil
}

// Query returns buffered points for name within [from, to) matching all
// filter tags, ordered by ascending timestamp. Duplicate
// (timestamp, tags) writes resolve to the most recently written point.
func (r *MetricRepository) Query(
	ctx context.Context,
	name string,
	tags map[string]string,
	from, to time.Time,
) ([]*models.MetricPoint, error) {
	r.mu.RLock()
	s, ok := r.series[name]
	var points []models.MetricPoint
	if ok {
		points = s.snapshot()
	}
	r.mu.RUnlock()

	// Last write wins per (timestamp, tags) identity; snapshot order is
	// insertion order, so later duplicates overwrite earlier ones.
	latest := make(map[string]int, len(points))
	order := make([]*models.MetricPoint, 0, len(points))
	for i := range points {
		p := &points[i]
		if p.Timestamp.Before(from) || !p.Timestamp.Before(to) {
			continue
		}
		if !models.MatchTags(p.Tags, tags) {
			continue
		}
		key := strconv.FormatInt(p.Timestamp.UnixNano(), 10) + "|" + models.TagsKey(p.Tags)
		if idx, dup := latest[key]; dup {
			order[idx] = p
			continue
		}
		latest[key] = len(order)
		order = append(order, p)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Timestamp.Before(order[j].Timestamp)
	})
	return order, nil
}

// Prune drops points older than the boundary. Idempotent.
func (r *MetricRepository) Prune(ctx context.Context, olderThan time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, s := range r.series {
		kept := make([]models.MetricPoint, 0, len(s.points))
		for _, p := range s.snapshot() {
			if !p.Timestamp.Before(olderThan) {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(r.series, name)
			continue
		}
		fresh := &ring{points: make([]models.MetricPoint, 0, r.capacity)}
		for _, p := range kept {
			fresh.append(p)
		}
		r.series[name] = fresh
	}
	return nil
}

// Names lists the metric names currently buffered, sorted.
func (r *MetricRepository) Names(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
