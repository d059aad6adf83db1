package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
	"github.com/pulsemon/pulsemon/internal/normalizer"
)

// Writer defines the interface for persisting metric points.
type Writer interface {
	// Write persists the given point.
	Write(ctx context.Context, point *models.MetricPoint) error
}

// Reader defines the interface for reading metric points.
type Reader interface {
	// Query retrieves points for name within [from, to) matching tags,
	// ordered by ascending timestamp.
	Query(ctx context.Context, name string, tags map[string]string, from, to time.Time) ([]*models.MetricPoint, error)
}

// PointError records why one point of an ingestion batch was rejected.
type PointError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestResult is the per-point tally of one ingestion batch.
type IngestResult struct {
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
	Errors   []PointError `json:"errors,omitempty"`
}

// MetricService normalizes, stores and queries metric points.
type MetricService struct {
	normalizer *normalizer.Normalizer
	writer     Writer
	reader     Reader
	logger     *zap.Logger
}

// NewMetricService creates a MetricService with the given collaborators.
func NewMetricService(
	norm *normalizer.Normalizer,
	writer Writer,
	reader Reader,
	logger *zap.Logger,
) *MetricService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricService{
		normalizer: norm,
		writer:     writer,
		reader:     reader,
		logger:     logger,
	}
}

// Ingest validates and writes each sample independently. A bad or
// unwritable point never aborts the rest of the batch; the tally
// reports per-point outcomes.
func (svc *MetricService) Ingest(ctx context.Context, samples []normalizer.RawSample) (*IngestResult, error) {
	result := &IngestResult{}
	for i, raw := range samples {
		point, err := svc.normalizer.Normalize(raw)
		if err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, PointError{Index: i, Error: err.Error()})
			continue
		}
		if err := svc.writer.Write(ctx, point); err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, PointError{Index: i, Error: err.Error()})
			svc.logger.Warn("point write failed",
				zap.String("metric", point.Name),
				zap.Error(err),
			)
			continue
		}
		result.Accepted++
	}
	return result, nil
}

// Query runs an aggregation query and returns one bucket per group, or
// a single bucket when no grouping is requested. Empty partitions are
// omitted.
func (svc *MetricService) Query(ctx context.Context, q models.Query) ([]models.ResultBucket, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	points, err := svc.reader.Query(ctx, q.Name, q.Tags, q.From, q.To)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return []models.ResultBucket{}, nil
	}

	if len(q.GroupBy) == 0 {
		return []models.ResultBucket{{
			Value:     aggregate(q.Aggregation, values(points)),
			Timestamp: q.To,
		}}, nil
	}

	groups := make(map[string][]*models.MetricPoint)
	for _, p := range points {
		groups[groupKey(p, q.GroupBy)] = append(groups[groupKey(p, q.GroupBy)], p)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	buckets := make([]models.ResultBucket, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		tags := make(map[string]string, len(q.GroupBy))
		for _, k := range q.GroupBy {
			tags[k] = group[0].Tags[k]
		}
		buckets = append(buckets, models.ResultBucket{
			Value:     aggregate(q.Aggregation, values(group)),
			Tags:      tags,
			Timestamp: q.To,
		})
	}
	return buckets, nil
}

func validateQuery(q models.Query) error {
	if strings.TrimSpace(q.Name) == "" {
		return monerr.New(monerr.KindValidation, "query metric name must not be empty")
	}
	if q.From.IsZero() || q.To.IsZero() {
		return monerr.New(monerr.KindValidation, "query requires a bounded time range")
	}
	if !q.To.After(q.From) {
		return monerr.New(monerr.KindValidation, "query range end must be after its start")
	}
	if !models.ValidAggregation(q.Aggregation) {
		return monerr.Newf(monerr.KindValidation, "unknown aggregation %q", q.Aggregation)
	}
	return nil
}

// groupKey renders the partition identity for group-by. A tag missing
// on a point maps to the empty string.
func groupKey(p *models.MetricPoint, groupBy []string) string {
	parts := make([]string, len(groupBy))
	for i, k := range groupBy {
		parts[i] = p.Tags[k]
	}
	return strings.Join(parts, "\x00")
}

func values(points []*models.MetricPoint) []float64 {
	vals := make([]float64, len(points))
	for i, p := range points {
		vals[i] = p.Value
	}
	return vals
}

// aggregate computes fn over a non-empty value slice.
func aggregate(fn string, vals []float64) float64 {
	switch fn {
	case models.AggCount:
		return float64(len(vals))
	case models.AggSum:
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return sum
	case models.AggAvg:
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	case models.AggMin:
		min := math.Inf(1)
		for _, v := range vals {
			if v < min {
				min = v
			}
		}
		return min
	case models.AggMax:
		max := math.Inf(-1)
		for _, v := range vals {
			if v > max {
				max = v
			}
		}
		return max
	case models.AggP95:
		return percentile(vals, 0.95)
	}
	return 0
}

// percentile computes the q-quantile by sorted-value linear
// interpolation.
func percentile(vals []float64, q float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := q * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
