// Package normalizer validates and canonicalizes incoming metric
// samples before they reach any storage backend.
package normalizer

import (
	"math"
	"strings"
	"time"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

// DefaultMaxTags bounds tag cardinality per point.
const DefaultMaxTags = 32

// RawSample is an unvalidated observation as received from a source.
type RawSample struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Type      string            `json:"type,omitempty"`      // Defaults to gauge.
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitempty"` // Defaults to ingestion time.
}

// Normalizer is a pure transform from raw samples to metric points.
type Normalizer struct {
	maxTags int
	now     func() time.Time
}

// Opt configures a Normalizer.
type Opt func(*Normalizer)

// WithMaxTags overrides the tag count bound.
func WithMaxTags(n int) Opt {
	return func(nm *Normalizer) {
		if n > 0 {
			nm.maxTags = n
		}
	}
}

// WithNow overrides the time source, for tests.
func WithNow(now func() time.Time) Opt {
	return func(nm *Normalizer) {
		if now != nil {
			nm.now = now
		}
	}
}

// New creates a Normalizer with the given options applied.
func New(opts ...Opt) *Normalizer {
	n := &Normalizer{
		maxTags: DefaultMaxTags,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates a raw sample and returns the canonical point.
// It has no side effects; failures carry the validation kind.
func (n *Normalizer) Normalize(raw RawSample) (*models.MetricPoint, error) {
	if strings.TrimSpace(raw.Name) == "" {
		return nil, monerr.New(monerr.KindValidation, "metric name must not be empty")
	}
	if math.IsNaN(raw.Value) || math.IsInf(raw.Value, 0) {
		return nil, monerr.Newf(monerr.KindValidation, "metric %q value must be finite", raw.Name)
	}
	if len(raw.Tags) > n.maxTags {
		return nil, monerr.Newf(monerr.KindValidation,
			"metric %q carries %d tags, limit is %d", raw.Name, len(raw.Tags), n.maxTags)
	}

	mType := raw.Type
	if mType == "" {
		mType = models.Gauge
	}
	if !models.ValidMetricType(mType) {
		return nil, monerr.Newf(monerr.KindValidation, "unknown metric type %q", raw.Type)
	}

	var tags map[string]string
	if len(raw.Tags) > 0 {
		tags = make(map[string]string, len(raw.Tags))
		for k, v := range raw.Tags {
			if strings.TrimSpace(k) == "" {
				return nil, monerr.Newf(monerr.KindValidation, "metric %q has an empty tag key", raw.Name)
			}
			tags[k] = v
		}
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = n.now()
	}

	return &models.MetricPoint{
		Name:      raw.Name,
		Value:     raw.Value,
		Type:      mType,
		Tags:      tags,
		Timestamp: ts.UTC(),
	}, nil
}
