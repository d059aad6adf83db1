package models

import (
	"sort"
	"strings"
	"time"
)

// Metric types.
const (
	Counter   = "counter"   // Counter is a monotonic, cumulative metric type.
	Gauge     = "gauge"     // Gauge represents a value at a specific point in time.
	Histogram = "histogram" // Histogram is a single distribution sample.
	Summary   = "summary"   // Summary is a pre-aggregated statistic.
)

// ValidMetricType reports whether t is one of the known metric types.
func ValidMetricType(t string) bool {
	switch t {
	case Counter, Gauge, Histogram, Summary:
		return true
	}
	return false
}

// MetricPoint represents a single named, timestamped observation.
// A point is never mutated after creation; a newer point with the same
// name and tags supersedes it.
type MetricPoint struct {
	Name      string            `json:"name"`           // Metric name, e.g. "cpu_usage".
	Value     float64           `json:"value"`          // Observed value.
	Type      string            `json:"type"`           // One of the metric type constants.
	Tags      map[string]string `json:"tags,omitempty"` // Key/value labels for filtering and grouping.
	Timestamp time.Time         `json:"timestamp"`      // UTC instant of the observation.
}

// TagsKey renders tags as a canonical "k=v,k=v" string with sorted keys.
// It is used as the series identity for deduplication and storage keys.
func TagsKey(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}
	return b.String()
}

// MatchTags reports whether the point tags satisfy every filter pair.
// An empty filter matches everything.
func MatchTags(tags, filter map[string]string) bool {
	for k, v := range filter {
		if tags[k] != v {
			return false
		}
	}
	return true
}

// Aggregation functions.
const (
	AggAvg   = "avg"
	AggSum   = "sum"
	AggMin   = "min"
	AggMax   = "max"
	AggCount = "count"
	AggP95   = "p95"
)

// ValidAggregation reports whether fn is a supported aggregation function.
func ValidAggregation(fn string) bool {
	switch fn {
	case AggAvg, AggSum, AggMin, AggMax, AggCount, AggP95:
		return true
	}
	return false
}

// Query is a read request over one metric within a half-open time
// range [From, To).
type Query struct {
	Name        string            `json:"name"`
	Tags        map[string]string `json:"tags,omitempty"` // Exact match on all given pairs.
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Aggregation string            `json:"aggregation"`        // One of the aggregation constants.
	GroupBy     []string          `json:"group_by,omitempty"` // Tag keys to partition by.
}

// ResultBucket is one aggregated partition of a query result.
type ResultBucket struct {
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"` // Group-by tag values, empty without grouping.
	Timestamp time.Time         `json:"timestamp"`      // Representative instant, the end of the range.
}
