package models

import "time"

// HealthTarget is one probed dependency, supplied by configuration or
// registered at runtime.
type HealthTarget struct {
	Name         string `json:"name"`                    // Logical dependency name.
	Endpoint     string `json:"endpoint"`                // Address probed.
	ExpectStatus int    `json:"expect_status,omitempty"` // 0 means any 2xx.
}

// HealthCheckResult is the outcome of a single probe.
type HealthCheckResult struct {
	Target       string        `json:"target"`
	Endpoint     string        `json:"endpoint"`
	Healthy      bool          `json:"healthy"`
	StatusCode   int           `json:"status_code,omitempty"`
	Error        string        `json:"error,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Metric names under which probe outcomes are published into the
// metric pipeline.
const (
	HealthUpMetric       = "health_up"
	HealthDurationMetric = "health_probe_duration_seconds"
)
