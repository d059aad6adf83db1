package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Alert severities, ordered by urgency.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Alert lifecycle states.
const (
	AlertStatePending  = "pending"  // Initial/idle state.
	AlertStateFiring   = "firing"   // Condition holds and cooldown elapsed.
	AlertStateResolved = "resolved" // Condition stopped holding after a firing.
)

// Comparison operators for alert conditions.
const (
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpEqual        = "=="
	OpNotEqual     = "!="
)

// ErrInvalidCondition is returned when a condition expression cannot be parsed.
var ErrInvalidCondition = errors.New("condition must be of the form \"metric OP threshold\"")

// Condition is a parsed alert rule: a metric name, a comparison operator
// and a threshold. It is parsed once at alert creation, never re-parsed
// per evaluation tick.
type Condition struct {
	Metric    string  `json:"metric"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// ParseCondition parses a textual expression such as "cpu_usage > 80".
func ParseCondition(expr string) (Condition, error) {
	fields := strings.Fields(expr)
	if len(fields) != 3 {
		return Condition{}, ErrInvalidCondition
	}

	switch fields[1] {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
	default:
		return Condition{}, fmt.Errorf("unknown operator %q: %w", fields[1], ErrInvalidCondition)
	}

	threshold, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("invalid threshold %q: %w", fields[2], ErrInvalidCondition)
	}

	return Condition{
		Metric:    fields[0],
		Operator:  fields[1],
		Threshold: threshold,
	}, nil
}

// Holds evaluates the condition against an observed value.
func (c Condition) Holds(value float64) bool {
	switch c.Operator {
	case OpGreater:
		return value > c.Threshold
	case OpLess:
		return value < c.Threshold
	case OpGreaterEqual:
		return value >= c.Threshold
	case OpLessEqual:
		return value <= c.Threshold
	case OpEqual:
		return value == c.Threshold
	case OpNotEqual:
		return value != c.Threshold
	}
	return false
}

// String renders the condition back into its textual form.
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Metric, c.Operator,
		strconv.FormatFloat(c.Threshold, 'f', -1, 64))
}

// DefaultCooldownSeconds is the minimum interval between consecutive
// firings of the same alert unless configured otherwise.
const DefaultCooldownSeconds = 300

// Alert is a standing rule plus its runtime state.
type Alert struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	Description     string     `json:"description,omitempty" db:"description"`
	Condition       Condition  `json:"condition"`
	Severity        string     `json:"severity" db:"severity"`
	Enabled         bool       `json:"enabled" db:"enabled"`
	CooldownSeconds int        `json:"cooldown_seconds" db:"cooldown_seconds"`
	LastTriggered   *time.Time `json:"last_triggered,omitempty"`
	State           string     `json:"state" db:"state"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Cooldown returns the cooldown as a duration.
func (a *Alert) Cooldown() time.Duration {
	return time.Duration(a.CooldownSeconds) * time.Second
}

// AlertPatch carries partial updates to an alert. Nil fields are left
// unchanged.
type AlertPatch struct {
	Name            *string `json:"name,omitempty"`
	Description     *string `json:"description,omitempty"`
	Condition       *string `json:"condition,omitempty"` // Textual form, re-parsed on update.
	Severity        *string `json:"severity,omitempty"`
	Enabled         *bool   `json:"enabled,omitempty"`
	CooldownSeconds *int    `json:"cooldown_seconds,omitempty"`
}

// AlertFilter narrows alert listings. Nil fields match everything.
type AlertFilter struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Severity *string `json:"severity,omitempty"`
	State    *string `json:"state,omitempty"`
}

// Matches reports whether the alert satisfies the filter.
func (f AlertFilter) Matches(a *Alert) bool {
	if f.Enabled != nil && a.Enabled != *f.Enabled {
		return false
	}
	if f.Severity != nil && a.Severity != *f.Severity {
		return false
	}
	if f.State != nil && a.State != *f.State {
		return false
	}
	return true
}

// AlertTransition is one append-only history record of an alert state
// change.
type AlertTransition struct {
	AlertID   string    `json:"alert_id" db:"alert_id"`
	AlertName string    `json:"alert_name" db:"alert_name"`
	From      string    `json:"from" db:"from_state"`
	To        string    `json:"to" db:"to_state"`
	Value     float64   `json:"value" db:"value"` // Observed value that drove the transition.
	At        time.Time `json:"at"`
}
