package services

import (
	"context"
	"time"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

// NamesLister enumerates the metric names a backend currently holds.
type NamesLister interface {
	Names(ctx context.Context) ([]string, error)
}

// HealthSnapshot exposes the latest probe state.
type HealthSnapshot interface {
	Latest() []*models.HealthCheckResult
	Healthy() bool
}

// AlertLister lists alerts matching a filter.
type AlertLister interface {
	List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
}

// Overview is the system-wide summary for a time window.
type Overview struct {
	From         time.Time                   `json:"from"`
	To           time.Time                   `json:"to"`
	TotalPoints  int                         `json:"total_points"`
	SeriesCount  int                         `json:"series_count"`
	MetricNames  []string                    `json:"metric_names"`
	Healthy      bool                        `json:"healthy"`
	Targets      []*models.HealthCheckResult `json:"targets"`
	FiringAlerts []*models.Alert             `json:"firing_alerts"`
}

// OverviewService composes metric, health and alert state into one
// summary view.
type OverviewService struct {
	names  NamesLister
	reader Reader
	health HealthSnapshot
	alerts AlertLister
}

// NewOverviewService creates an OverviewService.
func NewOverviewService(
	names NamesLister,
	reader Reader,
	health HealthSnapshot,
	alerts AlertLister,
) *OverviewService {
	return &OverviewService{
		names:  names,
		reader: reader,
		health: health,
		alerts: alerts,
	}
}

// Overview summarizes the window [from, to): point and series totals,
// per-target health, and the alerts currently firing.
func (svc *OverviewService) Overview(ctx context.Context, from, to time.Time) (*Overview, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return nil, monerr.New(monerr.KindValidation, "overview requires a bounded time range")
	}

	names, err := svc.names.Names(ctx)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		From:        from,
		To:          to,
		MetricNames: names,
	}

	for _, name := range names {
		points, err := svc.reader.Query(ctx, name, nil, from, to)
		if err != nil {
			return nil, err
		}
		ov.TotalPoints += len(points)

		series := make(map[string]struct{})
		for _, p := range points {
			series[models.TagsKey(p.Tags)] = struct{}{}
		}
		ov.SeriesCount += len(series)
	}

	ov.Healthy = svc.health.Healthy()
	ov.Targets = svc.health.Latest()

	firing := models.AlertStateFiring
	alerts, err := svc.alerts.List(ctx, models.AlertFilter{State: &firing})
	if err != nil {
		return nil, err
	}
	ov.FiringAlerts = alerts

	return ov, nil
}
