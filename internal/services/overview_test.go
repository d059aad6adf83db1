package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

type fakeNames struct{ names []string }

func (f *fakeNames) Names(ctx context.Context) ([]string, error) { return f.names, nil }

type fakeHealth struct {
	healthy bool
	latest  []*models.HealthCheckResult
}

func (f *fakeHealth) Healthy() bool                       { return f.healthy }
func (f *fakeHealth) Latest() []*models.HealthCheckResult { return f.latest }

type fakeAlertLister struct{ alerts []*models.Alert }

func (f *fakeAlertLister) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	out := make([]*models.Alert, 0, len(f.alerts))
	for _, a := range f.alerts {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func TestOverviewService(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	reader := &fakeReader{points: []*models.MetricPoint{
		{Name: "cpu_usage", Value: 1, Tags: map[string]string{"host": "web-1"}, Timestamp: base},
		{Name: "cpu_usage", Value: 2, Tags: map[string]string{"host": "web-1"}, Timestamp: base.Add(time.Minute)},
		{Name: "cpu_usage", Value: 3, Tags: map[string]string{"host": "web-2"}, Timestamp: base},
		{Name: "mem_usage", Value: 4, Timestamp: base},
	}}
	health := &fakeHealth{
		healthy: true,
		latest: []*models.HealthCheckResult{
			{Target: "api", Healthy: true},
		},
	}
	alerts := &fakeAlertLister{alerts: []*models.Alert{
		{ID: "a1", Name: "cpu high", State: models.AlertStateFiring},
		{ID: "a2", Name: "mem high", State: models.AlertStatePending},
	}}

	svc := NewOverviewService(&fakeNames{names: []string{"cpu_usage", "mem_usage"}}, reader, health, alerts)

	ov, err := svc.Overview(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 4, ov.TotalPoints)
	assert.Equal(t, 3, ov.SeriesCount)
	assert.Equal(t, []string{"cpu_usage", "mem_usage"}, ov.MetricNames)
	assert.True(t, ov.Healthy)
	require.Len(t, ov.Targets, 1)
	require.Len(t, ov.FiringAlerts, 1)
	assert.Equal(t, "a1", ov.FiringAlerts[0].ID)

	t.Run("invalid range", func(t *testing.T) {
		_, err := svc.Overview(ctx, base.Add(time.Hour), base)
		assert.True(t, monerr.IsKind(err, monerr.KindValidation))

		_, err = svc.Overview(ctx, time.Time{}, base)
		assert.True(t, monerr.IsKind(err, monerr.KindValidation))
	})
}
