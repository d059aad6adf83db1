package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
	"github.com/pulsemon/pulsemon/internal/services"
)

type fakeCheckRunner struct {
	results  []*models.HealthCheckResult
	latest   []*models.HealthCheckResult
	err      error
	gotNames []string
}

func (f *fakeCheckRunner) RunChecks(ctx context.Context, names ...string) ([]*models.HealthCheckResult, error) {
	f.gotNames = names
	return f.results, f.err
}

func (f *fakeCheckRunner) Latest() []*models.HealthCheckResult {
	return f.latest
}

type fakeOverviewer struct {
	overview *services.Overview
	err      error
	gotFrom  time.Time
	gotTo    time.Time
}

func (f *fakeOverviewer) Overview(ctx context.Context, from, to time.Time) (*services.Overview, error) {
	f.gotFrom = from
	f.gotTo = to
	return f.overview, f.err
}

func TestHealthRunHandler(t *testing.T) {
	t.Run("runs all targets on empty body", func(t *testing.T) {
		runner := &fakeCheckRunner{results: []*models.HealthCheckResult{
			{Target: "api", Healthy: true, StatusCode: 200},
		}}
		handler := NewHealthRunHandler(runner)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/health/run", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, runner.gotNames)

		var got []*models.HealthCheckResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "api", got[0].Target)
	})

	t.Run("runs only the named targets", func(t *testing.T) {
		runner := &fakeCheckRunner{}
		handler := NewHealthRunHandler(runner)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/health/run", strings.NewReader(`{"targets":["api","db"]}`))
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"api", "db"}, runner.gotNames)
	})

	t.Run("unknown target maps to 404", func(t *testing.T) {
		runner := &fakeCheckRunner{err: monerr.New(monerr.KindNotFound, "unknown check")}
		handler := NewHealthRunHandler(runner)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/health/run", strings.NewReader(`{"targets":["ghost"]}`))
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthStatusHandler(t *testing.T) {
	runner := &fakeCheckRunner{latest: []*models.HealthCheckResult{
		{Target: "api", Healthy: true},
		{Target: "db", Healthy: false, Error: "connection refused"},
	}}
	handler := NewHealthStatusHandler(runner)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []*models.HealthCheckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.False(t, got[1].Healthy)
}

func TestOverviewHandler(t *testing.T) {
	t.Run("explicit range", func(t *testing.T) {
		overviewer := &fakeOverviewer{overview: &services.Overview{TotalPoints: 4, Healthy: true}}
		handler := NewOverviewHandler(overviewer)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/overview?from=2026-08-01T11:00:00Z&to=2026-08-01T12:00:00Z", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC), overviewer.gotFrom)
		assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), overviewer.gotTo)

		var got services.Overview
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 4, got.TotalPoints)
	})

	t.Run("defaults to the last hour", func(t *testing.T) {
		overviewer := &fakeOverviewer{overview: &services.Overview{}}
		handler := NewOverviewHandler(overviewer)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/overview", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, time.Hour, overviewer.gotTo.Sub(overviewer.gotFrom))
	})

	t.Run("bad timestamp", func(t *testing.T) {
		handler := NewOverviewHandler(&fakeOverviewer{})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/overview?from=yesterday", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
