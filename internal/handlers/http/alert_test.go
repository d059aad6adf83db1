package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
	"github.com/pulsemon/pulsemon/internal/services"
)

// fakeAlertService implements every alert handler interface.
type fakeAlertService struct {
	alert       *models.Alert
	alerts      []*models.Alert
	transitions []*models.AlertTransition
	err         error

	gotID     string
	gotSpec   services.AlertSpec
	gotPatch  models.AlertPatch
	gotFilter models.AlertFilter
	gotLimit  int
}

func (f *fakeAlertService) Create(ctx context.Context, spec services.AlertSpec) (*models.Alert, error) {
	f.gotSpec = spec
	return f.alert, f.err
}

func (f *fakeAlertService) Get(ctx context.Context, id string) (*models.Alert, error) {
	f.gotID = id
	return f.alert, f.err
}

func (f *fakeAlertService) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	f.gotFilter = filter
	return f.alerts, f.err
}

func (f *fakeAlertService) Update(ctx context.Context, id string, patch models.AlertPatch) (*models.Alert, error) {
	f.gotID = id
	f.gotPatch = patch
	return f.alert, f.err
}

func (f *fakeAlertService) Delete(ctx context.Context, id string) error {
	f.gotID = id
	return f.err
}

func (f *fakeAlertService) History(ctx context.Context, id string, limit int) ([]*models.AlertTransition, error) {
	f.gotID = id
	f.gotLimit = limit
	return f.transitions, f.err
}

func alertRouter(svc *fakeAlertService) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/v1/alerts", func(r chi.Router) {
		r.Post("/", NewAlertCreateHandler(svc))
		r.Get("/", NewAlertListHandler(svc))
		r.Get("/{id}", NewAlertGetHandler(svc))
		r.Patch("/{id}", NewAlertUpdateHandler(svc))
		r.Delete("/{id}", NewAlertDeleteHandler(svc))
		r.Get("/{id}/history", NewAlertHistoryHandler(svc))
	})
	return r
}

func sampleAlert() *models.Alert {
	cond, _ := models.ParseCondition("cpu_usage > 80")
	return &models.Alert{
		ID:              "a1",
		Name:            "cpu high",
		Condition:       cond,
		Severity:        "critical",
		Enabled:         true,
		CooldownSeconds: 300,
		State:           models.AlertStatePending,
	}
}

func TestAlertCreateHandler(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &fakeAlertService{alert: sampleAlert()}
		router := alertRouter(svc)

		body := `{"name":"cpu high","condition":"cpu_usage > 80","severity":"critical"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "cpu high", svc.gotSpec.Name)
		assert.Equal(t, "cpu_usage > 80", svc.gotSpec.Condition)

		var got models.Alert
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "a1", got.ID)
	})

	t.Run("validation error", func(t *testing.T) {
		svc := &fakeAlertService{err: monerr.New(monerr.KindValidation, "unparseable condition")}
		router := alertRouter(svc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(`{"name":"x","condition":"nope"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		router := alertRouter(&fakeAlertService{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAlertGetHandler(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := &fakeAlertService{alert: sampleAlert()}
		router := alertRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/a1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "a1", svc.gotID)
	})

	t.Run("missing maps to 404", func(t *testing.T) {
		svc := &fakeAlertService{err: monerr.New(monerr.KindNotFound, "no such alert")}
		router := alertRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/nope", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAlertListHandler(t *testing.T) {
	t.Run("filters from query parameters", func(t *testing.T) {
		svc := &fakeAlertService{alerts: []*models.Alert{sampleAlert()}}
		router := alertRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?enabled=true&severity=critical", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, svc.gotFilter.Enabled)
		assert.True(t, *svc.gotFilter.Enabled)
		require.NotNil(t, svc.gotFilter.Severity)
		assert.Equal(t, "critical", *svc.gotFilter.Severity)
		assert.Nil(t, svc.gotFilter.State)
	})

	t.Run("bad enabled filter", func(t *testing.T) {
		router := alertRouter(&fakeAlertService{})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?enabled=maybe", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAlertUpdateHandler(t *testing.T) {
	svc := &fakeAlertService{alert: sampleAlert()}
	router := alertRouter(svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/alerts/a1", strings.NewReader(`{"enabled":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a1", svc.gotID)
	require.NotNil(t, svc.gotPatch.Enabled)
	assert.False(t, *svc.gotPatch.Enabled)
}

func TestAlertDeleteHandler(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		svc := &fakeAlertService{}
		router := alertRouter(svc)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/alerts/a1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "a1", svc.gotID)
	})

	t.Run("missing maps to 404", func(t *testing.T) {
		svc := &fakeAlertService{err: monerr.New(monerr.KindNotFound, "no such alert")}
		router := alertRouter(svc)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/alerts/nope", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAlertHistoryHandler(t *testing.T) {
	t.Run("passes limit through", func(t *testing.T) {
		svc := &fakeAlertService{transitions: []*models.AlertTransition{
			{AlertID: "a1", From: models.AlertStatePending, To: models.AlertStateFiring, Value: 95},
		}}
		router := alertRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/a1/history?limit=5", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "a1", svc.gotID)
		assert.Equal(t, 5, svc.gotLimit)

		var got []*models.AlertTransition
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, models.AlertStateFiring, got[0].To)
	})

	t.Run("negative limit", func(t *testing.T) {
		router := alertRouter(&fakeAlertService{})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/a1/history?limit=-1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
