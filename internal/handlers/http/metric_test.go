package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
	"github.com/pulsemon/pulsemon/internal/normalizer"
	"github.com/pulsemon/pulsemon/internal/services"
)

// fakeIngester returns a canned ingest result.
type fakeIngester struct {
	result  *services.IngestResult
	err     error
	samples []normalizer.RawSample
}

func (f *fakeIngester) Ingest(ctx context.Context, samples []normalizer.RawSample) (*services.IngestResult, error) {
	f.samples = samples
	return f.result, f.err
}

// fakeQuerier returns canned buckets.
type fakeQuerier struct {
	buckets []models.ResultBucket
	err     error
}

func (f *fakeQuerier) Query(ctx context.Context, q models.Query) ([]models.ResultBucket, error) {
	return f.buckets, f.err
}

func TestMetricIngestHandler(t *testing.T) {
	t.Run("accepts a batch", func(t *testing.T) {
		ingester := &fakeIngester{result: &services.IngestResult{Accepted: 2}}
		handler := NewMetricIngestHandler(ingester)

		body := `[{"name":"cpu_usage","value":42.5},{"name":"mem_usage","value":10,"type":"counter"}]`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/metrics", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, ingester.samples, 2)
		assert.Equal(t, "cpu_usage", ingester.samples[0].Name)

		var result services.IngestResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, 2, result.Accepted)
	})

	t.Run("fully rejected batch is a bad request", func(t *testing.T) {
		ingester := &fakeIngester{result: &services.IngestResult{
			Rejected: 1,
			Errors:   []services.PointError{{Index: 0, Error: "validation: metric name must not be empty"}},
		}}
		handler := NewMetricIngestHandler(ingester)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/metrics", strings.NewReader(`[{"name":"","value":1}]`))
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		handler := NewMetricIngestHandler(&fakeIngester{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/metrics", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMetricQueryHandler(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns buckets", func(t *testing.T) {
		querier := &fakeQuerier{buckets: []models.ResultBucket{{Value: 25, Timestamp: ts}}}
		handler := NewMetricQueryHandler(querier)

		body := `{"name":"cpu_usage","from":"2026-08-01T11:00:00Z","to":"2026-08-01T12:00:00Z","aggregation":"avg"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var buckets []models.ResultBucket
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &buckets))
		require.Len(t, buckets, 1)
		assert.Equal(t, 25.0, buckets[0].Value)
	})

	t.Run("validation error maps to 400", func(t *testing.T) {
		querier := &fakeQuerier{err: monerr.New(monerr.KindValidation, "bad query")}
		handler := NewMetricQueryHandler(querier)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("storage error maps to 500", func(t *testing.T) {
		querier := &fakeQuerier{err: monerr.New(monerr.KindStorage, "backend down")}
		handler := NewMetricQueryHandler(querier)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestMetricExportHandler(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	querier := &fakeQuerier{buckets: []models.ResultBucket{{Value: 25, Timestamp: ts}}}

	router := chi.NewRouter()
	router.Post("/api/v1/export/{format}", NewMetricExportHandler(querier))

	body := `{"name":"cpu_usage","from":"2026-08-01T11:00:00Z","to":"2026-08-01T12:00:00Z","aggregation":"avg"}`

	t.Run("prometheus", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/export/prometheus", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, rec.Body.String(), "cpu_usage 25 ")
	})

	t.Run("csv", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/export/csv", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "timestamp,value"))
	})

	t.Run("unknown format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/export/xml", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
