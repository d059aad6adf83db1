package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pulsemon/pulsemon/internal/export"
	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/normalizer"
	"github.com/pulsemon/pulsemon/internal/services"
)

// Ingester accepts raw metric samples.
type Ingester interface {
	Ingest(ctx context.Context, samples []normalizer.RawSample) (*services.IngestResult, error)
}

// Querier evaluates aggregation queries.
type Querier interface {
	Query(ctx context.Context, q models.Query) ([]models.ResultBucket, error)
}

// NewMetricIngestHandler accepts a JSON batch of raw samples and reports
// how many were accepted and rejected.
func NewMetricIngestHandler(ingester Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var samples []normalizer.RawSample
		if err := json.NewDecoder(r.Body).Decode(&samples); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		result, err := ingester.Ingest(r.Context(), samples)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if result.Accepted == 0 && result.Rejected > 0 {
			w.WriteHeader(http.StatusBadRequest)
		}
		json.NewEncoder(w).Encode(result)
	}
}

// NewMetricQueryHandler evaluates an aggregation query and returns the
// result buckets as JSON.
func NewMetricQueryHandler(querier Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q models.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		buckets, err := querier.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(buckets)
	}
}

var exportContentTypes = map[export.Format]string{
	export.FormatJSON:       "application/json",
	export.FormatCSV:        "text/csv",
	export.FormatPrometheus: "text/plain; version=0.0.4",
	export.FormatInflux:     "text/plain",
}

// NewMetricExportHandler evaluates a query and renders the result in the
// format named by the URL.
func NewMetricExportHandler(querier Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := export.Format(chi.URLParam(r, "format"))
		if !export.ValidFormat(format) {
			http.Error(w, "unsupported export format", http.StatusBadRequest)
			return
		}

		var q models.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		buckets, err := querier.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		body, err := export.Encode(format, q.Name, buckets)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", exportContentTypes[format])
		w.Write(body)
	}
}
