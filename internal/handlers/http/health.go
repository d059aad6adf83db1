package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/services"
)

// CheckRunner executes health checks on demand.
type CheckRunner interface {
	RunChecks(ctx context.Context, names ...string) ([]*models.HealthCheckResult, error)
	Latest() []*models.HealthCheckResult
}

// Overviewer builds the system overview snapshot.
type Overviewer interface {
	Overview(ctx context.Context, from, to time.Time) (*services.Overview, error)
}

// NewHealthRunHandler triggers checks for the named targets, or for all
// registered targets when the body is empty.
func NewHealthRunHandler(runner CheckRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Targets []string `json:"targets,omitempty"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid JSON body", http.StatusBadRequest)
				return
			}
		}

		results, err := runner.RunChecks(r.Context(), req.Targets...)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(results)
	}
}

// NewHealthStatusHandler reports the most recent check result per target.
func NewHealthStatusHandler(runner CheckRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runner.Latest())
	}
}

// NewOverviewHandler returns the aggregated system snapshot for the
// range given by the from and to query parameters. The range defaults
// to the last hour.
func NewOverviewHandler(overviewer Overviewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		to := time.Now().UTC()
		from := to.Add(-time.Hour)

		if v := r.URL.Query().Get("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				http.Error(w, "invalid from timestamp", http.StatusBadRequest)
				return
			}
			from = t
		}
		if v := r.URL.Query().Get("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				http.Error(w, "invalid to timestamp", http.StatusBadRequest)
				return
			}
			to = t
		}

		overview, err := overviewer.Overview(r.Context(), from, to)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(overview)
	}
}
