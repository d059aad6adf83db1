package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/services"
)

// AlertCreator registers new alert rules.
type AlertCreator interface {
	Create(ctx context.Context, spec services.AlertSpec) (*models.Alert, error)
}

// AlertGetter retrieves a single alert.
type AlertGetter interface {
	Get(ctx context.Context, id string) (*models.Alert, error)
}

// AlertLister lists alerts matching a filter.
type AlertLister interface {
	List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
}

// AlertUpdater applies partial updates to an alert.
type AlertUpdater interface {
	Update(ctx context.Context, id string, patch models.AlertPatch) (*models.Alert, error)
}

// AlertDeleter removes an alert.
type AlertDeleter interface {
	Delete(ctx context.Context, id string) error
}

// AlertHistorian lists recorded state transitions for an alert.
type AlertHistorian interface {
	History(ctx context.Context, id string, limit int) ([]*models.AlertTransition, error)
}

// NewAlertCreateHandler registers a new alert rule.
func NewAlertCreateHandler(creator AlertCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec services.AlertSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		alert, err := creator.Create(r.Context(), spec)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(alert)
	}
}

// NewAlertGetHandler returns one alert by ID.
func NewAlertGetHandler(getter AlertGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alert, err := getter.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alert)
	}
}

// NewAlertListHandler lists alerts, optionally filtered by the enabled,
// severity and state query parameters.
func NewAlertListHandler(lister AlertLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter models.AlertFilter
		if v := r.URL.Query().Get("enabled"); v != "" {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "invalid enabled filter", http.StatusBadRequest)
				return
			}
			filter.Enabled = &enabled
		}
		if v := r.URL.Query().Get("severity"); v != "" {
			filter.Severity = &v
		}
		if v := r.URL.Query().Get("state"); v != "" {
			filter.State = &v
		}

		alerts, err := lister.List(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alerts)
	}
}

// NewAlertUpdateHandler applies a partial update to an alert.
func NewAlertUpdateHandler(updater AlertUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch models.AlertPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		alert, err := updater.Update(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alert)
	}
}

// NewAlertDeleteHandler removes an alert.
func NewAlertDeleteHandler(deleter AlertDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deleter.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// NewAlertHistoryHandler lists recorded transitions for an alert, most
// recent first. The limit query parameter bounds the result.
func NewAlertHistoryHandler(historian AlertHistorian) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		transitions, err := historian.History(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transitions)
	}
}
