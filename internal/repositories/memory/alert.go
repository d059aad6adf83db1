package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pulsemon/pulsemon/internal/models"
)

// AlertRepository keeps alerts and their transition history in memory.
// The history slice is append-only.
type AlertRepository struct {
	mu      sync.RWMutex
	alerts  map[string]models.Alert
	history []models.AlertTransition
}

// NewAlertRepository creates an empty in-memory alert repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{alerts: make(map[string]models.Alert)}
}

// Save inserts or replaces an alert.
func (r *AlertRepository) Save(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.ID] = *alert
	return nil
}

// Get returns the alert by id, or nil when absent.
func (r *AlertRepository) Get(ctx context.Context, id string) (*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.alerts[id]; ok {
		alertCopy := a
		return &alertCopy, nil
	}
	return nil, nil
}

// List returns alerts matching the filter, ordered by name.
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alerts := make([]*models.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		alertCopy := a
		if filter.Matches(&alertCopy) {
			alerts = append(alerts, &alertCopy)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].Name < alerts[j].Name
	})
	return alerts, nil
}

// Delete removes the alert and reports whether it existed. History
// records are retained.
func (r *AlertRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[id]; !ok {
		return false, nil
	}
	delete(r.alerts, id)
	return true, nil
}

// AppendHistory appends one transition record.
func (r *AlertRepository) AppendHistory(ctx context.Context, t *models.AlertTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, *t)
	return nil
}

// History returns the most recent transitions for an alert, newest
// first, bounded by limit.
func (r *AlertRepository) History(ctx context.Context, alertID string, limit int) ([]*models.AlertTransition, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.AlertTransition, 0, limit)
	for i := len(r.history) - 1; i >= 0 && len(out) < limit; i-- {
		if r.history[i].AlertID != alertID {
			continue
		}
		t := r.history[i]
		out = append(out, &t)
	}
	return out, nil
}
