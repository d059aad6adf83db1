package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

// alertRow is the table shape of one alert. The parsed condition is
// stored as its three components so it is never re-parsed on load.
type alertRow struct {
	ID              string  `db:"id"`
	Name            string  `db:"name"`
	Description     string  `db:"description"`
	Metric          string  `db:"metric"`
	Operator        string  `db:"operator"`
	Threshold       float64 `db:"threshold"`
	Severity        string  `db:"severity"`
	Enabled         bool    `db:"enabled"`
	CooldownSeconds int     `db:"cooldown_seconds"`
	LastTriggered   *int64  `db:"last_triggered"`
	State           string  `db:"state"`
	CreatedAt       int64   `db:"created_at"`
	UpdatedAt       int64   `db:"updated_at"`
}

func toAlertRow(a *models.Alert) alertRow {
	row := alertRow{
		ID:              a.ID,
		Name:            a.Name,
		Description:     a.Description,
		Metric:          a.Condition.Metric,
		Operator:        a.Condition.Operator,
		Threshold:       a.Condition.Threshold,
		Severity:        a.Severity,
		Enabled:         a.Enabled,
		CooldownSeconds: a.CooldownSeconds,
		State:           a.State,
		CreatedAt:       a.CreatedAt.UnixNano(),
		UpdatedAt:       a.UpdatedAt.UnixNano(),
	}
	if a.LastTriggered != nil {
		ns := a.LastTriggered.UnixNano()
		row.LastTriggered = &ns
	}
	return row
}

func (row alertRow) toAlert() *models.Alert {
	a := &models.Alert{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Condition: models.Condition{
			Metric:    row.Metric,
			Operator:  row.Operator,
			Threshold: row.Threshold,
		},
		Severity:        row.Severity,
		Enabled:         row.Enabled,
		CooldownSeconds: row.CooldownSeconds,
		State:           row.State,
		CreatedAt:       time.Unix(0, row.CreatedAt).UTC(),
		UpdatedAt:       time.Unix(0, row.UpdatedAt).UTC(),
	}
	if row.LastTriggered != nil {
		ts := time.Unix(0, *row.LastTriggered).UTC()
		a.LastTriggered = &ts
	}
	return a
}

// AlertRepository provides durable alert storage plus the append-only
// transition history.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates an AlertRepository over the given handle.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Save inserts or fully replaces an alert.
func (r *AlertRepository) Save(ctx context.Context, alert *models.Alert) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO alerts (
			id, name, description, metric, operator, threshold,
			severity, enabled, cooldown_seconds, last_triggered, state,
			created_at, updated_at
		) VALUES (
			:id, :name, :description, :metric, :operator, :threshold,
			:severity, :enabled, :cooldown_seconds, :last_triggered, :state,
			:created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			metric = excluded.metric,
			operator = excluded.operator,
			threshold = excluded.threshold,
			severity = excluded.severity,
			enabled = excluded.enabled,
			cooldown_seconds = excluded.cooldown_seconds,
			last_triggered = excluded.last_triggered,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, toAlertRow(alert))
	if err != nil {
		return monerr.Wrap(monerr.KindStorage, "save alert", err)
	}
	return nil
}

// Get returns the alert by id, or nil when absent.
func (r *AlertRepository) Get(ctx context.Context, id string) (*models.Alert, error) {
	query := r.db.Rebind(`
		SELECT id, name, description, metric, operator, threshold,
		       severity, enabled, cooldown_seconds, last_triggered, state,
		       created_at, updated_at
		FROM alerts WHERE id = ?
	`)

	var row alertRow
	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, monerr.Wrap(monerr.KindStorage, "get alert", err)
	}
	return row.toAlert(), nil
}

// List returns alerts matching the filter, ordered by name.
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	var rows []alertRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, description, metric, operator, threshold,
		       severity, enabled, cooldown_seconds, last_triggered, state,
		       created_at, updated_at
		FROM alerts ORDER BY name ASC
	`)
	if err != nil {
		return nil, monerr.Wrap(monerr.KindStorage, "list alerts", err)
	}

	alerts := make([]*models.Alert, 0, len(rows))
	for _, row := range rows {
		a := row.toAlert()
		if filter.Matches(a) {
			alerts = append(alerts, a)
		}
	}
	return alerts, nil
}

// Delete removes the alert and reports whether it existed. The
// transition history is kept; it is append-only by design.
func (r *AlertRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := r.db.Rebind(`DELETE FROM alerts WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, monerr.Wrap(monerr.KindStorage, "delete alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, monerr.Wrap(monerr.KindStorage, "delete alert", err)
	}
	return n > 0, nil
}

// transitionRow is the table shape of one history record.
type transitionRow struct {
	AlertID   string  `db:"alert_id"`
	AlertName string  `db:"alert_name"`
	FromState string  `db:"from_state"`
	ToState   string  `db:"to_state"`
	Value     float64 `db:"value"`
	At        int64   `db:"at"`
}

// AppendHistory appends one transition record. Records are never
// updated or deleted.
func (r *AlertRepository) AppendHistory(ctx context.Context, t *models.AlertTransition) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO alert_history (alert_id, alert_name, from_state, to_state, value, at)
		VALUES (:alert_id, :alert_name, :from_state, :to_state, :value, :at)
	`, transitionRow{
		AlertID:   t.AlertID,
		AlertName: t.AlertName,
		FromState: t.From,
		ToState:   t.To,
		Value:     t.Value,
		At:        t.At.UnixNano(),
	})
	if err != nil {
		return monerr.Wrap(monerr.KindStorage, "append alert history", err)
	}
	return nil
}

// History returns the most recent transitions for an alert, newest
// first, bounded by limit.
func (r *AlertRepository) History(ctx context.Context, alertID string, limit int) ([]*models.AlertTransition, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.Rebind(`
		SELECT alert_id, alert_name, from_state, to_state, value, at
		FROM alert_history
		WHERE alert_id = ?
		ORDER BY at DESC
		LIMIT ?
	`)

	var rows []transitionRow
	err := r.db.SelectContext(ctx, &rows, query, alertID, limit)
	if err != nil {
		return nil, monerr.Wrap(monerr.KindStorage, "read alert history", err)
	}

	out := make([]*models.AlertTransition, 0, len(rows))
	for _, row := range rows {
		out = append(out, &models.AlertTransition{
			AlertID:   row.AlertID,
			AlertName: row.AlertName,
			From:      row.FromState,
			To:        row.ToState,
			Value:     row.Value,
			At:        time.Unix(0, row.At).UTC(),
		})
	}
	return out, nil
}
