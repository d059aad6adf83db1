// Package db implements the durable store over SQL (embedded SQLite by
// default, Postgres for server deployments) using sqlx. It survives
// restarts and serves queries beyond the hot buffer's horizon.
package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

// metricRow is the table shape of one stored point. Timestamps are unix
// nanoseconds so the schema is identical across SQLite and Postgres.
type metricRow struct {
	Name  string  `db:"name"`
	Ts    int64   `db:"ts"`
	Type  string  `db:"type"`
	Value float64 `db:"value"`
	Tags  string  `db:"tags"` // Canonical JSON, "{}" when empty.
}

// MetricRepository provides durable access to metric points.
type MetricRepository struct {
	db *sqlx.DB
}

// NewMetricRepository creates a MetricRepository over the given handle.
func NewMetricRepository(db *sqlx.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Name identifies the backend in logs.
func (r *MetricRepository) Name() string { return "db" }

// Write upserts the point keyed by (name, ts, tags); a rewrite of the
// same key makes the later value win.
func (r *MetricRepository) Write(ctx context.Context, point *models.MetricPoint) error {
	tags, err := json.Marshal(tagsOrEmpty(point.Tags))
	if err != nil {
		return monerr.Wrap(monerr.KindStorage, "encode tags", err)
	}

	row := metricRow{
		Name:  point.Name,
		Ts:    point.Timestamp.UnixNano(),
		Type:  point.Type,
		Value: point.Value,
		Tags:  string(tags),
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO metric_points (name, ts, type, value, tags)
		VALUES (:name, :ts, :type, :value, :tags)
		ON CONFLICT (name, ts, tags) DO UPDATE
		SET value = excluded.value, type = excluded.type
	`, row)
	if err != nil {
		return monerr.Wrap(monerr.KindStorage, "write metric point", err)
	}
	return nil
}

// Query returns stored points for name within [from, to) matching all
// filter tags, ordered by ascending timestamp.
func (r *MetricRepository) Query(
	ctx context.Context,
	name string,
	tags map[string]string,
	from, to time.Time,
) ([]*models.MetricPoint, error) {
	query := r.db.Rebind(`
		SELECT name, ts, type, value, tags
		FROM metric_points
		WHERE name = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`)

	var rows []metricRow
	err := r.db.SelectContext(ctx, &rows, query, name, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, monerr.Wrap(monerr.KindStorage, "query metric points", err)
	}

	points := make([]*models.MetricPoint, 0, len(rows))
	for _, row := range rows {
		var rowTags map[string]string
		if err := json.Unmarshal([]byte(row.Tags), &rowTags); err != nil {
			return nil, monerr.Wrap(monerr.KindStorage, "decode tags", err)
		}
		if len(rowTags) == 0 {
			rowTags = nil
		}
		if !models.MatchTags(rowTags, tags) {
			continue
		}
		points = append(points, &models.MetricPoint{
			Name:      row.Name,
			Value:     row.Value,
			Type:      row.Type,
			Tags:      rowTags,
			Timestamp: time.Unix(0, row.Ts).UTC(),
		})
	}
	return points, nil
}

// Prune removes points older than the boundary. Idempotent.
func (r *MetricRepository) Prune(ctx context.Context, olderThan time.Time) error {
	query := r.db.Rebind(`DELETE FROM metric_points WHERE ts < ?`)
	if _, err := r.db.ExecContext(ctx, query, olderThan.UnixNano()); err != nil {
		return monerr.Wrap(monerr.KindStorage, "prune metric points", err)
	}
	return nil
}

func tagsOrEmpty(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}
