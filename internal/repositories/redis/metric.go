// Package redis implements the optional networked storage adapter used
// when several server instances share metric state. Points live in one
// hash per metric name so rewrites of the same (timestamp, tags)
// identity are last-write-wins by construction; the hash TTL is
// refreshed on every write.
package redis

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

// DefaultTTL bounds how long a metric hash outlives its last write.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "pulsemon:metric:"

// MetricRepository stores points in Redis hashes.
type MetricRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMetricRepository creates a repository over the given client;
// non-positive ttl falls back to DefaultTTL.
func NewMetricRepository(rdb *redis.Client, ttl time.Duration) *MetricRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MetricRepository{rdb: rdb, ttl: ttl}
}

// Name identifies the backend in logs.
func (r *MetricRepository) Name() string { return "redis" }

func metricKey(name string) string { return keyPrefix + name }

// field is the hash field identity of a point: timestamp plus the
// canonical tag rendering.
func field(p *models.MetricPoint) string {
	return strconv.FormatInt(p.Timestamp.UnixNano(), 10) + "|" + models.TagsKey(p.Tags)
}

// Write stores the point and refreshes the hash TTL.
func (r *MetricRepository) Write(ctx context.Context, point *models.MetricPoint) error {
	payload, err := json.Marshal(point)
	if err != nil {
		return monerr.Wrap(monerr.KindStorage, "encode metric point", err)
	}

	key := metricKey(point.Name)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, field(point), payload)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return monerr.Wrap(monerr.KindStorage, "write metric point to redis", err)
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
	entries, err := r.rdb.HGetAll(ctx, metricKey(name)).Result()
	if err != nil {
		return nil, monerr.Wrap(monerr.KindStorage, "read metric points from redis", err)
	}

	points := make([]*models.MetricPoint, 0, len(entries))
	for _, raw := range entries {
		var p models.MetricPoint
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, monerr.Wrap(monerr.KindStorage, "decode metric point", err)
		}
		if p.Timestamp.Before(from) || !p.Timestamp.Before(to) {
			continue
		}
		if !models.MatchTags(p.Tags, tags) {
			continue
		}
		point := p
		points = append(points, &point)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

// Prune deletes fields older than the boundary. Idempotent.
func (r *MetricRepository) Prune(ctx context.Context, olderThan time.Time) error {
	var cursor uint64
	boundary := olderThan.UnixNano()

	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return monerr.Wrap(monerr.KindStorage, "scan metric keys", err)
		}
		for _, key := range keys {
			fields, err := r.rdb.HKeys(ctx, key).Result()
			if err != nil {
				return monerr.Wrap(monerr.KindStorage, "list metric fields", err)
			}
			var stale []string
			for _, f := range fields {
				ns, _, ok := splitField(f)
				if ok && ns < boundary {
					stale = append(stale, f)
				}
			}
			if len(stale) > 0 {
				if err := r.rdb.HDel(ctx, key, stale...).Err(); err != nil {
					return monerr.Wrap(monerr.KindStorage, "prune metric fields", err)
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func splitField(f string) (ns int64, tags string, ok bool) {
	for i := 0; i < len(f); i++ {
		if f[i] == '|' {
			n, err := strconv.ParseInt(f[:i], 10, 64)
			if err != nil {
				return 0, "", false
			}
			return n, f[i+1:], true
		}
	}
	return 0, "", false
}
