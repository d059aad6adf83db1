package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
	"github.com/pulsemon/pulsemon/internal/normalizer"
)

// Publisher feeds probe outcomes back into the metric pipeline.
type Publisher interface {
	Ingest(ctx context.Context, samples []normalizer.RawSample) (*IngestResult, error)
}

// Probe defaults.
const (
	DefaultProbeTimeout = 10 * time.Second
	DefaultHistorySize  = 100
)

// HealthService probes registered dependencies and folds the outcomes
// into system-wide status. Probes for distinct targets run
// concurrently; a single target is never probed again while its
// previous probe is still in flight.
type HealthService struct {
	mu       sync.Mutex
	targets  map[string]models.HealthTarget
	inflight map[string]bool
	history  map[string][]*models.HealthCheckResult
	histCap  int

	client    *resty.Client
	timeout   time.Duration
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// HealthOpt configures a HealthService.
type HealthOpt func(*HealthService)

// WithProbeTimeout overrides the per-probe bound.
func WithProbeTimeout(d time.Duration) HealthOpt {
	return func(svc *HealthService) {
		if d > 0 {
			svc.timeout = d
		}
	}
}

// WithHistorySize overrides the per-target result retention.
func WithHistorySize(n int) HealthOpt {
	return func(svc *HealthService) {
		if n > 0 {
			svc.histCap = n
		}
	}
}

// WithHealthNow overrides the time source, for tests.
func WithHealthNow(now func() time.Time) HealthOpt {
	return func(svc *HealthService) {
		if now != nil {
			svc.now = now
		}
	}
}

// NewHealthService creates a HealthService over the given probe client.
// The publisher may be nil when probe outcomes should not feed the
// metric pipeline.
func NewHealthService(
	client *resty.Client,
	targets []models.HealthTarget,
	publisher Publisher,
	logger *zap.Logger,
	opts ...HealthOpt,
) *HealthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &HealthService{
		targets:   make(map[string]models.HealthTarget, len(targets)),
		inflight:  make(map[string]bool),
		history:   make(map[string][]*models.HealthCheckResult),
		histCap:   DefaultHistorySize,
		client:    client,
		timeout:   DefaultProbeTimeout,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, t := range targets {
		svc.targets[t.Name] = t
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register adds or replaces a probe target.
func (svc *HealthService) Register(target models.HealthTarget) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.targets[target.Name] = target
}

// Deregister removes a target; its history is dropped.
func (svc *HealthService) Deregister(name string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.targets, name)
	delete(svc.history, name)
}

// RunChecks probes the named targets, or every registered target when
// none are named. Targets whose previous probe is still in flight are
// skipped this round.
func (svc *HealthService) RunChecks(ctx context.Context, names ...string) ([]*models.HealthCheckResult, error) {
	targets, err := svc.claim(names)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return []*models.HealthCheckResult{}, nil
	}

	results := make([]*models.HealthCheckResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target models.HealthTarget) {
			defer wg.Done()
			defer svc.release(target.Name)
			results[i] = svc.probe(ctx, target)
		}(i, target)
	}
	wg.Wait()

	svc.record(results)
	svc.publish(ctx, results)

	sort.Slice(results, func(i, j int) bool {
		return results[i].Target < results[j].Target
	})
	return results, nil
}

// claim resolves the requested targets and marks them in flight.
func (svc *HealthService) claim(names []string) ([]models.HealthTarget, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	var requested []models.HealthTarget
	if len(names) == 0 {
		for _, t := range svc.targets {
			requested = append(requested, t)
		}
	} else {
		for _, name := range names {
			t, ok := svc.targets[name]
			if !ok {
				return nil, monerr.Newf(monerr.KindNotFound, "health target %q is not registered", name)
			}
			requested = append(requested, t)
		}
	}

	claimed := make([]models.HealthTarget, 0, len(requested))
	for _, t := range requested {
		if svc.inflight[t.Name] {
			continue
		}
		svc.inflight[t.Name] = true
		claimed = append(claimed, t)
	}
	return claimed, nil
}

func (svc *HealthService) release(name string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.inflight, name)
}

// probe issues one bounded request against the target endpoint.
func (svc *HealthService) probe(ctx context.Context, target models.HealthTarget) *models.HealthCheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	result := &models.HealthCheckResult{
		Target:    target.Name,
		Endpoint:  target.Endpoint,
		CheckedAt: svc.now().UTC(),
	}

	start := svc.now()
	resp, err := svc.client.R().SetContext(probeCtx).Get(target.Endpoint)
	result.ResponseTime = svc.now().Sub(start)

	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			result.Error = monerr.Newf(monerr.KindTimeout,
				"probe exceeded %s", svc.timeout).Error()
		} else {
			result.Error = err.Error()
		}
		return result
	}

	result.StatusCode = resp.StatusCode()
	if target.ExpectStatus != 0 {
		result.Healthy = resp.StatusCode() == target.ExpectStatus
	} else {
		result.Healthy = resp.StatusCode() >= 200 && resp.StatusCode() < 300
	}
	if !result.Healthy {
		result.Error = "unexpected status " + resp.Status()
	}
	return result
}

// record appends results to the bounded per-target history.
func (svc *HealthService) record(results []*models.HealthCheckResult) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, res := range results {
		h := append(svc.history[res.Target], res)
		if len(h) > svc.histCap {
			h = h[len(h)-svc.histCap:]
		}
		svc.history[res.Target] = h
	}
}

// publish feeds each outcome into the metric pipeline as an up gauge
// and a latency histogram sample.
func (svc *HealthService) publish(ctx context.Context, results []*models.HealthCheckResult) {
	if svc.publisher == nil {
		return
	}

	samples := make([]normalizer.RawSample, 0, len(results)*2)
	for _, res := range results {
		up := 0.0
		if res.Healthy {
			up = 1.0
		}
		tags := map[string]string{"target": res.Target}
		samples = append(samples,
			normalizer.RawSample{
				Name:      models.HealthUpMetric,
				Value:     up,
				Type:      models.Gauge,
				Tags:      tags,
				Timestamp: res.CheckedAt,
			},
			normalizer.RawSample{
				Name:      models.HealthDurationMetric,
				Value:     res.ResponseTime.Seconds(),
				Type:      models.Histogram,
				Tags:      tags,
				Timestamp: res.CheckedAt,
			},
		)
	}

	if _, err := svc.publisher.Ingest(ctx, samples); err != nil {
		svc.logger.Warn("publishing health metrics failed", zap.Error(err))
	}
}

// Latest returns the most recent result per target, sorted by target.
func (svc *HealthService) Latest() []*models.HealthCheckResult {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	out := make([]*models.HealthCheckResult, 0, len(svc.history))
	for _, h := range svc.history {
		if len(h) > 0 {
			out = append(out, h[len(h)-1])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Target < out[j].Target
	})
	return out
}

// History returns the retained results for one target, oldest first.
func (svc *HealthService) History(name string) []*models.HealthCheckResult {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	h := svc.history[name]
	out := make([]*models.HealthCheckResult, len(h))
	copy(out, h)
	return out
}

// Healthy reports the logical AND over every target's most recent
// result. No results yet means healthy.
func (svc *HealthService) Healthy() bool {
	for _, res := range svc.Latest() {
		if !res.Healthy {
			return false
		}
	}
	return true
}
