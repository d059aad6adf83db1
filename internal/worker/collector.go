package worker

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/normalizer"
)

// DefaultCollectInterval is the host metrics cadence.
const DefaultCollectInterval = 15 * time.Second

// HostCollector publishes the server host's own vitals into the metric
// pipeline, so the monitoring server monitors itself like any other
// source.
type HostCollector struct {
	publish  func(ctx context.Context, samples []normalizer.RawSample) error
	interval time.Duration
	host     string
	logger   *zap.Logger
	now      func() time.Time
}

// NewHostCollector creates a HostCollector over a publish callback;
// non-positive interval falls back to DefaultCollectInterval.
func NewHostCollector(
	publish func(ctx context.Context, samples []normalizer.RawSample) error,
	interval time.Duration,
	logger *zap.Logger,
) *HostCollector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	host, _ := os.Hostname()
	return &HostCollector{
		publish:  publish,
		interval: interval,
		host:     host,
		logger:   logger,
		now:      time.Now,
	}
}

// Collect gathers one round of host vitals. Sources that fail to read
// are skipped, never fatal.
func (c *HostCollector) Collect() []normalizer.RawSample {
	now := c.now().UTC()
	tags := map[string]string{"host": c.host}
	var samples []normalizer.RawSample

	sample := func(name string, value float64) {
		samples = append(samples, normalizer.RawSample{
			Name:      name,
			Value:     value,
			Type:      models.Gauge,
			Tags:      tags,
			Timestamp: now,
		})
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		sample("system_cpu_usage_percent", percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		sample("system_memory_usage_percent", vm.UsedPercent)
		sample("system_memory_used_bytes", float64(vm.Used))
	}
	if avg, err := load.Avg(); err == nil {
		sample("system_load_1m", avg.Load1)
		sample("system_load_5m", avg.Load5)
	}
	return samples
}

// Tick collects and publishes one round.
func (c *HostCollector) Tick(ctx context.Context) error {
	samples := c.Collect()
	if len(samples) == 0 {
		return nil
	}
	return c.publish(ctx, samples)
}

// Start runs the collection loop until the context is done.
func (c *HostCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				c.logger.Warn("host metrics publish failed", zap.Error(err))
			}
		}
	}
}
