// Package configs holds the server configuration and the option
// constructors for its external resources.
package configs

import (
	"strings"

	"github.com/pulsemon/pulsemon/internal/models"
)

// ServerConfig holds the resolved settings of the monitoring server.
type ServerConfig struct {
	Address                  string                `json:"address"`                    // HTTP listen address.
	DatabaseDriver           string                `json:"database_driver"`            // "sqlite" or "pgx".
	DatabaseDSN              string                `json:"database_dsn"`               // Durable store DSN; empty disables it.
	RedisAddr                string                `json:"redis_addr"`                 // Redis address; empty disables the adapter.
	RedisPassword            string                `json:"redis_password"`
	RedisDB                  int                   `json:"redis_db"`
	HotCapacity              int                   `json:"hot_capacity"`               // Points retained per metric name.
	HotHorizonSeconds        int                   `json:"hot_horizon_seconds"`        // How far back the hot buffer is canonical.
	AlertIntervalSeconds     int                   `json:"alert_interval_seconds"`
	AlertLookbackSeconds     int                   `json:"alert_lookback_seconds"`
	HealthIntervalSeconds    int                   `json:"health_interval_seconds"`
	HealthTimeoutSeconds     int                   `json:"health_timeout_seconds"`
	CollectIntervalSeconds   int                   `json:"collect_interval_seconds"`
	RetentionHours           int                   `json:"retention_hours"`
	RetentionIntervalMinutes int                   `json:"retention_interval_minutes"`
	Targets                  []models.HealthTarget `json:"targets"` // Probe targets, supplied by configuration.
}

// ServerConfigOpt applies one option to a ServerConfig.
type ServerConfigOpt func(*ServerConfig) error

// NewServerConfig builds a ServerConfig by applying the given options.
func NewServerConfig(opts ...ServerConfigOpt) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithAddress sets the listen address to the first non-empty value.
func WithAddress(addrs ...string) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, addr := range addrs {
			if strings.TrimSpace(addr) != "" {
				cfg.Address = addr
				break
			}
		}
		return nil
	}
}

// WithDatabase sets the durable store driver and DSN to the first
// non-empty DSN.
func WithDatabase(driver string, dsns ...string) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, dsn := range dsns {
			if strings.TrimSpace(dsn) != "" {
				cfg.DatabaseDriver = driver
				cfg.DatabaseDSN = dsn
				break
			}
		}
		return nil
	}
}

// WithRedis sets the redis connection settings to the first non-empty
// address.
func WithRedis(password string, db int, addrs ...string) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, addr := range addrs {
			if strings.TrimSpace(addr) != "" {
				cfg.RedisAddr = addr
				cfg.RedisPassword = password
				cfg.RedisDB = db
				break
			}
		}
		return nil
	}
}

// WithHotCapacity sets the per-name hot buffer capacity to the first
// positive value.
func WithHotCapacity(capacities ...int) ServerConfigOpt {
	return setFirstPositive(func(cfg *ServerConfig, v int) { cfg.HotCapacity = v }, capacities)
}

// WithHotHorizonSeconds sets the hot buffer horizon to the first
// positive value.
func WithHotHorizonSeconds(seconds ...int) ServerConfigOpt {
	return setFirstPositive(func(cfg *ServerConfig, v int) { cfg.HotHorizonSeconds = v }, seconds)
}

// WithAlertIntervalSeconds sets the alert evaluation cadence to the
// first positive value.
func WithAlertIntervalSeconds(seconds ...int) ServerConfigOpt {
	return setFirstPositive(func(cfg *ServerConfig, v int) { cfg.AlertIntervalSeconds = v }, seconds)
}

// WithAlertLookbackSeconds sets the alert lookback window to the first
// positive value.
func WithAlertLookbackSeconds(seconds ...int) ServerConfigOpt {
	return setFirstPositive(func(cfg *ServerConfig, v int) { cfg.AlertLookbackSeconds = v }, seconds)
}

// WithHealthIntervalSeconds sets the probe cadence to the first
// positive value.
func WithHealthIntervalSeconds(seconds ...int) ServerConfigOpt {
	return setFirstPositive(func(cfg *ServerConfig, v int) { cfg.HealthIntervalSeconds = v }, seconds)
}

// WithHealthTimeoutSeconds sets the per-probe bound to the first
// positive value.
func WithHealthTimeoutSeconds(seconds ...int) ServerConfigOpt {
	return setFirstPositive(func(cfg *ServerConfig, v int) { cfg.HealthTimeoutSeconds = v }, seconds)
}

// WithCollectIntervalSeconds sets the host metrics cadence to the first
// positive value.
func WithCollectIntervalSeconds(seconds ...int) ServerConfigOpt {
	return setFirstPositive(func(cfg *ServerConfig, v int) { cfg.CollectIntervalSeconds = v }, seconds)
}

// WithRetentionHours sets the retention boundary to the first positive
// value.
func WithRetentionHours(hours ...int) ServerConfigOpt {
	return setFirstPositive(func(cfg *ServerConfig, v int) { cfg.RetentionHours = v }, hours)
}

// WithRetentionIntervalMinutes sets the prune cadence to the first
// positive value.
func WithRetentionIntervalMinutes(minutes ...int) ServerConfigOpt {
	return setFirstPositive(func(cfg *ServerConfig, v int) { cfg.RetentionIntervalMinutes = v }, minutes)
}

// WithTargets appends probe targets.
func WithTargets(targets ...models.HealthTarget) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		cfg.Targets = append(cfg.Targets, targets...)
		return nil
	}
}

func setFirstPositive(set func(*ServerConfig, int), values []int) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, v := range values {
			if v > 0 {
				set(cfg, v)
				break
			}
		}
		return nil
	}
}
