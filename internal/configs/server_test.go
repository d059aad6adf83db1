package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemon/pulsemon/internal/models"
)

func TestNewServerConfig(t *testing.T) {
	t.Run("first non-empty address wins", func(t *testing.T) {
		cfg, err := NewServerConfig(WithAddress("", "  ", ":9090", ":8080"))
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Address)
	})

	t.Run("no candidates leaves the zero value", func(t *testing.T) {
		cfg, err := NewServerConfig(WithAddress("", ""))
		require.NoError(t, err)
		assert.Empty(t, cfg.Address)
	})

	t.Run("database disabled when every DSN is empty", func(t *testing.T) {
		cfg, err := NewServerConfig(WithDatabase("pgx", "", " "))
		require.NoError(t, err)
		assert.Empty(t, cfg.DatabaseDriver)
		assert.Empty(t, cfg.DatabaseDSN)
	})

	t.Run("database enabled by the first non-empty DSN", func(t *testing.T) {
		cfg, err := NewServerConfig(WithDatabase("sqlite", "", "pulsemon.db"))
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.DatabaseDriver)
		assert.Equal(t, "pulsemon.db", cfg.DatabaseDSN)
	})

	t.Run("redis settings applied only with an address", func(t *testing.T) {
		cfg, err := NewServerConfig(WithRedis("secret", 2, ""))
		require.NoError(t, err)
		assert.Empty(t, cfg.RedisAddr)
		assert.Empty(t, cfg.RedisPassword)
		assert.Zero(t, cfg.RedisDB)

		cfg, err = NewServerConfig(WithRedis("secret", 2, "", "localhost:6379"))
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.Equal(t, "secret", cfg.RedisPassword)
		assert.Equal(t, 2, cfg.RedisDB)
	})

	t.Run("first positive value wins for numeric settings", func(t *testing.T) {
		cfg, err := NewServerConfig(
			WithHotCapacity(0, -1, 512, 1024),
			WithHotHorizonSeconds(0, 900),
			WithAlertIntervalSeconds(15),
			WithAlertLookbackSeconds(0, 0, 300),
			WithHealthIntervalSeconds(30),
			WithHealthTimeoutSeconds(5),
			WithCollectIntervalSeconds(10),
			WithRetentionHours(24),
			WithRetentionIntervalMinutes(0, 60),
		)
		require.NoError(t, err)
		assert.Equal(t, 512, cfg.HotCapacity)
		assert.Equal(t, 900, cfg.HotHorizonSeconds)
		assert.Equal(t, 15, cfg.AlertIntervalSeconds)
		assert.Equal(t, 300, cfg.AlertLookbackSeconds)
		assert.Equal(t, 30, cfg.HealthIntervalSeconds)
		assert.Equal(t, 5, cfg.HealthTimeoutSeconds)
		assert.Equal(t, 10, cfg.CollectIntervalSeconds)
		assert.Equal(t, 24, cfg.RetentionHours)
		assert.Equal(t, 60, cfg.RetentionIntervalMinutes)
	})

	t.Run("targets accumulate", func(t *testing.T) {
		cfg, err := NewServerConfig(
			WithTargets(models.HealthTarget{Name: "api", Endpoint: "http://localhost:8080/ping"}),
			WithTargets(models.HealthTarget{Name: "db", Endpoint: "http://localhost:5432"}),
		)
		require.NoError(t, err)
		require.Len(t, cfg.Targets, 2)
		assert.Equal(t, "api", cfg.Targets[0].Name)
		assert.Equal(t, "db", cfg.Targets[1].Name)
	})
}
