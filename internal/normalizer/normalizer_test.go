package normalizer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	n := New(WithNow(func() time.Time { return now }))

	t.Run("defaults type to gauge and timestamp to now", func(t *testing.T) {
		point, err := n.Normalize(RawSample{Name: "cpu_usage", Value: 42.5})
		require.NoError(t, err)
		assert.Equal(t, "cpu_usage", point.Name)
		assert.Equal(t, models.Gauge, point.Type)
		assert.Equal(t, 42.5, point.Value)
		assert.Equal(t, now, point.Timestamp)
		assert.Nil(t, point.Tags)
	})

	t.Run("keeps explicit type and timestamp", func(t *testing.T) {
		ts := time.Date(2026, 7, 1, 9, 30, 0, 0, time.FixedZone("MSK", 3*3600))
		point, err := n.Normalize(RawSample{
			Name:      "requests_total",
			Value:     10,
			Type:      models.Counter,
			Timestamp: ts,
		})
		require.NoError(t, err)
		assert.Equal(t, models.Counter, point.Type)
		assert.Equal(t, ts.UTC(), point.Timestamp)
		assert.Equal(t, time.UTC, point.Timestamp.Location())
	})

	t.Run("copies tags", func(t *testing.T) {
		tags := map[string]string{"host": "web-1"}
		point, err := n.Normalize(RawSample{Name: "cpu_usage", Value: 1, Tags: tags})
		require.NoError(t, err)
		assert.Equal(t, tags, point.Tags)

		tags["host"] = "web-2"
		assert.Equal(t, "web-1", point.Tags["host"])
	})

	tests := []struct {
		name string
		raw  RawSample
	}{
		{"empty name", RawSample{Name: "", Value: 1}},
		{"blank name", RawSample{Name: "   ", Value: 1}},
		{"NaN value", RawSample{Name: "m", Value: math.NaN()}},
		{"positive infinity", RawSample{Name: "m", Value: math.Inf(1)}},
		{"negative infinity", RawSample{Name: "m", Value: math.Inf(-1)}},
		{"unknown type", RawSample{Name: "m", Value: 1, Type: "timer"}},
		{"empty tag key", RawSample{Name: "m", Value: 1, Tags: map[string]string{" ": "x"}}},
	}

	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			point, err := n.Normalize(tt.raw)
			assert.Nil(t, point)
			assert.True(t, monerr.IsKind(err, monerr.KindValidation))
		})
	}
}

func TestNormalizeMaxTags(t *testing.T) {
	n := New(WithMaxTags(2))

	ok := map[string]string{"a": "1", "b": "2"}
	_, err := n.Normalize(RawSample{Name: "m", Value: 1, Tags: ok})
	assert.NoError(t, err)

	over := map[string]string{"a": "1", "b": "2", "c": "3"}
	_, err = n.Normalize(RawSample{Name: "m", Value: 1, Tags: over})
	assert.True(t, monerr.IsKind(err, monerr.KindValidation))
}
