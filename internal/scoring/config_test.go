package scoring

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWith(t *testing.T) {
	base := DefaultConfig()

	next, err := base.With(map[string]float64{
		"cfit_penalty": 30,
		"grade_a":      95,
	})
	require.NoError(t, err)
	assert.Equal(t, 30.0, next.CFITPenalty)
	assert.Equal(t, 95.0, next.GradeA)

	// The receiver is a snapshot and never changes
	assert.Equal(t, 20.0, base.CFITPenalty)
	assert.Equal(t, 90.0, base.GradeA)
}

func TestConfigWithUnknownKey(t *testing.T) {
	base := DefaultConfig()
	got, err := base.With(map[string]float64{"cfit_penalty": 30, "no_such_key": 1})
	require.ErrorIs(t, err, ErrUnknownKey)
	assert.Contains(t, err.Error(), "no_such_key")
	assert.Equal(t, base, got)
}

func TestConfigKeys(t *testing.T) {
	keys := Keys()
	assert.True(t, sort.StringsAreSorted(keys))
	assert.Contains(t, keys, "descent_max")
	assert.Contains(t, keys, "stall_margin")

	values := DefaultConfig().Values()
	assert.Len(t, values, len(keys))
	for _, k := range keys {
		v, ok := DefaultConfig().Get(k)
		require.True(t, ok, k)
		assert.Equal(t, values[k], v, k)
	}

	_, ok := DefaultConfig().Get("missing")
	assert.False(t, ok)
}

func TestConfigMaxima(t *testing.T) {
	cfg := DefaultConfig()
	total := 0
	for _, c := range Categories {
		total += c.Max(cfg)
	}
	assert.Equal(t, 100, total)

	cfg, err := cfg.With(map[string]float64{"threshold_crossing_max": 15})
	require.NoError(t, err)
	assert.Equal(t, 15, ThresholdCrossing.Max(cfg))
}
