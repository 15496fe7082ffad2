package batch

import (
	"context"
	"fmt"
	"sort"

	"github.com/yegors/glidepath/internal/approach"
	"github.com/yegors/glidepath/internal/scoring"
	"github.com/yegors/glidepath/internal/segment"
	"github.com/yegors/glidepath/pkg/logger"
)

// Config represents the batch scorer configuration
type Config struct {
	Workers              int     `toml:"workers"`
	Days                 int     `toml:"days"`
	Limit                int     `toml:"limit"`
	MaxMinAltitude       float64 `toml:"min_altitude"` // a flight must descend below this
	MinPoints            int     `toml:"min_points"`
	GAOnly               bool    `toml:"ga_only"`
	MinLegPoints         int     `toml:"min_leg_points"`
	HeadingFilter        float64 `toml:"heading_filter"`
	TruncateNM           float64 `toml:"truncate_nm"`
	RunwayCacheSize      int     `toml:"runway_cache_size"`
	RunwayCacheTTLMinute int     `toml:"runway_cache_ttl_minutes"`

	Segmenter segment.Thresholds `toml:"-"`
}

// DefaultConfig returns the default batch configuration
func DefaultConfig() Config {
	return Config{
		Workers:              4,
		Days:                 30,
		Limit:                1000,
		MaxMinAltitude:       2000,
		MinPoints:            10,
		GAOnly:               true,
		MinLegPoints:         5,
		HeadingFilter:        approach.DefaultHeadingFilter,
		TruncateNM:           approach.DefaultTruncateNM,
		RunwayCacheSize:      256,
		RunwayCacheTTLMinute: 60,
		Segmenter:            segment.DefaultThresholds(),
	}
}

// Validate validates the batch configuration
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if c.Days <= 0 {
		return fmt.Errorf("days must be greater than 0")
	}
	if c.MinLegPoints <= 0 {
		return fmt.Errorf("min_leg_points must be greater than 0")
	}
	if c.HeadingFilter <= 0 || c.HeadingFilter > 180 {
		return fmt.Errorf("heading_filter must be in (0, 180]")
	}
	if c.TruncateNM <= 0 {
		return fmt.Errorf("truncate_nm must be greater than 0")
	}
	return nil
}

// OverrideSource supplies scoring overrides stored next to the data
type OverrideSource interface {
	ScoringOverrides(ctx context.Context) (map[string]float64, error)
}

// OverrideStore can also write overrides
type OverrideStore interface {
	OverrideSource
	SetScoringOverride(ctx context.Context, key string, value float64) error
}

// SetOverride stores one override after checking the key against the
// scoring thresholds
func SetOverride(ctx context.Context, store OverrideStore, key string, value float64) error {
	if _, err := scoring.DefaultConfig().With(map[string]float64{key: value}); err != nil {
		return fmt.Errorf("invalid scoring override: %w", err)
	}
	return store.SetScoringOverride(ctx, key, value)
}

// ConfigLoader builds a scoring config snapshot
type ConfigLoader func(ctx context.Context) (scoring.Config, error)

// LiveConfig returns a loader that rereads the stored overrides on every
// call, so overrides written while the process runs apply to the next run
func LiveConfig(configured map[string]float64, source OverrideSource, log *logger.Logger) ConfigLoader {
	return func(ctx context.Context) (scoring.Config, error) {
		return ScoringConfig(ctx, configured, source, log)
	}
}

// ScoringConfig builds the snapshot used for a whole run: defaults, then the
// configured overrides, then the stored ones. Unknown configured keys are an
// error. Unknown stored keys are logged and ignored so a stale row cannot
// stop scoring.
func ScoringConfig(ctx context.Context, configured map[string]float64, source OverrideSource, log *logger.Logger) (scoring.Config, error) {
	cfg, err := scoring.DefaultConfig().With(configured)
	if err != nil {
		return cfg, fmt.Errorf("invalid scoring override: %w", err)
	}
	if source == nil {
		return cfg, nil
	}

	stored, err := source.ScoringOverrides(ctx)
	if err != nil {
		return cfg, fmt.Errorf("failed to load scoring overrides: %w", err)
	}

	keys := make([]string, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		next, err := cfg.With(map[string]float64{k: stored[k]})
		if err != nil {
			log.Warn("Ignoring stored scoring override", logger.String("key", k), logger.Error(err))
			continue
		}
		cfg = next
	}
	return cfg, nil
}
