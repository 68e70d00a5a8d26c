package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScoringConfig_IsValid(t *testing.T) {
	assert.NoError(t, DefaultScoringConfig().Validate())
}

func TestScoringConfig_ValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ScoringConfig)
	}{
		{"negative weight", func(c *ScoringConfig) { c.Weights.Continuity = -1 }},
		{"zero outage bonus", func(c *ScoringConfig) { c.Weights.VehicleOutageBonus = 0 }},
		{"positive profiled malus", func(c *ScoringConfig) { c.AdaptiveProfile.ProfiledMalus = 5 }},
		{"zero battery bound", func(c *ScoringConfig) { c.BatteryDeltaMax = 0 }},
		{"zero interval", func(c *ScoringConfig) { c.Alerting.Interval = 0 }},
		{"confidence above 100", func(c *ScoringConfig) { c.Alerting.MinConfidencePercent = 101 }},
		{"zero consecutive max", func(c *ScoringConfig) { c.Alerting.MaxConsecutiveGapHours = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultScoringConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadScoringConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadScoringConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultScoringConfig(), cfg)
}

func TestLoadScoringConfig_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	content := []byte("weights:\n  techProblemBonus: 30\nalerting:\n  minConfidencePercent: 75\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadScoringConfig(path)

	require.NoError(t, err)
	assert.Equal(t, 30.0, cfg.Weights.TechProblemBonus)
	assert.Equal(t, 75.0, cfg.Alerting.MinConfidencePercent)
	assert.Equal(t, DefaultScoringConfig().Weights.Continuity, cfg.Weights.Continuity,
		"Unset keys keep their defaults")
}

func TestScoringStore_ReloadKeepsPreviousOnInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kmThreshold: 2.5\n"), 0o644))

	store, err := NewScoringStore(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, store.Snapshot().KmThreshold)

	// An invalid rewrite must be rejected without touching the active config.
	require.NoError(t, os.WriteFile(path, []byte("batteryDeltaMaxPerHour: -1\n"), 0o644))
	assert.Error(t, store.Reload())
	assert.Equal(t, 2.5, store.Snapshot().KmThreshold)

	// A valid rewrite takes effect.
	require.NoError(t, os.WriteFile(path, []byte("kmThreshold: 3.0\n"), 0o644))
	require.NoError(t, store.Reload())
	assert.Equal(t, 3.0, store.Snapshot().KmThreshold)
}
