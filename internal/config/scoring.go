package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// ScoringConfig carries every weight and threshold the scorer and the alert
// engine consume. It is loaded from YAML and handed out as a value snapshot
// once per cycle, so a reload can never affect an in-flight cycle.
type ScoringConfig struct {
	Weights         Weights               `yaml:"weights"`
	KmThreshold     float64               `yaml:"kmThreshold"`
	BatteryDeltaMax float64               `yaml:"batteryDeltaMaxPerHour"`
	AdaptiveProfile AdaptiveProfileConfig `yaml:"adaptiveProfile"`
	Alerting        AlertingConfig        `yaml:"alerting"`
}

type Weights struct {
	Continuity          float64 `yaml:"continuity"`
	Battery             float64 `yaml:"battery"`
	Pattern             float64 `yaml:"pattern"`
	GapLength           float64 `yaml:"gapLength"`
	Historical          float64 `yaml:"historical"`
	TechProblemBonus    float64 `yaml:"techProblemBonus"`
	KmBonus             float64 `yaml:"kmBonus"`
	FleetAPIOutageBonus float64 `yaml:"fleetApiOutageBonus"`
	VehicleOutageBonus  float64 `yaml:"vehicleOutageBonus"`
}

type AdaptiveProfileConfig struct {
	ProfiledMalus    float64 `yaml:"profiledMalus"`
	NotProfiledBonus float64 `yaml:"notProfiledBonus"`
}

type AlertingConfig struct {
	Interval                           time.Duration `yaml:"interval"`
	InitialDelay                       time.Duration `yaml:"initialDelay"`
	LookbackDays                       int           `yaml:"lookbackDays"`
	MinConfidencePercent               float64       `yaml:"minConfidencePercent"`
	MaxConsecutiveGapHours             int           `yaml:"maxConsecutiveGapHours"`
	MaxGapPercentOfPeriod              float64       `yaml:"maxGapPercentOfPeriod"`
	ProfiledPeriodMinConfidencePercent float64       `yaml:"profiledPeriodMinConfidencePercent"`
	MaxMonthlyDowntimePercent          float64       `yaml:"maxMonthlyDowntimePercent"`
	DedupTTL                           time.Duration `yaml:"dedupTTL"`
}

// DefaultScoringConfig returns the shipped defaults. The YAML file only
// needs to override what differs.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights: Weights{
			Continuity:          15,
			Battery:             15,
			Pattern:             10,
			GapLength:           10,
			Historical:          10,
			TechProblemBonus:    25,
			KmBonus:             15,
			FleetAPIOutageBonus: 40,
			VehicleOutageBonus:  45,
		},
		KmThreshold:     1.0,
		BatteryDeltaMax: 15.0,
		AdaptiveProfile: AdaptiveProfileConfig{
			ProfiledMalus:    -30,
			NotProfiledBonus: 10,
		},
		Alerting: AlertingConfig{
			Interval:                           time.Hour,
			InitialDelay:                       30 * time.Second,
			LookbackDays:                       7,
			MinConfidencePercent:               70,
			MaxConsecutiveGapHours:             6,
			MaxGapPercentOfPeriod:              20,
			ProfiledPeriodMinConfidencePercent: 85,
			MaxMonthlyDowntimePercent:          10,
			DedupTTL:                           2 * time.Hour,
		},
	}
}

// Validate fails fast on a configuration no cycle should run with.
func (c ScoringConfig) Validate() error {
	if c.Weights.Continuity < 0 || c.Weights.Battery < 0 || c.Weights.Pattern < 0 ||
		c.Weights.GapLength < 0 || c.Weights.Historical < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	if c.Weights.FleetAPIOutageBonus <= 0 || c.Weights.VehicleOutageBonus <= 0 {
		return fmt.Errorf("outage bonuses must be positive")
	}
	if c.BatteryDeltaMax <= 0 {
		return fmt.Errorf("batteryDeltaMaxPerHour must be positive")
	}
	if c.AdaptiveProfile.ProfiledMalus > 0 {
		return fmt.Errorf("profiledMalus must be negative or zero")
	}
	if c.Alerting.Interval <= 0 {
		return fmt.Errorf("alerting interval must be positive")
	}
	if c.Alerting.LookbackDays <= 0 {
		return fmt.Errorf("alerting lookbackDays must be positive")
	}
	if c.Alerting.MinConfidencePercent < 0 || c.Alerting.MinConfidencePercent > 100 {
		return fmt.Errorf("minConfidencePercent must be in [0,100]")
	}
	if c.Alerting.ProfiledPeriodMinConfidencePercent < 0 || c.Alerting.ProfiledPeriodMinConfidencePercent > 100 {
		return fmt.Errorf("profiledPeriodMinConfidencePercent must be in [0,100]")
	}
	if c.Alerting.MaxConsecutiveGapHours <= 0 {
		return fmt.Errorf("maxConsecutiveGapHours must be positive")
	}
	return nil
}

// LoadScoringConfig reads the YAML file at path over the defaults. A
// missing file yields the defaults.
func LoadScoringConfig(path string) (ScoringConfig, error) {
	cfg := DefaultScoringConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read scoring config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse scoring config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid scoring config: %w", err)
	}

	return cfg, nil
}

// ScoringStore holds the active scoring configuration behind an atomic
// pointer. Reload swaps the whole value; Snapshot returns the value a cycle
// should pin for its entire run.
type ScoringStore struct {
	path    string
	current atomic.Pointer[ScoringConfig]
}

func NewScoringStore(path string) (*ScoringStore, error) {
	cfg, err := LoadScoringConfig(path)
	if err != nil {
		return nil, err
	}
	s := &ScoringStore{path: path}
	s.current.Store(&cfg)
	return s, nil
}

// Snapshot returns the active configuration by value.
func (s *ScoringStore) Snapshot() ScoringConfig {
	return *s.current.Load()
}

// Reload re-reads the file. On any error the previous configuration stays
// in effect.
func (s *ScoringStore) Reload() error {
	cfg, err := LoadScoringConfig(s.path)
	if err != nil {
		return err
	}
	s.current.Store(&cfg)
	return nil
}
