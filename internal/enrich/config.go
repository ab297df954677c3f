package enrich

import (
	"errors"
	"fmt"
	"runtime"
	"time"
	_ "time/tzdata" // timezone lookups must not depend on the host
)

// ErrInvalidConfig is returned by Validate for unusable tunables
var ErrInvalidConfig = errors.New("invalid engine config")

// Default tunables
const (
	DefaultAltitudeWindow       = 7
	DefaultSpeedWindow          = 7
	DefaultGainEpsilon          = 0.8   // meters
	DefaultSlopeWindow          = 40.0  // meters
	DefaultMotionThreshold      = 1.0   // km/h
	DefaultMaxStepDistance      = 200.0 // meters
	DefaultMaxPlausibleSpeedKmh = 150.0
	DefaultTimezone             = "Europe/Paris"

	// MetersPerSecondToKmh converts m/s to km/h
	MetersPerSecondToKmh = 3.6
)

// Config holds the engine tunables. It is passed at construction so the
// pipeline never reads globals.
type Config struct {
	AltitudeWindow       int     `json:"altitude_window" yaml:"altitude_window"`                 // rolling median width, points (<=1 disables)
	SpeedWindow          int     `json:"speed_window" yaml:"speed_window"`                       // rolling mean width, points (<=1 disables)
	GainEpsilon          float64 `json:"gain_epsilon" yaml:"gain_epsilon"`                       // meters
	SlopeWindow          float64 `json:"slope_window" yaml:"slope_window"`                       // meters
	MotionThreshold      float64 `json:"motion_threshold" yaml:"motion_threshold"`               // km/h
	MaxStepDistance      float64 `json:"max_step_distance" yaml:"max_step_distance"`             // meters
	MaxPlausibleSpeedKmh float64 `json:"max_plausible_speed_kmh" yaml:"max_plausible_speed_kmh"` // raw speeds above this are rejected
	Timezone             string  `json:"timezone" yaml:"timezone"`                               // for LocalDate
	Workers              int     `json:"workers" yaml:"workers"`                                 // parallel traces, 0 = NumCPU
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		AltitudeWindow:       DefaultAltitudeWindow,
		SpeedWindow:          DefaultSpeedWindow,
		GainEpsilon:          DefaultGainEpsilon,
		SlopeWindow:          DefaultSlopeWindow,
		MotionThreshold:      DefaultMotionThreshold,
		MaxStepDistance:      DefaultMaxStepDistance,
		MaxPlausibleSpeedKmh: DefaultMaxPlausibleSpeedKmh,
		Timezone:             DefaultTimezone,
		Workers:              runtime.NumCPU(),
	}
}

// Validate checks that the tunables keep the pipeline's invariants intact
func (c Config) Validate() error {
	if c.AltitudeWindow < 0 {
		return fmt.Errorf("%w: altitude_window must be >= 0, got %d", ErrInvalidConfig, c.AltitudeWindow)
	}
	if c.SpeedWindow < 0 {
		return fmt.Errorf("%w: speed_window must be >= 0, got %d", ErrInvalidConfig, c.SpeedWindow)
	}
	if c.GainEpsilon < 0 {
		return fmt.Errorf("%w: gain_epsilon must be >= 0, got %v", ErrInvalidConfig, c.GainEpsilon)
	}
	if c.SlopeWindow <= 0 {
		return fmt.Errorf("%w: slope_window must be > 0, got %v", ErrInvalidConfig, c.SlopeWindow)
	}
	if c.MotionThreshold < 0 {
		return fmt.Errorf("%w: motion_threshold must be >= 0, got %v", ErrInvalidConfig, c.MotionThreshold)
	}
	if c.MaxStepDistance <= 0 {
		return fmt.Errorf("%w: max_step_distance must be > 0, got %v", ErrInvalidConfig, c.MaxStepDistance)
	}
	if c.MaxPlausibleSpeedKmh <= 0 {
		return fmt.Errorf("%w: max_plausible_speed_kmh must be > 0, got %v", ErrInvalidConfig, c.MaxPlausibleSpeedKmh)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}
