package fusion

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-formcoach/pkg/cues"
)

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid fusion config")

// Config holds all tunable parameters for a fusion session.
type Config struct {
	// Filters
	MaxJointDelta   float64 `toml:"max_joint_delta"`  // Max landmark travel per frame (normalized units)
	CoordinateAlpha float64 `toml:"coordinate_alpha"` // Landmark EMA factor (higher = more new data)
	AngleAlpha      float64 `toml:"angle_alpha"`      // Angle EMA factor

	// Sync
	MaxTimestampSkew time.Duration `toml:"max_timestamp_skew"` // Max watch/headphone lag behind the camera frame
	SensorBufferSize int           `toml:"sensor_buffer_size"` // Samples kept per motion sensor

	// Degraded mode
	DegradedConfidenceThreshold float64 `toml:"degraded_confidence_threshold"` // Camera confidence below this is degraded
	DegradedConfidenceScale     float64 `toml:"degraded_confidence_scale"`     // Output confidence multiplier when degraded

	// Phase and reps
	BasePhaseHoldMs float64 `toml:"base_phase_hold_ms"` // Candidate phase must persist this long at full quality
	RepHistory      int     `toml:"rep_history"`        // Recent rep durations kept for cadence

	// Cue display
	ShowFrames int `toml:"show_frames"` // Frames before a cue appears
	HideFrames int `toml:"hide_frames"` // Frames before a cue disappears

	// Calibration
	MaxDriftDeg float64 `toml:"max_drift_deg"` // Head drift that asks for recalibration

	// Shadow estimator
	ShadowToleranceDeg float64 `toml:"shadow_tolerance_deg"` // Mean disagreement at which quality is halved
}

// Validate checks every setting is in range. SensorBufferSize 0 selects the
// default depth and ShadowToleranceDeg 0 disables the shadow discount.
func (c Config) Validate() error {
	switch {
	case c.ShowFrames < 1 || c.HideFrames < 1:
		return fmt.Errorf("%w: %w: show_frames=%d hide_frames=%d",
			ErrInvalidConfig, cues.ErrInvalidHysteresis, c.ShowFrames, c.HideFrames)
	case !(c.MaxJointDelta > 0):
		return fmt.Errorf("%w: max_joint_delta %v must be positive", ErrInvalidConfig, c.MaxJointDelta)
	case !(c.CoordinateAlpha > 0 && c.CoordinateAlpha <= 1):
		return fmt.Errorf("%w: coordinate_alpha %v outside (0, 1]", ErrInvalidConfig, c.CoordinateAlpha)
	case !(c.AngleAlpha > 0 && c.AngleAlpha <= 1):
		return fmt.Errorf("%w: angle_alpha %v outside (0, 1]", ErrInvalidConfig, c.AngleAlpha)
	case c.MaxTimestampSkew < 0:
		return fmt.Errorf("%w: max_timestamp_skew %s is negative", ErrInvalidConfig, c.MaxTimestampSkew)
	case c.SensorBufferSize < 0:
		return fmt.Errorf("%w: sensor_buffer_size %d is negative", ErrInvalidConfig, c.SensorBufferSize)
	case !(c.DegradedConfidenceThreshold >= 0 && c.DegradedConfidenceThreshold <= 1):
		return fmt.Errorf("%w: degraded_confidence_threshold %v outside [0, 1]", ErrInvalidConfig, c.DegradedConfidenceThreshold)
	case !(c.DegradedConfidenceScale >= 0 && c.DegradedConfidenceScale <= 1):
		return fmt.Errorf("%w: degraded_confidence_scale %v outside [0, 1]", ErrInvalidConfig, c.DegradedConfidenceScale)
	case !(c.BasePhaseHoldMs >= 0):
		return fmt.Errorf("%w: base_phase_hold_ms %v is negative", ErrInvalidConfig, c.BasePhaseHoldMs)
	case c.RepHistory < 0:
		return fmt.Errorf("%w: rep_history %d is negative", ErrInvalidConfig, c.RepHistory)
	case !(c.MaxDriftDeg > 0):
		return fmt.Errorf("%w: max_drift_deg %v must be positive", ErrInvalidConfig, c.MaxDriftDeg)
	case !(c.ShadowToleranceDeg >= 0):
		return fmt.Errorf("%w: shadow_tolerance_deg %v is negative", ErrInvalidConfig, c.ShadowToleranceDeg)
	}
	return nil
}

// DefaultConfig returns the recommended configuration for live coaching
func DefaultConfig() Config {
	return Config{
		MaxJointDelta:   0.08, // ~8% of the frame per tick
		CoordinateAlpha: 0.5,
		AngleAlpha:      0.4,

		MaxTimestampSkew: 150 * time.Millisecond,
		SensorBufferSize: 64, // ~1s at 60Hz

		DegradedConfidenceThreshold: 0.5,
		DegradedConfidenceScale:     0.5,

		BasePhaseHoldMs: 80,
		RepHistory:      5,

		ShowFrames: 3,
		HideFrames: 6,

		MaxDriftDeg: 20,

		ShadowToleranceDeg: 25,
	}
}

// ResponsiveConfig reacts faster at the cost of more jitter
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.CoordinateAlpha = 0.7
	cfg.AngleAlpha = 0.6
	cfg.MaxJointDelta = 0.12
	cfg.BasePhaseHoldMs = 60
	cfg.ShowFrames = 2
	cfg.HideFrames = 4
	return cfg
}

// StableConfig smooths harder for noisy environments
func StableConfig() Config {
	cfg := DefaultConfig()
	cfg.CoordinateAlpha = 0.35
	cfg.AngleAlpha = 0.25
	cfg.MaxJointDelta = 0.05
	cfg.BasePhaseHoldMs = 120
	cfg.ShowFrames = 4
	cfg.HideFrames = 8
	cfg.MaxTimestampSkew = 250 * time.Millisecond
	return cfg
}

// Preset returns a named preset: "default", "responsive" or "stable".
func Preset(name string) (Config, bool) {
	switch name {
	case "", "default":
		return DefaultConfig(), true
	case "responsive":
		return ResponsiveConfig(), true
	case "stable":
		return StableConfig(), true
	}
	return Config{}, false
}
