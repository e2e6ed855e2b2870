// Package fusion runs the per-frame pipeline: it fuses the sensor set into a
// body state, drives the phase machine and rep counter, and stabilizes
// cues.
package fusion

import (
	"github.com/teslashibe/go-formcoach/pkg/cues"
	"github.com/teslashibe/go-formcoach/pkg/features"
	"github.com/teslashibe/go-formcoach/pkg/phase"
	"github.com/teslashibe/go-formcoach/pkg/pose"
)

// Operating modes.
const (
	ModeNominal  = "nominal"
	ModeDegraded = "degraded"
)

// Registry keys.
const (
	KeyAngles      = "angles"
	KeyMetrics     = "metrics"
	KeyShadowDelta = "shadow_delta"
	KeyQuality     = "quality"
)

// BodyState is the per-frame fused snapshot.
type BodyState struct {
	TimestampMs int64                `json:"ts"`
	Phase       phase.Phase          `json:"phase"`
	Confidence  float64              `json:"confidence"`
	Cues        []cues.Cue           `json:"cues"`
	Angles      pose.JointAngles     `json:"angles"`
	Metrics     map[string]float64   `json:"metrics"`
	Joints3D    map[string]pose.Vec3 `json:"joints3D,omitempty"`
}

// AnglesFunc returns the frame's joint angles.
type AnglesFunc func() pose.JointAngles

// CuePass is one consumer of the frame. It may call getAngles any number of
// times.
type CuePass func(getAngles AnglesFunc) []cues.Cue

// FrameInput drives one RunFrame call.
type FrameInput struct {
	TimestampMs      int64
	CameraConfidence float64
	ComputeAngles    AnglesFunc
	CuePasses        []CuePass
}

// FrameDebug exposes counters for tests and tracing.
type FrameDebug struct {
	AnglesComputeCount int `json:"anglesComputeCount"`
}

// FrameOutput is the result of RunFrame.
type FrameOutput struct {
	Mode                string     `json:"mode"`
	BodyState           BodyState  `json:"bodyState"`
	FallbackModeEnabled bool       `json:"fallbackModeEnabled"`
	Debug               FrameDebug `json:"debug"`
}

// Engine owns the frame registry and the degraded-mode decision.
type Engine struct {
	registry  *features.Registry
	threshold float64
	scale     float64
}

// NewEngine creates an engine using cfg's degraded-mode settings.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		registry:  features.NewRegistry(),
		threshold: cfg.DegradedConfidenceThreshold,
		scale:     cfg.DegradedConfidenceScale,
	}
}

// Registry returns the frame registry. Values are valid until the next
// RunFrame.
func (e *Engine) Registry() *features.Registry {
	return e.registry
}

// RunFrame starts a new frame, runs every pass with a registry-backed angle
// accessor, and assembles the body state. ComputeAngles runs exactly once.
func (e *Engine) RunFrame(in FrameInput) FrameOutput {
	e.registry.Reset()

	getAngles := func() pose.JointAngles {
		return features.Get(e.registry, KeyAngles, func() pose.JointAngles {
			if in.ComputeAngles == nil {
				return nil
			}
			return in.ComputeAngles()
		})
	}

	var fired []cues.Cue
	for _, pass := range in.CuePasses {
		fired = append(fired, pass(getAngles)...)
	}
	cues.Sort(fired)

	confidence := clamp(in.CameraConfidence, 0, 1)
	mode := ModeNominal
	if confidence < e.threshold {
		mode = ModeDegraded
		confidence *= e.scale
	}

	return FrameOutput{
		Mode: mode,
		BodyState: BodyState{
			TimestampMs: in.TimestampMs,
			Confidence:  confidence,
			Cues:        fired,
			Angles:      getAngles(),
		},
		FallbackModeEnabled: mode == ModeDegraded,
		Debug: FrameDebug{
			AnglesComputeCount: e.registry.Computations(KeyAngles),
		},
	}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
