// Package calibration aligns the camera, watch and headphone reference
// frames at the start of a session and watches for drift afterwards.
package calibration

import (
	"github.com/teslashibe/go-formcoach/pkg/pose"
)

// Phase is the calibration lifecycle stage.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCollecting Phase = "collecting"
	PhaseCalibrated Phase = "calibrated"
)

// Defaults used when a State is built with New.
const (
	DefaultMaxSamples    = 120
	DefaultMinSamples    = 5
	DefaultMinStability  = 0.6
	DefaultMinConfidence = 0.5
)

// Sample is one calibration observation taken while the user holds still.
type Sample struct {
	CameraUp     pose.Vec3 `json:"cameraUp"`
	WatchForward pose.Vec3 `json:"watchForward"`
	HeadForward  pose.Vec3 `json:"headForward"`
	Stability    float64   `json:"stability"` // 0-1
}

// Reference holds the aligned reference vectors produced by Finalize.
type Reference struct {
	CameraUp     pose.Vec3 `json:"cameraUp"`
	WatchForward pose.Vec3 `json:"watchForward"`
	HeadForward  pose.Vec3 `json:"headForward"`
}

// Result is returned by a successful Finalize.
type Result struct {
	Phase      Phase     `json:"phase"`
	Confidence float64   `json:"confidence"`
	Reference  Reference `json:"reference"`
}

// State is the session-owned calibration record. It never expires on its
// own; call Reset to start over.
type State struct {
	MaxSamples    int
	MinSamples    int
	MinStability  float64
	MinConfidence float64

	phase       Phase
	startedAtMs int64
	finalizedMs int64
	samples     []Sample
	confidence  float64
	reference   Reference
}

// New creates an idle calibration state with default limits.
func New() *State {
	return &State{
		MaxSamples:    DefaultMaxSamples,
		MinSamples:    DefaultMinSamples,
		MinStability:  DefaultMinStability,
		MinConfidence: DefaultMinConfidence,
		phase:         PhaseIdle,
	}
}

// Phase returns the current lifecycle stage.
func (s *State) Phase() Phase {
	return s.phase
}

// Begin moves idle → collecting and records the start time. Calling it on
// a calibrated state restarts collection; calling it while collecting is a
// no-op.
func (s *State) Begin(timestampMs int64) {
	if s.phase == PhaseCollecting {
		return
	}
	s.phase = PhaseCollecting
	s.startedAtMs = timestampMs
	s.samples = s.samples[:0]
}

// Collect appends a sample while collecting. It reports whether the sample
// was accepted. Samples with non-finite vectors are rejected.
func (s *State) Collect(sample Sample) bool {
	if s.phase != PhaseCollecting {
		return false
	}
	if !sample.CameraUp.Finite() || !sample.WatchForward.Finite() || !sample.HeadForward.Finite() {
		return false
	}
	if !pose.IsFinite(sample.Stability) {
		return false
	}
	sample.Stability = clamp(sample.Stability, 0, 1)

	s.samples = append(s.samples, sample)
	if s.MaxSamples > 0 && len(s.samples) > s.MaxSamples {
		s.samples = s.samples[len(s.samples)-s.MaxSamples:]
	}
	return true
}

// SampleCount returns the number of buffered samples.
func (s *State) SampleCount() int {
	return len(s.samples)
}

// StartedAtMs returns when collection began.
func (s *State) StartedAtMs() int64 {
	return s.startedAtMs
}

// Finalize averages the collected samples into reference vectors. It
// returns (nil, false) and stays in collecting when there are too few
// samples, the user was not still enough, or the vectors disagree.
//
// Confidence is mean stability times mean alignment consistency, so eight
// identical samples at stability 0.98 finalize at 0.98.
func (s *State) Finalize(timestampMs int64) (*Result, bool) {
	if s.phase != PhaseCollecting {
		return nil, false
	}
	if len(s.samples) < s.MinSamples || len(s.samples) == 0 {
		return nil, false
	}

	var stability float64
	for _, smp := range s.samples {
		stability += smp.Stability
	}
	stability /= float64(len(s.samples))
	if stability < s.MinStability {
		return nil, false
	}

	up, upConsistency, ok := meanDirection(s.samples, func(x Sample) pose.Vec3 { return x.CameraUp })
	if !ok {
		return nil, false
	}
	watch, watchConsistency, ok := meanDirection(s.samples, func(x Sample) pose.Vec3 { return x.WatchForward })
	if !ok {
		return nil, false
	}
	head, headConsistency, ok := meanDirection(s.samples, func(x Sample) pose.Vec3 { return x.HeadForward })
	if !ok {
		return nil, false
	}

	consistency := (upConsistency + watchConsistency + headConsistency) / 3
	confidence := clamp(stability*consistency, 0, 1)
	if confidence < s.MinConfidence {
		return nil, false
	}

	s.phase = PhaseCalibrated
	s.finalizedMs = timestampMs
	s.confidence = confidence
	s.reference = Reference{CameraUp: up, WatchForward: watch, HeadForward: head}

	return &Result{
		Phase:      PhaseCalibrated,
		Confidence: confidence,
		Reference:  s.reference,
	}, true
}

// Reference returns the calibrated reference vectors and whether the state
// is calibrated.
func (s *State) Reference() (Reference, bool) {
	return s.reference, s.phase == PhaseCalibrated
}

// Confidence returns the confidence of the last successful Finalize.
func (s *State) Confidence() float64 {
	return s.confidence
}

// Reset returns to idle and drops every sample and reference.
func (s *State) Reset() {
	s.phase = PhaseIdle
	s.startedAtMs = 0
	s.finalizedMs = 0
	s.samples = nil
	s.confidence = 0
	s.reference = Reference{}
}

// meanDirection returns the normalized mean of the picked vectors and the
// mean cosine between each sample and that mean.
func meanDirection(samples []Sample, pick func(Sample) pose.Vec3) (pose.Vec3, float64, bool) {
	var sum pose.Vec3
	units := make([]pose.Vec3, 0, len(samples))
	for _, smp := range samples {
		u, ok := pick(smp).Normalize()
		if !ok {
			continue
		}
		units = append(units, u)
		sum = sum.Add(u)
	}
	if len(units) == 0 {
		return pose.Vec3{}, 0, false
	}

	mean, ok := sum.Normalize()
	if !ok {
		return pose.Vec3{}, 0, false
	}

	var cos float64
	for _, u := range units {
		cos += u.Dot(mean)
	}
	// Degenerate samples count as zero agreement.
	consistency := cos / float64(len(samples))
	return mean, clamp(consistency, 0, 1), true
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
