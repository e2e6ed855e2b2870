// Package pose defines the per-frame body data shared by the fusion engine:
// joint angles, 2D landmarks and completed-rep summaries.
package pose

import (
	"math"
	"strings"
)

// Joint angle keys. These are the eight joints every provider reports.
const (
	LeftKnee      = "leftKnee"
	RightKnee     = "rightKnee"
	LeftElbow     = "leftElbow"
	RightElbow    = "rightElbow"
	LeftHip       = "leftHip"
	RightHip      = "rightHip"
	LeftShoulder  = "leftShoulder"
	RightShoulder = "rightShoulder"
)

// Landmark-only keys (present in the 2D joint map, no angle).
const (
	LeftWrist  = "leftWrist"
	RightWrist = "rightWrist"
	LeftAnkle  = "leftAnkle"
	RightAnkle = "rightAnkle"
	Nose       = "nose"
)

// AngleKeys lists the joint angle keys in a stable order.
var AngleKeys = []string{
	LeftKnee, RightKnee,
	LeftElbow, RightElbow,
	LeftHip, RightHip,
	LeftShoulder, RightShoulder,
}

// LandmarkKeys lists every landmark the filters operate on.
var LandmarkKeys = []string{
	Nose,
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// Mirror returns the opposite-side key for a left/right key, or "" when the
// key has no side.
func Mirror(key string) string {
	switch {
	case strings.HasPrefix(key, "left"):
		return "right" + strings.TrimPrefix(key, "left")
	case strings.HasPrefix(key, "right"):
		return "left" + strings.TrimPrefix(key, "right")
	}
	return ""
}

// JointAngles maps a joint key to its angle in degrees.
// A frame's JointAngles is a snapshot; callers copy before changing it.
type JointAngles map[string]float64

// Clone returns an independent copy.
func (a JointAngles) Clone() JointAngles {
	if a == nil {
		return nil
	}
	out := make(JointAngles, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Get returns the angle for key and whether it is present and finite.
func (a JointAngles) Get(key string) (float64, bool) {
	v, ok := a[key]
	if !ok || !IsFinite(v) {
		return 0, false
	}
	return v, true
}

// Joint2D is a single tracked landmark in normalized frame coordinates.
type Joint2D struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Tracked    bool     `json:"isTracked"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Finite reports whether both coordinates are usable numbers.
func (j Joint2D) Finite() bool {
	return IsFinite(j.X) && IsFinite(j.Y)
}

// ConfidenceOr returns the landmark confidence, or def when none was reported.
func (j Joint2D) ConfidenceOr(def float64) float64 {
	if j.Confidence == nil || !IsFinite(*j.Confidence) {
		return def
	}
	return *j.Confidence
}

// JointMap is the per-frame landmark set. Filters never mutate a JointMap;
// they return a new one.
type JointMap map[string]Joint2D

// Clone returns an independent copy.
func (m JointMap) Clone() JointMap {
	if m == nil {
		return nil
	}
	out := make(JointMap, len(m))
	for k, v := range m {
		if v.Confidence != nil {
			c := *v.Confidence
			v.Confidence = &c
		}
		out[k] = v
	}
	return out
}

// Visible reports whether every key is tracked with finite coordinates and a
// confidence of at least minConfidence. Missing confidence counts as 1.
func (m JointMap) Visible(minConfidence float64, keys ...string) bool {
	for _, k := range keys {
		j, ok := m[k]
		if !ok || !j.Tracked || !j.Finite() {
			return false
		}
		if j.ConfidenceOr(1) < minConfidence {
			return false
		}
	}
	return true
}

// RepContext summarizes one completed repetition. It is handed to scoring
// once and then dropped.
type RepContext struct {
	WorkoutID  string      `json:"workoutId"`
	RepNumber  int         `json:"repNumber"`
	DurationMs int64       `json:"durationMs"`
	Start      JointAngles `json:"start"`
	End        JointAngles `json:"end"`
	Min        JointAngles `json:"min"`
	Max        JointAngles `json:"max"`
}

// Conf is a helper for building optional confidences in literals.
func Conf(v float64) *float64 {
	return &v
}

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
