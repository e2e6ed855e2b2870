package fusion

import (
	"math"

	"github.com/teslashibe/go-formcoach/pkg/pose"
)

// Derived metric names.
const (
	MetricKneeAvg          = "knee_avg"
	MetricElbowAvg         = "elbow_avg"
	MetricHipAvg           = "hip_avg"
	MetricShoulderAvg      = "shoulder_avg"
	MetricKneeSymmetry     = "knee_symmetry"
	MetricElbowSymmetry    = "elbow_symmetry"
	MetricHipSymmetry      = "hip_symmetry"
	MetricShoulderSymmetry = "shoulder_symmetry"
	MetricShadowDelta      = "shadow_delta"
)

var jointPairs = []struct {
	left, right string
	avg, sym    string
}{
	{pose.LeftKnee, pose.RightKnee, MetricKneeAvg, MetricKneeSymmetry},
	{pose.LeftElbow, pose.RightElbow, MetricElbowAvg, MetricElbowSymmetry},
	{pose.LeftHip, pose.RightHip, MetricHipAvg, MetricHipSymmetry},
	{pose.LeftShoulder, pose.RightShoulder, MetricShoulderAvg, MetricShoulderSymmetry},
}

// ComputeMetrics derives the rule and phase metrics from angles. Averages
// fall back to the single visible side; symmetry needs both sides.
// shadowDelta is included when non-nil.
func ComputeMetrics(angles pose.JointAngles, shadowDelta *float64) map[string]float64 {
	out := make(map[string]float64, len(angles)+9)
	for k := range angles {
		if v, ok := angles.Get(k); ok {
			out[k] = v
		}
	}

	for _, p := range jointPairs {
		l, okL := angles.Get(p.left)
		r, okR := angles.Get(p.right)
		switch {
		case okL && okR:
			out[p.avg] = (l + r) / 2
			out[p.sym] = math.Abs(l - r)
		case okL:
			out[p.avg] = l
		case okR:
			out[p.avg] = r
		}
	}

	if shadowDelta != nil {
		out[MetricShadowDelta] = *shadowDelta
	}
	return out
}

// MeanAbsDelta returns the mean absolute difference over keys present in
// both maps, or false when they share none.
func MeanAbsDelta(a, b pose.JointAngles) (float64, bool) {
	var sum float64
	n := 0
	for k, va := range a {
		vb, ok := b.Get(k)
		if !ok || !pose.IsFinite(va) {
			continue
		}
		sum += math.Abs(va - vb)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
