// Package filter provides the per-joint velocity clamp and exponential
// smoothing applied to every incoming pose frame.
package filter

import (
	"math"

	"github.com/teslashibe/go-formcoach/pkg/pose"
)

// WeakConfidence is the landmark confidence below which a joint is treated
// as untracked, however plausible its position looks.
const WeakConfidence = 0.3

// ClampVelocity bounds the per-frame displacement of each joint in keys.
// A joint whose incoming position lies farther than maxDelta from its
// previous position is moved to previous + maxDelta along the direction of
// travel. Joints missing from previous pass through unclamped. Neither input
// is modified.
func ClampVelocity(previous, incoming pose.JointMap, maxDelta float64, keys []string) pose.JointMap {
	out := incoming.Clone()
	if out == nil {
		out = pose.JointMap{}
	}
	if maxDelta < 0 {
		maxDelta = 0
	}

	for _, k := range keys {
		in, ok := incoming[k]
		if !ok || !in.Finite() {
			continue
		}
		prev, ok := previous[k]
		if !ok || !prev.Finite() {
			continue
		}

		dx := in.X - prev.X
		dy := in.Y - prev.Y
		dist := math.Hypot(dx, dy)
		if dist <= maxDelta || dist == 0 {
			continue
		}

		scale := maxDelta / dist
		in.X = prev.X + dx*scale
		in.Y = prev.Y + dy*scale
		out[k] = in
	}
	return out
}

// SmoothCoordinateEMA moves each joint in keys a fraction alpha of the way
// from its previous position toward the incoming one.
//
// Only tracked, finite incoming joints with confidence >= WeakConfidence are
// blended in. Anything else carries the previous position forward with
// Tracked=false. A joint with no previous position seeds at the incoming
// value when valid and is left out when not.
func SmoothCoordinateEMA(previous, incoming pose.JointMap, alpha float64, keys []string) pose.JointMap {
	alpha = clamp(alpha, 0, 1)
	out := incoming.Clone()
	if out == nil {
		out = pose.JointMap{}
	}

	for _, k := range keys {
		in, inOK := incoming[k]
		prev, prevOK := previous[k]
		prevOK = prevOK && prev.Finite()

		valid := inOK && in.Tracked && in.Finite() && in.ConfidenceOr(1) >= WeakConfidence

		switch {
		case valid && prevOK:
			out[k] = pose.Joint2D{
				X:          prev.X + alpha*(in.X-prev.X),
				Y:          prev.Y + alpha*(in.Y-prev.Y),
				Tracked:    true,
				Confidence: in.Confidence,
			}
		case valid:
			out[k] = in
		case prevOK:
			held := pose.Joint2D{X: prev.X, Y: prev.Y, Tracked: false}
			if inOK {
				held.Confidence = in.Confidence
			}
			out[k] = held
		default:
			delete(out, k)
		}
	}
	return out
}

// FilterCoordinates clamps then smooths. A single-frame teleport moves the
// output at most maxDelta*alpha, and repeated frames close a fixed fraction
// of the remaining distance without overshooting.
func FilterCoordinates(previous, incoming pose.JointMap, maxDelta, alpha float64, keys []string) pose.JointMap {
	clamped := ClampVelocity(previous, incoming, maxDelta, keys)
	return SmoothCoordinateEMA(previous, clamped, alpha, keys)
}

// SmoothAngleEMA applies a scalar EMA to one angle. Non-finite input returns
// previous unchanged, which is nil when there is no data yet.
func SmoothAngleEMA(previous *float64, incoming, alpha float64) *float64 {
	if !pose.IsFinite(incoming) {
		return previous
	}
	if previous == nil || !pose.IsFinite(*previous) {
		v := incoming
		return &v
	}
	alpha = clamp(alpha, 0, 1)
	v := *previous + alpha*(incoming-*previous)
	return &v
}

// SmoothAngles runs SmoothAngleEMA over every joint in previous or incoming.
func SmoothAngles(previous, incoming pose.JointAngles, alpha float64) pose.JointAngles {
	out := make(pose.JointAngles, len(incoming))
	seen := make(map[string]bool, len(incoming))

	for k, in := range incoming {
		seen[k] = true
		var prev *float64
		if p, ok := previous.Get(k); ok {
			prev = &p
		}
		if v := SmoothAngleEMA(prev, in, alpha); v != nil {
			out[k] = *v
		}
	}
	for k, p := range previous {
		if seen[k] || !pose.IsFinite(p) {
			continue
		}
		out[k] = p
	}
	return out
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
