// Package timing computes the debounce and hold durations that keep phase
// flicker from being counted as reps. Durations widen as tracking quality
// drops.
package timing

import (
	"sort"

	"github.com/teslashibe/go-formcoach/pkg/phase"
)

// NoRep marks that no rep has been counted yet.
const NoRep int64 = -1

// Rep duration tuning.
const (
	minHistoryForCadence = 3   // Fewer recent reps than this keeps the base value
	cadenceWindow        = 5   // Recent reps considered for the median
	cadenceFraction      = 0.6 // Floor is this fraction of the median rep
	qualityWidening      = 0.5 // Extra fraction added at zero quality
)

// Phase hold tuning.
const (
	DefaultPhaseHoldMs = 80.0
	MinPhaseHoldMs     = 60.0
	MaxPhaseHoldMs     = 400.0
	shadowHoldMsPerDeg = 4.0
)

// RepBoundary is the per-workout rep start/end configuration.
type RepBoundary struct {
	StartPhase    phase.Phase
	EndPhase      phase.Phase
	MinDurationMs float64
}

// RepDurationInput feeds ComputeAdaptiveRepDurationMs.
type RepDurationInput struct {
	BaseMinDurationMs    float64
	RecentRepDurationsMs []float64
	TrackingQuality      float64 // 0-1
}

// ComputeAdaptiveRepDurationMs returns the minimum time between counted
// reps. With little history it stays at the base value; with enough history
// it follows the user's cadence. Poor tracking widens it. The result always
// lies within [0.5×base, 2×base].
func ComputeAdaptiveRepDurationMs(in RepDurationInput) float64 {
	base := in.BaseMinDurationMs
	if base <= 0 {
		return 0
	}

	floor := base
	if recent := finiteTail(in.RecentRepDurationsMs, cadenceWindow); len(recent) >= minHistoryForCadence {
		floor = clamp(cadenceFraction*median(recent), 0.75*base, 1.5*base)
	}

	quality := clamp(in.TrackingQuality, 0, 1)
	floor *= 1 + qualityWidening*(1-quality)

	return clamp(floor, 0.5*base, 2*base)
}

// PhaseHoldInput feeds ComputeAdaptivePhaseHoldMs.
type PhaseHoldInput struct {
	BaseHoldMs         float64 // Zero means DefaultPhaseHoldMs
	TrackingQuality    float64 // 0-1
	ShadowMeanAbsDelta float64 // Degrees of disagreement with the shadow estimate
}

// ComputeAdaptivePhaseHoldMs returns how long a candidate phase must persist
// before the machine is asked to transition. It grows as quality drops and
// as the shadow estimate disagrees more.
func ComputeAdaptivePhaseHoldMs(in PhaseHoldInput) float64 {
	base := in.BaseHoldMs
	if base <= 0 {
		base = DefaultPhaseHoldMs
	}
	quality := clamp(in.TrackingQuality, 0, 1)

	delta := in.ShadowMeanAbsDelta
	if delta < 0 || delta != delta {
		delta = 0
	}

	hold := base*(1+(1-quality)) + shadowHoldMsPerDeg*delta
	return clamp(hold, MinPhaseHoldMs, MaxPhaseHoldMs)
}

// ShouldStartRep reports whether a transition lands on the start phase from
// a different phase.
func ShouldStartRep(b RepBoundary, newPhase, prevPhase phase.Phase) bool {
	return newPhase == b.StartPhase && prevPhase != newPhase
}

// ShouldEndRep reports whether the end transition happened and enough time
// has passed since the last counted rep. lastRepTimestampMs is NoRep before
// the first rep.
func ShouldEndRep(b RepBoundary, prevPhase, newPhase phase.Phase, isEndTransition bool, nowMs, lastRepTimestampMs int64) bool {
	if !isEndTransition || newPhase != b.EndPhase || prevPhase == newPhase {
		return false
	}
	if lastRepTimestampMs == NoRep {
		return true
	}
	return float64(nowMs-lastRepTimestampMs) > b.MinDurationMs
}

func finiteTail(values []float64, n int) []float64 {
	out := make([]float64, 0, n)
	for i := len(values) - 1; i >= 0 && len(out) < n; i-- {
		v := values[i]
		if v > 0 && v == v && v < 1e12 {
			out = append(out, v)
		}
	}
	return out
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
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
