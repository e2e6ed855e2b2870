package calibration

import "github.com/teslashibe/go-formcoach/pkg/pose"

// DegenerateDriftDeg is reported when either vector has no direction.
const DegenerateDriftDeg = 180.0

// DriftInput compares a calibrated forward vector with the current one.
type DriftInput struct {
	BaselineForward pose.Vec3
	CurrentForward  pose.Vec3
	MaxDriftDeg     float64
}

// Drift is the outcome of EvaluateDrift. DriftDeg is always filled in so
// near-threshold values can be logged.
type Drift struct {
	DriftDeg              float64 `json:"driftDeg"`
	RequiresRecalibration bool    `json:"requiresRecalibration"`
}

// EvaluateDrift measures the angle between the baseline and current forward
// vectors and flags recalibration when it strictly exceeds MaxDriftDeg.
func EvaluateDrift(in DriftInput) Drift {
	deg, ok := pose.AngleDeg(in.BaselineForward, in.CurrentForward)
	if !ok {
		deg = DegenerateDriftDeg
	}
	return Drift{
		DriftDeg:              deg,
		RequiresRecalibration: deg > in.MaxDriftDeg,
	}
}
