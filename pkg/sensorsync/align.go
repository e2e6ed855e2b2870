// Package sensorsync aligns timestamped samples across the camera, watch and
// headphone sensors and classifies which of them are live.
package sensorsync

import "math"

// Alignment reasons.
const (
	ReasonAligned    = "aligned"
	ReasonStaleFrame = "stale_frame"
)

// AlignInput describes a primary/secondary timestamp pair.
type AlignInput struct {
	PrimaryTimestampSec   float64
	SecondaryTimestampSec float64
	MaxTimestampSkewSec   float64
}

// Alignment is the gate result for cross-sensor fusion. A rejected frame is
// not fused, but the primary observation may still be used on its own.
type Alignment struct {
	Accepted bool    `json:"accepted"`
	Reason   string  `json:"reason"`
	SkewSec  float64 `json:"skewSec"`
}

// SelectAlignedSensorFrame accepts the pair when the absolute skew is at most
// MaxTimestampSkewSec. The gate uses the exact skew; only the reported
// SkewSec is rounded to the microsecond, so callers see 0.51 rather than
// 0.5099999999999998.
func SelectAlignedSensorFrame(in AlignInput) Alignment {
	skew := math.Abs(in.PrimaryTimestampSec - in.SecondaryTimestampSec)
	reported := math.Round(skew*1e6) / 1e6

	if math.IsNaN(skew) || skew > in.MaxTimestampSkewSec {
		return Alignment{Accepted: false, Reason: ReasonStaleFrame, SkewSec: reported}
	}
	return Alignment{Accepted: true, Reason: ReasonAligned, SkewSec: reported}
}
