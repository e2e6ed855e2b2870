package filter

import "github.com/teslashibe/go-formcoach/pkg/pose"

// Smoother keeps the previous filtered frame so callers can feed raw frames
// one at a time.
type Smoother struct {
	MaxDelta        float64 // Max landmark travel per frame (normalized units)
	CoordinateAlpha float64 // EMA factor for landmarks (higher = more new data)
	AngleAlpha      float64 // EMA factor for joint angles

	lastJoints pose.JointMap
	lastAngles pose.JointAngles
}

// NewSmoother creates a smoother with the given tuning.
func NewSmoother(maxDelta, coordinateAlpha, angleAlpha float64) *Smoother {
	return &Smoother{
		MaxDelta:        maxDelta,
		CoordinateAlpha: coordinateAlpha,
		AngleAlpha:      angleAlpha,
	}
}

// Step filters one frame and remembers the result as the next baseline.
func (s *Smoother) Step(joints pose.JointMap, angles pose.JointAngles) (pose.JointMap, pose.JointAngles) {
	filteredJoints := FilterCoordinates(s.lastJoints, joints, s.MaxDelta, s.CoordinateAlpha, pose.LandmarkKeys)
	filteredAngles := SmoothAngles(s.lastAngles, angles, s.AngleAlpha)

	s.lastJoints = filteredJoints
	s.lastAngles = filteredAngles
	return filteredJoints.Clone(), filteredAngles.Clone()
}

// LastAngles returns the most recent filtered angles.
func (s *Smoother) LastAngles() pose.JointAngles {
	return s.lastAngles.Clone()
}

// Reset forgets the previous frame.
func (s *Smoother) Reset() {
	s.lastJoints = nil
	s.lastAngles = nil
}
