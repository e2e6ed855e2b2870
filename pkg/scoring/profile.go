package scoring

import "github.com/teslashibe/go-formcoach/pkg/pose"

// ComponentSpec configures one component. Which fields matter depends on the
// component:
//
//	rom:       Joints, TargetDeg (expected range of motion)
//	symmetry:  Joints (one side; the mirror is derived), ToleranceDeg
//	tempo:     MinMs, MaxMs (ideal rep duration window)
//	stability: Joints (should stay still), ToleranceDeg
type ComponentSpec struct {
	Weight       float64  `toml:"weight" json:"weight"`
	Landmarks    []string `toml:"landmarks" json:"landmarks"`
	Joints       []string `toml:"joints" json:"joints,omitempty"`
	TargetDeg    float64  `toml:"target_deg" json:"targetDeg,omitempty"`
	ToleranceDeg float64  `toml:"tolerance_deg" json:"toleranceDeg,omitempty"`
	MinMs        float64  `toml:"min_ms" json:"minMs,omitempty"`
	MaxMs        float64  `toml:"max_ms" json:"maxMs,omitempty"`
}

// Profile is the per-workout scoring configuration.
type Profile struct {
	MinComponents  int           `toml:"min_components" json:"minComponents"`
	WeakConfidence float64       `toml:"weak_confidence" json:"weakConfidence,omitempty"`
	ROM            ComponentSpec `toml:"rom" json:"rom"`
	Symmetry       ComponentSpec `toml:"symmetry" json:"symmetry"`
	Tempo          ComponentSpec `toml:"tempo" json:"tempo"`
	Stability      ComponentSpec `toml:"stability" json:"stability"`
}

func (p Profile) spec(name string) ComponentSpec {
	switch name {
	case ROM:
		return p.ROM
	case Symmetry:
		return p.Symmetry
	case Tempo:
		return p.Tempo
	case Stability:
		return p.Stability
	}
	return ComponentSpec{}
}

// PullupProfile is the built-in pull-up profile.
func PullupProfile() Profile {
	arms := []string{pose.LeftShoulder, pose.RightShoulder, pose.LeftElbow, pose.RightElbow, pose.LeftWrist, pose.RightWrist}
	return Profile{
		MinComponents: DefaultMinComponents,
		ROM: ComponentSpec{
			Weight:    0.35,
			Landmarks: arms,
			Joints:    []string{pose.LeftElbow, pose.RightElbow},
			TargetDeg: 90,
		},
		Symmetry: ComponentSpec{
			Weight:       0.25,
			Landmarks:    arms,
			Joints:       []string{pose.LeftElbow, pose.LeftShoulder},
			ToleranceDeg: 30,
		},
		Tempo: ComponentSpec{
			Weight:    0.2,
			Landmarks: []string{pose.LeftElbow, pose.RightElbow},
			MinMs:     1500,
			MaxMs:     4000,
		},
		Stability: ComponentSpec{
			Weight:       0.2,
			Landmarks:    []string{pose.LeftHip, pose.RightHip, pose.LeftKnee, pose.RightKnee},
			Joints:       []string{pose.LeftHip, pose.RightHip},
			ToleranceDeg: 15,
		},
	}
}
