package filter

import (
	"math"
	"testing"

	"github.com/teslashibe/go-formcoach/pkg/pose"
)

func TestClampVelocity_Bound(t *testing.T) {
	keys := []string{pose.LeftWrist}

	tests := []struct {
		name     string
		prev     pose.Joint2D
		in       pose.Joint2D
		maxDelta float64
	}{
		{"diagonal teleport", pose.Joint2D{X: 0.1, Y: 0.1, Tracked: true}, pose.Joint2D{X: 0.9, Y: 0.7, Tracked: true}, 0.05},
		{"negative direction", pose.Joint2D{X: 0.5, Y: 0.5, Tracked: true}, pose.Joint2D{X: 0.0, Y: 0.5, Tracked: true}, 0.1},
		{"vertical", pose.Joint2D{X: 0.2, Y: 0.9, Tracked: true}, pose.Joint2D{X: 0.2, Y: 0.1, Tracked: true}, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := pose.JointMap{pose.LeftWrist: tt.prev}
			in := pose.JointMap{pose.LeftWrist: tt.in}

			out := ClampVelocity(prev, in, tt.maxDelta, keys)
			got := out[pose.LeftWrist]

			dist := math.Hypot(got.X-tt.prev.X, got.Y-tt.prev.Y)
			if math.Abs(dist-tt.maxDelta) > 1e-9 {
				t.Errorf("Expected displacement %v, got %v", tt.maxDelta, dist)
			}

			// Direction is preserved: cross product of raw and clamped displacement is zero
			rawX, rawY := tt.in.X-tt.prev.X, tt.in.Y-tt.prev.Y
			gotX, gotY := got.X-tt.prev.X, got.Y-tt.prev.Y
			if math.Abs(rawX*gotY-rawY*gotX) > 1e-9 {
				t.Errorf("Direction changed: raw (%v,%v) clamped (%v,%v)", rawX, rawY, gotX, gotY)
			}
			if rawX*gotX+rawY*gotY <= 0 {
				t.Error("Clamped displacement points the wrong way")
			}

			if in[pose.LeftWrist] != tt.in {
				t.Error("Incoming map was mutated")
			}
		})
	}
}

func TestClampVelocity_SmallMoveAndNewJointPassThrough(t *testing.T) {
	prev := pose.JointMap{pose.LeftKnee: {X: 0.5, Y: 0.5, Tracked: true}}
	in := pose.JointMap{
		pose.LeftKnee:  {X: 0.51, Y: 0.5, Tracked: true},
		pose.RightKnee: {X: 0.9, Y: 0.9, Tracked: true},
	}

	out := ClampVelocity(prev, in, 0.05, pose.LandmarkKeys)
	if out[pose.LeftKnee].X != 0.51 {
		t.Errorf("Expected small move unchanged, got %v", out[pose.LeftKnee].X)
	}
	if out[pose.RightKnee].X != 0.9 || out[pose.RightKnee].Y != 0.9 {
		t.Errorf("Expected joint without history to pass through, got %+v", out[pose.RightKnee])
	}
}

func TestSmoothCoordinateEMA(t *testing.T) {
	keys := []string{pose.Nose}

	tests := []struct {
		name        string
		prev        pose.JointMap
		in          pose.JointMap
		wantPresent bool
		wantX       float64
		wantTracked bool
	}{
		{
			name:        "blend tracked",
			prev:        pose.JointMap{pose.Nose: {X: 0, Y: 0, Tracked: true}},
			in:          pose.JointMap{pose.Nose: {X: 1, Y: 1, Tracked: true}},
			wantPresent: true, wantX: 0.5, wantTracked: true,
		},
		{
			name:        "NaN holds previous",
			prev:        pose.JointMap{pose.Nose: {X: 0.3, Y: 0.3, Tracked: true}},
			in:          pose.JointMap{pose.Nose: {X: math.NaN(), Y: 0.2, Tracked: true}},
			wantPresent: true, wantX: 0.3, wantTracked: false,
		},
		{
			name:        "untracked holds previous",
			prev:        pose.JointMap{pose.Nose: {X: 0.3, Y: 0.3, Tracked: true}},
			in:          pose.JointMap{pose.Nose: {X: 0.8, Y: 0.8, Tracked: false}},
			wantPresent: true, wantX: 0.3, wantTracked: false,
		},
		{
			name:        "weak confidence is not tracked",
			prev:        pose.JointMap{pose.Nose: {X: 0.3, Y: 0.3, Tracked: true}},
			in:          pose.JointMap{pose.Nose: {X: 0.31, Y: 0.3, Tracked: true, Confidence: pose.Conf(0.1)}},
			wantPresent: true, wantX: 0.3, wantTracked: false,
		},
		{
			name:        "first valid sample seeds",
			prev:        nil,
			in:          pose.JointMap{pose.Nose: {X: 0.7, Y: 0.2, Tracked: true}},
			wantPresent: true, wantX: 0.7, wantTracked: true,
		},
		{
			name:        "no history and invalid input",
			prev:        nil,
			in:          pose.JointMap{pose.Nose: {X: math.Inf(1), Y: 0, Tracked: true}},
			wantPresent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SmoothCoordinateEMA(tt.prev, tt.in, 0.5, keys)
			got, ok := out[pose.Nose]
			if ok != tt.wantPresent {
				t.Fatalf("Expected present=%v, got %v", tt.wantPresent, ok)
			}
			if !ok {
				return
			}
			if math.Abs(got.X-tt.wantX) > 1e-9 {
				t.Errorf("Expected X=%v, got %v", tt.wantX, got.X)
			}
			if got.Tracked != tt.wantTracked {
				t.Errorf("Expected Tracked=%v, got %v", tt.wantTracked, got.Tracked)
			}
		})
	}
}

func TestFilterCoordinates_TeleportBound(t *testing.T) {
	prev := pose.JointMap{pose.LeftAnkle: {X: 0.2, Y: 0.8, Tracked: true}}
	in := pose.JointMap{pose.LeftAnkle: {X: 0.9, Y: 0.1, Tracked: true}}

	maxDelta, alpha := 0.1, 0.4
	out := FilterCoordinates(prev, in, maxDelta, alpha, pose.LandmarkKeys)
	got := out[pose.LeftAnkle]

	moved := math.Hypot(got.X-0.2, got.Y-0.8)
	if moved > maxDelta*alpha+1e-9 {
		t.Errorf("Expected movement <= %v, got %v", maxDelta*alpha, moved)
	}
}

func TestFilterCoordinates_MonotoneConvergence(t *testing.T) {
	target := pose.Joint2D{X: 0.9, Y: 0.5, Tracked: true}
	current := pose.JointMap{pose.RightWrist: {X: 0.1, Y: 0.5, Tracked: true}}

	last := 0.1
	for i := 0; i < 70; i++ {
		current = FilterCoordinates(current, pose.JointMap{pose.RightWrist: target}, 0.05, 0.5, pose.LandmarkKeys)
		x := current[pose.RightWrist].X
		if x <= last && last < target.X {
			t.Fatalf("Step %d: expected strictly increasing, got %v after %v", i, x, last)
		}
		if x > target.X {
			t.Fatalf("Step %d: overshot target: %v", i, x)
		}
		last = x
	}
	if math.Abs(last-target.X) > 1e-6 {
		t.Errorf("Expected convergence to %v, got %v", target.X, last)
	}
}

func TestSmoothAngleEMA(t *testing.T) {
	prev := 90.0

	got := SmoothAngleEMA(&prev, 100, 0.5)
	if got == nil || *got != 95 {
		t.Errorf("Expected 95, got %v", got)
	}

	got = SmoothAngleEMA(&prev, math.NaN(), 0.5)
	if got == nil || *got != 90 {
		t.Errorf("Expected NaN to keep previous 90, got %v", got)
	}

	got = SmoothAngleEMA(nil, math.Inf(-1), 0.5)
	if got != nil {
		t.Errorf("Expected nil with no data yet, got %v", *got)
	}

	got = SmoothAngleEMA(nil, 45, 0.5)
	if got == nil || *got != 45 {
		t.Errorf("Expected first sample to seed at 45, got %v", got)
	}
}

func TestSmoothAngles_CarriesForwardInvalid(t *testing.T) {
	prev := pose.JointAngles{pose.LeftKnee: 120, pose.RightKnee: 110}
	in := pose.JointAngles{pose.LeftKnee: math.NaN(), pose.RightKnee: 130}

	out := SmoothAngles(prev, in, 0.5)
	if out[pose.LeftKnee] != 120 {
		t.Errorf("Expected leftKnee held at 120, got %v", out[pose.LeftKnee])
	}
	if out[pose.RightKnee] != 120 {
		t.Errorf("Expected rightKnee 120, got %v", out[pose.RightKnee])
	}
}

func TestSmoother_Step(t *testing.T) {
	s := NewSmoother(0.05, 0.5, 0.5)

	j1 := pose.JointMap{pose.Nose: {X: 0.5, Y: 0.5, Tracked: true}}
	_, a1 := s.Step(j1, pose.JointAngles{pose.LeftElbow: 100})
	if a1[pose.LeftElbow] != 100 {
		t.Errorf("Expected seeded angle 100, got %v", a1[pose.LeftElbow])
	}

	j2 := pose.JointMap{pose.Nose: {X: 0.9, Y: 0.5, Tracked: true}}
	joints, a2 := s.Step(j2, pose.JointAngles{pose.LeftElbow: 120})
	if a2[pose.LeftElbow] != 110 {
		t.Errorf("Expected smoothed angle 110, got %v", a2[pose.LeftElbow])
	}
	if math.Abs(joints[pose.Nose].X-0.525) > 1e-9 {
		t.Errorf("Expected nose X 0.525, got %v", joints[pose.Nose].X)
	}

	s.Reset()
	if s.LastAngles() != nil {
		t.Error("Expected no angles after Reset")
	}
}
