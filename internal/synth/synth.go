// Package synth generates synthetic sensor streams for demos and tests.
package synth

import (
	"github.com/teslashibe/go-formcoach/pkg/pose"
	"github.com/teslashibe/go-formcoach/pkg/protocol"
)

// FrameMs is the synthetic camera period (about 30 fps).
const FrameMs = 33

// SquatCycle returns knee angles for one rep: stand, descend, pause, rise,
// stand.
func SquatCycle() []float64 {
	var out []float64
	for i := 0; i < 10; i++ {
		out = append(out, 170)
	}
	for i := 1; i <= 30; i++ {
		out = append(out, 170-float64(i)*3)
	}
	for i := 0; i < 10; i++ {
		out = append(out, 80)
	}
	for i := 1; i <= 30; i++ {
		out = append(out, 80+float64(i)*3)
	}
	for i := 0; i < 10; i++ {
		out = append(out, 170)
	}
	return out
}

// Joints returns a fully tracked landmark set.
func Joints() pose.JointMap {
	m := make(pose.JointMap, len(pose.LandmarkKeys))
	for i, k := range pose.LandmarkKeys {
		m[k] = pose.Joint2D{X: 0.3 + 0.03*float64(i), Y: 0.2 + 0.05*float64(i), Tracked: true, Confidence: pose.Conf(0.9)}
	}
	return m
}

// Camera builds a camera message with both knees and hips at knee degrees.
func Camera(ts int64, knee float64) *protocol.SensorMessage {
	up := pose.Vec3{Y: 1}
	return &protocol.SensorMessage{
		Type:       protocol.TypeCamera,
		Timestamp:  ts,
		Confidence: 0.9,
		Joints:     Joints(),
		Up:         &up,
		Angles: pose.JointAngles{
			pose.LeftKnee: knee, pose.RightKnee: knee,
			pose.LeftHip: knee, pose.RightHip: knee,
			pose.LeftElbow: 170, pose.RightElbow: 170,
			pose.LeftShoulder: 20, pose.RightShoulder: 20,
		},
	}
}

// Motion builds a still watch or airpods sample facing forward.
func Motion(kind protocol.MessageType, ts int64) *protocol.SensorMessage {
	forward, up, stability := pose.Vec3{Z: 1}, pose.Vec3{Y: 1}, 0.98
	return &protocol.SensorMessage{
		Type:      kind,
		Timestamp: ts,
		Forward:   &forward,
		Up:        &up,
		Stability: &stability,
	}
}

// Squats returns reps squat cycles starting after startMs. When withMotion
// is set every camera frame is preceded by aligned watch and airpods
// samples.
func Squats(reps int, startMs int64, withMotion bool) []*protocol.SensorMessage {
	var out []*protocol.SensorMessage
	ts := startMs
	for r := 0; r < reps; r++ {
		for _, knee := range SquatCycle() {
			ts += FrameMs
			if withMotion {
				out = append(out, Motion(protocol.TypeWatch, ts), Motion(protocol.TypeAirPods, ts))
			}
			out = append(out, Camera(ts, knee))
		}
	}
	return out
}
