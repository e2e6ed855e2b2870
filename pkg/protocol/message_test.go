package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/teslashibe/go-formcoach/pkg/cues"
	"github.com/teslashibe/go-formcoach/pkg/fusion"
	"github.com/teslashibe/go-formcoach/pkg/pose"
	"github.com/teslashibe/go-formcoach/pkg/scoring"
	"github.com/teslashibe/go-formcoach/pkg/sensorsync"
	"github.com/teslashibe/go-formcoach/pkg/workout"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
	}{
		{"control message", TypeControl, ControlData{Action: ActionReset}},
		{"ping message", TypePing, PingData{ID: "p1"}},
		{"nil data", TypePing, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if err != nil {
				t.Fatalf("NewMessage() error = %v", err)
			}
			if msg.Type != tt.msgType {
				t.Errorf("Expected type %v, got %v", tt.msgType, msg.Type)
			}
			if msg.Timestamp == 0 {
				t.Error("Expected timestamp to be set")
			}
		})
	}
}

func TestControlMessageRoundTrip(t *testing.T) {
	msg, err := NewControlMessage(ActionSelectWorkout, "pullup")
	if err != nil {
		t.Fatalf("NewControlMessage() error = %v", err)
	}
	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	ctrl, err := parsed.GetControlData()
	if err != nil {
		t.Fatalf("GetControlData() error = %v", err)
	}
	if ctrl.Action != ActionSelectWorkout || ctrl.Workout != "pullup" {
		t.Errorf("Expected select_workout pullup, got %+v", ctrl)
	}

	ping, _ := NewPingMessage("x")
	if _, err := ping.GetControlData(); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Expected ErrUnknownType, got %v", err)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}
	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	pongMsg, err := NewPongMessage(*pingData)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	if pongMsg.Type != TypePong {
		t.Errorf("Expected pong, got %v", pongMsg.Type)
	}
	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pongData.ID != "test-123" {
		t.Errorf("Expected ID test-123, got %v", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("Expected non-negative latency, got %v", pongData.LatencyMs)
	}
}

func TestParseSensorMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"camera", `{"type":"camera","ts":100,"confidence":0.9,"angles":{"leftKnee":120}}`, nil},
		{"watch", `{"type":"watch","ts":100,"forward":{"x":0,"y":0,"z":1}}`, nil},
		{"unknown type", `{"type":"lidar","ts":100}`, ErrUnknownType},
		{"no timestamp", `{"type":"camera"}`, ErrMissingTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSensorMessage([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := ParseSensorMessage([]byte("{")); err == nil {
		t.Error("Expected malformed JSON to fail")
	}
}

func TestSensorMessage_MotionSample(t *testing.T) {
	msg := &SensorMessage{Type: TypeAirPods, Timestamp: 5, Forward: &pose.Vec3{Z: 1}}
	sample, err := msg.MotionSample()
	if err != nil {
		t.Fatalf("MotionSample() error = %v", err)
	}
	if sample.Stability != 1 {
		t.Errorf("Expected default stability 1, got %v", sample.Stability)
	}

	msg.Forward = nil
	if _, err := msg.MotionSample(); !errors.Is(err, ErrMissingOrientation) {
		t.Errorf("Expected ErrMissingOrientation, got %v", err)
	}
}

func TestBuildTrackingPayload(t *testing.T) {
	snap := fusion.Snapshot{
		TimestampMs:         1234,
		Tracking:            true,
		Availability:        sensorsync.Classification{Key: "camera+watch", Mode: sensorsync.ModeCameraWatch},
		FallbackModeEnabled: true,
		Reps:                3,
		Phase:               "bottom",
		PrimaryCue:          "squat_chest_up",
		BodyState: fusion.BodyState{
			Confidence: 0.2,
			Metrics:    map[string]float64{"knee_avg": 95},
		},
		ActiveCues: []cues.Cue{{RuleID: "squat_chest_up", Message: "Chest up", Priority: 1}},
	}

	data, err := json.Marshal(BuildTrackingPayload(snap))
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if decoded["v"] != float64(1) || decoded["type"] != "tracking" {
		t.Errorf("Expected v1 tracking header, got v=%v type=%v", decoded["v"], decoded["type"])
	}
	if decoded["isTracking"] != true || decoded["reps"] != float64(3) {
		t.Errorf("Expected top-level isTracking and reps, got %v", decoded)
	}

	tracking := decoded["tracking"].(map[string]any)
	if tracking["mode"] != "camera_watch" || tracking["phase"] != "bottom" {
		t.Errorf("Expected camera_watch/bottom, got %v/%v", tracking["mode"], tracking["phase"])
	}
	if tracking["primaryCue"] != "squat_chest_up" {
		t.Errorf("Expected primary cue, got %v", tracking["primaryCue"])
	}
	fusionStatus := tracking["fusion"].(map[string]any)
	if fusionStatus["degradedMode"] != true || fusionStatus["confidence"] != 0.2 {
		t.Errorf("Expected degraded fusion status, got %v", fusionStatus)
	}
	list := tracking["cues"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["channels"] == nil {
		t.Errorf("Expected one cue with channels array, got %v", list)
	}
}

func TestBuildTrackingPayload_NotTracking(t *testing.T) {
	p := BuildTrackingPayload(fusion.Snapshot{})
	if p.Tracking.Mode != ModeNone {
		t.Errorf("Expected mode none, got %s", p.Tracking.Mode)
	}
	if p.Tracking.Metrics == nil || p.Tracking.Cues == nil {
		t.Error("Expected empty metrics and cues, not null")
	}
}

func TestNewRepMessage(t *testing.T) {
	fqi := 82.5
	msg := NewRepMessage(fusion.RepEvent{
		ID:        "r1",
		WorkoutID: "squat",
		RepNumber: 2,
		FQI:       &fqi,
		Score: scoring.Result{
			Components:      map[string]float64{scoring.ROM: 90},
			VisibilityBadge: scoring.BadgePartial,
		},
	})
	if msg.Version != 1 || msg.Type != TypeRep {
		t.Errorf("Expected v1 rep, got v=%d type=%s", msg.Version, msg.Type)
	}
	if msg.Rep.Number != 2 || *msg.Rep.FQI != 82.5 {
		t.Errorf("Expected rep 2 with fqi 82.5, got %+v", msg.Rep)
	}
	if msg.Rep.Faults == nil || msg.Rep.Missing == nil || msg.Rep.Cues == nil {
		t.Error("Expected empty lists, not null")
	}
}

func TestApply(t *testing.T) {
	def, err := workout.LoadEmbedded("squat")
	if err != nil {
		t.Fatalf("LoadEmbedded error = %v", err)
	}
	s, err := fusion.NewSession(def, fusion.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession error = %v", err)
	}

	forward := &pose.Vec3{Z: 1}
	if _, ok, err := Apply(s, &SensorMessage{Type: TypeWatch, Timestamp: 90, Forward: forward}); ok || err != nil {
		t.Errorf("Expected watch sample buffered, got ok=%v err=%v", ok, err)
	}
	if _, _, err := Apply(s, &SensorMessage{Type: TypeAirPods, Timestamp: 90}); !errors.Is(err, ErrMissingOrientation) {
		t.Errorf("Expected ErrMissingOrientation, got %v", err)
	}

	snap, ok, err := Apply(s, &SensorMessage{
		Type:       TypeCamera,
		Timestamp:  100,
		Confidence: 0.9,
		Angles:     pose.JointAngles{pose.LeftKnee: 170, pose.RightKnee: 170},
	})
	if err != nil || !ok {
		t.Fatalf("Expected camera frame processed, got ok=%v err=%v", ok, err)
	}
	if snap.Availability.Mode != sensorsync.ModeCameraWatch {
		t.Errorf("Expected camera_watch, got %s", snap.Availability.Mode)
	}
}
