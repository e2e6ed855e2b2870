package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-formcoach/pkg/fusion"
)

// ErrMissingOrientation is returned when a motion sample has no forward vector.
var ErrMissingOrientation = errors.New("motion sample has no forward vector")

// ModeNone is reported when no sensor is live.
const ModeNone = "none"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewControlMessage creates a control message
func NewControlMessage(action, workoutID string) (*Message, error) {
	return NewMessage(TypeControl, ControlData{Action: action, Workout: workoutID})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response
func NewPongMessage(ping PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}

// BuildTrackingPayload converts a session snapshot into the v1 payload.
func BuildTrackingPayload(snap fusion.Snapshot) TrackingPayload {
	mode := string(snap.Availability.Mode)
	if !snap.Tracking {
		mode = ModeNone
	}
	metrics := snap.BodyState.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}

	return TrackingPayload{
		Version:    Version,
		Type:       TypeTracking,
		Timestamp:  snap.TimestampMs,
		IsTracking: snap.Tracking,
		Reps:       snap.Reps,
		Tracking: Tracking{
			IsTracking:        snap.Tracking,
			Mode:              mode,
			Phase:             string(snap.Phase),
			Reps:              snap.Reps,
			PrimaryCue:        snap.PrimaryCue,
			PrimaryCueMessage: snap.PrimaryCueMessage,
			Cues:              cueItems(snap.ActiveCues),
			Metrics:           metrics,
			Fusion: FusionStatus{
				Confidence:            snap.BodyState.Confidence,
				DegradedMode:          snap.FallbackModeEnabled,
				Sensors:               snap.Availability.Key,
				RequiresRecalibration: snap.Calibration.RequiresRecalibration,
			},
		},
	}
}

// NewRepMessage converts a rep event into its client message.
func NewRepMessage(ev fusion.RepEvent) RepMessage {
	components := ev.Score.Components
	if components == nil {
		components = map[string]float64{}
	}
	missing := ev.Score.MissingComponents
	if missing == nil {
		missing = []string{}
	}
	faults := ev.Faults
	if faults == nil {
		faults = []string{}
	}

	return RepMessage{
		Version:   Version,
		Type:      TypeRep,
		Timestamp: ev.TimestampMs,
		Rep: RepSummary{
			ID:              ev.ID,
			SessionID:       ev.SessionID,
			WorkoutID:       ev.WorkoutID,
			Number:          ev.RepNumber,
			DurationMs:      ev.DurationMs,
			FQI:             ev.FQI,
			Components:      components,
			Missing:         missing,
			VisibilityBadge: ev.Score.VisibilityBadge,
			ScoreSuppressed: ev.Score.ScoreSuppressed,
			Faults:          faults,
			Cues:            cueItems(ev.Cues),
		},
	}
}

// CameraFrame converts a camera message into a pipeline frame.
func (m *SensorMessage) CameraFrame() fusion.CameraFrame {
	frame := fusion.CameraFrame{
		TimestampMs: m.Timestamp,
		Angles:      m.Angles,
		Joints:      m.Joints,
		Joints3D:    m.Joints3D,
		Confidence:  m.Confidence,
	}
	if m.Up != nil {
		frame.CameraUp = *m.Up
	}
	return frame
}

// MotionSample converts a watch or airpods message. Stability defaults to 1
// when the bridge does not report it.
func (m *SensorMessage) MotionSample() (fusion.MotionSample, error) {
	if m.Forward == nil {
		return fusion.MotionSample{}, fmt.Errorf("%w: %s at %d", ErrMissingOrientation, m.Type, m.Timestamp)
	}
	sample := fusion.MotionSample{Forward: *m.Forward, Stability: 1}
	if m.Up != nil {
		sample.Up = *m.Up
	}
	if m.Stability != nil {
		sample.Stability = *m.Stability
	}
	return sample, nil
}

// Apply routes a sensor message into a session. Camera messages run a frame
// and return its snapshot; the others only buffer.
func Apply(s *fusion.Session, m *SensorMessage) (fusion.Snapshot, bool, error) {
	switch m.Type {
	case TypeCamera:
		snap, ok := s.Process(m.CameraFrame())
		return snap, ok, nil
	case TypeShadow:
		s.ObserveShadow(m.Angles)
	case TypeWatch, TypeAirPods:
		sample, err := m.MotionSample()
		if err != nil {
			return fusion.Snapshot{}, false, err
		}
		if m.Type == TypeWatch {
			s.ObserveWatch(m.Timestamp, sample)
		} else {
			s.ObserveAirPods(m.Timestamp, sample)
		}
	default:
		return fusion.Snapshot{}, false, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return fusion.Snapshot{}, false, nil
}

// =============================================================================
// Helper functions for parsing message data
// =============================================================================

// GetControlData extracts control data from a message
func (m *Message) GetControlData() (*ControlData, error) {
	if m.Type != TypeControl {
		return nil, fmt.Errorf("%w: expected control, got %s", ErrUnknownType, m.Type)
	}
	var data ControlData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
