// Package protocol defines the JSON messages exchanged with sensor bridges
// and tracking clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-formcoach/pkg/cues"
	"github.com/teslashibe/go-formcoach/pkg/pose"
)

// Version is the outbound payload schema version.
const Version = 1

// MessageType identifies the type of message
type MessageType string

const (
	// Sensor bridge → engine
	TypeCamera  MessageType = "camera"  // Primary pose estimator frame
	TypeShadow  MessageType = "shadow"  // Secondary estimator angles
	TypeWatch   MessageType = "watch"   // Wrist orientation
	TypeAirPods MessageType = "airpods" // Head orientation
	TypeControl MessageType = "control" // Session control

	// Engine → clients
	TypeTracking MessageType = "tracking" // Per-frame tracking payload
	TypeRep      MessageType = "rep"      // Rep completed

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Errors returned when decoding inbound messages.
var (
	ErrUnknownType      = errors.New("unknown message type")
	ErrMissingTimestamp = errors.New("message has no timestamp")
)

// Message is the envelope for control and health messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into v
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Sensor bridge → engine
// =============================================================================

// SensorMessage is one sample from any sensor. Which fields are populated
// depends on Type: camera carries angles, joints and up; shadow carries
// angles; watch and airpods carry forward, up and stability.
type SensorMessage struct {
	Type       MessageType          `json:"type"`
	Timestamp  int64                `json:"ts"` // Milliseconds on the session clock
	Angles     pose.JointAngles     `json:"angles,omitempty"`
	Joints     pose.JointMap        `json:"joints,omitempty"`
	Joints3D   map[string]pose.Vec3 `json:"joints3D,omitempty"`
	Confidence float64              `json:"confidence,omitempty"`
	Forward    *pose.Vec3           `json:"forward,omitempty"`
	Up         *pose.Vec3           `json:"up,omitempty"`
	Stability  *float64             `json:"stability,omitempty"`
}

// ParseSensorMessage decodes and checks a sensor message.
func ParseSensorMessage(data []byte) (*SensorMessage, error) {
	var msg SensorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse sensor message: %w", err)
	}
	switch msg.Type {
	case TypeCamera, TypeShadow, TypeWatch, TypeAirPods:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	if msg.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingTimestamp, msg.Type)
	}
	return &msg, nil
}

// Control actions.
const (
	ActionBeginCalibration    = "begin_calibration"
	ActionFinalizeCalibration = "finalize_calibration"
	ActionReset               = "reset"
	ActionSelectWorkout       = "select_workout"
)

// ControlData is the payload of a control message
type ControlData struct {
	Action  string `json:"action"`
	Workout string `json:"workout,omitempty"` // For select_workout
}

// =============================================================================
// Engine → clients
// =============================================================================

// TrackingPayload is the per-frame message sent to clients.
type TrackingPayload struct {
	Version    int         `json:"v"`
	Type       MessageType `json:"type"`
	Timestamp  int64       `json:"ts"`
	IsTracking bool        `json:"isTracking"`
	Reps       int         `json:"reps"`
	Tracking   Tracking    `json:"tracking"`
}

// Tracking is the body of a tracking payload.
type Tracking struct {
	IsTracking        bool               `json:"isTracking"`
	Mode              string             `json:"mode"`
	Phase             string             `json:"phase"`
	Reps              int                `json:"reps"`
	PrimaryCue        string             `json:"primaryCue,omitempty"`
	PrimaryCueMessage string             `json:"primaryCueMessage,omitempty"`
	Cues              []CueItem          `json:"cues"`
	Metrics           map[string]float64 `json:"metrics"`
	Fusion            FusionStatus       `json:"fusion"`
}

// FusionStatus summarizes fused confidence.
type FusionStatus struct {
	Confidence            float64 `json:"confidence"`
	DegradedMode          bool    `json:"degradedMode"`
	Sensors               string  `json:"sensors"`
	RequiresRecalibration bool    `json:"requiresRecalibration,omitempty"`
}

// CueItem is one active cue in priority order.
type CueItem struct {
	ID       string   `json:"id"`
	Message  string   `json:"message"`
	Severity string   `json:"severity"`
	Channels []string `json:"channels"`
	Priority int      `json:"priority"`
}

// RepMessage announces a completed rep.
type RepMessage struct {
	Version   int         `json:"v"`
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"ts"`
	Rep       RepSummary  `json:"rep"`
}

// RepSummary is the client view of a rep event.
type RepSummary struct {
	ID              string             `json:"id"`
	SessionID       string             `json:"sessionId"`
	WorkoutID       string             `json:"workoutId"`
	Number          int                `json:"number"`
	DurationMs      int64              `json:"durationMs"`
	FQI             *float64           `json:"fqi"`
	Components      map[string]float64 `json:"components"`
	Missing         []string           `json:"missingComponents"`
	VisibilityBadge string             `json:"visibilityBadge"`
	ScoreSuppressed bool               `json:"scoreSuppressed"`
	Faults          []string           `json:"faults"`
	Cues            []CueItem          `json:"cues"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

func cueItems(list []cues.Cue) []CueItem {
	out := make([]CueItem, 0, len(list))
	for _, c := range list {
		channels := c.Channels
		if channels == nil {
			channels = []string{}
		}
		out = append(out, CueItem{
			ID:       c.RuleID,
			Message:  c.Message,
			Severity: c.Severity,
			Channels: channels,
			Priority: c.Priority,
		})
	}
	return out
}
