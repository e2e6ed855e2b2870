package ingest

import (
	"strings"

	"github.com/teslashibe/go-formcoach/pkg/protocol"
)

// DefaultTopicPrefix is the root of every formcoach topic.
const DefaultTopicPrefix = "formcoach"

// Topic kinds.
const (
	KindSensor   = "sensor"
	KindControl  = "control"
	KindTracking = "tracking"
	KindRep      = "rep"
)

// Topics builds and parses the topic layout:
//
//	<prefix>/<device>/sensor/<camera|shadow|watch|airpods>
//	<prefix>/<device>/control
//	<prefix>/<device>/tracking
//	<prefix>/<device>/rep
type Topics struct {
	Prefix string
}

// NewTopics returns the layout under prefix, or the default prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// SensorFilter matches every device's sensor topics.
func (t Topics) SensorFilter() string {
	return t.Prefix + "/+/" + KindSensor + "/+"
}

// ControlFilter matches every device's control topic.
func (t Topics) ControlFilter() string {
	return t.Prefix + "/+/" + KindControl
}

// Sensor returns the topic for one device sensor.
func (t Topics) Sensor(deviceID string, sensor protocol.MessageType) string {
	return t.Prefix + "/" + deviceID + "/" + KindSensor + "/" + string(sensor)
}

// Control returns a device's control topic.
func (t Topics) Control(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/" + KindControl
}

// Tracking returns a device's tracking payload topic.
func (t Topics) Tracking(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/" + KindTracking
}

// Rep returns a device's rep event topic.
func (t Topics) Rep(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/" + KindRep
}

// Parse splits a topic into device ID and kind. ok is false for topics
// outside the prefix or with an empty device ID.
func (t Topics) Parse(topic string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
