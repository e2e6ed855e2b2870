package sensorsync

import (
	"errors"
	"strings"
)

// ErrNoSensors is returned when classifying the empty sensor set.
var ErrNoSensors = errors.New("no sensors present")

// Sensor names, in canonical key order.
const (
	SensorCamera  = "camera"
	SensorWatch   = "watch"
	SensorAirPods = "airpods"
)

// Mode is the operating mode selected for a sensor subset.
type Mode string

const (
	ModeFullFusion    Mode = "full_fusion"
	ModeCameraWatch   Mode = "camera_watch"
	ModeCameraAirPods Mode = "camera_airpods"
	ModeCameraOnly    Mode = "camera_only"
	ModeMotionFusion  Mode = "motion_fusion"
	ModeWatchOnly     Mode = "watch_only"
	ModeAirPodsOnly   Mode = "airpods_only"
)

// Presence marks which sensors are live this frame.
type Presence struct {
	Camera  bool `json:"camera"`
	Watch   bool `json:"watch"`
	AirPods bool `json:"airpods"`
}

// Empty reports whether no sensor is live.
func (p Presence) Empty() bool {
	return !p.Camera && !p.Watch && !p.AirPods
}

// Key returns the canonical subset key, e.g. "camera+watch".
func (p Presence) Key() string {
	parts := make([]string, 0, 3)
	if p.Camera {
		parts = append(parts, SensorCamera)
	}
	if p.Watch {
		parts = append(parts, SensorWatch)
	}
	if p.AirPods {
		parts = append(parts, SensorAirPods)
	}
	return strings.Join(parts, "+")
}

// Classification is the operating mode for a sensor subset.
type Classification struct {
	Key      string   `json:"key"`
	Mode     Mode     `json:"mode"`
	Degraded bool     `json:"degraded"` // No camera: rep tracking runs on motion sensors only
	Presence Presence `json:"presence"`
}

var modes = map[Presence]Mode{
	{Camera: true, Watch: true, AirPods: true}: ModeFullFusion,
	{Camera: true, Watch: true}:                ModeCameraWatch,
	{Camera: true, AirPods: true}:              ModeCameraAirPods,
	{Camera: true}:                             ModeCameraOnly,
	{Watch: true, AirPods: true}:               ModeMotionFusion,
	{Watch: true}:                              ModeWatchOnly,
	{AirPods: true}:                            ModeAirPodsOnly,
}

// BuildNonEmptySensorMatrix returns all seven non-empty sensor subsets.
func BuildNonEmptySensorMatrix() []Presence {
	out := make([]Presence, 0, 7)
	for mask := 1; mask < 8; mask++ {
		out = append(out, Presence{
			Camera:  mask&1 != 0,
			Watch:   mask&2 != 0,
			AirPods: mask&4 != 0,
		})
	}
	return out
}

// ClassifySensorAvailability maps a non-empty subset to its mode. The mapping
// is total over the seven non-empty subsets and stable across calls.
func ClassifySensorAvailability(p Presence) (Classification, error) {
	if p.Empty() {
		return Classification{}, ErrNoSensors
	}
	return Classification{
		Key:      p.Key(),
		Mode:     modes[p],
		Degraded: !p.Camera,
		Presence: p,
	}, nil
}
