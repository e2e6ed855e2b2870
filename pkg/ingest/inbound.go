package ingest

import (
	"errors"

	"github.com/teslashibe/go-formcoach/pkg/protocol"
)

// ErrEmptyInbound is returned for an inbound with neither a sensor sample nor
// a control command.
var ErrEmptyInbound = errors.New("inbound carries no sensor sample or control")

// Inbound is one message addressed to a device's session. Exactly one of
// Sensor and Control is set.
type Inbound struct {
	DeviceID string                  `json:"device"`
	Sensor   *protocol.SensorMessage `json:"sensor,omitempty"`
	Control  *protocol.ControlData   `json:"control,omitempty"`
}

// Validate checks the inbound is routable.
func (in Inbound) Validate() error {
	if in.DeviceID == "" {
		return errors.New("inbound has no device ID")
	}
	if (in.Sensor == nil) == (in.Control == nil) {
		return ErrEmptyInbound
	}
	return nil
}
