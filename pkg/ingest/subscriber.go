package ingest

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-formcoach/pkg/protocol"
)

// enqueueTimeout bounds how long a broker callback waits on a full queue.
const enqueueTimeout = 100 * time.Millisecond

// Subscriber decodes sensor and control topics and writes Inbound values to
// a channel.
type Subscriber struct {
	client mqtt.Client
	topics Topics
	out    chan<- Inbound
	qos    byte
	logger *slog.Logger
}

// NewSubscriber creates a subscriber writing to out.
func NewSubscriber(client mqtt.Client, topics Topics, out chan<- Inbound, opts ...Option) *Subscriber {
	o := buildOptions(opts)
	return &Subscriber{
		client: client,
		topics: topics,
		out:    out,
		qos:    o.qos,
		logger: o.logger.With("component", "subscriber"),
	}
}

// SubscribeAll subscribes to the sensor and control filters.
func (s *Subscriber) SubscribeAll() error {
	filters := map[string]mqtt.MessageHandler{
		s.topics.SensorFilter():  s.handleSensor,
		s.topics.ControlFilter(): s.handleControl,
	}
	for filter, handler := range filters {
		token := s.client.Subscribe(filter, s.qos, handler)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", filter, token.Error())
		}
		s.logger.Info("subscribed", "topic", filter)
	}
	return nil
}

func (s *Subscriber) handleSensor(_ mqtt.Client, msg mqtt.Message) {
	deviceID, kind, ok := s.topics.Parse(msg.Topic())
	if !ok || kind != KindSensor {
		s.logger.Warn("unexpected sensor topic", "topic", msg.Topic())
		return
	}
	sensor, err := protocol.ParseSensorMessage(msg.Payload())
	if err != nil {
		s.logger.Warn("bad sensor message", "device", deviceID, "error", err)
		return
	}
	s.enqueue(Inbound{DeviceID: deviceID, Sensor: sensor})
}

func (s *Subscriber) handleControl(_ mqtt.Client, msg mqtt.Message) {
	deviceID, kind, ok := s.topics.Parse(msg.Topic())
	if !ok || kind != KindControl {
		s.logger.Warn("unexpected control topic", "topic", msg.Topic())
		return
	}
	envelope, err := protocol.ParseMessage(msg.Payload())
	if err != nil {
		s.logger.Warn("bad control message", "device", deviceID, "error", err)
		return
	}
	ctrl, err := envelope.GetControlData()
	if err != nil {
		s.logger.Warn("bad control message", "device", deviceID, "error", err)
		return
	}
	s.enqueue(Inbound{DeviceID: deviceID, Control: ctrl})
}

func (s *Subscriber) enqueue(in Inbound) {
	select {
	case s.out <- in:
	case <-time.After(enqueueTimeout):
		s.logger.Warn("inbound queue full, dropping message", "device", in.DeviceID)
	}
}
