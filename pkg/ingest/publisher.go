package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-formcoach/pkg/protocol"
)

// PublishClient is the part of mqtt.Client the publisher needs.
type PublishClient interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// outbound is one encoded message waiting to be published.
type outbound struct {
	topic   string
	payload []byte
}

// Publisher sends tracking payloads and rep messages to MQTT. It implements
// Sink; Start drains the queue on its own goroutine.
type Publisher struct {
	client PublishClient
	topics Topics
	qos    byte
	queue  chan outbound
	logger *slog.Logger
}

// NewPublisher creates a publisher with a queue of the given depth.
func NewPublisher(client PublishClient, topics Topics, depth int, opts ...Option) *Publisher {
	o := buildOptions(opts)
	if depth <= 0 {
		depth = 256
	}
	return &Publisher{
		client: client,
		topics: topics,
		qos:    o.qos,
		queue:  make(chan outbound, depth),
		logger: o.logger.With("component", "publisher"),
	}
}

// Tracking queues a tracking payload.
func (p *Publisher) Tracking(deviceID string, payload protocol.TrackingPayload) {
	p.push(p.topics.Tracking(deviceID), payload)
}

// Rep queues a rep message.
func (p *Publisher) Rep(deviceID string, msg protocol.RepMessage) {
	p.push(p.topics.Rep(deviceID), msg)
}

func (p *Publisher) push(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("encode payload", "topic", topic, "error", err)
		return
	}
	select {
	case p.queue <- outbound{topic: topic, payload: data}:
	default:
		p.logger.Warn("publish queue full, dropping payload", "topic", topic)
	}
}

// Start publishes queued payloads until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			if err := p.publish(msg); err != nil {
				p.logger.Warn("publish failed", "error", err)
			}
		}
	}
}

func (p *Publisher) publish(msg outbound) error {
	token := p.client.Publish(msg.topic, p.qos, false, msg.payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, token.Error())
	}
	return nil
}
