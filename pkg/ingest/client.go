// Package ingest connects sensor bridges to sessions: MQTT in, per-device
// session workers, tracking payloads out.
package ingest

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ClientConfig holds MQTT connection settings
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Option configures the MQTT adapters.
type Option func(*options)

type options struct {
	logger *slog.Logger
	qos    byte
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), qos: 0}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithQoS sets the MQTT quality of service for subscriptions and publishes.
func WithQoS(qos byte) Option {
	return func(o *options) {
		o.qos = qos
	}
}

// Client owns the MQTT connection. Subscriber and Publisher use its native
// client.
type Client struct {
	client mqtt.Client
	config ClientConfig
	logger *slog.Logger
}

// NewClient connects to the broker with auto-reconnect.
func NewClient(config ClientConfig, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	logger := o.logger.With("component", "mqtt", "broker", config.Broker)

	mo := mqtt.NewClientOptions()
	mo.AddBroker(config.Broker)
	mo.SetClientID(config.ClientID)
	mo.SetUsername(config.Username)
	mo.SetPassword(config.Password)
	mo.SetAutoReconnect(true)
	mo.SetKeepAlive(30 * time.Second)
	mo.SetPingTimeout(10 * time.Second)
	mo.SetOrderMatters(true)
	mo.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected")
	})
	mo.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("connection lost", "error", err)
	})

	client := mqtt.NewClient(mo)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", config.Broker, token.Error())
	}

	return &Client{client: client, config: config, logger: logger}, nil
}

// Native returns the underlying paho client.
func (c *Client) Native() mqtt.Client {
	return c.client
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects, waiting up to 250ms for in-flight work.
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Info("disconnected")
}
