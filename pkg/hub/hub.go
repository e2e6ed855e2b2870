package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when registering with a hub whose Run has ended.
var ErrClosed = errors.New("hub closed")

// InboundFunc receives text frames sent by a client. Replies for that
// client alone go through c.Reply.
type InboundFunc func(c *Client, data []byte)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithInbound sets the handler for client frames. Without one, client
// frames are read and discarded.
func WithInbound(fn InboundFunc) Option {
	return func(h *Hub) {
		h.inbound = fn
	}
}

// WithWelcome sets a function whose result is queued to every new client,
// e.g. the latest tracking payload.
func WithWelcome(fn func() []Message) Option {
	return func(h *Hub) {
		h.welcome = fn
	}
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name    string
	logger  *slog.Logger
	inbound InboundFunc
	welcome func() []Message

	// Registered clients, owned by Run
	clients map[*Client]bool

	broadcast  chan Message
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client

	// Closed when Run returns
	done     chan struct{}
	doneOnce sync.Once

	// Client count mirror for readers outside Run
	mu    sync.RWMutex
	count int

	running atomic.Bool
	dropped atomic.Int64
}

// New creates a new Hub
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		direct:     make(chan directMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("hub", name)
	return h
}

type directMessage struct {
	client *Client
	msg    Message
}

// Run is the hub's main loop. It returns when ctx is cancelled, closing
// every client. A hub runs once; later registrations fail with ErrClosed.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.doneOnce.Do(func() { close(h.done) })
	}()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			if h.welcome != nil {
				for _, msg := range h.welcome() {
					h.deliver(client, msg)
				}
			}
			h.logger.Info("client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
			}
			h.logger.Info("client disconnected", "clients", len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}

		case d := <-h.direct:
			if h.clients[d.client] {
				h.deliver(d.client, d.msg)
			}
		}
	}
}

// deliver queues msg for client, dropping the client if it is too slow.
func (h *Hub) deliver(client *Client, msg Message) {
	select {
	case client.send <- msg:
	default:
		h.remove(client)
		h.logger.Warn("dropped slow client")
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Broadcast queues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts v
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("hub %s: encode: %w", h.name, err)
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// sendTo queues msg for one client without blocking.
func (h *Hub) sendTo(c *Client, msg Message) {
	select {
	case h.direct <- directMessage{client: c, msg: msg}:
	case <-h.done:
	default:
		h.dropped.Add(1)
		h.logger.Warn("reply queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many broadcasts were discarded on a full queue
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// IsRunning returns whether Run is active
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
