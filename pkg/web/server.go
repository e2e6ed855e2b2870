// Package web serves the HTTP status API and live tracking websockets.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-formcoach/pkg/hub"
	"github.com/teslashibe/go-formcoach/pkg/ingest"
	"github.com/teslashibe/go-formcoach/pkg/protocol"
	"github.com/teslashibe/go-formcoach/pkg/workout"
)

// maxHubs bounds how many devices websocket clients can watch at once.
const maxHubs = 256

// StatusProvider reports device state. *ingest.Router implements it.
type StatusProvider interface {
	Status() []ingest.DeviceStatus
	Device(id string) (ingest.DeviceStatus, bool)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithControl sets where control commands from HTTP and websocket clients
// are sent.
func WithControl(fn func(ingest.Inbound)) Option {
	return func(s *Server) {
		s.control = fn
	}
}

// Server is the HTTP/websocket surface. It implements ingest.Sink.
type Server struct {
	app      *fiber.App
	port     string
	status   StatusProvider
	registry *workout.Registry
	control  func(ingest.Inbound)
	logger   *slog.Logger

	// One hub per device, created on first use. Hubs run until Close.
	hubsMu  sync.Mutex
	hubs    map[string]*hub.Hub
	maxHubs int
	ctx     context.Context
	cancel  context.CancelFunc

	// Latest payload per device for new websocket clients
	lastMu sync.RWMutex
	last   map[string][]byte
}

// NewServer creates the server and its routes.
func NewServer(port string, status StatusProvider, registry *workout.Registry, opts ...Option) *Server {
	s := &Server{
		port:     port,
		status:   status,
		registry: registry,
		logger:   slog.Default(),
		hubs:     make(map[string]*hub.Hub),
		maxHubs:  maxHubs,
		last:     make(map[string][]byte),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")

	app := fiber.New(fiber.Config{
		AppName:               "formcoach",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/devices/:id", s.handleDevice)
	api.Post("/devices/:id/control", s.handleControl)
	api.Get("/workouts", s.handleListWorkouts)
	api.Get("/workouts/:id", s.handleGetWorkout)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/tracking/:device", s.checkWatch, websocket.New(s.handleTrackingWS))

	s.app = app
	return s
}

// App exposes the fiber app for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves until ctx is cancelled, then closes the hubs and shuts the
// app down.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("listening", "addr", "http://localhost:"+s.port)
	if err := s.app.Listen(":" + s.port); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

// Close stops every device hub, which disconnects their clients. Hubs
// created afterwards refuse new clients.
func (s *Server) Close() {
	s.cancel()
}

// Tracking broadcasts a tracking payload to the device's clients.
func (s *Server) Tracking(deviceID string, payload protocol.TrackingPayload) {
	s.broadcast(deviceID, payload, true)
}

// Rep broadcasts a rep message to the device's clients.
func (s *Server) Rep(deviceID string, msg protocol.RepMessage) {
	s.broadcast(deviceID, msg, false)
}

func (s *Server) broadcast(deviceID string, v any, remember bool) {
	h := s.hubFor(deviceID)
	if remember {
		data, err := encode(v)
		if err != nil {
			s.logger.Error("encode payload", "error", err)
			return
		}
		s.lastMu.Lock()
		s.last[deviceID] = data
		s.lastMu.Unlock()
		h.Broadcast(hub.NewJSONMessage(data))
		return
	}
	if err := h.BroadcastJSON(v); err != nil {
		s.logger.Error("broadcast", "error", err)
	}
}

// hubFor returns the device hub, starting it on first use.
func (s *Server) hubFor(deviceID string) *hub.Hub {
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	if h, ok := s.hubs[deviceID]; ok {
		return h
	}
	h := hub.New(deviceID,
		hub.WithLogger(s.logger),
		hub.WithInbound(func(c *hub.Client, data []byte) {
			if reply := s.handleInbound(deviceID, data); reply != nil {
				c.Reply(hub.NewJSONMessage(reply))
			}
		}),
		hub.WithWelcome(func() []hub.Message {
			s.lastMu.RLock()
			defer s.lastMu.RUnlock()
			if data, ok := s.last[deviceID]; ok {
				return []hub.Message{hub.NewJSONMessage(data)}
			}
			return nil
		}),
	)
	s.hubs[deviceID] = h
	go h.Run(s.ctx)
	return h
}

// canWatch reports whether a websocket client may watch deviceID.
func (s *Server) canWatch(deviceID string) bool {
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	_, ok := s.hubs[deviceID]
	return ok || len(s.hubs) < s.maxHubs
}

// ClientCount returns the number of websocket clients across devices.
func (s *Server) ClientCount() int {
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	n := 0
	for _, h := range s.hubs {
		n += h.ClientCount()
	}
	return n
}
