package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-formcoach/pkg/hub"
	"github.com/teslashibe/go-formcoach/pkg/ingest"
	"github.com/teslashibe/go-formcoach/pkg/protocol"
	"github.com/teslashibe/go-formcoach/pkg/workout"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Devices  []ingest.DeviceStatus `json:"devices"`
	Workouts []string              `json:"workouts"`
	Clients  int                   `json:"clients"`
}

// WorkoutSummary describes one workout in GET /api/workouts.
type WorkoutSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
	Rules       int    `json:"rules"`
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// handleStatus returns every device and the workout catalog
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Devices:  s.status.Status(),
		Workouts: s.registry.List(),
		Clients:  s.ClientCount(),
	})
}

// handleDevice returns one device
func (s *Server) handleDevice(c *fiber.Ctx) error {
	st, ok := s.status.Device(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown device",
		})
	}
	return c.JSON(st)
}

// handleControl forwards a control command to a device session
func (s *Server) handleControl(c *fiber.Ctx) error {
	var ctrl protocol.ControlData
	if err := c.BodyParser(&ctrl); err != nil || ctrl.Action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"action\": ...}",
		})
	}
	if s.control == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "control not configured",
		})
	}
	s.control(ingest.Inbound{DeviceID: c.Params("id"), Control: &ctrl})
	return c.Status(fiber.StatusAccepted).JSON(ctrl)
}

// handleListWorkouts returns the workout catalog
func (s *Server) handleListWorkouts(c *fiber.Ctx) error {
	ids := s.registry.List()
	out := make([]WorkoutSummary, 0, len(ids))
	for _, id := range ids {
		def, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		out = append(out, WorkoutSummary{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Source:      def.Source,
			Rules:       len(def.Rules),
		})
	}
	return c.JSON(out)
}

// handleGetWorkout returns a full workout definition
func (s *Server) handleGetWorkout(c *fiber.Ctx) error {
	def, err := s.registry.Get(c.Params("id"))
	if errors.Is(err, workout.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return err
	}
	return c.JSON(def)
}

// checkWatch refuses new device hubs once the server is at capacity
func (s *Server) checkWatch(c *fiber.Ctx) error {
	if !s.canWatch(c.Params("device")) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "too many watched devices",
		})
	}
	return c.Next()
}

// handleTrackingWS streams a device's tracking payloads
func (s *Server) handleTrackingWS(c *websocket.Conn) {
	deviceID := c.Params("device")
	client, err := hub.NewClient(s.hubFor(deviceID), c)
	if err != nil {
		s.logger.Debug("websocket refused", "device", deviceID, "error", err)
		c.Close()
		return
	}
	client.Run()
}

// handleInbound accepts control envelopes and pings from websocket clients.
// It returns the reply for the sending client, or nil.
func (s *Server) handleInbound(deviceID string, data []byte) []byte {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Debug("bad client frame", "device", deviceID, "error", err)
		return nil
	}
	switch msg.Type {
	case protocol.TypeControl:
		ctrl, err := msg.GetControlData()
		if err != nil || s.control == nil {
			return nil
		}
		s.control(ingest.Inbound{DeviceID: deviceID, Control: ctrl})
	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return nil
		}
		pong, err := protocol.NewPongMessage(*ping)
		if err != nil {
			return nil
		}
		reply, err := pong.Bytes()
		if err != nil {
			return nil
		}
		return reply
	}
	return nil
}
