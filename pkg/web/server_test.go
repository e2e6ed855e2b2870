package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-formcoach/pkg/ingest"
	"github.com/teslashibe/go-formcoach/pkg/protocol"
	"github.com/teslashibe/go-formcoach/pkg/workout"
)

type fakeStatus struct {
	devices []ingest.DeviceStatus
}

func (f fakeStatus) Status() []ingest.DeviceStatus { return f.devices }

func (f fakeStatus) Device(id string) (ingest.DeviceStatus, bool) {
	for _, d := range f.devices {
		if d.DeviceID == id {
			return d, true
		}
	}
	return ingest.DeviceStatus{}, false
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	reg := workout.NewRegistry()
	if err := reg.LoadBuiltIn(); err != nil {
		t.Fatalf("LoadBuiltIn failed: %v", err)
	}
	status := fakeStatus{devices: []ingest.DeviceStatus{{DeviceID: "p1", WorkoutID: "squat", Frames: 12}}}
	s := NewServer("0", status, reg, opts...)
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	code, body := do(t, s, http.MethodGet, "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	var got StatusResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(got.Devices) != 1 || got.Devices[0].Frames != 12 {
		t.Errorf("Expected p1 with 12 frames, got %+v", got.Devices)
	}
	if len(got.Workouts) != 3 {
		t.Errorf("Expected 3 workouts, got %v", got.Workouts)
	}
}

func TestDevice(t *testing.T) {
	s := newTestServer(t)
	if code, _ := do(t, s, http.MethodGet, "/api/devices/p1", ""); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
	if code, _ := do(t, s, http.MethodGet, "/api/devices/nope", ""); code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
}

func TestWorkouts(t *testing.T) {
	s := newTestServer(t)

	code, body := do(t, s, http.MethodGet, "/api/workouts", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	var list []WorkoutSummary
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(list) != 3 || list[0].ID != "pullup" || list[0].Source != workout.SourceBuiltIn {
		t.Errorf("Expected sorted builtin catalog, got %+v", list)
	}

	code, body = do(t, s, http.MethodGet, "/api/workouts/squat", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	var def workout.Definition
	if err := json.Unmarshal(body, &def); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if def.PrimaryMetric != "knee_avg" {
		t.Errorf("Expected knee_avg, got %s", def.PrimaryMetric)
	}

	if code, _ := do(t, s, http.MethodGet, "/api/workouts/deadlift", ""); code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
}

func TestControl(t *testing.T) {
	var got []ingest.Inbound
	s := newTestServer(t, WithControl(func(in ingest.Inbound) { got = append(got, in) }))

	code, _ := do(t, s, http.MethodPost, "/api/devices/p1/control", `{"action":"select_workout","workout":"pushup"}`)
	if code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", code)
	}
	if code, _ := do(t, s, http.MethodPost, "/api/devices/p1/control", `{}`); code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}

	msg, _ := protocol.NewControlMessage(protocol.ActionReset, "")
	data, _ := msg.Bytes()
	if reply := s.handleInbound("p2", data); reply != nil {
		t.Errorf("Expected no reply to control, got %s", reply)
	}
	if reply := s.handleInbound("p2", []byte("garbage")); reply != nil {
		t.Errorf("Expected no reply to garbage, got %s", reply)
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 control commands, got %d", len(got))
	}
	if got[0].DeviceID != "p1" || got[0].Control.Workout != "pushup" {
		t.Errorf("Expected pushup for p1, got %+v", got[0])
	}
	if got[1].DeviceID != "p2" || got[1].Control.Action != protocol.ActionReset {
		t.Errorf("Expected reset for p2, got %+v", got[1])
	}
}

func TestControl_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	code, _ := do(t, s, http.MethodPost, "/api/devices/p1/control", `{"action":"reset"}`)
	if code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", code)
	}
}

func TestTracking_RemembersLatest(t *testing.T) {
	s := newTestServer(t)
	s.Tracking("p1", protocol.TrackingPayload{Version: 1, Type: protocol.TypeTracking, Reps: 4})

	s.lastMu.RLock()
	data := s.last["p1"]
	s.lastMu.RUnlock()

	var p protocol.TrackingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Reps != 4 {
		t.Errorf("Expected remembered payload with 4 reps, got %d", p.Reps)
	}
	if s.ClientCount() != 0 {
		t.Errorf("Expected no clients, got %d", s.ClientCount())
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	if code, _ := do(t, s, http.MethodGet, "/ws/tracking/p1", ""); code != http.StatusUpgradeRequired {
		t.Errorf("Expected 426, got %d", code)
	}
}

func TestHandleInbound_PingReply(t *testing.T) {
	s := newTestServer(t)
	ping, _ := protocol.NewPingMessage("abc")
	data, _ := ping.Bytes()

	reply := s.handleInbound("p1", data)
	msg, err := protocol.ParseMessage(reply)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	pong, err := msg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData failed: %v", err)
	}
	if msg.Type != protocol.TypePong || pong.ID != "abc" {
		t.Errorf("Expected pong abc, got %s %+v", msg.Type, pong)
	}
}

func TestClose_StopsHubs(t *testing.T) {
	reg := workout.NewRegistry()
	s := NewServer("0", fakeStatus{}, reg)
	s.Tracking("p1", protocol.TrackingPayload{Type: protocol.TypeTracking})

	s.hubsMu.Lock()
	h := s.hubs["p1"]
	s.hubsMu.Unlock()

	s.Close()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected device hub to stop on Close")
	}
}

func TestWebsocket_DeviceLimit(t *testing.T) {
	s := newTestServer(t)
	s.maxHubs = 1
	s.Tracking("p1", protocol.TrackingPayload{Type: protocol.TypeTracking})

	req := httptest.NewRequest(http.MethodGet, "/ws/tracking/p2", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for a new device over the limit, got %d", resp.StatusCode)
	}
	if !s.canWatch("p1") {
		t.Error("Expected an existing device to stay watchable")
	}
}
