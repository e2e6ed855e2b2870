package ingest

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/teslashibe/go-formcoach/pkg/fusion"
	"github.com/teslashibe/go-formcoach/pkg/protocol"
	"github.com/teslashibe/go-formcoach/pkg/workout"
)

// workerQueue is the per-device inbound queue depth.
const workerQueue = 64

// Sink receives everything a session produces.
type Sink interface {
	Tracking(deviceID string, payload protocol.TrackingPayload)
	Rep(deviceID string, msg protocol.RepMessage)
}

// DeviceStatus is the router's view of one device. Dropped counts camera
// frames rejected by the session and messages shed on a full device queue.
type DeviceStatus struct {
	DeviceID  string                    `json:"device"`
	SessionID string                    `json:"sessionId"`
	WorkoutID string                    `json:"workoutId"`
	Frames    int64                     `json:"frames"`
	Dropped   int64                     `json:"dropped"`
	Errors    int64                     `json:"errors"`
	Last      *protocol.TrackingPayload `json:"last,omitempty"`
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the router logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// WithSinks adds output sinks.
func WithSinks(sinks ...Sink) RouterOption {
	return func(r *Router) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithTap sets a function that sees every routed inbound, in order, before
// it reaches a session.
func WithTap(fn func(Inbound)) RouterOption {
	return func(r *Router) {
		r.tap = fn
	}
}

// WithBlockingDelivery makes Run wait for room in a device queue instead of
// dropping. Nothing is lost, but one stalled device holds up every other
// device, so this suits offline replay only.
func WithBlockingDelivery() RouterOption {
	return func(r *Router) {
		r.blocking = true
	}
}

// WithDefaultWorkout sets the workout a new device starts with.
func WithDefaultWorkout(id string) RouterOption {
	return func(r *Router) {
		r.workoutID = id
	}
}

// Router gives every device its own goroutine-owned session and fans the
// results out to sinks.
type Router struct {
	registry  *workout.Registry
	cfg       fusion.Config
	workoutID string
	sinks     []Sink
	tap       func(Inbound)
	blocking  bool
	logger    *slog.Logger

	mu     sync.RWMutex
	status map[string]*DeviceStatus
}

// NewRouter creates a router that builds sessions from registry.
func NewRouter(registry *workout.Registry, cfg fusion.Config, opts ...RouterOption) *Router {
	r := &Router{
		registry:  registry,
		cfg:       cfg,
		workoutID: "squat",
		logger:    slog.Default(),
		status:    make(map[string]*DeviceStatus),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	return r
}

// AddSink adds an output sink. Call before Run.
func (r *Router) AddSink(sink Sink) {
	r.sinks = append(r.sinks, sink)
}

// Run dispatches inbound messages until ctx is cancelled or in is closed,
// then waits for every device worker to drain. A message for a device whose
// queue is full is dropped and counted, so a slow device never stalls the
// others.
func (r *Router) Run(ctx context.Context, in <-chan Inbound) {
	workers := make(map[string]chan Inbound)
	var wg sync.WaitGroup
	defer func() {
		for _, ch := range workers {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			if err := msg.Validate(); err != nil {
				r.logger.Warn("dropping inbound", "error", err)
				continue
			}
			if r.tap != nil {
				r.tap(msg)
			}

			ch, exists := workers[msg.DeviceID]
			if !exists {
				ch = make(chan Inbound, workerQueue)
				workers[msg.DeviceID] = ch
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					r.work(id, ch)
				}(msg.DeviceID)
				r.logger.Info("device joined", "device", msg.DeviceID)
			}

			if r.blocking {
				select {
				case ch <- msg:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case ch <- msg:
			default:
				r.update(msg.DeviceID, func(st *DeviceStatus) { st.Dropped++ })
				r.logger.Debug("device queue full, dropping", "device", msg.DeviceID)
			}
		}
	}
}

// Status returns every known device sorted by ID.
func (r *Router) Status() []DeviceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceStatus, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b DeviceStatus) int {
		return strings.Compare(a.DeviceID, b.DeviceID)
	})
	return out
}

// Device returns one device's status.
func (r *Router) Device(id string) (DeviceStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.status[id]
	if !ok {
		return DeviceStatus{}, false
	}
	return *st, true
}

func (r *Router) update(id string, fn func(*DeviceStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.status[id]
	if !ok {
		st = &DeviceStatus{DeviceID: id}
		r.status[id] = st
	}
	fn(st)
}

// work owns one device's session until ch is closed.
func (r *Router) work(deviceID string, ch <-chan Inbound) {
	w := &worker{router: r, deviceID: deviceID, logger: r.logger.With("device", deviceID)}
	for msg := range ch {
		if msg.Sensor != nil {
			w.sensor(msg.Sensor)
		} else {
			w.control(msg.Control)
		}
	}
}

type worker struct {
	router   *Router
	deviceID string
	session  *fusion.Session
	logger   *slog.Logger
}

func (w *worker) start(workoutID string) bool {
	def, err := w.router.registry.Get(workoutID)
	if err != nil {
		w.logger.Error("cannot start session", "workout", workoutID, "error", err)
		return false
	}
	session, err := fusion.NewSession(def, w.router.cfg, fusion.WithLogger(w.logger))
	if err != nil {
		w.logger.Error("cannot start session", "workout", workoutID, "error", err)
		return false
	}
	w.session = session
	w.router.update(w.deviceID, func(st *DeviceStatus) {
		st.SessionID = session.ID()
		st.WorkoutID = def.ID
		st.Last = nil
	})
	w.logger.Info("session started", "session", session.ID(), "workout", def.ID)
	return true
}

func (w *worker) ensure() bool {
	return w.session != nil || w.start(w.router.workoutID)
}

func (w *worker) sensor(msg *protocol.SensorMessage) {
	if !w.ensure() {
		return
	}
	snap, ok, err := protocol.Apply(w.session, msg)
	if err != nil {
		w.logger.Debug("sensor message rejected", "error", err)
		w.router.update(w.deviceID, func(st *DeviceStatus) { st.Errors++ })
		return
	}
	if msg.Type != protocol.TypeCamera {
		return
	}
	if !ok {
		w.router.update(w.deviceID, func(st *DeviceStatus) { st.Dropped++ })
		return
	}

	payload := protocol.BuildTrackingPayload(snap)
	for _, sink := range w.router.sinks {
		sink.Tracking(w.deviceID, payload)
	}
	for _, ev := range snap.RepEvents {
		rep := protocol.NewRepMessage(ev)
		for _, sink := range w.router.sinks {
			sink.Rep(w.deviceID, rep)
		}
	}
	w.router.update(w.deviceID, func(st *DeviceStatus) {
		st.Frames++
		st.Last = &payload
	})
}

func (w *worker) control(ctrl *protocol.ControlData) {
	if ctrl.Action == protocol.ActionSelectWorkout {
		w.start(ctrl.Workout)
		return
	}
	if !w.ensure() {
		return
	}
	now := w.session.Last().TimestampMs
	switch ctrl.Action {
	case protocol.ActionBeginCalibration:
		w.session.BeginCalibration(now)
	case protocol.ActionFinalizeCalibration:
		w.session.FinalizeCalibration(now)
	case protocol.ActionReset:
		w.session.Reset()
	default:
		w.logger.Warn("unknown control action", "action", ctrl.Action)
	}
}
