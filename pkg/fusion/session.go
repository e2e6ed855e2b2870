package fusion

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/teslashibe/go-formcoach/pkg/calibration"
	"github.com/teslashibe/go-formcoach/pkg/cues"
	"github.com/teslashibe/go-formcoach/pkg/debug"
	"github.com/teslashibe/go-formcoach/pkg/features"
	"github.com/teslashibe/go-formcoach/pkg/filter"
	"github.com/teslashibe/go-formcoach/pkg/phase"
	"github.com/teslashibe/go-formcoach/pkg/pose"
	"github.com/teslashibe/go-formcoach/pkg/scoring"
	"github.com/teslashibe/go-formcoach/pkg/sensorsync"
	"github.com/teslashibe/go-formcoach/pkg/timing"
	"github.com/teslashibe/go-formcoach/pkg/workout"
)

// ErrNoWorkout is returned when a session is created without a definition.
var ErrNoWorkout = errors.New("session needs a workout definition")

// CameraFrame is one camera tick. It drives the session clock.
type CameraFrame struct {
	TimestampMs int64                `json:"ts"`
	Angles      pose.JointAngles     `json:"angles,omitempty"`
	Joints      pose.JointMap        `json:"joints,omitempty"`
	Joints3D    map[string]pose.Vec3 `json:"joints3D,omitempty"`
	Confidence  float64              `json:"confidence"`
	CameraUp    pose.Vec3            `json:"up"`
}

// MotionSample is one watch or headphone orientation reading.
type MotionSample struct {
	Forward   pose.Vec3 `json:"forward"`
	Up        pose.Vec3 `json:"up"`
	Stability float64   `json:"stability"` // 0-1, how still the sensor is
}

// RepEvent is emitted once per completed rep.
type RepEvent struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	WorkoutID   string          `json:"workoutId"`
	RepNumber   int             `json:"repNumber"`
	TimestampMs int64           `json:"ts"`
	DurationMs  int64           `json:"durationMs"`
	FQI         *float64        `json:"fqi"`
	Score       scoring.Result  `json:"score"`
	Faults      []string        `json:"faults"`
	Cues        []cues.Cue      `json:"cues"`
	Context     pose.RepContext `json:"context"`
}

// CalibrationStatus summarizes calibration for the snapshot.
type CalibrationStatus struct {
	Phase                 calibration.Phase `json:"phase"`
	Confidence            float64           `json:"confidence"`
	DriftDeg              *float64          `json:"driftDeg,omitempty"`
	RequiresRecalibration bool              `json:"requiresRecalibration"`
}

// Snapshot is everything a session produced for one frame.
type Snapshot struct {
	SessionID           string                    `json:"sessionId"`
	WorkoutID           string                    `json:"workoutId"`
	TimestampMs         int64                     `json:"ts"`
	Tracking            bool                      `json:"isTracking"`
	Mode                string                    `json:"mode"`
	Availability        sensorsync.Classification `json:"availability"`
	BodyState           BodyState                 `json:"bodyState"`
	FallbackModeEnabled bool                      `json:"fallbackModeEnabled"`
	Reps                int                       `json:"reps"`
	Phase               phase.Phase               `json:"phase"`
	PrimaryCue          string                    `json:"primaryCue,omitempty"`
	PrimaryCueMessage   string                    `json:"primaryCueMessage,omitempty"`
	Cues                []cues.Cue                `json:"cues"`
	ActiveCues          []cues.Cue                `json:"activeCues"`
	RepEvents           []RepEvent                `json:"repEvents,omitempty"`
	Calibration         CalibrationStatus         `json:"calibration"`
	Debug               FrameDebug                `json:"debug"`
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// repAccumulator tracks the rep in progress.
type repAccumulator struct {
	startMs int64
	start   pose.JointAngles
	min     pose.JointAngles
	max     pose.JointAngles
	faults  []string
	cues    []cues.Cue
}

func newRep(ts int64, angles pose.JointAngles) repAccumulator {
	return repAccumulator{
		startMs: ts,
		start:   angles.Clone(),
		min:     angles.Clone(),
		max:     angles.Clone(),
	}
}

func (r *repAccumulator) observe(angles pose.JointAngles) {
	if r.min == nil {
		r.min, r.max = pose.JointAngles{}, pose.JointAngles{}
	}
	for k, v := range angles {
		if !pose.IsFinite(v) {
			continue
		}
		if cur, ok := r.min[k]; !ok || v < cur {
			r.min[k] = v
		}
		if cur, ok := r.max[k]; !ok || v > cur {
			r.max[k] = v
		}
	}
}

// Session runs the full pipeline for one user doing one workout. Every
// stateful component is owned by the session. Not safe for concurrent use.
type Session struct {
	id     string
	def    *workout.Definition
	cfg    Config
	logger *slog.Logger

	engine      *Engine
	smoother    *filter.Smoother
	calibration *calibration.State
	machine     *phase.Machine
	hold        phase.Hold
	rules       *cues.Engine
	hysteresis  *cues.Hysteresis
	watch       *sensorsync.Buffer[MotionSample]
	airpods     *sensorsync.Buffer[MotionSample]
	shadow      pose.JointAngles

	started     bool
	lastTs      int64
	prevPrimary float64
	hasPrimary  bool
	lastRepMs   int64
	recentReps  []float64
	rep         repAccumulator
	last        Snapshot

	// Per-frame scratch
	frame            CameraFrame
	cameraLive       bool
	cameraConfidence float64
	joints           pose.JointMap
	completed        []RepEvent
}

// NewSession validates def and cfg and builds fresh components.
func NewSession(def *workout.Definition, cfg Config, opts ...Option) (*Session, error) {
	if def == nil {
		return nil, ErrNoWorkout
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	machine, err := phase.NewMachine(def.Table())
	if err != nil {
		return nil, err
	}
	rules, err := cues.NewEngine(def.Rules)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hyst, err := cues.NewHysteresis(cfg.ShowFrames, cfg.HideFrames)
	if err != nil {
		return nil, err
	}
	bufSize := cfg.SensorBufferSize
	if bufSize <= 0 {
		bufSize = DefaultConfig().SensorBufferSize
	}

	s := &Session{
		id:          uuid.NewString(),
		def:         def,
		cfg:         cfg,
		logger:      slog.Default(),
		engine:      NewEngine(cfg),
		smoother:    filter.NewSmoother(cfg.MaxJointDelta, cfg.CoordinateAlpha, cfg.AngleAlpha),
		calibration: calibration.New(),
		machine:     machine,
		rules:       rules,
		hysteresis:  hyst,
		watch:       sensorsync.NewBuffer[MotionSample](bufSize),
		airpods:     sensorsync.NewBuffer[MotionSample](bufSize),
		lastRepMs:   timing.NoRep,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id, "workout", def.ID)
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Workout returns the session's workout definition.
func (s *Session) Workout() *workout.Definition { return s.def }

// Last returns the most recent snapshot.
func (s *Session) Last() Snapshot { return s.last }

// ObserveWatch buffers a wrist sample.
func (s *Session) ObserveWatch(timestampMs int64, sample MotionSample) {
	s.watch.Push(timestampMs, sample)
}

// ObserveAirPods buffers a headphone sample.
func (s *Session) ObserveAirPods(timestampMs int64, sample MotionSample) {
	s.airpods.Push(timestampMs, sample)
}

// ObserveShadow records the latest shadow estimator angles. They are only
// compared against the primary angles, never fused.
func (s *Session) ObserveShadow(angles pose.JointAngles) {
	s.shadow = angles.Clone()
}

// BeginCalibration starts collecting calibration samples.
func (s *Session) BeginCalibration(timestampMs int64) {
	s.calibration.Begin(timestampMs)
	s.logger.Info("calibration started")
}

// FinalizeCalibration ends collection. It returns false when there were too
// few or too unstable samples.
func (s *Session) FinalizeCalibration(timestampMs int64) (*calibration.Result, bool) {
	res, ok := s.calibration.Finalize(timestampMs)
	if !ok {
		s.logger.Warn("calibration failed", "samples", s.calibration.SampleCount())
		return nil, false
	}
	s.logger.Info("calibration complete", "confidence", fmt.Sprintf("%.2f", res.Confidence))
	return res, true
}

// CalibrationPhase returns the calibration lifecycle stage.
func (s *Session) CalibrationPhase() calibration.Phase {
	return s.calibration.Phase()
}

// Reset clears every stateful component for a fresh set.
func (s *Session) Reset() {
	s.calibration.Reset()
	s.hysteresis.Reset()
	s.rules.Reset()
	s.machine.Reset()
	s.hold.Reset()
	s.smoother.Reset()
	s.watch.Clear()
	s.airpods.Clear()
	s.shadow = nil
	s.started = false
	s.hasPrimary = false
	s.lastRepMs = timing.NoRep
	s.recentReps = nil
	s.rep = repAccumulator{}
	s.last = Snapshot{}
	s.logger.Info("session reset")
}

// Process runs one camera frame through the pipeline. Frames whose
// timestamp does not advance are dropped and report false.
func (s *Session) Process(frame CameraFrame) (Snapshot, bool) {
	if s.started && frame.TimestampMs <= s.lastTs {
		s.logger.Debug("dropping out-of-order frame", "ts", frame.TimestampMs, "last", s.lastTs)
		return s.last, false
	}
	if !s.started {
		s.rep = newRep(frame.TimestampMs, nil)
	}
	s.started = true
	s.lastTs = frame.TimestampMs
	s.frame = frame
	s.completed = nil

	cameraLive := frame.Confidence > 0 && (len(frame.Angles) > 0 || len(frame.Joints) > 0)
	watch, watchOK := s.aligned(s.watch, frame.TimestampMs)
	airpods, airpodsOK := s.aligned(s.airpods, frame.TimestampMs)

	presence := sensorsync.Presence{Camera: cameraLive, Watch: watchOK, AirPods: airpodsOK}
	availability, err := sensorsync.ClassifySensorAvailability(presence)
	tracking := err == nil

	if s.calibration.Phase() == calibration.PhaseCollecting && cameraLive && watchOK && airpodsOK {
		s.calibration.Collect(calibration.Sample{
			CameraUp:     frame.CameraUp,
			WatchForward: watch.Forward,
			HeadForward:  airpods.Forward,
			Stability:    (watch.Stability + airpods.Stability) / 2,
		})
	}

	calStatus := CalibrationStatus{
		Phase:      s.calibration.Phase(),
		Confidence: s.calibration.Confidence(),
	}
	if ref, ok := s.calibration.Reference(); ok && airpodsOK {
		drift := calibration.EvaluateDrift(calibration.DriftInput{
			BaselineForward: ref.HeadForward,
			CurrentForward:  airpods.Forward,
			MaxDriftDeg:     s.cfg.MaxDriftDeg,
		})
		calStatus.DriftDeg = &drift.DriftDeg
		calStatus.RequiresRecalibration = drift.RequiresRecalibration
		if drift.RequiresRecalibration {
			s.logger.Debug("head drift exceeds limit", "driftDeg", drift.DriftDeg)
		}
	}

	s.cameraLive = cameraLive
	s.cameraConfidence = 0
	if cameraLive {
		s.cameraConfidence = frame.Confidence
	}

	out := s.engine.RunFrame(FrameInput{
		TimestampMs:      frame.TimestampMs,
		CameraConfidence: s.cameraConfidence,
		ComputeAngles:    s.computeAngles,
		CuePasses:        []CuePass{s.phasePass, s.cuePass, s.repPass},
	})

	reg := s.engine.Registry()
	metrics := s.metrics(reg, s.angleAccessor(reg))
	shadowFactor := s.shadowFactor(reg)

	body := out.BodyState
	body.Phase = s.machine.Current()
	body.Metrics = metrics
	body.Joints3D = frame.Joints3D
	body.Confidence *= shadowFactor

	stable := s.hysteresis.NextStableCueFromOrderedActive(s.rules.ActiveIDs())
	active := s.rules.Active()

	snap := Snapshot{
		SessionID:           s.id,
		WorkoutID:           s.def.ID,
		TimestampMs:         frame.TimestampMs,
		Tracking:            tracking,
		Mode:                out.Mode,
		Availability:        availability,
		BodyState:           body,
		FallbackModeEnabled: out.FallbackModeEnabled,
		Reps:                s.machine.RepCount(),
		Phase:               s.machine.Current(),
		PrimaryCue:          stable,
		PrimaryCueMessage:   s.ruleMessage(stable),
		Cues:                body.Cues,
		ActiveCues:          active,
		RepEvents:           s.completed,
		Calibration:         calStatus,
		Debug:               out.Debug,
	}

	if debug.Fusion {
		s.logger.Debug("frame",
			"ts", frame.TimestampMs,
			"mode", out.Mode,
			"sensors", availability.Key,
			"phase", snap.Phase,
			"reps", snap.Reps,
			"cue", stable,
			"confidence", fmt.Sprintf("%.2f", body.Confidence))
	}

	s.last = snap
	return snap, true
}

func (s *Session) aligned(buf *sensorsync.Buffer[MotionSample], ts int64) (MotionSample, bool) {
	sample, ok := buf.NearestAtOrBefore(ts)
	if !ok {
		return MotionSample{}, false
	}
	a := sensorsync.SelectAlignedSensorFrame(sensorsync.AlignInput{
		// Skew from the integer difference keeps an exact-limit lag exact
		PrimaryTimestampSec:   float64(ts-sample.TimestampMs) / 1000,
		SecondaryTimestampSec: 0,
		MaxTimestampSkewSec:   s.cfg.MaxTimestampSkew.Seconds(),
	})
	return sample.Value, a.Accepted
}

// computeAngles runs the smoothing step. The engine guarantees one call per
// frame.
func (s *Session) computeAngles() pose.JointAngles {
	var raw pose.JointAngles
	if s.cameraLive && len(s.frame.Angles) > 0 {
		raw = pose.JointAngles(s.def.PlausibleAngles(s.frame.Angles))
	}
	joints, angles := s.smoother.Step(s.frame.Joints, raw)
	s.joints = joints
	return angles
}

func (s *Session) angleAccessor(reg *features.Registry) AnglesFunc {
	return func() pose.JointAngles {
		return features.Get(reg, KeyAngles, s.computeAngles)
	}
}

func (s *Session) metrics(reg *features.Registry, get AnglesFunc) map[string]float64 {
	return features.Get(reg, KeyMetrics, func() map[string]float64 {
		return ComputeMetrics(get(), s.shadowDelta(reg, get))
	})
}

func (s *Session) shadowDelta(reg *features.Registry, get AnglesFunc) *float64 {
	return features.Get(reg, KeyShadowDelta, func() *float64 {
		if len(s.shadow) == 0 {
			return nil
		}
		d, ok := MeanAbsDelta(s.shadow, get())
		if !ok {
			return nil
		}
		return &d
	})
}

func (s *Session) shadowFactor(reg *features.Registry) float64 {
	d := s.shadowDelta(reg, s.angleAccessor(reg))
	if d == nil || s.cfg.ShadowToleranceDeg <= 0 {
		return 1
	}
	return 1 - 0.5*clamp(*d/s.cfg.ShadowToleranceDeg, 0, 1)
}

// trackingQuality is camera confidence discounted by shadow disagreement.
func (s *Session) trackingQuality(get AnglesFunc) float64 {
	reg := s.engine.Registry()
	return features.Get(reg, KeyQuality, func() float64 {
		return clamp(s.cameraConfidence, 0, 1) * s.shadowFactor(reg)
	})
}

// phasePass classifies the primary metric and advances the phase machine.
func (s *Session) phasePass(get AnglesFunc) []cues.Cue {
	if !s.cameraLive {
		return nil
	}
	reg := s.engine.Registry()
	metrics := s.metrics(reg, get)
	value, ok := metrics[s.def.PrimaryMetric]
	if !ok {
		return nil
	}
	prevValue := value
	if s.hasPrimary {
		prevValue = s.prevPrimary
	}
	s.prevPrimary, s.hasPrimary = value, true

	current := s.machine.Current()
	candidate := s.def.Bands.Classify(current, value, prevValue)

	var shadow float64
	if d := s.shadowDelta(reg, get); d != nil {
		shadow = *d
	}
	holdMs := timing.ComputeAdaptivePhaseHoldMs(timing.PhaseHoldInput{
		BaseHoldMs:         s.cfg.BasePhaseHoldMs,
		TrackingQuality:    s.trackingQuality(get),
		ShadowMeanAbsDelta: shadow,
	})
	if !s.hold.Observe(candidate, s.frame.TimestampMs, holdMs) || candidate == current {
		return nil
	}
	if !s.machine.CanTransition(candidate) {
		return nil
	}

	boundary := s.def.RepBoundary()
	isEnd := s.machine.IsRepEdge(candidate)
	if isEnd {
		boundary.MinDurationMs = timing.ComputeAdaptiveRepDurationMs(timing.RepDurationInput{
			BaseMinDurationMs:    s.def.Boundary.MinDurationMs,
			RecentRepDurationsMs: s.recentReps,
			TrackingQuality:      s.trackingQuality(get),
		})
		if !timing.ShouldEndRep(boundary, current, candidate, true, s.frame.TimestampMs, s.lastRepMs) {
			return nil
		}
	}

	s.machine.Transition(candidate)
	if timing.ShouldStartRep(boundary, candidate, current) {
		s.rep = newRep(s.frame.TimestampMs, get())
	}
	if isEnd {
		s.completeRep(get)
	}
	return nil
}

// cuePass evaluates the workout rules.
func (s *Session) cuePass(get AnglesFunc) []cues.Cue {
	fired := s.rules.Evaluate(cues.Input{
		TimestampMs: s.frame.TimestampMs,
		Phase:       s.machine.Current(),
		Confidence:  s.trackingQuality(get),
		Metrics:     s.metrics(s.engine.Registry(), get),
	})
	s.rep.cues = append(s.rep.cues, fired...)
	for _, id := range s.rules.ActiveIDs() {
		if !slices.Contains(s.rep.faults, id) {
			s.rep.faults = append(s.rep.faults, id)
		}
	}
	return fired
}

// repPass folds this frame's angles into the rep in progress.
func (s *Session) repPass(get AnglesFunc) []cues.Cue {
	s.rep.observe(get())
	return nil
}

func (s *Session) completeRep(get AnglesFunc) {
	now := s.frame.TimestampMs
	s.rep.observe(get())

	duration := now - s.rep.startMs
	ctx := pose.RepContext{
		WorkoutID:  s.def.ID,
		RepNumber:  s.machine.RepCount(),
		DurationMs: duration,
		Start:      s.rep.start,
		End:        get().Clone(),
		Min:        s.rep.min.Clone(),
		Max:        s.rep.max.Clone(),
	}
	score := scoring.Score(s.def.Scoring, scoring.Input{Rep: ctx, Joints: s.joints})

	ev := RepEvent{
		ID:          uuid.NewString(),
		SessionID:   s.id,
		WorkoutID:   s.def.ID,
		RepNumber:   ctx.RepNumber,
		TimestampMs: now,
		DurationMs:  duration,
		FQI:         score.OverallScore,
		Score:       score,
		Faults:      slices.Clone(s.rep.faults),
		Cues:        slices.Clone(s.rep.cues),
		Context:     ctx,
	}
	if ev.Faults == nil {
		ev.Faults = []string{}
	}
	if ev.Cues == nil {
		ev.Cues = []cues.Cue{}
	}
	s.completed = append(s.completed, ev)

	s.lastRepMs = now
	s.recentReps = append(s.recentReps, float64(duration))
	if limit := s.cfg.RepHistory; limit > 0 && len(s.recentReps) > limit {
		s.recentReps = s.recentReps[len(s.recentReps)-limit:]
	}
	// Angles keep accumulating until the next start phase resets them
	s.rep.faults = nil
	s.rep.cues = nil

	s.logger.Info("rep completed",
		"rep", ev.RepNumber,
		"durationMs", duration,
		"suppressed", score.ScoreSuppressed,
		"faults", len(ev.Faults))
}

func (s *Session) ruleMessage(id string) string {
	if id == "" {
		return ""
	}
	for _, r := range s.def.Rules {
		if r.ID == id {
			return r.Message
		}
	}
	return ""
}
