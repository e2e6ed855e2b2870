// formcoach-replay - run a recorded (or synthetic) sensor session through
// the engine offline and print the reps it finds.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/teslashibe/go-formcoach/internal/config"
	"github.com/teslashibe/go-formcoach/internal/log"
	"github.com/teslashibe/go-formcoach/internal/synth"
	"github.com/teslashibe/go-formcoach/pkg/debug"
	"github.com/teslashibe/go-formcoach/pkg/ingest"
	"github.com/teslashibe/go-formcoach/pkg/protocol"
	"github.com/teslashibe/go-formcoach/pkg/replay"
	"github.com/teslashibe/go-formcoach/pkg/workout"
)

// printSink writes reps (and optionally every payload) to stdout.
type printSink struct {
	mu       sync.Mutex
	enc      *json.Encoder
	verbose  bool
	reps     int
	lastReps map[string]int
}

func (p *printSink) Tracking(deviceID string, payload protocol.TrackingPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReps[deviceID] = payload.Reps
	if p.verbose {
		p.enc.Encode(payload)
	}
}

func (p *printSink) Rep(deviceID string, msg protocol.RepMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reps++
	if p.verbose {
		p.enc.Encode(msg)
		return
	}
	fqi := "suppressed"
	if msg.Rep.FQI != nil && !msg.Rep.ScoreSuppressed {
		fqi = fmt.Sprintf("%.0f", *msg.Rep.FQI)
	}
	fmt.Printf("%s rep %d  %dms  fqi=%s  visibility=%s  faults=%v\n",
		deviceID, msg.Rep.Number, msg.Rep.DurationMs, fqi, msg.Rep.VisibilityBadge, msg.Rep.Faults)
}

func main() {
	file := flag.String("file", "", "Recording to replay (.jsonl.zst)")
	synthetic := flag.Int("synthetic", 0, "Generate this many synthetic squat reps instead of reading a file")
	save := flag.String("save", "", "With -synthetic, also write the generated stream to this directory")
	speed := flag.Float64("speed", 0, "Playback speed (1 = real time, 0 = as fast as possible)")
	workoutID := flag.String("workout", config.DefaultWorkout, "Workout for new devices")
	workoutDir := flag.String("workouts", "", "Directory of extra workout definitions")
	preset := flag.String("preset", "default", "Fusion preset: default, responsive, stable")
	tuning := flag.String("tuning", "", "TOML tuning file laid over the preset")
	verbose := flag.Bool("json", false, "Print every payload as JSON")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	debug.Enabled = *debugFlag
	log.Init(debug.Level("warn"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := &config.Config{Preset: *preset, TuningFile: *tuning, DefaultWorkout: *workoutID, WorkoutDir: *workoutDir}
	if err := run(ctx, cfg, *file, *synthetic, *save, *speed, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, file string, synthetic int, save string, speed float64, verbose bool) error {
	if synthetic > 0 {
		path, err := writeSynthetic(synthetic, save)
		if err != nil {
			return err
		}
		if save == "" {
			defer os.RemoveAll(filepath.Dir(path))
		}
		file = path
	}
	if file == "" {
		return errors.New("need -file or -synthetic")
	}

	fusionCfg, err := cfg.Fusion()
	if err != nil {
		return err
	}
	registry := workout.NewRegistry()
	if err := registry.LoadBuiltIn(); err != nil {
		return err
	}
	if cfg.WorkoutDir != "" {
		if _, err := registry.LoadDir(cfg.WorkoutDir); err != nil {
			return err
		}
	}

	reader, err := replay.Open(file)
	if err != nil {
		return err
	}
	defer reader.Close()

	sink := &printSink{enc: json.NewEncoder(os.Stdout), verbose: verbose, lastReps: map[string]int{}}
	router := ingest.NewRouter(registry, fusionCfg,
		ingest.WithSinks(sink),
		ingest.WithBlockingDelivery(),
		ingest.WithDefaultWorkout(cfg.DefaultWorkout),
		ingest.WithRouterLogger(log.L()))

	in := make(chan ingest.Inbound)
	done := make(chan struct{})
	go func() {
		router.Run(ctx, in)
		close(done)
	}()

	sent, playErr := replay.Play(ctx, reader, in, speed)
	close(in)
	<-done

	if !verbose {
		fmt.Printf("\n%d messages, %d reps\n", sent, sink.reps)
		for _, st := range router.Status() {
			fmt.Printf("  %s  workout=%s  frames=%d  dropped=%d  errors=%d  reps=%d\n",
				st.DeviceID, st.WorkoutID, st.Frames, st.Dropped, st.Errors, sink.lastReps[st.DeviceID])
		}
	}
	return playErr
}

// writeSynthetic records reps synthetic squats with aligned motion sensors
// and returns the recording path.
func writeSynthetic(reps int, dir string) (string, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "formcoach-synthetic-*")
		if err != nil {
			return "", err
		}
		dir = tmp
	}
	rec, err := replay.NewRecorder(dir)
	if err != nil {
		return "", err
	}
	for _, msg := range synth.Squats(reps, 0, true) {
		if err := rec.Record(ingest.Inbound{DeviceID: "synthetic", Sensor: msg}); err != nil {
			rec.Close()
			return "", err
		}
	}
	if err := rec.Close(); err != nil {
		return "", err
	}
	return rec.Path(), nil
}
