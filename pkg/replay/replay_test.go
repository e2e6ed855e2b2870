package replay

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/teslashibe/go-formcoach/internal/synth"
	"github.com/teslashibe/go-formcoach/pkg/fusion"
	"github.com/teslashibe/go-formcoach/pkg/ingest"
	"github.com/teslashibe/go-formcoach/pkg/protocol"
	"github.com/teslashibe/go-formcoach/pkg/workout"
)

type countSink struct{ reps int }

func (s *countSink) Tracking(string, protocol.TrackingPayload) {}
func (s *countSink) Rep(string, protocol.RepMessage)           { s.reps++ }

func recordSquats(t *testing.T, dir string) string {
	t.Helper()
	rec, err := NewRecorder(dir)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	clock := time.Unix(1000, 0)
	rec.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	for _, m := range synth.Squats(2, 0, false) {
		if err := rec.Record(ingest.Inbound{DeviceID: "p1", Sensor: m}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rec.Record(ingest.Inbound{DeviceID: "p1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	return rec.Path()
}

func TestRecordAndRead(t *testing.T) {
	dir := t.TempDir()
	path := recordSquats(t, dir)

	if !strings.HasSuffix(path, Extension) || filepath.Dir(path) != dir {
		t.Errorf("Expected recording in %s with %s suffix, got %s", dir, Extension, path)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	var entries []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		entries = append(entries, e)
	}

	want := 2 * len(synth.SquatCycle())
	if len(entries) != want {
		t.Fatalf("Expected %d entries, got %d", want, len(entries))
	}
	if entries[0].OffsetMs != 0 || entries[1].OffsetMs != 1 {
		t.Errorf("Expected offsets 0 and 1, got %d and %d", entries[0].OffsetMs, entries[1].OffsetMs)
	}
	if entries[0].Inbound.Sensor == nil || entries[0].Inbound.Sensor.Type != protocol.TypeCamera {
		t.Errorf("Expected camera entry, got %+v", entries[0].Inbound)
	}
}

// failWriter rejects every write, like a full disk.
type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("no space left on device") }

func TestRecorder_CloseReportsFlushError(t *testing.T) {
	rec, err := Create(filepath.Join(t.TempDir(), "full"+Extension))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	rec.writer = bufio.NewWriter(failWriter{})
	if err := rec.Record(ingest.Inbound{DeviceID: "p1", Sensor: synth.Camera(33, 170)}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	err = rec.Close()
	if err == nil || !strings.Contains(err.Error(), "no space left") {
		t.Errorf("Expected the flush error from Close, got %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("Expected a second Close to be a no-op, got %v", err)
	}
}

func TestPlayThroughRouter(t *testing.T) {
	path := recordSquats(t, t.TempDir())

	reg := workout.NewRegistry()
	if err := reg.LoadBuiltIn(); err != nil {
		t.Fatalf("LoadBuiltIn failed: %v", err)
	}
	sink := &countSink{}
	router := ingest.NewRouter(reg, fusion.DefaultConfig(), ingest.WithSinks(sink), ingest.WithBlockingDelivery())

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	in := make(chan ingest.Inbound)
	done := make(chan struct{})
	go func() {
		router.Run(context.Background(), in)
		close(done)
	}()

	sent, err := Play(context.Background(), r, in, 0)
	close(in)
	<-done

	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if sent != 2*len(synth.SquatCycle()) {
		t.Errorf("Expected every entry sent, got %d", sent)
	}
	if sink.reps != 2 {
		t.Errorf("Expected 2 reps from replay, got %d", sink.reps)
	}
}

func TestPlay_PacedAndCancelled(t *testing.T) {
	path := recordSquats(t, t.TempDir())
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan ingest.Inbound, 1000)
	if _, err := Play(ctx, r, out, 0.001); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestReader_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad"+Extension)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc, _ := zstd.NewWriter(f)
	enc.Write([]byte("{\"at\":0}\nnot json\n"))
	enc.Close()
	f.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != nil {
		t.Fatalf("Expected first line to decode, got %v", err)
	}
	if _, err := r.Next(); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected line 2 error, got %v", err)
	}
}

func TestOpen_Missing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope"+Extension)); err == nil {
		t.Error("Expected error for missing recording")
	}
}
