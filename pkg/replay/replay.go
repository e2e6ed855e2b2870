// Package replay records routed sensor traffic to compressed JSONL files and
// plays it back through a router.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/teslashibe/go-formcoach/pkg/ingest"
)

// Extension is the recording file suffix.
const Extension = ".jsonl.zst"

// maxLine bounds one recorded entry.
const maxLine = 4 * 1024 * 1024

// ErrClosed is returned when recording after Close.
var ErrClosed = errors.New("recorder closed")

// Entry is one recorded line.
type Entry struct {
	OffsetMs int64          `json:"at"` // Wall-clock offset from the first entry
	Inbound  ingest.Inbound `json:"in"`
}

// Recorder appends entries to a zstd-compressed JSONL file. Safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	encoder *zstd.Encoder
	writer  *bufio.Writer
	started time.Time
	count   int
	now     func() time.Time
}

// Path returns the recording path for id in dir.
func Path(dir, id string) string {
	return filepath.Join(dir, id+Extension)
}

// NewRecorder creates dir/<random id>.jsonl.zst.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	return Create(Path(dir, "session-"+uuid.NewString()))
}

// Create starts a recording at path, truncating any existing file.
func Create(path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	encoder, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Recorder{
		path:    path,
		file:    file,
		encoder: encoder,
		writer:  bufio.NewWriter(encoder),
		now:     time.Now,
	}, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Count returns how many entries were recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Record appends one inbound.
func (r *Recorder) Record(in ingest.Inbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return ErrClosed
	}

	now := r.now()
	if r.count == 0 {
		r.started = now
	}
	line, err := json.Marshal(Entry{OffsetMs: now.Sub(r.started).Milliseconds(), Inbound: in})
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := r.writer.Write(line); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	r.count++
	return nil
}

// Close flushes and finalizes the recording.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	err := r.writer.Flush()
	r.writer = nil

	if cerr := r.encoder.Close(); err == nil {
		err = cerr
	}
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("finalize recording: %w", err)
	}
	return nil
}

// Reader reads entries from a recording.
type Reader struct {
	file    io.Closer
	decoder *zstd.Decoder
	scanner *bufio.Scanner
	line    int
}

// Open opens a recording for reading.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	decoder, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	scanner := bufio.NewScanner(decoder)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	return &Reader{file: file, decoder: decoder, scanner: scanner}, nil
}

// Next returns the next entry, or io.EOF at the end.
func (r *Reader) Next() (Entry, error) {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return Entry{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return e, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Entry{}, fmt.Errorf("read recording: %w", err)
	}
	return Entry{}, io.EOF
}

// Close releases the file.
func (r *Reader) Close() error {
	r.decoder.Close()
	return r.file.Close()
}

// Play sends every entry to out. With speed > 0 entries are paced by their
// recorded offsets divided by speed; otherwise they are sent as fast as out
// accepts them. Play does not close out.
func Play(ctx context.Context, r *Reader, out chan<- ingest.Inbound, speed float64) (int, error) {
	start := time.Now()
	sent := 0
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}

		if speed > 0 {
			due := start.Add(time.Duration(float64(e.OffsetMs) * float64(time.Millisecond) / speed))
			if wait := time.Until(due); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return sent, ctx.Err()
				}
			}
		}

		select {
		case out <- e.Inbound:
			sent++
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
}
