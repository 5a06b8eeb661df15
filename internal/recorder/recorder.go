// Package recorder keeps a rotating JSONL trace of message round trips.
// Entries never contain session credentials.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	MaxRotatedFiles = 3
	TraceDir        = "data/traces"
)

// Outcome of a traced round trip.
const (
	OutcomeOK       = "ok"
	OutcomeNull     = "null"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// RoundTrip is one traced message exchange.
type RoundTrip struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	StoreID   string    `json:"store_id,omitempty"`
	Host      string    `json:"host,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// Recorder writes round trips to the current trace file and keeps the
// newest MaxRotatedFiles traces on disk.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
	recent   []RoundTrip
	keep     int
}

// NewRecorder creates a recorder writing under basePath (TraceDir when empty).
func NewRecorder(basePath string) (*Recorder, error) {
	if basePath == "" {
		basePath = TraceDir
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: basePath, keep: 100}, nil
}

// Start opens a new trace file labelled with label, rotating old ones.
func (r *Recorder) Start(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
		r.encoder = nil
	}
	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	path := filepath.Join(r.basePath, fmt.Sprintf("trace_%s_%d.jsonl", label, time.Now().UnixMilli()))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Record appends rt to the trace and the in-memory ring. A zero timestamp
// is filled in.
func (r *Recorder) Record(rt RoundTrip) {
	if rt.Timestamp.IsZero() {
		rt.Timestamp = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.recent = append(r.recent, rt)
	if len(r.recent) > r.keep {
		r.recent = r.recent[len(r.recent)-r.keep:]
	}
	if r.encoder != nil {
		_ = r.encoder.Encode(rt)
	}
}

// Recent returns up to n of the latest round trips, oldest first.
func (r *Recorder) Recent(n int) []RoundTrip {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.recent) {
		n = len(r.recent)
	}
	return append([]RoundTrip(nil), r.recent[len(r.recent)-n:]...)
}

// rotate keeps the newest MaxRotatedFiles-1 traces to make room for a new one.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	type trace struct {
		name string
		mod  time.Time
	}
	var traces []trace
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, trace{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].mod.After(traces[j].mod)
	})
	for i := MaxRotatedFiles - 1; i < len(traces); i++ {
		_ = os.Remove(filepath.Join(r.basePath, traces[i].name))
	}
	return nil
}

// Close finishes the current trace file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	return err
}
