// Package trace records binding events as JSON lines.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/kernelbind/internal/bind"
)

// ErrNotFound is returned when a trace file does not exist.
var ErrNotFound = errors.New("trace not found")

// Record is one line of a trace file.
type Record struct {
	// Run identifies the process that wrote the record.
	Run       string    `json:"run"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	bind.Event
}

// Writer appends records to a JSONL file. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	run    string
	seq    int
	err    error
}

// NewWriter opens path for writing, creating parent directories. With
// appendMode set, existing records are kept.
func NewWriter(path string, appendMode bool) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &Writer{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
		run:    uuid.NewString(),
	}, nil
}

// Run returns the identifier stamped on every record of this writer.
func (w *Writer) Run() string { return w.run }

// Path returns the trace file path.
func (w *Writer) Path() string { return w.path }

// Write appends rec, filling in the run, sequence number and timestamp
// when they are unset.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rec.Run == "" {
		rec.Run = w.run
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Seq = w.seq
	w.seq++

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trace record: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace record: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Observe is a bind observer. The first write error is kept and returned
// by Close.
func (w *Writer) Observe(ev bind.Event) {
	if err := w.Write(Record{Event: ev}); err != nil {
		w.mu.Lock()
		if w.err == nil {
			w.err = err
		}
		w.mu.Unlock()
	}
}

// Flush writes buffered records to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return w.err
}

// Reader reads records from a JSONL file.
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// Open opens a trace file for reading.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{file: file, scanner: scanner}, nil
}

// Read returns the next record, or io.EOF.
func (r *Reader) Read() (*Record, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var rec Record
	if err := json.Unmarshal(r.scanner.Bytes(), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace record: %w", err)
	}
	return &rec, nil
}

// ReadAll returns every remaining record.
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// KindSummary aggregates the records of one event kind.
type KindSummary struct {
	Kind     bind.EventKind `json:"kind"`
	Count    int            `json:"count"`
	Bytes    int64          `json:"bytes"`
	Duration time.Duration  `json:"duration_ns"`
}

// Summarize totals records per kind, ordered by kind.
func Summarize(records []Record) []KindSummary {
	byKind := make(map[bind.EventKind]*KindSummary)
	for _, rec := range records {
		s, ok := byKind[rec.Kind]
		if !ok {
			s = &KindSummary{Kind: rec.Kind}
			byKind[rec.Kind] = s
		}
		s.Count++
		s.Bytes += rec.Bytes
		s.Duration += rec.Duration
	}

	out := make([]KindSummary, 0, len(byKind))
	for _, s := range byKind {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
