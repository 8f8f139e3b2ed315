package trace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/kernelbind/internal/bind"
	"github.com/cwbudde/kernelbind/internal/gpu"
	"github.com/cwbudde/kernelbind/internal/kernels"
	"github.com/cwbudde/kernelbind/internal/logging"
)

func TestWriterWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "trace.jsonl")

	w, err := NewWriter(path, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	events := []bind.Event{
		{Kind: bind.EventAllocate, Slot: -1, Bytes: 24},
		{Kind: bind.EventUpload, Session: "s1", Kernel: "k", Slot: 0, Bytes: 24, Duration: time.Millisecond},
		{Kind: bind.EventDispatch, Session: "s1", Kernel: "k", Slot: -1, Global: []int{6}, Local: []int{3}},
	}
	for _, ev := range events {
		w.Observe(ev)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open trace: %v", err)
	}
	defer r.Close()

	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read records: %v", err)
	}
	if len(records) != len(events) {
		t.Fatalf("Expected %d records, got %d", len(events), len(records))
	}
	for i, rec := range records {
		if rec.Seq != i {
			t.Errorf("Record %d: seq %d", i, rec.Seq)
		}
		if rec.Run != w.Run() {
			t.Errorf("Record %d: run %q, want %q", i, rec.Run, w.Run())
		}
		if rec.Kind != events[i].Kind || rec.Bytes != events[i].Bytes || rec.Duration != events[i].Duration {
			t.Errorf("Record %d: got %+v, want %+v", i, rec.Event, events[i])
		}
		if rec.Timestamp.IsZero() {
			t.Errorf("Record %d: missing timestamp", i)
		}
	}
	if got := records[2].Global; len(got) != 1 || got[0] != 6 {
		t.Errorf("global = %v", got)
	}
}

func TestWriterAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")

	for i := 0; i < 2; i++ {
		w, err := NewWriter(path, true)
		if err != nil {
			t.Fatal(err)
		}
		w.Observe(bind.Event{Kind: bind.EventCopy, Slot: -1})
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	records, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].Run == records[1].Run {
		t.Errorf("expected two records from two runs, got %+v", records)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.jsonl"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{not json}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := r.ReadAll(); err == nil {
		t.Error("expected unmarshal error")
	}
}

func TestObserveBindContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	w, err := NewWriter(path, false)
	if err != nil {
		t.Fatal(err)
	}

	dev := gpu.NewHostDevice(kernels.NewRegistry(), gpu.HostConfig{Workers: 1})
	ctx, err := bind.NewContext(dev, bind.WithLogger(logging.Discard()), bind.WithObserver(w.Observe))
	if err != nil {
		t.Fatal(err)
	}
	s, err := ctx.NewSession(kernels.MustSource(kernels.VectorAdd))
	if err != nil {
		t.Fatal(err)
	}
	s.Bind(0, []float32{1, 2}, bind.Read)
	s.Bind(1, []float32{3, 4}, bind.Read)
	s.Bind(2, make([]float32, 2), bind.Write)
	s.SetGlobalWorkSize(2)
	if err := s.DispatchAndReadback(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	records, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	counts := map[bind.EventKind]int{}
	for _, s := range Summarize(records) {
		counts[s.Kind] = s.Count
	}
	if counts[bind.EventAllocate] != 3 || counts[bind.EventUpload] != 2 ||
		counts[bind.EventDownload] != 1 || counts[bind.EventDispatch] != 1 || counts[bind.EventRelease] != 3 {
		t.Errorf("counts = %v", counts)
	}
}

func TestSummarize(t *testing.T) {
	records := []Record{
		{Event: bind.Event{Kind: bind.EventUpload, Bytes: 8, Duration: 2}},
		{Event: bind.Event{Kind: bind.EventDownload, Bytes: 4, Duration: 1}},
		{Event: bind.Event{Kind: bind.EventUpload, Bytes: 16, Duration: 3}},
	}
	got := Summarize(records)
	if len(got) != 2 {
		t.Fatalf("got %d kinds", len(got))
	}
	if got[0].Kind != bind.EventDownload || got[1].Kind != bind.EventUpload {
		t.Errorf("order = %v, %v", got[0].Kind, got[1].Kind)
	}
	if got[1].Count != 2 || got[1].Bytes != 24 || got[1].Duration != 5 {
		t.Errorf("upload summary = %+v", got[1])
	}
}
