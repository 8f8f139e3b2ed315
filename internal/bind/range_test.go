package bind

import "testing"

func TestNewRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		wantErr    bool
	}{
		{"single element", 0, 1, false},
		{"offset", 2, 5, false},
		{"empty", 3, 3, true},
		{"reversed", 5, 2, true},
		{"negative start", -1, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRange(tt.start, tt.end)
			if tt.wantErr {
				wantKind(t, err, ErrInvalidRange)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.Size() != tt.end-tt.start || r.Size() <= 0 {
				t.Errorf("size = %d, want %d", r.Size(), tt.end-tt.start)
			}
			if r.Start() != tt.start || r.End() != tt.end {
				t.Errorf("got %v", r)
			}
		})
	}
}

func TestRangeHelpers(t *testing.T) {
	r := mustRange(t, 2, 5)
	if got := r.String(); got != "[2, 5)" {
		t.Errorf("String() = %q", got)
	}
	if got := r.Offset(4); got != 8 {
		t.Errorf("Offset(4) = %d, want 8", got)
	}
	if r.IsZero() {
		t.Error("valid range reported as zero")
	}
	if !(Range{}).IsZero() {
		t.Error("zero value not reported as zero")
	}
	if f := FullRange(7); f.Start() != 0 || f.Size() != 7 {
		t.Errorf("FullRange(7) = %v", f)
	}
}

func TestBindRangeBounds(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "vectorAddKernel")
	host := make([]float32, 6)

	_, err := s.BindRange(0, host, mustRange(t, 2, 8), Read)
	wantKind(t, err, ErrRangeOverrun)

	_, err = s.BindRange(0, host, Range{}, Read)
	wantKind(t, err, ErrInvalidRange)

	buf, err := s.BindRange(0, host, mustRange(t, 2, 6), Read)
	if err != nil {
		t.Fatalf("bind range: %v", err)
	}
	if buf.Capacity() != 4 {
		t.Errorf("capacity = %d, want 4", buf.Capacity())
	}
	if got := buf.Range(); got.Start() != 2 || got.End() != 6 {
		t.Errorf("range = %v", got)
	}
}
