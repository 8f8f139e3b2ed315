package bind

import (
	"reflect"
	"testing"
)

func TestVectorAddEndToEnd(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "vectorAddKernel")

	a := []float32{0.6, 0.5, 0.4, 0, 0, 0}
	b := []float32{0, 0, 0, 0.2, 0.3, 0.4}
	c := make([]float32, len(a))

	ResetCounters()
	if _, err := s.Bind(0, a, Read); err != nil {
		t.Fatalf("bind a: %v", err)
	}
	if _, err := s.Bind(1, b, Read); err != nil {
		t.Fatalf("bind b: %v", err)
	}
	if _, err := s.Bind(2, c, Write); err != nil {
		t.Fatalf("bind c: %v", err)
	}
	if err := s.SetGlobalWorkSize(len(a)); err != nil {
		t.Fatalf("global: %v", err)
	}
	if err := s.DispatchAndReadback(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	want := make([]float32, len(a))
	for i := range a {
		want[i] = a[i] + b[i]
	}
	equalFloats(t, "c", c, want)

	got := Counters()
	if want := (Snapshot{Uploads: 2, Downloads: 1, Allocations: 3}); got != want {
		t.Errorf("counters = %v, want %v", got, want)
	}
}

func TestDispatchLeavesHostUntilReadback(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "vectorAddKernel")

	a := []float32{1, 2, 3, 4}
	b := []float32{10, 20, 30, 40}
	c := []float32{-1, -1, -1, -1}

	s.Bind(0, a, Read)
	s.Bind(1, b, Read)
	if _, err := s.Bind(2, c, Write); err != nil {
		t.Fatalf("bind: %v", err)
	}
	s.SetGlobalWorkSize(4)

	before := Counters()
	if err := s.Dispatch(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	equalFloats(t, "c before readback", c, []float32{-1, -1, -1, -1})
	if d := Counters().Sub(before).Downloads; d != 0 {
		t.Errorf("dispatch downloaded %d times", d)
	}

	if err := s.Readback(); err != nil {
		t.Fatalf("readback: %v", err)
	}
	equalFloats(t, "c", c, []float32{11, 22, 33, 44})
	equalFloats(t, "a", a, []float32{1, 2, 3, 4})
}

func TestAliasedReadbackTransfersOnce(t *testing.T) {
	ctx, _ := newTestContext(t)
	add := newTestSession(t, ctx, "vectorAddKernel")
	mult := newTestSession(t, ctx, "vectorMultKernel")

	a := []float32{1, 2, 3, 4, 5, 6}
	b := []float32{3, 2, 1, 0, 1, 2}
	c := []float32{2, 1, 2, 1, 2, 3}
	result := make([]float32, len(a))

	ResetCounters()
	shared, err := ctx.Allocate(result, ReadWrite, true)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	defer shared.Dispose()

	add.Bind(0, a, Read)
	add.Bind(1, b, Read)
	if err := add.BindBuffer(2, shared); err != nil {
		t.Fatalf("bind shared: %v", err)
	}
	add.SetGlobalWorkSize(len(a))
	if err := add.Dispatch(); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := mult.BindBuffer(0, shared); err != nil {
		t.Fatalf("bind shared: %v", err)
	}
	mult.Bind(1, c, Read)
	if err := mult.BindBuffer(2, shared); err != nil {
		t.Fatalf("bind shared: %v", err)
	}
	mult.SetGlobalWorkSize(len(a))

	before := Counters()
	if err := mult.DispatchAndReadback(); err != nil {
		t.Fatalf("mult: %v", err)
	}
	if d := Counters().Sub(before).Downloads; d != 1 {
		t.Errorf("downloads = %d, want 1 for two aliased slots", d)
	}
	equalFloats(t, "result", result, []float32{8, 4, 8, 4, 12, 24})

	if got, want := Counters(), (Snapshot{Uploads: 3, Downloads: 1, Allocations: 4}); got != want {
		t.Errorf("counters = %v, want %v", got, want)
	}
}

func TestReuseAcrossDispatches(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "accumulateKernel")

	inputs := [][]float32{
		{0.5, 0.5, 0.5, 0.5},
		{1, 0, 0, 2},
		{0, 1, 0, 3},
		{0, 0, 1, 4},
	}
	result := make([]float32, 4)

	s.SetGlobalWorkSize(len(result))
	before := Counters()
	if _, err := s.Bind(0, result, ReadWrite); err != nil {
		t.Fatalf("bind result: %v", err)
	}

	var first *DeviceBuffer
	for i, in := range inputs {
		buf, err := s.Bind(1, in, Read)
		if err != nil {
			t.Fatalf("bind input %d: %v", i, err)
		}
		if first == nil {
			first = buf
		} else if buf != first {
			t.Fatalf("input %d got a new buffer", i)
		}
		if err := s.Dispatch(); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	equalFloats(t, "result before readback", result, []float32{0, 0, 0, 0})

	if err := s.Readback(); err != nil {
		t.Fatalf("readback: %v", err)
	}
	equalFloats(t, "result", result, []float32{1.5, 1.5, 1.5, 9.5})

	delta := Counters().Sub(before)
	if delta.Allocations != 2 || delta.Uploads != 5 || delta.Downloads != 1 {
		t.Errorf("counters = %v", delta)
	}
}

func TestReadbackUsesCurrentRange(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "scaleKernel")

	v := []float32{1, 2, 3, 4, 5, 6}
	if _, err := s.BindRange(0, v, mustRange(t, 2, 5), ReadWrite); err != nil {
		t.Fatalf("bind: %v", err)
	}
	s.SetFloat32(1, 10)
	s.SetGlobalWorkSize(3)
	if err := s.DispatchAndReadback(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	equalFloats(t, "v", v, []float32{1, 2, 30, 40, 50, 6})
}

func TestDispatchRejectsDisposedArgument(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "scaleKernel")

	buf, err := ctx.Upload([]float32{1, 2}, UploadOptions{Access: ReadWrite})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	s.BindBuffer(0, buf)
	s.SetFloat32(1, 2)
	s.SetGlobalWorkSize(2)
	buf.Dispose()

	wantKind(t, s.Dispatch(), ErrDisposed)
}

func TestReadbackRejectsDisposedBuffer(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "vectorAddKernel")

	s.Bind(0, []float32{1, 2}, Read)
	s.Bind(1, []float32{3, 4}, Read)
	out, err := s.Bind(2, make([]float32, 2), Write)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	s.SetGlobalWorkSize(2)
	if err := s.Dispatch(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	out.Dispose()

	wantKind(t, s.Readback(), ErrDisposed)
	if s.Buffer(2) != nil {
		t.Error("Buffer returned a disposed buffer")
	}
	if !s.IsArgumentSet(2) {
		t.Error("disposing the buffer should not clear the slot")
	}
}

func TestWorkSizes(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "scaleKernel")
	s.Bind(0, make([]float32, 8), ReadWrite)
	s.SetFloat32(1, 1)

	wantKind(t, s.Dispatch(), ErrWorkSizeNotSet)
	_, err := s.AutoLocalWorkSize()
	wantKind(t, err, ErrWorkSizeNotSet)

	wantKind(t, s.SetGlobalWorkSize(), ErrInvalidWorkSize)
	wantKind(t, s.SetGlobalWorkSize(8, 0), ErrInvalidWorkSize)
	wantKind(t, s.SetLocalWorkSize(-1), ErrInvalidWorkSize)

	if err := s.SetGlobalWorkSize(8); err != nil {
		t.Fatalf("global: %v", err)
	}
	wantKind(t, s.SetLocalWorkSize(3), ErrIndivisibleWorkSize)
	wantKind(t, s.SetLocalWorkSize(2, 2), ErrDimensionMismatch)

	if err := s.SetLocalWorkSize(4); err != nil {
		t.Fatalf("local: %v", err)
	}
	if err := s.Dispatch(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// A global size set after the local one is checked at dispatch.
	if err := s.SetGlobalWorkSize(6); err != nil {
		t.Fatalf("global: %v", err)
	}
	wantKind(t, s.Dispatch(), ErrIndivisibleWorkSize)

	if err := s.SetLocalWorkSize(); err != nil {
		t.Fatalf("clear local: %v", err)
	}
	if s.LocalWorkSize() != nil {
		t.Errorf("local = %v after clearing", s.LocalWorkSize())
	}
	if !reflect.DeepEqual(s.GlobalWorkSize(), []int{6}) {
		t.Errorf("global = %v", s.GlobalWorkSize())
	}
}

func TestAutoLocalWorkSize(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "vectorAddKernel")

	tests := []struct {
		global []int
		want   []int
	}{
		{[]int{35}, []int{7}},
		{[]int{16}, []int{4}},
		{[]int{10}, []int{5}},
		{[]int{9}, []int{3}},
		{[]int{6}, []int{3}},
		{[]int{11}, []int{1}},
		{[]int{1000, 800}, []int{5, 5}},
		{[]int{35, 16, 2}, []int{7, 4, 2}},
	}

	for _, tt := range tests {
		if err := s.SetGlobalWorkSize(tt.global...); err != nil {
			t.Fatalf("global %v: %v", tt.global, err)
		}
		got, err := s.AutoLocalWorkSize()
		if err != nil {
			t.Fatalf("auto %v: %v", tt.global, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("auto local for %v = %v, want %v", tt.global, got, tt.want)
		}
		if !reflect.DeepEqual(s.LocalWorkSize(), tt.want) {
			t.Errorf("local work size not applied: %v", s.LocalWorkSize())
		}
	}
}

func TestMandelbrotIntoPackedImage(t *testing.T) {
	ctx, _ := newTestContext(t)
	s := newTestSession(t, ctx, "renderMandelbrot")

	const w, h = 40, 20
	img := NewPackedImage(w, h)
	if _, err := s.Bind(0, img, Write); err != nil {
		t.Fatalf("bind image: %v", err)
	}
	s.SetInt32(1, w)
	s.SetInt32(2, h)
	s.SetFloat32(3, -1.9)
	s.SetFloat32(4, -1)
	s.SetFloat32(5, 0.6)
	s.SetFloat32(6, 1)
	s.SetInt32(7, 40)
	s.SetGlobalWorkSize(w, h)
	if _, err := s.AutoLocalWorkSize(); err != nil {
		t.Fatalf("auto local: %v", err)
	}
	if err := s.DispatchAndReadback(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	for i, p := range img.Pix {
		if uint32(p)>>24 != 0xFF {
			t.Fatalf("pixel %d = %#x is not opaque", i, uint32(p))
		}
	}
}

func TestObserverSeesEvents(t *testing.T) {
	var kinds []EventKind
	ctx, _ := newTestContext(t, WithObserver(func(ev Event) { kinds = append(kinds, ev.Kind) }))
	s := newTestSession(t, ctx, "vectorAddKernel")

	s.Bind(0, []float32{1}, Read)
	s.Bind(1, []float32{2}, Read)
	s.Bind(2, []float32{0}, Write)
	s.SetGlobalWorkSize(1)
	if err := s.DispatchAndReadback(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	s.Close()

	count := map[EventKind]int{}
	for _, k := range kinds {
		count[k]++
	}
	want := map[EventKind]int{
		EventBuild:    1,
		EventAllocate: 3,
		EventUpload:   2,
		EventDispatch: 1,
		EventDownload: 1,
		EventRelease:  3,
	}
	if !reflect.DeepEqual(count, want) {
		t.Errorf("events = %v, want %v", count, want)
	}
	if kinds[0] != EventBuild || kinds[len(kinds)-1] != EventRelease {
		t.Errorf("unexpected order %v", kinds)
	}
}
