package tune

import (
	"errors"
	"reflect"
	"testing"

	"github.com/cwbudde/kernelbind/internal/bind"
	"github.com/cwbudde/kernelbind/internal/gpu"
	"github.com/cwbudde/kernelbind/internal/kernels"
	"github.com/cwbudde/kernelbind/internal/logging"
)

func newSession(t *testing.T, cfg gpu.HostConfig, entry string) *bind.Session {
	t.Helper()
	dev := gpu.NewHostDevice(kernels.NewRegistry(), cfg)
	ctx, err := bind.NewContext(dev, bind.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ctx.Close() })

	s, err := ctx.NewSession(kernels.MustSource(entry))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDivisors(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{1, []int{1}},
		{7, []int{1, 7}},
		{12, []int{1, 2, 3, 4, 6, 12}},
		{16, []int{1, 2, 4, 8, 16}},
	}
	for _, tt := range tests {
		if got := Divisors(tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Divisors(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestRunAppliesBestLocalSize(t *testing.T) {
	s := newSession(t, gpu.HostConfig{Workers: 2}, kernels.VectorAdd)

	const n = 64
	s.Bind(0, make([]float32, n), bind.Read)
	s.Bind(1, make([]float32, n), bind.Read)
	s.Bind(2, make([]float32, n), bind.Write)
	if err := s.SetGlobalWorkSize(n); err != nil {
		t.Fatal(err)
	}

	res, err := Run(s, Options{Iterations: 3, Population: 20, Repeats: 2, Seed: 7}, logging.Discard())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !reflect.DeepEqual(res.Baseline.Local, []int{4}) {
		t.Errorf("baseline = %v, want the derived [4]", res.Baseline.Local)
	}
	if n%res.Best.Local[0] != 0 {
		t.Errorf("best %v does not divide %d", res.Best.Local, n)
	}
	if !reflect.DeepEqual(s.LocalWorkSize(), res.Best.Local) {
		t.Errorf("session local = %v, best = %v", s.LocalWorkSize(), res.Best.Local)
	}
	if len(res.Measured) == 0 || res.Best.Timing.Mean > res.Baseline.Timing.Mean {
		t.Errorf("best %v slower than baseline %v", res.Best.Timing, res.Baseline.Timing)
	}
	for i := 1; i < len(res.Measured); i++ {
		if res.Measured[i].Timing.Mean < res.Measured[i-1].Timing.Mean {
			t.Fatal("measured candidates not sorted")
		}
	}
	if res.Best.Timing.Samples != 2 {
		t.Errorf("samples = %d, want 2", res.Best.Timing.Samples)
	}
	if res.Speedup() < 1 {
		t.Errorf("speedup = %v", res.Speedup())
	}
}

func TestRunRespectsWorkGroupLimit(t *testing.T) {
	s := newSession(t, gpu.HostConfig{Workers: 2, MaxWorkGroupSize: 8}, kernels.Mandelbrot)

	const w, h = 16, 16
	s.Bind(0, make([]int32, w*h), bind.Write)
	s.SetInt32(1, w)
	s.SetInt32(2, h)
	s.SetFloat32(3, -2)
	s.SetFloat32(4, -1)
	s.SetFloat32(5, 1)
	s.SetFloat32(6, 1)
	s.SetInt32(7, 10)
	s.SetGlobalWorkSize(w, h)

	res, err := Run(s, Options{Iterations: 3, Population: 20, Repeats: 1, Seed: 1}, logging.Discard())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, c := range res.Measured {
		if c.Local[0]*c.Local[1] > 8 {
			t.Errorf("measured infeasible local size %v", c.Local)
		}
	}
	// The derived 4x4 exceeds the limit, so the baseline falls back to 1x1.
	if !reflect.DeepEqual(res.Baseline.Local, []int{1, 1}) {
		t.Errorf("baseline = %v", res.Baseline.Local)
	}
}

func TestRunRequiresGlobalSize(t *testing.T) {
	s := newSession(t, gpu.HostConfig{Workers: 1}, kernels.VectorAdd)
	_, err := Run(s, Options{Iterations: 1, Population: 20}, logging.Discard())
	if !errors.Is(err, bind.ErrWorkSizeNotSet) {
		t.Errorf("got %v, want work size not set", err)
	}
}

func TestRunReportsDispatchFailure(t *testing.T) {
	s := newSession(t, gpu.HostConfig{Workers: 1}, kernels.VectorAdd)
	s.SetGlobalWorkSize(8)

	// Arguments were never bound, so the first dispatch fails.
	if _, err := Run(s, Options{Iterations: 1, Population: 20}, logging.Discard()); err == nil {
		t.Fatal("expected an error")
	}
}
