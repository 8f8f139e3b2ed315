package bind

import (
	"errors"
	"testing"

	"github.com/cwbudde/kernelbind/internal/gpu"
	"github.com/cwbudde/kernelbind/internal/kernels"
	"github.com/cwbudde/kernelbind/internal/logging"
)

func newTestContext(t *testing.T, opts ...Option) (*Context, *gpu.HostDevice) {
	t.Helper()
	dev := gpu.NewHostDevice(kernels.NewRegistry(), gpu.HostConfig{Workers: 2})
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	ctx, err := NewContext(dev, opts...)
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	t.Cleanup(func() { ctx.Close() })
	return ctx, dev
}

func newTestSession(t *testing.T, ctx *Context, entry string) *Session {
	t.Helper()
	s, err := ctx.NewSession(kernels.MustSource(entry))
	if err != nil {
		t.Fatalf("new session %s: %v", entry, err)
	}
	return s
}

func mustRange(t *testing.T, start, end int) Range {
	t.Helper()
	r, err := NewRange(start, end)
	if err != nil {
		t.Fatalf("range [%d, %d): %v", start, end, err)
	}
	return r
}

func wantKind(t *testing.T, err error, sentinel *Error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", sentinel.Kind)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel.Kind, err)
	}
}

func equalFloats(t *testing.T, name string, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len %d, want %d", name, len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s[%d] = %v, want %v (got %v)", name, i, got[i], want[i], got)
		}
	}
}
