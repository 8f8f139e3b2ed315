package bind

import (
	"errors"
	"strings"
	"testing"

	"github.com/cwbudde/kernelbind/internal/gpu"
)

func TestErrorIs(t *testing.T) {
	err := newError(KindSizeMismatch, "copy", "%d != %d", 4, 6)

	if !errors.Is(err, ErrSizeMismatch) {
		t.Error("errors.Is should match its own kind")
	}
	if errors.Is(err, ErrTypeMismatch) {
		t.Error("errors.Is matched a different kind")
	}

	var be *Error
	if !errors.As(err, &be) || be.Kind != KindSizeMismatch || be.Op != "copy" {
		t.Errorf("errors.As = %+v", be)
	}
	if got := err.Error(); got != "copy: size mismatch: 4 != 6" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDeviceErrorUnwraps(t *testing.T) {
	err := deviceError("upload", gpu.ErrOutOfBounds)
	if !errors.Is(err, gpu.ErrOutOfBounds) {
		t.Error("device error should unwrap to the driver error")
	}
	if !strings.Contains(err.Error(), "device failure") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestKindString(t *testing.T) {
	if got := KindWriteOnlyUploadRejected.String(); got != "write-only upload rejected" {
		t.Errorf("got %q", got)
	}
	if got := Kind(99).String(); got != "Kind(99)" {
		t.Errorf("got %q", got)
	}
}
