package gpu

import (
	"strings"

	"github.com/pkg/errors"
)

// Backend identifies a device implementation.
type Backend string

const (
	BackendHost   Backend = "host"
	BackendOpenCL Backend = "opencl"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown device backend")
	// ErrBackendUnavailable indicates the backend is not available in this build.
	ErrBackendUnavailable = errors.New("device backend unavailable")
)

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "host", "cpu", "emulator":
		return BackendHost
	case "gpu", "opencl", "cl":
		return BackendOpenCL
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the backends understood by Open.
func SupportedBackends() []Backend {
	return []Backend{BackendHost, BackendOpenCL}
}

// Open constructs the requested device. The host backend executes the
// kernels registered in reg; OpenCL ignores it.
func Open(name string, reg *Registry, cfg HostConfig) (Device, error) {
	switch backend := NormalizeBackend(name); backend {
	case BackendHost:
		return NewHostDevice(reg, cfg), nil
	case BackendOpenCL:
		if !Available {
			return nil, errors.Wrap(ErrBackendUnavailable, "opencl support requires building with '-tags gpu'")
		}
		return OpenOpenCL()
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q (supported: host, opencl)", name)
	}
}
