//go:build !gpu

package gpu

import "github.com/pkg/errors"

// Available reports whether this build can talk to OpenCL drivers.
const Available = false

// ErrNotBuilt indicates the binary was built without OpenCL support.
var ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")

// ErrNoDevices indicates that no usable OpenCL devices were found.
var ErrNoDevices = errors.New("no OpenCL devices found")

// OpenOpenCL returns ErrNotBuilt when OpenCL support is not compiled in.
func OpenOpenCL() (Device, error) {
	return nil, ErrNotBuilt
}

// EnumeratePlatforms returns ErrNotBuilt when OpenCL support is not compiled in.
func EnumeratePlatforms() ([]PlatformInfo, error) {
	return nil, ErrNotBuilt
}
