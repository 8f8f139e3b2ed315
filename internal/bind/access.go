package bind

import (
	"fmt"

	"github.com/cwbudde/kernelbind/internal/gpu"
)

// Access says which side produces the data in a device buffer.
type Access int

const (
	// Read buffers are supplied by the host and only read by the kernel.
	Read Access = iota + 1
	// Write buffers are produced by the kernel and never uploaded.
	Write
	// ReadWrite buffers are uploaded and read back.
	ReadWrite
)

// Reads reports whether the host uploads into buffers of this mode.
func (a Access) Reads() bool { return a == Read || a == ReadWrite }

// Writes reports whether buffers of this mode are read back after dispatch.
func (a Access) Writes() bool { return a == Write || a == ReadWrite }

func (a Access) valid() bool { return a >= Read && a <= ReadWrite }

func (a Access) memFlags() gpu.MemFlags {
	switch a {
	case Read:
		return gpu.MemReadOnly
	case Write:
		return gpu.MemWriteOnly
	default:
		return gpu.MemReadWrite
	}
}

func (a Access) String() string {
	switch a {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}
