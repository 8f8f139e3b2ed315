package gpu

import (
	"fmt"

	"github.com/pkg/errors"
)

// Mem is an opaque handle to a device allocation.
type Mem interface {
	// Size returns the allocation size in bytes.
	Size() int64
	// Flags returns the access flags the allocation was created with.
	Flags() MemFlags
}

// Device is the device/context/queue capability surface consumed by the
// binding layer. Every command blocks until the device has completed it.
type Device interface {
	// Info returns static metadata about the device.
	Info() DeviceInfo

	// Allocate reserves size bytes of device memory.
	Allocate(flags MemFlags, size int64) (Mem, error)

	// Write copies src into dst starting at byte offset.
	Write(dst Mem, offset int64, src []byte) error

	// Read copies len(dst) bytes from src starting at byte offset.
	Read(src Mem, offset int64, dst []byte) error

	// Fill sets size bytes of dst, starting at offset, to pattern.
	Fill(dst Mem, pattern byte, offset, size int64) error

	// Copy copies size bytes between two device allocations.
	Copy(src, dst Mem, srcOffset, dstOffset, size int64) error

	// Release frees a device allocation.
	Release(m Mem) error

	// Build compiles src and creates the kernel named by src.Entry.
	// Compiler failures are reported as *BuildError.
	Build(src Source) (Kernel, error)

	// QueryString, QueryInt and QueryInts read device properties on demand.
	QueryString(p Param) (string, error)
	QueryInt(p Param) (int64, error)
	QueryInts(p Param) ([]int64, error)

	// Close releases the context and command queue.
	Close() error
}

// Kernel is a compiled kernel with a mutable argument list.
type Kernel interface {
	Name() string

	// SetArgMem binds a device allocation to the argument at index.
	SetArgMem(index int, m Mem) error

	// SetArgBytes binds a by-value argument (little-endian encoded scalar).
	SetArgBytes(index int, value []byte) error

	// Enqueue runs the kernel over the given work sizes and waits for it
	// to finish. A nil local lets the device choose the grouping.
	Enqueue(global, local []int64) error

	Release() error
}

var (
	// ErrReleased is returned when a released allocation or kernel is used.
	ErrReleased = errors.New("device object already released")
	// ErrForeignMem is returned when a Mem from another device is passed in.
	ErrForeignMem = errors.New("memory object belongs to another device")
	// ErrOutOfBounds is returned when a transfer exceeds an allocation.
	ErrOutOfBounds = errors.New("transfer exceeds allocation bounds")
	// ErrAllocation is returned when the device cannot satisfy an allocation.
	ErrAllocation = errors.New("memory object allocation failure")
	// ErrDeviceClosed is returned after Close.
	ErrDeviceClosed = errors.New("device closed")
	// ErrUnknownParam is returned for a property the device cannot report.
	ErrUnknownParam = errors.New("unknown device property")
	// ErrInvalidArgs is returned when a kernel is enqueued with missing arguments.
	ErrInvalidArgs = errors.New("kernel arguments not set")
)

// BuildError carries the compiler diagnostics of a failed kernel build.
type BuildError struct {
	Entry string
	Log   string
	Err   error
}

func (e *BuildError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("building kernel %q: %v", e.Entry, e.Err)
	}
	return fmt.Sprintf("building kernel %q: %v\n%s", e.Entry, e.Err, e.Log)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
