package gpu

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"
	"unsafe"
)

// maxWorkDims is the number of work-item dimensions the host device supports.
const maxWorkDims = 3

// WorkItem identifies one invocation of a host kernel, in the terms of
// OpenCL's get_global_id / get_local_id / get_group_id.
type WorkItem struct {
	dims       int
	global     [maxWorkDims]int
	local      [maxWorkDims]int
	group      [maxWorkDims]int
	globalSize [maxWorkDims]int
	localSize  [maxWorkDims]int
}

// WorkDim returns the number of dimensions in use.
func (w WorkItem) WorkDim() int { return w.dims }

// GlobalID returns the global index in dimension dim (0 past WorkDim).
func (w WorkItem) GlobalID(dim int) int { return w.at(&w.global, dim, 0) }

// LocalID returns the index within the work-group.
func (w WorkItem) LocalID(dim int) int { return w.at(&w.local, dim, 0) }

// GroupID returns the work-group index.
func (w WorkItem) GroupID(dim int) int { return w.at(&w.group, dim, 0) }

// GlobalSize returns the global work size (1 past WorkDim).
func (w WorkItem) GlobalSize(dim int) int { return w.at(&w.globalSize, dim, 1) }

// LocalSize returns the work-group size (1 past WorkDim).
func (w WorkItem) LocalSize(dim int) int { return w.at(&w.localSize, dim, 1) }

func (w WorkItem) at(v *[maxWorkDims]int, dim, def int) int {
	if dim < 0 || dim >= w.dims {
		return def
	}
	return v[dim]
}

// Args is the argument list a host kernel is invoked with. Accessors
// panic when the argument at i has the wrong kind; the panic is reported
// by Enqueue as a kernel fault.
type Args struct {
	vals []hostArg
}

type hostArg struct {
	mem    *hostMem
	scalar []byte
	set    bool
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a.vals) }

// Bytes returns the device memory bound at i.
func (a Args) Bytes(i int) []byte {
	m := a.vals[i].mem
	if m == nil {
		panic("kernel argument is not a memory object")
	}
	return m.data
}

// Float32s views the device memory bound at i as float32 elements.
func (a Args) Float32s(i int) []float32 {
	b := a.Bytes(i)
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Int32s views the device memory bound at i as int32 elements.
func (a Args) Int32s(i int) []int32 {
	b := a.Bytes(i)
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Uint32s views the device memory bound at i as uint32 elements.
func (a Args) Uint32s(i int) []uint32 {
	b := a.Bytes(i)
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func (a Args) scalar(i, size int) []byte {
	s := a.vals[i].scalar
	if len(s) != size {
		panic("kernel argument is not a scalar of the expected width")
	}
	return s
}

// Int32 returns the by-value int argument at i.
func (a Args) Int32(i int) int32 {
	return int32(binary.LittleEndian.Uint32(a.scalar(i, 4)))
}

// Float32 returns the by-value float argument at i.
func (a Args) Float32(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(a.scalar(i, 4)))
}

// Int64 returns the by-value long argument at i.
func (a Args) Int64(i int) int64 {
	return int64(binary.LittleEndian.Uint64(a.scalar(i, 8)))
}

// HostKernelFunc is the Go implementation of a kernel entry point. It is
// called once per work item; work items of one launch run concurrently.
type HostKernelFunc func(item WorkItem, args Args)

// Registry maps kernel entry points to their host implementations.
type Registry struct {
	mu      sync.RWMutex
	kernels map[string]HostKernelFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kernels: make(map[string]HostKernelFunc)}
}

// Register installs fn as the implementation of the named entry point,
// replacing any previous one.
func (r *Registry) Register(name string, fn HostKernelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kernels[name] = fn
}

// Lookup returns the implementation registered for name.
func (r *Registry) Lookup(name string) (HostKernelFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.kernels[name]
	return fn, ok
}

// Names returns the registered entry points in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kernels))
	for name := range r.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
