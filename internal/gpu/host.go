package gpu

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

// HostConfig sizes the emulated device.
type HostConfig struct {
	GlobalMemSize    int64
	MaxMemAllocSize  int64
	MaxWorkGroupSize int64
	LocalMemSize     int64
	// Workers bounds the goroutines used per launch (0 = NumCPU).
	Workers int
}

// DefaultHostConfig mirrors the limits of a modest discrete GPU.
func DefaultHostConfig() HostConfig {
	const gib = 1 << 30
	return HostConfig{
		GlobalMemSize:    16 * gib,
		MaxMemAllocSize:  4 * gib,
		MaxWorkGroupSize: 1024,
		LocalMemSize:     32 << 10,
	}
}

// HostDevice executes kernels as Go functions against host memory. It
// implements the same synchronous contract as a hardware device.
type HostDevice struct {
	mu       sync.Mutex
	cfg      HostConfig
	registry *Registry
	used     int64
	live     int
	closed   bool
}

// NewHostDevice creates an emulated device whose kernels come from reg.
func NewHostDevice(reg *Registry, cfg HostConfig) *HostDevice {
	if reg == nil {
		reg = NewRegistry()
	}
	def := DefaultHostConfig()
	if cfg.GlobalMemSize <= 0 {
		cfg.GlobalMemSize = def.GlobalMemSize
	}
	if cfg.MaxMemAllocSize <= 0 {
		cfg.MaxMemAllocSize = def.MaxMemAllocSize
	}
	if cfg.MaxWorkGroupSize <= 0 {
		cfg.MaxWorkGroupSize = def.MaxWorkGroupSize
	}
	if cfg.LocalMemSize <= 0 {
		cfg.LocalMemSize = def.LocalMemSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &HostDevice{cfg: cfg, registry: reg}
}

// hostMem is 8-byte aligned so kernels can view it as wider elements.
type hostMem struct {
	dev      *HostDevice
	words    []uint64
	data     []byte
	flags    MemFlags
	released bool
}

func (m *hostMem) Size() int64     { return int64(len(m.data)) }
func (m *hostMem) Flags() MemFlags { return m.flags }

// Registry returns the kernel registry backing this device.
func (d *HostDevice) Registry() *Registry { return d.registry }

// Info returns static metadata about the emulated device.
func (d *HostDevice) Info() DeviceInfo {
	return DeviceInfo{
		Name:             d.name(),
		Vendor:           "kernelbind",
		Version:          "OpenCL 1.2 host emulation",
		DriverVersion:    runtime.Version(),
		Type:             DeviceTypeCPU,
		MaxComputeUnits:  uint32(d.cfg.Workers),
		GlobalMemSize:    d.cfg.GlobalMemSize,
		MaxMemAllocSize:  d.cfg.MaxMemAllocSize,
		MaxWorkGroupSize: d.cfg.MaxWorkGroupSize,
	}
}

func (d *HostDevice) name() string {
	return fmt.Sprintf("Host Emulator (%s)", runtime.GOARCH)
}

// MemoryUsage returns bytes currently allocated and the number of live allocations.
func (d *HostDevice) MemoryUsage() (int64, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used, d.live
}

func (d *HostDevice) Allocate(flags MemFlags, size int64) (Mem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDeviceClosed
	}
	if size <= 0 {
		return nil, errors.Errorf("invalid buffer size %d", size)
	}
	if size > d.cfg.MaxMemAllocSize {
		return nil, errors.Wrapf(ErrAllocation, "%d bytes exceeds max allocation %d", size, d.cfg.MaxMemAllocSize)
	}
	if d.used+size > d.cfg.GlobalMemSize {
		return nil, errors.Wrapf(ErrAllocation, "%d bytes requested with %d of %d in use", size, d.used, d.cfg.GlobalMemSize)
	}

	words := make([]uint64, (size+7)/8)
	m := &hostMem{
		dev:   d,
		words: words,
		data:  unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size),
		flags: flags,
	}
	d.used += size
	d.live++
	return m, nil
}

func (d *HostDevice) own(m Mem) (*hostMem, error) {
	hm, ok := m.(*hostMem)
	if !ok || hm == nil || hm.dev != d {
		return nil, ErrForeignMem
	}
	if hm.released {
		return nil, ErrReleased
	}
	return hm, nil
}

func checkSpan(m *hostMem, offset, size int64) error {
	if offset < 0 || size < 0 || offset+size > int64(len(m.data)) {
		return errors.Wrapf(ErrOutOfBounds, "[%d, %d) of %d bytes", offset, offset+size, len(m.data))
	}
	return nil
}

func (d *HostDevice) Write(dst Mem, offset int64, src []byte) error {
	m, err := d.own(dst)
	if err != nil {
		return errors.WithMessage(err, "write buffer")
	}
	if err := checkSpan(m, offset, int64(len(src))); err != nil {
		return errors.WithMessage(err, "write buffer")
	}
	copy(m.data[offset:], src)
	return nil
}

func (d *HostDevice) Read(src Mem, offset int64, dst []byte) error {
	m, err := d.own(src)
	if err != nil {
		return errors.WithMessage(err, "read buffer")
	}
	if err := checkSpan(m, offset, int64(len(dst))); err != nil {
		return errors.WithMessage(err, "read buffer")
	}
	copy(dst, m.data[offset:offset+int64(len(dst))])
	return nil
}

func (d *HostDevice) Fill(dst Mem, pattern byte, offset, size int64) error {
	m, err := d.own(dst)
	if err != nil {
		return errors.WithMessage(err, "fill buffer")
	}
	if err := checkSpan(m, offset, size); err != nil {
		return errors.WithMessage(err, "fill buffer")
	}
	region := m.data[offset : offset+size]
	for i := range region {
		region[i] = pattern
	}
	return nil
}

func (d *HostDevice) Copy(src, dst Mem, srcOffset, dstOffset, size int64) error {
	s, err := d.own(src)
	if err != nil {
		return errors.WithMessage(err, "copy buffer (source)")
	}
	t, err := d.own(dst)
	if err != nil {
		return errors.WithMessage(err, "copy buffer (destination)")
	}
	if err := checkSpan(s, srcOffset, size); err != nil {
		return errors.WithMessage(err, "copy buffer (source)")
	}
	if err := checkSpan(t, dstOffset, size); err != nil {
		return errors.WithMessage(err, "copy buffer (destination)")
	}
	copy(t.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	return nil
}

func (d *HostDevice) Release(mem Mem) error {
	m, err := d.own(mem)
	if err != nil {
		return errors.WithMessage(err, "release buffer")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	m.released = true
	d.used -= int64(len(m.data))
	d.live--
	m.words, m.data = nil, nil
	return nil
}

func (d *HostDevice) Build(src Source) (Kernel, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrDeviceClosed
	}

	fn, params, err := buildHostKernel(src, d.registry)
	if err != nil {
		return nil, err
	}
	return &hostKernel{
		dev:     d,
		name:    src.Entry,
		options: src.Options(),
		fn:      fn,
		args:    make([]hostArg, params),
	}, nil
}

func (d *HostDevice) QueryString(p Param) (string, error) {
	switch p {
	case ParamName:
		return d.name(), nil
	case ParamVendor:
		return "kernelbind", nil
	case ParamDriverVersion:
		return runtime.Version(), nil
	case ParamVersion:
		return "OpenCL 1.2 host emulation", nil
	case ParamExtensions:
		return strings.Join(cpuExtensions(), " "), nil
	}
	return "", errors.Wrapf(ErrUnknownParam, "%v is not a string property", p)
}

func (d *HostDevice) QueryInt(p Param) (int64, error) {
	switch p {
	case ParamMaxComputeUnits:
		return int64(d.cfg.Workers), nil
	case ParamMaxClockFrequency:
		return 0, nil
	case ParamLocalMemSize:
		return d.cfg.LocalMemSize, nil
	case ParamGlobalMemSize:
		return d.cfg.GlobalMemSize, nil
	case ParamMaxMemAllocSize:
		return d.cfg.MaxMemAllocSize, nil
	case ParamMaxWorkGroupSize:
		return d.cfg.MaxWorkGroupSize, nil
	case ParamMaxWorkItemDimensions:
		return maxWorkDims, nil
	}
	return 0, errors.Wrapf(ErrUnknownParam, "%v is not an integer property", p)
}

func (d *HostDevice) QueryInts(p Param) ([]int64, error) {
	if p == ParamMaxWorkItemSizes {
		out := make([]int64, maxWorkDims)
		for i := range out {
			out[i] = d.cfg.MaxWorkGroupSize
		}
		return out, nil
	}
	v, err := d.QueryInt(p)
	if err != nil {
		return nil, err
	}
	return []int64{v}, nil
}

func (d *HostDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// cpuExtensions reports the SIMD features the host kernels may rely on.
func cpuExtensions() []string {
	var ext []string
	add := func(ok bool, name string) {
		if ok {
			ext = append(ext, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41, "cpu_sse4_1")
		add(cpu.X86.HasSSE42, "cpu_sse4_2")
		add(cpu.X86.HasAVX, "cpu_avx")
		add(cpu.X86.HasAVX2, "cpu_avx2")
		add(cpu.X86.HasFMA, "cpu_fma")
		add(cpu.X86.HasAVX512F, "cpu_avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "cpu_asimd")
		add(cpu.ARM64.HasFPHP, "cpu_fp16")
		add(cpu.ARM64.HasASIMDDP, "cpu_dotprod")
		add(cpu.ARM64.HasSVE, "cpu_sve")
	}
	return ext
}
