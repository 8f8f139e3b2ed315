//go:build gpu

package gpu

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

type clDevice struct {
	mu      sync.Mutex
	id      C.cl_device_id
	context C.cl_context
	queue   C.cl_command_queue
	info    DeviceInfo
	closed  bool
}

type clMem struct {
	dev      *clDevice
	mem      C.cl_mem
	size     int64
	flags    MemFlags
	released bool
}

func (m *clMem) Size() int64     { return m.size }
func (m *clMem) Flags() MemFlags { return m.flags }

func (d *clDevice) Info() DeviceInfo { return d.info }

func (d *clDevice) own(m Mem) (*clMem, error) {
	cm, ok := m.(*clMem)
	if !ok || cm == nil || cm.dev != d {
		return nil, ErrForeignMem
	}
	if cm.released {
		return nil, ErrReleased
	}
	return cm, nil
}

func clFlags(f MemFlags) C.cl_mem_flags {
	switch f {
	case MemReadOnly:
		return C.CL_MEM_READ_ONLY
	case MemWriteOnly:
		return C.CL_MEM_WRITE_ONLY
	default:
		return C.CL_MEM_READ_WRITE
	}
}

func (d *clDevice) Allocate(flags MemFlags, size int64) (Mem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}

	var status C.cl_int
	mem := C.clCreateBuffer(d.context, clFlags(flags), C.size_t(size), nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateBuffer", status)
	}
	return &clMem{dev: d, mem: mem, size: size, flags: flags}, nil
}

func span(m *clMem, offset, size int64) error {
	if offset < 0 || size < 0 || offset+size > m.size {
		return errors.Wrapf(ErrOutOfBounds, "[%d, %d) of %d bytes", offset, offset+size, m.size)
	}
	return nil
}

func (d *clDevice) Write(dst Mem, offset int64, src []byte) error {
	m, err := d.own(dst)
	if err != nil {
		return errors.WithMessage(err, "write buffer")
	}
	if err := span(m, offset, int64(len(src))); err != nil {
		return errors.WithMessage(err, "write buffer")
	}
	if len(src) == 0 {
		return nil
	}
	status := C.clEnqueueWriteBuffer(d.queue, m.mem, C.CL_TRUE, C.size_t(offset), C.size_t(len(src)), unsafe.Pointer(&src[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueWriteBuffer", status)
	}
	return nil
}

func (d *clDevice) Read(src Mem, offset int64, dst []byte) error {
	m, err := d.own(src)
	if err != nil {
		return errors.WithMessage(err, "read buffer")
	}
	if err := span(m, offset, int64(len(dst))); err != nil {
		return errors.WithMessage(err, "read buffer")
	}
	if len(dst) == 0 {
		return nil
	}
	status := C.clEnqueueReadBuffer(d.queue, m.mem, C.CL_TRUE, C.size_t(offset), C.size_t(len(dst)), unsafe.Pointer(&dst[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer", status)
	}
	return nil
}

func (d *clDevice) Fill(dst Mem, pattern byte, offset, size int64) error {
	m, err := d.own(dst)
	if err != nil {
		return errors.WithMessage(err, "fill buffer")
	}
	if err := span(m, offset, size); err != nil {
		return errors.WithMessage(err, "fill buffer")
	}
	p := C.cl_uchar(pattern)
	status := C.clEnqueueFillBuffer(d.queue, m.mem, unsafe.Pointer(&p), 1, C.size_t(offset), C.size_t(size), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueFillBuffer", status)
	}
	return d.finish()
}

func (d *clDevice) Copy(src, dst Mem, srcOffset, dstOffset, size int64) error {
	s, err := d.own(src)
	if err != nil {
		return errors.WithMessage(err, "copy buffer (source)")
	}
	t, err := d.own(dst)
	if err != nil {
		return errors.WithMessage(err, "copy buffer (destination)")
	}
	if err := span(s, srcOffset, size); err != nil {
		return errors.WithMessage(err, "copy buffer (source)")
	}
	if err := span(t, dstOffset, size); err != nil {
		return errors.WithMessage(err, "copy buffer (destination)")
	}
	status := C.clEnqueueCopyBuffer(d.queue, s.mem, t.mem, C.size_t(srcOffset), C.size_t(dstOffset), C.size_t(size), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueCopyBuffer", status)
	}
	return d.finish()
}

func (d *clDevice) finish() error {
	if status := C.clFinish(d.queue); status != C.CL_SUCCESS {
		return statusError("clFinish", status)
	}
	return nil
}

func (d *clDevice) Release(mem Mem) error {
	m, err := d.own(mem)
	if err != nil {
		return errors.WithMessage(err, "release buffer")
	}
	m.released = true
	if status := C.clReleaseMemObject(m.mem); status != C.CL_SUCCESS {
		return statusError("clReleaseMemObject", status)
	}
	return nil
}

func (d *clDevice) Build(src Source) (Kernel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}

	text := C.CString(src.Text)
	defer C.free(unsafe.Pointer(text))

	var status C.cl_int
	program := C.clCreateProgramWithSource(d.context, 1, &text, nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateProgramWithSource", status)
	}

	opts := C.CString(src.Options())
	defer C.free(unsafe.Pointer(opts))

	status = C.clBuildProgram(program, 1, &d.id, opts, nil, nil)
	if status != C.CL_SUCCESS {
		log := d.buildLog(program)
		C.clReleaseProgram(program)
		return nil, &BuildError{Entry: src.Entry, Log: log, Err: statusError("clBuildProgram", status)}
	}

	name := C.CString(src.Entry)
	defer C.free(unsafe.Pointer(name))

	kernel := C.clCreateKernel(program, name, &status)
	if status != C.CL_SUCCESS {
		C.clReleaseProgram(program)
		return nil, &BuildError{Entry: src.Entry, Err: statusError("clCreateKernel", status)}
	}

	return &clKernel{dev: d, name: src.Entry, program: program, kernel: kernel}, nil
}

func (d *clDevice) buildLog(program C.cl_program) string {
	var size C.size_t
	if status := C.clGetProgramBuildInfo(program, d.id, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size); status != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, int(size))
	if status := C.clGetProgramBuildInfo(program, d.id, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil); status != C.CL_SUCCESS {
		return ""
	}
	return trimNull(buf)
}

var clParams = map[Param]C.cl_device_info{
	ParamName:                  C.CL_DEVICE_NAME,
	ParamVendor:                C.CL_DEVICE_VENDOR,
	ParamDriverVersion:         C.CL_DRIVER_VERSION,
	ParamVersion:               C.CL_DEVICE_VERSION,
	ParamExtensions:            C.CL_DEVICE_EXTENSIONS,
	ParamMaxComputeUnits:       C.CL_DEVICE_MAX_COMPUTE_UNITS,
	ParamMaxClockFrequency:     C.CL_DEVICE_MAX_CLOCK_FREQUENCY,
	ParamLocalMemSize:          C.CL_DEVICE_LOCAL_MEM_SIZE,
	ParamGlobalMemSize:         C.CL_DEVICE_GLOBAL_MEM_SIZE,
	ParamMaxMemAllocSize:       C.CL_DEVICE_MAX_MEM_ALLOC_SIZE,
	ParamMaxWorkGroupSize:      C.CL_DEVICE_MAX_WORK_GROUP_SIZE,
	ParamMaxWorkItemDimensions: C.CL_DEVICE_MAX_WORK_ITEM_DIMENSIONS,
	ParamMaxWorkItemSizes:      C.CL_DEVICE_MAX_WORK_ITEM_SIZES,
}

func (d *clDevice) QueryString(p Param) (string, error) {
	switch p {
	case ParamName, ParamVendor, ParamDriverVersion, ParamVersion, ParamExtensions:
		return getDeviceString(d.id, clParams[p])
	}
	return "", errors.Wrapf(ErrUnknownParam, "%v is not a string property", p)
}

func (d *clDevice) QueryInt(p Param) (int64, error) {
	switch p {
	case ParamMaxComputeUnits, ParamMaxClockFrequency, ParamMaxWorkItemDimensions:
		var v C.cl_uint
		err := getDeviceValue(d.id, clParams[p], unsafe.Pointer(&v), unsafe.Sizeof(v))
		return int64(v), err
	case ParamLocalMemSize, ParamGlobalMemSize, ParamMaxMemAllocSize:
		var v C.cl_ulong
		err := getDeviceValue(d.id, clParams[p], unsafe.Pointer(&v), unsafe.Sizeof(v))
		return int64(v), err
	case ParamMaxWorkGroupSize:
		var v C.size_t
		err := getDeviceValue(d.id, clParams[p], unsafe.Pointer(&v), unsafe.Sizeof(v))
		return int64(v), err
	}
	return 0, errors.Wrapf(ErrUnknownParam, "%v is not an integer property", p)
}

func (d *clDevice) QueryInts(p Param) ([]int64, error) {
	if p != ParamMaxWorkItemSizes {
		v, err := d.QueryInt(p)
		if err != nil {
			return nil, err
		}
		return []int64{v}, nil
	}

	dims, err := d.QueryInt(ParamMaxWorkItemDimensions)
	if err != nil {
		return nil, err
	}
	raw := make([]C.size_t, dims)
	if err := getDeviceValue(d.id, clParams[p], unsafe.Pointer(&raw[0]), uintptr(len(raw))*unsafe.Sizeof(raw[0])); err != nil {
		return nil, err
	}
	out := make([]int64, len(raw))
	for i, v := range raw {
		out[i] = int64(v)
	}
	return out, nil
}

func (d *clDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.queue != nil {
		C.clReleaseCommandQueue(d.queue)
		d.queue = nil
	}
	if d.context != nil {
		C.clReleaseContext(d.context)
		d.context = nil
	}
	return nil
}

type clKernel struct {
	dev      *clDevice
	name     string
	program  C.cl_program
	kernel   C.cl_kernel
	released bool
}

func (k *clKernel) Name() string { return k.name }

func (k *clKernel) SetArgMem(index int, m Mem) error {
	if k.released {
		return ErrReleased
	}
	cm, err := k.dev.own(m)
	if err != nil {
		return errors.WithMessagef(err, "kernel %s: arg %d", k.name, index)
	}
	status := C.clSetKernelArg(k.kernel, C.cl_uint(index), C.size_t(unsafe.Sizeof(cm.mem)), unsafe.Pointer(&cm.mem))
	if status != C.CL_SUCCESS {
		return statusError("clSetKernelArg", status)
	}
	return nil
}

func (k *clKernel) SetArgBytes(index int, value []byte) error {
	if k.released {
		return ErrReleased
	}
	if len(value) == 0 {
		return errors.Errorf("kernel %s: empty value for arg %d", k.name, index)
	}
	status := C.clSetKernelArg(k.kernel, C.cl_uint(index), C.size_t(len(value)), unsafe.Pointer(&value[0]))
	if status != C.CL_SUCCESS {
		return statusError("clSetKernelArg", status)
	}
	return nil
}

func (k *clKernel) Enqueue(global, local []int64) error {
	if k.released {
		return ErrReleased
	}
	if len(global) == 0 || (local != nil && len(local) != len(global)) {
		return errors.Errorf("kernel %s: invalid work sizes %v/%v", k.name, global, local)
	}

	g := make([]C.size_t, len(global))
	for i, v := range global {
		g[i] = C.size_t(v)
	}
	var lp *C.size_t
	if local != nil {
		l := make([]C.size_t, len(local))
		for i, v := range local {
			l[i] = C.size_t(v)
		}
		lp = &l[0]
	}

	status := C.clEnqueueNDRangeKernel(k.dev.queue, k.kernel, C.cl_uint(len(g)), nil, &g[0], lp, 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueNDRangeKernel", status)
	}
	return k.dev.finish()
}

func (k *clKernel) Release() error {
	if k.released {
		return ErrReleased
	}
	k.released = true
	C.clReleaseKernel(k.kernel)
	C.clReleaseProgram(k.program)
	return nil
}
