package bind

// DeviceBuffer is device memory mirroring a range of a host buffer. The
// element type is fixed at creation and the access mode at first bind.
// Capacity never shrinks. A DeviceBuffer may be bound to slots of several
// sessions at once; changes to its range affect every alias.
type DeviceBuffer struct {
	ctx      *Context
	mem      *deviceMem
	elem     ElementType
	rng      Range
	access   Access
	capacity int
	host     HostBuffer
	owner    *Session // nil for buffers created through the Context
	disposed bool
}

func (c *Context) newBuffer(mem *deviceMem, host HostBuffer, r Range, access Access, owner *Session) *DeviceBuffer {
	b := &DeviceBuffer{
		ctx:      c,
		mem:      mem,
		elem:     host.ElementType(),
		rng:      r,
		access:   access,
		capacity: int(mem.size) / host.ElementType().Size(),
		host:     host,
		owner:    owner,
	}
	c.buffers[b] = struct{}{}
	return b
}

// ElementType returns the element type, or 0 after Dispose.
func (b *DeviceBuffer) ElementType() ElementType {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	return b.elem
}

// Range returns the current transfer range.
func (b *DeviceBuffer) Range() Range {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	return b.rng
}

// Access returns the access mode, or 0 after Dispose.
func (b *DeviceBuffer) Access() Access {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	return b.access
}

// Capacity returns the allocated size in elements, or -1 after Dispose.
func (b *DeviceBuffer) Capacity() int {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	return b.capacity
}

// Host returns the host buffer this device buffer mirrors.
func (b *DeviceBuffer) Host() HostBuffer {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	return b.host
}

// Generation identifies the current device allocation. It changes when a
// rebind outgrows the capacity and the buffer moves to new memory.
func (b *DeviceBuffer) Generation() uint64 {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	if b.mem == nil {
		return 0
	}
	return b.mem.gen
}

// Disposed reports whether Dispose has been called.
func (b *DeviceBuffer) Disposed() bool {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	return b.disposed
}

// SetRange replaces the transfer range used by later readbacks and
// downloads.
func (b *DeviceBuffer) SetRange(r Range) error {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()

	const op = "set range"
	if b.disposed {
		return newError(KindDisposed, op, "buffer was disposed")
	}
	if r.IsZero() {
		return newError(KindInvalidRange, op, "zero range")
	}
	if r.Size() > b.capacity {
		return newError(KindRangeOverrun, op, "%v exceeds capacity %d", r, b.capacity)
	}
	if b.host != nil && r.End() > b.host.Len() {
		return newError(KindRangeOverrun, op, "%v overruns host buffer of length %d", r, b.host.Len())
	}
	b.rng = r
	return nil
}

// Dispose drops the buffer's claim on its device memory. The memory is
// released once no kernel argument refers to it. Later use of b fails
// with ErrDisposed; disposing twice is a no-op.
func (b *DeviceBuffer) Dispose() {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	b.disposeLocked()
}

func (b *DeviceBuffer) disposeLocked() {
	if b.disposed {
		return
	}
	b.ctx.unref(b.mem)
	delete(b.ctx.buffers, b)
	if b.owner != nil {
		delete(b.owner.owned, b)
	}
	b.mem = nil
	b.elem = 0
	b.rng = Range{}
	b.access = 0
	b.capacity = -1
	b.host = nil
	b.owner = nil
	b.disposed = true
}

// grow moves b to a fresh allocation. Kernel arguments still pointing at
// the old one keep it alive until they are refreshed.
func (b *DeviceBuffer) grow(mem *deviceMem) {
	b.ctx.unref(b.mem)
	b.mem = mem
	b.capacity = int(mem.size) / b.elem.Size()
}
