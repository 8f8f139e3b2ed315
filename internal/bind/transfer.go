package bind

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Allocate reserves a device buffer sized to host without uploading it.
// With zeroFill the memory is cleared before it is returned. The caller
// owns the buffer and must Dispose it.
func (c *Context) Allocate(host any, access Access, zeroFill bool) (*DeviceBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "allocate"
	if c.closed {
		return nil, newError(KindClosed, op, "context is closed")
	}
	hb, err := Wrap(host)
	if err != nil {
		err.(*Error).Op = op
		return nil, err
	}
	if hb.Len() == 0 {
		return nil, newError(KindEmptyArray, op, "")
	}
	if !access.valid() {
		return nil, newError(KindAccessModeMismatch, op, "unknown access mode %v", access)
	}

	size := int64(hb.Len() * hb.ElementType().Size())
	mem, err := c.allocate(op, access, size)
	if err != nil {
		return nil, err
	}
	if zeroFill {
		if err := c.dev.Fill(mem.mem, 0, 0, size); err != nil {
			c.unref(mem)
			return nil, deviceError(op, err)
		}
	}
	return c.newBuffer(mem, hb, FullRange(hb.Len()), access, nil), nil
}

// UploadOptions refines Upload. The zero value uploads the whole host
// buffer into a new device buffer with Read access.
type UploadOptions struct {
	// Target receives the data; nil allocates a new buffer.
	Target *DeviceBuffer
	// Range selects the host elements to send; nil means all of them.
	Range *Range
	// DestOffset is the element offset into Target.
	DestOffset int
	// Access defaults to Target's mode, or Read without a Target.
	Access Access
}

// Upload copies a range of host into device memory. A nil host re-sends
// the buffer Target already mirrors. Write access is rejected since a
// write-only buffer is only ever filled by the device.
func (c *Context) Upload(host any, opts UploadOptions) (*DeviceBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "upload"
	if c.closed {
		return nil, newError(KindClosed, op, "context is closed")
	}
	if opts.Access == Write {
		return nil, newError(KindWriteOnlyUploadRejected, op, "")
	}
	if opts.DestOffset < 0 {
		return nil, newError(KindInvalidRange, op, "negative destination offset %d", opts.DestOffset)
	}

	target := opts.Target
	if target != nil {
		if target.ctx != c {
			return nil, newError(KindBufferIdentityMismatch, op, "buffer belongs to another context")
		}
		if target.disposed {
			return nil, newError(KindDisposed, op, "target was disposed")
		}
	}

	var hb HostBuffer
	switch {
	case host != nil:
		var err error
		if hb, err = Wrap(host); err != nil {
			err.(*Error).Op = op
			return nil, err
		}
	case target != nil:
		hb = target.host
	default:
		return nil, newError(KindNullArgument, op, "host buffer and target are both nil")
	}
	if hb.Len() == 0 {
		return nil, newError(KindEmptyArray, op, "")
	}

	access := opts.Access
	if access == 0 {
		access = Read
		if target != nil {
			access = target.access
		}
	}
	if access == Write {
		return nil, newError(KindWriteOnlyUploadRejected, op, "target is write-only")
	}
	if !access.valid() {
		return nil, newError(KindAccessModeMismatch, op, "unknown access mode %v", access)
	}
	if target != nil {
		if target.elem != hb.ElementType() {
			return nil, newError(KindTypeMismatch, op, "target holds %v, got %v", target.elem, hb.ElementType())
		}
		if target.access != access {
			return nil, newError(KindAccessModeMismatch, op, "target is %v, got %v", target.access, access)
		}
	}

	rng := FullRange(hb.Len())
	if opts.Range != nil {
		if opts.Range.IsZero() {
			return nil, newError(KindInvalidRange, op, "zero range")
		}
		rng = *opts.Range
	}
	if rng.End() > hb.Len() {
		return nil, newError(KindRangeOverrun, op, "%v overruns host buffer of length %d", rng, hb.Len())
	}

	capacity := rng.Size()
	if target != nil {
		capacity = target.capacity
	}
	if opts.DestOffset+rng.Size() > capacity {
		return nil, newError(KindDestinationOverrun, op, "[%d, %d) does not fit capacity %d",
			opts.DestOffset, opts.DestOffset+rng.Size(), capacity)
	}

	es := hb.ElementType().Size()
	var fresh, mem *deviceMem
	if target != nil {
		mem = target.mem
	} else {
		var err error
		if fresh, err = c.allocate(op, access, int64(rng.Size()*es)); err != nil {
			return nil, err
		}
		mem = fresh
	}

	data := span(hb, rng)
	start := time.Now()
	if err := c.write(op, mem, int64(opts.DestOffset*es), data); err != nil {
		c.unref(fresh)
		return nil, err
	}
	c.emit(Event{Kind: EventUpload, Slot: -1, Bytes: int64(len(data)), Duration: time.Since(start)})

	if target == nil {
		return c.newBuffer(fresh, hb, rng, access, nil), nil
	}
	target.rng = rng
	target.host = hb
	return target, nil
}

// Download copies src's current range from device memory into host, or
// into the host buffer src mirrors when host is nil.
func (c *Context) Download(src *DeviceBuffer, host any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "download"
	if c.closed {
		return newError(KindClosed, op, "context is closed")
	}
	if src == nil {
		return newError(KindNullArgument, op, "source buffer is nil")
	}
	if src.ctx != c {
		return newError(KindBufferIdentityMismatch, op, "buffer belongs to another context")
	}
	if src.disposed {
		return newError(KindDisposed, op, "source was disposed")
	}

	hb := src.host
	if host != nil {
		var err error
		if hb, err = Wrap(host); err != nil {
			err.(*Error).Op = op
			return err
		}
		if hb.ElementType().Size() != src.elem.Size() {
			return newError(KindTypeMismatch, op, "source holds %v, got %v", src.elem, hb.ElementType())
		}
	}

	n := hb.Len()
	if src.rng.Size() > n {
		return newError(KindDestinationTooSmall, op, "cannot copy %d elements into %d", src.rng.Size(), n)
	}
	if src.rng.End() > n {
		return newError(KindRangeOverrun, op, "%v overruns host buffer of length %d", src.rng, n)
	}

	data := span(hb, src.rng)
	start := time.Now()
	if err := c.read(op, src.mem, data); err != nil {
		return err
	}
	c.emit(Event{Kind: EventDownload, Slot: -1, Bytes: int64(len(data)), Duration: time.Since(start)})
	return nil
}

// Copy transfers elements between two device buffers without a host
// round trip. A nil range covers the first Range().Size() elements of
// its buffer.
func (c *Context) Copy(src, dst *DeviceBuffer, srcRange, dstRange *Range) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "copy"
	if c.closed {
		return newError(KindClosed, op, "context is closed")
	}
	if src == nil || dst == nil {
		return newError(KindNullArgument, op, "source and destination are required")
	}
	if src.ctx != c || dst.ctx != c {
		return newError(KindBufferIdentityMismatch, op, "buffer belongs to another context")
	}
	if src.disposed || dst.disposed {
		return newError(KindDisposed, op, "")
	}
	if src.elem != dst.elem {
		return newError(KindTypeMismatch, op, "cannot copy %v into %v", src.elem, dst.elem)
	}

	sr, err := deviceRange(op, "source", src, srcRange)
	if err != nil {
		return err
	}
	dr, err := deviceRange(op, "destination", dst, dstRange)
	if err != nil {
		return err
	}
	if sr.Size() != dr.Size() {
		return newError(KindSizeMismatch, op, "source has %d elements, destination %d", sr.Size(), dr.Size())
	}

	es := int64(src.elem.Size())
	size := int64(sr.Size()) * es
	start := time.Now()
	if err := c.dev.Copy(src.mem.mem, dst.mem.mem, int64(sr.Start())*es, int64(dr.Start())*es, size); err != nil {
		return deviceError(op, err)
	}
	copyCount.Add(1)

	c.log.WithFields(logrus.Fields{"source": sr.String(), "destination": dr.String()}).Debug("copied device memory")
	c.emit(Event{Kind: EventCopy, Slot: -1, Bytes: size, Duration: time.Since(start)})
	return nil
}

// deviceRange resolves a range over device memory, which holds a
// buffer's current range starting at offset 0.
func deviceRange(op, which string, b *DeviceBuffer, r *Range) (Range, error) {
	if r == nil {
		return FullRange(b.rng.Size()), nil
	}
	if r.IsZero() {
		return Range{}, newError(KindInvalidRange, op, "zero %s range", which)
	}
	if r.End() > b.capacity {
		return Range{}, newError(KindRangeOverrun, op, "%s range %v exceeds capacity %d", which, *r, b.capacity)
	}
	return *r, nil
}
