package bind

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Bind uploads host (any type Wrap accepts) for the argument at slot and
// returns the device buffer backing it. The whole host buffer is used.
// Rebinding a slot reuses its device memory while the data fits the
// buffer's capacity; access Read and ReadWrite upload, Write does not.
func (s *Session) Bind(slot int, host any, access Access) (*DeviceBuffer, error) {
	return s.bind("bind", slot, host, nil, access)
}

// BindRange is Bind restricted to the elements of host in r.
func (s *Session) BindRange(slot int, host any, r Range, access Access) (*DeviceBuffer, error) {
	return s.bind("bind range", slot, host, &r, access)
}

func (s *Session) bind(op string, slot int, host any, r *Range, access Access) (*DeviceBuffer, error) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	if err := s.check(op); err != nil {
		return nil, err
	}
	if slot < 0 {
		return nil, newError(KindInvalidSlot, op, "slot %d", slot)
	}
	hb, err := Wrap(host)
	if err != nil {
		err.(*Error).Op = op
		return nil, err
	}
	n := hb.Len()
	if n == 0 {
		return nil, newError(KindEmptyArray, op, "slot %d", slot)
	}
	if !access.valid() {
		return nil, newError(KindAccessModeMismatch, op, "unknown access mode %v", access)
	}

	rng := FullRange(n)
	if r != nil {
		if r.IsZero() {
			return nil, newError(KindInvalidRange, op, "zero range for slot %d", slot)
		}
		rng = *r
	}
	if rng.End() > n {
		return nil, newError(KindRangeOverrun, op, "%v overruns host buffer of length %d", rng, n)
	}

	buf := s.slots.liveBuffer(slot)
	if buf != nil {
		if buf.elem != hb.ElementType() {
			return nil, newError(KindTypeMismatch, op, "slot %d holds %v, got %v", slot, buf.elem, hb.ElementType())
		}
		if buf.access != access {
			return nil, newError(KindAccessModeMismatch, op, "slot %d is %v, got %v", slot, buf.access, access)
		}
	}

	var fresh *deviceMem
	if buf == nil || rng.Size() > buf.capacity {
		fresh, err = s.ctx.allocate(op, access, int64(rng.Size()*hb.ElementType().Size()))
		if err != nil {
			return nil, err
		}
	}
	mem := fresh
	if mem == nil {
		mem = buf.mem
	}

	// Nothing below may leave fresh allocated on failure.
	if access.Reads() {
		data := span(hb, rng)
		start := time.Now()
		if err := s.ctx.write(op, mem, 0, data); err != nil {
			s.ctx.unref(fresh)
			return nil, err
		}
		s.ctx.emit(Event{Kind: EventUpload, Session: s.id, Kernel: s.kernel.Name(), Slot: slot, Bytes: int64(len(data)), Duration: time.Since(start)})
	}
	if err := s.kernel.SetArgMem(slot, mem.mem); err != nil {
		s.ctx.unref(fresh)
		return nil, deviceError(op, err)
	}

	switch {
	case buf == nil:
		buf = s.ctx.newBuffer(fresh, hb, rng, access, s)
		s.owned[buf] = struct{}{}
	case fresh != nil:
		buf.grow(fresh)
		fallthrough
	default:
		buf.rng = rng
		buf.host = hb
	}
	s.replace(slot, &slotEntry{buf: buf, mem: mem.retain(), size: rng.Size()})

	s.logger().WithFields(logrus.Fields{
		"slot":     slot,
		"range":    rng.String(),
		"access":   access,
		"reused":   fresh == nil,
		"capacity": buf.capacity,
	}).Debug("bound buffer")
	return buf, nil
}

// BindBuffer points the argument at slot to an existing device buffer,
// which may be bound elsewhere too. The slot must be empty or already
// hold buf with the same range size.
func (s *Session) BindBuffer(slot int, buf *DeviceBuffer) error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	const op = "bind buffer"
	if err := s.check(op); err != nil {
		return err
	}
	if slot < 0 {
		return newError(KindInvalidSlot, op, "slot %d", slot)
	}
	if buf == nil {
		return newError(KindNullArgument, op, "device buffer is nil")
	}
	if buf.ctx != s.ctx {
		return newError(KindBufferIdentityMismatch, op, "buffer belongs to another context")
	}
	if buf.disposed {
		return newError(KindDisposed, op, "slot %d: buffer was disposed", slot)
	}

	if cur := s.slots.liveBuffer(slot); cur != nil {
		if cur != buf {
			return newError(KindBufferIdentityMismatch, op, "slot %d already holds another buffer; dispose it first", slot)
		}
		if size := s.slots.lookup(slot).size; size != buf.rng.Size() {
			return newError(KindSizeMismatch, op, "slot %d was bound with %d elements, buffer has %d", slot, size, buf.rng.Size())
		}
	}

	if err := s.kernel.SetArgMem(slot, buf.mem.mem); err != nil {
		return deviceError(op, err)
	}
	s.replace(slot, &slotEntry{buf: buf, mem: buf.mem.retain(), size: buf.rng.Size()})

	s.logger().WithFields(logrus.Fields{"slot": slot, "range": buf.rng.String()}).Debug("bound existing buffer")
	return nil
}
