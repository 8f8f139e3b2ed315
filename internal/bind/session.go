package bind

import (
	"encoding/binary"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/kernelbind/internal/gpu"
)

// Session is one compiled kernel together with its argument bindings and
// work sizes. Sessions of one Context share its lock, so a Session may be
// used from several goroutines but its operations never overlap.
type Session struct {
	ctx    *Context
	id     string
	kernel gpu.Kernel
	slots  *slotTable
	owned  map[*DeviceBuffer]struct{}
	global []int
	local  []int
	closed bool
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Name returns the kernel entry point.
func (s *Session) Name() string { return s.kernel.Name() }

// Context returns the context the session was created from.
func (s *Session) Context() *Context { return s.ctx }

func (s *Session) check(op string) error {
	if s.closed {
		return newError(KindClosed, op, "session is closed")
	}
	if s.ctx.closed {
		return newError(KindClosed, op, "context is closed")
	}
	return nil
}

func (s *Session) logger() *logrus.Entry {
	return s.ctx.log.WithFields(logrus.Fields{"session": s.id, "kernel": s.kernel.Name()})
}

// replace installs e at slot (nil clears it) and drops the reference the
// previous binding held.
func (s *Session) replace(slot int, e *slotEntry) {
	if old := s.slots.lookup(slot); old != nil {
		s.ctx.unref(old.mem)
	}
	if e == nil {
		s.slots.delete(slot)
		return
	}
	s.slots.set(slot, e)
}

// IsArgumentSet reports whether anything is bound at slot.
func (s *Session) IsArgumentSet(slot int) bool {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.slots.lookup(slot) != nil
}

// Buffer returns the live device buffer bound at slot, or nil if the slot
// is empty, holds a scalar or its buffer was disposed.
func (s *Session) Buffer(slot int) *DeviceBuffer {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.slots.liveBuffer(slot)
}

// Slots returns the bound slot indices in ascending order.
func (s *Session) Slots() []int {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.slots.indices()
}

// Unbind forgets the binding at slot. A buffer bound there stays alive
// until it is disposed or the session closes.
func (s *Session) Unbind(slot int) error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	const op = "unbind"
	if err := s.check(op); err != nil {
		return err
	}
	if slot < 0 {
		return newError(KindInvalidSlot, op, "slot %d", slot)
	}
	s.replace(slot, nil)
	return nil
}

// ReleaseMemory unbinds every slot and disposes the buffers this session
// created. Buffers bound with BindBuffer are left to their owner.
func (s *Session) ReleaseMemory() {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.releaseLocked()
}

func (s *Session) releaseLocked() {
	for _, slot := range s.slots.indices() {
		s.replace(slot, nil)
	}
	for b := range s.owned {
		b.disposeLocked()
	}
}

// Close releases the session's memory and kernel. Closing twice is a no-op.
func (s *Session) Close() error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.closed {
		return nil
	}
	s.releaseLocked()
	s.closed = true
	delete(s.ctx.sessions, s)
	if err := s.kernel.Release(); err != nil {
		return deviceError("close session", err)
	}
	return nil
}

// SetInt32 passes v by value as the argument at slot.
func (s *Session) SetInt32(slot int, v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return s.setScalar("set int32", slot, b[:])
}

// SetFloat32 passes v by value as the argument at slot.
func (s *Session) SetFloat32(slot int, v float32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return s.setScalar("set float32", slot, b[:])
}

// SetInt64 passes v by value as the argument at slot.
func (s *Session) SetInt64(slot int, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return s.setScalar("set int64", slot, b[:])
}

func (s *Session) setScalar(op string, slot int, value []byte) error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	if err := s.check(op); err != nil {
		return err
	}
	if slot < 0 {
		return newError(KindInvalidSlot, op, "slot %d", slot)
	}
	if err := s.kernel.SetArgBytes(slot, value); err != nil {
		return deviceError(op, err)
	}
	s.replace(slot, &slotEntry{scalar: value})
	return nil
}

// SetArg binds v at slot, choosing the operation from v's type: int32,
// float32 and int64 are passed by value, a *DeviceBuffer goes through
// BindBuffer and anything else through Bind. access is ignored for
// scalars and existing buffers.
func (s *Session) SetArg(slot int, v any, access Access) (*DeviceBuffer, error) {
	switch x := v.(type) {
	case int32:
		return nil, s.SetInt32(slot, x)
	case float32:
		return nil, s.SetFloat32(slot, x)
	case int64:
		return nil, s.SetInt64(slot, x)
	case *DeviceBuffer:
		if x == nil {
			return nil, newError(KindNullArgument, "set arg", "device buffer is nil")
		}
		return x, s.BindBuffer(slot, x)
	}
	return s.Bind(slot, v, access)
}
