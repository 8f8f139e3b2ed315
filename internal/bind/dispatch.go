package bind

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Dispatch runs the kernel over the configured work sizes and returns
// once the device has finished. Host buffers bound for writing are not
// updated until Readback.
func (s *Session) Dispatch() error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.dispatchLocked("dispatch")
}

// DispatchAndReadback is Dispatch followed by Readback.
func (s *Session) DispatchAndReadback() error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	if err := s.dispatchLocked("dispatch"); err != nil {
		return err
	}
	return s.readbackLocked("readback")
}

func (s *Session) dispatchLocked(op string) error {
	if err := s.check(op); err != nil {
		return err
	}
	if s.global == nil {
		return newError(KindWorkSizeNotSet, op, "set the global work size first")
	}
	if s.local != nil {
		if err := checkWorkSizes(op, s.global, s.local); err != nil {
			return err
		}
	}
	if err := s.refreshArgs(op); err != nil {
		return err
	}

	global := toInt64(s.global)
	var local []int64
	if s.local != nil {
		local = toInt64(s.local)
	}

	start := time.Now()
	if err := s.kernel.Enqueue(global, local); err != nil {
		return deviceError(op, err)
	}
	elapsed := time.Since(start)

	s.logger().WithFields(logrus.Fields{
		"global":  s.global,
		"local":   s.local,
		"elapsed": elapsed,
	}).Debug("dispatched")
	s.ctx.emit(Event{
		Kind:     EventDispatch,
		Session:  s.id,
		Kernel:   s.kernel.Name(),
		Slot:     -1,
		Global:   append([]int(nil), s.global...),
		Local:    append([]int(nil), s.local...),
		Duration: elapsed,
	})
	return nil
}

// refreshArgs repoints kernel arguments whose buffer moved to a new
// allocation since the slot was bound, and rejects disposed buffers.
func (s *Session) refreshArgs(op string) error {
	for _, slot := range s.slots.indices() {
		e := s.slots.lookup(slot)
		if e.buf == nil {
			continue
		}
		if e.buf.disposed {
			return newError(KindDisposed, op, "slot %d: buffer was disposed", slot)
		}
		if e.mem == e.buf.mem {
			continue
		}
		if err := s.kernel.SetArgMem(slot, e.buf.mem.mem); err != nil {
			return deviceError(op, err)
		}
		stale := e.mem
		e.mem = e.buf.mem.retain()
		s.ctx.unref(stale)
		s.logger().WithFields(logrus.Fields{
			"slot":       slot,
			"generation": e.mem.gen,
		}).Debug("refreshed stale argument")
	}
	return nil
}

// Readback copies every buffer bound for writing back into its host
// buffer. A buffer bound to several slots is transferred once. A slot
// whose buffer was disposed fails with ErrDisposed.
func (s *Session) Readback() error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return s.readbackLocked("readback")
}

func (s *Session) readbackLocked(op string) error {
	if err := s.check(op); err != nil {
		return err
	}

	done := make(map[*DeviceBuffer]struct{})
	for _, slot := range s.slots.indices() {
		b := s.slots.lookup(slot).buf
		if b == nil {
			continue
		}
		if b.disposed {
			return newError(KindDisposed, op, "slot %d: buffer was disposed", slot)
		}
		if !b.access.Writes() {
			continue
		}
		if _, ok := done[b]; ok {
			continue
		}
		done[b] = struct{}{}

		data := span(b.host, b.rng)
		start := time.Now()
		if err := s.ctx.read(op, b.mem, data); err != nil {
			return err
		}
		s.ctx.emit(Event{Kind: EventDownload, Session: s.id, Kernel: s.kernel.Name(), Slot: slot, Bytes: int64(len(data)), Duration: time.Since(start)})
	}

	s.logger().WithField("buffers", len(done)).Debug("read back")
	return nil
}

func toInt64(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}
