package bind

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/kernelbind/internal/gpu"
	"github.com/cwbudde/kernelbind/internal/logging"
)

// Context owns a device and serialises every command-stream operation
// issued through it. Sessions and buffers created from one Context may be
// used from several goroutines; operations run one at a time.
type Context struct {
	mu       sync.Mutex
	dev      gpu.Device
	log      *logrus.Entry
	observer func(Event)
	sessions map[*Session]struct{}
	buffers  map[*DeviceBuffer]struct{}
	gen      uint64
	closed   bool
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for transfer and dispatch diagnostics.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver registers fn to receive an Event after every completed
// operation. fn runs with the context lock held and must not call back
// into the Context.
func WithObserver(fn func(Event)) Option {
	return func(c *Context) { c.observer = fn }
}

// NewContext takes ownership of dev; Close closes it.
func NewContext(dev gpu.Device, opts ...Option) (*Context, error) {
	if dev == nil {
		return nil, newError(KindNullArgument, "new context", "device is nil")
	}
	c := &Context{
		dev:      dev,
		log:      logging.Component("bind"),
		sessions: make(map[*Session]struct{}),
		buffers:  make(map[*DeviceBuffer]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	info := dev.Info()
	c.log.WithFields(logrus.Fields{
		"device": info.Name,
		"type":   info.Type,
	}).Debug("context created")
	return c, nil
}

// Device returns the underlying device.
func (c *Context) Device() gpu.Device { return c.dev }

// GlobalMemory returns the device's global memory size in bytes.
func (c *Context) GlobalMemory() (int64, error) {
	return c.query(gpu.ParamGlobalMemSize)
}

// MaxAllocSize returns the largest single allocation the device accepts.
func (c *Context) MaxAllocSize() (int64, error) {
	return c.query(gpu.ParamMaxMemAllocSize)
}

// MaxWorkGroupSize returns the largest local work-group the device runs.
func (c *Context) MaxWorkGroupSize() (int64, error) {
	return c.query(gpu.ParamMaxWorkGroupSize)
}

func (c *Context) query(p gpu.Param) (int64, error) {
	v, err := c.dev.QueryInt(p)
	if err != nil {
		return 0, deviceError("query "+p.String(), err)
	}
	return v, nil
}

// NewSession compiles src and returns a session bound to its kernel.
func (c *Context) NewSession(src gpu.Source) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, newError(KindClosed, "new session", "context is closed")
	}

	start := time.Now()
	kernel, err := c.dev.Build(src)
	if err != nil {
		return nil, &Error{Kind: KindKernelBuildFailure, Op: "new session", Msg: src.Entry, Err: err}
	}

	s := &Session{
		ctx:    c,
		id:     uuid.NewString(),
		kernel: kernel,
		slots:  newSlotTable(),
		owned:  make(map[*DeviceBuffer]struct{}),
	}
	c.sessions[s] = struct{}{}

	c.log.WithFields(logrus.Fields{
		"session": s.id,
		"kernel":  src.Entry,
		"elapsed": time.Since(start),
	}).Debug("kernel built")
	c.emit(Event{Kind: EventBuild, Session: s.id, Kernel: src.Entry, Slot: -1, Duration: time.Since(start)})
	return s, nil
}

// NewSessionFromFile reads kernel source from path and compiles entry.
func (c *Context) NewSessionFromFile(path, entry, includePath string) (*Session, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: KindKernelBuildFailure, Op: "new session", Msg: entry, Err: err}
	}
	return c.NewSession(gpu.Source{Text: string(text), Entry: entry, IncludePath: includePath})
}

// Close releases every session and buffer still alive, then the device.
// Buffers the caller never disposed are reported as leaks.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	var errs []error
	for s := range c.sessions {
		if err := s.closeLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	for b := range c.buffers {
		c.log.WithFields(logrus.Fields{
			"type":     b.elem,
			"capacity": b.capacity,
		}).Warn("device buffer was never disposed")
		b.disposeLocked()
	}
	c.closed = true

	if err := c.dev.Close(); err != nil {
		errs = append(errs, deviceError("close", err))
	}
	return errors.Join(errs...)
}

func (c *Context) emit(ev Event) {
	if c.observer != nil {
		c.observer(ev)
	}
}

// deviceMem is a reference-counted device allocation. The owning buffer
// holds one reference and every kernel argument pointing at it holds one.
type deviceMem struct {
	mem  gpu.Mem
	size int64
	gen  uint64
	refs int
}

func (c *Context) allocate(op string, access Access, size int64) (*deviceMem, error) {
	mem, err := c.dev.Allocate(access.memFlags(), size)
	if err != nil {
		return nil, deviceError(op, err)
	}
	c.gen++
	allocationCount.Add(1)
	c.log.WithFields(logrus.Fields{"bytes": size, "access": access}).Debug("allocated device memory")
	c.emit(Event{Kind: EventAllocate, Slot: -1, Bytes: size})
	return &deviceMem{mem: mem, size: size, gen: c.gen, refs: 1}, nil
}

func (m *deviceMem) retain() *deviceMem {
	m.refs++
	return m
}

func (c *Context) unref(m *deviceMem) {
	if m == nil {
		return
	}
	m.refs--
	if m.refs > 0 {
		return
	}
	if err := c.dev.Release(m.mem); err != nil {
		c.log.WithError(err).Warn("releasing device memory failed")
	}
	c.emit(Event{Kind: EventRelease, Slot: -1, Bytes: m.size})
}

func (c *Context) write(op string, m *deviceMem, offset int64, data []byte) error {
	if err := c.dev.Write(m.mem, offset, data); err != nil {
		return deviceError(op, err)
	}
	uploadCount.Add(1)
	return nil
}

func (c *Context) read(op string, m *deviceMem, data []byte) error {
	if err := c.dev.Read(m.mem, 0, data); err != nil {
		return deviceError(op, err)
	}
	downloadCount.Add(1)
	return nil
}
