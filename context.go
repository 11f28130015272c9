package ledgerhid

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// HIDContext owns the process' handle to the HID subsystem. The subsystem is
// brought up lazily by the first lease and torn down when the last lease is
// released, so holding a *HIDContext alone never keeps it alive.
//
// All subsystem calls (enumeration, open) are serialised by the context's own
// lock, independently of the per-device exchange guard.
type HIDContext struct {
	mu      sync.Mutex
	create  func() (enumerator, error)
	backend enumerator
	refs    int
}

// NewHIDContext returns a context backed by the native HID library.
func NewHIDContext() *HIDContext {
	return newHIDContext(newHidEnumerator)
}

func newHIDContext(create func() (enumerator, error)) *HIDContext {
	return &HIDContext{create: create}
}

// Refs returns the number of live leases.
func (c *HIDContext) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// lease reuses the live subsystem or creates a new one.
func (c *HIDContext) lease() (*hidLease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend == nil {
		backend, err := c.create()
		if err != nil {
			return nil, err
		}
		log.Debug("HID subsystem initialised")
		c.backend = backend
	}
	c.refs++
	return &hidLease{ctx: c}, nil
}

func (c *HIDContext) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refs--
	if c.refs == 0 && c.backend != nil {
		c.backend.Close()
		c.backend = nil
		log.Debug("HID subsystem released")
	}
}

type hidLease struct {
	ctx  *HIDContext
	once sync.Once
}

// with runs fn against the subsystem while holding the context lock.
func (l *hidLease) with(fn func(enumerator) error) error {
	l.ctx.mu.Lock()
	defer l.ctx.mu.Unlock()
	return fn(l.ctx.backend)
}

func (l *hidLease) Release() {
	l.once.Do(l.ctx.release)
}
