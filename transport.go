package ledgerhid

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

// Transport is an Exchanger over one opened HID device. At most one exchange is
// in flight at any time; concurrent callers queue on the device guard in arrival
// order.
type Transport struct {
	cfg  Config
	path string
	dev  device
	log  log.Logger

	guard     chan struct{} // capacity 1, held for a whole write+read cycle
	abandoned atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	release   func()
}

// NewTransport wraps an already opened device. The release hook, if non-nil, is
// invoked once on Close after the device itself has been closed.
func NewTransport(dev device, path string, cfg Config, release func()) *Transport {
	return &Transport{
		cfg:     cfg,
		path:    path,
		dev:     dev,
		log:     log.New("path", path),
		guard:   make(chan struct{}, 1),
		release: release,
	}
}

// Path returns the OS path of the underlying device.
func (t *Transport) Path() string {
	return t.path
}

// Exchange implements Exchanger. The device I/O itself is synchronous and runs on
// a worker goroutine; a cancelled ctx abandons the wait but never interrupts a
// transfer already issued, which still completes or times out before the guard
// is handed to the next caller.
func (t *Transport) Exchange(ctx context.Context, cmd *Command) (*Answer, error) {
	apdu, err := cmd.Serialize()
	if err != nil {
		return nil, err
	}
	if err := t.usable(); err != nil {
		return nil, err
	}
	select {
	case t.guard <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		<-t.guard
		return nil, err
	}
	if err := t.usable(); err != nil {
		<-t.guard
		return nil, err
	}

	type result struct {
		answer *Answer
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-t.guard }()
		answer, err := t.exchange(apdu)
		done <- result{answer, err}
	}()

	select {
	case res := <-done:
		return res.answer, res.err
	case <-ctx.Done():
		t.log.Debug("Exchange abandoned by caller", "cmd", cmd, "err", ctx.Err())
		return nil, ctx.Err()
	}
}

func (t *Transport) usable() error {
	if t.closed.Load() {
		return ErrClosed
	}
	if t.abandoned.Load() {
		return ErrDeviceAbandoned
	}
	return nil
}

// exchange runs one write+read cycle. The caller must hold the guard.
func (t *Transport) exchange(apdu []byte) (*Answer, error) {
	if err := t.writeAPDU(apdu); err != nil {
		return nil, err
	}
	raw, err := t.readAPDU()
	if err != nil {
		return nil, err
	}
	answer, err := ParseAnswer(raw)
	if err != nil {
		return nil, err
	}
	t.log.Trace("APDU answer received", "status", answer.Status, "data", hexutil.Bytes(answer.Payload))
	return answer, nil
}

func (t *Transport) writeAPDU(apdu []byte) error {
	packets, err := wrapAPDU(t.cfg.Channel, apdu, t.cfg.PacketSize)
	if err != nil {
		return err
	}
	for _, packet := range packets {
		t.log.Trace("Data chunk sent to the Ledger", "chunk", hexutil.Bytes(packet))
		n, err := t.dev.Write(packet)
		if err != nil {
			return fmt.Errorf("%w: device write: %w", ErrCommunication, err)
		}
		if n < len(packet) {
			return commError("short write, sent %d of %d bytes", n, len(packet))
		}
	}
	return nil
}

func (t *Transport) readAPDU() ([]byte, error) {
	var (
		buf = make([]byte, t.cfg.PacketSize)
		r   = newReassembler(t.cfg.Channel, t.cfg.StrictHeaders)
	)
	for {
		n, err := t.read(buf)
		if err != nil {
			return nil, err
		}
		t.log.Trace("Data chunk received from the Ledger", "chunk", hexutil.Bytes(buf[:n]))
		complete, err := r.feed(buf[:n])
		if err != nil {
			return nil, err
		}
		if complete {
			return r.bytes(), nil
		}
	}
}

// read performs one report read bounded by the configured timeout. On expiry the
// device may still deliver the late answer, so the transport is marked abandoned.
func (t *Transport) read(buf []byte) (int, error) {
	timeout := t.cfg.ReadTimeout()
	n, err := t.dev.ReadTimeout(buf, max(1, int(timeout.Milliseconds())))
	if err != nil {
		return 0, fmt.Errorf("%w: read: %w", ErrIO, err)
	}
	if n == 0 {
		t.abandoned.Store(true)
		t.log.Warn("Ledger read timed out, abandoning device", "timeout", timeout)
		return 0, commError("read timed out after %s", timeout)
	}
	return n, nil
}

// Close releases the device. A transfer already in flight is allowed to finish,
// or time out, before the handle is closed. It is safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.guard <- struct{}{}
		defer func() { <-t.guard }()

		t.closeErr = t.dev.Close()
		if t.release != nil {
			t.release()
		}
		t.log.Debug("Ledger transport closed", "err", t.closeErr)
	})
	return t.closeErr
}
