package ledgerhid

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errDeviceClosed = errors.New("device closed")

// scriptedDevice replays queued reports and records every written one.
type scriptedDevice struct {
	mu       sync.Mutex
	written  [][]byte
	writeErr error
	writeCap int // if > 0, writes report at most this many bytes

	reports chan []byte
	readErr error
	closed  chan struct{}
	once    sync.Once

	reading       atomic.Int32
	closedMidRead atomic.Bool
}

func newScriptedDevice(reports ...[]byte) *scriptedDevice {
	d := &scriptedDevice{
		reports: make(chan []byte, len(reports)+16),
		closed:  make(chan struct{}),
	}
	for _, r := range reports {
		d.reports <- r
	}
	return d
}

func (d *scriptedDevice) Write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.written = append(d.written, append([]byte(nil), b...))
	if d.writeCap > 0 && d.writeCap < len(b) {
		return d.writeCap, nil
	}
	return len(b), nil
}

func (d *scriptedDevice) ReadTimeout(b []byte, timeout int) (int, error) {
	if d.readErr != nil {
		return 0, d.readErr
	}
	d.reading.Add(1)
	defer d.reading.Add(-1)

	select {
	case r := <-d.reports:
		return copy(b, r), nil
	case <-time.After(time.Duration(timeout) * time.Millisecond):
		return 0, nil
	case <-d.closed:
		return 0, errDeviceClosed
	}
}

func (d *scriptedDevice) Close() error {
	if d.reading.Load() > 0 {
		d.closedMidRead.Store(true)
	}
	d.once.Do(func() { close(d.closed) })
	return nil
}

// Reading reports whether a read is blocked inside the device.
func (d *scriptedDevice) Reading() bool {
	return d.reading.Load() > 0
}

func (d *scriptedDevice) Written() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.written...)
}

// echoDevice answers every complete command with its own payload and 0x9000.
// It flags any write that arrives while a previous answer is still unread or
// that breaks the running command's packet sequence.
type echoDevice struct {
	mu        sync.Mutex
	cmd       *reassembler
	pending   chan []byte
	violation error
	closed    chan struct{}
	once      sync.Once
}

func newEchoDevice() *echoDevice {
	return &echoDevice{
		cmd:     newReassembler(DefaultChannel, true),
		pending: make(chan []byte, 1024),
		closed:  make(chan struct{}),
	}
}

func (d *echoDevice) Write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) > 0 && d.violation == nil {
		d.violation = errors.New("command written before previous answer was read")
	}
	done, err := d.cmd.feed(append([]byte(nil), b...))
	if err != nil {
		if d.violation == nil {
			d.violation = err
		}
		d.cmd = newReassembler(DefaultChannel, true)
		return len(b), nil
	}
	if !done {
		// widen the window for a competing writer
		time.Sleep(time.Millisecond)
		return len(b), nil
	}
	apdu := d.cmd.bytes()
	d.cmd = newReassembler(DefaultChannel, true)

	answer := append(append([]byte(nil), apdu[5:]...), 0x90, 0x00)
	packets, _ := wrapAPDU(DefaultChannel, answer, DefaultPacketSize)
	for _, p := range packets {
		d.pending <- p
	}
	return len(b), nil
}

func (d *echoDevice) ReadTimeout(b []byte, timeout int) (int, error) {
	select {
	case p := <-d.pending:
		time.Sleep(time.Millisecond)
		return copy(b, p), nil
	case <-time.After(time.Duration(timeout) * time.Millisecond):
		return 0, nil
	case <-d.closed:
		return 0, errDeviceClosed
	}
}

func (d *echoDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func (d *echoDevice) Violation() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.violation
}

// answerReports frames a raw answer the way the device would.
func answerReports(raw []byte) [][]byte {
	packets, err := wrapAPDU(DefaultChannel, raw, DefaultPacketSize)
	if err != nil {
		panic(err)
	}
	return packets
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = Duration(2 * time.Second)
	return cfg
}
