package ledgerhid

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestTransport_Exchange(t *testing.T) {
	reply := append(bytes.Repeat([]byte{0x42}, 100), 0x90, 0x00)
	dev := newScriptedDevice(answerReports(reply)...)
	tr := NewTransport(dev, "test", testConfig(), nil)

	cmd := &Command{Class: 0xe0, Instruction: 0x03, P1: 0x00, P2: 0x00, Payload: []byte{1, 2, 3}}
	answer, err := tr.Exchange(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, answer.Status)
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 100), answer.Payload)

	written := dev.Written()
	require.Len(t, written, 1)
	assert.Equal(t, []byte{0x01, 0x01, 0x05, 0x00, 0x00, 0x00, 0x08, 0xe0, 0x03, 0x00, 0x00, 0x03, 1, 2, 3}, written[0][:15])
}

func TestTransport_StatusWordIsNotAnError(t *testing.T) {
	dev := newScriptedDevice(answerReports([]byte{0x69, 0x85})...)
	tr := NewTransport(dev, "test", testConfig(), nil)

	answer, err := tr.Exchange(context.Background(), &Command{Class: 0xe0, Instruction: 0x0b})
	require.NoError(t, err)
	assert.Equal(t, StatusConditionsNotSatisfied, answer.Status)
	assert.Empty(t, answer.Payload)
}

func TestTransport_ResponseTooShort(t *testing.T) {
	dev := newScriptedDevice(answerReports([]byte{0x90})...)
	tr := NewTransport(dev, "test", testConfig(), nil)

	_, err := tr.Exchange(context.Background(), &Command{Class: 0xe0, Instruction: 0x03})
	require.ErrorIs(t, err, ErrResponseTooShort)
}

func TestTransport_PayloadTooLargeSkipsIO(t *testing.T) {
	dev := newScriptedDevice()
	tr := NewTransport(dev, "test", testConfig(), nil)

	_, err := tr.Exchange(context.Background(), &Command{Payload: make([]byte, 256)})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, dev.Written())
}

func TestTransport_WriteFailures(t *testing.T) {
	t.Run("short write", func(t *testing.T) {
		dev := newScriptedDevice()
		dev.writeCap = 10
		tr := NewTransport(dev, "test", testConfig(), nil)

		_, err := tr.Exchange(context.Background(), &Command{Class: 0xe0})
		require.ErrorIs(t, err, ErrCommunication)
	})
	t.Run("device error", func(t *testing.T) {
		dev := newScriptedDevice()
		dev.writeErr = errors.New("pipe error")
		tr := NewTransport(dev, "test", testConfig(), nil)

		_, err := tr.Exchange(context.Background(), &Command{Class: 0xe0})
		require.ErrorIs(t, err, ErrCommunication)
		assert.True(t, IsTransportError(err))
		assert.ErrorContains(t, err, "pipe error")
	})
}

func TestTransport_ReadError(t *testing.T) {
	dev := newScriptedDevice()
	dev.readErr = errors.New("device unplugged")
	tr := NewTransport(dev, "test", testConfig(), nil)

	_, err := tr.Exchange(context.Background(), &Command{Class: 0xe0})
	require.ErrorIs(t, err, ErrIO)
}

func TestTransport_TimeoutAbandonsDevice(t *testing.T) {
	dev := newScriptedDevice()
	cfg := testConfig()
	cfg.Timeout = Duration(20 * time.Millisecond)
	tr := NewTransport(dev, "test", cfg, nil)
	defer tr.Close()

	_, err := tr.Exchange(context.Background(), &Command{Class: 0xe0})
	require.ErrorIs(t, err, ErrCommunication)

	_, err = tr.Exchange(context.Background(), &Command{Class: 0xe0})
	require.ErrorIs(t, err, ErrDeviceAbandoned)
	assert.Len(t, dev.Written(), 1, "abandoned device must not be written to")
	assert.False(t, dev.Reading(), "timed out read must have returned")
}

func TestTransport_CloseWaitsForInFlightRead(t *testing.T) {
	dev := newScriptedDevice()
	cfg := testConfig()
	cfg.Timeout = Duration(50 * time.Millisecond)
	tr := NewTransport(dev, "test", cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := tr.Exchange(ctx, &Command{Class: 0xe0})
		errc <- err
	}()
	require.Eventually(t, dev.Reading, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	require.NoError(t, tr.Close())
	assert.False(t, dev.closedMidRead.Load(), "device closed while a read was in flight")
	assert.False(t, dev.Reading())
}

func TestTransport_ContextCancelledWhileQueued(t *testing.T) {
	dev := newScriptedDevice()
	tr := NewTransport(dev, "test", testConfig(), nil)
	defer tr.Close()

	// occupy the device guard as an in-flight exchange would
	tr.guard <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tr.Exchange(ctx, &Command{Class: 0xe0})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, dev.Written())

	<-tr.guard
}

func TestTransport_CancelledCallerDoesNotInterruptTransfer(t *testing.T) {
	dev := newScriptedDevice()
	tr := NewTransport(dev, "test", testConfig(), nil)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := tr.Exchange(ctx, &Command{Class: 0xe0, Instruction: 0x01})
		errc <- err
	}()
	require.Eventually(t, func() bool { return len(dev.Written()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	// the abandoned transfer still owns the device until its answer arrives
	select {
	case tr.guard <- struct{}{}:
		t.Fatal("guard released before the in-flight transfer completed")
	default:
	}
	for _, p := range answerReports([]byte{0x90, 0x00}) {
		dev.reports <- p
	}
	require.Eventually(t, func() bool {
		select {
		case tr.guard <- struct{}{}:
			<-tr.guard
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestTransport_ConcurrentExchangesDoNotInterleave(t *testing.T) {
	dev := newEchoDevice()
	tr := NewTransport(dev, "test", testConfig(), nil)
	defer tr.Close()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		payload := bytes.Repeat([]byte{byte(i + 1)}, 150)
		g.Go(func() error {
			answer, err := tr.Exchange(context.Background(), &Command{Class: 0xe0, Instruction: 0x0b, Payload: payload})
			if err != nil {
				return err
			}
			if !bytes.Equal(answer.Payload, payload) {
				return errors.New("answer belongs to another exchange")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, dev.Violation())
}

func TestTransport_Close(t *testing.T) {
	var released int
	dev := newScriptedDevice()
	tr := NewTransport(dev, "test", testConfig(), func() { released++ })

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, released)

	_, err := tr.Exchange(context.Background(), &Command{Class: 0xe0})
	require.ErrorIs(t, err, ErrClosed)
}
