package ledgerhid

import (
	"errors"
	"fmt"
)

// Transport errors. All of them are fatal to the operation in flight and none is
// retried by this package.
var (
	ErrDeviceNotFound      = errors.New("ledger: device not found")
	ErrCommunication       = errors.New("ledger: communication error")
	ErrIO                  = errors.New("ledger: i/o error")
	ErrEncoding            = errors.New("ledger: encoding error")
	ErrResponseTooShort    = errors.New("ledger: response too short")
	ErrDeviceAbandoned     = errors.New("ledger: device abandoned after timeout")
	ErrClosed              = errors.New("ledger: transport closed")
	ErrUnsupportedPlatform = errors.New("ledger: unsupported platform")
)

// Usage errors, raised before any device I/O is attempted.
var (
	ErrEmptyMessage     = errors.New("ledger: message cannot be empty")
	ErrMessageTooLarge  = errors.New("ledger: message too large to chunk")
	ErrInvalidChunkRole = errors.New("ledger: first chunk must carry the init role")
	ErrPayloadTooLarge  = errors.New("ledger: command payload exceeds 255 bytes")
)

var (
	transportErrors = []error{
		ErrDeviceNotFound, ErrCommunication, ErrIO, ErrEncoding, ErrResponseTooShort,
		ErrDeviceAbandoned, ErrClosed, ErrUnsupportedPlatform,
	}
	usageErrors = []error{
		ErrEmptyMessage, ErrMessageTooLarge, ErrInvalidChunkRole, ErrPayloadTooLarge,
	}
)

// AppError is a non-success status word returned by the device. It is a
// business level rejection (user declined, wrong state, ...) rather than a
// transport failure.
type AppError struct {
	Status      StatusWord
	Description string
}

func newAppError(sw StatusWord) *AppError {
	return &AppError{Status: sw, Description: sw.Description()}
}

func (e *AppError) Error() string {
	return fmt.Sprintf("ledger: app error %s: %s", e.Status, e.Description)
}

// IsTransportError reports whether err originates from device discovery or the
// HID link rather than from the application running on the device.
func IsTransportError(err error) bool {
	return isAny(err, transportErrors)
}

// IsUsageError reports whether err was a protocol misuse rejected before I/O.
func IsUsageError(err error) bool {
	return isAny(err, usageErrors)
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func commError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCommunication, fmt.Sprintf(format, args...))
}
