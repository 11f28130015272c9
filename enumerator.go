package ledgerhid

import "io"

type enumerator interface {
	// Infos returns the HID devices of the given vendor, all vendors if zero.
	Infos(vendorID uint16) ([]info, error)
	// Close releases any resources held by the enumerator.
	Close()
}

type info interface {
	// Descriptor returns what the HID subsystem reports about the device.
	Descriptor() DeviceInfo
	// Open opens a connection to the HID device.
	Open() (device, error)
}

// device is an opened HID interface.
type device interface {
	io.WriteCloser
	// ReadTimeout reads one input report, waiting at most timeout milliseconds.
	// It returns 0 bytes and no error when nothing arrived in time.
	ReadTimeout(b []byte, timeout int) (int, error)
}

// DeviceInfo describes one visible HID interface.
type DeviceInfo struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	UsagePage    uint16
	Interface    int
	Manufacturer string
	Product      string
	Serial       string
}
