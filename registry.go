package ledgerhid

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
)

// Registry discovers and opens the configured device through a shared HID
// context.
type Registry struct {
	hctx    *HIDContext
	cfg     Config
	resolve func(path string) (uint16, error) // usage page lookup when enumeration lacks it
}

// NewRegistry creates a registry over the given context.
func NewRegistry(hctx *HIDContext, cfg Config) *Registry {
	return &Registry{
		hctx:    hctx,
		cfg:     cfg,
		resolve: readUsagePage,
	}
}

// usagePage returns the device's usage page, reading the report descriptor on
// platforms whose enumeration does not expose it. Zero means unknown.
func (r *Registry) usagePage(d DeviceInfo) uint16 {
	if d.UsagePage != 0 {
		return d.UsagePage
	}
	page, err := r.resolve(d.Path)
	if err != nil {
		log.Trace("Usage page unavailable", "path", d.Path, "err", err)
		return 0
	}
	return page
}

// matches reports whether d is the APDU interface of a configured device.
// Without a usage page, the interface number decides, as Linux libusb backends
// only report that.
func (r *Registry) matches(d DeviceInfo) bool {
	if d.VendorID != r.cfg.VendorID {
		return false
	}
	if page := r.usagePage(d); page != 0 {
		return page == r.cfg.UsagePage
	}
	return d.Interface == r.cfg.Interface
}

func (r *Registry) find(e enumerator) (info, error) {
	infos, err := e.Infos(r.cfg.VendorID)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate: %w", ErrIO, err)
	}
	for _, info := range infos {
		if r.matches(info.Descriptor()) {
			return info, nil
		}
	}
	return nil, ErrDeviceNotFound
}

// DevicePath resolves the default device without opening it.
func (r *Registry) DevicePath() (string, error) {
	lease, err := r.hctx.lease()
	if err != nil {
		return "", err
	}
	defer lease.Release()

	var path string
	err = lease.with(func(e enumerator) error {
		info, err := r.find(e)
		if err != nil {
			return err
		}
		path = info.Descriptor().Path
		return nil
	})
	return path, err
}

// Open finds the default device and opens it. The returned transport keeps the
// HID context alive until it is closed.
func (r *Registry) Open() (*Transport, error) {
	lease, err := r.hctx.lease()
	if err != nil {
		return nil, err
	}
	var (
		dev  device
		path string
	)
	err = lease.with(func(e enumerator) error {
		info, err := r.find(e)
		if err != nil {
			return err
		}
		path = info.Descriptor().Path
		if dev, err = info.Open(); err != nil {
			return fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
		}
		return nil
	})
	if err != nil {
		lease.Release()
		return nil, err
	}
	log.Debug("Opened Ledger device", "path", path)
	return NewTransport(dev, path, r.cfg, lease.Release), nil
}

// Devices lists every visible HID interface, whatever its vendor, for
// diagnostics. Missing usage pages are resolved where the platform allows.
func (r *Registry) Devices() ([]DeviceInfo, error) {
	lease, err := r.hctx.lease()
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var devices []DeviceInfo
	err = lease.with(func(e enumerator) error {
		infos, err := e.Infos(0)
		if err != nil {
			return fmt.Errorf("%w: enumerate: %w", ErrIO, err)
		}
		for _, info := range infos {
			d := info.Descriptor()
			d.UsagePage = r.usagePage(d)
			devices = append(devices, d)
		}
		return nil
	})
	return devices, err
}
