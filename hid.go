package ledgerhid

import "github.com/karalabe/hid"

type hidEnumerator struct{}

// newHidEnumerator brings up the native HID subsystem.
func newHidEnumerator() (enumerator, error) {
	if !hid.Supported() {
		return nil, ErrUnsupportedPlatform
	}
	return &hidEnumerator{}, nil
}

func (e *hidEnumerator) Infos(vendorID uint16) ([]info, error) {
	devices, err := hid.Enumerate(vendorID, 0)
	if err != nil {
		return nil, err
	}
	infos := make([]info, 0, len(devices))
	for _, device := range devices {
		infos = append(infos, &hidInfo{device})
	}
	return infos, nil
}

func (e *hidEnumerator) Close() {
}

type hidInfo struct {
	hid.DeviceInfo
}

func (o *hidInfo) Descriptor() DeviceInfo {
	return DeviceInfo{
		Path:         o.DeviceInfo.Path,
		VendorID:     o.DeviceInfo.VendorID,
		ProductID:    o.DeviceInfo.ProductID,
		UsagePage:    o.DeviceInfo.UsagePage,
		Interface:    o.DeviceInfo.Interface,
		Manufacturer: o.DeviceInfo.Manufacturer,
		Product:      o.DeviceInfo.Product,
		Serial:       o.DeviceInfo.Serial,
	}
}

func (o *hidInfo) Open() (device, error) {
	return o.DeviceInfo.Open()
}
