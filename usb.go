package ledgerhid

import (
	"fmt"
	"slices"

	"github.com/google/gousb"
)

// USBDeviceInfo is the raw USB view of a device, independent of the HID layer.
type USBDeviceInfo struct {
	Bus           int
	Address       int
	VendorID      uint16
	ProductID     uint16
	HIDInterfaces []int // interface numbers with a HID class alternate setting
}

// ListUSBDevices walks the USB bus through libusb without opening anything,
// returning devices of the given vendor (all if zero). It helps diagnose
// devices the HID layer does not surface, e.g. for lack of permissions.
func ListUSBDevices(vendorID uint16) ([]USBDeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var infos []USBDeviceInfo
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if vendorID == 0 || uint16(desc.Vendor) == vendorID {
			infos = append(infos, describeUSB(desc))
		}
		return false
	})
	for _, dev := range devs {
		dev.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: usb enumerate: %w", ErrIO, err)
	}
	return infos, nil
}

func describeUSB(desc *gousb.DeviceDesc) USBDeviceInfo {
	info := USBDeviceInfo{
		Bus:       desc.Bus,
		Address:   desc.Address,
		VendorID:  uint16(desc.Vendor),
		ProductID: uint16(desc.Product),
	}
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassHID && !slices.Contains(info.HIDInterfaces, iface.Number) {
					info.HIDInterfaces = append(info.HIDInterfaces, iface.Number)
				}
			}
		}
	}
	slices.Sort(info.HIDInterfaces)
	return info
}
