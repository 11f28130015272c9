//go:build linux

package ledgerhid

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// sysfsUSBDevices is where the kernel lists USB devices and interfaces.
var sysfsUSBDevices = "/sys/bus/usb/devices"

// hidrawNode maps an enumeration path to its hidraw node. The libusb backend
// names interfaces bus-ports:config.interface, the same name sysfs uses for the
// interface directory holding the hidraw child.
func hidrawNode(path string) (string, error) {
	if strings.HasPrefix(path, "/dev/hidraw") {
		return path, nil
	}
	if path == "" || strings.ContainsAny(path, `/\*?[`) {
		return "", fmt.Errorf("%w: %q is not a usb interface path", ErrUnsupportedPlatform, path)
	}
	nodes, err := filepath.Glob(filepath.Join(sysfsUSBDevices, path, "*", "hidraw", "hidraw*"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("%w: no hidraw node for %s", ErrDeviceNotFound, path)
	}
	return "/dev/" + filepath.Base(nodes[0]), nil
}

// readUsagePage resolves the usage page of a device from its report descriptor,
// which the Linux backend does not surface through enumeration.
func readUsagePage(path string) (uint16, error) {
	node, err := hidrawNode(path)
	if err != nil {
		return 0, err
	}
	fd, err := unix.Open(node, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrIO, node, err)
	}
	defer unix.Close(fd)

	size, err := unix.IoctlGetInt(fd, unix.HIDIOCGRDESCSIZE)
	if err != nil {
		return 0, fmt.Errorf("%w: descriptor size of %s: %w", ErrIO, node, err)
	}
	desc := unix.HIDRawReportDescriptor{Size: uint32(size)}
	if err := unix.IoctlHIDGetDesc(fd, &desc); err != nil {
		return 0, fmt.Errorf("%w: descriptor of %s: %w", ErrIO, node, err)
	}
	page, _ := parseUsagePage(desc.Value[:min(int(desc.Size), len(desc.Value))])
	return page, nil
}
