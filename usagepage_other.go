//go:build !linux

package ledgerhid

// readUsagePage is only needed where enumeration omits the usage page.
func readUsagePage(path string) (uint16, error) {
	return 0, ErrUnsupportedPlatform
}
