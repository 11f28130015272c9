package ledgerhid

import "encoding/binary"

const (
	hidLongItem      = 0xfe // long item prefix, followed by data size and tag
	hidUsagePageItem = 0x04 // global item, tag 0
)

// parseUsagePage walks a raw HID report descriptor and returns the first Usage
// Page value it declares. Short item prefixes carry the data size in their low
// two bits, 3 standing for 4 bytes.
func parseUsagePage(desc []byte) (uint16, bool) {
	for i := 0; i < len(desc); {
		prefix := desc[i]

		var header, size int
		if prefix == hidLongItem {
			header = 3
			if i+1 < len(desc) {
				size = int(desc[i+1])
			}
		} else {
			header = 1
			size = int(prefix & 0x03)
			if size == 3 {
				size = 4
			}
		}
		if prefix&0xfc == hidUsagePageItem {
			data := desc[min(i+1, len(desc)):min(i+1+size, len(desc))]
			switch {
			case len(data) == 1:
				return uint16(data[0]), true
			case len(data) >= 2:
				return binary.LittleEndian.Uint16(data), true
			}
			return 0, true
		}
		i += header + size
	}
	return 0, false
}
