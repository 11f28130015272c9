package ledgerhid

import (
	"context"
	"fmt"
	"unicode/utf8"
)

const (
	claDashboard     = 0xb0
	insAppAndVersion = 0x01

	appInfoFormat = 0x01
)

// AppInfo identifies the application currently running on the device.
type AppInfo struct {
	Name    string
	Version string
	Flags   []byte
}

// QueryAppInfo asks the device which application is open.
//
//	CLA | INS | P1 | P2 | Lc
//	----+-----+----+----+----
//	 B0 | 01  | 00 | 00 | 00
//
// And the output data is:
//
//	Description          | Length
//	---------------------+--------------
//	format (0x01)        | 1 byte
//	name length          | 1 byte
//	name                 | variable
//	version length       | 1 byte
//	version              | variable
//	flags length         | 1 byte
//	flags                | variable
func QueryAppInfo(ctx context.Context, ex Exchanger) (*AppInfo, error) {
	answer, err := ex.Exchange(ctx, &Command{Class: claDashboard, Instruction: insAppAndVersion})
	if err != nil {
		return nil, err
	}
	if err := Check(answer); err != nil {
		return nil, err
	}
	return ParseAppInfo(answer.Payload)
}

// ParseAppInfo decodes the reply to the app and version query.
func ParseAppInfo(data []byte) (*AppInfo, error) {
	if len(data) == 0 || data[0] != appInfoFormat {
		return nil, fmt.Errorf("%w: unrecognised app info format", ErrEncoding)
	}
	rest := data[1:]
	field := func(name string) ([]byte, error) {
		if len(rest) == 0 {
			return nil, fmt.Errorf("%w: app info truncated before %s", ErrEncoding, name)
		}
		n := int(rest[0])
		if len(rest) < 1+n {
			return nil, fmt.Errorf("%w: app info %s truncated", ErrEncoding, name)
		}
		value := rest[1 : 1+n]
		rest = rest[1+n:]
		return value, nil
	}
	name, err := field("name")
	if err != nil {
		return nil, err
	}
	version, err := field("version")
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(name) || !utf8.Valid(version) {
		return nil, fmt.Errorf("%w: app info is not valid UTF-8", ErrEncoding)
	}
	info := &AppInfo{Name: string(name), Version: string(version)}
	// Older dashboards omit the flags.
	if len(rest) > 0 {
		flags, err := field("flags")
		if err != nil {
			return nil, err
		}
		info.Flags = append([]byte(nil), flags...)
	}
	return info, nil
}
