package ledgerhid

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultVendorID    uint16 = 0x2c97 // Ledger USB vendor identifier
	DefaultUsagePage   uint16 = 0xffa0 // Vendor defined usage page of the APDU interface
	DefaultInterface          = 0      // Interface number used when no usage page is resolvable
	DefaultChannel     uint16 = 0x0101 // HID channel multiplexed into every report
	DefaultPacketSize         = 64     // HID report size

	// DefaultReadTimeout mirrors what the firmware tooling historically used. It
	// is long enough to wait out on-device user confirmation.
	DefaultReadTimeout = 10_000 * time.Second

	// packetHeaderSize is channel(2) + tag(1) + sequence(2).
	packetHeaderSize = 5
	packetTag        = 0x05
)

// Config tunes device discovery and HID framing.
type Config struct {
	VendorID   uint16   `toml:"vendor_id"`
	UsagePage  uint16   `toml:"usage_page"`
	Interface  int      `toml:"interface"`
	Channel    uint16   `toml:"channel"`
	PacketSize int      `toml:"packet_size"`
	Timeout    Duration `toml:"read_timeout"`

	// StrictHeaders rejects inbound reports whose channel or tag differ from the
	// expected constants. Some platforms report other values, so it is off by default.
	StrictHeaders bool `toml:"strict_headers"`
}

// Duration is a time.Duration that decodes from strings such as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultConfig returns the settings for a Ledger-class device.
func DefaultConfig() Config {
	return Config{
		VendorID:   DefaultVendorID,
		UsagePage:  DefaultUsagePage,
		Interface:  DefaultInterface,
		Channel:    DefaultChannel,
		PacketSize: DefaultPacketSize,
		Timeout:    Duration(DefaultReadTimeout),
	}
}

// ReadTimeout returns the per-report read timeout.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.Timeout)
}

// Validate checks that the framing parameters can carry a first packet header.
func (c Config) Validate() error {
	if c.VendorID == 0 {
		return errors.New("config: vendor_id is required")
	}
	if c.PacketSize < packetHeaderSize+3 {
		return fmt.Errorf("config: packet_size %d too small", c.PacketSize)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: read_timeout must be positive, got %s", time.Duration(c.Timeout))
	}
	return nil
}

// LoadConfig reads a TOML file on top of DefaultConfig; absent keys keep their
// default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
