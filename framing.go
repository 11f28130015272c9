package ledgerhid

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HID link framing. Every report is packetSize bytes:
//
//	Offset | Length | Description
//	-------+--------+-------------------------------------------
//	0      | 2      | channel (big endian)
//	2      | 1      | tag, always 0x05
//	3      | 2      | sequence index (big endian), from 0
//	5      | 2      | total APDU length (big endian), report 0 only
//	...    | rest   | APDU bytes, last report zero padded
//
// The length prefix is part of the byte stream that gets sliced, so report 0
// carries two APDU bytes fewer than the following ones.

// wrapAPDU splits an outbound APDU into zero padded link reports.
func wrapAPDU(channel uint16, apdu []byte, packetSize int) ([][]byte, error) {
	if packetSize <= packetHeaderSize+2 {
		return nil, fmt.Errorf("packet size %d too small", packetSize)
	}
	if len(apdu) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: apdu of %d bytes", ErrPayloadTooLarge, len(apdu))
	}
	stream := make([]byte, 2, 2+len(apdu))
	binary.BigEndian.PutUint16(stream, uint16(len(apdu)))
	stream = append(stream, apdu...)

	chunkSize := packetSize - packetHeaderSize
	packets := make([][]byte, 0, (len(stream)+chunkSize-1)/chunkSize)
	for seq := 0; len(stream) > 0; seq++ {
		n := min(chunkSize, len(stream))
		packet := make([]byte, packetSize)
		binary.BigEndian.PutUint16(packet[0:], channel)
		packet[2] = packetTag
		binary.BigEndian.PutUint16(packet[3:], uint16(seq))
		copy(packet[packetHeaderSize:], stream[:n])
		packets = append(packets, packet)
		stream = stream[n:]
	}
	return packets, nil
}

// reassembler accumulates inbound reports into one APDU answer. It is fed one
// report at a time and reports completion once the length announced in report 0
// has been collected.
type reassembler struct {
	channel uint16
	strict  bool

	seq      uint16
	expected int
	data     []byte
}

func newReassembler(channel uint16, strict bool) *reassembler {
	return &reassembler{channel: channel, strict: strict}
}

// feed consumes a single report, returning true when the answer is complete.
func (r *reassembler) feed(packet []byte) (bool, error) {
	header := packetHeaderSize
	if r.seq == 0 {
		header += 2
	}
	if len(packet) < header {
		return false, commError("incomplete header in report %d (%d bytes)", r.seq, len(packet))
	}
	channel := binary.BigEndian.Uint16(packet[0:])
	tag := packet[2]
	seq := binary.BigEndian.Uint16(packet[3:])

	if r.strict {
		if channel != r.channel {
			return false, commError("invalid channel 0x%04x, want 0x%04x", channel, r.channel)
		}
		if tag != packetTag {
			return false, commError("invalid tag 0x%02x", tag)
		}
	}
	if seq != r.seq {
		return false, commError("invalid sequence index %d, want %d", seq, r.seq)
	}
	pos := packetHeaderSize
	if seq == 0 {
		r.expected = int(binary.BigEndian.Uint16(packet[pos:]))
		r.data = make([]byte, 0, r.expected)
		pos += 2
	}
	missing := r.expected - len(r.data)
	available := len(packet) - pos
	r.data = append(r.data, packet[pos:pos+min(available, missing)]...)

	if len(r.data) >= r.expected {
		return true, nil
	}
	if r.seq == math.MaxUint16 {
		return false, commError("sequence index overflow with %d of %d bytes", len(r.data), r.expected)
	}
	r.seq++
	return false, nil
}

// bytes returns the accumulated answer.
func (r *reassembler) bytes() []byte {
	return r.data
}
