package ledgerhid

import (
	"encoding/binary"
	"fmt"
)

// maxPayload is the largest body a single command can declare, its length being
// transmitted as one byte.
const maxPayload = 255

// Command is an ISO/IEC 7816-4 style command APDU:
//
//	CLA | INS | P1 | P2 | Lc | Data
//	----+-----+----+----+----+---------
//	 1  |  1  | 1  | 1  | 1  | Lc bytes
//
// Instruction codes are opaque to this package.
type Command struct {
	Class       byte
	Instruction byte
	P1, P2      byte
	Payload     []byte
}

// Serialize flattens the command into its wire bytes. Payloads over 255 bytes
// cannot be described by the single length byte and are rejected.
func (c *Command) Serialize() ([]byte, error) {
	if len(c.Payload) > maxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(c.Payload))
	}
	out := make([]byte, 0, 5+len(c.Payload))
	out = append(out, c.Class, c.Instruction, c.P1, c.P2, byte(len(c.Payload)))
	return append(out, c.Payload...), nil
}

func (c *Command) String() string {
	return fmt.Sprintf("cla=0x%02x ins=0x%02x p1=0x%02x p2=0x%02x lc=%d", c.Class, c.Instruction, c.P1, c.P2, len(c.Payload))
}

// Answer is the device reply: an optional body followed by the status word.
type Answer struct {
	Payload []byte
	Status  StatusWord
}

// ParseAnswer splits a reassembled reply into body and trailing big-endian
// status word.
func ParseAnswer(raw []byte) (*Answer, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooShort, len(raw))
	}
	n := len(raw) - 2
	return &Answer{
		Payload: raw[:n:n],
		Status:  StatusWord(binary.BigEndian.Uint16(raw[n:])),
	}, nil
}

func (a *Answer) String() string {
	return fmt.Sprintf("status=%s data=%d bytes", a.Status, len(a.Payload))
}

// Check turns a non-success answer into an *AppError.
func Check(a *Answer) error {
	if a.Status.IsSuccess() {
		return nil
	}
	return newAppError(a.Status)
}
