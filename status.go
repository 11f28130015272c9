package ledgerhid

import "fmt"

// StatusWord is the 16-bit trailer terminating every APDU answer.
type StatusWord uint16

const (
	StatusOK                     StatusWord = 0x9000 // Command processed successfully
	StatusExecutionError         StatusWord = 0x6400 // No information given, NV-RAM unchanged
	StatusWrongLength            StatusWord = 0x6700 // Wrong length
	StatusEmptyBuffer            StatusWord = 0x6982 // Empty buffer
	StatusOutputBufferTooSmall   StatusWord = 0x6983 // Output buffer too small
	StatusDataInvalid            StatusWord = 0x6984 // Data reversibly blocked (invalidated)
	StatusConditionsNotSatisfied StatusWord = 0x6985 // Conditions of use not satisfied (e.g. user rejected)
	StatusCommandNotAllowed      StatusWord = 0x6986 // Command not allowed (no current EF)
	StatusBadKeyHandle           StatusWord = 0x6A80 // Parameters in the data field are incorrect
	StatusInvalidP1P2            StatusWord = 0x6B00 // Wrong parameter(s) P1-P2
	StatusInsNotSupported        StatusWord = 0x6D00 // Instruction code not supported or invalid
	StatusClaNotSupported        StatusWord = 0x6E00 // Class not supported
	StatusUnknown                StatusWord = 0x6F00 // Unknown error
	StatusSignVerifyError        StatusWord = 0x6F01 // Signature verification failed
)

var statusDescriptions = map[StatusWord]string{
	StatusExecutionError:         "execution error: no information given (NV-RAM not changed)",
	StatusWrongLength:            "wrong length",
	StatusEmptyBuffer:            "empty buffer",
	StatusOutputBufferTooSmall:   "output buffer too small",
	StatusDataInvalid:            "data invalid: data reversibly blocked (invalidated)",
	StatusConditionsNotSatisfied: "conditions not satisfied: Conditions of use not satisfied",
	StatusCommandNotAllowed:      "command not allowed: no current EF",
	StatusBadKeyHandle:           "bad key handle: the parameters in the data field are incorrect",
	StatusInvalidP1P2:            "invalid P1/P2: wrong parameter(s) P1-P2",
	StatusInsNotSupported:        "instruction not supported: instruction code not supported or invalid",
	StatusClaNotSupported:        "class not supported",
	StatusUnknown:                "unknown error",
	StatusSignVerifyError:        "sign/verify error",
}

// NewStatusWord assembles a status word from its two trailer bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the high byte.
func (sw StatusWord) SW1() byte { return byte(sw >> 8) }

// SW2 returns the low byte.
func (sw StatusWord) SW2() byte { return byte(sw) }

// IsSuccess reports whether the device accepted the command. Only 0x9000 counts.
func (sw StatusWord) IsSuccess() bool {
	return sw == StatusOK
}

// Description maps a failure status word to a human readable category. Callers
// are expected to check IsSuccess first; unmapped codes describe as unknown.
func (sw StatusWord) Description() string {
	if desc, ok := statusDescriptions[sw]; ok {
		return desc
	}
	return "unknown status word"
}

func (sw StatusWord) String() string {
	return fmt.Sprintf("0x%04x", uint16(sw))
}
