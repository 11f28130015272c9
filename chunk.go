package ledgerhid

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
)

// ChunkRole tags a sub-command's position inside a chunked transfer. It travels
// in P1.
type ChunkRole byte

const (
	ChunkInit ChunkRole = 0x00 // Opens the transfer, no payload
	ChunkAdd  ChunkRole = 0x01 // Carries an intermediate piece
	ChunkLast ChunkRole = 0x02 // Carries the final piece
)

const (
	// MaxChunkSize is the payload carried by each piece, kept below the 255
	// byte length ceiling.
	MaxChunkSize = 250

	// MaxChunks caps the number of pieces a message may be split into.
	MaxChunks = 255
)

// SendChunks streams a message too large for a single command:
//
//	CLA | INS | P1   | P2 | Data
//	----+-----+------+----+----------------------
//	 cc | ii  | 0x00 | pp | init payload, if any
//	 cc | ii  | 0x01 | 00 | piece 1 .. n-1
//	 cc | ii  | 0x02 | 00 | piece n
//
// The init command is sent as given and must carry the ChunkInit role. The first
// non-success status word aborts the transfer with an *AppError; there is no
// resumption and no retry. On success the answer to the last piece is returned.
func SendChunks(ctx context.Context, ex Exchanger, initCmd *Command, message []byte) (*Answer, error) {
	pieces := splitMessage(message)
	switch {
	case len(pieces) == 0:
		return nil, ErrEmptyMessage
	case len(pieces) > MaxChunks:
		return nil, fmt.Errorf("%w: %d pieces, limit %d", ErrMessageTooLarge, len(pieces), MaxChunks)
	}
	if ChunkRole(initCmd.P1) != ChunkInit {
		return nil, fmt.Errorf("%w: got p1=0x%02x", ErrInvalidChunkRole, initCmd.P1)
	}

	answer, err := exchangeChecked(ctx, ex, initCmd)
	if err != nil {
		return nil, err
	}
	for i, piece := range pieces {
		role := ChunkAdd
		if i == len(pieces)-1 {
			role = ChunkLast
		}
		cmd := &Command{
			Class:       initCmd.Class,
			Instruction: initCmd.Instruction,
			P1:          byte(role),
			P2:          0,
			Payload:     piece,
		}
		if answer, err = exchangeChecked(ctx, ex, cmd); err != nil {
			log.Debug("Chunked transfer aborted", "ins", initCmd.Instruction, "piece", i+1, "pieces", len(pieces), "err", err)
			return nil, err
		}
	}
	return answer, nil
}

func exchangeChecked(ctx context.Context, ex Exchanger, cmd *Command) (*Answer, error) {
	answer, err := ex.Exchange(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := Check(answer); err != nil {
		return nil, err
	}
	return answer, nil
}

func splitMessage(message []byte) [][]byte {
	var pieces [][]byte
	for len(message) > 0 {
		n := min(MaxChunkSize, len(message))
		pieces = append(pieces, message[:n:n])
		message = message[n:]
	}
	return pieces
}
