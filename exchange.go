package ledgerhid

import "context"

// Exchanger sends one command and waits for its answer. Implementations decide
// how the command reaches the device; callers such as SendChunks only rely on
// this contract.
//
// A non-success status word is not an error at this level: it comes back inside
// the Answer and is for the caller to interpret (see Check). The returned error
// covers transport failures and context cancellation only.
type Exchanger interface {
	Exchange(ctx context.Context, cmd *Command) (*Answer, error)
}
