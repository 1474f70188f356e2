// Package custody defines the token custody boundary the ledger relies on:
// moving tokens in and out of platform custody with all-or-nothing semantics,
// and verifying delegated-approval permits. An in-memory implementation is
// provided for tests, examples and local development.
package custody

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrTransferFailed reports a token transfer the custody could not complete.
	ErrTransferFailed = errors.New("token transfer failed")
	// ErrPermitRejected reports a delegated-approval permit the token rejected.
	ErrPermitRejected = errors.New("permit rejected")
)

// Custody moves tokens between external accounts and platform custody.
// Implementations must be all-or-nothing: a returned error means no tokens
// moved.
type Custody interface {
	// TransferIn pulls amount of token from the given account into custody.
	TransferIn(ctx context.Context, token, from common.Address, amount *big.Int) error
	// TransferOut pays amount of token from custody out to the given account.
	TransferOut(ctx context.Context, token, to common.Address, amount *big.Int) error
	// Permit forwards a delegated-approval signature to the token's own
	// verification entry point. On success the owner's tokens become
	// transferable by spender up to value.
	Permit(ctx context.Context, token, owner, spender common.Address, value *big.Int, nonce, deadline uint64, signature []byte) error
}
