// Package authorize verifies proof-of-authorization for payments that are not
// covered by a prepaid balance. Two mutually exclusive proof schemes exist:
// a delegated-approval permit forwarded to the token's own verification entry
// point, and a direct signature by the payer over the payment intent. The
// schemes are explicit variants of the Proof interface rather than
// field-presence checks, so adding a third scheme is a compiler-checked change.
package authorize

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/modelpay/ledger-go/pkg/custody"
	"github.com/modelpay/ledger-go/pkg/sign"
)

var (
	// ErrInvalidApproval reports a delegated-approval permit the token rejected.
	ErrInvalidApproval = errors.New("invalid delegated approval")
	// ErrInvalidSignature reports a direct signature that does not recover to
	// the claimed payer.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrNoAuthorization reports a payment with no proof where one is required.
	ErrNoAuthorization = errors.New("no payment authorization provided")
)

// Intent is the payment being authorized: which model, with what input, by
// whom, for how much, until when.
type Intent struct {
	ModelID   string
	InputHash common.Hash
	Payer     common.Address
	Amount    *big.Int
	Deadline  uint64
	Token     common.Address
}

// Proof is a payment authorization. Exactly one concrete variant accompanies
// a signature-path payment.
type Proof interface {
	isProof()
}

// DelegatedApproval authorizes the payment via a standard token-approval
// signature (permit) that the token contract itself verifies.
type DelegatedApproval struct {
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Nonce     uint64
	Deadline  uint64
	Signature []byte
}

func (DelegatedApproval) isProof() {}

// DirectSignature authorizes the payment via the payer's raw signature over
// the payment intent (see IntentMessage).
type DirectSignature struct {
	Signature []byte
}

func (DirectSignature) isProof() {}

// Authorizer resolves payment proofs against the token custody.
type Authorizer struct {
	custody custody.Custody
}

// NewAuthorizer returns an Authorizer verifying permits against the given custody.
func NewAuthorizer(c custody.Custody) *Authorizer {
	return &Authorizer{custody: c}
}

// Authorize verifies the proof for the given intent. On success the payer's
// tokens are transferable by the processor (delegated approval) or the payer
// is proven to have signed the intent (direct signature). A nil proof fails
// with ErrNoAuthorization.
func (a *Authorizer) Authorize(ctx context.Context, proof Proof, intent Intent) error {
	switch p := proof.(type) {
	case nil:
		return ErrNoAuthorization
	case DelegatedApproval:
		return a.delegated(ctx, p, intent)
	case *DelegatedApproval:
		if p == nil {
			return ErrNoAuthorization
		}
		return a.delegated(ctx, *p, intent)
	case DirectSignature:
		return verifyDirect(p, intent)
	case *DirectSignature:
		if p == nil {
			return ErrNoAuthorization
		}
		return verifyDirect(*p, intent)
	default:
		return ErrNoAuthorization
	}
}

func (a *Authorizer) delegated(ctx context.Context, p DelegatedApproval, intent Intent) error {
	if p.Owner != intent.Payer {
		return fmt.Errorf("%w: approval owner is not the payer", ErrInvalidApproval)
	}
	err := a.custody.Permit(ctx, intent.Token, p.Owner, p.Spender, p.Value, p.Nonce, p.Deadline, p.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidApproval, err)
	}
	return nil
}

func verifyDirect(p DirectSignature, intent Intent) error {
	signer, err := sign.RecoverSigner(IntentMessage(intent), p.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != intent.Payer {
		return fmt.Errorf("%w: recovered %s", ErrInvalidSignature, signer.Hex())
	}
	return nil
}

// IntentMessage builds the canonical direct-signature payload:
// concat(PrefixDirectPayment, modelID, inputHash, amount, deadline).
func IntentMessage(intent Intent) []byte {
	return bytes.Join([][]byte{
		[]byte(sign.PrefixDirectPayment),
		[]byte(intent.ModelID),
		intent.InputHash.Bytes(),
		sign.BigIntToBytes(intent.Amount),
		sign.Uint64ToBytes(intent.Deadline),
	}, nil)
}

// SignDirect produces the payer-side DirectSignature for an intent. Callers
// use this before submitting a signature-path payment.
func SignDirect(intent Intent, privateKeyECDSA *ecdsa.PrivateKey) DirectSignature {
	return DirectSignature{Signature: sign.GetSignature(IntentMessage(intent), privateKeyECDSA)}
}
