// Package sign provides the hashing and signature primitives shared by the
// payment, authorization and receipt components: Ethereum personal-sign style
// signatures over keccak-hashed messages, signer recovery, fixed message
// prefixes, and byte-encoding helpers for message construction.
package sign

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// HashPrefix32Bytes is the standard Ethereum personal-sign prefix for 32-byte
// payloads. Every signature produced by this module covers
// keccak256(HashPrefix32Bytes || keccak256(message)).
var HashPrefix32Bytes = []byte("\x19Ethereum Signed Message:\n32")

const (
	// PrefixPaymentIdentity is the message prefix for payment identity hashes.
	PrefixPaymentIdentity = "__payment_identity"
	// PrefixDirectPayment is the message prefix for direct payment
	// authorization signatures produced by the payer.
	PrefixDirectPayment = "__direct_payment"
	// PrefixExecutionProof is the message prefix for relayer execution proofs.
	PrefixExecutionProof = "__execution_proof"
	// PrefixPermit is the message prefix for delegated-approval permits
	// verified by the in-memory custody.
	PrefixPermit = "__token_permit"
)

// signatureLength is the expected R||S||V signature size.
const signatureLength = 65

// ErrInvalidSignatureBytes reports a signature that is structurally unusable
// (wrong length or unrecoverable public key).
var ErrInvalidSignatureBytes = errors.New("invalid signature bytes")

// GetSignature produces an Ethereum-compatible personal-sign (EIP-191 style)
// signature over the given message. It hashes the payload as
// keccak256(HashPrefix32Bytes || keccak256(message)) and signs with the
// provided ECDSA private key.
//
// Returns the 65-byte signature (R||S||V). On signing error it logs and returns nil.
func GetSignature(message []byte, privateKeyECDSA *ecdsa.PrivateKey) []byte {
	hash := crypto.Keccak256(
		HashPrefix32Bytes,
		crypto.Keccak256(message),
	)

	signature, err := crypto.Sign(hash, privateKeyECDSA)
	if err != nil {
		zap.L().Error("Failed to sign message", zap.Error(err))
	}

	return signature
}

// RecoverSigner recovers the address that produced a GetSignature-compatible
// signature over message. It accepts both V ∈ {0,1} and the legacy V ∈ {27,28}
// encoding.
func RecoverSigner(message, signature []byte) (common.Address, error) {
	if len(signature) != signatureLength {
		return common.Address{}, ErrInvalidSignatureBytes
	}

	sig := make([]byte, signatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	hash := crypto.Keccak256(
		HashPrefix32Bytes,
		crypto.Keccak256(message),
	)

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignatureBytes
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// GetAddressFromPrivateKeyECDSA derives the Ethereum address from the given
// ECDSA private key. It returns nil if the key is nil or its public part cannot
// be asserted to *ecdsa.PublicKey.
func GetAddressFromPrivateKeyECDSA(privateKeyECDSA *ecdsa.PrivateKey) *common.Address {
	if privateKeyECDSA == nil {
		return nil
	}
	publicKey := privateKeyECDSA.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil
	}
	addr := crypto.PubkeyToAddress(*publicKeyECDSA)
	return &addr
}

// ParsePrivateKeyECDSA parses a hex-encoded ECDSA private key and returns the
// corresponding Ethereum address together with the private key object.
func ParsePrivateKeyECDSA(privateKey string) (common.Address, *ecdsa.PrivateKey, error) {
	privateKeyECDSA, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return common.Address{}, nil, err
	}

	publicKey := privateKeyECDSA.Public()

	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, nil, errors.New("failed to get public key")
	}

	address := crypto.PubkeyToAddress(*publicKeyECDSA)
	return address, privateKeyECDSA, nil
}

// BigIntToBytes converts a *big.Int value to a 32-byte big-endian slice, using
// the same formatting that Ethereum commonly applies to integers in ABI/keccak
// contexts (common.BigToHash).
func BigIntToBytes(value *big.Int) []byte {
	return common.BigToHash(value).Bytes()
}

// Uint64ToBytes encodes a uint64 as an 8-byte big-endian slice.
func Uint64ToBytes(val uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, val)
	return buf
}

// BoolToByte encodes a bool as a single byte (1 for true, 0 for false).
func BoolToByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}
