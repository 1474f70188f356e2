// Package receipt records and verifies post-hoc execution attestations: an
// authorized relayer attaches a signed proof that a specific paid call
// executed with specific input and output. Receipts are immutable once
// stored, and every execution proof is globally single-use.
package receipt

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/modelpay/ledger-go/pkg/event"
	"github.com/modelpay/ledger-go/pkg/sign"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorizedGateway reports a submission by a relayer not on the allow-list.
	ErrUnauthorizedGateway = errors.New("gateway is not authorized")
	// ErrReceiptExists reports a second receipt for the same transaction identity.
	ErrReceiptExists = errors.New("receipt already exists")
	// ErrReplayedProof reports an execution proof that was used before,
	// even for a different transaction.
	ErrReplayedProof = errors.New("execution proof replayed")
	// ErrInvalidExecutionTime reports an execution timestamp in the future.
	ErrInvalidExecutionTime = errors.New("execution time is in the future")
	// ErrInvalidProof reports a proof whose signature does not recover to the relayer.
	ErrInvalidProof = errors.New("invalid execution proof")
	// ErrReceiptNotFound reports a verification against a missing receipt.
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrInputMismatch reports input data that does not hash to the recorded input.
	ErrInputMismatch = errors.New("input data does not match receipt")
	// ErrOutputMismatch reports output data that does not hash to the recorded output.
	ErrOutputMismatch = errors.New("output data does not match receipt")
	// ErrGatewayRevoked reports a receipt whose recording relayer has since
	// been removed from the allow-list.
	ErrGatewayRevoked = errors.New("recording gateway has been revoked")
)

// Receipt is one relayer attestation, keyed by transaction identity.
type Receipt struct {
	TxID           common.Hash
	ModelID        string
	Payer          common.Address
	InputHash      common.Hash
	OutputHash     common.Hash
	ExecutionProof []byte
	ExecutedAt     uint64
	ResponseSize   uint64
	Success        bool
	HTTPStatus     uint16
	Gateway        common.Address
}

// Submission carries the fields of a receipt being submitted by a relayer.
type Submission struct {
	TxID           common.Hash
	ModelID        string
	Payer          common.Address
	InputHash      common.Hash
	OutputHash     common.Hash
	ExecutionProof []byte
	ExecutedAt     uint64
	ResponseSize   uint64
	Success        bool
	HTTPStatus     uint16
}

// Manager owns the receipt table, the used-proof replay set, and the
// authorized-gateway allow-list. Submissions are applied atomically:
// the receipt insert and the proof marking happen under one lock.
type Manager struct {
	mu         sync.Mutex
	receipts   map[common.Hash]*Receipt
	usedProofs map[common.Hash]struct{}
	gateways   map[common.Address]bool
	bus        *event.Bus

	// now is replaceable in tests.
	now func() time.Time
}

// NewManager returns an empty receipt manager publishing on bus (may be nil).
func NewManager(bus *event.Bus) *Manager {
	return &Manager{
		receipts:   make(map[common.Hash]*Receipt),
		usedProofs: make(map[common.Hash]struct{}),
		gateways:   make(map[common.Address]bool),
		bus:        bus,
		now:        time.Now,
	}
}

// SetGateway flips the allow-list flag for a relayer account. Administrative
// operation; authorization is checked at submission time only.
func (m *Manager) SetGateway(gateway common.Address, authorized bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if authorized {
		m.gateways[gateway] = true
	} else {
		delete(m.gateways, gateway)
	}
	zap.L().Info("Gateway authorization changed",
		zap.String("gateway", gateway.Hex()),
		zap.Bool("authorized", authorized),
	)
}

// IsAuthorized reports whether a relayer is currently on the allow-list.
func (m *Manager) IsAuthorized(gateway common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gateways[gateway]
}

// Submit stores a relayer's execution receipt. The relayer must be on the
// allow-list, the transaction must not already carry a receipt, the proof
// must never have been used before, the execution time must not be in the
// future, and the proof must be the relayer's signature over ProofMessage.
func (m *Manager) Submit(sub Submission, relayer common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.gateways[relayer] {
		return ErrUnauthorizedGateway
	}
	if _, ok := m.receipts[sub.TxID]; ok {
		return ErrReceiptExists
	}

	proofKey := crypto.Keccak256Hash(sub.ExecutionProof)
	if _, used := m.usedProofs[proofKey]; used {
		return ErrReplayedProof
	}

	if sub.ExecutedAt > uint64(m.now().Unix()) {
		return ErrInvalidExecutionTime
	}

	signer, err := sign.RecoverSigner(ProofMessage(sub), sub.ExecutionProof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if signer != relayer {
		return fmt.Errorf("%w: signed by %s", ErrInvalidProof, signer.Hex())
	}

	stored := &Receipt{
		TxID:           sub.TxID,
		ModelID:        sub.ModelID,
		Payer:          sub.Payer,
		InputHash:      sub.InputHash,
		OutputHash:     sub.OutputHash,
		ExecutionProof: append([]byte(nil), sub.ExecutionProof...),
		ExecutedAt:     sub.ExecutedAt,
		ResponseSize:   sub.ResponseSize,
		Success:        sub.Success,
		HTTPStatus:     sub.HTTPStatus,
		Gateway:        relayer,
	}
	m.receipts[sub.TxID] = stored
	m.usedProofs[proofKey] = struct{}{}

	if m.bus != nil {
		m.bus.Publish(event.APIExecutionReceipt{
			TxID:           stored.TxID,
			ModelID:        stored.ModelID,
			Payer:          stored.Payer,
			InputHash:      stored.InputHash,
			OutputHash:     stored.OutputHash,
			ExecutionProof: stored.ExecutionProof,
			ExecutedAt:     stored.ExecutedAt,
			ResponseSize:   stored.ResponseSize,
			Success:        stored.Success,
			HTTPStatus:     stored.HTTPStatus,
			Gateway:        relayer,
		})
	}
	return nil
}

// Verify checks recorded input/output hashes against the provided data and
// that the recording gateway is still authorized. Pure read; never mutates.
func (m *Manager) Verify(txID common.Hash, inputData, outputData []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.receipts[txID]
	if !ok {
		return ErrReceiptNotFound
	}
	if crypto.Keccak256Hash(inputData) != r.InputHash {
		return ErrInputMismatch
	}
	if crypto.Keccak256Hash(outputData) != r.OutputHash {
		return ErrOutputMismatch
	}
	if !m.gateways[r.Gateway] {
		return ErrGatewayRevoked
	}
	return nil
}

// Get returns a snapshot copy of the receipt for txID.
func (m *Manager) Get(txID common.Hash) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.receipts[txID]
	if !ok {
		return Receipt{}, ErrReceiptNotFound
	}
	out := *r
	out.ExecutionProof = append([]byte(nil), r.ExecutionProof...)
	return out, nil
}

// ProofMessage builds the canonical execution proof payload signed by relayers:
// concat(PrefixExecutionProof, txID, modelID, payer, inputHash, outputHash,
// executedAt, responseSize, success, httpStatus).
func ProofMessage(sub Submission) []byte {
	return bytes.Join([][]byte{
		[]byte(sign.PrefixExecutionProof),
		sub.TxID.Bytes(),
		[]byte(sub.ModelID),
		sub.Payer.Bytes(),
		sub.InputHash.Bytes(),
		sub.OutputHash.Bytes(),
		sign.Uint64ToBytes(sub.ExecutedAt),
		sign.Uint64ToBytes(sub.ResponseSize),
		sign.BoolToByte(sub.Success),
		sign.Uint64ToBytes(uint64(sub.HTTPStatus)),
	}, nil)
}
