package receipt

import (
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/modelpay/ledger-go/pkg/sign"
)

const testNow = 1700000000

func newManager() *Manager {
	m := NewManager(nil)
	m.now = func() time.Time { return time.Unix(testNow, 0) }
	return m
}

func newRelayer(t *testing.T, m *Manager) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)
	m.SetGateway(addr, true)
	return priv, addr
}

func signedSubmission(txSeed string, key *ecdsa.PrivateKey) Submission {
	input := []byte(`{"city":"berlin"}`)
	output := []byte(`{"temp":21}`)
	sub := Submission{
		TxID:         crypto.Keccak256Hash([]byte(txSeed)),
		ModelID:      "weather-v1",
		Payer:        common.HexToAddress("0x0000000000000000000000000000000000000005"),
		InputHash:    crypto.Keccak256Hash(input),
		OutputHash:   crypto.Keccak256Hash(output),
		ExecutedAt:   testNow - 10,
		ResponseSize: uint64(len(output)),
		Success:      true,
		HTTPStatus:   200,
	}
	sub.ExecutionProof = sign.GetSignature(ProofMessage(sub), key)
	return sub
}

func TestSubmitAndVerify(t *testing.T) {
	m := newManager()
	priv, relayer := newRelayer(t, m)

	sub := signedSubmission("tx-1", priv)
	if err := m.Submit(sub, relayer); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := m.Verify(sub.TxID, []byte(`{"city":"berlin"}`), []byte(`{"temp":21}`)); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	got, err := m.Get(sub.TxID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Gateway != relayer || got.HTTPStatus != 200 || !got.Success {
		t.Fatalf("unexpected receipt: %+v", got)
	}
}

func TestSubmitUnauthorizedGateway(t *testing.T) {
	m := newManager()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	relayer := crypto.PubkeyToAddress(priv.PublicKey)

	sub := signedSubmission("tx-1", priv)
	if err := m.Submit(sub, relayer); !errors.Is(err, ErrUnauthorizedGateway) {
		t.Fatalf("expected ErrUnauthorizedGateway, got %v", err)
	}
}

func TestSubmitReceiptExists(t *testing.T) {
	m := newManager()
	priv, relayer := newRelayer(t, m)

	sub := signedSubmission("tx-1", priv)
	if err := m.Submit(sub, relayer); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Same txID with a fresh proof: still rejected.
	again := sub
	again.ExecutedAt = testNow - 5
	again.ExecutionProof = sign.GetSignature(ProofMessage(again), priv)
	if err := m.Submit(again, relayer); !errors.Is(err, ErrReceiptExists) {
		t.Fatalf("expected ErrReceiptExists, got %v", err)
	}
}

func TestReplayedProofAcrossTxIDs(t *testing.T) {
	m := newManager()
	priv, relayer := newRelayer(t, m)

	sub := signedSubmission("tx-1", priv)
	if err := m.Submit(sub, relayer); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Different txID, same proof bytes: the replay set is global.
	replayed := sub
	replayed.TxID = crypto.Keccak256Hash([]byte("tx-2"))
	if err := m.Submit(replayed, relayer); !errors.Is(err, ErrReplayedProof) {
		t.Fatalf("expected ErrReplayedProof, got %v", err)
	}
}

func TestSubmitFutureExecutionTime(t *testing.T) {
	m := newManager()
	priv, relayer := newRelayer(t, m)

	sub := signedSubmission("tx-1", priv)
	sub.ExecutedAt = testNow + 60
	sub.ExecutionProof = sign.GetSignature(ProofMessage(sub), priv)
	if err := m.Submit(sub, relayer); !errors.Is(err, ErrInvalidExecutionTime) {
		t.Fatalf("expected ErrInvalidExecutionTime, got %v", err)
	}
}

func TestSubmitInvalidProof(t *testing.T) {
	m := newManager()
	priv, relayer := newRelayer(t, m)
	otherKey, _ := crypto.GenerateKey()

	// Proof signed by a key other than the submitting relayer.
	sub := signedSubmission("tx-1", otherKey)
	if err := m.Submit(sub, relayer); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}

	// Tampered field breaks the signature.
	sub = signedSubmission("tx-2", priv)
	sub.HTTPStatus = 500
	if err := m.Submit(sub, relayer); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for tampered status, got %v", err)
	}
}

func TestVerifyMismatches(t *testing.T) {
	m := newManager()
	priv, relayer := newRelayer(t, m)

	sub := signedSubmission("tx-1", priv)
	if err := m.Submit(sub, relayer); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := m.Verify(crypto.Keccak256Hash([]byte("missing")), nil, nil); !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("expected ErrReceiptNotFound, got %v", err)
	}
	if err := m.Verify(sub.TxID, []byte(`{"city":"paris"}`), []byte(`{"temp":21}`)); !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("expected ErrInputMismatch, got %v", err)
	}
	if err := m.Verify(sub.TxID, []byte(`{"city":"berlin"}`), []byte(`{"temp":0}`)); !errors.Is(err, ErrOutputMismatch) {
		t.Fatalf("expected ErrOutputMismatch, got %v", err)
	}
}

func TestVerifyGatewayRevoked(t *testing.T) {
	m := newManager()
	priv, relayer := newRelayer(t, m)

	sub := signedSubmission("tx-1", priv)
	if err := m.Submit(sub, relayer); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	m.SetGateway(relayer, false)
	err := m.Verify(sub.TxID, []byte(`{"city":"berlin"}`), []byte(`{"temp":21}`))
	if !errors.Is(err, ErrGatewayRevoked) {
		t.Fatalf("expected ErrGatewayRevoked, got %v", err)
	}

	// The receipt itself is untouched; authorization was checked at write time.
	if _, err := m.Get(sub.TxID); err != nil {
		t.Fatalf("receipt must survive revocation: %v", err)
	}
}
