package custody

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/modelpay/ledger-go/pkg/sign"

	"github.com/ethereum/go-ethereum/common"
)

var (
	platform = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	usdc     = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func TestPermitAndTransferIn(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	owner := crypto.PubkeyToAddress(priv.PublicKey)

	c := NewInMemory(platform)
	c.Mint(usdc, owner, big.NewInt(100000))

	value := big.NewInt(50000)
	message := PermitMessage(usdc, owner, platform, value, 0, 9999999999)
	sig := sign.GetSignature(message, priv)

	if err := c.Permit(context.Background(), usdc, owner, platform, value, 0, 9999999999, sig); err != nil {
		t.Fatalf("Permit: %v", err)
	}

	if err := c.TransferIn(context.Background(), usdc, owner, value); err != nil {
		t.Fatalf("TransferIn: %v", err)
	}
	if got := c.BalanceOf(usdc, owner).Int64(); got != 50000 {
		t.Fatalf("owner balance = %d, want 50000", got)
	}
	if got := c.BalanceOf(usdc, platform).Int64(); got != 50000 {
		t.Fatalf("custody balance = %d, want 50000", got)
	}
}

func TestPermitRejectsWrongSigner(t *testing.T) {
	ownerKey, _ := crypto.GenerateKey()
	mallory, _ := crypto.GenerateKey()
	owner := crypto.PubkeyToAddress(ownerKey.PublicKey)

	c := NewInMemory(platform)
	value := big.NewInt(50000)
	message := PermitMessage(usdc, owner, platform, value, 0, 0)
	sig := sign.GetSignature(message, mallory)

	err := c.Permit(context.Background(), usdc, owner, platform, value, 0, 0, sig)
	if !errors.Is(err, ErrPermitRejected) {
		t.Fatalf("expected ErrPermitRejected, got %v", err)
	}
}

func TestPermitNonceReuse(t *testing.T) {
	priv, _ := crypto.GenerateKey()
	owner := crypto.PubkeyToAddress(priv.PublicKey)

	c := NewInMemory(platform)
	value := big.NewInt(10)
	message := PermitMessage(usdc, owner, platform, value, 0, 0)
	sig := sign.GetSignature(message, priv)

	if err := c.Permit(context.Background(), usdc, owner, platform, value, 0, 0, sig); err != nil {
		t.Fatalf("Permit: %v", err)
	}
	// Same signed permit replayed: the nonce has advanced.
	err := c.Permit(context.Background(), usdc, owner, platform, value, 0, 0, sig)
	if !errors.Is(err, ErrPermitRejected) {
		t.Fatalf("expected ErrPermitRejected on replay, got %v", err)
	}
	if c.PermitNonce(owner) != 1 {
		t.Fatalf("nonce = %d, want 1", c.PermitNonce(owner))
	}
}

func TestPermitExpired(t *testing.T) {
	priv, _ := crypto.GenerateKey()
	owner := crypto.PubkeyToAddress(priv.PublicKey)

	c := NewInMemory(platform)
	value := big.NewInt(10)
	message := PermitMessage(usdc, owner, platform, value, 0, 1)
	sig := sign.GetSignature(message, priv)

	err := c.Permit(context.Background(), usdc, owner, platform, value, 0, 1, sig)
	if !errors.Is(err, ErrPermitRejected) {
		t.Fatalf("expected ErrPermitRejected for expired deadline, got %v", err)
	}
}

func TestTransferInWithoutAllowance(t *testing.T) {
	priv, _ := crypto.GenerateKey()
	owner := crypto.PubkeyToAddress(priv.PublicKey)

	c := NewInMemory(platform)
	c.Mint(usdc, owner, big.NewInt(100000))

	err := c.TransferIn(context.Background(), usdc, owner, big.NewInt(1))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if got := c.BalanceOf(usdc, owner).Int64(); got != 100000 {
		t.Fatalf("failed transfer moved tokens: %d", got)
	}
}

func TestTransferOut(t *testing.T) {
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000012")

	c := NewInMemory(platform)
	c.Mint(usdc, platform, big.NewInt(500))

	if err := c.TransferOut(context.Background(), usdc, recipient, big.NewInt(200)); err != nil {
		t.Fatalf("TransferOut: %v", err)
	}
	if got := c.BalanceOf(usdc, recipient).Int64(); got != 200 {
		t.Fatalf("recipient balance = %d, want 200", got)
	}

	err := c.TransferOut(context.Background(), usdc, recipient, big.NewInt(1000))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
}
