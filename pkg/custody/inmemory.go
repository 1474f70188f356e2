package custody

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/modelpay/ledger-go/pkg/sign"
	"go.uber.org/zap"
)

type holdingKey struct {
	token   common.Address
	account common.Address
}

// InMemory is a self-contained Custody backed by in-process token balances.
// Permits are personal-sign signatures over
// keccak(PrefixPermit || token || owner || spender || value || nonce || deadline)
// with per-owner sequential nonces.
type InMemory struct {
	mu         sync.Mutex
	holdings   map[holdingKey]*big.Int
	allowances map[holdingKey]*big.Int
	nonces     map[common.Address]uint64
	// spender is the platform account allowances are granted to.
	spender common.Address
}

// NewInMemory returns an empty in-memory custody whose transfers are pulled
// by the given platform spender account.
func NewInMemory(spender common.Address) *InMemory {
	return &InMemory{
		holdings:   make(map[holdingKey]*big.Int),
		allowances: make(map[holdingKey]*big.Int),
		nonces:     make(map[common.Address]uint64),
		spender:    spender,
	}
}

// Mint credits amount of token to account. Test and demo helper.
func (c *InMemory) Mint(token, account common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(c.holdings, holdingKey{token, account}, amount)
}

// BalanceOf returns a copy of account's token balance.
func (c *InMemory) BalanceOf(token, account common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.holdings[holdingKey{token, account}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// PermitNonce returns the next expected permit nonce for owner.
func (c *InMemory) PermitNonce(owner common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[owner]
}

// TransferIn pulls amount of token from the account's holdings, consuming an
// equal allowance granted via Permit.
func (c *InMemory) TransferIn(_ context.Context, token, from common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := holdingKey{token, from}
	allowance, ok := c.allowances[key]
	if !ok || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance too low for %s", ErrTransferFailed, from.Hex())
	}
	balance, ok := c.holdings[key]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance too low for %s", ErrTransferFailed, from.Hex())
	}

	allowance.Sub(allowance, amount)
	balance.Sub(balance, amount)
	c.credit(c.holdings, holdingKey{token, c.spender}, amount)

	zap.L().Debug("Tokens pulled into custody",
		zap.String("from", from.Hex()),
		zap.String("amount", amount.String()),
	)
	return nil
}

// TransferOut pays amount of token from custody to the given account.
func (c *InMemory) TransferOut(_ context.Context, token, to common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := holdingKey{token, c.spender}
	balance, ok := c.holdings[key]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: custody balance too low", ErrTransferFailed)
	}

	balance.Sub(balance, amount)
	c.credit(c.holdings, holdingKey{token, to}, amount)
	return nil
}

// Permit verifies the owner's delegated-approval signature and grants the
// spender an allowance of value. The nonce must equal the owner's next
// expected nonce and a non-zero deadline must not have passed.
func (c *InMemory) Permit(_ context.Context, token, owner, spender common.Address, value *big.Int, nonce, deadline uint64, signature []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if spender != c.spender {
		return fmt.Errorf("%w: unknown spender %s", ErrPermitRejected, spender.Hex())
	}
	if nonce != c.nonces[owner] {
		return fmt.Errorf("%w: bad nonce %d", ErrPermitRejected, nonce)
	}
	if deadline != 0 && deadline < uint64(time.Now().Unix()) {
		return fmt.Errorf("%w: permit expired", ErrPermitRejected)
	}

	message := PermitMessage(token, owner, spender, value, nonce, deadline)
	signer, err := sign.RecoverSigner(message, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermitRejected, err)
	}
	if signer != owner {
		return fmt.Errorf("%w: signer %s is not owner", ErrPermitRejected, signer.Hex())
	}

	c.nonces[owner] = nonce + 1
	c.credit(c.allowances, holdingKey{token, owner}, value)
	return nil
}

// PermitMessage builds the canonical permit payload signed by token owners:
// concat(PrefixPermit, token, owner, spender, value, nonce, deadline).
func PermitMessage(token, owner, spender common.Address, value *big.Int, nonce, deadline uint64) []byte {
	return bytes.Join([][]byte{
		[]byte(sign.PrefixPermit),
		token.Bytes(),
		owner.Bytes(),
		spender.Bytes(),
		sign.BigIntToBytes(value),
		sign.Uint64ToBytes(nonce),
		sign.Uint64ToBytes(deadline),
	}, nil)
}

// credit assumes c.mu is held.
func (c *InMemory) credit(table map[holdingKey]*big.Int, key holdingKey, amount *big.Int) {
	current, ok := table[key]
	if !ok {
		current = new(big.Int)
		table[key] = current
	}
	current.Add(current, amount)
}
