// Package ledger tracks the two disjoint balances the system maintains per
// (account, token): earnings owed to recipients, and prepaid deposits a payer
// can spend down. The two kinds are never commingled in computation.
package ledger

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrInvalidAmount reports a nil, zero or negative amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientBalance reports a debit exceeding the current balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Kind selects which of the two per-(account, token) balances an entry holds.
type Kind uint8

const (
	// Earnings is withdrawable revenue owed to a recipient. Credited by
	// distribution, debited only by withdrawal.
	Earnings Kind = iota
	// Prepaid is a payer's deposit, debited by payments or withdrawal.
	Prepaid
)

type balanceKey struct {
	account common.Address
	token   common.Address
	kind    Kind
}

// Ledger is the owned balance table. Balances are always non-negative.
type Ledger struct {
	mu       sync.RWMutex
	balances map[balanceKey]*big.Int
}

// NewLedger returns an empty balance ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[balanceKey]*big.Int)}
}

// Deposit credits the prepaid balance of (account, token). The external token
// transfer into custody is the caller's responsibility and must be atomic
// with this credit.
func (l *Ledger) Deposit(account, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.add(balanceKey{account, token, Prepaid}, amount)
	zap.L().Debug("Prepaid balance credited",
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
	)
	return nil
}

// DebitPrepaid decrements the prepaid balance of (account, token), failing
// with ErrInsufficientBalance when the balance does not cover amount.
func (l *Ledger) DebitPrepaid(account, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sub(balanceKey{account, token, Prepaid}, amount)
}

// CreditEarnings increments the earnings balance of (account, token). A nil
// or zero amount is a no-op.
func (l *Ledger) CreditEarnings(account, token common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.add(balanceKey{account, token, Earnings}, amount)
}

// Withdraw zeroes and returns the earnings balance of (account, token).
// The caller is responsible for the external transfer out.
func (l *Ledger) Withdraw(account, token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{account, token, Earnings}
	current, ok := l.balances[key]
	if !ok {
		return new(big.Int)
	}
	delete(l.balances, key)
	return current
}

// WithdrawPrepaid decrements the prepaid balance of (account, token),
// symmetric to Deposit. The caller is responsible for the external transfer out.
func (l *Ledger) WithdrawPrepaid(account, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sub(balanceKey{account, token, Prepaid}, amount)
}

// PrepaidBalance returns a snapshot copy of the prepaid balance. Snapshot
// reads must not authorize writes; re-validate inside the mutating call.
func (l *Ledger) PrepaidBalance(account, token common.Address) *big.Int {
	return l.read(balanceKey{account, token, Prepaid})
}

// EarningsBalance returns a snapshot copy of the earnings balance.
func (l *Ledger) EarningsBalance(account, token common.Address) *big.Int {
	return l.read(balanceKey{account, token, Earnings})
}

func (l *Ledger) read(key balanceKey) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if current, ok := l.balances[key]; ok {
		return new(big.Int).Set(current)
	}
	return new(big.Int)
}

// add assumes l.mu is held.
func (l *Ledger) add(key balanceKey, amount *big.Int) {
	current, ok := l.balances[key]
	if !ok {
		current = new(big.Int)
		l.balances[key] = current
	}
	current.Add(current, amount)
}

// sub assumes l.mu is held.
func (l *Ledger) sub(key balanceKey, amount *big.Int) error {
	current, ok := l.balances[key]
	if !ok || current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	current.Sub(current, amount)
	return nil
}
