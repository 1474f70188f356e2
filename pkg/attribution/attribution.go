// Package attribution validates revenue splits and divides a gross payment
// between the platform treasury and up to ten recipients by fixed basis-point
// percentages.
package attribution

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/modelpay/ledger-go/pkg/config"
	"github.com/modelpay/ledger-go/pkg/ledger"
	"go.uber.org/zap"
)

// MaxRecipients is the maximum number of entries in an attribution list.
const MaxRecipients = 10

var (
	// ErrTooManyRecipients reports an attribution list longer than MaxRecipients.
	ErrTooManyRecipients = errors.New("too many attribution recipients")
	// ErrEmptyRecipient reports an empty attribution list where one is required.
	ErrEmptyRecipient = errors.New("empty attribution list")
	// ErrInvalidRecipient reports a zero or duplicate recipient address.
	ErrInvalidRecipient = errors.New("invalid attribution recipient")
	// ErrInvalidSplit reports a zero basis-point share.
	ErrInvalidSplit = errors.New("invalid attribution split")
	// ErrSplitMismatch reports a list whose shares do not sum to exactly 10000.
	ErrSplitMismatch = errors.New("attribution splits must sum to 10000")
)

// Attribution assigns a fixed basis-point share of the post-fee remainder to
// a recipient. Lists exist only transiently as part of a payment request.
type Attribution struct {
	Recipient   common.Address `json:"recipient"`
	BasisPoints uint16         `json:"basis_points"`
}

// Share is one computed (recipient, amount) allocation.
type Share struct {
	Account common.Address
	Amount  *big.Int
}

// Validate checks an attribution list: 1-10 entries, distinct non-zero
// recipients, every share positive, shares summing to exactly 10000.
// Pure function, no side effects.
func Validate(attributions []Attribution) error {
	if len(attributions) == 0 {
		return ErrEmptyRecipient
	}
	if len(attributions) > MaxRecipients {
		return ErrTooManyRecipients
	}

	seen := make(map[common.Address]struct{}, len(attributions))
	total := 0
	for _, a := range attributions {
		if a.Recipient == (common.Address{}) {
			return ErrInvalidRecipient
		}
		if _, dup := seen[a.Recipient]; dup {
			return ErrInvalidRecipient
		}
		seen[a.Recipient] = struct{}{}

		if a.BasisPoints == 0 {
			return ErrInvalidSplit
		}
		total += int(a.BasisPoints)
	}
	if total != config.BasisPointsDenominator {
		return ErrSplitMismatch
	}
	return nil
}

// Shares computes the allocation of grossAmount: the platform fee
// floor(gross * feeBps / 10000) goes to treasury, and the remainder is split
// per attribution entry by floor(remainder * bps / 10000). With an empty
// attribution list the entire remainder goes to fallback.
//
// Floor division can leave up to len(attributions)-1 units of the remainder
// unallocated; that residual stays on the ledger's books and is never swept
// to the treasury or redistributed.
func Shares(grossAmount *big.Int, feeBps uint32, treasury, fallback common.Address, attributions []Attribution) []Share {
	denominator := big.NewInt(config.BasisPointsDenominator)

	fee := new(big.Int).Mul(grossAmount, big.NewInt(int64(feeBps)))
	fee.Div(fee, denominator)
	remainder := new(big.Int).Sub(grossAmount, fee)

	shares := make([]Share, 0, len(attributions)+1)

	if len(attributions) == 0 {
		shares = append(shares, Share{Account: fallback, Amount: remainder})
	} else {
		for _, a := range attributions {
			amount := new(big.Int).Mul(remainder, big.NewInt(int64(a.BasisPoints)))
			amount.Div(amount, denominator)
			shares = append(shares, Share{Account: a.Recipient, Amount: amount})
		}
	}

	shares = append(shares, Share{Account: treasury, Amount: fee})
	return shares
}

// Engine applies computed shares to the balance ledger.
type Engine struct {
	ledger *ledger.Ledger
}

// NewEngine returns an Engine crediting earnings on the given ledger.
func NewEngine(l *ledger.Ledger) *Engine {
	return &Engine{ledger: l}
}

// Distribute computes the shares for grossAmount (see Shares) and credits
// every allocation as earnings in token. The returned slice ends with the
// treasury fee share.
func (e *Engine) Distribute(grossAmount *big.Int, feeBps uint32, treasury, fallback common.Address, attributions []Attribution, token common.Address) []Share {
	shares := Shares(grossAmount, feeBps, treasury, fallback, attributions)
	for _, s := range shares {
		e.ledger.CreditEarnings(s.Account, token, s.Amount)
	}

	zap.L().Debug("Payment distributed",
		zap.String("gross", grossAmount.String()),
		zap.Int("recipients", len(shares)),
	)
	return shares
}
