// Package processor orchestrates a single paid API invocation: it validates
// the request against the model registry, deduplicates by payment identity,
// routes payment through the payer's prepaid balance or a signed
// authorization, distributes the gross amount between recipients and the
// platform treasury, and records usage. Each invocation is one atomic unit;
// no partial application is observable by concurrent callers.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/modelpay/ledger-go/pkg/attribution"
	"github.com/modelpay/ledger-go/pkg/authorize"
	"github.com/modelpay/ledger-go/pkg/config"
	"github.com/modelpay/ledger-go/pkg/custody"
	"github.com/modelpay/ledger-go/pkg/event"
	"github.com/modelpay/ledger-go/pkg/ledger"
	"github.com/modelpay/ledger-go/pkg/registry"
	"github.com/modelpay/ledger-go/pkg/sign"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientPayment reports an amount below the model price.
	ErrInsufficientPayment = errors.New("payment below model price")
	// ErrPaymentExpired reports a deadline in the past.
	ErrPaymentExpired = errors.New("payment deadline has passed")
	// ErrDuplicatePayment reports a payment identity that was already processed.
	ErrDuplicatePayment = errors.New("duplicate payment")
	// ErrFeeTooHigh reports a platform fee above config.MaxPlatformFeeBps.
	ErrFeeTooHigh = errors.New("platform fee exceeds maximum")
)

// Route records which payment path covered a request.
type Route uint8

const (
	// RoutePrepaid means the payment was debited from the payer's prepaid balance.
	RoutePrepaid Route = iota
	// RouteSignature means the payment was authorized by proof and pulled from custody.
	RouteSignature
)

// String returns the route name for logging.
func (r Route) String() string {
	if r == RoutePrepaid {
		return "prepaid"
	}
	return "signature"
}

// Request is one payment for one model invocation.
type Request struct {
	ModelID      string
	InputHash    common.Hash
	Payer        common.Address
	Amount       *big.Int
	Deadline     uint64
	Attributions []attribution.Attribution
	Proof        authorize.Proof
}

// Result describes a processed payment.
type Result struct {
	PaymentID common.Hash
	Route     Route
	Shares    []attribution.Share
}

// Processor runs the payment state machine. All mutating collaborators are
// touched only while mu is held, so each payment is applied all-or-nothing.
type Processor struct {
	cfg        *config.Config
	registry   *registry.Registry
	ledger     *ledger.Ledger
	engine     *attribution.Engine
	authorizer *authorize.Authorizer
	custody    custody.Custody
	bus        *event.Bus

	mu        sync.Mutex
	processed map[common.Hash]struct{}
	feeBps    uint32

	// now is replaceable in tests.
	now func() time.Time
}

// NewProcessor wires a Processor from its collaborators.
func NewProcessor(
	cfg *config.Config,
	reg *registry.Registry,
	led *ledger.Ledger,
	eng *attribution.Engine,
	auth *authorize.Authorizer,
	cust custody.Custody,
	bus *event.Bus,
) *Processor {
	return &Processor{
		cfg:        cfg,
		registry:   reg,
		ledger:     led,
		engine:     eng,
		authorizer: auth,
		custody:    cust,
		bus:        bus,
		processed:  make(map[common.Hash]struct{}),
		feeBps:     cfg.PlatformFeeBps,
		now:        time.Now,
	}
}

// SetPlatformFee updates the fee applied to subsequent payments. The write
// takes the payment mutex, so an in-flight payment observes either the old
// fee or the new one in full.
func (p *Processor) SetPlatformFee(bps uint32) error {
	if bps > config.MaxPlatformFeeBps {
		return ErrFeeTooHigh
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeBps = bps
	return nil
}

// PlatformFee returns the fee currently applied to payments.
func (p *Processor) PlatformFee() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feeBps
}

// PaymentID derives the deterministic identity of a payment request:
// keccak(PrefixPaymentIdentity || modelID || inputHash || payer || deadline
// [|| attributionHash]). The attribution hash covers every (recipient, bps)
// pair in order, so the same call with a different split is a distinct payment.
func PaymentID(modelID string, inputHash common.Hash, payer common.Address, deadline uint64, attributions []attribution.Attribution) common.Hash {
	parts := [][]byte{
		[]byte(sign.PrefixPaymentIdentity),
		[]byte(modelID),
		inputHash.Bytes(),
		payer.Bytes(),
		sign.Uint64ToBytes(deadline),
	}
	if len(attributions) > 0 {
		attrParts := make([][]byte, 0, len(attributions)*2)
		for _, a := range attributions {
			attrParts = append(attrParts, a.Recipient.Bytes(), sign.Uint64ToBytes(uint64(a.BasisPoints)))
		}
		parts = append(parts, crypto.Keccak256(bytes.Join(attrParts, nil)))
	}
	return crypto.Keccak256Hash(bytes.Join(parts, nil))
}

// Pay processes one payment request and returns its identity, route and
// distribution. Validation failures reject the request with no state mutated;
// a success applies the dedup record, balance movements and usage counters as
// one unit.
func (p *Processor) Pay(ctx context.Context, req Request) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Received → Validated.
	model, err := p.registry.Get(req.ModelID)
	if err != nil {
		return nil, err
	}
	if !model.Active {
		return nil, registry.ErrModelInactive
	}
	if req.Amount == nil || req.Amount.Cmp(model.Price) < 0 {
		return nil, ErrInsufficientPayment
	}
	if uint64(p.now().Unix()) > req.Deadline {
		return nil, ErrPaymentExpired
	}
	if len(req.Attributions) > 0 {
		if err := attribution.Validate(req.Attributions); err != nil {
			return nil, err
		}
	}

	// Deduplicate. The identity is recorded before any externally-fallible
	// work so a reentrant or concurrent duplicate is rejected mid-processing;
	// a routing failure rolls the record back, which together with mu makes
	// the whole sequence one atomic unit.
	paymentID := PaymentID(req.ModelID, req.InputHash, req.Payer, req.Deadline, req.Attributions)
	if _, dup := p.processed[paymentID]; dup {
		return nil, ErrDuplicatePayment
	}
	p.processed[paymentID] = struct{}{}

	// Validated → Routed.
	route, err := p.route(ctx, req, model)
	if err != nil {
		delete(p.processed, paymentID)
		return nil, err
	}

	// Routed → Distributed.
	shares := p.engine.Distribute(req.Amount, p.feeBps, p.cfg.Treasury, model.Owner, req.Attributions, model.Token)
	if len(req.Attributions) > 0 {
		recipients := make([]event.Recipient, 0, len(req.Attributions))
		for _, a := range req.Attributions {
			recipients = append(recipients, event.Recipient{Recipient: a.Recipient, BasisPoints: a.BasisPoints})
		}
		p.bus.Publish(event.AttributedPayment{
			ModelID:      req.ModelID,
			Payer:        req.Payer,
			Amount:       new(big.Int).Set(req.Amount),
			Attributions: recipients,
		})
	}

	// Distributed → Recorded.
	p.registry.RecordUsage(req.ModelID, req.Amount)

	timestamp := p.now().Unix()
	p.bus.Publish(event.PaymentProcessed{
		ModelID:   req.ModelID,
		Payer:     req.Payer,
		Amount:    new(big.Int).Set(req.Amount),
		InputHash: req.InputHash,
		Timestamp: timestamp,
	})

	zap.L().Info("Payment processed",
		zap.String("modelID", req.ModelID),
		zap.String("payer", req.Payer.Hex()),
		zap.String("amount", req.Amount.String()),
		zap.String("route", route.String()),
	)

	return &Result{PaymentID: paymentID, Route: route, Shares: shares}, nil
}

// route covers the payment from the prepaid balance when it suffices, else
// verifies the authorization proof and pulls the amount into custody.
// The balance is re-checked inside the debit; the earlier snapshot only
// selects the path.
func (p *Processor) route(ctx context.Context, req Request, model registry.Model) (Route, error) {
	if p.ledger.PrepaidBalance(req.Payer, model.Token).Cmp(req.Amount) >= 0 {
		if err := p.ledger.DebitPrepaid(req.Payer, model.Token, req.Amount); err != nil {
			return 0, err
		}
		p.bus.Publish(event.BalanceUsed{
			Account: req.Payer,
			Token:   model.Token,
			Amount:  new(big.Int).Set(req.Amount),
			ModelID: req.ModelID,
		})
		return RoutePrepaid, nil
	}

	intent := authorize.Intent{
		ModelID:   req.ModelID,
		InputHash: req.InputHash,
		Payer:     req.Payer,
		Amount:    req.Amount,
		Deadline:  req.Deadline,
		Token:     model.Token,
	}
	if err := p.authorizer.Authorize(ctx, req.Proof, intent); err != nil {
		return 0, err
	}
	if err := p.custody.TransferIn(ctx, model.Token, req.Payer, req.Amount); err != nil {
		return 0, fmt.Errorf("transfer in: %w", err)
	}
	return RouteSignature, nil
}
