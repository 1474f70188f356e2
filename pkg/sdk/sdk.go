// Package sdk exposes the high-level entry points of the payment and
// attribution ledger. It wires together the model registry, balance ledger,
// attribution engine, signature authorizer, payment processor and receipt
// manager behind one façade, with token custody supplied by the caller.
package sdk

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/modelpay/ledger-go/pkg/attribution"
	"github.com/modelpay/ledger-go/pkg/authorize"
	"github.com/modelpay/ledger-go/pkg/config"
	"github.com/modelpay/ledger-go/pkg/custody"
	"github.com/modelpay/ledger-go/pkg/event"
	"github.com/modelpay/ledger-go/pkg/ledger"
	"github.com/modelpay/ledger-go/pkg/processor"
	"github.com/modelpay/ledger-go/pkg/receipt"
	"github.com/modelpay/ledger-go/pkg/registry"
	"go.uber.org/zap"
)

// init configures a default global zap logger. Applications may replace it
// with zap.ReplaceGlobals(...) if they need custom logging.
func init() {
	c := zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := c.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

// Core is the concrete ledger implementation behind the façade.
type Core struct {
	*config.Config

	registry  *registry.Registry
	ledger    *ledger.Ledger
	custody   custody.Custody
	processor *processor.Processor
	receipts  *receipt.Manager
	bus       *event.Bus
}

// New initializes the ledger with a validated configuration and the token
// custody implementation to settle transfers against.
func New(cfg *config.Config, cust custody.Custody) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Debug {
		logger, err := zap.NewDevelopment()
		if err == nil {
			zap.ReplaceGlobals(logger)
		}
	}

	led := ledger.NewLedger()
	reg := registry.NewRegistry()
	bus := event.NewBus()

	return &Core{
		Config:    cfg,
		registry:  reg,
		ledger:    led,
		custody:   cust,
		processor: processor.NewProcessor(cfg, reg, led, attribution.NewEngine(led), authorize.NewAuthorizer(cust), cust, bus),
		receipts:  receipt.NewManager(bus),
		bus:       bus,
	}, nil
}

// Events returns a subscription to the ledger's notification stream.
func (c *Core) Events() <-chan event.Event {
	return c.bus.Subscribe()
}

// RegisterModel stores a new priced endpoint owned by caller.
func (c *Core) RegisterModel(id, endpoint string, price *big.Int, token, caller common.Address) error {
	if err := c.registry.Register(id, endpoint, price, token, caller); err != nil {
		return err
	}
	c.bus.Publish(event.ModelRegistered{ModelID: id, Owner: caller, Price: new(big.Int).Set(price)})
	return nil
}

// UpdateModel overwrites a model's endpoint, price and active flag. Owner only.
func (c *Core) UpdateModel(id, endpoint string, price *big.Int, active bool, caller common.Address) error {
	return c.registry.Update(id, endpoint, price, active, caller)
}

// GetModel returns a snapshot of the model.
func (c *Core) GetModel(id string) (registry.Model, error) {
	return c.registry.Get(id)
}

// Deposit pulls amount of token from the payer into custody and credits the
// prepaid balance. The transfer and the credit are all-or-nothing: a failed
// transfer leaves the ledger untouched.
func (c *Core) Deposit(ctx context.Context, account, token common.Address, amount *big.Int) error {
	if err := c.custody.TransferIn(ctx, token, account, amount); err != nil {
		return fmt.Errorf("deposit transfer: %w", err)
	}
	if err := c.ledger.Deposit(account, token, amount); err != nil {
		// The credit only fails on a non-positive amount, which TransferIn
		// would have rejected first; return the tokens regardless.
		if rbErr := c.custody.TransferOut(ctx, token, account, amount); rbErr != nil {
			zap.L().Error("Failed to return tokens after rejected deposit", zap.Error(rbErr))
		}
		return err
	}
	c.bus.Publish(event.BalanceDeposited{Account: account, Token: token, Amount: new(big.Int).Set(amount)})
	return nil
}

// WithdrawPrepaid debits the prepaid balance and pays the tokens back out.
// A failed transfer restores the balance.
func (c *Core) WithdrawPrepaid(ctx context.Context, account, token common.Address, amount *big.Int) error {
	if err := c.ledger.WithdrawPrepaid(account, token, amount); err != nil {
		return err
	}
	if err := c.custody.TransferOut(ctx, token, account, amount); err != nil {
		if rbErr := c.ledger.Deposit(account, token, amount); rbErr != nil {
			zap.L().Error("Failed to restore prepaid balance after failed transfer", zap.Error(rbErr))
		}
		return fmt.Errorf("withdraw transfer: %w", err)
	}
	c.bus.Publish(event.PaymentWithdrawn{Account: account, Token: token, Amount: new(big.Int).Set(amount)})
	return nil
}

// WithdrawEarnings zeroes the account's earnings and pays them out, returning
// the withdrawn amount. A failed transfer restores the earnings.
func (c *Core) WithdrawEarnings(ctx context.Context, account, token common.Address) (*big.Int, error) {
	amount := c.ledger.Withdraw(account, token)
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := c.custody.TransferOut(ctx, token, account, amount); err != nil {
		c.ledger.CreditEarnings(account, token, amount)
		return nil, fmt.Errorf("withdraw transfer: %w", err)
	}
	c.bus.Publish(event.PaymentWithdrawn{Account: account, Token: token, Amount: new(big.Int).Set(amount)})
	return amount, nil
}

// Pay processes one payment request.
func (c *Core) Pay(ctx context.Context, req processor.Request) (*processor.Result, error) {
	return c.processor.Pay(ctx, req)
}

// PrepaidBalance returns a snapshot of the account's prepaid balance.
func (c *Core) PrepaidBalance(account, token common.Address) *big.Int {
	return c.ledger.PrepaidBalance(account, token)
}

// EarningsBalance returns a snapshot of the account's earnings balance.
func (c *Core) EarningsBalance(account, token common.Address) *big.Int {
	return c.ledger.EarningsBalance(account, token)
}

// SetPlatformFee updates the platform fee applied to subsequent payments.
// Administrative operation, bounded by config.MaxPlatformFeeBps and safe to
// call while payments are in flight.
func (c *Core) SetPlatformFee(bps uint32) error {
	return c.processor.SetPlatformFee(bps)
}

// PlatformFee returns the fee currently applied to payments.
func (c *Core) PlatformFee() uint32 {
	return c.processor.PlatformFee()
}

// SetAuthorizedGateway flips the receipt allow-list flag for a relayer.
func (c *Core) SetAuthorizedGateway(gateway common.Address, authorized bool) {
	c.receipts.SetGateway(gateway, authorized)
}

// SubmitExecutionReceipt records a relayer's execution attestation.
func (c *Core) SubmitExecutionReceipt(sub receipt.Submission, relayer common.Address) error {
	return c.receipts.Submit(sub, relayer)
}

// VerifyExecution checks recorded input/output data against a stored receipt.
func (c *Core) VerifyExecution(txID common.Hash, inputData, outputData []byte) error {
	return c.receipts.Verify(txID, inputData, outputData)
}

// GetExecutionReceipt returns a snapshot of the receipt for txID.
func (c *Core) GetExecutionReceipt(txID common.Hash) (receipt.Receipt, error) {
	return c.receipts.Get(txID)
}

// Close releases resources associated with the ledger instance.
func (c *Core) Close() {
	c.bus.Close()
}
