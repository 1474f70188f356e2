// Package event defines the typed notifications the ledger emits for external
// consumers (gateways, indexers) and a small in-process bus to deliver them.
package event

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Event is implemented by every notification type in this package.
type Event interface {
	// Name returns the event's stable name for logging and routing.
	Name() string
}

// ModelRegistered is emitted when a new model is stored in the registry.
type ModelRegistered struct {
	ModelID string
	Owner   common.Address
	Price   *big.Int
}

// PaymentProcessed is emitted once per successfully processed payment.
type PaymentProcessed struct {
	ModelID   string
	Payer     common.Address
	Amount    *big.Int
	InputHash common.Hash
	Timestamp int64
}

// BalanceDeposited is emitted when a prepaid deposit is credited.
type BalanceDeposited struct {
	Account common.Address
	Token   common.Address
	Amount  *big.Int
}

// BalanceUsed is emitted when a payment is covered by a prepaid balance.
type BalanceUsed struct {
	Account common.Address
	Token   common.Address
	Amount  *big.Int
	ModelID string
}

// AttributedPayment is emitted when a payment carries an attribution list.
type AttributedPayment struct {
	ModelID      string
	Payer        common.Address
	Amount       *big.Int
	Attributions []Recipient
}

// Recipient is one (recipient, basis points) pair of an AttributedPayment.
type Recipient struct {
	Recipient   common.Address
	BasisPoints uint16
}

// PaymentWithdrawn is emitted when earnings or prepaid funds leave the ledger.
type PaymentWithdrawn struct {
	Account common.Address
	Token   common.Address
	Amount  *big.Int
}

// APIExecutionReceipt is emitted when a relayer's execution attestation is stored.
type APIExecutionReceipt struct {
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

func (ModelRegistered) Name() string     { return "ModelRegistered" }
func (PaymentProcessed) Name() string    { return "PaymentProcessed" }
func (BalanceDeposited) Name() string    { return "BalanceDeposited" }
func (BalanceUsed) Name() string         { return "BalanceUsed" }
func (AttributedPayment) Name() string   { return "AttributedPayment" }
func (PaymentWithdrawn) Name() string    { return "PaymentWithdrawn" }
func (APIExecutionReceipt) Name() string { return "APIExecutionReceipt" }

// subscriberBuffer is the per-subscriber channel capacity. Publish never
// blocks; events beyond the buffer are dropped for that subscriber.
const subscriberBuffer = 64

// Bus fans events out to subscribers. The zero value is not usable; construct
// with NewBus.
type Bus struct {
	mu          sync.Mutex
	subscribers []chan Event
	closed      bool
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its receive channel. The
// channel is closed when the bus is closed.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish delivers ev to every subscriber without blocking and logs it.
// Subscribers that have fallen subscriberBuffer events behind miss the event.
func (b *Bus) Publish(ev Event) {
	zap.L().Info("Event emitted", zap.String("event", ev.Name()), zap.Any("payload", ev))

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			zap.L().Debug("Dropping event for slow subscriber", zap.String("event", ev.Name()))
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
