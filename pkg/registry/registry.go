// Package registry stores metadata for priced API models: who owns a model,
// what a single invocation costs, which token it is priced in, and cumulative
// usage counters. Models are never deleted, only deactivated.
package registry

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// MaxModelIDLength is the maximum number of characters allowed in a model ID.
const MaxModelIDLength = 64

var (
	// ErrInvalidID reports an empty or over-long model ID.
	ErrInvalidID = errors.New("invalid model id")
	// ErrInvalidEndpoint reports an empty endpoint.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// ErrInvalidPrice reports a nil, zero or negative price.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidToken reports a zero token address.
	ErrInvalidToken = errors.New("invalid token")
	// ErrModelExists reports a registration attempt for an ID already in use.
	ErrModelExists = errors.New("model already exists")
	// ErrModelNotFound reports a lookup for an unknown model ID.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelInactive reports a payment attempt against a deactivated model.
	ErrModelInactive = errors.New("model is inactive")
	// ErrNotOwner reports an update attempt by anyone but the model owner.
	ErrNotOwner = errors.New("caller is not the model owner")
)

// Model describes a registered API endpoint. Owner is immutable once set;
// TotalCalls and TotalRevenue are maintained by the payment processor.
type Model struct {
	Owner        common.Address
	Endpoint     string
	Price        *big.Int
	Token        common.Address
	Active       bool
	TotalCalls   uint64
	TotalRevenue *big.Int
}

// Registry is the owned table of models. All mutation goes through its
// methods so the Model invariants are enforced in one place.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry returns an empty model registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register stores a new model owned by caller with active=true and zeroed
// counters. The ID must be 1-64 characters and unique.
func (r *Registry) Register(id, endpoint string, price *big.Int, token, caller common.Address) error {
	if id == "" || len(id) > MaxModelIDLength {
		return ErrInvalidID
	}
	if endpoint == "" {
		return ErrInvalidEndpoint
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if token == (common.Address{}) {
		return ErrInvalidToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[id]; ok {
		return ErrModelExists
	}

	r.models[id] = &Model{
		Owner:        caller,
		Endpoint:     endpoint,
		Price:        new(big.Int).Set(price),
		Token:        token,
		Active:       true,
		TotalRevenue: new(big.Int),
	}

	zap.L().Info("Model registered",
		zap.String("modelID", id),
		zap.String("owner", caller.Hex()),
		zap.String("price", price.String()),
	)
	return nil
}

// Update overwrites the endpoint, price and active flag of an existing model.
// Only the owner may update; counters are untouched.
func (r *Registry) Update(id, endpoint string, price *big.Int, active bool, caller common.Address) error {
	if endpoint == "" {
		return ErrInvalidEndpoint
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.models[id]
	if !ok {
		return ErrModelNotFound
	}
	if m.Owner != caller {
		return ErrNotOwner
	}

	m.Endpoint = endpoint
	m.Price = new(big.Int).Set(price)
	m.Active = active
	return nil
}

// Get returns a snapshot copy of the model.
func (r *Registry) Get(id string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[id]
	if !ok {
		return Model{}, ErrModelNotFound
	}
	return snapshot(m), nil
}

// RecordUsage increments TotalCalls by one and TotalRevenue by amount.
// Called once per successful payment.
func (r *Registry) RecordUsage(id string, amount *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.models[id]
	if !ok {
		return
	}
	m.TotalCalls++
	m.TotalRevenue = new(big.Int).Add(m.TotalRevenue, amount)
}

func snapshot(m *Model) Model {
	out := *m
	out.Price = new(big.Int).Set(m.Price)
	out.TotalRevenue = new(big.Int).Set(m.TotalRevenue)
	return out
}
