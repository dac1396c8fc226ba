// Package registry implements the pair factory: it deploys pairs, keeps the
// allow-list of permitted pricing curves and owns the protocol fee parameters
// every pair reads at trade time.
package registry

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/metaswap/metaswap-go/assets"
	"github.com/metaswap/metaswap-go/curves"
	"github.com/metaswap/metaswap-go/pairs"
)

var (
	// ErrNotOwner is returned when an owner-gated call comes from another address.
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrFeeAboveCeiling is returned when a new protocol fee exceeds the fixed ceiling.
	ErrFeeAboveCeiling = errors.New("new fee exceeds limit")
	// ErrNoOpChange is returned when a setter would not change anything.
	ErrNoOpChange = errors.New("new value equals current")
	// ErrInvalidAssets is returned when the supplied assets are illegal for
	// the requested pool role.
	ErrInvalidAssets = errors.New("supplied assets do not match pool role")

	// FeeCeiling is the fixed upper bound for the protocol fee, 10%.
	FeeCeiling = mustWad("100000000000000000")
	// DefaultProtocolFee is the fee a fresh factory starts with, 1%.
	DefaultProtocolFee = mustWad("10000000000000000")
)

func mustWad(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid wad literal")
	}
	return n
}

// FactoryConfig carries the factory's collaborators. Curves is optional and
// defaults to the three standard pricing curves.
type FactoryConfig struct {
	Address common.Address
	Owner   common.Address
	Ledger  assets.CurrencyLedger
	Logger  pairs.Logger   // optional
	Metrics *Metrics       // optional
	Pairs   *pairs.Metrics // optional, shared by every created pair
	Curves  []curves.Curve // optional
}

// Factory creates pairs and holds the global fee parameters. It is safe for
// concurrent use; pairs read the fee snapshot fresh on every trade.
type Factory struct {
	mu sync.RWMutex

	address     common.Address
	owner       common.Address
	ledger      assets.CurrencyLedger
	logger      pairs.Logger
	metrics     *Metrics
	pairMetrics *pairs.Metrics

	protocolFee  *big.Int
	feeRecipient common.Address

	allowedCurves map[string]curves.Curve
	pairsByAddr   map[common.Address]*pairs.Pair
	pairAddrs     []common.Address
	pairNonce     uint64
}

// NewFactory creates a factory with the allow-list pre-approved and the
// protocol fee recipient defaulting to the factory itself.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("factory config: currency ledger is required")
	}
	if cfg.Owner == (common.Address{}) {
		return nil, errors.New("factory config: owner is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	approved := cfg.Curves
	if len(approved) == 0 {
		approved = []curves.Curve{
			curves.NewLinear(),
			curves.NewExponential(),
			curves.NewConstantProduct(),
		}
	}
	allowList := make(map[string]curves.Curve, len(approved))
	for _, c := range approved {
		allowList[c.Name()] = c
	}

	return &Factory{
		address:       cfg.Address,
		owner:         cfg.Owner,
		ledger:        cfg.Ledger,
		logger:        logger,
		metrics:       cfg.Metrics,
		pairMetrics:   cfg.Pairs,
		protocolFee:   new(big.Int).Set(DefaultProtocolFee),
		feeRecipient:  cfg.Address,
		allowedCurves: allowList,
		pairsByAddr:   make(map[common.Address]*pairs.Pair),
	}, nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CreatePairParams describes the pool to deploy. The caller must own the
// supplied assets and have approved the factory as item operator.
type CreatePairParams struct {
	Collection       assets.ItemCollection
	ItemIDs          []uint64
	CurrencyAmount   *big.Int // nil is treated as zero
	SpotPrice        *big.Int
	Delta            *big.Int
	TradeFee         *big.Int
	RewardsRecipient common.Address
	CurveName        string
	Role             pairs.PoolRole
}

// CreatePair deploys and initializes a new pair, then moves the supplied
// assets from the caller into it. The pair is registered only after every
// transfer succeeds; on failure completed transfers are unwound.
func (f *Factory) CreatePair(caller common.Address, params CreatePairParams) (*pairs.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	curve, ok := f.allowedCurves[params.CurveName]
	if !ok {
		return nil, pairs.ErrCurveNotAllowed
	}
	if params.Collection == nil {
		return nil, errors.New("create pair: item collection is required")
	}

	currency := params.CurrencyAmount
	if currency == nil {
		currency = new(big.Int)
	}
	if currency.Sign() < 0 {
		return nil, assets.ErrInvalidAmount
	}

	// An item pool trades only its items for currency; seeding it with
	// trading capital it can never use is a caller mistake.
	if params.Role == pairs.RoleItem && currency.Sign() > 0 {
		return nil, fmt.Errorf("%w: item pools take no currency", ErrInvalidAssets)
	}
	if params.Role == pairs.RoleCurrency && len(params.ItemIDs) > 0 {
		return nil, fmt.Errorf("%w: currency pools take no items", ErrInvalidAssets)
	}

	pairAddr := crypto.CreateAddress(f.address, f.pairNonce)

	pair, err := pairs.NewPair(pairs.PairConfig{
		Address:    pairAddr,
		Factory:    f,
		Collection: params.Collection,
		Ledger:     f.ledger,
		Logger:     f.logger,
		Metrics:    f.pairMetrics,
	})
	if err != nil {
		return nil, err
	}

	if err := pair.Init(pairs.InitParams{
		Role:             params.Role,
		Curve:            curve,
		SpotPrice:        params.SpotPrice,
		Delta:            params.Delta,
		TradeFee:         params.TradeFee,
		RewardsRecipient: params.RewardsRecipient,
		ItemIDs:          params.ItemIDs,
	}); err != nil {
		return nil, err
	}

	// Move the caller's assets into the new pool.
	var moved []uint64
	unwind := func() {
		for _, id := range moved {
			if err := params.Collection.TransferFrom(pairAddr, pairAddr, caller, id); err != nil {
				f.logger.Error("failed to unwind item transfer", "pair", pairAddr, "item", id, "error", err)
			}
		}
	}
	for _, id := range params.ItemIDs {
		if err := params.Collection.TransferFrom(f.address, caller, pairAddr, id); err != nil {
			unwind()
			return nil, err
		}
		moved = append(moved, id)
	}
	if currency.Sign() > 0 {
		if err := f.ledger.Transfer(caller, pairAddr, currency); err != nil {
			unwind()
			return nil, err
		}
	}

	f.pairsByAddr[pairAddr] = pair
	f.pairAddrs = append(f.pairAddrs, pairAddr)
	f.pairNonce++

	f.metrics.pairCreated(params.Role.String(), curve.Name())
	f.logger.Info("new pair created",
		"pair", pairAddr,
		"owner", caller,
		"role", params.Role.String(),
		"curve", curve.Name(),
		"items", len(params.ItemIDs),
		"currency", currency,
	)
	return pair, nil
}

// --- FactoryView ---

// GetFactoryInfo returns a fresh fee snapshot. Pairs call this on every trade.
func (f *Factory) GetFactoryInfo() pairs.FactoryInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return pairs.FactoryInfo{
		FeeCeiling:           new(big.Int).Set(FeeCeiling),
		ProtocolFee:          new(big.Int).Set(f.protocolFee),
		ProtocolFeeRecipient: f.feeRecipient,
	}
}

// IsCurveAllowed reports whether a curve name is on the allow-list. The
// allow-list is immutable after construction, so no locking is needed; this
// also lets CreatePair reach it through pair.Init while holding the write
// lock.
func (f *Factory) IsCurveAllowed(name string) bool {
	_, ok := f.allowedCurves[name]
	return ok
}

// --- Owner-gated parameters ---

// SetProtocolFee replaces the protocol fee fraction. The new fee must be
// within the ceiling and differ from the current value.
func (f *Factory) SetProtocolFee(caller common.Address, newFee *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.owner {
		return ErrNotOwner
	}
	if newFee == nil || newFee.Sign() < 0 {
		return assets.ErrInvalidAmount
	}
	if newFee.Cmp(FeeCeiling) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrFeeAboveCeiling, newFee, FeeCeiling)
	}
	if newFee.Cmp(f.protocolFee) == 0 {
		return fmt.Errorf("%w: protocol fee is already %s", ErrNoOpChange, newFee)
	}

	f.logger.Info("protocol fee updated", "old", f.protocolFee, "new", newFee)
	f.protocolFee = new(big.Int).Set(newFee)
	return nil
}

// SetProtocolFeeRecipient replaces the protocol fee recipient.
func (f *Factory) SetProtocolFeeRecipient(caller, newRecipient common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.owner {
		return ErrNotOwner
	}
	if newRecipient == f.feeRecipient {
		return fmt.Errorf("%w: recipient is already %s", ErrNoOpChange, newRecipient)
	}

	f.logger.Info("protocol fee recipient updated", "old", f.feeRecipient, "new", newRecipient)
	f.feeRecipient = newRecipient
	return nil
}

// --- Asset recovery ---

// WithdrawCurrency sends currency custodied by the factory itself (fee
// revenue, or funds sent here by mistake) to the owner.
func (f *Factory) WithdrawCurrency(caller common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.owner {
		return ErrNotOwner
	}
	if amount == nil || amount.Sign() <= 0 {
		return assets.ErrInvalidAmount
	}
	if f.ledger.BalanceOf(f.address).Cmp(amount) < 0 {
		return assets.ErrInsufficientBalance
	}
	return f.ledger.Transfer(f.address, f.owner, amount)
}

// WithdrawItems sends items custodied by the factory itself to the owner.
// Fails without moving anything if any id is not held by the factory.
func (f *Factory) WithdrawItems(caller common.Address, collection assets.ItemCollection, ids []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.owner {
		return ErrNotOwner
	}
	for _, id := range ids {
		owner, err := collection.OwnerOf(id)
		if err != nil {
			return err
		}
		if owner != f.address {
			return fmt.Errorf("%w: item %d", assets.ErrNotItemOwner, id)
		}
	}
	for _, id := range ids {
		if err := collection.TransferFrom(f.address, f.address, f.owner, id); err != nil {
			return err
		}
	}
	return nil
}

// --- Lookups ---

// Address returns the factory's identity.
func (f *Factory) Address() common.Address { return f.address }

// Owner returns the factory owner.
func (f *Factory) Owner() common.Address { return f.owner }

// Pair returns the pair registered at addr.
func (f *Factory) Pair(addr common.Address) (*pairs.Pair, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.pairsByAddr[addr]
	return p, ok
}

// Pairs returns every registered pair, in creation order.
func (f *Factory) Pairs() []*pairs.Pair {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*pairs.Pair, 0, len(f.pairAddrs))
	for _, addr := range f.pairAddrs {
		out = append(out, f.pairsByAddr[addr])
	}
	return out
}
