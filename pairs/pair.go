// Package pairs implements the pool state machine of the exchange: a Pair
// custodies a reserve of base currency and/or a set of collectible items,
// prices trades through exactly one allow-listed curve, and executes swaps
// atomically with fee extraction and slippage enforcement.
package pairs

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/metaswap/metaswap-go/assets"
	"github.com/metaswap/metaswap-go/curves"
	"github.com/metaswap/metaswap-go/curves/wadmath"
)

var (
	// ErrAlreadyInitialized is returned when Init is called on a live pair.
	ErrAlreadyInitialized = errors.New("it is already initialized")
	// ErrNotInitialized is returned when a swap is attempted before Init.
	ErrNotInitialized = errors.New("pair is not initialized")
	// ErrInvalidRole is returned when an operation is forbidden by the pool role,
	// or when Init receives an unknown role.
	ErrInvalidRole = errors.New("invalid pool type")
	// ErrCurveNotAllowed is returned when Init names a curve outside the
	// factory allow-list.
	ErrCurveNotAllowed = errors.New("invalid curve")
	// ErrInvalidRecipient is returned when the rewards recipient is illegal
	// for the pool role: trade pools must retain their fee (zero sentinel),
	// every other role needs a real recipient.
	ErrInvalidRecipient = errors.New("invalid rewards recipient for pool role")
	// ErrInvalidTradeFee is returned when the trade fee is nonzero outside the
	// trade role or at/above the trade fee ceiling.
	ErrInvalidTradeFee = errors.New("invalid trade fee for pool role")
	// ErrSlippage is returned when the computed amount violates the caller's
	// slippage bound.
	ErrSlippage = errors.New("computed amount violates slippage bound")
	// ErrInsufficientFunds is returned when the caller's attached payment does
	// not cover the computed input amount.
	ErrInsufficientFunds = errors.New("insufficient payment supplied")
	// ErrInsufficientLiquidity is returned when the pool's currency reserve
	// cannot cover a payout.
	ErrInsufficientLiquidity = errors.New("insufficient currency reserve for payout")
)

// MaxTradeFee is the exclusive upper bound for a trade pool's fee fraction.
var MaxTradeFee = func() *big.Int {
	f, _ := new(big.Int).SetString("900000000000000000", 10) // 0.9
	return f
}()

// FactoryInfo is the registry-level fee snapshot a pair reads at swap time.
type FactoryInfo struct {
	FeeCeiling           *big.Int
	ProtocolFee          *big.Int
	ProtocolFeeRecipient common.Address
}

// FactoryView is the read surface a pair needs from its factory. Pairs never
// cache the snapshot: they call GetFactoryInfo on every trade so fee changes
// apply immediately.
type FactoryView interface {
	GetFactoryInfo() FactoryInfo
	IsCurveAllowed(name string) bool
}

// PairConfig carries the collaborators a pair is allocated with. Allocation
// is phase one of construction; Init is phase two.
type PairConfig struct {
	Address    common.Address
	Factory    FactoryView
	Collection assets.ItemCollection
	Ledger     assets.CurrencyLedger
	Logger     Logger   // optional
	Metrics    *Metrics // optional
}

// InitParams is the one-shot configuration committed by Init.
type InitParams struct {
	Role             PoolRole
	Curve            curves.Curve
	SpotPrice        *big.Int
	Delta            *big.Int
	TradeFee         *big.Int // nil is treated as zero
	RewardsRecipient common.Address
	// ItemIDs are the items already transferred into the pair's custody by
	// its creator; Init only indexes them.
	ItemIDs []uint64
}

// Pair is a single liquidity pool. All operations are serialized by an
// internal mutex; external asset movements happen only after every internal
// state change is committed.
type Pair struct {
	mu sync.Mutex

	address    common.Address
	factory    FactoryView
	collection assets.ItemCollection
	ledger     assets.CurrencyLedger
	logger     Logger
	metrics    *Metrics

	initialized bool

	role             PoolRole
	curve            curves.Curve
	spotPrice        *big.Int
	delta            *big.Int
	tradeFee         *big.Int
	rewardsRecipient common.Address
	inventory        *inventory
}

// NewPair allocates an uninitialized pair. Every swap operation fails with
// ErrNotInitialized until Init succeeds.
func NewPair(cfg PairConfig) (*Pair, error) {
	if cfg.Factory == nil {
		return nil, errors.New("pair config: factory is required")
	}
	if cfg.Collection == nil {
		return nil, errors.New("pair config: item collection is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("pair config: currency ledger is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pair{
		address:    cfg.Address,
		factory:    cfg.Factory,
		collection: cfg.Collection,
		ledger:     cfg.Ledger,
		logger:     logger,
		metrics:    cfg.Metrics,
		inventory:  newInventory(),
	}, nil
}

// Init latches the pair into its live configuration. It validates the curve
// against the factory allow-list, the price state against the curve, and the
// role/fee/recipient combination, then commits every field at once. A second
// call fails unconditionally.
func (p *Pair) Init(params InitParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return ErrAlreadyInitialized
	}
	if !params.Role.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidRole, params.Role)
	}
	if params.Curve == nil || !p.factory.IsCurveAllowed(params.Curve.Name()) {
		return ErrCurveNotAllowed
	}
	if !params.Curve.ValidateSpotPrice(params.SpotPrice) {
		return curves.ErrInvalidSpotPrice
	}
	if !params.Curve.ValidateDelta(params.Delta) {
		return curves.ErrInvalidDelta
	}

	tradeFee := params.TradeFee
	if tradeFee == nil {
		tradeFee = new(big.Int)
	}
	if tradeFee.Sign() < 0 {
		return ErrInvalidTradeFee
	}

	if params.Role == RoleTrade {
		// A trade pool has no external owner of its fee stream: the fee
		// compounds the pool's own liquidity, so the recipient must be the
		// retain sentinel.
		if params.RewardsRecipient != (common.Address{}) {
			return ErrInvalidRecipient
		}
		if tradeFee.Cmp(MaxTradeFee) >= 0 {
			return fmt.Errorf("%w: fee %s is at or above the ceiling", ErrInvalidTradeFee, tradeFee)
		}
	} else {
		if params.RewardsRecipient == (common.Address{}) {
			return ErrInvalidRecipient
		}
		if tradeFee.Sign() != 0 {
			return fmt.Errorf("%w: only trade pools charge a trade fee", ErrInvalidTradeFee)
		}
	}

	if params.Role == RoleCurrency && len(params.ItemIDs) > 0 {
		return fmt.Errorf("%w: currency pools hold no items", ErrInvalidRole)
	}

	inv := newInventory()
	for _, id := range params.ItemIDs {
		if err := inv.add(id); err != nil {
			return err
		}
	}

	p.role = params.Role
	p.curve = params.Curve
	p.spotPrice = new(big.Int).Set(params.SpotPrice)
	p.delta = new(big.Int).Set(params.Delta)
	p.tradeFee = new(big.Int).Set(tradeFee)
	p.rewardsRecipient = params.RewardsRecipient
	p.inventory = inv
	p.initialized = true

	p.logger.Info("pair initialized",
		"pair", p.address,
		"role", p.role.String(),
		"curve", p.curve.Name(),
		"spotPrice", p.spotPrice,
		"delta", p.delta,
		"items", len(params.ItemIDs),
	)
	return nil
}

// --- Swap operations ---

// SellItems sells the caller's items into the pool for currency. The caller
// must own every id and have approved the pair as operator; the payout goes
// to recipient and must reach minOutput.
func (p *Pair) SellItems(caller common.Address, itemIDs []uint64, minOutput *big.Int, recipient common.Address) (*big.Int, error) {
	start := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	output, err := p.sellItems(caller, itemIDs, minOutput, recipient)

	p.metrics.observeSwap("sell", resultLabel(err), start)
	return output, err
}

func (p *Pair) sellItems(caller common.Address, itemIDs []uint64, minOutput *big.Int, recipient common.Address) (*big.Int, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	// An item-only pool has no currency to pay out.
	if p.role == RoleItem {
		return nil, fmt.Errorf("%w: %s pools do not buy items", ErrInvalidRole, p.role)
	}
	if minOutput == nil || minOutput.Sign() < 0 {
		return nil, wadmath.ErrNegativeInput
	}
	if err := checkUnique(itemIDs); err != nil {
		return nil, err
	}

	feeInfo := p.factory.GetFactoryInfo()
	info, err := p.curve.GetSellInfo(p.spotPrice, p.delta, uint64(len(itemIDs)), p.tradeFee, feeInfo.ProtocolFee)
	if err != nil {
		return nil, err
	}

	if info.OutputAmount.Cmp(minOutput) < 0 {
		return nil, fmt.Errorf("%w: output %s below minimum %s", ErrSlippage, info.OutputAmount, minOutput)
	}

	// The caller must own every item; the transfers later cannot be allowed
	// to half-succeed.
	for _, id := range itemIDs {
		owner, err := p.collection.OwnerOf(id)
		if err != nil {
			return nil, err
		}
		if owner != caller {
			return nil, fmt.Errorf("%w: item %d", assets.ErrNotItemOwner, id)
		}
	}

	outbound := new(big.Int).Add(info.OutputAmount, info.ProtocolFeeAmount)
	routedTradeFee := p.routedTradeFee(info.TradeFeeAmount)
	outbound.Add(outbound, routedTradeFee)
	if p.ledger.BalanceOf(p.address).Cmp(outbound) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	// Effects: commit the new price state and inventory before any transfer.
	restore := p.snapshot()
	p.spotPrice = info.NewSpotPrice
	p.delta = info.NewDelta
	for _, id := range itemIDs {
		if err := p.inventory.add(id); err != nil {
			restore()
			return nil, err
		}
	}

	// Interactions.
	var undo undoStack
	fail := func(cause error) (*big.Int, error) {
		undo.run()
		restore()
		return nil, cause
	}

	for _, id := range itemIDs {
		if err := p.collection.TransferFrom(p.address, caller, p.address, id); err != nil {
			return fail(err)
		}
		undo.push(p.undoItemTransfer(p.address, caller, id))
	}
	if err := p.ledger.Transfer(p.address, recipient, info.OutputAmount); err != nil {
		return fail(err)
	}
	undo.push(p.undoCurrencyTransfer(recipient, p.address, info.OutputAmount))
	if err := p.payFees(&undo, feeInfo, info.ProtocolFeeAmount, routedTradeFee); err != nil {
		return fail(err)
	}

	p.metrics.addFee("protocol", info.ProtocolFeeAmount)
	p.metrics.addFee("trade", info.TradeFeeAmount)
	p.logger.Info("items sold into pool",
		"pair", p.address,
		"caller", caller,
		"items", len(itemIDs),
		"amountOut", info.OutputAmount,
		"newSpotPrice", p.spotPrice,
	)
	return info.OutputAmount, nil
}

// BuySpecificItems buys the named items out of the pool. The caller attaches
// payment; the pair pulls exactly the computed input and the excess never
// leaves the caller.
func (p *Pair) BuySpecificItems(caller common.Address, itemIDs []uint64, maxInput, payment *big.Int, recipient common.Address) (*big.Int, error) {
	start := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	input, err := p.buyItems(caller, itemIDs, maxInput, payment, recipient, false)

	p.metrics.observeSwap("buy_specific", resultLabel(err), start)
	return input, err
}

// BuyAnyItems buys count items chosen by the pool: the first count ids of the
// current inventory enumeration, which is deterministic for a given pool
// history.
func (p *Pair) BuyAnyItems(caller common.Address, count uint64, maxInput, payment *big.Int, recipient common.Address) (*big.Int, error) {
	start := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	input, err := p.buyAnyItems(caller, count, maxInput, payment, recipient)

	p.metrics.observeSwap("buy_any", resultLabel(err), start)
	return input, err
}

func (p *Pair) buyAnyItems(caller common.Address, count uint64, maxInput, payment *big.Int, recipient common.Address) (*big.Int, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	if count == 0 {
		return nil, curves.ErrZeroItemCount
	}
	// Inventory exhaustion is a reserve bound, the same failure the
	// constant-product curve reports from its virtual item reserve.
	if count > p.inventory.len() {
		return nil, curves.ErrReserveExhausted
	}
	return p.buyItems(caller, p.inventory.first(count), maxInput, payment, recipient, true)
}

func (p *Pair) buyItems(caller common.Address, itemIDs []uint64, maxInput, payment *big.Int, recipient common.Address, preselected bool) (*big.Int, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	// A currency-only pool has no items to sell.
	if p.role == RoleCurrency {
		return nil, fmt.Errorf("%w: %s pools do not sell items", ErrInvalidRole, p.role)
	}
	if maxInput == nil || payment == nil || maxInput.Sign() < 0 || payment.Sign() < 0 {
		return nil, wadmath.ErrNegativeInput
	}
	if !preselected {
		if err := checkUnique(itemIDs); err != nil {
			return nil, err
		}
		for _, id := range itemIDs {
			if !p.inventory.has(id) {
				return nil, fmt.Errorf("%w: %d", ErrItemNotInPool, id)
			}
		}
	}

	feeInfo := p.factory.GetFactoryInfo()
	info, err := p.curve.GetBuyInfo(p.spotPrice, p.delta, uint64(len(itemIDs)), p.tradeFee, feeInfo.ProtocolFee)
	if err != nil {
		return nil, err
	}

	if info.InputAmount.Cmp(maxInput) > 0 {
		return nil, fmt.Errorf("%w: input %s above maximum %s", ErrSlippage, info.InputAmount, maxInput)
	}
	if payment.Cmp(info.InputAmount) < 0 {
		return nil, fmt.Errorf("%w: payment %s below required input %s", ErrInsufficientFunds, payment, info.InputAmount)
	}
	if p.ledger.BalanceOf(caller).Cmp(info.InputAmount) < 0 {
		return nil, fmt.Errorf("%w: caller balance below required input %s", ErrInsufficientFunds, info.InputAmount)
	}

	routedTradeFee := p.routedTradeFee(info.TradeFeeAmount)

	// Effects.
	restore := p.snapshot()
	p.spotPrice = info.NewSpotPrice
	p.delta = info.NewDelta
	for _, id := range itemIDs {
		if err := p.inventory.remove(id); err != nil {
			restore()
			return nil, err
		}
	}

	// Interactions.
	var undo undoStack
	fail := func(cause error) (*big.Int, error) {
		undo.run()
		restore()
		return nil, cause
	}

	if err := p.ledger.Transfer(caller, p.address, info.InputAmount); err != nil {
		return fail(err)
	}
	undo.push(p.undoCurrencyTransfer(p.address, caller, info.InputAmount))
	if err := p.payFees(&undo, feeInfo, info.ProtocolFeeAmount, routedTradeFee); err != nil {
		return fail(err)
	}
	for _, id := range itemIDs {
		if err := p.collection.TransferFrom(p.address, p.address, recipient, id); err != nil {
			return fail(err)
		}
		undo.push(p.undoItemTransfer(recipient, p.address, id))
	}

	p.metrics.addFee("protocol", info.ProtocolFeeAmount)
	p.metrics.addFee("trade", info.TradeFeeAmount)
	p.logger.Info("items bought from pool",
		"pair", p.address,
		"caller", caller,
		"items", len(itemIDs),
		"amountIn", info.InputAmount,
		"newSpotPrice", p.spotPrice,
	)
	return info.InputAmount, nil
}

// payFees routes the protocol fee to the factory's recipient and, when the
// pool does not retain its own fee, the trade fee to the rewards recipient.
// A retained trade fee simply stays in the pair's reserve.
func (p *Pair) payFees(undo *undoStack, feeInfo FactoryInfo, protocolFeeAmount, routedTradeFee *big.Int) error {
	if protocolFeeAmount.Sign() > 0 {
		if err := p.ledger.Transfer(p.address, feeInfo.ProtocolFeeRecipient, protocolFeeAmount); err != nil {
			return err
		}
		undo.push(p.undoCurrencyTransfer(feeInfo.ProtocolFeeRecipient, p.address, protocolFeeAmount))
	}
	if routedTradeFee.Sign() > 0 {
		if err := p.ledger.Transfer(p.address, p.rewardsRecipient, routedTradeFee); err != nil {
			return err
		}
		undo.push(p.undoCurrencyTransfer(p.rewardsRecipient, p.address, routedTradeFee))
	}
	return nil
}

// routedTradeFee is the portion of the trade fee that leaves the pool. It is
// zero whenever the rewards recipient is the retain sentinel, which Init
// guarantees for trade pools.
func (p *Pair) routedTradeFee(tradeFeeAmount *big.Int) *big.Int {
	if p.rewardsRecipient == (common.Address{}) {
		return new(big.Int)
	}
	return tradeFeeAmount
}

// snapshot captures the mutable price state and inventory and returns a
// restore function.
func (p *Pair) snapshot() func() {
	spot := new(big.Int).Set(p.spotPrice)
	delta := new(big.Int).Set(p.delta)
	ids := p.inventory.all()
	return func() {
		p.spotPrice = spot
		p.delta = delta
		inv := newInventory()
		for _, id := range ids {
			_ = inv.add(id)
		}
		p.inventory = inv
	}
}

// undoStack collects the inverses of completed external transfers so a
// failure mid-sequence can unwind every earlier movement.
type undoStack []func()

func (u *undoStack) push(fn func()) { *u = append(*u, fn) }

func (u undoStack) run() {
	for i := len(u) - 1; i >= 0; i-- {
		u[i]()
	}
}

func (p *Pair) undoItemTransfer(from, to common.Address, id uint64) func() {
	return func() {
		if err := p.collection.TransferFrom(from, from, to, id); err != nil {
			p.logger.Error("failed to unwind item transfer", "pair", p.address, "item", id, "error", err)
		}
	}
}

func (p *Pair) undoCurrencyTransfer(from, to common.Address, amount *big.Int) func() {
	return func() {
		if err := p.ledger.Transfer(from, to, amount); err != nil {
			p.logger.Error("failed to unwind currency transfer", "pair", p.address, "amount", amount, "error", err)
		}
	}
}

func checkUnique(ids []uint64) error {
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %d", errDuplicateItem, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// --- Read accessors ---

// Address returns the pair's identity.
func (p *Pair) Address() common.Address { return p.address }

// Initialized reports whether Init has completed.
func (p *Pair) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// Role returns the pool role.
func (p *Pair) Role() PoolRole {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.role
}

// Curve returns the pricing curve.
func (p *Pair) Curve() curves.Curve {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curve
}

// SpotPrice returns a copy of the current spot price.
func (p *Pair) SpotPrice() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spotPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(p.spotPrice)
}

// Delta returns a copy of the current delta.
func (p *Pair) Delta() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.delta == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(p.delta)
}

// TradeFee returns a copy of the pool's trade fee fraction.
func (p *Pair) TradeFee() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tradeFee == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(p.tradeFee)
}

// Collection returns the item collection the pair trades.
func (p *Pair) Collection() assets.ItemCollection { return p.collection }

// RewardsRecipient returns the pool fee recipient, or the zero address for a
// pool that retains its fee.
func (p *Pair) RewardsRecipient() common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewardsRecipient
}

// ItemIDs enumerates the custodied item ids.
func (p *Pair) ItemIDs() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inventory.all()
}

// CurrencyReserve returns the pair's custodied currency balance.
func (p *Pair) CurrencyReserve() *big.Int {
	return p.ledger.BalanceOf(p.address)
}
