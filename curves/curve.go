// Package curves implements the pricing algorithms that drive pair pools.
// Each curve is pure and stateless: given the pool's current price state and
// a trade size it computes the counterparty amount, the next price state and
// the fee amounts, or reports that the trade is infeasible.
package curves

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/metaswap/metaswap-go/curves/wadmath"
)

var (
	// ErrCurve is the base error for every infeasible-trade condition. All
	// curve failures wrap it, so callers can classify with errors.Is.
	ErrCurve = errors.New("curve error")

	// ErrZeroItemCount is returned when a trade of zero items is requested.
	ErrZeroItemCount = fmt.Errorf("%w: item count must be greater than zero", ErrCurve)
	// ErrInvalidSpotPrice is returned when a spot price fails the curve's validity predicate.
	ErrInvalidSpotPrice = fmt.Errorf("%w: invalid spot price", ErrCurve)
	// ErrInvalidDelta is returned when a delta fails the curve's validity predicate.
	ErrInvalidDelta = fmt.Errorf("%w: invalid delta", ErrCurve)
	// ErrPriceUnderflow is returned when a sell would drive the price below zero.
	ErrPriceUnderflow = fmt.Errorf("%w: sell would drive price below zero", ErrCurve)
	// ErrReserveExhausted is returned when a buy requests more items than the
	// curve's item reserve supports.
	ErrReserveExhausted = fmt.Errorf("%w: buy exceeds available item reserve", ErrCurve)
)

// BuyInfo is the effect of a caller buying items from a pool.
// InputAmount already includes both fee amounts on top of the gross cost.
type BuyInfo struct {
	InputAmount       *big.Int
	NewSpotPrice      *big.Int
	NewDelta          *big.Int
	TradeFeeAmount    *big.Int
	ProtocolFeeAmount *big.Int
}

// SellInfo is the effect of a caller selling items into a pool.
// OutputAmount is net of both fee amounts.
type SellInfo struct {
	OutputAmount      *big.Int
	NewSpotPrice      *big.Int
	NewDelta          *big.Int
	TradeFeeAmount    *big.Int
	ProtocolFeeAmount *big.Int
}

// Curve is the uniform contract implemented by every pricing algorithm.
// Implementations are stateless and safe for concurrent use.
type Curve interface {
	// Name identifies the curve in the factory allow-list.
	Name() string

	// ValidateDelta reports whether delta is an admissible parameter.
	ValidateDelta(delta *big.Int) bool

	// ValidateSpotPrice reports whether spotPrice is an admissible starting price.
	ValidateSpotPrice(spotPrice *big.Int) bool

	// GetBuyInfo computes the effect of buying itemCount items from the pool.
	// tradeFee and protocolFee are wad fractions of the gross currency amount.
	GetBuyInfo(spotPrice, delta *big.Int, itemCount uint64, tradeFee, protocolFee *big.Int) (*BuyInfo, error)

	// GetSellInfo computes the effect of selling itemCount items into the pool.
	GetSellInfo(spotPrice, delta *big.Int, itemCount uint64, tradeFee, protocolFee *big.Int) (*SellInfo, error)
}

// feeAmounts splits the fee legs off a gross currency amount. Both fees are
// floored, which keeps the exact-accounting property
// protocolFeeAmount == floor(gross * protocolFee).
func feeAmounts(gross, tradeFee, protocolFee *big.Int) (tradeFeeAmount, protocolFeeAmount *big.Int, err error) {
	tradeFeeAmount, err = wadmath.Mul(gross, tradeFee)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCurve, err)
	}
	protocolFeeAmount, err = wadmath.Mul(gross, protocolFee)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCurve, err)
	}
	return tradeFeeAmount, protocolFeeAmount, nil
}

// buyInfoFromGross assembles a BuyInfo: the caller supplies the gross cost
// plus both fee amounts.
func buyInfoFromGross(gross, newSpot, newDelta, tradeFee, protocolFee *big.Int) (*BuyInfo, error) {
	tradeFeeAmount, protocolFeeAmount, err := feeAmounts(gross, tradeFee, protocolFee)
	if err != nil {
		return nil, err
	}
	input := new(big.Int).Add(gross, tradeFeeAmount)
	input.Add(input, protocolFeeAmount)
	return &BuyInfo{
		InputAmount:       input,
		NewSpotPrice:      newSpot,
		NewDelta:          newDelta,
		TradeFeeAmount:    tradeFeeAmount,
		ProtocolFeeAmount: protocolFeeAmount,
	}, nil
}

// sellInfoFromGross assembles a SellInfo: the caller receives the gross
// payout minus both fee amounts.
func sellInfoFromGross(gross, newSpot, newDelta, tradeFee, protocolFee *big.Int) (*SellInfo, error) {
	tradeFeeAmount, protocolFeeAmount, err := feeAmounts(gross, tradeFee, protocolFee)
	if err != nil {
		return nil, err
	}
	output := new(big.Int).Sub(gross, tradeFeeAmount)
	output.Sub(output, protocolFeeAmount)
	if output.Sign() < 0 {
		return nil, ErrPriceUnderflow
	}
	return &SellInfo{
		OutputAmount:      output,
		NewSpotPrice:      newSpot,
		NewDelta:          newDelta,
		TradeFeeAmount:    tradeFeeAmount,
		ProtocolFeeAmount: protocolFeeAmount,
	}, nil
}

// validateTrade runs the checks shared by every curve's buy/sell entry point.
func validateTrade(c Curve, spotPrice, delta *big.Int, itemCount uint64) error {
	if itemCount == 0 {
		return ErrZeroItemCount
	}
	if !c.ValidateSpotPrice(spotPrice) {
		return ErrInvalidSpotPrice
	}
	if !c.ValidateDelta(delta) {
		return ErrInvalidDelta
	}
	return nil
}
