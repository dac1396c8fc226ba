package curves

import (
	"math/big"
)

// Linear moves the price by exactly delta per item traded. Buying n items
// costs the arithmetic series spot+delta, spot+2*delta, ..., spot+n*delta;
// selling pays the descending series starting at spot and refuses to step
// below zero. Buys step up before pricing and sells price before stepping
// down, so a fee-free round trip is value neutral.
type Linear struct{}

// NewLinear returns the linear pricing curve.
func NewLinear() *Linear {
	return &Linear{}
}

func (l *Linear) Name() string { return "linear" }

// ValidateDelta accepts any non-negative step, including zero (a flat pool).
func (l *Linear) ValidateDelta(delta *big.Int) bool {
	return delta != nil && delta.Sign() >= 0
}

// ValidateSpotPrice requires a strictly positive starting price.
func (l *Linear) ValidateSpotPrice(spotPrice *big.Int) bool {
	return spotPrice != nil && spotPrice.Sign() > 0
}

// seriesTotal returns n*spot + delta*n*(n-1)/2, the sum of the n-term
// arithmetic series starting at spot with step delta.
func seriesTotal(spot, delta *big.Int, n uint64) *big.Int {
	nBig := new(big.Int).SetUint64(n)
	total := new(big.Int).Mul(nBig, spot)

	// delta * n * (n-1) / 2
	steps := new(big.Int).Mul(nBig, new(big.Int).SetUint64(n-1))
	steps.Div(steps, big.NewInt(2))
	steps.Mul(steps, delta)

	return total.Add(total, steps)
}

func (l *Linear) GetBuyInfo(spotPrice, delta *big.Int, itemCount uint64, tradeFee, protocolFee *big.Int) (*BuyInfo, error) {
	if err := validateTrade(l, spotPrice, delta, itemCount); err != nil {
		return nil, err
	}

	// The first item bought costs spot+delta, so the series start is one
	// step above the current spot.
	firstStep := new(big.Int).Add(spotPrice, delta)
	gross := seriesTotal(firstStep, delta, itemCount)

	newSpot := new(big.Int).Mul(new(big.Int).SetUint64(itemCount), delta)
	newSpot.Add(newSpot, spotPrice)

	return buyInfoFromGross(gross, newSpot, new(big.Int).Set(delta), tradeFee, protocolFee)
}

func (l *Linear) GetSellInfo(spotPrice, delta *big.Int, itemCount uint64, tradeFee, protocolFee *big.Int) (*SellInfo, error) {
	if err := validateTrade(l, spotPrice, delta, itemCount); err != nil {
		return nil, err
	}

	// The cheapest item in the descending series sells at
	// spot - (n-1)*delta; if that goes negative the trade is infeasible.
	lastStep := new(big.Int).Mul(new(big.Int).SetUint64(itemCount-1), delta)
	if spotPrice.Cmp(lastStep) < 0 {
		return nil, ErrPriceUnderflow
	}

	// n*spot - delta*n*(n-1)/2, the descending series.
	gross := seriesTotal(spotPrice, new(big.Int).Neg(delta), itemCount)

	// New spot is the next step down, floored at zero.
	newSpot := new(big.Int).Mul(new(big.Int).SetUint64(itemCount), delta)
	newSpot.Sub(spotPrice, newSpot)
	if newSpot.Sign() < 0 {
		newSpot.SetUint64(0)
	}

	return sellInfoFromGross(gross, newSpot, new(big.Int).Set(delta), tradeFee, protocolFee)
}
