package curves

import (
	"math/big"

	"github.com/metaswap/metaswap-go/curves/wadmath"
)

// Exponential scales the price multiplicatively: each item bought multiplies
// the spot price by (1 + delta), each item sold divides it. The first item
// bought costs spot*(1+delta) and the first item sold pays spot, mirroring
// the linear curve's step-first/price-first asymmetry so a fee-free round
// trip is value neutral. Totals are evaluated in closed form as geometric
// series. Rounding is asymmetric on purpose: the amount the pool receives
// rounds up and the amount it pays out rounds down, so the pool never loses
// value to rounding over repeated trades.
type Exponential struct{}

// NewExponential returns the exponential pricing curve.
func NewExponential() *Exponential {
	return &Exponential{}
}

func (e *Exponential) Name() string { return "exponential" }

// ValidateDelta requires a strictly positive rate, i.e. a scaling factor
// 1 + delta strictly above one in wad terms.
func (e *Exponential) ValidateDelta(delta *big.Int) bool {
	return delta != nil && delta.Sign() > 0
}

// ValidateSpotPrice requires a strictly positive starting price.
func (e *Exponential) ValidateSpotPrice(spotPrice *big.Int) bool {
	return spotPrice != nil && spotPrice.Sign() > 0
}

func (e *Exponential) GetBuyInfo(spotPrice, delta *big.Int, itemCount uint64, tradeFee, protocolFee *big.Int) (*BuyInfo, error) {
	if err := validateTrade(e, spotPrice, delta, itemCount); err != nil {
		return nil, err
	}

	b := new(big.Int).Add(wadmath.WAD, delta)
	bPowN, err := wadmath.PowWad(b, itemCount)
	if err != nil {
		return nil, ErrInvalidDelta
	}

	// Item i of n costs spot*(b/WAD)^i, so the gross total telescopes to
	//   spot * (b/WAD) * (b^n - WAD) / (b - WAD)
	// evaluated with ceiling division since the pool is on the receiving side.
	buySpot, err := wadmath.MulUp(spotPrice, b)
	if err != nil {
		return nil, ErrInvalidSpotPrice
	}
	gross, err := wadmath.MulDivRoundingUp(
		buySpot,
		new(big.Int).Sub(bPowN, wadmath.WAD),
		new(big.Int).Sub(b, wadmath.WAD),
	)
	if err != nil {
		return nil, ErrInvalidDelta
	}

	newSpot, err := wadmath.MulUp(spotPrice, bPowN)
	if err != nil {
		return nil, ErrInvalidSpotPrice
	}

	return buyInfoFromGross(gross, newSpot, new(big.Int).Set(delta), tradeFee, protocolFee)
}

func (e *Exponential) GetSellInfo(spotPrice, delta *big.Int, itemCount uint64, tradeFee, protocolFee *big.Int) (*SellInfo, error) {
	if err := validateTrade(e, spotPrice, delta, itemCount); err != nil {
		return nil, err
	}

	b := new(big.Int).Add(wadmath.WAD, delta)

	// invB = 1/(1+delta), floored: the pool pays out, so every intermediate
	// value rounds in the pool's favor.
	invB, err := wadmath.Div(wadmath.WAD, b)
	if err != nil {
		return nil, ErrInvalidDelta
	}
	invBPowN, err := wadmath.PowWad(invB, itemCount)
	if err != nil {
		return nil, ErrInvalidDelta
	}

	// The first item sold goes at the current spot and each further item one
	// decay step below it, so the geometric total is
	//   spot * (WAD - invB^n) / (WAD - invB)
	gross, err := wadmath.MulDivFloor(
		spotPrice,
		new(big.Int).Sub(wadmath.WAD, invBPowN),
		new(big.Int).Sub(wadmath.WAD, invB),
	)
	if err != nil {
		return nil, ErrInvalidDelta
	}

	newSpot, err := wadmath.Mul(spotPrice, invBPowN)
	if err != nil {
		return nil, ErrInvalidSpotPrice
	}

	return sellInfoFromGross(gross, newSpot, new(big.Int).Set(delta), tradeFee, protocolFee)
}
