package curves

import (
	"math/big"

	"github.com/metaswap/metaswap-go/curves/wadmath"
)

// ConstantProduct prices trades against the invariant x*y = k, where the
// pool's spot price field is the virtual currency reserve and its delta field
// is the virtual item reserve (both wads, not necessarily equal to the
// custodied balances). The reserves move by the gross traded amounts, so the
// returned NewSpotPrice/NewDelta are the post-trade virtual reserves.
type ConstantProduct struct{}

// NewConstantProduct returns the constant-product pricing curve.
func NewConstantProduct() *ConstantProduct {
	return &ConstantProduct{}
}

func (c *ConstantProduct) Name() string { return "constant-product" }

// ValidateDelta requires a strictly positive virtual item reserve.
func (c *ConstantProduct) ValidateDelta(delta *big.Int) bool {
	return delta != nil && delta.Sign() > 0
}

// ValidateSpotPrice requires a strictly positive virtual currency reserve.
func (c *ConstantProduct) ValidateSpotPrice(spotPrice *big.Int) bool {
	return spotPrice != nil && spotPrice.Sign() > 0
}

func (c *ConstantProduct) GetBuyInfo(spotPrice, delta *big.Int, itemCount uint64, tradeFee, protocolFee *big.Int) (*BuyInfo, error) {
	if err := validateTrade(c, spotPrice, delta, itemCount); err != nil {
		return nil, err
	}

	n := wadmath.FromUint64(itemCount)
	if n.Cmp(delta) >= 0 {
		return nil, ErrReserveExhausted
	}

	// input = reserveCurrency * n / (reserveItems - n), pool receives: round up.
	gross, err := wadmath.MulDivRoundingUp(spotPrice, n, new(big.Int).Sub(delta, n))
	if err != nil {
		return nil, ErrInvalidDelta
	}

	newSpot := new(big.Int).Add(spotPrice, gross)
	newDelta := new(big.Int).Sub(delta, n)

	return buyInfoFromGross(gross, newSpot, newDelta, tradeFee, protocolFee)
}

func (c *ConstantProduct) GetSellInfo(spotPrice, delta *big.Int, itemCount uint64, tradeFee, protocolFee *big.Int) (*SellInfo, error) {
	if err := validateTrade(c, spotPrice, delta, itemCount); err != nil {
		return nil, err
	}

	n := wadmath.FromUint64(itemCount)

	// output = reserveCurrency * n / (reserveItems + n), pool pays: round down.
	gross, err := wadmath.MulDivFloor(spotPrice, n, new(big.Int).Add(delta, n))
	if err != nil {
		return nil, ErrInvalidDelta
	}

	newSpot := new(big.Int).Sub(spotPrice, gross)
	newDelta := new(big.Int).Add(delta, n)

	return sellInfoFromGross(gross, newSpot, newDelta, tradeFee, protocolFee)
}
