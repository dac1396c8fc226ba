package curves

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearGetBuyInfo(t *testing.T) {
	linear := NewLinear()
	halfEther := newBigIntFromString("500000000000000000")

	testCases := []struct {
		name          string
		spot          *big.Int
		delta         *big.Int
		itemCount     uint64
		expectedGross *big.Int
		expectedSpot  *big.Int
		expError      error
	}{
		{
			name:          "single item one step above spot",
			spot:          ether(1),
			delta:         halfEther,
			itemCount:     1,
			expectedGross: newBigIntFromString("1500000000000000000"),
			expectedSpot:  newBigIntFromString("1500000000000000000"),
		},
		{
			name:      "three item series",
			spot:      ether(1),
			delta:     halfEther,
			itemCount: 3,
			// 1.5 + 2 + 2.5 = 6
			expectedGross: ether(6),
			expectedSpot:  newBigIntFromString("2500000000000000000"),
		},
		{
			name:          "flat pool with zero delta",
			spot:          ether(2),
			delta:         big.NewInt(0),
			itemCount:     5,
			expectedGross: ether(10),
			expectedSpot:  ether(2),
		},
		{
			name:      "invalid spot",
			spot:      big.NewInt(0),
			delta:     halfEther,
			itemCount: 1,
			expError:  ErrInvalidSpotPrice,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := linear.GetBuyInfo(tc.spot, tc.delta, tc.itemCount, zero, zero)
			if tc.expError != nil {
				require.ErrorIs(t, err, tc.expError)
				return
			}
			require.NoError(t, err)
			assert.Zero(t, tc.expectedGross.Cmp(info.InputAmount), "expected %s got %s", tc.expectedGross, info.InputAmount)
			assert.Zero(t, tc.expectedSpot.Cmp(info.NewSpotPrice))
			assert.Zero(t, tc.delta.Cmp(info.NewDelta))
		})
	}
}

func TestLinearGetSellInfo(t *testing.T) {
	linear := NewLinear()
	halfEther := newBigIntFromString("500000000000000000")

	testCases := []struct {
		name           string
		spot           *big.Int
		delta          *big.Int
		itemCount      uint64
		expectedOutput *big.Int
		expectedSpot   *big.Int
		expError       error
	}{
		{
			// The documented reference scenario: spot 1, delta 0.5,
			// selling one item pays 1 and leaves the spot at 0.5.
			name:           "single item",
			spot:           ether(1),
			delta:          halfEther,
			itemCount:      1,
			expectedOutput: ether(1),
			expectedSpot:   halfEther,
		},
		{
			name:      "two item descending series",
			spot:      ether(2),
			delta:     halfEther,
			itemCount: 2,
			// 2 + 1.5 = 3.5
			expectedOutput: newBigIntFromString("3500000000000000000"),
			expectedSpot:   ether(1),
		},
		{
			name:           "new spot floors at zero",
			spot:           ether(1),
			delta:          ether(1),
			itemCount:      1,
			expectedOutput: ether(1),
			expectedSpot:   big.NewInt(0),
		},
		{
			name:      "sequence goes negative mid series",
			spot:      ether(1),
			delta:     ether(1),
			itemCount: 3, // 1, 0, -1: infeasible
			expError:  ErrPriceUnderflow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := linear.GetSellInfo(tc.spot, tc.delta, tc.itemCount, zero, zero)
			if tc.expError != nil {
				require.ErrorIs(t, err, tc.expError)
				require.ErrorIs(t, err, ErrCurve)
				return
			}
			require.NoError(t, err)
			assert.Zero(t, tc.expectedOutput.Cmp(info.OutputAmount), "expected %s got %s", tc.expectedOutput, info.OutputAmount)
			assert.Zero(t, tc.expectedSpot.Cmp(info.NewSpotPrice))
		})
	}
}

func TestLinearSpotMonotonicity(t *testing.T) {
	linear := NewLinear()
	spot := ether(5)
	delta := ether(1)

	buy, err := linear.GetBuyInfo(spot, delta, 2, zero, zero)
	require.NoError(t, err)
	assert.Equal(t, 1, buy.NewSpotPrice.Cmp(spot), "spot must strictly increase after a buy")

	sell, err := linear.GetSellInfo(spot, delta, 2, zero, zero)
	require.NoError(t, err)
	assert.Equal(t, -1, sell.NewSpotPrice.Cmp(spot), "spot must strictly decrease after a sell")
}
