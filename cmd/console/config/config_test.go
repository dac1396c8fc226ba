package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
factory_address: "0x00000000000000000000000000000000000000f0"
owner_address: "0x00000000000000000000000000000000000000f1"
protocol_fee: "0.01"
trade_fee: "0.05"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000f0"), cfg.FactoryAddress)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000f1"), cfg.OwnerAddress)

	onePercent, _ := new(big.Int).SetString("10000000000000000", 10)
	fivePercent, _ := new(big.Int).SetString("50000000000000000", 10)
	assert.Zero(t, onePercent.Cmp(cfg.ProtocolFee))
	assert.Zero(t, fivePercent.Cmp(cfg.TradeFee))
	assert.Equal(t, common.Address{}, cfg.ProtocolFeeRecipient)
}

func TestLoadConfigOmittedFees(t *testing.T) {
	path := writeConfig(t, `
owner_address: "0x00000000000000000000000000000000000000f1"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// A nil fee keeps the factory default rather than forcing zero.
	assert.Nil(t, cfg.ProtocolFee)
	assert.Nil(t, cfg.TradeFee)
}

func TestLoadConfigErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{
			name:    "missing owner",
			content: `protocol_fee: "0.01"`,
		},
		{
			name: "bad address",
			content: `
owner_address: "not-an-address"
`,
		},
		{
			name: "fee above one",
			content: `
owner_address: "0x00000000000000000000000000000000000000f1"
protocol_fee: "1.5"
`,
		},
		{
			name: "negative fee",
			content: `
owner_address: "0x00000000000000000000000000000000000000f1"
trade_fee: "-0.01"
`,
		},
		{
			name:    "not yaml",
			content: `{{{{`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
