// Package config loads the console's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// rawConfig is the on-disk shape. Fee fractions are human-readable decimal
// strings ("0.01" is 1%) and converted to wad on load.
type rawConfig struct {
	FactoryAddress       string `yaml:"factory_address"`
	OwnerAddress         string `yaml:"owner_address"`
	ProtocolFee          string `yaml:"protocol_fee"`
	ProtocolFeeRecipient string `yaml:"protocol_fee_recipient"`
	TradeFee             string `yaml:"trade_fee"`
}

// ConsoleConfig is the parsed and validated configuration.
type ConsoleConfig struct {
	FactoryAddress       common.Address
	OwnerAddress         common.Address
	ProtocolFee          *big.Int // wad fraction, nil keeps the factory default
	ProtocolFeeRecipient common.Address
	TradeFee             *big.Int // wad fraction for the demo trade pool
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (*ConsoleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return raw.parse()
}

func (r rawConfig) parse() (*ConsoleConfig, error) {
	cfg := &ConsoleConfig{}

	var err error
	if cfg.FactoryAddress, err = parseAddress(r.FactoryAddress, "factory_address"); err != nil {
		return nil, err
	}
	if cfg.OwnerAddress, err = parseAddress(r.OwnerAddress, "owner_address"); err != nil {
		return nil, err
	}
	if cfg.OwnerAddress == (common.Address{}) {
		return nil, errors.New("owner_address is required")
	}

	if r.ProtocolFeeRecipient != "" {
		if cfg.ProtocolFeeRecipient, err = parseAddress(r.ProtocolFeeRecipient, "protocol_fee_recipient"); err != nil {
			return nil, err
		}
	}

	if r.ProtocolFee != "" {
		if cfg.ProtocolFee, err = parseFraction(r.ProtocolFee, "protocol_fee"); err != nil {
			return nil, err
		}
	}
	if r.TradeFee != "" {
		if cfg.TradeFee, err = parseFraction(r.TradeFee, "trade_fee"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseAddress(s, field string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseFraction converts a decimal fraction like "0.01" to its wad
// representation, 10000000000000000.
func parseFraction(s, field string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%s: fraction %s out of [0, 1]", field, s)
	}
	return d.Shift(18).Truncate(0).BigInt(), nil
}
