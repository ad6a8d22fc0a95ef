package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Genesis describes the pool's initial on-disk configuration. Amounts and
// fixed-point values are decimal strings so TOML files stay exact at
// 18-decimal scale.
type Genesis struct {
	Owner           string `toml:"Owner"`
	PoolAddress     string `toml:"PoolAddress"`
	DollarToken     string `toml:"DollarToken"`
	GovernanceToken string `toml:"GovernanceToken"`

	CollateralRatio       string `toml:"CollateralRatio"`
	MintPriceThreshold    string `toml:"MintPriceThreshold"`
	RedeemPriceThreshold  string `toml:"RedeemPriceThreshold"`
	RedemptionDelayBlocks uint64 `toml:"RedemptionDelayBlocks"`

	EthUsdFeed         string `toml:"EthUsdFeed"`
	EthUsdStaleness    uint64 `toml:"EthUsdStaleness"`
	StableUsdFeed      string `toml:"StableUsdFeed"`
	StableUsdStaleness uint64 `toml:"StableUsdStaleness"`
	GovernanceEthPool  string `toml:"GovernanceEthPool"`
	StableDollarPool   string `toml:"StableDollarPool"`

	Collaterals []Collateral `toml:"Collaterals"`
}

// Collateral seeds one registry entry.
type Collateral struct {
	Token         string `toml:"Token"`
	Symbol        string `toml:"Symbol"`
	Name          string `toml:"Name"`
	Decimals      uint8  `toml:"Decimals"`
	PriceFeed     string `toml:"PriceFeed"`
	FeedStaleness uint64 `toml:"FeedStaleness"`
	PoolCeiling   string `toml:"PoolCeiling"`
	MintingFee    string `toml:"MintingFee"`
	RedemptionFee string `toml:"RedemptionFee"`
	Enabled       bool   `toml:"Enabled"`
}

var fixedPointMax = big.NewInt(1_000_000)

// Load reads and validates a genesis file.
func Load(path string) (*Genesis, error) {
	cfg := &Genesis{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks address, fixed-point and collateral constraints.
func (g *Genesis) Validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"Owner", g.Owner},
		{"PoolAddress", g.PoolAddress},
		{"DollarToken", g.DollarToken},
		{"GovernanceToken", g.GovernanceToken},
	} {
		if _, err := parseAddress(field.value); err != nil {
			return fmt.Errorf("genesis: %s: %w", field.name, err)
		}
	}
	ratio, err := parseAmount(g.CollateralRatio)
	if err != nil {
		return fmt.Errorf("genesis: CollateralRatio: %w", err)
	}
	if ratio.Cmp(fixedPointMax) > 0 {
		return fmt.Errorf("genesis: CollateralRatio above 100%%")
	}
	if _, err := parseAmount(g.MintPriceThreshold); err != nil {
		return fmt.Errorf("genesis: MintPriceThreshold: %w", err)
	}
	if _, err := parseAmount(g.RedeemPriceThreshold); err != nil {
		return fmt.Errorf("genesis: RedeemPriceThreshold: %w", err)
	}
	seen := make(map[string]bool, len(g.Collaterals))
	for i, col := range g.Collaterals {
		if _, err := parseAddress(col.Token); err != nil {
			return fmt.Errorf("genesis: collateral %d token: %w", i, err)
		}
		key := strings.ToLower(strings.TrimSpace(col.Token))
		if seen[key] {
			return fmt.Errorf("genesis: collateral %d duplicates token %s", i, col.Token)
		}
		seen[key] = true
		if strings.TrimSpace(col.Symbol) == "" {
			return fmt.Errorf("genesis: collateral %d missing symbol", i)
		}
		if col.Decimals > 18 {
			return fmt.Errorf("genesis: collateral %d decimals above 18", i)
		}
		if _, err := parseAddress(col.PriceFeed); err != nil {
			return fmt.Errorf("genesis: collateral %d price feed: %w", i, err)
		}
		for _, fee := range []struct {
			name  string
			value string
		}{
			{"MintingFee", col.MintingFee},
			{"RedemptionFee", col.RedemptionFee},
		} {
			parsed, err := parseAmount(fee.value)
			if err != nil {
				return fmt.Errorf("genesis: collateral %d %s: %w", i, fee.name, err)
			}
			if parsed.Cmp(fixedPointMax) > 0 {
				return fmt.Errorf("genesis: collateral %d %s above 100%%", i, fee.name)
			}
		}
		if _, err := parseAmount(col.PoolCeiling); err != nil {
			return fmt.Errorf("genesis: collateral %d PoolCeiling: %w", i, err)
		}
	}
	return nil
}

// OwnerAddress returns the parsed owner address.
func (g *Genesis) OwnerAddress() common.Address { return common.HexToAddress(g.Owner) }

// PoolAccount returns the parsed pool custody address.
func (g *Genesis) PoolAccount() common.Address { return common.HexToAddress(g.PoolAddress) }

// DollarAddress returns the parsed Dollar token address.
func (g *Genesis) DollarAddress() common.Address { return common.HexToAddress(g.DollarToken) }

// GovernanceAddress returns the parsed governance token address.
func (g *Genesis) GovernanceAddress() common.Address { return common.HexToAddress(g.GovernanceToken) }

// Ratio returns the parsed collateral ratio.
func (g *Genesis) Ratio() *big.Int { return mustAmount(g.CollateralRatio) }

// MintThreshold returns the parsed mint peg guard.
func (g *Genesis) MintThreshold() *big.Int { return mustAmount(g.MintPriceThreshold) }

// RedeemThreshold returns the parsed redeem peg guard.
func (g *Genesis) RedeemThreshold() *big.Int { return mustAmount(g.RedeemPriceThreshold) }

// Amount parses a decimal string from the genesis file. Empty strings parse
// to zero; Validate has already rejected malformed values.
func Amount(raw string) *big.Int { return mustAmount(raw) }

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", raw)
	}
	return value, nil
}

func mustAmount(raw string) *big.Int {
	value, err := parseAmount(raw)
	if err != nil {
		return new(big.Int)
	}
	return value
}
