package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralInformation describes one registered collateral token. Entries
// are append-only: the index stays stable for the life of the pool and a
// token is disabled rather than removed.
type CollateralInformation struct {
	Index     uint64
	Symbol    string
	Token     common.Address
	PriceFeed common.Address
	// FeedStaleness is the maximum allowed age, in seconds, of the feed's
	// last answer. Zero means the binding has not been configured and every
	// refresh fails stale.
	FeedStaleness uint64
	IsEnabled     bool
	// MissingDecimals scales the token's native decimals up to the pool's
	// 18-decimal internal unit.
	MissingDecimals uint8
	// Price is the cached USD price on the 6-decimal scale. Mint and redeem
	// read this value; UpdateCollateralPrice refreshes it.
	Price *big.Int
	// PoolCeiling caps the pool's custody balance in raw token units.
	PoolCeiling    *big.Int
	IsMintPaused   bool
	IsRedeemPaused bool
	IsBorrowPaused bool
	// MintingFee and RedemptionFee use the 6-decimal scale (1_000_000 = 100%).
	MintingFee    *big.Int
	RedemptionFee *big.Int
}

// Clone returns a deep copy of the record.
func (c *CollateralInformation) Clone() *CollateralInformation {
	if c == nil {
		return nil
	}
	out := *c
	out.Price = cloneBigInt(c.Price)
	out.PoolCeiling = cloneBigInt(c.PoolCeiling)
	out.MintingFee = cloneBigInt(c.MintingFee)
	out.RedemptionFee = cloneBigInt(c.RedemptionFee)
	return &out
}

// Settings is the pool-wide configuration singleton. It is written once at
// genesis and mutated only through the owner-gated registry operations.
type Settings struct {
	Owner           common.Address
	PoolAddress     common.Address
	DollarToken     common.Address
	GovernanceToken common.Address
	// CollateralRatio governs the collateral-vs-governance split on the
	// 6-decimal scale, 0 through 1_000_000 inclusive.
	CollateralRatio *big.Int
	// MintPriceThreshold and RedeemPriceThreshold gate mint and redeem on
	// the live Dollar USD price: mint requires price >= MintPriceThreshold,
	// redeem requires price <= RedeemPriceThreshold, both inclusive.
	MintPriceThreshold   *big.Int
	RedeemPriceThreshold *big.Int
	// RedemptionDelayBlocks is the minimum number of blocks between staging
	// a redemption and collecting it.
	RedemptionDelayBlocks uint64
	EthUsdFeed            common.Address
	EthUsdStaleness       uint64
	StableUsdFeed         common.Address
	StableUsdStaleness    uint64
	// GovernanceEthPool is the Curve pool whose EMA oracle prices the
	// governance token in ETH.
	GovernanceEthPool common.Address
	// StableDollarPool is the Curve metapool whose oracle prices Dollar in
	// the external stable asset.
	StableDollarPool common.Address
}

// Clone returns a deep copy of the settings record.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := *s
	out.CollateralRatio = cloneBigInt(s.CollateralRatio)
	out.MintPriceThreshold = cloneBigInt(s.MintPriceThreshold)
	out.RedeemPriceThreshold = cloneBigInt(s.RedeemPriceThreshold)
	return &out
}

// AmoMinterInfo records an address authorised to borrow idle pool collateral
// and the collateral index it is bound to.
type AmoMinterInfo struct {
	Address         common.Address
	CollateralIndex uint64
	Enabled         bool
}

// Clone returns a copy of the minter record.
func (m *AmoMinterInfo) Clone() *AmoMinterInfo {
	if m == nil {
		return nil
	}
	out := *m
	return &out
}

// Redemption tracks the two-phase redemption state for one (redeemer,
// collateral index) pair. Phase one stages the collateral amount and records
// the block height; phase two pays out after the configured delay.
type Redemption struct {
	Redeemer        common.Address
	CollateralIndex uint64
	Collateral      *big.Int
	StagedAtBlock   uint64
	Status          RedemptionStatus
}

// Clone returns a deep copy of the redemption record.
func (r *Redemption) Clone() *Redemption {
	if r == nil {
		return nil
	}
	out := *r
	out.Collateral = cloneBigInt(r.Collateral)
	return &out
}

// RedemptionStatus places a redeemer in the two-phase redemption flow for a
// given collateral index.
type RedemptionStatus uint8

const (
	// RedemptionNone means nothing is staged for the pair.
	RedemptionNone RedemptionStatus = iota
	// RedemptionPending means amounts are staged but not collected yet.
	RedemptionPending
	// RedemptionCollected means the staged amounts were paid out.
	RedemptionCollected
)

// String implements fmt.Stringer.
func (s RedemptionStatus) String() string {
	switch s {
	case RedemptionNone:
		return "none"
	case RedemptionPending:
		return "pending"
	case RedemptionCollected:
		return "collected"
	default:
		return "unknown"
	}
}

// Toggle selects which circuit breaker ToggleMintRedeemBorrow flips.
type Toggle uint8

const (
	ToggleMint Toggle = iota
	ToggleRedeem
	ToggleBorrow
)

// String implements fmt.Stringer.
func (t Toggle) String() string {
	switch t {
	case ToggleMint:
		return "mint"
	case ToggleRedeem:
		return "redeem"
	case ToggleBorrow:
		return "borrow"
	default:
		return "unknown"
	}
}
