package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/types"
)

const (
	// TypePoolCollateralAdded is emitted when a new collateral token is
	// registered with the pool.
	TypePoolCollateralAdded = "pool.collateral_added"
	// TypePoolCollateralToggled is emitted when a collateral entry is enabled
	// or disabled.
	TypePoolCollateralToggled = "pool.collateral_toggled"
	// TypePoolGateToggled is emitted when a per-collateral mint, redeem or
	// borrow circuit breaker flips.
	TypePoolGateToggled = "pool.gate_toggled"
	// TypePoolCollateralPriceUpdated is emitted when the cached oracle price
	// for a collateral is refreshed.
	TypePoolCollateralPriceUpdated = "pool.collateral_price_updated"
	// TypePoolCollateralRatioSet is emitted when governance adjusts the
	// collateral ratio.
	TypePoolCollateralRatioSet = "pool.collateral_ratio_set"
	// TypePoolMinted is emitted whenever Dollar is minted against collateral.
	TypePoolMinted = "pool.minted"
	// TypePoolRedemptionStaged is emitted by the first phase of a redemption.
	TypePoolRedemptionStaged = "pool.redemption_staged"
	// TypePoolRedemptionCollected is emitted when staged redemption amounts
	// are paid out.
	TypePoolRedemptionCollected = "pool.redemption_collected"
	// TypePoolAmoBorrow is emitted when an AMO minter borrows idle collateral.
	TypePoolAmoBorrow = "pool.amo_borrow"
	// TypePoolAmoMinterEnabled is emitted when an AMO minter is authorised.
	TypePoolAmoMinterEnabled = "pool.amo_minter_enabled"
	// TypePoolAmoMinterDisabled is emitted when an AMO minter is revoked.
	TypePoolAmoMinterDisabled = "pool.amo_minter_disabled"
)

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type PoolCollateralAdded struct {
	Index       uint64
	Token       common.Address
	Symbol      string
	PriceFeed   common.Address
	PoolCeiling *big.Int
}

func (PoolCollateralAdded) EventType() string { return TypePoolCollateralAdded }

func (e PoolCollateralAdded) Event() *types.Event {
	return &types.Event{
		Type: TypePoolCollateralAdded,
		Attributes: map[string]string{
			"index":       strconv.FormatUint(e.Index, 10),
			"token":       e.Token.Hex(),
			"symbol":      e.Symbol,
			"priceFeed":   e.PriceFeed.Hex(),
			"poolCeiling": bigString(e.PoolCeiling),
		},
	}
}

type PoolCollateralToggled struct {
	Index   uint64
	Enabled bool
}

func (PoolCollateralToggled) EventType() string { return TypePoolCollateralToggled }

func (e PoolCollateralToggled) Event() *types.Event {
	return &types.Event{
		Type: TypePoolCollateralToggled,
		Attributes: map[string]string{
			"index":   strconv.FormatUint(e.Index, 10),
			"enabled": strconv.FormatBool(e.Enabled),
		},
	}
}

type PoolGateToggled struct {
	Index  uint64
	Gate   string
	Paused bool
}

func (PoolGateToggled) EventType() string { return TypePoolGateToggled }

func (e PoolGateToggled) Event() *types.Event {
	return &types.Event{
		Type: TypePoolGateToggled,
		Attributes: map[string]string{
			"index":  strconv.FormatUint(e.Index, 10),
			"gate":   e.Gate,
			"paused": strconv.FormatBool(e.Paused),
		},
	}
}

type PoolCollateralPriceUpdated struct {
	Index uint64
	Price *big.Int
}

func (PoolCollateralPriceUpdated) EventType() string { return TypePoolCollateralPriceUpdated }

func (e PoolCollateralPriceUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePoolCollateralPriceUpdated,
		Attributes: map[string]string{
			"index": strconv.FormatUint(e.Index, 10),
			"price": bigString(e.Price),
		},
	}
}

type PoolCollateralRatioSet struct {
	Ratio *big.Int
}

func (PoolCollateralRatioSet) EventType() string { return TypePoolCollateralRatioSet }

func (e PoolCollateralRatioSet) Event() *types.Event {
	return &types.Event{
		Type: TypePoolCollateralRatioSet,
		Attributes: map[string]string{
			"ratio": bigString(e.Ratio),
		},
	}
}

type PoolMinted struct {
	Minter          common.Address
	CollateralIndex uint64
	DollarOut       *big.Int
	CollateralIn    *big.Int
	GovernanceIn    *big.Int
}

func (PoolMinted) EventType() string { return TypePoolMinted }

func (e PoolMinted) Event() *types.Event {
	return &types.Event{
		Type: TypePoolMinted,
		Attributes: map[string]string{
			"minter":       e.Minter.Hex(),
			"index":        strconv.FormatUint(e.CollateralIndex, 10),
			"dollarOut":    bigString(e.DollarOut),
			"collateralIn": bigString(e.CollateralIn),
			"governanceIn": bigString(e.GovernanceIn),
		},
	}
}

type PoolRedemptionStaged struct {
	Redeemer        common.Address
	CollateralIndex uint64
	DollarBurned    *big.Int
	CollateralOut   *big.Int
	GovernanceOut   *big.Int
	StagedAtBlock   uint64
}

func (PoolRedemptionStaged) EventType() string { return TypePoolRedemptionStaged }

func (e PoolRedemptionStaged) Event() *types.Event {
	return &types.Event{
		Type: TypePoolRedemptionStaged,
		Attributes: map[string]string{
			"redeemer":      e.Redeemer.Hex(),
			"index":         strconv.FormatUint(e.CollateralIndex, 10),
			"dollarBurned":  bigString(e.DollarBurned),
			"collateralOut": bigString(e.CollateralOut),
			"governanceOut": bigString(e.GovernanceOut),
			"stagedAtBlock": strconv.FormatUint(e.StagedAtBlock, 10),
		},
	}
}

type PoolRedemptionCollected struct {
	Redeemer        common.Address
	CollateralIndex uint64
	Collateral      *big.Int
	Governance      *big.Int
}

func (PoolRedemptionCollected) EventType() string { return TypePoolRedemptionCollected }

func (e PoolRedemptionCollected) Event() *types.Event {
	return &types.Event{
		Type: TypePoolRedemptionCollected,
		Attributes: map[string]string{
			"redeemer":   e.Redeemer.Hex(),
			"index":      strconv.FormatUint(e.CollateralIndex, 10),
			"collateral": bigString(e.Collateral),
			"governance": bigString(e.Governance),
		},
	}
}

type PoolAmoBorrow struct {
	Minter          common.Address
	CollateralIndex uint64
	Amount          *big.Int
}

func (PoolAmoBorrow) EventType() string { return TypePoolAmoBorrow }

func (e PoolAmoBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypePoolAmoBorrow,
		Attributes: map[string]string{
			"minter": e.Minter.Hex(),
			"index":  strconv.FormatUint(e.CollateralIndex, 10),
			"amount": bigString(e.Amount),
		},
	}
}

type PoolAmoMinterEnabled struct {
	Minter          common.Address
	CollateralIndex uint64
}

func (PoolAmoMinterEnabled) EventType() string { return TypePoolAmoMinterEnabled }

func (e PoolAmoMinterEnabled) Event() *types.Event {
	return &types.Event{
		Type: TypePoolAmoMinterEnabled,
		Attributes: map[string]string{
			"minter": e.Minter.Hex(),
			"index":  strconv.FormatUint(e.CollateralIndex, 10),
		},
	}
}

type PoolAmoMinterDisabled struct {
	Minter common.Address
}

func (PoolAmoMinterDisabled) EventType() string { return TypePoolAmoMinterDisabled }

func (e PoolAmoMinterDisabled) Event() *types.Event {
	return &types.Event{
		Type: TypePoolAmoMinterDisabled,
		Attributes: map[string]string{
			"minter": e.Minter.Hex(),
		},
	}
}
