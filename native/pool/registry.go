package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/events"
)

// Initialize writes the settings singleton. It may only run once; every later
// configuration change goes through the owner-gated setters below.
func (e *Engine) Initialize(settings *Settings) error {
	if err := e.ready(); err != nil {
		return err
	}
	existing, err := e.state.Settings()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialised
	}
	if settings == nil {
		return ErrInvalidSettings
	}
	if settings.Owner == (common.Address{}) || settings.PoolAddress == (common.Address{}) ||
		settings.DollarToken == (common.Address{}) || settings.GovernanceToken == (common.Address{}) {
		return ErrInvalidSettings
	}
	st := settings.Clone()
	if st.CollateralRatio == nil {
		st.CollateralRatio = new(big.Int)
	}
	if st.CollateralRatio.Sign() < 0 || st.CollateralRatio.Cmp(pricePrecision) > 0 {
		return ErrInvalidRatio
	}
	if st.MintPriceThreshold == nil {
		st.MintPriceThreshold = new(big.Int)
	}
	if st.RedeemPriceThreshold == nil {
		st.RedeemPriceThreshold = new(big.Int)
	}
	return e.state.PutSettings(st)
}

func (e *Engine) requireOwner(caller common.Address) (*Settings, error) {
	st, err := e.settings()
	if err != nil {
		return nil, err
	}
	if caller != st.Owner {
		return nil, ErrUnauthorized
	}
	return st, nil
}

// AddCollateralToken appends a new collateral record with the next dense
// index. The token must already exist in the token ledger; its symbol and
// missing-decimals normalisation are derived from the ledger metadata. A nil
// pool ceiling leaves the custody balance uncapped. New records start
// disabled with every circuit breaker engaged.
func (e *Engine) AddCollateralToken(caller, token, priceFeed common.Address, poolCeiling *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return 0, err
	}
	if token == (common.Address{}) || priceFeed == (common.Address{}) {
		return 0, ErrZeroAddress
	}
	if _, exists, err := e.state.CollateralIndexByToken(token); err != nil {
		return 0, err
	} else if exists {
		return 0, ErrCollateralExists
	}
	decimals, err := e.tokens.Decimals(token)
	if err != nil {
		return 0, err
	}
	if decimals > 18 {
		return 0, ErrDecimalsUnsupported
	}
	symbol, err := e.tokens.Symbol(token)
	if err != nil {
		return 0, err
	}
	index, err := e.state.CollateralCount()
	if err != nil {
		return 0, err
	}
	info := &CollateralInformation{
		Index:           index,
		Symbol:          symbol,
		Token:           token,
		PriceFeed:       priceFeed,
		MissingDecimals: 18 - decimals,
		Price:           new(big.Int),
		PoolCeiling:     cloneBigInt(poolCeiling),
		IsMintPaused:    true,
		IsRedeemPaused:  true,
		IsBorrowPaused:  true,
		MintingFee:      new(big.Int),
		RedemptionFee:   new(big.Int),
	}
	if err := e.state.PutCollateral(info); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.PoolCollateralAdded{
		Index:       index,
		Token:       token,
		Symbol:      symbol,
		PriceFeed:   priceFeed,
		PoolCeiling: info.PoolCeiling,
	})
	return index, nil
}

// ToggleCollateral flips the enabled flag at index.
func (e *Engine) ToggleCollateral(caller common.Address, index uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	info, err := e.collateral(index)
	if err != nil {
		return err
	}
	info.IsEnabled = !info.IsEnabled
	if err := e.state.PutCollateral(info); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolCollateralToggled{
		Index:   index,
		Enabled: info.IsEnabled,
	})
	return nil
}

// ToggleMintRedeemBorrow flips one of the three independent circuit breakers
// at index.
func (e *Engine) ToggleMintRedeemBorrow(caller common.Address, index uint64, toggle Toggle) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	info, err := e.collateral(index)
	if err != nil {
		return err
	}
	var value bool
	switch toggle {
	case ToggleMint:
		info.IsMintPaused = !info.IsMintPaused
		value = info.IsMintPaused
	case ToggleRedeem:
		info.IsRedeemPaused = !info.IsRedeemPaused
		value = info.IsRedeemPaused
	case ToggleBorrow:
		info.IsBorrowPaused = !info.IsBorrowPaused
		value = info.IsBorrowPaused
	default:
		return ErrInvalidToggle
	}
	if err := e.state.PutCollateral(info); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolGateToggled{
		Index:  index,
		Gate:   toggle.String(),
		Paused: value,
	})
	return nil
}

// SetPoolCeiling caps the raw custody balance for the collateral at index.
// A nil ceiling removes the cap.
func (e *Engine) SetPoolCeiling(caller common.Address, index uint64, ceiling *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	info, err := e.collateral(index)
	if err != nil {
		return err
	}
	info.PoolCeiling = cloneBigInt(ceiling)
	return e.state.PutCollateral(info)
}

// SetFees configures the 6-decimal minting and redemption fees at index. Fees
// above 100% are rejected.
func (e *Engine) SetFees(caller common.Address, index uint64, mintingFee, redemptionFee *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if mintingFee != nil && (mintingFee.Sign() < 0 || mintingFee.Cmp(pricePrecision) > 0) {
		return ErrFeeTooHigh
	}
	if redemptionFee != nil && (redemptionFee.Sign() < 0 || redemptionFee.Cmp(pricePrecision) > 0) {
		return ErrFeeTooHigh
	}
	info, err := e.collateral(index)
	if err != nil {
		return err
	}
	info.MintingFee = bigOrZero(mintingFee)
	info.RedemptionFee = bigOrZero(redemptionFee)
	return e.state.PutCollateral(info)
}

// SetCollateralPriceFeed rebinds the Chainlink feed and staleness threshold
// for the collateral at index. The cached price is reset and must be
// refreshed before mint or redeem can price the collateral again.
func (e *Engine) SetCollateralPriceFeed(caller common.Address, index uint64, feed common.Address, stalenessSeconds uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if feed == (common.Address{}) {
		return ErrZeroAddress
	}
	info, err := e.collateral(index)
	if err != nil {
		return err
	}
	info.PriceFeed = feed
	info.FeedStaleness = stalenessSeconds
	info.Price = new(big.Int)
	return e.state.PutCollateral(info)
}

// SetCollateralRatio updates the mint/redeem split. Ratios above 100% are
// rejected.
func (e *Engine) SetCollateralRatio(caller common.Address, ratio *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	st, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if ratio == nil || ratio.Sign() < 0 || ratio.Cmp(pricePrecision) > 0 {
		return ErrInvalidRatio
	}
	st.CollateralRatio = new(big.Int).Set(ratio)
	if err := e.state.PutSettings(st); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolCollateralRatioSet{Ratio: st.CollateralRatio})
	return nil
}

// SetPriceThresholds updates the peg guards for mint and redeem.
func (e *Engine) SetPriceThresholds(caller common.Address, mintThreshold, redeemThreshold *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	st, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	st.MintPriceThreshold = bigOrZero(mintThreshold)
	st.RedeemPriceThreshold = bigOrZero(redeemThreshold)
	return e.state.PutSettings(st)
}

// SetRedemptionDelayBlocks updates the minimum block gap between staging and
// collecting a redemption.
func (e *Engine) SetRedemptionDelayBlocks(caller common.Address, blocks uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	st, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	st.RedemptionDelayBlocks = blocks
	return e.state.PutSettings(st)
}

// SetEthUsdFeed rebinds the ETH/USD Chainlink leg of governance pricing.
func (e *Engine) SetEthUsdFeed(caller, feed common.Address, stalenessSeconds uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	st, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if feed == (common.Address{}) {
		return ErrZeroAddress
	}
	st.EthUsdFeed = feed
	st.EthUsdStaleness = stalenessSeconds
	return e.state.PutSettings(st)
}

// SetStableUsdFeed rebinds the Stable/USD Chainlink leg of Dollar pricing.
func (e *Engine) SetStableUsdFeed(caller, feed common.Address, stalenessSeconds uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	st, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if feed == (common.Address{}) {
		return ErrZeroAddress
	}
	st.StableUsdFeed = feed
	st.StableUsdStaleness = stalenessSeconds
	return e.state.PutSettings(st)
}

// SetGovernanceEthPool rebinds the Curve pool backing the governance EMA leg.
func (e *Engine) SetGovernanceEthPool(caller, poolAddr common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	st, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if poolAddr == (common.Address{}) {
		return ErrZeroAddress
	}
	st.GovernanceEthPool = poolAddr
	return e.state.PutSettings(st)
}

// SetStableDollarPool rebinds the Curve metapool backing the Dollar spot leg.
func (e *Engine) SetStableDollarPool(caller, poolAddr common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	st, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if poolAddr == (common.Address{}) {
		return ErrZeroAddress
	}
	st.StableDollarPool = poolAddr
	return e.state.PutSettings(st)
}

// TransferOwnership hands the registry's admin role to a new owner.
func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	st, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	st.Owner = newOwner
	return e.state.PutSettings(st)
}

// EnableAmoMinter authorises an address to call AmoMinterBorrow against the
// collateral at index.
func (e *Engine) EnableAmoMinter(caller, minter common.Address, collateralIndex uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if minter == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, err := e.collateral(collateralIndex); err != nil {
		return err
	}
	if err := e.state.PutAmoMinter(&AmoMinterInfo{Address: minter, CollateralIndex: collateralIndex, Enabled: true}); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolAmoMinterEnabled{Minter: minter, CollateralIndex: collateralIndex})
	return nil
}

// DisableAmoMinter revokes an AMO minter's borrow capability. Collateral it
// already borrowed stays outstanding in the AMO ledger.
func (e *Engine) DisableAmoMinter(caller, minter common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	info, err := e.state.AmoMinter(minter)
	if err != nil {
		return err
	}
	if info == nil {
		info = &AmoMinterInfo{Address: minter}
	}
	info.Enabled = false
	if err := e.state.PutAmoMinter(info); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolAmoMinterDisabled{Minter: minter})
	return nil
}

// IsAmoMinterEnabled reports whether the address may call AmoMinterBorrow.
func (e *Engine) IsAmoMinterEnabled(minter common.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	info, err := e.state.AmoMinter(minter)
	if err != nil {
		return false, err
	}
	return info != nil && info.Enabled, nil
}
