package pool

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/events"
	nativecommon "dollarpool/native/common"
)

const moduleName = "pool"

// engineState is the narrow persistence surface the engine mutates. The
// concrete implementation lives in core/state so the engine can be exercised
// against an in-memory store in tests.
type engineState interface {
	Settings() (*Settings, error)
	PutSettings(settings *Settings) error
	CollateralCount() (uint64, error)
	Collateral(index uint64) (*CollateralInformation, error)
	CollateralIndexByToken(token common.Address) (uint64, bool, error)
	PutCollateral(info *CollateralInformation) error
	Redemption(redeemer common.Address, index uint64) (*Redemption, error)
	PutRedemption(record *Redemption) error
	RedeemGovernanceBalance(redeemer common.Address) (*big.Int, error)
	PutRedeemGovernanceBalance(redeemer common.Address, amount *big.Int) error
	LastRedeemedBlock(redeemer common.Address) (uint64, bool, error)
	PutLastRedeemedBlock(redeemer common.Address, height uint64) error
	UnclaimedCollateral(index uint64) (*big.Int, error)
	PutUnclaimedCollateral(index uint64, amount *big.Int) error
	UnclaimedGovernance() (*big.Int, error)
	PutUnclaimedGovernance(amount *big.Int) error
	AmoMinter(addr common.Address) (*AmoMinterInfo, error)
	PutAmoMinter(info *AmoMinterInfo) error
}

// TokenLedger exposes the fungible-token capabilities the engine consumes:
// balance moves plus mint/burn restricted to the token's registered authority.
type TokenLedger interface {
	BalanceOf(token, addr common.Address) (*big.Int, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
	Mint(token, authority, to common.Address, amount *big.Int) error
	Burn(token, authority, from common.Address, amount *big.Int) error
	Decimals(token common.Address) (uint8, error)
	Symbol(token common.Address) (string, error)
}

// PriceSource produces trusted 6-decimal USD prices with explicit staleness
// semantics. The oracle adapter in native/oracle implements it.
type PriceSource interface {
	CollateralPriceUsd(ctx context.Context, feed common.Address, stalenessSeconds uint64) (*big.Int, error)
	DollarPriceUsd(ctx context.Context, stableFeed common.Address, stalenessSeconds uint64, stableDollarPool common.Address) (*big.Int, error)
	GovernancePriceUsd(ctx context.Context, ethFeed common.Address, stalenessSeconds uint64, governanceEthPool common.Address) (*big.Int, error)
}

// Engine orchestrates the collateral pool state transitions: collateral-ratio
// mint, two-phase redeem and the AMO borrow escape hatch.
type Engine struct {
	state       engineState
	tokens      TokenLedger
	price       PriceSource
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	blockHeight uint64
}

// New constructs an engine. State, tokens and the price source must be wired
// before any operation is invoked.
func New() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the fungible-token ledger.
func (e *Engine) SetTokens(tokens TokenLedger) {
	if e == nil {
		return
	}
	e.tokens = tokens
}

// SetPriceSource wires the oracle adapter.
func (e *Engine) SetPriceSource(price PriceSource) {
	if e == nil {
		return
	}
	e.price = price
}

// SetEmitter installs the event emitter used for downstream observers.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires the module-wide pause view consulted ahead of every
// mutating operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetBlockHeight records the height used for redemption-delay accounting.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
}

// BlockHeight returns the engine's current height.
func (e *Engine) BlockHeight() uint64 {
	if e == nil {
		return 0
	}
	return e.blockHeight
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.tokens == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) settings() (*Settings, error) {
	st, err := e.state.Settings()
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNotInitialised
	}
	return st, nil
}

func (e *Engine) collateral(index uint64) (*CollateralInformation, error) {
	info, err := e.state.Collateral(index)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrCollateralNotFound
	}
	return info, nil
}

func (e *Engine) dollarPrice(ctx context.Context, st *Settings) (*big.Int, error) {
	if e.price == nil {
		return nil, ErrNilState
	}
	return e.price.DollarPriceUsd(ctx, st.StableUsdFeed, st.StableUsdStaleness, st.StableDollarPool)
}

func (e *Engine) governancePrice(ctx context.Context, st *Settings) (*big.Int, error) {
	if e.price == nil {
		return nil, ErrNilState
	}
	return e.price.GovernancePriceUsd(ctx, st.EthUsdFeed, st.EthUsdStaleness, st.GovernanceEthPool)
}

// UpdateCollateralPrice refreshes the cached USD price for the collateral at
// index from its bound Chainlink feed. Mint and redeem read the cached value
// and never refresh it themselves; callers are responsible for keeping the
// cache fresh.
func (e *Engine) UpdateCollateralPrice(ctx context.Context, index uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.price == nil {
		return nil, ErrNilState
	}
	info, err := e.collateral(index)
	if err != nil {
		return nil, err
	}
	price, err := e.price.CollateralPriceUsd(ctx, info.PriceFeed, info.FeedStaleness)
	if err != nil {
		return nil, err
	}
	info.Price = new(big.Int).Set(price)
	if err := e.state.PutCollateral(info); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PoolCollateralPriceUpdated{
		Index: index,
		Price: price,
	})
	return new(big.Int).Set(price), nil
}

// MintDollar pulls collateral (and, below a 100% collateral ratio, governance
// tokens that are burned) from the minter and mints the fee-adjusted Dollar
// amount in exchange. When isOneToOne is set the full value is taken in
// collateral regardless of the current ratio.
//
// Returns (totalDollarMint, collateralNeeded, governanceNeeded).
func (e *Engine) MintDollar(ctx context.Context, minter common.Address, index uint64, dollarAmount, dollarOutMin, maxCollateralIn, maxGovernanceIn *big.Int, isOneToOne bool) (*big.Int, *big.Int, *big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, nil, err
	}
	if dollarAmount == nil || dollarAmount.Sign() <= 0 {
		return nil, nil, nil, ErrInvalidAmount
	}
	st, err := e.settings()
	if err != nil {
		return nil, nil, nil, err
	}
	info, err := e.collateral(index)
	if err != nil {
		return nil, nil, nil, err
	}
	if !info.IsEnabled {
		return nil, nil, nil, ErrCollateralDisabled
	}
	if info.IsMintPaused {
		return nil, nil, nil, ErrMintPaused
	}

	dollarPrice, err := e.dollarPrice(ctx, st)
	if err != nil {
		return nil, nil, nil, err
	}
	if dollarPrice.Cmp(st.MintPriceThreshold) < 0 {
		return nil, nil, nil, ErrDollarPriceTooLow
	}

	totalDollarMint := applyFee(dollarAmount, info.MintingFee)
	if dollarOutMin != nil && totalDollarMint.Cmp(dollarOutMin) < 0 {
		return nil, nil, nil, ErrDollarSlippage
	}

	collateralNeeded := new(big.Int)
	governanceNeeded := new(big.Int)
	if isOneToOne {
		if err := requirePrice(info); err != nil {
			return nil, nil, nil, err
		}
		collateralNeeded = dollarInCollateral(dollarAmount, info.Price, info.MissingDecimals)
	} else {
		collateralPortion := ratioSplit(dollarAmount, st.CollateralRatio)
		if collateralPortion.Sign() > 0 {
			if err := requirePrice(info); err != nil {
				return nil, nil, nil, err
			}
			collateralNeeded = dollarInCollateral(collateralPortion, info.Price, info.MissingDecimals)
		}
		governancePortion := new(big.Int).Sub(dollarAmount, collateralPortion)
		if governancePortion.Sign() > 0 {
			governancePrice, err := e.governancePrice(ctx, st)
			if err != nil {
				return nil, nil, nil, err
			}
			governanceNeeded = dollarInGovernance(governancePortion, governancePrice)
		}
	}

	if maxCollateralIn != nil && collateralNeeded.Cmp(maxCollateralIn) > 0 {
		return nil, nil, nil, ErrCollateralSlippage
	}
	if maxGovernanceIn != nil && governanceNeeded.Cmp(maxGovernanceIn) > 0 {
		return nil, nil, nil, ErrGovernanceSlippage
	}

	poolBalance, err := e.tokens.BalanceOf(info.Token, st.PoolAddress)
	if err != nil {
		return nil, nil, nil, err
	}
	if info.PoolCeiling != nil {
		after := new(big.Int).Add(poolBalance, collateralNeeded)
		if after.Cmp(info.PoolCeiling) > 0 {
			return nil, nil, nil, ErrPoolCeilingExceeded
		}
	}

	// Caller balances are checked before any token moves so a failing leg
	// cannot strand collateral in pool custody.
	if collateralNeeded.Sign() > 0 {
		minterCollateral, err := e.tokens.BalanceOf(info.Token, minter)
		if err != nil {
			return nil, nil, nil, err
		}
		if minterCollateral.Cmp(collateralNeeded) < 0 {
			return nil, nil, nil, ErrInsufficientFunds
		}
	}
	if governanceNeeded.Sign() > 0 {
		minterGovernance, err := e.tokens.BalanceOf(st.GovernanceToken, minter)
		if err != nil {
			return nil, nil, nil, err
		}
		if minterGovernance.Cmp(governanceNeeded) < 0 {
			return nil, nil, nil, ErrInsufficientFunds
		}
	}

	if collateralNeeded.Sign() > 0 {
		if err := e.tokens.Transfer(info.Token, minter, st.PoolAddress, collateralNeeded); err != nil {
			return nil, nil, nil, err
		}
	}
	if governanceNeeded.Sign() > 0 {
		if err := e.tokens.Burn(st.GovernanceToken, st.PoolAddress, minter, governanceNeeded); err != nil {
			return nil, nil, nil, err
		}
	}
	if err := e.tokens.Mint(st.DollarToken, st.PoolAddress, minter, totalDollarMint); err != nil {
		return nil, nil, nil, err
	}

	e.emitter.Emit(events.PoolMinted{
		Minter:          minter,
		CollateralIndex: index,
		DollarOut:       totalDollarMint,
		CollateralIn:    collateralNeeded,
		GovernanceIn:    governanceNeeded,
	})
	return totalDollarMint, collateralNeeded, governanceNeeded, nil
}

// RedeemDollar burns the Dollar amount from the redeemer and stages the
// fee-adjusted collateral and governance payout for later collection. The
// payout is not transferred here; CollectRedemption pays it out once the
// redemption delay has elapsed.
//
// Returns (collateralOut, governanceOut).
func (e *Engine) RedeemDollar(ctx context.Context, redeemer common.Address, index uint64, dollarAmount, governanceOutMin, collateralOutMin *big.Int) (*big.Int, *big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if dollarAmount == nil || dollarAmount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	st, err := e.settings()
	if err != nil {
		return nil, nil, err
	}
	info, err := e.collateral(index)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsEnabled {
		return nil, nil, ErrCollateralDisabled
	}
	if info.IsRedeemPaused {
		return nil, nil, ErrRedeemPaused
	}

	dollarPrice, err := e.dollarPrice(ctx, st)
	if err != nil {
		return nil, nil, err
	}
	if dollarPrice.Cmp(st.RedeemPriceThreshold) > 0 {
		return nil, nil, ErrDollarPriceTooHigh
	}

	dollarAfterFee := applyFee(dollarAmount, info.RedemptionFee)
	collateralPortion := ratioSplit(dollarAfterFee, st.CollateralRatio)
	collateralOut := new(big.Int)
	if collateralPortion.Sign() > 0 {
		if err := requirePrice(info); err != nil {
			return nil, nil, err
		}
		collateralOut = dollarInCollateral(collateralPortion, info.Price, info.MissingDecimals)
	}
	governanceOut := new(big.Int)
	governancePortion := new(big.Int).Sub(dollarAfterFee, collateralPortion)
	if governancePortion.Sign() > 0 {
		governancePrice, err := e.governancePrice(ctx, st)
		if err != nil {
			return nil, nil, err
		}
		governanceOut = dollarInGovernance(governancePortion, governancePrice)
	}

	free, err := e.freeCollateral(st, info)
	if err != nil {
		return nil, nil, err
	}
	if collateralOut.Cmp(free) > 0 {
		return nil, nil, ErrInsufficientPoolCollateral
	}

	if collateralOutMin != nil && collateralOut.Cmp(collateralOutMin) < 0 {
		return nil, nil, ErrCollateralSlippage
	}
	if governanceOutMin != nil && governanceOut.Cmp(governanceOutMin) < 0 {
		return nil, nil, ErrGovernanceSlippage
	}

	if err := e.tokens.Burn(st.DollarToken, st.PoolAddress, redeemer, dollarAmount); err != nil {
		return nil, nil, err
	}
	if governanceOut.Sign() > 0 {
		// The governance payout is minted into pool custody now and held
		// there until collection.
		if err := e.tokens.Mint(st.GovernanceToken, st.PoolAddress, st.PoolAddress, governanceOut); err != nil {
			return nil, nil, err
		}
	}

	record, err := e.state.Redemption(redeemer, index)
	if err != nil {
		return nil, nil, err
	}
	if record == nil || record.Status != RedemptionPending {
		record = &Redemption{Redeemer: redeemer, CollateralIndex: index, Collateral: new(big.Int)}
	}
	record.Collateral = new(big.Int).Add(bigOrZero(record.Collateral), collateralOut)
	record.StagedAtBlock = e.blockHeight
	record.Status = RedemptionPending
	if err := e.state.PutRedemption(record); err != nil {
		return nil, nil, err
	}

	pendingGovernance, err := e.state.RedeemGovernanceBalance(redeemer)
	if err != nil {
		return nil, nil, err
	}
	if err := e.state.PutRedeemGovernanceBalance(redeemer, new(big.Int).Add(pendingGovernance, governanceOut)); err != nil {
		return nil, nil, err
	}

	unclaimed, err := e.state.UnclaimedCollateral(index)
	if err != nil {
		return nil, nil, err
	}
	if err := e.state.PutUnclaimedCollateral(index, new(big.Int).Add(unclaimed, collateralOut)); err != nil {
		return nil, nil, err
	}
	unclaimedGov, err := e.state.UnclaimedGovernance()
	if err != nil {
		return nil, nil, err
	}
	if err := e.state.PutUnclaimedGovernance(new(big.Int).Add(unclaimedGov, governanceOut)); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutLastRedeemedBlock(redeemer, e.blockHeight); err != nil {
		return nil, nil, err
	}

	e.emitter.Emit(events.PoolRedemptionStaged{
		Redeemer:        redeemer,
		CollateralIndex: index,
		DollarBurned:    dollarAmount,
		CollateralOut:   collateralOut,
		GovernanceOut:   governanceOut,
		StagedAtBlock:   e.blockHeight,
	})
	return collateralOut, governanceOut, nil
}

// CollectRedemption pays out the staged amounts for the redeemer and
// collateral index once the redemption delay has elapsed. The governance
// balance is global per redeemer and is paid in full on the first collection;
// staged collateral must be collected once per index.
//
// Returns (governanceAmount, collateralAmount).
func (e *Engine) CollectRedemption(redeemer common.Address, index uint64) (*big.Int, *big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	st, err := e.settings()
	if err != nil {
		return nil, nil, err
	}
	info, err := e.collateral(index)
	if err != nil {
		return nil, nil, err
	}

	last, seen, err := e.state.LastRedeemedBlock(redeemer)
	if err != nil {
		return nil, nil, err
	}
	if seen && e.blockHeight <= last+st.RedemptionDelayBlocks {
		return nil, nil, ErrRedemptionDelay
	}

	collateralAmount := new(big.Int)
	record, err := e.state.Redemption(redeemer, index)
	if err != nil {
		return nil, nil, err
	}
	if record != nil && record.Status == RedemptionPending && record.Collateral != nil && record.Collateral.Sign() > 0 {
		collateralAmount = new(big.Int).Set(record.Collateral)
		record.Collateral = new(big.Int)
		record.Status = RedemptionCollected
		if err := e.state.PutRedemption(record); err != nil {
			return nil, nil, err
		}
		unclaimed, err := e.state.UnclaimedCollateral(index)
		if err != nil {
			return nil, nil, err
		}
		if err := e.state.PutUnclaimedCollateral(index, new(big.Int).Sub(unclaimed, collateralAmount)); err != nil {
			return nil, nil, err
		}
		if err := e.tokens.Transfer(info.Token, st.PoolAddress, redeemer, collateralAmount); err != nil {
			return nil, nil, err
		}
	}

	governanceAmount, err := e.state.RedeemGovernanceBalance(redeemer)
	if err != nil {
		return nil, nil, err
	}
	if governanceAmount.Sign() > 0 {
		if err := e.state.PutRedeemGovernanceBalance(redeemer, new(big.Int)); err != nil {
			return nil, nil, err
		}
		unclaimedGov, err := e.state.UnclaimedGovernance()
		if err != nil {
			return nil, nil, err
		}
		if err := e.state.PutUnclaimedGovernance(new(big.Int).Sub(unclaimedGov, governanceAmount)); err != nil {
			return nil, nil, err
		}
		if err := e.tokens.Transfer(st.GovernanceToken, st.PoolAddress, redeemer, governanceAmount); err != nil {
			return nil, nil, err
		}
	}

	if collateralAmount.Sign() > 0 || governanceAmount.Sign() > 0 {
		e.emitter.Emit(events.PoolRedemptionCollected{
			Redeemer:        redeemer,
			CollateralIndex: index,
			Collateral:      collateralAmount,
			Governance:      governanceAmount,
		})
	}
	return governanceAmount, collateralAmount, nil
}

// AmoMinterBorrow transfers free collateral out of the pool to an enabled AMO
// minter, bypassing mint and redeem. The borrow ledger in native/amo is the
// only expected caller.
func (e *Engine) AmoMinterBorrow(ctx context.Context, caller common.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	st, err := e.settings()
	if err != nil {
		return err
	}
	minter, err := e.state.AmoMinter(caller)
	if err != nil {
		return err
	}
	if minter == nil || !minter.Enabled {
		return ErrAmoMinterNotEnabled
	}
	info, err := e.collateral(minter.CollateralIndex)
	if err != nil {
		return err
	}
	if info.IsBorrowPaused {
		return ErrBorrowPaused
	}
	free, err := e.freeCollateral(st, info)
	if err != nil {
		return err
	}
	if amount.Cmp(free) > 0 {
		return ErrInsufficientPoolCollateral
	}
	if err := e.tokens.Transfer(info.Token, st.PoolAddress, caller, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolAmoBorrow{
		Minter:          caller,
		CollateralIndex: minter.CollateralIndex,
		Amount:          amount,
	})
	return nil
}

func requirePrice(info *CollateralInformation) error {
	if info.Price == nil || info.Price.Sign() <= 0 {
		return ErrCollateralPriceUnset
	}
	return nil
}

func (e *Engine) freeCollateral(st *Settings, info *CollateralInformation) (*big.Int, error) {
	balance, err := e.tokens.BalanceOf(info.Token, st.PoolAddress)
	if err != nil {
		return nil, err
	}
	unclaimed, err := e.state.UnclaimedCollateral(info.Index)
	if err != nil {
		return nil, err
	}
	free := new(big.Int).Sub(balance, unclaimed)
	if free.Sign() < 0 {
		free = new(big.Int)
	}
	return free, nil
}
