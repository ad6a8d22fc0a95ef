package pool_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/events"
	"dollarpool/core/state"
	nativecommon "dollarpool/native/common"
	"dollarpool/native/pool"
	"dollarpool/storage"
)

var (
	testOwner    = common.HexToAddress("0xa1")
	testPool     = common.HexToAddress("0xb1")
	dollarToken  = common.HexToAddress("0xc1")
	govToken     = common.HexToAddress("0xc2")
	lusdToken    = common.HexToAddress("0xd1")
	usdcToken    = common.HexToAddress("0xd2")
	faucet       = common.HexToAddress("0xe1")
	lusdFeed     = common.HexToAddress("0xf1")
	usdcFeed     = common.HexToAddress("0xf2")
	ethFeed      = common.HexToAddress("0xf3")
	stableFeed   = common.HexToAddress("0xf4")
	govEthPool   = common.HexToAddress("0xf5")
	stablePool   = common.HexToAddress("0xf6")
	testMinter   = common.HexToAddress("0x91")
	testRedeemer = common.HexToAddress("0x92")
)

func scale18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// stubPrices satisfies the engine's price source with fixed 6-decimal values.
type stubPrices struct {
	collateral *big.Int
	dollar     *big.Int
	governance *big.Int
	err        error
}

func (s *stubPrices) CollateralPriceUsd(context.Context, common.Address, uint64) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.collateral), nil
}

func (s *stubPrices) DollarPriceUsd(context.Context, common.Address, uint64, common.Address) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.dollar), nil
}

func (s *stubPrices) GovernancePriceUsd(context.Context, common.Address, uint64, common.Address) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.governance), nil
}

type pausedModules map[string]bool

func (p pausedModules) IsPaused(module string) bool { return p[module] }

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func (r *recordingEmitter) last() events.Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func newTestEngine(t *testing.T) (*pool.Engine, *state.Manager, *stubPrices) {
	t.Helper()
	m := state.NewManager(storage.NewMemDB())
	for _, reg := range []struct {
		token    common.Address
		symbol   string
		decimals uint8
	}{
		{dollarToken, "DOLLAR", 18},
		{govToken, "GOV", 18},
		{lusdToken, "LUSD", 18},
		{usdcToken, "USDC", 6},
	} {
		if err := m.RegisterToken(reg.token, reg.symbol, reg.symbol, reg.decimals); err != nil {
			t.Fatalf("register %s: %v", reg.symbol, err)
		}
	}
	// The pool custody account is the mint authority for Dollar and
	// governance; the faucet funds collateral balances in tests.
	if err := m.SetMinter(dollarToken, testPool); err != nil {
		t.Fatalf("set dollar minter: %v", err)
	}
	if err := m.SetMinter(govToken, testPool); err != nil {
		t.Fatalf("set governance minter: %v", err)
	}
	if err := m.SetMinter(lusdToken, faucet); err != nil {
		t.Fatalf("set lusd minter: %v", err)
	}
	if err := m.SetMinter(usdcToken, faucet); err != nil {
		t.Fatalf("set usdc minter: %v", err)
	}

	prices := &stubPrices{
		collateral: big.NewInt(1_000_000),
		dollar:     big.NewInt(1_000_000),
		governance: big.NewInt(2_000_000),
	}
	eng := pool.New()
	eng.SetState(m)
	eng.SetTokens(m)
	eng.SetPriceSource(prices)
	eng.SetBlockHeight(10)
	if err := eng.Initialize(&pool.Settings{
		Owner:                 testOwner,
		PoolAddress:           testPool,
		DollarToken:           dollarToken,
		GovernanceToken:       govToken,
		CollateralRatio:       big.NewInt(1_000_000),
		MintPriceThreshold:    big.NewInt(1_000_000),
		RedeemPriceThreshold:  big.NewInt(1_000_000),
		RedemptionDelayBlocks: 2,
		EthUsdFeed:            ethFeed,
		EthUsdStaleness:       3600,
		StableUsdFeed:         stableFeed,
		StableUsdStaleness:    86400,
		GovernanceEthPool:     govEthPool,
		StableDollarPool:      stablePool,
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return eng, m, prices
}

// addEnabledCollateral registers the token, lifts every gate and refreshes the
// cached price from the stub source.
func addEnabledCollateral(t *testing.T, eng *pool.Engine, token, feed common.Address, ceiling *big.Int) uint64 {
	t.Helper()
	index, err := eng.AddCollateralToken(testOwner, token, feed, ceiling)
	if err != nil {
		t.Fatalf("add collateral: %v", err)
	}
	if err := eng.ToggleCollateral(testOwner, index); err != nil {
		t.Fatalf("enable collateral: %v", err)
	}
	for _, toggle := range []pool.Toggle{pool.ToggleMint, pool.ToggleRedeem, pool.ToggleBorrow} {
		if err := eng.ToggleMintRedeemBorrow(testOwner, index, toggle); err != nil {
			t.Fatalf("unpause %s: %v", toggle, err)
		}
	}
	if _, err := eng.UpdateCollateralPrice(context.Background(), index); err != nil {
		t.Fatalf("refresh price: %v", err)
	}
	return index
}

func fund(t *testing.T, m *state.Manager, token, to common.Address, amount *big.Int) {
	t.Helper()
	if err := m.Mint(token, faucet, to, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func balance(t *testing.T, m *state.Manager, token, addr common.Address) *big.Int {
	t.Helper()
	b, err := m.BalanceOf(token, addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func TestMintDollarFullCollateral(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	if err := eng.SetFees(testOwner, index, big.NewInt(10_000), big.NewInt(0)); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	fund(t, m, lusdToken, testMinter, scale18(1000))

	total, collateralIn, governanceIn, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if total.Cmp(scale18(99)) != 0 {
		t.Fatalf("expected 99e18 minted after 1%% fee, got %s", total)
	}
	if collateralIn.Cmp(scale18(100)) != 0 {
		t.Fatalf("expected 100e18 collateral pulled, got %s", collateralIn)
	}
	if governanceIn.Sign() != 0 {
		t.Fatalf("expected no governance at 100%% ratio, got %s", governanceIn)
	}
	if got := balance(t, m, dollarToken, testMinter); got.Cmp(scale18(99)) != 0 {
		t.Fatalf("minter dollar balance mismatch: %s", got)
	}
	if got := balance(t, m, lusdToken, testPool); got.Cmp(scale18(100)) != 0 {
		t.Fatalf("pool custody mismatch: %s", got)
	}
}

func TestMintDollarMissingDecimals(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, usdcToken, usdcFeed, big.NewInt(1_000_000_000_000))
	fund(t, m, usdcToken, testMinter, big.NewInt(1_000_000_000))

	_, collateralIn, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	// 100 Dollar at $1 lands on the token's native 6-decimal scale.
	if collateralIn.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("expected 100e6 raw USDC, got %s", collateralIn)
	}
}

func TestMintDollarGovernanceLeg(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	if err := eng.SetCollateralRatio(testOwner, big.NewInt(0)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	if err := m.Mint(govToken, testPool, testMinter, scale18(100)); err != nil {
		t.Fatalf("fund governance: %v", err)
	}

	total, collateralIn, governanceIn, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if total.Cmp(scale18(100)) != 0 {
		t.Fatalf("expected 100e18 minted, got %s", total)
	}
	if collateralIn.Sign() != 0 {
		t.Fatalf("expected no collateral at 0%% ratio, got %s", collateralIn)
	}
	// $100 of governance at $2 per token burns 50e18.
	if governanceIn.Cmp(scale18(50)) != 0 {
		t.Fatalf("expected 50e18 governance, got %s", governanceIn)
	}
	if got := balance(t, m, govToken, testMinter); got.Cmp(scale18(50)) != 0 {
		t.Fatalf("governance should be burned from minter, balance %s", got)
	}
}

func TestMintDollarLeavesNoPartialStateOnPoorGovernance(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	if err := eng.SetCollateralRatio(testOwner, big.NewInt(500_000)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	fund(t, m, lusdToken, testMinter, scale18(1000))
	// At 50% ratio a 100 Dollar mint needs 25e18 governance; the minter
	// only holds 1e18.
	if err := m.Mint(govToken, testPool, testMinter, scale18(1)); err != nil {
		t.Fatalf("fund governance: %v", err)
	}

	_, _, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false)
	if !errors.Is(err, pool.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := balance(t, m, lusdToken, testMinter); got.Cmp(scale18(1000)) != 0 {
		t.Fatalf("minter collateral must be untouched, got %s", got)
	}
	if got := balance(t, m, lusdToken, testPool); got.Sign() != 0 {
		t.Fatalf("pool custody must stay empty, got %s", got)
	}
	if got := balance(t, m, govToken, testMinter); got.Cmp(scale18(1)) != 0 {
		t.Fatalf("governance must be untouched, got %s", got)
	}
	if got := balance(t, m, dollarToken, testMinter); got.Sign() != 0 {
		t.Fatalf("no dollar may be minted, got %s", got)
	}
}

func TestMintDollarRequiresCollateralBalance(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	fund(t, m, lusdToken, testMinter, scale18(10))

	_, _, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false)
	if !errors.Is(err, pool.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := balance(t, m, lusdToken, testMinter); got.Cmp(scale18(10)) != 0 {
		t.Fatalf("minter collateral must be untouched, got %s", got)
	}
}

func TestMintDollarOneToOneOverridesRatio(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	if err := eng.SetCollateralRatio(testOwner, big.NewInt(0)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	fund(t, m, lusdToken, testMinter, scale18(1000))

	_, collateralIn, governanceIn, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, true)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if collateralIn.Cmp(scale18(100)) != 0 {
		t.Fatalf("expected full collateral take, got %s", collateralIn)
	}
	if governanceIn.Sign() != 0 {
		t.Fatalf("expected no governance, got %s", governanceIn)
	}
}

func TestMintPegGuardInclusive(t *testing.T) {
	eng, m, prices := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	fund(t, m, lusdToken, testMinter, scale18(1000))

	prices.dollar = big.NewInt(999_999)
	_, _, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false)
	if !errors.Is(err, pool.ErrDollarPriceTooLow) {
		t.Fatalf("expected ErrDollarPriceTooLow, got %v", err)
	}

	// A price exactly on the threshold passes.
	prices.dollar = big.NewInt(1_000_000)
	if _, _, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false); err != nil {
		t.Fatalf("mint at threshold: %v", err)
	}
}

func TestMintSlippageBounds(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	if err := eng.SetFees(testOwner, index, big.NewInt(10_000), big.NewInt(0)); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	fund(t, m, lusdToken, testMinter, scale18(1000))

	min := scale18(99)
	if _, _, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), min, nil, nil, false); err != nil {
		t.Fatalf("mint at exact minimum: %v", err)
	}
	tooHigh := new(big.Int).Add(min, big.NewInt(1))
	_, _, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), tooHigh, nil, nil, false)
	if !errors.Is(err, pool.ErrDollarSlippage) {
		t.Fatalf("expected ErrDollarSlippage, got %v", err)
	}
	tooLittle := new(big.Int).Sub(scale18(100), big.NewInt(1))
	_, _, _, err = eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, tooLittle, nil, false)
	if !errors.Is(err, pool.ErrCollateralSlippage) {
		t.Fatalf("expected ErrCollateralSlippage, got %v", err)
	}
}

func TestMintPoolCeiling(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(150))
	fund(t, m, lusdToken, testMinter, scale18(1000))

	if _, _, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	_, _, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false)
	if !errors.Is(err, pool.ErrPoolCeilingExceeded) {
		t.Fatalf("expected ErrPoolCeilingExceeded, got %v", err)
	}
}

func TestMintGates(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	fund(t, m, lusdToken, testMinter, scale18(1000))
	ctx := context.Background()

	if _, _, _, err := eng.MintDollar(ctx, testMinter, index, big.NewInt(0), nil, nil, nil, false); !errors.Is(err, pool.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, _, err := eng.MintDollar(ctx, testMinter, 99, scale18(1), nil, nil, nil, false); !errors.Is(err, pool.ErrCollateralNotFound) {
		t.Fatalf("expected ErrCollateralNotFound, got %v", err)
	}

	if err := eng.ToggleMintRedeemBorrow(testOwner, index, pool.ToggleMint); err != nil {
		t.Fatalf("pause mint: %v", err)
	}
	if _, _, _, err := eng.MintDollar(ctx, testMinter, index, scale18(1), nil, nil, nil, false); !errors.Is(err, pool.ErrMintPaused) {
		t.Fatalf("expected ErrMintPaused, got %v", err)
	}

	if err := eng.ToggleCollateral(testOwner, index); err != nil {
		t.Fatalf("disable collateral: %v", err)
	}
	if _, _, _, err := eng.MintDollar(ctx, testMinter, index, scale18(1), nil, nil, nil, false); !errors.Is(err, pool.ErrCollateralDisabled) {
		t.Fatalf("expected ErrCollateralDisabled, got %v", err)
	}

	eng.SetPauses(pausedModules{"pool": true})
	if _, _, _, err := eng.MintDollar(ctx, testMinter, index, scale18(1), nil, nil, nil, false); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestMintRequiresFreshPrice(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index, err := eng.AddCollateralToken(testOwner, lusdToken, lusdFeed, scale18(1_000_000))
	if err != nil {
		t.Fatalf("add collateral: %v", err)
	}
	if err := eng.ToggleCollateral(testOwner, index); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := eng.ToggleMintRedeemBorrow(testOwner, index, pool.ToggleMint); err != nil {
		t.Fatalf("unpause mint: %v", err)
	}
	fund(t, m, lusdToken, testMinter, scale18(1000))

	// The cached price was never refreshed.
	_, _, _, err = eng.MintDollar(context.Background(), testMinter, index, scale18(1), nil, nil, nil, false)
	if !errors.Is(err, pool.ErrCollateralPriceUnset) {
		t.Fatalf("expected ErrCollateralPriceUnset, got %v", err)
	}
}

func TestRedeemStagesAndCollects(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	emitter := &recordingEmitter{}
	eng.SetEmitter(emitter)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	if err := eng.SetFees(testOwner, index, big.NewInt(0), big.NewInt(20_000)); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	fund(t, m, lusdToken, testPool, scale18(200))
	if err := m.Mint(dollarToken, testPool, testRedeemer, scale18(100)); err != nil {
		t.Fatalf("fund dollar: %v", err)
	}

	collateralOut, governanceOut, err := eng.RedeemDollar(context.Background(), testRedeemer, index, scale18(100), nil, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if collateralOut.Cmp(scale18(98)) != 0 {
		t.Fatalf("expected 98e18 staged after 2%% fee, got %s", collateralOut)
	}
	if governanceOut.Sign() != 0 {
		t.Fatalf("expected no governance at 100%% ratio, got %s", governanceOut)
	}
	if got := balance(t, m, dollarToken, testRedeemer); got.Sign() != 0 {
		t.Fatalf("dollar should be burned, balance %s", got)
	}
	status, err := eng.RedemptionStatusOf(testRedeemer, index)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != pool.RedemptionPending {
		t.Fatalf("expected pending, got %s", status)
	}
	unclaimed, err := eng.UnclaimedPoolCollateral(index)
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Cmp(scale18(98)) != 0 {
		t.Fatalf("expected 98e18 unclaimed, got %s", unclaimed)
	}
	free, err := eng.FreeCollateralBalance(index)
	if err != nil {
		t.Fatalf("free: %v", err)
	}
	if free.Cmp(scale18(102)) != 0 {
		t.Fatalf("expected 102e18 free, got %s", free)
	}
	if _, ok := emitter.last().(events.PoolRedemptionStaged); !ok {
		t.Fatalf("expected PoolRedemptionStaged, got %T", emitter.last())
	}

	// Staged at height 10, delay 2: heights 11 and 12 are too early.
	eng.SetBlockHeight(12)
	if _, _, err := eng.CollectRedemption(testRedeemer, index); !errors.Is(err, pool.ErrRedemptionDelay) {
		t.Fatalf("expected ErrRedemptionDelay, got %v", err)
	}

	eng.SetBlockHeight(13)
	governanceAmount, collateralAmount, err := eng.CollectRedemption(testRedeemer, index)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collateralAmount.Cmp(scale18(98)) != 0 {
		t.Fatalf("expected 98e18 paid, got %s", collateralAmount)
	}
	if governanceAmount.Sign() != 0 {
		t.Fatalf("expected no governance, got %s", governanceAmount)
	}
	if got := balance(t, m, lusdToken, testRedeemer); got.Cmp(scale18(98)) != 0 {
		t.Fatalf("redeemer collateral mismatch: %s", got)
	}
	status, err = eng.RedemptionStatusOf(testRedeemer, index)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != pool.RedemptionCollected {
		t.Fatalf("expected collected, got %s", status)
	}
	unclaimed, err = eng.UnclaimedPoolCollateral(index)
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Sign() != 0 {
		t.Fatalf("expected zero unclaimed, got %s", unclaimed)
	}

	// A second collection pays nothing and emits nothing.
	emitted := len(emitter.events)
	governanceAmount, collateralAmount, err = eng.CollectRedemption(testRedeemer, index)
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if governanceAmount.Sign() != 0 || collateralAmount.Sign() != 0 {
		t.Fatalf("expected empty second collection, got gov=%s col=%s", governanceAmount, collateralAmount)
	}
	if len(emitter.events) != emitted {
		t.Fatal("empty collection must not emit")
	}
}

func TestRedeemGovernanceLeg(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	if err := eng.SetCollateralRatio(testOwner, big.NewInt(0)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	if err := m.Mint(dollarToken, testPool, testRedeemer, scale18(100)); err != nil {
		t.Fatalf("fund dollar: %v", err)
	}

	collateralOut, governanceOut, err := eng.RedeemDollar(context.Background(), testRedeemer, index, scale18(100), nil, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if collateralOut.Sign() != 0 {
		t.Fatalf("expected no collateral at 0%% ratio, got %s", collateralOut)
	}
	if governanceOut.Cmp(scale18(50)) != 0 {
		t.Fatalf("expected 50e18 governance at $2, got %s", governanceOut)
	}
	// The payout is minted into pool custody until collection.
	if got := balance(t, m, govToken, testPool); got.Cmp(scale18(50)) != 0 {
		t.Fatalf("pool custody governance mismatch: %s", got)
	}

	eng.SetBlockHeight(13)
	governanceAmount, collateralAmount, err := eng.CollectRedemption(testRedeemer, index)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collateralAmount.Sign() != 0 {
		t.Fatalf("expected no collateral, got %s", collateralAmount)
	}
	if governanceAmount.Cmp(scale18(50)) != 0 {
		t.Fatalf("expected 50e18 governance paid, got %s", governanceAmount)
	}
	if got := balance(t, m, govToken, testRedeemer); got.Cmp(scale18(50)) != 0 {
		t.Fatalf("redeemer governance mismatch: %s", got)
	}
}

func TestRedeemPegGuardInclusive(t *testing.T) {
	eng, m, prices := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	fund(t, m, lusdToken, testPool, scale18(200))
	if err := m.Mint(dollarToken, testPool, testRedeemer, scale18(100)); err != nil {
		t.Fatalf("fund dollar: %v", err)
	}

	prices.dollar = big.NewInt(1_000_001)
	_, _, err := eng.RedeemDollar(context.Background(), testRedeemer, index, scale18(10), nil, nil)
	if !errors.Is(err, pool.ErrDollarPriceTooHigh) {
		t.Fatalf("expected ErrDollarPriceTooHigh, got %v", err)
	}

	prices.dollar = big.NewInt(1_000_000)
	if _, _, err := eng.RedeemDollar(context.Background(), testRedeemer, index, scale18(10), nil, nil); err != nil {
		t.Fatalf("redeem at threshold: %v", err)
	}
}

func TestRedeemInsufficientFreeCollateral(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	fund(t, m, lusdToken, testPool, scale18(50))
	if err := m.Mint(dollarToken, testPool, testRedeemer, scale18(100)); err != nil {
		t.Fatalf("fund dollar: %v", err)
	}

	_, _, err := eng.RedeemDollar(context.Background(), testRedeemer, index, scale18(100), nil, nil)
	if !errors.Is(err, pool.ErrInsufficientPoolCollateral) {
		t.Fatalf("expected ErrInsufficientPoolCollateral, got %v", err)
	}

	// When the pool cannot cover the payout, that error wins even if the
	// caller's slippage floor would also reject it.
	_, _, err = eng.RedeemDollar(context.Background(), testRedeemer, index, scale18(100), nil, scale18(150))
	if !errors.Is(err, pool.ErrInsufficientPoolCollateral) {
		t.Fatalf("expected ErrInsufficientPoolCollateral over slippage, got %v", err)
	}
}

func TestRedeemRestartsDelay(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	fund(t, m, lusdToken, testPool, scale18(200))
	if err := m.Mint(dollarToken, testPool, testRedeemer, scale18(100)); err != nil {
		t.Fatalf("fund dollar: %v", err)
	}

	if _, _, err := eng.RedeemDollar(context.Background(), testRedeemer, index, scale18(50), nil, nil); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	eng.SetBlockHeight(12)
	if _, _, err := eng.RedeemDollar(context.Background(), testRedeemer, index, scale18(50), nil, nil); err != nil {
		t.Fatalf("second redeem: %v", err)
	}

	// The second staging at height 12 restarts the clock for everything.
	eng.SetBlockHeight(14)
	if _, _, err := eng.CollectRedemption(testRedeemer, index); !errors.Is(err, pool.ErrRedemptionDelay) {
		t.Fatalf("expected ErrRedemptionDelay, got %v", err)
	}
	eng.SetBlockHeight(15)
	_, collateralAmount, err := eng.CollectRedemption(testRedeemer, index)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collateralAmount.Cmp(scale18(100)) != 0 {
		t.Fatalf("expected both stagings paid together, got %s", collateralAmount)
	}
}

func TestAmoMinterBorrow(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	fund(t, m, lusdToken, testPool, scale18(100))
	minterAddr := common.HexToAddress("0x93")
	ctx := context.Background()

	if err := eng.AmoMinterBorrow(ctx, minterAddr, scale18(10)); !errors.Is(err, pool.ErrAmoMinterNotEnabled) {
		t.Fatalf("expected ErrAmoMinterNotEnabled, got %v", err)
	}
	if err := eng.EnableAmoMinter(testOwner, minterAddr, index); err != nil {
		t.Fatalf("enable minter: %v", err)
	}
	if err := eng.AmoMinterBorrow(ctx, minterAddr, scale18(60)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if got := balance(t, m, lusdToken, minterAddr); got.Cmp(scale18(60)) != 0 {
		t.Fatalf("minter balance mismatch: %s", got)
	}
	if err := eng.AmoMinterBorrow(ctx, minterAddr, scale18(50)); !errors.Is(err, pool.ErrInsufficientPoolCollateral) {
		t.Fatalf("expected ErrInsufficientPoolCollateral, got %v", err)
	}

	// Staged redemption liabilities shrink what an AMO can borrow.
	if err := m.PutUnclaimedCollateral(index, scale18(30)); err != nil {
		t.Fatalf("put unclaimed: %v", err)
	}
	if err := eng.AmoMinterBorrow(ctx, minterAddr, scale18(20)); !errors.Is(err, pool.ErrInsufficientPoolCollateral) {
		t.Fatalf("expected ErrInsufficientPoolCollateral with liabilities, got %v", err)
	}
	if err := eng.AmoMinterBorrow(ctx, minterAddr, scale18(10)); err != nil {
		t.Fatalf("borrow within free: %v", err)
	}

	if err := eng.ToggleMintRedeemBorrow(testOwner, index, pool.ToggleBorrow); err != nil {
		t.Fatalf("pause borrow: %v", err)
	}
	if err := eng.AmoMinterBorrow(ctx, minterAddr, scale18(1)); !errors.Is(err, pool.ErrBorrowPaused) {
		t.Fatalf("expected ErrBorrowPaused, got %v", err)
	}

	if err := eng.DisableAmoMinter(testOwner, minterAddr); err != nil {
		t.Fatalf("disable minter: %v", err)
	}
	if err := eng.AmoMinterBorrow(ctx, minterAddr, scale18(1)); !errors.Is(err, pool.ErrAmoMinterNotEnabled) {
		t.Fatalf("expected ErrAmoMinterNotEnabled after disable, got %v", err)
	}
}

func TestMintEmitsEvent(t *testing.T) {
	eng, m, _ := newTestEngine(t)
	emitter := &recordingEmitter{}
	eng.SetEmitter(emitter)
	index := addEnabledCollateral(t, eng, lusdToken, lusdFeed, scale18(1_000_000))
	fund(t, m, lusdToken, testMinter, scale18(1000))

	if _, _, _, err := eng.MintDollar(context.Background(), testMinter, index, scale18(100), nil, nil, nil, false); err != nil {
		t.Fatalf("mint: %v", err)
	}
	evt, ok := emitter.last().(events.PoolMinted)
	if !ok {
		t.Fatalf("expected PoolMinted, got %T", emitter.last())
	}
	if evt.Minter != testMinter || evt.CollateralIndex != index {
		t.Fatalf("event mismatch: %+v", evt)
	}
	if evt.DollarOut.Cmp(scale18(100)) != 0 {
		t.Fatalf("event amount mismatch: %s", evt.DollarOut)
	}
}
