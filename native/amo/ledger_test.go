package amo_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/state"
	"dollarpool/native/amo"
	nativecommon "dollarpool/native/common"
	"dollarpool/storage"
)

var (
	ledgerOwner = common.HexToAddress("0xa1")
	minterAddr  = common.HexToAddress("0xa2")
	poolAddr    = common.HexToAddress("0xa3")
	collateral  = common.HexToAddress("0xa4")
	faucet      = common.HexToAddress("0xa5")
	firstAmo    = common.HexToAddress("0xb1")
	secondAmo   = common.HexToAddress("0xb2")
)

// fakePool hands out pool custody balance on demand, standing in for the pool
// engine's borrow gate.
type fakePool struct {
	m   *state.Manager
	err error
}

func (f *fakePool) AmoMinterBorrow(_ context.Context, caller common.Address, amount *big.Int) error {
	if f.err != nil {
		return f.err
	}
	return f.m.Transfer(collateral, poolAddr, caller, amount)
}

type pausedModules map[string]bool

func (p pausedModules) IsPaused(module string) bool { return p[module] }

func newTestLedger(t *testing.T) (*amo.Ledger, *state.Manager) {
	t.Helper()
	m := state.NewManager(storage.NewMemDB())
	if err := m.RegisterToken(collateral, "LUSD", "LUSD", 18); err != nil {
		t.Fatalf("register collateral: %v", err)
	}
	if err := m.SetMinter(collateral, faucet); err != nil {
		t.Fatalf("set minter: %v", err)
	}
	if err := m.Mint(collateral, faucet, poolAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("fund pool: %v", err)
	}
	l := amo.NewLedger(ledgerOwner, minterAddr, poolAddr, collateral)
	l.SetState(m)
	l.SetTokens(m)
	l.SetPool(&fakePool{m: m})
	return l, m
}

func enableAndFund(t *testing.T, l *amo.Ledger, cap *big.Int, amos ...common.Address) {
	t.Helper()
	for _, a := range amos {
		if err := l.EnableAmo(ledgerOwner, a); err != nil {
			t.Fatalf("enable amo: %v", err)
		}
	}
	if err := l.SetBorrowCap(ledgerOwner, cap); err != nil {
		t.Fatalf("set cap: %v", err)
	}
}

func TestEnableAmoGates(t *testing.T) {
	l, _ := newTestLedger(t)
	if err := l.EnableAmo(firstAmo, firstAmo); !errors.Is(err, amo.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := l.EnableAmo(ledgerOwner, common.Address{}); !errors.Is(err, amo.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := l.EnableAmo(ledgerOwner, firstAmo); err != nil {
		t.Fatalf("enable: %v", err)
	}
	enabled, err := l.IsEnabled(firstAmo)
	if err != nil {
		t.Fatalf("is enabled: %v", err)
	}
	if !enabled {
		t.Fatal("expected enabled")
	}
}

func TestSetBorrowCapRejectsNegative(t *testing.T) {
	l, _ := newTestLedger(t)
	if err := l.SetBorrowCap(ledgerOwner, big.NewInt(-1)); !errors.Is(err, amo.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGiveCollateralEnforcesCap(t *testing.T) {
	l, m := newTestLedger(t)
	ctx := context.Background()

	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(10)); !errors.Is(err, amo.ErrAmoDisabled) {
		t.Fatalf("expected ErrAmoDisabled, got %v", err)
	}
	if err := l.EnableAmo(ledgerOwner, firstAmo); err != nil {
		t.Fatalf("enable: %v", err)
	}
	// The cap defaults to zero: nothing is borrowable until it is raised.
	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(10)); !errors.Is(err, amo.ErrBorrowCapExceeded) {
		t.Fatalf("expected ErrBorrowCapExceeded at zero cap, got %v", err)
	}
	if err := l.SetBorrowCap(ledgerOwner, big.NewInt(100)); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(60)); err != nil {
		t.Fatalf("give: %v", err)
	}
	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(50)); !errors.Is(err, amo.ErrBorrowCapExceeded) {
		t.Fatalf("expected ErrBorrowCapExceeded, got %v", err)
	}
	// Exactly filling the cap is allowed.
	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(40)); err != nil {
		t.Fatalf("give to cap: %v", err)
	}

	got, err := m.BalanceOf(collateral, firstAmo)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 at amo, got %s", got)
	}
	total, err := l.TotalBorrowed()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected total 100, got %s", total)
	}
}

func TestTotalTracksPerAmoBalances(t *testing.T) {
	l, _ := newTestLedger(t)
	enableAndFund(t, l, big.NewInt(500), firstAmo, secondAmo)
	ctx := context.Background()

	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(120)); err != nil {
		t.Fatalf("give first: %v", err)
	}
	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, secondAmo, big.NewInt(80)); err != nil {
		t.Fatalf("give second: %v", err)
	}
	if err := l.ReceiveCollateralFromAmo(ctx, secondAmo, big.NewInt(30)); err != nil {
		t.Fatalf("receive: %v", err)
	}

	first, err := l.BorrowedBalance(firstAmo)
	if err != nil {
		t.Fatalf("first balance: %v", err)
	}
	second, err := l.BorrowedBalance(secondAmo)
	if err != nil {
		t.Fatalf("second balance: %v", err)
	}
	total, err := l.TotalBorrowed()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	sum := new(big.Int).Add(first, second)
	if total.Cmp(sum) != 0 {
		t.Fatalf("total %s diverged from sum %s", total, sum)
	}
	if total.Cmp(big.NewInt(170)) != 0 {
		t.Fatalf("expected total 170, got %s", total)
	}

	amos, err := l.Amos()
	if err != nil {
		t.Fatalf("amos: %v", err)
	}
	if len(amos) != 2 || amos[0] != firstAmo || amos[1] != secondAmo {
		t.Fatalf("unexpected amo index: %v", amos)
	}
}

func TestReceiveAllowsNegativeBalance(t *testing.T) {
	l, m := newTestLedger(t)
	enableAndFund(t, l, big.NewInt(100), firstAmo)
	ctx := context.Background()

	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(50)); err != nil {
		t.Fatalf("give: %v", err)
	}
	// The AMO earned yield elsewhere and returns more than it borrowed.
	if err := m.Mint(collateral, faucet, firstAmo, big.NewInt(25)); err != nil {
		t.Fatalf("fund yield: %v", err)
	}
	if err := l.ReceiveCollateralFromAmo(ctx, firstAmo, big.NewInt(75)); err != nil {
		t.Fatalf("receive: %v", err)
	}

	balance, err := l.BorrowedBalance(firstAmo)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(-25)) != 0 {
		t.Fatalf("expected -25, got %s", balance)
	}
	total, err := l.TotalBorrowed()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total.Cmp(big.NewInt(-25)) != 0 {
		t.Fatalf("expected total -25, got %s", total)
	}
	poolBalance, err := m.BalanceOf(collateral, poolAddr)
	if err != nil {
		t.Fatalf("pool balance: %v", err)
	}
	if poolBalance.Cmp(big.NewInt(1025)) != 0 {
		t.Fatalf("expected pool custody 1025, got %s", poolBalance)
	}
}

func TestFailedBorrowLeavesLedgerUntouched(t *testing.T) {
	l, m := newTestLedger(t)
	enableAndFund(t, l, big.NewInt(100), firstAmo)
	l.SetPool(&fakePool{m: m, err: errors.New("borrow gate closed")})
	ctx := context.Background()

	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(40)); err == nil {
		t.Fatal("expected give to fail when the pool borrow fails")
	}
	total, err := l.TotalBorrowed()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("failed borrow must not consume cap, total %s", total)
	}
	balance, err := l.BorrowedBalance(firstAmo)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("failed borrow must not credit the amo, balance %s", balance)
	}

	// Once the pool recovers the full cap is still available.
	l.SetPool(&fakePool{m: m})
	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(100)); err != nil {
		t.Fatalf("give after recovery: %v", err)
	}
}

func TestFailedReturnLeavesLedgerUntouched(t *testing.T) {
	l, _ := newTestLedger(t)
	enableAndFund(t, l, big.NewInt(100), firstAmo)
	ctx := context.Background()

	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(40)); err != nil {
		t.Fatalf("give: %v", err)
	}
	// The AMO only holds 40, so returning 60 overdraws the token transfer.
	if err := l.ReceiveCollateralFromAmo(ctx, firstAmo, big.NewInt(60)); err == nil {
		t.Fatal("expected receive to fail on an overdrawn transfer")
	}
	balance, err := l.BorrowedBalance(firstAmo)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected 40 still outstanding, got %s", balance)
	}
	total, err := l.TotalBorrowed()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected total 40, got %s", total)
	}
}

func TestReceiveRequiresEnabledAmo(t *testing.T) {
	l, _ := newTestLedger(t)
	enableAndFund(t, l, big.NewInt(100), firstAmo)
	ctx := context.Background()
	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(50)); err != nil {
		t.Fatalf("give: %v", err)
	}
	if err := l.DisableAmo(ledgerOwner, firstAmo); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := l.ReceiveCollateralFromAmo(ctx, firstAmo, big.NewInt(50)); !errors.Is(err, amo.ErrAmoDisabled) {
		t.Fatalf("expected ErrAmoDisabled, got %v", err)
	}
	// The balance stays outstanding while disabled.
	balance, err := l.BorrowedBalance(firstAmo)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected 50 outstanding, got %s", balance)
	}
}

func TestModulePauseGatesLedger(t *testing.T) {
	l, _ := newTestLedger(t)
	enableAndFund(t, l, big.NewInt(100), firstAmo)
	l.SetPauses(pausedModules{"amo": true})
	ctx := context.Background()
	if err := l.GiveCollateralToAmo(ctx, ledgerOwner, firstAmo, big.NewInt(10)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := l.ReceiveCollateralFromAmo(ctx, firstAmo, big.NewInt(10)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}
