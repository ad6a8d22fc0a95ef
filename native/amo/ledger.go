package amo

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/events"
	nativecommon "dollarpool/native/common"
)

const moduleName = "amo"

// ledgerState is the persistence surface of the borrow ledger. The concrete
// implementation lives in core/state.
type ledgerState interface {
	IsAmoEnabled(amo common.Address) (bool, error)
	PutAmoEnabled(amo common.Address, enabled bool) error
	Amos() ([]common.Address, error)
	BorrowedBalance(amo common.Address) (*big.Int, error)
	PutBorrowedBalance(amo common.Address, balance *big.Int) error
	TotalBorrowed() (*big.Int, error)
	PutTotalBorrowed(total *big.Int) error
	BorrowCap() (*big.Int, error)
	PutBorrowCap(cap *big.Int) error
}

// PoolBorrower is the single capability the ledger needs from the pool
// engine: moving free collateral out to the minter address.
type PoolBorrower interface {
	AmoMinterBorrow(ctx context.Context, caller common.Address, amount *big.Int) error
}

// TokenLedger is the token-move capability consumed when routing collateral
// between the minter, the AMOs and the pool.
type TokenLedger interface {
	BalanceOf(token, addr common.Address) (*big.Int, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
}

// Ledger tracks how much collateral has been lent out to AMO strategies,
// enforcing a global borrow cap. Balances are signed: an AMO returning more
// than it borrowed drives its balance negative, which the ledger records
// without clamping.
type Ledger struct {
	state         ledgerState
	pool          PoolBorrower
	tokens        TokenLedger
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	owner         common.Address
	minterAddress common.Address
	poolAddress   common.Address
	collateral    common.Address
}

// NewLedger constructs a borrow ledger. The minter address is the ledger's
// own custody account registered as an AMO minter with the pool; collateral
// received back from AMOs is pushed to the pool address.
func NewLedger(owner, minterAddress, poolAddress, collateral common.Address) *Ledger {
	return &Ledger{
		owner:         owner,
		minterAddress: minterAddress,
		poolAddress:   poolAddress,
		collateral:    collateral,
		emitter:       events.NoopEmitter{},
	}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetPool wires the pool borrow capability.
func (l *Ledger) SetPool(pool PoolBorrower) {
	if l == nil {
		return
	}
	l.pool = pool
}

// SetTokens wires the fungible-token ledger.
func (l *Ledger) SetTokens(tokens TokenLedger) {
	if l == nil {
		return
	}
	l.tokens = tokens
}

// SetEmitter installs the event emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetPauses wires the module pause view.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// MinterAddress returns the ledger's custody account.
func (l *Ledger) MinterAddress() common.Address {
	if l == nil {
		return common.Address{}
	}
	return l.minterAddress
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil || l.tokens == nil {
		return ErrNilState
	}
	return nil
}

func (l *Ledger) requireOwner(caller common.Address) error {
	if caller != l.owner {
		return ErrUnauthorized
	}
	return nil
}

// EnableAmo adds the strategy address to the enabled set.
func (l *Ledger) EnableAmo(caller, amo common.Address) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if amo == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := l.state.PutAmoEnabled(amo, true); err != nil {
		return err
	}
	l.emitter.Emit(events.AmoEnabled{Amo: amo})
	return nil
}

// DisableAmo removes the strategy from the enabled set. Any balance it
// already borrowed stays outstanding in the ledger; recovering it requires
// re-enabling the AMO so it can call ReceiveCollateralFromAmo again.
func (l *Ledger) DisableAmo(caller, amo common.Address) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if err := l.state.PutAmoEnabled(amo, false); err != nil {
		return err
	}
	l.emitter.Emit(events.AmoDisabled{Amo: amo})
	return nil
}

// SetBorrowCap updates the global borrow cap.
func (l *Ledger) SetBorrowCap(caller common.Address, cap *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	stored := new(big.Int)
	if cap != nil {
		if cap.Sign() < 0 {
			return ErrInvalidAmount
		}
		stored.Set(cap)
	}
	if err := l.state.PutBorrowCap(stored); err != nil {
		return err
	}
	l.emitter.Emit(events.AmoBorrowCapSet{Cap: stored})
	return nil
}

// GiveCollateralToAmo borrows free pool collateral through the pool engine
// and routes it to the destination AMO, recording the symmetric per-AMO and
// total balance increments.
func (l *Ledger) GiveCollateralToAmo(ctx context.Context, caller, destAmo common.Address, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if l.pool == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	enabled, err := l.state.IsAmoEnabled(destAmo)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrAmoDisabled
	}

	total, err := l.state.TotalBorrowed()
	if err != nil {
		return err
	}
	cap, err := l.state.BorrowCap()
	if err != nil {
		return err
	}
	if cap == nil {
		cap = new(big.Int)
	}
	newTotal := new(big.Int).Add(total, amount)
	if newTotal.Cmp(cap) > 0 {
		return ErrBorrowCapExceeded
	}

	balance, err := l.state.BorrowedBalance(destAmo)
	if err != nil {
		return err
	}

	// The ledger is written only after the pool borrow and the transfer
	// succeed; a failed borrow must not consume cap.
	if err := l.pool.AmoMinterBorrow(ctx, l.minterAddress, amount); err != nil {
		return err
	}
	if err := l.tokens.Transfer(l.collateral, l.minterAddress, destAmo, amount); err != nil {
		return err
	}

	if err := l.state.PutBorrowedBalance(destAmo, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	if err := l.state.PutTotalBorrowed(newTotal); err != nil {
		return err
	}

	l.emitter.Emit(events.AmoCollateralGiven{
		Amo:           destAmo,
		Amount:        amount,
		TotalBorrowed: newTotal,
	})
	return nil
}

// ReceiveCollateralFromAmo pulls collateral from the calling AMO back into
// pool custody and decrements the balances symmetrically. There is no
// floor-at-zero: an AMO returning more than it borrowed drives its balance
// negative.
func (l *Ledger) ReceiveCollateralFromAmo(ctx context.Context, callerAmo common.Address, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	enabled, err := l.state.IsAmoEnabled(callerAmo)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrAmoDisabled
	}

	balance, err := l.state.BorrowedBalance(callerAmo)
	if err != nil {
		return err
	}
	total, err := l.state.TotalBorrowed()
	if err != nil {
		return err
	}
	newTotal := new(big.Int).Sub(total, amount)

	// Tokens move first; the decrements land only once the collateral is
	// back in pool custody.
	if err := l.tokens.Transfer(l.collateral, callerAmo, l.poolAddress, amount); err != nil {
		return err
	}
	if err := l.state.PutBorrowedBalance(callerAmo, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	if err := l.state.PutTotalBorrowed(newTotal); err != nil {
		return err
	}

	l.emitter.Emit(events.AmoCollateralReceived{
		Amo:           callerAmo,
		Amount:        amount,
		TotalBorrowed: newTotal,
	})
	return nil
}

// BorrowedBalance returns the signed net borrowed amount for the AMO.
func (l *Ledger) BorrowedBalance(amo common.Address) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.state.BorrowedBalance(amo)
}

// TotalBorrowed returns the signed sum over all AMO balances.
func (l *Ledger) TotalBorrowed() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.state.TotalBorrowed()
}

// BorrowCap returns the global borrow cap. Nothing can be given while the
// cap is zero.
func (l *Ledger) BorrowCap() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.state.BorrowCap()
}

// IsEnabled reports whether the AMO address may give or receive collateral.
func (l *Ledger) IsEnabled(amo common.Address) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	return l.state.IsAmoEnabled(amo)
}

// Amos lists every AMO address the ledger has ever enabled, in registration
// order.
func (l *Ledger) Amos() ([]common.Address, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.state.Amos()
}
