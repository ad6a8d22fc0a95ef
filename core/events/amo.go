package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/types"
)

const (
	// TypeAmoEnabled is emitted when an AMO strategy address is enabled on
	// the borrow ledger.
	TypeAmoEnabled = "amo.enabled"
	// TypeAmoDisabled is emitted when an AMO strategy address is disabled.
	TypeAmoDisabled = "amo.disabled"
	// TypeAmoCollateralGiven is emitted when the minter routes pool
	// collateral to an AMO.
	TypeAmoCollateralGiven = "amo.collateral_given"
	// TypeAmoCollateralReceived is emitted when an AMO returns collateral to
	// the pool.
	TypeAmoCollateralReceived = "amo.collateral_received"
	// TypeAmoBorrowCapSet is emitted when the global borrow cap changes.
	TypeAmoBorrowCapSet = "amo.borrow_cap_set"
)

type AmoEnabled struct {
	Amo common.Address
}

func (AmoEnabled) EventType() string { return TypeAmoEnabled }

func (e AmoEnabled) Event() *types.Event {
	return &types.Event{
		Type: TypeAmoEnabled,
		Attributes: map[string]string{
			"amo": e.Amo.Hex(),
		},
	}
}

type AmoDisabled struct {
	Amo common.Address
}

func (AmoDisabled) EventType() string { return TypeAmoDisabled }

func (e AmoDisabled) Event() *types.Event {
	return &types.Event{
		Type: TypeAmoDisabled,
		Attributes: map[string]string{
			"amo": e.Amo.Hex(),
		},
	}
}

type AmoCollateralGiven struct {
	Amo           common.Address
	Amount        *big.Int
	TotalBorrowed *big.Int
}

func (AmoCollateralGiven) EventType() string { return TypeAmoCollateralGiven }

func (e AmoCollateralGiven) Event() *types.Event {
	return &types.Event{
		Type: TypeAmoCollateralGiven,
		Attributes: map[string]string{
			"amo":           e.Amo.Hex(),
			"amount":        bigString(e.Amount),
			"totalBorrowed": bigString(e.TotalBorrowed),
		},
	}
}

type AmoCollateralReceived struct {
	Amo           common.Address
	Amount        *big.Int
	TotalBorrowed *big.Int
}

func (AmoCollateralReceived) EventType() string { return TypeAmoCollateralReceived }

func (e AmoCollateralReceived) Event() *types.Event {
	return &types.Event{
		Type: TypeAmoCollateralReceived,
		Attributes: map[string]string{
			"amo":           e.Amo.Hex(),
			"amount":        bigString(e.Amount),
			"totalBorrowed": bigString(e.TotalBorrowed),
		},
	}
}

type AmoBorrowCapSet struct {
	Cap *big.Int
}

func (AmoBorrowCapSet) EventType() string { return TypeAmoBorrowCapSet }

func (e AmoBorrowCapSet) Event() *types.Event {
	return &types.Event{
		Type: TypeAmoBorrowCapSet,
		Attributes: map[string]string{
			"cap": bigString(e.Cap),
		},
	}
}
