package amo

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Strategy is the capability set a yield strategy must implement to be
// driven by the pool owner. Any implementation can be registered on the
// ledger; there is no shared base type.
type Strategy interface {
	Deposit(ctx context.Context, amount *big.Int) error
	Withdraw(ctx context.Context, amount *big.Int) error
	ReturnCollateralToMinter(ctx context.Context, amount *big.Int) error
	ClaimRewards(ctx context.Context) (*big.Int, error)
}

// LendingVenue is the minimal supply/withdraw surface of an external lending
// market, in the shape of Aave's pool contract.
type LendingVenue interface {
	Supply(ctx context.Context, token, onBehalfOf common.Address, amount *big.Int) error
	Withdraw(ctx context.Context, token, to common.Address, amount *big.Int) (*big.Int, error)
	ClaimRewards(ctx context.Context, to common.Address) (*big.Int, error)
}

// AaveStrategy deploys borrowed pool collateral into an Aave-style lending
// venue and returns it to the pool through the borrow ledger.
type AaveStrategy struct {
	address    common.Address
	collateral common.Address
	venue      LendingVenue
	ledger     *Ledger
}

// NewAaveStrategy constructs a strategy holding collateral at address.
func NewAaveStrategy(address, collateral common.Address, venue LendingVenue, ledger *Ledger) *AaveStrategy {
	return &AaveStrategy{
		address:    address,
		collateral: collateral,
		venue:      venue,
		ledger:     ledger,
	}
}

// Address returns the strategy's custody account, the address registered on
// the borrow ledger.
func (s *AaveStrategy) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.address
}

func (s *AaveStrategy) ready() error {
	if s == nil || s.venue == nil || s.ledger == nil {
		return fmt.Errorf("amo: aave strategy not configured")
	}
	return nil
}

// Deposit supplies held collateral into the lending venue.
func (s *AaveStrategy) Deposit(ctx context.Context, amount *big.Int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.venue.Supply(ctx, s.collateral, s.address, amount)
}

// Withdraw pulls collateral back from the venue into the strategy's custody.
func (s *AaveStrategy) Withdraw(ctx context.Context, amount *big.Int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	_, err := s.venue.Withdraw(ctx, s.collateral, s.address, amount)
	return err
}

// ReturnCollateralToMinter withdraws from the venue and hands the collateral
// back to the pool through the borrow ledger.
func (s *AaveStrategy) ReturnCollateralToMinter(ctx context.Context, amount *big.Int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, err := s.venue.Withdraw(ctx, s.collateral, s.address, amount); err != nil {
		return err
	}
	return s.ledger.ReceiveCollateralFromAmo(ctx, s.address, amount)
}

// ClaimRewards collects venue incentives into the strategy's custody and
// returns the claimed amount.
func (s *AaveStrategy) ClaimRewards(ctx context.Context) (*big.Int, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.venue.ClaimRewards(ctx, s.address)
}
