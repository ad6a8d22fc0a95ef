package pool

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralRatio returns the configured 6-decimal collateral ratio.
func (e *Engine) CollateralRatio() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.settings()
	if err != nil {
		return nil, err
	}
	return bigOrZero(st.CollateralRatio), nil
}

// CollateralInformation returns a copy of the record at index.
func (e *Engine) CollateralInformation(index uint64) (*CollateralInformation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	info, err := e.collateral(index)
	if err != nil {
		return nil, err
	}
	return info.Clone(), nil
}

// AllCollaterals returns every registered collateral record in index order.
func (e *Engine) AllCollaterals() ([]*CollateralInformation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	count, err := e.state.CollateralCount()
	if err != nil {
		return nil, err
	}
	out := make([]*CollateralInformation, 0, count)
	for i := uint64(0); i < count; i++ {
		info, err := e.collateral(i)
		if err != nil {
			return nil, err
		}
		out = append(out, info.Clone())
	}
	return out, nil
}

// FreeCollateralBalance returns the pool balance at index that is not pledged
// to pending redemptions. Collateral borrowed by AMOs has already left the
// balance and needs no further exclusion.
func (e *Engine) FreeCollateralBalance(index uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.settings()
	if err != nil {
		return nil, err
	}
	info, err := e.collateral(index)
	if err != nil {
		return nil, err
	}
	return e.freeCollateral(st, info)
}

// CollateralUsdBalance sums the pool's custody balances across all collaterals
// at their cached prices, expressed as an 18-decimal USD amount. Collaterals
// with no refreshed price contribute zero.
func (e *Engine) CollateralUsdBalance() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.settings()
	if err != nil {
		return nil, err
	}
	count, err := e.state.CollateralCount()
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for i := uint64(0); i < count; i++ {
		info, err := e.collateral(i)
		if err != nil {
			return nil, err
		}
		balance, err := e.tokens.BalanceOf(info.Token, st.PoolAddress)
		if err != nil {
			return nil, err
		}
		total.Add(total, collateralUsdValue(balance, info.Price, info.MissingDecimals))
	}
	return total, nil
}

// RedeemCollateralBalance returns the staged collateral payout for the
// redeemer at index.
func (e *Engine) RedeemCollateralBalance(redeemer common.Address, index uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	record, err := e.state.Redemption(redeemer, index)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Status != RedemptionPending {
		return new(big.Int), nil
	}
	return bigOrZero(record.Collateral), nil
}

// RedeemGovernanceBalance returns the staged governance payout for the
// redeemer across all collateral indices.
func (e *Engine) RedeemGovernanceBalance(redeemer common.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.RedeemGovernanceBalance(redeemer)
}

// RedemptionStatusOf reports where the redeemer stands in the two-phase flow
// for the given collateral index.
func (e *Engine) RedemptionStatusOf(redeemer common.Address, index uint64) (RedemptionStatus, error) {
	if err := e.ready(); err != nil {
		return RedemptionNone, err
	}
	record, err := e.state.Redemption(redeemer, index)
	if err != nil {
		return RedemptionNone, err
	}
	if record == nil {
		return RedemptionNone, nil
	}
	return record.Status, nil
}

// UnclaimedPoolCollateral returns the pool-wide pending payout total at index.
func (e *Engine) UnclaimedPoolCollateral(index uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.UnclaimedCollateral(index)
}

// UnclaimedPoolGovernance returns the pool-wide pending governance total.
func (e *Engine) UnclaimedPoolGovernance() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.UnclaimedGovernance()
}

// DollarPriceUsd returns the live composed Dollar USD price.
func (e *Engine) DollarPriceUsd(ctx context.Context) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.settings()
	if err != nil {
		return nil, err
	}
	return e.dollarPrice(ctx, st)
}

// GovernancePriceUsd returns the live composed Governance USD price.
func (e *Engine) GovernancePriceUsd(ctx context.Context) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.settings()
	if err != nil {
		return nil, err
	}
	return e.governancePrice(ctx, st)
}

// Settings returns a copy of the pool configuration singleton.
func (e *Engine) Settings() (*Settings, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.settings()
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}
