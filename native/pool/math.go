package pool

import "math/big"

// pricePrecision is the fixed-point scale shared by prices, fees, the
// collateral ratio and both peg thresholds: 1_000_000 represents 100% or $1.
var pricePrecision = big.NewInt(1_000_000)

// PricePrecision returns the pool's 6-decimal fixed-point scale.
func PricePrecision() *big.Int {
	return new(big.Int).Set(pricePrecision)
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// applyFee reduces amount by a 6-decimal fee. Division truncates, matching
// the host ledger's integer semantics.
func applyFee(amount, fee *big.Int) *big.Int {
	if fee == nil || fee.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	keep := new(big.Int).Sub(pricePrecision, fee)
	out := new(big.Int).Mul(amount, keep)
	return out.Quo(out, pricePrecision)
}

// dollarInCollateral converts an 18-decimal dollar amount into raw collateral
// units at the cached 6-decimal price. The missing-decimals divisor lands the
// result back on the token's native scale.
func dollarInCollateral(dollarAmount, price *big.Int, missingDecimals uint8) *big.Int {
	out := new(big.Int).Mul(dollarAmount, pricePrecision)
	out.Quo(out, pow10(missingDecimals))
	return out.Quo(out, price)
}

// dollarInGovernance converts an 18-decimal dollar amount into 18-decimal
// governance units at the supplied 6-decimal governance price.
func dollarInGovernance(dollarAmount, governancePrice *big.Int) *big.Int {
	out := new(big.Int).Mul(dollarAmount, pricePrecision)
	return out.Quo(out, governancePrice)
}

// ratioSplit returns the collateral-backed portion of amount for a 6-decimal
// ratio.
func ratioSplit(amount, ratio *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, ratio)
	return out.Quo(out, pricePrecision)
}

// collateralUsdValue expresses a raw collateral balance as an 18-decimal USD
// amount at the cached 6-decimal price.
func collateralUsdValue(balance, price *big.Int, missingDecimals uint8) *big.Int {
	out := new(big.Int).Mul(balance, pow10(missingDecimals))
	out.Mul(out, bigOrZero(price))
	return out.Quo(out, pricePrecision)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
