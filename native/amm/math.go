package amm

import "math/big"

var basisPoints = big.NewInt(10_000)

// initialShares prices the very first deposit as the geometric mean of the two
// amounts, floor(sqrt(a*b)), so the share value is independent of the ratio
// the first provider chooses.
func initialShares(amountA, amountB *big.Int) *big.Int {
	product := new(big.Int).Mul(amountA, amountB)
	return product.Sqrt(product)
}

// proportionalAmount computes reserve*shares/totalShares with truncation
// toward zero. Used for both deposit requirements and withdrawal payouts so
// rounding always favors the pool.
func proportionalAmount(reserve, shares, totalShares *big.Int) *big.Int {
	if totalShares == nil || totalShares.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(reserve, shares)
	return out.Quo(out, totalShares)
}

// effectiveInput applies the trading fee: amountIn*(10000-feeBps)/10000,
// truncated.
func effectiveInput(amountIn *big.Int, feeBps uint64) *big.Int {
	keep := new(big.Int).SetUint64(10_000 - feeBps)
	eff := new(big.Int).Mul(amountIn, keep)
	return eff.Quo(eff, basisPoints)
}

// swapOutput solves the constant-product curve for the output amount:
// reserveOut - ceil(reserveIn*reserveOut / (reserveIn+effectiveIn)). Rounding
// the subtracted term up keeps the post-swap product at or above the pre-swap
// product, so the pool never leaks value to rounding.
func swapOutput(reserveIn, reserveOut, effectiveIn *big.Int) *big.Int {
	if effectiveIn.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(reserveIn, reserveOut)
	den := new(big.Int).Add(reserveIn, effectiveIn)
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	out := new(big.Int).Sub(reserveOut, quo)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
