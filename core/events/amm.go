package events

import "math/big"

const (
	// TypePoolInitialized marks one-time AMM pool creation.
	TypePoolInitialized = "amm.initialized"
	// TypePoolDeposited marks a liquidity deposit.
	TypePoolDeposited = "amm.deposited"
	// TypePoolSwapped marks an executed swap.
	TypePoolSwapped = "amm.swapped"
	// TypePoolWithdrawn marks a liquidity withdrawal.
	TypePoolWithdrawn = "amm.withdrawn"
)

// PoolInitialized records creation of the constant-product pool.
type PoolInitialized struct {
	FeeBps uint64
}

func (PoolInitialized) EventType() string { return TypePoolInitialized }

// PoolDeposited records the amounts pulled in and LP shares minted.
type PoolDeposited struct {
	Provider []byte
	AmountA  *big.Int
	AmountB  *big.Int
	LPMinted *big.Int
}

func (PoolDeposited) EventType() string { return TypePoolDeposited }

// PoolSwapped records a swap with its realized output.
type PoolSwapped struct {
	Trader    []byte
	AToB      bool
	AmountIn  *big.Int
	AmountOut *big.Int
}

func (PoolSwapped) EventType() string { return TypePoolSwapped }

// PoolWithdrawn records LP redemption.
type PoolWithdrawn struct {
	Provider []byte
	LPBurned *big.Int
	AmountA  *big.Int
	AmountB  *big.Int
}

func (PoolWithdrawn) EventType() string { return TypePoolWithdrawn }
