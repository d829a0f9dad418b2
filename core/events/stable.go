package events

import "math/big"

const (
	// TypeStableInitialized marks one-time stablecoin config creation.
	TypeStableInitialized = "stable.initialized"
	// TypeStablePriceUpdated marks an oracle price overwrite by the authority.
	TypeStablePriceUpdated = "stable.priceUpdated"
	// TypeStablePositionOpened marks collateral deposit plus debt mint.
	TypeStablePositionOpened = "stable.positionOpened"
	// TypeStableLiquidated marks a third-party liquidation.
	TypeStableLiquidated = "stable.liquidated"
	// TypeStableSettled marks owner debt settlement.
	TypeStableSettled = "stable.settled"
)

// StableInitialized records creation of the stablecoin config and vault.
type StableInitialized struct {
	URI          string
	InitialPrice uint64
}

func (StableInitialized) EventType() string { return TypeStableInitialized }

// StablePriceUpdated records an oracle feed overwrite.
type StablePriceUpdated struct {
	OldPrice uint64
	NewPrice uint64
}

func (StablePriceUpdated) EventType() string { return TypeStablePriceUpdated }

// StablePositionOpened records a new or increased debt position.
type StablePositionOpened struct {
	Owner      []byte
	Collateral *big.Int
	DebtMinted *big.Int
	Price      uint64
}

func (StablePositionOpened) EventType() string { return TypeStablePositionOpened }

// StableLiquidated records a liquidation against an unhealthy position.
type StableLiquidated struct {
	Liquidator []byte
	Owner      []byte
	Repaid     *big.Int
	Seized     *big.Int
	Closed     bool
}

func (StableLiquidated) EventType() string { return TypeStableLiquidated }

// StableSettled records owner-side debt settlement.
type StableSettled struct {
	Owner    []byte
	Repaid   *big.Int
	Unlocked *big.Int
	Closed   bool
}

func (StableSettled) EventType() string { return TypeStableSettled }
