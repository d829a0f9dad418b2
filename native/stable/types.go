package stable

import "math/big"

// Config is the singleton record for the HST collateralized stablecoin. The
// vault address holds all locked BHRT collateral; totals are maintained on
// every position change so reporting never has to scan positions.
type Config struct {
	Authority        []byte
	URI              string
	StableSymbol     string
	CollateralSymbol string
	Vault            []byte
	TotalCollateral  *big.Int
	TotalMinted      *big.Int
	InvestorCount    uint64
}

// PriceFeed carries the admin-set price of one BHRT in HST units.
type PriceFeed struct {
	Feed uint64
}

// Position tracks one account's collateralized debt. The record is deleted
// once both collateral and debt reach zero.
type Position struct {
	Owner               []byte
	CollateralDeposited *big.Int
	DebtMinted          *big.Int
	PriceAtOpen         uint64
}

var (
	configKey    = []byte("stable/config")
	priceFeedKey = []byte("stable/price-feed")
	positionKey  = []byte("stable/position/")
)

var seedVault = []byte("stable_vault")

func positionStorageKey(owner []byte) []byte {
	key := make([]byte, 0, len(positionKey)+len(owner))
	key = append(key, positionKey...)
	return append(key, owner...)
}
