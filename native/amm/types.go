package amm

// Config captures the pool parameters for the BHRT/USDT constant-product
// market. Reserves are not stored here: they are the live token balances of
// the two vault addresses, so config and reserves can never drift apart.
type Config struct {
	FeeBps   uint64
	TokenA   string
	TokenB   string
	LPSymbol string
	VaultA   []byte
	VaultB   []byte
	Locked   bool
}

var configKey = []byte("amm/config")

// Seed strings for the deterministic vault addresses.
var (
	seedVaultA = []byte("amm_vault_a")
	seedVaultB = []byte("amm_vault_b")
)
