package types

// Account is the externally visible record for a ledger address. Token
// balances are tracked separately by the state manager per token symbol; the
// account record carries only identity-level data.
type Account struct {
	Nonce uint64 `json:"nonce"`
	// Username is an optional human-readable handle registered on onboarding.
	Username string `json:"username"`
}
