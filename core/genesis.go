package core

import (
	"errors"

	"bhrtchain/core/state"
	"bhrtchain/native/identity"
	"bhrtchain/native/registry"
	"bhrtchain/native/rewards"
)

// ErrAlreadyInitialized is returned when genesis runs against a database that
// already carries protocol state.
var ErrAlreadyInitialized = errors.New("ledger: genesis already applied")

// BhrtMetadata is the immutable singleton describing the protocol's token and
// NFT collection. It is written exactly once at genesis.
type BhrtMetadata struct {
	TokenSymbol string
	TokenName   string
	Collection  string
	Description string
}

var bhrtMetadataKey = []byte("core/bhrt-metadata")

// Genesis describes the one-time bootstrap of a fresh database.
type Genesis struct {
	Authority        []byte
	TokenSymbol      string
	TokenName        string
	QuoteSymbol      string
	QuoteName        string
	Collection       string
	Description      string
	RegistryCapacity int
}

// DefaultGenesis returns the deployed protocol's bootstrap parameters for the
// given authority.
func DefaultGenesis(authority []byte) Genesis {
	return Genesis{
		Authority:   append([]byte(nil), authority...),
		TokenSymbol: rewards.TokenSymbol,
		TokenName:   "Blockhash Reward Token",
		QuoteSymbol: "USDT",
		QuoteName:   "Tether",
		Collection:  identity.DefaultCollection,
		Description: "Hashrate-backed miner membership",
	}
}

// InitGenesis applies the genesis record: token registrations, the registry
// program state, and the metadata singleton. The whole bootstrap commits
// atomically or not at all.
func (l *Ledger) InitGenesis(gen Genesis) error {
	overlay := state.NewOverlay(l.db)
	manager := state.NewManager(overlay)

	var existing BhrtMetadata
	ok, err := manager.KVGet(bhrtMetadataKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}

	if err := manager.RegisterToken(gen.TokenSymbol, gen.TokenName, 6); err != nil {
		return err
	}
	if err := manager.RegisterToken(gen.QuoteSymbol, gen.QuoteName, 6); err != nil {
		return err
	}

	reg := registry.NewEngine()
	reg.SetState(manager)
	if gen.RegistryCapacity > 0 {
		reg.SetCapacity(gen.RegistryCapacity)
	}
	if err := reg.Initialize(gen.Authority); err != nil {
		return err
	}

	meta := &BhrtMetadata{
		TokenSymbol: gen.TokenSymbol,
		TokenName:   gen.TokenName,
		Collection:  gen.Collection,
		Description: gen.Description,
	}
	if err := manager.KVPut(bhrtMetadataKey, meta); err != nil {
		return err
	}

	if err := overlay.Commit(); err != nil {
		return err
	}
	l.log.Info("genesis applied", "token", gen.TokenSymbol, "collection", gen.Collection)
	return nil
}

// Metadata loads the genesis metadata singleton, or nil before genesis.
func (l *Ledger) Metadata() (*BhrtMetadata, error) {
	manager := state.NewManager(l.db)
	meta := new(BhrtMetadata)
	ok, err := manager.KVGet(bhrtMetadataKey, meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return meta, nil
}
