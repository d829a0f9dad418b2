package identity

import (
	"errors"
	"math/big"
	"strings"

	"bhrtchain/core/events"
	"bhrtchain/core/state"
	nativecommon "bhrtchain/native/common"
	"bhrtchain/native/registry"
	"bhrtchain/native/rewards"
)

var (
	errNilState         = errors.New("identity engine: state not configured")
	errNilRegistry      = errors.New("identity engine: registry not configured")
	errNilRewards       = errors.New("identity engine: reward ledger not configured")
	errInvalidName      = errors.New("identity engine: name must not be empty")
	ErrNotApproved      = errors.New("identity engine: miner not approved")
	ErrAlreadyOnboarded = errors.New("identity engine: miner already onboarded")
	ErrNotOnboarded     = errors.New("identity engine: miner not onboarded")
	ErrUnauthorized     = errors.New("identity engine: caller may not revoke this miner")
)

const moduleName = "identity"

// DefaultCollection names the membership NFT collection.
const DefaultCollection = "BHRT-MINERS"

// Storage abstracts the subset of state manager functionality required by the
// identity issuer.
type Storage interface {
	PutUniqueToken(token *state.UniqueToken) error
	UniqueTokenByOwner(collection string, owner []byte) (*state.UniqueToken, error)
	BurnUniqueToken(collection string, id uint64) error
}

// Engine issues one membership NFT per approved miner and tears identities
// down atomically on revocation. The surrounding ledger transaction provides
// the all-or-nothing boundary; the engine only sequences the mutations.
type Engine struct {
	state      Storage
	registry   *registry.Engine
	rewards    *rewards.Engine
	collection string
	emitter    events.Emitter
	pauses     nativecommon.PauseView
}

// NewEngine constructs an identity engine bound to the registry and reward
// ledger it coordinates with.
func NewEngine(reg *registry.Engine, rew *rewards.Engine) *Engine {
	return &Engine{
		registry:   reg,
		rewards:    rew,
		collection: DefaultCollection,
		emitter:    events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state Storage) { e.state = state }

// SetCollection overrides the NFT collection identifier.
func (e *Engine) SetCollection(collection string) {
	if e == nil || strings.TrimSpace(collection) == "" {
		return
	}
	e.collection = strings.TrimSpace(collection)
}

// SetEmitter wires the engine to an event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil || emitter == nil {
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// Onboard mints the numbered membership NFT for an approved miner, creates
// the reward-ledger entry, and credits the initial hashrate-backed mint. The
// NFT id counter in program state only ever advances.
func (e *Engine) Onboard(miner []byte, name, uri string, power uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if e.registry == nil {
		return 0, errNilRegistry
	}
	if e.rewards == nil {
		return 0, errNilRewards
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if strings.TrimSpace(name) == "" {
		return 0, errInvalidName
	}

	ps, err := e.registry.ProgramState()
	if err != nil {
		return 0, err
	}
	if !ps.Approved(miner) {
		return 0, ErrNotApproved
	}
	if info, err := e.rewards.MinerInfo(miner); err != nil {
		return 0, err
	} else if info != nil {
		return 0, ErrAlreadyOnboarded
	}
	if existing, err := e.state.UniqueTokenByOwner(e.collection, miner); err != nil {
		return 0, err
	} else if existing != nil {
		return 0, ErrAlreadyOnboarded
	}

	ps.NFTIDCounter++
	nftID := ps.NFTIDCounter
	if err := e.registry.PutProgramState(ps); err != nil {
		return 0, err
	}

	token := &state.UniqueToken{
		Collection:         e.collection,
		ID:                 nftID,
		Owner:              append([]byte(nil), miner...),
		Name:               name,
		URI:                uri,
		CollectionVerified: true,
	}
	if err := e.state.PutUniqueToken(token); err != nil {
		return 0, err
	}

	info := &rewards.MinerInfo{
		Miner:               append([]byte(nil), miner...),
		HashrateTokenSymbol: rewards.TokenSymbol,
		Name:                name,
		LegalDocumentURI:    uri,
		NFTID:               nftID,
	}
	if err := e.rewards.PutMinerInfo(info); err != nil {
		return 0, err
	}

	minted := bigZero()
	if power > 0 {
		minted, err = e.rewards.Mint(miner, power)
		if err != nil {
			return 0, err
		}
	}

	e.emitter.Emit(events.MinerOnboarded{
		Miner:  append([]byte(nil), miner...),
		NFTID:  nftID,
		Name:   name,
		URI:    uri,
		Power:  power,
		Minted: minted,
	})
	return nftID, nil
}

// Revoke burns the miner's membership NFT, clears their outstanding reward
// balance, and deletes the reward-ledger entry. Only the program authority or
// the miner themselves may revoke.
func (e *Engine) Revoke(caller, miner []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if e.rewards == nil {
		return errNilRewards
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	ps, err := e.registry.ProgramState()
	if err != nil {
		return err
	}
	if string(caller) != string(ps.Authority) && string(caller) != string(miner) {
		return ErrUnauthorized
	}

	info, err := e.rewards.MinerInfo(miner)
	if err != nil {
		return err
	}
	if info == nil {
		return ErrNotOnboarded
	}
	token, err := e.state.UniqueTokenByOwner(e.collection, miner)
	if err != nil {
		return err
	}
	if token == nil {
		return ErrNotOnboarded
	}

	if err := e.state.BurnUniqueToken(e.collection, token.ID); err != nil {
		return err
	}
	burned, err := e.rewards.BurnAll(miner)
	if err != nil {
		return err
	}
	if err := e.rewards.DeleteMinerInfo(miner); err != nil {
		return err
	}

	e.emitter.Emit(events.MinerRevoked{
		Miner:      append([]byte(nil), miner...),
		NFTID:      token.ID,
		BurnedBHRT: burned,
	})
	return nil
}

func bigZero() *big.Int { return big.NewInt(0) }

// Onboarded reports whether the miner currently holds a membership identity.
func (e *Engine) Onboarded(miner []byte) (bool, error) {
	if e == nil || e.rewards == nil {
		return false, errNilRewards
	}
	info, err := e.rewards.MinerInfo(miner)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}
