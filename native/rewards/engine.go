package rewards

import (
	"errors"
	"math/big"

	"bhrtchain/core/events"
	nativecommon "bhrtchain/native/common"
)

var (
	errNilState            = errors.New("rewards engine: state not configured")
	errInvalidAmount       = errors.New("rewards engine: amount must be positive")
	ErrNotOnboarded        = errors.New("rewards engine: miner not onboarded")
	ErrOverflow            = errors.New("rewards engine: arithmetic overflow")
	ErrInsufficientBalance = errors.New("rewards engine: amount exceeds balance")
)

const moduleName = "rewards"

// DefaultMultiplier converts declared hashrate power into minted BHRT.
const DefaultMultiplier = 10

// TokenSymbol is the reward token's registry symbol.
const TokenSymbol = "BHRT"

// Storage abstracts the subset of state manager functionality required by the
// reward ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	MintToken(addr []byte, symbol string, amount *big.Int) error
	BurnToken(addr []byte, symbol string, amount *big.Int) error
	Balance(addr []byte, symbol string) (*big.Int, error)
}

// Engine mints and burns the hashrate-backed reward token and keeps the
// per-miner ledger in sync.
type Engine struct {
	state      Storage
	multiplier uint64
	emitter    events.Emitter
	pauses     nativecommon.PauseView
}

// NewEngine constructs a reward engine with the default power multiplier.
func NewEngine() *Engine {
	return &Engine{multiplier: DefaultMultiplier, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state Storage) { e.state = state }

// SetMultiplier overrides the power-to-token multiplier.
func (e *Engine) SetMultiplier(multiplier uint64) {
	if e == nil || multiplier == 0 {
		return
	}
	e.multiplier = multiplier
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

// MinerInfo loads the ledger entry for the miner, or nil when absent.
func (e *Engine) MinerInfo(miner []byte) (*MinerInfo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	info := new(MinerInfo)
	ok, err := e.state.KVGet(minerInfoKey(miner), info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return info, nil
}

// PutMinerInfo persists the ledger entry. Used by the identity issuer when
// creating the record atomically with the membership NFT.
func (e *Engine) PutMinerInfo(info *MinerInfo) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if info == nil || len(info.Miner) == 0 {
		return errors.New("rewards engine: miner info must carry an address")
	}
	return e.state.KVPut(minerInfoKey(info.Miner), info)
}

// DeleteMinerInfo removes the ledger entry during revocation.
func (e *Engine) DeleteMinerInfo(miner []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.KVDelete(minerInfoKey(miner))
}

// RewardAmount computes power times the configured multiplier, failing closed
// on overflow rather than wrapping.
func (e *Engine) RewardAmount(power uint64) (uint64, error) {
	if power == 0 {
		return 0, nil
	}
	amount := power * e.multiplier
	if amount/e.multiplier != power {
		return 0, ErrOverflow
	}
	return amount, nil
}

// Mint credits power times the multiplier to an onboarded miner and updates
// the ledger entry additively so repeated top-ups accumulate.
func (e *Engine) Mint(miner []byte, power uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if power == 0 {
		return nil, errInvalidAmount
	}
	info, err := e.MinerInfo(miner)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNotOnboarded
	}
	amount, err := e.RewardAmount(power)
	if err != nil {
		return nil, err
	}
	newPower := info.HashratePower + power
	if newPower < info.HashratePower {
		return nil, ErrOverflow
	}
	newMinted := info.MintAmount + amount
	if newMinted < info.MintAmount {
		return nil, ErrOverflow
	}

	minted := new(big.Int).SetUint64(amount)
	if err := e.state.MintToken(miner, TokenSymbol, minted); err != nil {
		return nil, err
	}
	info.HashratePower = newPower
	info.MintAmount = newMinted
	if err := e.PutMinerInfo(info); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.RewardMinted{Miner: append([]byte(nil), miner...), Power: power, Amount: minted})
	return minted, nil
}

// Burn debits the amount from the miner's reward balance. Used by revocation
// and by stablecoin settlement flows.
func (e *Engine) Burn(miner []byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	balance, err := e.state.Balance(miner, TokenSymbol)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.state.BurnToken(miner, TokenSymbol, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.RewardBurned{Miner: append([]byte(nil), miner...), Amount: new(big.Int).Set(amount)})
	return nil
}

// BurnAll clears the miner's entire reward balance and returns the burned
// amount. A zero balance is a no-op.
func (e *Engine) BurnAll(miner []byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	balance, err := e.state.Balance(miner, TokenSymbol)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := e.Burn(miner, balance); err != nil {
		return nil, err
	}
	return balance, nil
}
