package core

import (
	"bytes"
	"errors"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"bhrtchain/core/events"
	"bhrtchain/core/state"
	"bhrtchain/core/types"
	"bhrtchain/native/amm"
	"bhrtchain/native/identity"
	"bhrtchain/native/registry"
	"bhrtchain/native/rewards"
	"bhrtchain/native/stable"
	"bhrtchain/observability/metrics"
	"bhrtchain/storage"
)

var (
	ErrAccountInUse     = errors.New("ledger: account locked by another submission")
	ErrMissingSignature = errors.New("ledger: caller signature missing")
	ErrUnknownOp        = errors.New("ledger: unknown operation")
	errInvalidCaller    = errors.New("ledger: caller address must be 20 bytes")
)

// Op names a ledger operation.
type Op string

const (
	OpRegistryApprove  Op = "registry.approve"
	OpIdentityOnboard  Op = "identity.onboard"
	OpIdentityRevoke   Op = "identity.revoke"
	OpRewardMint       Op = "rewards.mint"
	OpRewardBurn       Op = "rewards.burn"
	OpAmmInitialize    Op = "amm.initialize"
	OpAmmDeposit       Op = "amm.deposit"
	OpAmmSwap          Op = "amm.swap"
	OpAmmWithdraw      Op = "amm.withdraw"
	OpStableInitialize Op = "stable.initialize"
	OpStableSetPrice   Op = "stable.setPrice"
	OpStableOpen       Op = "stable.openPosition"
	OpStableLiquidate  Op = "stable.liquidate"
	OpStableSettle     Op = "stable.settle"
)

// Instruction is the flat submission envelope. Each operation reads the
// subset of fields it needs; the rest stay zero.
type Instruction struct {
	Op       Op
	Caller   []byte
	Target   []byte
	Name     string
	URI      string
	Power    uint64
	FeeBps   uint64
	Price    uint64
	AToB     bool
	Amount   *big.Int
	AmountB  *big.Int
	LPAmount *big.Int
	MinA     *big.Int
	MinB     *big.Int
	MinOut   *big.Int
}

// Receipt records the outcome of one committed instruction.
type Receipt struct {
	Op     Op
	Events []events.Event
}

// recorder collects the events an instruction emits so they can be attached
// to the receipt after commit.
type recorder struct {
	events []events.Event
}

func (r *recorder) Emit(ev events.Event) {
	r.events = append(r.events, ev)
}

// Ledger is the transaction boundary of the node: it serializes access to the
// accounts an instruction touches, runs the engines against a buffered
// overlay, and commits only on success.
type Ledger struct {
	db        storage.Database
	programID []byte
	log       *slog.Logger
	metrics   *metrics.LedgerMetrics

	rewardMultiplier uint64
	registryCapacity int
	ammFeeBps        uint64
	stableRatioBps   uint64
	stableThreshBps  uint64
	stablePenaltyPct uint64
	stablePrice      uint64

	lockMu sync.Mutex
	locked map[string]struct{}

	pauseMu sync.RWMutex
	paused  map[string]bool
}

// NewLedger constructs a ledger over the backing database. programID is the
// 20-byte program identity used for vault derivation.
func NewLedger(db storage.Database, programID []byte) *Ledger {
	return &Ledger{
		db:        db,
		programID: append([]byte(nil), programID...),
		log:       slog.Default(),
		metrics:   metrics.Ledger(),
		locked:    make(map[string]struct{}),
		paused:    make(map[string]bool),
	}
}

// SetLogger overrides the ledger's structured logger.
func (l *Ledger) SetLogger(log *slog.Logger) {
	if l == nil || log == nil {
		return
	}
	l.log = log
}

// SetRewardMultiplier overrides the power-to-token multiplier applied on
// reward mints.
func (l *Ledger) SetRewardMultiplier(multiplier uint64) {
	if l == nil || multiplier == 0 {
		return
	}
	l.rewardMultiplier = multiplier
}

// SetRegistryCapacity overrides the approved-set capacity bound.
func (l *Ledger) SetRegistryCapacity(capacity int) {
	if l == nil || capacity <= 0 {
		return
	}
	l.registryCapacity = capacity
}

// SetAmmFeeBps sets the pool fee used when an initialize instruction leaves
// the fee unspecified.
func (l *Ledger) SetAmmFeeBps(feeBps uint64) {
	if l == nil || feeBps == 0 {
		return
	}
	l.ammFeeBps = feeBps
}

// SetStableParams overrides the stablecoin risk parameters and the initial
// oracle price. Zero values leave the engine defaults in place.
func (l *Ledger) SetStableParams(collateralRatioBps, liquidationThresholdBps, penaltyRewardPct, initialPrice uint64) {
	if l == nil {
		return
	}
	l.stableRatioBps = collateralRatioBps
	l.stableThreshBps = liquidationThresholdBps
	l.stablePenaltyPct = penaltyRewardPct
	l.stablePrice = initialPrice
}

// SetPaused toggles the pause flag for a named module.
func (l *Ledger) SetPaused(module string, paused bool) {
	if l == nil || module == "" {
		return
	}
	l.pauseMu.Lock()
	l.paused[module] = paused
	l.pauseMu.Unlock()
}

// IsPaused implements nativecommon.PauseView for the engines.
func (l *Ledger) IsPaused(module string) bool {
	if l == nil {
		return false
	}
	l.pauseMu.RLock()
	defer l.pauseMu.RUnlock()
	return l.paused[module]
}

type engineSet struct {
	registry *registry.Engine
	rewards  *rewards.Engine
	identity *identity.Engine
	amm      *amm.Engine
	stable   *stable.Engine
}

func (l *Ledger) engines(manager *state.Manager, rec *recorder) *engineSet {
	reg := registry.NewEngine()
	reg.SetState(manager)
	reg.SetEmitter(rec)
	reg.SetPauses(l)
	if l.registryCapacity > 0 {
		reg.SetCapacity(l.registryCapacity)
	}

	rew := rewards.NewEngine()
	rew.SetState(manager)
	rew.SetEmitter(rec)
	rew.SetPauses(l)
	if l.rewardMultiplier > 0 {
		rew.SetMultiplier(l.rewardMultiplier)
	}

	ident := identity.NewEngine(reg, rew)
	ident.SetState(manager)
	ident.SetEmitter(rec)
	ident.SetPauses(l)

	pool := amm.NewEngine(l.programID)
	pool.SetState(manager)
	pool.SetEmitter(rec)
	pool.SetPauses(l)

	mint := stable.NewEngine(l.programID)
	mint.SetState(manager)
	mint.SetEmitter(rec)
	mint.SetPauses(l)
	mint.SetRiskParams(l.stableRatioBps, l.stableThreshBps, l.stablePenaltyPct)
	if l.stablePrice > 0 {
		mint.SetInitialPrice(l.stablePrice)
	}

	return &engineSet{registry: reg, rewards: rew, identity: ident, amm: pool, stable: mint}
}

// Shared-record lock identities. Account addresses are raw 20-byte strings,
// so the slash-prefixed names can never collide with them.
const (
	lockRegistry = "module/registry"
	lockRewards  = "module/rewards"
	lockAMM      = "module/amm"
	lockStable   = "module/stable"
)

// sharedLocks names the singleton records an operation read-modify-writes
// beyond the touched accounts: registry program state, token supplies, pool
// config and vaults, stablecoin config, feed, and vault.
func sharedLocks(op Op) []string {
	switch op {
	case OpRegistryApprove:
		return []string{lockRegistry}
	case OpIdentityOnboard, OpIdentityRevoke:
		return []string{lockRegistry, lockRewards}
	case OpRewardMint, OpRewardBurn:
		return []string{lockRewards}
	case OpAmmInitialize, OpAmmDeposit, OpAmmSwap, OpAmmWithdraw:
		return []string{lockAMM}
	case OpStableInitialize, OpStableSetPrice, OpStableOpen, OpStableLiquidate, OpStableSettle:
		return []string{lockStable}
	}
	return nil
}

// lockKeys lists the lock identities a submission must hold: every touched
// account plus the shared records the operation mutates, deduplicated and
// sorted so acquisition is deterministic.
func lockKeys(instr Instruction) []string {
	seen := make(map[string]struct{}, 4)
	keys := make([]string, 0, 4)
	add := func(k string) {
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, addr := range [][]byte{instr.Caller, instr.Target} {
		if len(addr) > 0 {
			add(string(addr))
		}
	}
	for _, k := range sharedLocks(instr.Op) {
		add(k)
	}
	sort.Strings(keys)
	return keys
}

func (l *Ledger) tryLock(keys []string) bool {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	for _, k := range keys {
		if _, busy := l.locked[k]; busy {
			return false
		}
	}
	for _, k := range keys {
		l.locked[k] = struct{}{}
	}
	return true
}

func (l *Ledger) unlock(keys []string) {
	l.lockMu.Lock()
	for _, k := range keys {
		delete(l.locked, k)
	}
	l.lockMu.Unlock()
}

// Submit validates the signer set, acquires the touched account locks, and
// executes the instruction inside an overlay transaction. On success the
// overlay commits and the receipt carries every emitted event; on any error
// the overlay is discarded and backing state is untouched.
func (l *Ledger) Submit(instr Instruction, signers [][]byte) (*Receipt, error) {
	if len(instr.Caller) != 20 {
		return nil, errInvalidCaller
	}
	signed := false
	for _, s := range signers {
		if bytes.Equal(s, instr.Caller) {
			signed = true
			break
		}
	}
	if !signed {
		return nil, ErrMissingSignature
	}

	keys := lockKeys(instr)
	if !l.tryLock(keys) {
		l.metrics.ObserveLockContention()
		return nil, ErrAccountInUse
	}
	defer l.unlock(keys)

	overlay := state.NewOverlay(l.db)
	manager := state.NewManager(overlay)
	rec := &recorder{}
	es := l.engines(manager, rec)

	err := l.dispatch(es, instr)
	l.metrics.ObserveInstruction(string(instr.Op), err)
	if err != nil {
		overlay.Discard()
		l.log.Warn("instruction rejected", "op", string(instr.Op), "err", err)
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		l.log.Error("overlay commit failed", "op", string(instr.Op), "err", err)
		return nil, err
	}

	l.metrics.ObserveEvents(len(rec.events))
	return &Receipt{Op: instr.Op, Events: rec.events}, nil
}

func (l *Ledger) dispatch(es *engineSet, instr Instruction) error {
	switch instr.Op {
	case OpRegistryApprove:
		return es.registry.Approve(instr.Caller, instr.Target)
	case OpIdentityOnboard:
		_, err := es.identity.Onboard(instr.Caller, instr.Name, instr.URI, instr.Power)
		return err
	case OpIdentityRevoke:
		target := instr.Target
		if len(target) == 0 {
			target = instr.Caller
		}
		return es.identity.Revoke(instr.Caller, target)
	case OpRewardMint:
		_, err := es.rewards.Mint(instr.Caller, instr.Power)
		return err
	case OpRewardBurn:
		return es.rewards.Burn(instr.Caller, instr.Amount)
	case OpAmmInitialize:
		feeBps := instr.FeeBps
		if feeBps == 0 {
			feeBps = l.ammFeeBps
		}
		return es.amm.Initialize(feeBps)
	case OpAmmDeposit:
		_, _, _, err := es.amm.Deposit(instr.Caller, instr.LPAmount, instr.Amount, instr.AmountB)
		return err
	case OpAmmSwap:
		_, err := es.amm.Swap(instr.Caller, instr.AToB, instr.Amount, instr.MinOut)
		return err
	case OpAmmWithdraw:
		_, _, err := es.amm.Withdraw(instr.Caller, instr.LPAmount, instr.MinA, instr.MinB)
		return err
	case OpStableInitialize:
		return es.stable.InitializeConfig(instr.Caller, instr.URI)
	case OpStableSetPrice:
		return es.stable.SetOraclePrice(instr.Caller, instr.Price)
	case OpStableOpen:
		_, err := es.stable.OpenPosition(instr.Caller, instr.Amount)
		return err
	case OpStableLiquidate:
		_, err := es.stable.Liquidate(instr.Caller, instr.Target, instr.Amount)
		return err
	case OpStableSettle:
		_, err := es.stable.Settle(instr.Caller, instr.Amount)
		return err
	default:
		return ErrUnknownOp
	}
}

// ReadAccount loads the account record for the address. A missing account is
// not an error; the caller receives nil.
func (l *Ledger) ReadAccount(addr []byte) (*types.Account, error) {
	manager := state.NewManager(l.db)
	return manager.GetAccount(addr)
}

// Balance reads the live token balance for the address.
func (l *Ledger) Balance(addr []byte, symbol string) (*big.Int, error) {
	manager := state.NewManager(l.db)
	return manager.Balance(addr, symbol)
}
