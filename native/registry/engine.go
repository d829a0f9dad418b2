package registry

import (
	"errors"

	"bhrtchain/core/events"
	nativecommon "bhrtchain/native/common"
)

var (
	errNilState        = errors.New("registry engine: state not configured")
	errNotInitialised  = errors.New("registry engine: program state not initialised")
	errInvalidAddress  = errors.New("registry engine: address must be 20 bytes")
	ErrUnauthorized    = errors.New("registry engine: caller is not the authority")
	ErrAlreadyApproved = errors.New("registry engine: miner already approved")
	ErrRegistryFull    = errors.New("registry engine: approved set at capacity")
)

const moduleName = "registry"

// DefaultCapacity bounds the approved set when no explicit capacity is
// configured, matching the fixed allocation of the original deployment.
const DefaultCapacity = 100

var programStateKey = []byte("registry/program-state")

// Storage abstracts the subset of state manager functionality required by the
// membership registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine maintains the approved-miner set gating participant onboarding.
type Engine struct {
	state    Storage
	capacity int
	emitter  events.Emitter
	pauses   nativecommon.PauseView
}

// NewEngine constructs a registry engine with the default capacity bound.
func NewEngine() *Engine {
	return &Engine{capacity: DefaultCapacity, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state Storage) { e.state = state }

// SetCapacity overrides the approved-set capacity bound.
func (e *Engine) SetCapacity(capacity int) {
	if e == nil || capacity <= 0 {
		return
	}
	e.capacity = capacity
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

// Initialize writes the singleton program state with the supplied authority.
// It is a genesis-time operation and fails if the record already exists.
func (e *Engine) Initialize(authority []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if len(authority) != 20 {
		return errInvalidAddress
	}
	var existing ProgramState
	ok, err := e.state.KVGet(programStateKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return errors.New("registry engine: program state already initialised")
	}
	ps := &ProgramState{Authority: append([]byte(nil), authority...)}
	return e.state.KVPut(programStateKey, ps)
}

// ProgramState loads the singleton record.
func (e *Engine) ProgramState() (*ProgramState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ps := new(ProgramState)
	ok, err := e.state.KVGet(programStateKey, ps)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialised
	}
	return ps, nil
}

// PutProgramState persists the singleton record. Exposed for the identity
// issuer which advances the NFT id counter under the same ledger transaction.
func (e *Engine) PutProgramState(ps *ProgramState) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if ps == nil {
		return errNotInitialised
	}
	return e.state.KVPut(programStateKey, ps)
}

// Approve appends the miner to the approved set. Only the program authority
// may approve, duplicates are rejected, and the set is capacity bound.
func (e *Engine) Approve(caller, miner []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if len(miner) != 20 {
		return errInvalidAddress
	}
	ps, err := e.ProgramState()
	if err != nil {
		return err
	}
	if string(caller) != string(ps.Authority) {
		return ErrUnauthorized
	}
	if ps.Approved(miner) {
		return ErrAlreadyApproved
	}
	if len(ps.ApprovedMiners) >= e.capacity {
		return ErrRegistryFull
	}
	ps.ApprovedMiners = append(ps.ApprovedMiners, append([]byte(nil), miner...))
	if err := e.state.KVPut(programStateKey, ps); err != nil {
		return err
	}
	e.emitter.Emit(events.MinerApproved{Miner: cloneBytes(miner), Total: uint64(len(ps.ApprovedMiners))})
	return nil
}

// IsApproved reports whether the miner is in the approved set. Missing
// program state reads as not approved.
func (e *Engine) IsApproved(miner []byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	ps := new(ProgramState)
	ok, err := e.state.KVGet(programStateKey, ps)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return ps.Approved(miner), nil
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
