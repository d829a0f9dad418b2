package core

import (
	"bytes"
	"errors"
	"math/big"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"bhrtchain/core/events"
	"bhrtchain/core/state"
	"bhrtchain/native/amm"
	"bhrtchain/native/identity"
	"bhrtchain/native/rewards"
	"bhrtchain/native/stable"
	"bhrtchain/storage"
)

var testProgram = bytes.Repeat([]byte{0x42}, 20)

func makeAddress(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 20)
}

func newTestLedger(t *testing.T, authority []byte) *Ledger {
	t.Helper()
	ledger := NewLedger(storage.NewMemDB(), testProgram)
	require.NoError(t, ledger.InitGenesis(DefaultGenesis(authority)))
	return ledger
}

func sign(addr []byte) [][]byte {
	return [][]byte{addr}
}

func TestGenesisRunsOnce(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	require.ErrorIs(t, ledger.InitGenesis(DefaultGenesis(authority)), ErrAlreadyInitialized)

	meta, err := ledger.Metadata()
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, rewards.TokenSymbol, meta.TokenSymbol)
	require.Equal(t, identity.DefaultCollection, meta.Collection)
}

func TestSubmitRequiresCallerSignature(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	miner := makeAddress(0x02)

	instr := Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}
	_, err := ledger.Submit(instr, sign(miner))
	require.ErrorIs(t, err, ErrMissingSignature)

	_, err = ledger.Submit(instr, sign(authority))
	require.NoError(t, err)
}

func TestOnboardFlowThroughLedger(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	miner := makeAddress(0x02)

	_, err := ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}, sign(authority))
	require.NoError(t, err)

	receipt, err := ledger.Submit(Instruction{
		Op:     OpIdentityOnboard,
		Caller: miner,
		Name:   "Miner Two",
		URI:    "ipfs://two",
		Power:  20,
	}, sign(miner))
	require.NoError(t, err)
	require.Len(t, receipt.Events, 2) // rewards.minted + identity.onboarded

	var onboarded *events.MinerOnboarded
	for _, ev := range receipt.Events {
		if typed, ok := ev.(events.MinerOnboarded); ok {
			onboarded = &typed
		}
	}
	require.NotNil(t, onboarded)
	require.Equal(t, uint64(1), onboarded.NFTID)
	require.Equal(t, big.NewInt(200), onboarded.Minted)

	balance, err := ledger.Balance(miner, rewards.TokenSymbol)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(200), balance)
}

func TestFailedInstructionLeavesStateUntouched(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	miner := makeAddress(0x02)

	// Onboarding without approval fails after genesis state exists.
	_, err := ledger.Submit(Instruction{
		Op:     OpIdentityOnboard,
		Caller: miner,
		Name:   "Miner Two",
		URI:    "ipfs://two",
		Power:  20,
	}, sign(miner))
	require.ErrorIs(t, err, identity.ErrNotApproved)

	balance, err := ledger.Balance(miner, rewards.TokenSymbol)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	manager := state.NewManager(ledger.db)
	token, err := manager.UniqueTokenByOwner(identity.DefaultCollection, miner)
	require.NoError(t, err)
	require.Nil(t, token)

	// The NFT counter never moved: the first successful onboard gets id 1.
	_, err = ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}, sign(authority))
	require.NoError(t, err)
	receipt, err := ledger.Submit(Instruction{
		Op:     OpIdentityOnboard,
		Caller: miner,
		Name:   "Miner Two",
		URI:    "ipfs://two",
		Power:  1,
	}, sign(miner))
	require.NoError(t, err)
	for _, ev := range receipt.Events {
		if typed, ok := ev.(events.MinerOnboarded); ok {
			require.Equal(t, uint64(1), typed.NFTID)
		}
	}
}

func TestConflictingSubmissionsRejected(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	miner := makeAddress(0x02)

	// Simulate an in-flight submission holding the authority's account lock.
	keys := lockKeys(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner})
	require.True(t, ledger.tryLock(keys))

	_, err := ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}, sign(authority))
	require.ErrorIs(t, err, ErrAccountInUse)

	// A submission touching disjoint accounts is unaffected.
	other := makeAddress(0x03)
	_, err = ledger.Submit(Instruction{Op: OpStableInitialize, Caller: other, URI: "ipfs://hst"}, sign(other))
	require.NoError(t, err)

	ledger.unlock(keys)
	_, err = ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}, sign(authority))
	require.NoError(t, err)
}

func TestSharedRecordOpsConflictAcrossCallers(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	miner1 := makeAddress(0x02)
	miner2 := makeAddress(0x03)
	for _, m := range [][]byte{miner1, miner2} {
		_, err := ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: m}, sign(authority))
		require.NoError(t, err)
	}

	// Two onboards from distinct callers contend on the registry program
	// state, so admitting both would hand out the same NFT id.
	keys := lockKeys(Instruction{Op: OpIdentityOnboard, Caller: miner1})
	require.True(t, ledger.tryLock(keys))
	_, err := ledger.Submit(Instruction{Op: OpIdentityOnboard, Caller: miner2, Name: "Miner", URI: "ipfs://m", Power: 1}, sign(miner2))
	require.ErrorIs(t, err, ErrAccountInUse)
	ledger.unlock(keys)

	// Same discipline for pool operations from distinct users.
	keys = lockKeys(Instruction{Op: OpAmmDeposit, Caller: miner1})
	require.True(t, ledger.tryLock(keys))
	_, err = ledger.Submit(Instruction{Op: OpAmmSwap, Caller: miner2, AToB: true, Amount: big.NewInt(1)}, sign(miner2))
	require.ErrorIs(t, err, ErrAccountInUse)
	ledger.unlock(keys)

	// And for stablecoin operations sharing the vault and price feed.
	keys = lockKeys(Instruction{Op: OpStableOpen, Caller: miner1})
	require.True(t, ledger.tryLock(keys))
	_, err = ledger.Submit(Instruction{Op: OpStableSettle, Caller: miner2, Amount: big.NewInt(1)}, sign(miner2))
	require.ErrorIs(t, err, ErrAccountInUse)
	ledger.unlock(keys)
}

func TestConcurrentOnboardsAssignUniqueNFTIDs(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)

	const miners = 4
	for i := byte(0); i < miners; i++ {
		_, err := ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: makeAddress(0x10 + i)}, sign(authority))
		require.NoError(t, err)
	}

	ids := make([]uint64, miners)
	errs := make([]error, miners)
	var wg sync.WaitGroup
	for i := 0; i < miners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			miner := makeAddress(0x10 + byte(i))
			instr := Instruction{Op: OpIdentityOnboard, Caller: miner, Name: "Miner", URI: "ipfs://m", Power: 1}
			for {
				receipt, err := ledger.Submit(instr, sign(miner))
				if errors.Is(err, ErrAccountInUse) {
					runtime.Gosched()
					continue
				}
				if err != nil {
					errs[i] = err
					return
				}
				for _, ev := range receipt.Events {
					if typed, ok := ev.(events.MinerOnboarded); ok {
						ids[i] = typed.NFTID
					}
				}
				return
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, miners)
	for i := 0; i < miners; i++ {
		require.NoError(t, errs[i])
		require.NotZero(t, ids[i], "onboard %d produced no id", i)
		require.False(t, seen[ids[i]], "duplicate NFT id %d", ids[i])
		require.LessOrEqual(t, ids[i], uint64(miners))
		seen[ids[i]] = true
	}
}

func TestPauseGatesModule(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	miner := makeAddress(0x02)

	ledger.SetPaused("registry", true)
	_, err := ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}, sign(authority))
	require.Error(t, err)

	ledger.SetPaused("registry", false)
	_, err = ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}, sign(authority))
	require.NoError(t, err)
}

func TestAmmAndStableThroughLedger(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	miner := makeAddress(0x02)

	_, err := ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}, sign(authority))
	require.NoError(t, err)
	_, err = ledger.Submit(Instruction{Op: OpIdentityOnboard, Caller: miner, Name: "Miner", URI: "ipfs://m", Power: 100}, sign(miner))
	require.NoError(t, err)

	// Pool setup and a one-sided deposit attempt without USDT fails cleanly.
	_, err = ledger.Submit(Instruction{Op: OpAmmInitialize, Caller: authority, FeeBps: 30}, sign(authority))
	require.NoError(t, err)
	_, err = ledger.Submit(Instruction{
		Op:      OpAmmDeposit,
		Caller:  miner,
		Amount:  big.NewInt(500),
		AmountB: big.NewInt(500),
	}, sign(miner))
	require.Error(t, err)

	// Stablecoin: initialize, open a position against the minted BHRT.
	_, err = ledger.Submit(Instruction{Op: OpStableInitialize, Caller: authority, URI: "ipfs://hst"}, sign(authority))
	require.NoError(t, err)
	receipt, err := ledger.Submit(Instruction{Op: OpStableOpen, Caller: miner, Amount: big.NewInt(900)}, sign(miner))
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)

	opened, ok := receipt.Events[0].(events.StablePositionOpened)
	require.True(t, ok)
	// 900 * 50 * 10000 / 15000 = 30,000.
	require.Equal(t, big.NewInt(30_000), opened.DebtMinted)
}

func TestProtocolParamsFlowIntoEngines(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	ledger.SetAmmFeeBps(90)
	ledger.SetStableParams(20_000, 11_000, 10, 42)

	// An initialize instruction without an explicit fee picks up the
	// configured default.
	_, err := ledger.Submit(Instruction{Op: OpAmmInitialize, Caller: authority}, sign(authority))
	require.NoError(t, err)
	pool := amm.NewEngine(testProgram)
	pool.SetState(state.NewManager(ledger.db))
	cfg, err := pool.Config()
	require.NoError(t, err)
	require.Equal(t, uint64(90), cfg.FeeBps)

	_, err = ledger.Submit(Instruction{Op: OpStableInitialize, Caller: authority, URI: "ipfs://hst"}, sign(authority))
	require.NoError(t, err)
	mint := stable.NewEngine(testProgram)
	mint.SetState(state.NewManager(ledger.db))
	price, err := mint.Price()
	require.NoError(t, err)
	require.Equal(t, uint64(42), price)

	// The configured 200% collateral ratio shapes the minted debt.
	miner := makeAddress(0x02)
	_, err = ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}, sign(authority))
	require.NoError(t, err)
	_, err = ledger.Submit(Instruction{Op: OpIdentityOnboard, Caller: miner, Name: "Miner", URI: "ipfs://m", Power: 100}, sign(miner))
	require.NoError(t, err)
	receipt, err := ledger.Submit(Instruction{Op: OpStableOpen, Caller: miner, Amount: big.NewInt(1_000)}, sign(miner))
	require.NoError(t, err)
	opened, ok := receipt.Events[0].(events.StablePositionOpened)
	require.True(t, ok)
	// 1000 * 42 * 10000 / 20000 = 21,000.
	require.Equal(t, big.NewInt(21_000), opened.DebtMinted)
}

func TestSwapHonorsMinOut(t *testing.T) {
	authority := makeAddress(0x01)
	ledger := newTestLedger(t, authority)
	miner := makeAddress(0x02)

	_, err := ledger.Submit(Instruction{Op: OpRegistryApprove, Caller: authority, Target: miner}, sign(authority))
	require.NoError(t, err)
	_, err = ledger.Submit(Instruction{Op: OpIdentityOnboard, Caller: miner, Name: "Miner", URI: "ipfs://m", Power: 100}, sign(miner))
	require.NoError(t, err)

	manager := state.NewManager(ledger.db)
	require.NoError(t, manager.MintToken(miner, "USDT", big.NewInt(1_000)))

	_, err = ledger.Submit(Instruction{Op: OpAmmInitialize, Caller: authority, FeeBps: 30}, sign(authority))
	require.NoError(t, err)
	_, err = ledger.Submit(Instruction{
		Op:      OpAmmDeposit,
		Caller:  miner,
		Amount:  big.NewInt(1_000),
		AmountB: big.NewInt(1_000),
	}, sign(miner))
	require.NoError(t, err)

	// An unreachable minimum trips the slippage bound; relaxing it succeeds.
	trader := makeAddress(0x03)
	require.NoError(t, manager.MintToken(trader, "USDT", big.NewInt(200)))
	_, err = ledger.Submit(Instruction{
		Op:     OpAmmSwap,
		Caller: trader,
		AToB:   false,
		Amount: big.NewInt(100),
		MinOut: big.NewInt(100),
	}, sign(trader))
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	receipt, err := ledger.Submit(Instruction{
		Op:     OpAmmSwap,
		Caller: trader,
		AToB:   false,
		Amount: big.NewInt(100),
		MinOut: big.NewInt(1),
	}, sign(trader))
	require.NoError(t, err)
	swapped, ok := receipt.Events[0].(events.PoolSwapped)
	require.True(t, ok)
	require.Positive(t, swapped.AmountOut.Sign())
}
