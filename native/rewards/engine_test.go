package rewards

import (
	"bytes"
	"errors"
	"math"
	"math/big"
	"testing"

	"bhrtchain/core/state"
	"bhrtchain/storage"
)

func newTestEngine(t *testing.T) (*Engine, *state.Manager) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	if err := manager.RegisterToken(TokenSymbol, "Blockhash Reward Token", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	engine := NewEngine()
	engine.SetState(manager)
	return engine, manager
}

func makeAddress(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 20)
}

func TestMintRequiresOnboarding(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Mint(makeAddress(0x01), 20); !errors.Is(err, ErrNotOnboarded) {
		t.Fatalf("expected ErrNotOnboarded, got %v", err)
	}
}

func TestMintAccumulates(t *testing.T) {
	engine, manager := newTestEngine(t)
	miner := makeAddress(0x01)
	if err := engine.PutMinerInfo(&MinerInfo{Miner: miner, HashrateTokenSymbol: TokenSymbol}); err != nil {
		t.Fatalf("put miner info: %v", err)
	}

	minted, err := engine.Mint(miner, 20)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if minted.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected 200 minted, got %s", minted)
	}
	balance, _ := manager.Balance(miner, TokenSymbol)
	if balance.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected balance: %s", balance)
	}

	if _, err := engine.Mint(miner, 5); err != nil {
		t.Fatalf("top-up mint: %v", err)
	}
	info, err := engine.MinerInfo(miner)
	if err != nil {
		t.Fatalf("miner info: %v", err)
	}
	if info.HashratePower != 25 || info.MintAmount != 250 {
		t.Fatalf("ledger not accumulated: power=%d minted=%d", info.HashratePower, info.MintAmount)
	}
}

func TestMintOverflowFailsClosed(t *testing.T) {
	engine, manager := newTestEngine(t)
	miner := makeAddress(0x01)
	if err := engine.PutMinerInfo(&MinerInfo{Miner: miner}); err != nil {
		t.Fatalf("put miner info: %v", err)
	}
	if _, err := engine.Mint(miner, math.MaxUint64/2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	balance, _ := manager.Balance(miner, TokenSymbol)
	if balance.Sign() != 0 {
		t.Fatalf("overflowing mint must not move balances, got %s", balance)
	}
}

func TestBurnBounds(t *testing.T) {
	engine, manager := newTestEngine(t)
	miner := makeAddress(0x01)
	if err := engine.PutMinerInfo(&MinerInfo{Miner: miner}); err != nil {
		t.Fatalf("put miner info: %v", err)
	}
	if _, err := engine.Mint(miner, 10); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.Burn(miner, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := engine.Burn(miner, big.NewInt(40)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	balance, _ := manager.Balance(miner, TokenSymbol)
	if balance.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("unexpected balance after burn: %s", balance)
	}
}

func TestBurnAll(t *testing.T) {
	engine, manager := newTestEngine(t)
	miner := makeAddress(0x01)
	if err := engine.PutMinerInfo(&MinerInfo{Miner: miner}); err != nil {
		t.Fatalf("put miner info: %v", err)
	}
	if _, err := engine.Mint(miner, 7); err != nil {
		t.Fatalf("mint: %v", err)
	}
	burned, err := engine.BurnAll(miner)
	if err != nil {
		t.Fatalf("burn all: %v", err)
	}
	if burned.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("expected 70 burned, got %s", burned)
	}
	balance, _ := manager.Balance(miner, TokenSymbol)
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}
	// Second call is a no-op.
	burned, err = engine.BurnAll(miner)
	if err != nil {
		t.Fatalf("burn all again: %v", err)
	}
	if burned.Sign() != 0 {
		t.Fatalf("expected zero burned on empty balance, got %s", burned)
	}
}
