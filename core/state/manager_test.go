package state

import (
	"bytes"
	"math/big"
	"testing"

	"bhrtchain/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestRegisterTokenAndBalances(t *testing.T) {
	m := newTestManager(t)
	if err := m.RegisterToken("bhrt", "Blockhash Reward Token", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := m.RegisterToken("BHRT", "dup", 6); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if !m.TokenExists("bhrt") {
		t.Fatalf("expected token to exist")
	}

	addr := bytes.Repeat([]byte{0x01}, 20)
	if err := m.MintToken(addr, "BHRT", big.NewInt(200)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, err := m.Balance(addr, "BHRT")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected balance: %s", balance)
	}
	supply, err := m.TotalSupply("BHRT")
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected supply: %s", supply)
	}

	if err := m.BurnToken(addr, "BHRT", big.NewInt(50)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	balance, _ = m.Balance(addr, "BHRT")
	if balance.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("unexpected balance after burn: %s", balance)
	}
	if err := m.BurnToken(addr, "BHRT", big.NewInt(1_000)); err == nil {
		t.Fatalf("expected burn above balance to fail")
	}
}

func TestTransferToken(t *testing.T) {
	m := newTestManager(t)
	if err := m.RegisterToken("USDT", "Tether", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	from := bytes.Repeat([]byte{0x02}, 20)
	to := bytes.Repeat([]byte{0x03}, 20)
	if err := m.MintToken(from, "USDT", big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.TransferToken(from, to, "USDT", big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	fromBal, _ := m.Balance(from, "USDT")
	toBal, _ := m.Balance(to, "USDT")
	if fromBal.Cmp(big.NewInt(600)) != 0 || toBal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected balances: %s / %s", fromBal, toBal)
	}
	if err := m.TransferToken(from, to, "USDT", big.NewInt(601)); err == nil {
		t.Fatalf("expected transfer above balance to fail")
	}
}

func TestUniqueTokenLifecycle(t *testing.T) {
	m := newTestManager(t)
	owner := bytes.Repeat([]byte{0x04}, 20)
	token := &UniqueToken{
		Collection:         "BHRT-MINERS",
		ID:                 1,
		Owner:              owner,
		Name:               "Miner #1",
		URI:                "ipfs://miner-1",
		CollectionVerified: true,
	}
	if err := m.PutUniqueToken(token); err != nil {
		t.Fatalf("put unique token: %v", err)
	}
	loaded, err := m.UniqueTokenByOwner("BHRT-MINERS", owner)
	if err != nil {
		t.Fatalf("load by owner: %v", err)
	}
	if loaded == nil || loaded.ID != 1 || !loaded.CollectionVerified {
		t.Fatalf("unexpected token: %+v", loaded)
	}
	if err := m.BurnUniqueToken("BHRT-MINERS", 1); err != nil {
		t.Fatalf("burn unique token: %v", err)
	}
	loaded, err = m.UniqueToken("BHRT-MINERS", 1)
	if err != nil {
		t.Fatalf("load after burn: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected token to be gone")
	}
	byOwner, err := m.UniqueTokenByOwner("BHRT-MINERS", owner)
	if err != nil {
		t.Fatalf("load owner index after burn: %v", err)
	}
	if byOwner != nil {
		t.Fatalf("expected owner index entry to be gone")
	}
}

func TestKVRoundTrip(t *testing.T) {
	m := newTestManager(t)
	type record struct {
		Feed uint64
	}
	stored := record{Feed: 50}
	if err := m.KVPut([]byte("stable/price-feed"), stored); err != nil {
		t.Fatalf("kv put: %v", err)
	}
	var loaded record
	ok, err := m.KVGet([]byte("stable/price-feed"), &loaded)
	if err != nil {
		t.Fatalf("kv get: %v", err)
	}
	if !ok || loaded.Feed != 50 {
		t.Fatalf("unexpected record: %+v ok=%v", loaded, ok)
	}
	if err := m.KVDelete([]byte("stable/price-feed")); err != nil {
		t.Fatalf("kv delete: %v", err)
	}
	ok, err = m.KVGet([]byte("stable/price-feed"), &loaded)
	if err != nil {
		t.Fatalf("kv get after delete: %v", err)
	}
	if ok {
		t.Fatalf("expected record to be deleted")
	}
}
