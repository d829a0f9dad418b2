package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Protocol.RewardMultiplier != 10 || cfg.Protocol.AmmFeeBps != 30 || cfg.Protocol.InitialPrice != 50 {
		t.Fatalf("unexpected defaults: %+v", cfg.Protocol)
	}
	if cfg.Protocol.CollateralRatioBps != 15_000 || cfg.Protocol.LiquidationThresholdBps != 12_500 || cfg.Protocol.PenaltyRewardPct != 5 {
		t.Fatalf("unexpected risk defaults: %+v", cfg.Protocol)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	if _, err := os.Stat(cfg.AuthorityKeyFile); err != nil {
		t.Fatalf("expected authority key to be written: %v", err)
	}
	if _, err := cfg.AuthorityKey(); err != nil {
		t.Fatalf("authority key must round trip: %v", err)
	}
}

func TestLoadParsesProtocolSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keyPath := filepath.Join(dir, "authority.key")
	contents := `DataDir = "./data"
AuthorityKeyFile = "` + keyPath + `"
NetworkName = "testnet"

[Protocol]
RewardMultiplier = 7
RegistryCapacity = 25
AmmFeeBps = 100
InitialPrice = 42
`
	if _, err := ensureAuthorityKey(keyPath); err != nil {
		t.Fatalf("key: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Protocol.RewardMultiplier != 7 || cfg.Protocol.RegistryCapacity != 25 {
		t.Fatalf("unexpected protocol values: %+v", cfg.Protocol)
	}
	if cfg.Protocol.AmmFeeBps != 100 || cfg.Protocol.InitialPrice != 42 {
		t.Fatalf("unexpected protocol values: %+v", cfg.Protocol)
	}
}

func TestValidateBounds(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	cfg.Protocol.AmmFeeBps = MaxAmmFeeBps + 1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected fee bound violation")
	}

	cfg.Protocol.AmmFeeBps = 30
	cfg.Protocol.RegistryCapacity = -1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected capacity violation")
	}

	cfg = &Config{}
	applyDefaults(cfg)
	cfg.Protocol.LiquidationThresholdBps = cfg.Protocol.CollateralRatioBps + 1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected threshold above ratio to be rejected")
	}
}
