package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"bhrtchain/crypto"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration persisted as TOML next to the data
// directory.
type Config struct {
	DataDir          string   `toml:"DataDir"`
	AuthorityKeyFile string   `toml:"AuthorityKeyFile"`
	NetworkName      string   `toml:"NetworkName"`
	Environment      string   `toml:"Environment"`
	Protocol         Protocol `toml:"Protocol"`
}

// Protocol carries the tunable protocol parameters. The deployed values are
// the defaults; Validate bounds them.
type Protocol struct {
	RewardMultiplier        uint64 `toml:"RewardMultiplier"`
	RegistryCapacity        int    `toml:"RegistryCapacity"`
	AmmFeeBps               uint64 `toml:"AmmFeeBps"`
	InitialPrice            uint64 `toml:"InitialPrice"`
	CollateralRatioBps      uint64 `toml:"CollateralRatioBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	PenaltyRewardPct        uint64 `toml:"PenaltyRewardPct"`
}

// Load reads the configuration from the given path, creating a default file
// (and authority key) when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if cfg.AuthorityKeyFile == "" {
		keyPath, err := ensureAuthorityKey(defaultKeyPath(path))
		if err != nil {
			return nil, err
		}
		cfg.AuthorityKeyFile = keyPath
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AuthorityKey loads the node's authority key from the configured key file.
func (c *Config) AuthorityKey() (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(c.AuthorityKeyFile)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, err
	}
	return crypto.PrivateKeyFromBytes(decoded)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./bhrt-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "bhrt-local"
	}
	if cfg.Protocol.RewardMultiplier == 0 {
		cfg.Protocol.RewardMultiplier = 10
	}
	if cfg.Protocol.RegistryCapacity == 0 {
		cfg.Protocol.RegistryCapacity = 100
	}
	if cfg.Protocol.AmmFeeBps == 0 {
		cfg.Protocol.AmmFeeBps = 30
	}
	if cfg.Protocol.InitialPrice == 0 {
		cfg.Protocol.InitialPrice = 50
	}
	if cfg.Protocol.CollateralRatioBps == 0 {
		cfg.Protocol.CollateralRatioBps = 15_000
	}
	if cfg.Protocol.LiquidationThresholdBps == 0 {
		cfg.Protocol.LiquidationThresholdBps = 12_500
	}
	if cfg.Protocol.PenaltyRewardPct == 0 {
		cfg.Protocol.PenaltyRewardPct = 5
	}
}

// createDefault creates and saves a default configuration file along with a
// fresh authority key.
func createDefault(path string) (*Config, error) {
	keyPath, err := ensureAuthorityKey(defaultKeyPath(path))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:          "./bhrt-data",
		AuthorityKeyFile: keyPath,
		NetworkName:      "bhrt-local",
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ensureAuthorityKey(keyPath string) (string, error) {
	if _, err := os.Stat(keyPath); err == nil {
		return keyPath, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(keyPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	encoded := hex.EncodeToString(key.Bytes()) + "\n"
	if err := os.WriteFile(keyPath, []byte(encoded), 0o600); err != nil {
		return "", err
	}
	return keyPath, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeyPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "authority.key")
}
