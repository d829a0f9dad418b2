package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bhrtchain/config"
	"bhrtchain/core"
	"bhrtchain/observability/logging"
	"bhrtchain/storage"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("BHRT_ENV"))
	logger := logging.Setup("bhrtd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	key, err := cfg.AuthorityKey()
	if err != nil {
		logger.Error("Failed to load authority key", slog.Any("error", err))
		os.Exit(1)
	}
	authority := key.PubKey().Address()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Failed to create data dir", slog.Any("error", err))
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("Failed to open state database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// The program identity anchoring vault derivation is fixed per network.
	programID := ethcrypto.Keccak256([]byte(cfg.NetworkName))[:20]
	ledger := core.NewLedger(db, programID)
	ledger.SetLogger(logger)
	ledger.SetRewardMultiplier(cfg.Protocol.RewardMultiplier)
	ledger.SetRegistryCapacity(cfg.Protocol.RegistryCapacity)
	ledger.SetAmmFeeBps(cfg.Protocol.AmmFeeBps)
	ledger.SetStableParams(
		cfg.Protocol.CollateralRatioBps,
		cfg.Protocol.LiquidationThresholdBps,
		cfg.Protocol.PenaltyRewardPct,
		cfg.Protocol.InitialPrice,
	)

	gen := core.DefaultGenesis(authority.Bytes())
	gen.RegistryCapacity = cfg.Protocol.RegistryCapacity
	if err := ledger.InitGenesis(gen); err != nil && !errors.Is(err, core.ErrAlreadyInitialized) {
		logger.Error("Failed to apply genesis", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("node ready",
		slog.String("network", cfg.NetworkName),
		slog.String("authority", authority.String()),
		slog.String("data_dir", cfg.DataDir),
	)
}
