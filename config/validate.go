package config

import "fmt"

// MaxAmmFeeBps mirrors the pool engine's fee bound.
const MaxAmmFeeBps = 1000

// Validate rejects configurations the engines would refuse at runtime.
func Validate(cfg *Config) error {
	if cfg.Protocol.RewardMultiplier == 0 {
		return fmt.Errorf("protocol: reward_multiplier must be positive")
	}
	if cfg.Protocol.RegistryCapacity <= 0 {
		return fmt.Errorf("protocol: registry_capacity must be positive")
	}
	if cfg.Protocol.AmmFeeBps == 0 || cfg.Protocol.AmmFeeBps > MaxAmmFeeBps {
		return fmt.Errorf("protocol: amm_fee_bps must be in (0, %d]", MaxAmmFeeBps)
	}
	if cfg.Protocol.InitialPrice == 0 {
		return fmt.Errorf("protocol: initial_price must be positive")
	}
	if cfg.Protocol.CollateralRatioBps <= 10_000 {
		return fmt.Errorf("protocol: collateral_ratio_bps must exceed 10000")
	}
	if cfg.Protocol.LiquidationThresholdBps <= 10_000 || cfg.Protocol.LiquidationThresholdBps > cfg.Protocol.CollateralRatioBps {
		return fmt.Errorf("protocol: liquidation_threshold_bps must be in (10000, collateral_ratio_bps]")
	}
	if cfg.Protocol.PenaltyRewardPct >= 100 {
		return fmt.Errorf("protocol: penalty_reward_pct must be below 100")
	}
	return nil
}
