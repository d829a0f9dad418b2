package stable

import (
	"bytes"
	"errors"
	"math/big"

	"bhrtchain/core/events"
	"bhrtchain/crypto"
	nativecommon "bhrtchain/native/common"
)

var (
	errNilState            = errors.New("stable engine: state not configured")
	errInvalidAmount       = errors.New("stable engine: amount must be positive")
	ErrUnauthorized        = errors.New("stable engine: caller is not the authority")
	ErrAlreadyExists       = errors.New("stable engine: already initialised")
	ErrNotInitialized      = errors.New("stable engine: not initialised")
	ErrNoPosition          = errors.New("stable engine: no open position")
	ErrPositionHealthy     = errors.New("stable engine: position above liquidation threshold")
	ErrRepayExceedsDebt    = errors.New("stable engine: repayment exceeds outstanding debt")
	ErrInsufficientBalance = errors.New("stable engine: amount exceeds balance")
)

const moduleName = "stable"

// Default protocol parameters, in basis points except where noted. Minting is
// overcollateralized at 150%; liquidation opens up once collateral value
// falls below 125% of debt. Liquidators earn a 5% collateral bonus on the
// amount they repay. Deployments override these through the engine setters.
const (
	CollateralRatioBps      = 15_000
	LiquidationThresholdBps = 12_500
	BasisPointsDenominator  = 10_000
	PenaltyRewardPct        = 5
	InitialPrice            = 50
)

// Default token wiring for the stablecoin engine.
const (
	DefaultStableSymbol     = "HST"
	DefaultCollateralSymbol = "BHRT"
)

// Storage abstracts the subset of state manager functionality required by the
// stablecoin engine.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	RegisterToken(symbol, name string, decimals uint8) error
	TokenExists(symbol string) bool
	Balance(addr []byte, symbol string) (*big.Int, error)
	MintToken(addr []byte, symbol string, amount *big.Int) error
	BurnToken(addr []byte, symbol string, amount *big.Int) error
	TransferToken(from, to []byte, symbol string, amount *big.Int) error
}

// Engine implements the collateralized stablecoin: BHRT locked in a program
// vault backs freshly minted HST at a fixed collateral ratio, with
// liquidation and settlement paths that burn HST back out of circulation.
type Engine struct {
	state      Storage
	programID  []byte
	stable     string
	collateral string
	emitter    events.Emitter
	pauses     nativecommon.PauseView

	collateralRatioBps      uint64
	liquidationThresholdBps uint64
	penaltyRewardPct        uint64
	initialPrice            uint64
}

// NewEngine constructs a stablecoin engine for the given program identity
// with the default risk parameters.
func NewEngine(programID []byte) *Engine {
	return &Engine{
		programID:               append([]byte(nil), programID...),
		stable:                  DefaultStableSymbol,
		collateral:              DefaultCollateralSymbol,
		emitter:                 events.NoopEmitter{},
		collateralRatioBps:      CollateralRatioBps,
		liquidationThresholdBps: LiquidationThresholdBps,
		penaltyRewardPct:        PenaltyRewardPct,
		initialPrice:            InitialPrice,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state Storage) { e.state = state }

// SetRiskParams overrides the collateral ratio, liquidation threshold, and
// liquidation bonus. Zero values leave the current parameter untouched.
func (e *Engine) SetRiskParams(collateralRatioBps, liquidationThresholdBps, penaltyRewardPct uint64) {
	if e == nil {
		return
	}
	if collateralRatioBps > 0 {
		e.collateralRatioBps = collateralRatioBps
	}
	if liquidationThresholdBps > 0 {
		e.liquidationThresholdBps = liquidationThresholdBps
	}
	if penaltyRewardPct > 0 {
		e.penaltyRewardPct = penaltyRewardPct
	}
}

// SetInitialPrice overrides the price the feed is seeded with at
// initialization.
func (e *Engine) SetInitialPrice(price uint64) {
	if e == nil || price == 0 {
		return
	}
	e.initialPrice = price
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

// InitializeConfig performs the one-time setup: derives the collateral vault,
// registers the HST mint, and seeds the price feed at the initial price.
func (e *Engine) InitializeConfig(authority []byte, uri string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if len(authority) == 0 {
		return ErrUnauthorized
	}
	var existing Config
	ok, err := e.state.KVGet(configKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyExists
	}

	vault, _, err := crypto.DeriveProgramAddress([][]byte{seedVault}, e.programID)
	if err != nil {
		return err
	}
	if !e.state.TokenExists(e.stable) {
		if err := e.state.RegisterToken(e.stable, "Hashrate Stable Token", 6); err != nil {
			return err
		}
	}

	cfg := &Config{
		Authority:        append([]byte(nil), authority...),
		URI:              uri,
		StableSymbol:     e.stable,
		CollateralSymbol: e.collateral,
		Vault:            vault.Bytes(),
		TotalCollateral:  big.NewInt(0),
		TotalMinted:      big.NewInt(0),
	}
	if err := e.state.KVPut(configKey, cfg); err != nil {
		return err
	}
	if err := e.state.KVPut(priceFeedKey, &PriceFeed{Feed: e.initialPrice}); err != nil {
		return err
	}
	e.emitter.Emit(events.StableInitialized{URI: uri, InitialPrice: e.initialPrice})
	return nil
}

// Config loads the stablecoin configuration.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg := new(Config)
	ok, err := e.state.KVGet(configKey, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

// Price returns the current oracle price of BHRT in HST units.
func (e *Engine) Price() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	feed := new(PriceFeed)
	ok, err := e.state.KVGet(priceFeedKey, feed)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotInitialized
	}
	return feed.Feed, nil
}

// SetOraclePrice updates the price feed. Authority only.
func (e *Engine) SetOraclePrice(caller []byte, newPrice uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if !bytes.Equal(caller, cfg.Authority) {
		return ErrUnauthorized
	}
	if newPrice == 0 {
		return errInvalidAmount
	}
	old, err := e.Price()
	if err != nil {
		return err
	}
	if err := e.state.KVPut(priceFeedKey, &PriceFeed{Feed: newPrice}); err != nil {
		return err
	}
	e.emitter.Emit(events.StablePriceUpdated{OldPrice: old, NewPrice: newPrice})
	return nil
}

// Position loads the open position for owner, or nil when none exists.
func (e *Engine) Position(owner []byte) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos := new(Position)
	ok, err := e.state.KVGet(positionStorageKey(owner), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return pos, nil
}

// debtFor prices collateral at the current feed and applies the collateral
// ratio: collateral*price*10000/ratioBps, truncated.
func (e *Engine) debtFor(collateral *big.Int, price uint64) *big.Int {
	debt := new(big.Int).Mul(collateral, new(big.Int).SetUint64(price))
	debt.Mul(debt, big.NewInt(BasisPointsDenominator))
	return debt.Quo(debt, new(big.Int).SetUint64(e.collateralRatioBps))
}

// OpenPosition locks collateral BHRT in the vault and mints the
// corresponding HST debt to the caller. Repeated calls extend the existing
// position.
func (e *Engine) OpenPosition(owner []byte, collateral *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if collateral == nil || collateral.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	balance, err := e.state.Balance(owner, cfg.CollateralSymbol)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(collateral) < 0 {
		return nil, ErrInsufficientBalance
	}
	price, err := e.Price()
	if err != nil {
		return nil, err
	}
	debt := e.debtFor(collateral, price)
	if debt.Sign() == 0 {
		return nil, errInvalidAmount
	}

	if err := e.state.TransferToken(owner, cfg.Vault, cfg.CollateralSymbol, collateral); err != nil {
		return nil, err
	}
	if err := e.state.MintToken(owner, cfg.StableSymbol, debt); err != nil {
		return nil, err
	}

	pos, err := e.Position(owner)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{
			Owner:               append([]byte(nil), owner...),
			CollateralDeposited: big.NewInt(0),
			DebtMinted:          big.NewInt(0),
		}
		cfg.InvestorCount++
	}
	pos.CollateralDeposited = new(big.Int).Add(pos.CollateralDeposited, collateral)
	pos.DebtMinted = new(big.Int).Add(pos.DebtMinted, debt)
	pos.PriceAtOpen = price
	if err := e.state.KVPut(positionStorageKey(owner), pos); err != nil {
		return nil, err
	}

	cfg.TotalCollateral = new(big.Int).Add(cfg.TotalCollateral, collateral)
	cfg.TotalMinted = new(big.Int).Add(cfg.TotalMinted, debt)
	if err := e.state.KVPut(configKey, cfg); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.StablePositionOpened{
		Owner:      append([]byte(nil), owner...),
		Collateral: new(big.Int).Set(collateral),
		DebtMinted: debt,
		Price:      price,
	})
	return debt, nil
}

// healthy reports whether the position's collateral value still covers the
// liquidation threshold: collateral*price*10000 >= debt*thresholdBps.
func (e *Engine) healthy(pos *Position, price uint64) bool {
	value := new(big.Int).Mul(pos.CollateralDeposited, new(big.Int).SetUint64(price))
	value.Mul(value, big.NewInt(BasisPointsDenominator))
	bound := new(big.Int).Mul(pos.DebtMinted, new(big.Int).SetUint64(e.liquidationThresholdBps))
	return value.Cmp(bound) >= 0
}

// Liquidate lets anyone repay part of an undercollateralized position's debt
// in exchange for collateral plus a 5% bonus. Clearing the full debt returns
// the leftover collateral to the owner and closes the position.
func (e *Engine) Liquidate(liquidator, owner []byte, repay *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	pos, err := e.Position(owner)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrNoPosition
	}
	price, err := e.Price()
	if err != nil {
		return nil, err
	}
	if e.healthy(pos, price) {
		return nil, ErrPositionHealthy
	}
	if repay == nil || repay.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if repay.Cmp(pos.DebtMinted) > 0 {
		return nil, ErrRepayExceedsDebt
	}
	balance, err := e.state.Balance(liquidator, cfg.StableSymbol)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(repay) < 0 {
		return nil, ErrInsufficientBalance
	}

	// Seize (repay + bonus) worth of collateral at the current price, capped
	// at what the position still holds.
	bonus := new(big.Int).Mul(repay, new(big.Int).SetUint64(e.penaltyRewardPct))
	bonus.Quo(bonus, big.NewInt(100))
	seized := new(big.Int).Add(repay, bonus)
	seized.Quo(seized, new(big.Int).SetUint64(price))
	if seized.Cmp(pos.CollateralDeposited) > 0 {
		seized = new(big.Int).Set(pos.CollateralDeposited)
	}

	if err := e.state.BurnToken(liquidator, cfg.StableSymbol, repay); err != nil {
		return nil, err
	}
	if seized.Sign() > 0 {
		if err := e.state.TransferToken(cfg.Vault, liquidator, cfg.CollateralSymbol, seized); err != nil {
			return nil, err
		}
	}

	pos.DebtMinted = new(big.Int).Sub(pos.DebtMinted, repay)
	pos.CollateralDeposited = new(big.Int).Sub(pos.CollateralDeposited, seized)
	cfg.TotalMinted = new(big.Int).Sub(cfg.TotalMinted, repay)
	cfg.TotalCollateral = new(big.Int).Sub(cfg.TotalCollateral, seized)

	closed := pos.DebtMinted.Sign() == 0
	if closed {
		leftover := pos.CollateralDeposited
		if leftover.Sign() > 0 {
			if err := e.state.TransferToken(cfg.Vault, owner, cfg.CollateralSymbol, leftover); err != nil {
				return nil, err
			}
			cfg.TotalCollateral = new(big.Int).Sub(cfg.TotalCollateral, leftover)
		}
		if err := e.state.KVDelete(positionStorageKey(owner)); err != nil {
			return nil, err
		}
		if cfg.InvestorCount > 0 {
			cfg.InvestorCount--
		}
	} else {
		if err := e.state.KVPut(positionStorageKey(owner), pos); err != nil {
			return nil, err
		}
	}
	if err := e.state.KVPut(configKey, cfg); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.StableLiquidated{
		Liquidator: append([]byte(nil), liquidator...),
		Owner:      append([]byte(nil), owner...),
		Repaid:     new(big.Int).Set(repay),
		Seized:     seized,
		Closed:     closed,
	})
	return seized, nil
}

// Settle lets the position owner burn HST to unlock a proportional share of
// their collateral: collateral*repay/debt, truncated. Repaying the full debt
// closes the position.
func (e *Engine) Settle(owner []byte, repay *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	pos, err := e.Position(owner)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrNoPosition
	}
	if repay == nil || repay.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if repay.Cmp(pos.DebtMinted) > 0 {
		return nil, ErrRepayExceedsDebt
	}
	balance, err := e.state.Balance(owner, cfg.StableSymbol)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(repay) < 0 {
		return nil, ErrInsufficientBalance
	}

	closed := repay.Cmp(pos.DebtMinted) == 0
	var unlocked *big.Int
	if closed {
		unlocked = new(big.Int).Set(pos.CollateralDeposited)
	} else {
		unlocked = new(big.Int).Mul(pos.CollateralDeposited, repay)
		unlocked.Quo(unlocked, pos.DebtMinted)
	}

	if err := e.state.BurnToken(owner, cfg.StableSymbol, repay); err != nil {
		return nil, err
	}
	if unlocked.Sign() > 0 {
		if err := e.state.TransferToken(cfg.Vault, owner, cfg.CollateralSymbol, unlocked); err != nil {
			return nil, err
		}
	}

	cfg.TotalMinted = new(big.Int).Sub(cfg.TotalMinted, repay)
	cfg.TotalCollateral = new(big.Int).Sub(cfg.TotalCollateral, unlocked)
	if closed {
		if err := e.state.KVDelete(positionStorageKey(owner)); err != nil {
			return nil, err
		}
		if cfg.InvestorCount > 0 {
			cfg.InvestorCount--
		}
	} else {
		pos.DebtMinted = new(big.Int).Sub(pos.DebtMinted, repay)
		pos.CollateralDeposited = new(big.Int).Sub(pos.CollateralDeposited, unlocked)
		if err := e.state.KVPut(positionStorageKey(owner), pos); err != nil {
			return nil, err
		}
	}
	if err := e.state.KVPut(configKey, cfg); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.StableSettled{
		Owner:    append([]byte(nil), owner...),
		Repaid:   new(big.Int).Set(repay),
		Unlocked: unlocked,
		Closed:   closed,
	})
	return unlocked, nil
}
