package amm

import (
	"errors"
	"math/big"

	"bhrtchain/core/events"
	"bhrtchain/crypto"
	nativecommon "bhrtchain/native/common"
)

var (
	errNilState              = errors.New("amm engine: state not configured")
	errInvalidAmount         = errors.New("amm engine: amount must be positive")
	ErrInvalidFee            = errors.New("amm engine: fee outside accepted range")
	ErrAlreadyExists         = errors.New("amm engine: pool already initialised")
	ErrNotInitialized        = errors.New("amm engine: pool not initialised")
	ErrPoolLocked            = errors.New("amm engine: pool locked")
	ErrSlippageExceeded      = errors.New("amm engine: slippage bound exceeded")
	ErrInsufficientBalance   = errors.New("amm engine: amount exceeds balance")
	ErrInsufficientLiquidity = errors.New("amm engine: insufficient pool liquidity")
)

const moduleName = "amm"

// MaxFeeBps bounds the trading fee; the deployed pool uses 30 (0.30%).
const MaxFeeBps = 1_000

// Default token wiring for the BHRT/USDT pool.
const (
	DefaultTokenA   = "BHRT"
	DefaultTokenB   = "USDT"
	DefaultLPSymbol = "BHRT-LP"
)

// Storage abstracts the subset of state manager functionality required by the
// AMM engine.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	RegisterToken(symbol, name string, decimals uint8) error
	TokenExists(symbol string) bool
	Balance(addr []byte, symbol string) (*big.Int, error)
	TotalSupply(symbol string) (*big.Int, error)
	MintToken(addr []byte, symbol string, amount *big.Int) error
	BurnToken(addr []byte, symbol string, amount *big.Int) error
	TransferToken(from, to []byte, symbol string, amount *big.Int) error
}

// Engine implements the two-asset constant-product market maker. All
// divisions truncate toward zero so rounding consistently favors the pool.
type Engine struct {
	state     Storage
	programID []byte
	tokenA    string
	tokenB    string
	lpSymbol  string
	emitter   events.Emitter
	pauses    nativecommon.PauseView
}

// NewEngine constructs an AMM engine for the given program identity.
func NewEngine(programID []byte) *Engine {
	return &Engine{
		programID: append([]byte(nil), programID...),
		tokenA:    DefaultTokenA,
		tokenB:    DefaultTokenB,
		lpSymbol:  DefaultLPSymbol,
		emitter:   events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state Storage) { e.state = state }

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

// Initialize performs the one-time pool setup: derives the two vault
// addresses, registers the LP share token, and persists the config.
func (e *Engine) Initialize(feeBps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if feeBps == 0 || feeBps > MaxFeeBps {
		return ErrInvalidFee
	}
	var existing Config
	ok, err := e.state.KVGet(configKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyExists
	}

	vaultA, _, err := crypto.DeriveProgramAddress([][]byte{seedVaultA}, e.programID)
	if err != nil {
		return err
	}
	vaultB, _, err := crypto.DeriveProgramAddress([][]byte{seedVaultB}, e.programID)
	if err != nil {
		return err
	}
	if !e.state.TokenExists(e.lpSymbol) {
		if err := e.state.RegisterToken(e.lpSymbol, "BHRT/USDT Pool Share", 6); err != nil {
			return err
		}
	}

	cfg := &Config{
		FeeBps:   feeBps,
		TokenA:   e.tokenA,
		TokenB:   e.tokenB,
		LPSymbol: e.lpSymbol,
		VaultA:   vaultA.Bytes(),
		VaultB:   vaultB.Bytes(),
	}
	if err := e.state.KVPut(configKey, cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolInitialized{FeeBps: feeBps})
	return nil
}

// Config loads the pool configuration.
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

// Reserves returns the live vault balances for both assets.
func (e *Engine) Reserves() (*big.Int, *big.Int, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, nil, err
	}
	reserveA, err := e.state.Balance(cfg.VaultA, cfg.TokenA)
	if err != nil {
		return nil, nil, err
	}
	reserveB, err := e.state.Balance(cfg.VaultB, cfg.TokenB)
	if err != nil {
		return nil, nil, err
	}
	return reserveA, reserveB, nil
}

// Deposit adds liquidity. For an empty pool the provider sets the initial
// ratio with (maxA, maxB) and receives floor(sqrt(maxA*maxB)) shares; for a
// live pool the required amounts follow the current reserve ratio for
// lpWanted shares and the caller's maximums act as slippage bounds.
func (e *Engine) Deposit(provider []byte, lpWanted, maxA, maxB *big.Int) (*big.Int, *big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Locked {
		return nil, nil, nil, ErrPoolLocked
	}
	if maxA == nil || maxA.Sign() <= 0 || maxB == nil || maxB.Sign() <= 0 {
		return nil, nil, nil, errInvalidAmount
	}

	reserveA, reserveB, err := e.Reserves()
	if err != nil {
		return nil, nil, nil, err
	}
	lpSupply, err := e.state.TotalSupply(cfg.LPSymbol)
	if err != nil {
		return nil, nil, nil, err
	}

	var amountA, amountB, lpMinted *big.Int
	if lpSupply.Sign() == 0 && reserveA.Sign() == 0 && reserveB.Sign() == 0 {
		amountA = new(big.Int).Set(maxA)
		amountB = new(big.Int).Set(maxB)
		lpMinted = initialShares(amountA, amountB)
		if lpMinted.Sign() == 0 {
			return nil, nil, nil, errInvalidAmount
		}
	} else {
		if lpWanted == nil || lpWanted.Sign() <= 0 {
			return nil, nil, nil, errInvalidAmount
		}
		amountA = proportionalAmount(reserveA, lpWanted, lpSupply)
		amountB = proportionalAmount(reserveB, lpWanted, lpSupply)
		if amountA.Sign() == 0 || amountB.Sign() == 0 {
			return nil, nil, nil, errInvalidAmount
		}
		if amountA.Cmp(maxA) > 0 || amountB.Cmp(maxB) > 0 {
			return nil, nil, nil, ErrSlippageExceeded
		}
		lpMinted = new(big.Int).Set(lpWanted)
	}

	balanceA, err := e.state.Balance(provider, cfg.TokenA)
	if err != nil {
		return nil, nil, nil, err
	}
	balanceB, err := e.state.Balance(provider, cfg.TokenB)
	if err != nil {
		return nil, nil, nil, err
	}
	if balanceA.Cmp(amountA) < 0 || balanceB.Cmp(amountB) < 0 {
		return nil, nil, nil, ErrInsufficientBalance
	}

	if err := e.state.TransferToken(provider, cfg.VaultA, cfg.TokenA, amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := e.state.TransferToken(provider, cfg.VaultB, cfg.TokenB, amountB); err != nil {
		return nil, nil, nil, err
	}
	if err := e.state.MintToken(provider, cfg.LPSymbol, lpMinted); err != nil {
		return nil, nil, nil, err
	}

	e.emitter.Emit(events.PoolDeposited{
		Provider: append([]byte(nil), provider...),
		AmountA:  amountA,
		AmountB:  amountB,
		LPMinted: lpMinted,
	})
	return lpMinted, amountA, amountB, nil
}

// Swap trades amountIn of one asset for the other along the constant-product
// curve after deducting the fee. The realized output must meet the caller's
// minimum and can never drain a reserve to zero.
func (e *Engine) Swap(trader []byte, aToB bool, amountIn, minOut *big.Int) (*big.Int, error) {
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
	if cfg.Locked {
		return nil, ErrPoolLocked
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	reserveA, reserveB, err := e.Reserves()
	if err != nil {
		return nil, err
	}
	if reserveA.Sign() == 0 || reserveB.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	reserveIn, reserveOut := reserveA, reserveB
	tokenIn, tokenOut := cfg.TokenA, cfg.TokenB
	vaultIn, vaultOut := cfg.VaultA, cfg.VaultB
	if !aToB {
		reserveIn, reserveOut = reserveB, reserveA
		tokenIn, tokenOut = cfg.TokenB, cfg.TokenA
		vaultIn, vaultOut = cfg.VaultB, cfg.VaultA
	}

	effIn := effectiveInput(amountIn, cfg.FeeBps)
	amountOut := swapOutput(reserveIn, reserveOut, effIn)
	if amountOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if minOut != nil && amountOut.Cmp(minOut) < 0 {
		return nil, ErrSlippageExceeded
	}

	balance, err := e.state.Balance(trader, tokenIn)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amountIn) < 0 {
		return nil, ErrInsufficientBalance
	}

	if err := e.state.TransferToken(trader, vaultIn, tokenIn, amountIn); err != nil {
		return nil, err
	}
	if err := e.state.TransferToken(vaultOut, trader, tokenOut, amountOut); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.PoolSwapped{
		Trader:    append([]byte(nil), trader...),
		AToB:      aToB,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: amountOut,
	})
	return amountOut, nil
}

// Withdraw burns LP shares and pays out the proportional slice of both
// reserves, subject to the caller's minimum amounts.
func (e *Engine) Withdraw(provider []byte, lpToBurn, minA, minB *big.Int) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Locked {
		return nil, nil, ErrPoolLocked
	}
	if lpToBurn == nil || lpToBurn.Sign() <= 0 {
		return nil, nil, errInvalidAmount
	}

	lpSupply, err := e.state.TotalSupply(cfg.LPSymbol)
	if err != nil {
		return nil, nil, err
	}
	if lpSupply.Sign() == 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	lpBalance, err := e.state.Balance(provider, cfg.LPSymbol)
	if err != nil {
		return nil, nil, err
	}
	if lpBalance.Cmp(lpToBurn) < 0 {
		return nil, nil, ErrInsufficientBalance
	}

	reserveA, reserveB, err := e.Reserves()
	if err != nil {
		return nil, nil, err
	}
	amountA := proportionalAmount(reserveA, lpToBurn, lpSupply)
	amountB := proportionalAmount(reserveB, lpToBurn, lpSupply)
	if minA != nil && amountA.Cmp(minA) < 0 {
		return nil, nil, ErrSlippageExceeded
	}
	if minB != nil && amountB.Cmp(minB) < 0 {
		return nil, nil, ErrSlippageExceeded
	}

	if err := e.state.BurnToken(provider, cfg.LPSymbol, lpToBurn); err != nil {
		return nil, nil, err
	}
	if amountA.Sign() > 0 {
		if err := e.state.TransferToken(cfg.VaultA, provider, cfg.TokenA, amountA); err != nil {
			return nil, nil, err
		}
	}
	if amountB.Sign() > 0 {
		if err := e.state.TransferToken(cfg.VaultB, provider, cfg.TokenB, amountB); err != nil {
			return nil, nil, err
		}
	}

	e.emitter.Emit(events.PoolWithdrawn{
		Provider: append([]byte(nil), provider...),
		LPBurned: new(big.Int).Set(lpToBurn),
		AmountA:  amountA,
		AmountB:  amountB,
	})
	return amountA, amountB, nil
}
