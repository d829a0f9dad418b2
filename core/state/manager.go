package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"bhrtchain/core/types"
	"bhrtchain/storage"
)

// Manager provides the canonical read/write surface over protocol state. All
// records are RLP encoded and stored under keccak256-hashed prefixed keys so
// engines never touch raw storage keys directly.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// TokenMetadata describes a fungible token registered with the protocol.
type TokenMetadata struct {
	Symbol        string
	Name          string
	Decimals      uint8
	MintAuthority []byte
	MintPaused    bool
}

var (
	tokenPrefix   = []byte("token:")
	tokenListKey  = ethcrypto.Keccak256([]byte("token-list"))
	balancePrefix = []byte("balance:")
	supplyPrefix  = []byte("supply:")
	accountPrefix = []byte("account:")
	nftPrefix     = []byte("nft:")
	nftOwnerPfx   = []byte("nft-owner:")
)

// ErrTokenUnknown is returned for operations against unregistered symbols.
var ErrTokenUnknown = errors.New("state: token not registered")

func tokenMetadataKey(symbol string) []byte {
	buf := make([]byte, len(tokenPrefix)+len(symbol))
	copy(buf, tokenPrefix)
	copy(buf[len(tokenPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr []byte, symbol string) []byte {
	buf := make([]byte, len(balancePrefix)+len(symbol)+1+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], symbol)
	buf[len(balancePrefix)+len(symbol)] = ':'
	copy(buf[len(balancePrefix)+len(symbol)+1:], addr)
	return ethcrypto.Keccak256(buf)
}

func supplyKey(symbol string) []byte {
	buf := make([]byte, len(supplyPrefix)+len(symbol))
	copy(buf, supplyPrefix)
	copy(buf[len(supplyPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func nftKey(collection string, id uint64) []byte {
	return ethcrypto.Keccak256([]byte(fmt.Sprintf("%s%s:%d", nftPrefix, collection, id)))
}

func nftOwnerKey(collection string, owner []byte) []byte {
	buf := make([]byte, len(nftOwnerPfx)+len(collection)+1+len(owner))
	copy(buf, nftOwnerPfx)
	copy(buf[len(nftOwnerPfx):], collection)
	buf[len(nftOwnerPfx)+len(collection)] = ':'
	copy(buf[len(nftOwnerPfx)+len(collection)+1:], owner)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// --- Token registry ---

func (m *Manager) loadTokenList() ([]string, error) {
	data, err := m.get(tokenListKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []string{}, nil
	}
	var list []string
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) writeTokenList(list []string) error {
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(tokenListKey, encoded)
}

func (m *Manager) loadTokenMetadata(symbol string) (*TokenMetadata, error) {
	data, err := m.get(tokenMetadataKey(symbol))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (m *Manager) writeTokenMetadata(symbol string, meta *TokenMetadata) error {
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	return m.db.Put(tokenMetadataKey(symbol), encoded)
}

// RegisterToken stores the metadata for a protocol token and records it in the
// token index.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("token %s: name must not be empty", normalized)
	}
	if existing, err := m.loadTokenMetadata(normalized); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("token %s already registered", normalized)
	}

	list, err := m.loadTokenList()
	if err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	if err := m.writeTokenList(list); err != nil {
		return err
	}

	meta := &TokenMetadata{
		Symbol:   normalized,
		Name:     name,
		Decimals: decimals,
	}
	return m.writeTokenMetadata(normalized, meta)
}

// Token retrieves metadata for a registered token.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	return m.loadTokenMetadata(normalized)
}

// TokenExists reports whether the provided token symbol is registered.
func (m *Manager) TokenExists(symbol string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return false
	}
	meta, err := m.loadTokenMetadata(normalized)
	return err == nil && meta != nil
}

// TokenList returns all registered token symbols in sorted order.
func (m *Manager) TokenList() ([]string, error) {
	return m.loadTokenList()
}

// --- Balances and supply ---

// SetBalance stores an account balance for the provided token.
func (m *Manager) SetBalance(addr []byte, symbol string, amount *big.Int) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if meta, err := m.loadTokenMetadata(normalized); err != nil {
		return err
	} else if meta == nil {
		return ErrTokenUnknown
	}

	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.db.Put(balanceKey(addr, normalized), encoded)
}

// Balance retrieves a token balance for the provided account and token.
func (m *Manager) Balance(addr []byte, symbol string) (*big.Int, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	data, err := m.get(balanceKey(addr, normalized))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// TotalSupply returns the cumulative minted supply net of burns for a token.
func (m *Manager) TotalSupply(symbol string) (*big.Int, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	data, err := m.get(supplyKey(normalized))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	supply := new(big.Int)
	if err := rlp.DecodeBytes(data, supply); err != nil {
		return nil, err
	}
	return supply, nil
}

func (m *Manager) writeSupply(symbol string, supply *big.Int) error {
	encoded, err := rlp.EncodeToBytes(supply)
	if err != nil {
		return err
	}
	return m.db.Put(supplyKey(symbol), encoded)
}

// MintToken credits the amount to the address and grows the token supply.
func (m *Manager) MintToken(addr []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive")
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	balance, err := m.Balance(addr, normalized)
	if err != nil {
		return err
	}
	supply, err := m.TotalSupply(normalized)
	if err != nil {
		return err
	}
	if err := m.SetBalance(addr, normalized, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return m.writeSupply(normalized, new(big.Int).Add(supply, amount))
}

// BurnToken debits the amount from the address and shrinks the token supply.
// The caller is responsible for surfacing a typed insufficient-balance error;
// the manager enforces the bound defensively.
func (m *Manager) BurnToken(addr []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("burn amount must be positive")
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	balance, err := m.Balance(addr, normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("burn %s: amount exceeds balance", normalized)
	}
	supply, err := m.TotalSupply(normalized)
	if err != nil {
		return err
	}
	if err := m.SetBalance(addr, normalized, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	next := new(big.Int).Sub(supply, amount)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	return m.writeSupply(normalized, next)
}

// TransferToken moves amount between two addresses for the given token.
func (m *Manager) TransferToken(from, to []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	fromBal, err := m.Balance(from, normalized)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s: amount exceeds balance", normalized)
	}
	toBal, err := m.Balance(to, normalized)
	if err != nil {
		return err
	}
	if err := m.SetBalance(from, normalized, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.SetBalance(to, normalized, new(big.Int).Add(toBal, amount))
}

// --- Accounts ---

// GetAccount loads the account record for the address, or nil when absent.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, err
	}
	return account, nil
}

// PutAccount persists the account record for the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// --- Unique (NFT) tokens ---

// UniqueToken is a supply-1 zero-decimal token tied to a collection.
type UniqueToken struct {
	Collection         string
	ID                 uint64
	Owner              []byte
	Name               string
	URI                string
	CollectionVerified bool
}

// PutUniqueToken stores the unique token record and its owner index entry.
func (m *Manager) PutUniqueToken(token *UniqueToken) error {
	if token == nil {
		return fmt.Errorf("unique token must not be nil")
	}
	if len(token.Owner) == 0 {
		return fmt.Errorf("unique token owner must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(token)
	if err != nil {
		return err
	}
	if err := m.db.Put(nftKey(token.Collection, token.ID), encoded); err != nil {
		return err
	}
	idEncoded, err := rlp.EncodeToBytes(token.ID)
	if err != nil {
		return err
	}
	return m.db.Put(nftOwnerKey(token.Collection, token.Owner), idEncoded)
}

// UniqueToken loads a unique token by collection and id, or nil when absent.
func (m *Manager) UniqueToken(collection string, id uint64) (*UniqueToken, error) {
	data, err := m.get(nftKey(collection, id))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	token := new(UniqueToken)
	if err := rlp.DecodeBytes(data, token); err != nil {
		return nil, err
	}
	return token, nil
}

// UniqueTokenByOwner resolves the unique token held by the owner within the
// collection, or nil when the owner holds none.
func (m *Manager) UniqueTokenByOwner(collection string, owner []byte) (*UniqueToken, error) {
	data, err := m.get(nftOwnerKey(collection, owner))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var id uint64
	if err := rlp.DecodeBytes(data, &id); err != nil {
		return nil, err
	}
	return m.UniqueToken(collection, id)
}

// BurnUniqueToken removes the unique token record and its owner index entry.
func (m *Manager) BurnUniqueToken(collection string, id uint64) error {
	token, err := m.UniqueToken(collection, id)
	if err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("unique token %s/%d not found", collection, id)
	}
	if err := m.db.Delete(nftOwnerKey(collection, token.Owner)); err != nil {
		return err
	}
	return m.db.Delete(nftKey(collection, id))
}

// --- Generic KV helpers ---

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before hitting storage.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the record stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.db.Delete(kvKey(key))
}
