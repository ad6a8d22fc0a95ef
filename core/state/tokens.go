package state

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrTokenNotRegistered is returned when the token address is unknown.
	ErrTokenNotRegistered = errors.New("state: token not registered")
	// ErrTokenExists is returned when registering a duplicate token.
	ErrTokenExists = errors.New("state: token already registered")
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the
	// holder's balance.
	ErrInsufficientBalance = errors.New("state: insufficient token balance")
	// ErrNotMintAuthority is returned when mint or burn is attempted by an
	// address other than the token's registered authority.
	ErrNotMintAuthority = errors.New("state: caller is not the mint authority")
	// ErrBalanceOverflow is returned when a balance would exceed 256 bits.
	ErrBalanceOverflow = errors.New("state: token balance overflow")
	// ErrInvalidTokenAmount is returned for nil or negative amounts.
	ErrInvalidTokenAmount = errors.New("state: token amount must not be negative")
)

var (
	tokenMetaPrefix    = []byte("token/meta/")
	tokenBalancePrefix = []byte("token/balance/")
)

// TokenMetadata describes a registered fungible token.
type TokenMetadata struct {
	Symbol        string
	Name          string
	Decimals      uint8
	MintAuthority common.Address
	TotalSupply   *big.Int
}

func tokenMetaKey(token common.Address) []byte {
	buf := make([]byte, len(tokenMetaPrefix)+common.AddressLength)
	copy(buf, tokenMetaPrefix)
	copy(buf[len(tokenMetaPrefix):], token.Bytes())
	return buf
}

func tokenBalanceKey(token, addr common.Address) []byte {
	buf := make([]byte, len(tokenBalancePrefix)+2*common.AddressLength+1)
	copy(buf, tokenBalancePrefix)
	copy(buf[len(tokenBalancePrefix):], token.Bytes())
	buf[len(tokenBalancePrefix)+common.AddressLength] = ':'
	copy(buf[len(tokenBalancePrefix)+common.AddressLength+1:], addr.Bytes())
	return buf
}

func (m *Manager) loadToken(token common.Address) (*TokenMetadata, error) {
	meta := new(TokenMetadata)
	ok, err := m.kvGet(tokenMetaKey(token), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = new(big.Int)
	}
	return meta, nil
}

// RegisterToken stores the metadata for a fungible token.
func (m *Manager) RegisterToken(token common.Address, symbol, name string, decimals uint8) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return errors.New("state: token symbol must not be empty")
	}
	existing, err := m.loadToken(token)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrTokenExists
	}
	meta := &TokenMetadata{
		Symbol:      symbol,
		Name:        strings.TrimSpace(name),
		Decimals:    decimals,
		TotalSupply: new(big.Int),
	}
	return m.kvPut(tokenMetaKey(token), meta)
}

// SetMinter configures the authority allowed to mint and burn the token.
func (m *Manager) SetMinter(token, authority common.Address) error {
	meta, err := m.loadToken(token)
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrTokenNotRegistered
	}
	meta.MintAuthority = authority
	return m.kvPut(tokenMetaKey(token), meta)
}

// Token retrieves metadata for a registered token.
func (m *Manager) Token(token common.Address) (*TokenMetadata, error) {
	meta, err := m.loadToken(token)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrTokenNotRegistered
	}
	return meta, nil
}

// Decimals returns the token's native decimals.
func (m *Manager) Decimals(token common.Address) (uint8, error) {
	meta, err := m.Token(token)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// Symbol returns the token's registered symbol.
func (m *Manager) Symbol(token common.Address) (string, error) {
	meta, err := m.Token(token)
	if err != nil {
		return "", err
	}
	return meta.Symbol, nil
}

// TotalSupply returns the token's outstanding supply.
func (m *Manager) TotalSupply(token common.Address) (*big.Int, error) {
	meta, err := m.Token(token)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(meta.TotalSupply), nil
}

// BalanceOf returns the holder's balance, zero when never written.
func (m *Manager) BalanceOf(token, addr common.Address) (*big.Int, error) {
	if meta, err := m.loadToken(token); err != nil {
		return nil, err
	} else if meta == nil {
		return nil, ErrTokenNotRegistered
	}
	balance := new(big.Int)
	if _, err := m.kvGet(tokenBalanceKey(token, addr), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (m *Manager) putBalance(token, addr common.Address, balance *big.Int) error {
	// Balances are bounded to 256 bits like the host ledger's word size.
	if _, overflow := uint256.FromBig(balance); overflow {
		return ErrBalanceOverflow
	}
	return m.kvPut(tokenBalanceKey(token, addr), balance)
}

// Transfer moves amount between two holders.
func (m *Manager) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidTokenAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := m.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := m.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := m.putBalance(token, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.putBalance(token, to, new(big.Int).Add(toBalance, amount))
}

// Mint creates amount for the recipient. Only the token's registered
// authority may mint.
func (m *Manager) Mint(token, authority, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidTokenAmount
	}
	meta, err := m.loadToken(token)
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrTokenNotRegistered
	}
	if meta.MintAuthority == (common.Address{}) || authority != meta.MintAuthority {
		return ErrNotMintAuthority
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := m.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := m.putBalance(token, to, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	meta.TotalSupply = new(big.Int).Add(meta.TotalSupply, amount)
	if _, overflow := uint256.FromBig(meta.TotalSupply); overflow {
		return ErrBalanceOverflow
	}
	return m.kvPut(tokenMetaKey(token), meta)
}

// Burn destroys amount held by from. Only the token's registered authority
// may burn.
func (m *Manager) Burn(token, authority, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidTokenAmount
	}
	meta, err := m.loadToken(token)
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrTokenNotRegistered
	}
	if meta.MintAuthority == (common.Address{}) || authority != meta.MintAuthority {
		return ErrNotMintAuthority
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := m.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := m.putBalance(token, from, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	meta.TotalSupply = new(big.Int).Sub(meta.TotalSupply, amount)
	if meta.TotalSupply.Sign() < 0 {
		meta.TotalSupply = new(big.Int)
	}
	return m.kvPut(tokenMetaKey(token), meta)
}
