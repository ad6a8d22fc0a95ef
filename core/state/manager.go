package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"dollarpool/storage"
)

// ErrNilValue is returned when a nil record is handed to a Put method.
var ErrNilValue = errors.New("state: nil value")

// Manager is the concrete state store backing the pool engine, the token
// ledger and the AMO borrow ledger. Keys are keccak-hashed before hitting the
// database and values are RLP encoded.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// kvPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) kvPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// kvGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return reports whether the key
// existed.
func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
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
