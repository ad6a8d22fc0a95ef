package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	amoEnabledPrefix  = []byte("amo/enabled/")
	amoBorrowedPrefix = []byte("amo/borrowed/")
	amoTotalKey       = []byte("amo/total-borrowed")
	amoCapKey         = []byte("amo/borrow-cap")
	amoIndexKey       = []byte("amo/index")
)

// storedSignedAmount carries a signed balance through RLP, which only encodes
// non-negative integers.
type storedSignedAmount struct {
	Negative  bool
	Magnitude *big.Int
}

func encodeSigned(v *big.Int) *storedSignedAmount {
	out := &storedSignedAmount{Magnitude: new(big.Int)}
	if v == nil {
		return out
	}
	out.Negative = v.Sign() < 0
	out.Magnitude.Abs(v)
	return out
}

func (s *storedSignedAmount) value() *big.Int {
	v := new(big.Int).Set(nonNil(s.Magnitude))
	if s.Negative {
		v.Neg(v)
	}
	return v
}

func (m *Manager) getSigned(key []byte) (*big.Int, error) {
	stored := new(storedSignedAmount)
	ok, err := m.kvGet(key, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	return stored.value(), nil
}

// IsAmoEnabled reports whether the AMO address is in the enabled set.
func (m *Manager) IsAmoEnabled(amo common.Address) (bool, error) {
	var enabled bool
	if _, err := m.kvGet(addressKey(amoEnabledPrefix, amo), &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// PutAmoEnabled flips the enabled flag for the address and records it in the
// registration-order index on first sight.
func (m *Manager) PutAmoEnabled(amo common.Address, enabled bool) error {
	known, err := m.kvGet(addressKey(amoEnabledPrefix, amo), nil)
	if err != nil {
		return err
	}
	if err := m.kvPut(addressKey(amoEnabledPrefix, amo), enabled); err != nil {
		return err
	}
	if known {
		return nil
	}
	amos, err := m.Amos()
	if err != nil {
		return err
	}
	return m.kvPut(amoIndexKey, append(amos, amo))
}

// Amos lists every AMO address ever enabled, in registration order.
func (m *Manager) Amos() ([]common.Address, error) {
	var amos []common.Address
	if _, err := m.kvGet(amoIndexKey, &amos); err != nil {
		return nil, err
	}
	return amos, nil
}

// BorrowedBalance returns the signed net borrowed amount for the AMO.
func (m *Manager) BorrowedBalance(amo common.Address) (*big.Int, error) {
	return m.getSigned(addressKey(amoBorrowedPrefix, amo))
}

// PutBorrowedBalance persists the signed per-AMO balance.
func (m *Manager) PutBorrowedBalance(amo common.Address, balance *big.Int) error {
	return m.kvPut(addressKey(amoBorrowedPrefix, amo), encodeSigned(balance))
}

// TotalBorrowed returns the signed sum over all AMO balances.
func (m *Manager) TotalBorrowed() (*big.Int, error) {
	return m.getSigned(amoTotalKey)
}

// PutTotalBorrowed persists the signed total.
func (m *Manager) PutTotalBorrowed(total *big.Int) error {
	return m.kvPut(amoTotalKey, encodeSigned(total))
}

// BorrowCap returns the global borrow cap, zero when never set.
func (m *Manager) BorrowCap() (*big.Int, error) {
	cap := new(big.Int)
	if _, err := m.kvGet(amoCapKey, cap); err != nil {
		return nil, err
	}
	return cap, nil
}

// PutBorrowCap persists the global borrow cap.
func (m *Manager) PutBorrowCap(cap *big.Int) error {
	return m.kvPut(amoCapKey, nonNil(cap))
}
