package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"lottochain/storage"
)

// Store is the key-value surface the manager reads and writes through. Both
// storage.Database and storage.Tx satisfy it, which lets the runtime stage a
// whole operation and commit or discard it as one unit.
type Store interface {
	storage.Reader
	storage.Writer
}

// Manager maps typed ledger records onto flat, prefixed keys.
type Manager struct {
	store Store
}

// NewManager creates a state manager operating on the provided store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.store.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.store.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// KVHas reports whether key is present.
func (m *Manager) KVHas(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	return m.store.Has(key)
}

// KVDelete removes key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.store.Delete(key)
}

// iterate visits every raw value stored under prefix in key order.
func (m *Manager) iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	var inner error
	err := m.store.Iterate(prefix, func(key, value []byte) bool {
		cont, err := fn(key, value)
		if err != nil {
			inner = err
			return false
		}
		return cont
	})
	if err != nil {
		return err
	}
	return inner
}
