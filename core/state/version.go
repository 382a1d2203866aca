package state

import (
	"errors"
	"fmt"
	"math"
)

// StateVersion identifies the on-disk layout of ledger records. Increment it
// whenever a stored record changes shape.
const StateVersion uint32 = 1

var (
	stateVersionKey = []byte("lotto/state/version")
	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// SetStateVersion records the provided schema version.
func (m *Manager) SetStateVersion(version uint32) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return m.KVPut(stateVersionKey, uint64(version))
}

// StateVersion returns the stored schema version and whether it was present.
func (m *Manager) StateVersion() (uint32, bool, error) {
	if m == nil {
		return 0, false, fmt.Errorf("state: manager unavailable")
	}
	var stored uint64
	ok, err := m.KVGet(stateVersionKey, &stored)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureStateVersion stamps an empty store with StateVersion and verifies
// that a populated one matches it. When allowMigrate is true, mismatches are
// tolerated so operators can perform manual migrations.
func EnsureStateVersion(store Store, allowMigrate bool) error {
	if store == nil {
		return fmt.Errorf("state: store must not be nil")
	}
	manager := NewManager(store)
	version, ok, err := manager.StateVersion()
	if err != nil {
		return err
	}
	if !ok {
		empty, err := manager.isEmpty()
		if err != nil {
			return err
		}
		if empty {
			return manager.SetStateVersion(StateVersion)
		}
	}
	if ok && version == StateVersion {
		return nil
	}
	if allowMigrate {
		return nil
	}
	return fmt.Errorf("%w: on-disk=%d expected=%d", ErrStateVersionMismatch, version, StateVersion)
}

func (m *Manager) isEmpty() (bool, error) {
	empty := true
	err := m.store.Iterate([]byte("lotto/"), func(_, _ []byte) bool {
		empty = false
		return false
	})
	return empty, err
}
