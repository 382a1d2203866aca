package state

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lottochain/core/types"
)

type storedAccount struct {
	Lamports uint64
}

// GetAccount returns the balance holder at addr. Unknown addresses resolve to
// an empty account.
func (m *Manager) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	var stored storedAccount
	if _, err := m.KVGet(AccountKey(addr), &stored); err != nil {
		return nil, err
	}
	return &types.Account{Lamports: stored.Lamports}, nil
}

// PutAccount persists the balance holder at addr.
func (m *Manager) PutAccount(addr solana.PublicKey, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	return m.KVPut(AccountKey(addr), storedAccount{Lamports: account.Lamports})
}

// AccountExists reports whether a balance record exists for addr.
func (m *Manager) AccountExists(addr solana.PublicKey) (bool, error) {
	return m.KVHas(AccountKey(addr))
}

// Supply returns the total lamports ever minted into the ledger.
func (m *Manager) Supply() (uint64, error) {
	var supply uint64
	if _, err := m.KVGet(supplyKey, &supply); err != nil {
		return 0, err
	}
	return supply, nil
}

// Mint credits amount to addr and grows the tracked supply. Transfers between
// accounts never change the supply.
func (m *Manager) Mint(addr solana.PublicKey, amount uint64) (*types.Account, error) {
	supply, err := m.Supply()
	if err != nil {
		return nil, err
	}
	if supply+amount < supply {
		return nil, fmt.Errorf("state: supply overflow")
	}
	account, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account.Lamports+amount < account.Lamports {
		return nil, fmt.Errorf("state: balance overflow")
	}
	account.Lamports += amount
	if err := m.PutAccount(addr, account); err != nil {
		return nil, err
	}
	if err := m.KVPut(supplyKey, supply+amount); err != nil {
		return nil, err
	}
	return account, nil
}

var genesisMarkerKey = []byte("lotto/meta/genesis")

// GenesisApplied reports whether genesis allocations were already credited.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.KVHas(genesisMarkerKey)
}

// MarkGenesisApplied records that genesis allocations have been credited.
func (m *Manager) MarkGenesisApplied() error {
	return m.KVPut(genesisMarkerKey, true)
}
