package types

// Account is a host ledger balance holder. Entrants, operators and derived
// custody vaults are all plain accounts; only the lamport balance is tracked.
type Account struct {
	Lamports uint64 `json:"lamports"`
}

// Clone returns a copy that can be mutated without affecting the original.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{}
	}
	clone := *a
	return &clone
}
