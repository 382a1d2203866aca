package runtime

import (
	"github.com/gagliardetto/solana-go"

	"lottochain/core/state"
	"lottochain/native/lotto"
)

// MaxPageSize bounds list queries.
const MaxPageSize = 500

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	return offset, limit
}

func (r *Runtime) view() *state.Manager { return state.NewManager(r.db) }

// Round returns the committed round at addr.
func (r *Runtime) Round(addr solana.PublicKey) (*lotto.Round, error) {
	round, ok, err := r.view().RoundGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lotto.ErrAccountNotInitialized
	}
	return round, nil
}

// Entry returns the committed receipt at addr.
func (r *Runtime) Entry(addr solana.PublicKey) (*lotto.Entry, error) {
	entry, ok, err := r.view().EntryGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lotto.ErrAccountNotInitialized
	}
	return entry, nil
}

// Treasury returns the committed treasury at addr.
func (r *Runtime) Treasury(addr solana.PublicKey) (*lotto.Treasury, error) {
	treasury, ok, err := r.view().TreasuryGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lotto.ErrAccountNotInitialized
	}
	return treasury, nil
}

// Balance returns the lamport balance of addr.
func (r *Runtime) Balance(addr solana.PublicKey) (uint64, error) {
	account, err := r.view().GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return account.Lamports, nil
}

// Supply returns the total lamports minted into the ledger.
func (r *Runtime) Supply() (uint64, error) { return r.view().Supply() }

// ListEntries pages through a round's receipts in purchase order.
func (r *Runtime) ListEntries(round solana.PublicKey, offset, limit int) ([]*lotto.Entry, error) {
	offset, limit = clampPage(offset, limit)
	return r.view().RoundEntries(round, offset, limit)
}

// EntrantEntries lists every receipt held by entrant.
func (r *Runtime) EntrantEntries(entrant solana.PublicKey) ([]*lotto.Entry, error) {
	return r.view().EntrantEntries(entrant)
}

// ListRounds pages through the rounds of authority, or every round when
// authority is the zero key.
func (r *Runtime) ListRounds(authority solana.PublicKey, offset, limit int) ([]*lotto.Round, error) {
	offset, limit = clampPage(offset, limit)
	if authority.IsZero() {
		return r.view().Rounds(offset, limit)
	}
	return r.view().OperatorRounds(authority, offset, limit)
}

// DeriveAddresses returns the round, treasury and vault addresses for an
// operator's round under this runtime's program identity.
func (r *Runtime) DeriveAddresses(authority solana.PublicKey, roundID uint64) (lotto.Addresses, error) {
	return lotto.DeriveAddresses(r.programID, authority, roundID)
}

// DeriveEntry returns the receipt address for (round, entrant, nonce).
func (r *Runtime) DeriveEntry(round, entrant solana.PublicKey, nonce uint8) (solana.PublicKey, error) {
	addr, _, err := lotto.FindEntryAddress(r.programID, round, entrant, nonce)
	return addr, err
}
