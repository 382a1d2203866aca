package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"

	"lottochain/native/lotto"
)

type storedRound struct {
	Authority           [32]byte
	RoundID             uint64
	RoundSeed           [8]byte
	TicketPriceLamports uint64
	MaxEntries          uint32
	StartSlot           uint64
	EndSlot             uint64
	PotLamports         uint64
	TreasuryCutLamports uint64
	HasWinner           bool
	Winner              [32]byte
	Status              uint8
	EntryCount          uint32
	Bump                uint8
}

type storedEntry struct {
	Round        [32]byte
	Entrant      [32]byte
	Tickets      uint16
	LamportsPaid uint64
	Claimed      bool
	CreatedSlot  uint64
	Bump         uint8
	Nonce        uint8
}

type storedTreasury struct {
	Authority        [32]byte
	RetainedBps      uint16
	VaultBump        uint8
	Bump             uint8
	LastWithdrawSlot uint64
}

func newStoredRound(r *lotto.Round) storedRound {
	stored := storedRound{
		Authority:           r.Authority,
		RoundID:             r.RoundID,
		RoundSeed:           r.RoundSeed,
		TicketPriceLamports: r.TicketPriceLamports,
		MaxEntries:          r.MaxEntries,
		StartSlot:           r.StartSlot,
		EndSlot:             r.EndSlot,
		PotLamports:         r.PotLamports,
		TreasuryCutLamports: r.TreasuryCutLamports,
		Status:              uint8(r.Status),
		EntryCount:          r.EntryCount,
		Bump:                r.Bump,
	}
	if r.Winner != nil {
		stored.HasWinner = true
		stored.Winner = *r.Winner
	}
	return stored
}

func (s *storedRound) toRound(addr solana.PublicKey) (*lotto.Round, error) {
	status := lotto.RoundStatus(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("state: round %s has invalid status %d", addr, s.Status)
	}
	round := &lotto.Round{
		Address:             addr,
		Authority:           s.Authority,
		RoundID:             s.RoundID,
		RoundSeed:           s.RoundSeed,
		TicketPriceLamports: s.TicketPriceLamports,
		MaxEntries:          s.MaxEntries,
		StartSlot:           s.StartSlot,
		EndSlot:             s.EndSlot,
		PotLamports:         s.PotLamports,
		TreasuryCutLamports: s.TreasuryCutLamports,
		Status:              status,
		EntryCount:          s.EntryCount,
		Bump:                s.Bump,
	}
	if s.HasWinner {
		winner := solana.PublicKey(s.Winner)
		round.Winner = &winner
	}
	return round, nil
}

// RoundGet loads the round stored at addr.
func (m *Manager) RoundGet(addr solana.PublicKey) (*lotto.Round, bool, error) {
	var stored storedRound
	ok, err := m.KVGet(RoundKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	round, err := stored.toRound(addr)
	if err != nil {
		return nil, false, err
	}
	return round, true, nil
}

// RoundPut persists a round and, on first write, indexes it under its
// operator.
func (m *Manager) RoundPut(round *lotto.Round) error {
	if round == nil {
		return fmt.Errorf("state: nil round")
	}
	if !round.Status.Valid() {
		return fmt.Errorf("state: invalid round status %d", round.Status)
	}
	key := RoundKey(round.Address)
	exists, err := m.KVHas(key)
	if err != nil {
		return err
	}
	if err := m.KVPut(key, newStoredRound(round)); err != nil {
		return err
	}
	if exists {
		return nil
	}
	addr := [32]byte(round.Address)
	return m.KVPut(operatorRoundKey(round.Authority, round.RoundID), addr)
}

// EntryGet loads the entry stored at addr.
func (m *Manager) EntryGet(addr solana.PublicKey) (*lotto.Entry, bool, error) {
	var stored storedEntry
	ok, err := m.KVGet(EntryKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &lotto.Entry{
		Address:      addr,
		Round:        stored.Round,
		Entrant:      stored.Entrant,
		Tickets:      stored.Tickets,
		LamportsPaid: stored.LamportsPaid,
		Claimed:      stored.Claimed,
		CreatedSlot:  stored.CreatedSlot,
		Bump:         stored.Bump,
		Nonce:        stored.Nonce,
	}, true, nil
}

// EntryPut persists an entry. New entries are appended to the round's entry
// index in purchase order and to the entrant's index.
func (m *Manager) EntryPut(entry *lotto.Entry) error {
	if entry == nil {
		return fmt.Errorf("state: nil entry")
	}
	key := EntryKey(entry.Address)
	exists, err := m.KVHas(key)
	if err != nil {
		return err
	}
	stored := storedEntry{
		Round:        entry.Round,
		Entrant:      entry.Entrant,
		Tickets:      entry.Tickets,
		LamportsPaid: entry.LamportsPaid,
		Claimed:      entry.Claimed,
		CreatedSlot:  entry.CreatedSlot,
		Bump:         entry.Bump,
		Nonce:        entry.Nonce,
	}
	if err := m.KVPut(key, stored); err != nil {
		return err
	}
	if exists {
		return nil
	}
	var seq uint64
	if _, err := m.KVGet(roundEntryCountKey(entry.Round), &seq); err != nil {
		return err
	}
	addr := [32]byte(entry.Address)
	if err := m.KVPut(roundEntryKey(entry.Round, seq), addr); err != nil {
		return err
	}
	if err := m.KVPut(roundEntryCountKey(entry.Round), seq+1); err != nil {
		return err
	}
	return m.KVPut(entrantEntryKey(entry.Entrant, entry.Address), addr)
}

// TreasuryGet loads the treasury stored at addr.
func (m *Manager) TreasuryGet(addr solana.PublicKey) (*lotto.Treasury, bool, error) {
	var stored storedTreasury
	ok, err := m.KVGet(TreasuryKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &lotto.Treasury{
		Address:          addr,
		Authority:        stored.Authority,
		RetainedBps:      stored.RetainedBps,
		VaultBump:        stored.VaultBump,
		Bump:             stored.Bump,
		LastWithdrawSlot: stored.LastWithdrawSlot,
	}, true, nil
}

// TreasuryPut persists a treasury record.
func (m *Manager) TreasuryPut(treasury *lotto.Treasury) error {
	if treasury == nil {
		return fmt.Errorf("state: nil treasury")
	}
	return m.KVPut(TreasuryKey(treasury.Address), storedTreasury{
		Authority:        treasury.Authority,
		RetainedBps:      treasury.RetainedBps,
		VaultBump:        treasury.VaultBump,
		Bump:             treasury.Bump,
		LastWithdrawSlot: treasury.LastWithdrawSlot,
	})
}

// RoundEntryCount returns the number of receipts issued for round.
func (m *Manager) RoundEntryCount(round solana.PublicKey) (uint64, error) {
	var count uint64
	if _, err := m.KVGet(roundEntryCountKey(round), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// RoundEntries returns up to limit receipts of round in purchase order,
// skipping the first offset. A zero limit returns every remaining receipt.
func (m *Manager) RoundEntries(round solana.PublicKey, offset, limit int) ([]*lotto.Entry, error) {
	addrs, err := m.collectAddresses(prefixedKey(roundEntryPrefix, round.Bytes()), offset, limit)
	if err != nil {
		return nil, err
	}
	return m.loadEntries(addrs)
}

// EntrantEntries returns every receipt held by entrant, ordered by address.
func (m *Manager) EntrantEntries(entrant solana.PublicKey) ([]*lotto.Entry, error) {
	addrs, err := m.collectAddresses(prefixedKey(entrantEntryPrefix, entrant.Bytes()), 0, 0)
	if err != nil {
		return nil, err
	}
	return m.loadEntries(addrs)
}

// OperatorRounds returns the rounds opened by authority ordered by round id.
func (m *Manager) OperatorRounds(authority solana.PublicKey, offset, limit int) ([]*lotto.Round, error) {
	addrs, err := m.collectAddresses(prefixedKey(operatorRoundPrefix, authority.Bytes()), offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*lotto.Round, 0, len(addrs))
	for _, addr := range addrs {
		round, ok, err := m.RoundGet(addr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, round)
		}
	}
	return out, nil
}

// Rounds returns every stored round ordered by address.
func (m *Manager) Rounds(offset, limit int) ([]*lotto.Round, error) {
	var out []*lotto.Round
	skipped := 0
	err := m.iterate(roundPrefix, func(key, value []byte) (bool, error) {
		if skipped < offset {
			skipped++
			return true, nil
		}
		var stored storedRound
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			return false, err
		}
		round, err := stored.toRound(solana.PublicKeyFromBytes(key[len(roundPrefix):]))
		if err != nil {
			return false, err
		}
		out = append(out, round)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

func (m *Manager) collectAddresses(prefix []byte, offset, limit int) ([]solana.PublicKey, error) {
	var addrs []solana.PublicKey
	skipped := 0
	err := m.iterate(prefix, func(_, value []byte) (bool, error) {
		if skipped < offset {
			skipped++
			return true, nil
		}
		var addr [32]byte
		if err := rlp.DecodeBytes(value, &addr); err != nil {
			return false, err
		}
		addrs = append(addrs, addr)
		return limit <= 0 || len(addrs) < limit, nil
	})
	return addrs, err
}

func (m *Manager) loadEntries(addrs []solana.PublicKey) ([]*lotto.Entry, error) {
	out := make([]*lotto.Entry, 0, len(addrs))
	for _, addr := range addrs {
		entry, ok, err := m.EntryGet(addr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}
