package state

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

var (
	accountPrefix         = []byte("lotto/account/")
	supplyKey             = []byte("lotto/supply")
	roundPrefix           = []byte("lotto/round/")
	entryPrefix           = []byte("lotto/entry/")
	treasuryPrefix        = []byte("lotto/treasury/")
	roundEntryPrefix      = []byte("lotto/round-entry/")
	roundEntryCountPrefix = []byte("lotto/round-entry-count/")
	entrantEntryPrefix    = []byte("lotto/entrant-entry/")
	operatorRoundPrefix   = []byte("lotto/operator-round/")
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	key := make([]byte, 0, size)
	key = append(key, prefix...)
	for _, part := range parts {
		key = append(key, part...)
	}
	return key
}

func be64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// AccountKey returns the storage key holding the balance of addr.
func AccountKey(addr solana.PublicKey) []byte { return prefixedKey(accountPrefix, addr.Bytes()) }

// RoundKey returns the storage key holding the round record at addr.
func RoundKey(addr solana.PublicKey) []byte { return prefixedKey(roundPrefix, addr.Bytes()) }

// EntryKey returns the storage key holding the entry record at addr.
func EntryKey(addr solana.PublicKey) []byte { return prefixedKey(entryPrefix, addr.Bytes()) }

// TreasuryKey returns the storage key holding the treasury record at addr.
func TreasuryKey(addr solana.PublicKey) []byte { return prefixedKey(treasuryPrefix, addr.Bytes()) }

func roundEntryKey(round solana.PublicKey, seq uint64) []byte {
	return prefixedKey(roundEntryPrefix, round.Bytes(), be64(seq))
}

func roundEntryCountKey(round solana.PublicKey) []byte {
	return prefixedKey(roundEntryCountPrefix, round.Bytes())
}

func entrantEntryKey(entrant, entry solana.PublicKey) []byte {
	return prefixedKey(entrantEntryPrefix, entrant.Bytes(), entry.Bytes())
}

func operatorRoundKey(authority solana.PublicKey, roundID uint64) []byte {
	return prefixedKey(operatorRoundPrefix, authority.Bytes(), be64(roundID))
}
