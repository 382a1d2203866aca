package lotto

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

const (
	RoundSeed         = "round"
	EntrySeed         = "entry"
	TreasurySeed      = "treasury"
	TreasuryVaultSeed = "treasury_vault"
)

// DefaultProgramID scopes every derived address when no program identity is
// configured.
var DefaultProgramID = solana.MustPublicKeyFromBase58("DfJJWgdxk5qw8ujuyZQ6FmNVz8Xi6cZStXhbsGrK2LQj")

// RoundSeedBytes returns the little-endian encoding of a round identifier
// used as the round's derivation seed.
func RoundSeedBytes(roundID uint64) [8]byte {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], roundID)
	return seed
}

func roundSeeds(authority solana.PublicKey, seed [8]byte) [][]byte {
	return [][]byte{[]byte(RoundSeed), authority.Bytes(), seed[:]}
}

func entrySeeds(round, entrant solana.PublicKey, nonce uint8) [][]byte {
	return [][]byte{[]byte(EntrySeed), round.Bytes(), entrant.Bytes(), {nonce}}
}

func treasurySeeds(authority solana.PublicKey) [][]byte {
	return [][]byte{[]byte(TreasurySeed), authority.Bytes()}
}

func vaultSeeds(authority solana.PublicKey) [][]byte {
	return [][]byte{[]byte(TreasuryVaultSeed), authority.Bytes()}
}

// FindRoundAddress derives the round address and its canonical bump.
func FindRoundAddress(programID, authority solana.PublicKey, roundID uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(roundSeeds(authority, RoundSeedBytes(roundID)), programID)
}

// FindEntryAddress derives the receipt address for (round, entrant, nonce).
func FindEntryAddress(programID, round, entrant solana.PublicKey, nonce uint8) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(entrySeeds(round, entrant, nonce), programID)
}

// FindTreasuryAddress derives the operator's treasury configuration address.
func FindTreasuryAddress(programID, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(treasurySeeds(authority), programID)
}

// FindTreasuryVaultAddress derives the operator's custody vault address.
func FindTreasuryVaultAddress(programID, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(vaultSeeds(authority), programID)
}

// verifyAddress re-derives an address from its seeds and stored bump and
// checks it against the supplied address.
func verifyAddress(programID, addr solana.PublicKey, seeds [][]byte, bump uint8) error {
	withBump := make([][]byte, 0, len(seeds)+1)
	withBump = append(withBump, seeds...)
	withBump = append(withBump, []byte{bump})
	derived, err := solana.CreateProgramAddress(withBump, programID)
	if err != nil {
		return ErrConstraintSeeds
	}
	if !derived.Equals(addr) {
		return ErrConstraintSeeds
	}
	return nil
}

// VerifyRoundAddress checks addr against the round derivation and bump.
func VerifyRoundAddress(programID, addr, authority solana.PublicKey, seed [8]byte, bump uint8) error {
	return verifyAddress(programID, addr, roundSeeds(authority, seed), bump)
}

// VerifyEntryAddress checks addr against the entry derivation and bump.
func VerifyEntryAddress(programID, addr, round, entrant solana.PublicKey, nonce, bump uint8) error {
	return verifyAddress(programID, addr, entrySeeds(round, entrant, nonce), bump)
}

// VerifyTreasuryAddress checks addr against the treasury derivation and bump.
func VerifyTreasuryAddress(programID, addr, authority solana.PublicKey, bump uint8) error {
	return verifyAddress(programID, addr, treasurySeeds(authority), bump)
}

// VerifyTreasuryVaultAddress checks addr against the vault derivation and bump.
func VerifyTreasuryVaultAddress(programID, addr, authority solana.PublicKey, bump uint8) error {
	return verifyAddress(programID, addr, vaultSeeds(authority), bump)
}

// Addresses groups every derived address an operator needs to run a round.
type Addresses struct {
	Round         solana.PublicKey `json:"round"`
	RoundBump     uint8            `json:"roundBump"`
	Treasury      solana.PublicKey `json:"treasury"`
	TreasuryBump  uint8            `json:"treasuryBump"`
	TreasuryVault solana.PublicKey `json:"treasuryVault"`
	VaultBump     uint8            `json:"vaultBump"`
}

// DeriveAddresses computes the round, treasury and vault addresses for an
// operator's round.
func DeriveAddresses(programID, authority solana.PublicKey, roundID uint64) (Addresses, error) {
	var out Addresses
	var err error
	if out.Round, out.RoundBump, err = FindRoundAddress(programID, authority, roundID); err != nil {
		return Addresses{}, err
	}
	if out.Treasury, out.TreasuryBump, err = FindTreasuryAddress(programID, authority); err != nil {
		return Addresses{}, err
	}
	if out.TreasuryVault, out.VaultBump, err = FindTreasuryVaultAddress(programID, authority); err != nil {
		return Addresses{}, err
	}
	return out, nil
}
