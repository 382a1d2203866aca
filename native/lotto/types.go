package lotto

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// RoundStatus represents the lifecycle states of a lottery round.
type RoundStatus uint8

const (
	// RoundPending is the structural zero value; initialisation always
	// produces RoundOpen.
	RoundPending RoundStatus = iota
	RoundOpen
	// RoundClosed is reserved for an external time-based closer. Settlement
	// accepts it alongside RoundOpen.
	RoundClosed
	RoundSettled
	RoundClosedOut
	RoundCancelled
)

// Valid reports whether the status value is within the supported range.
func (s RoundStatus) Valid() bool {
	switch s {
	case RoundPending, RoundOpen, RoundClosed, RoundSettled, RoundClosedOut, RoundCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s RoundStatus) Terminal() bool {
	return s == RoundClosedOut || s == RoundCancelled
}

func (s RoundStatus) String() string {
	switch s {
	case RoundPending:
		return "pending"
	case RoundOpen:
		return "open"
	case RoundClosed:
		return "closed"
	case RoundSettled:
		return "settled"
	case RoundClosedOut:
		return "closed_out"
	case RoundCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseRoundStatus converts the textual form produced by String back into a
// status value.
func ParseRoundStatus(raw string) (RoundStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return RoundPending, nil
	case "open":
		return RoundOpen, nil
	case "closed":
		return RoundClosed, nil
	case "settled":
		return RoundSettled, nil
	case "closed_out", "closedout":
		return RoundClosedOut, nil
	case "cancelled", "canceled":
		return RoundCancelled, nil
	default:
		return 0, fmt.Errorf("lotto: unknown round status %q", raw)
	}
}

// Round is the authoritative record of one lottery instance. The pot is
// accounting only; the lamports themselves sit in the operator's vault.
type Round struct {
	Address             solana.PublicKey
	Authority           solana.PublicKey
	RoundID             uint64
	RoundSeed           [8]byte
	TicketPriceLamports uint64
	MaxEntries          uint32
	StartSlot           uint64
	EndSlot             uint64
	PotLamports         uint64
	TreasuryCutLamports uint64
	Winner              *solana.PublicKey
	Status              RoundStatus
	EntryCount          uint32
	Bump                uint8
}

// Clone returns a deep copy of the round so callers can safely mutate the
// copy without affecting the stored instance.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Winner != nil {
		winner := *r.Winner
		clone.Winner = &winner
	}
	return &clone
}

// Entry is the receipt for one ticket purchase. A buyer may hold several
// entries for the same round, disambiguated by the nonce.
type Entry struct {
	Address      solana.PublicKey
	Round        solana.PublicKey
	Entrant      solana.PublicKey
	Tickets      uint16
	LamportsPaid uint64
	Claimed      bool
	CreatedSlot  uint64
	Bump         uint8
	Nonce        uint8
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// Treasury holds the per-operator fee configuration shared by every round of
// that operator. RetainedBps is fixed by the first initialisation.
type Treasury struct {
	Address          solana.PublicKey
	Authority        solana.PublicKey
	RetainedBps      uint16
	VaultBump        uint8
	Bump             uint8
	LastWithdrawSlot uint64
}

// Clone returns a copy of the treasury.
func (t *Treasury) Clone() *Treasury {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// InitializeRoundArgs carries the operator supplied round parameters.
type InitializeRoundArgs struct {
	RoundID             uint64 `json:"roundId"`
	TicketPriceLamports uint64 `json:"ticketPriceLamports"`
	MaxEntries          uint32 `json:"maxEntries"`
	DurationSlots       uint64 `json:"durationSlots"`
	RetainedBps         uint16 `json:"retainedBps"`
}

// JoinRoundArgs carries the entrant supplied purchase parameters.
type JoinRoundArgs struct {
	Tickets uint16 `json:"tickets"`
	Nonce   uint8  `json:"nonce"`
}

// AdminCloseArgs carries the operator's opaque reason code, echoed on the
// close event.
type AdminCloseArgs struct {
	Reason uint8 `json:"reason"`
}

// The account structs below list every address an instruction touches. The
// first field is always the transaction signer; the runtime guarantees the
// signature, the engine re-derives and checks every other address.

type InitializeRoundAccounts struct {
	Authority     solana.PublicKey `json:"authority"`
	Round         solana.PublicKey `json:"round"`
	Treasury      solana.PublicKey `json:"treasury"`
	TreasuryVault solana.PublicKey `json:"treasuryVault"`
}

type JoinRoundAccounts struct {
	Entrant       solana.PublicKey `json:"entrant"`
	Round         solana.PublicKey `json:"round"`
	Treasury      solana.PublicKey `json:"treasury"`
	TreasuryVault solana.PublicKey `json:"treasuryVault"`
	Entry         solana.PublicKey `json:"entry"`
}

type SettleRoundAccounts struct {
	Authority    solana.PublicKey `json:"authority"`
	Round        solana.PublicKey `json:"round"`
	Treasury     solana.PublicKey `json:"treasury"`
	WinningEntry solana.PublicKey `json:"winningEntry"`
}

type ClaimPayoutAccounts struct {
	Winner        solana.PublicKey `json:"winner"`
	Round         solana.PublicKey `json:"round"`
	Treasury      solana.PublicKey `json:"treasury"`
	TreasuryVault solana.PublicKey `json:"treasuryVault"`
}

type ClaimRefundAccounts struct {
	Entrant       solana.PublicKey `json:"entrant"`
	Round         solana.PublicKey `json:"round"`
	Treasury      solana.PublicKey `json:"treasury"`
	TreasuryVault solana.PublicKey `json:"treasuryVault"`
	Entry         solana.PublicKey `json:"entry"`
}

type AdminCloseAccounts struct {
	Authority solana.PublicKey `json:"authority"`
	Round     solana.PublicKey `json:"round"`
}
