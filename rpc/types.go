package rpc

import (
	"github.com/gagliardetto/solana-go"

	"lottochain/native/lotto"
)

// JSON-RPC method names.
const (
	MethodInitializeRound = "lotto_initializeRound"
	MethodJoinRound       = "lotto_joinRound"
	MethodSettleRound     = "lotto_settleRound"
	MethodClaimPayout     = "lotto_claimPayout"
	MethodClaimRefund     = "lotto_claimRefund"
	MethodAdminClose      = "lotto_adminClose"
	MethodRequestAirdrop  = "lotto_requestAirdrop"
	MethodGetRound        = "lotto_getRound"
	MethodGetEntry        = "lotto_getEntry"
	MethodGetTreasury     = "lotto_getTreasury"
	MethodGetBalance      = "lotto_getBalance"
	MethodListEntries     = "lotto_listEntries"
	MethodListRounds      = "lotto_listRounds"
	MethodGetSlot         = "lotto_getSlot"
	MethodDeriveAddresses = "lotto_deriveAddresses"
	MethodListActivity    = "lotto_listActivity"
	MethodIndexedRounds   = "lotto_indexedRounds"
)

// SignedParams wraps an instruction. Payload is the exact JSON text that was
// signed; Signature is base58.
type SignedParams struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
	Payload   string `json:"payload"`
}

type InitializeRoundInstruction struct {
	Accounts lotto.InitializeRoundAccounts `json:"accounts"`
	Args     lotto.InitializeRoundArgs     `json:"args"`
}

type JoinRoundInstruction struct {
	Accounts lotto.JoinRoundAccounts `json:"accounts"`
	Args     lotto.JoinRoundArgs     `json:"args"`
}

type SettleRoundInstruction struct {
	Accounts lotto.SettleRoundAccounts `json:"accounts"`
}

type ClaimPayoutInstruction struct {
	Accounts lotto.ClaimPayoutAccounts `json:"accounts"`
}

type ClaimRefundInstruction struct {
	Accounts lotto.ClaimRefundAccounts `json:"accounts"`
}

type AdminCloseInstruction struct {
	Accounts lotto.AdminCloseAccounts `json:"accounts"`
	Args     lotto.AdminCloseArgs     `json:"args"`
}

type AddressParams struct {
	Address string `json:"address"`
}

type ListEntriesParams struct {
	Round   string `json:"round,omitempty"`
	Entrant string `json:"entrant,omitempty"`
	Offset  int    `json:"offset,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type ListRoundsParams struct {
	Authority string `json:"authority,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type DeriveParams struct {
	Authority string `json:"authority"`
	RoundID   uint64 `json:"roundId"`
	Entrant   string `json:"entrant,omitempty"`
	Nonce     uint8  `json:"nonce,omitempty"`
}

type ActivityParams struct {
	Wallet string `json:"wallet,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type IndexedRoundsParams struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type AirdropParams struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

type RoundResult struct {
	Address             string  `json:"address"`
	Authority           string  `json:"authority"`
	RoundID             uint64  `json:"roundId"`
	TicketPriceLamports uint64  `json:"ticketPriceLamports"`
	MaxEntries          uint32  `json:"maxEntries"`
	StartSlot           uint64  `json:"startSlot"`
	EndSlot             uint64  `json:"endSlot"`
	PotLamports         uint64  `json:"potLamports"`
	TreasuryCutLamports uint64  `json:"treasuryCutLamports"`
	Winner              *string `json:"winner,omitempty"`
	Status              string  `json:"status"`
	Terminal            bool    `json:"terminal"`
	EntryCount          uint32  `json:"entryCount"`
	Bump                uint8   `json:"bump"`
}

type EntryResult struct {
	Address      string `json:"address"`
	Round        string `json:"round"`
	Entrant      string `json:"entrant"`
	Tickets      uint16 `json:"tickets"`
	LamportsPaid uint64 `json:"lamportsPaid"`
	Claimed      bool   `json:"claimed"`
	CreatedSlot  uint64 `json:"createdSlot"`
	Bump         uint8  `json:"bump"`
	Nonce        uint8  `json:"nonce"`
}

type TreasuryResult struct {
	Address          string `json:"address"`
	Authority        string `json:"authority"`
	RetainedBps      uint16 `json:"retainedBps"`
	VaultBump        uint8  `json:"vaultBump"`
	Bump             uint8  `json:"bump"`
	LastWithdrawSlot uint64 `json:"lastWithdrawSlot"`
}

type BalanceResult struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

type PayoutResult struct {
	Round  RoundResult `json:"round"`
	Amount uint64      `json:"amount"`
}

type SlotResult struct {
	Slot uint64 `json:"slot"`
}

type AddressesResult struct {
	ProgramID     string `json:"programId"`
	Round         string `json:"round"`
	RoundBump     uint8  `json:"roundBump"`
	Treasury      string `json:"treasury"`
	TreasuryBump  uint8  `json:"treasuryBump"`
	TreasuryVault string `json:"treasuryVault"`
	VaultBump     uint8  `json:"vaultBump"`
	Entry         string `json:"entry,omitempty"`
}

func roundResult(r *lotto.Round) RoundResult {
	out := RoundResult{
		Address:             r.Address.String(),
		Authority:           r.Authority.String(),
		RoundID:             r.RoundID,
		TicketPriceLamports: r.TicketPriceLamports,
		MaxEntries:          r.MaxEntries,
		StartSlot:           r.StartSlot,
		EndSlot:             r.EndSlot,
		PotLamports:         r.PotLamports,
		TreasuryCutLamports: r.TreasuryCutLamports,
		Status:              r.Status.String(),
		Terminal:            r.Status.Terminal(),
		EntryCount:          r.EntryCount,
		Bump:                r.Bump,
	}
	if r.Winner != nil {
		winner := r.Winner.String()
		out.Winner = &winner
	}
	return out
}

func entryResult(e *lotto.Entry) EntryResult {
	return EntryResult{
		Address:      e.Address.String(),
		Round:        e.Round.String(),
		Entrant:      e.Entrant.String(),
		Tickets:      e.Tickets,
		LamportsPaid: e.LamportsPaid,
		Claimed:      e.Claimed,
		CreatedSlot:  e.CreatedSlot,
		Bump:         e.Bump,
		Nonce:        e.Nonce,
	}
}

func treasuryResult(t *lotto.Treasury) TreasuryResult {
	return TreasuryResult{
		Address:          t.Address.String(),
		Authority:        t.Authority.String(),
		RetainedBps:      t.RetainedBps,
		VaultBump:        t.VaultBump,
		Bump:             t.Bump,
		LastWithdrawSlot: t.LastWithdrawSlot,
	}
}

func addressesResult(programID solana.PublicKey, a lotto.Addresses) AddressesResult {
	return AddressesResult{
		ProgramID:     programID.String(),
		Round:         a.Round.String(),
		RoundBump:     a.RoundBump,
		Treasury:      a.Treasury.String(),
		TreasuryBump:  a.TreasuryBump,
		TreasuryVault: a.TreasuryVault.String(),
		VaultBump:     a.VaultBump,
	}
}
