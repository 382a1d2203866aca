package lotto

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"lottochain/core/events"
	"lottochain/core/types"
)

var errNilState = errors.New("lotto engine: state not configured")

type engineState interface {
	RoundGet(addr solana.PublicKey) (*Round, bool, error)
	RoundPut(round *Round) error
	EntryGet(addr solana.PublicKey) (*Entry, bool, error)
	EntryPut(entry *Entry) error
	TreasuryGet(addr solana.PublicKey) (*Treasury, bool, error)
	TreasuryPut(treasury *Treasury) error
	GetAccount(addr solana.PublicKey) (*types.Account, error)
	PutAccount(addr solana.PublicKey, account *types.Account) error
}

// Engine applies lottery instructions against a state backend. It performs
// every check before its first write, but relies on the caller to discard the
// backend on error so that a failed transfer never leaves partial state.
type Engine struct {
	programID solana.PublicKey
	state     engineState
	emitter   events.Emitter
	slotFn    func() uint64
}

// NewEngine creates an engine scoped to programID with a no-op emitter.
func NewEngine(programID solana.PublicKey) *Engine {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return &Engine{
		programID: programID,
		emitter:   events.NoopEmitter{},
		slotFn:    func() uint64 { return 0 },
	}
}

// ProgramID returns the identity that scopes every derived address.
func (e *Engine) ProgramID() solana.PublicKey { return e.programID }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetSlotFunc overrides the slot source. The runtime pins it to the slot read
// once at the start of each operation.
func (e *Engine) SetSlotFunc(fn func() uint64) {
	if fn == nil {
		e.slotFn = func() uint64 { return 0 }
		return
	}
	e.slotFn = fn
}

func (e *Engine) slot() uint64 {
	if e == nil || e.slotFn == nil {
		return 0
	}
	return e.slotFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

// loadRound fetches a round and re-verifies its address from the stored seed
// material.
func (e *Engine) loadRound(addr solana.PublicKey) (*Round, error) {
	round, ok, err := e.state.RoundGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotInitialized
	}
	if err := VerifyRoundAddress(e.programID, addr, round.Authority, round.RoundSeed, round.Bump); err != nil {
		return nil, err
	}
	return round, nil
}

// loadTreasury fetches the treasury bound to authority and checks both its
// address and its authority binding.
func (e *Engine) loadTreasury(addr, authority solana.PublicKey) (*Treasury, error) {
	treasury, ok, err := e.state.TreasuryGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotInitialized
	}
	if err := VerifyTreasuryAddress(e.programID, addr, authority, treasury.Bump); err != nil {
		return nil, err
	}
	if !treasury.Authority.Equals(authority) {
		return nil, ErrInvalidAuthority
	}
	return treasury, nil
}

func (e *Engine) verifyVault(vault solana.PublicKey, treasury *Treasury) error {
	if err := VerifyTreasuryVaultAddress(e.programID, vault, treasury.Authority, treasury.VaultBump); err != nil {
		return ErrInvalidTreasuryVault
	}
	return nil
}

func (e *Engine) loadEntry(addr solana.PublicKey) (*Entry, error) {
	entry, ok, err := e.state.EntryGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotInitialized
	}
	if err := VerifyEntryAddress(e.programID, addr, entry.Round, entry.Entrant, entry.Nonce, entry.Bump); err != nil {
		return nil, err
	}
	return entry, nil
}

// transferLamports moves amount from one host account to another. Balances
// are validated before either account is written.
func (e *Engine) transferLamports(from, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	src, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	src = src.Clone()
	if src.Lamports < amount {
		return ErrInsufficientFunds
	}
	if from.Equals(to) {
		return nil
	}
	dst, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	dst = dst.Clone()
	credited, err := checkedAdd(dst.Lamports, amount)
	if err != nil {
		return err
	}
	src.Lamports -= amount
	dst.Lamports = credited
	if err := e.state.PutAccount(from, src); err != nil {
		return err
	}
	return e.state.PutAccount(to, dst)
}

// InitializeRound opens a new round for the signing authority, creating the
// operator's treasury and vault on first use.
func (e *Engine) InitializeRound(accts InitializeRoundAccounts, args InitializeRoundArgs) (*Round, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if args.TicketPriceLamports == 0 {
		return nil, ErrInvalidTicketPrice
	}
	if args.RetainedBps > MaxBps {
		return nil, ErrInvalidRetainedBps
	}
	authority := accts.Authority
	if authority.IsZero() {
		return nil, ErrInvalidAuthority
	}

	roundAddr, roundBump, err := FindRoundAddress(e.programID, authority, args.RoundID)
	if err != nil {
		return nil, ErrMissingBump
	}
	if !accts.Round.Equals(roundAddr) {
		return nil, ErrConstraintSeeds
	}
	treasuryAddr, treasuryBump, err := FindTreasuryAddress(e.programID, authority)
	if err != nil {
		return nil, ErrMissingBump
	}
	if !accts.Treasury.Equals(treasuryAddr) {
		return nil, ErrConstraintSeeds
	}
	vaultAddr, vaultBump, err := FindTreasuryVaultAddress(e.programID, authority)
	if err != nil {
		return nil, ErrMissingBump
	}
	if !accts.TreasuryVault.Equals(vaultAddr) {
		return nil, ErrInvalidTreasuryVault
	}

	if _, exists, err := e.state.RoundGet(roundAddr); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAccountAlreadyInUse
	}

	treasury, exists, err := e.state.TreasuryGet(treasuryAddr)
	if err != nil {
		return nil, err
	}
	if !exists {
		treasury = &Treasury{
			Address:     treasuryAddr,
			Authority:   authority,
			RetainedBps: args.RetainedBps,
			VaultBump:   vaultBump,
			Bump:        treasuryBump,
		}
	} else {
		if !treasury.Authority.Equals(authority) {
			return nil, ErrInvalidAuthority
		}
		if treasury.RetainedBps != args.RetainedBps {
			return nil, ErrRetainedBpsMismatch
		}
		if treasury.Bump != treasuryBump {
			return nil, ErrInvalidTreasuryBump
		}
		if treasury.VaultBump != vaultBump {
			return nil, ErrInvalidTreasuryVault
		}
	}
	if err := e.verifyVault(accts.TreasuryVault, treasury); err != nil {
		return nil, err
	}

	start := e.slot()
	end, err := checkedAdd(start, args.DurationSlots)
	if err != nil {
		return nil, err
	}

	round := &Round{
		Address:             roundAddr,
		Authority:           authority,
		RoundID:             args.RoundID,
		RoundSeed:           RoundSeedBytes(args.RoundID),
		TicketPriceLamports: args.TicketPriceLamports,
		MaxEntries:          args.MaxEntries,
		StartSlot:           start,
		EndSlot:             end,
		Status:              RoundOpen,
		Bump:                roundBump,
	}

	if !exists {
		if err := e.state.TreasuryPut(treasury); err != nil {
			return nil, err
		}
		vault, err := e.state.GetAccount(vaultAddr)
		if err != nil {
			return nil, err
		}
		if err := e.state.PutAccount(vaultAddr, vault); err != nil {
			return nil, err
		}
	}
	if err := e.state.RoundPut(round); err != nil {
		return nil, err
	}

	e.emit(RoundInitializedEvent{
		Round:               roundAddr,
		Authority:           authority,
		RoundID:             args.RoundID,
		TicketPriceLamports: args.TicketPriceLamports,
		MaxEntries:          args.MaxEntries,
		DurationSlots:       args.DurationSlots,
		Slot:                start,
	})
	return round.Clone(), nil
}

// JoinRound buys tickets for the signing entrant and moves the cost into the
// operator's vault.
func (e *Engine) JoinRound(accts JoinRoundAccounts, args JoinRoundArgs) (*Entry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if args.Tickets == 0 {
		return nil, ErrInvalidTicketCount
	}
	round, err := e.loadRound(accts.Round)
	if err != nil {
		return nil, err
	}
	treasury, err := e.loadTreasury(accts.Treasury, round.Authority)
	if err != nil {
		return nil, err
	}
	if err := e.verifyVault(accts.TreasuryVault, treasury); err != nil {
		return nil, err
	}
	entryAddr, entryBump, err := FindEntryAddress(e.programID, accts.Round, accts.Entrant, args.Nonce)
	if err != nil {
		return nil, ErrMissingBump
	}
	if !accts.Entry.Equals(entryAddr) {
		return nil, ErrConstraintSeeds
	}
	if _, exists, err := e.state.EntryGet(entryAddr); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAccountAlreadyInUse
	}

	if round.Status != RoundOpen {
		return nil, ErrRoundNotOpen
	}
	now := e.slot()
	if now < round.StartSlot {
		return nil, ErrRoundNotOpen
	}
	if now > round.EndSlot {
		return nil, ErrRoundClosed
	}
	count, err := checkedAdd32(round.EntryCount, uint32(args.Tickets))
	if err != nil {
		return nil, err
	}
	if round.MaxEntries != 0 && count > round.MaxEntries {
		return nil, ErrMaxEntriesReached
	}
	cost, err := checkedMul(round.TicketPriceLamports, uint64(args.Tickets))
	if err != nil {
		return nil, err
	}
	pot, err := checkedAdd(round.PotLamports, cost)
	if err != nil {
		return nil, err
	}

	if err := e.transferLamports(accts.Entrant, accts.TreasuryVault, cost); err != nil {
		return nil, err
	}

	round.EntryCount = count
	round.PotLamports = pot
	entry := &Entry{
		Address:      entryAddr,
		Round:        accts.Round,
		Entrant:      accts.Entrant,
		Tickets:      args.Tickets,
		LamportsPaid: cost,
		CreatedSlot:  now,
		Bump:         entryBump,
		Nonce:        args.Nonce,
	}
	if err := e.state.EntryPut(entry); err != nil {
		return nil, err
	}
	if err := e.state.RoundPut(round); err != nil {
		return nil, err
	}

	e.emit(RoundJoinedEvent{
		Round:        accts.Round,
		Entrant:      accts.Entrant,
		Entry:        entryAddr,
		Nonce:        args.Nonce,
		Tickets:      args.Tickets,
		LamportsPaid: cost,
		Slot:         now,
	})
	return entry.Clone(), nil
}

// SettleRound records the winner named by the supplied entry and fixes the
// treasury cut. Winner selection happens outside the engine.
func (e *Engine) SettleRound(accts SettleRoundAccounts) (*Round, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	round, err := e.loadRound(accts.Round)
	if err != nil {
		return nil, err
	}
	if !round.Authority.Equals(accts.Authority) {
		return nil, ErrInvalidAuthority
	}
	treasury, err := e.loadTreasury(accts.Treasury, accts.Authority)
	if err != nil {
		return nil, err
	}
	entry, err := e.loadEntry(accts.WinningEntry)
	if err != nil {
		return nil, err
	}
	if !entry.Round.Equals(accts.Round) {
		return nil, ErrEntryRoundMismatch
	}

	if round.Status != RoundOpen && round.Status != RoundClosed {
		return nil, ErrRoundNotReadyToSettle
	}
	if round.Winner != nil {
		return nil, ErrRoundAlreadySettled
	}
	now := e.slot()
	if now < round.EndSlot {
		return nil, ErrRoundStillRunning
	}
	if round.PotLamports == 0 {
		return nil, ErrEmptyPot
	}
	cut, err := TreasuryCut(round.PotLamports, treasury.RetainedBps)
	if err != nil {
		return nil, err
	}

	winner := entry.Entrant
	round.Status = RoundSettled
	round.Winner = &winner
	round.TreasuryCutLamports = cut
	if err := e.state.RoundPut(round); err != nil {
		return nil, err
	}

	e.emit(RoundSettledEvent{
		Round:               accts.Round,
		Winner:              winner,
		WinningEntry:        accts.WinningEntry,
		PotLamports:         round.PotLamports,
		TreasuryCutLamports: cut,
		Slot:                now,
	})
	return round.Clone(), nil
}

// ClaimPayout transfers pot minus treasury cut from the vault to the winner.
// The cut stays in the vault and remains recorded as the round's pot.
func (e *Engine) ClaimPayout(accts ClaimPayoutAccounts) (*Round, uint64, error) {
	if err := e.ready(); err != nil {
		return nil, 0, err
	}
	round, err := e.loadRound(accts.Round)
	if err != nil {
		return nil, 0, err
	}
	treasury, err := e.loadTreasury(accts.Treasury, round.Authority)
	if err != nil {
		return nil, 0, err
	}
	if err := e.verifyVault(accts.TreasuryVault, treasury); err != nil {
		return nil, 0, err
	}

	if round.Status != RoundSettled {
		return nil, 0, ErrRoundNotSettled
	}
	if round.Winner == nil {
		return nil, 0, ErrWinnerNotSet
	}
	if !round.Winner.Equals(accts.Winner) {
		return nil, 0, ErrInvalidWinner
	}
	payout, err := checkedSub(round.PotLamports, round.TreasuryCutLamports)
	if err != nil {
		return nil, 0, err
	}
	if payout == 0 {
		return nil, 0, ErrEmptyPot
	}

	if err := e.transferLamports(accts.TreasuryVault, accts.Winner, payout); err != nil {
		return nil, 0, err
	}
	round.PotLamports = round.TreasuryCutLamports
	round.Status = RoundClosedOut
	if err := e.state.RoundPut(round); err != nil {
		return nil, 0, err
	}

	e.emit(PayoutClaimedEvent{Round: accts.Round, Winner: accts.Winner, Amount: payout, Slot: e.slot()})
	return round.Clone(), payout, nil
}

// ClaimRefund returns an entrant's purchase price from a cancelled round.
func (e *Engine) ClaimRefund(accts ClaimRefundAccounts) (*Entry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	round, err := e.loadRound(accts.Round)
	if err != nil {
		return nil, err
	}
	treasury, err := e.loadTreasury(accts.Treasury, round.Authority)
	if err != nil {
		return nil, err
	}
	if err := e.verifyVault(accts.TreasuryVault, treasury); err != nil {
		return nil, err
	}
	entry, ok, err := e.state.EntryGet(accts.Entry)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotInitialized
	}
	if err := VerifyEntryAddress(e.programID, accts.Entry, accts.Round, accts.Entrant, entry.Nonce, entry.Bump); err != nil {
		return nil, err
	}
	if !entry.Round.Equals(accts.Round) {
		return nil, ErrEntryRoundMismatch
	}
	if !entry.Entrant.Equals(accts.Entrant) {
		return nil, ErrInvalidEntrant
	}

	if round.Status != RoundCancelled {
		return nil, ErrRefundUnavailable
	}
	if entry.Claimed {
		return nil, ErrEntryAlreadyClaimed
	}
	pot, err := checkedSub(round.PotLamports, entry.LamportsPaid)
	if err != nil {
		return nil, err
	}

	if err := e.transferLamports(accts.TreasuryVault, accts.Entrant, entry.LamportsPaid); err != nil {
		return nil, err
	}
	round.PotLamports = pot
	entry.Claimed = true
	if err := e.state.EntryPut(entry); err != nil {
		return nil, err
	}
	if err := e.state.RoundPut(round); err != nil {
		return nil, err
	}

	e.emit(RefundClaimedEvent{
		Round:   accts.Round,
		Entrant: accts.Entrant,
		Entry:   accts.Entry,
		Amount:  entry.LamportsPaid,
		Slot:    e.slot(),
	})
	return entry.Clone(), nil
}

// AdminClose cancels a round that has not been settled, opening refunds.
func (e *Engine) AdminClose(accts AdminCloseAccounts, args AdminCloseArgs) (*Round, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	round, err := e.loadRound(accts.Round)
	if err != nil {
		return nil, err
	}
	if !round.Authority.Equals(accts.Authority) {
		return nil, ErrInvalidAuthority
	}
	if round.Status == RoundSettled || round.Status == RoundClosedOut {
		return nil, ErrRoundNotCancellable
	}

	round.Status = RoundCancelled
	if err := e.state.RoundPut(round); err != nil {
		return nil, err
	}

	e.emit(RoundClosedEvent{Round: accts.Round, Authority: accts.Authority, Reason: args.Reason, Slot: e.slot()})
	return round.Clone(), nil
}
