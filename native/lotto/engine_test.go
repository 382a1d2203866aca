package lotto

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/gagliardetto/solana-go"

	"lottochain/core/events"
	"lottochain/core/types"
)

type mockState struct {
	rounds     map[solana.PublicKey]*Round
	entries    map[solana.PublicKey]*Entry
	treasuries map[solana.PublicKey]*Treasury
	accounts   map[solana.PublicKey]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		rounds:     make(map[solana.PublicKey]*Round),
		entries:    make(map[solana.PublicKey]*Entry),
		treasuries: make(map[solana.PublicKey]*Treasury),
		accounts:   make(map[solana.PublicKey]*types.Account),
	}
}

func (m *mockState) RoundGet(addr solana.PublicKey) (*Round, bool, error) {
	round, ok := m.rounds[addr]
	if !ok {
		return nil, false, nil
	}
	return round.Clone(), true, nil
}

func (m *mockState) RoundPut(round *Round) error {
	m.rounds[round.Address] = round.Clone()
	return nil
}

func (m *mockState) EntryGet(addr solana.PublicKey) (*Entry, bool, error) {
	entry, ok := m.entries[addr]
	if !ok {
		return nil, false, nil
	}
	return entry.Clone(), true, nil
}

func (m *mockState) EntryPut(entry *Entry) error {
	m.entries[entry.Address] = entry.Clone()
	return nil
}

func (m *mockState) TreasuryGet(addr solana.PublicKey) (*Treasury, bool, error) {
	treasury, ok := m.treasuries[addr]
	if !ok {
		return nil, false, nil
	}
	return treasury.Clone(), true, nil
}

func (m *mockState) TreasuryPut(treasury *Treasury) error {
	m.treasuries[treasury.Address] = treasury.Clone()
	return nil
}

func (m *mockState) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	return m.accounts[addr].Clone(), nil
}

func (m *mockState) PutAccount(addr solana.PublicKey, account *types.Account) error {
	m.accounts[addr] = account.Clone()
	return nil
}

func (m *mockState) balance(addr solana.PublicKey) uint64 {
	if acc, ok := m.accounts[addr]; ok {
		return acc.Lamports
	}
	return 0
}

func (m *mockState) fund(addr solana.PublicKey, lamports uint64) {
	m.accounts[addr] = &types.Account{Lamports: lamports}
}

type harness struct {
	t       *testing.T
	state   *mockState
	engine  *Engine
	slot    uint64
	emitted []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, state: newMockState(), slot: 100}
	h.engine = NewEngine(DefaultProgramID)
	h.engine.SetState(h.state)
	h.engine.SetSlotFunc(func() uint64 { return h.slot })
	h.engine.SetEmitter(events.EmitterFunc(func(evt events.Event) { h.emitted = append(h.emitted, evt) }))
	return h
}

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	priv, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv.PublicKey()
}

func (h *harness) derive(authority solana.PublicKey, roundID uint64) Addresses {
	h.t.Helper()
	addrs, err := DeriveAddresses(DefaultProgramID, authority, roundID)
	if err != nil {
		h.t.Fatalf("derive addresses: %v", err)
	}
	return addrs
}

func (h *harness) initRound(authority solana.PublicKey, args InitializeRoundArgs) (Addresses, *Round) {
	h.t.Helper()
	addrs := h.derive(authority, args.RoundID)
	round, err := h.engine.InitializeRound(InitializeRoundAccounts{
		Authority:     authority,
		Round:         addrs.Round,
		Treasury:      addrs.Treasury,
		TreasuryVault: addrs.TreasuryVault,
	}, args)
	if err != nil {
		h.t.Fatalf("initialize round: %v", err)
	}
	return addrs, round
}

func (h *harness) joinAccounts(addrs Addresses, entrant solana.PublicKey, nonce uint8) JoinRoundAccounts {
	h.t.Helper()
	entry, _, err := FindEntryAddress(DefaultProgramID, addrs.Round, entrant, nonce)
	if err != nil {
		h.t.Fatalf("derive entry: %v", err)
	}
	return JoinRoundAccounts{
		Entrant:       entrant,
		Round:         addrs.Round,
		Treasury:      addrs.Treasury,
		TreasuryVault: addrs.TreasuryVault,
		Entry:         entry,
	}
}

func (h *harness) join(addrs Addresses, entrant solana.PublicKey, tickets uint16, nonce uint8) (*Entry, error) {
	h.t.Helper()
	return h.engine.JoinRound(h.joinAccounts(addrs, entrant, nonce), JoinRoundArgs{Tickets: tickets, Nonce: nonce})
}

func (h *harness) mustJoin(addrs Addresses, entrant solana.PublicKey, tickets uint16, nonce uint8) *Entry {
	h.t.Helper()
	entry, err := h.join(addrs, entrant, tickets, nonce)
	if err != nil {
		h.t.Fatalf("join round: %v", err)
	}
	return entry
}

func (h *harness) settle(authority solana.PublicKey, addrs Addresses, entry solana.PublicKey) (*Round, error) {
	return h.engine.SettleRound(SettleRoundAccounts{
		Authority:    authority,
		Round:        addrs.Round,
		Treasury:     addrs.Treasury,
		WinningEntry: entry,
	})
}

func (h *harness) claimPayout(winner solana.PublicKey, addrs Addresses) (*Round, uint64, error) {
	return h.engine.ClaimPayout(ClaimPayoutAccounts{
		Winner:        winner,
		Round:         addrs.Round,
		Treasury:      addrs.Treasury,
		TreasuryVault: addrs.TreasuryVault,
	})
}

func (h *harness) claimRefund(entrant solana.PublicKey, addrs Addresses, entry solana.PublicKey) (*Entry, error) {
	return h.engine.ClaimRefund(ClaimRefundAccounts{
		Entrant:       entrant,
		Round:         addrs.Round,
		Treasury:      addrs.Treasury,
		TreasuryVault: addrs.TreasuryVault,
		Entry:         entry,
	})
}

func (h *harness) close(authority solana.PublicKey, addrs Addresses) (*Round, error) {
	return h.engine.AdminClose(AdminCloseAccounts{Authority: authority, Round: addrs.Round}, AdminCloseArgs{Reason: CloseReasonAdmin})
}

func (h *harness) round(addr solana.PublicKey) *Round {
	h.t.Helper()
	round, ok := h.state.rounds[addr]
	if !ok {
		h.t.Fatalf("round %s not stored", addr)
	}
	return round
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func defaultArgs(roundID uint64) InitializeRoundArgs {
	return InitializeRoundArgs{
		RoundID:             roundID,
		TicketPriceLamports: 1_000,
		MaxEntries:          10,
		DurationSlots:       50,
		RetainedBps:         500,
	}
}

func TestFullLifecycleConservesLamports(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	bob := newKey(t)
	h.state.fund(alice, 10_000)
	h.state.fund(bob, 10_000)

	addrs, round := h.initRound(operator, defaultArgs(7))
	if round.Status != RoundOpen || round.StartSlot != 100 || round.EndSlot != 150 {
		t.Fatalf("unexpected round: %+v", round)
	}
	if round.RoundSeed != RoundSeedBytes(7) || round.Bump != addrs.RoundBump {
		t.Fatalf("round seed material not recorded: %+v", round)
	}
	treasury := h.state.treasuries[addrs.Treasury]
	if treasury == nil || treasury.RetainedBps != 500 || treasury.VaultBump != addrs.VaultBump {
		t.Fatalf("unexpected treasury: %+v", treasury)
	}
	if _, ok := h.state.accounts[addrs.TreasuryVault]; !ok {
		t.Fatalf("vault account not created")
	}

	aliceEntry := h.mustJoin(addrs, alice, 3, 0)
	h.mustJoin(addrs, bob, 2, 0)
	h.mustJoin(addrs, alice, 1, 1)
	if aliceEntry.LamportsPaid != 3_000 || aliceEntry.CreatedSlot != 100 {
		t.Fatalf("unexpected entry: %+v", aliceEntry)
	}
	stored := h.round(addrs.Round)
	if stored.PotLamports != 6_000 || stored.EntryCount != 6 {
		t.Fatalf("unexpected pot %d count %d", stored.PotLamports, stored.EntryCount)
	}
	if got := h.state.balance(addrs.TreasuryVault); got != 6_000 {
		t.Fatalf("vault balance %d", got)
	}

	h.slot = 150
	settled, err := h.settle(operator, addrs, aliceEntry.Address)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != RoundSettled || settled.Winner == nil || !settled.Winner.Equals(alice) {
		t.Fatalf("unexpected settled round: %+v", settled)
	}
	if settled.TreasuryCutLamports != 300 {
		t.Fatalf("expected cut 300, got %d", settled.TreasuryCutLamports)
	}

	closed, payout, err := h.claimPayout(alice, addrs)
	if err != nil {
		t.Fatalf("claim payout: %v", err)
	}
	if payout != 5_700 || closed.Status != RoundClosedOut || closed.PotLamports != 300 {
		t.Fatalf("unexpected payout %d round %+v", payout, closed)
	}
	if got := h.state.balance(alice); got != 10_000-4_000+5_700 {
		t.Fatalf("alice balance %d", got)
	}
	if got := h.state.balance(addrs.TreasuryVault); got != 300 {
		t.Fatalf("vault balance %d", got)
	}
	total := h.state.balance(alice) + h.state.balance(bob) + h.state.balance(addrs.TreasuryVault)
	if total != 20_000 {
		t.Fatalf("lamports not conserved: %d", total)
	}

	var kinds []string
	for _, evt := range h.emitted {
		kinds = append(kinds, evt.EventType())
	}
	want := []string{
		EventTypeRoundInitialized,
		EventTypeRoundJoined, EventTypeRoundJoined, EventTypeRoundJoined,
		EventTypeRoundSettled,
		EventTypePayoutClaimed,
	}
	if len(kinds) != len(want) {
		t.Fatalf("unexpected events %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: expected %s got %s", i, want[i], kinds[i])
		}
	}
	settledEvt := h.emitted[4].(RoundSettledEvent).Event()
	if settledEvt.Attr("potLamports") != "6000" || settledEvt.Attr("treasuryCutLamports") != "300" {
		t.Fatalf("unexpected settle payload %+v", settledEvt.Attributes)
	}
}

func TestInitializeRoundValidation(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	addrs := h.derive(operator, 1)
	accts := InitializeRoundAccounts{Authority: operator, Round: addrs.Round, Treasury: addrs.Treasury, TreasuryVault: addrs.TreasuryVault}

	args := defaultArgs(1)
	args.TicketPriceLamports = 0
	_, err := h.engine.InitializeRound(accts, args)
	expectErr(t, err, ErrInvalidTicketPrice)

	args = defaultArgs(1)
	args.RetainedBps = 10_001
	_, err = h.engine.InitializeRound(accts, args)
	expectErr(t, err, ErrInvalidRetainedBps)

	wrong := accts
	wrong.Round = h.derive(operator, 2).Round
	_, err = h.engine.InitializeRound(wrong, defaultArgs(1))
	expectErr(t, err, ErrConstraintSeeds)

	wrong = accts
	wrong.TreasuryVault = h.derive(newKey(t), 1).TreasuryVault
	_, err = h.engine.InitializeRound(wrong, defaultArgs(1))
	expectErr(t, err, ErrInvalidTreasuryVault)

	if len(h.state.rounds) != 0 || len(h.state.treasuries) != 0 {
		t.Fatalf("rejected initialisation wrote state")
	}

	if _, err := h.engine.InitializeRound(accts, defaultArgs(1)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	_, err = h.engine.InitializeRound(accts, defaultArgs(1))
	expectErr(t, err, ErrAccountAlreadyInUse)

	mismatch := defaultArgs(2)
	mismatch.RetainedBps = 750
	second := h.derive(operator, 2)
	_, err = h.engine.InitializeRound(InitializeRoundAccounts{Authority: operator, Round: second.Round, Treasury: second.Treasury, TreasuryVault: second.TreasuryVault}, mismatch)
	expectErr(t, err, ErrRetainedBpsMismatch)

	if _, round := h.initRound(operator, defaultArgs(2)); round.Address != second.Round {
		t.Fatalf("second round stored at %s", round.Address)
	}
	if len(h.state.treasuries) != 1 {
		t.Fatalf("expected one shared treasury, got %d", len(h.state.treasuries))
	}
}

func TestInitializeRoundRejectsEndSlotOverflow(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	addrs := h.derive(operator, 1)
	args := defaultArgs(1)
	args.DurationSlots = math.MaxUint64
	_, err := h.engine.InitializeRound(InitializeRoundAccounts{Authority: operator, Round: addrs.Round, Treasury: addrs.Treasury, TreasuryVault: addrs.TreasuryVault}, args)
	expectErr(t, err, ErrMathOverflow)
	if KindOf(err) != KindArithmetic {
		t.Fatalf("expected arithmetic kind, got %s", KindOf(err))
	}
}

func TestJoinRoundWindowAndCapacity(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	h.state.fund(alice, 1_000_000)
	addrs, _ := h.initRound(operator, defaultArgs(1))

	_, err := h.join(addrs, alice, 0, 0)
	expectErr(t, err, ErrInvalidTicketCount)

	h.slot = 99
	_, err = h.join(addrs, alice, 1, 0)
	expectErr(t, err, ErrRoundNotOpen)

	h.slot = 151
	_, err = h.join(addrs, alice, 1, 0)
	expectErr(t, err, ErrRoundClosed)

	h.slot = 150
	h.mustJoin(addrs, alice, 9, 0)

	_, err = h.join(addrs, alice, 1, 0)
	expectErr(t, err, ErrAccountAlreadyInUse)

	_, err = h.join(addrs, alice, 2, 1)
	expectErr(t, err, ErrMaxEntriesReached)

	h.mustJoin(addrs, alice, 1, 1)
	_, err = h.join(addrs, alice, 1, 2)
	expectErr(t, err, ErrMaxEntriesReached)

	if got := h.round(addrs.Round).EntryCount; got != 10 {
		t.Fatalf("expected 10 tickets, got %d", got)
	}
}

func TestJoinRoundUnlimitedCapacity(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	h.state.fund(alice, math.MaxUint64)
	args := defaultArgs(1)
	args.MaxEntries = 0
	args.TicketPriceLamports = 1
	addrs, _ := h.initRound(operator, args)

	for nonce := uint8(0); nonce < 5; nonce++ {
		h.mustJoin(addrs, alice, math.MaxUint16, nonce)
	}
	if got := h.round(addrs.Round).EntryCount; got != 5*math.MaxUint16 {
		t.Fatalf("unexpected entry count %d", got)
	}
}

func TestJoinRoundFundsAndOverflow(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	poor := newKey(t)
	h.state.fund(poor, 999)
	addrs, _ := h.initRound(operator, defaultArgs(1))

	_, err := h.join(addrs, poor, 1, 0)
	expectErr(t, err, ErrInsufficientFunds)
	if KindOf(err) != KindResource {
		t.Fatalf("expected resource kind, got %s", KindOf(err))
	}
	if len(h.state.entries) != 0 || h.round(addrs.Round).PotLamports != 0 {
		t.Fatalf("rejected join mutated state")
	}

	args := defaultArgs(2)
	args.TicketPriceLamports = math.MaxUint64
	addrs2, _ := h.initRound(operator, args)
	h.state.fund(poor, math.MaxUint64)
	_, err = h.join(addrs2, poor, 2, 0)
	expectErr(t, err, ErrMathOverflow)
}

func TestJoinRoundRejectsForeignAccounts(t *testing.T) {
	h := newHarness(t)
	opA := newKey(t)
	opB := newKey(t)
	alice := newKey(t)
	h.state.fund(alice, 100_000)
	addrsA, _ := h.initRound(opA, defaultArgs(1))
	addrsB, _ := h.initRound(opB, defaultArgs(1))

	// Operator B's vault paired with operator A's round.
	accts := h.joinAccounts(addrsA, alice, 0)
	accts.TreasuryVault = addrsB.TreasuryVault
	_, err := h.engine.JoinRound(accts, JoinRoundArgs{Tickets: 1})
	expectErr(t, err, ErrInvalidTreasuryVault)

	accts = h.joinAccounts(addrsA, alice, 0)
	accts.Treasury = addrsB.Treasury
	_, err = h.engine.JoinRound(accts, JoinRoundArgs{Tickets: 1})
	expectErr(t, err, ErrConstraintSeeds)

	accts = h.joinAccounts(addrsA, alice, 0)
	accts.Entry = h.joinAccounts(addrsB, alice, 0).Entry
	_, err = h.engine.JoinRound(accts, JoinRoundArgs{Tickets: 1})
	expectErr(t, err, ErrConstraintSeeds)

	_, err = h.engine.JoinRound(h.joinAccounts(Addresses{Round: newKey(t), Treasury: addrsA.Treasury, TreasuryVault: addrsA.TreasuryVault}, alice, 0), JoinRoundArgs{Tickets: 1})
	expectErr(t, err, ErrAccountNotInitialized)
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found kind, got %s", KindOf(err))
	}

	h.mustJoin(addrsA, alice, 1, 0)
	if h.state.balance(addrsB.TreasuryVault) != 0 {
		t.Fatalf("operator B vault touched by round A")
	}
}

func TestSettleRoundPreconditions(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	intruder := newKey(t)
	alice := newKey(t)
	h.state.fund(alice, 100_000)
	addrs, _ := h.initRound(operator, defaultArgs(1))
	other, _ := h.initRound(operator, defaultArgs(2))
	entry := h.mustJoin(addrs, alice, 1, 0)
	foreign := h.mustJoin(other, alice, 1, 0)

	_, err := h.settle(operator, addrs, entry.Address)
	expectErr(t, err, ErrRoundStillRunning)

	h.slot = 150
	_, err = h.settle(intruder, addrs, entry.Address)
	expectErr(t, err, ErrInvalidAuthority)

	_, err = h.settle(operator, addrs, foreign.Address)
	expectErr(t, err, ErrEntryRoundMismatch)

	_, err = h.settle(operator, addrs, newKey(t))
	expectErr(t, err, ErrAccountNotInitialized)

	if _, err := h.settle(operator, addrs, entry.Address); err != nil {
		t.Fatalf("settle: %v", err)
	}
	_, err = h.settle(operator, addrs, entry.Address)
	expectErr(t, err, ErrRoundNotReadyToSettle)
}

func TestSettleRoundRejectsAlreadySettledClosedRound(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	h.state.fund(alice, 100_000)
	addrs, _ := h.initRound(operator, defaultArgs(1))
	entry := h.mustJoin(addrs, alice, 1, 0)

	stored := h.state.rounds[addrs.Round]
	stored.Status = RoundClosed
	winner := alice
	stored.Winner = &winner
	h.slot = 200
	_, err := h.settle(operator, addrs, entry.Address)
	expectErr(t, err, ErrRoundAlreadySettled)
}

func TestSettleRoundEmptyPot(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	h.state.fund(alice, 100_000)
	addrs, _ := h.initRound(operator, defaultArgs(1))
	entry := h.mustJoin(addrs, alice, 1, 0)
	h.state.rounds[addrs.Round].PotLamports = 0

	h.slot = 150
	_, err := h.settle(operator, addrs, entry.Address)
	expectErr(t, err, ErrEmptyPot)
}

func TestClaimPayoutPreconditions(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	bob := newKey(t)
	h.state.fund(alice, 100_000)
	h.state.fund(bob, 100_000)
	addrs, _ := h.initRound(operator, defaultArgs(1))
	entry := h.mustJoin(addrs, alice, 2, 0)
	h.mustJoin(addrs, bob, 2, 0)

	_, _, err := h.claimPayout(alice, addrs)
	expectErr(t, err, ErrRoundNotSettled)

	h.slot = 150
	if _, err := h.settle(operator, addrs, entry.Address); err != nil {
		t.Fatalf("settle: %v", err)
	}
	_, _, err = h.claimPayout(bob, addrs)
	expectErr(t, err, ErrInvalidWinner)

	wrongVault := h.derive(newKey(t), 1).TreasuryVault
	_, _, err = h.engine.ClaimPayout(ClaimPayoutAccounts{Winner: alice, Round: addrs.Round, Treasury: addrs.Treasury, TreasuryVault: wrongVault})
	expectErr(t, err, ErrInvalidTreasuryVault)

	if _, _, err := h.claimPayout(alice, addrs); err != nil {
		t.Fatalf("claim payout: %v", err)
	}
	_, _, err = h.claimPayout(alice, addrs)
	expectErr(t, err, ErrRoundNotSettled)
}

func TestClaimPayoutFullRetentionIsEmpty(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	h.state.fund(alice, 100_000)
	args := defaultArgs(1)
	args.RetainedBps = MaxBps
	addrs, _ := h.initRound(operator, args)
	entry := h.mustJoin(addrs, alice, 1, 0)

	h.slot = 150
	settled, err := h.settle(operator, addrs, entry.Address)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.TreasuryCutLamports != settled.PotLamports {
		t.Fatalf("expected full cut, got %+v", settled)
	}
	_, _, err = h.claimPayout(alice, addrs)
	expectErr(t, err, ErrEmptyPot)
}

func TestCancelAndRefund(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	intruder := newKey(t)
	alice := newKey(t)
	bob := newKey(t)
	h.state.fund(alice, 10_000)
	h.state.fund(bob, 10_000)
	addrs, _ := h.initRound(operator, defaultArgs(1))
	aliceEntry := h.mustJoin(addrs, alice, 3, 0)
	bobEntry := h.mustJoin(addrs, bob, 2, 0)

	_, err := h.claimRefund(alice, addrs, aliceEntry.Address)
	expectErr(t, err, ErrRefundUnavailable)

	_, err = h.close(intruder, addrs)
	expectErr(t, err, ErrInvalidAuthority)

	cancelled, err := h.close(operator, addrs)
	if err != nil {
		t.Fatalf("admin close: %v", err)
	}
	if cancelled.Status != RoundCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	closed, ok := h.emitted[len(h.emitted)-1].(RoundClosedEvent)
	if !ok || closed.Reason != CloseReasonAdmin || closed.Round != addrs.Round {
		t.Fatalf("unexpected close event: %#v", h.emitted[len(h.emitted)-1])
	}

	_, err = h.join(addrs, alice, 1, 1)
	expectErr(t, err, ErrRoundNotOpen)

	_, err = h.claimRefund(bob, addrs, aliceEntry.Address)
	expectErr(t, err, ErrConstraintSeeds)

	refunded, err := h.claimRefund(alice, addrs, aliceEntry.Address)
	if err != nil {
		t.Fatalf("claim refund: %v", err)
	}
	if !refunded.Claimed {
		t.Fatalf("entry not marked claimed")
	}
	_, err = h.claimRefund(alice, addrs, aliceEntry.Address)
	expectErr(t, err, ErrEntryAlreadyClaimed)

	if _, err := h.claimRefund(bob, addrs, bobEntry.Address); err != nil {
		t.Fatalf("claim refund: %v", err)
	}
	if h.state.balance(alice) != 10_000 || h.state.balance(bob) != 10_000 {
		t.Fatalf("refunds incomplete: alice=%d bob=%d", h.state.balance(alice), h.state.balance(bob))
	}
	if h.round(addrs.Round).PotLamports != 0 || h.state.balance(addrs.TreasuryVault) != 0 {
		t.Fatalf("pot or vault not drained")
	}

	h.slot = 150
	_, err = h.settle(operator, addrs, aliceEntry.Address)
	expectErr(t, err, ErrRoundNotReadyToSettle)
}

func TestRefundsDecrementPotPerEntry(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	args := defaultArgs(1)
	args.TicketPriceLamports = 100
	addrs, _ := h.initRound(operator, args)

	var entrants []solana.PublicKey
	var entries []*Entry
	for i, tickets := range []uint16{1, 2, 3} {
		entrant := newKey(t)
		h.state.fund(entrant, 1_000)
		entrants = append(entrants, entrant)
		entries = append(entries, h.mustJoin(addrs, entrant, tickets, 0))
		if entries[i].LamportsPaid != uint64(tickets)*100 {
			t.Fatalf("entry %d paid %d", i, entries[i].LamportsPaid)
		}
	}
	if pot := h.round(addrs.Round).PotLamports; pot != 600 {
		t.Fatalf("expected pot 600, got %d", pot)
	}
	if _, err := h.close(operator, addrs); err != nil {
		t.Fatalf("admin close: %v", err)
	}

	pot := uint64(600)
	for i, entry := range entries {
		if _, err := h.claimRefund(entrants[i], addrs, entry.Address); err != nil {
			t.Fatalf("refund %d: %v", i, err)
		}
		pot -= entry.LamportsPaid
		if got := h.round(addrs.Round).PotLamports; got != pot {
			t.Fatalf("after refund of %d expected pot %d, got %d", entry.LamportsPaid, pot, got)
		}
		if got := h.state.balance(addrs.TreasuryVault); got != pot {
			t.Fatalf("after refund of %d expected vault %d, got %d", entry.LamportsPaid, pot, got)
		}
		if got := h.state.balance(entrants[i]); got != 1_000 {
			t.Fatalf("entrant %d balance %d", i, got)
		}
	}
}

func TestSettlingOneRoundLeavesSiblingUntouched(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	bob := newKey(t)
	h.state.fund(alice, 2_000_000)
	h.state.fund(bob, 10_000)

	argsA := defaultArgs(1)
	argsA.TicketPriceLamports = 1_000_000
	roundA, _ := h.initRound(operator, argsA)
	roundB, _ := h.initRound(operator, defaultArgs(2))
	if !roundA.TreasuryVault.Equals(roundB.TreasuryVault) {
		t.Fatalf("rounds of one operator must share the vault")
	}

	winning := h.mustJoin(roundA, alice, 1, 0)
	h.mustJoin(roundB, bob, 3, 0)
	h.mustJoin(roundB, alice, 2, 0)
	before := h.round(roundB.Round)
	if before.PotLamports != 5_000 || before.EntryCount != 5 || before.Status != RoundOpen {
		t.Fatalf("unexpected sibling round: %+v", before)
	}
	if got := h.state.balance(roundA.TreasuryVault); got != 1_005_000 {
		t.Fatalf("vault balance %d", got)
	}

	h.slot = 150
	settled, err := h.settle(operator, roundA, winning.Address)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.PotLamports != 1_000_000 || settled.TreasuryCutLamports != 50_000 {
		t.Fatalf("unexpected settlement: pot %d cut %d", settled.PotLamports, settled.TreasuryCutLamports)
	}
	closed, payout, err := h.claimPayout(alice, roundA)
	if err != nil {
		t.Fatalf("claim payout: %v", err)
	}
	if payout != 950_000 || closed.PotLamports != 50_000 {
		t.Fatalf("unexpected payout %d remaining pot %d", payout, closed.PotLamports)
	}
	if got := h.state.balance(alice); got != 2_000_000-1_000_000-2_000+950_000 {
		t.Fatalf("alice balance %d", got)
	}

	after := h.round(roundB.Round)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("sibling round changed:\nbefore %+v\nafter  %+v", before, after)
	}
	if got := h.state.balance(roundA.TreasuryVault); got != 50_000+5_000 {
		t.Fatalf("vault should hold the cut and the sibling pot, got %d", got)
	}
}

func TestRefundRejectsEntryFromOtherRound(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	h.state.fund(alice, 10_000)
	addrs, _ := h.initRound(operator, defaultArgs(1))
	other, _ := h.initRound(operator, defaultArgs(2))
	h.mustJoin(addrs, alice, 1, 0)
	foreign := h.mustJoin(other, alice, 1, 0)
	if _, err := h.close(operator, addrs); err != nil {
		t.Fatalf("admin close: %v", err)
	}

	_, err := h.claimRefund(alice, addrs, foreign.Address)
	expectErr(t, err, ErrConstraintSeeds)
	if h.state.entries[foreign.Address].Claimed {
		t.Fatalf("foreign entry marked claimed")
	}
}

func TestAdminCloseRejectsSettledRounds(t *testing.T) {
	h := newHarness(t)
	operator := newKey(t)
	alice := newKey(t)
	h.state.fund(alice, 10_000)
	addrs, _ := h.initRound(operator, defaultArgs(1))
	entry := h.mustJoin(addrs, alice, 1, 0)
	h.slot = 150
	if _, err := h.settle(operator, addrs, entry.Address); err != nil {
		t.Fatalf("settle: %v", err)
	}

	_, err := h.close(operator, addrs)
	expectErr(t, err, ErrRoundNotCancellable)

	if _, _, err := h.claimPayout(alice, addrs); err != nil {
		t.Fatalf("claim payout: %v", err)
	}
	_, err = h.close(operator, addrs)
	expectErr(t, err, ErrRoundNotCancellable)
}

func TestEngineWithoutState(t *testing.T) {
	engine := NewEngine(solana.PublicKey{})
	if !engine.ProgramID().Equals(DefaultProgramID) {
		t.Fatalf("expected default program id")
	}
	if _, err := engine.AdminClose(AdminCloseAccounts{}, AdminCloseArgs{}); !errors.Is(err, errNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
}
