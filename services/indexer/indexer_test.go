package indexer

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lottochain/core/events"
	"lottochain/native/lotto"
)

func setupTestIndexer(t *testing.T, queue int) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	ix, err := New(db, Options{QueueSize: queue})
	require.NoError(t, err)
	t.Cleanup(ix.Close)
	return ix
}

type scenario struct {
	operator, alice, bob  solana.PublicKey
	round, entryA, entryB solana.PublicKey
}

func newScenario() scenario {
	return scenario{
		operator: solana.NewWallet().PublicKey(),
		alice:    solana.NewWallet().PublicKey(),
		bob:      solana.NewWallet().PublicKey(),
		round:    solana.NewWallet().PublicKey(),
		entryA:   solana.NewWallet().PublicKey(),
		entryB:   solana.NewWallet().PublicKey(),
	}
}

func (s scenario) opening() []events.Event {
	return []events.Event{
		lotto.RoundInitializedEvent{Round: s.round, Authority: s.operator, RoundID: 7, TicketPriceLamports: 100, MaxEntries: 10, DurationSlots: 50, Slot: 10},
		lotto.RoundJoinedEvent{Round: s.round, Entrant: s.alice, Entry: s.entryA, Tickets: 3, LamportsPaid: 300, Slot: 11},
		lotto.RoundJoinedEvent{Round: s.round, Entrant: s.bob, Entry: s.entryB, Nonce: 1, Tickets: 1, LamportsPaid: 100, Slot: 12},
	}
}

func applyAll(t *testing.T, ix *Indexer, evts []events.Event) {
	t.Helper()
	for _, evt := range evts {
		require.NoError(t, ix.Apply(context.Background(), events.Render(evt)))
	}
}

func TestIndexerProjectsSettlement(t *testing.T) {
	ix := setupTestIndexer(t, 0)
	s := newScenario()
	ctx := context.Background()
	applyAll(t, ix, s.opening())
	// replayed purchases are ignored
	applyAll(t, ix, s.opening()[1:2])

	round, err := ix.Round(ctx, s.round.String())
	require.NoError(t, err)
	require.Equal(t, uint64(400), round.PotLamports)
	require.Equal(t, uint32(4), round.EntryCount)
	require.Equal(t, uint64(60), round.EndSlot)
	require.Equal(t, "open", round.Status)

	applyAll(t, ix, []events.Event{
		lotto.RoundSettledEvent{Round: s.round, Winner: s.alice, WinningEntry: s.entryA, PotLamports: 400, TreasuryCutLamports: 20, Slot: 61},
		lotto.PayoutClaimedEvent{Round: s.round, Winner: s.alice, Amount: 380, Slot: 62},
	})
	round, err = ix.Round(ctx, s.round.String())
	require.NoError(t, err)
	require.Equal(t, "closed_out", round.Status)
	require.Equal(t, uint64(20), round.PotLamports)
	require.Equal(t, s.alice.String(), round.Winner)

	activity, err := ix.Activity(ctx, s.alice.String(), 10)
	require.NoError(t, err)
	require.Len(t, activity, 3)
	require.Equal(t, lotto.EventTypePayoutClaimed, activity[0].Type)
	require.Equal(t, uint64(380), activity[0].Amount)

	entries, err := ix.Entries(ctx, s.round.String(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, s.entryA.String(), entries[0].Address)

	settled, err := ix.Rounds(ctx, "closed_out", 10)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	_, err = ix.Rounds(ctx, "bogus", 10)
	require.Error(t, err)
}

func TestIndexerProjectsRefunds(t *testing.T) {
	ix := setupTestIndexer(t, 0)
	s := newScenario()
	ctx := context.Background()
	applyAll(t, ix, s.opening())
	refund := lotto.RefundClaimedEvent{Round: s.round, Entrant: s.alice, Entry: s.entryA, Amount: 300, Slot: 21}
	applyAll(t, ix, []events.Event{
		lotto.RoundClosedEvent{Round: s.round, Authority: s.operator, Reason: lotto.CloseReasonAdmin, Slot: 20},
		refund,
		refund,
	})

	round, err := ix.Round(ctx, s.round.String())
	require.NoError(t, err)
	require.Equal(t, "cancelled", round.Status)
	require.Equal(t, uint64(100), round.PotLamports)

	entries, err := ix.Entries(ctx, s.round.String(), 0)
	require.NoError(t, err)
	require.True(t, entries[0].Claimed)
	require.False(t, entries[1].Claimed)

	cancelled, err := ix.Rounds(ctx, "cancelled", 0)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
}

func TestIndexerWorkerDrainsQueue(t *testing.T) {
	ix := setupTestIndexer(t, 16)
	s := newScenario()
	ix.Start(context.Background())
	for _, evt := range s.opening() {
		ix.Emit(evt)
	}
	require.Eventually(t, func() bool {
		activity, err := ix.Activity(context.Background(), "", 10)
		return err == nil && len(activity) == 3
	}, 5*time.Second, 20*time.Millisecond)

	ix.Close()
	ix.Emit(s.opening()[0])
}

func TestIndexerDropsWhenQueueFull(t *testing.T) {
	ix := setupTestIndexer(t, 1)
	s := newScenario()
	for _, evt := range s.opening() {
		ix.Emit(evt)
	}
	require.Len(t, ix.queue, 1)
}

func TestIndexerRejectsValuesBeyondColumnRange(t *testing.T) {
	ix := setupTestIndexer(t, 0)
	s := newScenario()
	ctx := context.Background()

	evt := lotto.RoundInitializedEvent{Round: s.round, Authority: s.operator, RoundID: 1, TicketPriceLamports: math.MaxUint64, DurationSlots: 5, Slot: 1}
	err := ix.Apply(ctx, events.Render(evt))
	require.ErrorIs(t, err, ErrValueOutOfRange)
	_, err = ix.Round(ctx, s.round.String())
	require.Error(t, err)

	evt.TicketPriceLamports = math.MaxInt64
	require.NoError(t, ix.Apply(ctx, events.Render(evt)))
	round, err := ix.Round(ctx, s.round.String())
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxInt64), round.TicketPriceLamports)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
}
