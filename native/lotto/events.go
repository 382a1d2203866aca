package lotto

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"lottochain/core/types"
)

const (
	EventTypeRoundInitialized = "lotto.round.initialized"
	EventTypeRoundJoined      = "lotto.round.joined"
	EventTypeRoundSettled     = "lotto.round.settled"
	EventTypePayoutClaimed    = "lotto.payout.claimed"
	EventTypeRefundClaimed    = "lotto.refund.claimed"
	EventTypeRoundClosed      = "lotto.round.closed"
)

// CloseReasonAdmin is the reason clients send when no other code applies.
const CloseReasonAdmin uint8 = 1

// RoundInitializedEvent is emitted when an operator opens a new round.
type RoundInitializedEvent struct {
	Round               solana.PublicKey
	Authority           solana.PublicKey
	RoundID             uint64
	TicketPriceLamports uint64
	MaxEntries          uint32
	DurationSlots       uint64
	Slot                uint64
}

// EventType satisfies the events.Event interface.
func (RoundInitializedEvent) EventType() string { return EventTypeRoundInitialized }

// Event renders the wire payload.
func (e RoundInitializedEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeRoundInitialized, Attributes: map[string]string{
		"round":               e.Round.String(),
		"authority":           e.Authority.String(),
		"roundId":             strconv.FormatUint(e.RoundID, 10),
		"ticketPriceLamports": strconv.FormatUint(e.TicketPriceLamports, 10),
		"maxEntries":          strconv.FormatUint(uint64(e.MaxEntries), 10),
		"durationSlots":       strconv.FormatUint(e.DurationSlots, 10),
		"slot":                strconv.FormatUint(e.Slot, 10),
	}}
}

// RoundJoinedEvent is emitted when an entrant buys tickets.
type RoundJoinedEvent struct {
	Round        solana.PublicKey
	Entrant      solana.PublicKey
	Entry        solana.PublicKey
	Nonce        uint8
	Tickets      uint16
	LamportsPaid uint64
	Slot         uint64
}

// EventType satisfies the events.Event interface.
func (RoundJoinedEvent) EventType() string { return EventTypeRoundJoined }

// Event renders the wire payload.
func (e RoundJoinedEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeRoundJoined, Attributes: map[string]string{
		"round":        e.Round.String(),
		"entrant":      e.Entrant.String(),
		"entry":        e.Entry.String(),
		"nonce":        strconv.FormatUint(uint64(e.Nonce), 10),
		"tickets":      strconv.FormatUint(uint64(e.Tickets), 10),
		"lamportsPaid": strconv.FormatUint(e.LamportsPaid, 10),
		"slot":         strconv.FormatUint(e.Slot, 10),
	}}
}

// RoundSettledEvent is emitted when the operator designates a winner.
type RoundSettledEvent struct {
	Round               solana.PublicKey
	Winner              solana.PublicKey
	WinningEntry        solana.PublicKey
	PotLamports         uint64
	TreasuryCutLamports uint64
	Slot                uint64
}

// EventType satisfies the events.Event interface.
func (RoundSettledEvent) EventType() string { return EventTypeRoundSettled }

// Event renders the wire payload.
func (e RoundSettledEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeRoundSettled, Attributes: map[string]string{
		"round":               e.Round.String(),
		"winner":              e.Winner.String(),
		"winningEntry":        e.WinningEntry.String(),
		"potLamports":         strconv.FormatUint(e.PotLamports, 10),
		"treasuryCutLamports": strconv.FormatUint(e.TreasuryCutLamports, 10),
		"slot":                strconv.FormatUint(e.Slot, 10),
	}}
}

// PayoutClaimedEvent is emitted when the winner withdraws the payout.
type PayoutClaimedEvent struct {
	Round  solana.PublicKey
	Winner solana.PublicKey
	Amount uint64
	Slot   uint64
}

// EventType satisfies the events.Event interface.
func (PayoutClaimedEvent) EventType() string { return EventTypePayoutClaimed }

// Event renders the wire payload.
func (e PayoutClaimedEvent) Event() *types.Event {
	return &types.Event{Type: EventTypePayoutClaimed, Attributes: map[string]string{
		"round":  e.Round.String(),
		"winner": e.Winner.String(),
		"amount": strconv.FormatUint(e.Amount, 10),
		"slot":   strconv.FormatUint(e.Slot, 10),
	}}
}

// RefundClaimedEvent is emitted when an entrant recovers a cancelled purchase.
type RefundClaimedEvent struct {
	Round   solana.PublicKey
	Entrant solana.PublicKey
	Entry   solana.PublicKey
	Amount  uint64
	Slot    uint64
}

// EventType satisfies the events.Event interface.
func (RefundClaimedEvent) EventType() string { return EventTypeRefundClaimed }

// Event renders the wire payload.
func (e RefundClaimedEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeRefundClaimed, Attributes: map[string]string{
		"round":   e.Round.String(),
		"entrant": e.Entrant.String(),
		"entry":   e.Entry.String(),
		"amount":  strconv.FormatUint(e.Amount, 10),
		"slot":    strconv.FormatUint(e.Slot, 10),
	}}
}

// RoundClosedEvent is emitted when the operator cancels a round.
type RoundClosedEvent struct {
	Round     solana.PublicKey
	Authority solana.PublicKey
	Reason    uint8
	Slot      uint64
}

// EventType satisfies the events.Event interface.
func (RoundClosedEvent) EventType() string { return EventTypeRoundClosed }

// Event renders the wire payload.
func (e RoundClosedEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeRoundClosed, Attributes: map[string]string{
		"round":     e.Round.String(),
		"authority": e.Authority.String(),
		"reason":    strconv.FormatUint(uint64(e.Reason), 10),
		"slot":      strconv.FormatUint(e.Slot, 10),
	}}
}
