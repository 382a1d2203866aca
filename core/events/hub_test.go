package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lottochain/core/types"
)

type testEvent struct {
	kind string
	id   string
}

func (e testEvent) EventType() string { return e.kind }

func (e testEvent) Event() *types.Event {
	return &types.Event{Type: e.kind, Attributes: map[string]string{"id": e.id}}
}

func TestBufferFlushesInOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent{kind: "a", id: "1"})
	buf.Emit(nil)
	buf.Emit(testEvent{kind: "b", id: "2"})
	require.Equal(t, 2, buf.Len())

	var got []string
	buf.Flush(EmitterFunc(func(evt Event) { got = append(got, evt.EventType()) }))
	require.Equal(t, []string{"a", "b"}, got)
	require.Zero(t, buf.Len())
}

func TestHubDeliversAndDropsWhenFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	require.Equal(t, 1, hub.Subscribers())

	hub.Emit(testEvent{kind: "lotto.round.joined", id: "r1"})
	hub.Emit(testEvent{kind: "lotto.round.joined", id: "r2"})

	evt := <-ch
	require.Equal(t, "r1", evt.Attr("id"))
	require.Equal(t, uint64(1), hub.Dropped())

	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)
	require.Zero(t, hub.Subscribers())
}

func TestMultiFansOut(t *testing.T) {
	var a, b Buffer
	Multi{&a, nil, &b}.Emit(testEvent{kind: "x"})
	require.Equal(t, 1, a.Len())
	require.Equal(t, 1, b.Len())
}
