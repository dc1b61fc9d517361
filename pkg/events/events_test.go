package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []*Event {
	var out []*Event
	for {
		select {
		case e := <-sub.C:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestPublishFanOut(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	all := b.Subscribe("", 0)
	mainOnly := b.Subscribe("main", 0)

	b.Publish(&Event{Type: EventMemoryCreated, StoreID: "main", EntityID: "m1", WALSeq: 1})
	b.Publish(&Event{Type: EventStoreForked, StoreID: "fork-1", EntityID: "fork-2"})

	got := drain(all)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(2), got[1].Seq)
	assert.Equal(t, uint64(1), got[0].WALSeq)
	assert.False(t, got[0].Timestamp.IsZero())

	filtered := drain(mainOnly)
	require.Len(t, filtered, 1)
	assert.Equal(t, EventMemoryCreated, filtered[0].Type)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	sub := b.Subscribe("", 2)
	for i := 0; i < 5; i++ {
		b.Publish(&Event{Type: EventMemoryCreated, StoreID: "main"})
	}

	assert.Len(t, drain(sub), 2, "buffer depth caps delivery")
	assert.Equal(t, uint64(3), sub.Dropped())
}

func TestReplaySince(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	for i := 0; i < 5; i++ {
		b.Publish(&Event{Type: EventMemoryCreated, StoreID: "main"})
	}

	replayed := b.ReplaySince(3)
	require.Len(t, replayed, 2)
	assert.Equal(t, uint64(4), replayed[0].Seq)
	assert.Equal(t, uint64(5), replayed[1].Seq)

	assert.Empty(t, b.ReplaySince(5))
	assert.Len(t, b.ReplaySince(0), 5)
}

func TestReplayWindowEvicts(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	for i := 0; i < ringSize+10; i++ {
		b.Publish(&Event{Type: EventMemoryCreated, StoreID: "main"})
	}

	replayed := b.ReplaySince(0)
	require.Len(t, replayed, ringSize)
	assert.Equal(t, uint64(11), replayed[0].Seq, "oldest events evicted in order")
	assert.Equal(t, uint64(ringSize+10), replayed[len(replayed)-1].Seq)
}

func TestCloseAndSubscriberCount(t *testing.T) {
	b := NewBroker()

	s1 := b.Subscribe("", 0)
	s2 := b.Subscribe("main", 0)
	assert.Equal(t, 2, b.SubscriberCount())

	s1.Close()
	s1.Close() // idempotent
	assert.Equal(t, 1, b.SubscriberCount())

	b.Close()
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-s2.C
	assert.False(t, open, "channel closed on broker close")

	// Publishing after close reaches no subscriber and does not panic.
	b.Publish(&Event{Type: EventMemoryCreated})
}
