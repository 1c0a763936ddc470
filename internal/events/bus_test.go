package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	a, aID := bus.Subscribe()
	b, bID := bus.Subscribe()
	defer bus.Unsubscribe(aID)
	defer bus.Unsubscribe(bID)

	bus.Publish(Event{Type: TypeTransaction, Data: "payload"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case evt := <-ch:
			assert.Equal(t, TypeTransaction, evt.Type)
			assert.Equal(t, "payload", evt.Data)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, id := bus.Subscribe()
	bus.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// A second unsubscribe with the same id is a no-op.
	bus.Unsubscribe(id)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(Event{Type: TypeTransaction, Data: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
	require.Len(t, ch, subscriberBuffer)
}
