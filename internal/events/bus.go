package events

import "sync"

// TypeTransaction is published for every committed treasury transaction.
const TypeTransaction = "treasury_tx"

const subscriberBuffer = 100

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Bus fans committed ledger events out to in-process subscribers. Slow
// subscribers drop events instead of blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and the id needed to unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, int) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	return ch, id
}

func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
