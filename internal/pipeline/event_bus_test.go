package pipeline

import (
	"sync"
	"testing"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
)

type collector struct {
	mu   sync.Mutex
	seen []int64
}

func (c *collector) HandleEvent(v *database.EventView) {
	c.mu.Lock()
	c.seen = append(c.seen, v.ID)
	c.mu.Unlock()
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	a, b := &collector{}, &collector{}
	bus.Subscribe("a", a, 8)
	unsubscribe := bus.Subscribe("b", b, 8)

	bus.PublishEvent(&database.EventView{ID: 1})
	bus.PublishEvent(&database.EventView{ID: 2})
	bus.PublishEvent(nil)

	unsubscribe()
	if bus.SubscriberCount() != 1 {
		t.Errorf("subscribers = %d", bus.SubscriberCount())
	}
	bus.PublishEvent(&database.EventView{ID: 3})
	bus.Close()

	if len(a.seen) != 3 || a.seen[0] != 1 || a.seen[2] != 3 {
		t.Errorf("a saw %v", a.seen)
	}
	if len(b.seen) != 2 {
		t.Errorf("b saw %v, want events before unsubscribe only", b.seen)
	}
}

func TestEventBusDropsWhenQueueFull(t *testing.T) {
	bus := NewEventBus()
	block := make(chan struct{})
	var got []int64
	var mu sync.Mutex
	bus.Subscribe("slow", EventHandlerFunc(func(v *database.EventView) {
		<-block
		mu.Lock()
		got = append(got, v.ID)
		mu.Unlock()
	}), 1)

	// one in the handler, one queued, the rest dropped
	for i := int64(1); i <= 10; i++ {
		bus.PublishEvent(&database.EventView{ID: i})
	}
	close(block)
	bus.Close()

	if len(got) < 1 || len(got) > 2 {
		t.Errorf("handled %v, want at most two", got)
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := NewEventBus()
	bus.Close()
	unsubscribe := bus.Subscribe("late", &collector{}, 1)
	unsubscribe()
	if bus.SubscriberCount() != 0 {
		t.Error("closed bus accepted a subscriber")
	}
}
