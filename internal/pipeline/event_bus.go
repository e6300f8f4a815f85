package pipeline

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/recorder"
)

// EventHandler receives persisted events
type EventHandler interface {
	HandleEvent(view *database.EventView)
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(view *database.EventView)

func (f EventHandlerFunc) HandleEvent(view *database.EventView) { f(view) }

// EventBus fans new-event notifications out to subscribers.
// Each subscriber drains its own queue so a slow broker never stalls a session loop.
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
	closed      bool
	log         zerolog.Logger
}

type eventSubscription struct {
	name    string
	handler EventHandler
	queue   chan *database.EventView
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
		log:         logging.Component("event-bus"),
	}
}

// Subscribe registers a handler with a queue of bufferSize events.
// Returns an unsubscribe function.
func (b *EventBus) Subscribe(name string, handler EventHandler, bufferSize int) func() {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	sub := &eventSubscription{
		name:    name,
		handler: handler,
		queue:   make(chan *database.EventView, bufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.queue)
		return func() {}
	}
	b.subscribers[sub] = true
	b.wg.Add(1)
	b.mu.Unlock()

	go b.drain(sub)

	return func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(sub.queue)
		}
		b.mu.Unlock()
	}
}

// PublishEvent sends an event to all subscribers without blocking
func (b *EventBus) PublishEvent(view *database.EventView) {
	if view == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub.queue <- view:
		default:
			b.log.Warn().Str("subscriber", sub.name).Int64("event_id", view.ID).Msg("subscriber queue full, event dropped")
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes everyone and waits for queued events to be handled
func (b *EventBus) Close() {
	b.mu.Lock()
	b.closed = true
	for sub := range b.subscribers {
		close(sub.queue)
		delete(b.subscribers, sub)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *EventBus) drain(sub *eventSubscription) {
	defer b.wg.Done()
	for view := range sub.queue {
		sub.handler.HandleEvent(view)
	}
}

var _ recorder.Notifier = (*EventBus)(nil)
