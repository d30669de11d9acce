package events

import "sync"

// Listener is a function that handles events.
type Listener func(*Event)

// defaultQueueSize bounds the number of undelivered events held by the bus.
const defaultQueueSize = 256

// Bus distributes events to listeners. Publish is non-blocking: events are
// queued to a background dispatcher and dropped when the queue is full.
// Observability must never stall the pipeline.
type Bus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]Listener
	globalListeners []Listener

	queue   chan *Event
	done    chan struct{}
	dropped uint64
	closeMu sync.Mutex
	closed  bool
}

// NewBus creates a new event bus and starts its dispatcher.
func NewBus() *Bus {
	b := &Bus{
		listeners: make(map[EventType][]Listener),
		queue:     make(chan *Event, defaultQueueSize),
		done:      make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a listener for a specific event type.
func (b *Bus) Subscribe(eventType EventType, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], listener)
}

// SubscribeAll registers a listener for all event types.
func (b *Bus) SubscribeAll(listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalListeners = append(b.globalListeners, listener)
}

// Publish enqueues an event for delivery. If the queue is full the event is
// dropped and the drop counter incremented.
func (b *Bus) Publish(event *Event) {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return
	}
	b.closeMu.Unlock()

	select {
	case b.queue <- event:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

// Dropped returns the number of events discarded due to a full queue.
func (b *Bus) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close stops the dispatcher. Events already queued are delivered first.
func (b *Bus) Close() {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.queue)
	<-b.done
}

// Clear removes all listeners (primarily for tests).
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[EventType][]Listener)
	b.globalListeners = nil
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		b.mu.RLock()
		typeListeners := b.listeners[event.Type]
		specific := make([]Listener, len(typeListeners))
		copy(specific, typeListeners)
		global := make([]Listener, len(b.globalListeners))
		copy(global, b.globalListeners)
		b.mu.RUnlock()

		for _, listener := range specific {
			safeInvoke(listener, event)
		}
		for _, listener := range global {
			safeInvoke(listener, event)
		}
	}
}

// safeInvoke shields the dispatcher from panicking listeners.
func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
