package network

import "sync"

// EventType selects which handshake outcomes a subscriber observes
type EventType int

const (
	// HandshakeSucceeded fires when a peer passed authentication
	HandshakeSucceeded EventType = iota

	// HandshakeAuthError fires when a peer was rejected by the
	// authentication handler (status 400)
	HandshakeAuthError

	// HandshakeProtocolError fires when the handshake itself was
	// malformed, e.g. a ZAP version mismatch
	HandshakeProtocolError
)

func (t EventType) String() string {
	switch t {
	case HandshakeSucceeded:
		return "handshake:success"
	case HandshakeAuthError:
		return "handshake:error:auth"
	case HandshakeProtocolError:
		return "handshake:error:protocol"
	default:
		return "handshake:unknown"
	}
}

// ErrCodeZapBadVersion identifies a ZAP version mismatch on
// HandshakeProtocolError events
const ErrCodeZapBadVersion = "ERR_ZAP_BAD_VERSION"

// HandshakeError describes a failed handshake on an event
type HandshakeError struct {
	Message string
	Code    string
	Status  int // ZAP status code on auth errors, 0 otherwise
}

// HandshakeEvent is produced exactly once per handshake attempt
type HandshakeEvent struct {
	Type        EventType
	PeerAddress string
	Err         *HandshakeError // nil on success
}

// EventHandler consumes handshake events
type EventHandler func(HandshakeEvent)

// EventBus is a per-socket observer registry keyed by event type.
// Each published event is delivered to every handler registered for
// its type exactly once; there is no ordering guarantee across
// distinct event types. Handlers run synchronously on the publishing
// goroutine.
type EventBus struct {
	mu   sync.RWMutex
	next int
	subs map[EventType]map[int]EventHandler
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[EventType]map[int]EventHandler)}
}

// On registers a handler for one event type and returns its
// unsubscribe function
func (b *EventBus) On(t EventType, handler EventHandler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]EventHandler)
	}
	id := b.next
	b.next++
	b.subs[t][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

// Publish delivers the event to all handlers registered for its type
func (b *EventBus) Publish(ev HandshakeEvent) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs[ev.Type]))
	for _, h := range b.subs[ev.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
