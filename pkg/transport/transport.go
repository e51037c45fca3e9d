// Package transport provides the byte-delivery layer the socket core
// consumes as an opaque capability: open an endpoint, accept channels,
// move frame sets, close. Implementations exist for in-process pipes,
// TCP and IPC (unix sockets).
package transport

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed signals a clean shutdown: the endpoint or channel was
	// closed while a receive or accept was pending. It is not a failure.
	ErrClosed = errors.New("transport: closed")

	// ErrAddrInUse is returned when opening an endpoint that is already
	// bound within the same transport.
	ErrAddrInUse = errors.New("transport: address already in use")

	// ErrNoListener is returned when dialing an endpoint nothing
	// listens on.
	ErrNoListener = errors.New("transport: no listener at address")
)

// Channel is a bidirectional frame-set pipe between two peers
type Channel interface {
	// SendFrames delivers one frame set atomically
	SendFrames(frames [][]byte) error

	// ReceiveFrames blocks for the next frame set. It returns ErrClosed
	// when the channel shuts down cleanly, or the context error when
	// ctx is done first.
	ReceiveFrames(ctx context.Context) ([][]byte, error)

	// RemoteAddr identifies the peer, for logging and ZAP requests
	RemoteAddr() string

	Close() error
}

// Listener is an open endpoint accepting inbound channels
type Listener interface {
	// Accept blocks for the next inbound channel. It returns ErrClosed
	// once the listener is closed.
	Accept(ctx context.Context) (Channel, error)

	// Addr returns the bound transport-specific address
	Addr() string

	Close() error
}

// Transport opens endpoints and dials peers for one URI scheme
type Transport interface {
	// Scheme is the URI scheme this transport serves (tcp, ipc, inproc)
	Scheme() string

	// Open binds an endpoint at the transport-specific address
	Open(address string) (Listener, error)

	// Dial connects to an endpoint at the transport-specific address
	Dial(ctx context.Context, address string) (Channel, error)
}

// Registry maps URI schemes to transports. Each socket (and each ZAP
// handler) resolves its endpoints against one registry; sharing a
// registry shares the in-process namespace.
type Registry struct {
	mu       sync.RWMutex
	byScheme map[string]Transport
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{byScheme: make(map[string]Transport)}
}

// NewDefaultRegistry returns a registry with the inproc, tcp and ipc
// transports registered. The inproc namespace is private to the
// returned registry.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewInproc())
	r.Register(NewTCP())
	r.Register(NewIPC())
	return r
}

// Register adds a transport, replacing any previous one for the scheme
func (r *Registry) Register(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byScheme[t.Scheme()] = t
}

// Lookup returns the transport for a scheme, or nil
func (r *Registry) Lookup(scheme string) Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byScheme[scheme]
}
