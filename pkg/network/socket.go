// Package network implements the control layer of a messaging socket:
// endpoint lifecycle (bind/unbind with mutual exclusion and a
// structured error taxonomy), the connection-time authentication
// handshake, and the per-socket handshake event bus. Raw byte
// delivery is delegated to pkg/transport.
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"

	"github.com/ZentaChain/zsock-node/pkg/logging"
	"github.com/ZentaChain/zsock-node/pkg/protocol"
	"github.com/ZentaChain/zsock-node/pkg/transport"
)

// Lifecycle operation flags; at most one may be outstanding per socket
const (
	opNone int32 = iota
	opBind
	opUnbind
)

// SecurityConfig selects the authentication mechanism a socket uses
// and carries the mechanism-specific fields
type SecurityConfig struct {
	Mechanism protocol.Mechanism
	Server    bool   // this socket accepts connections and consults ZAP
	Domain    string // ZAP domain stamped on authentication requests

	// PLAIN client credentials presented on connect
	PlainUsername string
	PlainPassword string

	// CURVE client public key (32 bytes) presented on connect
	CurvePublicKey []byte
}

// MessageHandler consumes application frames from authenticated peers
type MessageHandler func(peer string, frames [][]byte)

// Option configures a Socket at construction
type Option func(*Socket)

// WithZAPEndpoint points the socket at a non-default authentication
// handler endpoint. The default is the well-known in-process endpoint
// whenever the security configuration requires authentication.
func WithZAPEndpoint(uri string) Option {
	return func(s *Socket) { s.zapEndpoint = uri }
}

// Socket owns a set of bound endpoints and serializes their lifecycle.
// All methods are safe for concurrent use; bind and unbind are
// mutually exclusive and fail fast with Busy instead of queuing.
type Socket struct {
	transports *transport.Registry
	security   SecurityConfig

	mu         sync.RWMutex
	endpoints  map[string]*boundEndpoint
	msgHandler MessageHandler

	pending atomic.Int32
	closed  atomic.Bool

	events      *EventBus
	zapEndpoint string

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger *zap.SugaredLogger
}

type boundEndpoint struct {
	ep       Endpoint
	listener transport.Listener
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSocket creates a socket resolving endpoints against the given
// transport registry
func NewSocket(transports *transport.Registry, security SecurityConfig, opts ...Option) *Socket {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		transports: transports,
		security:   security,
		endpoints:  make(map[string]*boundEndpoint),
		events:     NewEventBus(),
		rootCtx:    ctx,
		cancel:     cancel,
		logger:     logging.Logger("network/socket"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns the socket's handshake event bus
func (s *Socket) Events() *EventBus { return s.events }

// SetMessageHandler installs the consumer for frames received from
// authenticated peers
func (s *Socket) SetMessageHandler(h MessageHandler) {
	s.mu.Lock()
	s.msgHandler = h
	s.mu.Unlock()
}

func (s *Socket) messageHandler() MessageHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.msgHandler
}

// Bind opens an endpoint and starts accepting peers on it.
//
// A second bind or unbind issued while one is outstanding fails with
// Busy and leaves socket state untouched; no transport call is made.
// Parse failures and transport failures carry the offending URI.
func (s *Socket) Bind(ctx context.Context, uri string) error {
	if s.closed.Load() {
		return ErrSocketClosed
	}
	if !s.pending.CompareAndSwap(opNone, opBind) {
		return ErrBusy()
	}
	defer s.pending.Store(opNone)

	ep, err := ParseEndpoint(uri)
	if err != nil {
		return err
	}

	s.mu.RLock()
	_, dup := s.endpoints[uri]
	s.mu.RUnlock()
	if dup {
		return ErrAddrInUse(uri, nil)
	}

	tr := s.transports.Lookup(string(ep.Scheme))
	if tr == nil {
		return ErrProtocolNotSupported(uri)
	}

	ep.State = StateBinding
	listener, err := tr.Open(ep.Address)
	if err != nil {
		return mapTransportError(uri, err)
	}

	// The socket may have been closed or the caller gone while the
	// transport was binding; surface that as a failed operation.
	if s.closed.Load() {
		listener.Close()
		return ErrSocketClosed
	}
	if ctx.Err() != nil {
		listener.Close()
		return fmt.Errorf("bind %s: %w", uri, ctx.Err())
	}

	epCtx, epCancel := context.WithCancel(s.rootCtx)
	ep.State = StateBound
	be := &boundEndpoint{ep: ep, listener: listener, ctx: epCtx, cancel: epCancel}

	s.mu.Lock()
	s.endpoints[uri] = be
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(be)

	s.logger.Infow("endpoint bound", "uri", uri)
	return nil
}

// Unbind closes a previously bound endpoint.
//
// Unbinding an address that was never bound fails with NotFound. On
// transport failure the endpoint stays registered and the error is
// propagated with the URI attached.
func (s *Socket) Unbind(ctx context.Context, uri string) error {
	if s.closed.Load() {
		return ErrSocketClosed
	}
	if !s.pending.CompareAndSwap(opNone, opUnbind) {
		return ErrBusy()
	}
	defer s.pending.Store(opNone)

	if _, err := ParseEndpoint(uri); err != nil {
		return err
	}

	s.mu.Lock()
	be, ok := s.endpoints[uri]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound(uri)
	}
	be.ep.State = StateUnbinding
	s.mu.Unlock()

	if ctx.Err() != nil {
		return fmt.Errorf("unbind %s: %w", uri, ctx.Err())
	}

	if err := be.listener.Close(); err != nil {
		s.mu.Lock()
		be.ep.State = StateBound
		s.mu.Unlock()
		return fmt.Errorf("unbind %s: %w", uri, err)
	}
	be.cancel()

	s.mu.Lock()
	delete(s.endpoints, uri)
	s.mu.Unlock()

	s.logger.Infow("endpoint unbound", "uri", uri)
	return nil
}

// Endpoints returns a snapshot of the socket's bound endpoints
func (s *Socket) Endpoints() []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eps := make([]Endpoint, 0, len(s.endpoints))
	for _, be := range s.endpoints {
		eps = append(eps, be.ep)
	}
	return eps
}

// Connect dials a peer endpoint and starts the authentication
// handshake. The returned error covers lifecycle failures only
// (parsing, unreachable transport); handshake outcomes are observable
// exclusively on the event bus, so a connect "succeeds" at the
// transport level even when authentication is later denied.
func (s *Socket) Connect(ctx context.Context, uri string) (*Conn, error) {
	if s.closed.Load() {
		return nil, ErrSocketClosed
	}

	ep, err := ParseEndpoint(uri)
	if err != nil {
		return nil, err
	}
	tr := s.transports.Lookup(string(ep.Scheme))
	if tr == nil {
		return nil, ErrProtocolNotSupported(uri)
	}

	ch, err := tr.Dial(ctx, ep.Address)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", uri, err)
	}

	s.initiateHandshake(ctx, ch, uri)
	return &Conn{ch: ch, peer: uri}, nil
}

// Close tears down all endpoints and connections. A lifecycle
// operation in flight observes the closed flag and fails rather than
// completing.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	for uri, be := range s.endpoints {
		be.listener.Close()
		be.cancel()
		delete(s.endpoints, uri)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Socket) acceptLoop(be *boundEndpoint) {
	defer s.wg.Done()

	for {
		ch, err := be.listener.Accept(be.ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) && be.ctx.Err() == nil {
				s.logger.Warnw("accept failed", "uri", be.ep.URI(), "error", err)
			}
			return
		}

		s.wg.Add(1)
		go s.serveConn(be.ctx, ch)
	}
}

func (s *Socket) serveConn(ctx context.Context, ch transport.Channel) {
	defer s.wg.Done()
	defer ch.Close()

	user, err := s.acceptHandshake(ctx, ch)
	if err != nil {
		return
	}
	s.logger.Debugw("peer authenticated", "peer", ch.RemoteAddr(), "user", user)

	for {
		frames, err := ch.ReceiveFrames(ctx)
		if err != nil {
			return
		}
		if h := s.messageHandler(); h != nil {
			h(ch.RemoteAddr(), frames)
		}
	}
}

// mapTransportError turns a transport open/close failure into the
// structured taxonomy where a stable classification exists, keeping
// the offending URI attached either way.
func mapTransportError(uri string, err error) error {
	if errors.Is(err, transport.ErrAddrInUse) || errors.Is(err, syscall.EADDRINUSE) {
		return ErrAddrInUse(uri, err)
	}
	return fmt.Errorf("bind %s: %w", uri, err)
}

// Conn is an outbound connection to a peer endpoint
type Conn struct {
	ch   transport.Channel
	peer string
}

// Send delivers one application frame set to the peer
func (c *Conn) Send(frames [][]byte) error {
	return c.ch.SendFrames(frames)
}

// Peer returns the connected endpoint URI
func (c *Conn) Peer() string { return c.peer }

// Close hangs up the connection
func (c *Conn) Close() error { return c.ch.Close() }
