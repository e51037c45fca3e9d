package zauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ZentaChain/zsock-node/pkg/logging"
	"github.com/ZentaChain/zsock-node/pkg/network"
	"github.com/ZentaChain/zsock-node/pkg/protocol"
	"github.com/ZentaChain/zsock-node/pkg/transport"
)

var (
	ErrAlreadyRunning = errors.New("zauth: handler already running")
	ErrNotRunning     = errors.New("zauth: handler not running")
)

// Handler states
const (
	stateStopped int32 = iota
	stateRunning
)

// Authenticator decides one authentication request. Implementations
// replace the default validation entirely; the handler still owns
// framing, version checking and reply routing. The returned reply's
// path, version and request id are overwritten with the request's.
type Authenticator func(req *protocol.Request) *protocol.Reply

// Config configures a Handler
type Config struct {
	// Endpoint the handler listens on. Defaults to the well-known
	// in-process ZAP endpoint.
	Endpoint string

	// Domain requests must carry to authenticate
	Domain string

	// Transports resolves Endpoint; share the registry with the
	// sockets that should reach this handler
	Transports *transport.Registry

	// Store supplies credentials and address rules. With no store,
	// only NULL requests can succeed.
	Store CredentialStore

	// Authenticator, when set, replaces the default validation
	Authenticator Authenticator

	// Metrics, when set, receives request counts by status code
	Metrics *Metrics
}

// Stats is a point-in-time snapshot of handler counters
type Stats struct {
	Requests       uint64 `json:"requests"`
	Denied         uint64 `json:"denied"`
	ProtocolErrors uint64 `json:"protocol_errors"`
}

type inbound struct {
	ch     transport.Channel
	frames [][]byte
}

// Handler runs the ZAP request/reply loop. Request handling is
// sequential within one Handler instance; run several instances for
// concurrent decisions.
type Handler struct {
	cfg   Config
	state atomic.Int32

	listener transport.Listener
	requests chan inbound
	quit     chan struct{}
	loopCtx  context.Context
	loopStop context.CancelFunc
	wg       sync.WaitGroup

	busMu sync.RWMutex
	buses []*network.EventBus

	requestCount  atomic.Uint64
	deniedCount   atomic.Uint64
	protoErrCount atomic.Uint64

	logger *zap.SugaredLogger
}

// New creates a handler; call Start to begin serving
func New(cfg Config) *Handler {
	if cfg.Endpoint == "" {
		cfg.Endpoint = protocol.WellKnownEndpoint
	}
	return &Handler{
		cfg:    cfg,
		logger: logging.Logger("zauth/handler"),
	}
}

// Notify registers a socket's event bus for handshake outcome
// notifications the handler itself surfaces (protocol errors)
func (h *Handler) Notify(bus *network.EventBus) {
	h.busMu.Lock()
	h.buses = append(h.buses, bus)
	h.busMu.Unlock()
}

// Running reports whether the receive loop is active
func (h *Handler) Running() bool {
	return h.state.Load() == stateRunning
}

// Endpoint returns the URI the handler listens on
func (h *Handler) Endpoint() string { return h.cfg.Endpoint }

// Stats returns a snapshot of the handler's counters
func (h *Handler) Stats() Stats {
	return Stats{
		Requests:       h.requestCount.Load(),
		Denied:         h.deniedCount.Load(),
		ProtocolErrors: h.protoErrCount.Load(),
	}
}

// Start binds the handler endpoint and launches the receive loop
func (h *Handler) Start() error {
	if !h.state.CompareAndSwap(stateStopped, stateRunning) {
		return ErrAlreadyRunning
	}

	ep, err := network.ParseEndpoint(h.cfg.Endpoint)
	if err != nil {
		h.state.Store(stateStopped)
		return err
	}
	tr := h.cfg.Transports.Lookup(string(ep.Scheme))
	if tr == nil {
		h.state.Store(stateStopped)
		return network.ErrProtocolNotSupported(h.cfg.Endpoint)
	}

	listener, err := tr.Open(ep.Address)
	if err != nil {
		h.state.Store(stateStopped)
		return fmt.Errorf("open zap endpoint %s: %w", h.cfg.Endpoint, err)
	}

	h.listener = listener
	h.requests = make(chan inbound)
	h.quit = make(chan struct{})
	h.loopCtx, h.loopStop = context.WithCancel(context.Background())

	h.wg.Add(2)
	go h.acceptLoop()
	go h.serveLoop()

	h.logger.Infow("zap handler started", "endpoint", h.cfg.Endpoint, "domain", h.cfg.Domain)
	return nil
}

// Stop closes the inbound endpoint and waits for the loops to drain.
// A receive pending at that moment ends cleanly, not with an error.
func (h *Handler) Stop() error {
	if !h.state.CompareAndSwap(stateRunning, stateStopped) {
		return ErrNotRunning
	}

	h.listener.Close()
	close(h.quit)
	h.loopStop()
	h.wg.Wait()

	h.logger.Infow("zap handler stopped", "endpoint", h.cfg.Endpoint)
	return nil
}

func (h *Handler) acceptLoop() {
	defer h.wg.Done()

	for {
		ch, err := h.listener.Accept(h.loopCtx)
		if err != nil {
			return
		}

		h.wg.Add(1)
		go h.readLoop(ch)
	}
}

// readLoop feeds one peer channel into the sequential serve loop
func (h *Handler) readLoop(ch transport.Channel) {
	defer h.wg.Done()
	defer ch.Close()

	for {
		frames, err := ch.ReceiveFrames(h.loopCtx)
		if err != nil {
			return
		}
		select {
		case h.requests <- inbound{ch: ch, frames: frames}:
		case <-h.quit:
			return
		}
	}
}

func (h *Handler) serveLoop() {
	defer h.wg.Done()

	for {
		select {
		case in := <-h.requests:
			h.handle(in)
		case <-h.quit:
			return
		}
	}
}

func (h *Handler) handle(in inbound) {
	h.requestCount.Add(1)

	req, err := protocol.DecodeRequest(in.frames)
	if err != nil {
		// Nothing to route a reply by; drop and count it
		h.protoErrCount.Add(1)
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.ProtocolErrors.Inc()
		}
		h.logger.Warnw("malformed zap request dropped", "error", err)
		return
	}

	if req.Version != protocol.ZapVersion {
		h.handleBadVersion(in.ch, req)
		return
	}

	auth := h.cfg.Authenticator
	if auth == nil {
		auth = h.authenticate
	}
	rep := auth(req)

	// Framing is the handler's job regardless of who decided
	rep.Path = req.Path
	rep.Version = protocol.ZapVersion
	rep.RequestID = req.RequestID

	if rep.StatusCode != protocol.StatusOK {
		h.deniedCount.Add(1)
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.Requests.WithLabelValues(rep.StatusCode).Inc()
	}
	h.logger.Debugw("zap request decided",
		"requestId", req.RequestID, "mechanism", req.Mechanism,
		"address", req.Address, "status", rep.StatusCode)

	if err := in.ch.SendFrames(protocol.EncodeReply(rep)); err != nil {
		h.logger.Warnw("zap reply not delivered", "requestId", req.RequestID, "error", err)
	}
}

// handleBadVersion surfaces a version mismatch as a protocol error on
// the registered event buses and answers with a degraded best-effort
// reply, echoing whatever version and request id were decoded, so the
// peer does not hang. The reply is not a valid authentication
// decision.
func (h *Handler) handleBadVersion(ch transport.Channel, req *protocol.Request) {
	h.protoErrCount.Add(1)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.ProtocolErrors.Inc()
	}
	h.logger.Warnw("zap version mismatch", "version", req.Version, "address", req.Address)

	ev := network.HandshakeEvent{
		Type:        network.HandshakeProtocolError,
		PeerAddress: req.Address,
		Err: &network.HandshakeError{
			Message: fmt.Sprintf("Invalid ZAP version %q", req.Version),
			Code:    network.ErrCodeZapBadVersion,
		},
	}
	h.busMu.RLock()
	buses := append([]*network.EventBus(nil), h.buses...)
	h.busMu.RUnlock()
	for _, bus := range buses {
		bus.Publish(ev)
	}

	degraded := &protocol.Reply{
		Path:       req.Path,
		Version:    req.Version,
		RequestID:  req.RequestID,
		StatusCode: protocol.StatusInternal,
		StatusText: "Invalid version",
	}
	if err := ch.SendFrames(protocol.EncodeReply(degraded)); err != nil {
		h.logger.Warnw("degraded zap reply not delivered", "error", err)
	}
}

// authenticate is the default validation: address rules, credential
// count per mechanism, domain, credentials
func (h *Handler) authenticate(req *protocol.Request) *protocol.Reply {
	if h.cfg.Store != nil {
		ok, err := h.cfg.Store.CheckAddress(req.Address)
		if err != nil {
			h.logger.Errorw("address check failed", "address", req.Address, "error", err)
			return reply(protocol.StatusInternal, "Internal error", "")
		}
		if !ok {
			return reply(protocol.StatusDenied, "Address denied", "")
		}
	}

	want, known := req.Mechanism.CredentialCount()
	if !known {
		return reply(protocol.StatusDenied, "Security mechanism not supported", "")
	}
	if len(req.Credentials) != want {
		return reply(protocol.StatusTemporary, fmt.Sprintf("Expected %d credentials", want), "")
	}

	if req.Domain != h.cfg.Domain {
		return reply(protocol.StatusDenied, "Unknown domain", "")
	}

	switch req.Mechanism {
	case protocol.MechanismNull:
		return reply(protocol.StatusOK, "OK", "")

	case protocol.MechanismPlain:
		username := string(req.Credentials[0])
		password := req.Credentials[1]
		if h.cfg.Store == nil {
			return reply(protocol.StatusDenied, "Bad credentials", "")
		}
		secret, ok, err := h.cfg.Store.PlainSecret(username)
		if err != nil {
			h.logger.Errorw("plain lookup failed", "username", username, "error", err)
			return reply(protocol.StatusInternal, "Internal error", "")
		}
		if !ok || subtle.ConstantTimeCompare([]byte(secret), password) != 1 {
			return reply(protocol.StatusDenied, "Bad credentials", "")
		}
		return reply(protocol.StatusOK, "OK", username)

	case protocol.MechanismCurve:
		key, err := Z85Encode(req.Credentials[0])
		if err != nil {
			return reply(protocol.StatusDenied, "Bad credentials", "")
		}
		if h.cfg.Store == nil {
			return reply(protocol.StatusDenied, "Bad credentials", "")
		}
		allowed, err := h.cfg.Store.CurveAllowed(key)
		if err != nil {
			h.logger.Errorw("curve lookup failed", "error", err)
			return reply(protocol.StatusInternal, "Internal error", "")
		}
		if !allowed {
			return reply(protocol.StatusDenied, "Bad credentials", "")
		}
		return reply(protocol.StatusOK, "OK", key)
	}

	return reply(protocol.StatusDenied, "Security mechanism not supported", "")
}

func reply(code, text, user string) *protocol.Reply {
	return &protocol.Reply{
		StatusCode: code,
		StatusText: text,
		UserID:     user,
		Metadata:   []byte{},
	}
}
