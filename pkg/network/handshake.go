package network

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/ZentaChain/zsock-node/pkg/protocol"
	"github.com/ZentaChain/zsock-node/pkg/transport"
)

// Connection handshake frames exchanged between peers before any
// application traffic. The shape models the security handshake only;
// no encryption is negotiated here.
//
// HELLO (client -> server): mechanism, credentials...
// READY (server -> client): "READY", user id
// ERROR (server -> client): "ERROR", status code, status text
const (
	helloReady = "READY"
	helloError = "ERROR"
)

// initiateHandshake runs the client side of the connection handshake.
// The outcome is published on the socket's event bus and never
// returned: a connect call must not observe authentication failures
// directly.
func (s *Socket) initiateHandshake(ctx context.Context, ch transport.Channel, peer string) {
	hello := [][]byte{[]byte(s.security.Mechanism)}
	switch s.security.Mechanism {
	case protocol.MechanismPlain:
		hello = append(hello, []byte(s.security.PlainUsername), []byte(s.security.PlainPassword))
	case protocol.MechanismCurve:
		hello = append(hello, s.security.CurvePublicKey)
	}

	if err := ch.SendFrames(hello); err != nil {
		s.publishAborted(peer, err)
		return
	}

	reply, err := ch.ReceiveFrames(ctx)
	if err != nil || len(reply) == 0 {
		s.publishAborted(peer, err)
		return
	}

	switch string(reply[0]) {
	case helloReady:
		s.events.Publish(HandshakeEvent{Type: HandshakeSucceeded, PeerAddress: peer})
	case helloError:
		status, text := 500, "handshake rejected"
		if len(reply) >= 3 {
			if n, convErr := strconv.Atoi(string(reply[1])); convErr == nil {
				status = n
			}
			text = string(reply[2])
		}
		s.events.Publish(HandshakeEvent{
			Type:        HandshakeAuthError,
			PeerAddress: peer,
			Err:         &HandshakeError{Message: text, Code: "ERR_AUTH_FAILED", Status: status},
		})
	default:
		s.publishAborted(peer, fmt.Errorf("unexpected handshake frame %q", reply[0]))
	}
}

func (s *Socket) publishAborted(peer string, cause error) {
	msg := "handshake aborted"
	if cause != nil {
		msg = cause.Error()
	}
	s.events.Publish(HandshakeEvent{
		Type:        HandshakeProtocolError,
		PeerAddress: peer,
		Err:         &HandshakeError{Message: msg, Code: "ERR_HANDSHAKE_ABORTED"},
	})
}

// acceptHandshake runs the server side: read the peer's HELLO, consult
// the ZAP handler, answer READY or ERROR, and publish the outcome on
// this socket's bus. The returned user id is empty unless the handler
// reported one.
func (s *Socket) acceptHandshake(ctx context.Context, ch transport.Channel) (string, error) {
	hello, err := ch.ReceiveFrames(ctx)
	if err != nil {
		return "", err
	}
	if len(hello) == 0 {
		return "", fmt.Errorf("empty handshake from %s", ch.RemoteAddr())
	}

	mech := protocol.Mechanism(hello[0])
	creds := hello[1:]

	if mech != s.security.Mechanism {
		s.sendError(ch, protocol.StatusInternal, "Security mechanism mismatch")
		s.events.Publish(HandshakeEvent{
			Type:        HandshakeProtocolError,
			PeerAddress: ch.RemoteAddr(),
			Err: &HandshakeError{
				Message: fmt.Sprintf("peer offered %s, socket requires %s", mech, s.security.Mechanism),
				Code:    "ERR_MECHANISM_MISMATCH",
			},
		})
		return "", fmt.Errorf("mechanism mismatch: %s", mech)
	}

	zapURI := s.zapEndpointURI()
	if zapURI == "" {
		// NULL security with no domain skips authentication entirely
		if err := ch.SendFrames([][]byte{[]byte(helloReady), {}}); err != nil {
			return "", err
		}
		s.events.Publish(HandshakeEvent{Type: HandshakeSucceeded, PeerAddress: ch.RemoteAddr()})
		return "", nil
	}

	req := &protocol.Request{
		Path:        []byte(uuid.NewString()),
		Version:     protocol.ZapVersion,
		RequestID:   uuid.NewString(),
		Domain:      s.security.Domain,
		Address:     ch.RemoteAddr(),
		Identity:    []byte("zsock"),
		Mechanism:   mech,
		Credentials: creds,
	}

	reply, err := s.zapRoundTrip(ctx, zapURI, req)
	if err != nil {
		s.sendError(ch, protocol.StatusInternal, "Authenticator unavailable")
		s.events.Publish(HandshakeEvent{
			Type:        HandshakeAuthError,
			PeerAddress: ch.RemoteAddr(),
			Err:         &HandshakeError{Message: "authenticator unavailable", Code: "ERR_AUTH_UNAVAILABLE", Status: 500},
		})
		return "", err
	}

	if reply.Version != protocol.ZapVersion {
		// The handler surfaced ERR_ZAP_BAD_VERSION on the registered
		// buses and sent this degraded reply; pass the failure to the
		// peer without publishing a second event here.
		s.sendError(ch, protocol.StatusInternal, reply.StatusText)
		return "", fmt.Errorf("zap version mismatch: %q", reply.Version)
	}

	if reply.StatusCode == protocol.StatusOK {
		if err := ch.SendFrames([][]byte{[]byte(helloReady), []byte(reply.UserID)}); err != nil {
			return "", err
		}
		s.events.Publish(HandshakeEvent{Type: HandshakeSucceeded, PeerAddress: ch.RemoteAddr()})
		return reply.UserID, nil
	}

	status := 500
	if n, convErr := strconv.Atoi(reply.StatusCode); convErr == nil {
		status = n
	}
	s.sendError(ch, reply.StatusCode, reply.StatusText)
	s.events.Publish(HandshakeEvent{
		Type:        HandshakeAuthError,
		PeerAddress: ch.RemoteAddr(),
		Err:         &HandshakeError{Message: reply.StatusText, Code: "ERR_AUTH_FAILED", Status: status},
	})
	return "", fmt.Errorf("authentication denied: %s %s", reply.StatusCode, reply.StatusText)
}

func (s *Socket) sendError(ch transport.Channel, code, text string) {
	// Best effort: the peer may already be gone
	_ = ch.SendFrames([][]byte{[]byte(helloError), []byte(code), []byte(text)})
}

// zapEndpointURI resolves where authentication requests go. Empty
// means authentication is skipped, which only NULL security without a
// domain qualifies for.
func (s *Socket) zapEndpointURI() string {
	if s.zapEndpoint != "" {
		return s.zapEndpoint
	}
	if s.security.Mechanism == protocol.MechanismNull && s.security.Domain == "" {
		return ""
	}
	return protocol.WellKnownEndpoint
}

// zapRoundTrip sends one authentication request to the handler
// endpoint and waits for its reply on the same channel
func (s *Socket) zapRoundTrip(ctx context.Context, zapURI string, req *protocol.Request) (*protocol.Reply, error) {
	ep, err := ParseEndpoint(zapURI)
	if err != nil {
		return nil, err
	}
	tr := s.transports.Lookup(string(ep.Scheme))
	if tr == nil {
		return nil, ErrProtocolNotSupported(zapURI)
	}

	ch, err := tr.Dial(ctx, ep.Address)
	if err != nil {
		return nil, fmt.Errorf("dial authenticator %s: %w", zapURI, err)
	}
	defer ch.Close()

	if err := ch.SendFrames(protocol.EncodeRequest(req)); err != nil {
		return nil, fmt.Errorf("send zap request: %w", err)
	}
	frames, err := ch.ReceiveFrames(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive zap reply: %w", err)
	}
	return protocol.DecodeReply(frames)
}
