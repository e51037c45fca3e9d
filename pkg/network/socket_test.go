package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZentaChain/zsock-node/pkg/protocol"
	"github.com/ZentaChain/zsock-node/pkg/transport"
)

// gateTransport blocks Open until released, so tests can observe a
// socket while a bind is genuinely outstanding
type gateTransport struct {
	opened chan struct{}
	gate   chan struct{}
}

func newGateTransport() *gateTransport {
	return &gateTransport{
		opened: make(chan struct{}, 1),
		gate:   make(chan struct{}),
	}
}

func (t *gateTransport) Scheme() string { return "tcp" }

func (t *gateTransport) Open(address string) (transport.Listener, error) {
	t.opened <- struct{}{}
	<-t.gate
	return &stubListener{done: make(chan struct{})}, nil
}

func (t *gateTransport) Dial(ctx context.Context, address string) (transport.Channel, error) {
	return nil, errors.New("not implemented")
}

type stubListener struct {
	done chan struct{}
}

func (l *stubListener) Accept(ctx context.Context) (transport.Channel, error) {
	select {
	case <-l.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *stubListener) Addr() string { return "stub" }

func (l *stubListener) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}

func nullSocket(reg *transport.Registry) *Socket {
	return NewSocket(reg, SecurityConfig{Mechanism: protocol.MechanismNull})
}

func TestBindWhileBindPendingFailsBusy(t *testing.T) {
	gate := newGateTransport()
	reg := transport.NewRegistry()
	reg.Register(gate)

	s := nullSocket(reg)
	defer s.Close()

	ctx := context.Background()
	firstDone := make(chan error, 1)
	go func() { firstDone <- s.Bind(ctx, "tcp://127.0.0.1:7001") }()

	<-gate.opened // the first bind is now inside the transport call

	var busyErr *Error
	if err := s.Bind(ctx, "tcp://127.0.0.1:7002"); !errors.As(err, &busyErr) || busyErr.Kind != KindBusy {
		t.Fatalf("second Bind() error = %v, want Busy", err)
	}
	if err := s.Unbind(ctx, "tcp://127.0.0.1:7001"); !errors.As(err, &busyErr) || busyErr.Kind != KindBusy {
		t.Fatalf("Unbind() during pending bind error = %v, want Busy", err)
	}

	// The rejected operations must not have touched socket state
	if n := len(s.Endpoints()); n != 0 {
		t.Fatalf("endpoints = %d during pending bind, want 0", n)
	}

	close(gate.gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Bind() error = %v", err)
	}
	if n := len(s.Endpoints()); n != 1 {
		t.Fatalf("endpoints = %d after bind, want 1", n)
	}
}

func TestBindInvalidAddress(t *testing.T) {
	s := nullSocket(transport.NewDefaultRegistry())
	defer s.Close()

	err := s.Bind(context.Background(), "foo-bar")
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Bind() error = %v, want *Error", err)
	}
	if perr.Code != "EINVAL" {
		t.Errorf("Code = %q, want EINVAL", perr.Code)
	}
	if perr.Address != "foo-bar" {
		t.Errorf("Address = %q, want the literal input", perr.Address)
	}
}

func TestBindUnsupportedProtocol(t *testing.T) {
	s := nullSocket(transport.NewDefaultRegistry())
	defer s.Close()

	err := s.Bind(context.Background(), "foo://bar")
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Bind() error = %v, want *Error", err)
	}
	if perr.Code != "EPROTONOSUPPORT" {
		t.Errorf("Code = %q, want EPROTONOSUPPORT", perr.Code)
	}
	if perr.Address != "foo://bar" {
		t.Errorf("Address = %q, want %q", perr.Address, "foo://bar")
	}
}

func TestUnbindNeverBound(t *testing.T) {
	s := nullSocket(transport.NewDefaultRegistry())
	defer s.Close()

	const uri = "inproc://never-bound"
	err := s.Unbind(context.Background(), uri)
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Unbind() error = %v, want *Error", err)
	}
	if perr.Code != "ENOENT" {
		t.Errorf("Code = %q, want ENOENT", perr.Code)
	}
	if perr.Address != uri {
		t.Errorf("Address = %q, want %q", perr.Address, uri)
	}
}

func TestBindThenUnbind(t *testing.T) {
	s := nullSocket(transport.NewDefaultRegistry())
	defer s.Close()

	ctx := context.Background()
	const uri = "inproc://lifecycle"

	if err := s.Bind(ctx, uri); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if n := len(s.Endpoints()); n != 1 {
		t.Fatalf("endpoints = %d after bind, want 1", n)
	}

	if err := s.Unbind(ctx, uri); err != nil {
		t.Fatalf("Unbind() error = %v", err)
	}
	if n := len(s.Endpoints()); n != 0 {
		t.Fatalf("endpoints = %d after unbind, want 0", n)
	}

	// The address is free for a new bind
	if err := s.Bind(ctx, uri); err != nil {
		t.Fatalf("re-Bind() error = %v", err)
	}
}

func TestBindDuplicateAddress(t *testing.T) {
	s := nullSocket(transport.NewDefaultRegistry())
	defer s.Close()

	ctx := context.Background()
	const uri = "inproc://dup"

	if err := s.Bind(ctx, uri); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	err := s.Bind(ctx, uri)
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindAddrInUse {
		t.Fatalf("duplicate Bind() error = %v, want AddrInUse", err)
	}
}

func TestCloseFailsPendingBind(t *testing.T) {
	gate := newGateTransport()
	reg := transport.NewRegistry()
	reg.Register(gate)

	s := nullSocket(reg)

	bindDone := make(chan error, 1)
	go func() { bindDone <- s.Bind(context.Background(), "tcp://127.0.0.1:7003") }()

	<-gate.opened
	go s.Close()
	time.Sleep(20 * time.Millisecond)
	close(gate.gate)

	if err := <-bindDone; !errors.Is(err, ErrSocketClosed) {
		t.Fatalf("Bind() on closing socket error = %v, want ErrSocketClosed", err)
	}
	if n := len(s.Endpoints()); n != 0 {
		t.Fatalf("endpoints = %d after close, want 0", n)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	s := nullSocket(transport.NewDefaultRegistry())
	s.Close()

	if err := s.Bind(context.Background(), "inproc://x"); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("Bind() after close error = %v, want ErrSocketClosed", err)
	}
	if err := s.Unbind(context.Background(), "inproc://x"); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("Unbind() after close error = %v, want ErrSocketClosed", err)
	}
}

// NULL security without a domain skips the authenticator entirely:
// both peers observe success and frames flow end-to-end
func TestNullHandshakeEndToEnd(t *testing.T) {
	reg := transport.NewDefaultRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	server := nullSocket(reg)
	defer server.Close()
	client := nullSocket(reg)
	defer client.Close()

	received := make(chan [][]byte, 1)
	server.SetMessageHandler(func(peer string, frames [][]byte) {
		received <- frames
	})

	serverOK := make(chan HandshakeEvent, 1)
	server.Events().On(HandshakeSucceeded, func(ev HandshakeEvent) { serverOK <- ev })
	clientOK := make(chan HandshakeEvent, 1)
	client.Events().On(HandshakeSucceeded, func(ev HandshakeEvent) { clientOK <- ev })

	const uri = "inproc://null-e2e"
	if err := server.Bind(ctx, uri); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	conn, err := client.Connect(ctx, uri)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer conn.Close()

	waitEvent(t, clientOK, "client success")
	waitEvent(t, serverOK, "server success")

	if err := conn.Send([][]byte{[]byte("ping")}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case frames := <-received:
		if string(frames[0]) != "ping" {
			t.Errorf("received %q, want %q", frames[0], "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func waitEvent(t *testing.T, ch <-chan HandshakeEvent, what string) HandshakeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s event", what)
		return HandshakeEvent{}
	}
}
