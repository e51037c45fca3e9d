package zauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zsock-node/pkg/network"
	"github.com/ZentaChain/zsock-node/pkg/protocol"
	"github.com/ZentaChain/zsock-node/pkg/transport"
)

// collectEvents subscribes to every handshake outcome on a socket's bus
// and returns a channel the test can drain
func collectEvents(s *network.Socket) <-chan network.HandshakeEvent {
	out := make(chan network.HandshakeEvent, 8)
	for _, typ := range []network.EventType{
		network.HandshakeSucceeded,
		network.HandshakeAuthError,
		network.HandshakeProtocolError,
	} {
		s.Events().On(typ, func(ev network.HandshakeEvent) { out <- ev })
	}
	return out
}

func nextEvent(t *testing.T, events <-chan network.HandshakeEvent) network.HandshakeEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no handshake event")
		return network.HandshakeEvent{}
	}
}

func TestPlainAuthenticationEndToEnd(t *testing.T) {
	reg := transport.NewDefaultRegistry()
	ctx := context.Background()

	store := NewMemoryStore()
	store.SetPlain("user", "pass")
	h := New(Config{Domain: "test", Transports: reg, Store: store})
	require.NoError(t, h.Start())
	defer h.Stop()

	server := network.NewSocket(reg, network.SecurityConfig{
		Mechanism: protocol.MechanismPlain,
		Server:    true,
		Domain:    "test",
	})
	defer server.Close()

	delivered := make(chan [][]byte, 1)
	server.SetMessageHandler(func(peer string, frames [][]byte) {
		delivered <- frames
	})
	serverEvents := collectEvents(server)

	require.NoError(t, server.Bind(ctx, "inproc://app"))

	client := network.NewSocket(reg, network.SecurityConfig{
		Mechanism:     protocol.MechanismPlain,
		PlainUsername: "user",
		PlainPassword: "pass",
	})
	defer client.Close()
	clientEvents := collectEvents(client)

	conn, err := client.Connect(ctx, "inproc://app")
	require.NoError(t, err)
	defer conn.Close()

	ev := nextEvent(t, serverEvents)
	assert.Equal(t, network.HandshakeSucceeded, ev.Type)
	assert.Nil(t, ev.Err)

	ev = nextEvent(t, clientEvents)
	assert.Equal(t, network.HandshakeSucceeded, ev.Type)

	require.NoError(t, conn.Send([][]byte{[]byte("hello"), []byte("world")}))
	select {
	case frames := <-delivered:
		require.Len(t, frames, 2)
		assert.Equal(t, "hello", string(frames[0]))
		assert.Equal(t, "world", string(frames[1]))
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered after successful handshake")
	}
}

func TestPlainBadPasswordDeniedOnBothPeers(t *testing.T) {
	reg := transport.NewDefaultRegistry()
	ctx := context.Background()

	store := NewMemoryStore()
	store.SetPlain("user", "pass")
	h := New(Config{Domain: "test", Transports: reg, Store: store})
	require.NoError(t, h.Start())
	defer h.Stop()

	server := network.NewSocket(reg, network.SecurityConfig{
		Mechanism: protocol.MechanismPlain,
		Server:    true,
		Domain:    "test",
	})
	defer server.Close()
	serverEvents := collectEvents(server)

	require.NoError(t, server.Bind(ctx, "inproc://app"))

	client := network.NewSocket(reg, network.SecurityConfig{
		Mechanism:     protocol.MechanismPlain,
		PlainUsername: "user",
		PlainPassword: "wrong",
	})
	defer client.Close()
	clientEvents := collectEvents(client)

	// The denial never surfaces through Connect, only on the buses
	conn, err := client.Connect(ctx, "inproc://app")
	require.NoError(t, err)
	defer conn.Close()

	ev := nextEvent(t, serverEvents)
	assert.Equal(t, network.HandshakeAuthError, ev.Type)
	require.NotNil(t, ev.Err)
	assert.Equal(t, 400, ev.Err.Status)
	assert.Equal(t, "Bad credentials", ev.Err.Message)

	ev = nextEvent(t, clientEvents)
	assert.Equal(t, network.HandshakeAuthError, ev.Type)
	require.NotNil(t, ev.Err)
	assert.Equal(t, 400, ev.Err.Status)
}

func TestBadVersionSurfacesOnRegisteredBus(t *testing.T) {
	reg := transport.NewDefaultRegistry()
	ctx := context.Background()

	h := New(Config{Domain: "test", Transports: reg, Store: NewMemoryStore()})

	server := network.NewSocket(reg, network.SecurityConfig{
		Mechanism: protocol.MechanismNull,
		Server:    true,
		Domain:    "test",
	})
	defer server.Close()
	serverEvents := collectEvents(server)
	h.Notify(server.Events())

	require.NoError(t, h.Start())
	defer h.Stop()
	require.NoError(t, server.Bind(ctx, "inproc://app"))

	// A peer speaking a future protocol revision straight at the
	// authenticator endpoint
	ch := dialHandler(t, reg, h.Endpoint())
	req := testRequest(protocol.MechanismNull, "test")
	req.Version = "9.9"
	rep := roundTrip(t, ch, req)

	assert.Equal(t, "9.9", rep.Version)
	assert.Equal(t, protocol.StatusInternal, rep.StatusCode)

	ev := nextEvent(t, serverEvents)
	assert.Equal(t, network.HandshakeProtocolError, ev.Type)
	require.NotNil(t, ev.Err)
	assert.Equal(t, network.ErrCodeZapBadVersion, ev.Err.Code)
}
