package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Frame-set wire format for stream transports: a 2-byte frame count,
// then per frame a 4-byte length and the payload. Big endian.
const (
	maxFramesPerSet = 1024
	maxFrameSize    = 16 * 1024 * 1024
)

var (
	ErrTooManyFrames = errors.New("transport: frame set exceeds frame count limit")
	ErrFrameTooLarge = errors.New("transport: frame exceeds size limit")
)

// NetTransport serves a URI scheme over a net.Listener/net.Conn pair.
// TCP endpoints use host:port addresses, IPC endpoints use filesystem
// paths.
type NetTransport struct {
	scheme  string
	network string
}

// NewTCP creates the TCP transport
func NewTCP() *NetTransport {
	return &NetTransport{scheme: "tcp", network: "tcp"}
}

// NewIPC creates the IPC (unix socket) transport
func NewIPC() *NetTransport {
	return &NetTransport{scheme: "ipc", network: "unix"}
}

// Scheme returns the URI scheme this transport serves
func (t *NetTransport) Scheme() string { return t.scheme }

// Open binds a listening endpoint at the given address
func (t *NetTransport) Open(address string) (Listener, error) {
	nl, err := net.Listen(t.network, address)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", t.network, address, err)
	}
	return &netListener{inner: nl, address: address}, nil
}

// Dial connects to an endpoint at the given address
func (t *NetTransport) Dial(ctx context.Context, address string) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, t.network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", t.network, address, err)
	}
	return newNetChannel(conn), nil
}

type netListener struct {
	inner   net.Listener
	address string
}

func (l *netListener) Accept(ctx context.Context) (Channel, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := l.inner.Accept()
		done <- result{conn, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, res.err
		}
		return newNetChannel(res.conn), nil
	case <-ctx.Done():
		// The pending Accept keeps running until the listener closes;
		// discard whatever it yields.
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (l *netListener) Addr() string { return l.address }

func (l *netListener) Close() error { return l.inner.Close() }

type netChannel struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func newNetChannel(conn net.Conn) *netChannel {
	return &netChannel{conn: conn}
}

func (c *netChannel) SendFrames(frames [][]byte) error {
	if len(frames) > maxFramesPerSet {
		return ErrTooManyFrames
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var head [2]byte
	binary.BigEndian.PutUint16(head[:], uint16(len(frames)))
	if _, err := c.conn.Write(head[:]); err != nil {
		return c.mapErr(err)
	}

	var size [4]byte
	for _, frame := range frames {
		if len(frame) > maxFrameSize {
			return ErrFrameTooLarge
		}
		binary.BigEndian.PutUint32(size[:], uint32(len(frame)))
		if _, err := c.conn.Write(size[:]); err != nil {
			return c.mapErr(err)
		}
		if _, err := c.conn.Write(frame); err != nil {
			return c.mapErr(err)
		}
	}
	return nil
}

func (c *netChannel) ReceiveFrames(ctx context.Context) ([][]byte, error) {
	stop := c.watchContext(ctx)
	defer stop()

	var head [2]byte
	if _, err := io.ReadFull(c.conn, head[:]); err != nil {
		return nil, c.readErr(ctx, err)
	}
	count := int(binary.BigEndian.Uint16(head[:]))
	if count > maxFramesPerSet {
		return nil, ErrTooManyFrames
	}

	frames := make([][]byte, 0, count)
	var size [4]byte
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(c.conn, size[:]); err != nil {
			return nil, c.readErr(ctx, err)
		}
		n := binary.BigEndian.Uint32(size[:])
		if n > maxFrameSize {
			return nil, ErrFrameTooLarge
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(c.conn, frame); err != nil {
			return nil, c.readErr(ctx, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// watchContext aborts a blocking read when ctx is done by forcing the
// read deadline into the past. The returned stop func must be called
// before the channel is used again.
func (c *netChannel) watchContext(ctx context.Context) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}

	quit := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.conn.SetReadDeadline(time.Unix(1, 0))
		case <-quit:
		}
	}()
	return func() {
		close(quit)
		c.conn.SetReadDeadline(time.Time{})
	}
}

func (c *netChannel) readErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.mapErr(err)
}

func (c *netChannel) mapErr(err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrClosed
	}
	return err
}

func (c *netChannel) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *netChannel) Close() error { return c.conn.Close() }
