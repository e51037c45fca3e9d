package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// pipeBuffer bounds each direction of an in-process channel
const pipeBuffer = 16

// Inproc is the in-process transport: endpoints are process-local
// names, channels are paired Go channels. A fresh Inproc instance is
// its own namespace.
type Inproc struct {
	mu        sync.Mutex
	listeners map[string]*inprocListener
	dialSeq   atomic.Uint64
}

// NewInproc creates an in-process transport with an empty namespace
func NewInproc() *Inproc {
	return &Inproc{listeners: make(map[string]*inprocListener)}
}

// Scheme returns "inproc"
func (t *Inproc) Scheme() string { return "inproc" }

// Open binds a named in-process endpoint
func (t *Inproc) Open(address string) (Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.listeners[address]; exists {
		return nil, fmt.Errorf("%w: inproc://%s", ErrAddrInUse, address)
	}

	l := &inprocListener{
		owner:   t,
		address: address,
		inbound: make(chan *inprocChannel, pipeBuffer),
		done:    make(chan struct{}),
	}
	t.listeners[address] = l
	return l, nil
}

// Dial connects to a named in-process endpoint
func (t *Inproc) Dial(ctx context.Context, address string) (Channel, error) {
	t.mu.Lock()
	l, ok := t.listeners[address]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: inproc://%s", ErrNoListener, address)
	}

	local, remote := newInprocPair(
		fmt.Sprintf("inproc://%s", address),
		fmt.Sprintf("inproc://%s#%d", address, t.dialSeq.Add(1)),
	)

	select {
	case l.inbound <- remote:
		return local, nil
	case <-l.done:
		local.Close()
		return nil, fmt.Errorf("%w: inproc://%s", ErrNoListener, address)
	case <-ctx.Done():
		local.Close()
		return nil, ctx.Err()
	}
}

func (t *Inproc) unregister(address string) {
	t.mu.Lock()
	delete(t.listeners, address)
	t.mu.Unlock()
}

type inprocListener struct {
	owner    *Inproc
	address  string
	inbound  chan *inprocChannel
	done     chan struct{}
	closeOne sync.Once
}

func (l *inprocListener) Accept(ctx context.Context) (Channel, error) {
	select {
	case ch := <-l.inbound:
		return ch, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *inprocListener) Addr() string { return l.address }

func (l *inprocListener) Close() error {
	l.closeOne.Do(func() {
		l.owner.unregister(l.address)
		close(l.done)
		// Hang up channels that were dialed but never accepted
		for {
			select {
			case ch := <-l.inbound:
				ch.Close()
			default:
				return
			}
		}
	})
	return nil
}

// inprocChannel is one end of a paired pipe. Both ends share a done
// channel so closing either side unblocks the other.
type inprocChannel struct {
	send     chan<- [][]byte
	recv     <-chan [][]byte
	done     chan struct{}
	closeOne *sync.Once
	remote   string
}

func newInprocPair(listenAddr, dialAddr string) (dialer, accepted *inprocChannel) {
	a := make(chan [][]byte, pipeBuffer)
	b := make(chan [][]byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}

	dialer = &inprocChannel{send: a, recv: b, done: done, closeOne: once, remote: listenAddr}
	accepted = &inprocChannel{send: b, recv: a, done: done, closeOne: once, remote: dialAddr}
	return dialer, accepted
}

func (c *inprocChannel) SendFrames(frames [][]byte) error {
	select {
	case c.send <- frames:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *inprocChannel) ReceiveFrames(ctx context.Context) ([][]byte, error) {
	// Drain delivered frames before reporting the hangup
	select {
	case frames := <-c.recv:
		return frames, nil
	default:
	}

	select {
	case frames := <-c.recv:
		return frames, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *inprocChannel) RemoteAddr() string { return c.remote }

func (c *inprocChannel) Close() error {
	c.closeOne.Do(func() { close(c.done) })
	return nil
}
