package connection

import (
	"context"
	"sync"

	"github.com/hupe1980/dialogmesh/codec"
)

// Local is one endpoint of an in-process duplex connection. Envelopes sent
// on one endpoint arrive on the other in FIFO order.
type Local struct {
	// sendMu serializes channel sends with Disconnect so the close cannot
	// overtake an in-flight send.
	sendMu    sync.Mutex
	mu        sync.Mutex
	out       chan *codec.Envelope
	in        chan *codec.Envelope
	connected bool
	closed    bool
}

// Pair creates two connected in-memory endpoints with the given channel
// buffer size.
func Pair(buffer int) (*Local, *Local) {
	ab := make(chan *codec.Envelope, buffer)
	ba := make(chan *codec.Envelope, buffer)
	a := &Local{out: ab, in: ba}
	b := &Local{out: ba, in: ab}
	return a, b
}

// Connect marks the endpoint ready for traffic.
func (l *Local) Connect(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.connected = true
	return nil
}

// Send delivers an envelope to the peer endpoint.
func (l *Local) Send(e *codec.Envelope) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	l.mu.Lock()
	if !l.connected || l.closed {
		l.mu.Unlock()
		return ErrNotConnected
	}
	l.mu.Unlock()

	l.out <- e
	return nil
}

// Receive blocks until an envelope arrives, the context is done, or the
// peer disconnects. Peer disconnect yields ErrClosed.
func (l *Local) Receive(ctx context.Context) (*codec.Envelope, error) {
	l.mu.Lock()
	if !l.connected && !l.closed {
		l.mu.Unlock()
		return nil, ErrNotConnected
	}
	in := l.in
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case e, ok := <-in:
		if !ok {
			return nil, ErrClosed
		}
		return e, nil
	}
}

// Disconnect tears the endpoint down; the peer's pending Receive calls
// observe ErrClosed once the queue drains. Waits for an in-flight Send on
// this endpoint to complete before closing.
func (l *Local) Disconnect() error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.connected = false
	close(l.out)
	return nil
}
