package connection

import (
	"context"
	"errors"

	"github.com/hupe1980/dialogmesh/codec"
)

var (
	// ErrNotConnected is returned by Send before Connect or after Disconnect.
	ErrNotConnected = errors.New("connection is not connected")

	// ErrClosed signals orderly shutdown of the peer.
	ErrClosed = errors.New("connection closed")
)

// Connection moves envelopes between two endpoints. Implementations must
// return ErrNotConnected from Send while disconnected and ErrClosed from
// Receive after an orderly shutdown.
type Connection interface {
	Connect(ctx context.Context) error
	Send(e *codec.Envelope) error
	Receive(ctx context.Context) (*codec.Envelope, error)
	Disconnect() error
}
