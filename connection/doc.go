// Package connection defines the transport contract the dialogue engine is
// specified against and ships two implementations: an in-memory duplex pair
// for tests and local wiring, and a websocket client carrying marshalled
// envelopes in binary frames.
//
// Receive returns ErrClosed once the peer has shut down in an orderly way;
// consumers blocking on a reply must treat that as the cooperative
// cancellation signal rather than an exceptional failure.
package connection
