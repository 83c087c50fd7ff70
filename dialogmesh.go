// Package dialogmesh provides a high-level façade over the dialogue engine:
// a protocol descriptor, its dialogue registry, its wire codec and an
// optional transport bundled into a single Endpoint. Most applications
// interact with this package by:
//  1. Creating an Endpoint via New() with a protocol descriptor and the
//     agent's own address
//  2. Opening dialogues (Post) and answering inbound traffic (Reply)
//  3. Pumping envelopes through the attached connection (Send / Receive)
//
// The façade delegates session tracking to dialogue.Dialogues and framing to
// codec.Codec while keeping setup and usage ergonomics concise. All defaults
// are safe for local development and testing; production deployments
// typically attach a durable transport and a structured logger.
package dialogmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/dialogmesh/codec"
	"github.com/hupe1980/dialogmesh/connection"
	"github.com/hupe1980/dialogmesh/dialogue"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/protocol"
)

// Options configures the Endpoint.
type Options struct {
	// Connection carries envelopes to and from counterparties. Optional;
	// without one the Endpoint still encodes, decodes and tracks dialogues.
	Connection connection.Connection

	// Customs maps custom type names declared in the descriptor's schema to
	// their wire codecs.
	Customs map[string]codec.CustomCodec

	// KeepTerminal overrides the descriptor's retention flag when non-nil.
	KeepTerminal *bool

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Endpoint is the high-level façade aggregating the dialogue registry, the
// wire codec and the transport for one protocol and one local address.
type Endpoint struct {
	opts      Options
	desc      *protocol.Descriptor
	dialogues *dialogue.Dialogues
	codec     *codec.Codec
}

// New creates an Endpoint for the given protocol owned by selfAddress.
func New(desc *protocol.Descriptor, selfAddress string, optFns ...func(o *Options)) (*Endpoint, error) {
	opts := Options{
		Customs: map[string]codec.CustomCodec{},
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	dialogues, err := dialogue.New(desc, selfAddress, func(o *dialogue.Options) {
		o.Logger = opts.Logger
		o.KeepTerminal = opts.KeepTerminal
	})
	if err != nil {
		return nil, err
	}

	c := codec.New(desc, func(o *codec.Options) {
		for name, cc := range opts.Customs {
			o.Customs[name] = cc
		}
	})

	return &Endpoint{opts: opts, desc: desc, dialogues: dialogues, codec: c}, nil
}

// Dialogues returns the underlying dialogue registry.
func (e *Endpoint) Dialogues() *dialogue.Dialogues { return e.dialogues }

// Codec returns the underlying wire codec.
func (e *Endpoint) Codec() *codec.Codec { return e.codec }

// SelfAddress returns the address owning the endpoint.
func (e *Endpoint) SelfAddress() string { return e.dialogues.SelfAddress() }

// Connect opens the attached connection.
func (e *Endpoint) Connect(ctx context.Context) error {
	if e.opts.Connection == nil {
		return fmt.Errorf("endpoint has no connection attached")
	}
	return e.opts.Connection.Connect(ctx)
}

// Disconnect closes the attached connection.
func (e *Endpoint) Disconnect() error {
	if e.opts.Connection == nil {
		return nil
	}
	return e.opts.Connection.Disconnect()
}

// Post opens a dialogue with counterparty and sends its first message over
// the attached connection.
func (e *Endpoint) Post(counterparty string, performative protocol.Performative, fields map[string]any) (*dialogue.Dialogue, error) {
	message, d, err := e.dialogues.Create(counterparty, performative, fields)
	if err != nil {
		return nil, err
	}
	if err := e.Send(message); err != nil {
		return nil, err
	}
	return d, nil
}

// Reply continues dialogue d with the local agent's next message and sends
// it over the attached connection.
func (e *Endpoint) Reply(d *dialogue.Dialogue, performative protocol.Performative, fields map[string]any) (*protocol.Message, error) {
	message, err := d.Reply(performative, fields)
	if err != nil {
		return nil, err
	}
	if err := e.Send(message); err != nil {
		return nil, err
	}
	return message, nil
}

// Send encodes message into an envelope and hands it to the connection. The
// message must carry routing information (to and sender).
func (e *Endpoint) Send(message *protocol.Message) error {
	if e.opts.Connection == nil {
		return fmt.Errorf("endpoint has no connection attached")
	}
	envelope, err := e.codec.EncodeEnvelope(message)
	if err != nil {
		return err
	}
	return e.opts.Connection.Send(envelope)
}

// Receive blocks for the next inbound envelope, decodes it and routes the
// message through the dialogue registry. The returned dialogue is nil when
// the registry rejects the message; the decoded message is still returned so
// the caller can answer with a protocol level error.
func (e *Endpoint) Receive(ctx context.Context) (*protocol.Message, *dialogue.Dialogue, error) {
	if e.opts.Connection == nil {
		return nil, nil, fmt.Errorf("endpoint has no connection attached")
	}
	envelope, err := e.opts.Connection.Receive(ctx)
	if err != nil {
		return nil, nil, err
	}
	message, err := e.codec.DecodeEnvelope(envelope)
	if err != nil {
		return nil, nil, err
	}
	return message, e.dialogues.Update(message), nil
}
