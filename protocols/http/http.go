// Package http defines a minimal request/response protocol mirroring HTTP
// semantics between two addresses: a client sends one REQUEST and the server
// answers with exactly one RESPONSE, which ends the dialogue.
package http

import (
	"github.com/hupe1980/dialogmesh/codec"
	"github.com/hupe1980/dialogmesh/dialogue"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/protocol"
)

// ProtocolID is the identity carried in envelopes of this protocol.
const ProtocolID = "dialogmesh/http:1.0.0"

// Performatives of the http protocol.
const (
	PerformativeRequest  protocol.Performative = "request"
	PerformativeResponse protocol.Performative = "response"
)

// Roles an address can play in an http dialogue.
const (
	RoleClient protocol.Role = "client"
	RoleServer protocol.Role = "server"
)

// EndStateSuccessful is reached once the response arrives, regardless of
// its status code.
const EndStateSuccessful protocol.EndState = "successful"

// Descriptor is the http protocol contract: one request, one response.
var Descriptor = &protocol.Descriptor{
	ID: ProtocolID,
	Performatives: []protocol.Performative{
		PerformativeRequest, PerformativeResponse,
	},
	Schema: map[protocol.Performative][]protocol.Field{
		PerformativeRequest: {
			{Name: "method", Type: protocol.String()},
			{Name: "url", Type: protocol.String()},
			{Name: "version", Type: protocol.String()},
			{Name: "headers", Type: protocol.String()},
			{Name: "body", Type: protocol.Bytes()},
		},
		PerformativeResponse: {
			{Name: "version", Type: protocol.String()},
			{Name: "status_code", Type: protocol.Int()},
			{Name: "status_text", Type: protocol.String()},
			{Name: "headers", Type: protocol.String()},
			{Name: "body", Type: protocol.Bytes()},
		},
	},
	InitialPerformatives:  []protocol.Performative{PerformativeRequest},
	TerminalPerformatives: []protocol.Performative{PerformativeResponse},
	ValidReplies: map[protocol.Performative][]protocol.Performative{
		PerformativeRequest:  {PerformativeResponse},
		PerformativeResponse: {},
	},
	Roles:     []protocol.Role{RoleClient, RoleServer},
	EndStates: []protocol.EndState{EndStateSuccessful},
	EndStateByPerformative: map[protocol.Performative]protocol.EndState{
		PerformativeResponse: EndStateSuccessful,
	},
	RoleFromFirstMessage: func(first *protocol.Message, receiverAddress string) protocol.Role {
		// the party sending the request is the client
		if first.Sender() == receiverAddress {
			return RoleClient
		}
		return RoleServer
	},
	KeepTerminal: true,
}

// NewCodec creates the wire codec for http messages.
func NewCodec() *codec.Codec {
	return codec.New(Descriptor)
}

// NewDialogues creates an http dialogue registry for selfAddress.
func NewDialogues(selfAddress string, logger logging.Logger) (*dialogue.Dialogues, error) {
	return dialogue.New(Descriptor, selfAddress, func(o *dialogue.Options) {
		o.Logger = logger
	})
}

// RequestFields builds the body of a REQUEST message.
func RequestFields(method, url, version, headers string, body []byte) map[string]any {
	return map[string]any{
		"method":  method,
		"url":     url,
		"version": version,
		"headers": headers,
		"body":    body,
	}
}

// ResponseFields builds the body of a RESPONSE message.
func ResponseFields(version string, statusCode int64, statusText, headers string, body []byte) map[string]any {
	return map[string]any{
		"version":     version,
		"status_code": statusCode,
		"status_text": statusText,
		"headers":     headers,
		"body":        body,
	}
}
