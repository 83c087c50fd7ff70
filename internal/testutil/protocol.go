package testutil

import (
	"github.com/hupe1980/dialogmesh/codec"
	"github.com/hupe1980/dialogmesh/protocol"
)

// Performatives of the negotiation test protocol.
const (
	PerformativePropose protocol.Performative = "propose"
	PerformativeCounter protocol.Performative = "counter"
	PerformativeAccept  protocol.Performative = "accept"
	PerformativeDecline protocol.Performative = "decline"
)

// Roles of the negotiation test protocol.
const (
	RoleBuyer  protocol.Role = "buyer"
	RoleSeller protocol.Role = "seller"
)

// End states of the negotiation test protocol.
const (
	EndStateAgreed   protocol.EndState = "agreed"
	EndStateRejected protocol.EndState = "rejected"
)

// Stamp is the custom content type of the test protocol.
type Stamp struct {
	ID string
}

type stampType struct{}

func (stampType) Name() string { return "Stamp" }

func (stampType) Matches(v any) bool {
	_, ok := v.(Stamp)
	return ok
}

// StampCodec is the wire codec for Stamp values.
type StampCodec struct{}

// Encode implements codec.CustomCodec.
func (StampCodec) Encode(v any) ([]byte, error) {
	return []byte(v.(Stamp).ID), nil
}

// Decode implements codec.CustomCodec.
func (StampCodec) Decode(data []byte) (any, error) {
	return Stamp{ID: string(data)}, nil
}

// NewDescriptor creates a fresh negotiation protocol descriptor. A buyer
// opens with PROPOSE; the seller may COUNTER any number of times before
// either side ends the dialogue with ACCEPT or DECLINE.
func NewDescriptor() *protocol.Descriptor {
	return &protocol.Descriptor{
		ID: "dialogmesh/negotiation_test:0.1.0",
		Performatives: []protocol.Performative{
			PerformativePropose, PerformativeCounter,
			PerformativeAccept, PerformativeDecline,
		},
		Schema: map[protocol.Performative][]protocol.Field{
			PerformativePropose: {
				{Name: "subject", Type: protocol.String()},
				{Name: "price", Type: protocol.Float()},
				{Name: "count", Type: protocol.Int()},
				{Name: "urgent", Type: protocol.Bool()},
				{Name: "payload", Type: protocol.Bytes()},
				{Name: "tags", Type: protocol.ListOf(protocol.String())},
				{Name: "attributes", Type: protocol.MapOf(protocol.String())},
				{Name: "stamp", Type: protocol.CustomSpec(stampType{})},
				{Name: "note", Type: protocol.UnionOf(protocol.String(), protocol.Int(), protocol.ListOf(protocol.String())), Optional: true},
			},
			PerformativeCounter: {
				{Name: "price", Type: protocol.Float()},
			},
			PerformativeAccept: {
				{Name: "note", Type: protocol.String(), Optional: true},
			},
			PerformativeDecline: {},
		},
		InitialPerformatives:  []protocol.Performative{PerformativePropose},
		TerminalPerformatives: []protocol.Performative{PerformativeAccept, PerformativeDecline},
		ValidReplies: map[protocol.Performative][]protocol.Performative{
			PerformativePropose: {PerformativeCounter, PerformativeAccept, PerformativeDecline},
			PerformativeCounter: {PerformativeCounter, PerformativeAccept, PerformativeDecline},
			PerformativeAccept:  {},
			PerformativeDecline: {},
		},
		Roles:     []protocol.Role{RoleBuyer, RoleSeller},
		EndStates: []protocol.EndState{EndStateAgreed, EndStateRejected},
		EndStateByPerformative: map[protocol.Performative]protocol.EndState{
			PerformativeAccept:  EndStateAgreed,
			PerformativeDecline: EndStateRejected,
		},
		RoleFromFirstMessage: func(first *protocol.Message, receiverAddress string) protocol.Role {
			if first.Sender() == receiverAddress {
				return RoleBuyer
			}
			return RoleSeller
		},
		KeepTerminal: true,
	}
}

// NewCodec creates the wire codec for the negotiation test protocol.
func NewCodec(desc *protocol.Descriptor) *codec.Codec {
	return codec.New(desc, codec.WithCustomCodec("Stamp", StampCodec{}))
}

// ProposeFields builds a schema-complete PROPOSE body.
func ProposeFields() map[string]any {
	return map[string]any{
		"subject":    "widget",
		"price":      9.75,
		"count":      int64(3),
		"urgent":     true,
		"payload":    []byte{0x01, 0x02},
		"tags":       []any{"new", "sale"},
		"attributes": map[string]any{"color": "red", "size": "L"},
		"stamp":      Stamp{ID: "stamp-1"},
	}
}
