// Package gym defines the protocol for interacting with an RL environment:
// an agent resets the environment, receives its status, then alternates
// actions and percepts until it closes the session.
package gym

import (
	"github.com/hupe1980/dialogmesh/codec"
	"github.com/hupe1980/dialogmesh/dialogue"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/protocol"
)

// ProtocolID is the identity carried in envelopes of this protocol.
const ProtocolID = "dialogmesh/gym:1.0.0"

// Performatives of the gym protocol.
const (
	PerformativeAct     protocol.Performative = "act"
	PerformativeClose   protocol.Performative = "close"
	PerformativePercept protocol.Performative = "percept"
	PerformativeReset   protocol.Performative = "reset"
	PerformativeStatus  protocol.Performative = "status"
)

// Roles an address can play in a gym dialogue.
const (
	RoleAgent       protocol.Role = "agent"
	RoleEnvironment protocol.Role = "environment"
)

// EndStateSuccessful is the only end state; a gym session always closes.
const EndStateSuccessful protocol.EndState = "successful"

// AnyObject is an opaque, environment defined payload (an action,
// observation or info object) the protocol transports without interpreting.
type AnyObject struct {
	Data []byte
}

type anyObjectType struct{}

func (anyObjectType) Name() string { return "AnyObject" }

func (anyObjectType) Matches(v any) bool {
	_, ok := v.(AnyObject)
	return ok
}

type anyObjectCodec struct{}

func (anyObjectCodec) Encode(v any) ([]byte, error) {
	return v.(AnyObject).Data, nil
}

func (anyObjectCodec) Decode(data []byte) (any, error) {
	return AnyObject{Data: append([]byte(nil), data...)}, nil
}

// Descriptor is the gym protocol contract: the agent opens with RESET, the
// environment answers STATUS, then ACT and PERCEPT alternate until CLOSE.
var Descriptor = &protocol.Descriptor{
	ID: ProtocolID,
	Performatives: []protocol.Performative{
		PerformativeAct, PerformativeClose, PerformativePercept,
		PerformativeReset, PerformativeStatus,
	},
	Schema: map[protocol.Performative][]protocol.Field{
		PerformativeAct: {
			{Name: "action", Type: protocol.CustomSpec(anyObjectType{})},
			{Name: "step_id", Type: protocol.Int()},
		},
		PerformativeClose: {},
		PerformativePercept: {
			{Name: "step_id", Type: protocol.Int()},
			{Name: "observation", Type: protocol.CustomSpec(anyObjectType{})},
			{Name: "reward", Type: protocol.Float()},
			{Name: "done", Type: protocol.Bool()},
			{Name: "info", Type: protocol.CustomSpec(anyObjectType{})},
		},
		PerformativeReset: {},
		PerformativeStatus: {
			{Name: "content", Type: protocol.MapOf(protocol.String())},
		},
	},
	InitialPerformatives:  []protocol.Performative{PerformativeReset},
	TerminalPerformatives: []protocol.Performative{PerformativeClose},
	ValidReplies: map[protocol.Performative][]protocol.Performative{
		PerformativeReset:   {PerformativeStatus},
		PerformativeStatus:  {PerformativeAct, PerformativeClose},
		PerformativeAct:     {PerformativePercept},
		PerformativePercept: {PerformativeAct, PerformativeClose},
		PerformativeClose:   {},
	},
	Roles:     []protocol.Role{RoleAgent, RoleEnvironment},
	EndStates: []protocol.EndState{EndStateSuccessful},
	EndStateByPerformative: map[protocol.Performative]protocol.EndState{
		PerformativeClose: EndStateSuccessful,
	},
	RoleFromFirstMessage: func(first *protocol.Message, receiverAddress string) protocol.Role {
		// the party sending RESET is the agent
		if first.Sender() == receiverAddress {
			return RoleAgent
		}
		return RoleEnvironment
	},
	KeepTerminal: false,
}

// Customs returns the wire codecs for the protocol's custom content types.
func Customs() map[string]codec.CustomCodec {
	return map[string]codec.CustomCodec{"AnyObject": anyObjectCodec{}}
}

// NewCodec creates the wire codec for gym messages.
func NewCodec() *codec.Codec {
	return codec.New(Descriptor, func(o *codec.Options) { o.Customs = Customs() })
}

// NewDialogues creates a gym dialogue registry for selfAddress.
func NewDialogues(selfAddress string, logger logging.Logger) (*dialogue.Dialogues, error) {
	return dialogue.New(Descriptor, selfAddress, func(o *dialogue.Options) {
		o.Logger = logger
	})
}

// NewReset builds the opening message of a gym session.
func NewReset() *protocol.Message {
	return protocol.NewMessage(Descriptor, PerformativeReset,
		protocol.WithReference(protocol.NewSelfInitiatedReference()))
}

// StatusFields builds the body of a STATUS reply.
func StatusFields(content map[string]string) map[string]any {
	generic := make(map[string]any, len(content))
	for k, v := range content {
		generic[k] = v
	}
	return map[string]any{"content": generic}
}

// ActFields builds the body of an ACT message.
func ActFields(action AnyObject, stepID int64) map[string]any {
	return map[string]any{"action": action, "step_id": stepID}
}

// PerceptFields builds the body of a PERCEPT message.
func PerceptFields(stepID int64, observation AnyObject, reward float64, done bool, info AnyObject) map[string]any {
	return map[string]any{
		"step_id":     stepID,
		"observation": observation,
		"reward":      reward,
		"done":        done,
		"info":        info,
	}
}
