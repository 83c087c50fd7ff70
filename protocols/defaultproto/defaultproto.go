// Package defaultproto defines the fallback protocol two parties can always
// speak: opaque byte payloads, structured error reports and an explicit end
// marker.
package defaultproto

import (
	"github.com/hupe1980/dialogmesh/codec"
	"github.com/hupe1980/dialogmesh/dialogue"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/protocol"
	"google.golang.org/protobuf/encoding/protowire"
)

// ProtocolID is the identity carried in envelopes of this protocol.
const ProtocolID = "dialogmesh/default:1.0.0"

// Performatives of the default protocol.
const (
	PerformativeBytes protocol.Performative = "bytes"
	PerformativeEnd   protocol.Performative = "end"
	PerformativeError protocol.Performative = "error"
)

// RoleAgent is the single role; both parties are peers.
const RoleAgent protocol.Role = "agent"

// End states of a default dialogue.
const (
	EndStateSuccessful protocol.EndState = "successful"
	EndStateFailed     protocol.EndState = "failed"
)

// ErrorCode classifies an ERROR message.
type ErrorCode int32

// Error codes reported over the default protocol.
const (
	ErrorCodeUnsupportedProtocol ErrorCode = iota
	ErrorCodeDecodingError
	ErrorCodeInvalidMessage
	ErrorCodeUnsupportedSkill
	ErrorCodeInvalidDialogue
)

type errorCodeType struct{}

func (errorCodeType) Name() string { return "ErrorCode" }

func (errorCodeType) Matches(v any) bool {
	_, ok := v.(ErrorCode)
	return ok
}

type errorCodeCodec struct{}

func (errorCodeCodec) Encode(v any) ([]byte, error) {
	return protowire.AppendVarint(nil, uint64(v.(ErrorCode))), nil
}

func (errorCodeCodec) Decode(data []byte) (any, error) {
	code, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return ErrorCode(code), nil
}

// Descriptor is the default protocol contract. Either party may open a
// dialogue with BYTES or ERROR; BYTES exchanges continue until END or ERROR.
var Descriptor = &protocol.Descriptor{
	ID: ProtocolID,
	Performatives: []protocol.Performative{
		PerformativeBytes, PerformativeEnd, PerformativeError,
	},
	Schema: map[protocol.Performative][]protocol.Field{
		PerformativeBytes: {
			{Name: "content", Type: protocol.Bytes()},
		},
		PerformativeEnd: {},
		PerformativeError: {
			{Name: "error_code", Type: protocol.CustomSpec(errorCodeType{})},
			{Name: "error_msg", Type: protocol.String()},
			{Name: "error_data", Type: protocol.MapOf(protocol.Bytes())},
		},
	},
	InitialPerformatives:  []protocol.Performative{PerformativeBytes, PerformativeError},
	TerminalPerformatives: []protocol.Performative{PerformativeEnd, PerformativeError},
	ValidReplies: map[protocol.Performative][]protocol.Performative{
		PerformativeBytes: {PerformativeBytes, PerformativeEnd, PerformativeError},
		PerformativeEnd:   {},
		PerformativeError: {},
	},
	Roles:     []protocol.Role{RoleAgent},
	EndStates: []protocol.EndState{EndStateSuccessful, EndStateFailed},
	EndStateByPerformative: map[protocol.Performative]protocol.EndState{
		PerformativeEnd:   EndStateSuccessful,
		PerformativeError: EndStateFailed,
	},
	RoleFromFirstMessage: func(*protocol.Message, string) protocol.Role {
		return RoleAgent
	},
	KeepTerminal: true,
}

// Customs returns the wire codecs for the protocol's custom content types.
func Customs() map[string]codec.CustomCodec {
	return map[string]codec.CustomCodec{"ErrorCode": errorCodeCodec{}}
}

// NewCodec creates the wire codec for default protocol messages.
func NewCodec() *codec.Codec {
	return codec.New(Descriptor, func(o *codec.Options) { o.Customs = Customs() })
}

// NewDialogues creates a default protocol dialogue registry for selfAddress.
func NewDialogues(selfAddress string, logger logging.Logger) (*dialogue.Dialogues, error) {
	return dialogue.New(Descriptor, selfAddress, func(o *dialogue.Options) {
		o.Logger = logger
	})
}

// BytesFields builds the body of a BYTES message.
func BytesFields(content []byte) map[string]any {
	return map[string]any{"content": content}
}

// ErrorFields builds the body of an ERROR message.
func ErrorFields(code ErrorCode, msg string, data map[string][]byte) map[string]any {
	generic := make(map[string]any, len(data))
	for k, v := range data {
		generic[k] = v
	}
	return map[string]any{
		"error_code": code,
		"error_msg":  msg,
		"error_data": generic,
	}
}
