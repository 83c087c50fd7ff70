// Package signing defines the protocol between a skill and a decision maker
// for signing transactions and messages. Payloads are opaque to the
// protocol; ledger specific interpretation happens at the endpoints.
package signing

import (
	"github.com/hupe1980/dialogmesh/codec"
	"github.com/hupe1980/dialogmesh/dialogue"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/protocol"
	"google.golang.org/protobuf/encoding/protowire"
)

// ProtocolID is the identity carried in envelopes of this protocol.
const ProtocolID = "dialogmesh/signing:1.0.0"

// Performatives of the signing protocol.
const (
	PerformativeSignTransaction   protocol.Performative = "sign_transaction"
	PerformativeSignMessage       protocol.Performative = "sign_message"
	PerformativeSignedTransaction protocol.Performative = "signed_transaction"
	PerformativeSignedMessage     protocol.Performative = "signed_message"
	PerformativeError             protocol.Performative = "error"
)

// Roles an address can play in a signing dialogue.
const (
	RoleSkill         protocol.Role = "skill"
	RoleDecisionMaker protocol.Role = "decision_maker"
)

// End states of a signing dialogue.
const (
	EndStateSuccessful protocol.EndState = "successful"
	EndStateFailed     protocol.EndState = "failed"
)

// ErrorCode classifies a signing ERROR message.
type ErrorCode int32

// Error codes reported over the signing protocol.
const (
	ErrorCodeUnsuccessfulMessageSigning ErrorCode = iota
	ErrorCodeUnsuccessfulTransactionSigning
)

// Terms names the parties and nonce a signing request is bound to.
type Terms struct {
	LedgerID            string
	SenderAddress       string
	CounterpartyAddress string
	Nonce               string
}

// RawTransaction is an unsigned, ledger specific transaction blob.
type RawTransaction struct {
	LedgerID string
	Body     []byte
}

// RawMessage is an unsigned, ledger specific message blob.
type RawMessage struct {
	LedgerID string
	Body     []byte
}

// SignedTransaction is a signed, ledger specific transaction blob.
type SignedTransaction struct {
	LedgerID string
	Body     []byte
}

// SignedMessage is a signed, ledger specific message blob.
type SignedMessage struct {
	LedgerID string
	Body     []byte
}

type customType[T any] struct {
	name string
}

func (c customType[T]) Name() string { return c.name }

func (customType[T]) Matches(v any) bool {
	_, ok := v.(T)
	return ok
}

func appendBlob(ledgerID string, body []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, ledgerID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b
}

func consumeBlob(data []byte) (ledgerID string, body []byte, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		data = data[n:]
		if typ != protowire.BytesType {
			return "", nil, protowire.ParseError(-1)
		}
		raw, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			ledgerID = string(raw)
		case 2:
			body = append([]byte(nil), raw...)
		}
	}
	return ledgerID, body, nil
}

type rawTransactionCodec struct{}

func (rawTransactionCodec) Encode(v any) ([]byte, error) {
	t := v.(RawTransaction)
	return appendBlob(t.LedgerID, t.Body), nil
}

func (rawTransactionCodec) Decode(data []byte) (any, error) {
	ledgerID, body, err := consumeBlob(data)
	if err != nil {
		return nil, err
	}
	return RawTransaction{LedgerID: ledgerID, Body: body}, nil
}

type rawMessageCodec struct{}

func (rawMessageCodec) Encode(v any) ([]byte, error) {
	m := v.(RawMessage)
	return appendBlob(m.LedgerID, m.Body), nil
}

func (rawMessageCodec) Decode(data []byte) (any, error) {
	ledgerID, body, err := consumeBlob(data)
	if err != nil {
		return nil, err
	}
	return RawMessage{LedgerID: ledgerID, Body: body}, nil
}

type signedTransactionCodec struct{}

func (signedTransactionCodec) Encode(v any) ([]byte, error) {
	t := v.(SignedTransaction)
	return appendBlob(t.LedgerID, t.Body), nil
}

func (signedTransactionCodec) Decode(data []byte) (any, error) {
	ledgerID, body, err := consumeBlob(data)
	if err != nil {
		return nil, err
	}
	return SignedTransaction{LedgerID: ledgerID, Body: body}, nil
}

type signedMessageCodec struct{}

func (signedMessageCodec) Encode(v any) ([]byte, error) {
	m := v.(SignedMessage)
	return appendBlob(m.LedgerID, m.Body), nil
}

func (signedMessageCodec) Decode(data []byte) (any, error) {
	ledgerID, body, err := consumeBlob(data)
	if err != nil {
		return nil, err
	}
	return SignedMessage{LedgerID: ledgerID, Body: body}, nil
}

type termsCodec struct{}

func (termsCodec) Encode(v any) ([]byte, error) {
	t := v.(Terms)
	var b []byte
	for i, s := range []string{t.LedgerID, t.SenderAddress, t.CounterpartyAddress, t.Nonce} {
		b = protowire.AppendTag(b, protowire.Number(i+1), protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b, nil
}

func (termsCodec) Decode(data []byte) (any, error) {
	var t Terms
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		if typ != protowire.BytesType {
			return nil, protowire.ParseError(-1)
		}
		raw, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			t.LedgerID = string(raw)
		case 2:
			t.SenderAddress = string(raw)
		case 3:
			t.CounterpartyAddress = string(raw)
		case 4:
			t.Nonce = string(raw)
		}
	}
	return t, nil
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

// Descriptor is the signing protocol contract: a skill requests a signature
// and the decision maker answers with the signed payload or an error.
var Descriptor = &protocol.Descriptor{
	ID: ProtocolID,
	Performatives: []protocol.Performative{
		PerformativeSignTransaction, PerformativeSignMessage,
		PerformativeSignedTransaction, PerformativeSignedMessage,
		PerformativeError,
	},
	Schema: map[protocol.Performative][]protocol.Field{
		PerformativeSignTransaction: {
			{Name: "terms", Type: protocol.CustomSpec(customType[Terms]{name: "Terms"})},
			{Name: "raw_transaction", Type: protocol.CustomSpec(customType[RawTransaction]{name: "RawTransaction"})},
		},
		PerformativeSignMessage: {
			{Name: "terms", Type: protocol.CustomSpec(customType[Terms]{name: "Terms"})},
			{Name: "raw_message", Type: protocol.CustomSpec(customType[RawMessage]{name: "RawMessage"})},
		},
		PerformativeSignedTransaction: {
			{Name: "signed_transaction", Type: protocol.CustomSpec(customType[SignedTransaction]{name: "SignedTransaction"})},
		},
		PerformativeSignedMessage: {
			{Name: "signed_message", Type: protocol.CustomSpec(customType[SignedMessage]{name: "SignedMessage"})},
		},
		PerformativeError: {
			{Name: "error_code", Type: protocol.CustomSpec(customType[ErrorCode]{name: "ErrorCode"})},
		},
	},
	InitialPerformatives: []protocol.Performative{
		PerformativeSignTransaction, PerformativeSignMessage,
	},
	TerminalPerformatives: []protocol.Performative{
		PerformativeSignedTransaction, PerformativeSignedMessage, PerformativeError,
	},
	ValidReplies: map[protocol.Performative][]protocol.Performative{
		PerformativeSignTransaction:   {PerformativeSignedTransaction, PerformativeError},
		PerformativeSignMessage:       {PerformativeSignedMessage, PerformativeError},
		PerformativeSignedTransaction: {},
		PerformativeSignedMessage:     {},
		PerformativeError:             {},
	},
	Roles:     []protocol.Role{RoleSkill, RoleDecisionMaker},
	EndStates: []protocol.EndState{EndStateSuccessful, EndStateFailed},
	EndStateByPerformative: map[protocol.Performative]protocol.EndState{
		PerformativeSignedTransaction: EndStateSuccessful,
		PerformativeSignedMessage:     EndStateSuccessful,
		PerformativeError:             EndStateFailed,
	},
	RoleFromFirstMessage: func(first *protocol.Message, receiverAddress string) protocol.Role {
		// the party requesting a signature is the skill
		if first.Sender() == receiverAddress {
			return RoleSkill
		}
		return RoleDecisionMaker
	},
	KeepTerminal: false,
}

// Customs returns the wire codecs for the protocol's custom content types.
func Customs() map[string]codec.CustomCodec {
	return map[string]codec.CustomCodec{
		"Terms":             termsCodec{},
		"RawTransaction":    rawTransactionCodec{},
		"RawMessage":        rawMessageCodec{},
		"SignedTransaction": signedTransactionCodec{},
		"SignedMessage":     signedMessageCodec{},
		"ErrorCode":         errorCodeCodec{},
	}
}

// NewCodec creates the wire codec for signing messages.
func NewCodec() *codec.Codec {
	return codec.New(Descriptor, func(o *codec.Options) { o.Customs = Customs() })
}

// NewDialogues creates a signing dialogue registry for selfAddress.
func NewDialogues(selfAddress string, logger logging.Logger) (*dialogue.Dialogues, error) {
	return dialogue.New(Descriptor, selfAddress, func(o *dialogue.Options) {
		o.Logger = logger
	})
}

// SignTransactionFields builds the body of a SIGN_TRANSACTION message.
func SignTransactionFields(terms Terms, rawTransaction RawTransaction) map[string]any {
	return map[string]any{"terms": terms, "raw_transaction": rawTransaction}
}

// SignMessageFields builds the body of a SIGN_MESSAGE message.
func SignMessageFields(terms Terms, rawMessage RawMessage) map[string]any {
	return map[string]any{"terms": terms, "raw_message": rawMessage}
}

// SignedTransactionFields builds the body of a SIGNED_TRANSACTION message.
func SignedTransactionFields(signed SignedTransaction) map[string]any {
	return map[string]any{"signed_transaction": signed}
}

// SignedMessageFields builds the body of a SIGNED_MESSAGE message.
func SignedMessageFields(signed SignedMessage) map[string]any {
	return map[string]any{"signed_message": signed}
}

// ErrorFields builds the body of an ERROR message.
func ErrorFields(code ErrorCode) map[string]any {
	return map[string]any{"error_code": code}
}
