// Package tac defines the trading competition protocol between a
// participant and the controller: registration, game setup data,
// transaction submission and confirmation, and game cancellation.
package tac

import (
	"github.com/hupe1980/dialogmesh/codec"
	"github.com/hupe1980/dialogmesh/dialogue"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/protocol"
	"google.golang.org/protobuf/encoding/protowire"
)

// ProtocolID is the identity carried in envelopes of this protocol.
const ProtocolID = "dialogmesh/tac:1.0.0"

// Performatives of the tac protocol.
const (
	PerformativeRegister                protocol.Performative = "register"
	PerformativeUnregister              protocol.Performative = "unregister"
	PerformativeTransaction             protocol.Performative = "transaction"
	PerformativeCancelled               protocol.Performative = "cancelled"
	PerformativeGameData                protocol.Performative = "game_data"
	PerformativeTransactionConfirmation protocol.Performative = "transaction_confirmation"
	PerformativeTacError                protocol.Performative = "tac_error"
)

// Roles an address can play in a tac dialogue.
const (
	RoleParticipant protocol.Role = "participant"
	RoleController  protocol.Role = "controller"
)

// End states of a tac dialogue.
const (
	EndStateSuccessful protocol.EndState = "successful"
	EndStateFailed     protocol.EndState = "failed"
)

// ErrorCode classifies a TAC_ERROR message.
type ErrorCode int32

// Error codes reported by the controller.
const (
	ErrorCodeGenericError ErrorCode = iota
	ErrorCodeRequestNotValid
	ErrorCodeAgentAddrAlreadyRegistered
	ErrorCodeAgentNameAlreadyRegistered
	ErrorCodeAgentNotRegistered
	ErrorCodeTransactionNotValid
	ErrorCodeTransactionNotMatching
	ErrorCodeAgentNameNotInWhitelist
	ErrorCodeCompetitionNotRunning
	ErrorCodeDialogueInconsistent
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

// Descriptor is the tac protocol contract. A participant registers with the
// controller, receives game data, submits transactions for confirmation and
// leaves the game via unregistration or controller cancellation.
var Descriptor = &protocol.Descriptor{
	ID: ProtocolID,
	Performatives: []protocol.Performative{
		PerformativeRegister, PerformativeUnregister, PerformativeTransaction,
		PerformativeCancelled, PerformativeGameData,
		PerformativeTransactionConfirmation, PerformativeTacError,
	},
	Schema: map[protocol.Performative][]protocol.Field{
		PerformativeRegister: {
			{Name: "agent_name", Type: protocol.String()},
		},
		PerformativeUnregister: {},
		PerformativeTransaction: {
			{Name: "transaction_id", Type: protocol.String()},
			{Name: "ledger_id", Type: protocol.String()},
			{Name: "sender_address", Type: protocol.String()},
			{Name: "counterparty_address", Type: protocol.String()},
			{Name: "amount_by_currency_id", Type: protocol.MapOf(protocol.Int())},
			{Name: "fee_by_currency_id", Type: protocol.MapOf(protocol.Int())},
			{Name: "quantities_by_good_id", Type: protocol.MapOf(protocol.Int())},
			{Name: "nonce", Type: protocol.String()},
			{Name: "sender_signature", Type: protocol.String()},
			{Name: "counterparty_signature", Type: protocol.String()},
		},
		PerformativeCancelled: {},
		PerformativeGameData: {
			{Name: "amount_by_currency_id", Type: protocol.MapOf(protocol.Int())},
			{Name: "exchange_params_by_currency_id", Type: protocol.MapOf(protocol.Float())},
			{Name: "quantities_by_good_id", Type: protocol.MapOf(protocol.Int())},
			{Name: "utility_params_by_good_id", Type: protocol.MapOf(protocol.Float())},
			{Name: "fee_by_currency_id", Type: protocol.MapOf(protocol.Int())},
			{Name: "agent_addr_by_name", Type: protocol.MapOf(protocol.String())},
			{Name: "currency_id_to_name", Type: protocol.MapOf(protocol.String())},
			{Name: "good_id_to_name", Type: protocol.MapOf(protocol.String())},
			{Name: "version_id", Type: protocol.String()},
			{Name: "info", Type: protocol.MapOf(protocol.String()), Optional: true},
		},
		PerformativeTransactionConfirmation: {
			{Name: "transaction_id", Type: protocol.String()},
			{Name: "amount_by_currency_id", Type: protocol.MapOf(protocol.Int())},
			{Name: "quantities_by_good_id", Type: protocol.MapOf(protocol.Int())},
		},
		PerformativeTacError: {
			{Name: "error_code", Type: protocol.CustomSpec(errorCodeType{})},
			{Name: "info", Type: protocol.MapOf(protocol.String()), Optional: true},
		},
	},
	InitialPerformatives:  []protocol.Performative{PerformativeRegister},
	TerminalPerformatives: []protocol.Performative{PerformativeCancelled, PerformativeTacError},
	ValidReplies: map[protocol.Performative][]protocol.Performative{
		PerformativeRegister: {
			PerformativeTacError, PerformativeGameData, PerformativeCancelled,
		},
		PerformativeUnregister: {PerformativeTacError},
		PerformativeTransaction: {
			PerformativeTransactionConfirmation, PerformativeTacError,
		},
		PerformativeCancelled: {},
		PerformativeGameData: {
			PerformativeTransaction, PerformativeCancelled, PerformativeTacError,
		},
		PerformativeTransactionConfirmation: {PerformativeTransaction},
		PerformativeTacError:                {},
	},
	Roles:     []protocol.Role{RoleParticipant, RoleController},
	EndStates: []protocol.EndState{EndStateSuccessful, EndStateFailed},
	EndStateByPerformative: map[protocol.Performative]protocol.EndState{
		PerformativeCancelled: EndStateSuccessful,
		PerformativeTacError:  EndStateFailed,
	},
	RoleFromFirstMessage: func(first *protocol.Message, receiverAddress string) protocol.Role {
		// the party registering is the participant
		if first.Sender() == receiverAddress {
			return RoleParticipant
		}
		return RoleController
	},
	KeepTerminal: true,
}

// Customs returns the wire codecs for the protocol's custom content types.
func Customs() map[string]codec.CustomCodec {
	return map[string]codec.CustomCodec{"ErrorCode": errorCodeCodec{}}
}

// NewCodec creates the wire codec for tac messages.
func NewCodec() *codec.Codec {
	return codec.New(Descriptor, func(o *codec.Options) { o.Customs = Customs() })
}

// NewDialogues creates a tac dialogue registry for selfAddress.
func NewDialogues(selfAddress string, logger logging.Logger) (*dialogue.Dialogues, error) {
	return dialogue.New(Descriptor, selfAddress, func(o *dialogue.Options) {
		o.Logger = logger
	})
}

// RegisterFields builds the body of a REGISTER message.
func RegisterFields(agentName string) map[string]any {
	return map[string]any{"agent_name": agentName}
}

// TacErrorFields builds the body of a TAC_ERROR message.
func TacErrorFields(code ErrorCode, info map[string]string) map[string]any {
	fields := map[string]any{"error_code": code}
	if info != nil {
		fields["info"] = StringMap(info)
	}
	return fields
}

// TransactionConfirmationFields builds the body of a
// TRANSACTION_CONFIRMATION message.
func TransactionConfirmationFields(transactionID string, amountByCurrencyID, quantitiesByGoodID map[string]int64) map[string]any {
	return map[string]any{
		"transaction_id":        transactionID,
		"amount_by_currency_id": IntMap(amountByCurrencyID),
		"quantities_by_good_id": IntMap(quantitiesByGoodID),
	}
}

// StringMap converts a typed string map into the generic body
// representation.
func StringMap(m map[string]string) map[string]any {
	generic := make(map[string]any, len(m))
	for k, v := range m {
		generic[k] = v
	}
	return generic
}

// IntMap converts a typed integer map into the generic body representation.
func IntMap(m map[string]int64) map[string]any {
	generic := make(map[string]any, len(m))
	for k, v := range m {
		generic[k] = v
	}
	return generic
}

// FloatMap converts a typed float map into the generic body representation.
func FloatMap(m map[string]float64) map[string]any {
	generic := make(map[string]any, len(m))
	for k, v := range m {
		generic[k] = v
	}
	return generic
}
