package testutil

import (
	"github.com/hupe1980/dialogmesh/protocol"
)

// MessageBuilder provides a fluent helper for constructing messages in
// tests. Example:
//
//	m := NewMessageBuilder(desc, PerformativePropose).
//		Reference("ref-1", "").
//		From("buyer").To("seller").
//		Fields(ProposeFields()).
//		Build()
//
// Chain only the parts you need; id defaults to 1 and target to 0.
type MessageBuilder struct {
	desc         *protocol.Descriptor
	performative protocol.Performative
	reference    protocol.DialogueReference
	messageID    int64
	target       int64
	fields       map[string]any
	sender       string
	to           string
}

// NewMessageBuilder creates a builder for the given performative.
func NewMessageBuilder(desc *protocol.Descriptor, performative protocol.Performative) *MessageBuilder {
	return &MessageBuilder{
		desc:         desc,
		performative: performative,
		messageID:    protocol.StartingMessageID,
		target:       protocol.StartingTarget,
		fields:       map[string]any{},
	}
}

// Reference sets the dialogue reference pair (chainable).
func (b *MessageBuilder) Reference(starter, responder string) *MessageBuilder {
	b.reference = protocol.DialogueReference{Starter: starter, Responder: responder}
	return b
}

// ID sets the message id (chainable).
func (b *MessageBuilder) ID(id int64) *MessageBuilder { b.messageID = id; return b }

// Target sets the target message id (chainable).
func (b *MessageBuilder) Target(target int64) *MessageBuilder { b.target = target; return b }

// Field sets one body field (chainable).
func (b *MessageBuilder) Field(name string, value any) *MessageBuilder {
	b.fields[name] = value
	return b
}

// Fields merges the given body fields (chainable).
func (b *MessageBuilder) Fields(fields map[string]any) *MessageBuilder {
	for k, v := range fields {
		b.fields[k] = v
	}
	return b
}

// From sets the sender address (chainable).
func (b *MessageBuilder) From(sender string) *MessageBuilder { b.sender = sender; return b }

// To sets the receiver address (chainable).
func (b *MessageBuilder) To(to string) *MessageBuilder { b.to = to; return b }

// Build constructs the message.
func (b *MessageBuilder) Build() *protocol.Message {
	m := protocol.NewMessage(b.desc, b.performative,
		protocol.WithReference(b.reference),
		protocol.WithMessageID(b.messageID),
		protocol.WithTarget(b.target),
		protocol.WithFields(b.fields),
	)
	if b.sender != "" {
		m.SetSender(b.sender)
	}
	if b.to != "" {
		m.SetTo(b.to)
	}
	return m
}
