package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenType struct{}

func (tokenType) Name() string { return "Token" }

func (tokenType) Matches(v any) bool {
	_, ok := v.(token)
	return ok
}

type token struct {
	ID string
}

func newTestDescriptor() *Descriptor {
	return &Descriptor{
		ID:            "dialogmesh/order_test:0.1.0",
		Performatives: []Performative{"order", "confirm", "reject"},
		Schema: map[Performative][]Field{
			"order": {
				{Name: "item", Type: String()},
				{Name: "quantity", Type: Int()},
				{Name: "price", Type: Float()},
				{Name: "express", Type: Bool()},
				{Name: "payload", Type: Bytes()},
				{Name: "tags", Type: ListOf(String())},
				{Name: "meta", Type: MapOf(String())},
				{Name: "token", Type: CustomSpec(tokenType{})},
				{Name: "note", Type: UnionOf(String(), Int()), Optional: true},
			},
			"confirm": {
				{Name: "order_id", Type: String()},
			},
			"reject": {},
		},
		InitialPerformatives:  []Performative{"order"},
		TerminalPerformatives: []Performative{"confirm", "reject"},
		ValidReplies: map[Performative][]Performative{
			"order":   {"confirm", "reject"},
			"confirm": {},
			"reject":  {},
		},
		Roles:     []Role{"customer", "vendor"},
		EndStates: []EndState{"done", "failed"},
		EndStateByPerformative: map[Performative]EndState{
			"confirm": "done",
			"reject":  "failed",
		},
		RoleFromFirstMessage: func(first *Message, receiverAddress string) Role {
			if first.Sender() == receiverAddress {
				return "customer"
			}
			return "vendor"
		},
	}
}

func orderFields() map[string]any {
	return map[string]any{
		"item":     "gear",
		"quantity": int64(2),
		"price":    19.5,
		"express":  true,
		"payload":  []byte{0xAA},
		"tags":     []any{"a", "b"},
		"meta":     map[string]any{"k": "v"},
		"token":    token{ID: "t-1"},
	}
}

func TestMessage_DefaultsAndAccessors(t *testing.T) {
	desc := newTestDescriptor()
	m := NewMessage(desc, "order", WithFields(orderFields()))

	assert.Equal(t, StartingMessageID, m.MessageID())
	assert.Equal(t, StartingTarget, m.Target())
	assert.Equal(t, Performative("order"), m.Performative())
	assert.False(t, m.HasTo())
	assert.False(t, m.HasSender())

	item, err := m.GetString("item")
	require.NoError(t, err)
	assert.Equal(t, "gear", item)

	quantity, err := m.GetInt("quantity")
	require.NoError(t, err)
	assert.Equal(t, int64(2), quantity)

	price, err := m.GetFloat("price")
	require.NoError(t, err)
	assert.InDelta(t, 19.5, price, 1e-9)

	express, err := m.GetBool("express")
	require.NoError(t, err)
	assert.True(t, express)

	payload, err := m.GetBytes("payload")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, payload)
}

func TestMessage_GetMissingField(t *testing.T) {
	m := NewMessage(newTestDescriptor(), "reject")

	_, err := m.Get("nope")
	var notSet *FieldNotSetError
	require.ErrorAs(t, err, &notSet)
	assert.Equal(t, "nope", notSet.Field)
}

func TestMessage_CheckConsistency(t *testing.T) {
	desc := newTestDescriptor()

	t.Run("valid", func(t *testing.T) {
		m := NewMessage(desc, "order", WithFields(orderFields()))
		assert.NoError(t, m.CheckConsistency())
		assert.True(t, m.IsConsistent())
	})

	t.Run("optional union members", func(t *testing.T) {
		withStr := NewMessage(desc, "order", WithFields(orderFields()), WithField("note", "asap"))
		assert.NoError(t, withStr.CheckConsistency())

		withInt := NewMessage(desc, "order", WithFields(orderFields()), WithField("note", 7))
		assert.NoError(t, withInt.CheckConsistency())

		withBad := NewMessage(desc, "order", WithFields(orderFields()), WithField("note", 1.5))
		assert.Error(t, withBad.CheckConsistency())
	})

	t.Run("unknown performative", func(t *testing.T) {
		m := NewMessage(desc, "teleport")
		err := m.CheckConsistency()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "performative")
	})

	t.Run("missing mandatory field", func(t *testing.T) {
		fields := orderFields()
		delete(fields, "item")
		m := NewMessage(desc, "order", WithFields(fields))
		err := m.CheckConsistency()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"item"`)
	})

	t.Run("undeclared field", func(t *testing.T) {
		m := NewMessage(desc, "reject", WithField("surprise", "x"))
		err := m.CheckConsistency()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "surprise")
	})

	t.Run("wrong field type", func(t *testing.T) {
		fields := orderFields()
		fields["quantity"] = "two"
		m := NewMessage(desc, "order", WithFields(fields))
		assert.Error(t, m.CheckConsistency())
	})

	t.Run("wrong custom type", func(t *testing.T) {
		fields := orderFields()
		fields["token"] = "not-a-token"
		m := NewMessage(desc, "order", WithFields(fields))
		assert.Error(t, m.CheckConsistency())
	})

	t.Run("first message must target nothing", func(t *testing.T) {
		m := NewMessage(desc, "order", WithFields(orderFields()),
			WithMessageID(1), WithTarget(1))
		err := m.CheckConsistency()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target")
	})
}

func TestMessage_NormalizeValue(t *testing.T) {
	desc := newTestDescriptor()
	m := NewMessage(desc, "order",
		WithFields(orderFields()),
		WithField("quantity", 2),
		WithField("price", float32(19.5)),
	)

	quantity, err := m.GetInt("quantity")
	require.NoError(t, err)
	assert.Equal(t, int64(2), quantity)

	_, err = m.GetFloat("price")
	assert.NoError(t, err)
	assert.NoError(t, m.CheckConsistency())
}

func TestMessage_EqualIgnoresRouting(t *testing.T) {
	desc := newTestDescriptor()
	ref := DialogueReference{Starter: "s-1"}

	a := NewMessage(desc, "order", WithReference(ref), WithFields(orderFields()))
	b := NewMessage(desc, "order", WithReference(ref), WithFields(orderFields()))
	b.SetTo("vendor")
	b.SetSender("customer")

	assert.True(t, a.Equal(b))

	c := NewMessage(desc, "order", WithReference(ref), WithFields(orderFields()),
		WithField("item", "other"))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestMessage_BodyIsCopied(t *testing.T) {
	m := NewMessage(newTestDescriptor(), "order", WithFields(orderFields()))
	body := m.Body()
	body["item"] = "tampered"

	item, err := m.GetString("item")
	require.NoError(t, err)
	assert.Equal(t, "gear", item)
}

func TestDialogueReference_Completeness(t *testing.T) {
	ref := NewSelfInitiatedReference()
	assert.NotEmpty(t, ref.Starter)
	assert.Equal(t, UnassignedReference, ref.Responder)
	assert.False(t, ref.IsComplete())

	ref.Responder = NewNonce()
	assert.True(t, ref.IsComplete())

	other := NewSelfInitiatedReference()
	assert.NotEqual(t, ref.Starter, other.Starter)
}
