package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/protocol"
)

// newRegistryPair wires a buyer and a seller registry of the negotiation
// test protocol.
func newRegistryPair(t *testing.T) (*Dialogues, *Dialogues) {
	t.Helper()
	desc := testutil.NewDescriptor()
	buyer, err := New(desc, "buyer")
	require.NoError(t, err)
	seller, err := New(desc, "seller")
	require.NoError(t, err)
	return buyer, seller
}

func TestDialogue_LegalExchange(t *testing.T) {
	buyer, seller := newRegistryPair(t)

	propose, buyerDialogue, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)
	assert.Equal(t, testutil.RoleBuyer, buyerDialogue.Role())
	assert.True(t, buyerDialogue.IsSelfInitiated())
	assert.Equal(t, int64(1), propose.MessageID())
	assert.Equal(t, int64(0), propose.Target())

	sellerDialogue := seller.Update(propose)
	require.NotNil(t, sellerDialogue)
	assert.Equal(t, testutil.RoleSeller, sellerDialogue.Role())
	assert.False(t, sellerDialogue.IsSelfInitiated())

	// the responder numbers its own messages negatively
	counter, err := sellerDialogue.Reply(testutil.PerformativeCounter, map[string]any{"price": 8.5})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), counter.MessageID())
	assert.Equal(t, int64(1), counter.Target())
	assert.True(t, counter.DialogueReference().IsComplete())

	require.NotNil(t, buyer.Update(counter))

	accept, err := buyerDialogue.Reply(testutil.PerformativeAccept, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), accept.MessageID())
	assert.Equal(t, int64(-1), accept.Target())

	require.NotNil(t, seller.Update(accept))

	for _, d := range []*Dialogue{buyerDialogue, sellerDialogue} {
		assert.True(t, d.IsTerminated())
		assert.Equal(t, testutil.EndStateAgreed, d.EndState())
		assert.Equal(t, 3, d.Len())
		assert.Equal(t, testutil.PerformativeAccept, d.CurrentPerformative())
	}
}

func TestDialogue_RejectsIllegalReply(t *testing.T) {
	buyer, seller := newRegistryPair(t)

	propose, _, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)
	sellerDialogue := seller.Update(propose)
	require.NotNil(t, sellerDialogue)

	// PROPOSE may not answer PROPOSE
	_, err = sellerDialogue.Reply(testutil.PerformativePropose, testutil.ProposeFields())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalMessage)

	// the rejected message left the dialogue untouched
	assert.Equal(t, 1, sellerDialogue.Len())
	assert.Equal(t, testutil.PerformativePropose, sellerDialogue.CurrentPerformative())
}

func TestDialogue_RejectsBrokenIDSequence(t *testing.T) {
	buyer, seller := newRegistryPair(t)

	propose, _, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)
	sellerDialogue := seller.Update(propose)
	require.NotNil(t, sellerDialogue)

	desc := seller.Descriptor()
	ref := sellerDialogue.Label().Reference

	t.Run("skipped id", func(t *testing.T) {
		skip := testutil.NewMessageBuilder(desc, testutil.PerformativeCounter).
			Reference(ref.Starter, ref.Responder).
			ID(-3).Target(1).
			Field("price", 8.0).
			From("seller").To("buyer").
			Build()
		err := sellerDialogue.Accept(skip)
		assert.ErrorIs(t, err, ErrIllegalMessage)
	})

	t.Run("zero target on a non-initial message", func(t *testing.T) {
		noTarget := testutil.NewMessageBuilder(desc, testutil.PerformativeCounter).
			Reference(ref.Starter, ref.Responder).
			ID(-1).Target(0).
			Field("price", 8.0).
			From("seller").To("buyer").
			Build()
		err := sellerDialogue.Accept(noTarget)
		assert.ErrorIs(t, err, ErrIllegalMessage)
	})

	t.Run("target beyond the exchange", func(t *testing.T) {
		future := testutil.NewMessageBuilder(desc, testutil.PerformativeCounter).
			Reference(ref.Starter, ref.Responder).
			ID(-1).Target(5).
			Field("price", 8.0).
			From("seller").To("buyer").
			Build()
		err := sellerDialogue.Accept(future)
		assert.ErrorIs(t, err, ErrIllegalMessage)
	})

	t.Run("foreign reference", func(t *testing.T) {
		foreign := testutil.NewMessageBuilder(desc, testutil.PerformativeCounter).
			Reference("someone-else", ref.Responder).
			ID(-1).Target(1).
			Field("price", 8.0).
			From("seller").To("buyer").
			Build()
		err := sellerDialogue.Accept(foreign)
		assert.ErrorIs(t, err, ErrIllegalMessage)
	})

	assert.Equal(t, 1, sellerDialogue.Len())
}

func TestDialogue_MessageLookup(t *testing.T) {
	buyer, seller := newRegistryPair(t)

	propose, buyerDialogue, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)
	sellerDialogue := seller.Update(propose)
	require.NotNil(t, sellerDialogue)
	counter, err := sellerDialogue.Reply(testutil.PerformativeCounter, map[string]any{"price": 8.5})
	require.NoError(t, err)
	require.NotNil(t, buyer.Update(counter))

	assert.Equal(t, propose, buyerDialogue.GetMessageByID(1))
	assert.Equal(t, counter, buyerDialogue.GetMessageByID(-1))
	assert.Nil(t, buyerDialogue.GetMessageByID(2))
	assert.Nil(t, buyerDialogue.GetMessageByID(0))

	assert.Equal(t, counter, buyerDialogue.LastMessage())
	assert.Equal(t, counter, buyerDialogue.LastIncomingMessage())
	assert.Equal(t, propose, buyerDialogue.LastOutgoingMessage())
	assert.Equal(t, []*protocol.Message{propose, counter}, buyerDialogue.Messages())

	assert.Equal(t, int64(2), buyerDialogue.NextOutgoingMessageID())
	assert.Equal(t, int64(-2), sellerDialogue.NextOutgoingMessageID())
}

func TestDialogue_ReplyToEarlierMessage(t *testing.T) {
	buyer, seller := newRegistryPair(t)

	propose, buyerDialogue, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)
	sellerDialogue := seller.Update(propose)
	require.NotNil(t, sellerDialogue)
	counter, err := sellerDialogue.Reply(testutil.PerformativeCounter, map[string]any{"price": 8.5})
	require.NoError(t, err)
	require.NotNil(t, buyer.Update(counter))

	_, err = buyerDialogue.ReplyTo(42, testutil.PerformativeDecline, nil)
	require.Error(t, err)

	// decline the original proposal rather than the counter offer
	decline, err := buyerDialogue.ReplyTo(1, testutil.PerformativeDecline, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), decline.Target())
	assert.Equal(t, testutil.EndStateRejected, buyerDialogue.EndState())
}

func TestDialogue_ReplyInEmptyDialogue(t *testing.T) {
	desc := testutil.NewDescriptor()
	d := newDialogue(Label{
		Reference:       protocol.NewSelfInitiatedReference(),
		OpponentAddress: "seller",
		StarterAddress:  "buyer",
	}, desc, "buyer", testutil.RoleBuyer, nil)

	assert.True(t, d.IsEmpty())
	_, err := d.Reply(testutil.PerformativePropose, testutil.ProposeFields())
	assert.Error(t, err)
}

func TestLabel_RoundTrip(t *testing.T) {
	label := Label{
		Reference:       protocol.DialogueReference{Starter: "s", Responder: "r"},
		OpponentAddress: "seller",
		StarterAddress:  "buyer",
	}

	parsed, err := ParseLabel(label.String())
	require.NoError(t, err)
	assert.Equal(t, label, parsed)

	incomplete := label.IncompleteVersion()
	assert.Equal(t, protocol.UnassignedReference, incomplete.Reference.Responder)
	assert.Equal(t, "s", incomplete.Reference.Starter)

	_, err = ParseLabel("only_three_parts")
	assert.Error(t, err)
}
