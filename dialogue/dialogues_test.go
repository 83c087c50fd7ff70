package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/protocol"
)

func TestNew_Validation(t *testing.T) {
	desc := testutil.NewDescriptor()

	_, err := New(desc, "")
	assert.Error(t, err)

	broken := testutil.NewDescriptor()
	broken.RoleFromFirstMessage = nil
	_, err = New(broken, "buyer")
	assert.Error(t, err)
}

func TestDialogues_Create(t *testing.T) {
	desc := testutil.NewDescriptor()
	buyer, err := New(desc, "buyer")
	require.NoError(t, err)

	message, d, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)

	assert.Equal(t, "buyer", message.Sender())
	assert.Equal(t, "seller", message.To())
	assert.NotEmpty(t, message.DialogueReference().Starter)
	assert.Equal(t, protocol.UnassignedReference, message.DialogueReference().Responder)

	assert.Equal(t, "buyer", d.Label().StarterAddress)
	assert.Equal(t, "seller", d.Label().OpponentAddress)
	assert.Len(t, buyer.ActiveDialogues(), 1)
	assert.Same(t, d, buyer.GetDialogueFromLabel(d.Label()))
}

func TestDialogues_CreateRejectsNonInitialPerformative(t *testing.T) {
	buyer, err := New(testutil.NewDescriptor(), "buyer")
	require.NoError(t, err)

	_, _, err = buyer.Create("seller", testutil.PerformativeCounter, map[string]any{"price": 8.0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalMessage)

	// the aborted dialogue must not linger in the registry
	assert.Empty(t, buyer.ActiveDialogues())
}

func TestDialogues_CreateWithMessage(t *testing.T) {
	desc := testutil.NewDescriptor()
	buyer, err := New(desc, "buyer")
	require.NoError(t, err)

	t.Run("routing must be unset", func(t *testing.T) {
		preset := testutil.NewMessageBuilder(desc, testutil.PerformativePropose).
			Reference(protocol.NewNonce(), "").
			Fields(testutil.ProposeFields()).
			From("buyer").
			Build()
		_, err := buyer.CreateWithMessage("seller", preset)
		assert.Error(t, err)
	})

	t.Run("valid", func(t *testing.T) {
		message := testutil.NewMessageBuilder(desc, testutil.PerformativePropose).
			Reference(protocol.NewNonce(), "").
			Fields(testutil.ProposeFields()).
			Build()
		d, err := buyer.CreateWithMessage("seller", message)
		require.NoError(t, err)
		assert.Equal(t, "buyer", message.Sender())
		assert.Equal(t, "seller", message.To())
		assert.True(t, d.IsSelfInitiated())
	})
}

func TestDialogues_UpdateGuards(t *testing.T) {
	desc := testutil.NewDescriptor()
	seller, err := New(desc, "seller")
	require.NoError(t, err)

	base := func() *testutil.MessageBuilder {
		return testutil.NewMessageBuilder(desc, testutil.PerformativePropose).
			Reference(protocol.NewNonce(), "").
			Fields(testutil.ProposeFields())
	}

	t.Run("missing sender", func(t *testing.T) {
		assert.Nil(t, seller.Update(base().To("seller").Build()))
	})

	t.Run("sender is self", func(t *testing.T) {
		assert.Nil(t, seller.Update(base().From("seller").To("seller").Build()))
	})

	t.Run("addressed to someone else", func(t *testing.T) {
		assert.Nil(t, seller.Update(base().From("buyer").To("other").Build()))
	})

	t.Run("missing starter reference", func(t *testing.T) {
		m := testutil.NewMessageBuilder(desc, testutil.PerformativePropose).
			Fields(testutil.ProposeFields()).
			From("buyer").To("seller").
			Build()
		assert.Nil(t, seller.Update(m))
	})

	assert.Empty(t, seller.ActiveDialogues())
}

func TestDialogues_UpdateCreatesOpponentInitiatedDialogue(t *testing.T) {
	desc := testutil.NewDescriptor()
	buyer, err := New(desc, "buyer")
	require.NoError(t, err)
	seller, err := New(desc, "seller")
	require.NoError(t, err)

	propose, _, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)

	d := seller.Update(propose)
	require.NotNil(t, d)
	assert.False(t, d.IsSelfInitiated())
	assert.Equal(t, "buyer", d.Label().StarterAddress)

	// the registry mints the responder half of the reference immediately
	assert.True(t, d.Label().Reference.IsComplete())
	assert.Equal(t, propose.DialogueReference().Starter, d.Label().Reference.Starter)

	// the incomplete label still routes to the same dialogue
	incomplete := d.Label().IncompleteVersion()
	assert.Same(t, d, seller.GetDialogueFromLabel(incomplete))
}

func TestDialogues_UpdateRejectsIllegalFirstMessage(t *testing.T) {
	desc := testutil.NewDescriptor()
	seller, err := New(desc, "seller")
	require.NoError(t, err)

	counter := testutil.NewMessageBuilder(desc, testutil.PerformativeCounter).
		Reference(protocol.NewNonce(), "").
		Field("price", 8.0).
		From("buyer").To("seller").
		Build()

	assert.Nil(t, seller.Update(counter))
	assert.Empty(t, seller.ActiveDialogues())
}

func TestDialogues_UpdateUnknownReference(t *testing.T) {
	desc := testutil.NewDescriptor()
	seller, err := New(desc, "seller")
	require.NoError(t, err)

	stray := testutil.NewMessageBuilder(desc, testutil.PerformativeCounter).
		Reference(protocol.NewNonce(), protocol.NewNonce()).
		ID(-1).Target(1).
		Field("price", 8.0).
		From("buyer").To("seller").
		Build()

	assert.Nil(t, seller.Update(stray))
}

func TestDialogues_ReferenceCompletion(t *testing.T) {
	desc := testutil.NewDescriptor()
	buyer, err := New(desc, "buyer")
	require.NoError(t, err)
	seller, err := New(desc, "seller")
	require.NoError(t, err)

	propose, buyerDialogue, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)
	incomplete := buyerDialogue.Label()
	assert.False(t, incomplete.Reference.IsComplete())

	sellerDialogue := seller.Update(propose)
	require.NotNil(t, sellerDialogue)
	counter, err := sellerDialogue.Reply(testutil.PerformativeCounter, map[string]any{"price": 8.5})
	require.NoError(t, err)

	// the first reply carries the responder half; the buyer's label upgrades
	require.Same(t, buyerDialogue, buyer.Update(counter))
	assert.True(t, buyerDialogue.Label().Reference.IsComplete())
	assert.Equal(t, sellerDialogue.Label().Reference, buyerDialogue.Label().Reference)

	// both the old and the new label still resolve the dialogue
	assert.Same(t, buyerDialogue, buyer.GetDialogueFromLabel(incomplete))
	assert.Same(t, buyerDialogue, buyer.GetDialogueFromLabel(buyerDialogue.Label()))
}

// runNegotiation drives one dialogue from PROPOSE to the given terminal
// performative and returns both ends.
func runNegotiation(t *testing.T, buyer, seller *Dialogues, terminal protocol.Performative) (*Dialogue, *Dialogue) {
	t.Helper()
	propose, buyerDialogue, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)
	sellerDialogue := seller.Update(propose)
	require.NotNil(t, sellerDialogue)

	end, err := sellerDialogue.Reply(terminal, nil)
	require.NoError(t, err)
	require.NotNil(t, buyer.Update(end))
	return buyerDialogue, sellerDialogue
}

func TestDialogues_RetentionAndStats(t *testing.T) {
	desc := testutil.NewDescriptor()

	t.Run("terminal dialogues are kept", func(t *testing.T) {
		buyer, err := New(desc, "buyer")
		require.NoError(t, err)
		seller, err := New(desc, "seller")
		require.NoError(t, err)

		buyerDialogue, sellerDialogue := runNegotiation(t, buyer, seller, testutil.PerformativeAccept)

		assert.Empty(t, buyer.ActiveDialogues())
		require.Len(t, buyer.TerminatedDialogues(), 1)
		assert.Same(t, buyerDialogue, buyer.TerminatedDialogues()[0])
		assert.Same(t, buyerDialogue, buyer.GetDialogueFromLabel(buyerDialogue.Label()))

		assert.Equal(t, 1, buyer.Stats().SelfInitiated()[testutil.EndStateAgreed])
		assert.Equal(t, 0, buyer.Stats().OtherInitiated()[testutil.EndStateAgreed])
		assert.Equal(t, 1, seller.Stats().OtherInitiated()[testutil.EndStateAgreed])
		assert.Equal(t, 0, seller.Stats().SelfInitiated()[testutil.EndStateAgreed])
		_ = sellerDialogue
	})

	t.Run("eviction override", func(t *testing.T) {
		keep := false
		buyer, err := New(desc, "buyer", func(o *Options) { o.KeepTerminal = &keep })
		require.NoError(t, err)
		seller, err := New(desc, "seller")
		require.NoError(t, err)

		buyerDialogue, _ := runNegotiation(t, buyer, seller, testutil.PerformativeDecline)

		assert.Empty(t, buyer.ActiveDialogues())
		assert.Empty(t, buyer.TerminatedDialogues())
		assert.Nil(t, buyer.GetDialogueFromLabel(buyerDialogue.Label()))

		// statistics survive eviction
		assert.Equal(t, 1, buyer.Stats().SelfInitiated()[testutil.EndStateRejected])
	})
}

func TestDialogues_WithCounterparty(t *testing.T) {
	desc := testutil.NewDescriptor()
	buyer, err := New(desc, "buyer")
	require.NoError(t, err)

	_, first, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)
	_, second, err := buyer.Create("seller", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)
	_, _, err = buyer.Create("warehouse", testutil.PerformativePropose, testutil.ProposeFields())
	require.NoError(t, err)

	withSeller := buyer.DialoguesWithCounterparty("seller")
	assert.Len(t, withSeller, 2)
	assert.ElementsMatch(t, []*Dialogue{first, second}, withSeller)
	assert.Empty(t, buyer.DialoguesWithCounterparty("stranger"))
}
