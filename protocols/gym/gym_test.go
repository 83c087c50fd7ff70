package gym

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/dialogue"
	"github.com/hupe1980/dialogmesh/protocol"
)

func TestDescriptor_IsCoherent(t *testing.T) {
	require.NoError(t, Descriptor.Validate())
	assert.False(t, Descriptor.KeepTerminal)
}

func TestRoleAssignment(t *testing.T) {
	reset := NewReset()
	reset.SetSender("agent")
	reset.SetTo("environment")

	assert.Equal(t, RoleAgent, Descriptor.RoleFromFirstMessage(reset, "agent"))
	assert.Equal(t, RoleEnvironment, Descriptor.RoleFromFirstMessage(reset, "environment"))
}

func TestLegalSession(t *testing.T) {
	agent, err := NewDialogues("agent", nil)
	require.NoError(t, err)
	env, err := NewDialogues("environment", nil)
	require.NoError(t, err)

	reset, agentDialogue, err := agent.Create("environment", PerformativeReset, nil)
	require.NoError(t, err)
	assert.Equal(t, RoleAgent, agentDialogue.Role())

	envDialogue := env.Update(reset)
	require.NotNil(t, envDialogue)
	assert.Equal(t, RoleEnvironment, envDialogue.Role())

	status, err := envDialogue.Reply(PerformativeStatus,
		StatusFields(map[string]string{"state": "ready"}))
	require.NoError(t, err)
	require.NotNil(t, agent.Update(status))

	act, err := agentDialogue.Reply(PerformativeAct,
		ActFields(AnyObject{Data: []byte("up")}, 1))
	require.NoError(t, err)
	require.NotNil(t, env.Update(act))

	percept, err := envDialogue.Reply(PerformativePercept,
		PerceptFields(1, AnyObject{Data: []byte("obs")}, 1.0, false, AnyObject{Data: []byte("{}")}))
	require.NoError(t, err)
	require.NotNil(t, agent.Update(percept))

	closeMsg, err := agentDialogue.Reply(PerformativeClose, nil)
	require.NoError(t, err)
	require.NotNil(t, env.Update(closeMsg))

	assert.True(t, agentDialogue.IsTerminated())
	assert.Equal(t, EndStateSuccessful, agentDialogue.EndState())
	assert.Equal(t, 5, agentDialogue.Len())

	// sessions are not retained after closing
	assert.Empty(t, agent.ActiveDialogues())
	assert.Empty(t, agent.TerminatedDialogues())
	assert.Equal(t, 1, agent.Stats().SelfInitiated()[EndStateSuccessful])
}

func TestIllegalTransitions(t *testing.T) {
	agent, err := NewDialogues("agent", nil)
	require.NoError(t, err)
	env, err := NewDialogues("environment", nil)
	require.NoError(t, err)

	reset, agentDialogue, err := agent.Create("environment", PerformativeReset, nil)
	require.NoError(t, err)
	require.NotNil(t, env.Update(reset))

	t.Run("environment may not open a session", func(t *testing.T) {
		_, _, err := env.Create("agent", PerformativeStatus,
			StatusFields(map[string]string{"state": "ready"}))
		assert.ErrorIs(t, err, dialogue.ErrIllegalMessage)
	})

	t.Run("acting before status", func(t *testing.T) {
		_, err := agentDialogue.Reply(PerformativeAct,
			ActFields(AnyObject{Data: []byte("up")}, 1))
		assert.ErrorIs(t, err, dialogue.ErrIllegalMessage)
	})

	t.Run("percept fields are mandatory", func(t *testing.T) {
		m := protocol.NewMessage(Descriptor, PerformativePercept,
			protocol.WithField("step_id", int64(1)))
		assert.Error(t, m.CheckConsistency())
	})
}

func TestCodec_SessionRoundTrip(t *testing.T) {
	c := NewCodec()

	act := protocol.NewMessage(Descriptor, PerformativeAct,
		protocol.WithReference(protocol.DialogueReference{Starter: "s", Responder: "r"}),
		protocol.WithMessageID(2),
		protocol.WithTarget(-1),
		protocol.WithFields(ActFields(AnyObject{Data: []byte{0xDE, 0xAD}}, 4)),
	)

	data, err := c.Encode(act)
	require.NoError(t, err)
	decoded, err := c.Decode(data)
	require.NoError(t, err)
	assert.True(t, act.Equal(decoded))

	obj, err := decoded.Get("action")
	require.NoError(t, err)
	assert.Equal(t, AnyObject{Data: []byte{0xDE, 0xAD}}, obj)

	percept := protocol.NewMessage(Descriptor, PerformativePercept,
		protocol.WithReference(protocol.DialogueReference{Starter: "s", Responder: "r"}),
		protocol.WithMessageID(-2),
		protocol.WithTarget(2),
		protocol.WithFields(PerceptFields(4, AnyObject{Data: []byte("o")}, 0.5, true, AnyObject{Data: nil})),
	)

	data, err = c.Encode(percept)
	require.NoError(t, err)
	decoded, err = c.Decode(data)
	require.NoError(t, err)

	reward, err := decoded.GetFloat("reward")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, reward, 1e-9)
	done, err := decoded.GetBool("done")
	require.NoError(t, err)
	assert.True(t, done)
}
