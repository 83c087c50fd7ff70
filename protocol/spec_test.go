package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const negotiationSpec = `
name: negotiation
id: dialogmesh/negotiation:0.1.0
speech_acts:
  propose:
    subject: pt:str
    price: pt:float
    tags: pt:list[pt:str]
    attributes: pt:dict[pt:str]
    stamp: ct:Token
    note: pt:optional[pt:union[pt:str, pt:int]]
  counter:
    price: pt:float
  accept: {}
  decline: {}
initiation: [propose]
termination: [accept, decline]
reply:
  propose: [counter, accept, decline]
  counter: [counter, accept, decline]
  accept: []
  decline: []
roles: [buyer, seller]
end_states:
  accept: agreed
  decline: rejected
keep_terminal_state_dialogues: true
`

func TestLoadSpec(t *testing.T) {
	desc, err := LoadSpec([]byte(negotiationSpec), map[string]CustomType{"Token": tokenType{}})
	require.NoError(t, err)

	assert.Equal(t, "dialogmesh/negotiation:0.1.0", desc.ID)
	assert.Equal(t, []Performative{"propose", "counter", "accept", "decline"}, desc.Performatives)
	assert.Equal(t, []Performative{"propose"}, desc.InitialPerformatives)
	assert.Equal(t, []Performative{"accept", "decline"}, desc.TerminalPerformatives)
	assert.Equal(t, []Role{"buyer", "seller"}, desc.Roles)
	assert.Equal(t, []EndState{"agreed", "rejected"}, desc.EndStates)
	assert.Equal(t, EndState("agreed"), desc.EndStateByPerformative["accept"])
	assert.True(t, desc.KeepTerminal)

	// field declarations keep document order; wire tags depend on it
	fields := desc.FieldsFor("propose")
	require.Len(t, fields, 6)
	assert.Equal(t, "subject", fields[0].Name)
	assert.Equal(t, KindString, fields[0].Type.Kind)
	assert.Equal(t, KindFloat, fields[1].Type.Kind)

	assert.Equal(t, KindList, fields[2].Type.Kind)
	assert.Equal(t, KindString, fields[2].Type.Elem.Kind)

	assert.Equal(t, KindMap, fields[3].Type.Kind)
	assert.Equal(t, KindString, fields[3].Type.Value.Kind)

	assert.Equal(t, KindCustom, fields[4].Type.Kind)
	assert.Equal(t, "Token", fields[4].Type.Custom.Name())

	note := fields[5]
	assert.True(t, note.Optional)
	assert.Equal(t, KindUnion, note.Type.Kind)
	require.Len(t, note.Type.Members, 2)
	assert.Equal(t, KindString, note.Type.Members[0].Kind)
	assert.Equal(t, KindInt, note.Type.Members[1].Kind)

	assert.True(t, desc.IsValidReply("propose", "counter"))
	assert.False(t, desc.IsValidReply("accept", "counter"))

	// the callback is attached in code, so the loaded skeleton alone does
	// not validate yet
	require.Error(t, desc.Validate())
	desc.RoleFromFirstMessage = func(*Message, string) Role { return "buyer" }
	assert.NoError(t, desc.Validate())
}

func TestLoadSpec_Errors(t *testing.T) {
	t.Run("unregistered custom type", func(t *testing.T) {
		_, err := LoadSpec([]byte(negotiationSpec), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Token")
	})

	t.Run("unknown section", func(t *testing.T) {
		_, err := LoadSpec([]byte("wormholes: [propose]"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wormholes")
	})

	t.Run("unknown type expression", func(t *testing.T) {
		doc := "speech_acts:\n  propose:\n    subject: pt:rune\n"
		_, err := LoadSpec([]byte(doc), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pt:rune")
	})

	t.Run("single member union", func(t *testing.T) {
		doc := "speech_acts:\n  propose:\n    note: pt:union[pt:str]\n"
		_, err := LoadSpec([]byte(doc), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "union")
	})

	t.Run("not yaml", func(t *testing.T) {
		_, err := LoadSpec([]byte("id: [unclosed"), nil)
		assert.Error(t, err)
	})
}

func TestSplitTopLevel(t *testing.T) {
	assert.Equal(t, []string{"pt:str", "pt:int"}, splitTopLevel("pt:str, pt:int"))
	assert.Equal(t,
		[]string{"pt:dict[pt:str]", "pt:int"},
		splitTopLevel("pt:dict[pt:str], pt:int"))
	assert.Equal(t, []string{"pt:str"}, splitTopLevel("pt:str"))
}
