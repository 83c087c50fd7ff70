package dialogue

import (
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/protocol"
)

// Label is the identity key of a conversation, independent of any single
// message: the dialogue reference pair plus the opponent address and the
// address of the party that started the dialogue. It is a comparable value
// type and is used directly as a map key in the registry.
type Label struct {
	Reference       protocol.DialogueReference
	OpponentAddress string
	StarterAddress  string
}

// IncompleteVersion returns the label as it looked before the responder
// assigned its half of the reference.
func (l Label) IncompleteVersion() Label {
	return Label{
		Reference: protocol.DialogueReference{
			Starter:   l.Reference.Starter,
			Responder: protocol.UnassignedReference,
		},
		OpponentAddress: l.OpponentAddress,
		StarterAddress:  l.StarterAddress,
	}
}

// String renders the label in the canonical four part form used in logs.
func (l Label) String() string {
	return strings.Join([]string{
		l.Reference.Starter, l.Reference.Responder, l.OpponentAddress, l.StarterAddress,
	}, "_")
}

// ParseLabel parses the four part form produced by String.
func ParseLabel(s string) (Label, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 4 {
		return Label{}, fmt.Errorf("invalid dialogue label %q", s)
	}
	return Label{
		Reference:       protocol.DialogueReference{Starter: parts[0], Responder: parts[1]},
		OpponentAddress: parts[2],
		StarterAddress:  parts[3],
	}, nil
}
