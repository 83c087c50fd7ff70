package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Field declares one body field of a performative.
type Field struct {
	Name     string
	Type     TypeSpec
	Optional bool
}

// Descriptor is the data-only contract a concrete protocol supplies to
// parameterize the engine. One static value per protocol replaces the
// per-protocol class hierarchies of generated code: the message validator,
// the dialogue state machine and the codec are all generic over it.
//
// Performatives and the field lists are ordered; the codec derives stable
// wire tags from these positions, so reordering them is a wire break.
type Descriptor struct {
	// ID is the protocol identity carried in envelopes, e.g. "dialogmesh/gym:1.0.0".
	ID string

	// Performatives is the closed, ordered performative set.
	Performatives []Performative

	// Schema maps each performative to its ordered field declarations.
	Schema map[Performative][]Field

	// InitialPerformatives are legal as the first message of a dialogue.
	InitialPerformatives []Performative

	// TerminalPerformatives end a dialogue.
	TerminalPerformatives []Performative

	// ValidReplies maps a performative to the performatives that may follow it.
	ValidReplies map[Performative][]Performative

	// Roles lists the parts an address can play in a dialogue.
	Roles []Role

	// EndStates lists the terminal classifications a dialogue can reach.
	EndStates []EndState

	// EndStateByPerformative resolves the end state entered when a terminal
	// performative is accepted.
	EndStateByPerformative map[Performative]EndState

	// RoleFromFirstMessage derives the role of receiverAddress from the first
	// message of a dialogue.
	RoleFromFirstMessage func(first *Message, receiverAddress string) Role

	// KeepTerminal controls whether terminated dialogues stay indexed in the
	// registry (queryable, able to absorb late duplicates) or are evicted.
	KeepTerminal bool
}

// HasPerformative reports whether p belongs to the protocol.
func (d *Descriptor) HasPerformative(p Performative) bool {
	for _, known := range d.Performatives {
		if known == p {
			return true
		}
	}
	return false
}

// IsInitial reports whether p may start a dialogue.
func (d *Descriptor) IsInitial(p Performative) bool {
	for _, initial := range d.InitialPerformatives {
		if initial == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether p ends a dialogue.
func (d *Descriptor) IsTerminal(p Performative) bool {
	for _, terminal := range d.TerminalPerformatives {
		if terminal == p {
			return true
		}
	}
	return false
}

// RepliesTo returns the performatives legally allowed as a reply to p.
func (d *Descriptor) RepliesTo(p Performative) []Performative {
	return d.ValidReplies[p]
}

// IsValidReply reports whether reply may follow p.
func (d *Descriptor) IsValidReply(p, reply Performative) bool {
	for _, r := range d.ValidReplies[p] {
		if r == reply {
			return true
		}
	}
	return false
}

// FieldsFor returns the ordered field declarations of p.
func (d *Descriptor) FieldsFor(p Performative) []Field {
	return d.Schema[p]
}

// FieldSpec looks up the declaration of one field of p.
func (d *Descriptor) FieldSpec(p Performative, name string) (Field, bool) {
	for _, f := range d.Schema[p] {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PerformativeTag returns the 1-based wire tag of p, or 0 if unknown.
func (d *Descriptor) PerformativeTag(p Performative) int {
	for i, known := range d.Performatives {
		if known == p {
			return i + 1
		}
	}
	return 0
}

// PerformativeByTag resolves a wire tag back to a performative.
func (d *Descriptor) PerformativeByTag(tag int) (Performative, bool) {
	if tag < 1 || tag > len(d.Performatives) {
		return "", false
	}
	return d.Performatives[tag-1], true
}

// Validate checks the descriptor tables for internal coherence: every
// performative referenced by the rule tables must be declared, terminal
// performatives must map to an end state, and the role callback must be set.
// Protocol packages call it from an init-time test rather than at runtime.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("descriptor has empty protocol id")
	}
	if len(d.Performatives) == 0 {
		return fmt.Errorf("%s: no performatives declared", d.ID)
	}
	if len(d.InitialPerformatives) == 0 {
		return fmt.Errorf("%s: no initial performatives declared", d.ID)
	}
	for _, p := range d.InitialPerformatives {
		if !d.HasPerformative(p) {
			return fmt.Errorf("%s: initial performative %q not declared", d.ID, p)
		}
	}
	for _, p := range d.TerminalPerformatives {
		if !d.HasPerformative(p) {
			return fmt.Errorf("%s: terminal performative %q not declared", d.ID, p)
		}
		if _, ok := d.EndStateByPerformative[p]; !ok {
			return fmt.Errorf("%s: terminal performative %q has no end state", d.ID, p)
		}
	}
	for p, replies := range d.ValidReplies {
		if !d.HasPerformative(p) {
			return fmt.Errorf("%s: reply table references undeclared performative %q", d.ID, p)
		}
		for _, r := range replies {
			if !d.HasPerformative(r) {
				return fmt.Errorf("%s: reply table references undeclared reply %q to %q", d.ID, r, p)
			}
		}
		if d.IsTerminal(p) && len(replies) > 0 {
			return fmt.Errorf("%s: terminal performative %q must not allow replies", d.ID, p)
		}
	}
	for _, p := range d.Performatives {
		if _, ok := d.ValidReplies[p]; !ok {
			return fmt.Errorf("%s: performative %q missing from reply table", d.ID, p)
		}
	}
	if d.RoleFromFirstMessage == nil {
		return fmt.Errorf("%s: RoleFromFirstMessage callback not set", d.ID)
	}
	return nil
}

// NewNonce generates the unique half of a fresh dialogue reference.
func NewNonce() string { return uuid.NewString() }
