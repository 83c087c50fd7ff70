package protocol

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/hupe1980/dialogmesh/logging"
)

const (
	// UnassignedReference is the placeholder for a reference half that the
	// corresponding party has not assigned yet.
	UnassignedReference = ""

	// StartingMessageID is the id of the first message of every dialogue.
	StartingMessageID int64 = 1

	// StartingTarget is the target of the first message of every dialogue;
	// an opening message replies to nothing.
	StartingTarget int64 = 0
)

// DialogueReference identifies a conversation across both parties. The
// starter assigns its half when initiating; the responder assigns its half
// with its first reply.
type DialogueReference struct {
	Starter   string
	Responder string
}

// NewSelfInitiatedReference mints the reference for a dialogue the local
// agent starts: a fresh nonce paired with an unassigned responder half.
func NewSelfInitiatedReference() DialogueReference {
	return DialogueReference{Starter: NewNonce(), Responder: UnassignedReference}
}

// IsComplete reports whether both halves have been assigned.
func (r DialogueReference) IsComplete() bool {
	return r.Starter != UnassignedReference && r.Responder != UnassignedReference
}

// Message is a schema-typed unit of communication: a performative plus a
// sparse set of named body fields, together with the addressing triple
// (dialogue reference, message id, target).
//
// Construction is deliberately loose: a Message may be built in any shape,
// including malformed ones for negative testing. Validation is the explicit,
// idempotent CheckConsistency / IsConsistent step; nothing validates as a
// hidden side effect.
//
// The To and Sender routing fields are transport metadata. They are settable
// after construction and excluded from Equal; the wire codec carries them in
// the envelope's outer frame, not in the message payload.
type Message struct {
	desc         *Descriptor
	performative Performative
	reference    DialogueReference
	messageID    int64
	target       int64
	body         map[string]any
	to           string
	sender       string
	logger       logging.Logger
}

// MessageOption mutates a Message under construction.
type MessageOption func(*Message)

// WithReference sets the dialogue reference pair.
func WithReference(ref DialogueReference) MessageOption {
	return func(m *Message) { m.reference = ref }
}

// WithMessageID sets the message id.
func WithMessageID(id int64) MessageOption {
	return func(m *Message) { m.messageID = id }
}

// WithTarget sets the target message id.
func WithTarget(target int64) MessageOption {
	return func(m *Message) { m.target = target }
}

// WithField sets one body field. Small int and float types are widened to
// the canonical int64 / float64 runtime representation.
func WithField(name string, value any) MessageOption {
	return func(m *Message) { m.body[name] = NormalizeValue(value) }
}

// WithFields sets several body fields at once.
func WithFields(fields map[string]any) MessageOption {
	return func(m *Message) {
		for name, value := range fields {
			m.body[name] = NormalizeValue(value)
		}
	}
}

// WithLogger sets the logger consulted by IsConsistent. Defaults to NoOp.
func WithLogger(l logging.Logger) MessageOption {
	return func(m *Message) { m.logger = l }
}

// NewMessage builds a message of the given protocol and performative.
// Defaults follow the opening-message convention: message id 1, target 0,
// empty dialogue reference.
func NewMessage(desc *Descriptor, performative Performative, opts ...MessageOption) *Message {
	m := &Message{
		desc:         desc,
		performative: performative,
		messageID:    StartingMessageID,
		target:       StartingTarget,
		body:         map[string]any{},
		logger:       logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Descriptor returns the protocol contract the message belongs to.
func (m *Message) Descriptor() *Descriptor { return m.desc }

// Performative returns the message's speech act.
func (m *Message) Performative() Performative { return m.performative }

// DialogueReference returns the conversation reference pair.
func (m *Message) DialogueReference() DialogueReference { return m.reference }

// MessageID returns the sender-assigned message id.
func (m *Message) MessageID() int64 { return m.messageID }

// Target returns the id of the message this one replies to (0 for openings).
func (m *Message) Target() int64 { return m.target }

// Has reports whether a body field was supplied.
func (m *Message) Has(name string) bool {
	_, ok := m.body[name]
	return ok
}

// Get returns a body field value, or a *FieldNotSetError naming the field if
// it was never supplied. Absence never silently defaults.
func (m *Message) Get(name string) (any, error) {
	v, ok := m.body[name]
	if !ok {
		return nil, &FieldNotSetError{Field: name}
	}
	return v, nil
}

// GetString returns a string body field.
func (m *Message) GetString(name string) (string, error) {
	v, err := m.Get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, not string", name, v)
	}
	return s, nil
}

// GetInt returns an int64 body field.
func (m *Message) GetInt(name string) (int64, error) {
	v, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("field %q is %T, not int64", name, v)
	}
	return n, nil
}

// GetFloat returns a float64 body field.
func (m *Message) GetFloat(name string) (float64, error) {
	v, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q is %T, not float64", name, v)
	}
	return f, nil
}

// GetBool returns a bool body field.
func (m *Message) GetBool(name string) (bool, error) {
	v, err := m.Get(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q is %T, not bool", name, v)
	}
	return b, nil
}

// GetBytes returns a []byte body field.
func (m *Message) GetBytes(name string) ([]byte, error) {
	v, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("field %q is %T, not []byte", name, v)
	}
	return b, nil
}

// Body returns a copy of the body fields to prevent external mutation.
func (m *Message) Body() map[string]any {
	body := make(map[string]any, len(m.body))
	for k, v := range m.body {
		body[k] = v
	}
	return body
}

// To returns the recipient address ("" if unset).
func (m *Message) To() string { return m.to }

// HasTo reports whether the recipient address is set.
func (m *Message) HasTo() bool { return m.to != "" }

// SetTo sets the recipient address.
func (m *Message) SetTo(to string) { m.to = to }

// Sender returns the sender address ("" if unset).
func (m *Message) Sender() string { return m.sender }

// HasSender reports whether the sender address is set.
func (m *Message) HasSender() bool { return m.sender != "" }

// SetSender sets the sender address.
func (m *Message) SetSender(sender string) { m.sender = sender }

// CheckConsistency validates the message against its protocol schema and
// returns the first violated rule, in order:
//
//  1. the performative belongs to the protocol's performative set
//  2. exactly the declared mandatory fields are present (optional fields
//     count only when supplied, undeclared fields are rejected) and every
//     present field's runtime type matches its TypeSpec recursively
//  3. if the message id is 1 the target must be 0
//
// The addressing fields are typed statically, so the original's runtime
// checks on them have no Go counterpart.
func (m *Message) CheckConsistency() error {
	if m.desc == nil {
		return violation("descriptor", "message has no protocol descriptor")
	}
	if !m.desc.HasPerformative(m.performative) {
		return violation("performative", "invalid performative %q, expected one of %v",
			m.performative, m.desc.Performatives)
	}

	fields := m.desc.FieldsFor(m.performative)
	expected := 0
	for _, f := range fields {
		v, present := m.body[f.Name]
		if !present {
			if f.Optional {
				continue
			}
			return violation("contents", "mandatory field %q for performative %q is missing",
				f.Name, m.performative)
		}
		expected++
		if err := f.Type.Check(v); err != nil {
			return violation("contents", "invalid type for field %q: %v", f.Name, err)
		}
	}
	if len(m.body) != expected {
		return violation("contents", "incorrect number of contents for %q: expected %d, found %d (%s)",
			m.performative, expected, len(m.body), m.undeclaredFields(fields))
	}

	if m.messageID == StartingMessageID && m.target != StartingTarget {
		return violation("target", "invalid target %d: expected 0 because message id is 1", m.target)
	}
	return nil
}

// IsConsistent reports whether the message satisfies its protocol schema.
// On failure the violated rule is logged and false is returned; it never
// panics, so callers decide whether to drop, reject or answer with an error
// performative.
func (m *Message) IsConsistent() bool {
	if err := m.CheckConsistency(); err != nil {
		m.logger.Warn("inconsistent message", "performative", string(m.performative), "reason", err.Error())
		return false
	}
	return true
}

func (m *Message) undeclaredFields(declared []Field) string {
	known := make(map[string]bool, len(declared))
	for _, f := range declared {
		known[f.Name] = true
	}
	var extra []string
	for name := range m.body {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	if len(extra) == 0 {
		return "no undeclared fields"
	}
	return "undeclared: " + strings.Join(extra, ", ")
}

// Equal compares two messages on performative, dialogue reference, message
// id, target and every body field. The To/Sender routing fields are
// excluded: they live in the envelope's outer frame.
func (m *Message) Equal(other *Message) bool {
	if other == nil {
		return false
	}
	return m.performative == other.performative &&
		m.reference == other.reference &&
		m.messageID == other.messageID &&
		m.target == other.target &&
		reflect.DeepEqual(m.body, other.body)
}

// String renders a compact human readable form for logs.
func (m *Message) String() string {
	names := make([]string, 0, len(m.body))
	for name := range m.body {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("Message(performative=%s id=%d target=%d ref=(%s,%s) fields=%s)",
		m.performative, m.messageID, m.target, m.reference.Starter, m.reference.Responder,
		strings.Join(names, ","))
}
