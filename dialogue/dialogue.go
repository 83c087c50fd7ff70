package dialogue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/protocol"
)

// ErrIllegalMessage wraps every reason Accept can reject a message: wrong
// dialogue, broken id sequence, a performative that is not a legal reply in
// the current state, or a schema-inconsistent message. A rejected message
// never mutates the dialogue.
var ErrIllegalMessage = errors.New("message invalid for dialogue")

func rejection(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalMessage, fmt.Sprintf(format, args...))
}

// Dialogue tracks the state of one conversation: its identity label, the
// local agent's role, the ordered exchange split by direction and the
// terminal classification once an end state is reached.
//
// State is fully determined by the performative of the last accepted message
// plus the terminated flag; there is no hidden state beyond the exchange.
type Dialogue struct {
	mu          sync.RWMutex
	label       Label
	role        protocol.Role
	selfAddress string
	desc        *protocol.Descriptor

	incoming   []*protocol.Message
	outgoing   []*protocol.Message
	orderedIDs []int64

	endState   protocol.EndState
	terminated bool
	created    time.Time

	terminalCallbacks []func(*Dialogue)
	logger            *logging.DialogueLogger
}

func newDialogue(label Label, desc *protocol.Descriptor, selfAddress string, role protocol.Role, logger *logging.DialogueLogger) *Dialogue {
	if logger == nil {
		logger = logging.NewDialogueLogger(nil, desc.ID)
	}
	return &Dialogue{
		label:       label,
		role:        role,
		selfAddress: selfAddress,
		desc:        desc,
		created:     time.Now(),
		logger:      logger,
	}
}

// Label returns the dialogue's identity key.
func (d *Dialogue) Label() Label {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.label
}

// Role returns the local agent's role in the dialogue.
func (d *Dialogue) Role() protocol.Role { return d.role }

// SelfAddress returns the local agent's address.
func (d *Dialogue) SelfAddress() string { return d.selfAddress }

// IsSelfInitiated reports whether the local agent sent the first message.
func (d *Dialogue) IsSelfInitiated() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isSelfInitiatedLocked()
}

func (d *Dialogue) isSelfInitiatedLocked() bool {
	return d.label.StarterAddress == d.selfAddress
}

// IsEmpty reports whether no message has been accepted yet.
func (d *Dialogue) IsEmpty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.orderedIDs) == 0
}

// Len returns the number of accepted messages.
func (d *Dialogue) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.orderedIDs)
}

// Age returns the time elapsed since the dialogue was created.
func (d *Dialogue) Age() time.Duration {
	return time.Since(d.created)
}

// IsTerminated reports whether a terminal performative has been accepted.
func (d *Dialogue) IsTerminated() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.terminated
}

// EndState returns the terminal classification ("" while the dialogue is
// still active).
func (d *Dialogue) EndState() protocol.EndState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.endState
}

// CurrentPerformative returns the performative of the most recently accepted
// message ("" for an empty dialogue).
func (d *Dialogue) CurrentPerformative() protocol.Performative {
	d.mu.RLock()
	defer d.mu.RUnlock()
	last := d.lastMessageLocked()
	if last == nil {
		return ""
	}
	return last.Performative()
}

// LastMessage returns the most recently accepted message, nil if none.
func (d *Dialogue) LastMessage() *protocol.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastMessageLocked()
}

func (d *Dialogue) lastMessageLocked() *protocol.Message {
	if len(d.orderedIDs) == 0 {
		return nil
	}
	return d.messageByIDLocked(d.orderedIDs[len(d.orderedIDs)-1])
}

// LastIncomingMessage returns the opponent's latest message, nil if none.
func (d *Dialogue) LastIncomingMessage() *protocol.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.incoming) == 0 {
		return nil
	}
	return d.incoming[len(d.incoming)-1]
}

// LastOutgoingMessage returns the local agent's latest message, nil if none.
func (d *Dialogue) LastOutgoingMessage() *protocol.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.outgoing) == 0 {
		return nil
	}
	return d.outgoing[len(d.outgoing)-1]
}

// Messages returns the accepted exchange in acceptance order.
func (d *Dialogue) Messages() []*protocol.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	msgs := make([]*protocol.Message, 0, len(d.orderedIDs))
	for _, id := range d.orderedIDs {
		msgs = append(msgs, d.messageByIDLocked(id))
	}
	return msgs
}

// GetMessageByID returns the accepted message with the given id, nil if
// absent. Positive ids belong to the dialogue starter, negative ids to the
// responder; each side numbers its own messages from 1 upwards in absolute
// value.
func (d *Dialogue) GetMessageByID(id int64) *protocol.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.messageByIDLocked(id)
}

func (d *Dialogue) messageByIDLocked(id int64) *protocol.Message {
	if id == 0 {
		return nil
	}
	var side []*protocol.Message
	if (id > 0) == d.isSelfInitiatedLocked() {
		side = d.outgoing
	} else {
		side = d.incoming
	}
	idx := abs64(id) - 1
	if idx >= int64(len(side)) {
		return nil
	}
	return side[idx]
}

// NextOutgoingMessageID returns the id the local agent must assign to its
// next message: the starter counts 1, 2, 3...; the responder -1, -2, -3...
func (d *Dialogue) NextOutgoingMessageID() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nextOutgoingIDLocked()
}

func (d *Dialogue) nextOutgoingIDLocked() int64 {
	next := protocol.StartingMessageID
	if len(d.outgoing) > 0 {
		next = abs64(d.outgoing[len(d.outgoing)-1].MessageID()) + 1
	}
	if !d.isSelfInitiatedLocked() {
		next = -next
	}
	return next
}

func (d *Dialogue) nextIncomingIDLocked() int64 {
	next := protocol.StartingMessageID
	if len(d.incoming) > 0 {
		next = abs64(d.incoming[len(d.incoming)-1].MessageID()) + 1
	}
	if d.isSelfInitiatedLocked() {
		next = -next
	}
	return next
}

// Accept validates message as the next step of the conversation and, on
// success, appends it to the exchange. The first message must carry an
// initial performative; every later message must target an existing message
// and carry a performative the reply graph allows after the target's. On
// rejection an ErrIllegalMessage reason is returned and the dialogue is left
// untouched. Accepting a terminal performative moves the dialogue to its
// end state and fires the terminal callbacks.
func (d *Dialogue) Accept(message *protocol.Message) error {
	d.mu.Lock()

	if !message.HasSender() {
		message.SetSender(d.selfAddress)
	}
	if err := message.CheckConsistency(); err != nil {
		d.mu.Unlock()
		d.logger.LogMessageRejected(message.MessageID(), err)
		return rejection("inconsistent message: %v", err)
	}
	if err := d.checkBelongsLocked(message); err != nil {
		d.mu.Unlock()
		d.logger.LogMessageRejected(message.MessageID(), err)
		return err
	}
	if err := d.validateNextLocked(message); err != nil {
		d.mu.Unlock()
		d.logger.LogMessageRejected(message.MessageID(), err)
		return err
	}

	if d.isMessageBySelfLocked(message) {
		d.outgoing = append(d.outgoing, message)
	} else {
		d.incoming = append(d.incoming, message)
	}
	d.orderedIDs = append(d.orderedIDs, message.MessageID())

	var fire []func(*Dialogue)
	if d.desc.IsTerminal(message.Performative()) {
		d.endState = d.desc.EndStateByPerformative[message.Performative()]
		d.terminated = true
		fire = append(fire, d.terminalCallbacks...)
	}
	d.mu.Unlock()

	d.logger.LogMessageAccepted(message.MessageID(), string(message.Performative()))
	for _, fn := range fire {
		fn(d)
	}
	return nil
}

// Reply builds the local agent's next message (reference from the label,
// the next outgoing id, target defaulting to the last message), accepts it
// and returns it ready to send. Use ReplyTo to target an earlier message.
func (d *Dialogue) Reply(performative protocol.Performative, fields map[string]any) (*protocol.Message, error) {
	return d.ReplyTo(0, performative, fields)
}

// ReplyTo is Reply with an explicit target message id (0 targets the last
// message of the exchange).
func (d *Dialogue) ReplyTo(target int64, performative protocol.Performative, fields map[string]any) (*protocol.Message, error) {
	d.mu.RLock()
	last := d.lastMessageLocked()
	if last == nil {
		d.mu.RUnlock()
		return nil, fmt.Errorf("cannot reply in an empty dialogue")
	}
	if target == 0 {
		target = last.MessageID()
	} else if d.messageByIDLocked(target) == nil {
		d.mu.RUnlock()
		return nil, fmt.Errorf("target message %d does not exist in this dialogue", target)
	}
	reply := protocol.NewMessage(d.desc, performative,
		protocol.WithReference(d.label.Reference),
		protocol.WithMessageID(d.nextOutgoingIDLocked()),
		protocol.WithTarget(target),
		protocol.WithFields(fields),
	)
	reply.SetSender(d.selfAddress)
	reply.SetTo(d.label.OpponentAddress)
	d.mu.RUnlock()

	if err := d.Accept(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// AddTerminalStateCallback registers fn to run when the dialogue reaches a
// terminal state. The registry uses this for retention and statistics.
func (d *Dialogue) AddTerminalStateCallback(fn func(*Dialogue)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminalCallbacks = append(d.terminalCallbacks, fn)
}

func (d *Dialogue) isMessageBySelfLocked(message *protocol.Message) bool {
	return message.Sender() == d.selfAddress
}

func (d *Dialogue) counterpartyFromMessageLocked(message *protocol.Message) string {
	if d.isMessageBySelfLocked(message) {
		return message.To()
	}
	return message.Sender()
}

func (d *Dialogue) labelsLocked() []Label {
	labels := []Label{d.label}
	if incomplete := d.label.IncompleteVersion(); incomplete != d.label {
		labels = append(labels, incomplete)
	}
	return labels
}

func (d *Dialogue) checkBelongsLocked(message *protocol.Message) error {
	opponent := d.counterpartyFromMessageLocked(message)
	var candidate Label
	if d.isSelfInitiatedLocked() {
		candidate = Label{
			Reference: protocol.DialogueReference{
				Starter:   message.DialogueReference().Starter,
				Responder: protocol.UnassignedReference,
			},
			OpponentAddress: opponent,
			StarterAddress:  d.selfAddress,
		}
	} else {
		candidate = Label{
			Reference:       message.DialogueReference(),
			OpponentAddress: opponent,
			StarterAddress:  opponent,
		}
	}
	for _, label := range d.labelsLocked() {
		if label == candidate {
			return nil
		}
	}
	return rejection("message %d does not belong to this dialogue: reference (%s,%s) vs label %s",
		message.MessageID(), message.DialogueReference().Starter,
		message.DialogueReference().Responder, d.label)
}

func (d *Dialogue) validateNextLocked(message *protocol.Message) error {
	if len(d.orderedIDs) == 0 {
		return d.validateInitialLocked(message)
	}
	return d.validateNonInitialLocked(message)
}

func (d *Dialogue) validateInitialLocked(message *protocol.Message) error {
	if message.DialogueReference().Starter != d.label.Reference.Starter {
		return rejection("invalid starter reference: expected %q, found %q",
			d.label.Reference.Starter, message.DialogueReference().Starter)
	}
	if message.MessageID() != protocol.StartingMessageID {
		return rejection("invalid message id: expected %d for the first message, found %d",
			protocol.StartingMessageID, message.MessageID())
	}
	if message.Target() != protocol.StartingTarget {
		return rejection("invalid target: expected %d for the first message, found %d",
			protocol.StartingTarget, message.Target())
	}
	if !d.desc.IsInitial(message.Performative()) {
		return rejection("invalid initial performative: expected one of %v, found %q",
			d.desc.InitialPerformatives, message.Performative())
	}
	return nil
}

func (d *Dialogue) validateNonInitialLocked(message *protocol.Message) error {
	if message.DialogueReference().Starter != d.label.Reference.Starter {
		return rejection("invalid starter reference: expected %q, found %q",
			d.label.Reference.Starter, message.DialogueReference().Starter)
	}
	if err := d.validateMessageIDLocked(message); err != nil {
		return err
	}
	return d.validateTargetLocked(message)
}

// validateMessageIDLocked assumes each sender assigns its own ids
// monotonically; the messages of the opponent arrive in send order.
func (d *Dialogue) validateMessageIDLocked(message *protocol.Message) error {
	var next int64
	if d.isMessageBySelfLocked(message) {
		next = d.nextOutgoingIDLocked()
	} else {
		next = d.nextIncomingIDLocked()
	}
	if message.MessageID() != next {
		return rejection("invalid message id: expected %d, found %d", next, message.MessageID())
	}
	return nil
}

func (d *Dialogue) validateTargetLocked(message *protocol.Message) error {
	target := message.Target()
	if target == protocol.StartingTarget {
		return rejection("invalid target: expected a non-zero id, found 0")
	}

	var latest int64
	if len(d.incoming) > 0 {
		latest = abs64(d.incoming[len(d.incoming)-1].MessageID())
	}
	if len(d.outgoing) > 0 {
		if out := abs64(d.outgoing[len(d.outgoing)-1].MessageID()); out > latest {
			latest = out
		}
	}
	if abs64(target) > latest {
		return rejection("invalid target: expected an id with absolute value at most %d, found %d",
			latest, target)
	}

	targetMessage := d.messageByIDLocked(target)
	if targetMessage == nil {
		return rejection("invalid target %d: no such message in this dialogue", target)
	}
	if !d.desc.IsValidReply(targetMessage.Performative(), message.Performative()) {
		return rejection("invalid performative: expected one of %v as a reply to %q, found %q",
			d.desc.RepliesTo(targetMessage.Performative()), targetMessage.Performative(),
			message.Performative())
	}
	return nil
}

// updateLabel completes the label once the responder's half of the
// reference becomes known.
func (d *Dialogue) updateLabel(final Label) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.label.Reference.Responder != protocol.UnassignedReference ||
		final.Reference.Responder == protocol.UnassignedReference {
		return fmt.Errorf("dialogue label cannot be updated from %s to %s", d.label, final)
	}
	d.label = final
	return nil
}

func (d *Dialogue) String() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fmt.Sprintf("Dialogue(label=%s role=%s messages=%d terminated=%t)",
		d.label, d.role, len(d.orderedIDs), d.terminated)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
