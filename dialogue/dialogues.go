package dialogue

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/protocol"
)

// Options configures a Dialogues registry.
type Options struct {
	// Logger receives validation and routing diagnostics. Defaults to NoOp.
	Logger logging.Logger

	// KeepTerminal overrides the descriptor's retention flag when non-nil.
	KeepTerminal *bool
}

// Dialogues is the per-agent registry of all conversations of one protocol.
// It owns session identity: routing an inbound message to its dialogue,
// recognizing a legitimate first message from a new counterparty, and
// minting self initiated dialogues. Its lifecycle matches the agent's own.
type Dialogues struct {
	desc        *protocol.Descriptor
	selfAddress string
	store       *store
	stats       *Stats
	logger      *logging.DialogueLogger
}

// New creates a registry for the given protocol owned by selfAddress.
func New(desc *protocol.Descriptor, selfAddress string, optFns ...func(o *Options)) (*Dialogues, error) {
	if selfAddress == "" {
		return nil, fmt.Errorf("self address must not be empty")
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid protocol descriptor: %w", err)
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	keepTerminal := desc.KeepTerminal
	if opts.KeepTerminal != nil {
		keepTerminal = *opts.KeepTerminal
	}

	return &Dialogues{
		desc:        desc,
		selfAddress: selfAddress,
		store:       newStore(keepTerminal),
		stats:       newStats(desc.EndStates),
		logger:      logging.NewDialogueLogger(opts.Logger, desc.ID),
	}, nil
}

// SelfAddress returns the address owning the registry.
func (ds *Dialogues) SelfAddress() string { return ds.selfAddress }

// Descriptor returns the protocol contract the registry enforces.
func (ds *Dialogues) Descriptor() *protocol.Descriptor { return ds.desc }

// Stats returns the end state counters.
func (ds *Dialogues) Stats() *Stats { return ds.stats }

// Create starts a self initiated dialogue with counterparty: it builds the
// opening message (fresh reference, id 1, target 0), registers the dialogue
// and feeds the message through Accept. It fails if performative is not an
// initial performative or the contents violate the schema.
func (ds *Dialogues) Create(counterparty string, performative protocol.Performative, fields map[string]any) (*protocol.Message, *Dialogue, error) {
	message := protocol.NewMessage(ds.desc, performative,
		protocol.WithReference(protocol.NewSelfInitiatedReference()),
		protocol.WithMessageID(protocol.StartingMessageID),
		protocol.WithTarget(protocol.StartingTarget),
		protocol.WithFields(fields),
	)
	message.SetSender(ds.selfAddress)
	message.SetTo(counterparty)

	dialogue, err := ds.createFromInitialMessage(counterparty, message)
	if err != nil {
		return nil, nil, err
	}
	return message, dialogue, nil
}

// CreateWithMessage starts a self initiated dialogue from a caller supplied
// opening message whose routing fields must still be unset.
func (ds *Dialogues) CreateWithMessage(counterparty string, message *protocol.Message) (*Dialogue, error) {
	if message.HasSender() {
		return nil, fmt.Errorf("the message's sender field is already set: %s", message)
	}
	if message.HasTo() {
		return nil, fmt.Errorf("the message's to field is already set: %s", message)
	}
	message.SetSender(ds.selfAddress)
	message.SetTo(counterparty)
	return ds.createFromInitialMessage(counterparty, message)
}

func (ds *Dialogues) createFromInitialMessage(counterparty string, message *protocol.Message) (*Dialogue, error) {
	role := ds.desc.RoleFromFirstMessage(message, ds.selfAddress)
	dialogue, err := ds.createSelfInitiated(counterparty, message.DialogueReference(), role)
	if err != nil {
		return nil, err
	}
	if err := dialogue.Accept(message); err != nil {
		ds.store.remove(dialogue.Label())
		return nil, fmt.Errorf("cannot create a dialogue with the specified performative and contents: %w", err)
	}
	return dialogue, nil
}

// Update routes an inbound message to its dialogue. A legal first message
// from a new counterparty creates an opponent initiated dialogue; a reply to
// one of our own openings completes the stored reference first. The result
// is nil when the message identifies no dialogue or is not a legal
// transition for the one it names. Callers use that nil to answer with a
// protocol level error message or to discard; a rejected message leaves
// every dialogue unchanged.
func (ds *Dialogues) Update(message *protocol.Message) *Dialogue {
	if !message.HasSender() || message.Sender() == ds.selfAddress {
		ds.logger.LogUnidentifiedDialogue(message.Sender(), message.MessageID())
		return nil
	}
	if !message.HasTo() || message.To() != ds.selfAddress {
		ds.logger.LogUnidentifiedDialogue(message.Sender(), message.MessageID())
		return nil
	}

	ref := message.DialogueReference()
	starterAssigned := ref.Starter != protocol.UnassignedReference
	responderAssigned := ref.Responder != protocol.UnassignedReference

	isNewDialogue := starterAssigned && !responderAssigned &&
		message.MessageID() == protocol.StartingMessageID
	isIncompleteNonInitial := starterAssigned && !responderAssigned &&
		message.MessageID() != protocol.StartingMessageID

	var dialogue *Dialogue
	var created bool
	switch {
	case !starterAssigned:
		// a message with no starter reference can never identify a dialogue
	case isNewDialogue:
		var err error
		dialogue, err = ds.createOpponentInitiated(message.Sender(), ref,
			ds.desc.RoleFromFirstMessage(message, ds.selfAddress))
		if err != nil {
			ds.logger.LogMessageRejected(message.MessageID(), err)
			return nil
		}
		created = true
	case isIncompleteNonInitial:
		// several messages may be in flight before the counterparty learns
		// its own reference half; route via the incomplete label
		dialogue = ds.getDialogue(message)
	default:
		ds.completeDialogueReference(message)
		dialogue = ds.getDialogue(message)
	}

	if dialogue == nil {
		ds.logger.LogUnidentifiedDialogue(message.Sender(), message.MessageID())
		return nil
	}

	if err := dialogue.Accept(message); err != nil {
		if created {
			ds.store.remove(dialogue.Label())
		}
		return nil
	}
	return dialogue
}

// completeDialogueReference upgrades a self initiated dialogue's label once
// the counterparty's first reply carries the complete reference pair.
func (ds *Dialogues) completeDialogueReference(message *protocol.Message) {
	ref := message.DialogueReference()
	if !ref.IsComplete() {
		return
	}

	incomplete := Label{
		Reference: protocol.DialogueReference{
			Starter:   ref.Starter,
			Responder: protocol.UnassignedReference,
		},
		OpponentAddress: message.Sender(),
		StarterAddress:  ds.selfAddress,
	}
	if !ds.store.contains(incomplete) || ds.store.isInIncomplete(incomplete) {
		return
	}

	dialogue := ds.store.get(incomplete)
	ds.store.remove(incomplete)
	final := Label{
		Reference:       ref,
		OpponentAddress: incomplete.OpponentAddress,
		StarterAddress:  incomplete.StarterAddress,
	}
	if err := dialogue.updateLabel(final); err != nil {
		ds.logger.LogMessageRejected(message.MessageID(), err)
		ds.store.add(dialogue)
		return
	}
	ds.store.add(dialogue)
	ds.store.setIncomplete(incomplete, final)
}

// getDialogue retrieves the dialogue a message belongs to, probing both the
// self initiated and the opponent initiated label the message implies.
func (ds *Dialogues) getDialogue(message *protocol.Message) *Dialogue {
	counterparty := message.Sender()

	selfInitiated := Label{
		Reference:       message.DialogueReference(),
		OpponentAddress: counterparty,
		StarterAddress:  ds.selfAddress,
	}
	otherInitiated := Label{
		Reference:       message.DialogueReference(),
		OpponentAddress: counterparty,
		StarterAddress:  counterparty,
	}

	if d := ds.store.get(ds.store.latestLabel(selfInitiated)); d != nil {
		return d
	}
	return ds.store.get(ds.store.latestLabel(otherInitiated))
}

// GetDialogueFromLabel returns the dialogue registered under label, nil if
// absent (or evicted by the retention policy).
func (ds *Dialogues) GetDialogueFromLabel(label Label) *Dialogue {
	return ds.store.get(ds.store.latestLabel(label))
}

// DialoguesWithCounterparty returns every registered dialogue with the
// given counterparty.
func (ds *Dialogues) DialoguesWithCounterparty(counterparty string) []*Dialogue {
	return ds.store.withCounterparty(counterparty)
}

// ActiveDialogues returns the dialogues that have not reached an end state.
func (ds *Dialogues) ActiveDialogues() []*Dialogue { return ds.store.active() }

// TerminatedDialogues returns the retained dialogues in a terminal state.
func (ds *Dialogues) TerminatedDialogues() []*Dialogue { return ds.store.terminated() }

func (ds *Dialogues) createSelfInitiated(counterparty string, ref protocol.DialogueReference, role protocol.Role) (*Dialogue, error) {
	if ref.Starter == protocol.UnassignedReference || ref.Responder != protocol.UnassignedReference {
		return nil, fmt.Errorf("cannot initiate a dialogue with a preassigned responder reference")
	}
	label := Label{
		Reference:       ref,
		OpponentAddress: counterparty,
		StarterAddress:  ds.selfAddress,
	}
	return ds.register(label, nil, role)
}

func (ds *Dialogues) createOpponentInitiated(counterparty string, ref protocol.DialogueReference, role protocol.Role) (*Dialogue, error) {
	if ref.Starter == protocol.UnassignedReference || ref.Responder != protocol.UnassignedReference {
		return nil, fmt.Errorf("cannot respond to a dialogue with a preassigned responder reference")
	}
	incomplete := Label{
		Reference:       ref,
		OpponentAddress: counterparty,
		StarterAddress:  counterparty,
	}
	complete := Label{
		Reference: protocol.DialogueReference{
			Starter:   ref.Starter,
			Responder: protocol.NewNonce(),
		},
		OpponentAddress: counterparty,
		StarterAddress:  counterparty,
	}
	return ds.register(incomplete, &complete, role)
}

func (ds *Dialogues) register(incomplete Label, complete *Label, role protocol.Role) (*Dialogue, error) {
	if ds.store.isInIncomplete(incomplete) {
		return nil, fmt.Errorf("incomplete dialogue label %s already present", incomplete)
	}
	label := incomplete
	if complete != nil {
		ds.store.setIncomplete(incomplete, *complete)
		label = *complete
	}
	if ds.store.contains(label) {
		return nil, fmt.Errorf("dialogue label %s already present", label)
	}

	dialogue := newDialogue(label, ds.desc, ds.selfAddress, role, ds.logger)
	dialogue.AddTerminalStateCallback(ds.onTerminal)
	ds.store.add(dialogue)
	return dialogue, nil
}

func (ds *Dialogues) onTerminal(d *Dialogue) {
	ds.stats.add(d.EndState(), d.IsSelfInitiated())
	ds.store.markTerminal(d)
	ds.logger.LogDialogueEnded(d.Label().String(), string(d.EndState()), d.Age())
}
