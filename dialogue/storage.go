package dialogue

import "sync"

// store indexes dialogues by label. Terminated dialogues either stay
// indexed (queryable, able to absorb late or duplicate terminal traffic) or
// are evicted, per the protocol's KeepTerminal flag. It also remembers the
// incomplete-to-complete label mapping for self initiated dialogues whose
// responder reference arrived later.
type store struct {
	mu                   sync.RWMutex
	dialogues            map[Label]*Dialogue
	terminal             map[Label]struct{}
	incompleteToComplete map[Label]Label
	keepTerminal         bool
}

func newStore(keepTerminal bool) *store {
	return &store{
		dialogues:            map[Label]*Dialogue{},
		terminal:             map[Label]struct{}{},
		incompleteToComplete: map[Label]Label{},
		keepTerminal:         keepTerminal,
	}
}

func (s *store) add(d *Dialogue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogues[d.Label()] = d
}

func (s *store) remove(label Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogues, label)
	delete(s.terminal, label)
	delete(s.incompleteToComplete, label)
}

func (s *store) get(label Label) *Dialogue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dialogues[label]
}

func (s *store) contains(label Label) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dialogues[label]
	return ok
}

// markTerminal records a dialogue reaching its end state, evicting it when
// the retention policy says terminal dialogues are not kept.
func (s *store) markTerminal(d *Dialogue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	label := d.Label()
	if !s.keepTerminal {
		delete(s.dialogues, label)
		return
	}
	s.terminal[label] = struct{}{}
}

func (s *store) latestLabel(label Label) Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if complete, ok := s.incompleteToComplete[label]; ok {
		return complete
	}
	return label
}

func (s *store) isInIncomplete(label Label) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.incompleteToComplete[label]
	return ok
}

func (s *store) setIncomplete(incomplete, complete Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incompleteToComplete[incomplete] = complete
}

func (s *store) withCounterparty(counterparty string) []*Dialogue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Dialogue
	for label, d := range s.dialogues {
		if label.OpponentAddress == counterparty {
			result = append(result, d)
		}
	}
	return result
}

func (s *store) active() []*Dialogue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Dialogue
	for label, d := range s.dialogues {
		if _, terminal := s.terminal[label]; !terminal {
			result = append(result, d)
		}
	}
	return result
}

func (s *store) terminated() []*Dialogue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Dialogue
	for label := range s.terminal {
		if d, ok := s.dialogues[label]; ok {
			result = append(result, d)
		}
	}
	return result
}
