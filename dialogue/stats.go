package dialogue

import (
	"sync"

	"github.com/hupe1980/dialogmesh/protocol"
)

// Stats counts terminated dialogues per end state, split by which party
// initiated the conversation.
type Stats struct {
	mu             sync.RWMutex
	selfInitiated  map[protocol.EndState]int
	otherInitiated map[protocol.EndState]int
}

func newStats(endStates []protocol.EndState) *Stats {
	s := &Stats{
		selfInitiated:  make(map[protocol.EndState]int, len(endStates)),
		otherInitiated: make(map[protocol.EndState]int, len(endStates)),
	}
	for _, es := range endStates {
		s.selfInitiated[es] = 0
		s.otherInitiated[es] = 0
	}
	return s
}

func (s *Stats) add(endState protocol.EndState, selfInitiated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if selfInitiated {
		s.selfInitiated[endState]++
	} else {
		s.otherInitiated[endState]++
	}
}

// SelfInitiated returns a copy of the per end state counters for dialogues
// the local agent started.
func (s *Stats) SelfInitiated() map[protocol.EndState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyCounters(s.selfInitiated)
}

// OtherInitiated returns a copy of the per end state counters for dialogues
// the opponent started.
func (s *Stats) OtherInitiated() map[protocol.EndState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyCounters(s.otherInitiated)
}

func copyCounters(m map[protocol.EndState]int) map[protocol.EndState]int {
	out := make(map[protocol.EndState]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
