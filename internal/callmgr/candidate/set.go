package candidate

import "sync"

// StaticSet is an in-memory Set backed by a fixed slot layout. Attributes
// can be updated at runtime; reads always return the current snapshot.
//
// Thread Safety: all methods are safe for concurrent use.
type StaticSet struct {
	mu    sync.RWMutex
	slots []Candidate
}

// NewStaticSet creates a StaticSet from the given candidates, kept in the
// order provided. Slot indexes must be unique.
func NewStaticSet(cands []Candidate) *StaticSet {
	s := &StaticSet{slots: make([]Candidate, len(cands))}
	copy(s.slots, cands)
	return s
}

// Candidates implements Set.
func (s *StaticSet) Candidates() []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Candidate, len(s.slots))
	copy(out, s.slots)
	return out
}

// BySlot implements Set.
func (s *StaticSet) BySlot(slot int) (Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.slots {
		if c.Slot == slot {
			return c, true
		}
	}
	return Candidate{}, false
}

// BySubscription implements Set.
func (s *StaticSet) BySubscription(subID int) (Candidate, bool) {
	if subID == SubscriptionNone {
		return Candidate{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.slots {
		if c.SubscriptionID == subID {
			return c, true
		}
	}
	return Candidate{}, false
}

// Update replaces the candidate in the given slot. Unknown slots are ignored.
func (s *StaticSet) Update(c Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if s.slots[i].Slot == c.Slot {
			s.slots[i] = c
			return
		}
	}
}

// SetRadioOn flips the radio power flag for a slot.
func (s *StaticSet) SetRadioOn(slot int, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if s.slots[i].Slot == slot {
			s.slots[i].RadioOn = on
			return
		}
	}
}

// Ensure StaticSet implements Set.
var _ Set = (*StaticSet)(nil)

// StaticDeviceState is a fixed DeviceState, useful for wiring and tests.
type StaticDeviceState struct {
	VoiceSub        int
	DataSub         int
	ConcurrentCalls bool
}

// DefaultVoiceSubscription implements DeviceState.
func (d StaticDeviceState) DefaultVoiceSubscription() int { return d.VoiceSub }

// DefaultDataSubscription implements DeviceState.
func (d StaticDeviceState) DefaultDataSubscription() int { return d.DataSub }

// ConcurrentCallsSupported implements DeviceState.
func (d StaticDeviceState) ConcurrentCallsSupported() bool { return d.ConcurrentCalls }

// Ensure StaticDeviceState implements DeviceState.
var _ DeviceState = StaticDeviceState{}
