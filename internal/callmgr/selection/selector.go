// Package selection chooses the candidate used to place an emergency call.
//
// Selection is a pure function over a candidate snapshot. Rules are applied
// in strict short-circuit priority order; the first matching rule wins:
//
//  1. A single candidate in emergency-SMS mode whose tier still allows an
//     emergency call.
//  2. The default-voice candidate, if in full service.
//  3. The default-data candidate, if in full or emergency-only service.
//  4. General ranking by (service tier, SIM rank, capability), each
//     descending, ties broken by ascending slot index.
package selection

import (
	"errors"

	"github.com/sebas/towerline/internal/callmgr/candidate"
)

// ErrNoCandidates indicates selection was invoked with an empty snapshot.
// An empty candidate list is a caller-level precondition violation.
var ErrNoCandidates = errors.New("no candidates available")

// Context carries the emergency-number context the call is placed under.
type Context struct {
	Address string
	IsTest  bool
}

// SelectForEmergency returns the candidate to place an emergency call on.
// Deterministic and side-effect free.
func SelectForEmergency(cands []candidate.Candidate, _ Context) (candidate.Candidate, error) {
	if len(cands) == 0 {
		return candidate.Candidate{}, ErrNoCandidates
	}

	// Rule 1: an in-progress emergency SMS pins the call to its endpoint,
	// as long as that endpoint can still place an emergency call.
	smsIdx := -1
	smsCount := 0
	for i, c := range cands {
		if c.EmergencySMSMode {
			smsIdx = i
			smsCount++
		}
	}
	if smsCount == 1 && cands[smsIdx].Tier.Usable() {
		return cands[smsIdx], nil
	}

	// Rule 2: default voice in full service.
	for _, c := range cands {
		if c.DefaultVoice && c.Tier == candidate.TierInService {
			return c, nil
		}
	}

	// Rule 3: default data in full or emergency-only service.
	for _, c := range cands {
		if c.DefaultData && c.Tier.Usable() {
			return c, nil
		}
	}

	// Rule 4: general ranking.
	best := cands[0]
	for _, c := range cands[1:] {
		if outranks(c, best) {
			best = c
		}
	}
	return best, nil
}

// outranks reports whether a beats b under the general ranking key. The key
// is compared lexicographically: SIM rank only breaks service-tier ties, and
// capability only breaks SIM-rank ties.
func outranks(a, b candidate.Candidate) bool {
	if a.Tier != b.Tier {
		return a.Tier > b.Tier
	}
	if a.Sim != b.Sim {
		return a.Sim > b.Sim
	}
	if a.Capability != b.Capability {
		return a.Capability > b.Capability
	}
	return a.Slot < b.Slot
}

// Alternate returns the next candidate in priority order after current,
// skipping slots recorded in attempted. It is used by domain-selection
// failover to move to the other SIM slot. Returns false when every usable
// alternate has been attempted.
func Alternate(cands []candidate.Candidate, current candidate.Candidate, attempted map[int]bool) (candidate.Candidate, bool) {
	ordered := make([]candidate.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Slot == current.Slot || attempted[c.Slot] {
			continue
		}
		ordered = append(ordered, c)
	}
	if len(ordered) == 0 {
		return candidate.Candidate{}, false
	}
	best := ordered[0]
	for _, c := range ordered[1:] {
		if outranks(c, best) {
			best = c
		}
	}
	return best, true
}
