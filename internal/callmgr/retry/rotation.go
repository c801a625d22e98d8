// Package retry implements the per-call round-robin rotation of candidates
// used to redial after a modem-level dial failure.
package retry

import (
	"log/slog"

	"github.com/sebas/towerline/internal/callmgr/candidate"
)

// Cache tracks one rotation per call id. A rotation is created lazily on the
// first failure for a call and destroyed when the call reaches a terminal
// state or the rotation empties.
//
// Cache is confined to the orchestrator's serialized execution context and
// needs no locking.
type Cache struct {
	set       candidate.Set
	rotations map[string]*rotation
}

type rotation struct {
	queue []candidate.Candidate
}

// NewCache creates an empty cache drawing candidates from set.
func NewCache(set candidate.Set) *Cache {
	return &Cache{set: set, rotations: make(map[string]*rotation)}
}

// OnDialFailure records a dial failure for callID and returns the next
// candidate to try, or ok=false when the rotation is exhausted and the call
// must terminate.
//
// The first failure seeds the rotation with every known candidate, the
// failed one at the front. A temporary failure rotates the failed candidate
// to the back; a permanent failure removes it.
func (c *Cache) OnDialFailure(callID string, failed candidate.Candidate, permanent bool) (candidate.Candidate, bool) {
	r, ok := c.rotations[callID]
	if !ok {
		r = c.seed(failed)
		c.rotations[callID] = r
	}

	if permanent {
		r.remove(failed.Slot)
	} else {
		r.rotate(failed.Slot)
	}

	if len(r.queue) == 0 {
		delete(c.rotations, callID)
		slog.Info("[Retry] rotation exhausted", "call_id", callID)
		return candidate.Candidate{}, false
	}

	next := r.queue[0]
	slog.Debug("[Retry] next candidate",
		"call_id", callID,
		"failed_slot", failed.Slot,
		"permanent", permanent,
		"next_slot", next.Slot,
		"remaining", len(r.queue),
	)
	return next, true
}

// Size returns the number of candidates remaining in the rotation for
// callID, or 0 when no rotation exists.
func (c *Cache) Size(callID string) int {
	if r, ok := c.rotations[callID]; ok {
		return len(r.queue)
	}
	return 0
}

// Drop destroys the rotation for callID, if any. Called when the call
// reaches a terminal state.
func (c *Cache) Drop(callID string) {
	delete(c.rotations, callID)
}

// seed builds a fresh rotation containing all known candidates with the
// failed one at the front, so that rotate/remove below yields the right
// next candidate. No candidate appears twice.
func (c *Cache) seed(failed candidate.Candidate) *rotation {
	all := c.set.Candidates()
	queue := make([]candidate.Candidate, 0, len(all))
	queue = append(queue, failed)
	for _, cand := range all {
		if cand.Slot != failed.Slot {
			queue = append(queue, cand)
		}
	}
	return &rotation{queue: queue}
}

// rotate moves the candidate in the given slot to the back of the queue.
func (r *rotation) rotate(slot int) {
	for i, cand := range r.queue {
		if cand.Slot == slot {
			r.queue = append(append(r.queue[:i:i], r.queue[i+1:]...), cand)
			return
		}
	}
}

// remove deletes the candidate in the given slot from the queue.
func (r *rotation) remove(slot int) {
	for i, cand := range r.queue {
		if cand.Slot == slot {
			r.queue = append(r.queue[:i:i], r.queue[i+1:]...)
			return
		}
	}
}
