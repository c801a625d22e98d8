// Package radiopower gates emergency dials on radio power-on. When the
// selected candidate's radio is off (airplane mode, power saving), the dial
// is parked here until the power-on helper reports the radio usable, then
// released back onto the orchestrator's queue.
package radiopower

import (
	"log/slog"
	"sync"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/disconnect"
	"github.com/sebas/towerline/internal/callmgr/serial"
	"github.com/sebas/towerline/internal/radiolink"
)

// Coordinator parks at most one pending dial per call while the radio powers
// on. Outcomes are posted onto the serialized queue, so a locally hung-up
// call is observed before its dial is released.
type Coordinator struct {
	queue      *serial.Queue
	helper     radiolink.RadioOnHelper
	candidates candidate.Set

	mu      sync.Mutex
	pending map[string]*watch
}

type watch struct {
	cancelled bool
	done      bool
}

// New creates a coordinator.
func New(queue *serial.Queue, helper radiolink.RadioOnHelper, candidates candidate.Set) *Coordinator {
	return &Coordinator{
		queue:      queue,
		helper:     helper,
		candidates: candidates,
		pending:    make(map[string]*watch),
	}
}

// Needed reports whether the candidate requires a power-on step before it
// can be dialed.
func Needed(cand candidate.Candidate) bool {
	return !cand.RadioOn
}

// EnsureRadioOn triggers radio power-on for the candidate and parks the
// call. When the radio comes up, proceed runs on the serialized queue with
// the candidate's refreshed state; when power-on fails or times out, fail
// runs instead. A call cancelled in the interim gets neither.
func (c *Coordinator) EnsureRadioOn(callID string, cand candidate.Candidate, emergency, isTest bool, proceed func(cand candidate.Candidate), fail func(cause disconnect.Cause)) {
	w := &watch{}
	c.mu.Lock()
	c.pending[callID] = w
	c.mu.Unlock()

	slog.Info("[RadioPower] waiting for radio",
		"call_id", callID,
		"slot", cand.Slot,
		"emergency", emergency,
	)
	l := &listener{c: c, callID: callID, slot: cand.Slot, emergency: emergency, proceed: proceed, fail: fail}
	c.helper.TriggerRadioOnAndListen(l, emergency, cand, isTest)
}

// Cancel discards the pending dial for a locally hung-up call. Power-on
// itself is not reverted; only the parked dial is dropped.
func (c *Coordinator) Cancel(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.pending[callID]; ok {
		w.cancelled = true
	}
}

// Pending reports whether the call is parked awaiting radio power.
func (c *Coordinator) Pending(callID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.pending[callID]
	return ok && !w.done && !w.cancelled
}

// finish resolves the watch. Returns false when the outcome must be
// discarded because the call was cancelled or already resolved.
func (c *Coordinator) finish(callID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.pending[callID]
	if !ok || w.done {
		return false
	}
	w.done = true
	delete(c.pending, callID)
	return !w.cancelled
}

type listener struct {
	c         *Coordinator
	callID    string
	slot      int
	emergency bool
	proceed   func(cand candidate.Candidate)
	fail      func(cause disconnect.Cause)
}

// IsOkToCall implements radiolink.RadioOnStateListener. An emergency dial
// only needs the radio up; a normal dial needs full service.
func (l *listener) IsOkToCall(cand candidate.Candidate, tier candidate.ServiceTier) bool {
	if l.emergency {
		return cand.RadioOn
	}
	return cand.RadioOn && tier == candidate.TierInService
}

// OnComplete implements radiolink.RadioOnStateListener.
func (l *listener) OnComplete(success bool, radioReady bool) {
	l.c.queue.Post(func() {
		if !l.c.finish(l.callID) {
			slog.Debug("[RadioPower] outcome discarded", "call_id", l.callID)
			return
		}
		if !success || !radioReady {
			slog.Warn("[RadioPower] radio power-on failed",
				"call_id", l.callID,
				"slot", l.slot,
			)
			l.fail(disconnect.RadioUnavailable())
			return
		}
		cand, ok := l.c.candidates.BySlot(l.slot)
		if !ok {
			l.fail(disconnect.NoService())
			return
		}
		slog.Info("[RadioPower] radio ready, releasing dial",
			"call_id", l.callID,
			"slot", l.slot,
		)
		l.proceed(cand)
	})
}
