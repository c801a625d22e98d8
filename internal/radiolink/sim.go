package radiolink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sebas/towerline/internal/callmgr/candidate"
)

// SimRadio is an in-process Radio used for local operation and testing, in
// the same spirit as a loopback transport: every dial succeeds unless a
// scripted failure is installed for the slot.
type SimRadio struct {
	mu       sync.Mutex
	failures map[int][]*CallStateError // per-slot FIFO of scripted failures
	dials    []SimDial
}

// SimDial records one dial observed by the simulator.
type SimDial struct {
	Slot    int
	Address string
	Args    DialArgs
}

// NewSimRadio creates a simulator with no scripted failures.
func NewSimRadio() *SimRadio {
	return &SimRadio{failures: make(map[int][]*CallStateError)}
}

// FailNext scripts the next dial on the slot to fail with the given error.
// Scripted failures are consumed in order.
func (r *SimRadio) FailNext(slot int, err *CallStateError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[slot] = append(r.failures[slot], err)
}

// Dials returns all dials observed so far.
func (r *SimRadio) Dials() []SimDial {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SimDial, len(r.dials))
	copy(out, r.dials)
	return out
}

// Dial implements Radio.
func (r *SimRadio) Dial(ctx context.Context, cand candidate.Candidate, address string, args DialArgs) (CallHandle, error) {
	r.mu.Lock()
	r.dials = append(r.dials, SimDial{Slot: cand.Slot, Address: address, Args: args})
	if q := r.failures[cand.Slot]; len(q) > 0 {
		err := q[0]
		r.failures[cand.Slot] = q[1:]
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	h := &simHandle{id: uuid.New().String()}
	slog.Debug("[SimRadio] dial accepted",
		"slot", cand.Slot,
		"address", address,
		"emergency", args.IsEmergency,
		"call_id", h.id,
	)
	return h, nil
}

type simHandle struct {
	id string
}

func (h *simHandle) ID() string { return h.id }

func (h *simHandle) Hangup(ctx context.Context) error { return nil }

// Ensure SimRadio implements Radio.
var _ Radio = (*SimRadio)(nil)

// SimRadioOnHelper powers a radio on after a fixed delay and notifies the
// listener. It flips the candidate's RadioOn flag in the backing set so the
// listener's IsOkToCall re-evaluation sees the new state.
type SimRadioOnHelper struct {
	Set   *candidate.StaticSet
	Delay time.Duration
}

// TriggerRadioOnAndListen implements RadioOnHelper.
func (h *SimRadioOnHelper) TriggerRadioOnAndListen(l RadioOnStateListener, forEmergency bool, cand candidate.Candidate, isTest bool) {
	go func() {
		if h.Delay > 0 {
			time.Sleep(h.Delay)
		}
		if h.Set != nil {
			h.Set.SetRadioOn(cand.Slot, true)
		}
		updated := cand
		updated.RadioOn = true
		if h.Set != nil {
			if c, ok := h.Set.BySlot(cand.Slot); ok {
				updated = c
			}
		}
		if l.IsOkToCall(updated, updated.Tier) {
			l.OnComplete(true, true)
			return
		}
		l.OnComplete(true, false)
	}()
}

// Ensure SimRadioOnHelper implements RadioOnHelper.
var _ RadioOnHelper = (*SimRadioOnHelper)(nil)
