package domain

import (
	"sync"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/disconnect"
)

// LocalResolver is an in-process Resolver for standalone operation. It
// resolves every request to a fixed domain, optionally rejecting scripted
// slots once, the way a live selection service refuses a candidate that
// cannot register.
type LocalResolver struct {
	// Domain is the domain every successful resolution returns.
	Domain Domain

	mu         sync.Mutex
	rejectOnce map[int]RejectionReason
}

// NewLocalResolver creates a resolver that always selects d.
func NewLocalResolver(d Domain) *LocalResolver {
	return &LocalResolver{Domain: d, rejectOnce: make(map[int]RejectionReason)}
}

// RejectNext makes the next connection for the slot reject instead of
// resolving.
func (r *LocalResolver) RejectNext(slot int, reason RejectionReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejectOnce[slot] = reason
}

// Supported implements Resolver.
func (r *LocalResolver) Supported() bool { return true }

// SelectionConnection implements Resolver.
func (r *LocalResolver) SelectionConnection(cand candidate.Candidate, sel SelectorType, emergency bool) (Connection, bool) {
	r.mu.Lock()
	reason, reject := r.rejectOnce[cand.Slot]
	if reject {
		delete(r.rejectOnce, cand.Slot)
	}
	r.mu.Unlock()
	return &localConnection{domain: r.Domain, reject: reject, reason: reason}, true
}

type localConnection struct {
	domain Domain
	reject bool
	reason RejectionReason

	mu        sync.Mutex
	cancelled bool
}

func (c *localConnection) resolve(cb SelectionCallback) <-chan Domain {
	ch := make(chan Domain, 1)
	c.mu.Lock()
	cancelled := c.cancelled
	c.mu.Unlock()
	switch {
	case cancelled:
		close(ch)
	case c.reject:
		// The future never resolves; the rejection arrives through the
		// callback and the channel is closed so waiters discard it.
		close(ch)
		go cb.OnSelectionTerminated(c.reason)
	default:
		ch <- c.domain
	}
	return ch
}

// CreateEmergencyConnection implements Connection.
func (c *localConnection) CreateEmergencyConnection(attrs Attributes, cb SelectionCallback) <-chan Domain {
	return c.resolve(cb)
}

// CreateNormalConnection implements Connection.
func (c *localConnection) CreateNormalConnection(attrs Attributes, cb SelectionCallback) <-chan Domain {
	return c.resolve(cb)
}

// ReselectDomain implements Connection.
func (c *localConnection) ReselectDomain(attrs Attributes) <-chan Domain {
	ch := make(chan Domain, 1)
	c.mu.Lock()
	cancelled := c.cancelled
	c.mu.Unlock()
	if cancelled {
		close(ch)
	} else {
		ch <- c.domain
	}
	return ch
}

// Cancel implements Connection.
func (c *localConnection) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

// Ensure LocalResolver implements Resolver.
var _ Resolver = (*LocalResolver)(nil)

// LocalTracker is an in-process Tracker whose emergency-start future
// resolves immediately with disconnect.None.
type LocalTracker struct{}

// StartEmergencyCall implements Tracker.
func (LocalTracker) StartEmergencyCall(cand candidate.Candidate, callID string, isTest bool) <-chan disconnect.Cause {
	ch := make(chan disconnect.Cause, 1)
	ch <- disconnect.None
	return ch
}

// Ensure LocalTracker implements Tracker.
var _ Tracker = LocalTracker{}

// UnsupportedResolver is a Resolver for devices without domain selection;
// calls dial directly without a domain hint.
type UnsupportedResolver struct{}

// Supported implements Resolver.
func (UnsupportedResolver) Supported() bool { return false }

// SelectionConnection implements Resolver.
func (UnsupportedResolver) SelectionConnection(candidate.Candidate, SelectorType, bool) (Connection, bool) {
	return nil, false
}

// Ensure UnsupportedResolver implements Resolver.
var _ Resolver = UnsupportedResolver{}
