// Package domain implements the asynchronous pipeline resolving the network
// domain (circuit-switched or packet-switched) an outgoing call is placed
// over, including candidate failover on selection rejection and mid-call
// re-selection after a dial failure.
package domain

import (
	"fmt"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/disconnect"
)

// Domain is the network path a call uses.
type Domain int

const (
	// DomainNone indicates no domain was resolved (direct dial).
	DomainNone Domain = iota
	// DomainCS is legacy circuit-switched voice.
	DomainCS
	// DomainPS is packet-switched / IP-multimedia.
	DomainPS
)

// String returns the string representation of Domain.
func (d Domain) String() string {
	switch d {
	case DomainNone:
		return "None"
	case DomainCS:
		return "CS"
	case DomainPS:
		return "PS"
	default:
		return fmt.Sprintf("Unknown(%d)", d)
	}
}

// SelectorType identifies which selector a connection is requested for.
type SelectorType int

const (
	// SelectorCalling resolves domains for voice calls.
	SelectorCalling SelectorType = iota + 1
	// SelectorSMS resolves domains for SMS delivery.
	SelectorSMS
)

// RejectionReason is the code passed to OnSelectionTerminated when the
// selection layer refuses a candidate.
type RejectionReason int

const (
	// RejectionTemporary indicates the candidate may work again later.
	RejectionTemporary RejectionReason = iota + 1
	// RejectionPermanent indicates the candidate will not work for this call.
	RejectionPermanent
)

// String returns the string representation of RejectionReason.
func (r RejectionReason) String() string {
	switch r {
	case RejectionTemporary:
		return "TemporaryFailure"
	case RejectionPermanent:
		return "PermanentFailure"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}

// Phase is the state of a selection session.
type Phase int

const (
	// PhaseIdle indicates no resolution is in flight.
	PhaseIdle Phase = iota
	// PhaseAwaitingEmergencyStart waits on the emergency-state tracker.
	PhaseAwaitingEmergencyStart
	// PhaseAwaitingDomain waits on the selection connection's future.
	PhaseAwaitingDomain
	// PhaseDialed indicates the dial was issued with the resolved domain.
	PhaseDialed
	// PhaseAwaitingReselection waits on a post-dial-failure re-selection.
	PhaseAwaitingReselection
	// PhaseCancelled indicates a local hangup discarded the session.
	PhaseCancelled
	// PhaseTerminated indicates the session failed terminally.
	PhaseTerminated
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseAwaitingEmergencyStart:
		return "AwaitingEmergencyStart"
	case PhaseAwaitingDomain:
		return "AwaitingDomain"
	case PhaseDialed:
		return "Dialed"
	case PhaseAwaitingReselection:
		return "AwaitingReselection"
	case PhaseCancelled:
		return "Cancelled"
	case PhaseTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// IsTerminal reports whether the phase ends the session.
func (p Phase) IsTerminal() bool {
	return p == PhaseCancelled || p == PhaseTerminated
}

// Attributes describes the call a domain is being resolved for.
type Attributes struct {
	CallID    string
	Address   string
	Emergency bool
	// Category is the emergency service category (0 when unspecified).
	// Carried over across normal-to-emergency redials.
	Category int
	IsTest   bool
	// Candidate is the endpoint the resolution targets.
	Candidate candidate.Candidate
}

// SelectionCallback receives the termination signal from the selection layer.
type SelectionCallback interface {
	// OnSelectionTerminated fires when the selection layer refuses the
	// candidate before any dial.
	OnSelectionTerminated(reason RejectionReason)
}

// Connection is a handle to the collaborator performing one candidate's
// asynchronous domain resolution. Futures resolve with the selected domain;
// rejection is reported through the SelectionCallback instead. A closed
// future means the resolution was abandoned and its result must be
// discarded.
type Connection interface {
	// CreateEmergencyConnection resolves the domain for an emergency call.
	CreateEmergencyConnection(attrs Attributes, cb SelectionCallback) <-chan Domain

	// CreateNormalConnection resolves the domain for a normal call.
	CreateNormalConnection(attrs Attributes, cb SelectionCallback) <-chan Domain

	// ReselectDomain re-resolves the domain after a dial failure.
	ReselectDomain(attrs Attributes) <-chan Domain

	// Cancel abandons any in-flight resolution.
	Cancel()
}

// Resolver hands out selection connections per candidate.
type Resolver interface {
	// Supported reports whether domain selection is available at all.
	// When false, calls dial directly without a domain hint.
	Supported() bool

	// SelectionConnection returns a connection for the candidate, or
	// ok=false when the candidate cannot be served.
	SelectionConnection(cand candidate.Candidate, sel SelectorType, emergency bool) (Connection, bool)
}

// Tracker is the external emergency-state tracker. The future resolves with
// disconnect.None on success, or with the cause the call must fail with.
type Tracker interface {
	StartEmergencyCall(cand candidate.Candidate, callID string, isTest bool) <-chan disconnect.Cause
}

// Dialer issues the actual dial once a domain is resolved. Implemented by
// the orchestrator; invoked from the serialized execution context.
type Dialer interface {
	// DialWithDomain dials the session's call with the resolved domain
	// attached. redial is true for post-reselection attempts.
	DialWithDomain(s *Session, d Domain, redial bool)
}

// FailureHandler receives terminal selection failures.
type FailureHandler interface {
	OnSelectionFailure(callID string, cause disconnect.Cause)
}
