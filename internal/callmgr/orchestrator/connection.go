package orchestrator

import (
	"fmt"
	"sync"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/disconnect"
	"github.com/sebas/towerline/internal/radiolink"
)

// CallState represents the current state of a managed call.
type CallState int

const (
	// StateNew indicates the call has been created but nothing issued yet.
	StateNew CallState = iota
	// StateWaitingRadio indicates the dial is parked on radio power-on.
	StateWaitingRadio
	// StateWaitingDomain indicates domain selection is in flight.
	StateWaitingDomain
	// StateDialing indicates a dial attempt is outstanding at the radio.
	StateDialing
	// StateRinging indicates an incoming call awaiting answer.
	StateRinging
	// StateActive indicates the radio accepted the call.
	StateActive
	// StateDisconnected indicates the call has terminated.
	StateDisconnected
)

// String returns the string representation of CallState.
func (s CallState) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateWaitingRadio:
		return "WaitingRadio"
	case StateWaitingDomain:
		return "WaitingDomain"
	case StateDialing:
		return "Dialing"
	case StateRinging:
		return "Ringing"
	case StateActive:
		return "Active"
	case StateDisconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// IsTerminal returns true if the call is in a terminal state.
func (s CallState) IsTerminal() bool {
	return s == StateDisconnected
}

// Direction indicates whether the call was placed or received here.
type Direction int

const (
	// DirectionOutgoing represents a call placed by this device.
	DirectionOutgoing Direction = iota
	// DirectionIncoming represents a call received by this device.
	DirectionIncoming
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	switch d {
	case DirectionOutgoing:
		return "Outgoing"
	case DirectionIncoming:
		return "Incoming"
	default:
		return fmt.Sprintf("Unknown(%d)", d)
	}
}

// CallSurface receives call lifecycle notifications. Callbacks fire from the
// orchestrator's serialized execution context and must not call back into
// the orchestrator synchronously.
type CallSurface interface {
	// OnStateChanged fires on every state transition.
	OnStateChanged(c *Connection, state CallState)

	// OnCandidateChanged fires when retry or failover moves the call to a
	// different endpoint. It fires exactly once per actual change.
	OnCandidateChanged(c *Connection, cand candidate.Candidate)

	// OnDisconnected fires once when the call terminates.
	OnDisconnected(c *Connection, cause disconnect.Cause)
}

// NopSurface is a CallSurface that ignores everything.
type NopSurface struct{}

func (NopSurface) OnStateChanged(*Connection, CallState)                 {}
func (NopSurface) OnCandidateChanged(*Connection, candidate.Candidate)   {}
func (NopSurface) OnDisconnected(*Connection, disconnect.Cause)          {}

// Connection is one managed call. State transitions happen only on the
// orchestrator's serialized queue; the mutex makes reads safe from other
// goroutines (API handlers, surfaces).
type Connection struct {
	id           string
	address      string
	direction    Direction
	emergency    bool
	normalRouted bool
	category     int
	isTest       bool
	external     bool
	surface      CallSurface

	mu     sync.Mutex
	state  CallState
	cand   candidate.Candidate
	cause  disconnect.Cause
	handle radiolink.CallHandle
}

func newConnection(id, address string, dir Direction, surface CallSurface, cand candidate.Candidate) *Connection {
	if surface == nil {
		surface = NopSurface{}
	}
	return &Connection{
		id:        id,
		address:   address,
		direction: dir,
		surface:   surface,
		state:     StateNew,
		cand:      cand,
	}
}

// ID returns the call identifier.
func (c *Connection) ID() string { return c.id }

// Address returns the dialed or calling address.
func (c *Connection) Address() string { return c.address }

// Direction returns whether the call is outgoing or incoming.
func (c *Connection) Direction() Direction { return c.direction }

// IsEmergency reports whether the call is an emergency call. A normal call
// can be upgraded mid-flight when the network demands an emergency redial.
func (c *Connection) IsEmergency() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emergency
}

// markEmergency upgrades the call to an emergency call.
func (c *Connection) markEmergency(category int) {
	c.mu.Lock()
	c.emergency = true
	c.category = category
	c.mu.Unlock()
}

// IsExternal reports whether the call lives on another device and is only
// mirrored here.
func (c *Connection) IsExternal() bool { return c.external }

// State returns the current call state.
func (c *Connection) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Candidate returns the endpoint the call currently targets.
func (c *Connection) Candidate() candidate.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cand
}

// Cause returns the disconnect cause, or disconnect.None while the call is
// in progress.
func (c *Connection) Cause() disconnect.Cause {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// setState transitions the call and notifies the surface. No-op when the
// state does not change or the call is already terminal.
func (c *Connection) setState(state CallState) {
	c.mu.Lock()
	if c.state == state || c.state.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	c.surface.OnStateChanged(c, state)
}

// updateCandidate moves the call to a new endpoint. The surface is notified
// only when the endpoint actually changes.
func (c *Connection) updateCandidate(cand candidate.Candidate) bool {
	c.mu.Lock()
	changed := c.cand.Slot != cand.Slot || c.cand.SubscriptionID != cand.SubscriptionID
	c.cand = cand
	c.mu.Unlock()
	if changed {
		c.surface.OnCandidateChanged(c, cand)
	}
	return changed
}

// markDisconnected records the cause and transitions to Disconnected.
// Returns false when the call was already terminal.
func (c *Connection) markDisconnected(cause disconnect.Cause) bool {
	c.mu.Lock()
	if c.state.IsTerminal() {
		c.mu.Unlock()
		return false
	}
	c.state = StateDisconnected
	c.cause = cause
	c.mu.Unlock()
	c.surface.OnStateChanged(c, StateDisconnected)
	c.surface.OnDisconnected(c, cause)
	return true
}

// attach stores the radio handle for an accepted call.
func (c *Connection) attach(h radiolink.CallHandle) {
	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()
}

// takeHandle returns and clears the radio handle, if any.
func (c *Connection) takeHandle() radiolink.CallHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handle
	c.handle = nil
	return h
}
