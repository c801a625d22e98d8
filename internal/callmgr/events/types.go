// Package events provides call lifecycle event definitions and publishing
// infrastructure. Designed for future NATS JetStream integration while
// remaining transport-agnostic.
package events

import "time"

// EventType identifies the type of call event
type EventType string

const (
	// CallOriginated fires when an outgoing call enters the orchestrator
	CallOriginated EventType = "call.originated"
	// CallDialing fires when a dial attempt is issued to the radio
	CallDialing EventType = "call.dialing"
	// CandidateChanged fires when retry or failover moves the call to a
	// different candidate endpoint
	CandidateChanged EventType = "call.candidate_changed"
	// DomainSelected fires when the selection pipeline resolves a domain
	DomainSelected EventType = "call.domain_selected"
	// CallDisconnected fires when the call terminates (any reason)
	CallDisconnected EventType = "call.disconnected"
)

// Event is the base interface for all call events
type Event interface {
	// Type returns the event type for routing/filtering
	Type() EventType
	// Subject returns the subject this event should publish to
	Subject() string
	// Timestamp returns when the event occurred
	Timestamp() time.Time
	// CallID returns the primary correlation ID
	CallID() string
}

// BaseEvent contains fields common to all events
type BaseEvent struct {
	// EventID is a unique identifier for this event instance (for deduplication)
	EventID string `json:"event_id"`
	// EventType identifies the event
	EventType EventType `json:"event_type"`
	// EventTime is when the event occurred (RFC3339Nano)
	EventTime time.Time `json:"event_time"`
	// CallUUID is the orchestrator's call identifier
	CallUUID string `json:"call_uuid"`
	// NodeID identifies the towerline instance (for distributed tracing)
	NodeID string `json:"node_id,omitempty"`
}

func (e *BaseEvent) Type() EventType      { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e *BaseEvent) CallID() string       { return e.CallUUID }

// Subject returns the subject for routing
// Format: towerline.calls.<call_uuid>.<event_type_suffix>
func (e *BaseEvent) Subject() string {
	suffix := string(e.EventType)[5:] // strip "call." prefix
	return SubjectCalls + "." + e.CallUUID + "." + suffix
}

// CallOriginatedEvent fires when an outgoing call enters the orchestrator
type CallOriginatedEvent struct {
	BaseEvent
	Address   string `json:"address"`
	Emergency bool   `json:"emergency"`
	// Category is the emergency service category, 0 when unspecified
	Category       int  `json:"category,omitempty"`
	TestEmergency  bool `json:"test_emergency,omitempty"`
	Slot           int  `json:"slot"`
	SubscriptionID int  `json:"subscription_id"`
}

// CallDialingEvent fires when a dial attempt is issued to the radio
type CallDialingEvent struct {
	BaseEvent
	Slot int `json:"slot"`
	// Domain is the resolved network domain, empty for direct dials
	Domain string `json:"domain,omitempty"`
	// Redial marks post-failure attempts (rotation or reselection)
	Redial    bool `json:"redial"`
	Emergency bool `json:"emergency"`
}

// CandidateChangedEvent fires when the call moves to a different endpoint
type CandidateChangedEvent struct {
	BaseEvent
	FromSlot       int `json:"from_slot"`
	ToSlot         int `json:"to_slot"`
	SubscriptionID int `json:"subscription_id"`
}

// DomainSelectedEvent fires when the selection pipeline resolves a domain
type DomainSelectedEvent struct {
	BaseEvent
	Domain string `json:"domain"`
	Redial bool   `json:"redial"`
}

// CallDisconnectedEvent fires when the call terminates
type CallDisconnectedEvent struct {
	BaseEvent
	Cause  string `json:"cause"`
	Reason string `json:"reason,omitempty"`
}
