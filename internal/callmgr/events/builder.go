package events

import (
	"time"

	"github.com/google/uuid"
)

// Builder provides fluent construction of call events with consistent defaults.
type Builder struct {
	nodeID string
}

// NewBuilder creates an event builder with global defaults.
func NewBuilder(nodeID string) *Builder {
	return &Builder{nodeID: nodeID}
}

// newBase creates a BaseEvent with common fields populated.
func (b *Builder) newBase(eventType EventType, callUUID string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventTime: time.Now().UTC(),
		CallUUID:  callUUID,
		NodeID:    b.nodeID,
	}
}

// CallOriginatedBuilder constructs CallOriginatedEvent.
type CallOriginatedBuilder struct {
	event *CallOriginatedEvent
}

// CallOriginated starts building a CallOriginatedEvent.
func (b *Builder) CallOriginated(callUUID string) *CallOriginatedBuilder {
	return &CallOriginatedBuilder{
		event: &CallOriginatedEvent{
			BaseEvent: b.newBase(CallOriginated, callUUID),
		},
	}
}

func (cb *CallOriginatedBuilder) Address(addr string) *CallOriginatedBuilder {
	cb.event.Address = addr
	return cb
}

func (cb *CallOriginatedBuilder) Emergency(category int, isTest bool) *CallOriginatedBuilder {
	cb.event.Emergency = true
	cb.event.Category = category
	cb.event.TestEmergency = isTest
	return cb
}

func (cb *CallOriginatedBuilder) Endpoint(slot, subscriptionID int) *CallOriginatedBuilder {
	cb.event.Slot = slot
	cb.event.SubscriptionID = subscriptionID
	return cb
}

func (cb *CallOriginatedBuilder) Build() *CallOriginatedEvent {
	return cb.event
}

// CallDialingBuilder constructs CallDialingEvent.
type CallDialingBuilder struct {
	event *CallDialingEvent
}

// CallDialing starts building a CallDialingEvent.
func (b *Builder) CallDialing(callUUID string) *CallDialingBuilder {
	return &CallDialingBuilder{
		event: &CallDialingEvent{
			BaseEvent: b.newBase(CallDialing, callUUID),
		},
	}
}

func (cb *CallDialingBuilder) Slot(slot int) *CallDialingBuilder {
	cb.event.Slot = slot
	return cb
}

func (cb *CallDialingBuilder) Domain(domain string) *CallDialingBuilder {
	cb.event.Domain = domain
	return cb
}

func (cb *CallDialingBuilder) Redial(redial bool) *CallDialingBuilder {
	cb.event.Redial = redial
	return cb
}

func (cb *CallDialingBuilder) Emergency(emergency bool) *CallDialingBuilder {
	cb.event.Emergency = emergency
	return cb
}

func (cb *CallDialingBuilder) Build() *CallDialingEvent {
	return cb.event
}

// CandidateChangedBuilder constructs CandidateChangedEvent.
type CandidateChangedBuilder struct {
	event *CandidateChangedEvent
}

// CandidateChanged starts building a CandidateChangedEvent.
func (b *Builder) CandidateChanged(callUUID string) *CandidateChangedBuilder {
	return &CandidateChangedBuilder{
		event: &CandidateChangedEvent{
			BaseEvent: b.newBase(CandidateChanged, callUUID),
		},
	}
}

func (cb *CandidateChangedBuilder) Move(fromSlot, toSlot int) *CandidateChangedBuilder {
	cb.event.FromSlot = fromSlot
	cb.event.ToSlot = toSlot
	return cb
}

func (cb *CandidateChangedBuilder) Subscription(subscriptionID int) *CandidateChangedBuilder {
	cb.event.SubscriptionID = subscriptionID
	return cb
}

func (cb *CandidateChangedBuilder) Build() *CandidateChangedEvent {
	return cb.event
}

// DomainSelectedBuilder constructs DomainSelectedEvent.
type DomainSelectedBuilder struct {
	event *DomainSelectedEvent
}

// DomainSelected starts building a DomainSelectedEvent.
func (b *Builder) DomainSelected(callUUID string) *DomainSelectedBuilder {
	return &DomainSelectedBuilder{
		event: &DomainSelectedEvent{
			BaseEvent: b.newBase(DomainSelected, callUUID),
		},
	}
}

func (cb *DomainSelectedBuilder) Domain(domain string) *DomainSelectedBuilder {
	cb.event.Domain = domain
	return cb
}

func (cb *DomainSelectedBuilder) Redial(redial bool) *DomainSelectedBuilder {
	cb.event.Redial = redial
	return cb
}

func (cb *DomainSelectedBuilder) Build() *DomainSelectedEvent {
	return cb.event
}

// CallDisconnectedBuilder constructs CallDisconnectedEvent.
type CallDisconnectedBuilder struct {
	event *CallDisconnectedEvent
}

// CallDisconnected starts building a CallDisconnectedEvent.
func (b *Builder) CallDisconnected(callUUID string) *CallDisconnectedBuilder {
	return &CallDisconnectedBuilder{
		event: &CallDisconnectedEvent{
			BaseEvent: b.newBase(CallDisconnected, callUUID),
		},
	}
}

func (cb *CallDisconnectedBuilder) Cause(cause, reason string) *CallDisconnectedBuilder {
	cb.event.Cause = cause
	cb.event.Reason = reason
	return cb
}

func (cb *CallDisconnectedBuilder) Build() *CallDisconnectedEvent {
	return cb.event
}
