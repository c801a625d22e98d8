package events

import "log/slog"

// Publisher delivers a built event to its subject. Implementations may ship
// events to a broker; the default logs them.
type Publisher interface {
	Publish(ev Event)
}

// LogPublisher writes events to the structured log. It is the default sink
// when no broker is wired.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(ev Event) {
	slog.Info("[Events] publish",
		"subject", ev.Subject(),
		"type", string(ev.Type()),
		"call_id", ev.CallID(),
	)
}

// Sink couples a Builder with a Publisher and exposes the lifecycle
// notifications the orchestrator emits. A nil Sink discards everything, so
// callers never need to guard.
type Sink struct {
	builder *Builder
	pub     Publisher
}

// NewSink creates a sink. A nil publisher falls back to LogPublisher.
func NewSink(nodeID string, pub Publisher) *Sink {
	if pub == nil {
		pub = LogPublisher{}
	}
	return &Sink{builder: NewBuilder(nodeID), pub: pub}
}

// Originated publishes a CallOriginatedEvent.
func (s *Sink) Originated(callID, address string, emergency bool, category int, isTest bool, slot, subID int) {
	if s == nil {
		return
	}
	cb := s.builder.CallOriginated(callID).Address(address).Endpoint(slot, subID)
	if emergency {
		cb.Emergency(category, isTest)
	}
	s.pub.Publish(cb.Build())
}

// Dialing publishes a CallDialingEvent.
func (s *Sink) Dialing(callID string, slot int, domain string, redial, emergency bool) {
	if s == nil {
		return
	}
	s.pub.Publish(s.builder.CallDialing(callID).
		Slot(slot).
		Domain(domain).
		Redial(redial).
		Emergency(emergency).
		Build())
}

// CandidateChanged publishes a CandidateChangedEvent.
func (s *Sink) CandidateChanged(callID string, fromSlot, toSlot, subID int) {
	if s == nil {
		return
	}
	s.pub.Publish(s.builder.CandidateChanged(callID).
		Move(fromSlot, toSlot).
		Subscription(subID).
		Build())
}

// DomainSelected publishes a DomainSelectedEvent.
func (s *Sink) DomainSelected(callID, domain string, redial bool) {
	if s == nil {
		return
	}
	s.pub.Publish(s.builder.DomainSelected(callID).Domain(domain).Redial(redial).Build())
}

// Disconnected publishes a CallDisconnectedEvent.
func (s *Sink) Disconnected(callID, cause, reason string) {
	if s == nil {
		return
	}
	s.pub.Publish(s.builder.CallDisconnected(callID).Cause(cause, reason).Build())
}
