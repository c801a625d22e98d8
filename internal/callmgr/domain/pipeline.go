package domain

import (
	"log/slog"
	"sync"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/disconnect"
	"github.com/sebas/towerline/internal/callmgr/selection"
	"github.com/sebas/towerline/internal/callmgr/serial"
	"github.com/sebas/towerline/internal/radiolink"
)

// Session is the per-call state of an in-flight domain resolution.
//
// Fields other than the ones guarded by the pipeline mutex are confined to
// the orchestrator's serialized queue: they are mutated only by pipeline
// continuations running on it.
type Session struct {
	Attrs     Attributes
	Candidate candidate.Candidate
	// LastDomain is the most recently resolved domain.
	LastDomain Domain

	conn      Connection
	attempted map[int]bool
	// gen is bumped every time a new async operation is issued for the
	// session; continuations carrying a stale gen discard their result.
	gen int

	// guarded by Pipeline.mu
	phase     Phase
	cancelled bool
}

// CallID returns the call this session belongs to.
func (s *Session) CallID() string { return s.Attrs.CallID }

// Pipeline coordinates domain resolution for all calls. Its methods must be
// invoked from the orchestrator's serialized queue; continuations on
// collaborator futures are posted back onto that queue, so two transitions
// for the same call never run concurrently.
type Pipeline struct {
	queue      *serial.Queue
	resolver   Resolver
	tracker    Tracker
	candidates candidate.Set
	dialer     Dialer
	failures   FailureHandler

	mu       sync.Mutex
	sessions map[string]*Session
}

// Config contains the pipeline's collaborators. All fields are required.
type Config struct {
	Queue      *serial.Queue
	Resolver   Resolver
	Tracker    Tracker
	Candidates candidate.Set
	Dialer     Dialer
	Failures   FailureHandler
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		queue:      cfg.Queue,
		resolver:   cfg.Resolver,
		tracker:    cfg.Tracker,
		candidates: cfg.Candidates,
		dialer:     cfg.Dialer,
		failures:   cfg.Failures,
		sessions:   make(map[string]*Session),
	}
}

// Supported reports whether domain selection is available.
func (p *Pipeline) Supported() bool {
	return p.resolver != nil && p.resolver.Supported()
}

// StartEmergencyCall begins resolution for an emergency call: the tracker's
// emergency-start future first, then the emergency selection connection.
func (p *Pipeline) StartEmergencyCall(attrs Attributes) *Session {
	s := p.newSession(attrs)
	p.setPhase(s, PhaseAwaitingEmergencyStart)
	p.startEmergency(s)
	return s
}

func (p *Pipeline) startEmergency(s *Session) {
	gen := p.bump(s)
	slog.Info("[DomainSelection] starting emergency call",
		"call_id", s.CallID(),
		"slot", s.Candidate.Slot,
		"test", s.Attrs.IsTest,
	)
	fut := p.tracker.StartEmergencyCall(s.Candidate, s.CallID(), s.Attrs.IsTest)
	go func() {
		cause, ok := <-fut
		if !ok {
			return
		}
		p.queue.Post(func() { p.onEmergencyStarted(s, gen, cause) })
	}()
}

func (p *Pipeline) onEmergencyStarted(s *Session, gen int, cause disconnect.Cause) {
	if p.discarded(s, gen) {
		return
	}
	if cause.IsDisconnected() {
		p.fail(s, cause)
		return
	}
	conn, ok := p.resolver.SelectionConnection(s.Candidate, SelectorCalling, true)
	if !ok {
		p.fail(s, disconnect.NoService())
		return
	}
	s.conn = conn
	p.createEmergencyConnection(s)
}

func (p *Pipeline) createEmergencyConnection(s *Session) {
	p.setPhase(s, PhaseAwaitingDomain)
	gen := p.bump(s)
	fut := s.conn.CreateEmergencyConnection(p.attrsFor(s), &terminationRelay{p: p, s: s, gen: gen})
	p.awaitDomain(s, gen, fut, false)
}

// StartNormalCall begins resolution for a non-emergency call: the normal
// selection connection directly, without the emergency-start step.
func (p *Pipeline) StartNormalCall(attrs Attributes) *Session {
	s := p.newSession(attrs)
	conn, ok := p.resolver.SelectionConnection(s.Candidate, SelectorCalling, false)
	if !ok {
		p.fail(s, disconnect.NoService())
		return s
	}
	s.conn = conn
	p.setPhase(s, PhaseAwaitingDomain)
	gen := p.bump(s)
	fut := conn.CreateNormalConnection(p.attrsFor(s), &terminationRelay{p: p, s: s, gen: gen})
	p.awaitDomain(s, gen, fut, false)
	return s
}

func (p *Pipeline) awaitDomain(s *Session, gen int, fut <-chan Domain, redial bool) {
	go func() {
		d, ok := <-fut
		if !ok {
			return
		}
		p.queue.Post(func() { p.onDomainSelected(s, gen, d, redial) })
	}()
}

func (p *Pipeline) onDomainSelected(s *Session, gen int, d Domain, redial bool) {
	if p.discarded(s, gen) {
		return
	}
	// Invalidate any late rejection callback from the connection that just
	// resolved; failover only happens before a dial.
	p.bump(s)
	s.LastDomain = d
	p.setPhase(s, PhaseDialed)
	slog.Info("[DomainSelection] domain resolved",
		"call_id", s.CallID(),
		"slot", s.Candidate.Slot,
		"domain", d.String(),
		"redial", redial,
	)
	p.dialer.DialWithDomain(s, d, redial)
}

// onSelectionTerminated handles a candidate rejection from the selection
// layer. It fails over to the alternate candidate and restarts resolution;
// this happens before any dial and is independent of the modem-level retry
// rotation.
func (p *Pipeline) onSelectionTerminated(s *Session, gen int, reason RejectionReason) {
	if p.discarded(s, gen) {
		return
	}
	s.attempted[s.Candidate.Slot] = true
	slog.Warn("[DomainSelection] candidate rejected",
		"call_id", s.CallID(),
		"slot", s.Candidate.Slot,
		"reason", reason.String(),
	)

	alt, ok := selection.Alternate(p.candidates.Candidates(), s.Candidate, s.attempted)
	if !ok {
		p.fail(s, disconnect.FromSelectionRejection(reason == RejectionPermanent))
		return
	}
	conn, ok := p.resolver.SelectionConnection(alt, SelectorCalling, true)
	if !ok {
		p.fail(s, disconnect.FromSelectionRejection(reason == RejectionPermanent))
		return
	}
	s.Candidate = alt
	s.conn = conn
	p.createEmergencyConnection(s)
}

// MaybeReselectDomain re-resolves the domain after a dial failed with the
// given precise cause, then redials. When the failure carries the IMS
// alternate-emergency-call signal, the call is first re-run through the
// emergency-start step on the underlying candidate, carrying over the
// emergency category. Returns false when no session or connection is
// associated with the call, in which case the caller owns the failure.
func (p *Pipeline) MaybeReselectDomain(callID string, precise int, reason *radiolink.ReasonInfo) bool {
	s := p.session(callID)
	if s == nil || s.conn == nil || p.isCancelled(s) {
		return false
	}

	if reason != nil && reason.Code == radiolink.ReasonSIPAlternateEmergencyCall {
		// The network wants this redialed as an emergency call. Restart
		// from the emergency-start step on the slot's current candidate.
		s.Attrs.Emergency = true
		if cand, ok := p.candidates.BySlot(s.Candidate.Slot); ok {
			s.Candidate = cand
		}
		p.setPhase(s, PhaseAwaitingEmergencyStart)
		p.startEmergency(s)
		return true
	}

	p.setPhase(s, PhaseAwaitingReselection)
	gen := p.bump(s)
	slog.Info("[DomainSelection] reselecting domain",
		"call_id", s.CallID(),
		"slot", s.Candidate.Slot,
		"precise", precise,
	)
	fut := s.conn.ReselectDomain(p.attrsFor(s))
	p.awaitDomain(s, gen, fut, true)
	return true
}

// Cancel marks the session cancelled after a local hangup. Every pending
// continuation observes the flag before acting, so no selection connection
// is created and no dial is issued afterwards.
func (p *Pipeline) Cancel(callID string) {
	s := p.session(callID)
	if s == nil {
		return
	}
	p.mu.Lock()
	s.cancelled = true
	if !s.phase.IsTerminal() {
		s.phase = PhaseCancelled
	}
	p.mu.Unlock()
	if s.conn != nil {
		s.conn.Cancel()
	}
	slog.Debug("[DomainSelection] session cancelled", "call_id", callID)
}

// Release drops the session once the call reaches a terminal state.
func (p *Pipeline) Release(callID string) {
	p.mu.Lock()
	delete(p.sessions, callID)
	p.mu.Unlock()
}

// SessionPhase returns the current phase of the call's session.
func (p *Pipeline) SessionPhase(callID string) (Phase, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[callID]
	if !ok {
		return PhaseIdle, false
	}
	return s.phase, true
}

// --- internals ---

// newSession creates the session for a call, superseding (and cancelling)
// any prior session for the same call id. At most one session per call id
// is ever live.
func (p *Pipeline) newSession(attrs Attributes) *Session {
	s := &Session{
		Attrs:     attrs,
		Candidate: attrs.Candidate,
		attempted: make(map[int]bool),
	}
	p.mu.Lock()
	if old, ok := p.sessions[attrs.CallID]; ok {
		old.cancelled = true
		if !old.phase.IsTerminal() {
			old.phase = PhaseCancelled
		}
	}
	p.sessions[attrs.CallID] = s
	p.mu.Unlock()
	return s
}

func (p *Pipeline) session(callID string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[callID]
}

func (p *Pipeline) setPhase(s *Session, phase Phase) {
	p.mu.Lock()
	s.phase = phase
	p.mu.Unlock()
}

func (p *Pipeline) isCancelled(s *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.cancelled
}

// discarded reports whether a continuation's result must be thrown away:
// the session was cancelled by hangup, superseded, or a newer async
// operation was issued since the continuation was registered.
func (p *Pipeline) discarded(s *Session, gen int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.cancelled {
		if !s.phase.IsTerminal() {
			s.phase = PhaseCancelled
		}
		return true
	}
	return gen != s.gen
}

func (p *Pipeline) bump(s *Session) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.gen++
	return s.gen
}

func (p *Pipeline) attrsFor(s *Session) Attributes {
	attrs := s.Attrs
	attrs.Candidate = s.Candidate
	return attrs
}

func (p *Pipeline) fail(s *Session, cause disconnect.Cause) {
	p.setPhase(s, PhaseTerminated)
	slog.Warn("[DomainSelection] selection failed",
		"call_id", s.CallID(),
		"cause", cause.String(),
	)
	p.failures.OnSelectionFailure(s.CallID(), cause)
}

// terminationRelay posts rejection callbacks onto the serialized queue.
type terminationRelay struct {
	p   *Pipeline
	s   *Session
	gen int
}

// OnSelectionTerminated implements SelectionCallback.
func (r *terminationRelay) OnSelectionTerminated(reason RejectionReason) {
	r.p.queue.Post(func() { r.p.onSelectionTerminated(r.s, r.gen, reason) })
}
