package domain

import (
	"sync"
	"testing"
	"time"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/disconnect"
	"github.com/sebas/towerline/internal/callmgr/serial"
	"github.com/sebas/towerline/internal/radiolink"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle gives in-flight continuations time to land on the queue, then
// drains it. Used before asserting that something did NOT happen.
func settle(q *serial.Queue) {
	time.Sleep(30 * time.Millisecond)
	q.Do(func() {})
}

// --- fakes ---

type trackerCall struct {
	slot   int
	callID string
	isTest bool
}

type fakeTracker struct {
	mu      sync.Mutex
	auto    bool // resolve futures immediately with disconnect.None
	calls   []trackerCall
	futures []chan disconnect.Cause
}

func (f *fakeTracker) StartEmergencyCall(cand candidate.Candidate, callID string, isTest bool) <-chan disconnect.Cause {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trackerCall{slot: cand.Slot, callID: callID, isTest: isTest})
	var ch chan disconnect.Cause
	if f.auto {
		ch = make(chan disconnect.Cause, 1)
		ch <- disconnect.None
	} else {
		ch = make(chan disconnect.Cause)
	}
	f.futures = append(f.futures, ch)
	return ch
}

func (f *fakeTracker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// resolve completes the i-th emergency-start future. Blocks until the
// pipeline has received the result.
func (f *fakeTracker) resolve(i int, cause disconnect.Cause) {
	f.mu.Lock()
	ch := f.futures[i]
	f.mu.Unlock()
	ch <- cause
}

type fakeConn struct {
	mu         sync.Mutex
	auto       Domain // resolve futures immediately when != DomainNone
	reject     RejectionReason
	rejectNext bool

	emergency int
	normal    int
	reselects int
	cancelled bool
	lastAttrs Attributes
	futures   []chan Domain
	cb        SelectionCallback
}

func (c *fakeConn) future() chan Domain {
	if c.auto != DomainNone {
		ch := make(chan Domain, 1)
		ch <- c.auto
		return ch
	}
	ch := make(chan Domain)
	c.futures = append(c.futures, ch)
	return ch
}

func (c *fakeConn) CreateEmergencyConnection(attrs Attributes, cb SelectionCallback) <-chan Domain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emergency++
	c.lastAttrs = attrs
	c.cb = cb
	if c.rejectNext {
		c.rejectNext = false
		reason := c.reject
		ch := make(chan Domain)
		close(ch)
		go cb.OnSelectionTerminated(reason)
		return ch
	}
	return c.future()
}

func (c *fakeConn) CreateNormalConnection(attrs Attributes, cb SelectionCallback) <-chan Domain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.normal++
	c.lastAttrs = attrs
	c.cb = cb
	return c.future()
}

func (c *fakeConn) ReselectDomain(attrs Attributes) <-chan Domain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reselects++
	c.lastAttrs = attrs
	return c.future()
}

func (c *fakeConn) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

// resolveFuture completes the i-th manually-created future. Blocks until
// the pipeline has received the result.
func (c *fakeConn) resolveFuture(i int, d Domain) {
	c.mu.Lock()
	ch := c.futures[i]
	c.mu.Unlock()
	ch <- d
}

func (c *fakeConn) counts() (emergency, normal, reselects int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emergency, c.normal, c.reselects
}

type resolverRequest struct {
	slot      int
	emergency bool
}

type fakeResolver struct {
	mu       sync.Mutex
	auto     Domain
	conns    map[int]*fakeConn
	requests []resolverRequest
}

func newFakeResolver(auto Domain) *fakeResolver {
	return &fakeResolver{auto: auto, conns: make(map[int]*fakeConn)}
}

func (r *fakeResolver) Supported() bool { return true }

func (r *fakeResolver) SelectionConnection(cand candidate.Candidate, sel SelectorType, emergency bool) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, resolverRequest{slot: cand.Slot, emergency: emergency})
	conn, ok := r.conns[cand.Slot]
	if !ok {
		conn = &fakeConn{auto: r.auto}
		r.conns[cand.Slot] = conn
	}
	return conn, true
}

func (r *fakeResolver) conn(slot int) *fakeConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[slot]
	if !ok {
		conn = &fakeConn{auto: r.auto}
		r.conns[slot] = conn
	}
	return conn
}

func (r *fakeResolver) requestedSlots() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.requests))
	for i, req := range r.requests {
		out[i] = req.slot
	}
	return out
}

type dialRecord struct {
	slot   int
	domain Domain
	redial bool
}

type fakeDialer struct {
	mu    sync.Mutex
	dials []dialRecord
}

func (d *fakeDialer) DialWithDomain(s *Session, dom Domain, redial bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, dialRecord{slot: s.Candidate.Slot, domain: dom, redial: redial})
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) dial(i int) dialRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[i]
}

type failureRecord struct {
	callID string
	cause  disconnect.Cause
}

type fakeFailures struct {
	mu       sync.Mutex
	failures []failureRecord
}

func (f *fakeFailures) OnSelectionFailure(callID string, cause disconnect.Cause) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failureRecord{callID: callID, cause: cause})
}

func (f *fakeFailures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures)
}

func (f *fakeFailures) last() failureRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[len(f.failures)-1]
}

// --- harness ---

type pipelineHarness struct {
	queue    *serial.Queue
	pipeline *Pipeline
	resolver *fakeResolver
	tracker  *fakeTracker
	dialer   *fakeDialer
	failures *fakeFailures
}

func newHarness(auto Domain) *pipelineHarness {
	h := &pipelineHarness{
		queue:    serial.NewQueue(),
		resolver: newFakeResolver(auto),
		tracker:  &fakeTracker{auto: true},
		dialer:   &fakeDialer{},
		failures: &fakeFailures{},
	}
	cands := []candidate.Candidate{
		{Slot: 0, SubscriptionID: 1, Tier: candidate.TierInService, Sim: candidate.SimReady, RadioOn: true},
		{Slot: 1, SubscriptionID: 2, Tier: candidate.TierEmergencyOnly, Sim: candidate.SimReady, RadioOn: true},
	}
	h.pipeline = NewPipeline(Config{
		Queue:      h.queue,
		Resolver:   h.resolver,
		Tracker:    h.tracker,
		Candidates: candidate.NewStaticSet(cands),
		Dialer:     h.dialer,
		Failures:   h.failures,
	})
	return h
}

func (h *pipelineHarness) emergencyAttrs(callID string) Attributes {
	return Attributes{
		CallID:    callID,
		Address:   "911",
		Emergency: true,
		Candidate: candidate.Candidate{Slot: 0, SubscriptionID: 1, Tier: candidate.TierInService, RadioOn: true},
	}
}

// --- tests ---

func TestEmergencyResolutionDialsOnceWithDomain(t *testing.T) {
	h := newHarness(DomainPS)

	h.queue.Do(func() { h.pipeline.StartEmergencyCall(h.emergencyAttrs("call-1")) })

	waitFor(t, "dial", func() bool { return h.dialer.count() == 1 })

	if got := h.tracker.callCount(); got != 1 {
		t.Errorf("emergency-start invoked %d times, want 1", got)
	}
	if e, _, _ := h.resolver.conn(0).counts(); e != 1 {
		t.Errorf("createEmergencyConnection invoked %d times, want 1", e)
	}
	d := h.dialer.dial(0)
	if d.domain != DomainPS || d.slot != 0 || d.redial {
		t.Errorf("dial = %+v, want slot 0 domain PS initial", d)
	}
	if phase, _ := h.pipeline.SessionPhase("call-1"); phase != PhaseDialed {
		t.Errorf("phase = %s, want Dialed", phase)
	}
}

func TestNormalCallSkipsEmergencyStart(t *testing.T) {
	h := newHarness(DomainPS)

	attrs := h.emergencyAttrs("call-1")
	attrs.Emergency = false
	h.queue.Do(func() { h.pipeline.StartNormalCall(attrs) })

	waitFor(t, "dial", func() bool { return h.dialer.count() == 1 })

	if got := h.tracker.callCount(); got != 0 {
		t.Errorf("emergency-start invoked %d times, want 0", got)
	}
	if _, n, _ := h.resolver.conn(0).counts(); n != 1 {
		t.Errorf("createNormalConnection invoked %d times, want 1", n)
	}
}

func TestRejectionFailsOverToAlternateBeforeDial(t *testing.T) {
	h := newHarness(DomainPS)
	conn0 := h.resolver.conn(0)
	conn0.rejectNext = true
	conn0.reject = RejectionPermanent

	h.queue.Do(func() { h.pipeline.StartEmergencyCall(h.emergencyAttrs("call-1")) })

	waitFor(t, "dial on alternate", func() bool { return h.dialer.count() == 1 })

	if d := h.dialer.dial(0); d.slot != 1 {
		t.Errorf("dialed slot %d, want alternate slot 1", d.slot)
	}
	slots := h.resolver.requestedSlots()
	if len(slots) != 2 || slots[0] != 0 || slots[1] != 1 {
		t.Errorf("resolver requests = %v, want [0 1]", slots)
	}
	if e, _, _ := h.resolver.conn(1).counts(); e != 1 {
		t.Errorf("alternate createEmergencyConnection invoked %d times, want 1", e)
	}
}

func TestRejectionExhaustionTerminatesWithSuppliedCause(t *testing.T) {
	h := newHarness(DomainPS)
	for slot := 0; slot <= 1; slot++ {
		conn := h.resolver.conn(slot)
		conn.rejectNext = true
		conn.reject = RejectionPermanent
	}

	h.queue.Do(func() { h.pipeline.StartEmergencyCall(h.emergencyAttrs("call-1")) })

	waitFor(t, "terminal failure", func() bool { return h.failures.count() == 1 })

	if got := h.dialer.count(); got != 0 {
		t.Errorf("dialed %d times after exhaustion, want 0", got)
	}
	f := h.failures.last()
	if f.cause.Code != disconnect.EmergencyPermanentFailure {
		t.Errorf("failure cause = %s, want EmergencyPermanentFailure", f.cause.Code)
	}
	if phase, _ := h.pipeline.SessionPhase("call-1"); phase != PhaseTerminated {
		t.Errorf("phase = %s, want Terminated", phase)
	}
}

func TestHangupDuringEmergencyStartDiscardsResult(t *testing.T) {
	h := newHarness(DomainPS)
	h.tracker.auto = false

	h.queue.Do(func() { h.pipeline.StartEmergencyCall(h.emergencyAttrs("call-1")) })
	waitFor(t, "emergency start", func() bool { return h.tracker.callCount() == 1 })

	h.queue.Do(func() { h.pipeline.Cancel("call-1") })

	// The tracker resolves after the hangup; the result must be discarded.
	h.tracker.resolve(0, disconnect.None)
	settle(h.queue)

	if e, _, _ := h.resolver.conn(0).counts(); e != 0 {
		t.Errorf("createEmergencyConnection invoked %d times after hangup, want 0", e)
	}
	if got := h.dialer.count(); got != 0 {
		t.Errorf("dialed %d times after hangup, want 0", got)
	}
	if phase, _ := h.pipeline.SessionPhase("call-1"); phase != PhaseCancelled {
		t.Errorf("phase = %s, want Cancelled", phase)
	}
}

func TestHangupDuringDomainResolutionDiscardsDial(t *testing.T) {
	h := newHarness(DomainNone) // manual futures
	conn0 := h.resolver.conn(0)

	h.queue.Do(func() { h.pipeline.StartEmergencyCall(h.emergencyAttrs("call-1")) })
	waitFor(t, "domain request", func() bool {
		e, _, _ := conn0.counts()
		return e == 1
	})

	h.queue.Do(func() { h.pipeline.Cancel("call-1") })
	conn0.resolveFuture(0, DomainPS)
	settle(h.queue)

	if got := h.dialer.count(); got != 0 {
		t.Errorf("dialed %d times after hangup, want 0", got)
	}
	conn0.mu.Lock()
	cancelled := conn0.cancelled
	conn0.mu.Unlock()
	if !cancelled {
		t.Error("connection was not cancelled on hangup")
	}
}

func TestReselectAfterDialFailureRedials(t *testing.T) {
	h := newHarness(DomainCS)

	h.queue.Do(func() { h.pipeline.StartEmergencyCall(h.emergencyAttrs("call-1")) })
	waitFor(t, "initial dial", func() bool { return h.dialer.count() == 1 })

	// The network steers the redial to PS.
	conn0 := h.resolver.conn(0)
	conn0.mu.Lock()
	conn0.auto = DomainPS
	conn0.mu.Unlock()

	var ok bool
	h.queue.Do(func() {
		ok = h.pipeline.MaybeReselectDomain("call-1", radiolink.PreciseErrorUnspecified, nil)
	})
	if !ok {
		t.Fatal("MaybeReselectDomain = false, want true")
	}

	waitFor(t, "redial", func() bool { return h.dialer.count() == 2 })

	if _, _, r := conn0.counts(); r != 1 {
		t.Errorf("reselectDomain invoked %d times, want 1", r)
	}
	d := h.dialer.dial(1)
	if d.domain != DomainPS || !d.redial {
		t.Errorf("redial = %+v, want PS redial", d)
	}
}

func TestReselectWithoutSessionReturnsFalse(t *testing.T) {
	h := newHarness(DomainCS)

	var ok bool
	h.queue.Do(func() {
		ok = h.pipeline.MaybeReselectDomain("missing", radiolink.PreciseErrorUnspecified, nil)
	})
	if ok {
		t.Fatal("MaybeReselectDomain = true for unknown call, want false")
	}
}

func TestAlternateEmergencySignalRestartsEmergencyStart(t *testing.T) {
	h := newHarness(DomainCS)

	attrs := h.emergencyAttrs("call-1")
	attrs.Emergency = false
	attrs.Category = 4 // carried over to the emergency redial
	h.queue.Do(func() { h.pipeline.StartNormalCall(attrs) })
	waitFor(t, "initial dial", func() bool { return h.dialer.count() == 1 })

	if got := h.tracker.callCount(); got != 0 {
		t.Fatalf("emergency-start invoked %d times before redial, want 0", got)
	}

	reason := &radiolink.ReasonInfo{Code: radiolink.ReasonSIPAlternateEmergencyCall}
	var ok bool
	h.queue.Do(func() {
		ok = h.pipeline.MaybeReselectDomain("call-1", radiolink.PreciseErrorUnspecified, reason)
	})
	if !ok {
		t.Fatal("MaybeReselectDomain = false, want true")
	}

	waitFor(t, "emergency redial", func() bool { return h.dialer.count() == 2 })

	if got := h.tracker.callCount(); got != 1 {
		t.Errorf("emergency-start invoked %d times, want 1", got)
	}
	conn0 := h.resolver.conn(0)
	if e, _, _ := conn0.counts(); e != 1 {
		t.Errorf("createEmergencyConnection invoked %d times, want 1", e)
	}
	conn0.mu.Lock()
	attrsSeen := conn0.lastAttrs
	conn0.mu.Unlock()
	if !attrsSeen.Emergency {
		t.Error("redial attributes not marked emergency")
	}
	if attrsSeen.Category != 4 {
		t.Errorf("redial category = %d, want 4 (carried over)", attrsSeen.Category)
	}
}

func TestSupersedingSessionCancelsPrior(t *testing.T) {
	h := newHarness(DomainNone) // manual futures
	conn0 := h.resolver.conn(0)

	h.queue.Do(func() { h.pipeline.StartEmergencyCall(h.emergencyAttrs("call-1")) })
	waitFor(t, "first domain request", func() bool {
		e, _, _ := conn0.counts()
		return e == 1
	})

	h.queue.Do(func() { h.pipeline.StartEmergencyCall(h.emergencyAttrs("call-1")) })
	waitFor(t, "second domain request", func() bool {
		e, _, _ := conn0.counts()
		return e == 2
	})

	// Resolving the superseded session's future must not dial.
	conn0.resolveFuture(0, DomainPS)
	settle(h.queue)
	if got := h.dialer.count(); got != 0 {
		t.Fatalf("superseded session dialed %d times, want 0", got)
	}

	conn0.resolveFuture(1, DomainCS)
	waitFor(t, "dial from live session", func() bool { return h.dialer.count() == 1 })
	if d := h.dialer.dial(0); d.domain != DomainCS {
		t.Errorf("dial domain = %s, want CS", d.domain)
	}
}

func TestEmergencyStartDisconnectCauseFailsCall(t *testing.T) {
	h := newHarness(DomainPS)
	h.tracker.auto = false

	h.queue.Do(func() { h.pipeline.StartEmergencyCall(h.emergencyAttrs("call-1")) })
	waitFor(t, "emergency start", func() bool { return h.tracker.callCount() == 1 })

	h.tracker.resolve(0, disconnect.Cause{Code: disconnect.PowerOff, Reason: "radio off"})
	waitFor(t, "failure", func() bool { return h.failures.count() == 1 })

	if got := h.dialer.count(); got != 0 {
		t.Errorf("dialed %d times, want 0", got)
	}
	if f := h.failures.last(); f.cause.Code != disconnect.PowerOff {
		t.Errorf("failure cause = %s, want PowerOff", f.cause.Code)
	}
}
