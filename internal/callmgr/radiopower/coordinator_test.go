package radiopower

import (
	"sync"
	"testing"
	"time"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/disconnect"
	"github.com/sebas/towerline/internal/callmgr/serial"
	"github.com/sebas/towerline/internal/radiolink"
)

// fakeHelper hands the listener back to the test so power-on completion can
// be driven explicitly.
type fakeHelper struct {
	mu        sync.Mutex
	listeners []radiolink.RadioOnStateListener
}

func (h *fakeHelper) TriggerRadioOnAndListen(l radiolink.RadioOnStateListener, forEmergency bool, cand candidate.Candidate, isTest bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

func (h *fakeHelper) listener(t *testing.T, i int) radiolink.RadioOnStateListener {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.listeners) <= i {
		t.Fatalf("listener %d not registered", i)
	}
	return h.listeners[i]
}

type outcome struct {
	mu       sync.Mutex
	proceeds []candidate.Candidate
	fails    []disconnect.Cause
}

func (o *outcome) proceed(c candidate.Candidate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.proceeds = append(o.proceeds, c)
}

func (o *outcome) fail(cause disconnect.Cause) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fails = append(o.fails, cause)
}

func (o *outcome) counts() (proceeds, fails int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.proceeds), len(o.fails)
}

func newCoordinator() (*Coordinator, *fakeHelper, *candidate.StaticSet, *serial.Queue) {
	set := candidate.NewStaticSet([]candidate.Candidate{
		{Slot: 0, SubscriptionID: 1, Tier: candidate.TierOutOfService, Sim: candidate.SimReady, RadioOn: false},
	})
	helper := &fakeHelper{}
	q := serial.NewQueue()
	return New(q, helper, set), helper, set, q
}

func TestNeeded(t *testing.T) {
	if Needed(candidate.Candidate{RadioOn: true}) {
		t.Error("Needed = true for powered radio")
	}
	if !Needed(candidate.Candidate{RadioOn: false}) {
		t.Error("Needed = false for unpowered radio")
	}
}

func TestReleasesDialWithRefreshedCandidate(t *testing.T) {
	c, helper, set, q := newCoordinator()
	out := &outcome{}

	cand, _ := set.BySlot(0)
	c.EnsureRadioOn("call-1", cand, true, false, out.proceed, out.fail)
	if !c.Pending("call-1") {
		t.Fatal("call not pending after EnsureRadioOn")
	}

	// Radio comes up with emergency-only service before completion fires.
	set.SetRadioOn(0, true)
	set.Update(candidate.Candidate{Slot: 0, SubscriptionID: 1, Tier: candidate.TierEmergencyOnly, Sim: candidate.SimReady, RadioOn: true})
	helper.listener(t, 0).OnComplete(true, true)

	q.Do(func() {})
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.fails) != 0 || len(out.proceeds) != 1 {
		t.Fatalf("proceeds=%d fails=%d, want 1/0", len(out.proceeds), len(out.fails))
	}
	got := out.proceeds[0]
	if !got.RadioOn || got.Tier != candidate.TierEmergencyOnly {
		t.Errorf("released with stale candidate %+v", got)
	}
	if c.Pending("call-1") {
		t.Error("call still pending after release")
	}
}

func TestPowerOnFailureFailsCall(t *testing.T) {
	c, helper, set, q := newCoordinator()
	out := &outcome{}

	cand, _ := set.BySlot(0)
	c.EnsureRadioOn("call-1", cand, true, false, out.proceed, out.fail)
	helper.listener(t, 0).OnComplete(false, false)

	q.Do(func() {})
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.proceeds) != 0 || len(out.fails) != 1 {
		t.Fatalf("proceeds=%d fails=%d, want 0/1", len(out.proceeds), len(out.fails))
	}
	if out.fails[0].Code != disconnect.PowerOff {
		t.Errorf("cause = %s, want PowerOff", out.fails[0].Code)
	}
}

func TestCancelDiscardsOutcome(t *testing.T) {
	c, helper, set, q := newCoordinator()
	out := &outcome{}

	cand, _ := set.BySlot(0)
	c.EnsureRadioOn("call-1", cand, true, false, out.proceed, out.fail)
	c.Cancel("call-1")

	set.SetRadioOn(0, true)
	helper.listener(t, 0).OnComplete(true, true)

	q.Do(func() {})
	if p, f := out.counts(); p != 0 || f != 0 {
		t.Fatalf("proceeds=%d fails=%d after cancel, want 0/0", p, f)
	}
}

func TestDuplicateCompletionIsIgnored(t *testing.T) {
	c, helper, set, q := newCoordinator()
	out := &outcome{}

	cand, _ := set.BySlot(0)
	c.EnsureRadioOn("call-1", cand, true, false, out.proceed, out.fail)
	set.SetRadioOn(0, true)
	l := helper.listener(t, 0)
	l.OnComplete(true, true)
	l.OnComplete(true, true)

	q.Do(func() {})
	if p, f := out.counts(); p != 1 || f != 0 {
		t.Fatalf("proceeds=%d fails=%d, want 1/0", p, f)
	}
}

func TestEmergencyOnlyNeedsRadio(t *testing.T) {
	c, helper, set, _ := newCoordinator()
	out := &outcome{}

	cand, _ := set.BySlot(0)
	c.EnsureRadioOn("call-1", cand, true, false, out.proceed, out.fail)
	l := helper.listener(t, 0)

	up := candidate.Candidate{Slot: 0, RadioOn: true, Tier: candidate.TierEmergencyOnly}
	if !l.IsOkToCall(up, up.Tier) {
		t.Error("emergency dial held back despite radio up")
	}
	down := candidate.Candidate{Slot: 0, RadioOn: false}
	if l.IsOkToCall(down, down.Tier) {
		t.Error("emergency dial released with radio down")
	}
}

func TestNormalCallNeedsFullService(t *testing.T) {
	c, helper, set, _ := newCoordinator()
	out := &outcome{}

	cand, _ := set.BySlot(0)
	c.EnsureRadioOn("call-2", cand, false, false, out.proceed, out.fail)
	l := helper.listener(t, 0)

	limited := candidate.Candidate{Slot: 0, RadioOn: true, Tier: candidate.TierEmergencyOnly}
	if l.IsOkToCall(limited, limited.Tier) {
		t.Error("normal dial released with emergency-only service")
	}
	full := candidate.Candidate{Slot: 0, RadioOn: true, Tier: candidate.TierInService}
	if !l.IsOkToCall(full, full.Tier) {
		t.Error("normal dial held back despite full service")
	}
}

func TestSimHelperDrivesCoordinator(t *testing.T) {
	set := candidate.NewStaticSet([]candidate.Candidate{
		{Slot: 0, SubscriptionID: 1, Tier: candidate.TierEmergencyOnly, Sim: candidate.SimReady, RadioOn: false},
	})
	q := serial.NewQueue()
	helper := &radiolink.SimRadioOnHelper{Set: set, Delay: 5 * time.Millisecond}
	c := New(q, helper, set)
	out := &outcome{}

	cand, _ := set.BySlot(0)
	c.EnsureRadioOn("call-1", cand, true, false, out.proceed, out.fail)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, _ := out.counts(); p == 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	q.Do(func() {})
	if p, f := out.counts(); p != 1 || f != 0 {
		t.Fatalf("proceeds=%d fails=%d, want 1/0", p, f)
	}
	if got, _ := set.BySlot(0); !got.RadioOn {
		t.Error("radio flag not flipped by helper")
	}
}
