package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.RecordDial(true, false)
	c.RecordDial(true, true)
	c.RecordRetry(false)
	c.RecordDomain("PS")
	c.RecordFailover()
	c.RecordDisconnect("Local")
	c.CallStarted()
	c.CallStarted()
	c.CallEnded()

	if got := testutil.ToFloat64(c.DialAttempts.WithLabelValues("true", "false")); got != 1 {
		t.Errorf("dial attempts (initial) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.DialAttempts.WithLabelValues("true", "true")); got != 1 {
		t.Errorf("dial attempts (redial) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Retries.WithLabelValues("temporary")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.DomainSelections.WithLabelValues("PS")); got != 1 {
		t.Errorf("domain selections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Failovers); got != 1 {
		t.Errorf("failovers = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ActiveCalls); got != 1 {
		t.Errorf("active calls = %v, want 1", got)
	}
}

func TestDuplicateRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	first.RecordFailover()
	second.RecordFailover()
	if got := testutil.ToFloat64(first.Failovers); got != 2 {
		t.Errorf("failovers = %v, want 2 (shared collector)", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordDial(false, false)
	c.RecordRetry(true)
	c.RecordDomain("CS")
	c.RecordFailover()
	c.RecordDisconnect("Error")
	c.CallStarted()
	c.CallEnded()
	if c.Handler() == nil {
		t.Error("nil collector handler = nil")
	}
}
