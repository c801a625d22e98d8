// Package metrics bundles Prometheus instrumentation for the call manager
// and provides the /metrics handler serving it.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the call manager's Prometheus metrics. All recorder
// methods are nil-safe so instrumentation stays optional in tests.
type Collector struct {
	gatherer prometheus.Gatherer

	DialAttempts     *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	DomainSelections *prometheus.CounterVec
	Failovers        prometheus.Counter
	Disconnects      *prometheus.CounterVec
	ActiveCalls      prometheus.Gauge
}

// NewCollector registers call manager metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	dialAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "callmgr_dial_attempts_total",
		Help: "Total dial attempts issued to the radio, labeled by emergency flag and redial flag.",
	}, []string{"emergency", "redial"})
	dialAttempts, err := registerCounterVec(reg, dialAttempts, "callmgr_dial_attempts_total")
	if err != nil {
		return nil, err
	}

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "callmgr_retry_rotations_total",
		Help: "Candidate rotations after modem dial failures, labeled by failure kind.",
	}, []string{"kind"})
	retries, err = registerCounterVec(reg, retries, "callmgr_retry_rotations_total")
	if err != nil {
		return nil, err
	}

	selections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "callmgr_domain_selections_total",
		Help: "Resolved network domains, labeled by domain.",
	}, []string{"domain"})
	selections, err = registerCounterVec(reg, selections, "callmgr_domain_selections_total")
	if err != nil {
		return nil, err
	}

	failovers, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "callmgr_selection_failovers_total",
		Help: "Candidate failovers triggered by domain selection rejections.",
	}), "callmgr_selection_failovers_total")
	if err != nil {
		return nil, err
	}

	disconnects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "callmgr_disconnects_total",
		Help: "Terminated calls, labeled by disconnect cause code.",
	}, []string{"cause"})
	disconnects, err = registerCounterVec(reg, disconnects, "callmgr_disconnects_total")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "callmgr_active_calls",
		Help: "Current number of non-terminal calls.",
	}), "callmgr_active_calls")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		DialAttempts:     dialAttempts,
		Retries:          retries,
		DomainSelections: selections,
		Failovers:        failovers,
		Disconnects:      disconnects,
		ActiveCalls:      active,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.Gatherer(prometheus.DefaultGatherer)
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordDial counts one dial attempt.
func (c *Collector) RecordDial(emergency, redial bool) {
	if c == nil || c.DialAttempts == nil {
		return
	}
	c.DialAttempts.WithLabelValues(boolLabel(emergency), boolLabel(redial)).Inc()
}

// RecordRetry counts one rotation step after a dial failure.
func (c *Collector) RecordRetry(permanent bool) {
	if c == nil || c.Retries == nil {
		return
	}
	kind := "temporary"
	if permanent {
		kind = "permanent"
	}
	c.Retries.WithLabelValues(kind).Inc()
}

// RecordDomain counts one resolved domain.
func (c *Collector) RecordDomain(domain string) {
	if c == nil || c.DomainSelections == nil {
		return
	}
	c.DomainSelections.WithLabelValues(domain).Inc()
}

// RecordFailover counts one selection-rejection failover.
func (c *Collector) RecordFailover() {
	if c == nil || c.Failovers == nil {
		return
	}
	c.Failovers.Inc()
}

// RecordDisconnect counts one terminated call.
func (c *Collector) RecordDisconnect(cause string) {
	if c == nil || c.Disconnects == nil {
		return
	}
	c.Disconnects.WithLabelValues(cause).Inc()
}

// CallStarted adjusts the active-call gauge up.
func (c *Collector) CallStarted() {
	if c == nil || c.ActiveCalls == nil {
		return
	}
	c.ActiveCalls.Inc()
}

// CallEnded adjusts the active-call gauge down.
func (c *Collector) CallEnded() {
	if c == nil || c.ActiveCalls == nil {
		return
	}
	c.ActiveCalls.Dec()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
