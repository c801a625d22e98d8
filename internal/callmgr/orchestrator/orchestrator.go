// Package orchestrator is the call manager's entry point: it owns the
// serialized execution context, creates and tracks connections, and drives
// candidate selection, radio power gating, domain resolution, redial
// rotation, and the cross-subscription call policy.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/disconnect"
	"github.com/sebas/towerline/internal/callmgr/domain"
	"github.com/sebas/towerline/internal/callmgr/events"
	"github.com/sebas/towerline/internal/callmgr/metrics"
	"github.com/sebas/towerline/internal/callmgr/radiopower"
	"github.com/sebas/towerline/internal/callmgr/retry"
	"github.com/sebas/towerline/internal/callmgr/selection"
	"github.com/sebas/towerline/internal/callmgr/serial"
	"github.com/sebas/towerline/internal/radiolink"
)

// Config contains the orchestrator's collaborators. Candidates and Radio
// are required; the rest are optional and degrade gracefully.
type Config struct {
	// Candidates is the live candidate snapshot source.
	Candidates candidate.Set

	// Device supplies default-subscription and concurrency capabilities.
	Device candidate.DeviceState

	// Radio places the actual dial attempts.
	Radio radiolink.Radio

	// RadioOnHelper powers the radio on for emergency dials. When nil,
	// emergency calls on a powered-off radio fail immediately.
	RadioOnHelper radiolink.RadioOnHelper

	// Resolver and Tracker enable the domain selection pipeline. Both must
	// be set; otherwise calls dial directly without a domain hint.
	Resolver domain.Resolver
	Tracker  domain.Tracker

	// Events receives lifecycle events. Nil discards them.
	Events *events.Sink

	// Metrics receives instrumentation. Nil discards it.
	Metrics *metrics.Collector

	// DialTimeout bounds a single radio dial attempt.
	DialTimeout time.Duration
}

// Orchestrator manages the lifecycle of every call. Public methods are safe
// for concurrent use; internally all work funnels through one serialized
// task queue.
type Orchestrator struct {
	cfg      Config
	queue    *serial.Queue
	pipeline *domain.Pipeline
	power    *radiopower.Coordinator
	retries  *retry.Cache

	mu    sync.Mutex
	conns map[string]*Connection
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	o := &Orchestrator{
		cfg:     cfg,
		queue:   serial.NewQueue(),
		retries: retry.NewCache(cfg.Candidates),
		conns:   make(map[string]*Connection),
	}
	if cfg.RadioOnHelper != nil {
		o.power = radiopower.New(o.queue, cfg.RadioOnHelper, cfg.Candidates)
	}
	if cfg.Resolver != nil && cfg.Tracker != nil {
		o.pipeline = domain.NewPipeline(domain.Config{
			Queue:      o.queue,
			Resolver:   cfg.Resolver,
			Tracker:    cfg.Tracker,
			Candidates: cfg.Candidates,
			Dialer:     o,
			Failures:   o,
		})
	}
	return o
}

// OutgoingRequest describes a call to place.
type OutgoingRequest struct {
	// Address is the dialed number.
	Address string

	// Emergency marks the call as an emergency call. Emergency calls pick
	// their candidate by ranking; normal calls use SubscriptionID.
	Emergency bool

	// Category is the emergency service category (0 when unspecified).
	Category int

	// IsTest marks a test emergency number.
	IsTest bool

	// NormalRouted marks an emergency number the carrier routes as a
	// normal call: candidate selection and domain resolution follow the
	// normal path while the dial itself stays an emergency dial.
	NormalRouted bool

	// SubscriptionID selects the endpoint for normal calls.
	SubscriptionID int

	// Surface receives lifecycle notifications. Nil is allowed.
	Surface CallSurface
}

// IncomingRequest describes a call received from the network. Incoming
// calls bypass selection, domain resolution, and the cross-subscription
// policy.
type IncomingRequest struct {
	Address        string
	SubscriptionID int

	// External marks a call living on another device, mirrored here.
	External bool

	Surface CallSurface
}

// CreateOutgoingConnection places a call. The returned connection may
// already be disconnected when origination failed a policy or service
// check; inspect State and Cause.
func (o *Orchestrator) CreateOutgoingConnection(req OutgoingRequest) (*Connection, error) {
	if req.Address == "" {
		return nil, ErrEmptyAddress
	}
	var (
		conn *Connection
		err  error
	)
	o.queue.Do(func() { conn, err = o.createOutgoing(req) })
	return conn, err
}

func (o *Orchestrator) createOutgoing(req OutgoingRequest) (*Connection, error) {
	normalRouting := !req.Emergency || req.NormalRouted
	var cand candidate.Candidate
	if !normalRouting {
		picked, err := selection.SelectForEmergency(o.cfg.Candidates.Candidates(), selection.Context{
			Address: req.Address,
			IsTest:  req.IsTest,
		})
		if err != nil {
			return nil, err
		}
		cand = picked
	} else {
		picked, ok := o.cfg.Candidates.BySubscription(req.SubscriptionID)
		if !ok {
			return nil, ErrUnknownSubscription
		}
		cand = picked
	}

	conn := newConnection(uuid.New().String(), req.Address, DirectionOutgoing, req.Surface, cand)
	conn.emergency = req.Emergency
	conn.normalRouted = req.NormalRouted
	conn.category = req.Category
	conn.isTest = req.IsTest
	o.register(conn)

	slog.Info("[Orchestrator] outgoing call",
		"call_id", conn.id,
		"address", req.Address,
		"emergency", req.Emergency,
		"slot", cand.Slot,
		"sub", cand.SubscriptionID,
	)
	o.cfg.Metrics.CallStarted()
	o.cfg.Events.Originated(conn.id, req.Address, req.Emergency, req.Category, req.IsTest, cand.Slot, cand.SubscriptionID)

	o.maybeDisconnectCallsOnOtherSubs(conn)

	if normalRouting {
		if !cand.RadioOn {
			o.disconnect(conn, disconnect.RadioUnavailable())
			return conn, nil
		}
		if cand.Tier != candidate.TierInService {
			o.disconnect(conn, disconnect.NoService())
			return conn, nil
		}
	} else if radiopower.Needed(cand) {
		if o.power == nil {
			o.disconnect(conn, disconnect.RadioUnavailable())
			return conn, nil
		}
		conn.setState(StateWaitingRadio)
		o.power.EnsureRadioOn(conn.id, cand, true, req.IsTest,
			func(refreshed candidate.Candidate) {
				if conn.State().IsTerminal() {
					return
				}
				conn.updateCandidate(refreshed)
				o.beginResolution(conn)
			},
			func(cause disconnect.Cause) { o.disconnect(conn, cause) },
		)
		return conn, nil
	}

	o.beginResolution(conn)
	return conn, nil
}

// CreateIncomingConnection registers a call received from the network.
func (o *Orchestrator) CreateIncomingConnection(req IncomingRequest) *Connection {
	var conn *Connection
	o.queue.Do(func() {
		cand, _ := o.cfg.Candidates.BySubscription(req.SubscriptionID)
		conn = newConnection(uuid.New().String(), req.Address, DirectionIncoming, req.Surface, cand)
		conn.external = req.External
		o.register(conn)
		conn.setState(StateRinging)
		slog.Info("[Orchestrator] incoming call",
			"call_id", conn.id,
			"address", req.Address,
			"sub", req.SubscriptionID,
			"external", req.External,
		)
		o.cfg.Metrics.CallStarted()
		o.cfg.Events.Originated(conn.id, req.Address, false, 0, false, cand.Slot, cand.SubscriptionID)
	})
	return conn
}

// Answer transitions a ringing incoming call to active.
func (o *Orchestrator) Answer(callID string) error {
	var err error
	o.queue.Do(func() {
		conn := o.connection(callID)
		if conn == nil {
			err = ErrCallNotFound
			return
		}
		if conn.State() != StateRinging {
			err = ErrInvalidState
			return
		}
		conn.setState(StateActive)
	})
	return err
}

// Hangup terminates a call locally. Pending selection, power-on, and dial
// work for the call is discarded; an accepted radio call is released.
func (o *Orchestrator) Hangup(callID string) error {
	var err error
	o.queue.Do(func() {
		conn := o.connection(callID)
		if conn == nil {
			err = ErrCallNotFound
			return
		}
		if conn.State().IsTerminal() {
			return
		}
		if o.pipeline != nil {
			o.pipeline.Cancel(callID)
		}
		if o.power != nil {
			o.power.Cancel(callID)
		}
		if h := conn.takeHandle(); h != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if herr := h.Hangup(ctx); herr != nil {
					slog.Warn("[Orchestrator] hangup failed", "call_id", callID, "error", herr)
				}
			}()
		}
		o.disconnect(conn, disconnect.LocalHangup())
	})
	return err
}

// Connection returns the call with the given id, or nil.
func (o *Orchestrator) Connection(callID string) *Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conns[callID]
}

// Connections returns a snapshot of all tracked calls.
func (o *Orchestrator) Connections() []*Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Connection, 0, len(o.conns))
	for _, c := range o.conns {
		out = append(out, c)
	}
	return out
}

// --- resolution and dialing (queue context) ---

func (o *Orchestrator) beginResolution(conn *Connection) {
	if o.pipeline != nil && o.pipeline.Supported() {
		conn.setState(StateWaitingDomain)
		attrs := domain.Attributes{
			CallID:    conn.id,
			Address:   conn.address,
			Emergency: conn.emergency,
			Category:  conn.category,
			IsTest:    conn.isTest,
			Candidate: conn.Candidate(),
		}
		if conn.emergency && !conn.normalRouted {
			o.pipeline.StartEmergencyCall(attrs)
		} else {
			o.pipeline.StartNormalCall(attrs)
		}
		return
	}
	o.dial(conn, domain.DomainNone, false)
}

// DialWithDomain implements domain.Dialer.
func (o *Orchestrator) DialWithDomain(s *domain.Session, d domain.Domain, redial bool) {
	conn := o.connection(s.CallID())
	if conn == nil || conn.State().IsTerminal() {
		return
	}
	prev := conn.Candidate()
	if conn.updateCandidate(s.Candidate) {
		o.cfg.Events.CandidateChanged(conn.id, prev.Slot, s.Candidate.Slot, s.Candidate.SubscriptionID)
	}
	// The pipeline may have upgraded the call after an alternate-emergency
	// signal from the network.
	if s.Attrs.Emergency && !conn.IsEmergency() {
		conn.markEmergency(s.Attrs.Category)
	}
	o.cfg.Metrics.RecordDomain(d.String())
	o.cfg.Events.DomainSelected(conn.id, d.String(), redial)
	o.dial(conn, d, redial)
}

// OnSelectionFailure implements domain.FailureHandler.
func (o *Orchestrator) OnSelectionFailure(callID string, cause disconnect.Cause) {
	conn := o.connection(callID)
	if conn == nil {
		return
	}
	o.cfg.Metrics.RecordFailover()
	o.disconnect(conn, cause)
}

func (o *Orchestrator) dial(conn *Connection, d domain.Domain, redial bool) {
	conn.setState(StateDialing)
	cand := conn.Candidate()
	args := radiolink.DialArgs{
		IsEmergency:     conn.emergency,
		Category:        conn.category,
		IsTestEmergency: conn.isTest,
	}
	if d != domain.DomainNone {
		args.Extras = map[string]any{radiolink.ExtraDialDomain: int(d)}
	}
	o.cfg.Metrics.RecordDial(conn.emergency, redial)
	o.cfg.Events.Dialing(conn.id, cand.Slot, domainLabel(d), redial, conn.emergency)
	slog.Info("[Orchestrator] dialing",
		"call_id", conn.id,
		"slot", cand.Slot,
		"domain", d.String(),
		"redial", redial,
	)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.DialTimeout)
		defer cancel()
		handle, err := o.cfg.Radio.Dial(ctx, cand, conn.address, args)
		o.queue.Post(func() { o.onDialResult(conn, cand, handle, err) })
	}()
}

func (o *Orchestrator) onDialResult(conn *Connection, cand candidate.Candidate, handle radiolink.CallHandle, err error) {
	if conn.State().IsTerminal() {
		// Hangup raced the dial. Release the orphaned radio call.
		if handle != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				handle.Hangup(ctx)
			}()
		}
		return
	}

	if err == nil {
		conn.attach(handle)
		o.retries.Drop(conn.id)
		conn.setState(StateActive)
		return
	}

	cse, ok := radiolink.AsCallStateError(err)
	if !ok {
		o.disconnect(conn, disconnect.FromRadioFailure(err.Error()))
		return
	}
	slog.Warn("[Orchestrator] dial failed",
		"call_id", conn.id,
		"slot", cand.Slot,
		"permanent", cse.Permanent,
		"precise", cse.Precise,
	)

	// A call that went through domain selection gets a re-selection first;
	// the legacy rotation only applies when no session can handle it.
	if o.pipeline != nil && o.pipeline.MaybeReselectDomain(conn.id, cse.Precise, cse.Reason) {
		return
	}

	next, ok := o.retries.OnDialFailure(conn.id, cand, cse.Permanent)
	o.cfg.Metrics.RecordRetry(cse.Permanent)
	if !ok {
		o.disconnect(conn, disconnect.FromRadioFailure(cse.Message))
		return
	}
	if conn.updateCandidate(next) {
		o.cfg.Events.CandidateChanged(conn.id, cand.Slot, next.Slot, next.SubscriptionID)
	}
	o.dial(conn, domain.DomainNone, true)
}

func (o *Orchestrator) disconnect(conn *Connection, cause disconnect.Cause) {
	if !conn.markDisconnected(cause) {
		return
	}
	o.retries.Drop(conn.id)
	if o.pipeline != nil {
		o.pipeline.Release(conn.id)
	}
	o.unregister(conn.id)
	slog.Info("[Orchestrator] call disconnected",
		"call_id", conn.id,
		"cause", cause.String(),
	)
	o.cfg.Metrics.RecordDisconnect(cause.Code.String())
	o.cfg.Metrics.CallEnded()
	o.cfg.Events.Disconnected(conn.id, cause.Code.String(), cause.Reason)
}

func (o *Orchestrator) register(conn *Connection) {
	o.mu.Lock()
	o.conns[conn.id] = conn
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(callID string) {
	o.mu.Lock()
	delete(o.conns, callID)
	o.mu.Unlock()
}

func (o *Orchestrator) connection(callID string) *Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conns[callID]
}

func domainLabel(d domain.Domain) string {
	if d == domain.DomainNone {
		return ""
	}
	return d.String()
}

// Interface conformance.
var (
	_ domain.Dialer         = (*Orchestrator)(nil)
	_ domain.FailureHandler = (*Orchestrator)(nil)
)
