package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/metrics"
	"github.com/sebas/towerline/internal/callmgr/orchestrator"
)

// CallProvider provides call operations for the API.
// Implemented by orchestrator.Orchestrator.
type CallProvider interface {
	Connections() []*orchestrator.Connection
	Connection(callID string) *orchestrator.Connection
	CreateOutgoingConnection(req orchestrator.OutgoingRequest) (*orchestrator.Connection, error)
	Answer(callID string) error
	Hangup(callID string) error
}

// CandidateProvider provides the current candidate set for the API.
// Implemented by candidate.StaticSet.
type CandidateProvider interface {
	Candidates() []candidate.Candidate
}

// Server provides HTTP API for the call manager (headless, API only)
type Server struct {
	addr       string
	httpServer *http.Server
	calls      CallProvider
	candidates CandidateProvider
	auth       *Middleware
	startTime  time.Time
}

// NewServer creates a new API server. secret enables JWT bearer auth on all
// routes except health; an empty secret disables auth.
func NewServer(addr string, calls CallProvider, candidates CandidateProvider, collector *metrics.Collector, secret string) *Server {
	s := &Server{
		addr:       addr,
		calls:      calls,
		candidates: candidates,
		startTime:  time.Now(),
	}
	if secret != "" {
		s.auth = NewMiddleware(NewVerifier(secret))
	}

	mux := http.NewServeMux()

	// Health and stats
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.protect(s.handleStats))

	// Calls
	mux.HandleFunc("/api/v1/calls", s.protect(s.handleCalls))
	mux.HandleFunc("/api/v1/calls/", s.protect(s.handleCallByID))

	// Candidates (slots)
	mux.HandleFunc("/api/v1/candidates", s.protect(s.handleCandidates))

	// Prometheus metrics
	if collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// protect wraps a handler with bearer auth when a secret is configured.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	if s.auth == nil {
		return next
	}
	return s.auth.RequireAuth(next)
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	slog.Info("[API] Starting HTTP API server", "addr", s.addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("[API] Server error", "error", err)
			panic(err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// --- Health & Stats ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime).Seconds()
	response := map[string]interface{}{
		"status": "ok",
		"uptime": int64(uptime),
	}
	s.writeJSON(w, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	conns := s.calls.Connections()
	active := 0
	dialing := 0
	for _, c := range conns {
		if !c.State().IsTerminal() {
			active++
		}
		if c.State() == orchestrator.StateDialing {
			dialing++
		}
	}

	slots := 0
	if s.candidates != nil {
		slots = len(s.candidates.Candidates())
	}

	response := map[string]interface{}{
		"total_calls":   len(conns),
		"active_calls":  active,
		"dialing_calls": dialing,
		"slots":         slots,
	}
	s.writeJSON(w, response)
}

// --- Calls ---

type callResponse struct {
	CallID       string `json:"call_id"`
	Address      string `json:"address"`
	Direction    string `json:"direction"`
	State        string `json:"state"`
	Emergency    bool   `json:"emergency"`
	Slot         int    `json:"slot"`
	Subscription int    `json:"subscription"`
	Cause        string `json:"cause,omitempty"`
}

func toCallResponse(c *orchestrator.Connection) callResponse {
	cand := c.Candidate()
	resp := callResponse{
		CallID:       c.ID(),
		Address:      c.Address(),
		Direction:    c.Direction().String(),
		State:        c.State().String(),
		Emergency:    c.IsEmergency(),
		Slot:         cand.Slot,
		Subscription: cand.SubscriptionID,
	}
	if cause := c.Cause(); cause.IsDisconnected() {
		resp.Cause = cause.String()
	}
	return resp
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListCalls(w, r)
	case http.MethodPost:
		s.handleOriginate(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	conns := s.calls.Connections()
	response := make([]callResponse, 0, len(conns))
	for _, c := range conns {
		response = append(response, toCallResponse(c))
	}
	s.writeJSON(w, response)
}

type originateRequest struct {
	Address      string `json:"address"`
	Emergency    bool   `json:"emergency"`
	Category     int    `json:"category,omitempty"`
	Test         bool   `json:"test,omitempty"`
	Subscription int    `json:"subscription,omitempty"`
}

func (s *Server) handleOriginate(w http.ResponseWriter, r *http.Request) {
	var req originateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub := req.Subscription
	if !req.Emergency && sub == 0 {
		sub = candidate.SubscriptionNone
	}

	conn, err := s.calls.CreateOutgoingConnection(orchestrator.OutgoingRequest{
		Address:        req.Address,
		Emergency:      req.Emergency,
		Category:       req.Category,
		IsTest:         req.Test,
		SubscriptionID: sub,
	})
	if err != nil {
		slog.Error("[API] Failed to originate call", "address", req.Address, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, toCallResponse(conn))
}

func (s *Server) handleCallByID(w http.ResponseWriter, r *http.Request) {
	// Extract call ID from path: /api/v1/calls/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/calls/")
	if path == "" {
		http.Error(w, "Call ID required", http.StatusBadRequest)
		return
	}

	callID, err := url.PathUnescape(path)
	if err != nil {
		http.Error(w, "Invalid call ID encoding", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		conn := s.calls.Connection(callID)
		if conn == nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, toCallResponse(conn))
	case http.MethodDelete:
		if err := s.calls.Hangup(callID); err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, map[string]interface{}{
			"call_id": callID,
			"status":  "disconnecting",
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Candidates ---

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.candidates == nil {
		s.writeJSON(w, []interface{}{})
		return
	}

	type candidateResponse struct {
		Slot         int    `json:"slot"`
		Subscription int    `json:"subscription"`
		Tier         string `json:"tier"`
		Sim          string `json:"sim"`
		RadioOn      bool   `json:"radio_on"`
		DefaultVoice bool   `json:"default_voice"`
		DefaultData  bool   `json:"default_data"`
	}

	cands := s.candidates.Candidates()
	response := make([]candidateResponse, 0, len(cands))
	for _, c := range cands {
		response = append(response, candidateResponse{
			Slot:         c.Slot,
			Subscription: c.SubscriptionID,
			Tier:         c.Tier.String(),
			Sim:          c.Sim.String(),
			RadioOn:      c.RadioOn,
			DefaultVoice: c.DefaultVoice,
			DefaultData:  c.DefaultData,
		})
	}
	s.writeJSON(w, response)
}

// --- Helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode JSON", "error", err)
	}
}
