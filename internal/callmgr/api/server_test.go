package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/orchestrator"
	"github.com/sebas/towerline/internal/radiolink"
)

func testSet() *candidate.StaticSet {
	return candidate.NewStaticSet([]candidate.Candidate{
		{
			Slot:           0,
			SubscriptionID: 1,
			Tier:           candidate.TierInService,
			Sim:            candidate.SimReady,
			Capability:     candidate.CapabilityLTE,
			RadioOn:        true,
			DefaultVoice:   true,
		},
		{
			Slot:           1,
			SubscriptionID: 2,
			Tier:           candidate.TierInService,
			Sim:            candidate.SimReady,
			Capability:     candidate.CapabilityLTE,
			RadioOn:        true,
		},
	})
}

func testServer(t *testing.T, secret string) (*Server, *orchestrator.Orchestrator, *radiolink.SimRadio) {
	t.Helper()
	set := testSet()
	radio := radiolink.NewSimRadio()
	orch := orchestrator.New(orchestrator.Config{
		Candidates: set,
		Device:     &candidate.StaticDeviceState{VoiceSub: 1, DataSub: 1},
		Radio:      radio,
	})
	return NewServer("127.0.0.1:0", orch, set, nil, secret), orch, radio
}

func doRequest(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body != "" {
		rd = strings.NewReader(body)
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func waitActive(t *testing.T, orch *orchestrator.Orchestrator, callID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn := orch.Connection(callID)
		if conn != nil && conn.State() == orchestrator.StateActive {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("call %s never became active", callID)
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := testServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
}

func TestOriginateAndListCalls(t *testing.T) {
	s, orch, _ := testServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/v1/calls",
		`{"address":"+15551234567","subscription":2}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("originate status = %d: %s", rec.Code, rec.Body.String())
	}

	var created callResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Address != "+15551234567" {
		t.Errorf("address = %q", created.Address)
	}
	if created.Subscription != 2 {
		t.Errorf("subscription = %d, want 2", created.Subscription)
	}
	waitActive(t, orch, created.CallID)

	rec = doRequest(s, http.MethodGet, "/api/v1/calls", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var calls []callResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &calls); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(calls) != 1 || calls[0].CallID != created.CallID {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].State != "Active" {
		t.Errorf("state = %q, want Active", calls[0].State)
	}
}

func TestOriginateEmptyAddressRejected(t *testing.T) {
	s, _, _ := testServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/v1/calls", `{"address":""}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHangupCall(t *testing.T) {
	s, orch, _ := testServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/v1/calls",
		`{"address":"+15550001111","emergency":true}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("originate status = %d", rec.Code)
	}
	var created callResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	waitActive(t, orch, created.CallID)

	rec = doRequest(s, http.MethodDelete, "/api/v1/calls/"+created.CallID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("hangup status = %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if orch.Connection(created.CallID) == nil {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("call never disconnected")
}

func TestHangupUnknownCall(t *testing.T) {
	s, _, _ := testServer(t, "")

	rec := doRequest(s, http.MethodDelete, "/api/v1/calls/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCandidatesEndpoint(t *testing.T) {
	s, _, _ := testServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/v1/candidates", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var cands []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &cands); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("candidates = %d, want 2", len(cands))
	}
	if cands[0]["tier"] != "InService" {
		t.Errorf("tier = %v", cands[0]["tier"])
	}
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	const secret = "test-secret"
	s, _, _ := testServer(t, secret)

	// Health stays open.
	rec := doRequest(s, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/v1/calls", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/v1/calls", "", "garbage")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec = doRequest(s, http.MethodGet, "/api/v1/calls", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	const secret = "test-secret"
	s, _, _ := testServer(t, secret)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec := doRequest(s, http.MethodGet, "/api/v1/calls", "", token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d, want 401", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, orch, _ := testServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/v1/calls",
		`{"address":"+15559990000","emergency":true}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("originate status = %d", rec.Code)
	}
	var created callResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	waitActive(t, orch, created.CallID)

	rec = doRequest(s, http.MethodGet, "/api/v1/stats", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats["active_calls"].(float64) != 1 {
		t.Errorf("active_calls = %v, want 1", stats["active_calls"])
	}
	if stats["slots"].(float64) != 2 {
		t.Errorf("slots = %v, want 2", stats["slots"])
	}
}
