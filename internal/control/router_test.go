package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koshedutech/equities-trader/internal/events"
	"github.com/koshedutech/equities-trader/internal/logging"
	"github.com/koshedutech/equities-trader/internal/orchestrator"
)

type fakeEngine struct {
	enabled    bool
	tickOK     bool
	leaderboard []orchestrator.LeaderboardEntry
}

func (f *fakeEngine) SetTradingEnabled(enabled bool) { f.enabled = enabled }
func (f *fakeEngine) TradingEnabled() bool           { return f.enabled }
func (f *fakeEngine) ForceTick(ctx context.Context) bool { return f.tickOK }
func (f *fakeEngine) Leaderboard() []orchestrator.LeaderboardEntry {
	return f.leaderboard
}

func newTestServer(engine *fakeEngine) *Server {
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stdout"})
	hub := NewHub(events.NewEventBus(), log)
	return NewServer(Config{}, engine, nil, hub, nil)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&fakeEngine{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestHandleStatus(t *testing.T) {
	engine := &fakeEngine{enabled: true, leaderboard: []orchestrator.LeaderboardEntry{{AgentID: "agent-1"}}}
	srv := newTestServer(engine)
	req := httptest.NewRequest(http.MethodGet, "/api/control/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["trading_enabled"] != true {
		t.Errorf("expected trading_enabled true, got %v", body["trading_enabled"])
	}
	if body["agent_count"] != float64(1) {
		t.Errorf("expected agent_count 1, got %v", body["agent_count"])
	}
}

func TestHandleSetEnabled(t *testing.T) {
	engine := &fakeEngine{}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/control/trading/enable", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !engine.enabled {
		t.Error("expected trading to be enabled")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/control/trading/disable", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if engine.enabled {
		t.Error("expected trading to be disabled")
	}
}

func TestHandleForceTick_Conflict(t *testing.T) {
	engine := &fakeEngine{tickOK: false}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/control/tick", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 when a tick is already in flight, got %d", w.Code)
	}
}

func TestHandleForceTick_Accepted(t *testing.T) {
	engine := &fakeEngine{tickOK: true}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/control/tick", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}

func TestHandleLeaderboard(t *testing.T) {
	engine := &fakeEngine{leaderboard: []orchestrator.LeaderboardEntry{
		{AgentID: "agent-1", PerformancePct: 4.2},
		{AgentID: "agent-2", PerformancePct: -1.1},
	}}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/control/agents", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Agents []orchestrator.LeaderboardEntry `json:"agents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(body.Agents))
	}
}

func TestHandleAgentTrades_NoRepoConfigured(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/control/agents/agent-1/trades", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a configured repository, got %d", w.Code)
	}
}

func TestParseLimit(t *testing.T) {
	if got := parseLimit("", 50); got != 50 {
		t.Errorf("parseLimit empty = %d, want 50", got)
	}
	if got := parseLimit("not-a-number", 50); got != 50 {
		t.Errorf("parseLimit invalid = %d, want 50", got)
	}
	if got := parseLimit("-5", 50); got != 50 {
		t.Errorf("parseLimit negative = %d, want 50", got)
	}
	if got := parseLimit("10", 50); got != 10 {
		t.Errorf("parseLimit valid = %d, want 10", got)
	}
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stdout"})
	hub := NewHub(events.NewEventBus(), log)
	tm, err := NewTokenManager("test-secret-at-least-32-bytes-long!!", "operator-token", 0)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	srv := NewServer(Config{}, &fakeEngine{}, nil, hub, tm)

	req := httptest.NewRequest(http.MethodGet, "/api/control/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", w.Code)
	}
}
