package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/zeu5/studybreak-rl/history"
	"github.com/zeu5/studybreak-rl/metrics"
	"github.com/zeu5/studybreak-rl/policies"
	"github.com/zeu5/studybreak-rl/study"
	"github.com/zeu5/studybreak-rl/types"
)

type testEnv struct {
	server  *Server
	session *Session
	store   *history.MemStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	m := metrics.New()
	store := history.NewMemStore()
	prefs := study.DefaultPreferences()
	session := NewSession(context.Background(), SessionConfig{
		Policy:      policies.NewQLearningPolicyWithSeed(policies.DefaultAlpha, policies.DefaultGamma, 0, 1),
		Preferences: &prefs,
		Store:       store,
		Metrics:     m,
		Logger:      logrus.NewEntry(log),
		MaxEpisodes: 10000,
		Now: func() time.Time {
			return time.Date(2024, time.June, 1, 9, 30, 0, 0, time.Local)
		},
	})
	srv := New(Config{Mode: gin.TestMode, MetricsEnabled: true}, session, m, logrus.NewEntry(log))
	return &testEnv{server: srv, session: session, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	out := make(map[string]interface{})
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("invalid json response %q: %s", rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t)
	code, out := e.do(t, "GET", "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("got status %d", code)
	}
	if diff := cmp.Diff([]interface{}{0.0, 0.0, 1.0, 0.0}, out["state"]); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	actions := out["actions"].(map[string]interface{})
	if actions["1"].(map[string]interface{})["name"] != "Short Break" {
		t.Errorf("unexpected actions %v", actions)
	}
}

func TestPreferences(t *testing.T) {
	e := newTestEnv(t)
	code, out := e.do(t, "POST", "/api/preferences", `{"fatigue_sensitivity": "high", "break_bias": "long"}`)
	if code != http.StatusOK {
		t.Fatalf("got status %d", code)
	}
	if diff := cmp.Diff([]interface{}{0.0, 0.0, 2.0, 2.0}, out["state"]); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	code, out = e.do(t, "POST", "/api/preferences", `{"fatigue_sensitivity": "extreme"}`)
	if code != http.StatusBadRequest || out["error"] != "Invalid preference values" {
		t.Errorf("got %d %v", code, out)
	}

	_, out = e.do(t, "GET", "/api/preferences", "")
	if out["fatigue_sensitivity"] != "high" || out["break_bias"] != "long" {
		t.Errorf("invalid request should not change the preferences, got %v", out)
	}

	// missing fields fall back to the defaults
	code, out = e.do(t, "POST", "/api/preferences", `{"break_bias": "short"}`)
	if code != http.StatusOK || out["fatigue_sensitivity"] != "medium" {
		t.Errorf("got %d %v", code, out)
	}
}

func TestAction(t *testing.T) {
	e := newTestEnv(t)
	code, out := e.do(t, "POST", "/api/action", `{"action": 0}`)
	if code != http.StatusOK {
		t.Fatalf("got status %d", code)
	}
	if out["action"] != "Continue Studying" || out["study_time"] != 10.0 || out["fatigue"] != 1.0 {
		t.Errorf("unexpected response %v", out)
	}
	if r := out["reward"].(float64); r < 2.599 || r > 2.601 {
		t.Errorf("got reward %f, want 2.6", r)
	}
	if _, ok := out["recommended_action"].(float64); !ok {
		t.Errorf("expected a recommendation, got %v", out["recommended_action"])
	}

	for _, body := range []string{`{"action": 3}`, `{"action": -1}`, `{"action": "1"}`, `{"action": null}`} {
		code, out = e.do(t, "POST", "/api/action", body)
		if code != http.StatusBadRequest || out["error"] != "Invalid action" {
			t.Errorf("%s: got %d %v", body, code, out)
		}
	}

	h, _ := e.store.Load(context.Background())
	if h.ActionCounts[types.Continue] != 1 {
		t.Errorf("the action should be recorded, got %v", h.ActionCounts)
	}
}

func TestActionUntilDone(t *testing.T) {
	e := newTestEnv(t)
	var out map[string]interface{}
	for i := 0; i < 12; i++ {
		_, out = e.do(t, "POST", "/api/action", `{"action": 0}`)
	}
	if out["done"] != true {
		t.Errorf("session should be done after 120 minutes")
	}
	if v, ok := out["recommended_action"]; !ok || v != nil {
		t.Errorf("no recommendation expected once done, got %v", v)
	}
}

func TestRecommendation(t *testing.T) {
	e := newTestEnv(t)
	code, out := e.do(t, "GET", "/api/recommendation", "")
	if code != http.StatusOK {
		t.Fatalf("got status %d", code)
	}
	// untrained greedy agent picks the first action
	if out["recommended_action"] != 0.0 || out["action_icon"] != "📚" {
		t.Errorf("unexpected recommendation %v", out)
	}
}

func TestTrainAndStats(t *testing.T) {
	e := newTestEnv(t)
	_, out := e.do(t, "GET", "/api/stats", "")
	if out["episodes"] != 0.0 || out["average_reward"] != 0.0 {
		t.Errorf("expected empty stats, got %v", out)
	}

	code, out := e.do(t, "POST", "/api/train", `{"episodes": 60}`)
	if code != http.StatusOK {
		t.Fatalf("got status %d", code)
	}
	if out["episodes_completed"] != 60.0 || out["is_training"] != false {
		t.Errorf("unexpected training status %v", out)
	}

	_, out = e.do(t, "GET", "/api/stats", "")
	if out["episodes"] != 60.0 || len(out["rewards_history"].([]interface{})) != 50 {
		t.Errorf("unexpected stats %v", out)
	}
	if out["max_reward"].(float64) < out["min_reward"].(float64) {
		t.Errorf("max reward below min reward")
	}

	// training uses its own environment
	_, out = e.do(t, "GET", "/api/status", "")
	if out["study_time"] != 0.0 {
		t.Errorf("training should not touch the session, got %v", out["study_time"])
	}

	for _, body := range []string{`{"episodes": 0}`, `{"episodes": 10001}`} {
		code, _ = e.do(t, "POST", "/api/train", body)
		if code != http.StatusBadRequest {
			t.Errorf("%s: got status %d", body, code)
		}
	}

	code, out = e.do(t, "POST", "/api/train", "")
	if code != http.StatusOK || out["total_episodes"] != 100.0 {
		t.Errorf("default training: got %d %v", code, out)
	}
}

func TestResetRecordsSession(t *testing.T) {
	e := newTestEnv(t)
	_, out := e.do(t, "POST", "/api/reset", "")
	if out["message"] != "Session reset" {
		t.Errorf("unexpected response %v", out)
	}
	if e.store.Saves() != 0 {
		t.Errorf("empty sessions should not be recorded")
	}

	e.do(t, "POST", "/api/action", `{"action": 0}`)
	e.do(t, "POST", "/api/action", `{"action": 1}`)
	_, out = e.do(t, "POST", "/api/reset", "")
	if out["study_time"] != 0.0 || out["fatigue"] != 0.0 {
		t.Errorf("unexpected response %v", out)
	}

	_, out = e.do(t, "GET", "/api/learning-stats", "")
	if out["total_sessions"] != 1.0 || out["total_study_time"] != 10.0 {
		t.Errorf("unexpected learning stats %v", out)
	}
	// continue (2.6) followed by an unnecessary short break (-0.4)
	if r := out["average_reward"].(float64); r < 2.199 || r > 2.201 {
		t.Errorf("got average reward %f, want 2.2", r)
	}
	sessions := out["recent_sessions"].([]interface{})
	if sessions[0].(map[string]interface{})["date"] != "06/01/2024, 09:30:00 AM" {
		t.Errorf("unexpected sessions %v", sessions)
	}
	distribution := out["action_distribution"].(map[string]interface{})
	if distribution["0"].(map[string]interface{})["percentage"] != 50.0 {
		t.Errorf("unexpected distribution %v", distribution)
	}
}

func TestPolicy(t *testing.T) {
	e := newTestEnv(t)
	_, out := e.do(t, "GET", "/api/policy", "")
	states := out["states"].([]interface{})
	if len(states) != 9 {
		t.Errorf("got %d states, want 9", len(states))
	}
	current := 0
	for _, s := range states {
		if s.(map[string]interface{})["is_current"] == true {
			current++
		}
	}
	if current != 1 {
		t.Errorf("got %d current states, want 1", current)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	code, out := e.do(t, "GET", "/health", "")
	if code != http.StatusOK || out["status"] != "ok" {
		t.Errorf("got %d %v", code, out)
	}
	e.do(t, "POST", "/api/action", `{"action": 2}`)

	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !bytes.Contains(rec.Body.Bytes(), []byte(`studybreak_actions_total{action="LongBreak"} 1`)) {
		t.Errorf("metrics do not contain the action")
	}
}

func TestRunShutdown(t *testing.T) {
	e := newTestEnv(t)
	e.server.config.Addr = "127.0.0.1:0"
	e.server.server.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.server.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestActionMissingDefaultsToContinue(t *testing.T) {
	e := newTestEnv(t)
	for _, body := range []string{`{}`, ""} {
		code, out := e.do(t, "POST", "/api/action", body)
		if code != http.StatusOK || out["action"] != "Continue Studying" {
			t.Errorf("%q: got %d %v", body, code, out)
		}
	}
}

func TestDefaults(t *testing.T) {
	session := NewSession(context.Background(), SessionConfig{Store: history.NewMemStore()})
	prefs := session.Preferences()
	if prefs.FatigueSensitivity != "medium" || prefs.BreakBias != "study" {
		t.Errorf("got preferences %+v, want medium/study", prefs)
	}
	want := types.State{FatiguePref: 1, BreakBias: 0}
	if got := session.Status().State; got != want {
		t.Errorf("got state %s, want %s", got, want)
	}

	srv := New(Config{Mode: gin.TestMode}, session, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d without a logger", rec.Code)
	}
}
