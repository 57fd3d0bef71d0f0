package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sonicbuilder/sentinel/internal/config"
	"github.com/sonicbuilder/sentinel/pkg/alert"
	"github.com/sonicbuilder/sentinel/pkg/banlist"
	"github.com/sonicbuilder/sentinel/pkg/firewall"
)

const testKey = "secret123"

type recordingNotifier struct {
	mu     sync.Mutex
	events []alert.Event
}

func (n *recordingNotifier) Notify(e alert.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, e)
}

func (n *recordingNotifier) countKind(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := 0
	for _, e := range n.events {
		if e.Kind == kind {
			count++
		}
	}
	return count
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	dir := t.TempDir()
	return config.Config{
		APIKey:        testKey,
		BanFile:       filepath.Join(dir, "banned_ips.json"),
		AuditFile:     filepath.Join(dir, "security_audit.json"),
		RateWindow:    0, // most tests exercise auth, not spacing
		MaxAttempts:   5,
		PauseFlag:     filepath.Join(dir, "pause.flag"),
		SchedulerLog:  filepath.Join(dir, "scheduler.log"),
		VerifyLog:     filepath.Join(dir, "verify.log"),
		DeployScript:  filepath.Join(dir, "deploy.sh"),
		DeployTimeout: time.Second,
	}
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, banlist.Store, *recordingNotifier) {
	t.Helper()

	store := banlist.NewFileStore(cfg.BanFile)
	notifier := &recordingNotifier{}

	s, err := New(cfg, store, notifier, firewall.Nop{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Shutdown() })

	return s, store, notifier
}

func do(h http.Handler, method, target, ip, key string, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}

	r.Header.Set("X-Forwarded-For", ip)
	if key != "" {
		r.Header.Set("X-API-KEY", key)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestPublicEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig(t))
	h := s.Handler()

	if w := do(h, "GET", "/", "1.2.3.4", "", ""); w.Code != http.StatusOK {
		t.Errorf("GET / = %v, want 200", w.Code)
	}

	w := do(h, "GET", "/health", "1.2.3.4", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %v, want 200", w.Code)
	}

	var res struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Status != "ok" {
		t.Errorf("health status = %q, want ok", res.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig(t))
	h := s.Handler()

	if w := do(h, "GET", "/status", "1.2.3.4", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no key = %v, want 401", w.Code)
	}
	if w := do(h, "GET", "/status", "1.2.3.4", "wrongkey", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key = %v, want 401", w.Code)
	}
	if w := do(h, "GET", "/status", "1.2.3.4", testKey, ""); w.Code != http.StatusOK {
		t.Errorf("valid key = %v, want 200", w.Code)
	}
}

func TestStatusCheckDispatchesAlert(t *testing.T) {
	s, _, notifier := newTestServer(t, testConfig(t))

	if w := do(s.Handler(), "GET", "/status", "1.2.3.4", testKey, ""); w.Code != http.StatusOK {
		t.Fatalf("status = %v, want 200", w.Code)
	}

	if got := notifier.countKind(alert.KindStatus); got != 1 {
		t.Errorf("expected 1 status alert, got %v", got)
	}
}

func TestQueryParameterAuth(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig(t))

	if w := do(s.Handler(), "GET", "/status?key="+testKey, "1.2.3.4", "", ""); w.Code != http.StatusOK {
		t.Errorf("query key = %v, want 200", w.Code)
	}
}

func TestBanAfterFiveFailedAttempts(t *testing.T) {
	s, store, notifier := newTestServer(t, testConfig(t))
	h := s.Handler()

	want := []int{401, 401, 401, 401, 403}
	for i, code := range want {
		w := do(h, "POST", "/pause", "9.9.9.9", "wrongkey", "")
		if w.Code != code {
			t.Fatalf("attempt %v = %v, want %v", i+1, w.Code, code)
		}
	}

	if !store.IsBanned("9.9.9.9") {
		t.Fatal("IP not banned after five failures")
	}
	if got := notifier.countKind(alert.KindBan); got != 1 {
		t.Errorf("expected exactly one ban alert, got %v", got)
	}

	// Ban supersedes auth: the correct key no longer helps.
	if w := do(h, "POST", "/pause", "9.9.9.9", testKey, ""); w.Code != http.StatusForbidden {
		t.Errorf("banned IP with valid key = %v, want 403", w.Code)
	}
}

func TestFailedAttemptDispatchesInvalidKeyAlert(t *testing.T) {
	s, _, notifier := newTestServer(t, testConfig(t))

	if w := do(s.Handler(), "POST", "/pause", "9.9.9.9", "wrongkey", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key = %v, want 401", w.Code)
	}

	if got := notifier.countKind(alert.KindInvalidKey); got != 1 {
		t.Errorf("expected 1 invalid key alert after a failed attempt, got %v", got)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	s, store, _ := newTestServer(t, testConfig(t))
	h := s.Handler()

	for i := 0; i < 4; i++ {
		do(h, "GET", "/status", "9.9.9.9", "wrongkey", "")
	}
	do(h, "GET", "/status", "9.9.9.9", testKey, "")
	for i := 0; i < 4; i++ {
		if w := do(h, "GET", "/status", "9.9.9.9", "wrongkey", ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("failure after reset = %v, want 401", w.Code)
		}
	}

	if store.IsBanned("9.9.9.9") {
		t.Error("IP banned despite an intervening success")
	}
}

func TestBannedIPGetsNoLiveness(t *testing.T) {
	s, store, _ := newTestServer(t, testConfig(t))
	store.Ban("7.7.7.7", "test")

	if w := do(s.Handler(), "GET", "/health", "7.7.7.7", "", ""); w.Code != http.StatusForbidden {
		t.Errorf("banned IP on /health = %v, want 403", w.Code)
	}
}

func TestBanSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)

	s, _, _ := newTestServer(t, cfg)
	h := s.Handler()
	for i := 0; i < 5; i++ {
		do(h, "POST", "/pause", "9.9.9.9", "wrongkey", "")
	}

	restarted, _, _ := newTestServer(t, cfg)
	if w := do(restarted.Handler(), "GET", "/health", "9.9.9.9", "", ""); w.Code != http.StatusForbidden {
		t.Errorf("ban did not survive restart: /health = %v, want 403", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateWindow = 500 * time.Millisecond

	s, _, notifier := newTestServer(t, cfg)
	h := s.Handler()

	if w := do(h, "GET", "/health", "1.2.3.4", "", ""); w.Code != http.StatusOK {
		t.Fatalf("first request = %v, want 200", w.Code)
	}
	if w := do(h, "GET", "/health", "1.2.3.4", "", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("request inside window = %v, want 429", w.Code)
	}
	if got := notifier.countKind(alert.KindRateLimit); got != 1 {
		t.Errorf("expected 1 rate limit alert, got %v", got)
	}

	// A different IP does not share the window.
	if w := do(h, "GET", "/health", "5.6.7.8", "", ""); w.Code != http.StatusOK {
		t.Errorf("other IP = %v, want 200", w.Code)
	}

	time.Sleep(600 * time.Millisecond)
	if w := do(h, "GET", "/health", "1.2.3.4", "", ""); w.Code != http.StatusOK {
		t.Errorf("request after window = %v, want 200", w.Code)
	}
}

func TestConcurrentBurstAdmitsOne(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateWindow = 10 * time.Second

	s, _, _ := newTestServer(t, cfg)
	h := s.Handler()

	const n = 16
	var wg sync.WaitGroup
	codes := make(chan int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- do(h, "GET", "/health", "1.2.3.4", "", "").Code
		}()
	}
	wg.Wait()
	close(codes)

	accepted := 0
	for code := range codes {
		if code == http.StatusOK {
			accepted++
		}
	}

	if accepted != 1 {
		t.Errorf("expected exactly 1 of %v concurrent requests accepted, got %v", n, accepted)
	}
}

func TestUnbanEndpoint(t *testing.T) {
	s, store, _ := newTestServer(t, testConfig(t))
	h := s.Handler()
	store.Ban("7.7.7.7", "test")

	w := do(h, "POST", "/unban", "1.2.3.4", testKey, `{"ip":"7.7.7.7"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("unban = %v, want 200", w.Code)
	}
	if store.IsBanned("7.7.7.7") {
		t.Fatal("IP still banned after unban")
	}
	if w := do(h, "GET", "/health", "7.7.7.7", "", ""); w.Code != http.StatusOK {
		t.Errorf("unbanned IP on /health = %v, want 200", w.Code)
	}

	// Unbanning a clean IP is reported, not an error.
	w = do(h, "POST", "/unban", "1.2.3.4", testKey, `{"ip":"8.8.8.8"}`)
	if w.Code != http.StatusOK {
		t.Errorf("unban of clean IP = %v, want 200", w.Code)
	}

	if w := do(h, "POST", "/unban", "1.2.3.4", testKey, `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("unban without ip = %v, want 400", w.Code)
	}
}

func TestPauseResume(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig(t))
	h := s.Handler()

	if w := do(h, "POST", "/pause", "1.2.3.4", testKey, ""); w.Code != http.StatusOK {
		t.Fatalf("pause = %v, want 200", w.Code)
	}

	w := do(h, "GET", "/status", "1.2.3.4", testKey, "")
	var st struct {
		Paused bool `json:"paused"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Paused {
		t.Error("status does not report paused after /pause")
	}

	w = do(h, "POST", "/resume", "1.2.3.4", testKey, "")
	if w.Code != http.StatusOK {
		t.Fatalf("resume = %v, want 200", w.Code)
	}

	var res struct {
		FlagRemoved bool `json:"flag_removed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.FlagRemoved {
		t.Error("resume did not remove the pause flag")
	}
}

func TestDeployReportsScriptFailure(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.DeployScript, []byte("#!/bin/sh\nexit 1\n"), 0755); err != nil {
		t.Fatal(err)
	}

	s, _, _ := newTestServer(t, cfg)

	w := do(s.Handler(), "POST", "/deploy", "1.2.3.4", testKey, "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("deploy with failing script = %v, want 500", w.Code)
	}

	var res struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Status != "error" || res.Error == "" {
		t.Errorf("expected structured error body, got %+v", res)
	}
}

func TestDeploySuccess(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.DeployScript, []byte("#!/bin/sh\necho ok\n"), 0755); err != nil {
		t.Fatal(err)
	}

	s, _, _ := newTestServer(t, cfg)

	if w := do(s.Handler(), "POST", "/deploy", "1.2.3.4", testKey, ""); w.Code != http.StatusOK {
		t.Errorf("deploy = %v, want 200", w.Code)
	}
}

func TestRejectionBodiesAreUniform(t *testing.T) {
	s, store, _ := newTestServer(t, testConfig(t))
	h := s.Handler()
	store.Ban("7.7.7.7", "test")

	checks := []struct {
		name string
		w    *httptest.ResponseRecorder
	}{
		{"banned", do(h, "GET", "/status", "7.7.7.7", testKey, "")},
		{"unauthorized", do(h, "GET", "/status", "1.2.3.4", "wrongkey", "")},
	}

	for _, c := range checks {
		var res map[string]interface{}
		if err := json.Unmarshal(c.w.Body.Bytes(), &res); err != nil {
			t.Fatalf("%v: body is not JSON: %v", c.name, err)
		}
		if _, ok := res["error"]; !ok {
			t.Errorf("%v: rejection body missing error field: %v", c.name, res)
		}
		if len(res) != 1 {
			t.Errorf("%v: rejection body leaks extra fields: %v", c.name, res)
		}
	}
}

func TestServerRequiresAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIKey = ""

	if _, err := New(cfg, banlist.NewMemoryStore(), alert.Nop{}, firewall.Nop{}); err == nil {
		t.Fatal("expected error when no API key is configured")
	}
}
