package dashboard

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/flowdeck/internal/config"
	"github.com/flowdeck/flowdeck/internal/flowgraph"
	"github.com/flowdeck/flowdeck/internal/metrics"
	"github.com/flowdeck/flowdeck/internal/traffic"
)

func newTestServer(t *testing.T) (*Server, *traffic.Tracker) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	tracker := traffic.NewTracker(m, logger)
	s := NewServer(config.Defaults(), tracker, nil, m, logger)
	return s, tracker
}

// testClientIP matches the host of httptest.NewRequest's RemoteAddr,
// so minted sessions pass the IP binding check.
const testClientIP = "192.0.2.1"

// get performs an authenticated request against the full handler.
func get(t *testing.T, s *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	token, ok := s.auth.Grant(s.AccessCode(), testClientIP)
	require.True(t, ok)
	req := httptest.NewRequest(method, path, body)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuth_RedirectsWithoutSession(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard/login", rec.Header().Get("Location"))
}

func TestAuth_LoginFlow(t *testing.T) {
	s, _ := newTestServer(t)

	form := url.Values{"code": {s.AccessCode()}}
	req := httptest.NewRequest("POST", "/dashboard/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.True(t, s.auth.Valid(cookies[0].Value, testClientIP))
}

func TestAuth_SessionBoundToIP(t *testing.T) {
	s, _ := newTestServer(t)

	// A cookie granted to one address must not work from another.
	token, ok := s.auth.Grant(s.AccessCode(), "10.9.9.9")
	require.True(t, ok)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard/login", rec.Header().Get("Location"))
}

func TestAuth_LogoutRevokesSession(t *testing.T) {
	s, _ := newTestServer(t)

	token, ok := s.auth.Grant(s.AccessCode(), testClientIP)
	require.True(t, ok)

	req := httptest.NewRequest("POST", "/dashboard/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	assert.False(t, s.auth.Valid(token, testClientIP))

	req = httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "/dashboard/login", rec.Header().Get("Location"))
}

func TestAuth_BadCodeRejected(t *testing.T) {
	s, _ := newTestServer(t)

	form := url.Values{"code": {"00000000"}}
	if s.AccessCode() == "00000000" {
		form.Set("code", "11111111")
	}
	req := httptest.NewRequest("POST", "/dashboard/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid access code")
	assert.Empty(t, rec.Result().Cookies())
}

func TestHealthAndMetricsOpen(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAPIFlow(t *testing.T) {
	s, tracker := newTestServer(t)
	tracker.Update([]flowgraph.Connection{
		{SourceIP: "10.0.0.2", Rule: "DOMAIN", RulePayload: "a.com", Chains: []string{"hk", "us"}},
	}, 1, 2)

	rec := get(t, s, "GET", "/dashboard/api/flow", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var g flowgraph.Graph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 3)
}

func TestAPIFlow_EmptySentinel(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "GET", "/dashboard/api/flow", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// Downstream rendering detects the empty state from empty arrays,
	// never null.
	assert.JSONEq(t, `{"nodes": [], "edges": []}`, rec.Body.String())
}

func TestAPIRole(t *testing.T) {
	s, tracker := newTestServer(t)
	tracker.Update([]flowgraph.Connection{
		{SourceIP: "10.0.0.2", Rule: "MATCH", Chains: []string{"direct"}},
	}, 0, 0)

	rec := get(t, s, "GET", "/dashboard/api/role?name=10.0.0.2", nil)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Source", body["role"])

	rec = get(t, s, "GET", "/dashboard/api/role?name=nonexistent-name", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Unknown", body["role"])

	rec = get(t, s, "GET", "/dashboard/api/role", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVisibilityRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "POST", "/dashboard/api/visibility", strings.NewReader(`{"key":"general","ratio":0.25}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body["ok"].(bool), "0.25 sits below the activation threshold")

	rec = get(t, s, "POST", "/dashboard/api/visibility", strings.NewReader(`{"key":"backend","ratio":0.35}`))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["ok"].(bool))
	assert.Equal(t, "backend", body["active"])

	rec = get(t, s, "GET", "/dashboard/api/visibility", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "backend", body["active"])
}

func TestVisibility_BadInput(t *testing.T) {
	s, _ := newTestServer(t)

	for _, payload := range []string{`{`, `{"key":"","ratio":0.5}`, `{"key":"general","ratio":1.5}`} {
		rec := get(t, s, "POST", "/dashboard/api/visibility", strings.NewReader(payload))
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
}

func TestTabCycle(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		query string
		want  string
	}{
		{"from=connections&dir=next", "general"},
		{"from=general&dir=prev", "connections"},
		{"from=general&dir=next", "backend"},
	}
	for _, tc := range cases {
		rec := get(t, s, "GET", "/dashboard/api/tabs/cycle?"+tc.query, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.want, body["tab"], tc.query)
	}

	rec := get(t, s, "GET", "/dashboard/api/tabs/cycle?from=general&dir=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconfigure_ReplacesTabs(t *testing.T) {
	s, _ := newTestServer(t)

	// Pending visibility state must not survive a tab-set change.
	get(t, s, "POST", "/dashboard/api/visibility", strings.NewReader(`{"key":"general","ratio":0.9}`))

	cfg := config.Defaults()
	cfg.Dashboard.Tabs = []string{"general", "advanced"}
	s.Reconfigure(cfg)

	rec := get(t, s, "GET", "/dashboard/api/visibility", nil)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body["ok"].(bool), "stale ratios should be cleared")

	rec = get(t, s, "GET", "/dashboard/api/tabs/cycle?from=advanced&dir=next", nil)
	var cyc map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cyc))
	assert.Equal(t, "general", cyc["tab"])
}

func TestAllPagesRouted(t *testing.T) {
	s, tracker := newTestServer(t)
	tracker.Update(testPageConns(), 0, 0)

	pages := []string{
		"/dashboard",
		"/dashboard/connections",
		"/dashboard/proxies",
		"/dashboard/rules",
		"/dashboard/settings",
	}
	for _, path := range pages {
		rec := get(t, s, "GET", path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func testPageConns() []flowgraph.Connection {
	return []flowgraph.Connection{
		{SourceIP: "10.0.0.2", Rule: "DOMAIN", RulePayload: "a.com", Chains: []string{"entry-hk", "exit-us"}, Upload: 10, Download: 100},
		{SourceIP: "10.0.0.3", Rule: "DOMAIN", RulePayload: "a.com", Chains: []string{"entry-hk", "exit-us"}, Upload: 20, Download: 200},
		{SourceIP: "10.0.0.4", Rule: "MATCH", Chains: []string{"direct"}, Upload: 5, Download: 50},
	}
}

func TestProxiesPage_BreaksDownByChainHop(t *testing.T) {
	s, tracker := newTestServer(t)
	tracker.Update(testPageConns(), 0, 0)

	rec := get(t, s, "GET", "/dashboard/proxies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, hop := range []string{"entry-hk", "exit-us", "direct"} {
		assert.Contains(t, body, hop)
	}
	// entry-hk carries two connections, 30 up / 300 down.
	assert.Regexp(t, `entry-hk</td>\s*<td class="mono">2</td>\s*<td class="mono">30</td>\s*<td class="mono">300</td>`, body)
}

func TestRulesPage_BreaksDownByRuleLabel(t *testing.T) {
	s, tracker := newTestServer(t)
	tracker.Update(testPageConns(), 0, 0)

	rec := get(t, s, "GET", "/dashboard/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "DOMAIN: a.com")
	assert.Contains(t, body, "MATCH")
	// Busiest rule first.
	assert.Less(t, strings.Index(body, "DOMAIN: a.com"), strings.Index(body, "MATCH"))
}

func TestVisibilityDecisionPushed(t *testing.T) {
	s, _ := newTestServer(t)

	ch := s.subscribeTabs()
	defer s.unsubscribeTabs(ch)

	get(t, s, "POST", "/dashboard/api/visibility", strings.NewReader(`{"key":"backend","ratio":0.8}`))

	// The selector's quiet interval elapses and the decision lands on
	// the event stream without any client polling.
	select {
	case ev := <-ch:
		assert.True(t, ev.OK)
		assert.Equal(t, "backend", ev.Active)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced decision never broadcast")
	}
}

func TestOverviewPage(t *testing.T) {
	s, tracker := newTestServer(t)
	tracker.Update([]flowgraph.Connection{
		{SourceIP: "10.0.0.2", Rule: "MATCH", Chains: []string{"direct"}},
	}, 0, 0)

	rec := get(t, s, "GET", "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flow")
}

func TestSettingsPage_CarriesTuning(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "GET", "/dashboard/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "const threshold = 0.3")
	assert.Contains(t, body, "const quietMs = 100")
	for _, tab := range config.DefaultTabs {
		assert.Contains(t, body, `data-tab="`+tab+`"`)
	}
}
