// Package dashboard serves the flowdeck browser UI: flow graph, live
// connection table, and the tabbed settings shell.
package dashboard

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/flowdeck/flowdeck/internal/config"
	"github.com/flowdeck/flowdeck/internal/history"
	"github.com/flowdeck/flowdeck/internal/metrics"
	"github.com/flowdeck/flowdeck/internal/tabs"
	"github.com/flowdeck/flowdeck/internal/traffic"
)

// tabEvent is a debounced active-tab decision pushed to event streams.
type tabEvent struct {
	Active string `json:"active"`
	OK     bool   `json:"ok"`
}

// Server serves the flowdeck dashboard UI.
type Server struct {
	auth    *Auth
	tracker *traffic.Tracker
	store   *history.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	mux     *http.ServeMux

	mu       sync.RWMutex
	cfg      *config.Config
	selector *tabs.Selector
	ring     tabs.Ring

	tabMu   sync.Mutex
	tabSubs map[chan tabEvent]struct{}
}

// NewServer creates a dashboard server with access-code authentication.
// store may be nil when history is disabled.
func NewServer(cfg *config.Config, tracker *traffic.Tracker, store *history.Store, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		auth:    NewAuth(time.Duration(cfg.Server.SessionTTLMinutes) * time.Minute),
		tracker: tracker,
		store:   store,
		metrics: m,
		logger:  logger,
		mux:     http.NewServeMux(),
		cfg:     cfg,
		tabSubs: make(map[chan tabEvent]struct{}),
	}
	s.applyTabs(cfg.Dashboard)
	s.routes()
	return s
}

// AccessCode returns the one-time access code displayed in the terminal.
func (s *Server) AccessCode() string {
	return s.auth.AccessCode()
}

// Handler returns the full HTTP handler: health and metrics are open,
// everything under /dashboard sits behind the auth middleware.
func (s *Server) Handler() http.Handler {
	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.Handle("GET /metrics", s.metrics.Handler())
	root.Handle("/", http.RedirectHandler("/dashboard", http.StatusFound))
	root.Handle("/dashboard", s.auth.Middleware(s.mux))
	root.Handle("/dashboard/", s.auth.Middleware(s.mux))
	return root
}

// Reconfigure applies a hot-reloaded config: new tab order and selector
// tuning take effect, clearing stale visibility state.
func (s *Server) Reconfigure(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.applyTabsLocked(cfg.Dashboard)
}

func (s *Server) applyTabs(dc config.DashboardConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyTabsLocked(dc)
}

func (s *Server) applyTabsLocked(dc config.DashboardConfig) {
	if s.selector != nil {
		s.selector.Stop()
	}
	quiet := time.Duration(dc.QuietIntervalMs) * time.Millisecond
	s.selector = tabs.NewSelector(dc.Tabs, quiet, dc.ActivationThreshold, s.broadcastTab)
	s.ring = tabs.NewRing(dc.Tabs...)
}

// subscribeTabs registers a channel for debounced active-tab decisions.
func (s *Server) subscribeTabs() chan tabEvent {
	ch := make(chan tabEvent, 4)
	s.tabMu.Lock()
	s.tabSubs[ch] = struct{}{}
	s.tabMu.Unlock()
	return ch
}

func (s *Server) unsubscribeTabs(ch chan tabEvent) {
	s.tabMu.Lock()
	if _, ok := s.tabSubs[ch]; ok {
		delete(s.tabSubs, ch)
		close(ch)
	}
	s.tabMu.Unlock()
}

// broadcastTab fans a selector decision out to event streams without
// blocking. Runs inside the selector's debounce callback, so it must
// not call back into the selector.
func (s *Server) broadcastTab(key string, ok bool) {
	ev := tabEvent{Active: key, OK: ok}
	s.tabMu.Lock()
	defer s.tabMu.Unlock()
	for ch := range s.tabSubs {
		select {
		case ch <- ev:
		default: // stream lagging, drop
		}
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /dashboard/login", s.handleLoginPage)
	s.mux.HandleFunc("POST /dashboard/login", s.handleLoginSubmit)
	s.mux.HandleFunc("POST /dashboard/logout", s.handleLogout)
	s.mux.HandleFunc("GET /dashboard", s.handleOverview)
	s.mux.HandleFunc("GET /dashboard/connections", s.handleConnections)
	s.mux.HandleFunc("GET /dashboard/proxies", s.handleProxies)
	s.mux.HandleFunc("GET /dashboard/rules", s.handleRules)
	s.mux.HandleFunc("GET /dashboard/settings", s.handleSettings)

	// JSON API for the flow chart and hover lookups
	s.mux.HandleFunc("GET /dashboard/api/flow", s.handleAPIFlow)
	s.mux.HandleFunc("GET /dashboard/api/connections", s.handleAPIConnections)
	s.mux.HandleFunc("GET /dashboard/api/role", s.handleAPIRole)
	s.mux.HandleFunc("GET /dashboard/api/history", s.handleAPIHistory)

	// Visibility observations from the settings page drive tab activation
	s.mux.HandleFunc("POST /dashboard/api/visibility", s.handleVisibilityObserve)
	s.mux.HandleFunc("GET /dashboard/api/visibility", s.handleVisibilityActive)
	s.mux.HandleFunc("GET /dashboard/api/tabs/cycle", s.handleTabCycle)

	// SSE
	s.mux.HandleFunc("GET /dashboard/api/events", s.handleSSE)
}
