package dashboard

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/flowdeck/flowdeck/internal/flowgraph"
	"github.com/flowdeck/flowdeck/internal/history"
	"github.com/flowdeck/flowdeck/internal/tabs"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": "0.1.0",
	})
}

// --- Login ---

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginTmpl.Execute(w, nil)
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	token, ok := s.auth.Grant(r.FormValue("code"), ip)
	if !ok {
		s.logger.Info("login failed", "ip", ip)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = loginTmpl.Execute(w, map[string]any{"Error": "Invalid access code. Check your terminal."})
		return
	}

	s.logger.Info("login success", "ip", ip)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/dashboard",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   false, // localhost only
	})
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.auth.Revoke(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/dashboard",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/dashboard/login", http.StatusFound)
}

// --- Pages ---

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	graph := s.tracker.Graph()

	data := map[string]any{
		"Active":      "overview",
		"Tabs":        s.tabKeys(),
		"Connections": len(snap.Connections),
		"Upload":      snap.UploadTotal,
		"Download":    snap.DownloadTotal,
		"Nodes":       len(graph.Nodes),
		"Edges":       len(graph.Edges),
		"EmptyGraph":  graph.Empty(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = overviewTmpl.Execute(w, data)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	data := map[string]any{
		"Active":      "connections",
		"Tabs":        s.tabKeys(),
		"Snapshot":    snap,
		"Connections": snap.Connections,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = connectionsTmpl.Execute(w, data)
}

// trafficRow is one line of the per-proxy / per-rule breakdown tables.
type trafficRow struct {
	Name     string
	Count    int
	Upload   int64
	Download int64
}

// breakdown groups the current connections by the names each record
// yields (chain hops for proxies, rule label for rules), accumulating
// counts and byte totals. Rows come back busiest first, name breaking
// ties so the tables render stably.
func breakdown(conns []flowgraph.Connection, names func(flowgraph.Connection) []string) []trafficRow {
	byName := make(map[string]*trafficRow)
	for _, c := range conns {
		for _, name := range names(c) {
			row, ok := byName[name]
			if !ok {
				row = &trafficRow{Name: name}
				byName[name] = row
			}
			row.Count++
			row.Upload += c.Upload
			row.Download += c.Download
		}
	}

	rows := make([]trafficRow, 0, len(byName))
	for _, row := range byName {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

func (s *Server) handleProxies(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	data := map[string]any{
		"Active": "proxies",
		"Rows": breakdown(snap.Connections, func(c flowgraph.Connection) []string {
			return c.Chains
		}),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = proxiesTmpl.Execute(w, data)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	data := map[string]any{
		"Active": "rules",
		"Rows": breakdown(snap.Connections, func(c flowgraph.Connection) []string {
			return []string{c.RuleLabel()}
		}),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = rulesTmpl.Execute(w, data)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	dc := s.cfg.Dashboard
	s.mu.RUnlock()

	// template.JS keeps the numeric literals unescaped in the script block.
	data := map[string]any{
		"Active":    "settings",
		"Tabs":      dc.Tabs,
		"Threshold": template.JS(strconv.FormatFloat(dc.ActivationThreshold, 'g', -1, 64)),
		"QuietMs":   template.JS(strconv.Itoa(dc.QuietIntervalMs)),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = settingsTmpl.Execute(w, data)
}

func (s *Server) tabKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.Keys()
}

// --- JSON API ---

func (s *Server) handleAPIFlow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Graph())
}

func (s *Server) handleAPIConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleAPIRole(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name query parameter is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name": name,
		"role": string(s.tracker.RoleOf(name)),
	})
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []history.Summary{})
		return
	}
	sums, err := s.store.Query(history.QueryOpts{
		Since: r.URL.Query().Get("since"),
	})
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	if sums == nil {
		sums = []history.Summary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

// --- Visibility / tab activation ---

type visibilityEvent struct {
	Key   string  `json:"key"`
	Ratio float64 `json:"ratio"`
}

func (s *Server) handleVisibilityObserve(w http.ResponseWriter, r *http.Request) {
	var ev visibilityEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if ev.Key == "" || ev.Ratio < 0 || ev.Ratio > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key required, ratio in [0, 1]"})
		return
	}

	s.mu.RLock()
	sel := s.selector
	s.mu.RUnlock()

	sel.Observe(ev.Key, ev.Ratio)
	s.writeActive(w, sel)
}

func (s *Server) handleVisibilityActive(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	sel := s.selector
	s.mu.RUnlock()
	s.writeActive(w, sel)
}

func (s *Server) writeActive(w http.ResponseWriter, sel *tabs.Selector) {
	key, ok := sel.MostVisible()
	writeJSON(w, http.StatusOK, map[string]any{"active": key, "ok": ok})
}

func (s *Server) handleTabCycle(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	dir := r.URL.Query().Get("dir")

	s.mu.RLock()
	ring := s.ring
	s.mu.RUnlock()

	var tab string
	switch dir {
	case "next", "":
		tab = ring.Next(from)
	case "prev":
		tab = ring.Prev(from)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dir must be next or prev"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tab": tab})
}

// --- SSE ---

// sseEvent is the compact per-snapshot payload pushed to the browser;
// the client refetches /dashboard/api/flow when one arrives.
type sseEvent struct {
	ID            string `json:"id"`
	ReceivedAt    string `json:"received_at"`
	Connections   int    `json:"connections"`
	UploadTotal   int64  `json:"uploadTotal"`
	DownloadTotal int64  `json:"downloadTotal"`
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Extend write deadline so the SSE connection stays open
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{}) // no deadline

	// Flush headers immediately so clients don't block waiting
	flusher.Flush()

	ch := s.tracker.Hub().Subscribe()
	defer s.tracker.Hub().Unsubscribe(ch)

	tabCh := s.subscribeTabs()
	defer s.unsubscribeTabs(tabCh)

	s.metrics.SSESubscribers.Inc()
	defer s.metrics.SSESubscribers.Dec()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(sseEvent{
				ID:            snap.ID,
				ReceivedAt:    snap.ReceivedAt.UTC().Format(time.RFC3339),
				Connections:   len(snap.Connections),
				UploadTotal:   snap.UploadTotal,
				DownloadTotal: snap.DownloadTotal,
			})
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case ev, ok := <-tabCh:
			if !ok {
				return
			}
			data, _ := json.Marshal(ev)
			_, _ = fmt.Fprintf(w, "event: tab\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
