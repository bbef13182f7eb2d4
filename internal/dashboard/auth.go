package dashboard

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const (
	sessionCookieName = "flowdeck_session"
	defaultSessionTTL = 24 * time.Hour
)

// session is one granted dashboard login. Sessions are bound to the
// client address that entered the access code: flowdeck binds to
// loopback by default, and a cookie replayed from another host must
// not ride an existing grant.
type session struct {
	ip      string
	expires time.Time
}

// Auth gates the dashboard behind a one-time access code printed to
// the operator's terminal. Entering the code mints an IP-bound session
// that expires after the configured lifetime.
type Auth struct {
	mu       sync.Mutex
	code     string
	ttl      time.Duration
	sessions map[string]session
}

// NewAuth generates a fresh access code. A non-positive ttl falls back
// to the default session lifetime.
func NewAuth(ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Auth{
		code:     newAccessCode(),
		ttl:      ttl,
		sessions: make(map[string]session),
	}
}

// AccessCode returns the code the operator must enter to log in.
func (a *Auth) AccessCode() string {
	return a.code
}

// Grant exchanges a correct access code for a session token bound to
// ip. Expired sessions are swept on every successful login.
func (a *Auth) Grant(code, ip string) (string, bool) {
	if code != a.code {
		return "", false
	}

	token := newToken()
	a.mu.Lock()
	a.sweepLocked(time.Now())
	a.sessions[token] = session{ip: ip, expires: time.Now().Add(a.ttl)}
	a.mu.Unlock()
	return token, true
}

// Valid reports whether token names a live session granted to ip.
func (a *Auth) Valid(token, ip string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[token]
	if !ok || s.ip != ip {
		return false
	}
	if time.Now().After(s.expires) {
		delete(a.sessions, token)
		return false
	}
	return true
}

// Revoke forgets a session. Unknown tokens are a no-op.
func (a *Auth) Revoke(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

func (a *Auth) sweepLocked(now time.Time) {
	for token, s := range a.sessions {
		if now.After(s.expires) {
			delete(a.sessions, token)
		}
	}
}

// Middleware redirects requests without a live session to the login
// page. The login page itself stays reachable.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dashboard/login" {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || !a.Valid(cookie.Value, clientIP(r)) {
			http.Redirect(w, r, "/dashboard/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newAccessCode returns a random 8-digit numeric code.
func newAccessCode() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(100_000_000))
	return fmt.Sprintf("%08d", n.Int64())
}

// newToken returns a cryptographically random hex string.
func newToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
