package dashboard

import (
	"testing"
	"time"
)

func TestAuth_GrantRequiresCode(t *testing.T) {
	a := NewAuth(time.Hour)

	if _, ok := a.Grant("wrong-code", "127.0.0.1"); ok {
		t.Error("wrong code granted a session")
	}
	token, ok := a.Grant(a.AccessCode(), "127.0.0.1")
	if !ok || token == "" {
		t.Fatalf("Grant = %q/%v, want token/true", token, ok)
	}
	if !a.Valid(token, "127.0.0.1") {
		t.Error("fresh session not valid")
	}
	if a.Valid(token, "10.0.0.5") {
		t.Error("session valid from a different address")
	}
}

func TestAuth_SessionExpires(t *testing.T) {
	a := NewAuth(10 * time.Millisecond)

	token, ok := a.Grant(a.AccessCode(), "127.0.0.1")
	if !ok {
		t.Fatal("grant failed")
	}
	time.Sleep(25 * time.Millisecond)
	if a.Valid(token, "127.0.0.1") {
		t.Error("expired session still valid")
	}
}

func TestAuth_GrantSweepsExpired(t *testing.T) {
	a := NewAuth(10 * time.Millisecond)

	old, _ := a.Grant(a.AccessCode(), "127.0.0.1")
	time.Sleep(25 * time.Millisecond)
	a.Grant(a.AccessCode(), "127.0.0.1")

	a.mu.Lock()
	_, lingering := a.sessions[old]
	n := len(a.sessions)
	a.mu.Unlock()
	if lingering {
		t.Error("expired session survived the sweep")
	}
	if n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
}

func TestAuth_Revoke(t *testing.T) {
	a := NewAuth(time.Hour)

	token, _ := a.Grant(a.AccessCode(), "127.0.0.1")
	a.Revoke(token)
	if a.Valid(token, "127.0.0.1") {
		t.Error("revoked session still valid")
	}
	a.Revoke("never-issued") // no-op
}

func TestAuth_DefaultTTL(t *testing.T) {
	a := NewAuth(0)
	if a.ttl != defaultSessionTTL {
		t.Errorf("ttl = %v, want %v", a.ttl, defaultSessionTTL)
	}
}
