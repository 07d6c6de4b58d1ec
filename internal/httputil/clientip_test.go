package httputil

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"

	if got := ClientIP(r, false); got != "203.0.113.7" {
		t.Errorf("ClientIP = %q, want 203.0.113.7", got)
	}
}

func TestClientIPIgnoresHeadersWithoutTrust(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	r.Header.Set("X-Real-IP", "198.51.100.2")

	if got := ClientIP(r, false); got != "203.0.113.7" {
		t.Errorf("untrusted proxy headers must be ignored, got %q", got)
	}
}

func TestClientIPForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1, 10.0.0.2")

	if got := ClientIP(r, true); got != "198.51.100.1" {
		t.Errorf("ClientIP = %q, want first X-Forwarded-For entry", got)
	}
}

func TestClientIPRealIPFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	r.Header.Set("X-Real-IP", " 198.51.100.2 ")

	if got := ClientIP(r, true); got != "198.51.100.2" {
		t.Errorf("ClientIP = %q, want X-Real-IP value", got)
	}
}

func TestClientIPBadRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "no-port-here"

	if got := ClientIP(r, false); got != "no-port-here" {
		t.Errorf("ClientIP = %q, want raw RemoteAddr", got)
	}
}
