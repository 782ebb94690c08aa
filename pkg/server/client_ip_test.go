package server

import (
	"net/http/httptest"
	"testing"
)

// TestResolveClientIPUntrustedPeer verifies forwarded headers are ignored
// when the peer is not a trusted proxy.
func TestResolveClientIPUntrustedPeer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:4444"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")

	got := resolveClientIP(r, nil)
	if got == nil || got.String() != "203.0.113.7" {
		t.Errorf("resolveClientIP() = %v, want 203.0.113.7", got)
	}
}

// TestResolveClientIPTrustedProxy verifies the rightmost untrusted hop in
// X-Forwarded-For wins behind a trusted proxy.
func TestResolveClientIPTrustedProxy(t *testing.T) {
	trusted := newProxyMatcher([]string{"10.0.0.0/8"}, nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:9000"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.9")

	got := resolveClientIP(r, trusted)
	if got == nil || got.String() != "198.51.100.1" {
		t.Errorf("resolveClientIP() = %v, want 198.51.100.1", got)
	}
}

// TestResolveClientIPForwardedHeader verifies RFC 7239 Forwarded parsing,
// including quoted bracketed IPv6.
func TestResolveClientIPForwardedHeader(t *testing.T) {
	trusted := newProxyMatcher([]string{"10.0.0.1"}, nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("Forwarded", `for="[2001:db8::1]:8080";proto=https, for=10.0.0.1`)

	got := resolveClientIP(r, trusted)
	if got == nil || got.String() != "2001:db8::1" {
		t.Errorf("resolveClientIP() = %v, want 2001:db8::1", got)
	}
}

// TestResolveClientIPAllTrusted verifies the leftmost hop is returned when
// the whole chain is our own proxies.
func TestResolveClientIPAllTrusted(t *testing.T) {
	trusted := newProxyMatcher([]string{"10.0.0.0/8"}, nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("X-Forwarded-For", "10.2.0.1, 10.3.0.1")

	got := resolveClientIP(r, trusted)
	if got == nil || got.String() != "10.2.0.1" {
		t.Errorf("resolveClientIP() = %v, want 10.2.0.1", got)
	}
}

// TestParseHostIP covers port stripping, brackets, zones, and junk.
func TestParseHostIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.0.2.1", "192.0.2.1"},
		{"192.0.2.1:8080", "192.0.2.1"},
		{"[2001:db8::2]:443", "2001:db8::2"},
		{"2001:db8::2", "2001:db8::2"},
		{"fe80::1%eth0", "fe80::1"},
		{"unknown", ""},
		{"", ""},
		{"not-an-ip", ""},
	}
	for _, tt := range tests {
		got := parseHostIP(tt.in)
		if tt.want == "" {
			if got != nil {
				t.Errorf("parseHostIP(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		if got == nil || got.String() != tt.want {
			t.Errorf("parseHostIP(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
}

// TestProxyMatcherInvalidEntries verifies bad entries are skipped and an
// all-invalid list trusts nothing.
func TestProxyMatcherInvalidEntries(t *testing.T) {
	if m := newProxyMatcher([]string{"nonsense", "300.1.1.1"}, testLogger(t)); m != nil {
		t.Errorf("newProxyMatcher(all invalid) = %v, want nil", m)
	}

	m := newProxyMatcher([]string{"nonsense", "192.0.2.10"}, testLogger(t))
	if m == nil {
		t.Fatal("newProxyMatcher dropped the valid entry")
	}
	if !m.IsTrusted(parseHostIP("192.0.2.10")) {
		t.Error("valid entry not trusted")
	}
	if m.IsTrusted(parseHostIP("192.0.2.11")) {
		t.Error("unlisted IP trusted")
	}
}
