package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// clientIP resolves the client address for per-IP session accounting.
// Forwarded headers are only honored when the direct peer is a trusted
// proxy; otherwise the socket address wins.
func (s *Server) clientIP(r *http.Request) string {
	ip := resolveClientIP(r, s.trustedProxies)
	if ip == nil {
		return ""
	}
	return ip.String()
}

func resolveClientIP(r *http.Request, trusted *proxyMatcher) net.IP {
	peer := parseHostIP(r.RemoteAddr)
	if peer == nil {
		return nil
	}
	if !trusted.IsTrusted(peer) {
		return peer
	}

	chain := parseForwarded(r.Header.Get("Forwarded"))
	if len(chain) == 0 {
		chain = parseXForwardedFor(r.Header.Get("X-Forwarded-For"))
	}
	if len(chain) == 0 {
		return peer
	}

	// Walk right to left: the first hop not operated by us is the client.
	for i := len(chain) - 1; i >= 0; i-- {
		if !trusted.IsTrusted(chain[i]) {
			return chain[i]
		}
	}
	return chain[0]
}

// parseForwarded extracts the for= addresses from an RFC 7239 Forwarded
// header, in order.
func parseForwarded(header string) []net.IP {
	if header == "" {
		return nil
	}

	var out []net.IP
	for _, element := range strings.Split(header, ",") {
		for _, param := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "for") {
				continue
			}
			if ip := parseHostIP(strings.Trim(strings.TrimSpace(value), "\"")); ip != nil {
				out = append(out, ip)
			}
		}
	}
	return out
}

func parseXForwardedFor(header string) []net.IP {
	if header == "" {
		return nil
	}

	var out []net.IP
	for _, part := range strings.Split(header, ",") {
		if ip := parseHostIP(strings.TrimSpace(part)); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

// parseHostIP parses an address that may carry a port, brackets, or an IPv6
// zone.
func parseHostIP(value string) net.IP {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "unknown") {
		return nil
	}

	host := value
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end != -1 {
			host = host[1:end]
		}
	} else if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if zone := strings.Index(host, "%"); zone != -1 {
		host = host[:zone]
	}
	return net.ParseIP(host)
}

// proxyMatcher answers whether an IP belongs to the trusted proxy set.
// A nil matcher trusts nothing.
type proxyMatcher struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

func newProxyMatcher(entries []string, logger *slog.Logger) *proxyMatcher {
	if len(entries) == 0 {
		return nil
	}

	ips := make(map[string]struct{})
	var nets []*net.IPNet

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				if logger != nil {
					logger.Warn("invalid trusted proxy CIDR", "entry", entry, "error", err)
				}
				continue
			}
			nets = append(nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			if logger != nil {
				logger.Warn("invalid trusted proxy IP", "entry", entry)
			}
			continue
		}
		ips[ip.String()] = struct{}{}
	}

	if len(ips) == 0 && len(nets) == 0 {
		return nil
	}
	return &proxyMatcher{ips: ips, nets: nets}
}

func (m *proxyMatcher) IsTrusted(ip net.IP) bool {
	if m == nil || ip == nil {
		return false
	}
	if _, ok := m.ips[ip.String()]; ok {
		return true
	}
	for _, network := range m.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
