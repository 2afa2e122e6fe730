// Package metadata captures client provenance (IP address and User-Agent)
// for consent events and audit records.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"cidledger/pkg/platform/validation"
	"cidledger/pkg/requestcontext"
)

// MaxForwardedHeaderLength bounds X-Forwarded-For / X-Real-IP before parsing.
const MaxForwardedHeaderLength = 500

// Middleware extracts client metadata, honouring forwarding headers only
// when the direct peer is a trusted proxy.
type Middleware struct {
	trusted []netip.Prefix
}

// New creates the middleware. With no trusted proxies, forwarding headers are ignored.
func New(trustedProxies ...netip.Prefix) *Middleware {
	return &Middleware{trusted: trustedProxies}
}

// ParseTrustedProxies parses CIDR strings, skipping blanks.
func ParseTrustedProxies(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		if len(ua) > validation.MaxUserAgentLength {
			ua = ua[:validation.MaxUserAgentLength]
		}
		ctx := requestcontext.WithClientMetadata(r.Context(), m.clientIP(r), ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	remote := remoteIP(r.RemoteAddr)
	if _, err := netip.ParseAddr(remote); err != nil {
		return ""
	}
	if !m.isTrusted(remote) {
		return remote
	}

	candidate := r.Header.Get("X-Forwarded-For")
	if candidate == "" {
		candidate = r.Header.Get("X-Real-IP")
	}
	if candidate == "" || len(candidate) > MaxForwardedHeaderLength {
		return remote
	}
	first, _, _ := strings.Cut(candidate, ",")
	first = strings.TrimSpace(first)
	if _, err := netip.ParseAddr(first); err != nil {
		return remote
	}
	return first
}

func (m *Middleware) isTrusted(ip string) bool {
	if len(m.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, p := range m.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.Trim(remoteAddr, "[]")
	}
	return host
}
