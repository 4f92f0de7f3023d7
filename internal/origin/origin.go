// Package origin implements the browser Origin policy shared by the signaling
// WebSocket upgrade and the CORS-enabled HTTP routes.
//
// Origins are compared in a canonical form: lowercase scheme and hostname,
// bracketed IPv6 literals, and the scheme's default port omitted.
package origin

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const nullOrigin = "null"

// NormalizeHeader validates and normalizes a browser Origin header.
//
// It returns the normalized origin (scheme://host[:port]) and the host[:port]
// portion for same-host comparisons. The opaque origin "null" is accepted and
// returned with an empty host.
func NormalizeHeader(originHeader string) (normalizedOrigin string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	switch trimmed {
	case "":
		return "", "", false
	case nullOrigin:
		return nullOrigin, "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" || u.Opaque != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(scheme, u.Host)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// IsAllowed reports whether a normalized origin may talk to a request whose
// Host header is requestHost.
//
// With a non-empty allow-list, each entry is "*" or a normalized origin and
// the origin must match one of them. Otherwise only same-host requests pass.
// The scheme is not compared in that case: behind a TLS-terminating proxy
// the relay sees plain HTTP while the browser reports https.
func IsAllowed(normalizedOrigin, originHost, requestHost string, allowedOrigins []string) bool {
	if len(allowedOrigins) > 0 {
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == normalizedOrigin {
				return true
			}
		}
		return false
	}

	scheme, _, found := strings.Cut(normalizedOrigin, "://")
	if !found || (scheme != "http" && scheme != "https") {
		return false
	}
	reqHost, ok := canonicalHost(scheme, strings.TrimSpace(requestHost))
	return ok && reqHost == originHost
}

// AllowRequest applies the Origin policy to r. Requests without an Origin
// header (non-browser clients) are allowed; a repeated or malformed header is
// rejected.
func AllowRequest(r *http.Request, allowedOrigins []string) bool {
	values := r.Header.Values("Origin")
	switch len(values) {
	case 0:
		return true
	case 1:
	default:
		return false
	}
	raw := strings.TrimSpace(values[0])
	if raw == "" {
		return true
	}
	normalized, host, ok := NormalizeHeader(raw)
	if !ok {
		return false
	}
	return IsAllowed(normalized, host, r.Host, allowedOrigins)
}

// canonicalHost lowercases an authority, validates its port and drops the
// port when it is the default for scheme.
func canonicalHost(scheme, authority string) (string, bool) {
	hostname, rawPort, ok := splitHostPort(authority)
	if !ok {
		return "", false
	}
	// IPv6 zones never appear in browser origins.
	if strings.Contains(hostname, "%") {
		return "", false
	}
	hostname = strings.ToLower(hostname)

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host = net.JoinHostPort(hostname, strconv.FormatUint(port, 10))
	}
	return host, true
}

// splitHostPort splits an authority into hostname and port. IPv6 literals are
// returned without brackets; the port is empty when absent and is not
// validated here.
func splitHostPort(authority string) (hostname, port string, ok bool) {
	if h, p, err := net.SplitHostPort(authority); err == nil {
		if h == "" || p == "" {
			return "", "", false
		}
		return h, p, true
	}

	if strings.HasPrefix(authority, "[") {
		if !strings.HasSuffix(authority, "]") {
			return "", "", false
		}
		hostname = authority[1 : len(authority)-1]
		if hostname == "" || strings.ContainsAny(hostname, "[]") {
			return "", "", false
		}
		return hostname, "", true
	}
	// Unbracketed IPv6 literals are not valid in the authority component.
	if authority == "" || strings.ContainsAny(authority, ":[]") {
		return "", "", false
	}
	return authority, "", true
}
