package origin

import (
	"net/url"
	"strings"
	"testing"
)

func FuzzNormalizeHeader(f *testing.F) {
	for _, seed := range []string{
		"HTTPS://Example.COM:443",
		"http://010.0.0.1",
		"http://[::FFFF:192.0.2.1]",
		"null",
		"",
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com?query",
		"https://example.com,https://evil.example.com",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, header string) {
		norm, host, ok := NormalizeHeader(header)
		if !ok {
			return
		}
		if norm == "null" {
			if host != "" {
				t.Fatalf("null origin has host %q", host)
			}
			return
		}

		scheme, rest, found := strings.Cut(norm, "://")
		if !found || (scheme != "http" && scheme != "https") {
			t.Fatalf("normalized origin %q has no http(s) scheme", norm)
		}
		if rest != host {
			t.Fatalf("host=%q does not match normalized origin %q", host, norm)
		}
		if strings.ContainsAny(norm, " \t\r\n?#") {
			t.Fatalf("normalized origin %q contains whitespace or delimiters", norm)
		}

		u, err := url.Parse(norm)
		if err != nil {
			t.Fatalf("url.Parse(%q): %v", norm, err)
		}
		if u.Host != host || u.Path != "" || u.RawQuery != "" || u.User != nil {
			t.Fatalf("normalized origin %q parses to %#v", norm, u)
		}

		again, againHost, ok := NormalizeHeader(norm)
		if !ok || again != norm || againHost != host {
			t.Fatalf("not idempotent: %q -> (%q, %q, %v)", norm, again, againHost, ok)
		}
	})
}

func FuzzIsAllowed(f *testing.F) {
	f.Add("https://app.example.com", "app.example.com:443")
	f.Add("http://010.0.0.1", "010.0.0.1")
	f.Add("http://[::FFFF:192.0.2.1]", "[::FFFF:192.0.2.1]")
	f.Add("null", "app.example.com")

	f.Fuzz(func(t *testing.T, header, requestHost string) {
		norm, host, ok := NormalizeHeader(header)
		if !ok {
			// Must not panic on unvalidated input.
			_ = IsAllowed(header, header, requestHost, nil)
			return
		}

		if !IsAllowed(norm, host, requestHost, []string{"*"}) {
			t.Fatalf("wildcard rejected %q", norm)
		}
		if !IsAllowed(norm, host, requestHost, []string{norm}) {
			t.Fatalf("exact allow-list entry rejected %q", norm)
		}
		if IsAllowed(norm, host, requestHost, []string{norm + "x"}) {
			t.Fatalf("mismatched allow-list entry accepted %q", norm)
		}

		if norm == "null" {
			if IsAllowed(norm, host, requestHost, nil) {
				t.Fatalf("null origin allowed under same-host policy")
			}
			return
		}
		if !IsAllowed(norm, host, host, nil) {
			t.Fatalf("origin host %q does not match itself", host)
		}
		if _, port, ok := splitHostPort(host); ok && port == "" {
			defaultPort := "80"
			if strings.HasPrefix(norm, "https://") {
				defaultPort = "443"
			}
			if !IsAllowed(norm, host, host+":"+defaultPort, nil) {
				t.Fatalf("default port not equivalent for %q", norm)
			}
		}
	})
}
