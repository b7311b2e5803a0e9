package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when a raw address cannot be turned into a
// canonical http(s) URL.
var ErrInvalidURL = errors.New("invalid URL")

// defaultScheme is used for addresses typed without a scheme.
const defaultScheme = "https"

// Canonicalize returns the canonical identity of raw.
// If raw is relative it is resolved against base. An empty base means there is
// no base, in which case raw must be absolute or a bare "host/path" address.
func Canonicalize(raw, base string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidURL)
	}

	u, err := resolve(trimmed, base)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q in %q", ErrInvalidURL, u.Scheme, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Opaque != "" {
		return "", fmt.Errorf("%w: opaque address %q", ErrInvalidURL, raw)
	}

	// "https://host" and "https://host/" name the same resource.
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	return u.String(), nil
}

// resolve parses raw and, when needed, resolves it against base.
func resolve(raw, base string) (*url.URL, error) {
	if base == "" {
		if !hasScheme(raw) {
			raw = defaultScheme + "://" + strings.TrimPrefix(raw, "//")
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		return u, nil
	}

	b, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: base %q: %v", ErrInvalidURL, base, err)
	}
	if !b.IsAbs() {
		return nil, fmt.Errorf("%w: base %q is not absolute", ErrInvalidURL, base)
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return b.ResolveReference(ref), nil
}

// hasScheme reports whether raw starts with "scheme:" followed by "//" or an
// http(s) scheme. "example.com:8080/x" is treated as host:port, not a scheme.
func hasScheme(raw string) bool {
	i := strings.Index(raw, ":")
	if i <= 0 {
		return false
	}
	scheme := raw[:i]
	for j, r := range scheme {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case j > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	rest := raw[i+1:]
	if strings.HasPrefix(rest, "//") {
		return true
	}
	// mailto:, javascript:, data: and friends have no authority but still
	// carry a scheme that must be rejected rather than treated as a host.
	return !startsWithDigit(rest)
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// IsSameDomain reports whether rawURL has a scheme and its authority equals
// domain exactly. Subdomains and scheme-relative addresses never match.
func IsSameDomain(rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme == "" || u.Host == "" {
		return false
	}
	return strings.ToLower(u.Host) == strings.ToLower(domain)
}

// Domain returns the authority (host and optional port) of rawURL.
func Domain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}
	return strings.ToLower(u.Host), nil
}

// Path returns the path of rawURL, "/" when empty. Used for glob filters.
func Path(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
