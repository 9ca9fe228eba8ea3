package fetcher

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"dclid":   true,
	"msclkid": true,
	"ref":     true,
}

var trackingPrefixes = []string{"utm_", "mc_"}

// CanonicalURL normalizes a page URL so that trivially different spellings of
// the same page collide on the recipes.canonical_url unique index.
func CanonicalURL(raw string) (string, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "/" {
		u.Path = ""
	}

	query := u.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		if isTrackingParam(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	kept := url.Values{}
	for _, key := range keys {
		kept[key] = query[key]
	}
	u.RawQuery = kept.Encode()
	u.ForceQuery = false

	return u.String(), nil
}

// ParseURL validates that raw is an absolute http(s) URL.
func ParseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &PermanentError{URL: raw, Reason: "empty url"}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, &PermanentError{URL: raw, Reason: "malformed url", Err: err}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, &PermanentError{URL: raw, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Hostname() == "" {
		return nil, &PermanentError{URL: raw, Reason: "missing host"}
	}
	return u, nil
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if trackingParams[lower] {
		return true
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
