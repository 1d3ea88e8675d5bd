package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// BuildAbsolute builds an absolute URL from a base origin and a path.
func BuildAbsolute(base, p string) string {
	base = normalizeBaseURL(base)
	if p == "" {
		return base
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "about:") {
		return p
	}
	if strings.HasPrefix(p, "/") {
		return base + p
	}
	return base + "/" + p
}

// MatchRequest reports whether a request URL matches a route pattern.
// Patterns starting with "/" are globbed against the URL path only, so
// query strings never affect the match. Other patterns are globbed against
// the URL without its query.
func MatchRequest(pattern, rawURL string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	subject := u.Path
	if !strings.HasPrefix(pattern, "/") {
		u.RawQuery = ""
		u.Fragment = ""
		subject = u.String()
	}
	ok, err := path.Match(pattern, subject)
	return err == nil && ok
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}
