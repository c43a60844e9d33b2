package model

import (
	"net/url"
	"strings"
)

// NormalizeDomain canonicalizes a domain or URL for use as a dedup key:
// lower-cased, scheme and www. stripped, trailing slash removed. When
// stripPath is true any path, query, and fragment are dropped as well;
// the default keeps a path because some competitors are distinguished by
// it (e.g. marketplace storefronts).
func NormalizeDomain(raw string, stripPath bool) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	if stripPath {
		if i := strings.IndexAny(s, "/?#"); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

// EnsureScheme prepends https:// when the value has no scheme, then
// validates the result as an absolute URL with a host. Returns "" when the
// value cannot be made into a valid URL.
func EnsureScheme(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	// Reject hosts with no dot and no port; bare words are almost always
	// parser noise rather than real domains.
	if !strings.Contains(u.Host, ".") && !strings.Contains(u.Host, ":") {
		return ""
	}
	return u.String()
}
