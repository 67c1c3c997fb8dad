// Package validate holds input validation shared by the server's service
// layer and the client's mutation gateway. Both sides enforce the same rules:
// the client so an invalid form never costs a network round-trip, the server
// because it cannot trust any caller.
package validate

import (
	"net/url"
	"strings"
)

// Field length limits. A browser address bar tops out around 2000 chars, so
// anything longer than MaxURLLength is garbage, not a bookmark.
const (
	MaxTitleLength       = 200
	MaxURLLength         = 2048
	MaxDescriptionLength = 2000
)

// URL trims and validates a bookmark URL, returning the normalized value.
//
// "Syntactically valid" here means an absolute http(s) URL with a host.
// url.Parse alone is far too permissive — it happily accepts "not-a-url"
// as a relative path reference — so we check Scheme and Host explicitly.
func URL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > MaxURLLength {
		return "", false
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}

	return s, true
}

// Title trims and validates a bookmark title: non-empty after trimming,
// within the length limit.
func Title(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > MaxTitleLength {
		return "", false
	}
	return s, true
}

// Description trims a description. Empty is fine (the field is optional);
// only overlong input is rejected.
func Description(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if len(s) > MaxDescriptionLength {
		return "", false
	}
	return s, true
}
