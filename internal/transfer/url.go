package transfer

import (
	"net/url"
	"strings"
)

// ParseSourceURL validates that raw is an absolute http or https URL with a host.
func ParseSourceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &InvalidURLError{URL: raw, Reason: "url is required"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidURLError{URL: raw, Reason: "malformed url", Err: err}
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, &InvalidURLError{URL: raw, Reason: "scheme must be http or https"}
	}

	if u.Host == "" {
		return nil, &InvalidURLError{URL: raw, Reason: "missing host"}
	}

	return u, nil
}
