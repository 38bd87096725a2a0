package ratelimit

import (
	"strconv"
	"strings"
	"time"
)

// Rate-limit header keys expected from the admin API, matched
// case-insensitively. Reset is seconds since epoch of the next window
// boundary.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// headerValue looks up key in headers ignoring case.
func headerValue(headers map[string]string, key string) (string, bool) {
	if v, ok := headers[key]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// parseHeaders extracts limit, remaining, and reset from response headers.
// All three must be present and numeric; otherwise ok is false and the
// caller must leave tracked state untouched.
func parseHeaders(headers map[string]string) (limit int, remaining int, reset time.Time, ok bool) {
	rawLimit, found := headerValue(headers, HeaderLimit)
	if !found {
		return 0, 0, time.Time{}, false
	}
	rawRemaining, found := headerValue(headers, HeaderRemaining)
	if !found {
		return 0, 0, time.Time{}, false
	}
	rawReset, found := headerValue(headers, HeaderReset)
	if !found {
		return 0, 0, time.Time{}, false
	}

	limit, err := strconv.Atoi(strings.TrimSpace(rawLimit))
	if err != nil {
		return 0, 0, time.Time{}, false
	}
	remaining, err = strconv.Atoi(strings.TrimSpace(rawRemaining))
	if err != nil {
		return 0, 0, time.Time{}, false
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(rawReset), 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, false
	}

	return limit, remaining, time.Unix(epoch, 0).UTC(), true
}
