package twitter

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// APIError is the JSON error envelope returned by the API.
type APIError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Status int    `json:"status"`
}

func (ae *APIError) Error() string {
	return fmt.Sprintf("%s: %s", ae.Title, ae.Detail)
}

// RatelimitInfo is parsed from the x-rate-limit-* response headers.
type RatelimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Error is returned for any non-2xx API response. Callers should use the
// predicates rather than matching error strings.
type Error struct {
	StatusCode int
	Wrapped    error
	Ratelimit  *RatelimitInfo
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("twitter API error %d", e.StatusCode)
	}
	if e.StatusCode == http.StatusTooManyRequests && e.Ratelimit != nil {
		return fmt.Sprintf("twitter API error %d: %s (throttled until %s)", e.StatusCode, e.Wrapped, e.Ratelimit.Reset.Local())
	}
	return fmt.Sprintf("twitter API error %d: %s", e.StatusCode, e.Wrapped)
}

func (e *Error) Unwrap() error {
	if e.Wrapped == nil {
		return nil
	}
	return e.Wrapped
}

// IsThrottled indicates the request was rejected for rate-limit reasons and
// may succeed after the reset time.
func (e *Error) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// NotFound indicates the resource is absent, deleted, or protected.
func (e *Error) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusForbidden
}

func errorFromHTTPResponse(resp *http.Response, err error) error {
	r := &Error{
		StatusCode: resp.StatusCode,
		Wrapped:    err,
	}
	if resp.Header.Get("x-rate-limit-limit") != "" {
		r.Ratelimit = &RatelimitInfo{}
		if n, err := strconv.ParseInt(resp.Header.Get("x-rate-limit-reset"), 10, 64); err == nil {
			r.Ratelimit.Reset = time.Unix(n, 0)
		}
		if n, err := strconv.ParseInt(resp.Header.Get("x-rate-limit-limit"), 10, 64); err == nil {
			r.Ratelimit.Limit = int(n)
		}
		if n, err := strconv.ParseInt(resp.Header.Get("x-rate-limit-remaining"), 10, 64); err == nil {
			r.Ratelimit.Remaining = int(n)
		}
	}
	return r
}
