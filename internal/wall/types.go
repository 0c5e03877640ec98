package wall

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	OpWallGet         = "wall.get"
	OpWallGetComments = "wall.getComments"
)

// APIError represents a non-200 HTTP response from the wall API.
type APIError struct {
	StatusCode int
	Message    string
	Operation  string
	retryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wall API error: %s (status: %d, operation: %s)", e.Message, e.StatusCode, e.Operation)
}

// Temporary reports whether the status is worth retrying (5xx, 408, 429)
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) ErrorCode() int {
	return e.StatusCode
}

// RetryAfter returns the delay requested by a Retry-After header, if any
func (e *APIError) RetryAfter() time.Duration {
	return e.retryAfter
}

// Upstream error codes that signal throttling or a server-side fault
const (
	codeUnknown         = 1
	codeTooManyRequests = 6
	codeFloodControl    = 9
	codeInternal        = 10
	codeRateLimit       = 29
)

// UpstreamError is an explicit error payload inside a 200 response.
type UpstreamError struct {
	Code      int    `json:"error_code"`
	Msg       string `json:"error_msg"`
	Operation string `json:"-"`
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("wall API error %d in %s: %s", e.Code, e.Operation, e.Msg)
}

// Temporary reports whether the upstream asked us to slow down or failed internally
func (e *UpstreamError) Temporary() bool {
	switch e.Code {
	case codeUnknown, codeTooManyRequests, codeFloodControl, codeInternal, codeRateLimit:
		return true
	}
	return false
}

func (e *UpstreamError) ErrorCode() int {
	return e.Code
}

// DecodeError is a malformed or unexpected response body. Never retried.
type DecodeError struct {
	Operation string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Operation, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Temporary() bool {
	return false
}

// envelope is the top-level shape of every wall API response
type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *UpstreamError  `json:"error"`
}

type counter struct {
	Count int `json:"count"`
}

type rawAttachment struct {
	Type string `json:"type"`
}

type rawPost struct {
	ID          int64           `json:"id"`
	OwnerID     int64           `json:"owner_id"`
	FromID      int64           `json:"from_id"`
	Date        int64           `json:"date"`
	Text        string          `json:"text"`
	IsPinned    int             `json:"is_pinned"`
	Likes       counter         `json:"likes"`
	Comments    counter         `json:"comments"`
	Reposts     counter         `json:"reposts"`
	Views       counter         `json:"views"`
	Attachments []rawAttachment `json:"attachments"`
}

type rawPostList struct {
	Count int       `json:"count"`
	Items []rawPost `json:"items"`
}

type rawComment struct {
	ID             int64   `json:"id"`
	FromID         int64   `json:"from_id"`
	Date           int64   `json:"date"`
	Text           string  `json:"text"`
	ReplyToComment int64   `json:"reply_to_comment"`
	Likes          counter `json:"likes"`
}

type rawProfile struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type rawGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type rawCommentList struct {
	Count    int          `json:"count"`
	Items    []rawComment `json:"items"`
	Profiles []rawProfile `json:"profiles"`
	Groups   []rawGroup   `json:"groups"`
}
