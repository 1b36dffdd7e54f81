// Package taiga implements the resilient access layer for the Taiga REST API.
//
// FILES:
//   - descriptor.go: Immutable request descriptors and cache-key canonicalization
//   - transport.go:  The actual HTTP exchange against the upstream API
//   - retry.go:      Retry policy and backoff configuration
//   - gateway.go:    The per-call state machine tying cache, limiter, tokens and retries together
//   - errors.go:     Closed error taxonomy for upstream failures
//   - pagination.go: Taiga pagination header parsing
package taiga

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Kind classifies a failed API call. The set is closed: callers branch on
// kinds with errors.As + Error.Kind instead of matching message strings.
type Kind string

const (
	// KindAuthentication means credentials are invalid or expired and a
	// refresh did not recover them.
	KindAuthentication Kind = "authentication"
	// KindPermission is an upstream 403.
	KindPermission Kind = "permission"
	// KindNotFound is an upstream 404.
	KindNotFound Kind = "not_found"
	// KindValidation is an upstream 400.
	KindValidation Kind = "validation"
	// KindConflict is an upstream 409 — an optimistic-concurrency version
	// mismatch. Never retried here: a blind retry would reuse the stale version.
	KindConflict Kind = "conflict"
	// KindRateLimited is an upstream 429 that survived the retry budget.
	KindRateLimited Kind = "rate_limited"
	// KindServer is an upstream 5xx that survived the retry budget.
	KindServer Kind = "server"
	// KindNetwork is a connection-level failure (dial, reset, EOF).
	KindNetwork Kind = "network"
	// KindTimeout means the call's deadline elapsed at any stage.
	KindTimeout Kind = "timeout"
)

// Error is the single error type surfaced by this package.
type Error struct {
	Kind       Kind
	StatusCode int    // upstream HTTP status, 0 for connection-level failures
	Message    string // upstream-provided message when available
	Err        error  // wrapped cause
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("taiga: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("taiga: %s (status %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("taiga: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("taiga: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure class is transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindServer, KindNetwork, KindRateLimited:
		return true
	}
	return false
}

// KindOf extracts the failure kind from any error returned by this package.
// Unclassified errors report KindNetwork.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindNetwork
}

// ClassifyResponse returns the typed error for a non-2xx response, or nil
// for success. The gateway classifies inline; the auth client uses this for
// the credential endpoints it calls outside the gateway loop.
func ClassifyResponse(resp *Response) *Error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return classifyStatus(resp.StatusCode, resp.Body)
}

// classifyStatus maps a non-2xx upstream response to a typed error.
// The message is pulled from Taiga's error payload shapes
// ({"_error_message": ...} or DRF's {"detail": ...}).
func classifyStatus(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Message: upstreamMessage(body)}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
	case status == http.StatusForbidden:
		e.Kind = KindPermission
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusConflict:
		e.Kind = KindConflict
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status >= 500:
		e.Kind = KindServer
	default:
		// Remaining 4xx are caller mistakes, not transient faults.
		e.Kind = KindValidation
	}
	return e
}

func upstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if msg := gjson.GetBytes(body, "_error_message"); msg.Exists() {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "detail"); msg.Exists() {
		return msg.String()
	}
	return ""
}
