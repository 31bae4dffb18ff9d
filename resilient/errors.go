package resilient

import (
	"errors"
	"fmt"
)

// Kind is the failure class the retry wrapper acts on.
type Kind int

const (
	// KindTransient failures (network errors, 5xx) are retried with backoff.
	KindTransient Kind = iota
	// KindRateLimited failures (HTTP 429) are retried with an extended delay.
	KindRateLimited
	// KindPermanent failures (other 4xx, malformed responses) surface
	// immediately to the caller.
	KindPermanent
)

// ErrBreakerOpen is returned without any network I/O while an endpoint's
// circuit breaker is open. Callers treat it as "request not delivered" and
// retry on their next poll tick.
var ErrBreakerOpen = errors.New("circuit breaker open")

// ErrRetriesExhausted wraps the last transient failure once the retry
// budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

type classified struct {
	kind Kind
	err  error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Transient marks err as retryable.
func Transient(err error) error { return &classified{kind: KindTransient, err: err} }

// RateLimited marks err as a rate-limit rejection.
func RateLimited(err error) error { return &classified{kind: KindRateLimited, err: err} }

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return &classified{kind: KindPermanent, err: err} }

// KindOf returns the failure class of err. Unclassified errors are treated
// as transient; raw network errors come back unwrapped from http.Client.
func KindOf(err error) Kind {
	var c *classified
	if errors.As(err, &c) {
		return c.kind
	}
	return KindTransient
}

// FromStatus classifies an HTTP response status the way the retry policy
// expects: 429 rate-limited, 5xx transient, other 4xx permanent.
func FromStatus(status int, body string) error {
	err := fmt.Errorf("unexpected status %d: %s", status, body)
	switch {
	case status == 429:
		return RateLimited(err)
	case status >= 500:
		return Transient(err)
	default:
		return Permanent(err)
	}
}
