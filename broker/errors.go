package broker

import (
	"errors"
	"fmt"

	"orb/resilient"
)

// ErrRejected means the broker refused the request outright (invalid order
// parameters, insufficient buying power). Never retried; a rejected
// submission aborts the session rather than leaving partial exposure.
var ErrRejected = errors.New("broker rejected request")

// Rejected wraps a rejection so the resilient layer surfaces it
// immediately instead of burning retries.
func Rejected(detail string) error {
	return resilient.Permanent(fmt.Errorf("%w: %s", ErrRejected, detail))
}

// IsFatal reports whether err should abort the session rather than be
// retried on the next poll tick. Breaker-open is deliberately non-fatal:
// an undelivered exit request is retried, never silently dropped.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRejected)
}
