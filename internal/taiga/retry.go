// Retry policy — classification of transient failures and backoff shape.
//
// DESIGN: the policy never retries a non-idempotent call unless its
// descriptor explicitly opted in. A blind replay of POST can double-create
// resources; surfacing the error to the caller is the safe default.
package taiga

import (
	"time"

	backoff "github.com/cenkalti/backoff/v5"
)

// Policy controls the retry loop of a gateway call.
type Policy struct {
	// MaxAttempts is the total attempt budget for idempotent calls
	// (first try included).
	MaxAttempts int
	// MutationAttempts is the budget for mutations that did not opt into
	// retries. Kept at 1 so failed POSTs surface immediately.
	MutationAttempts int
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the exponential growth.
	MaxInterval time.Duration
}

// DefaultPolicy matches the upstream service's published behavior: transient
// faults recover within a few seconds, so three attempts with a 0.5s base
// and an 8s cap cover the useful range.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		MutationAttempts: 1,
		InitialInterval:  500 * time.Millisecond,
		MaxInterval:      8 * time.Second,
	}
}

// attemptsFor returns the attempt budget for one descriptor.
func (p Policy) attemptsFor(d Descriptor) uint {
	if d.RetrySafe() {
		if p.MaxAttempts < 1 {
			return 1
		}
		return uint(p.MaxAttempts)
	}
	if p.MutationAttempts < 1 {
		return 1
	}
	return uint(p.MutationAttempts)
}

// newBackOff builds the exponential backoff for one call. Jitter comes from
// the library's default randomization factor.
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Reset()
	return b
}
