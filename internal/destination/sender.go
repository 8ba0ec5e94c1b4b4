// Package destination implements the webhook and chat DestinationSenders of
// spec.md §4.9: platform-aware chunking, caption-overflow handling, and
// rate-limiter coordination.
package destination

import "time"

// Outcome is the three-way result every sender returns.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRateLimited
	OutcomeError
)

// Result carries an Outcome and, for OutcomeRateLimited, how long the
// caller should back off before the RateLimiter allows another Reserve.
type Result struct {
	Outcome    Outcome
	RetryAfter time.Duration
	Err        error
}

// Sender delivers one rendered message body, with an optional media file,
// to a destination-kind-specific wire target.
type Sender interface {
	Send(endpoint, body string, mediaPath string) Result
}
