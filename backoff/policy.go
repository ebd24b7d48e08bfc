package backoff

import "time"

// Policy bounds retries around a single step entry: an attempt budget plus
// the delay strategy between attempts.
//
// Attempts are counted per step entry. When a looping workflow exits a step
// and re-enters it later, the attempt count starts over; the step's
// invocation-limit counter is separate and counts entries only, regardless
// of how many retries happened inside each entry.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 behave as 1 (no retries).
	MaxAttempts int

	// Strategy computes the delay before each retry. Nil means
	// DefaultStrategy.
	Strategy Strategy
}

// DefaultPolicy returns the engine default: a single attempt, no retries.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 1, Strategy: DefaultStrategy()}
}

// Next reports whether another attempt is allowed after attempt n
// (1-indexed) failed, and how long to wait before it.
func (p Policy) Next(attempt int) (time.Duration, bool) {
	budget := p.MaxAttempts
	if budget < 1 {
		budget = 1
	}
	if attempt >= budget {
		return 0, false
	}

	s := p.Strategy
	if s == nil {
		s = DefaultStrategy()
	}
	return s.Delay(attempt), true
}
