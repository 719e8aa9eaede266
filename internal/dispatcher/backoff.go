package dispatcher

import "time"

// DefaultBackoffTable is the fixed delay before attempt N+1, indexed by the
// attempt that just failed (1-based). Fixed steps instead of jittered
// exponential keep retry timing auditable.
var DefaultBackoffTable = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	24 * time.Hour,
}

const DefaultMaxAttempts = 5

// BackoffPolicy bounds the retry count and computes inter-attempt delays.
type BackoffPolicy struct {
	Table       []time.Duration
	MaxAttempts int
}

func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Table: DefaultBackoffTable, MaxAttempts: DefaultMaxAttempts}
}

// Delay returns the table entry for a 1-based attempt number. Out-of-range
// attempts clamp to the last entry.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if len(p.Table) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.Table) {
		attempt = len(p.Table)
	}
	return p.Table[attempt-1]
}

// Next reports the delay before the next attempt, given how many attempts
// have been made. ok is false once the attempt budget is spent: the caller
// must finalize the delivery as failed instead of scheduling.
func (p BackoffPolicy) Next(attemptsMade int) (time.Duration, bool) {
	if attemptsMade < 1 || attemptsMade >= p.MaxAttempts {
		return 0, false
	}
	return p.Delay(attemptsMade), true
}
