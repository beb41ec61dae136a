package session

import "time"

// RetryPolicy is the application-level connect retry schedule. It guards
// failures that happen before a transport session is ever established
// (bad URL, rejected handshake) and is distinct from the transport's own
// reconnect loop, which only runs after a session existed.
type RetryPolicy struct {
	// Delays is the backoff schedule; attempts beyond its length reuse
	// the last entry.
	Delays []time.Duration
	// MaxRetries is the number of consecutive failed attempts after
	// which the session moves to Failed.
	MaxRetries int
}

// DefaultRetryPolicy returns the connect retry settings used in production.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delays:     []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
		MaxRetries: 5,
	}
}

// Delay returns the wait before retry N (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt > len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	if attempt < 1 {
		attempt = 1
	}
	return p.Delays[attempt-1]
}
