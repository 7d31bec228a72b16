// Package retry decides whether a failed send should be attempted again.
//
// The policy is a pure function of the attempt number and the HTTP status
// (or transport-error sentinel) of the last attempt. It owns no state and
// performs no waiting; the delivery engine sleeps for the returned delay.
package retry

import "time"

// Outcome classifies what the delivery engine should do next.
type Outcome int

const (
	// Succeed: the attempt worked, stop.
	Succeed Outcome = iota
	// FailPermanently: stop without further attempts. Either the error
	// class will not self-correct (4xx other than 429) or the attempt
	// budget is exhausted.
	FailPermanently
	// RetryAfter: wait Decision.Delay, then try again.
	RetryAfter
)

// Decision is the policy output for one delivery attempt.
type Decision struct {
	Outcome Outcome
	// Delay is set only when Outcome is RetryAfter.
	Delay time.Duration
}

// Decide classifies the result of attempt (1-based) out of maxAttempts.
//
// status is the HTTP status code of the attempt, or <= 0 for a transport
// error (DNS, connect, timeout). 2xx succeeds. 4xx other than 429 fails
// permanently: a malformed payload or bad credentials will not fix
// themselves. Everything else (429, 5xx, transport errors, and stray 3xx)
// is retryable until the attempt budget runs out.
//
// Callers must pass attempt >= 1 and maxAttempts >= 1.
func Decide(attempt, maxAttempts, status int, baseDelay, maxDelay time.Duration) Decision {
	if status >= 200 && status < 300 {
		return Decision{Outcome: Succeed}
	}
	if status >= 400 && status < 500 && status != 429 {
		return Decision{Outcome: FailPermanently}
	}
	if attempt >= maxAttempts {
		return Decision{Outcome: FailPermanently}
	}
	return Decision{Outcome: RetryAfter, Delay: Backoff(attempt, baseDelay, maxDelay)}
}

// Backoff returns base×2^(attempt−1) capped at max, so total blocking time
// on a flapping network stays bounded.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 2^62 overflows time.Duration long before attempt gets here.
	if attempt > 32 {
		return max
	}
	d := base << (attempt - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}
