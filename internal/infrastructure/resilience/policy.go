package resilience

import "time"

// Config tunes the executor. The zero value runs every call exactly once with
// no breaker.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	// BreakerEnabled is opt-in: an open breaker fails calls without reaching
	// the backend.
	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

const (
	defaultRetryMaxAttempts    = 1
	defaultRetryInitialBackoff = 200 * time.Millisecond
	defaultRetryMaxBackoff     = time.Second
	defaultRetryMultiplier     = 2.0

	defaultBreakerMinRequests      = 5
	defaultBreakerFailureRatio     = 0.6
	defaultBreakerOpenTimeout      = 20 * time.Second
	defaultBreakerHalfOpenMaxCalls = 1
)

// AnalysisPolicy is the policy for form submissions: attempts per submit and
// whether the breaker guards the backend. Tuning knobs keep their defaults.
func AnalysisPolicy(retryMaxAttempts int, breakerEnabled bool) Config {
	return Config{
		RetryMaxAttempts: retryMaxAttempts,
		BreakerEnabled:   breakerEnabled,
	}.normalize()
}

func (c Config) normalize() Config {
	out := c

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = defaultRetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = defaultRetryMaxBackoff
	}
	out.RetryMaxBackoff = max(out.RetryMaxBackoff, out.RetryInitialBackoff)
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = defaultRetryMultiplier
	}

	if !out.BreakerEnabled {
		return out
	}
	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = defaultBreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = defaultBreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = defaultBreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = defaultBreakerHalfOpenMaxCalls
	}
	return out
}
