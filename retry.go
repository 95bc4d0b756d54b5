package profiles

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// newLoadBackoff returns the backoff between exclusive load attempts: base, 2*base, 4*base...
// with no limit on the number of retries. maxDelay > 0 caps each delay. onRetry sees every
// delay right before it is slept.
func newLoadBackoff(base time.Duration, maxDelay time.Duration, onRetry func(delay time.Duration)) retry.Backoff {
	b := retry.NewExponential(base)
	if maxDelay > 0 {
		b = retry.WithCappedDuration(maxDelay, b)
	}
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := b.Next()
		if stop {
			return 0, true
		}
		if onRetry != nil {
			onRetry(d)
		}
		return d, false
	})
}
