package gateway

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

// reconnectBackoff spaces reconnect attempts exponentially with jitter.
type reconnectBackoff struct {
	b *backoff.ExponentialBackOff
}

func newReconnectBackoff(base, max time.Duration, clk clock.Clock) *reconnectBackoff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	b.Clock = clk
	b.Reset()
	return &reconnectBackoff{b: b}
}

func (r *reconnectBackoff) Next() time.Duration {
	d := r.b.NextBackOff()
	if d == backoff.Stop || d > r.b.MaxInterval {
		return r.b.MaxInterval
	}
	return d
}

func (r *reconnectBackoff) Reset() {
	r.b.Reset()
}
