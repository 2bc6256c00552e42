package runtime

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ioBackoff drives the worker's EndpointIO retry delay: a flat 500ms floor
// (InitialInterval) by default, but consecutive failures on a wedged
// endpoint back off exponentially up to a 5s ceiling rather than hammering
// a dead bus at a fixed rate. A successful receive resets it.
type ioBackoff struct {
	b *backoff.ExponentialBackOff
}

func newIOBackoff(initial time.Duration) *ioBackoff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.RandomizationFactor = 0 // no jitter, so InitialInterval is a true floor
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // never gives up; the worker alone decides when to stop
	b.Reset()
	return &ioBackoff{b: b}
}

// Next returns the delay before the next retry.
func (i *ioBackoff) Next() time.Duration { return i.b.NextBackOff() }

// Reset clears accumulated backoff after a successful receive.
func (i *ioBackoff) Reset() { i.b.Reset() }
