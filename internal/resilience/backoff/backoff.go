// Package backoff computes retry delays with exponential growth and jitter.
// It is purely computational: no sleeping, no I/O. Callers decide how to wait.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Config holds the parameters for delay computation.
type Config struct {
	// Base is the delay for attempt 0.
	Base time.Duration

	// Max caps the computed delay before jitter is applied.
	// Zero means no cap.
	Max time.Duration

	// JitterFraction is the fraction of the delay added as random jitter
	// (0.0 to 1.0). Jitter prevents synchronized retry storms when many
	// callers back off from the same failure.
	JitterFraction float64
}

// DefaultConfig returns a backoff configuration suitable for peer sends.
func DefaultConfig() Config {
	return Config{
		Base:           100 * time.Millisecond,
		Max:            5 * time.Second,
		JitterFraction: 0.2,
	}
}

// Backoff computes delays from a Config and an injected random source.
// Injecting the source keeps tests deterministic. Safe for concurrent use:
// rand.Rand is not internally synchronized, so the source is guarded here.
type Backoff struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Backoff. If rng is nil, a time-seeded source is used.
func New(cfg Config, rng *rand.Rand) *Backoff {
	if rng == nil {
		// #nosec G404 -- math/rand is acceptable for jitter; cryptographic
		// randomness is not required for backoff timing.
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Backoff{cfg: cfg, rng: rng}
}

// Delay returns the delay before retry number attempt (0-based):
// Base * 2^attempt, capped at Max, plus uniform jitter in
// [0, delay*JitterFraction).
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := b.cfg.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if b.cfg.Max > 0 && delay >= b.cfg.Max {
			delay = b.cfg.Max
			break
		}
	}
	if b.cfg.Max > 0 && delay > b.cfg.Max {
		delay = b.cfg.Max
	}

	return delay + b.jitter(delay)
}

func (b *Backoff) jitter(delay time.Duration) time.Duration {
	f := b.cfg.JitterFraction
	if f <= 0 {
		return 0
	}
	if f > 1.0 {
		f = 1.0
	}

	b.mu.Lock()
	r := b.rng.Float64()
	b.mu.Unlock()
	return time.Duration(r * float64(delay) * f)
}
