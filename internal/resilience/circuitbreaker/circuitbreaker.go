// Package circuitbreaker provides per-endpoint circuit breakers for peer calls.
// It uses the github.com/sony/gobreaker library to stop hammering endpoints
// that are known to be failing.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the circuit from Closed to Open
	FailureThreshold uint32

	// ResetTimeout is how long to wait in the open state before allowing
	// a single half-open trial call
	ResetTimeout time.Duration

	// Interval is the cyclic period of the closed state to clear
	// success/failure counts. Zero means counts are never cleared while closed.
	Interval time.Duration

	// OnStateChange is invoked on every state transition, after the default
	// log line. Optional; used to feed metrics.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		Interval:         time.Minute,
	}
}

// PeerSendConfig returns configuration optimized for gossip forwards.
// Trips quickly so a dead peer stops consuming retry budget across fan-outs.
func PeerSendConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 3,
		ResetTimeout:     10 * time.Second,
		Interval:         time.Minute,
	}
}

// DialConfig returns configuration optimized for outbound connects.
// More patient than sends: a peer that refuses connections may be restarting.
func DialConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		Interval:         5 * time.Minute,
	}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker with additional functionality.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a new circuit breaker with the given configuration.
//
// The breaker trips after cfg.FailureThreshold consecutive failures. While
// open, calls fail fast with gobreaker.ErrOpenState. After cfg.ResetTimeout
// exactly one half-open trial call is admitted (MaxRequests is pinned to 1);
// concurrent calls during the trial fail with gobreaker.ErrTooManyRequests.
// A successful trial closes the circuit, a failed one re-opens it.
func New(cfg Config) *CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	}

	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Execute runs the given function through the circuit breaker.
// If the circuit is open, it returns ErrOpenState immediately.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return cb.breaker.Execute(fn)
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

// IsOpenError reports whether err indicates the breaker refused the call
// without invoking the operation: either the circuit is open, or a half-open
// trial is already outstanding.
func IsOpenError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}
