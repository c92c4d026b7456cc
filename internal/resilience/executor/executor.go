// Package executor composes the resilience primitives into one call path:
// idempotency cache, per-endpoint circuit breaker, per-attempt timeout,
// retries with jittered exponential backoff, and an optional fallback.
//
// The layering follows a single rule: an operation is only retried when the
// retry is safe, which is why every call carries a request id. The cache
// guarantees a request id's effect is applied at most once even when the
// same logical request is executed again after an unknown-outcome timeout.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"peermesh/internal/observability/metrics"
	"peermesh/internal/resilience/backoff"
	"peermesh/internal/resilience/circuitbreaker"
	"peermesh/internal/resilience/idempotency"
)

// Operation is the unit of work being protected. It must respect ctx
// cancellation; when an attempt times out the executor stops waiting for it.
type Operation func(ctx context.Context) (any, error)

// Fallback produces a degraded result after retries, breaker, and timeout
// have all been exhausted. cause is the terminal error and can be inspected
// with errors.Is (ErrCircuitOpen, ErrUnknownOutcome) to vary the answer.
type Fallback func(ctx context.Context, cause error) (any, error)

// Config holds the per-executor settings.
type Config struct {
	// AttemptTimeout bounds each individual attempt. Zero disables the bound.
	AttemptTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Backoff drives the delay between attempts.
	Backoff backoff.Config
}

// DefaultConfig returns settings suitable for peer sends.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 2 * time.Second,
		MaxRetries:     2,
		Backoff:        backoff.DefaultConfig(),
	}
}

// Executor runs operations with the full resilience stack applied.
// It is safe for concurrent use.
type Executor struct {
	store    *idempotency.Store
	breakers *circuitbreaker.Registry
	backoff  *backoff.Backoff
	cfg      Config
	logger   *slog.Logger
}

// New creates an Executor. store and breakers are shared with other
// executors and with the caller; the executor never closes them.
func New(store *idempotency.Store, breakers *circuitbreaker.Registry, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:    store,
		breakers: breakers,
		backoff:  backoff.New(cfg.Backoff, nil),
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute runs op against endpoint under the resilience stack.
//
// A cached result for requestID is returned immediately, with no breaker
// interaction and no attempt consumed. Otherwise op is attempted up to
// 1+MaxRetries times through the endpoint's breaker, each attempt bounded
// by AttemptTimeout, sleeping a backoff delay between attempts. A breaker
// refusal or a fatal error stops the attempts immediately. The first
// successful result is cached under requestID.
//
// On terminal failure the fallback, if any, supplies the return value; a
// fallback result is a degraded answer and is never cached.
func (e *Executor) Execute(ctx context.Context, endpoint, requestID string, op Operation, fallback Fallback) (any, error) {
	result, err := e.store.GetOrCompute(requestID, func() (any, error) {
		return e.run(ctx, endpoint, requestID, op)
	})
	if err == nil {
		return result, nil
	}

	if fallback != nil && ctx.Err() == nil {
		metrics.RecordFallback()
		e.logger.Debug("executing fallback",
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.String("kind", Classify(err).String()))
		return fallback(ctx, err)
	}
	return nil, err
}

// run is the retry loop. It executes inside the idempotency flight, so at
// most one loop per request id is active at a time.
func (e *Executor) run(ctx context.Context, endpoint, requestID string, op Operation) (any, error) {
	breaker := e.breakers.Get(endpoint)

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		result, err := breaker.Execute(func() (interface{}, error) {
			return e.attempt(ctx, op)
		})
		if err == nil {
			if attempt > 0 {
				e.logger.Info("operation succeeded after retry",
					slog.String("endpoint", endpoint),
					slog.String("request_id", requestID),
					slog.Int("attempt", attempt+1))
			}
			return result, nil
		}
		lastErr = err

		switch Classify(err) {
		case KindCircuitOpen:
			// Provably-dead endpoint: retrying cannot help until the
			// breaker admits a trial call.
			return nil, fmt.Errorf("endpoint %s: %w", endpoint, ErrCircuitOpen)
		case KindFatal:
			return nil, err
		}

		if !isRetryable(err) {
			return nil, err
		}

		metrics.RecordRetry()
		e.logger.Warn("operation failed, retrying",
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", e.cfg.MaxRetries+1),
			slog.String("kind", Classify(err).String()),
			slog.Any("error", err))
	}

	return nil, fmt.Errorf("max retry attempts (%d) exceeded: %w", e.cfg.MaxRetries+1, lastErr)
}

// attempt runs op bounded by the per-attempt timeout. A timeout is reported
// as ErrUnknownOutcome: the executor stops waiting, but the operation may
// still complete on the far side.
func (e *Executor) attempt(ctx context.Context, op Operation) (any, error) {
	if e.cfg.AttemptTimeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := op(attemptCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			// The operation observed the deadline itself; surface the
			// ambiguity uniformly.
			return nil, fmt.Errorf("%w: %v", ErrUnknownOutcome, out.err)
		}
		return out.result, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			// Parent cancelled: shutdown, not a timeout.
			return nil, ctx.Err()
		}
		return nil, ErrUnknownOutcome
	}
}

// sleep waits for the backoff delay of the given attempt, aborting promptly
// on cancellation.
func (e *Executor) sleep(ctx context.Context, attempt int) error {
	delay := e.backoff.Delay(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry aborted: %w", ctx.Err())
	}
}
