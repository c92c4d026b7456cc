// Package resilience provides the reliability patterns that protect every
// call to a remote peer: circuit breaking, retry with backoff, per-attempt
// timeouts, and idempotent request caching.
//
// The subpackages compose bottom-up:
//   - backoff: exponential delays with jitter
//   - circuitbreaker: per-endpoint breakers around sony/gobreaker
//   - idempotency: request-id keyed result cache with single-flight execution
//   - executor: the full stack applied to one operation
//
// Usage Example:
//
//	exec := executor.New(store, breakers, executor.DefaultConfig(), logger)
//	result, err := exec.Execute(ctx, peerAddr, requestID, op, fallback)
package resilience
