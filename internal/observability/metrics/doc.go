// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all node metrics including:
//   - Gossip message flow (received, dropped, forwarded, broadcast)
//   - Peer connection lifecycle
//   - Circuit breaker transitions
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "peermesh/internal/observability/metrics"
//
//	func forwardToPeer(addr string, frame []byte) {
//	    start := time.Now()
//	    // ... resilient send ...
//	    metrics.RecordForward("success")
//	    metrics.ObserveForwardDuration(time.Since(start))
//	}
package metrics
