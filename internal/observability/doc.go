// Package observability provides observability infrastructure for the node,
// including structured logging and Prometheus metrics.
//
// This package centralizes observability concerns to enable:
//   - Structured logging with context propagation
//   - Prometheus metrics for monitoring
//   - Per-peer visibility into gossip and resilience behavior
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Prometheus metrics registry and recorders
//
// Example usage:
//
//	import (
//	    "peermesh/internal/observability/logging"
//	    "peermesh/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("node started")
//
//	    metrics.RecordBroadcast()
//	}
package observability
