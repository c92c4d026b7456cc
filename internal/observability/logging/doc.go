// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the application.
//
// Key features:
//   - JSON and text output formats
//   - Node and peer scoping
//   - Context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	import "peermesh/internal/observability/logging"
//
//	func main() {
//	    logger := logging.WithNode(logging.NewLogger(), "node-a")
//	    logger.Info("node started", slog.String("listen", ":7946"))
//	}
//
//	func handleConn(ctx context.Context, addr string) {
//	    logger := logging.WithPeer(logging.FromContext(ctx), addr)
//	    logger.Info("peer connected")
//	}
package logging
