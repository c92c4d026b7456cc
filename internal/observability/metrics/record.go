package metrics

import (
	"time"
)

// RecordMessageReceived records one inbound message outcome.
// Result should be "delivered" or "duplicate".
func RecordMessageReceived(result string) {
	MessagesReceivedTotal.WithLabelValues(result).Inc()
}

// RecordMessageDropped records an inbound message dropped before routing,
// e.g. with reason "malformed".
func RecordMessageDropped(reason string) {
	MessagesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordBroadcast records one locally originated message.
func RecordBroadcast() {
	BroadcastsTotal.Inc()
}

// RecordForward records the terminal result of a per-peer forward.
// Result should be "success", "failure", or "cancelled".
func RecordForward(result string) {
	ForwardsTotal.WithLabelValues(result).Inc()
}

// ObserveForwardDuration records the wall time of one per-peer forward,
// retries included.
func ObserveForwardDuration(d time.Duration) {
	ForwardDuration.Observe(d.Seconds())
}

// SetConnectedPeers updates the connected-peer gauge.
func SetConnectedPeers(n int) {
	ConnectedPeers.Set(float64(n))
}

// RecordPeerDisconnect records a peer disconnect with its cause,
// e.g. "eof", "error", or "shutdown".
func RecordPeerDisconnect(cause string) {
	PeerDisconnectsTotal.WithLabelValues(cause).Inc()
}

// RecordRetry records one retry issued after a failed attempt.
func RecordRetry() {
	RetriesTotal.Inc()
}

// RecordFallback records one fallback execution.
func RecordFallback() {
	FallbacksTotal.Inc()
}

// RecordBreakerTransition records a circuit breaker entering a new state.
func RecordBreakerTransition(endpoint, to string) {
	BreakerTransitionsTotal.WithLabelValues(endpoint, to).Inc()
}
