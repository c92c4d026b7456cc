// Package metrics provides centralized Prometheus metrics for the node.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gossip metrics track message flow through the router
var (
	// MessagesReceivedTotal counts inbound messages by result
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gossip_messages_received_total",
			Help: "Total number of inbound gossip messages by result",
		},
		[]string{"result"},
	)

	// MessagesDroppedTotal counts messages dropped before routing
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gossip_messages_dropped_total",
			Help: "Total number of inbound messages dropped before routing",
		},
		[]string{"reason"},
	)

	// BroadcastsTotal counts messages originated by this node
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gossip_broadcasts_total",
			Help: "Total number of messages originated by this node",
		},
	)

	// ForwardsTotal counts per-peer forward attempts by terminal result
	ForwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gossip_forwards_total",
			Help: "Total number of per-peer forwards by result",
		},
		[]string{"result"},
	)

	// ForwardDuration measures the full resilient send per peer, retries
	// included
	ForwardDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gossip_forward_duration_seconds",
			Help:    "Duration of per-peer forwards including retries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

// Peer metrics track connection lifecycle
var (
	// ConnectedPeers tracks the number of currently connected peers
	ConnectedPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peer_connections_active",
			Help: "Number of currently connected peers",
		},
	)

	// PeerDisconnectsTotal counts peer disconnects by cause
	PeerDisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peer_disconnects_total",
			Help: "Total number of peer disconnects",
		},
		[]string{"cause"},
	)
)

// Resilience metrics track executor and breaker behavior
var (
	// RetriesTotal counts retries issued after a failed attempt
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "executor_retries_total",
			Help: "Total number of operation retries",
		},
	)

	// FallbacksTotal counts degraded fallback executions
	FallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "executor_fallbacks_total",
			Help: "Total number of fallback executions after terminal failure",
		},
	)

	// BreakerTransitionsTotal counts circuit breaker state transitions
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"endpoint", "to"},
	)
)
