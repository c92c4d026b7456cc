package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"peermesh/internal/node"
)

// HealthResponse represents a simple health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// PeerHealthResponse represents the mesh health seen from this node.
type PeerHealthResponse struct {
	Healthy  bool            `json:"healthy"`
	Peers    []string        `json:"peers"`
	Breakers []BreakerStatus `json:"breakers"`
}

// BreakerStatus represents the state of one endpoint's circuit breaker.
type BreakerStatus struct {
	Endpoint string `json:"endpoint"`
	State    string `json:"state"`
	Open     bool   `json:"open"`
}

// startMetricsServer starts the metrics and health HTTP server on addr.
// It runs in a separate goroutine and shuts down when ctx is canceled.
//
// The server exposes the following endpoints:
//   - GET /metrics - Prometheus metrics endpoint
//   - GET /health - Simple liveness probe (always returns 200 OK)
//   - GET /health/peers - Connected peers and circuit breaker states
func startMetricsServer(ctx context.Context, logger *slog.Logger, addr string, n *node.Node) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/health/peers", peerHealthHandler(n))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
		} else {
			logger.Info("metrics server stopped")
		}
	}()

	return server
}

// healthHandler handles GET /health requests (liveness probe).
// Always returns 200 OK with {"status": "healthy"}.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
}

// peerHealthHandler creates a handler for GET /health/peers (readiness probe).
// Returns 200 OK while no circuit breaker is open, 503 otherwise.
func peerHealthHandler(n *node.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := n.BreakerStatus()

		breakers := make([]BreakerStatus, 0, len(statuses))
		healthy := true
		for _, status := range statuses {
			open := status.State == gobreaker.StateOpen
			if open {
				healthy = false
			}
			breakers = append(breakers, BreakerStatus{
				Endpoint: status.Endpoint,
				State:    status.State.String(),
				Open:     open,
			})
		}

		statusCode := http.StatusOK
		if !healthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(PeerHealthResponse{
			Healthy:  healthy,
			Peers:    n.Peers(),
			Breakers: breakers,
		})
	}
}
