package gossip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"peermesh/internal/observability/logging"
	"peermesh/internal/observability/metrics"
	"peermesh/internal/peer"
	"peermesh/internal/resilience/executor"
)

// DeliveryFunc receives each unique message exactly once: duplicates are
// suppressed before delivery. It runs on the receiving connection's
// goroutine, so it should hand heavy work off rather than block the stream.
type DeliveryFunc func(origin string, payload []byte)

// Config holds the router settings.
type Config struct {
	// Self identifies this node; it becomes the Origin of broadcasts.
	Self string

	// SeenCapacity bounds the duplicate-suppression window.
	// Zero selects DefaultSeenCapacity.
	SeenCapacity int

	// ForwardRate caps outbound forwards per second across all peers,
	// bounding fan-out amplification. Zero disables the limiter.
	ForwardRate float64

	// ForwardBurst is the limiter burst size when ForwardRate is set.
	ForwardBurst int
}

// Router implements the epidemic forwarding scheme: deliver each unique
// message locally once, then relay it to every connected peer except the
// one it arrived from, with TTL bounding the number of hops.
//
// Every per-peer send goes through the resilient executor under a composite
// request id of the form "<message id>@<peer address>", so retried sends
// are idempotent per (message, destination) pair and a delivery to peer A
// is never conflated with a delivery to peer B.
type Router struct {
	self    string
	seen    *SeenSet
	peers   *peer.Registry
	exec    *executor.Executor
	deliver DeliveryFunc
	limiter *rate.Limiter
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewRouter creates a Router. deliver must be non-nil.
func NewRouter(cfg Config, peers *peer.Registry, exec *executor.Executor, deliver DeliveryFunc, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.ForwardRate > 0 {
		burst := cfg.ForwardBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ForwardRate), burst)
	}
	return &Router{
		self:    cfg.Self,
		seen:    NewSeenSet(cfg.SeenCapacity),
		peers:   peers,
		exec:    exec,
		deliver: deliver,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "gossip_router")),
	}
}

// Receive processes one inbound message that arrived from the peer at
// fromAddr. Duplicates are dropped silently. A new message is delivered
// locally, then, if its TTL allows, forwarded to every other connected
// peer. Forwarding is fire-and-forget per peer: one peer's failure never
// blocks or fails the others, and Receive succeeds once local delivery
// has happened regardless of forwarding outcomes.
func (r *Router) Receive(ctx context.Context, msg Message, fromAddr string) error {
	// Inbound logs use the connection-scoped logger the read loop put on
	// the context, so drops are attributable to the peer they came from.
	logger := logging.FromContext(ctx)
	if !r.seen.Add(msg.ID) {
		logger.Debug("duplicate message dropped",
			slog.String("message_id", msg.ID),
			slog.String("from", fromAddr))
		metrics.RecordMessageReceived("duplicate")
		return nil
	}

	r.deliver(msg.Origin, msg.Payload)
	metrics.RecordMessageReceived("delivered")

	if msg.TTL <= 0 {
		logger.Debug("ttl exhausted, not forwarding",
			slog.String("message_id", msg.ID))
		return nil
	}

	r.fanOut(ctx, msg.Forwarded(), fromAddr)
	return nil
}

// Broadcast originates a message from this node with the given hop budget.
// The fresh id is marked seen locally so an echoed copy is not re-delivered.
// It returns the message id. Broadcast succeeds even when some or all
// forwards fail; per-peer outcomes surface through logs and metrics.
func (r *Router) Broadcast(ctx context.Context, payload []byte, ttl int) (string, error) {
	if ttl < 0 {
		return "", fmt.Errorf("negative ttl %d", ttl)
	}

	msg := NewMessage(r.self, ttl, payload)
	if _, err := Encode(msg); err != nil {
		// Reject unencodable payloads before marking anything seen.
		return "", err
	}

	r.seen.Add(msg.ID)
	metrics.RecordBroadcast()
	r.fanOut(ctx, msg, "")
	return msg.ID, nil
}

// fanOut relays msg to every connected peer except excludeAddr. Each peer
// gets its own goroutine; a slow or dead peer only stalls its own send.
func (r *Router) fanOut(ctx context.Context, msg Message, excludeAddr string) {
	frame, err := Encode(msg)
	if err != nil {
		// Receive only forwards messages that decoded cleanly, so this is
		// unreachable for inbound traffic; guard anyway.
		r.logger.Error("dropping unencodable forward",
			slog.String("message_id", msg.ID),
			slog.Any("error", err))
		return
	}

	for _, p := range r.peers.Snapshot() {
		if p.Addr() == excludeAddr {
			continue
		}
		r.wg.Add(1)
		go r.forward(ctx, p, msg.ID, frame)
	}
}

// forward sends one frame to one peer through the resilient executor.
func (r *Router) forward(ctx context.Context, p *peer.Peer, msgID string, frame []byte) {
	defer r.wg.Done()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			metrics.RecordForward("cancelled")
			return
		}
	}

	requestID := msgID + "@" + p.Addr()
	start := time.Now()
	_, err := r.exec.Execute(ctx, p.Addr(), requestID, func(ctx context.Context) (any, error) {
		return nil, p.Send(frame)
	}, nil)
	metrics.ObserveForwardDuration(time.Since(start))

	if err != nil {
		// Partial fan-out failure is expected; report and move on.
		metrics.RecordForward("failure")
		r.logger.Warn("forward failed",
			slog.String("message_id", msgID),
			slog.String("peer", p.Addr()),
			slog.String("kind", executor.Classify(err).String()),
			slog.Any("error", err))
		return
	}
	metrics.RecordForward("success")
}

// Shutdown waits for in-flight forwards to finish, bounded by ctx.
func (r *Router) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: forwards still in flight: %w", ctx.Err())
	}
}

// Seen reports whether the router has already processed the message id.
func (r *Router) Seen(id string) bool {
	return r.seen.Contains(id)
}
