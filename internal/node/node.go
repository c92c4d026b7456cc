// Package node wires the gossip core to a transport: it listens for inbound
// peers, maintains outbound connections to a static peer list, runs one read
// loop per connection, and exposes Broadcast as the application entry point.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"peermesh/internal/gossip"
	"peermesh/internal/observability/logging"
	"peermesh/internal/observability/metrics"
	"peermesh/internal/peer"
	"peermesh/internal/resilience/circuitbreaker"
	"peermesh/internal/resilience/executor"
	"peermesh/internal/resilience/idempotency"
	"peermesh/internal/transport"
)

// Config holds the node settings.
type Config struct {
	// ID identifies this node; it becomes the Origin of local broadcasts.
	ID string

	// ListenAddr is the address to accept inbound peers on.
	ListenAddr string

	// Peers are addresses this node keeps outbound connections to.
	Peers []string

	// DefaultTTL is the hop budget for locally originated messages.
	DefaultTTL int

	// ReconnectInterval is how often missing outbound peers are redialed.
	ReconnectInterval time.Duration

	// SeenCapacity, ForwardRate, and ForwardBurst configure the router;
	// see gossip.Config.
	SeenCapacity int
	ForwardRate  float64
	ForwardBurst int

	// BreakerThreshold is the consecutive send failures that trip a peer's
	// circuit. Zero selects the peer-send default.
	BreakerThreshold uint32

	// BreakerResetTimeout is the open period before a half-open trial.
	// Zero selects the peer-send default.
	BreakerResetTimeout time.Duration

	// Send configures the resilience stack for per-peer forwards.
	Send executor.Config

	// Dial configures the resilience stack for outbound connects.
	Dial executor.Config

	// Idempotency configures the shared result cache.
	Idempotency idempotency.Config
}

// DefaultConfig returns settings suitable for a small mesh.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:        5,
		ReconnectInterval: 5 * time.Second,
		Send:              executor.DefaultConfig(),
		Dial: executor.Config{
			AttemptTimeout: 5 * time.Second,
			MaxRetries:     0,
		},
		Idempotency: idempotency.DefaultConfig(),
	}
}

// Node is one member of the mesh. Create it with New, run it with Start,
// and stop it with Shutdown. Safe for concurrent use once started.
type Node struct {
	cfg       Config
	transport transport.Transport
	logger    *slog.Logger

	registry *peer.Registry
	router   *gossip.Router
	store    *idempotency.Store

	sendBreakers *circuitbreaker.Registry
	dialBreakers *circuitbreaker.Registry
	dialExec     *executor.Executor

	listener transport.Listener

	mu      sync.Mutex
	started bool
	closing bool

	group   *errgroup.Group
	readers sync.WaitGroup
	cancel  context.CancelFunc
}

// New creates a Node. deliver is invoked exactly once for each unique
// message the node receives or can observe from its own broadcasts' echoes;
// it must be non-nil.
func New(cfg Config, tr transport.Transport, deliver gossip.DeliveryFunc, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("node", cfg.ID))

	onTransition := func(name string, _, to gobreaker.State) {
		metrics.RecordBreakerTransition(name, to.String())
	}

	store := idempotency.New(cfg.Idempotency)
	sendBreakers := circuitbreaker.NewRegistry(func(endpoint string) circuitbreaker.Config {
		c := circuitbreaker.PeerSendConfig(endpoint)
		if cfg.BreakerThreshold > 0 {
			c.FailureThreshold = cfg.BreakerThreshold
		}
		if cfg.BreakerResetTimeout > 0 {
			c.ResetTimeout = cfg.BreakerResetTimeout
		}
		c.OnStateChange = onTransition
		return c
	})
	dialBreakers := circuitbreaker.NewRegistry(func(endpoint string) circuitbreaker.Config {
		c := circuitbreaker.DialConfig("dial:" + endpoint)
		c.OnStateChange = onTransition
		return c
	})

	registry := peer.NewRegistry()
	sendExec := executor.New(store, sendBreakers, cfg.Send, logger)
	router := gossip.NewRouter(gossip.Config{
		Self:         cfg.ID,
		SeenCapacity: cfg.SeenCapacity,
		ForwardRate:  cfg.ForwardRate,
		ForwardBurst: cfg.ForwardBurst,
	}, registry, sendExec, deliver, logger)

	return &Node{
		cfg:          cfg,
		transport:    tr,
		logger:       logger,
		registry:     registry,
		router:       router,
		store:        store,
		sendBreakers: sendBreakers,
		dialBreakers: dialBreakers,
		dialExec:     executor.New(store, dialBreakers, cfg.Dial, logger),
	}
}

// Start begins listening, dials the configured peers, and launches the
// maintenance loops. It returns once the listener is bound; the loops run
// until Shutdown or until ctx is cancelled.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return errors.New("node already started")
	}
	n.started = true
	n.mu.Unlock()

	lis, err := n.transport.Listen(n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.ListenAddr, err)
	}
	n.listener = lis
	n.logger.Info("listening", slog.String("addr", lis.Addr()))

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	n.group = group

	group.Go(func() error {
		return n.acceptLoop(groupCtx)
	})
	group.Go(func() error {
		return n.maintainPeers(groupCtx)
	})
	group.Go(func() error {
		// Accept blocks until the listener closes, so cancellation must
		// close it; a caller stopping the node through ctx alone would
		// otherwise leave the accept goroutine behind.
		<-groupCtx.Done()
		return lis.Close()
	})
	return nil
}

// Broadcast originates a message with the node's default TTL and returns
// its id.
func (n *Node) Broadcast(ctx context.Context, payload []byte) (string, error) {
	return n.router.Broadcast(ctx, payload, n.cfg.DefaultTTL)
}

// BroadcastTTL originates a message with an explicit hop budget.
func (n *Node) BroadcastTTL(ctx context.Context, payload []byte, ttl int) (string, error) {
	return n.router.Broadcast(ctx, payload, ttl)
}

// Connect dials addr and registers the resulting peer. The dial runs through
// the dial breaker, so an address that keeps refusing connections fails fast
// until its reset timeout elapses. Each dial uses a fresh request id: stale
// connections must never be replayed from the idempotency cache.
func (n *Node) Connect(ctx context.Context, addr string) error {
	if addr == n.cfg.ListenAddr {
		return fmt.Errorf("refusing to dial self at %s", addr)
	}
	if n.registry.Get(addr) != nil {
		return nil
	}

	requestID := "dial:" + addr + ":" + uuid.NewString()
	result, err := n.dialExec.Execute(ctx, addr, requestID, func(ctx context.Context) (any, error) {
		return n.transport.Dial(ctx, addr)
	}, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	conn := result.(transport.Conn)
	n.addPeer(ctx, addr, conn)
	n.logger.Info("connected to peer", slog.String("peer", addr))
	return nil
}

// Peers returns the addresses of currently connected peers.
func (n *Node) Peers() []string {
	snapshot := n.registry.Snapshot()
	addrs := make([]string, 0, len(snapshot))
	for _, p := range snapshot {
		addrs = append(addrs, p.Addr())
	}
	return addrs
}

// Seen reports whether the node has already processed the message id.
func (n *Node) Seen(id string) bool {
	return n.router.Seen(id)
}

// BreakerStatus returns the state of every send and dial breaker,
// for health reporting.
func (n *Node) BreakerStatus() []circuitbreaker.Status {
	out := n.sendBreakers.Snapshot()
	return append(out, n.dialBreakers.Snapshot()...)
}

// Shutdown stops accepting, closes every peer connection, and waits for
// read loops and in-flight forwards to drain, bounded by ctx.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	if n.closing {
		n.mu.Unlock()
		return nil
	}
	n.closing = true
	n.mu.Unlock()

	if n.listener != nil {
		_ = n.listener.Close()
	}
	if n.cancel != nil {
		n.cancel()
	}

	for _, p := range n.registry.Snapshot() {
		_ = p.Close()
		if n.registry.Remove(p.Addr()) != nil {
			metrics.RecordPeerDisconnect("shutdown")
		}
	}
	metrics.SetConnectedPeers(0)

	done := make(chan struct{})
	go func() {
		n.readers.Wait()
		if n.group != nil {
			_ = n.group.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown: connections still draining: %w", ctx.Err())
	}

	err := n.router.Shutdown(ctx)
	n.store.Close()
	n.logger.Info("node stopped")
	return err
}

// acceptLoop registers inbound connections until the listener closes.
func (n *Node) acceptLoop(ctx context.Context) error {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if n.isClosing() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		n.logger.Info("peer connected", slog.String("peer", conn.RemoteAddr()))
		n.addPeer(ctx, conn.RemoteAddr(), conn)
	}
}

// maintainPeers redials configured peers that are not currently connected.
func (n *Node) maintainPeers(ctx context.Context) error {
	if len(n.cfg.Peers) == 0 {
		return nil
	}

	n.dialConfigured(ctx)
	if n.cfg.ReconnectInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(n.cfg.ReconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.dialConfigured(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (n *Node) dialConfigured(ctx context.Context) {
	for _, addr := range n.cfg.Peers {
		if n.registry.Get(addr) != nil {
			continue
		}
		if err := n.Connect(ctx, addr); err != nil {
			if executor.Classify(err) == executor.KindCircuitOpen {
				// Fail-fast refusal; the next tick will try again once the
				// breaker admits a trial.
				continue
			}
			n.logger.Warn("peer dial failed",
				slog.String("peer", addr),
				slog.Any("error", err))
		}
	}
}

// addPeer registers the connection and starts its read loop. A second
// connection to the same address supersedes the first.
func (n *Node) addPeer(ctx context.Context, addr string, conn transport.Conn) {
	p := peer.New(addr, conn)
	if replaced := n.registry.Add(p); replaced != nil {
		_ = replaced.Close()
	}
	metrics.SetConnectedPeers(n.registry.Len())

	n.readers.Add(1)
	go func() {
		defer n.readers.Done()
		n.readLoop(ctx, p)
	}()
}

// readLoop consumes frames from one peer until the connection ends.
// Messages are routed sequentially, so frames from a single peer are
// delivered in arrival order. The peer-scoped logger rides the context so
// downstream routing logs carry the connection it happened on.
func (n *Node) readLoop(ctx context.Context, p *peer.Peer) {
	logger := logging.WithPeer(n.logger, p.Addr())
	ctx = logging.WithLogger(ctx, logger)
	for {
		frame, err := p.Receive()
		if err != nil {
			n.dropPeer(p, err, logger)
			return
		}

		msg, err := gossip.Decode(frame)
		if err != nil {
			// A corrupt frame is the sender's fault, not the connection's.
			metrics.RecordMessageDropped("malformed")
			logger.Warn("dropping malformed frame", slog.Any("error", err))
			continue
		}

		if err := n.router.Receive(ctx, msg, p.Addr()); err != nil {
			logger.Error("routing failed",
				slog.String("message_id", msg.ID),
				slog.Any("error", err))
		}
	}
}

// dropPeer removes a peer whose read loop ended.
func (n *Node) dropPeer(p *peer.Peer, cause error, logger *slog.Logger) {
	if !n.registry.RemovePeer(p) {
		// Already removed, e.g. superseded by a newer connection or closed
		// during shutdown.
		return
	}
	_ = p.Close()
	metrics.SetConnectedPeers(n.registry.Len())

	switch {
	case errors.Is(cause, io.EOF):
		metrics.RecordPeerDisconnect("eof")
		logger.Info("peer disconnected")
	case n.isClosing():
		metrics.RecordPeerDisconnect("shutdown")
	default:
		metrics.RecordPeerDisconnect("error")
		logger.Warn("peer connection failed", slog.Any("error", cause))
	}
}

func (n *Node) isClosing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closing
}
