package aggregator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
	"github.com/forgehub-io/forgehub/internal/pkg/metrics"
	"github.com/forgehub-io/forgehub/pkg/log"
)

// evictInterval gates the pending-command retention sweep.
const evictInterval = time.Minute

// Archiver persists published snapshots outside the node. Archival is
// best-effort; failures never affect the control loop.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, snap model.Snapshot) error
}

// Node is the mid-tier aggregation process: it drains telemetry and commands
// from the transport, keeps the registry and router state, runs the safety
// monitor and publishes periodic summaries.
//
// All mutable state is owned by the single control loop goroutine; nothing
// here needs a lock. The only concession to outside readers is the published
// snapshot, held in an atomic pointer for the HTTP admin server.
type Node struct {
	opts      *Options
	transport Transport
	archiver  Archiver

	registry *Registry
	safety   *SafetyMonitor
	router   *Router

	supervisor model.Address

	startedAt    time.Time
	lastSnapshot time.Time
	lastLiveness time.Time
	lastEvict    time.Time

	latest atomic.Pointer[model.Snapshot]

	// now is replaceable in tests.
	now func() time.Time

	logger log.Logger
}

// NewNode wires a node from its options and collaborators. archiver may be
// nil when snapshot archival is disabled.
func NewNode(opts *Options, transport Transport, archiver Archiver) *Node {
	return &Node{
		opts:       opts,
		transport:  transport,
		archiver:   archiver,
		registry:   NewRegistry(opts.FactoryID),
		safety:     NewSafetyMonitor(opts.FactoryID, opts.SafetyMargin, opts.ModuleTimeout, opts.OfflineAlerts),
		router:     NewRouter(opts.FactoryID, transport, opts.CommandRetention),
		supervisor: model.Address(opts.Supervisor),
		now:        time.Now,
		logger:     log.WithName("node"),
	}
}

// Latest returns the most recently published snapshot, or nil before the
// first publication. Safe to call from other goroutines.
func (n *Node) Latest() *model.Snapshot {
	return n.latest.Load()
}

// Start runs the control loop until ctx is cancelled. A panic in the loop
// body is recovered and surfaced as the returned error so the process can
// terminate cleanly instead of crashing silently.
func (n *Node) Start(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			n.logger.Error(nil, "Control loop panicked", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("control loop panic: %v", rec)
		}
	}()

	start := n.now()
	n.startedAt = start
	n.lastSnapshot = start
	n.lastLiveness = start
	n.lastEvict = start

	n.logger.Info("Starting aggregation node",
		"factoryID", n.opts.FactoryID,
		"supervisor", n.opts.Supervisor,
		"snapshotInterval", n.opts.SnapshotInterval,
		"moduleTimeout", n.opts.ModuleTimeout)

	ticker := time.NewTicker(n.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Aggregation node shutting down")
			return nil
		case <-ticker.C:
			n.runOnce(ctx)
		}
	}
}

// runOnce is a single cooperative iteration: at most one inbound message,
// then every time-gated task that is due.
func (n *Node) runOnce(ctx context.Context) {
	now := n.now()

	if msg, from, ok := n.transport.Poll(); ok {
		n.dispatch(ctx, msg, from, now)
	}

	for _, alert := range n.safety.Evaluate(ctx, n.registry.List(), now) {
		metrics.AlertsRaised.WithLabelValues(string(alert.Kind)).Inc()
		n.logger.Warn("Safety alert", "kind", alert.Kind, "module", alert.ModuleID, "message", alert.Message)
		if err := n.transport.Send(ctx, n.supervisor, alert); err != nil {
			n.logger.Error(err, "Failed to deliver alert", "kind", alert.Kind)
		}
	}

	if now.Sub(n.lastSnapshot) >= n.opts.SnapshotInterval {
		n.lastSnapshot = now
		n.publishSnapshot(ctx, now)
	}

	if now.Sub(n.lastLiveness) >= n.opts.LivenessInterval {
		n.lastLiveness = now
		n.broadcastLiveness(ctx, now)
	}

	if now.Sub(n.lastEvict) >= evictInterval {
		n.lastEvict = now
		if evicted := n.router.Evict(now); evicted > 0 {
			n.logger.Debug("Evicted pending commands", "count", evicted)
		}
	}
}

// dispatch classifies one inbound message and routes it to the owning
// component. The variant set is closed; the default arm only catches
// transport decoders growing ahead of the core.
func (n *Node) dispatch(ctx context.Context, msg model.Inbound, from model.Address, now time.Time) {
	switch m := msg.(type) {
	case model.TelemetryReport:
		metrics.InboundMessages.WithLabelValues("telemetry").Inc()
		if err := n.registry.Upsert(m, from, now); err != nil {
			n.logger.Warn("Rejected telemetry", "module", m.ModuleID, "reason", err.Error())
		}

	case model.ControlCommand:
		metrics.InboundMessages.WithLabelValues("command").Inc()
		if _, err := n.router.HandleCommand(ctx, m, n.registry, now); err != nil {
			n.logger.Warn("Rejected command", "commandID", m.ID, "reason", err.Error())
		}

	case model.ModuleAck:
		metrics.InboundMessages.WithLabelValues("ack").Inc()
		n.router.HandleAck(m, now)

	case model.ModuleNack:
		metrics.InboundMessages.WithLabelValues("nack").Inc()
		n.router.HandleNack(m, now)

	case model.EmergencyStop:
		metrics.InboundMessages.WithLabelValues("emergency_stop").Inc()
		// Bypass normal routing entirely: every module must hear this now.
		n.logger.Warn("Re-broadcasting emergency stop", "reason", m.Reason)
		if err := n.transport.Broadcast(ctx, m); err != nil {
			n.logger.Error(err, "Emergency stop broadcast failed")
		}

	case model.Heartbeat:
		metrics.InboundMessages.WithLabelValues("heartbeat").Inc()
		// The transport already recorded the sender as last seen.

	default:
		metrics.InboundMessages.WithLabelValues("unknown").Inc()
		n.logger.Warn("Discarding message of unrecognized type", "type", fmt.Sprintf("%T", msg), "from", from)
	}
}

// publishSnapshot recomputes the aggregate view, exposes it to local readers
// and sends it upstream. Delivery failure is logged and the next cycle
// proceeds unconditionally.
func (n *Node) publishSnapshot(ctx context.Context, now time.Time) {
	records := n.registry.List()
	stats := ComputeStats(records, n.opts.ModuleTimeout, now)

	metrics.ModulesOnline.Set(float64(stats.Online))
	metrics.ModulesOffline.Set(float64(stats.Offline))
	metrics.StressUsage.Set(stats.StressUsage)
	metrics.StressCapacity.Set(stats.StressCapacity)

	snap := model.Snapshot{
		FactoryID:     n.opts.FactoryID,
		Modules:       records,
		Stats:         stats,
		Uptime:        now.Sub(n.startedAt),
		TakenAt:       now,
		ModuleTimeout: n.opts.ModuleTimeout,
	}
	n.latest.Store(&snap)

	if err := n.transport.Send(ctx, n.supervisor, snap); err != nil {
		metrics.SnapshotPublishFailures.Inc()
		n.logger.Error(err, "Failed to publish snapshot", "supervisor", n.supervisor)
	} else {
		metrics.SnapshotsPublished.Inc()
	}

	if n.archiver != nil {
		// Off the loop: an object store round trip must not stall polling.
		go func(snap model.Snapshot) {
			actx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := n.archiver.ArchiveSnapshot(actx, snap); err != nil {
				n.logger.Error(err, "Failed to archive snapshot")
			}
		}(snap)
	}
}

func (n *Node) broadcastLiveness(ctx context.Context, now time.Time) {
	msg := model.LivenessBroadcast{
		FactoryID: n.opts.FactoryID,
		Uptime:    now.Sub(n.startedAt),
	}
	if err := n.transport.Broadcast(ctx, msg); err != nil {
		n.logger.Error(err, "Liveness broadcast failed")
	}
}
