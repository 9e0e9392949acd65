// Package mqtt implements the node's wire transport over MQTT v5. It decodes
// broker traffic into the core's typed message set and exposes the
// non-blocking poll the control loop depends on.
package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/forgehub-io/forgehub/internal/aggregator"
	"github.com/forgehub-io/forgehub/internal/aggregator/model"
	"github.com/forgehub-io/forgehub/pkg/log"
	pkgmqtt "github.com/forgehub-io/forgehub/pkg/mqtt"
	"github.com/forgehub-io/forgehub/pkg/mqtt/topic"
)

const defaultQueueSize = 256

type inboundItem struct {
	msg  model.Inbound
	from model.Address
}

// Transport adapts the shared MQTT client to the core's Transport contract.
type Transport struct {
	nodeID string
	client pkgmqtt.Client
	topics *topic.Builder

	factoryID string

	// queue buffers decoded inbound traffic between the broker callbacks and
	// the control loop's poll. When it fills, newest messages are dropped;
	// telemetry is periodic and commands are retried by their source.
	queue chan inboundItem

	// lastSeen records every sender address observed, known or not.
	mu       sync.Mutex
	lastSeen map[model.Address]time.Time

	logger log.Logger
}

var _ aggregator.Transport = (*Transport)(nil)

// New creates a transport bound to one factory identity. nodeID is stamped
// into outbound envelopes as the sender.
func New(nodeID, factoryID string, client pkgmqtt.Client, topics *topic.Builder) *Transport {
	return &Transport{
		nodeID:    nodeID,
		client:    client,
		topics:    topics,
		factoryID: factoryID,
		queue:     make(chan inboundItem, defaultQueueSize),
		lastSeen:  make(map[model.Address]time.Time),
		logger:    log.WithName("transport"),
	}
}

// Start connects to the broker, subscribes to the node's ingress topics and
// blocks until ctx is cancelled. A failure to establish the initial
// connection is fatal for the node.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.client.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", aggregator.ErrTransportFatal, err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		t.client.Disconnect(shutdownCtx)
	}()

	t.logger.Info("Waiting for MQTT connection...")
	if err := t.client.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("%w: %v", aggregator.ErrTransportFatal, err)
	}
	t.logger.Info("MQTT connected")

	subscriptions := []string{
		t.topics.TelemetryWildcard(),
		t.topics.CommandAckWildcard(),
		t.topics.Control(t.factoryID),
	}
	for _, filter := range subscriptions {
		if err := t.client.Subscribe(ctx, filter, 1, t.onMessage); err != nil {
			return fmt.Errorf("%w: subscribe %s: %v", aggregator.ErrTransportFatal, filter, err)
		}
	}

	<-ctx.Done()
	return nil
}

// Send implements unicast delivery to one peer address.
func (t *Transport) Send(ctx context.Context, dest model.Address, msg model.Outbound) error {
	data, err := Encode(msg, t.nodeID, time.Now())
	if err != nil {
		return err
	}

	if err := t.client.Publish(ctx, t.topicFor(dest, msg), 1, false, data); err != nil {
		return fmt.Errorf("%w: %v", aggregator.ErrDeliveryFailed, err)
	}
	return nil
}

// Broadcast publishes to the factory-wide fan-out topic.
func (t *Transport) Broadcast(ctx context.Context, msg model.Outbound) error {
	data, err := Encode(msg, t.nodeID, time.Now())
	if err != nil {
		return err
	}

	if err := t.client.Publish(ctx, t.topics.Broadcast(t.factoryID), 1, false, data); err != nil {
		return fmt.Errorf("%w: %v", aggregator.ErrDeliveryFailed, err)
	}
	return nil
}

// Poll performs one non-blocking receive.
func (t *Transport) Poll() (model.Inbound, model.Address, bool) {
	select {
	case item := <-t.queue:
		return item.msg, item.from, true
	default:
		return nil, "", false
	}
}

// LastSeen returns when a peer address was last heard from.
func (t *Transport) LastSeen(addr model.Address) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastSeen[addr]
	return ts, ok
}

// onMessage decodes one broker delivery and queues it for the control loop.
// Runs on the MQTT client's handler goroutines, so it only touches the
// queue and the lastSeen map.
func (t *Transport) onMessage(ctx context.Context, msgTopic string, payload []byte) {
	msg, sender, err := Decode(payload)
	if err != nil {
		t.logger.Warn("Discarding undecodable message", "topic", msgTopic, "reason", err.Error())
		return
	}

	from := model.Address(sender)
	if from == "" {
		// Upstream module topics end in the module identifier.
		parts := strings.Split(msgTopic, "/")
		from = model.Address(parts[len(parts)-1])
	}

	t.mu.Lock()
	t.lastSeen[from] = time.Now()
	t.mu.Unlock()

	select {
	case t.queue <- inboundItem{msg: msg, from: from}:
	default:
		t.logger.Warn("Inbound queue full, dropping message", "topic", msgTopic, "from", from)
	}
}

// topicFor maps an outbound message to its destination topic. The message
// type picks the segment, the address picks the final level.
func (t *Transport) topicFor(dest model.Address, msg model.Outbound) string {
	switch msg.(type) {
	case model.ModuleCommand:
		return t.topics.Command(string(dest))
	case model.RoutingReceipt:
		return t.topics.Receipt(string(dest))
	case model.Snapshot:
		return t.topics.Snapshot(string(dest))
	case model.Alert:
		return t.topics.Alert(string(dest))
	default:
		// Liveness and emergency stops go through Broadcast; anything else
		// unicast lands on the command channel for the addressed peer.
		return t.topics.Command(string(dest))
	}
}
