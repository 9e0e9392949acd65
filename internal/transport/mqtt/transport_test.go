package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
	pkgmqtt "github.com/forgehub-io/forgehub/pkg/mqtt"
	"github.com/forgehub-io/forgehub/pkg/mqtt/topic"
)

type published struct {
	Topic   string
	Payload []byte
}

// fakeClient satisfies the MQTT client interface without a broker.
type fakeClient struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]pkgmqtt.MessageHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]pkgmqtt.MessageHandler)}
}

func (f *fakeClient) Start(ctx context.Context) error           { return nil }
func (f *fakeClient) Disconnect(ctx context.Context)            {}
func (f *fakeClient) AwaitConnection(ctx context.Context) error { return nil }

func (f *fakeClient) Unsubscribe(ctx context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{Topic: topic, Payload: payload})
	return nil
}

func (f *fakeClient) Subscribe(ctx context.Context, topic string, qos int, handler pkgmqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeClient) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.handlers))
	for filter := range f.handlers {
		out = append(out, filter)
	}
	return out
}

func envelope(t *testing.T, typ, sender string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	data, err := json.Marshal(Envelope{Type: typ, Sender: sender, Payload: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func TestTransportQueueAndPoll(t *testing.T) {
	tr := New("node-1", "plant-a", newFakeClient(), topic.NewBuilder("forge/v1"))
	ctx := context.Background()

	rep := model.TelemetryReport{ModuleID: "mod-7", FactoryID: "plant-a", Speed: 900}
	tr.onMessage(ctx, "forge/v1/telemetry/mod-7", envelope(t, typeTelemetry, "mod-7", rep))

	msg, from, ok := tr.Poll()
	if !ok {
		t.Fatal("expected a queued message")
	}
	if from != "mod-7" {
		t.Errorf("expected sender mod-7, got %s", from)
	}
	got, ok := msg.(model.TelemetryReport)
	if !ok || got.Speed != 900 {
		t.Errorf("telemetry mismatch: %+v", msg)
	}

	if _, _, ok := tr.Poll(); ok {
		t.Error("poll returned a message from an empty queue")
	}
}

func TestTransportFromFallsBackToTopic(t *testing.T) {
	tr := New("node-1", "plant-a", newFakeClient(), topic.NewBuilder("forge/v1"))
	ctx := context.Background()

	// No envelope sender: the final topic level identifies the module.
	ack := model.ModuleAck{CommandID: "cmd-1", ModuleID: "mod-3"}
	tr.onMessage(ctx, "forge/v1/command/ack/mod-3", envelope(t, typeModuleAck, "", ack))

	_, from, ok := tr.Poll()
	if !ok {
		t.Fatal("expected a queued message")
	}
	if from != "mod-3" {
		t.Errorf("expected topic-derived sender mod-3, got %s", from)
	}

	if _, seen := tr.LastSeen("mod-3"); !seen {
		t.Error("sender not recorded as last seen")
	}
}

func TestTransportDropsUndecodable(t *testing.T) {
	tr := New("node-1", "plant-a", newFakeClient(), topic.NewBuilder("forge/v1"))

	tr.onMessage(context.Background(), "forge/v1/telemetry/mod-1", []byte("garbage"))

	if _, _, ok := tr.Poll(); ok {
		t.Error("undecodable message was queued")
	}
}

func TestTransportQueueOverflow(t *testing.T) {
	tr := New("node-1", "plant-a", newFakeClient(), topic.NewBuilder("forge/v1"))
	ctx := context.Background()

	rep := model.TelemetryReport{ModuleID: "mod-1", FactoryID: "plant-a"}
	data := envelope(t, typeTelemetry, "mod-1", rep)
	for i := 0; i < defaultQueueSize+10; i++ {
		tr.onMessage(ctx, "forge/v1/telemetry/mod-1", data)
	}

	drained := 0
	for {
		if _, _, ok := tr.Poll(); !ok {
			break
		}
		drained++
	}
	if drained != defaultQueueSize {
		t.Errorf("expected %d queued messages after overflow, got %d", defaultQueueSize, drained)
	}
}

func TestTransportSendTopics(t *testing.T) {
	client := newFakeClient()
	tr := New("node-1", "plant-a", client, topic.NewBuilder("forge/v1"))
	ctx := context.Background()

	tests := []struct {
		name string
		dest model.Address
		msg  model.Outbound
		want string
	}{
		{"module command", "mod-1", model.ModuleCommand{CommandID: "c", ModuleID: "mod-1"}, "forge/v1/command/mod-1"},
		{"receipt", "supervisor-1", model.RoutingReceipt{CommandID: "c"}, "forge/v1/receipt/supervisor-1"},
		{"snapshot", "supervisor-1", model.Snapshot{FactoryID: "plant-a"}, "forge/v1/snapshot/supervisor-1"},
		{"alert", "supervisor-1", model.Alert{Kind: model.AlertOverstress}, "forge/v1/alert/supervisor-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(client.published)
			if err := tr.Send(ctx, tt.dest, tt.msg); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(client.published) != before+1 {
				t.Fatalf("expected 1 publish, got %d", len(client.published)-before)
			}
			if got := client.published[before].Topic; got != tt.want {
				t.Errorf("expected topic %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTransportBroadcastTopic(t *testing.T) {
	client := newFakeClient()
	tr := New("node-1", "plant-a", client, topic.NewBuilder("forge/v1"))

	if err := tr.Broadcast(context.Background(), model.EmergencyStop{Reason: "test"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(client.published))
	}
	if got := client.published[0].Topic; got != "forge/v1/broadcast/plant-a" {
		t.Errorf("expected broadcast topic, got %s", got)
	}

	// The payload must decode back to the same stop message on the far side.
	msg, sender, err := Decode(client.published[0].Payload)
	if err != nil {
		t.Fatalf("broadcast payload undecodable: %v", err)
	}
	if sender != "node-1" {
		t.Errorf("expected sender node-1, got %q", sender)
	}
	if stop, ok := msg.(model.EmergencyStop); !ok || stop.Reason != "test" {
		t.Errorf("broadcast round trip mismatch: %+v", msg)
	}
}

func TestTransportSubscriptions(t *testing.T) {
	client := newFakeClient()
	tr := New("node-1", "plant-a", client, topic.NewBuilder("forge/v1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Start(ctx) }()

	// Start subscribes then blocks; give it a moment before cancelling.
	deadline := time.After(2 * time.Second)
	for len(client.subscriptions()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected 3 subscriptions, got %v", client.subscriptions())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	subs := make(map[string]bool)
	for _, filter := range client.subscriptions() {
		subs[filter] = true
	}
	for _, filter := range []string{"forge/v1/telemetry/+", "forge/v1/command/ack/+", "forge/v1/control/plant-a"} {
		if !subs[filter] {
			t.Errorf("missing subscription %s (have %v)", filter, client.subscriptions())
		}
	}
}
