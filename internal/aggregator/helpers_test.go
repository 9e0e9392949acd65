package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
)

// sentMessage is one recorded transport send.
type sentMessage struct {
	Dest model.Address
	Msg  model.Outbound
}

// fakeTransport records outbound traffic and serves queued inbound messages,
// standing in for the MQTT layer.
type fakeTransport struct {
	sent      []sentMessage
	broadcast []model.Outbound

	// failDest makes Send fail for specific destinations.
	failDest map[model.Address]bool

	queue []queuedInbound
}

type queuedInbound struct {
	msg  model.Inbound
	from model.Address
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failDest: make(map[model.Address]bool)}
}

func (f *fakeTransport) Send(_ context.Context, dest model.Address, msg model.Outbound) error {
	if f.failDest[dest] {
		return fmt.Errorf("delivery to %s refused", dest)
	}
	f.sent = append(f.sent, sentMessage{Dest: dest, Msg: msg})
	return nil
}

func (f *fakeTransport) Broadcast(_ context.Context, msg model.Outbound) error {
	f.broadcast = append(f.broadcast, msg)
	return nil
}

func (f *fakeTransport) Poll() (model.Inbound, model.Address, bool) {
	if len(f.queue) == 0 {
		return nil, "", false
	}
	item := f.queue[0]
	f.queue = f.queue[1:]
	return item.msg, item.from, true
}

func (f *fakeTransport) push(msg model.Inbound, from model.Address) {
	f.queue = append(f.queue, queuedInbound{msg: msg, from: from})
}

// sentTo filters recorded sends by destination.
func (f *fakeTransport) sentTo(dest model.Address) []model.Outbound {
	var out []model.Outbound
	for _, s := range f.sent {
		if s.Dest == dest {
			out = append(out, s.Msg)
		}
	}
	return out
}

func report(id string, factory string) model.TelemetryReport {
	return model.TelemetryReport{
		ModuleID:       model.ModuleID(id),
		FactoryID:      factory,
		Speed:          1200,
		StressDemand:   500,
		StressCapacity: 6000,
		Throughput:     40,
		Enabled:        true,
		Priority:       5,
	}
}

func record(id string, lastUpdate time.Time) model.ModuleRecord {
	return model.ModuleRecord{
		ID:             model.ModuleID(id),
		FactoryID:      "plant-a",
		Speed:          1200,
		StressDemand:   500,
		StressCapacity: 6000,
		Enabled:        true,
		Priority:       5,
		LastUpdate:     lastUpdate,
		Addr:           model.Address(id),
	}
}
