package aggregator

import (
	"context"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
)

// Transport is the wire collaborator contract. The core never touches
// addressing, framing or link management; it sees typed messages only.
type Transport interface {
	// Send attempts unicast delivery. It may fail transiently; the core
	// logs and moves on, relying on its next natural cycle as the retry.
	Send(ctx context.Context, dest model.Address, msg model.Outbound) error

	// Broadcast delivers best-effort to all reachable peers.
	Broadcast(ctx context.Context, msg model.Outbound) error

	// Poll performs a single non-blocking receive. ok is false when no
	// message is waiting. Poll must never block, so timer-driven work is
	// never starved behind a read.
	Poll() (msg model.Inbound, from model.Address, ok bool)
}
