package model

import "time"

// CommandKind defines the type of an inbound supervisor command.
type CommandKind string

const (
	// CommandModuleControl targets only the modules listed in its directives.
	CommandModuleControl CommandKind = "module-control"

	// CommandFactoryShutdown disables every registered module.
	CommandFactoryShutdown CommandKind = "factory-shutdown"

	// CommandFactoryRestart restarts every registered module.
	CommandFactoryRestart CommandKind = "factory-restart"

	// CommandLoadReduce disables the cheapest set of modules whose combined
	// stress meets the requested reduction target.
	CommandLoadReduce CommandKind = "load-reduce"
)

// Directive is one per-module action inside a module-control command.
type Directive struct {
	Target ModuleID          `json:"target"`
	Action string            `json:"action"`
	Args   map[string]string `json:"args,omitempty"`
}

// RouteResult is the synchronous per-target outcome of command forwarding.
type RouteResult string

const (
	RouteCommandSent   RouteResult = "command_sent"
	RouteSendFailed    RouteResult = "send_failed"
	RouteInvalidTarget RouteResult = "invalid_target"
	RouteShutdownSent  RouteResult = "shutdown_sent"
	RouteRestartSent   RouteResult = "restart_sent"
)

// Forwarded reports whether the result counts as a successful forward.
func (r RouteResult) Forwarded() bool {
	return r != RouteSendFailed && r != RouteInvalidTarget
}

// AckResult is a module's asynchronous response to a routed command.
type AckResult struct {
	// OK is true for an ack, false for a nack.
	OK bool `json:"ok"`

	// NewState is the module's reported state after a successful command.
	NewState string `json:"newState,omitempty"`

	// Reason and CurrentState are reported on failure.
	Reason       string `json:"reason,omitempty"`
	CurrentState string `json:"currentState,omitempty"`

	ReceivedAt time.Time `json:"receivedAt"`
}

// PendingCommand tracks one inbound command and the per-target responses
// collected so far. Entries are evicted by the router's retention sweep.
type PendingCommand struct {
	ID         string      `json:"id"`
	Kind       CommandKind `json:"kind"`
	Directives []Directive `json:"directives,omitempty"`
	Source     Address     `json:"source"`
	ReceivedAt time.Time   `json:"receivedAt"`

	// Routed is the synchronous forwarding outcome per target.
	Routed map[ModuleID]RouteResult `json:"routed"`

	// Acks maps module ID to its response; absent means no response yet.
	Acks map[ModuleID]AckResult `json:"acks"`
}

// Settled reports whether every routed target has responded.
func (p *PendingCommand) Settled() bool {
	for id, res := range p.Routed {
		if !res.Forwarded() {
			continue // never delivered, no response expected
		}
		if _, ok := p.Acks[id]; !ok {
			return false
		}
	}
	return true
}
