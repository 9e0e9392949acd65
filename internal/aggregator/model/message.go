package model

import "time"

// Inbound is the closed set of message variants the node consumes. Modeling
// inbound traffic as typed variants (rather than a generic dynamic record)
// lets the dispatcher type-switch exhaustively and the compiler catch
// unhandled kinds.
type Inbound interface{ inbound() }

// Outbound is the closed set of message variants the node produces.
type Outbound interface{ outbound() }

// TelemetryReport is a periodic status report from an edge module.
type TelemetryReport struct {
	ModuleID       ModuleID `json:"moduleID"`
	FactoryID      string   `json:"factoryID"`
	Speed          float64  `json:"speed"`
	StressDemand   float64  `json:"stressDemand"`
	StressCapacity float64  `json:"stressCapacity"`
	Throughput     float64  `json:"throughput"`
	Enabled        bool     `json:"enabled"`
	Priority       int      `json:"priority"`
}

// ModuleAck reports successful execution of a routed command.
type ModuleAck struct {
	CommandID string   `json:"commandID"`
	ModuleID  ModuleID `json:"moduleID"`
	NewState  string   `json:"newState"`
}

// ModuleNack reports failed execution of a routed command.
type ModuleNack struct {
	CommandID    string   `json:"commandID"`
	ModuleID     ModuleID `json:"moduleID"`
	Reason       string   `json:"reason"`
	CurrentState string   `json:"currentState"`
}

// ControlCommand is an inbound command from the supervisor.
type ControlCommand struct {
	ID        string      `json:"id"`
	Kind      CommandKind `json:"kind"`
	FactoryID string      `json:"factoryID"`
	Source    Address     `json:"source"`

	// Directives lists per-module actions; only meaningful for
	// CommandModuleControl.
	Directives []Directive `json:"directives,omitempty"`

	// TargetSU is the stress reduction goal; only meaningful for
	// CommandLoadReduce.
	TargetSU float64 `json:"targetSU,omitempty"`
}

// EmergencyStop halts every module. The node re-broadcasts it to the whole
// factory immediately, bypassing normal routing.
type EmergencyStop struct {
	Reason string `json:"reason,omitempty"`
}

// Heartbeat is a peer liveness probe. The node ignores it; the transport
// already records the sender as last seen.
type Heartbeat struct {
	Sender string `json:"sender,omitempty"`
}

// ModuleCommand is a per-module directive produced by the router.
type ModuleCommand struct {
	CommandID    string            `json:"commandID"`
	ModuleID     ModuleID          `json:"moduleID"`
	Action       string            `json:"action"`
	Args         map[string]string `json:"args,omitempty"`
	HighPriority bool              `json:"highPriority,omitempty"`
}

// RoutingReceipt acknowledges an inbound command to its source. It is built
// synchronously, before any module responds.
type RoutingReceipt struct {
	CommandID string                   `json:"commandID"`
	Forwarded int                      `json:"forwarded"`
	Results   map[ModuleID]RouteResult `json:"results"`
}

// Snapshot is the periodic upstream summary: the full registry plus derived
// statistics and node metadata.
type Snapshot struct {
	FactoryID string          `json:"factoryID"`
	Modules   []ModuleRecord  `json:"modules"`
	Stats     AggregatedStats `json:"stats"`
	Uptime    time.Duration   `json:"uptime"`
	TakenAt   time.Time       `json:"takenAt"`

	// ModuleTimeout is the staleness threshold the node applied when it
	// computed Stats, so consumers classify online the same way.
	ModuleTimeout time.Duration `json:"moduleTimeout"`
}

// LivenessBroadcast announces the node itself to the factory.
type LivenessBroadcast struct {
	FactoryID string        `json:"factoryID"`
	Uptime    time.Duration `json:"uptime"`
}

func (TelemetryReport) inbound() {}
func (ModuleAck) inbound()       {}
func (ModuleNack) inbound()      {}
func (ControlCommand) inbound()  {}
func (EmergencyStop) inbound()   {}
func (Heartbeat) inbound()       {}

func (ModuleCommand) outbound()     {}
func (RoutingReceipt) outbound()    {}
func (Snapshot) outbound()          {}
func (Alert) outbound()             {}
func (LivenessBroadcast) outbound() {}

// EmergencyStop is re-broadcast verbatim, so it is outbound as well.
func (EmergencyStop) outbound() {}
