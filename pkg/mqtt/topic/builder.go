package topic

import (
	"fmt"
)

// Constants defining the standard topic segments.
// These act as the protocol contract between the aggregator node, the edge
// modules below it and the supervisor above it. Changing these values breaks
// compatibility with deployed modules.
const (
	// SuffixTelemetry carries periodic module telemetry reports.
	// Direction: Module -> Node. Structure: {root}/telemetry/{moduleID}
	SuffixTelemetry = "telemetry"

	// SuffixCommand carries per-module control directives.
	// Direction: Node -> Module. Structure: {root}/command/{moduleID}
	SuffixCommand = "command"

	// SuffixCommandAck carries module command acknowledgements (ack and nack).
	// Direction: Module -> Node. Structure: {root}/command/ack/{moduleID}
	SuffixCommandAck = "command/ack"

	// SuffixControl carries inbound factory-level commands from the supervisor.
	// Direction: Supervisor -> Node. Structure: {root}/control/{factoryID}
	SuffixControl = "control"

	// SuffixReceipt carries routing receipts back to a command's source.
	// Direction: Node -> Supervisor. Structure: {root}/receipt/{source}
	SuffixReceipt = "receipt"

	// SuffixSnapshot carries periodic factory summaries.
	// Direction: Node -> Supervisor. Structure: {root}/snapshot/{supervisor}
	SuffixSnapshot = "snapshot"

	// SuffixAlert carries safety alerts.
	// Direction: Node -> Supervisor. Structure: {root}/alert/{supervisor}
	SuffixAlert = "alert"

	// SuffixBroadcast is the factory-wide fan-out topic every module listens on.
	// Direction: Node -> all Modules. Structure: {root}/broadcast/{factoryID}
	SuffixBroadcast = "broadcast"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
// It keeps topic layout consistent across the node, the CLI and tests.
type Builder struct {
	// root is the base namespace for all topics (e.g. "forge/v1").
	root string
}

// NewBuilder creates a new Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Telemetry returns the topic a module publishes its telemetry on.
func (b *Builder) Telemetry(moduleID string) string {
	return b.build(SuffixTelemetry, moduleID)
}

// TelemetryWildcard returns the filter the node subscribes to for all telemetry.
func (b *Builder) TelemetryWildcard() string {
	return b.build(SuffixTelemetry, Wildcard)
}

// Command returns the topic for sending a directive to a specific module.
func (b *Builder) Command(moduleID string) string {
	return b.build(SuffixCommand, moduleID)
}

// CommandAck returns the topic a module reports command status on.
func (b *Builder) CommandAck(moduleID string) string {
	return b.build(SuffixCommandAck, moduleID)
}

// CommandAckWildcard returns the filter the node subscribes to for all acks.
func (b *Builder) CommandAckWildcard() string {
	return b.build(SuffixCommandAck, Wildcard)
}

// Control returns the topic the supervisor sends factory commands on.
func (b *Builder) Control(factoryID string) string {
	return b.build(SuffixControl, factoryID)
}

// Receipt returns the topic for routing receipts addressed to a source.
func (b *Builder) Receipt(source string) string {
	return b.build(SuffixReceipt, source)
}

// Snapshot returns the topic for periodic summaries to a supervisor.
func (b *Builder) Snapshot(supervisor string) string {
	return b.build(SuffixSnapshot, supervisor)
}

// Alert returns the topic for safety alerts to a supervisor.
func (b *Builder) Alert(supervisor string) string {
	return b.build(SuffixAlert, supervisor)
}

// Broadcast returns the factory-wide fan-out topic.
func (b *Builder) Broadcast(factoryID string) string {
	return b.build(SuffixBroadcast, factoryID)
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
