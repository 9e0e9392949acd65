package model

import "time"

// ModuleID uniquely identifies an edge module within a factory.
type ModuleID string

// Address is an opaque transport address used to route messages back to a
// peer. For the MQTT transport it is the peer's topic-addressable identity.
type Address string

// ModuleRecord is the latest known state of one edge module. Records are
// overwritten in place on every accepted telemetry report and never deleted;
// staleness is a computed property of LastUpdate, not a removal trigger.
type ModuleRecord struct {
	// ID is the unique module identifier.
	ID ModuleID `json:"id"`

	// FactoryID is the factory the module claims to belong to. Reports whose
	// FactoryID does not match the node's are rejected without touching
	// the registry.
	FactoryID string `json:"factoryID"`

	// Speed is the reported rotational speed in RPM. Zero is a valid reading.
	Speed float64 `json:"speed"`

	// StressDemand and StressCapacity are in stress units (SU) on the shared
	// stress network. Both are non-negative.
	StressDemand   float64 `json:"stressDemand"`
	StressCapacity float64 `json:"stressCapacity"`

	// Throughput is the reported processing rate.
	Throughput float64 `json:"throughput"`

	// Enabled reports whether the module considers itself active.
	Enabled bool `json:"enabled"`

	// Priority is the module's locally assigned shed priority. Lower values
	// are disabled first when a load reduction is requested.
	Priority int `json:"priority"`

	// LastUpdate is when the node last accepted telemetry for this module.
	LastUpdate time.Time `json:"lastUpdate"`

	// Addr routes commands back to this module.
	Addr Address `json:"addr"`
}

// Online reports whether the record is fresh at the given instant.
func (r *ModuleRecord) Online(timeout time.Duration, now time.Time) bool {
	return now.Sub(r.LastUpdate) < timeout
}
