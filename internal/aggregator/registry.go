package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
)

// Registry maps module identifiers to their latest telemetry record. It is
// exclusively owned by the node's control loop; no locking is needed because
// nothing else mutates it.
type Registry struct {
	factoryID string
	modules   map[model.ModuleID]*model.ModuleRecord
}

// NewRegistry creates an empty registry bound to one factory identity.
func NewRegistry(factoryID string) *Registry {
	return &Registry{
		factoryID: factoryID,
		modules:   make(map[model.ModuleID]*model.ModuleRecord),
	}
}

// Upsert validates and stores a telemetry report, replacing any prior record
// for the same module. A report whose factory identifier does not match the
// node's is rejected without mutating the registry.
func (r *Registry) Upsert(rep model.TelemetryReport, from model.Address, now time.Time) error {
	if rep.FactoryID != r.factoryID {
		return fmt.Errorf("telemetry from module %s claims factory %q, node is %q: %w",
			rep.ModuleID, rep.FactoryID, r.factoryID, ErrWrongFactory)
	}

	r.modules[rep.ModuleID] = &model.ModuleRecord{
		ID:             rep.ModuleID,
		FactoryID:      rep.FactoryID,
		Speed:          rep.Speed,
		StressDemand:   rep.StressDemand,
		StressCapacity: rep.StressCapacity,
		Throughput:     rep.Throughput,
		Enabled:        rep.Enabled,
		Priority:       rep.Priority,
		LastUpdate:     now,
		Addr:           from,
	}
	return nil
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id model.ModuleID) (model.ModuleRecord, bool) {
	rec, ok := r.modules[id]
	if !ok {
		return model.ModuleRecord{}, false
	}
	return *rec, true
}

// Resolve is Get with a structured error for directive routing.
func (r *Registry) Resolve(id model.ModuleID) (model.ModuleRecord, error) {
	rec, ok := r.modules[id]
	if !ok {
		return model.ModuleRecord{}, fmt.Errorf("module %s: %w", id, ErrUnknownTarget)
	}
	return *rec, nil
}

// List returns all records sorted by module ID. Sorting keeps every consumer
// (snapshots, fan-out, receipts) deterministic regardless of map order.
func (r *Registry) List() []model.ModuleRecord {
	out := make([]model.ModuleRecord, 0, len(r.modules))
	for _, rec := range r.modules {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.modules)
}
