package model

import "time"

// AlertKind classifies a safety alert.
type AlertKind string

const (
	// AlertOverstress fires once when network stress crosses into the
	// overstress region (edge-triggered).
	AlertOverstress AlertKind = "overstress"

	// AlertModuleOffline fires when a previously seen module goes stale.
	AlertModuleOffline AlertKind = "module_offline"

	// AlertModuleStalled fires while a module that should be spinning
	// reports zero speed.
	AlertModuleStalled AlertKind = "module_stalled"
)

// Alert is a safety finding emitted upstream. The safety monitor produces
// alerts; delivery and logging belong to the caller.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	FactoryID string    `json:"factoryID"`
	ModuleID  ModuleID  `json:"moduleID,omitempty"`
	Message   string    `json:"message"`
	RaisedAt  time.Time `json:"raisedAt"`
}
