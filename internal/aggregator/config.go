package aggregator

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Options holds the aggregation node's own settings. Transport and
// observability settings live in their respective option groups.
type Options struct {
	// FactoryID is this node's factory identity. Telemetry and commands
	// carrying a different identity are rejected.
	FactoryID string `json:"factory-id" mapstructure:"factory-id"`

	// Supervisor is the upstream address snapshots, alerts and receipts
	// default to.
	Supervisor string `json:"supervisor" mapstructure:"supervisor"`

	// SnapshotInterval is how often the summary is published upstream.
	SnapshotInterval time.Duration `json:"snapshot-interval" mapstructure:"snapshot-interval"`

	// ModuleTimeout is the staleness threshold for online classification.
	ModuleTimeout time.Duration `json:"module-timeout" mapstructure:"module-timeout"`

	// SafetyMargin tightens the overstress threshold below the 0.95 base.
	SafetyMargin float64 `json:"safety-margin" mapstructure:"safety-margin"`

	// OfflineAlerts toggles module-offline alert emission.
	OfflineAlerts bool `json:"offline-alerts" mapstructure:"offline-alerts"`

	// LivenessInterval is how often the node announces itself to the factory.
	LivenessInterval time.Duration `json:"liveness-interval" mapstructure:"liveness-interval"`

	// CommandRetention bounds how long unsettled commands stay tracked.
	CommandRetention time.Duration `json:"command-retention" mapstructure:"command-retention"`

	// TickInterval is the control loop's yield period.
	TickInterval time.Duration `json:"tick-interval" mapstructure:"tick-interval"`
}

// NewOptions returns node options with production defaults.
func NewOptions() *Options {
	return &Options{
		SnapshotInterval: 5 * time.Second,
		ModuleTimeout:    10 * time.Second,
		SafetyMargin:     0.05,
		OfflineAlerts:    true,
		LivenessInterval: 10 * time.Second,
		CommandRetention: 30 * time.Minute,
		TickInterval:     50 * time.Millisecond,
	}
}

// Validate checks the option values entered by the user at startup.
func (o *Options) Validate() []error {
	errs := []error{}

	if o.FactoryID == "" {
		errs = append(errs, fmt.Errorf("node.factory-id is required"))
	}
	if o.Supervisor == "" {
		errs = append(errs, fmt.Errorf("node.supervisor is required"))
	}
	if o.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("node.snapshot-interval must be positive"))
	}
	if o.ModuleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("node.module-timeout must be positive"))
	}
	if o.SafetyMargin < 0 || o.SafetyMargin >= overstressBase {
		errs = append(errs, fmt.Errorf("node.safety-margin must be in [0, %.2f)", overstressBase))
	}
	if o.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("node.tick-interval must be positive"))
	}

	return errs
}

// AddFlags adds the node's flags to the given FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.FactoryID, "node.factory-id", o.FactoryID, "Factory identity of this aggregation node.")
	fs.StringVar(&o.Supervisor, "node.supervisor", o.Supervisor, "Address of the upstream supervisor.")
	fs.DurationVar(&o.SnapshotInterval, "node.snapshot-interval", o.SnapshotInterval, "Interval between upstream summary publications.")
	fs.DurationVar(&o.ModuleTimeout, "node.module-timeout", o.ModuleTimeout, "Telemetry age beyond which a module counts as offline.")
	fs.Float64Var(&o.SafetyMargin, "node.safety-margin", o.SafetyMargin, "Margin subtracted from the overstress ratio ceiling.")
	fs.BoolVar(&o.OfflineAlerts, "node.offline-alerts", o.OfflineAlerts, "Emit alerts when previously seen modules go stale.")
	fs.DurationVar(&o.LivenessInterval, "node.liveness-interval", o.LivenessInterval, "Interval between factory-wide liveness broadcasts.")
	fs.DurationVar(&o.CommandRetention, "node.command-retention", o.CommandRetention, "Maximum tracking age for pending commands.")
	fs.DurationVar(&o.TickInterval, "node.tick-interval", o.TickInterval, "Control loop yield period.")
}
