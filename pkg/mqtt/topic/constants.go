package topic

// Standard MQTT wildcard definitions.
const (
	// Wildcard is the single-level wildcard "+".
	// It matches exactly one topic level.
	// Example: "forge/v1/telemetry/+" matches "forge/v1/telemetry/mod-7".
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#".
	// It matches the current level and all subsequent levels.
	// It must be the last character in the topic filter.
	MultiWildcard = "#"
)
