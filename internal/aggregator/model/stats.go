package model

// AggregatedStats is a derived, ephemeral view of the registry. It is
// recomputed on every use and never persisted as authoritative state.
type AggregatedStats struct {
	Online  int `json:"online"`
	Offline int `json:"offline"`

	Active   int `json:"active"`
	Inactive int `json:"inactive"`

	// StressUsage and StressCapacity are the pointwise maxima across modules,
	// not sums: every module reports the same shared physical stress network,
	// so summing would multiply-count a single network's load.
	StressUsage    float64 `json:"stressUsage"`
	StressCapacity float64 `json:"stressCapacity"`
}
