package aggregator

import (
	"time"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
)

// ComputeStats derives factory-wide statistics from the given records. It is
// a pure function of its inputs and is recomputed on every use.
//
// A module is online iff its record is younger than timeout. Stress usage and
// capacity are aggregated by pointwise MAXIMUM across modules, never summed:
// all modules report the same shared physical stress network, so a sum would
// multiply-count a single network's load.
func ComputeStats(records []model.ModuleRecord, timeout time.Duration, now time.Time) model.AggregatedStats {
	var stats model.AggregatedStats

	for i := range records {
		rec := &records[i]

		if rec.Online(timeout, now) {
			stats.Online++
		} else {
			stats.Offline++
		}

		if rec.Enabled {
			stats.Active++
		} else {
			stats.Inactive++
		}

		if rec.StressDemand > stats.StressUsage {
			stats.StressUsage = rec.StressDemand
		}
		if rec.StressCapacity > stats.StressCapacity {
			stats.StressCapacity = rec.StressCapacity
		}
	}

	return stats
}
