package aggregator

import (
	"sort"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
)

// ShedCandidate is one module considered for disabling during a load
// reduction.
type ShedCandidate struct {
	ID       model.ModuleID
	Priority int
	Stress   float64
}

// PlanLoadShed selects the modules to disable so the cumulative shed stress
// reaches targetSU. Candidates are ordered by ascending priority (cheapest
// sacrifices first), ties broken by descending stress so fewer modules cover
// the target. Selection stops as soon as the accumulated stress meets the
// target; remaining candidates are spared.
//
// The candidate slice is sorted in place. The returned selection preserves
// that order.
func PlanLoadShed(candidates []ShedCandidate, targetSU float64) []ShedCandidate {
	if targetSU <= 0 || len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].Stress > candidates[j].Stress
	})

	var (
		selected []ShedCandidate
		total    float64
	)
	for _, c := range candidates {
		selected = append(selected, c)
		total += c.Stress
		if total >= targetSU {
			return selected
		}
	}

	// Even shedding everything falls short of the target; the caller still
	// gets the full selection and decides how to report the shortfall.
	return selected
}
