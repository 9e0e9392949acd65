package aggregator

import (
	"testing"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
)

func TestPlanLoadShed(t *testing.T) {
	tests := []struct {
		name       string
		candidates []ShedCandidate
		targetSU   float64
		want       []model.ModuleID
	}{
		{
			name: "lowest priority first, ties by stress",
			candidates: []ShedCandidate{
				{ID: "mod-a", Priority: 1, Stress: 900},
				{ID: "mod-b", Priority: 5, Stress: 400},
				{ID: "mod-c", Priority: 5, Stress: 1200},
			},
			targetSU: 1000,
			// mod-a (P1) alone is short of 1000, then the tie at P5 is
			// broken by higher stress.
			want: []model.ModuleID{"mod-a", "mod-c"},
		},
		{
			name: "stops once target is met",
			candidates: []ShedCandidate{
				{ID: "mod-a", Priority: 1, Stress: 1500},
				{ID: "mod-b", Priority: 2, Stress: 800},
			},
			targetSU: 1000,
			want:     []model.ModuleID{"mod-a"},
		},
		{
			name: "shortfall selects everything",
			candidates: []ShedCandidate{
				{ID: "mod-a", Priority: 1, Stress: 100},
				{ID: "mod-b", Priority: 2, Stress: 200},
			},
			targetSU: 5000,
			want:     []model.ModuleID{"mod-a", "mod-b"},
		},
		{
			name: "zero target selects nothing",
			candidates: []ShedCandidate{
				{ID: "mod-a", Priority: 1, Stress: 100},
			},
			targetSU: 0,
			want:     nil,
		},
		{
			name:       "no candidates",
			candidates: nil,
			targetSU:   1000,
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanLoadShed(tt.candidates, tt.targetSU)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d selected, got %d (%v)", len(tt.want), len(got), got)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}
