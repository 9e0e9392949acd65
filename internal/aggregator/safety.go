package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
	"github.com/forgehub-io/forgehub/pkg/log"
)

const (
	// overstressInterval gates how often the network stress ratio is evaluated.
	overstressInterval = 2 * time.Second

	// stalenessInterval gates how often stale modules are scanned for.
	stalenessInterval = 5 * time.Second

	// overstressBase is the ratio ceiling before the safety margin is applied.
	overstressBase = 0.95

	// stalledDemandFraction is the minimum demand/capacity fraction above
	// which a zero-speed module counts as stalled rather than idle.
	stalledDemandFraction = 0.10
)

// Overstress latch states and events.
const (
	stressNormal = "normal"
	stressActive = "active"

	eventTrip  = "trip"
	eventClear = "clear"
)

// SafetyMonitor evaluates local safety heuristics against the registry. It
// holds the debounce and edge-trigger state; it never dispatches alerts
// itself. One instance lives for the node's lifetime.
type SafetyMonitor struct {
	factoryID     string
	margin        float64
	moduleTimeout time.Duration
	offlineAlerts bool

	// latch is the overstress edge trigger: an alert is emitted only on the
	// normal -> active transition, and the active -> normal transition is
	// silent.
	latch *fsm.FSM

	lastOverstress time.Time
	lastStaleness  time.Time

	// seenOnline holds modules observed within their timeout window at least
	// once. A module absent from the set is never reported offline, which
	// suppresses spurious alerts for modules that never connected. An alerted
	// module is removed and must be seen online again before it becomes
	// eligible for another offline alert.
	seenOnline map[model.ModuleID]struct{}

	logger log.Logger
}

// NewSafetyMonitor creates a monitor with its overstress latch in the normal
// state and an empty seen-online set.
func NewSafetyMonitor(factoryID string, margin float64, moduleTimeout time.Duration, offlineAlerts bool) *SafetyMonitor {
	latch := fsm.NewFSM(
		stressNormal,
		fsm.Events{
			{Name: eventTrip, Src: []string{stressNormal}, Dst: stressActive},
			{Name: eventClear, Src: []string{stressActive}, Dst: stressNormal},
		},
		fsm.Callbacks{},
	)

	return &SafetyMonitor{
		factoryID:     factoryID,
		margin:        margin,
		moduleTimeout: moduleTimeout,
		offlineAlerts: offlineAlerts,
		latch:         latch,
		seenOnline:    make(map[model.ModuleID]struct{}),
		logger:        log.WithName("safety"),
	}
}

// OverstressActive reports whether the latch currently holds the alert state.
func (m *SafetyMonitor) OverstressActive() bool {
	return m.latch.Is(stressActive)
}

// Evaluate runs every check that is due at now and returns the produced
// alerts. The seen-online set is refreshed on every call, independent of the
// staleness gate. Callers own alert delivery and logging.
func (m *SafetyMonitor) Evaluate(ctx context.Context, records []model.ModuleRecord, now time.Time) []model.Alert {
	var alerts []model.Alert

	m.markSeen(records, now)

	if now.Sub(m.lastOverstress) >= overstressInterval {
		m.lastOverstress = now
		alerts = append(alerts, m.checkOverstress(ctx, records, now)...)
	}

	if now.Sub(m.lastStaleness) >= stalenessInterval {
		m.lastStaleness = now
		alerts = append(alerts, m.checkStaleness(records, now)...)
	}

	// The stalled check runs every tick, ungated, and re-fires while the
	// condition persists.
	alerts = append(alerts, m.checkStalled(records, now)...)

	return alerts
}

// markSeen records every module currently within its timeout window.
func (m *SafetyMonitor) markSeen(records []model.ModuleRecord, now time.Time) {
	for i := range records {
		if records[i].Online(m.moduleTimeout, now) {
			m.seenOnline[records[i].ID] = struct{}{}
		}
	}
}

func (m *SafetyMonitor) checkOverstress(ctx context.Context, records []model.ModuleRecord, now time.Time) []model.Alert {
	var usage, capacity float64
	for i := range records {
		rec := &records[i]
		// Only modules reporting both figures participate in the ratio.
		if rec.StressDemand <= 0 || rec.StressCapacity <= 0 {
			continue
		}
		if rec.StressDemand > usage {
			usage = rec.StressDemand
		}
		if rec.StressCapacity > capacity {
			capacity = rec.StressCapacity
		}
	}

	if capacity <= 0 {
		return nil
	}

	ratio := usage / capacity
	over := ratio >= (overstressBase-m.margin) || usage > capacity

	switch {
	case over && m.latch.Is(stressNormal):
		if err := m.latch.Event(ctx, eventTrip); err != nil {
			m.logger.Error(err, "Overstress latch transition failed")
			return nil
		}
		return []model.Alert{{
			Kind:      model.AlertOverstress,
			FactoryID: m.factoryID,
			Message:   fmt.Sprintf("stress network overload: usage %.0f SU of %.0f SU (ratio %.2f)", usage, capacity, ratio),
			RaisedAt:  now,
		}}
	case !over && m.latch.Is(stressActive):
		// Recovery is silent.
		if err := m.latch.Event(ctx, eventClear); err != nil {
			m.logger.Error(err, "Overstress latch transition failed")
		}
	}

	return nil
}

func (m *SafetyMonitor) checkStaleness(records []model.ModuleRecord, now time.Time) []model.Alert {
	if !m.offlineAlerts {
		return nil
	}

	var alerts []model.Alert
	for i := range records {
		rec := &records[i]
		if rec.Online(m.moduleTimeout, now) {
			continue
		}
		if _, seen := m.seenOnline[rec.ID]; !seen {
			continue
		}
		// One alert per offline transition: eligibility returns only after
		// the module is seen online again.
		delete(m.seenOnline, rec.ID)
		alerts = append(alerts, model.Alert{
			Kind:      model.AlertModuleOffline,
			FactoryID: m.factoryID,
			ModuleID:  rec.ID,
			Message:   fmt.Sprintf("module silent for %s (timeout %s)", now.Sub(rec.LastUpdate).Round(time.Second), m.moduleTimeout),
			RaisedAt:  now,
		})
	}
	return alerts
}

func (m *SafetyMonitor) checkStalled(records []model.ModuleRecord, now time.Time) []model.Alert {
	var alerts []model.Alert
	for i := range records {
		rec := &records[i]
		if rec.StressCapacity <= 0 {
			continue
		}
		// Zero speed with material stress demand means the device should be
		// spinning but is not: power loss or a jam.
		if rec.Speed == 0 && rec.StressDemand > stalledDemandFraction*rec.StressCapacity {
			alerts = append(alerts, model.Alert{
				Kind:      model.AlertModuleStalled,
				FactoryID: m.factoryID,
				ModuleID:  rec.ID,
				Message:   fmt.Sprintf("zero speed with demand %.0f SU of %.0f SU capacity", rec.StressDemand, rec.StressCapacity),
				RaisedAt:  now,
			})
		}
	}
	return alerts
}
