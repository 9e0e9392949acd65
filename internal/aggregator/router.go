package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
	"github.com/forgehub-io/forgehub/internal/pkg/metrics"
	"github.com/forgehub-io/forgehub/pkg/log"
)

const (
	// settledLinger keeps a fully acknowledged command visible for a short
	// window so late observers (the admin API, operators) can still read it.
	settledLinger = time.Minute

	actionDisable = "disable"
	actionRestart = "restart"
)

// Router tracks outstanding supervisor commands and their per-target results.
// Like the registry it is owned by the control loop and needs no locking.
type Router struct {
	factoryID string
	transport Transport
	retention time.Duration

	pending map[string]*model.PendingCommand

	logger log.Logger
}

// NewRouter creates a router. retention bounds how long unsettled commands
// are tracked before the sweep drops them.
func NewRouter(factoryID string, transport Transport, retention time.Duration) *Router {
	return &Router{
		factoryID: factoryID,
		transport: transport,
		retention: retention,
		pending:   make(map[string]*model.PendingCommand),
		logger:    log.WithName("router"),
	}
}

// HandleCommand processes one inbound supervisor command: it verifies the
// factory identity, fans out per-target directives, records a PendingCommand
// entry and sends the routing receipt back to the source. The receipt is
// built synchronously, before any module responds.
func (r *Router) HandleCommand(ctx context.Context, cmd model.ControlCommand, reg *Registry, now time.Time) (model.RoutingReceipt, error) {
	if cmd.FactoryID != r.factoryID {
		return model.RoutingReceipt{}, fmt.Errorf("command %s targets factory %q, node is %q: %w",
			cmd.ID, cmd.FactoryID, r.factoryID, ErrWrongFactory)
	}

	pc := &model.PendingCommand{
		ID:         cmd.ID,
		Kind:       cmd.Kind,
		Directives: cmd.Directives,
		Source:     cmd.Source,
		ReceivedAt: now,
		Routed:     make(map[model.ModuleID]model.RouteResult),
		Acks:       make(map[model.ModuleID]model.AckResult),
	}

	switch cmd.Kind {
	case model.CommandModuleControl:
		r.routeModuleControl(ctx, cmd, reg, pc)
	case model.CommandFactoryShutdown:
		r.routeFactoryWide(ctx, cmd.ID, reg, pc, actionDisable, model.RouteShutdownSent)
	case model.CommandFactoryRestart:
		r.routeFactoryWide(ctx, cmd.ID, reg, pc, actionRestart, model.RouteRestartSent)
	case model.CommandLoadReduce:
		r.routeLoadReduce(ctx, cmd, reg, pc)
	default:
		r.logger.Warn("Discarding command of unknown kind", "commandID", cmd.ID, "kind", cmd.Kind)
		return model.RoutingReceipt{}, nil
	}

	r.pending[cmd.ID] = pc

	receipt := buildReceipt(pc)
	if err := r.transport.Send(ctx, cmd.Source, receipt); err != nil {
		// The command is already routed; a lost receipt does not undo it.
		r.logger.Error(err, "Failed to send routing receipt", "commandID", cmd.ID, "source", cmd.Source)
	}

	return receipt, nil
}

func (r *Router) routeModuleControl(ctx context.Context, cmd model.ControlCommand, reg *Registry, pc *model.PendingCommand) {
	for _, d := range cmd.Directives {
		rec, err := reg.Resolve(d.Target)
		if err != nil {
			r.logger.Warn("Directive targets unknown module", "commandID", cmd.ID, "target", d.Target, "reason", err.Error())
			r.record(pc, d.Target, model.RouteInvalidTarget)
			continue
		}

		out := model.ModuleCommand{
			CommandID: cmd.ID,
			ModuleID:  d.Target,
			Action:    d.Action,
			Args:      d.Args,
		}
		if err := r.transport.Send(ctx, rec.Addr, out); err != nil {
			r.logger.Error(err, "Failed to deliver module command", "commandID", cmd.ID, "target", d.Target)
			r.record(pc, d.Target, model.RouteSendFailed)
			continue
		}
		r.record(pc, d.Target, model.RouteCommandSent)
	}
}

// routeFactoryWide fans a high-priority action out to every registered
// module. The result is recorded per target whether or not delivery
// succeeded; a failed send is logged and the fan-out continues.
func (r *Router) routeFactoryWide(ctx context.Context, cmdID string, reg *Registry, pc *model.PendingCommand, action string, result model.RouteResult) {
	for _, rec := range reg.List() {
		out := model.ModuleCommand{
			CommandID:    cmdID,
			ModuleID:     rec.ID,
			Action:       action,
			HighPriority: true,
		}
		if err := r.transport.Send(ctx, rec.Addr, out); err != nil {
			r.logger.Error(err, "Failed to deliver factory-wide command", "commandID", cmdID, "target", rec.ID, "action", action)
		}
		r.record(pc, rec.ID, result)
	}
}

func (r *Router) routeLoadReduce(ctx context.Context, cmd model.ControlCommand, reg *Registry, pc *model.PendingCommand) {
	var candidates []ShedCandidate
	for _, rec := range reg.List() {
		if !rec.Enabled || rec.StressDemand <= 0 {
			continue
		}
		candidates = append(candidates, ShedCandidate{
			ID:       rec.ID,
			Priority: rec.Priority,
			Stress:   rec.StressDemand,
		})
	}

	selected := PlanLoadShed(candidates, cmd.TargetSU)
	r.logger.Info("Planned load reduction", "commandID", cmd.ID, "targetSU", cmd.TargetSU,
		"candidates", len(candidates), "selected", len(selected))

	for _, c := range selected {
		rec, err := reg.Resolve(c.ID)
		if err != nil {
			r.record(pc, c.ID, model.RouteInvalidTarget)
			continue
		}
		out := model.ModuleCommand{
			CommandID:    cmd.ID,
			ModuleID:     c.ID,
			Action:       actionDisable,
			HighPriority: true,
		}
		if err := r.transport.Send(ctx, rec.Addr, out); err != nil {
			r.logger.Error(err, "Failed to deliver shed command", "commandID", cmd.ID, "target", c.ID)
			r.record(pc, c.ID, model.RouteSendFailed)
			continue
		}
		r.record(pc, c.ID, model.RouteCommandSent)
	}
}

func (r *Router) record(pc *model.PendingCommand, id model.ModuleID, result model.RouteResult) {
	pc.Routed[id] = result
	metrics.CommandsRouted.WithLabelValues(string(result)).Inc()
}

// HandleAck records a module's successful execution of a tracked command.
// Acks for untracked command identifiers are ignored without error.
func (r *Router) HandleAck(ack model.ModuleAck, now time.Time) {
	pc, ok := r.pending[ack.CommandID]
	if !ok {
		r.logger.Debug("Ack for untracked command", "commandID", ack.CommandID, "module", ack.ModuleID)
		return
	}
	pc.Acks[ack.ModuleID] = model.AckResult{
		OK:         true,
		NewState:   ack.NewState,
		ReceivedAt: now,
	}
}

// HandleNack records a module's failure to execute a tracked command.
func (r *Router) HandleNack(nack model.ModuleNack, now time.Time) {
	pc, ok := r.pending[nack.CommandID]
	if !ok {
		r.logger.Debug("Nack for untracked command", "commandID", nack.CommandID, "module", nack.ModuleID)
		return
	}
	pc.Acks[nack.ModuleID] = model.AckResult{
		OK:           false,
		Reason:       nack.Reason,
		CurrentState: nack.CurrentState,
		ReceivedAt:   now,
	}
}

// Pending returns the tracked entry for a command identifier.
func (r *Router) Pending(id string) (*model.PendingCommand, bool) {
	pc, ok := r.pending[id]
	return pc, ok
}

// PendingCount returns the number of tracked commands.
func (r *Router) PendingCount() int {
	return len(r.pending)
}

// Evict drops settled commands past their linger window and any command older
// than the retention limit, so the pending map cannot grow without bound.
// It returns the number of evicted entries.
func (r *Router) Evict(now time.Time) int {
	evicted := 0
	for id, pc := range r.pending {
		age := now.Sub(pc.ReceivedAt)

		settled := pc.Settled() && age > settledLinger
		expired := age > r.retention

		if settled || expired {
			delete(r.pending, id)
			evicted++
			if expired && !pc.Settled() {
				r.logger.Warn("Evicting command with outstanding responses",
					"commandID", id, "age", age.Round(time.Second))
			}
		}
	}
	return evicted
}

func buildReceipt(pc *model.PendingCommand) model.RoutingReceipt {
	forwarded := 0
	results := make(map[model.ModuleID]model.RouteResult, len(pc.Routed))
	for id, res := range pc.Routed {
		results[id] = res
		if res.Forwarded() {
			forwarded++
		}
	}
	return model.RoutingReceipt{
		CommandID: pc.ID,
		Forwarded: forwarded,
		Results:   results,
	}
}
