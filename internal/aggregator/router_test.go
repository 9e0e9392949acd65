package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
)

func seededRegistry(t *testing.T, now time.Time, ids ...string) *Registry {
	t.Helper()
	reg := NewRegistry("plant-a")
	for _, id := range ids {
		if err := reg.Upsert(report(id, "plant-a"), model.Address("addr-"+id), now); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return reg
}

func TestHandleCommandModuleControl(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tr := newFakeTransport()
	reg := seededRegistry(t, now, "mod-1", "mod-2")
	r := NewRouter("plant-a", tr, 30*time.Minute)

	cmd := model.ControlCommand{
		ID:        "cmd-1",
		Kind:      model.CommandModuleControl,
		FactoryID: "plant-a",
		Source:    "supervisor-1",
		Directives: []model.Directive{
			{Target: "mod-1", Action: "set-speed", Args: map[string]string{"rpm": "900"}},
			{Target: "mod-2", Action: "disable"},
			{Target: "mod-ghost", Action: "disable"},
		},
	}

	receipt, err := r.HandleCommand(ctx, cmd, reg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The unknown target is counted in results but not forwarded.
	if receipt.Forwarded != 2 {
		t.Errorf("expected forwarded=2, got %d", receipt.Forwarded)
	}
	if got := receipt.Results["mod-ghost"]; got != model.RouteInvalidTarget {
		t.Errorf("expected invalid_target for mod-ghost, got %s", got)
	}
	if got := receipt.Results["mod-1"]; got != model.RouteCommandSent {
		t.Errorf("expected command_sent for mod-1, got %s", got)
	}

	// The receipt goes back to the command source.
	if msgs := tr.sentTo("supervisor-1"); len(msgs) != 1 {
		t.Errorf("expected 1 receipt to source, got %d", len(msgs))
	}

	// The directive payload reaches the module's address.
	msgs := tr.sentTo("addr-mod-1")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 command to mod-1, got %d", len(msgs))
	}
	mc, ok := msgs[0].(model.ModuleCommand)
	if !ok {
		t.Fatalf("expected ModuleCommand, got %T", msgs[0])
	}
	if mc.Action != "set-speed" || mc.Args["rpm"] != "900" {
		t.Errorf("directive payload mismatch: %+v", mc)
	}
}

func TestHandleCommandSendFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tr := newFakeTransport()
	tr.failDest["addr-mod-2"] = true
	reg := seededRegistry(t, now, "mod-1", "mod-2")
	r := NewRouter("plant-a", tr, 30*time.Minute)

	cmd := model.ControlCommand{
		ID:        "cmd-1",
		Kind:      model.CommandModuleControl,
		FactoryID: "plant-a",
		Source:    "supervisor-1",
		Directives: []model.Directive{
			{Target: "mod-1", Action: "disable"},
			{Target: "mod-2", Action: "disable"},
		},
	}

	receipt, err := r.HandleCommand(ctx, cmd, reg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Forwarded != 1 {
		t.Errorf("expected forwarded=1, got %d", receipt.Forwarded)
	}
	if got := receipt.Results["mod-2"]; got != model.RouteSendFailed {
		t.Errorf("expected send_failed for mod-2, got %s", got)
	}
}

func TestHandleCommandWrongFactory(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tr := newFakeTransport()
	reg := seededRegistry(t, now, "mod-1")
	r := NewRouter("plant-a", tr, 30*time.Minute)

	cmd := model.ControlCommand{
		ID:        "cmd-1",
		Kind:      model.CommandModuleControl,
		FactoryID: "plant-b",
		Source:    "supervisor-1",
	}

	if _, err := r.HandleCommand(ctx, cmd, reg, now); !errors.Is(err, ErrWrongFactory) {
		t.Fatalf("expected ErrWrongFactory, got %v", err)
	}
	if len(tr.sent) != 0 {
		t.Errorf("rejected command produced sends: %v", tr.sent)
	}
	if r.PendingCount() != 0 {
		t.Errorf("rejected command was tracked")
	}
}

func TestHandleCommandFactoryShutdown(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tr := newFakeTransport()
	reg := seededRegistry(t, now, "mod-1", "mod-2", "mod-3")
	r := NewRouter("plant-a", tr, 30*time.Minute)

	cmd := model.ControlCommand{
		ID:        "cmd-stop",
		Kind:      model.CommandFactoryShutdown,
		FactoryID: "plant-a",
		Source:    "supervisor-1",
	}

	receipt, err := r.HandleCommand(ctx, cmd, reg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Forwarded != 3 {
		t.Errorf("expected fan-out to all 3 modules, got forwarded=%d", receipt.Forwarded)
	}
	for id, res := range receipt.Results {
		if res != model.RouteShutdownSent {
			t.Errorf("module %s: expected shutdown_sent, got %s", id, res)
		}
	}

	for _, id := range []string{"mod-1", "mod-2", "mod-3"} {
		msgs := tr.sentTo(model.Address("addr-" + id))
		if len(msgs) != 1 {
			t.Fatalf("expected 1 command to %s, got %d", id, len(msgs))
		}
		mc := msgs[0].(model.ModuleCommand)
		if mc.Action != actionDisable || !mc.HighPriority {
			t.Errorf("module %s: expected high-priority disable, got %+v", id, mc)
		}
	}
}

func TestHandleCommandLoadReduce(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tr := newFakeTransport()
	reg := NewRegistry("plant-a")

	seed := func(id string, priority int, demand float64, enabled bool) {
		rep := report(id, "plant-a")
		rep.Priority = priority
		rep.StressDemand = demand
		rep.Enabled = enabled
		if err := reg.Upsert(rep, model.Address("addr-"+id), now); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("mod-a", 1, 900, true)
	seed("mod-b", 5, 400, true)
	seed("mod-c", 5, 1200, true)
	seed("mod-d", 0, 2000, false) // disabled, never a candidate

	r := NewRouter("plant-a", tr, 30*time.Minute)
	cmd := model.ControlCommand{
		ID:        "cmd-shed",
		Kind:      model.CommandLoadReduce,
		FactoryID: "plant-a",
		Source:    "supervisor-1",
		TargetSU:  1000,
	}

	receipt, err := r.HandleCommand(ctx, cmd, reg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// mod-a (priority 1, 900 SU) then mod-c (priority tie broken by higher
	// stress) covers the 1000 SU target; mod-b and mod-d are spared.
	if receipt.Forwarded != 2 {
		t.Errorf("expected 2 shed commands, got %d", receipt.Forwarded)
	}
	for _, id := range []model.ModuleID{"mod-a", "mod-c"} {
		if receipt.Results[id] != model.RouteCommandSent {
			t.Errorf("expected %s selected, results: %v", id, receipt.Results)
		}
	}
	if _, ok := receipt.Results["mod-b"]; ok {
		t.Errorf("mod-b should have been spared")
	}
	if _, ok := receipt.Results["mod-d"]; ok {
		t.Errorf("disabled mod-d should not be a shed candidate")
	}
}

func TestAckSettlesCommand(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tr := newFakeTransport()
	reg := seededRegistry(t, now, "mod-1", "mod-2")
	r := NewRouter("plant-a", tr, 30*time.Minute)

	cmd := model.ControlCommand{
		ID:        "cmd-1",
		Kind:      model.CommandModuleControl,
		FactoryID: "plant-a",
		Source:    "supervisor-1",
		Directives: []model.Directive{
			{Target: "mod-1", Action: "disable"},
			{Target: "mod-2", Action: "disable"},
		},
	}
	if _, err := r.HandleCommand(ctx, cmd, reg, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pc, ok := r.Pending("cmd-1")
	if !ok {
		t.Fatal("command not tracked")
	}
	if pc.Settled() {
		t.Fatal("command settled before any response")
	}

	r.HandleAck(model.ModuleAck{CommandID: "cmd-1", ModuleID: "mod-1", NewState: "disabled"}, now)
	if pc.Settled() {
		t.Fatal("command settled with one response outstanding")
	}

	r.HandleNack(model.ModuleNack{CommandID: "cmd-1", ModuleID: "mod-2", Reason: "jammed", CurrentState: "running"}, now)
	if !pc.Settled() {
		t.Fatal("command not settled after all responses")
	}

	if res := pc.Acks["mod-1"]; !res.OK || res.NewState != "disabled" {
		t.Errorf("ack recorded wrong: %+v", res)
	}
	if res := pc.Acks["mod-2"]; res.OK || res.Reason != "jammed" {
		t.Errorf("nack recorded wrong: %+v", res)
	}
}

func TestAckForUntrackedCommandIgnored(t *testing.T) {
	tr := newFakeTransport()
	r := NewRouter("plant-a", tr, 30*time.Minute)

	// Must be a no-op, not a panic or a new entry.
	r.HandleAck(model.ModuleAck{CommandID: "cmd-ghost", ModuleID: "mod-1"}, time.Now())
	r.HandleNack(model.ModuleNack{CommandID: "cmd-ghost", ModuleID: "mod-1"}, time.Now())

	if r.PendingCount() != 0 {
		t.Errorf("untracked responses created pending entries")
	}
}

func TestEvict(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tr := newFakeTransport()
	reg := seededRegistry(t, now, "mod-1")
	retention := 30 * time.Minute
	r := NewRouter("plant-a", tr, retention)

	route := func(id string) {
		cmd := model.ControlCommand{
			ID:         id,
			Kind:       model.CommandModuleControl,
			FactoryID:  "plant-a",
			Source:     "supervisor-1",
			Directives: []model.Directive{{Target: "mod-1", Action: "disable"}},
		}
		if _, err := r.HandleCommand(ctx, cmd, reg, now); err != nil {
			t.Fatalf("route %s: %v", id, err)
		}
	}

	route("cmd-settled")
	r.HandleAck(model.ModuleAck{CommandID: "cmd-settled", ModuleID: "mod-1"}, now)
	route("cmd-open")

	// Inside both windows nothing is evicted.
	if n := r.Evict(now.Add(30 * time.Second)); n != 0 {
		t.Errorf("early evict removed %d", n)
	}

	// Past the linger window the settled command goes, the open one stays.
	if n := r.Evict(now.Add(2 * time.Minute)); n != 1 {
		t.Errorf("expected 1 evicted, got %d", n)
	}
	if _, ok := r.Pending("cmd-settled"); ok {
		t.Errorf("settled command still tracked")
	}
	if _, ok := r.Pending("cmd-open"); !ok {
		t.Errorf("open command evicted early")
	}

	// Past retention even unsettled commands are dropped.
	if n := r.Evict(now.Add(retention + time.Minute)); n != 1 {
		t.Errorf("expected retention eviction, got %d", n)
	}
	if r.PendingCount() != 0 {
		t.Errorf("expected empty pending map, got %d", r.PendingCount())
	}
}
