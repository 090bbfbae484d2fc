package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/verso/internal/compiler"
	"github.com/roach88/verso/internal/diff"
	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/history"
	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/merge"
	"github.com/roach88/verso/internal/store"
	"github.com/roach88/verso/internal/testutil"
)

// handle is what a scenario alias refers to. The ref is refreshed after
// every write so it follows unique-field renames.
type handle struct {
	typ string
	pk  int64
	ref ir.EntityRef
}

// Harness executes one scenario against a fresh store.
type Harness struct {
	engine   *history.Engine
	layer    *merge.Layer
	differ   *diff.Engine
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	entities map[string]*handle
	sessions map[string]*merge.Session
	order    []string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a deterministic
// clock. Step failures and assertion failures are reported in the result;
// the returned error is reserved for setup problems (schema, store).
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	schema, errs := compiler.CompileFile(scenario.Schema)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to compile schema: %w", errors.Join(errs...))
	}
	types, verrs := schema.TypeSet()
	if len(verrs) > 0 {
		joined := make([]error, len(verrs))
		for i, e := range verrs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid schema: %w", errors.Join(joined...))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock()
	eng := history.New(st, types, history.WithClock(clock), history.WithLogger(logger))

	hook := merge.DefaultHook
	if scenario.Merge == "three-way" {
		hook = merge.ThreeWayHook
	}

	h := &Harness{
		engine:   eng,
		layer:    merge.New(eng, merge.WithHook(hook), merge.WithLogger(logger)),
		differ:   diff.NewEngine(diff.Default(), types, diff.WithLogger(logger)),
		clock:    clock,
		logger:   logger,
		entities: make(map[string]*handle),
		sessions: make(map[string]*merge.Session),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	state, err := h.finalState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	result.State = state

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step, traces it and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	out, err := h.apply(ctx, step)

	ev := TraceEvent{Step: i, Op: step.Op, Entity: step.Entity, Case: caseOf(err)}
	if step.Op == OpCreate {
		ev.Entity = step.As
	}
	if err == nil && out != nil {
		raw, merr := json.Marshal(out)
		if merr != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: encode result: %v", i, step.Op, merr))
		} else {
			ev.Result = raw
		}
	}
	result.AddTrace(ev)

	h.logger.Info("step completed", "step", i, "op", step.Op, "case", ev.Case)

	if step.Expect == nil {
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: unexpected failure: %v", i, step.Op, err))
		}
		return
	}
	if ev.Case != step.Expect.Case {
		msg := fmt.Sprintf("steps[%d] %s: expected case %q, got %q", i, step.Op, step.Expect.Case, ev.Case)
		if err != nil {
			msg += ": " + err.Error()
		}
		result.AddError(msg)
		return
	}
	for _, msg := range matchResult(ev.Result, step.Expect.Result) {
		result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, msg))
	}
}

// caseOf names a step outcome.
func caseOf(err error) string {
	if err == nil {
		return CaseOK
	}
	if code := fault.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

func (h *Harness) apply(ctx context.Context, step Step) (any, error) {
	switch step.Op {
	case OpCreate:
		return h.create(ctx, step)
	case OpUpdate:
		return h.update(ctx, step)
	case OpDelete:
		return h.delete(ctx, step)
	case OpGet:
		return h.get(ctx, step)
	case OpOpen:
		return h.open(ctx, step)
	case OpSubmit:
		return h.submit(ctx, step)
	case OpRevert:
		return h.revert(ctx, step)
	case OpDiff:
		return h.diff(ctx, step)
	case OpTick:
		h.clock.Tick(int64(step.Count))
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *Harness) create(ctx context.Context, step Step) (any, error) {
	values, err := ir.RecordFromGo(step.Values)
	if err != nil {
		return nil, fault.Invalid(step.Type, "values: %v", err)
	}
	ch, err := h.engine.Create(ctx, step.Type, values)
	if err != nil {
		return nil, err
	}
	hd := &handle{typ: step.Type}
	h.entities[step.As] = hd
	h.order = append(h.order, step.As)
	return h.changed(ctx, hd, ch)
}

func (h *Harness) update(ctx context.Context, step Step) (any, error) {
	hd, err := h.lookup(step.Entity)
	if err != nil {
		return nil, err
	}
	values, err := ir.RecordFromGo(step.Values)
	if err != nil {
		return nil, fault.Invalid(hd.typ, "values: %v", err)
	}
	ch, err := h.engine.Update(ctx, hd.typ, hd.pk, values)
	if err != nil {
		return nil, err
	}
	return h.changed(ctx, hd, ch)
}

func (h *Harness) delete(ctx context.Context, step Step) (any, error) {
	hd, err := h.lookup(step.Entity)
	if err != nil {
		return nil, err
	}
	ch, err := h.engine.Delete(ctx, hd.typ, hd.pk)
	if err != nil {
		return nil, err
	}
	return h.versionOf(ctx, ch.Snapshot)
}

func (h *Harness) get(ctx context.Context, step Step) (any, error) {
	hd, err := h.lookup(step.Entity)
	if err != nil {
		return nil, err
	}
	ent, err := h.engine.Get(ctx, hd.typ, hd.pk)
	if err != nil {
		return nil, err
	}
	return ir.ToGo(ir.Object(ent.Fields)), nil
}

func (h *Harness) open(ctx context.Context, step Step) (any, error) {
	hd, err := h.lookup(step.Entity)
	if err != nil {
		return nil, err
	}
	s, err := h.layer.Open(ctx, hd.typ, hd.pk)
	if err != nil {
		return nil, err
	}
	h.sessions[step.Session] = s
	return map[string]any{"state": s.State}, nil
}

func (h *Harness) submit(ctx context.Context, step Step) (any, error) {
	s, ok := h.sessions[step.Session]
	if !ok {
		return nil, fault.NotFound("", step.Session, "session was never opened")
	}
	values, err := ir.RecordFromGo(step.Values)
	if err != nil {
		return nil, fault.Invalid(s.Type, "values: %v", err)
	}
	out, err := h.layer.Submit(ctx, s, values)
	if err != nil {
		return nil, err
	}
	for _, hd := range h.entities {
		if hd.typ == s.Type && hd.pk == s.PK {
			if _, err := h.changed(ctx, hd, out.Change); err != nil {
				return nil, err
			}
		}
	}
	return map[string]any{"state": s.State, "merged": out.Merged}, nil
}

func (h *Harness) revert(ctx context.Context, step Step) (any, error) {
	hd, err := h.lookup(step.Entity)
	if err != nil {
		return nil, err
	}
	snap, err := h.version(ctx, hd, step.Version)
	if err != nil {
		return nil, err
	}
	res, err := h.engine.RevertTo(ctx, snap, history.RevertOptions{DeleteNewer: step.DeleteNewer})
	if err != nil {
		return nil, err
	}
	if res.Entity != nil {
		hd.pk = res.Entity.PK
		if hd.ref, err = h.engine.Ref(ctx, *res.Entity); err != nil {
			return nil, err
		}
	}
	return map[string]any{"outcome": res.Outcome, "pruned": res.Pruned}, nil
}

func (h *Harness) diff(ctx context.Context, step Step) (any, error) {
	hd, err := h.lookup(step.Entity)
	if err != nil {
		return nil, err
	}
	from, err := h.version(ctx, hd, step.From)
	if err != nil {
		return nil, err
	}
	to, err := h.version(ctx, hd, step.To)
	if err != nil {
		return nil, err
	}
	d, err := h.differ.CompareRecord(from, to, diff.Options{})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return map[string]any{}, nil
	}
	return d, nil
}

// lookup resolves an alias. A create step that failed leaves its alias
// undefined.
func (h *Harness) lookup(alias string) (*handle, error) {
	hd, ok := h.entities[alias]
	if !ok {
		return nil, fault.NotFound("", alias, "entity was never created")
	}
	return hd, nil
}

// changed records the live identity after a write and reports the new
// version number.
func (h *Harness) changed(ctx context.Context, hd *handle, ch history.Change) (any, error) {
	hd.pk = ch.Entity.PK
	hd.ref = ch.Ref
	return h.versionOf(ctx, ch.Snapshot)
}

func (h *Harness) versionOf(ctx context.Context, snap *ir.Snapshot) (any, error) {
	if snap == nil {
		return map[string]any{}, nil
	}
	n, err := h.engine.VersionNumber(ctx, *snap)
	if err != nil {
		return nil, err
	}
	return map[string]any{"version": n}, nil
}

// version returns the snapshot with the given 1-based version number.
func (h *Harness) version(ctx context.Context, hd *handle, n int) (ir.Snapshot, error) {
	hist, err := h.engine.History(ctx, hd.ref)
	if err != nil {
		return ir.Snapshot{}, err
	}
	for _, vs := range hist {
		if vs.Version == n {
			return vs.Snapshot, nil
		}
	}
	return ir.Snapshot{}, fault.NotFound(hd.ref.Type, hd.ref.Key, "no version %d", n)
}

// finalState builds the document state assertions query.
func (h *Harness) finalState(ctx context.Context) (json.RawMessage, error) {
	entities := make(map[string]any, len(h.order))
	histories := make(map[string]any, len(h.order))
	for _, alias := range h.order {
		hd := h.entities[alias]

		ent, err := h.engine.Get(ctx, hd.typ, hd.pk)
		switch {
		case err == nil:
			entities[alias] = map[string]any{
				"type":   ent.Type,
				"pk":     ent.PK,
				"fields": ir.ToGo(ir.Object(ent.Fields)),
			}
		case fault.IsNotFound(err):
			entities[alias] = nil
		default:
			return nil, err
		}

		hist, err := h.engine.History(ctx, hd.ref)
		if err != nil {
			return nil, err
		}
		versions := make([]any, 0, len(hist))
		for _, vs := range hist {
			versions = append(versions, map[string]any{
				"version":     vs.Version,
				"change_kind": vs.Kind.String(),
				"fields":      ir.ToGo(ir.Object(vs.Fields)),
			})
		}
		histories[alias] = versions
	}
	return json.Marshal(map[string]any{"entities": entities, "history": histories})
}
