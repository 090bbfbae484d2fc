package diff

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/ir"
)

// Record is anything compared field by field: live entities and snapshots.
type Record interface {
	TypeName() string
	Values() ir.Record
}

// FieldSel names a field to compare. Strategy, when set, names a registered
// strategy that overrides the kind lookup.
type FieldSel struct {
	Name     string
	Strategy string
}

// Fields builds selections without overrides.
func Fields(names ...string) []FieldSel {
	out := make([]FieldSel, len(names))
	for i, n := range names {
		out[i] = FieldSel{Name: n}
	}
	return out
}

// Options narrows CompareRecord.
type Options struct {
	// Fields lists the fields to compare, in output order. Empty means every
	// declared field in declaration order.
	Fields []FieldSel

	// Excludes lists fields to skip.
	Excludes []string
}

// Engine compares values and records using a registry and the kind chains
// of a type set.
type Engine struct {
	registry *Registry
	types    *ir.TypeSet
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an Engine. A nil registry means Default(); nil types
// means only the built-in kinds are known.
func NewEngine(registry *Registry, types *ir.TypeSet, opts ...EngineOption) *Engine {
	if registry == nil {
		registry = Default()
	}
	if types == nil {
		types = builtinTypes()
	}
	e := &Engine{registry: registry, types: types, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var (
	emptyTypes     *ir.TypeSet
	emptyTypesOnce sync.Once
)

func builtinTypes() *ir.TypeSet {
	emptyTypesOnce.Do(func() {
		emptyTypes, _ = ir.NewTypeSet(nil, nil)
	})
	return emptyTypes
}

// CompareField compares two values of kind using the default registry and
// the built-in kind tree.
func CompareField(kind ir.Kind, a, b ir.Value) (Result, error) {
	return NewEngine(nil, nil).CompareField(kind, a, b)
}

// CompareField compares two values of kind. Equal values return nil without
// consulting any strategy.
func (e *Engine) CompareField(kind ir.Kind, a, b ir.Value) (Result, error) {
	if ir.Equal(a, b) {
		return nil, nil
	}
	start := time.Now()
	defer func() { diffDuration.WithLabelValues("field").Observe(time.Since(start).Seconds()) }()

	s, err := e.strategyFor(kind)
	if err != nil {
		return nil, err
	}
	return s.Diff(a, b)
}

func (e *Engine) strategyFor(kind ir.Kind) (Strategy, error) {
	s, err := e.registry.Lookup(e.types.KindChain(kind))
	if err != nil {
		e.logger.Error("no diff strategy for kind", "kind", kind, "error", err)
		return nil, err
	}
	return s, nil
}

// CompareRecord compares two records of the same type field by field and
// returns the differing fields, or nil when none differ.
//
// Auto-generated identity fields and excluded fields are skipped. With an
// explicit field list, output follows that list; otherwise declaration
// order.
func (e *Engine) CompareRecord(r1, r2 Record, opts Options) (*RecordDiff, error) {
	if r1.TypeName() != r2.TypeName() {
		return nil, fault.Invalid(r1.TypeName(), "cannot compare with %s", r2.TypeName())
	}
	et, ok := e.types.Type(r1.TypeName())
	if !ok {
		return nil, fault.Invalid(r1.TypeName(), "unknown entity type")
	}
	v1, v2 := r1.Values(), r2.Values()
	if ir.RecordsEqual(v1, v2) {
		return nil, nil
	}

	start := time.Now()
	defer func() { diffDuration.WithLabelValues("record").Observe(time.Since(start).Seconds()) }()

	sels := opts.Fields
	if len(sels) == 0 {
		sels = Fields(et.FieldNames()...)
	}
	excluded := make(map[string]bool, len(opts.Excludes))
	for _, name := range opts.Excludes {
		excluded[name] = true
	}

	out := &RecordDiff{Type: et.Name}
	for _, sel := range sels {
		f, ok := et.Field(sel.Name)
		if !ok {
			return nil, fault.Invalid(et.Name, "unknown field %q", sel.Name)
		}
		if f.AutoID || excluded[f.Name] {
			continue
		}
		a, b := v1.Get(f.Name), v2.Get(f.Name)
		if ir.Equal(a, b) {
			continue
		}

		var s Strategy
		var err error
		if sel.Strategy != "" {
			s, err = e.registry.Strategy(sel.Strategy)
		} else {
			s, err = e.strategyFor(f.Kind)
		}
		if err != nil {
			return nil, err
		}
		res, err := s.Diff(a, b)
		if err != nil {
			return nil, err
		}
		if res != nil {
			out.Fields = append(out.Fields, FieldDiff{Name: f.Name, Result: res})
		}
	}
	if len(out.Fields) == 0 {
		return nil, nil
	}
	return out, nil
}
