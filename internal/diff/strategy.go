package diff

import (
	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/textdiff"
)

// Strategy compares two values of one field kind.
type Strategy interface {
	// Name identifies the strategy in field overrides and configuration.
	Name() string

	// Diff returns nil when a and b do not differ.
	Diff(a, b ir.Value) (Result, error)
}

// Built-in strategy names.
const (
	StrategyText      = "text"
	StrategyTextExact = "text-exact"
	StrategyHTML      = "html"
	StrategyFile      = "file"
	StrategyOpaque    = "opaque"
)

// Text diffs values as text with semantic cleanup.
type Text struct {
	Options textdiff.Options
}

func (Text) Name() string { return StrategyText }

func (s Text) Diff(a, b ir.Value) (Result, error) {
	ops := textdiff.Clean(ir.Text(a), ir.Text(b), s.Options)
	if !textdiff.Changed(ops) {
		return nil, nil
	}
	return Segments(ops), nil
}

// TextExact diffs values as text with minimal rune-level opcodes.
type TextExact struct{}

func (TextExact) Name() string { return StrategyTextExact }

func (TextExact) Diff(a, b ir.Value) (Result, error) {
	ops := textdiff.Operations(ir.Text(a), ir.Text(b))
	if !textdiff.Changed(ops) {
		return nil, nil
	}
	return Segments(ops), nil
}

// HTML reports markup changes as an opaque pair. Renderers that understand
// markup can diff the two documents themselves.
type HTML struct{}

func (HTML) Name() string { return StrategyHTML }

func (HTML) Diff(a, b ir.Value) (Result, error) {
	return opaque(a, b), nil
}

// File compares file references ({"name", "url"} objects).
type File struct{}

func (File) Name() string { return StrategyFile }

func (File) Diff(a, b ir.Value) (Result, error) {
	if ir.Equal(a, b) {
		return nil, nil
	}
	return FileChange{
		Name: Change{Deleted: member(a, "name"), Inserted: member(b, "name")},
		URL:  Change{Deleted: member(a, "url"), Inserted: member(b, "url")},
	}, nil
}

// Opaque compares values for equality only. It is the generic fallback.
type Opaque struct{}

func (Opaque) Name() string { return StrategyOpaque }

func (Opaque) Diff(a, b ir.Value) (Result, error) {
	return opaque(a, b), nil
}

func opaque(a, b ir.Value) Result {
	if ir.Equal(a, b) {
		return nil
	}
	return Change{Deleted: orNull(a), Inserted: orNull(b)}
}

func member(v ir.Value, key string) ir.Value {
	obj, ok := v.(ir.Object)
	if !ok {
		return ir.Null{}
	}
	return orNull(obj[key])
}

func orNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}
