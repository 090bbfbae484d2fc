package textdiff

import (
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	DefaultTimeout  = 10 * time.Millisecond
	DefaultEditCost = 4
)

// Options tunes Clean.
type Options struct {
	// Timeout bounds the diff computation. When it expires the best result
	// found so far is returned. Zero means DefaultTimeout.
	Timeout time.Duration

	// Efficiency runs the diff-match-patch efficiency cleanup before the
	// semantic pass, folding short equalities into the edits around them.
	Efficiency bool

	// EditCost is the cost of an empty edit in operation terms. Equalities
	// shorter than this are folded when Efficiency is set; it has no effect
	// otherwise. Zero means DefaultEditCost.
	EditCost int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.EditCost <= 0 {
		o.EditCost = DefaultEditCost
	}
	return o
}

// Clean returns a human-friendly diff of a and b: a diff-match-patch diff
// followed by semantic cleanup, optionally preceded by efficiency cleanup. Ops are Equal, Delete or Insert, never
// Replace. Returns nil when a == b.
//
// Results are deterministic for identical inputs as long as the time budget
// is not exhausted.
func Clean(a, b string, opts Options) []Op {
	if a == b {
		return nil
	}
	opts = opts.withDefaults()

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = opts.Timeout
	dmp.DiffEditCost = opts.EditCost

	diffs := dmp.DiffMain(a, b, false)
	if opts.Efficiency {
		diffs = dmp.DiffCleanupEfficiency(diffs)
	}
	diffs = dmp.DiffCleanupSemantic(diffs)

	ops := make([]Op, 0, len(diffs))
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			ops = append(ops, Op{Type: Equal, A: d.Text, B: d.Text})
		case diffmatchpatch.DiffDelete:
			ops = append(ops, Op{Type: Delete, A: d.Text})
		case diffmatchpatch.DiffInsert:
			ops = append(ops, Op{Type: Insert, B: d.Text})
		}
	}
	return ops
}
