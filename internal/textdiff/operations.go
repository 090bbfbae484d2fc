package textdiff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Operations returns the minimal rune-level diff of a and b as computed by a
// sequence matcher. Equal runs become Equal ops; every other opcode becomes a
// single Replace, Delete or Insert op. Returns nil when a == b.
//
// A pure deletion or insertion carries only the side it touches, so its JSON
// form has a single key, the same as the ops Clean returns.
func Operations(a, b string) []Op {
	if a == b {
		return nil
	}
	ra, rb := runes(a), runes(b)
	m := difflib.NewMatcher(ra, rb)

	var ops []Op
	for _, oc := range m.GetOpCodes() {
		left := strings.Join(ra[oc.I1:oc.I2], "")
		right := strings.Join(rb[oc.J1:oc.J2], "")
		switch oc.Tag {
		case 'e':
			ops = append(ops, Op{Type: Equal, A: left, B: right})
		case 'd':
			ops = append(ops, Op{Type: Delete, A: left})
		case 'i':
			ops = append(ops, Op{Type: Insert, B: right})
		default:
			ops = append(ops, Op{Type: Replace, A: left, B: right})
		}
	}
	return ops
}

// runes splits s into one element per code point.
func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
