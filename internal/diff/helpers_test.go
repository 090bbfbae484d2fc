package diff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/textdiff"
)

const kindWikitext ir.Kind = "wikitext"

func testTypes(t *testing.T) *ir.TypeSet {
	t.Helper()
	page := &ir.EntityType{
		Name: "Page",
		Fields: []ir.FieldSpec{
			{Name: "id", Kind: ir.KindAuto, AutoID: true},
			{Name: "name", Kind: ir.KindText},
			{Name: "content", Kind: ir.KindHTML},
			{Name: "attachment", Kind: ir.KindImage},
			{Name: "slug", Kind: ir.KindSlug},
			{Name: "notes", Kind: kindWikitext},
			{Name: "views", Kind: ir.KindInt},
		},
		UniqueFields: []string{"name"},
		Versioned:    true,
	}
	ts, err := ir.NewTypeSet([]*ir.EntityType{page}, map[ir.Kind]ir.Kind{kindWikitext: ir.KindHTML})
	require.NoError(t, err)
	return ts
}

func file(name string) ir.Object {
	return ir.Object{"name": ir.String(name), "url": ir.String("/m/" + name)}
}

func page(fields ir.Record) ir.Entity {
	base := ir.Record{
		"id":         ir.Int(1),
		"name":       ir.String("Home"),
		"content":    ir.String("alpha"),
		"attachment": file("a.png"),
		"slug":       ir.String("home"),
		"notes":      ir.Null{},
		"views":      ir.Int(3),
	}
	for k, v := range fields {
		base[k] = v
	}
	return ir.Entity{Type: "Page", PK: 1, Fields: base}
}

// countingStrategy records how often it is consulted.
type countingStrategy struct {
	calls *int
}

func (countingStrategy) Name() string { return "counting" }

func (s countingStrategy) Diff(a, b ir.Value) (Result, error) {
	*s.calls++
	return Opaque{}.Diff(a, b)
}

func newTestEngine(t *testing.T) (*Engine, *Registry) {
	t.Helper()
	reg := NewBuiltinRegistry(textdiff.Options{})
	return NewEngine(reg, testTypes(t)), reg
}
