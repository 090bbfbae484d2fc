package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verso/internal/ir"
)

func TestCompileEntityTypeBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Page: {
			versioned: true
			unique: ["name"]
			fields: {
				id:      "auto"
				name:    "text"
				content: {kind: "html"}
				edited:  {kind: "datetime", auto_now: true}
			}
		}
	`)
	require.NoError(t, v.Err())

	et, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity.Page")))
	require.NoError(t, err)

	assert.Equal(t, "Page", et.Name)
	assert.True(t, et.Versioned)
	assert.Equal(t, []string{"name"}, et.UniqueFields)
	assert.Equal(t, []string{"id", "name", "content", "edited"}, et.FieldNames(), "declaration order is kept")

	id, _ := et.Field("id")
	assert.True(t, id.AutoID)
	edited, _ := et.Field("edited")
	assert.True(t, edited.AutoNow)
	assert.Equal(t, ir.KindDatetime, edited.Kind)
}

func TestCompileEntityTypeRelation(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: MapData: {
			fields: {
				page: {kind: "relation", target: "Page", unique: true, related_name: "mapdata"}
			}
		}
	`)
	require.NoError(t, v.Err())

	et, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity.MapData")))
	require.NoError(t, err)
	require.Len(t, et.Fields, 1)
	assert.Equal(t, &ir.RelationSpec{Target: "Page", Unique: true, RelatedName: "mapdata"}, et.Fields[0].Relation)
	assert.False(t, et.Versioned)
}

func TestCompileEntityTypeMissingFields(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Empty: {
			versioned: true
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity.Empty")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields")
	assert.Contains(t, err.Error(), "required")
}

func TestCompileEntityTypeRejectsNonKindField(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Bad: {
			fields: {
				price: 1.5
			}
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity.Bad")))
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fields.price", ce.Field)
}

func TestCompileEntityTypeFieldStructNeedsKind(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Bad: {
			fields: {
				page: {target: "Page"}
			}
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind is required")
}

func TestCompileEntityTypeWrongFlagType(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Bad: {
			versioned: "yes"
			fields: { name: "text" }
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity.Bad")))
	require.Error(t, err)
}

func TestCompileFile(t *testing.T) {
	schema, errs := CompileFile("testdata/wiki.cue")
	require.Empty(t, errs)

	assert.Equal(t, map[ir.Kind]ir.Kind{"wikitext": ir.KindHTML}, schema.Kinds)
	require.Len(t, schema.Types, 4)
	assert.Equal(t, "Page", schema.Types[0].Name)
	assert.Equal(t, "Counter", schema.Types[3].Name)
	assert.Equal(t, "revision", schema.Types[3].VersionField)

	ts, verrs := schema.TypeSet()
	require.Empty(t, verrs)
	assert.Equal(t, []ir.Kind{"wikitext", ir.KindHTML, ir.KindText, ir.KindAny}, ts.KindChain("wikitext"))

	rels := ts.ReverseRelations("Page")
	require.Len(t, rels, 2)
	assert.Equal(t, "files", rels[0].Name)
	assert.Equal(t, "mapdata", rels[1].Name)
	assert.True(t, rels[1].Unique)
}

func TestCompileSourceCollectsErrors(t *testing.T) {
	schema, errs := CompileSource(`
		entity: A: { versioned: true }
		entity: B: { fields: { x: "text" } }
		entity: C: { fields: {} }
	`, "inline.cue")
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "entity.A")
	assert.Contains(t, errs[1].Error(), "entity.C")
	require.Len(t, schema.Types, 1)
	assert.Equal(t, "B", schema.Types[0].Name)
}

func TestCompileSourceSyntaxError(t *testing.T) {
	_, errs := CompileSource(`entity: A: {`, "broken.cue")
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
}

func TestCompileFileMissing(t *testing.T) {
	_, errs := CompileFile("testdata/nope.cue")
	require.Len(t, errs, 1)
}
