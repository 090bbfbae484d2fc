package diff

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verso/internal/ir"
)

func goldenDiff(t *testing.T) *RecordDiff {
	t.Helper()
	e, _ := newTestEngine(t)
	a := page(ir.Record{"name": ir.String("Philip")})
	b := page(ir.Record{
		"name":       ir.String("Phillip"),
		"content":    ir.String("beta"),
		"attachment": file("b.png"),
	})
	d, err := e.CompareRecord(a, b, Options{})
	require.NoError(t, err)
	return d
}

func TestRenderTextGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, goldenDiff(t)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "page_diff_text", buf.Bytes())
}

func TestRecordDiffJSONGolden(t *testing.T) {
	data, err := json.Marshal(goldenDiff(t))
	require.NoError(t, err)
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "page_diff_json", data)
}

func TestRenderTextNoDifferences(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, nil))
	require.Equal(t, "(no differences)\n", buf.String())
}

func TestRenderTextMultiline(t *testing.T) {
	d := &RecordDiff{Type: "Page", Fields: []FieldDiff{
		{Name: "views", Result: Change{Deleted: ir.String("one\ntwo"), Inserted: ir.Null{}}},
	}}
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, d))
	require.Equal(t, "--- Page\n@@ views\n- one\n- two\n+ \n", buf.String())
}
