package textdiff

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identityInputs = []string{
	"",
	"plain",
	"{% if user %}hello{% endif %}",
	"{{ page.name }} and {{ page.slug }}",
	"%} stray closers }} {{",
	"naïve café ☃",
	strings.Repeat("line\n", 200),
}

func TestOperationsIdentical(t *testing.T) {
	for _, in := range identityInputs {
		assert.Nil(t, Operations(in, in), "input %q", in)
	}
}

func TestCleanIdentical(t *testing.T) {
	for _, in := range identityInputs {
		ops := Clean(in, in, Options{})
		assert.Nil(t, ops, "input %q", in)
		assert.False(t, Changed(ops))
	}
}

func TestOperationsInsertion(t *testing.T) {
	ops := Operations("Philip", "Phillip")
	assert.Equal(t, []Op{
		{Type: Equal, A: "Phil", B: "Phil"},
		{Type: Insert, B: "l"},
		{Type: Equal, A: "ip", B: "ip"},
	}, ops)
}

func TestOperationsReplace(t *testing.T) {
	ops := Operations("cat", "cut")
	assert.Equal(t, []Op{
		{Type: Equal, A: "c", B: "c"},
		{Type: Replace, A: "a", B: "u"},
		{Type: Equal, A: "t", B: "t"},
	}, ops)
}

func TestOperationsRunes(t *testing.T) {
	ops := Operations("café", "cafe")
	require.NotEmpty(t, ops)
	assert.Equal(t, "café", Source(ops))
	assert.Equal(t, "cafe", Target(ops))
	last := ops[len(ops)-1]
	assert.Equal(t, Replace, last.Type)
	assert.Equal(t, "é", last.A)
}

func TestOperationsFromEmpty(t *testing.T) {
	assert.Equal(t, []Op{{Type: Insert, B: "new"}}, Operations("", "new"))
	assert.Equal(t, []Op{{Type: Delete, A: "old"}}, Operations("old", ""))
}

func TestOperationsJSONOmitsEmptySide(t *testing.T) {
	data, err := json.Marshal(Operations("Philip", "Phillip"))
	require.NoError(t, err)
	assert.Equal(t, `[{"equal":"Phil"},{"inserted":"l"},{"equal":"ip"}]`, string(data))

	data, err = json.Marshal(Operations("Phillip", "Philip"))
	require.NoError(t, err)
	assert.Equal(t, `[{"equal":"Phil"},{"deleted":"l"},{"equal":"ip"}]`, string(data))
}

func TestCleanInsertion(t *testing.T) {
	ops := Clean("Philip", "Phillip", Options{})
	assert.Equal(t, []Op{
		{Type: Equal, A: "Phil", B: "Phil"},
		{Type: Insert, B: "l"},
		{Type: Equal, A: "ip", B: "ip"},
	}, ops)
}

func TestCleanReconstructsInputs(t *testing.T) {
	cases := []struct {
		a, b string
	}{
		{"The quick brown fox", "The slow brown dog"},
		{"{{ a }}", "{{ b }}"},
		{"{% block x %}one{% endblock %}", "{% block y %}two{% endblock %}"},
		{"", "inserted"},
		{"removed", ""},
		{"abc", "xyz"},
	}
	for _, tc := range cases {
		ops := Clean(tc.a, tc.b, Options{})
		require.True(t, Changed(ops), "%q -> %q", tc.a, tc.b)
		assert.Equal(t, tc.a, Source(ops))
		assert.Equal(t, tc.b, Target(ops))
		for _, op := range ops {
			assert.NotEqual(t, Replace, op.Type)
		}
	}
}

func TestCleanEfficiencyFoldsShortEqualities(t *testing.T) {
	a, b := "aXYZb", "1XYZ2"
	hasEqual := func(ops []Op) bool {
		for _, op := range ops {
			if op.Type == Equal {
				return true
			}
		}
		return false
	}

	assert.True(t, hasEqual(Clean(a, b, Options{})), "semantic cleanup alone keeps the equality")
	assert.True(t, hasEqual(Clean(a, b, Options{Efficiency: true, EditCost: 2})), "equality longer than the edit cost")

	ops := Clean(a, b, Options{Efficiency: true})
	assert.False(t, hasEqual(ops))
	assert.Equal(t, a, Source(ops))
	assert.Equal(t, b, Target(ops))
}

func TestCleanTreatsDelimitersAsText(t *testing.T) {
	ops := Clean("{{ a }}", "{{ b }}", Options{})
	require.NotEmpty(t, ops)
	assert.Equal(t, Op{Type: Equal, A: "{{ ", B: "{{ "}, ops[0])
	assert.Equal(t, Op{Type: Equal, A: " }}", B: " }}"}, ops[len(ops)-1])
}

func TestCleanUnrelatedSentences(t *testing.T) {
	a := "The cat sat on the mat"
	b := "A dog lay by a rug"
	ops := Clean(a, b, Options{})
	assert.Equal(t, a, Source(ops))
	assert.Equal(t, b, Target(ops))
}

func TestCleanDeterministic(t *testing.T) {
	a := strings.Repeat("alpha beta gamma ", 50)
	b := strings.Repeat("alpha delta gamma ", 50)
	first := Clean(a, b, Options{Timeout: time.Second})
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Clean(a, b, Options{Timeout: time.Second}))
	}
}

func TestCleanTimeoutTerminates(t *testing.T) {
	var sa, sb strings.Builder
	for i := 0; i < 5000; i++ {
		sa.WriteString(string(rune('a' + i%26)))
		sb.WriteString(string(rune('a' + (i*7)%26)))
	}
	ops := Clean(sa.String(), sb.String(), Options{Timeout: time.Millisecond})
	assert.Equal(t, sa.String(), Source(ops))
	assert.Equal(t, sb.String(), Target(ops))
}

func TestOpJSON(t *testing.T) {
	ops := []Op{
		{Type: Equal, A: "a b", B: "a b"},
		{Type: Delete, A: "x"},
		{Type: Insert, B: "y"},
		{Type: Replace, A: "p", B: "q"},
	}
	data, err := json.Marshal(ops)
	require.NoError(t, err)
	assert.Equal(t, `[{"equal":"a b"},{"deleted":"x"},{"inserted":"y"},{"deleted":"p","inserted":"q"}]`, string(data))

	var back []Op
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ops, back)
}

func TestOpUnmarshalRejectsMixedKeys(t *testing.T) {
	var op Op
	assert.Error(t, json.Unmarshal([]byte(`{"equal":"a","inserted":"b"}`), &op))
	assert.Error(t, json.Unmarshal([]byte(`{}`), &op))
}

func TestOpTypeString(t *testing.T) {
	assert.Equal(t, "replace", Replace.String())
	assert.Equal(t, "OpType(9)", OpType(9).String())
}
