package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRunScenarios(t *testing.T) {
	for _, name := range []string{"edit_conflict", "three_way_merge", "revert_delete", "rename_revert"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Trace, len(loadScenario(t, name).Steps))
		})
	}
}

func TestRunWithGoldenEditConflict(t *testing.T) {
	result, err := RunWithGolden(t, loadScenario(t, "edit_conflict"))
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRunIsDeterministic(t *testing.T) {
	s := loadScenario(t, "three_way_merge")
	r1, err := Run(s)
	require.NoError(t, err)
	r2, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, r1.Trace, r2.Trace)
	assert.JSONEq(t, string(r1.State), string(r2.State))
}

func TestRunReportsFailedExpectations(t *testing.T) {
	s := loadScenario(t, "edit_conflict")
	s.Steps[4].Expect.Case = "ok"
	s.Assertions = append(s.Assertions, Assertion{
		Type:   AssertState,
		Path:   "entities.home.fields.name",
		Equals: "Start",
	})

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `steps[4] submit: expected case "ok", got "conflict"`)
	assert.Contains(t, result.Errors[1], "entities.home.fields.name")
}

func TestRunUnexpectedStepFailure(t *testing.T) {
	s := loadScenario(t, "revert_delete")
	s.Steps[3].Expect = nil // get after delete

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[3] get: unexpected failure")
	assert.Equal(t, "not_found", result.Trace[3].Case)
}

func TestRunFailedCreateLeavesAliasUndefined(t *testing.T) {
	s := &Scenario{
		Name:   "bad_create",
		Schema: filepath.Join("testdata", "scenarios", "wiki.cue"),
		Steps: []Step{
			{Op: OpCreate, Type: "Page", As: "p", Values: map[string]any{"title": "x"}, Expect: &Expect{Case: "invalid"}},
			{Op: OpGet, Entity: "p", Expect: &Expect{Case: "not_found"}},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunInvalidSchema(t *testing.T) {
	dir := t.TempDir()
	schema := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(schema, []byte(`entity: Page: { unique: ["slug"], fields: { name: "text" } }`), 0o644))

	_, err := Run(&Scenario{Name: "x", Schema: schema, Steps: []Step{{Op: OpTick, Count: 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E103")
}
