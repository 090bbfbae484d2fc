package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed scenario.schema.json
var scenarioSchema []byte

var scenarioSchemaLoader = gojsonschema.NewBytesLoader(scenarioSchema)

// Scenario is an end-to-end versioning story.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE file declaring the entity types. Relative paths are
	// resolved against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Merge selects the merge hook: "default" (always conflict) or
	// "three-way". Empty means default.
	Merge string `yaml:"merge,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// Type is the entity type for create.
	Type string `yaml:"type,omitempty"`

	// As names the entity created by a create step.
	As string `yaml:"as,omitempty"`

	// Entity refers to an entity by the name given in its create step.
	Entity string `yaml:"entity,omitempty"`

	// Session names an edit session (open, submit).
	Session string `yaml:"session,omitempty"`

	Values map[string]any `yaml:"values,omitempty"`

	// Version is the 1-based history version a revert targets.
	Version int `yaml:"version,omitempty"`

	// From and To are the history versions a diff compares.
	From int `yaml:"from,omitempty"`
	To   int `yaml:"to,omitempty"`

	DeleteNewer bool `yaml:"delete_newer,omitempty"`

	// Count is the number of clock steps for tick.
	Count int `yaml:"count,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Case is "ok" or a lowercased fault code such as "conflict".
	Case string `yaml:"case"`

	// Result maps gjson paths into the step result to expected values.
	// Only the listed paths are checked.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Path and Equals are used by state.
	Path   string `yaml:"path,omitempty"`
	Equals any    `yaml:"equals,omitempty"`

	// Op, Case and Count are used by trace_count.
	Op    string `yaml:"op,omitempty"`
	Case  string `yaml:"case,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Ops is the expected order for trace_order.
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertState      = "state"
	AssertTraceOrder = "trace_order"
	AssertTraceCount = "trace_count"
)

// Step operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpGet    = "get"
	OpOpen   = "open"
	OpSubmit = "submit"
	OpRevert = "revert"
	OpDiff   = "diff"
	OpTick   = "tick"
)

// LoadScenario reads, validates and parses a scenario YAML file. The
// schema path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(s.Schema) {
		s.Schema = filepath.Join(filepath.Dir(path), s.Schema)
	}
	if _, err := os.Stat(s.Schema); err != nil {
		return nil, fmt.Errorf("invalid scenario: schema file not found: %s", s.Schema)
	}
	return s, nil
}

// ParseScenario validates and parses scenario YAML. The schema path is left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateReferences(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// validateDocument checks the decoded YAML against the scenario schema.
func validateDocument(doc any) error {
	result, err := gojsonschema.Validate(scenarioSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// validateReferences checks that entities and sessions are introduced
// before they are used.
func validateReferences(s *Scenario) error {
	entities := make(map[string]bool)
	sessions := make(map[string]bool)
	for i, step := range s.Steps {
		switch step.Op {
		case OpCreate:
			if entities[step.As] {
				return fmt.Errorf("steps[%d]: entity %q already defined", i, step.As)
			}
			entities[step.As] = true
		case OpSubmit:
			if !sessions[step.Session] {
				return fmt.Errorf("steps[%d]: session %q is not open", i, step.Session)
			}
		case OpTick:
		default:
			if !entities[step.Entity] {
				return fmt.Errorf("steps[%d]: unknown entity %q", i, step.Entity)
			}
			if step.Op == OpOpen {
				sessions[step.Session] = true
			}
		}
	}
	return nil
}
