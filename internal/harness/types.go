package harness

import "encoding/json"

// Case reported for a step that succeeded.
const CaseOK = "ok"

// TraceEvent records one executed step.
type TraceEvent struct {
	Step   int             `json:"step"`
	Op     string          `json:"op"`
	Entity string          `json:"entity,omitempty"`
	Case   string          `json:"case"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists every step in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors describes each failed expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final state document that state assertions query:
	// {"entities": {alias: {...}|null}, "history": {alias: [...]}}.
	State json.RawMessage `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
