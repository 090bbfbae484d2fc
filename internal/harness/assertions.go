package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Step, event.Op, event.Entity, event.Case)
		}
	}

	return buf.String()
}

// assertState checks that a gjson path into the final state holds a value.
func assertState(state []byte, assertion Assertion) error {
	got := gjson.GetBytes(state, assertion.Path)
	if !jsonValuesEqual(got, assertion.Equals) {
		actual := "missing"
		if got.Exists() {
			actual = got.Raw
		}
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s = %s", assertion.Path, describe(assertion.Equals)),
			Actual:   actual,
		}
	}
	return nil
}

// assertTraceOrder checks if ops appear in the specified order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Ops {
		found := false
		for pos < len(trace) {
			pos++
			if trace[pos-1].Op == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual:   fmt.Sprintf("no %s after step %d", want, pos-1),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the op (with the case, when given) appears
// exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op != assertion.Op {
			continue
		}
		if assertion.Case != "" && event.Case != assertion.Case {
			continue
		}
		count++
	}

	if count != assertion.Count {
		what := assertion.Op
		if assertion.Case != "" {
			what += " (" + assertion.Case + ")"
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// matchResult checks a step result against expected path values (subset
// match). Paths are checked in sorted order for stable messages.
func matchResult(result []byte, expected map[string]any) []string {
	paths := make([]string, 0, len(expected))
	for p := range expected {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var msgs []string
	for _, p := range paths {
		got := gjson.GetBytes(result, p)
		if !jsonValuesEqual(got, expected[p]) {
			actual := "missing"
			if got.Exists() {
				actual = got.Raw
			}
			msgs = append(msgs, fmt.Sprintf("result %s: expected %s, got %s", p, describe(expected[p]), actual))
		}
	}
	return msgs
}

// jsonValuesEqual compares a gjson result with a YAML-decoded value by
// passing both through JSON.
func jsonValuesEqual(got gjson.Result, want any) bool {
	if !got.Exists() {
		return false
	}
	raw, err := json.Marshal(want)
	if err != nil {
		return false
	}
	var w any
	if err := json.Unmarshal(raw, &w); err != nil {
		return false
	}
	return reflect.DeepEqual(got.Value(), w)
}

func describe(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertState:
			err = assertState(result.State, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
