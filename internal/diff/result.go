package diff

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/textdiff"
)

// Result is a structured difference. A nil Result means the compared values
// are equal.
type Result interface {
	isResult()
}

// Segments is a text diff: equal, deleted and inserted runs in order.
type Segments []textdiff.Op

// Change is an opaque before/after pair.
type Change struct {
	Deleted  ir.Value `json:"deleted"`
	Inserted ir.Value `json:"inserted"`
}

// FileChange compares two file references by name and URL.
type FileChange struct {
	Name Change `json:"name"`
	URL  Change `json:"url"`
}

// FieldDiff is the non-empty difference of one field.
type FieldDiff struct {
	Name   string
	Result Result
}

// RecordDiff holds the differing fields of two records of one type, in
// comparison order.
type RecordDiff struct {
	Type   string
	Fields []FieldDiff
}

func (Segments) isResult()    {}
func (Change) isResult()      {}
func (FileChange) isResult()  {}
func (*RecordDiff) isResult() {}

// Field returns the diff of the named field, or nil.
func (d *RecordDiff) Field(name string) Result {
	if d == nil {
		return nil
	}
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Result
		}
	}
	return nil
}

// Names returns the differing field names in order.
func (d *RecordDiff) Names() []string {
	if d == nil {
		return []string{}
	}
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// MarshalJSON renders the diff as a JSON object keyed by field name, keeping
// field order.
func (d *RecordDiff) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
