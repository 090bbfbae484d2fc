package textdiff

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OpType classifies one diff operation.
type OpType int

const (
	Equal OpType = iota
	Delete
	Insert
	Replace
)

func (t OpType) String() string {
	switch t {
	case Equal:
		return "equal"
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	case Replace:
		return "replace"
	default:
		return fmt.Sprintf("OpType(%d)", int(t))
	}
}

// Op is one run of a diff. A holds the text taken from the first string and
// B the text from the second. For Equal both are the same; Delete only sets
// A; Insert only sets B.
type Op struct {
	Type OpType
	A    string
	B    string
}

// MarshalJSON renders the op in segment form:
//
//	{"equal": "..."} | {"deleted": "..."} | {"inserted": "..."} |
//	{"deleted": "...", "inserted": "..."}
func (o Op) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key, val string) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return err
		}
		// Encoder appends a newline.
		buf.Truncate(buf.Len() - 1)
		return nil
	}

	var err error
	switch o.Type {
	case Equal:
		err = write("equal", o.A)
	case Delete:
		err = write("deleted", o.A)
	case Insert:
		err = write("inserted", o.B)
	case Replace:
		if err = write("deleted", o.A); err == nil {
			err = write("inserted", o.B)
		}
	default:
		return nil, fmt.Errorf("marshal op: unknown type %d", int(o.Type))
	}
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the segment form produced by MarshalJSON.
func (o *Op) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal op: %w", err)
	}
	eq, hasEq := raw["equal"]
	del, hasDel := raw["deleted"]
	ins, hasIns := raw["inserted"]
	switch {
	case hasEq && !hasDel && !hasIns:
		*o = Op{Type: Equal, A: eq, B: eq}
	case hasDel && hasIns && !hasEq:
		*o = Op{Type: Replace, A: del, B: ins}
	case hasDel && !hasEq:
		*o = Op{Type: Delete, A: del}
	case hasIns && !hasEq:
		*o = Op{Type: Insert, B: ins}
	default:
		return fmt.Errorf("unmarshal op: unexpected keys in %s", data)
	}
	return nil
}

// Source rebuilds the first string from ops.
func Source(ops []Op) string {
	var b bytes.Buffer
	for _, op := range ops {
		b.WriteString(op.A)
	}
	return b.String()
}

// Target rebuilds the second string from ops.
func Target(ops []Op) string {
	var b bytes.Buffer
	for _, op := range ops {
		b.WriteString(op.B)
	}
	return b.String()
}

// Changed reports whether any op is not Equal.
func Changed(ops []Op) bool {
	for _, op := range ops {
		if op.Type != Equal {
			return true
		}
	}
	return false
}
