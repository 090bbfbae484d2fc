package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the semantic tag of a field. Diff strategies and fingerprinting
// dispatch on it.
type Kind string

// Built-in kinds. KindAny is the root of every supertype chain.
const (
	KindAny      Kind = "any"
	KindText     Kind = "text"
	KindHTML     Kind = "html"
	KindSlug     Kind = "slug"
	KindFile     Kind = "file"
	KindImage    Kind = "image"
	KindInt      Kind = "int"
	KindBool     Kind = "bool"
	KindDatetime Kind = "datetime"
	KindRelation Kind = "relation"
	KindAuto     Kind = "auto"
)

// BuiltinKinds maps each built-in kind to its declared supertype.
var BuiltinKinds = map[Kind]Kind{
	KindText:     KindAny,
	KindHTML:     KindText,
	KindSlug:     KindText,
	KindFile:     KindAny,
	KindImage:    KindFile,
	KindInt:      KindAny,
	KindBool:     KindAny,
	KindDatetime: KindAny,
	KindRelation: KindAny,
	KindAuto:     KindAny,
}

// FieldSpec declares one field of an entity type.
type FieldSpec struct {
	Name     string        `json:"name"`
	Kind     Kind          `json:"kind"`
	AutoID   bool          `json:"auto_id,omitempty"`  // generated identity, never diffed
	AutoNow  bool          `json:"auto_now,omitempty"` // stamped with the save time
	Relation *RelationSpec `json:"relation,omitempty"`
}

// RelationSpec declares a forward reference from a field to another entity
// type. The target type gains a reverse relation named RelatedName.
type RelationSpec struct {
	Target      string `json:"target"`
	Unique      bool   `json:"unique,omitempty"` // one-to-one
	RelatedName string `json:"related_name,omitempty"`
}

// EntityType is the compiled declaration of an entity type.
type EntityType struct {
	Name         string      `json:"name"`
	Fields       []FieldSpec `json:"fields"`
	UniqueFields []string    `json:"unique_fields,omitempty"`
	VersionField string      `json:"version_field,omitempty"`
	Versioned    bool        `json:"versioned"`
}

// Field returns the declared field with the given name.
func (t *EntityType) Field(name string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldNames returns field names in declaration order.
func (t *EntityType) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// AutoNowField returns the first field stamped on every save, if any.
func (t *EntityType) AutoNowField() (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.AutoNow {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Editable reports whether callers may write the field directly.
func (t *EntityType) Editable(name string) bool {
	f, ok := t.Field(name)
	if !ok {
		return false
	}
	return !f.AutoID && !f.AutoNow && f.Name != t.VersionField
}

// ReverseRelation is a relation seen from the target side: entities of
// Source point at this type through Field.
type ReverseRelation struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Field  string `json:"field"`
	Unique bool   `json:"unique,omitempty"`
}

// DefaultRelatedName is the reverse relation name used when a relation does
// not declare one.
func DefaultRelatedName(source string) string {
	return strings.ToLower(source) + "_set"
}

// TypeSet is the set of entity types and custom kinds known to an engine.
// It is built once at setup and read-only afterwards.
type TypeSet struct {
	types map[string]*EntityType
	order []string
	kinds map[Kind]Kind
}

// NewTypeSet builds a TypeSet. customKinds maps extra kinds to their parent.
func NewTypeSet(types []*EntityType, customKinds map[Kind]Kind) (*TypeSet, error) {
	ts := &TypeSet{
		types: make(map[string]*EntityType, len(types)),
		kinds: make(map[Kind]Kind, len(BuiltinKinds)+len(customKinds)),
	}
	for k, parent := range BuiltinKinds {
		ts.kinds[k] = parent
	}
	for k, parent := range customKinds {
		if _, builtin := BuiltinKinds[k]; builtin || k == KindAny {
			return nil, fmt.Errorf("kind %q is built in and cannot be redeclared", k)
		}
		ts.kinds[k] = parent
	}
	for _, t := range types {
		if _, dup := ts.types[t.Name]; dup {
			return nil, fmt.Errorf("duplicate entity type %q", t.Name)
		}
		ts.types[t.Name] = t
		ts.order = append(ts.order, t.Name)
	}
	return ts, nil
}

// Type returns the entity type with the given name.
func (ts *TypeSet) Type(name string) (*EntityType, bool) {
	t, ok := ts.types[name]
	return t, ok
}

// Types returns every entity type in registration order.
func (ts *TypeSet) Types() []*EntityType {
	out := make([]*EntityType, 0, len(ts.order))
	for _, name := range ts.order {
		out = append(out, ts.types[name])
	}
	return out
}

// KnownKind reports whether k is built in or declared.
func (ts *TypeSet) KnownKind(k Kind) bool {
	if k == KindAny {
		return true
	}
	_, ok := ts.kinds[k]
	return ok
}

// KindChain returns k followed by its supertypes, ending with KindAny.
// Unknown kinds chain straight to KindAny. Cycles are cut at the first repeat.
func (ts *TypeSet) KindChain(k Kind) []Kind {
	chain := []Kind{k}
	for cur := k; cur != KindAny; {
		parent, ok := ts.kinds[cur]
		if !ok {
			parent = KindAny
		}
		if slices.Contains(chain, parent) {
			break
		}
		chain = append(chain, parent)
		cur = parent
	}
	return chain
}

// ReverseRelations returns the relations that point at the named type, in
// type registration then field declaration order.
func (ts *TypeSet) ReverseRelations(target string) []ReverseRelation {
	var out []ReverseRelation
	for _, name := range ts.order {
		src := ts.types[name]
		for _, f := range src.Fields {
			if f.Relation == nil || f.Relation.Target != target {
				continue
			}
			related := f.Relation.RelatedName
			if related == "" {
				related = DefaultRelatedName(src.Name)
			}
			out = append(out, ReverseRelation{
				Name:   related,
				Source: src.Name,
				Field:  f.Name,
				Unique: f.Relation.Unique,
			})
		}
	}
	return out
}
