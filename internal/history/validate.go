package history

import (
	"context"
	"database/sql"
	"errors"
	"slices"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/ir"
)

// checkFields validates caller-supplied values against et and returns them
// in a fresh record.
func (t *Tx) checkFields(ctx context.Context, et *ir.EntityType, fields ir.Record) (ir.Record, error) {
	out := make(ir.Record, len(fields))
	for _, name := range fields.SortedKeys() {
		f, ok := et.Field(name)
		if !ok {
			return nil, fault.Invalid(et.Name, "unknown field %q", name)
		}
		if !et.Editable(name) {
			return nil, fault.Invalid(et.Name, "field %q is generated and cannot be set", name)
		}
		v := fields.Get(name)
		if err := t.checkValue(ctx, et, f, v); err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// checkValue enforces the value shape implied by the field's kind chain.
// Kinds that only descend from "any" accept every value.
func (t *Tx) checkValue(ctx context.Context, et *ir.EntityType, f ir.FieldSpec, v ir.Value) error {
	if _, null := v.(ir.Null); null {
		return nil
	}
	if !ir.ValidUTF8(v) {
		return fault.Invalid(et.Name, "field %q contains invalid UTF-8", f.Name)
	}
	chain := t.e.types.KindChain(f.Kind)
	is := func(k ir.Kind) bool { return slices.Contains(chain, k) }

	bad := func(want string) error {
		return fault.Invalid(et.Name, "field %q (%s) expects %s, got %T", f.Name, f.Kind, want, v)
	}

	switch {
	case is(ir.KindText), is(ir.KindDatetime):
		if _, ok := v.(ir.String); !ok {
			return bad("a string")
		}
	case is(ir.KindInt):
		if _, ok := v.(ir.Int); !ok {
			return bad("an integer")
		}
	case is(ir.KindBool):
		if _, ok := v.(ir.Bool); !ok {
			return bad("a boolean")
		}
	case is(ir.KindFile):
		obj, ok := v.(ir.Object)
		if !ok {
			return bad(`an object {"name", "url"}`)
		}
		for _, key := range []string{"name", "url"} {
			if _, ok := obj[key].(ir.String); !ok {
				return bad(`an object {"name", "url"}`)
			}
		}
	case is(ir.KindRelation):
		pk, ok := v.(ir.Int)
		if !ok {
			return bad("the primary key of a " + relationTarget(f))
		}
		if f.Relation == nil {
			return fault.Configuration(et.Name, "relation field %q has no target", f.Name)
		}
		_, err := t.db.GetEntity(ctx, f.Relation.Target, int64(pk))
		if errors.Is(err, sql.ErrNoRows) {
			return fault.Invalid(et.Name, "field %q points at missing %s pk %d", f.Name, f.Relation.Target, pk)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func relationTarget(f ir.FieldSpec) string {
	if f.Relation == nil {
		return "related entity"
	}
	return f.Relation.Target
}
