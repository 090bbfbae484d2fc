package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/verso/internal/ir"
)

// CompileEntityType parses a CUE value into an EntityType.
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Page: { fields: { ... } }`)
//	et, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity.Page")))
func CompileEntityType(v cue.Value) (*ir.EntityType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	et := &ir.EntityType{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		et.Name = labels[len(labels)-1].String()
	}

	versioned, err := optionalBool(v, "versioned")
	if err != nil {
		return nil, err
	}
	et.Versioned = versioned

	et.VersionField, err = optionalString(v, "version_field")
	if err != nil {
		return nil, err
	}

	uniqueVal := v.LookupPath(cue.ParsePath("unique"))
	if uniqueVal.Exists() {
		iter, err := uniqueVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			et.UniqueFields = append(et.UniqueFields, name)
		}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "fields",
			Message: "fields are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		f, err := parseField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		et.Fields = append(et.Fields, f)
	}
	if len(et.Fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     fieldsVal.Pos(),
		}
	}

	return et, nil
}

// parseField accepts either a kind name or a struct:
//
//	name: "text"
//	page: {kind: "relation", target: "Page", unique: true, related_name: "mapdata"}
func parseField(name string, v cue.Value) (ir.FieldSpec, error) {
	f := ir.FieldSpec{Name: name}

	if kind, err := v.String(); err == nil {
		f.Kind = ir.Kind(kind)
		f.AutoID = f.Kind == ir.KindAuto
		return f, nil
	}
	if v.IncompleteKind() != cue.StructKind {
		return f, &CompileError{
			Field:   "fields." + name,
			Message: fmt.Sprintf("field must be a kind name or struct, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return f, &CompileError{
			Field:   "fields." + name + ".kind",
			Message: "kind is required",
			Pos:     v.Pos(),
		}
	}
	kind, err := kindVal.String()
	if err != nil {
		return f, formatCUEError(err)
	}
	f.Kind = ir.Kind(kind)

	autoID, err := optionalBool(v, "auto_id")
	if err != nil {
		return f, err
	}
	f.AutoID = autoID || f.Kind == ir.KindAuto

	if f.AutoNow, err = optionalBool(v, "auto_now"); err != nil {
		return f, err
	}

	target, err := optionalString(v, "target")
	if err != nil {
		return f, err
	}
	if target != "" {
		rel := &ir.RelationSpec{Target: target}
		if rel.Unique, err = optionalBool(v, "unique"); err != nil {
			return f, err
		}
		if rel.RelatedName, err = optionalString(v, "related_name"); err != nil {
			return f, err
		}
		f.Relation = rel
	}
	return f, nil
}

// CompileKinds parses custom kind declarations: a struct mapping each kind
// to its parent kind.
func CompileKinds(v cue.Value) (map[ir.Kind]ir.Kind, error) {
	kinds := make(map[ir.Kind]ir.Kind)
	if !v.Exists() {
		return kinds, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		parent, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "kind." + iter.Label(),
				Message: "parent kind must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		kinds[ir.Kind(iter.Label())] = ir.Kind(parent)
	}
	return kinds, nil
}

func optionalBool(v cue.Value, path string) (bool, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return false, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
