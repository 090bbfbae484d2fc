package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/verso/internal/ir"
)

// Schema is a compiled set of declarations.
type Schema struct {
	Kinds map[ir.Kind]ir.Kind
	Types []*ir.EntityType
}

// CompileValue extracts the kind and entity declarations of a built CUE
// value. Every entity is compiled; all compile errors are returned.
func CompileValue(v cue.Value) (*Schema, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var errs []error
	kinds, err := CompileKinds(v.LookupPath(cue.ParsePath("kind")))
	if err != nil {
		errs = append(errs, err)
		kinds = map[ir.Kind]ir.Kind{}
	}
	schema := &Schema{Kinds: kinds}

	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return schema, errs
	}
	iter, err := entities.Fields()
	if err != nil {
		return schema, append(errs, formatCUEError(err))
	}
	for iter.Next() {
		et, err := CompileEntityType(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("entity.%s: %w", iter.Label(), err))
			continue
		}
		schema.Types = append(schema.Types, et)
	}
	return schema, errs
}

// CompileSource compiles CUE source text. filename is used in positions.
func CompileSource(src, filename string) (*Schema, []error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileValue(v)
}

// CompileFile compiles a single CUE file.
func CompileFile(path string) (*Schema, []error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read schema: %w", err)}
	}
	return CompileSource(string(src), path)
}

// TypeSet validates the schema and builds its TypeSet.
func (s *Schema) TypeSet() (*ir.TypeSet, []ValidationError) {
	if errs := ValidateTypeSet(s.Types, s.Kinds); len(errs) > 0 {
		return nil, errs
	}
	ts, err := ir.NewTypeSet(s.Types, s.Kinds)
	if err != nil {
		return nil, []ValidationError{{Field: "schema", Message: err.Error(), Code: ErrDuplicateName}}
	}
	return ts, nil
}
