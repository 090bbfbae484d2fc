package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/verso/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrNoFields           = "E101" // entity type declares no fields
	ErrUnknownKind        = "E102" // field or kind parent names an undeclared kind
	ErrUniqueField        = "E103" // unique field missing or unusable
	ErrVersionField       = "E104" // version field missing or not an int
	ErrDuplicateName      = "E105" // duplicate type, field or kind name
	ErrRelationTarget     = "E106" // relation target is not a declared type
	ErrRelationKind       = "E107" // relation kind without target or target on another kind
	ErrMultipleIdentity   = "E108" // more than one auto-id field
	ErrRelatedNameClash   = "E109" // reverse relation name collides on the target
	ErrKindCycle          = "E110" // custom kinds form a cycle
	ErrBuiltinKindRedef   = "E111" // custom kind redeclares a built-in kind
	ErrGeneratedFieldKind = "E112" // auto-now field is not a datetime
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateTypeSet checks entity types and custom kinds against each other.
// Returns all errors found (does not fail-fast).
func ValidateTypeSet(types []*ir.EntityType, kinds map[ir.Kind]ir.Kind) []ValidationError {
	var errs []ValidationError

	known := func(k ir.Kind) bool {
		if k == ir.KindAny {
			return true
		}
		if _, ok := ir.BuiltinKinds[k]; ok {
			return true
		}
		_, ok := kinds[k]
		return ok
	}

	for _, k := range sortedKinds(kinds) {
		parent := kinds[k]
		path := fmt.Sprintf("kind.%s", k)
		if _, builtin := ir.BuiltinKinds[k]; builtin || k == ir.KindAny {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("kind %q is built in", k),
				Code:    ErrBuiltinKindRedef,
			})
			continue
		}
		if !known(parent) {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("parent kind %q is not declared", parent),
				Code:    ErrUnknownKind,
			})
			continue
		}
		if kindCycles(k, kinds) {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("kind %q is its own supertype", k),
				Code:    ErrKindCycle,
			})
		}
	}

	byName := make(map[string]*ir.EntityType, len(types))
	for i, et := range types {
		if _, dup := byName[et.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entity[%d].name", i),
				Message: fmt.Sprintf("duplicate entity type %q", et.Name),
				Code:    ErrDuplicateName,
			})
			continue
		}
		byName[et.Name] = et
	}

	for _, et := range types {
		errs = append(errs, validateEntityType(et, byName, known)...)
	}

	// Reverse relation names share the target's namespace with its fields.
	related := make(map[string]string)
	for _, et := range types {
		for _, f := range et.Fields {
			if f.Relation == nil {
				continue
			}
			target, ok := byName[f.Relation.Target]
			if !ok {
				continue
			}
			name := f.Relation.RelatedName
			if name == "" {
				name = ir.DefaultRelatedName(et.Name)
			}
			key := target.Name + "." + name
			path := fmt.Sprintf("entity.%s.fields.%s", et.Name, f.Name)
			if prev, clash := related[key]; clash {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("reverse relation %q on %s already defined by %s", name, target.Name, prev),
					Code:    ErrRelatedNameClash,
				})
				continue
			}
			if _, clash := target.Field(name); clash {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("reverse relation %q collides with field %s.%s", name, target.Name, name),
					Code:    ErrRelatedNameClash,
				})
				continue
			}
			related[key] = et.Name + "." + f.Name
		}
	}

	return errs
}

func validateEntityType(et *ir.EntityType, types map[string]*ir.EntityType, known func(ir.Kind) bool) []ValidationError {
	var errs []ValidationError
	prefix := "entity." + et.Name

	if len(et.Fields) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".fields",
			Message: "at least one field is required",
			Code:    ErrNoFields,
		})
	}

	seen := make(map[string]bool, len(et.Fields))
	identities := 0
	for _, f := range et.Fields {
		path := prefix + ".fields." + f.Name
		if seen[f.Name] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("duplicate field %q", f.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[f.Name] = true

		if !known(f.Kind) {
			errs = append(errs, ValidationError{
				Field:   path + ".kind",
				Message: fmt.Sprintf("unknown kind %q", f.Kind),
				Code:    ErrUnknownKind,
			})
		}
		if f.AutoID {
			identities++
		}
		if f.AutoNow && f.Kind != ir.KindDatetime {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "auto_now fields must be datetime",
				Code:    ErrGeneratedFieldKind,
			})
		}

		switch {
		case f.Kind == ir.KindRelation && f.Relation == nil:
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "relation field requires a target",
				Code:    ErrRelationKind,
			})
		case f.Kind != ir.KindRelation && f.Relation != nil:
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("target is only valid on relation fields, not %q", f.Kind),
				Code:    ErrRelationKind,
			})
		case f.Relation != nil:
			if _, ok := types[f.Relation.Target]; !ok {
				errs = append(errs, ValidationError{
					Field:   path + ".target",
					Message: fmt.Sprintf("unknown entity type %q", f.Relation.Target),
					Code:    ErrRelationTarget,
				})
			}
		}
	}

	if identities > 1 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".fields",
			Message: fmt.Sprintf("%d auto-id fields, at most one allowed", identities),
			Code:    ErrMultipleIdentity,
		})
	}

	for _, name := range et.UniqueFields {
		f, ok := et.Field(name)
		switch {
		case !ok:
			errs = append(errs, ValidationError{
				Field:   prefix + ".unique",
				Message: fmt.Sprintf("unique field %q is not declared", name),
				Code:    ErrUniqueField,
			})
		case f.AutoID || f.AutoNow || name == et.VersionField:
			errs = append(errs, ValidationError{
				Field:   prefix + ".unique",
				Message: fmt.Sprintf("unique field %q is generated and cannot identify the entity", name),
				Code:    ErrUniqueField,
			})
		}
	}

	if et.VersionField != "" {
		f, ok := et.Field(et.VersionField)
		switch {
		case !ok:
			errs = append(errs, ValidationError{
				Field:   prefix + ".version_field",
				Message: fmt.Sprintf("version field %q is not declared", et.VersionField),
				Code:    ErrVersionField,
			})
		case f.Kind != ir.KindInt:
			errs = append(errs, ValidationError{
				Field:   prefix + ".version_field",
				Message: fmt.Sprintf("version field %q must be int, not %q", et.VersionField, f.Kind),
				Code:    ErrVersionField,
			})
		}
	}

	return errs
}

// kindCycles reports whether walking k's parents returns to k.
func kindCycles(k ir.Kind, kinds map[ir.Kind]ir.Kind) bool {
	seen := map[ir.Kind]bool{k: true}
	for cur := kinds[k]; ; {
		if seen[cur] {
			return cur == k
		}
		seen[cur] = true
		next, ok := kinds[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

func sortedKinds(kinds map[ir.Kind]ir.Kind) []ir.Kind {
	out := make([]ir.Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
