package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/verso/internal/ir"
)

// TypeInfo describes one entity type for the types command.
type TypeInfo struct {
	*ir.EntityType
	Reverse []ir.ReverseRelation `json:"reverse,omitempty"`
}

// NewTypesCommand creates the types command.
func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "Validate the schema and list entity types",
		Long: `Load every CUE file in the schema directory, validate the entity
declarations and list the resulting types with their fields, unique
fields, version field and reverse relations.

Examples:
  verso types
  verso types --schema ./schema --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(rootOpts, cmd)
		},
	}
}

func runTypes(opts *RootOptions, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		if outErr := out.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "configuration", err)
	}

	types, err := loadTypes(cfg.Schema.Dir, out)
	if err != nil {
		return err
	}

	infos := make([]TypeInfo, 0, len(types.Types()))
	for _, et := range types.Types() {
		infos = append(infos, TypeInfo{EntityType: et, Reverse: types.ReverseRelations(et.Name)})
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{"types": infos})
	}
	return out.Success(renderTypes(infos))
}

func renderTypes(infos []TypeInfo) string {
	var b strings.Builder
	for i, info := range infos {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(info.Name)
		var tags []string
		if info.Versioned {
			tags = append(tags, "versioned")
		}
		if len(info.UniqueFields) > 0 {
			tags = append(tags, "unique: "+strings.Join(info.UniqueFields, ", "))
		}
		if info.VersionField != "" {
			tags = append(tags, "version: "+info.VersionField)
		}
		if len(tags) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(tags, "; "))
		}
		b.WriteString("\n")

		width := 0
		for _, f := range info.Fields {
			width = max(width, len(f.Name))
		}
		for _, f := range info.Fields {
			kind := string(f.Kind)
			if f.Relation != nil {
				kind += " -> " + f.Relation.Target
			}
			fmt.Fprintf(&b, "  %-*s  %s\n", width, f.Name, kind)
		}
		for _, rr := range info.Reverse {
			card := "many"
			if rr.Unique {
				card = "one"
			}
			fmt.Fprintf(&b, "  <- %s (%s.%s, %s)\n", rr.Name, rr.Source, rr.Field, card)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
