package cli

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/verso/internal/diff"
	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/history"
	"github.com/roach88/verso/internal/ir"
)

// LogResult is the payload of the log command.
type LogResult struct {
	Ref      ir.EntityRef           `json:"ref"`
	Versions []ir.VersionedSnapshot `json:"versions"`
}

// ShowResult is the payload of the show command.
type ShowResult struct {
	Snapshot ir.Snapshot       `json:"snapshot"`
	Version  int               `json:"version"`
	Relation *history.Relation `json:"relation,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var key, at string

	cmd := &cobra.Command{
		Use:   "log <type> [pk]",
		Short: "List the history of an entity",
		Long: `List every recorded version of an entity, oldest first, with its
snapshot id, timestamp and change kind.

A live entity is named by type and primary key. A deleted entity is
named by type and --key, the stable key shown in earlier output. With
--at, only the version current at that moment is shown.

Examples:
  verso log Page 1
  verso log Page --key '{"name":"Home"}'
  verso log Page 1 --at 2024-01-01T12:00:00Z`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				ref, err := a.resolveRef(cmd.Context(), args, key)
				if err != nil {
					return a.out.Fault("log failed", err)
				}
				if at != "" {
					return a.showAsOf(cmd.Context(), ref, at)
				}
				versions, err := a.history.History(cmd.Context(), ref)
				if err != nil {
					return a.out.Fault("log failed", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(LogResult{Ref: ref, Versions: versions})
				}
				return a.out.Success(renderLog(ref, versions))
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "stable key of the entity, instead of a primary key")
	cmd.Flags().StringVar(&at, "at", "", "show only the version current at this RFC 3339 time")
	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var relation string

	cmd := &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Show one snapshot",
		Long: `Show the fields recorded by a snapshot. With --relation, also resolve
a forward or reverse relation as it was when the snapshot was taken.

Examples:
  verso show 3
  verso show 3 --relation attachments`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				snap, err := a.snapshotArg(cmd.Context(), args[0])
				if err != nil {
					return a.out.Fault("show failed", err)
				}
				return a.printSnapshot(cmd.Context(), snap, relation)
			})
		},
	}

	cmd.Flags().StringVar(&relation, "relation", "", "relation to resolve as of the snapshot")
	return cmd
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	var fields, excludes, strategies []string

	cmd := &cobra.Command{
		Use:   "diff <snapshot-id> <snapshot-id>",
		Short: "Compare two snapshots field by field",
		Long: `Compare two snapshots of the same entity type. Each differing field is
compared with the strategy registered for its kind: text fields get a
semantic diff, file and image fields compare name and URL, everything
else reports the deleted and inserted values.

Examples:
  verso diff 1 4
  verso diff 1 4 --fields content,name
  verso diff 1 4 --exclude slug --strategy content=text-exact`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				s1, err := a.snapshotArg(cmd.Context(), args[0])
				if err != nil {
					return a.out.Fault("diff failed", err)
				}
				s2, err := a.snapshotArg(cmd.Context(), args[1])
				if err != nil {
					return a.out.Fault("diff failed", err)
				}
				opts, err := diffOptions(fields, excludes, strategies)
				if err != nil {
					return a.out.Fault("invalid --strategy", err)
				}
				d, err := a.differ.CompareRecord(s1, s2, opts)
				if err != nil {
					return a.out.Fault("diff failed", err)
				}
				if a.out.Format == "json" {
					if d == nil {
						return a.out.Success(map[string]any{})
					}
					return a.out.Success(d)
				}
				var buf bytes.Buffer
				if err := diff.RenderText(&buf, d); err != nil {
					return err
				}
				return a.out.Success(strings.TrimSuffix(buf.String(), "\n"))
			})
		},
	}

	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to compare, in output order")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "fields to skip")
	cmd.Flags().StringSliceVar(&strategies, "strategy", nil, "field=strategy overrides")
	return cmd
}

// NewRevertCommand creates the revert command.
func NewRevertCommand(rootOpts *RootOptions) *cobra.Command {
	var deleteNewer bool

	cmd := &cobra.Command{
		Use:   "revert <snapshot-id>",
		Short: "Bring an entity back to a recorded version",
		Long: `Restore the fields recorded by a snapshot. A deleted entity is
recreated; reverting to a deletion deletes the live entity. The revert
itself is recorded as a new version.

With --delete-newer every version after the target is removed first.

Examples:
  verso revert 2
  verso revert 2 --delete-newer`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				snap, err := a.snapshotArg(cmd.Context(), args[0])
				if err != nil {
					return a.out.Fault("revert failed", err)
				}
				res, err := a.history.RevertTo(cmd.Context(), snap, history.RevertOptions{DeleteNewer: deleteNewer})
				if err != nil {
					return a.out.Fault("revert failed", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(res)
				}
				msg := fmt.Sprintf("Reverted %s to snapshot #%d: %s", snap.Ref, snap.ID, res.Outcome)
				if res.Pruned > 0 {
					msg += fmt.Sprintf(", %d newer versions removed", res.Pruned)
				}
				return a.out.Success(msg)
			})
		},
	}

	cmd.Flags().BoolVar(&deleteNewer, "delete-newer", false, "remove versions newer than the target first")
	return cmd
}

func (a *app) resolveRef(ctx context.Context, args []string, key string) (ir.EntityRef, error) {
	typ := args[0]
	if _, ok := a.types.Type(typ); !ok {
		return ir.EntityRef{}, fault.NotFound(typ, "", "unknown entity type")
	}
	switch {
	case key != "" && len(args) == 2:
		return ir.EntityRef{}, fault.Invalid(typ, "give either a primary key or --key, not both")
	case key != "":
		return ir.EntityRef{Type: typ, Key: key}, nil
	case len(args) < 2:
		return ir.EntityRef{}, fault.Invalid(typ, "a primary key or --key is required")
	}
	pk, err := parsePK(args[1])
	if err != nil {
		return ir.EntityRef{}, err
	}
	ent, err := a.history.Get(ctx, typ, pk)
	if err != nil {
		return ir.EntityRef{}, err
	}
	return a.history.Ref(ctx, ent)
}

func (a *app) snapshotArg(ctx context.Context, arg string) (ir.Snapshot, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return ir.Snapshot{}, fault.Invalid("", "snapshot id must be a positive integer, got %q", arg)
	}
	return a.history.Snapshot(ctx, id)
}

func (a *app) showAsOf(ctx context.Context, ref ir.EntityRef, at string) error {
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return a.out.Fault("invalid --at", fault.Invalid(ref.Type, "%v", err))
	}
	snap, err := a.history.SnapshotAsOf(ctx, ref, t)
	if err != nil {
		return a.out.Fault("log failed", err)
	}
	return a.printSnapshot(ctx, snap, "")
}

func (a *app) printSnapshot(ctx context.Context, snap ir.Snapshot, relation string) error {
	version, err := a.history.VersionNumber(ctx, snap)
	if err != nil {
		return a.out.Fault("show failed", err)
	}
	res := ShowResult{Snapshot: snap, Version: version}
	if relation != "" {
		rel, err := a.history.ResolveRelation(ctx, snap, relation)
		if err != nil {
			return a.out.Fault("relation failed", err)
		}
		res.Relation = &rel
	}
	if a.out.Format == "json" {
		return a.out.Success(res)
	}
	return a.out.Success(a.renderShow(res))
}

func (a *app) renderShow(res ShowResult) string {
	snap := res.Snapshot
	var b strings.Builder
	fmt.Fprintf(&b, "Snapshot #%d of %s\n", snap.ID, snap.Ref)
	fmt.Fprintf(&b, "  version  %d\n", res.Version)
	fmt.Fprintf(&b, "  change   %s\n", snap.Kind)
	fmt.Fprintf(&b, "  time     %s\n", snap.Timestamp.Format(time.RFC3339Nano))
	if snap.RevertedFrom != nil {
		fmt.Fprintf(&b, "  from     #%d\n", *snap.RevertedFrom)
	}
	b.WriteString(a.renderEntity(ir.Entity{Type: snap.Ref.Type, PK: snap.EntityPK, Fields: snap.Fields}, 0))
	if rel := res.Relation; rel != nil {
		fmt.Fprintf(&b, "\n%s (%s):", rel.Name, rel.Cardinality)
		related := rel.Snapshots
		if rel.Snapshot != nil {
			related = []ir.Snapshot{*rel.Snapshot}
		}
		if len(related) == 0 {
			b.WriteString(" none")
		}
		for _, s := range related {
			fmt.Fprintf(&b, "\n  #%d %s %s", s.ID, s.Ref, s.Kind)
		}
	}
	return b.String()
}

func renderLog(ref ir.EntityRef, versions []ir.VersionedSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "History of %s", ref)
	for _, v := range versions {
		fmt.Fprintf(&b, "\n  v%-3d #%-4d %s  %s", v.Version, v.ID, v.Timestamp.Format(time.RFC3339), v.Kind)
		if v.RevertedFrom != nil {
			fmt.Fprintf(&b, " (from #%d)", *v.RevertedFrom)
		}
	}
	return b.String()
}

// diffOptions builds compare options from the diff flags.
func diffOptions(fields, excludes, strategies []string) (diff.Options, error) {
	overrides := make(map[string]string, len(strategies))
	for _, s := range strategies {
		name, strategy, ok := strings.Cut(s, "=")
		if !ok || name == "" || strategy == "" {
			return diff.Options{}, fault.Invalid("", "expected field=strategy, got %q", s)
		}
		overrides[name] = strategy
	}
	if len(overrides) > 0 && len(fields) == 0 {
		return diff.Options{}, fault.Invalid("", "--strategy requires --fields")
	}
	opts := diff.Options{Excludes: excludes}
	for _, name := range fields {
		opts.Fields = append(opts.Fields, diff.FieldSel{Name: name, Strategy: overrides[name]})
		delete(overrides, name)
	}
	if len(overrides) > 0 {
		name := slices.Sorted(maps.Keys(overrides))[0]
		return diff.Options{}, fault.Invalid("", "--strategy for %q which is not in --fields", name)
	}
	return opts, nil
}
