package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/history"
	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/merge"
)

// EntityResult is the payload of create, get, delete and edit.
type EntityResult struct {
	Entity ir.Entity `json:"entity"`

	// Version is the history version written or current; 0 for types that
	// are not versioned.
	Version int `json:"version,omitempty"`

	// Merged is set by edit when the merge hook produced the saved values.
	Merged bool `json:"merged,omitempty"`
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var values string

	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Create an entity",
		Long: `Create an entity of the given type from a JSON object of field values.
Generated fields (identity, auto-now, version) are filled in; omitted
fields are stored as null. Versioned types record an Added snapshot.

Examples:
  verso create Page --values '{"name": "Home", "content": "Hello"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				fields, err := parseValues(values)
				if err != nil {
					return a.out.Fault("invalid --values", err)
				}
				ch, err := a.history.Create(cmd.Context(), args[0], fields)
				if err != nil {
					return a.out.Fault("create failed", err)
				}
				return a.printChange(cmd.Context(), "Created", ch, false)
			})
		},
	}

	cmd.Flags().StringVar(&values, "values", "{}", "field values as a JSON object")
	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <pk>",
		Short: "Show a live entity",
		Args:  cobra.ExactArgs(2),
		Example: `  verso get Page 1
  verso get Page 1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				pk, err := parsePK(args[1])
				if err != nil {
					return a.out.Fault("invalid primary key", err)
				}
				ent, err := a.history.Get(cmd.Context(), args[0], pk)
				if err != nil {
					return a.out.Fault("get failed", err)
				}
				res := EntityResult{Entity: ent}
				if res.Version, err = a.currentVersion(cmd.Context(), ent); err != nil {
					return a.out.Fault("get failed", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(res)
				}
				return a.out.Success(a.renderEntity(ent, res.Version))
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <pk>",
		Short: "Delete a live entity",
		Long: `Delete a live entity. Versioned types record a Deleted snapshot, so the
entity can be brought back with revert.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				pk, err := parsePK(args[1])
				if err != nil {
					return a.out.Fault("invalid primary key", err)
				}
				ch, err := a.history.Delete(cmd.Context(), args[0], pk)
				if err != nil {
					return a.out.Fault("delete failed", err)
				}
				return a.printChange(cmd.Context(), "Deleted", ch, false)
			})
		},
	}
}

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <type> <pk>",
		Short: "Start an edit session and print its fingerprint",
		Long: `Start an edit session on a live entity. The printed fingerprint
identifies the version being edited; pass it to edit so a stale
submission is detected.

Examples:
  verso open Page 1
  verso edit Page 1 --fingerprint 3 --values '{"content": "New"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				pk, err := parsePK(args[1])
				if err != nil {
					return a.out.Fault("invalid primary key", err)
				}
				s, err := a.merge.Open(cmd.Context(), args[0], pk)
				if err != nil {
					return a.out.Fault("open failed", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(s)
				}
				return a.out.Success(fmt.Sprintf("Session %s\nFingerprint %s", s.ID, s.Fingerprint))
			})
		},
	}
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	var values, fp string

	cmd := &cobra.Command{
		Use:   "edit <type> <pk>",
		Short: "Submit changes made against a fingerprint",
		Long: `Submit field changes for an entity opened with open. When the entity
changed since the fingerprint was taken, the configured merge hook
decides: the default hook rejects the edit, the three-way hook merges
edits to different fields.

A rejected edit exits with code 3 and reports the current fingerprint.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				pk, err := parsePK(args[1])
				if err != nil {
					return a.out.Fault("invalid primary key", err)
				}
				fields, err := parseValues(values)
				if err != nil {
					return a.out.Fault("invalid --values", err)
				}
				s, err := merge.Resume(args[0], pk, fp)
				if err != nil {
					return a.out.Fault("edit failed", err)
				}
				outcome, err := a.merge.Submit(cmd.Context(), s, fields)
				if err != nil {
					var fe *fault.Error
					if errors.As(err, &fe) && fe.Code == fault.CodeConflict {
						err = fe.With("fingerprint", s.Fingerprint)
					}
					return a.out.Fault("edit rejected", err)
				}
				verb := "Saved"
				if outcome.Merged {
					verb = "Merged"
				}
				return a.printChange(cmd.Context(), verb, outcome.Change, outcome.Merged)
			})
		},
	}

	cmd.Flags().StringVar(&values, "values", "{}", "changed field values as a JSON object")
	cmd.Flags().StringVar(&fp, "fingerprint", "", "fingerprint printed by open")
	_ = cmd.MarkFlagRequired("fingerprint")
	return cmd
}

// withApp opens the app for the duration of fn.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parsePK(arg string) (int64, error) {
	pk, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || pk < 1 {
		return 0, fault.Invalid("", "primary key must be a positive integer, got %q", arg)
	}
	return pk, nil
}

func parseValues(raw string) (ir.Record, error) {
	var r ir.Record
	if err := r.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, fault.Invalid("", "%v", err)
	}
	return r, nil
}

// currentVersion returns the version of the newest snapshot of ent, or 0
// when the type is not versioned.
func (a *app) currentVersion(ctx context.Context, ent ir.Entity) (int, error) {
	et, ok := a.types.Type(ent.Type)
	if !ok || !et.Versioned {
		return 0, nil
	}
	ref, err := a.history.Ref(ctx, ent)
	if err != nil {
		return 0, err
	}
	snap, err := a.history.LatestSnapshot(ctx, ref)
	if fault.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.history.VersionNumber(ctx, snap)
}

func (a *app) printChange(ctx context.Context, verb string, ch history.Change, merged bool) error {
	res := EntityResult{Entity: ch.Entity, Merged: merged}
	if ch.Snapshot != nil {
		v, err := a.history.VersionNumber(ctx, *ch.Snapshot)
		if err != nil {
			return a.out.Fault(strings.ToLower(verb)+" failed", err)
		}
		res.Version = v
	}
	if a.out.Format == "json" {
		return a.out.Success(res)
	}
	head := fmt.Sprintf("%s %s %d", verb, ch.Entity.Type, ch.Entity.PK)
	if res.Version > 0 {
		head += fmt.Sprintf(" (version %d)", res.Version)
	}
	return a.out.Success(head)
}

// renderEntity lists fields in declaration order.
func (a *app) renderEntity(ent ir.Entity, version int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d", ent.Type, ent.PK)
	if version > 0 {
		fmt.Fprintf(&b, " (version %d)", version)
	}
	names := ent.Fields.SortedKeys()
	if et, ok := a.types.Type(ent.Type); ok {
		names = et.FieldNames()
	}
	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}
	for _, n := range names {
		data, err := ir.MarshalValue(ent.Fields.Get(n))
		if err != nil {
			data = []byte(ir.Text(ent.Fields.Get(n)))
		}
		fmt.Fprintf(&b, "\n  %-*s  %s", width, n, data)
	}
	return b.String()
}
