package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/verso/internal/compiler"
	"github.com/roach88/verso/internal/config"
	"github.com/roach88/verso/internal/diff"
	"github.com/roach88/verso/internal/history"
	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/merge"
	"github.com/roach88/verso/internal/store"
)

// app is everything a data command needs, built from config and flags.
type app struct {
	cfg     *config.Config
	types   *ir.TypeSet
	store   *store.Store
	history *history.Engine
	differ  *diff.Engine
	merge   *merge.Layer
	logger  *slog.Logger
	out     *OutputFormatter
}

// newFormatter builds the formatter for a command from the global flags.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.DB != "" {
		cfg.Database.Path = opts.DB
	}
	if opts.Schema != "" {
		cfg.Schema.Dir = opts.Schema
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// loadTypes loads the schema directory, reporting every error through out.
func loadTypes(dir string, out *OutputFormatter) (*ir.TypeSet, error) {
	result, errs := LoadSchema(dir)
	if len(errs) == 0 {
		out.VerboseLog("Loaded %d entity types from %d files in %s", len(result.Schema.Types), result.FileCount, dir)
		return result.Types, nil
	}
	if err := out.Error(errorCode(errs[0]), fmt.Sprintf("schema %s is invalid", dir), errorStrings(errs)); err != nil {
		return nil, err
	}
	return nil, WrapExitError(ExitFailure, "invalid schema", errs[0])
}

// openApp loads config and schema, opens the store and wires the engines.
// The caller must Close the returned app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		if outErr := out.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, "configuration", err)
	}

	types, err := loadTypes(cfg.Schema.Dir, out)
	if err != nil {
		return nil, err
	}

	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())
	registry, err := cfg.Diff.Registry(logger)
	if err != nil {
		if outErr := out.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, "diff rules", err)
	}

	st, err := store.OpenDriver(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		if outErr := out.Error(ErrCodeNotFound, err.Error(), nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	out.VerboseLog("Opened %s database %s", cfg.Database.Driver, cfg.Database.Path)

	eng := history.New(st, types, history.WithLogger(logger))

	hook := merge.DefaultHook
	if cfg.Merge.Hook == "three-way" {
		hook = merge.ThreeWayHook
	}

	return &app{
		cfg:     cfg,
		types:   types,
		store:   st,
		history: eng,
		differ:  diff.NewEngine(registry, types, diff.WithLogger(logger)),
		merge:   merge.New(eng, merge.WithHook(hook), merge.WithLogger(logger)),
		logger:  logger,
		out:     out,
	}, nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}

// errorCode returns the code carried by a load or validation error.
func errorCode(err error) string {
	switch e := err.(type) {
	case *LoadError:
		return e.Code
	case compiler.ValidationError:
		return e.Code
	default:
		return ErrCodeGeneric
	}
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
