package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verso/internal/diff"
	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/textdiff"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "verso.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "verso.db", cfg.Database.Path)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "schema", cfg.Schema.Dir)
	assert.Equal(t, textdiff.DefaultTimeout, cfg.Diff.Timeout)
	assert.Equal(t, textdiff.DefaultEditCost, cfg.Diff.EditCost)
	assert.False(t, cfg.Diff.EfficiencyCleanup)
	assert.Empty(t, cfg.Diff.Rules)
	assert.Equal(t, "default", cfg.Merge.Hook)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/verso/wiki.db
  driver: sqlite
diff:
  timeout: 50ms
  efficiency_cleanup: true
  edit_cost: 6
  rules:
    - when: 'kind == "slug"'
      strategy: text-exact
merge:
  hook: three-way
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/verso/wiki.db", cfg.Database.Path)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "schema", cfg.Schema.Dir, "unset keys keep defaults")
	assert.Equal(t, 50*time.Millisecond, cfg.Diff.Timeout)
	assert.Equal(t, 6, cfg.Diff.EditCost)
	assert.Equal(t, textdiff.Options{Timeout: 50 * time.Millisecond, Efficiency: true, EditCost: 6}, cfg.Diff.TextOptions())
	assert.Equal(t, []RuleConfig{{When: `kind == "slug"`, Strategy: "text-exact"}}, cfg.Diff.Rules)
	assert.Equal(t, "three-way", cfg.Merge.Hook)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "database:\n  path: from-file.db\n")
	t.Setenv("VERSO_DATABASE_PATH", "from-env.db")
	t.Setenv("VERSO_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"driver", "database:\n  driver: postgres\n", "Driver"},
		{"log level", "log:\n  level: trace\n", "Level"},
		{"log format", "log:\n  format: xml\n", "Format"},
		{"merge hook", "merge:\n  hook: newest\n", "Hook"},
		{"edit cost", "diff:\n  edit_cost: -1\n", "EditCost"},
		{"rule without strategy", "diff:\n  rules:\n    - when: 'true'\n", "Strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDiffRegistryAppliesRules(t *testing.T) {
	cfg := DiffConfig{
		Timeout:  textdiff.DefaultTimeout,
		EditCost: textdiff.DefaultEditCost,
		Rules:    []RuleConfig{{When: `kind == "slug"`, Strategy: diff.StrategyTextExact}},
	}

	reg, err := cfg.Registry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.True(t, reg.Frozen())

	s, err := reg.Lookup([]ir.Kind{ir.KindSlug, ir.KindText, ir.KindAny})
	require.NoError(t, err)
	assert.Equal(t, diff.StrategyTextExact, s.Name())

	s, err = reg.Lookup([]ir.Kind{ir.KindText, ir.KindAny})
	require.NoError(t, err)
	assert.Equal(t, diff.StrategyText, s.Name())
}

func TestDiffRegistryUnknownStrategy(t *testing.T) {
	cfg := DiffConfig{Rules: []RuleConfig{{When: "true", Strategy: "wavelet"}}}
	_, err := cfg.Registry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	LogConfig{Level: "info", Format: "json"}.NewLogger(&buf).Info("saved", "type", "Page")
	assert.Contains(t, buf.String(), `"msg":"saved"`)

	buf.Reset()
	logger := LogConfig{Level: "error", Format: "text"}.NewLogger(&buf)
	logger.Info("quiet")
	assert.Empty(t, buf.String())
}
