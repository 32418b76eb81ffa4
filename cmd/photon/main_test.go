package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/photon/configs"
	"github.com/tinytelemetry/photon/internal/duckdb"
	"github.com/tinytelemetry/photon/internal/model"
	"github.com/tinytelemetry/photon/internal/registry"
	"gopkg.in/yaml.v3"
)

// isolate points HOME at an empty directory so no user config or settings
// override leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"PHOTON_API_PORT", "PHOTON_DB_PATH", "PHOTON_FIELD_INDEX", "PHOTON_METRIC_INDEX", "PHOTON_TABLE_INDEX", "PHOTON_LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level=error"))
	err := cmd.Execute()
	return out.String(), err
}

func writeTables(t *testing.T, metricExtra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	fieldPath := filepath.Join(dir, configs.FieldIndexName)
	metricPath := filepath.Join(dir, configs.MetricIndexName)
	require.NoError(t, os.WriteFile(fieldPath, configs.FieldIndex, 0644))
	require.NoError(t, os.WriteFile(metricPath, append(append([]byte{}, configs.MetricIndex...), metricExtra...), 0644))
	return fieldPath, metricPath
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := loadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, defaultAPIPort, cfg.APIPort)
	assert.Equal(t, "127.0.0.1:3000", cfg.APIAddr)
	assert.Equal(t, defaultQueryTimeout, cfg.QueryTimeout)
	assert.Equal(t, defaultReloadDebounce, cfg.ReloadDebounce)
	assert.True(t, cfg.Reload)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.FieldIndex)
	assert.Empty(t, cfg.ConfigPath)
	assert.Equal(t, filepath.Join(home, ".photon", "settings.ini"), cfg.SettingsOverride)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	home := isolate(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("api-port: 4100\ndb-path: ~/catalog.duckdb\nreload: false\n"), 0644))

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.APIPort)
	assert.Equal(t, "127.0.0.1:4100", cfg.APIAddr)
	assert.Equal(t, filepath.Join(home, "catalog.duckdb"), cfg.DBPath)
	assert.False(t, cfg.Reload)
	assert.Equal(t, path, cfg.ConfigPath)

	t.Setenv("PHOTON_API_PORT", "4200")
	cfg, err = loadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 4200, cfg.APIPort)
}

func TestLoadConfig_Invalid(t *testing.T) {
	isolate(t)

	t.Run("port out of range", func(t *testing.T) {
		t.Setenv("PHOTON_API_PORT", "70000")
		_, err := loadConfig("", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api-port")
	})

	t.Run("one index without the other", func(t *testing.T) {
		t.Setenv("PHOTON_FIELD_INDEX", "/tmp/field_index.ini")
		_, err := loadConfig("", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "set together")
	})

	t.Run("table index alone", func(t *testing.T) {
		t.Setenv("PHOTON_TABLE_INDEX", "/tmp/table_index.ini")
		_, err := loadConfig("", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "table-index")
	})
}

func TestValidate(t *testing.T) {
	isolate(t)

	t.Run("bundled tables", func(t *testing.T) {
		out, err := run(t, "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "✓")
		assert.Contains(t, out, "metrics")
		assert.Contains(t, out, "tables")
	})

	t.Run("dangling table column", func(t *testing.T) {
		fieldPath, metricPath := writeTables(t, "")
		tablePath := filepath.Join(filepath.Dir(fieldPath), configs.TableIndexName)
		require.NoError(t, os.WriteFile(tablePath, append(append([]byte{}, configs.TableIndex...),
			"\n[ghosts]\ncolumns = ssd_capacity, |, no_such_metric\n"...), 0644))

		out, err := run(t, "validate", "--field-index", fieldPath, "--metric-index", metricPath, "--table-index", tablePath)
		require.Error(t, err)
		assert.Contains(t, out, `table "ghosts": columns references "no_such_metric"`)
	})

	t.Run("reports every problem", func(t *testing.T) {
		fieldPath, metricPath := writeTables(t,
			"\n[loop]\nrequired_metrics = loop  type: list\n"+
				"\n[lost]\nmetric_type = Metric\nfield = no_such_field\n")
		out, err := run(t, "validate", "--field-index", fieldPath, "--metric-index", metricPath)
		require.Error(t, err)
		assert.Contains(t, out, "cyclic required_metrics")
		assert.Contains(t, out, "no_such_field")
		assert.Contains(t, err.Error(), "configuration errors")
	})
}

func TestFlattenErrors(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")
	wrapped := errors.Join(a, b)

	assert.Equal(t, []string{"a", "b"}, flattenErrors(wrapped))
	assert.Equal(t, []string{"plain"}, flattenErrors(errors.New("plain")))
}

func TestFieldCommand(t *testing.T) {
	isolate(t)

	out, err := run(t, "field", "ssd_capacity")
	require.NoError(t, err)

	var report fieldReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, "ssd_capacity", report.Field.Name)
	assert.Equal(t, []model.Source{model.SourceLogs, model.SourcePure1, model.SourceWarehouse}, report.Candidates)
	assert.Equal(t, model.SourceLogs, report.Priority[0])
}

func TestMetricCommand(t *testing.T) {
	isolate(t)

	out, err := run(t, "metric", "pct_used")
	require.NoError(t, err)

	var def model.MetricDefinition
	require.NoError(t, yaml.Unmarshal([]byte(out), &def))
	assert.Equal(t, model.KindPercentage, def.Kind)
	assert.Equal(t, "ssd_mapped", def.Numerator)
	assert.Equal(t, "ssd_capacity", def.Denominator)

	_, err = run(t, "metric", "no_such_metric")
	var unknown *registry.UnknownMetricError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "no_such_metric", unknown.Name)
}

func TestClosureCommand(t *testing.T) {
	isolate(t)

	out, err := run(t, "closure", "--names", "unaccounted_space")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"reclaimable_space",
		"reported_pyramid",
		"ssd_capacity",
		"unaccounted_raw",
		"unreported_space",
	}, strings.Fields(out))

	out, err = run(t, "closure", "pct_used")
	require.NoError(t, err)
	var closure model.Closure
	require.NoError(t, yaml.Unmarshal([]byte(out), &closure))
	assert.Equal(t, "pct_used", closure.Metric)
	assert.Empty(t, closure.Metrics)
	assert.ElementsMatch(t, []string{"ssd_mapped", "ssd_capacity"}, closure.Fields)
}

func TestTableCommand(t *testing.T) {
	isolate(t)

	out, err := run(t, "table")
	require.NoError(t, err)
	assert.Contains(t, strings.Fields(out), "array_capacity")

	out, err = run(t, "table", "array_capacity")
	require.NoError(t, err)
	var report tableReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, "Array Capacity", report.Table.Title)
	assert.Equal(t, model.TableText, report.Table.Type)
	assert.Contains(t, report.Table.Columns, model.Pipe)
	assert.NotContains(t, report.Closure.Metrics, model.Pipe)
	assert.Subset(t, report.Closure.Metrics, []string{"pct_used", "ssd_capacity", "ssd_mapped"})
	assert.Subset(t, report.Closure.Fields, []string{"ssd_capacity", "ssd_mapped"})

	_, err = run(t, "table", "no_such_table")
	var unknown *registry.UnknownTableError
	require.ErrorAs(t, err, &unknown)
}

func TestTableCommand_NoTableIndex(t *testing.T) {
	isolate(t)
	fieldPath, metricPath := writeTables(t, "")

	out, err := run(t, "table", "--field-index", fieldPath, "--metric-index", metricPath)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestRenderCommand(t *testing.T) {
	isolate(t)

	out, err := run(t, "render", "pct_used", "ssd_mapped=512", "ssd_capacity=1024")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "% Used: "), "got %q", out)
	assert.Contains(t, out, "50.00%")

	_, err = run(t, "render", "pct_used", "ssd_mapped")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEY=VALUE")
}

func TestParseRow(t *testing.T) {
	row, err := parseRow([]string{"a=1.5", "b=12 GiB", "c="})
	require.NoError(t, err)
	assert.Equal(t, 1.5, row["a"])
	assert.Equal(t, "12 GiB", row["b"])
	assert.Equal(t, "", row["c"])

	_, err = parseRow([]string{"=3"})
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	isolate(t)

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "export", "--format", "json")
		require.NoError(t, err)

		var doc exportDoc
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		assert.Len(t, doc.Fingerprint, 64)
		assert.NotEmpty(t, doc.Fields)
		assert.Len(t, doc.Order, len(doc.Metrics))
		assert.NotEmpty(t, doc.Tables)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := run(t, "export", "--format", "toml")
		require.Error(t, err)
	})

	t.Run("duckdb catalog", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "catalog.duckdb")
		out, err := run(t, "export", "--duckdb", dbPath)
		require.NoError(t, err)
		assert.Contains(t, out, "catalog written")

		reg, err := registry.Default()
		require.NoError(t, err)

		store, err := duckdb.NewStore(dbPath)
		require.NoError(t, err)
		defer store.Close()

		info, ok, err := store.Info()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, reg.Fingerprint(), info.Fingerprint)
		assert.Equal(t, len(reg.Metrics()), info.Metrics)
		assert.Equal(t, len(reg.Tables()), info.Tables)
	})
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version:    dev")
}
