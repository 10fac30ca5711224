package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repgap/internal/gapanalysis"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 1.0, cfg.Analysis.Band)
	assert.Equal(t, 10.0, cfg.Analysis.DefaultTarget)
	assert.True(t, cfg.Analysis.ExcludeOverAttributed)
	assert.EqualValues(t, DefaultMaxUploadBytes, cfg.Analysis.MaxUploadBytes)
	assert.Equal(t, "repgap", cfg.Telemetry.ServiceName)
	assert.NotEmpty(t, cfg.Paths.ExecutableDir)
}

func TestLoadFileEnvOverrides(t *testing.T) {
	t.Setenv("REPGAP_SERVER_PORT", "9090")
	t.Setenv("REPGAP_ANALYSIS_BAND", "2.5")
	t.Setenv("REPGAP_ANALYSIS_EXCLUDE_OVER_ATTRIBUTED", "false")
	t.Setenv("REPGAP_LOGGING_LEVEL", "debug")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2.5, cfg.Analysis.Band)
	assert.False(t, cfg.Analysis.ExcludeOverAttributed)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFileMergesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 7070
analysis:
  band: 0.5
  exclude_over_attributed: false
  catalog_file: /etc/repgap/catalog.yaml
telemetry:
  metrics_enabled: false
`)
	t.Setenv("REPGAP_SERVER_PORT", "6060")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port, "env wins over file")
	assert.Equal(t, 0.5, cfg.Analysis.Band)
	assert.False(t, cfg.Analysis.ExcludeOverAttributed, "explicit false in file is honoured")
	assert.Equal(t, "/etc/repgap/catalog.yaml", cfg.Analysis.CatalogFile)
	assert.False(t, cfg.Telemetry.MetricsEnabled)
	assert.Equal(t, 10.0, cfg.Analysis.DefaultTarget, "keys absent from file keep defaults")
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad port", env: map[string]string{"REPGAP_SERVER_PORT": "70000"}},
		{name: "negative band", env: map[string]string{"REPGAP_ANALYSIS_BAND": "-1"}},
		{name: "default target above 100", env: map[string]string{"REPGAP_ANALYSIS_DEFAULT_TARGET": "120"}},
		{name: "zero upload limit", env: map[string]string{"REPGAP_ANALYSIS_MAX_UPLOAD_BYTES": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile("")
			assert.Error(t, err)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMergeConfigs(t *testing.T) {
	file := Config{Server: ServerConfig{Port: 1}, Logging: LoggingConfig{Level: "warn"}}
	env := *Default()

	merged := mergeConfigs(file, env,
		map[string]bool{"SERVER_PORT": true, "LOGGING_LEVEL": true},
		func(name string) bool { return name == "LOGGING_LEVEL" })

	assert.Equal(t, 1, merged.Server.Port)
	assert.Equal(t, "info", merged.Logging.Level)
}

func TestGetDirs(t *testing.T) {
	cfg := Default()
	cfg.Paths.ExecutableDir = "/opt/repgap"

	assert.Equal(t, filepath.Join("/opt/repgap", "logs"), cfg.GetLogsDir())
	assert.Equal(t, filepath.Join("/opt/repgap", "exports"), cfg.GetExportsDir())

	cfg.Paths.ExportsDir = "/var/exports"
	assert.Equal(t, "/var/exports", cfg.GetExportsDir())
}

func TestDefaultCatalog(t *testing.T) {
	catalog, err := LoadCatalog("", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"male", "female", "african_american", "hispanic", "asian", "caucasian",
		"native_american", "pacific_islander", "other", "lgbt", "legacy", "physically_challenged",
	}, catalog.Names())
	assert.Equal(t, gapanalysis.Target{Percent: 18}, catalog.TargetFor("hispanic"))
	assert.Equal(t, "AA", catalog.ShortLabel("african_american"))
	assert.Empty(t, catalog.IndependentFields())
	require.Len(t, catalog.Groups(), 1)
	assert.Equal(t, catalog.Names(), catalog.Groups()[0].Fields)
	assert.Empty(t, catalog.FieldsWithoutTarget())

	reg, err := gapanalysis.NewRegistry(catalog)
	require.NoError(t, err)
	ref, ok := reg.Resolve("White")
	require.True(t, ok)
	assert.Equal(t, "caucasian", ref.Name)
}

func TestDefaultCatalogChecksWholeRowSum(t *testing.T) {
	catalog, err := LoadCatalog("", 10)
	require.NoError(t, err)
	engine, err := gapanalysis.NewEngine(catalog)
	require.NoError(t, err)

	table := gapanalysis.RawTable{
		Headers: []string{"EntityDesc", "Grade", "Component", "Spec Count", "Male", "Female", "Hispanic", "LGBT"},
		Rows: []gapanalysis.RawRow{
			{"EntityDesc": "Fractions", "Grade": "3", "Component": "Lesson", "Spec Count": 100,
				"Male": 50, "Female": 50, "Hispanic": 18, "LGBT": 2},
		},
	}

	report, err := engine.Analyze(context.Background(), table, gapanalysis.Options{})
	require.NoError(t, err)

	var over []gapanalysis.HealthIssue
	for _, is := range report.Health {
		if is.Code == gapanalysis.CodeOverAttribution {
			over = append(over, is)
		}
	}
	require.Len(t, over, 1)
	assert.Equal(t, gapanalysis.SeverityError, over[0].Severity)
	assert.Contains(t, over[0].Message, "demographic sum exceeds Spec Count (120 > 100)")
	assert.Equal(t, 0, report.Summary.AnalyzedRows)
	assert.Equal(t, 1, report.Summary.ExcludedRows)
	assert.Empty(t, report.Aggregates)
}

func TestParseCatalog(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, c *gapanalysis.Catalog)
	}{
		{
			name: "fallback default target",
			yaml: `
fields:
  - name: female
    label: Female
  - name: male
    label: Male
    target: 45
`,
			check: func(t *testing.T, c *gapanalysis.Catalog) {
				assert.Equal(t, gapanalysis.Target{Percent: 12, IsDefault: true}, c.TargetFor("female"))
				assert.Equal(t, 45.0, c.TargetFor("male").Percent)
			},
		},
		{
			name: "file default target",
			yaml: `
default_target: 5
fields:
  - name: other
    label: Other
`,
			check: func(t *testing.T, c *gapanalysis.Catalog) {
				assert.Equal(t, 5.0, c.DefaultTarget())
			},
		},
		{name: "no fields", yaml: "default_target: 5\n", wantErr: true},
		{name: "missing label", yaml: "fields:\n  - name: a\n", wantErr: true},
		{name: "target out of range", yaml: "fields:\n  - name: a\n    label: A\n    target: 140\n", wantErr: true},
		{name: "unknown key", yaml: "fields:\n  - name: a\n    label: A\n    colour: red\n", wantErr: true},
		{name: "duplicate names", yaml: "fields:\n  - name: a\n    label: A\n  - name: a\n    label: B\n", wantErr: true},
		{name: "alias collides with required field", yaml: "fields:\n  - name: a\n    label: A\n    aliases: [Total]\n", wantErr: true},
		{name: "malformed yaml", yaml: "fields: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCatalog([]byte(tt.yaml), 12)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := writeFile(t, "catalog.yaml", "fields:\n  - name: veteran\n    label: Veteran\n    target: 4\n")

	c, err := LoadCatalog(path, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"veteran"}, c.Names())

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"), 10)
	assert.Error(t, err)
}
