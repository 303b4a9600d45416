package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 1, cfg.LaneCount())
	assert.Equal(t, 1024, cfg.DefaultViewportWidth)
	assert.Equal(t, 1080, cfg.DefaultViewportHeight)
	assert.Equal(t, ".viz.js", cfg.TestFilePattern)
	assert.Equal(t, 140*time.Second, cfg.ChunkTimeout())
	assert.Equal(t, "vizard-report.xml", filepath.Base(cfg.ReportPath()))
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFiles_TOML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "vizard.toml", `
concurrency = 4
default_viewport_width = 800

[scheduler]
chunk_size = 10
slow_test_threshold = "2s"

[diff]
threshold = 0.1
include_aa = true
`)

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.LaneCount())
	assert.Equal(t, 800, cfg.DefaultViewportWidth)
	assert.Equal(t, 1080, cfg.DefaultViewportHeight)
	assert.Equal(t, 20*time.Second, cfg.ChunkTimeout())
	assert.Equal(t, 0.1, cfg.Diff.Threshold)
	assert.True(t, cfg.Diff.IncludeAA)
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	dir := t.TempDir()
	base := writeConfig(t, dir, "base.yaml", "concurrency: 2\noutput_path: /out\n")
	override := writeConfig(t, dir, "override.json", `{"concurrentLimit": 3, "scheduler": {"chunkTimeout": 1500}}`)

	cfg, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, "/out", cfg.OutputPath)
	assert.Equal(t, 1500*time.Millisecond, cfg.ChunkTimeout())
}

func TestLoadFromFiles_Vizardrc(t *testing.T) {
	path := writeConfig(t, t.TempDir(), ".vizardrc", `{"testFilePattern": ".visual.js", "pixelMatchOptions": {"threshold": 0.2}}`)

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, ".visual.js", cfg.TestFilePattern)
	assert.Equal(t, 0.2, cfg.Diff.Threshold)
}

func TestLoadFromFiles_Errors(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := writeConfig(t, t.TempDir(), "vizard.toml", "concurrency = [")
	_, err = LoadFromFiles(bad)
	assert.Error(t, err)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("VIZARD_CONCURRENCY", "6")
	t.Setenv("VIZARD_BROWSER_DRIVER", "playwright")
	t.Setenv("VIZARD_REPORT_DIR", "/reports")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Concurrency)
	assert.Equal(t, "playwright", cfg.Browser.Driver)
	assert.Equal(t, filepath.Join("/reports", "vizard-report.xml"), cfg.ReportPath())
}

func TestApplyFlagOverrides(t *testing.T) {
	tests := []struct {
		name            string
		verbose, silent bool
		want            string
	}{
		{name: "none", want: "info"},
		{name: "verbose", verbose: true, want: "debug"},
		{name: "silent", silent: true, want: "error"},
		{name: "verbose wins", verbose: true, silent: true, want: "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			ApplyFlagOverrides(cfg, tt.verbose, tt.silent)
			assert.Equal(t, tt.want, cfg.Logging.Level)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Browser.Driver = "firefox"
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Diff.Threshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Bundler.Command = nil
	assert.Error(t, cfg.Validate())
}

func TestValidate_ZeroConcurrencyClampsToOneLane(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Concurrency = 0

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.LaneCount())

	cfg.Concurrency = -1
	assert.Error(t, cfg.Validate())
}

func TestDiscoverConfigFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".vizardrc", "{}")
	writeConfig(t, dir, "vizard.toml", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "vizard.json"), 0755))

	found := DiscoverConfigFiles(dir)
	assert.Equal(t, []string{filepath.Join(dir, "vizard.toml"), filepath.Join(dir, ".vizardrc")}, found)
}
