package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFiles lists the config files probed in the working directory, in order
var DefaultConfigFiles = []string{
	"vizard.toml",
	"vizard.yaml",
	"vizard.yml",
	"vizard.json",
	".vizardrc",
}

// Config represents the runner configuration
type Config struct {
	Concurrency           int             `toml:"concurrency" yaml:"concurrency" json:"concurrentLimit" validate:"min=0"`
	DefaultViewportWidth  int             `toml:"default_viewport_width" yaml:"default_viewport_width" json:"defaultViewportWidth" validate:"gt=0"`
	DefaultViewportHeight int             `toml:"default_viewport_height" yaml:"default_viewport_height" json:"defaultViewportHeight" validate:"gt=0"`
	OutputPath            string          `toml:"output_path" yaml:"output_path" json:"outputPath" validate:"required"`
	ReportDir             string          `toml:"report_dir" yaml:"report_dir" json:"testReportOutputDir" validate:"required"`
	ReportFile            string          `toml:"report_file" yaml:"report_file" json:"testReportFile" validate:"required"`
	TestFilePath          string          `toml:"test_file_path" yaml:"test_file_path" json:"testFilePath" validate:"required"`
	TestFilePattern       string          `toml:"test_file_pattern" yaml:"test_file_pattern" json:"testFilePattern" validate:"required"`
	TestRunnerHTML        string          `toml:"test_runner_html" yaml:"test_runner_html" json:"testRunnerHtml"`
	TmpDir                string          `toml:"tmp_dir" yaml:"tmp_dir" json:"tmpDir" validate:"required"`
	Browser               BrowserConfig   `toml:"browser" yaml:"browser" json:"browser"`
	Scheduler             SchedulerConfig `toml:"scheduler" yaml:"scheduler" json:"scheduler"`
	Diff                  DiffConfig      `toml:"diff" yaml:"diff" json:"pixelMatchOptions"`
	Server                ServerConfig    `toml:"server" yaml:"server" json:"server"`
	Bundler               BundlerConfig   `toml:"bundler" yaml:"bundler" json:"bundler"`
	History               HistoryConfig   `toml:"history" yaml:"history" json:"history"`
	Logging               LoggingConfig   `toml:"logging" yaml:"logging" json:"logging"`
}

// BrowserConfig selects and tunes the browser worker driver
type BrowserConfig struct {
	Driver         string   `toml:"driver" yaml:"driver" json:"driver" validate:"oneof=chromedp playwright"`
	ExecutablePath string   `toml:"executable_path" yaml:"executable_path" json:"chromeExecutablePath"`
	Headless       bool     `toml:"headless" yaml:"headless" json:"headless"`
	NoSandbox      bool     `toml:"no_sandbox" yaml:"no_sandbox" json:"noSandbox"`
	JPEGQuality    int      `toml:"jpeg_quality" yaml:"jpeg_quality" json:"jpegQuality" validate:"min=1,max=100"`
	StartupTimeout Duration `toml:"startup_timeout" yaml:"startup_timeout" json:"startupTimeout"`
}

// SchedulerConfig tunes chunking and hang recovery
type SchedulerConfig struct {
	ChunkSize         int      `toml:"chunk_size" yaml:"chunk_size" json:"chunkSize" validate:"min=1"`
	SlowTestThreshold Duration `toml:"slow_test_threshold" yaml:"slow_test_threshold" json:"slowTestThreshold"`
	Retries           int      `toml:"retries" yaml:"retries" json:"retries" validate:"min=0"`
	ChunkTimeout      Duration `toml:"chunk_timeout" yaml:"chunk_timeout" json:"chunkTimeout"` // 0 = chunk_size * slow_test_threshold
}

// DiffConfig holds the pixel comparison tolerance
type DiffConfig struct {
	Threshold float64 `toml:"threshold" yaml:"threshold" json:"threshold" validate:"gte=0,lte=1"`
	IncludeAA bool    `toml:"include_aa" yaml:"include_aa" json:"includeAA"`
}

type ServerConfig struct {
	Port              int      `toml:"port" yaml:"port" json:"port" validate:"min=0,max=65535"`
	LoadRetryInterval Duration `toml:"load_retry_interval" yaml:"load_retry_interval" json:"loadRetryInterval"`
	LoadTimeout       Duration `toml:"load_timeout" yaml:"load_timeout" json:"loadTimeout"`
}

// BundlerConfig holds the command used to bundle test files.
// {entry} and {outfile} are substituted before execution.
type BundlerConfig struct {
	Command []string `toml:"command" yaml:"command" json:"command" validate:"min=1"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `toml:"path" yaml:"path" json:"path"`
	Keep    int    `toml:"keep" yaml:"keep" json:"keep" validate:"min=0"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" yaml:"level" json:"level" validate:"oneof=trace debug info warn error fatal"`
	Output []string `toml:"output" yaml:"output" json:"output"` // "stdout", "file"
}

// Duration wraps time.Duration so config files can use "7s" style strings
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// UnmarshalJSON accepts either a duration string or a number of milliseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms float64
	if err := json.Unmarshal(data, &ms); err == nil {
		d.Duration = time.Duration(ms * float64(time.Millisecond))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	return &Config{
		Concurrency:           1,
		DefaultViewportWidth:  1024,
		DefaultViewportHeight: 1080,
		OutputPath:            filepath.Join(cwd, "tmp"),
		ReportDir:             filepath.Join(cwd, "tmp", "report"),
		ReportFile:            "vizard-report.xml",
		TestFilePath:          cwd,
		TestFilePattern:       ".viz.js",
		TmpDir:                filepath.Join(cwd, ".vizard"),
		Browser: BrowserConfig{
			Driver:         "chromedp",
			Headless:       true,
			NoSandbox:      true,
			JPEGQuality:    80,
			StartupTimeout: Duration{30 * time.Second},
		},
		Scheduler: SchedulerConfig{
			ChunkSize:         20, // Reload pages at most every 20 tests
			SlowTestThreshold: Duration{7 * time.Second},
			Retries:           3,
		},
		Diff: DiffConfig{
			Threshold: 0,
			IncludeAA: false,
		},
		Server: ServerConfig{
			Port:              9009,
			LoadRetryInterval: Duration{500 * time.Millisecond},
			LoadTimeout:       Duration{30 * time.Second},
		},
		Bundler: BundlerConfig{
			Command: []string{"npx", "esbuild", "{entry}", "--bundle", "--format=iife", "--outfile={outfile}"},
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(cwd, ".vizard-history"),
			Keep:    50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// DiscoverConfigFiles returns the config files present in dir, in probe order
func DiscoverConfigFiles(dir string) []string {
	var found []string
	for _, name := range DefaultConfigFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			found = append(found, path)
		}
	}
	return found
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files. The format is chosen by file extension.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := unmarshalConfig(path, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func unmarshalConfig(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, config)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		// vizard.json and .vizardrc are JSON
		return json.Unmarshal(data, config)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if concurrency := os.Getenv("VIZARD_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Concurrency = c
		}
	}
	if outputPath := os.Getenv("VIZARD_OUTPUT_PATH"); outputPath != "" {
		config.OutputPath = outputPath
	}
	if reportDir := os.Getenv("VIZARD_REPORT_DIR"); reportDir != "" {
		config.ReportDir = reportDir
	}
	if driver := os.Getenv("VIZARD_BROWSER_DRIVER"); driver != "" {
		config.Browser.Driver = driver
	}
	if chromePath := os.Getenv("VIZARD_CHROME_PATH"); chromePath != "" {
		config.Browser.ExecutablePath = chromePath
	}
	if level := os.Getenv("VIZARD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if historyPath := os.Getenv("VIZARD_HISTORY_PATH"); historyPath != "" {
		config.History.Path = historyPath
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, verbose, silent bool) {
	// --verbose wins over --silent
	if verbose {
		config.Logging.Level = "debug"
	} else if silent {
		config.Logging.Level = "error"
	}
}

// Validate checks the resolved configuration
func (c *Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// LaneCount returns the number of browser workers to launch. 0 means 1.
func (c *Config) LaneCount() int {
	if c.Concurrency < 1 {
		return 1
	}
	return c.Concurrency
}

// ChunkTimeout returns the hang-detection timeout for one chunk
func (c *Config) ChunkTimeout() time.Duration {
	if c.Scheduler.ChunkTimeout.Duration > 0 {
		return c.Scheduler.ChunkTimeout.Duration
	}
	return time.Duration(c.Scheduler.ChunkSize) * c.Scheduler.SlowTestThreshold.Duration
}

// ReportPath returns the full path of the machine-readable report
func (c *Config) ReportPath() string {
	return filepath.Join(c.ReportDir, c.ReportFile)
}
