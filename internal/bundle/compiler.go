// Package bundle compiles the discovered test files into the page bundle the
// browser workers load.
package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/harness"
)

const (
	BundleName = "vizardTests"
	BundleFile = BundleName + ".js"
	EntryFile  = "vizard-entry.js"
	RunnerFile = "runner.html"

	entryPlaceholder   = "{entry}"
	outfilePlaceholder = "{outfile}"
)

// CommandRunner executes the bundler. It returns the combined output.
type CommandRunner func(ctx context.Context, argv []string) ([]byte, error)

// Options configures a Compiler
type Options struct {
	TestFilePath    string
	TestFilePattern string
	TmpDir          string
	Command         []string
	RunnerHTML      string // custom runner page relative to the working directory, empty for the generated one
}

// Compiler discovers test files and bundles them into TmpDir
type Compiler struct {
	logger arbor.ILogger
	opts   Options
	run    CommandRunner
}

// Result describes a finished compilation
type Result struct {
	TestFiles  []string
	EntryPath  string
	BundlePath string
	RunnerPath string // empty when a custom runner page is used
	Duration   time.Duration
}

// NewCompiler creates a compiler that runs the bundler with os/exec
func NewCompiler(logger arbor.ILogger, opts Options) *Compiler {
	return &Compiler{
		logger: logger,
		opts:   opts,
		run:    execCommand,
	}
}

// WithRunner replaces the bundler executor
func (c *Compiler) WithRunner(run CommandRunner) *Compiler {
	c.run = run
	return c
}

// Compile writes the entry module, runs the bundler, then writes the page
// runtime and (unless a custom one is configured) the runner page.
func (c *Compiler) Compile(ctx context.Context) (*Result, error) {
	start := time.Now()
	c.logger.Info().Msg("Compiling tests...")

	if len(c.opts.Command) == 0 {
		return nil, fmt.Errorf("bundler command is empty")
	}
	if err := os.MkdirAll(c.opts.TmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tmp dir: %w", err)
	}

	files, err := FindTestFiles(c.opts.TestFilePath, c.opts.TestFilePattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		c.logger.Warn().
			Str("path", c.opts.TestFilePath).
			Str("pattern", c.opts.TestFilePattern).
			Msg("No test files found")
	}
	c.logger.Debug().Strs("files", files).Msg("Found test files")

	result := &Result{
		TestFiles:  files,
		EntryPath:  filepath.Join(c.opts.TmpDir, EntryFile),
		BundlePath: filepath.Join(c.opts.TmpDir, BundleFile),
	}

	if err := os.WriteFile(result.EntryPath, EntryModule(files), 0644); err != nil {
		return nil, fmt.Errorf("failed to write entry module: %w", err)
	}

	argv := ExpandCommand(c.opts.Command, result.EntryPath, result.BundlePath)
	c.logger.Debug().Strs("command", argv).Str("outfile", result.BundlePath).Msg("Building test bundle")

	if output, err := c.run(ctx, argv); err != nil {
		c.logger.Error().Str("output", string(output)).Msg("Couldn't create test bundle")
		return nil, fmt.Errorf("bundler %s failed: %w", argv[0], err)
	}
	if _, err := os.Stat(result.BundlePath); err != nil {
		return nil, fmt.Errorf("bundler did not produce %s: %w", result.BundlePath, err)
	}

	if err := os.WriteFile(filepath.Join(c.opts.TmpDir, harness.RuntimeFile), harness.RuntimeScript, 0644); err != nil {
		return nil, fmt.Errorf("failed to write page runtime: %w", err)
	}

	if c.opts.RunnerHTML == "" {
		result.RunnerPath = filepath.Join(c.opts.TmpDir, RunnerFile)
		if err := os.WriteFile(result.RunnerPath, []byte(RunnerPage()), 0644); err != nil {
			return nil, fmt.Errorf("failed to write runner page: %w", err)
		}
	} else if err := ValidateRunnerFile(c.opts.RunnerHTML); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	c.logger.Info().
		Int("files", len(files)).
		Str("duration", result.Duration.String()).
		Msg("Compilation complete")

	return result, nil
}

// FindTestFiles returns the files under root whose name ends with pattern, sorted
func FindTestFiles(root, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("test file pattern is empty")
	}

	matches, err := doublestar.Glob(os.DirFS(root), "**/*"+escapeGlob(pattern), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to search %s for test files: %w", root, err)
	}

	files := make([]string, 0, len(matches))
	for _, match := range matches {
		if strings.Contains(match, "node_modules/") {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(match)))
		if err != nil {
			return nil, err
		}
		files = append(files, abs)
	}
	sort.Strings(files)
	return files, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EntryModule returns a module importing every test file in order
func EntryModule(files []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("// Generated by vizard. Do not edit.\n")
	for _, file := range files {
		quoted, _ := json.Marshal(filepath.ToSlash(file))
		fmt.Fprintf(&buf, "import %s;\n", quoted)
	}
	return buf.Bytes()
}

// ExpandCommand substitutes {entry} and {outfile} in every argument
func ExpandCommand(command []string, entry, outfile string) []string {
	replacer := strings.NewReplacer(entryPlaceholder, entry, outfilePlaceholder, outfile)
	argv := make([]string, len(command))
	for i, arg := range command {
		argv[i] = replacer.Replace(arg)
	}
	return argv
}

func execCommand(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), "NODE_ENV="+nodeEnv())
	return cmd.CombinedOutput()
}

func nodeEnv() string {
	if env := os.Getenv("NODE_ENV"); env != "" {
		return env
	}
	return "development"
}
