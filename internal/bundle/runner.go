package bundle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/vizard/internal/harness"
)

// RunnerPage returns the generated runner page. The runtime must load
// before the bundle so registration calls find describe/it.
func RunnerPage() string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>vizard</title>
<style>html, body { margin: 0; padding: 0; }</style>
</head>
<body>
<div id="%s"></div>
<script src="%s"></script>
<script src="%s"></script>
</body>
</html>
`, harness.TargetRootID, harness.RuntimeFile, BundleFile)
}

// ValidateRunner checks that a runner page has the target root and loads the runtime
func ValidateRunner(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("failed to parse runner page: %w", err)
	}

	if doc.Find("#"+harness.TargetRootID).Length() == 0 {
		return fmt.Errorf("runner page has no #%s element", harness.TargetRootID)
	}

	runtime := doc.Find(fmt.Sprintf(`script[src$="%s"]`, harness.RuntimeFile))
	if runtime.Length() == 0 {
		return fmt.Errorf("runner page does not load %s", harness.RuntimeFile)
	}
	return nil
}

// ValidateRunnerFile validates the runner page at path
func ValidateRunnerFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open runner page: %w", err)
	}
	defer f.Close()

	if err := ValidateRunner(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Site is what the static server serves and the page the workers open
type Site struct {
	Root       string
	RunnerPath string // URL path relative to Root
}

// SiteFor returns the generated runner under tmpDir, or the custom runner
// page served from the working directory.
func SiteFor(tmpDir, runnerHTML string) (Site, error) {
	if runnerHTML == "" {
		return Site{Root: tmpDir, RunnerPath: RunnerFile}, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Site{}, err
	}
	rel := runnerHTML
	if filepath.IsAbs(runnerHTML) {
		if rel, err = filepath.Rel(cwd, runnerHTML); err != nil {
			return Site{}, err
		}
	}
	return Site{Root: cwd, RunnerPath: filepath.ToSlash(rel)}, nil
}

// URL joins the server base URL and the runner path
func (s Site) URL(base string) string {
	return base + "/" + s.RunnerPath
}
