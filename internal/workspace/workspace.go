// Package workspace prepares the output tree before a run.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/screenshot"
)

// CleanOptions selects what Clean empties besides tested/ and diff/
type CleanOptions struct {
	SkipCompile bool // keep the tmp dir and its compiled bundle
	ClearGolden bool
}

// Clean empties tested/ and diff/, the tmp dir unless compilation is
// skipped, and golden/ when asked. Missing directories are created.
func Clean(logger arbor.ILogger, resolver *screenshot.Resolver, tmpDir string, opts CleanOptions) error {
	dirs := []string{
		resolver.RoleRoot(models.RoleTested),
		resolver.RoleRoot(models.RoleDiff),
	}
	if !opts.SkipCompile {
		dirs = append(dirs, tmpDir)
	}
	if opts.ClearGolden {
		dirs = append(dirs, resolver.RoleRoot(models.RoleGolden))
	}

	for _, dir := range dirs {
		if err := emptyDir(dir); err != nil {
			return err
		}
		logger.Debug().Str("dir", dir).Msg("Emptied directory")
	}
	return nil
}

// emptyDir removes the contents of dir, keeping dir itself
func emptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clean %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureDirs creates the golden and tested directories of every permutation
func EnsureDirs(logger arbor.ILogger, resolver *screenshot.Resolver, groups []models.ViewportGroup) error {
	logger.Info().Msg("Preparing output directories for screenshots")

	created := make(map[string]struct{})
	for _, perm := range models.Permutations(groups) {
		for _, role := range []models.Role{models.RoleGolden, models.RoleTested} {
			dir := filepath.Dir(resolver.PermutationPath(role, perm))
			if _, ok := created[dir]; ok {
				continue
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
			created[dir] = struct{}{}
		}
	}
	return nil
}
