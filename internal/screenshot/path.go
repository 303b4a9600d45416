// Package screenshot maps permutations to their on-disk artifact paths.
//
// Layout: <outputRoot>/<golden|tested|diff>/<suite>/<test>/<width>x<height>.jpeg
// Failure bundles: <reportRoot>/failing-screenshots/<role>/<suite>/<test>/<width>x<height>.jpeg
package screenshot

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ternarybob/vizard/internal/models"
)

const (
	// Extension of every screenshot artifact
	Extension = ".jpeg"

	// FailingDir is the report sub-directory holding failure bundles
	FailingDir = "failing-screenshots"
)

// Resolver resolves artifact paths under one output root
type Resolver struct {
	OutputRoot    string
	DefaultWidth  int
	DefaultHeight int
}

// NewResolver creates a resolver; zero dimensions fall back to the defaults
func NewResolver(outputRoot string, defaultWidth, defaultHeight int) *Resolver {
	return &Resolver{
		OutputRoot:    outputRoot,
		DefaultWidth:  defaultWidth,
		DefaultHeight: defaultHeight,
	}
}

// RoleRoot returns the directory holding every artifact of a role
func (r *Resolver) RoleRoot(role models.Role) string {
	return filepath.Join(r.OutputRoot, string(role))
}

// Path returns the artifact path of one permutation
func (r *Resolver) Path(role models.Role, suiteName, testName string, width, height int) string {
	if width == 0 {
		width = r.DefaultWidth
	}
	if height == 0 {
		height = r.DefaultHeight
	}
	return filepath.Join(r.RoleRoot(role), suiteName, testName, FileName(width, height))
}

// PermutationPath is Path for a Permutation
func (r *Resolver) PermutationPath(role models.Role, p models.Permutation) string {
	return r.Path(role, p.SuiteName, p.TestName, p.ViewportWidth, p.ViewportHeight)
}

// FileName returns <width>x<height>.jpeg
func FileName(width, height int) string {
	return fmt.Sprintf("%dx%d%s", width, height, Extension)
}

// FailurePath returns where a failing permutation's artifact is bundled in the report
func FailurePath(reportRoot string, role models.Role, p models.Permutation) string {
	return filepath.Join(reportRoot, FailingDir, string(role), p.SuiteName, p.TestName, FileName(p.ViewportWidth, p.ViewportHeight))
}

// ParseArtifactPath decodes the trailing <suite>/<test>/<w>x<h>.jpeg segments of
// an artifact path. Both slash and OS separators are accepted.
func ParseArtifactPath(artifactPath string) (models.Permutation, error) {
	segments := strings.Split(path.Clean(filepath.ToSlash(artifactPath)), "/")
	if len(segments) < 3 {
		return models.Permutation{}, fmt.Errorf("artifact path %q has fewer than 3 segments", artifactPath)
	}
	segments = segments[len(segments)-3:]

	name := segments[2]
	if !strings.HasSuffix(name, Extension) {
		return models.Permutation{}, fmt.Errorf("artifact path %q is not a %s file", artifactPath, Extension)
	}
	dims := strings.SplitN(strings.TrimSuffix(name, Extension), "x", 2)
	if len(dims) != 2 {
		return models.Permutation{}, fmt.Errorf("artifact name %q is not <width>x<height>", name)
	}
	width, err := strconv.Atoi(dims[0])
	if err != nil {
		return models.Permutation{}, fmt.Errorf("invalid width in %q: %w", name, err)
	}
	height, err := strconv.Atoi(dims[1])
	if err != nil {
		return models.Permutation{}, fmt.Errorf("invalid height in %q: %w", name, err)
	}

	return models.Permutation{
		SuiteName:      segments[0],
		TestName:       segments[1],
		ViewportWidth:  width,
		ViewportHeight: height,
	}, nil
}
