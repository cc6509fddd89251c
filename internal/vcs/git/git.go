// Package git provides a git implementation of the vcs.VCS interface.
//
// All commands run through a vcs.Runner rooted at the repository's top
// level directory, so the configured git command line (including any
// leading "-c key=value" options) applies to every invocation.
package git

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/steveyegge/vault2git/internal/vcs"
)

// MinVersion is the oldest git release with the porcelain and
// commit-from-stdin behavior the migration relies on.
const MinVersion = "1.7.2"

// Git implements the VCS interface for git repositories.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string

	// vcsDir is the .git directory path
	vcsDir string

	runner *vcs.Runner
}

// New creates a new Git VCS instance for the given repository.
// The path should be somewhere within a git repository. A nil runner
// invokes plain "git".
func New(path string, runner *vcs.Runner) (*Git, error) {
	if runner == nil {
		r, err := vcs.NewRunner(vcs.RunnerConfig{})
		if err != nil {
			return nil, err
		}
		runner = r
	}

	g := &Git{}
	if err := g.detect(path, runner); err != nil {
		return nil, err
	}
	g.runner = runner.WithDir(g.repoRoot)

	return g, nil
}

// Name returns the VCS type (git)
func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// Version returns the git version string
func (g *Git) Version(ctx context.Context) (string, error) {
	lines, err := g.Exec(ctx, "version")
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	return ParseVersion(vcs.FirstLine(lines)), nil
}

// ParseVersion extracts the version from "git version 2.39.0" output.
func ParseVersion(line string) string {
	return strings.TrimPrefix(strings.TrimSpace(line), "git version ")
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() (string, error) {
	if g.repoRoot == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.repoRoot, nil
}

// VCSDir returns the .git directory path
func (g *Git) VCSDir() (string, error) {
	if g.vcsDir == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.vcsDir, nil
}

// GC lets git decide whether the object store needs housekeeping.
func (g *Git) GC(ctx context.Context) error {
	if _, err := g.Exec(ctx, "gc", "--auto"); err != nil {
		return fmt.Errorf("git gc failed: %w", err)
	}
	return nil
}

// Finalize refreshes the auxiliary info files used by dumb transports.
func (g *Git) Finalize(ctx context.Context) error {
	if _, err := g.Exec(ctx, "update-server-info"); err != nil {
		return fmt.Errorf("git update-server-info failed: %w", err)
	}
	return nil
}

// Exec executes a raw git command and returns its output lines
func (g *Git) Exec(ctx context.Context, args ...string) ([]string, error) {
	res, err := g.runner.Run(ctx, "", args...)
	if err != nil {
		return nil, err
	}
	return res.Lines, nil
}

// CheckVersion returns vcs.ErrVCSNotAvailable if version is older than
// min. Versions carrying vendor suffixes such as "2.39.2.windows.1" are
// compared on their first three numeric components.
func CheckVersion(version, min string) error {
	have := canonicalVersion(version)
	want := canonicalVersion(min)
	if have == "" {
		return fmt.Errorf("%w: unrecognized git version %q", vcs.ErrVCSNotAvailable, version)
	}
	if semver.Compare(have, want) < 0 {
		return fmt.Errorf("%w: git %s is older than %s", vcs.ErrVCSNotAvailable, version, min)
	}
	return nil
}

// canonicalVersion turns "2.39.2.windows.1" into "v2.39.2".
func canonicalVersion(version string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(version), func(r rune) bool {
		return r == '.' || r == '-' || r == ' '
	})

	var nums []string
	for _, f := range fields {
		if f == "" || strings.Trim(f, "0123456789") != "" {
			break
		}
		nums = append(nums, f)
		if len(nums) == 3 {
			break
		}
	}
	if len(nums) == 0 {
		return ""
	}

	v := semver.Canonical("v" + strings.Join(nums, "."))
	return v
}
