package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyegge/vault2git/internal/vcs"
)

// detect populates git repository information
func (g *Git) detect(path string, runner *vcs.Runner) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	res, err := runner.WithDir(absPath).Run(context.Background(), "", "rev-parse", "--git-dir", "--show-toplevel")
	if err != nil {
		if vcs.IsFatal(err) {
			return err
		}
		return vcs.ErrNotInVCS
	}

	lines := vcs.NonEmpty(res.Lines)
	if len(lines) < 2 {
		return fmt.Errorf("unexpected git rev-parse output: got %d lines, expected 2", len(lines))
	}

	gitDir := strings.TrimSpace(lines[0])
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(absPath, gitDir)
	}

	g.vcsDir = gitDir
	g.repoRoot = normalizeRepoRoot(lines[1])

	return nil
}

// normalizeRepoRoot normalizes the repository root path
func normalizeRepoRoot(path string) string {
	path = filepath.FromSlash(path)

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return path
}
