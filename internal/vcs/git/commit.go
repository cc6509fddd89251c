package git

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/vault2git/internal/vcs"
)

// AddAll stages every change in the working tree, including files
// matched by ignore rules.
func (g *Git) AddAll(ctx context.Context) error {
	if _, err := g.Exec(ctx, "add", "--force", "--all", "."); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// HasChanges returns true if there are uncommitted changes
func (g *Git) HasChanges(ctx context.Context) (bool, error) {
	lines, err := g.Exec(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}

	return len(vcs.NonEmpty(lines)) > 0, nil
}

// Commit records all tracked changes. The message is passed on stdin
// so it survives any characters the shell would mangle.
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) (vcs.CommitResult, error) {
	args := []string{"commit", "--all", "--cleanup=whitespace"}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if !opts.Date.IsZero() {
		args = append(args, "--date="+opts.Date.Format(time.RFC3339))
	}
	if opts.Author != "" {
		args = append(args, "--author="+opts.Author)
	}
	args = append(args, "-F", "-")

	res, err := g.runner.Run(ctx, opts.Message, args...)
	if err != nil {
		return vcs.CommitResult{Elapsed: res.Elapsed}, fmt.Errorf("git commit failed: %w", err)
	}

	return vcs.CommitResult{Output: res.Lines, Elapsed: res.Elapsed}, nil
}
