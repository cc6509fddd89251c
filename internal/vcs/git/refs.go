package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/vault2git/internal/vcs"
)

// CurrentRef returns the current branch name. On an unborn branch
// this is the branch the first commit will create.
func (g *Git) CurrentRef(ctx context.Context) (string, error) {
	lines, err := g.Exec(ctx, "symbolic-ref", "--short", "--quiet", "HEAD")
	if err != nil {
		if errors.Is(err, vcs.ErrCommandFailed) {
			return "", vcs.ErrDetached
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}

	return vcs.FirstLine(vcs.NonEmpty(lines)), nil
}

// RefExists returns true if the named branch exists
func (g *Git) RefExists(ctx context.Context, name string) bool {
	_, err := g.Exec(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// Checkout forcibly switches the working tree to the named branch.
// With orphan set, a new branch without history is started instead.
func (g *Git) Checkout(ctx context.Context, name string, orphan bool) error {
	args := []string{"checkout", "--quiet", "--force"}
	if orphan {
		args = append(args, "--orphan")
	}
	args = append(args, name)

	if _, err := g.Exec(ctx, args...); err != nil {
		return fmt.Errorf("git checkout %s failed: %w", name, err)
	}
	return nil
}

// CommitMessage returns the full message of the commit offset steps
// behind ref along first parents. vcs.ErrRefNotFound means the history
// is shorter than offset.
func (g *Git) CommitMessage(ctx context.Context, ref string, offset int) (string, error) {
	rev := fmt.Sprintf("%s~%d", ref, offset)

	if _, err := g.Exec(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}"); err != nil {
		if errors.Is(err, vcs.ErrCommandFailed) {
			return "", fmt.Errorf("%s: %w", rev, vcs.ErrRefNotFound)
		}
		return "", err
	}

	// format: suppresses the terminator git adds after the raw body
	lines, err := g.Exec(ctx, "log", "-1", "--format=format:%B", rev)
	if err != nil {
		return "", fmt.Errorf("git log %s failed: %w", rev, err)
	}

	return vcs.JoinOutput(lines), nil
}

// TagExists returns true if the named tag exists
func (g *Git) TagExists(ctx context.Context, name string) bool {
	_, err := g.Exec(ctx, "show-ref", "--verify", "--quiet", "refs/tags/"+name)
	return err == nil
}

// CreateTag creates an annotated tag on the target commit
func (g *Git) CreateTag(ctx context.Context, opts vcs.TagOptions) error {
	args := []string{"tag", "-a", "-m", opts.Message, opts.Name}
	if opts.Target != "" {
		args = append(args, opts.Target)
	}

	if _, err := g.Exec(ctx, args...); err != nil {
		return fmt.Errorf("git tag %s failed: %w", opts.Name, err)
	}
	return nil
}
