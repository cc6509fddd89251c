package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/vault2git/internal/source"
	"github.com/steveyegge/vault2git/internal/vcs"
)

// resumePoint is the outcome of the backward provenance scan.
type resumePoint struct {
	// Revision is the last migrated source revision, or 0
	Revision int64

	// Searched is how many commits were inspected
	Searched int

	// Exhausted means the branch history ended before the limit
	Exhausted bool

	// Found reports a matching provenance tag
	Found bool
}

// scanResume walks back from the tip of branch for at most limit
// commits and returns the revision of the most recent provenance tag
// recorded for path. Tags for other paths are skipped unless
// LooseResume is set.
func (m *Migration) scanResume(ctx context.Context, branch, path string, limit int) (resumePoint, error) {
	var rp resumePoint

	for depth := 0; depth < limit; depth++ {
		if err := ctx.Err(); err != nil {
			return rp, err
		}

		message, err := m.vcs.CommitMessage(ctx, branch, depth)
		if errors.Is(err, vcs.ErrRefNotFound) {
			rp.Exhausted = true
			return rp, nil
		}
		if err != nil {
			return rp, fmt.Errorf("failed to read %s~%d: %w", branch, depth, err)
		}
		rp.Searched++

		p, ok := ParseProvenance(message)
		if !ok || p.Revision <= 0 {
			continue
		}
		if !m.config.LooseResume && !source.SamePath(p.Path, path) {
			m.logger.Printf("Ignoring %s on %s~%d: recorded for %s, not %s", p, branch, depth, p.Path, path)
			continue
		}

		rp.Revision = p.Revision
		rp.Found = true
		return rp, nil
	}

	return rp, nil
}

// resolveResume returns the revision a branch pass continues after.
// An unsuccessful search starts from the first revision only once the
// operator agrees.
func (m *Migration) resolveResume(ctx context.Context, b BranchMapping) (int64, error) {
	if m.config.RestartLimit <= 0 {
		return 0, nil
	}

	rp, err := m.scanResume(ctx, b.Branch, m.provenancePath(b), m.config.RestartLimit)
	if err != nil {
		return 0, err
	}
	if rp.Found {
		m.logger.Printf("Branch %s continues after revision %d", b.Branch, rp.Revision)
		return rp.Revision, nil
	}

	if rp.Exhausted {
		m.logger.Printf("Searched all %d commits of %s and found no restart point", rp.Searched, b.Branch)
	} else {
		m.logger.Printf("Restart limit of %d commits exceeded on %s", m.config.RestartLimit, b.Branch)
	}

	ok, err := m.confirmFromStart(ctx, b.Branch, rp.Searched)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s: %w", b.Branch, ErrResumeDeclined)
	}
	return 0, nil
}

func (m *Migration) confirmFromStart(ctx context.Context, branch string, searched int) (bool, error) {
	if m.config.AssumeFromStart {
		return true, nil
	}
	if m.config.Operator == nil {
		return false, nil
	}
	return m.config.Operator.ConfirmFromStart(ctx, branch, searched)
}

// provenancePath is the path recorded in provenance tags for b.
func (m *Migration) provenancePath(b BranchMapping) string {
	return m.config.Login.Repository + b.Path
}
