// Package migrate replays the history of source repository paths onto
// branches of a target repository, one commit per source transaction.
//
// A run is resumable. Every commit message ends with a provenance line
//
//	[git-vault-id] MyRepo$/Proj@12/345
//
// and the next run continues after the most recent revision it finds
// near the branch tip. The working folder binding a branch pass needs
// is restored when the pass ends, whether it succeeded or not.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/vault2git/internal/sanitize"
	"github.com/steveyegge/vault2git/internal/source"
	"github.com/steveyegge/vault2git/internal/vcs"
)

// BranchSummary describes one branch pass.
type BranchSummary struct {
	Branch string
	Path   string

	// ResumedAfter is the last revision found already migrated
	ResumedAfter int64

	// Pending is the number of transactions selected for this run
	Pending int

	// Processed counts replayed transactions, Committed the commits made
	Processed int
	Committed int
}

// Summary describes a run.
type Summary struct {
	Branches []BranchSummary
	Tags     int

	// Stopped reports a stop requested through the progress callback
	Stopped bool
}

// Commits returns the total number of commits created.
func (s *Summary) Commits() int {
	n := 0
	for _, b := range s.Branches {
		n += b.Committed
	}
	return n
}

// Migration is a single run of the engine. It is not reusable.
type Migration struct {
	config    Config
	vcs       vcs.VCS
	src       source.Client
	sanitizer *sanitize.Sanitizer
	logger    *log.Logger

	workDir    string
	provenance *ProvenanceMap
}

// New creates a migration run over the target repository v and the
// source session src.
func New(v vcs.VCS, src source.Client, config Config) (*Migration, error) {
	if v == nil {
		return nil, fmt.Errorf("vcs cannot be nil")
	}
	if src == nil {
		return nil, fmt.Errorf("source client cannot be nil")
	}

	config.Branches = append([]BranchMapping(nil), config.Branches...)
	config.Keep = append([]string(nil), config.Keep...)
	if err := config.validate(); err != nil {
		return nil, err
	}

	workDir := config.WorkDir
	if workDir == "" {
		root, err := v.RepoRoot()
		if err != nil {
			return nil, err
		}
		workDir = root
	}

	return &Migration{
		config: config,
		vcs:    v,
		src:    src,
		sanitizer: sanitize.New(&sanitize.Config{
			Logger:  config.Logger,
			Verbose: config.Verbose,
		}),
		logger:     config.Logger,
		workDir:    workDir,
		provenance: NewProvenanceMap(),
	}, nil
}

// Provenance returns the transaction to commit table of this run.
func (m *Migration) Provenance() *ProvenanceMap {
	return m.provenance
}

// Run migrates every configured branch and then creates tags.
//
// The source session is always logged out and the target repository
// finalized before Run returns, including on error.
func (m *Migration) Run(ctx context.Context) (summary *Summary, err error) {
	summary = &Summary{}

	original, err := m.vcs.CurrentRef(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to get current branch: %w", err)
	}
	m.logger.Printf("Starting git branch is %s", original)

	branches := orderMappings(m.config.Branches, original)

	if err := m.src.Login(ctx, m.config.Login); err != nil {
		return summary, fmt.Errorf("source login failed: %w", err)
	}

	defer func() {
		start := time.Now()
		if lerr := m.src.Logout(context.Background()); lerr != nil {
			m.logger.Printf("Warning: logout failed: %v", lerr)
		}
		if ferr := m.vcs.Finalize(context.Background()); ferr != nil {
			m.logger.Printf("Warning: %v", ferr)
			if err == nil {
				err = ferr
			}
		}
		m.report(ProgressFinalize, time.Since(start))
	}()

	if err := m.requireRootWorkingFolder(ctx); err != nil {
		return summary, err
	}

	for _, b := range branches {
		bs, stopped, err := m.pullBranch(ctx, b, original)
		summary.Branches = append(summary.Branches, bs)
		if err != nil {
			return summary, err
		}
		if stopped {
			summary.Stopped = true
			return summary, nil
		}
	}

	if m.config.IgnoreLabels {
		return summary, nil
	}

	tags, elapsed, err := m.createTags(ctx)
	summary.Tags = tags
	if err != nil {
		return summary, err
	}
	if m.report(ProgressTags, elapsed) {
		summary.Stopped = true
	}

	return summary, nil
}

func (m *Migration) requireRootWorkingFolder(ctx context.Context) error {
	folders, err := m.src.WorkingFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to read working folders: %w", err)
	}
	for path := range folders {
		if source.SamePath(path, source.Root) {
			return nil
		}
	}
	return ErrNoRootWorkingFolder
}

// pullBranch runs one branch pass. It reports whether the progress
// callback asked to stop.
func (m *Migration) pullBranch(ctx context.Context, b BranchMapping, original string) (bs BranchSummary, stopped bool, err error) {
	bs = BranchSummary{Branch: b.Branch, Path: b.Path}
	m.logger.Printf("Processing git branch %s", b.Branch)

	start := time.Now()

	resume, err := m.resolveResume(ctx, b)
	if err != nil {
		return bs, false, err
	}
	bs.ResumedAfter = resume

	history, err := m.src.History(ctx, b.Path, m.config.From, m.config.To)
	if err != nil {
		return bs, false, fmt.Errorf("failed to list history of %s: %w", b.Path, err)
	}
	pending := selectPending(history, resume, m.config.Limit)
	bs.Pending = len(pending)

	// Only bind and switch branches when there is work to do
	if len(pending) > 0 {
		restore, err := m.bindWorkingFolder(ctx, b)
		if err != nil {
			return bs, false, err
		}
		defer func() {
			if rerr := m.finishBranch(ctx, b, original, restore); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}()

		if err := m.checkout(ctx, b.Branch); err != nil {
			return bs, false, err
		}
	}

	if m.report(ProgressInit, time.Since(start)) {
		return bs, true, nil
	}

	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return bs, false, err
		}

		elapsed, err := m.replay(ctx, b, tx)
		if err != nil {
			return bs, false, err
		}

		if m.config.Pause && m.config.Operator != nil {
			if err := m.config.Operator.Pause(ctx, b.Branch, tx); err != nil {
				return bs, false, err
			}
		}

		committed, commitElapsed, err := m.commit(ctx, b, tx)
		if err != nil {
			return bs, false, fmt.Errorf("commit of revision %d failed: %w", tx.Revision, err)
		}
		if committed {
			bs.Committed++
		}
		bs.Processed++

		if m.report(tx.Revision, elapsed+commitElapsed) {
			return bs, true, nil
		}

		if bs.Processed%m.config.GCInterval == 0 {
			gcStart := time.Now()
			if err := m.vcs.GC(ctx); err != nil {
				return bs, false, err
			}
			if m.report(ProgressGC, time.Since(gcStart)) {
				return bs, true, nil
			}
		}
	}

	return bs, false, nil
}

// selectPending keeps transactions after resume in ascending revision
// order, at most limit of them when limit is positive.
func selectPending(history []source.Transaction, resume int64, limit int) []source.Transaction {
	var pending []source.Transaction
	for _, tx := range history {
		if tx.Revision > resume {
			pending = append(pending, tx)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Revision < pending[j].Revision })

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending
}

// bindingRestore remembers what bindWorkingFolder displaced.
type bindingRestore struct {
	path     string
	original string
	hadOne   bool

	// removed are conflicting bindings released to make room
	removed map[string]string
}

// bindWorkingFolder points the branch's source path at the working
// tree, releasing one conflicting binding if needed.
func (m *Migration) bindWorkingFolder(ctx context.Context, b BranchMapping) (*bindingRestore, error) {
	folders, err := m.src.WorkingFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read working folders: %w", err)
	}

	r := &bindingRestore{path: b.Path, removed: make(map[string]string)}
	for path, dir := range folders {
		if source.SamePath(path, b.Path) {
			r.original, r.hadOne = dir, true
			break
		}
	}

	err = m.src.SetWorkingFolder(ctx, b.Path, m.workDir)
	var conflict *source.WorkingFolderConflictError
	if errors.As(err, &conflict) && len(conflict.Conflicts) > 0 {
		released := conflict.Conflicts[0]
		m.logger.Printf("Working folder %s conflicts with %s; releasing it", m.workDir, released)
		if err := m.src.RemoveWorkingFolder(ctx, released); err != nil {
			return nil, fmt.Errorf("failed to release working folder of %s: %w", released, err)
		}
		r.removed[released] = folders[released]
		err = m.src.SetWorkingFolder(ctx, b.Path, m.workDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set working folder of %s: %w", b.Path, err)
	}
	return r, nil
}

// finishBranch undoes bindWorkingFolder and returns to the branch that
// was checked out when the run started.
func (m *Migration) finishBranch(ctx context.Context, b BranchMapping, original string, r *bindingRestore) error {
	// Cleanup must happen even for a cancelled run
	ctx = context.WithoutCancel(ctx)

	var errs []error
	if err := m.src.RemoveWorkingFolder(ctx, r.path); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove working folder of %s: %w", r.path, err))
	}
	if r.hadOne {
		if err := m.src.SetWorkingFolder(ctx, r.path, r.original); err != nil {
			errs = append(errs, fmt.Errorf("failed to restore working folder of %s: %w", r.path, err))
		}
	}
	for path, dir := range r.removed {
		if dir == "" {
			continue
		}
		if err := m.src.SetWorkingFolder(ctx, path, dir); err != nil {
			errs = append(errs, fmt.Errorf("failed to restore working folder of %s: %w", path, err))
		}
	}

	current, err := m.vcs.CurrentRef(ctx)
	if err == nil && !strings.EqualFold(current, original) && m.vcs.RefExists(ctx, original) {
		if err := m.vcs.Checkout(ctx, original, false); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// checkout switches to branch, creating it without history when it
// does not exist yet. The switch is verified and retried up to
// CheckoutAttempts times.
func (m *Migration) checkout(ctx context.Context, branch string) error {
	current, err := m.vcs.CurrentRef(ctx)
	if err == nil && strings.EqualFold(current, branch) {
		return nil
	}

	orphan := !m.vcs.RefExists(ctx, branch)
	for tries := 1; ; tries++ {
		if err := m.vcs.Checkout(ctx, branch, orphan); err != nil {
			m.logger.Printf("Checkout of %s failed: %v", branch, err)
		}

		current, err := m.vcs.CurrentRef(ctx)
		if err == nil && strings.EqualFold(current, branch) {
			break
		}
		if tries >= m.config.CheckoutAttempts {
			return fmt.Errorf("%s after %d attempts: %w", branch, tries, ErrCheckoutFailed)
		}
	}

	if orphan {
		m.logger.Printf("Created branch %s without history", branch)
		stuck, err := wipeTree(m.workDir, m.config.Keep, m.config.RemoveAttempts, m.config.RemoveDelay)
		if err != nil {
			return err
		}
		for _, p := range stuck {
			m.logger.Printf("Warning: could not remove %s", p)
		}
	}
	return nil
}
