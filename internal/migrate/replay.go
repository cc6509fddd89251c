package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/steveyegge/vault2git/internal/sanitize"
	"github.com/steveyegge/vault2git/internal/source"
)

// applyResult tells the replayer whether the per-file apply finished
// or must give way to a full subtree refresh.
type applyResult struct {
	needsFullGet bool
	reason       string
}

var applied = applyResult{}

func fullGet(format string, args ...interface{}) applyResult {
	return applyResult{needsFullGet: true, reason: fmt.Sprintf(format, args...)}
}

// replay brings the working tree to the state after tx. The per-file
// apply runs first unless ForceFullFolderGet is set; any failure there
// falls back to refetching the whole subtree. Each path gets one retry
// after RetryDelay.
func (m *Migration) replay(ctx context.Context, b BranchMapping, tx source.Transaction) (time.Duration, error) {
	start := time.Now()

	if !m.config.ForceFullFolderGet {
		res, err := m.applyItems(ctx, b, tx)
		if err != nil {
			m.logger.Printf("Applying revision %d failed: %v. Waiting %v and retrying...", tx.Revision, err, m.config.RetryDelay)
			if werr := m.wait(ctx); werr != nil {
				return time.Since(start), werr
			}
			res, err = m.applyItems(ctx, b, tx)
		}
		if err == nil && !res.needsFullGet {
			return time.Since(start), nil
		}
		if err != nil {
			res = fullGet("%v", err)
		}
		if m.config.Verbose {
			m.logger.Printf("%s; getting whole folder", res.reason)
		}
	}

	if err := m.refreshTree(ctx, b, tx); err != nil {
		m.logger.Printf("Exception %v getting version %d from source. Waiting %v and retrying...", err, tx.Revision, m.config.RetryDelay)
		if werr := m.wait(ctx); werr != nil {
			return time.Since(start), werr
		}
		if err := m.refreshTree(ctx, b, tx); err != nil {
			return time.Since(start), fmt.Errorf("cannot get transaction details for %d: %w", tx.TxID, err)
		}
	}

	return time.Since(start), nil
}

func (m *Migration) wait(ctx context.Context) error {
	if m.config.RetryDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.config.RetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// localPath maps a source path inside the branch to the working tree.
func (m *Migration) localPath(rel string) string {
	return filepath.Join(m.workDir, filepath.FromSlash(rel))
}

// applyItems performs the per-file apply of tx.
func (m *Migration) applyItems(ctx context.Context, b BranchMapping, tx source.Transaction) (applyResult, error) {
	items, err := m.src.TxDetail(ctx, tx.TxID)
	if err != nil {
		return applied, err
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		switch it.Kind {
		case source.KindDelete:
			m.deleteItem(b, it)

		case source.KindRename, source.KindMove:
			if res, err := m.relocate(b, it, true); err != nil || res.needsFullGet {
				return res, err
			}

		case source.KindShare:
			if res, err := m.relocate(b, it, false); err != nil || res.needsFullGet {
				return res, err
			}

		case source.KindAddFolder, source.KindBranchCopy:
			// no file payload

		default:
			rel, ok := source.Rel(it.Path, b.Path)
			if !ok {
				return fullGet("%s is outside current branch", it.Path), nil
			}
			if rel == "" {
				return fullGet("%s names the branch root", it.Path), nil
			}
			if m.config.Verbose {
				m.logger.Printf("get %s version %d", it.Path, it.Revision)
			}
			if err := m.src.Get(ctx, it.Path, it.Revision, false); err != nil {
				return applied, err
			}
			m.sanitizeFile(m.localPath(rel))
		}
	}

	return applied, nil
}

// deleteItem removes an item inside the branch. Items elsewhere are
// another branch's concern, and removal failures are only logged.
func (m *Migration) deleteItem(b BranchMapping, it source.Item) {
	rel, ok := source.Rel(it.Path, b.Path)
	if !ok || rel == "" {
		return
	}
	local := m.localPath(rel)
	if m.config.Verbose {
		m.logger.Printf("delete %s => %s", it.Path, local)
	}
	if err := removePath(local, m.config.RemoveAttempts, m.config.RemoveDelay); err != nil {
		m.logger.Printf("Warning: could not delete %s: %v", local, err)
	}
}

// relocate applies a move, rename (move=true) or share (move=false).
func (m *Migration) relocate(b BranchMapping, it source.Item, move bool) (applyResult, error) {
	rel1, in1 := source.Rel(it.Path, b.Path)
	rel2, in2 := source.Rel(it.Path2, b.Path)

	if m.config.Verbose {
		m.logger.Printf("Processing %s to %s. MoveFiles = %v", it.Path, it.Path2, move)
	}

	if !in1 || rel1 == "" {
		return fullGet("source %s is outside current branch", it.Path), nil
	}
	if in2 && rel2 == "" {
		return fullGet("destination %s names the branch root", it.Path2), nil
	}
	if !move && !in2 {
		if m.config.Verbose {
			m.logger.Printf("   Ignoring target %s outside of working folder", it.Path2)
		}
		return applied, nil
	}

	p1 := m.localPath(rel1)
	if _, ok := exists(p1); !ok {
		if m.config.Verbose {
			m.logger.Printf("   %s is not in the working tree", p1)
		}
		return applied, nil
	}

	if !in2 {
		// Moved out of the branch: only the source side disappears
		if err := removePath(p1, m.config.RemoveAttempts, m.config.RemoveDelay); err != nil {
			m.logger.Printf("Warning: could not delete %s: %v", p1, err)
		}
		return applied, nil
	}

	p2 := m.localPath(rel2)
	if move {
		if err := movePath(p1, p2); err != nil {
			return applied, fmt.Errorf("move %s to %s: %w", p1, p2, err)
		}
	} else {
		if err := copyPath(p1, p2); err != nil {
			return applied, fmt.Errorf("copy %s to %s: %w", p1, p2, err)
		}
	}
	return applied, nil
}

// refreshTree wipes the working tree and fetches the whole branch at
// tx's revision. A recursive fetch does not reliably remove items, so
// the transaction's deletes, moves and renames are applied again as
// deletions of their source side.
func (m *Migration) refreshTree(ctx context.Context, b BranchMapping, tx source.Transaction) error {
	if m.config.Verbose {
		m.logger.Printf("Getting entire source path %s", b.Path)
	}

	stuck, err := wipeTree(m.workDir, m.config.Keep, m.config.RemoveAttempts, m.config.RemoveDelay)
	if err != nil {
		return err
	}
	for _, p := range stuck {
		// The fetch below fails loudly if the space was really needed
		m.logger.Printf("Warning: could not remove %s", p)
	}

	if err := m.src.Get(ctx, b.Path, tx.Revision, true); err != nil {
		return err
	}

	items, err := m.src.TxDetail(ctx, tx.TxID)
	if err != nil {
		return err
	}
	for _, it := range items {
		switch it.Kind {
		case source.KindDelete, source.KindMove, source.KindRename:
			m.deleteItem(b, it)
		}
	}

	changed, failed, err := m.sanitizer.Tree(m.workDir)
	if err != nil {
		return fmt.Errorf("failed to sanitize working tree: %w", err)
	}
	if m.config.Verbose && (changed > 0 || failed > 0) {
		m.logger.Printf("Sanitized %d files (%d failed)", changed, failed)
	}
	return nil
}

func (m *Migration) sanitizeFile(path string) {
	if sanitize.FormatOf(path) == sanitize.FormatNone {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if _, err := m.sanitizer.File(path); err != nil {
		m.logger.Printf("Warning: %v", err)
	}
}
