package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/vault2git/internal/source"
	"github.com/steveyegge/vault2git/internal/vcs"
)

// author renders the target identity of a source login.
func author(login, domain string) string {
	if login == "" {
		login = "unknown"
	}
	return fmt.Sprintf("%s <%s@%s>", login, login, domain)
}

// commit stages the working tree and records one commit for tx. With
// SkipEmptyCommits set, an unchanged tree produces no commit and
// commit reports false.
func (m *Migration) commit(ctx context.Context, b BranchMapping, tx source.Transaction) (bool, time.Duration, error) {
	start := time.Now()

	branch, err := m.vcs.CurrentRef(ctx)
	if err != nil {
		branch = b.Branch
	}

	if err := m.vcs.AddAll(ctx); err != nil {
		return false, time.Since(start), err
	}

	if m.config.SkipEmptyCommits {
		changed, err := m.vcs.HasChanges(ctx)
		if err != nil {
			return false, time.Since(start), err
		}
		if !changed {
			if m.config.Verbose {
				m.logger.Printf("Revision %d changes nothing on %s; skipped", tx.Revision, b.Branch)
			}
			return false, time.Since(start), nil
		}
	}

	message := BuildMessage(tx.Comment, Provenance{
		Path:     m.provenancePath(b),
		Revision: tx.Revision,
		TxID:     tx.TxID,
	})

	res, err := m.vcs.Commit(ctx, vcs.CommitOptions{
		Message:    message,
		Author:     author(tx.User, m.config.DomainName),
		Date:       tx.Time,
		AllowEmpty: true,
	})
	if err != nil {
		return false, time.Since(start), err
	}

	if id, ok := commitID(res.Output, branch); ok {
		if !m.provenance.Record(tx.TxID, id) {
			m.logger.Printf("Transaction %d already mapped; keeping the first commit", tx.TxID)
		}
	} else if m.config.Verbose {
		m.logger.Printf("No commit id in %q for transaction %d", vcs.FirstLine(res.Output), tx.TxID)
	}

	return true, time.Since(start), nil
}
