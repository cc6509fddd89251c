package migrate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/steveyegge/vault2git/internal/source"
	"github.com/steveyegge/vault2git/internal/vcs"
)

// nonWord matches everything outside the word characters letters,
// combining marks, decimal digits and connector punctuation.
var nonWord = regexp.MustCompile(`[^\p{L}\p{Mn}\p{Nd}\p{Pc}]`)

// TagName returns the tag created for a label on txID.
func TagName(txID int64, label string) string {
	return fmt.Sprintf("%d_%s", txID, nonWord.ReplaceAllString(label, "_"))
}

// createTags tags the commits of this run's transactions with their
// source labels. Labels on transactions not migrated in this run are
// skipped. It returns the number of tags created.
func (m *Migration) createTags(ctx context.Context) (int, time.Duration, error) {
	start := time.Now()
	m.logger.Println("Creating tags from labels...")

	labels, err := m.src.Labels(ctx, source.Root)
	if err != nil {
		return 0, time.Since(start), fmt.Errorf("failed to list labels: %w", err)
	}

	created := 0
	for _, l := range labels {
		if err := ctx.Err(); err != nil {
			return created, time.Since(start), err
		}

		commit, ok := m.provenance.Lookup(l.TxID)
		if !ok || commit == "" {
			continue
		}

		name := TagName(l.TxID, l.Text)
		if m.vcs.TagExists(ctx, name) {
			if m.config.Verbose {
				m.logger.Printf("Tag %s already exists", name)
			}
			continue
		}

		message := l.Comment
		if strings.TrimSpace(message) == "" {
			message = l.Text
		}

		if err := m.vcs.CreateTag(ctx, vcs.TagOptions{Name: name, Target: commit, Message: message}); err != nil {
			m.logger.Printf("Warning: %v", err)
			continue
		}
		created++
	}

	return created, time.Since(start), nil
}
