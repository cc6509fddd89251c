package migrate

import (
	"context"
	"time"

	"github.com/steveyegge/vault2git/internal/source"
)

// Special progress markers. Positive markers are source revisions.
const (
	ProgressInit     int64 = 0
	ProgressGC       int64 = -1
	ProgressFinalize int64 = -2
	ProgressTags     int64 = -3
)

// ProgressFunc receives a marker and the elapsed time of the unit of
// work it reports. Returning true asks the run to stop at the next
// boundary.
type ProgressFunc func(marker int64, elapsed time.Duration) bool

// Operator answers the questions a run may need a human for.
type Operator interface {
	// ConfirmFromStart asks whether branch should be replayed from its
	// first revision because no resume point was found.
	ConfirmFromStart(ctx context.Context, branch string, searched int) (bool, error)

	// Pause blocks before tx is committed to branch.
	Pause(ctx context.Context, branch string, tx source.Transaction) error
}

func (m *Migration) report(marker int64, elapsed time.Duration) bool {
	if m.config.Progress == nil {
		return false
	}
	return m.config.Progress(marker, elapsed)
}
