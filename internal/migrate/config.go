package migrate

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/steveyegge/vault2git/internal/source"
)

// Config holds the immutable settings of one migration run.
type Config struct {
	// Login identifies the source server session. Login.Repository is
	// also the prefix of every provenance path.
	Login source.LoginOptions

	// Branches maps target branches to source paths
	Branches []BranchMapping

	// WorkDir is the target working tree. Defaults to the repository root.
	WorkDir string

	// DomainName completes author e-mail addresses (login@DomainName)
	DomainName string

	// From and To bound the history window; zero leaves it open
	From time.Time
	To   time.Time

	// Limit caps the transactions processed per branch. Zero or less
	// means unbounded.
	Limit int

	// RestartLimit is how many commits back the resume search looks.
	// Zero or less skips the search and starts from the first revision.
	RestartLimit int

	// GCInterval triggers repository housekeeping every N transactions
	GCInterval int

	// RetryDelay separates a failed source fetch from its single retry
	RetryDelay time.Duration

	// CheckoutAttempts bounds branch switching before the run aborts
	CheckoutAttempts int

	// RemoveAttempts and RemoveDelay bound retries of directory removal
	RemoveAttempts int
	RemoveDelay    time.Duration

	// Keep lists top-level working tree names preserved by a wipe, in
	// addition to .git* entries.
	Keep []string

	// SkipEmptyCommits drops transactions that leave the tree unchanged
	SkipEmptyCommits bool

	// IgnoreLabels skips tag creation
	IgnoreLabels bool

	// ForceFullFolderGet always refreshes the whole subtree
	ForceFullFolderGet bool

	// Pause asks the operator before each commit
	Pause bool

	// AssumeFromStart answers yes when no resume point is found
	AssumeFromStart bool

	// LooseResume accepts provenance tags recorded for any source path
	LooseResume bool

	// Progress receives telemetry; returning true stops the run
	Progress ProgressFunc

	// Operator answers interactive questions. Nil uses AssumeFromStart
	// and never pauses.
	Operator Operator

	// Logger for engine activity
	Logger *log.Logger

	// Verbose logs every file operation
	Verbose bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RestartLimit:     20,
		GCInterval:       200,
		RetryDelay:       5 * time.Second,
		CheckoutAttempts: 6,
		RemoveAttempts:   5,
		RemoveDelay:      500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[migrate] ", log.LstdFlags),
	}
}

func (c *Config) validate() error {
	if len(c.Branches) == 0 {
		return fmt.Errorf("no branches configured")
	}
	if err := validateMappings(c.Branches); err != nil {
		return err
	}
	if c.DomainName == "" {
		return fmt.Errorf("domain name cannot be empty")
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("gc interval must be positive, got %d", c.GCInterval)
	}
	if c.CheckoutAttempts <= 0 {
		return fmt.Errorf("checkout attempts must be positive, got %d", c.CheckoutAttempts)
	}
	if !c.From.IsZero() && !c.To.IsZero() && c.To.Before(c.From) {
		return fmt.Errorf("history window ends (%s) before it starts (%s)", c.To, c.From)
	}
	if c.RemoveAttempts <= 0 {
		c.RemoveAttempts = 1
	}
	if c.Logger == nil {
		c.Logger = DefaultConfig().Logger
	}
	return nil
}
