// Package export implements source.Client over a history export on
// local disk.
//
// An export directory holds a manifest (history.toml or history.yaml)
// describing the repository's transactions and labels, and a blobs/
// tree with the content every add or edit item stored:
//
//	history.toml
//	blobs/<txid>/<path below $>
//
// Working-folder bindings persist in a TOML state file so they outlive
// a session the way server-side assignments do.
package export

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	shutil "github.com/termie/go-shutil"

	"github.com/steveyegge/vault2git/internal/source"
)

// StateFile is the default working-folder state file name.
const StateFile = "workingfolders.toml"

// Config holds configuration for the export client.
type Config struct {
	// Dir is the export directory
	Dir string

	// StatePath stores working-folder bindings. Defaults to
	// Dir/workingfolders.toml.
	StatePath string

	// Logger for client activity
	Logger *log.Logger

	// Verbose logs every file materialized by Get
	Verbose bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[export] ", log.LstdFlags),
	}
}

// Client serves history from an export directory.
type Client struct {
	config *Config

	mu       sync.Mutex
	loggedIn bool
	hist     *history
	folders  map[string]string
}

var _ source.Client = (*Client)(nil)

// New creates a client for the export in dir.
func New(dir string) (*Client, error) {
	config := DefaultConfig()
	config.Dir = dir
	return NewWithConfig(config)
}

// NewWithConfig creates a client with custom configuration.
func NewWithConfig(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("export dir cannot be empty")
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.StatePath == "" {
		config.StatePath = filepath.Join(config.Dir, StateFile)
	}

	folders, err := loadFolders(config.StatePath)
	if err != nil {
		return nil, err
	}

	return &Client{config: config, folders: folders}, nil
}

// Login loads the manifest. Credentials are not checked; a named
// repository must match the one the export describes.
func (c *Client) Login(ctx context.Context, opts source.LoginOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, path, err := loadManifest(c.config.Dir)
	if err != nil {
		return err
	}
	if opts.Repository != "" && m.Repository != "" && !source.SamePath(opts.Repository, m.Repository) {
		return fmt.Errorf("repository %q: %w (export describes %q)", opts.Repository, source.ErrNotFound, m.Repository)
	}

	h, err := newHistory(m)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	c.hist = h
	c.loggedIn = true
	c.config.Logger.Printf("Logged in as %s to %s (%d transactions)", opts.User, path, h.byRevision.Size())
	return nil
}

// Logout ends the session. It is safe to call more than once.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loggedIn = false
	c.hist = nil
	return nil
}

func (c *Client) session() (*history, error) {
	if !c.loggedIn {
		return nil, source.ErrNotLoggedIn
	}
	return c.hist, nil
}

// History lists transactions touching path inside [from, to].
func (c *Client) History(ctx context.Context, path string, from, to time.Time) ([]source.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.session()
	if err != nil {
		return nil, err
	}

	var out []source.Transaction
	h.each(func(tx *manifestTx) bool {
		if !from.IsZero() && tx.Time.Before(from) {
			return true
		}
		if !to.IsZero() && tx.Time.After(to) {
			return true
		}
		if !touches(tx, path) {
			return true
		}
		out = append(out, source.Transaction{
			Revision: tx.Revision,
			TxID:     tx.ID,
			User:     tx.User,
			Comment:  tx.Comment,
			Time:     tx.Time,
		})
		return true
	})

	return out, nil
}

// TxDetail lists the items of one transaction.
func (c *Client) TxDetail(ctx context.Context, txID int64) ([]source.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.session()
	if err != nil {
		return nil, err
	}

	tx, ok := h.byTxID[txID]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", txID, source.ErrNotFound)
	}

	items := make([]source.Item, 0, len(tx.Items))
	for _, it := range tx.Items {
		items = append(items, source.Item{
			Path:     source.Clean(it.Path),
			Path2:    source.Clean(it.Path2),
			Kind:     source.ParseKind(it.Kind),
			Revision: tx.Revision,
		})
	}
	return items, nil
}

// Get copies path as of revision into its working folder. A folder
// fetch only adds and overwrites; it never deletes local files.
func (c *Client) Get(ctx context.Context, path string, revision int64, recursive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.session()
	if err != nil {
		return err
	}

	t := h.treeAt(revision)

	var entries []treeEntry
	if e, ok := t.files[source.FoldKey(path)]; ok {
		entries = []treeEntry{e}
	} else if recursive {
		entries = t.under(path)
	} else {
		return fmt.Errorf("%s@%d: %w", path, revision, source.ErrNotFound)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		local, err := c.localPath(e.path)
		if err != nil {
			return err
		}
		if err := c.materialize(e.blob, local); err != nil {
			return fmt.Errorf("%s@%d: %w", e.path, revision, err)
		}
		if c.config.Verbose {
			c.config.Logger.Printf("get %s version %d => %s", e.path, revision, local)
		}
	}

	return nil
}

// localPath maps a server path through the longest bound prefix.
func (c *Client) localPath(p string) (string, error) {
	best := ""
	bestRel := ""
	found := false
	for bound := range c.folders {
		rel, ok := source.Rel(p, bound)
		if !ok {
			continue
		}
		if !found || len(source.Clean(bound)) > len(source.Clean(best)) {
			best, bestRel, found = bound, rel, true
		}
	}
	if !found {
		return "", fmt.Errorf("%s: %w", p, source.ErrNoWorkingFolder)
	}
	return filepath.Join(c.folders[best], filepath.FromSlash(bestRel)), nil
}

func (c *Client) materialize(b blob, dst string) error {
	src := b.file(c.config.Dir)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %s: %w", src, source.ErrNotFound)
		}
		return err
	}

	if fi, err := os.Lstat(dst); err == nil && fi.IsDir() {
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if _, err := shutil.Copy(src, dst, false); err != nil {
		return err
	}

	// Exports may carry read-only modes; the working tree must stay writable
	if fi, err := os.Stat(dst); err == nil {
		return os.Chmod(dst, fi.Mode().Perm()|0200)
	}
	return nil
}

// WorkingFolders returns a copy of the binding table.
func (c *Client) WorkingFolders(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.folders))
	for k, v := range c.folders {
		out[k] = v
	}
	return out, nil
}

// SetWorkingFolder binds path to localDir, replacing any binding of
// the same path.
func (c *Client) SetWorkingFolder(ctx context.Context, path, localDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	abs, err := filepath.Abs(localDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", localDir, err)
	}

	var conflicts []string
	for bound, dir := range c.folders {
		if source.SamePath(bound, path) {
			continue
		}
		if filepath.Clean(dir) == abs {
			conflicts = append(conflicts, bound)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return &source.WorkingFolderConflictError{Path: path, Conflicts: conflicts}
	}

	c.dropBinding(path)
	c.folders[source.Clean(path)] = abs
	return saveFolders(c.config.StatePath, c.folders)
}

// RemoveWorkingFolder deletes the binding of path, if any.
func (c *Client) RemoveWorkingFolder(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dropBinding(path) {
		return nil
	}
	return saveFolders(c.config.StatePath, c.folders)
}

func (c *Client) dropBinding(path string) bool {
	dropped := false
	for bound := range c.folders {
		if source.SamePath(bound, path) {
			delete(c.folders, bound)
			dropped = true
		}
	}
	return dropped
}

// Labels lists labels applied at or below root.
func (c *Client) Labels(ctx context.Context, root string) ([]source.Label, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.session()
	if err != nil {
		return nil, err
	}

	var out []source.Label
	for _, l := range h.labels {
		at := l.Path
		if at == "" {
			at = source.Root
		}
		if !source.Within(at, root) {
			continue
		}
		out = append(out, source.Label{TxID: l.TxID, Text: l.Text, Comment: l.Comment})
	}
	return out, nil
}
