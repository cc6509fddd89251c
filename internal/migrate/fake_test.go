package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/vault2git/internal/source"
	"github.com/steveyegge/vault2git/internal/vcs"
)

// fakeVCS keeps branch histories as lists of commit messages, tip last.
type fakeVCS struct {
	root     string
	current  string
	branches map[string][]string
	tags     map[string]vcs.TagOptions

	// checkoutFails fails that many checkouts; negative fails all
	checkoutFails int
	checkouts     []string

	changes   bool
	commits   []vcs.CommitOptions
	gcs       int
	finalized int
}

var _ vcs.VCS = (*fakeVCS)(nil)

func newFakeVCS(root string) *fakeVCS {
	return &fakeVCS{
		root:     root,
		current:  "main",
		branches: map[string][]string{"main": nil},
		tags:     make(map[string]vcs.TagOptions),
		changes:  true,
	}
}

func (f *fakeVCS) Name() vcs.Type                              { return vcs.TypeGit }
func (f *fakeVCS) Version(ctx context.Context) (string, error) { return "2.40.0", nil }
func (f *fakeVCS) RepoRoot() (string, error)                   { return f.root, nil }

func (f *fakeVCS) CurrentRef(ctx context.Context) (string, error) {
	return f.current, nil
}

func (f *fakeVCS) RefExists(ctx context.Context, name string) bool {
	_, ok := f.branches[name]
	return ok
}

func (f *fakeVCS) Checkout(ctx context.Context, name string, orphan bool) error {
	if orphan {
		f.checkouts = append(f.checkouts, name+" orphan")
	} else {
		f.checkouts = append(f.checkouts, name)
	}
	if f.checkoutFails != 0 {
		if f.checkoutFails > 0 {
			f.checkoutFails--
		}
		return errors.New("index.lock exists")
	}
	if orphan {
		f.branches[name] = nil
	}
	f.current = name
	return nil
}

func (f *fakeVCS) CommitMessage(ctx context.Context, ref string, offset int) (string, error) {
	msgs := f.branches[ref]
	i := len(msgs) - 1 - offset
	if i < 0 {
		return "", vcs.ErrRefNotFound
	}
	return msgs[i], nil
}

func (f *fakeVCS) AddAll(ctx context.Context) error             { return nil }
func (f *fakeVCS) HasChanges(ctx context.Context) (bool, error) { return f.changes, nil }

func (f *fakeVCS) Commit(ctx context.Context, opts vcs.CommitOptions) (vcs.CommitResult, error) {
	f.commits = append(f.commits, opts)
	f.branches[f.current] = append(f.branches[f.current], opts.Message)
	id := fmt.Sprintf("c%03d", len(f.commits))
	subject, _, _ := strings.Cut(opts.Message, "\n")
	return vcs.CommitResult{Output: []string{fmt.Sprintf("[%s %s] %s", f.current, id, subject)}}, nil
}

func (f *fakeVCS) TagExists(ctx context.Context, name string) bool {
	_, ok := f.tags[name]
	return ok
}

func (f *fakeVCS) CreateTag(ctx context.Context, opts vcs.TagOptions) error {
	f.tags[opts.Name] = opts
	return nil
}

func (f *fakeVCS) GC(ctx context.Context) error {
	f.gcs++
	return nil
}

func (f *fakeVCS) Finalize(ctx context.Context) error {
	f.finalized++
	return nil
}

func (f *fakeVCS) Exec(ctx context.Context, args ...string) ([]string, error) {
	return nil, nil
}

// fakeSource serves an in-memory history. Get writes content below the
// longest bound working folder, like a real server session.
type fakeSource struct {
	history []source.Transaction
	items   map[int64][]source.Item
	labels  []source.Label

	// content maps server file paths to their bytes
	content map[string]string
	folders map[string]string

	// getErrs fails that many Get calls
	getErrs int
	gets    []string

	loggedIn  bool
	loggedOut bool
}

var _ source.Client = (*fakeSource)(nil)

func (s *fakeSource) Login(ctx context.Context, opts source.LoginOptions) error {
	s.loggedIn = true
	return nil
}

func (s *fakeSource) Logout(ctx context.Context) error {
	s.loggedOut = true
	return nil
}

func (s *fakeSource) History(ctx context.Context, path string, from, to time.Time) ([]source.Transaction, error) {
	return append([]source.Transaction(nil), s.history...), nil
}

func (s *fakeSource) TxDetail(ctx context.Context, txID int64) ([]source.Item, error) {
	return s.items[txID], nil
}

func (s *fakeSource) Get(ctx context.Context, path string, revision int64, recursive bool) error {
	s.gets = append(s.gets, fmt.Sprintf("%s@%d recursive=%v", path, revision, recursive))
	if s.getErrs > 0 {
		s.getErrs--
		return errors.New("server busy")
	}

	for p, content := range s.content {
		if recursive && !source.Within(p, path) {
			continue
		}
		if !recursive && !source.SamePath(p, path) {
			continue
		}
		local, ok := s.localPath(p)
		if !ok {
			return source.ErrNoWorkingFolder
		}
		if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(local, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSource) localPath(p string) (string, bool) {
	best, dir := -1, ""
	for bound, d := range s.folders {
		rel, ok := source.Rel(p, bound)
		if !ok {
			continue
		}
		if n := len(strings.Split(bound, "/")); n > best {
			best = n
			dir = filepath.Join(d, filepath.FromSlash(rel))
		}
	}
	return dir, best >= 0
}

func (s *fakeSource) WorkingFolders(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.folders))
	for k, v := range s.folders {
		out[k] = v
	}
	return out, nil
}

func (s *fakeSource) SetWorkingFolder(ctx context.Context, path, localDir string) error {
	var conflicts []string
	for bound, d := range s.folders {
		if d == localDir && !source.SamePath(bound, path) {
			conflicts = append(conflicts, bound)
		}
	}
	if len(conflicts) > 0 {
		return &source.WorkingFolderConflictError{Path: path, Conflicts: conflicts}
	}
	s.folders[path] = localDir
	return nil
}

func (s *fakeSource) RemoveWorkingFolder(ctx context.Context, path string) error {
	delete(s.folders, path)
	return nil
}

func (s *fakeSource) Labels(ctx context.Context, root string) ([]source.Label, error) {
	return s.labels, nil
}

var testTime = time.Date(2011, 3, 4, 10, 30, 0, 0, time.UTC)

// newFakeSource returns three transactions on $/Proj: an add, an edit
// and a delete of A.txt.
func newFakeSource() *fakeSource {
	return &fakeSource{
		history: []source.Transaction{
			{Revision: 12, TxID: 102, User: "jdoe", Comment: "delete A", Time: testTime.Add(2 * time.Hour)},
			{Revision: 10, TxID: 100, User: "jdoe", Comment: "add A", Time: testTime},
			{Revision: 11, TxID: 101, User: "asmith", Comment: "edit A", Time: testTime.Add(time.Hour)},
		},
		items: map[int64][]source.Item{
			100: {{Path: "$/Proj/A.txt", Kind: source.KindAdd, Revision: 1}},
			101: {{Path: "$/Proj/A.txt", Kind: source.KindEdit, Revision: 2}},
			102: {{Path: "$/Proj/A.txt", Kind: source.KindDelete}},
		},
		labels: []source.Label{
			{TxID: 101, Text: "Release 1.0"},
		},
		content: map[string]string{"$/Proj/A.txt": "hello"},
		folders: map[string]string{"$": "/srv/vault"},
	}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// testConfig maps main to $/Proj and records progress markers.
func testConfig(markers *[]int64) Config {
	config := DefaultConfig()
	config.Login = source.LoginOptions{User: "admin", Repository: "MyRepo"}
	config.Branches = []BranchMapping{{Branch: "main", Path: "$/Proj"}}
	config.DomainName = "example.com"
	config.RetryDelay = 0
	config.RemoveDelay = 0
	config.AssumeFromStart = true
	config.Logger = discardLogger()
	if markers != nil {
		config.Progress = func(marker int64, elapsed time.Duration) bool {
			*markers = append(*markers, marker)
			return false
		}
	}
	return config
}

func newTestMigration(t *testing.T, v *fakeVCS, src *fakeSource, config Config) *Migration {
	t.Helper()
	m, err := New(v, src, config)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return m
}

// fakeOperator answers ConfirmFromStart with answer and counts pauses.
type fakeOperator struct {
	answer   bool
	asked    []string
	paused   []int64
	pauseErr error
}

func (o *fakeOperator) ConfirmFromStart(ctx context.Context, branch string, searched int) (bool, error) {
	o.asked = append(o.asked, fmt.Sprintf("%s/%d", branch, searched))
	return o.answer, nil
}

func (o *fakeOperator) Pause(ctx context.Context, branch string, tx source.Transaction) error {
	o.paused = append(o.paused, tx.Revision)
	return o.pauseErr
}
