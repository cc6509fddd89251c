package export

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/vault2git/internal/source"
)

const testManifest = `
repository = "MyRepo"

[[transaction]]
id = 100
revision = 10
user = "jdoe"
comment = "add A"
time = 2011-03-04T10:30:00Z
  [[transaction.item]]
  kind = "add"
  path = "$/Proj/A.txt"
  [[transaction.item]]
  kind = "add"
  path = "$/Proj/src/B.cs"

[[transaction]]
id = 101
revision = 11
user = "jdoe"
comment = "edit A"
time = 2011-03-05T10:30:00Z
  [[transaction.item]]
  kind = "edit"
  path = "$/Proj/A.txt"

[[transaction]]
id = 102
revision = 12
user = "asmith"
comment = "outside"
time = 2011-03-06T10:30:00Z
  [[transaction.item]]
  kind = "add"
  path = "$/Proj2/C.txt"

[[transaction]]
id = 103
revision = 13
user = "asmith"
comment = "reorganize"
time = 2011-03-07T10:30:00Z
  [[transaction.item]]
  kind = "rename"
  path = "$/Proj/src"
  path2 = "$/Proj/lib"
  [[transaction.item]]
  kind = "share"
  path = "$/Proj/A.txt"
  path2 = "$/Proj/docs/A.txt"

[[transaction]]
id = 104
revision = 14
user = "asmith"
comment = "delete A"
time = 2011-03-08T10:30:00Z
  [[transaction.item]]
  kind = "delete"
  path = "$/Proj/A.txt"

[[label]]
txid = 101
text = "Release 1.0"
comment = "shipped"
path = "$/Proj"

[[label]]
txid = 102
text = "other"
path = "$/Proj2"
`

// writeExport creates an export directory with the given manifest and
// blobs keyed by "<txid>/<relative path>".
func writeExport(t *testing.T, name, manifest string, blobs map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	for rel, content := range blobs {
		p := filepath.Join(dir, BlobDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0444); err != nil {
			t.Fatalf("failed to write blob: %v", err)
		}
	}
	return dir
}

func testBlobs() map[string]string {
	return map[string]string{
		"100/Proj/A.txt":    "a1",
		"100/Proj/src/B.cs": "b1",
		"101/Proj/A.txt":    "a2",
		"102/Proj2/C.txt":   "c1",
	}
}

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()

	dir := writeExport(t, ManifestTOML, testManifest, testBlobs())
	c, err := NewWithConfig(&Config{
		Dir:       dir,
		StatePath: filepath.Join(t.TempDir(), StateFile),
		Logger:    log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if err := c.Login(context.Background(), source.LoginOptions{User: "admin", Repository: "MyRepo"}); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	return c, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestNotLoggedIn(t *testing.T) {
	dir := writeExport(t, ManifestTOML, testManifest, nil)
	c, err := NewWithConfig(&Config{Dir: dir, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	if _, err := c.History(context.Background(), "$/Proj", time.Time{}, time.Time{}); !errors.Is(err, source.ErrNotLoggedIn) {
		t.Errorf("History() before login = %v, want ErrNotLoggedIn", err)
	}
}

func TestLoginRepositoryMismatch(t *testing.T) {
	dir := writeExport(t, ManifestTOML, testManifest, nil)
	c, err := NewWithConfig(&Config{Dir: dir, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	err = c.Login(context.Background(), source.LoginOptions{Repository: "Elsewhere"})
	if !errors.Is(err, source.ErrNotFound) {
		t.Errorf("Login() = %v, want ErrNotFound", err)
	}
}

func TestLoginRejectsDuplicateRevision(t *testing.T) {
	dir := writeExport(t, ManifestTOML, `
[[transaction]]
id = 1
revision = 5
[[transaction]]
id = 2
revision = 5
`, nil)
	c, err := NewWithConfig(&Config{Dir: dir, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if err := c.Login(context.Background(), source.LoginOptions{}); err == nil {
		t.Error("Login() should reject duplicate revisions")
	}
}

func TestHistory(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	txs, err := c.History(ctx, "$/Proj", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}

	want := []int64{10, 11, 13, 14}
	if len(txs) != len(want) {
		t.Fatalf("History() returned %d transactions, want %d", len(txs), len(want))
	}
	for i, rev := range want {
		if txs[i].Revision != rev {
			t.Errorf("txs[%d].Revision = %d, want %d", i, txs[i].Revision, rev)
		}
	}
	if txs[0].TxID != 100 || txs[0].User != "jdoe" || txs[0].Comment != "add A" {
		t.Errorf("txs[0] = %+v", txs[0])
	}

	from := time.Date(2011, 3, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2011, 3, 7, 23, 0, 0, 0, time.UTC)
	txs, err = c.History(ctx, "$/proj", from, to)
	if err != nil {
		t.Fatalf("History(window) failed: %v", err)
	}
	if len(txs) != 2 || txs[0].Revision != 11 || txs[1].Revision != 13 {
		t.Errorf("History(window) = %+v", txs)
	}
}

func TestTxDetail(t *testing.T) {
	c, _ := newTestClient(t)

	items, err := c.TxDetail(context.Background(), 103)
	if err != nil {
		t.Fatalf("TxDetail() failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("TxDetail() returned %d items, want 2", len(items))
	}
	if items[0].Kind != source.KindRename || items[0].Path != "$/Proj/src" || items[0].Path2 != "$/Proj/lib" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Kind != source.KindShare || items[1].Revision != 13 {
		t.Errorf("items[1] = %+v", items[1])
	}

	if _, err := c.TxDetail(context.Background(), 999); !errors.Is(err, source.ErrNotFound) {
		t.Errorf("TxDetail(999) = %v, want ErrNotFound", err)
	}
}

func TestGetFile(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	work := t.TempDir()

	if err := c.Get(ctx, "$/Proj/A.txt", 10, false); !errors.Is(err, source.ErrNoWorkingFolder) {
		t.Fatalf("Get() without binding = %v, want ErrNoWorkingFolder", err)
	}

	if err := c.SetWorkingFolder(ctx, "$/Proj", work); err != nil {
		t.Fatalf("SetWorkingFolder() failed: %v", err)
	}

	if err := c.Get(ctx, "$/Proj/A.txt", 10, false); err != nil {
		t.Fatalf("Get(rev 10) failed: %v", err)
	}
	if got := readFile(t, filepath.Join(work, "A.txt")); got != "a1" {
		t.Errorf("A.txt@10 = %q, want a1", got)
	}

	if err := c.Get(ctx, "$/Proj/a.txt", 11, false); err != nil {
		t.Fatalf("Get(rev 11) failed: %v", err)
	}
	if got := readFile(t, filepath.Join(work, "A.txt")); got != "a2" {
		t.Errorf("A.txt@11 = %q, want a2", got)
	}

	// Materialized files stay writable even though blobs are read-only
	if err := os.WriteFile(filepath.Join(work, "A.txt"), []byte("local"), 0644); err != nil {
		t.Errorf("working file not writable: %v", err)
	}

	if err := c.Get(ctx, "$/Proj/A.txt", 14, false); !errors.Is(err, source.ErrNotFound) {
		t.Errorf("Get(deleted) = %v, want ErrNotFound", err)
	}
}

func TestGetRecursive(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	work := t.TempDir()

	if err := c.SetWorkingFolder(ctx, "$/Proj", work); err != nil {
		t.Fatalf("SetWorkingFolder() failed: %v", err)
	}

	if err := c.Get(ctx, "$/Proj", 13, true); err != nil {
		t.Fatalf("Get(recursive) failed: %v", err)
	}

	expected := map[string]string{
		"A.txt":      "a2",
		"docs/A.txt": "a2",
		"lib/B.cs":   "b1",
	}
	for rel, content := range expected {
		if got := readFile(t, filepath.Join(work, filepath.FromSlash(rel))); got != content {
			t.Errorf("%s = %q, want %q", rel, got, content)
		}
	}
	if _, err := os.Stat(filepath.Join(work, "src")); !os.IsNotExist(err) {
		t.Errorf("renamed folder src should not be fetched, stat err = %v", err)
	}
}

func TestWorkingFolders(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	a, b := t.TempDir(), t.TempDir()

	if err := c.SetWorkingFolder(ctx, "$", a); err != nil {
		t.Fatalf("SetWorkingFolder($) failed: %v", err)
	}

	err := c.SetWorkingFolder(ctx, "$/Proj", a)
	var conflict *source.WorkingFolderConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("SetWorkingFolder() = %v, want *WorkingFolderConflictError", err)
	}
	if len(conflict.Conflicts) != 1 || conflict.Conflicts[0] != "$" {
		t.Errorf("Conflicts = %v, want [$]", conflict.Conflicts)
	}

	if err := c.SetWorkingFolder(ctx, "$/Proj", b); err != nil {
		t.Fatalf("SetWorkingFolder($/Proj) failed: %v", err)
	}
	// Rebinding the same path elsewhere is not a conflict
	if err := c.SetWorkingFolder(ctx, "$/proj", b); err != nil {
		t.Fatalf("rebinding failed: %v", err)
	}

	folders, _ := c.WorkingFolders(ctx)
	if len(folders) != 2 {
		t.Errorf("WorkingFolders() = %v, want 2 bindings", folders)
	}

	// Bindings persist for a new client on the same state file
	again, err := NewWithConfig(&Config{Dir: c.config.Dir, StatePath: c.config.StatePath, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	persisted, _ := again.WorkingFolders(ctx)
	if persisted["$"] != a {
		t.Errorf("persisted $ = %q, want %q", persisted["$"], a)
	}

	if err := c.RemoveWorkingFolder(ctx, "$/PROJ"); err != nil {
		t.Fatalf("RemoveWorkingFolder() failed: %v", err)
	}
	folders, _ = c.WorkingFolders(ctx)
	if _, ok := folders["$/Proj"]; ok {
		t.Error("binding still present after RemoveWorkingFolder")
	}
	if err := c.RemoveWorkingFolder(ctx, "$/Proj"); err != nil {
		t.Errorf("removing a missing binding should be a no-op, got %v", err)
	}
}

func TestLabels(t *testing.T) {
	c, _ := newTestClient(t)

	labels, err := c.Labels(context.Background(), source.Root)
	if err != nil {
		t.Fatalf("Labels() failed: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("Labels($) returned %d, want 2", len(labels))
	}
	if labels[0].TxID != 101 || labels[0].Text != "Release 1.0" || labels[0].Comment != "shipped" {
		t.Errorf("labels[0] = %+v", labels[0])
	}

	labels, _ = c.Labels(context.Background(), "$/Proj")
	if len(labels) != 1 {
		t.Errorf("Labels($/Proj) returned %d, want 1", len(labels))
	}
}

func TestYAMLManifest(t *testing.T) {
	dir := writeExport(t, ManifestYAML, `
repository: MyRepo
transactions:
  - id: 7
    revision: 3
    user: jdoe
    comment: first
    time: 2012-01-02T03:04:05Z
    items:
      - kind: add
        path: $/Proj/readme.txt
labels:
  - txid: 7
    text: v1
`, map[string]string{"7/Proj/readme.txt": "hi"})

	c, err := NewWithConfig(&Config{Dir: dir, StatePath: filepath.Join(t.TempDir(), StateFile), Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	ctx := context.Background()
	if err := c.Login(ctx, source.LoginOptions{Repository: "myrepo"}); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	txs, err := c.History(ctx, "$/Proj", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(txs) != 1 || txs[0].TxID != 7 || !txs[0].Time.Equal(time.Date(2012, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("History() = %+v", txs)
	}

	work := t.TempDir()
	if err := c.SetWorkingFolder(ctx, "$", work); err != nil {
		t.Fatalf("SetWorkingFolder() failed: %v", err)
	}
	if err := c.Get(ctx, "$/Proj/readme.txt", 3, false); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got := readFile(t, filepath.Join(work, "Proj", "readme.txt")); got != "hi" {
		t.Errorf("readme.txt = %q", got)
	}
}
