package migrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	src := newFakeSource()

	config := testConfig(nil)
	config.DomainName = ""
	_, err := New(v, src, config)
	assert.Error(t, err)

	config = testConfig(nil)
	config.Branches = append(config.Branches, BranchMapping{Branch: "MAIN", Path: "$/Other"})
	_, err = New(v, src, config)
	assert.Error(t, err)

	config = testConfig(nil)
	config.From = testTime
	config.To = testTime.Add(-time.Hour)
	_, err = New(v, src, config)
	assert.Error(t, err)

	_, err = New(nil, src, testConfig(nil))
	assert.Error(t, err)
}

func TestRunMigratesBranch(t *testing.T) {
	workDir := t.TempDir()
	v := newFakeVCS(workDir)
	src := newFakeSource()

	var markers []int64
	config := testConfig(&markers)
	config.GCInterval = 2

	summary, err := newTestMigration(t, v, src, config).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{ProgressInit, 10, 11, ProgressGC, 12, ProgressTags, ProgressFinalize}, markers)

	require.Len(t, summary.Branches, 1)
	bs := summary.Branches[0]
	assert.Equal(t, "main", bs.Branch)
	assert.Equal(t, int64(0), bs.ResumedAfter)
	assert.Equal(t, 3, bs.Pending)
	assert.Equal(t, 3, bs.Processed)
	assert.Equal(t, 3, bs.Committed)
	assert.Equal(t, 3, summary.Commits())
	assert.Equal(t, 1, summary.Tags)
	assert.False(t, summary.Stopped)

	require.Len(t, v.commits, 3)
	assert.Equal(t, "add A\n[git-vault-id] MyRepo$/Proj@10/100\n", v.commits[0].Message)
	assert.Equal(t, "jdoe <jdoe@example.com>", v.commits[0].Author)
	assert.True(t, v.commits[0].Date.Equal(testTime))
	assert.Equal(t, "asmith <asmith@example.com>", v.commits[1].Author)
	assert.Contains(t, v.commits[2].Message, "@12/102")

	tag, ok := v.tags["101_Release_1_0"]
	require.True(t, ok, "tags = %v", v.tags)
	assert.Equal(t, "c002", tag.Target)
	assert.Equal(t, "Release 1.0", tag.Message)

	assert.Equal(t, 1, v.gcs)
	assert.Equal(t, 1, v.finalized)
	assert.True(t, src.loggedOut)
	assert.Equal(t, map[string]string{"$": "/srv/vault"}, src.folders)
	assert.NoFileExists(t, filepath.Join(workDir, "A.txt"))
}

func TestRunResumesAfterLastMigratedRevision(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	src := newFakeSource()

	_, err := newTestMigration(t, v, src, testConfig(nil)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, v.commits, 3)

	var markers []int64
	summary, err := newTestMigration(t, v, src, testConfig(&markers)).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, v.commits, 3, "second run must not commit again")
	assert.Equal(t, []int64{ProgressInit, ProgressTags, ProgressFinalize}, markers)
	assert.Equal(t, int64(12), summary.Branches[0].ResumedAfter)
	assert.Equal(t, 0, summary.Branches[0].Pending)
	assert.Equal(t, 0, summary.Tags)
}

func TestRunRequiresRootWorkingFolder(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	src := newFakeSource()
	src.folders = map[string]string{"$/Proj": "/srv/proj"}

	var markers []int64
	_, err := newTestMigration(t, v, src, testConfig(&markers)).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoRootWorkingFolder)
	assert.True(t, src.loggedOut)
	assert.Equal(t, 1, v.finalized)
	assert.Equal(t, []int64{ProgressFinalize}, markers)
}

func TestRunDeclinedFromStart(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	src := newFakeSource()
	op := &fakeOperator{answer: false}

	config := testConfig(nil)
	config.AssumeFromStart = false
	config.Operator = op

	_, err := newTestMigration(t, v, src, config).Run(context.Background())
	assert.ErrorIs(t, err, ErrResumeDeclined)
	assert.Equal(t, []string{"main/0"}, op.asked)
	assert.Empty(t, v.commits)
	assert.True(t, src.loggedOut)
	assert.Equal(t, 1, v.finalized)
}

func TestRunWithoutOperatorDeclines(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	config := testConfig(nil)
	config.AssumeFromStart = false

	_, err := newTestMigration(t, v, newFakeSource(), config).Run(context.Background())
	assert.ErrorIs(t, err, ErrResumeDeclined)
}

func TestScanResume(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	v.branches["main"] = []string{
		BuildMessage("first", Provenance{Path: "MyRepo$/Proj", Revision: 10, TxID: 100}),
		"manual fix\n",
		BuildMessage("elsewhere", Provenance{Path: "MyRepo$/Other", Revision: 50, TxID: 500}),
	}
	ctx := context.Background()

	m := newTestMigration(t, v, newFakeSource(), testConfig(nil))
	rp, err := m.scanResume(ctx, "main", "myrepo$/proj", 20)
	require.NoError(t, err)
	assert.True(t, rp.Found)
	assert.Equal(t, int64(10), rp.Revision)
	assert.Equal(t, 3, rp.Searched)

	rp, err = m.scanResume(ctx, "main", "MyRepo$/Proj", 2)
	require.NoError(t, err)
	assert.False(t, rp.Found)
	assert.False(t, rp.Exhausted)
	assert.Equal(t, 2, rp.Searched)

	rp, err = m.scanResume(ctx, "missing", "MyRepo$/Proj", 20)
	require.NoError(t, err)
	assert.True(t, rp.Exhausted)
	assert.Equal(t, 0, rp.Searched)

	config := testConfig(nil)
	config.LooseResume = true
	loose := newTestMigration(t, v, newFakeSource(), config)
	rp, err = loose.scanResume(ctx, "main", "MyRepo$/Proj", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(50), rp.Revision)
	assert.Equal(t, 1, rp.Searched)
}

func TestResolveResumeLimitExceeded(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	v.branches["main"] = []string{
		BuildMessage("first", Provenance{Path: "MyRepo$/Proj", Revision: 10, TxID: 100}),
		"manual fix\n",
		"another\n",
	}
	op := &fakeOperator{answer: true}

	config := testConfig(nil)
	config.AssumeFromStart = false
	config.RestartLimit = 2
	config.Operator = op

	m := newTestMigration(t, v, newFakeSource(), config)
	rev, err := m.resolveResume(context.Background(), config.Branches[0])
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)
	assert.Equal(t, []string{"main/2"}, op.asked)
}

func TestResolveResumeDisabled(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	v.branches["main"] = []string{
		BuildMessage("first", Provenance{Path: "MyRepo$/Proj", Revision: 10, TxID: 100}),
	}
	config := testConfig(nil)
	config.RestartLimit = 0

	m := newTestMigration(t, v, newFakeSource(), config)
	rev, err := m.resolveResume(context.Background(), config.Branches[0])
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)
}

func TestRunCheckoutFailure(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	v.checkoutFails = -1
	src := newFakeSource()

	config := testConfig(nil)
	config.Branches = []BranchMapping{{Branch: "feature", Path: "$/Proj"}}
	config.CheckoutAttempts = 3

	_, err := newTestMigration(t, v, src, config).Run(context.Background())
	assert.ErrorIs(t, err, ErrCheckoutFailed)
	assert.Equal(t, []string{"feature orphan", "feature orphan", "feature orphan"}, v.checkouts)
	assert.Empty(t, v.commits)
	assert.Equal(t, map[string]string{"$": "/srv/vault"}, src.folders)
	assert.True(t, src.loggedOut)
}

func TestRunCheckoutRetries(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	v.branches["feature"] = nil
	v.checkoutFails = 2

	config := testConfig(nil)
	config.Branches = []BranchMapping{{Branch: "feature", Path: "$/Proj"}}

	_, err := newTestMigration(t, v, newFakeSource(), config).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"feature", "feature", "feature", "main"}, v.checkouts)
	assert.Len(t, v.branches["feature"], 3)
}

func TestRunCreatesOrphanBranch(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "stale.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, ".gitignore"), []byte("*.tmp\n"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(workDir, "keep"), 0755))

	v := newFakeVCS(workDir)
	config := testConfig(nil)
	config.Branches = []BranchMapping{{Branch: "feature", Path: "$/Proj"}}
	config.Keep = []string{"KEEP"}

	_, err := newTestMigration(t, v, newFakeSource(), config).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"feature orphan", "main"}, v.checkouts)
	assert.Len(t, v.branches["feature"], 3)
	assert.Empty(t, v.branches["main"])
	assert.NoFileExists(t, filepath.Join(workDir, "stale.txt"))
	assert.FileExists(t, filepath.Join(workDir, ".gitignore"))
	assert.DirExists(t, filepath.Join(workDir, "keep"))
}

func TestRunOrdersCurrentBranchFirst(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	v.current = "feature"
	v.branches["feature"] = nil

	config := testConfig(nil)
	config.Branches = []BranchMapping{
		{Branch: "main", Path: "$/Proj"},
		{Branch: "feature", Path: "$/Proj"},
	}

	summary, err := newTestMigration(t, v, newFakeSource(), config).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Branches, 2)
	assert.Equal(t, "feature", summary.Branches[0].Branch)
	assert.Equal(t, "main", summary.Branches[1].Branch)
	assert.Equal(t, []string{"main", "feature"}, v.checkouts)
	assert.Equal(t, "feature", v.current)
}

func TestRunReleasesConflictingBinding(t *testing.T) {
	workDir := t.TempDir()
	v := newFakeVCS(workDir)
	src := newFakeSource()
	src.folders["$/Old"] = workDir
	src.folders["$/Proj"] = "/srv/proj"

	_, err := newTestMigration(t, v, src, testConfig(nil)).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, v.commits, 3)
	assert.Equal(t, map[string]string{
		"$":      "/srv/vault",
		"$/Old":  workDir,
		"$/Proj": "/srv/proj",
	}, src.folders)
}

func TestRunSkipEmptyCommits(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	v.changes = false

	var markers []int64
	config := testConfig(&markers)
	config.SkipEmptyCommits = true

	summary, err := newTestMigration(t, v, newFakeSource(), config).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v.commits)
	assert.Equal(t, 3, summary.Branches[0].Processed)
	assert.Equal(t, 0, summary.Branches[0].Committed)
	assert.Equal(t, 0, summary.Tags)
	assert.Equal(t, []int64{ProgressInit, 10, 11, 12, ProgressTags, ProgressFinalize}, markers)
}

func TestRunStopsOnProgressRequest(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	src := newFakeSource()

	var markers []int64
	config := testConfig(nil)
	config.Progress = func(marker int64, elapsed time.Duration) bool {
		markers = append(markers, marker)
		return marker == 10
	}

	summary, err := newTestMigration(t, v, src, config).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 1, summary.Branches[0].Processed)
	assert.Len(t, v.commits, 1)
	assert.Empty(t, v.tags)
	assert.Equal(t, []int64{ProgressInit, 10, ProgressFinalize}, markers)
	assert.Equal(t, map[string]string{"$": "/srv/vault"}, src.folders)
}

func TestRunLimit(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	config := testConfig(nil)
	config.Limit = 2

	summary, err := newTestMigration(t, v, newFakeSource(), config).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Branches[0].Processed)
	require.Len(t, v.commits, 2)
	assert.Contains(t, v.commits[1].Message, "@11/101")
}

func TestRunIgnoreLabels(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	var markers []int64
	config := testConfig(&markers)
	config.IgnoreLabels = true

	_, err := newTestMigration(t, v, newFakeSource(), config).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v.tags)
	assert.NotContains(t, markers, ProgressTags)
}

func TestRunPause(t *testing.T) {
	op := &fakeOperator{}
	config := testConfig(nil)
	config.Pause = true
	config.Operator = op

	_, err := newTestMigration(t, newFakeVCS(t.TempDir()), newFakeSource(), config).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, op.paused)

	op = &fakeOperator{pauseErr: errors.New("interrupted")}
	config.Operator = op
	v := newFakeVCS(t.TempDir())
	_, err = newTestMigration(t, v, newFakeSource(), config).Run(context.Background())
	assert.EqualError(t, err, "interrupted")
	assert.Empty(t, v.commits)
}

func TestRunCancelled(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())

	config := testConfig(nil)
	config.Progress = func(marker int64, elapsed time.Duration) bool {
		if marker == 10 {
			cancel()
		}
		return false
	}

	_, err := newTestMigration(t, v, src, config).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, v.commits, 1)
	assert.Equal(t, map[string]string{"$": "/srv/vault"}, src.folders)
	assert.True(t, src.loggedOut)
}

func TestSelectPending(t *testing.T) {
	history := newFakeSource().history

	pending := selectPending(history, 10, 0)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(11), pending[0].Revision)
	assert.Equal(t, int64(12), pending[1].Revision)

	pending = selectPending(history, 0, 1)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(10), pending[0].Revision)

	assert.Empty(t, selectPending(history, 12, 0))
}

func TestProvenanceRecordedPerTransaction(t *testing.T) {
	v := newFakeVCS(t.TempDir())
	m := newTestMigration(t, v, newFakeSource(), testConfig(nil))

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, m.Provenance().Len())
	id, ok := m.Provenance().Lookup(100)
	assert.True(t, ok)
	assert.Equal(t, "c001", id)
}
