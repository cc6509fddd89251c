package git

import "github.com/steveyegge/vault2git/internal/vcs"

// init registers the git VCS implementation.
// This is called automatically when the package is imported.
func init() {
	vcs.Register(vcs.TypeGit, func(repoRoot string, runner *vcs.Runner) (vcs.VCS, error) {
		return New(repoRoot, runner)
	})
}
