// Package source defines the client contract for the centralized
// version-control server a migration reads from, and the history data
// model it returns.
//
// Paths are server paths rooted at "$" and separated by "/", for example
// "$/Proj/src/Main.cs". They compare case-insensitively.
package source

import (
	"context"
	"strings"
	"time"
)

// Root is the server path of the repository root.
const Root = "$"

// Kind is the operation a transaction item performed on a path.
type Kind int

const (
	KindOther Kind = iota
	KindAdd
	KindEdit
	KindDelete
	KindRename
	KindMove
	KindShare
	KindAddFolder
	KindBranchCopy
)

var kindNames = map[Kind]string{
	KindOther:      "other",
	KindAdd:        "add",
	KindEdit:       "edit",
	KindDelete:     "delete",
	KindRename:     "rename",
	KindMove:       "move",
	KindShare:      "share",
	KindAddFolder:  "addfolder",
	KindBranchCopy: "branchcopy",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindOther]
}

// ParseKind maps an operation name to its Kind. Unknown names map to
// KindOther. "copybranch" is accepted as an alias of "branchcopy".
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "copybranch" {
		return KindBranchCopy
	}
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindOther
}

// Transaction is one history entry affecting a path.
type Transaction struct {
	// Revision orders transactions; replay must be strictly ascending
	Revision int64

	// TxID identifies the transaction on the server
	TxID int64

	// User is the author login
	User string

	Comment string
	Time    time.Time
}

// Item is one file-level operation within a transaction.
type Item struct {
	// Path is the primary item path
	Path string

	// Path2 is the destination for rename, move and share
	Path2 string

	Kind Kind

	// Revision is the item revision the operation produced
	Revision int64
}

// Label is a named marker attached to a transaction.
type Label struct {
	TxID    int64
	Text    string
	Comment string
}

// LoginOptions identify the server, account and repository.
type LoginOptions struct {
	Server     string
	User       string
	Password   string
	Repository string
}

// Client is a session with the source server.
//
// Get materializes server content under the local directory bound to
// the longest working-folder prefix of the requested path.
type Client interface {
	Login(ctx context.Context, opts LoginOptions) error
	Logout(ctx context.Context) error

	// History lists transactions affecting path, ascending by revision.
	// Zero times leave that end of the window open.
	History(ctx context.Context, path string, from, to time.Time) ([]Transaction, error)

	// TxDetail lists the item operations of one transaction.
	TxDetail(ctx context.Context, txID int64) ([]Item, error)

	// Get fetches path at revision into its bound working folder.
	Get(ctx context.Context, path string, revision int64, recursive bool) error

	// WorkingFolders maps bound server paths to local directories.
	WorkingFolders(ctx context.Context) (map[string]string, error)

	// SetWorkingFolder binds path to localDir. A binding that already
	// claims localDir yields a *WorkingFolderConflictError.
	SetWorkingFolder(ctx context.Context, path, localDir string) error

	RemoveWorkingFolder(ctx context.Context, path string) error

	// Labels lists every label applied at or below root.
	Labels(ctx context.Context, root string) ([]Label, error)
}
