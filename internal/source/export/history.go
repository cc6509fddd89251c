package export

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/steveyegge/vault2git/internal/source"
)

// history is an export's transactions keyed by revision.
type history struct {
	repository string

	// byRevision maps int64 revision -> *manifestTx, ascending
	byRevision *treemap.Map

	byTxID map[int64]*manifestTx
	labels []manifestLabel
}

func newHistory(m *manifest) (*history, error) {
	h := &history{
		repository: m.Repository,
		byRevision: treemap.NewWith(utils.Int64Comparator),
		byTxID:     make(map[int64]*manifestTx, len(m.Transactions)),
		labels:     m.Labels,
	}

	for i := range m.Transactions {
		tx := &m.Transactions[i]
		if tx.Revision <= 0 {
			return nil, fmt.Errorf("transaction %d: revision must be positive", tx.ID)
		}
		if _, dup := h.byRevision.Get(tx.Revision); dup {
			return nil, fmt.Errorf("transaction %d: duplicate revision %d", tx.ID, tx.Revision)
		}
		if _, dup := h.byTxID[tx.ID]; dup {
			return nil, fmt.Errorf("duplicate transaction id %d", tx.ID)
		}
		h.byRevision.Put(tx.Revision, tx)
		h.byTxID[tx.ID] = tx
	}

	return h, nil
}

// each visits transactions in ascending revision order until fn
// returns false.
func (h *history) each(fn func(tx *manifestTx) bool) {
	it := h.byRevision.Iterator()
	for it.Next() {
		if !fn(it.Value().(*manifestTx)) {
			return
		}
	}
}

// touches reports whether any item of tx reads or writes below root.
func touches(tx *manifestTx, root string) bool {
	for _, it := range tx.Items {
		if source.Within(it.Path, root) {
			return true
		}
		if it.Path2 != "" && source.Within(it.Path2, root) {
			return true
		}
	}
	return false
}

// blob locates the content an add or edit item stored.
type blob struct {
	txID int64
	rel  string
}

func (b blob) file(dir string) string {
	return filepath.Join(dir, BlobDir, fmt.Sprint(b.txID), filepath.FromSlash(b.rel))
}

// tree is the set of files at one revision, keyed by folded server path.
type tree struct {
	files map[string]treeEntry
}

type treeEntry struct {
	path string
	blob blob
}

// move relocates every file at or below from to the same relative
// place below to. With keep set the originals stay (share).
func (t *tree) move(from, to string, keep bool) {
	type pending struct {
		k string
		e treeEntry
	}
	var moved []pending

	for k, e := range t.files {
		rel, ok := source.Rel(e.path, from)
		if !ok {
			continue
		}
		dst := source.Clean(to)
		if rel != "" {
			dst = dst + "/" + rel
		}
		moved = append(moved, pending{k: k, e: treeEntry{path: dst, blob: e.blob}})
	}

	for _, p := range moved {
		if !keep {
			delete(t.files, p.k)
		}
	}
	for _, p := range moved {
		t.files[source.FoldKey(p.e.path)] = p.e
	}
}

func (t *tree) remove(p string) {
	for k, e := range t.files {
		if source.Within(e.path, p) {
			delete(t.files, k)
		}
	}
}

// treeAt replays history up to and including revision.
func (h *history) treeAt(revision int64) *tree {
	t := &tree{files: make(map[string]treeEntry)}

	h.each(func(tx *manifestTx) bool {
		if tx.Revision > revision {
			return false
		}
		for _, it := range tx.Items {
			switch source.ParseKind(it.Kind) {
			case source.KindDelete:
				t.remove(it.Path)
			case source.KindRename, source.KindMove:
				t.move(it.Path, it.Path2, false)
			case source.KindShare:
				t.move(it.Path, it.Path2, true)
			case source.KindAddFolder, source.KindBranchCopy:
			default:
				rel, _ := source.Rel(it.Path, source.Root)
				clean := source.Clean(it.Path)
				t.files[source.FoldKey(clean)] = treeEntry{path: clean, blob: blob{txID: tx.ID, rel: rel}}
			}
		}
		return true
	})

	return t
}

// under returns the entries at or below root, sorted by path.
func (t *tree) under(root string) []treeEntry {
	var out []treeEntry
	for _, e := range t.files {
		if source.Within(e.path, root) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}
