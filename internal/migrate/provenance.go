package migrate

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ProvenanceMarker opens the provenance line of every synthesized
// commit message.
const ProvenanceMarker = "[git-vault-id]"

// Provenance is the source position a commit was built from.
type Provenance struct {
	// Path is the repository name followed by the branch source path,
	// e.g. "MyRepo$/Proj".
	Path     string
	Revision int64
	TxID     int64
}

func (p Provenance) String() string {
	return fmt.Sprintf("%s %s@%d/%d", ProvenanceMarker, p.Path, p.Revision, p.TxID)
}

// BuildMessage returns the commit message for a transaction: its
// comment followed by the provenance line.
func BuildMessage(comment string, p Provenance) string {
	return comment + "\n" + p.String() + "\n"
}

// ParseProvenance extracts the provenance from the last non-empty line
// of a commit message. It reports false when that line carries no
// marker or the revision does not parse.
func ParseProvenance(message string) (Provenance, bool) {
	lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")

	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			last = strings.TrimSpace(lines[i])
			break
		}
	}

	i := strings.LastIndex(last, ProvenanceMarker)
	if i < 0 {
		return Provenance{}, false
	}
	tag := strings.TrimSpace(last[i+len(ProvenanceMarker):])

	at := strings.LastIndex(tag, "@")
	if at < 0 {
		return Provenance{}, false
	}
	path, ids := tag[:at], tag[at+1:]

	revText, txText, _ := strings.Cut(ids, "/")
	rev, err := strconv.ParseInt(revText, 10, 64)
	if err != nil {
		return Provenance{}, false
	}
	tx, _ := strconv.ParseInt(txText, 10, 64)

	return Provenance{Path: path, Revision: rev, TxID: tx}, true
}

// commitID extracts the commit id from the first line git commit
// prints, "[branch (root-commit) abc1234] subject". The line must name
// branch; otherwise no id is reported.
func commitID(output []string, branch string) (string, bool) {
	if len(output) == 0 {
		return "", false
	}
	line := output[0]

	prefix := "[" + branch
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	rest := line[len(prefix):]
	if !strings.HasPrefix(rest, " ") {
		return "", false
	}

	end := strings.Index(rest, "]")
	if end < 0 {
		return "", false
	}
	fields := strings.Fields(rest[:end])
	if len(fields) == 0 {
		return "", false
	}
	return fields[len(fields)-1], true
}

// ProvenanceMap records the commit created for each transaction during
// one run. It is never persisted.
type ProvenanceMap struct {
	mu      sync.RWMutex
	commits map[int64]string
}

// NewProvenanceMap creates an empty map.
func NewProvenanceMap() *ProvenanceMap {
	return &ProvenanceMap{commits: make(map[int64]string)}
}

// Record maps txID to commit. The first commit recorded for a
// transaction wins; Record reports false for later ones.
func (p *ProvenanceMap) Record(txID int64, commit string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.commits[txID]; exists {
		return false
	}
	p.commits[txID] = commit
	return true
}

// Lookup returns the commit recorded for txID.
func (p *ProvenanceMap) Lookup(txID int64) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.commits[txID]
	return c, ok
}

// Len returns the number of recorded transactions.
func (p *ProvenanceMap) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.commits)
}
