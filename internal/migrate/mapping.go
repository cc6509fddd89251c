package migrate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/vault2git/internal/source"
)

// BranchMapping pairs a target branch with the source path it mirrors.
type BranchMapping struct {
	Branch string `mapstructure:"branch" toml:"branch" yaml:"branch"`
	Path   string `mapstructure:"path" toml:"path" yaml:"path"`
}

func (b BranchMapping) String() string {
	return b.Path + "~" + b.Branch
}

// ParsePaths parses "sourcePath~branch;sourcePath~branch" lists.
// Empty entries are ignored.
func ParsePaths(s string) ([]BranchMapping, error) {
	var out []BranchMapping
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		i := strings.LastIndex(entry, "~")
		if i <= 0 || i == len(entry)-1 {
			return nil, fmt.Errorf("invalid path mapping %q: want <sourcePath>~<branch>", entry)
		}
		out = append(out, BranchMapping{
			Path:   source.Clean(strings.TrimSpace(entry[:i])),
			Branch: strings.TrimSpace(entry[i+1:]),
		})
	}
	return out, nil
}

func validateMappings(ms []BranchMapping) error {
	seen := make(map[string]bool, len(ms))
	for _, m := range ms {
		if m.Branch == "" {
			return fmt.Errorf("mapping for %q has no branch", m.Path)
		}
		if m.Path == "" {
			return fmt.Errorf("branch %q has no source path", m.Branch)
		}
		key := strings.ToLower(m.Branch)
		if seen[key] {
			return fmt.Errorf("branch %q is mapped more than once", m.Branch)
		}
		seen[key] = true
	}
	return nil
}

// orderMappings moves the mapping for the current branch first so the
// run starts without a checkout. The rest keep their relative order.
func orderMappings(ms []BranchMapping, current string) []BranchMapping {
	out := append([]BranchMapping(nil), ms...)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.EqualFold(out[i].Branch, current) && !strings.EqualFold(out[j].Branch, current)
	})
	return out
}

// Select returns the mappings for the named branches, in the order
// given. An unknown name is an error.
func Select(ms []BranchMapping, names []string) ([]BranchMapping, error) {
	if len(names) == 0 {
		return ms, nil
	}
	var out []BranchMapping
	for _, name := range names {
		found := false
		for _, m := range ms {
			if strings.EqualFold(m.Branch, name) {
				out = append(out, m)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("branch %q is not configured", name)
		}
	}
	return out, nil
}
