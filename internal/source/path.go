package source

import (
	"strings"

	"golang.org/x/text/cases"
)

// segments splits a server path into its components, ignoring empty
// ones produced by doubled or trailing separators.
func segments(p string) []string {
	parts := strings.Split(strings.ReplaceAll(p, "\\", "/"), "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func foldEqual(a, b string) bool {
	if a == b {
		return true
	}
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

// Rel returns p relative to root, using "/" separators, and whether p
// lies at or below root. Comparison is case-insensitive and respects
// component boundaries, so "$/Proj2/x" is not below "$/Proj".
func Rel(p, root string) (string, bool) {
	ps, rs := segments(p), segments(root)
	if len(ps) < len(rs) {
		return "", false
	}
	for i := range rs {
		if !foldEqual(ps[i], rs[i]) {
			return "", false
		}
	}
	return strings.Join(ps[len(rs):], "/"), true
}

// Within reports whether p lies at or below root.
func Within(p, root string) bool {
	_, ok := Rel(p, root)
	return ok
}

// SamePath reports whether a and b name the same server path.
func SamePath(a, b string) bool {
	rel, ok := Rel(a, b)
	return ok && rel == ""
}

// Clean normalizes separators and drops a trailing "/".
func Clean(p string) string {
	return strings.Join(segments(p), "/")
}

// FoldKey returns a map key under which equal server paths collide.
func FoldKey(p string) string {
	return cases.Fold().String(Clean(p))
}
