package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	shutil "github.com/termie/go-shutil"
)

// removePath deletes path and everything below it, retrying while the
// filesystem still reports it. A missing path is not an error.
func removePath(path string, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		err = os.RemoveAll(path)
		if err == nil {
			if _, statErr := os.Lstat(path); os.IsNotExist(statErr) {
				return nil
			}
			err = fmt.Errorf("%s still exists after removal", path)
		}
	}
	return err
}

// preserved reports whether a top-level working tree entry survives a
// wipe: VCS control entries (.git, .gitignore, .gitattributes, ...)
// and the configured keep names.
func preserved(name string, keep []string) bool {
	if strings.HasPrefix(strings.ToLower(name), ".git") {
		return true
	}
	for _, k := range keep {
		if strings.EqualFold(name, k) {
			return true
		}
	}
	return false
}

// wipeTree empties root except for preserved entries. Entries that
// cannot be removed are returned, not treated as fatal.
func wipeTree(root string, keep []string, attempts int, delay time.Duration) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read working tree: %w", err)
	}

	var stuck []string
	for _, e := range entries {
		if preserved(e.Name(), keep) {
			continue
		}
		p := filepath.Join(root, e.Name())
		if err := removePath(p, attempts, delay); err != nil {
			stuck = append(stuck, p)
		}
	}
	return stuck, nil
}

// copyPath duplicates a file or directory to dst, replacing dst.
func copyPath(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}

	if fi.IsDir() {
		return shutil.CopyTree(src, dst, nil)
	}
	_, err = shutil.Copy(src, dst, false)
	return err
}

// movePath relocates a file or directory to dst, replacing dst.
func movePath(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if !samePath(src, dst) {
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}
	return os.Rename(src, dst)
}

// samePath reports whether a and b differ only in letter case, which a
// rename to fix casing produces.
func samePath(a, b string) bool {
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}

func exists(path string) (isDir bool, ok bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, false
	}
	return fi.IsDir(), true
}
