package sanitize

import (
	"bytes"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Config holds configuration for a Sanitizer.
type Config struct {
	// Logger for sanitizer activity
	Logger *log.Logger

	// Verbose logs a unified diff of every edit
	Verbose bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[sanitize] ", log.LstdFlags),
	}
}

// Sanitizer cleans files on disk.
type Sanitizer struct {
	config *Config
}

// New creates a Sanitizer. A nil config uses DefaultConfig.
func New(config *Config) *Sanitizer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	return &Sanitizer{config: config}
}

// File cleans path in place if its extension is a known format. The
// file is rewritten only when its content changes.
func (s *Sanitizer) File(path string) (bool, error) {
	format := FormatOf(path)
	if format == FormatNone {
		return false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	cleaned, err := Bytes(format, data)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if bytes.Equal(cleaned, data) {
		return false, nil
	}

	if s.config.Verbose {
		s.logDiff(path, data, cleaned)
	}

	if err := os.WriteFile(path, cleaned, info.Mode().Perm()|0200); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// Tree cleans every known file below root. Entries whose name
// contains "~" are temporary files and are skipped, as is .git.
// Errors on individual files are logged and counted, not returned.
func (s *Sanitizer) Tree(root string) (changed int, failed int, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		name := d.Name()
		if d.IsDir() {
			if name == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.Contains(name, "~") || FormatOf(name) == FormatNone {
			return nil
		}

		ok, ferr := s.File(path)
		if ferr != nil {
			s.config.Logger.Printf("Warning: %v", ferr)
			failed++
			return nil
		}
		if ok {
			changed++
		}
		return nil
	})
	return changed, failed, err
}

func (s *Sanitizer) logDiff(path string, before, after []byte) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: path + " (vault)",
		ToFile:   path + " (clean)",
		Context:  1,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		s.config.Logger.Printf("diff %s: %v", path, err)
		return
	}
	s.config.Logger.Printf("sanitized %s\n%s", path, text)
}
