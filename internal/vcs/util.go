package vcs

import (
	"strings"
)

// ===================
// Output Parsing Utilities
// ===================

// NonEmpty trims each line and drops the empty ones.
func NonEmpty(lines []string) []string {
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return result
}

// SplitOutput splits command output into lines, keeping interior empty
// lines and whitespace. Carriage returns before a newline are removed and
// the empty line after a final newline is dropped.
func SplitOutput(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	s := strings.ReplaceAll(string(output), "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// JoinOutput reassembles lines produced by SplitOutput.
func JoinOutput(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// FirstLine returns the first line of lines, or "" if there is none.
func FirstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}
