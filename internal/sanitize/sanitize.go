// Package sanitize strips embedded source-control bindings from Visual
// Studio solution, project and deployment-project files.
//
// Every transformation is idempotent and leaves the rest of the file
// byte-for-byte intact, including line endings and any byte order mark.
package sanitize

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format identifies a file type the sanitizer knows how to clean.
type Format int

const (
	// FormatNone files pass through unchanged
	FormatNone Format = iota

	// FormatSolution is a .sln file
	FormatSolution

	// FormatProject is an MSBuild project (.csproj, .vbproj)
	FormatProject

	// FormatDeployment is a setup project (.vdproj)
	FormatDeployment
)

func (f Format) String() string {
	switch f {
	case FormatSolution:
		return "solution"
	case FormatProject:
		return "project"
	case FormatDeployment:
		return "deployment"
	default:
		return "none"
	}
}

// FormatOf returns the format implied by a file's extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sln":
		return FormatSolution
	case ".csproj", ".vbproj":
		return FormatProject
	case ".vdproj":
		return FormatDeployment
	default:
		return FormatNone
	}
}

// Bytes returns data with the bindings for format removed.
func Bytes(format Format, data []byte) ([]byte, error) {
	switch format {
	case FormatSolution:
		return Solution(data), nil
	case FormatProject:
		return Project(data)
	case FormatDeployment:
		return Deployment(data), nil
	default:
		return data, nil
	}
}

const (
	slnSectionStart = "GlobalSection(SourceCodeControl)"
	slnSectionEnd   = "EndGlobalSection"
	vdprojPrefix    = `"Scc`
)

// splitLines splits data after each "\n", keeping terminators.
func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	lines := bytes.SplitAfter(data, []byte("\n"))
	if len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Solution removes every SourceCodeControl global section, from its
// opening line through the matching EndGlobalSection. An unterminated
// section is left alone.
func Solution(data []byte) []byte {
	lines := splitLines(data)

	var out bytes.Buffer
	out.Grow(len(data))

	for i := 0; i < len(lines); i++ {
		if !bytes.HasPrefix(bytes.TrimSpace(lines[i]), []byte(slnSectionStart)) {
			out.Write(lines[i])
			continue
		}

		end := -1
		for j := i + 1; j < len(lines); j++ {
			if bytes.HasPrefix(bytes.TrimSpace(lines[j]), []byte(slnSectionEnd)) {
				end = j
				break
			}
		}
		if end < 0 {
			out.Write(lines[i])
			continue
		}
		i = end
	}

	return out.Bytes()
}

// Deployment drops every line whose trimmed text starts with "Scc.
func Deployment(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data))

	for _, line := range splitLines(data) {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte(vdprojPrefix)) {
			continue
		}
		out.Write(line)
	}

	return out.Bytes()
}
