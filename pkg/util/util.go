// Package util holds path matching helpers shared by the walker and tree listing.
package util

import (
	"path/filepath"
	"strings"
)

// MatchesGitignore reports whether pathToMatchRel (relative to walkerBaseAbsPath)
// matches a gitignore-style pattern defined in patternBaseAbsPath.
//
// Matching uses filepath.Match per path suffix, so "**" behaves like "*" and
// does not cross directory boundaries.
func MatchesGitignore(pattern, patternBaseAbsPath, walkerBaseAbsPath, pathToMatchRel string, isRooted bool) bool {
	pattern = filepath.ToSlash(pattern)
	pathToMatchRel = filepath.ToSlash(pathToMatchRel)
	if pattern == "" || pathToMatchRel == "" || pathToMatchRel == "." {
		return false
	}

	pathToMatchAbs := filepath.Join(walkerBaseAbsPath, filepath.FromSlash(pathToMatchRel))
	relToPatternBase, err := filepath.Rel(patternBaseAbsPath, pathToMatchAbs)
	if err != nil {
		return false
	}
	relToPatternBase = filepath.ToSlash(relToPatternBase)
	if strings.HasPrefix(relToPatternBase, "../") {
		return false // outside the ignore file's directory
	}

	if match, _ := filepath.Match(pattern, relToPatternBase); match {
		return true
	}
	if isRooted {
		return false
	}

	// Unrooted patterns may match at any depth, and a matching directory
	// component excludes everything below it.
	parts := strings.Split(relToPatternBase, "/")
	for i := range parts {
		for j := len(parts); j > i; j-- {
			if match, _ := filepath.Match(pattern, strings.Join(parts[i:j], "/")); match {
				return true
			}
		}
	}
	return false
}

// MatchesExtension reports whether name ends with one of the suffixes,
// ignoring case. A list without any non-blank suffix matches every name.
func MatchesExtension(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	configured := false
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		configured = true
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return !configured
}

// NormalizeExtensions trims the entries and ensures each starts with a dot,
// so "java" and ".java" configure the same filter. Empty entries are dropped.
func NormalizeExtensions(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
