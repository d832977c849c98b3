// Package git finds the files that changed in a Git working tree, so a
// conversion run can be limited to them.
package git

import (
	"errors"
	"fmt"
)

// ErrGitOperation indicates a failure in a Git operation: the path is not in
// a repository, a reference does not resolve, or the repository is unreadable.
var ErrGitOperation = errors.New("git operation failed")

// Modes accepted by GetChangedFiles.
const (
	// ModeDiffOnly selects staged and unstaged changes to tracked files.
	ModeDiffOnly = "diffOnly"
	// ModeSince selects files that differ between a reference and HEAD.
	ModeSince = "since"
)

// Errorf returns a formatted error that wraps ErrGitOperation.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrGitOperation}, args...)...)
}
