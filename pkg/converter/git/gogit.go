package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// patchTimeout bounds the diff computation in since mode.
const patchTimeout = 60 * time.Second

// GoGitClient finds changed files with the pure-Go go-git library, so no git
// binary is needed on the machine doing the conversion.
type GoGitClient struct {
	logger *slog.Logger
}

// NewGoGitClient creates a client logging to loggerHandler (nil discards).
func NewGoGitClient(loggerHandler slog.Handler) *GoGitClient {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "gitClient"), slog.String("backend", "go-git"))
	return &GoGitClient{logger: logger}
}

func (c *GoGitClient) openRepo(absPath string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, Errorf("repository not found at or above path '%s': %w", absPath, err)
		}
		return nil, Errorf("failed to open repository at '%s': %w", absPath, err)
	}
	return repo, nil
}

func (c *GoGitClient) resolveRevision(repo *gogit.Repository, refName string) (*plumbing.Hash, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(refName))
	if err != nil {
		c.logger.Error("Failed to resolve revision", slog.String("ref", refName), slog.Any("error", err))
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, Errorf("invalid git reference '%s': %w", refName, err)
		}
		return nil, Errorf("could not resolve git reference '%s': %w", refName, err)
	}
	return hash, nil
}

// GetChangedFiles returns the changed files below dir, as slash-separated
// paths relative to dir (which may be a subdirectory of the worktree).
//
// In ModeDiffOnly, staged and unstaged changes to tracked files count;
// untracked files do not. In ModeSince, files added or modified between ref
// and HEAD count; deleted files are left out since there is nothing to convert.
func (c *GoGitClient) GetChangedFiles(dir, mode string, ref string) ([]string, error) {
	logArgs := []any{slog.String("dir", dir), slog.String("mode", mode), slog.String("ref", ref)}
	c.logger.Debug("Getting changed files", logArgs...)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, Errorf("failed to get absolute path for '%s': %w", dir, err)
	}
	repo, err := c.openRepo(absDir)
	if err != nil {
		c.logger.Error("Failed to open repository", append(logArgs, slog.Any("error", err))...)
		return nil, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, Errorf("failed to get worktree for repository '%s': %w", dir, err)
	}

	var repoRelative []string
	switch mode {
	case ModeDiffOnly:
		repoRelative, err = c.statusChanges(worktree)
	case ModeSince:
		repoRelative, err = c.changesSince(repo, ref)
	default:
		return nil, Errorf("unsupported git diff mode: %s", mode)
	}
	if err != nil {
		c.logger.Error("Failed to list changed files", append(logArgs, slog.Any("error", err))...)
		return nil, err
	}

	prefix, err := filepath.Rel(worktree.Filesystem.Root(), absDir)
	if err != nil {
		return nil, Errorf("directory '%s' is not inside the worktree: %w", dir, err)
	}
	files := scopeToDir(repoRelative, filepath.ToSlash(prefix))
	c.logger.Debug("Found changed files", append(logArgs, slog.Int("count", len(files)))...)
	return files, nil
}

func (c *GoGitClient) statusChanges(worktree *gogit.Worktree) ([]string, error) {
	status, err := worktree.Status()
	if err != nil {
		return nil, Errorf("failed to get git status: %w", err)
	}
	var files []string
	for path, fs := range status {
		untracked := fs.Staging == gogit.Untracked && fs.Worktree == gogit.Untracked
		if untracked || (fs.Staging == gogit.Unmodified && fs.Worktree == gogit.Unmodified) {
			continue
		}
		if fs.Worktree == gogit.Deleted || (fs.Staging == gogit.Deleted && fs.Worktree == gogit.Unmodified) {
			continue
		}
		files = append(files, filepath.ToSlash(path))
		c.logger.Debug("DiffOnly: changed file", slog.String("path", path),
			slog.String("status", fmt.Sprintf("%c%c", fs.Staging, fs.Worktree)))
	}
	return files, nil
}

func (c *GoGitClient) changesSince(repo *gogit.Repository, ref string) ([]string, error) {
	if ref == "" {
		return nil, Errorf("git diff mode 'since' requires a non-empty reference")
	}
	headRef, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			c.logger.Warn("HEAD reference not found, repository might be empty")
			return nil, nil
		}
		return nil, Errorf("failed to get HEAD reference: %w", err)
	}
	headCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, Errorf("failed to get HEAD commit: %w", err)
	}
	sinceHash, err := c.resolveRevision(repo, ref)
	if err != nil {
		return nil, err
	}
	sinceCommit, err := repo.CommitObject(*sinceHash)
	if err != nil {
		return nil, Errorf("failed to get commit for reference '%s': %w", ref, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), patchTimeout)
	defer cancel()
	patch, err := sinceCommit.PatchContext(ctx, headCommit)
	if err != nil {
		return nil, Errorf("failed to diff '%s' against HEAD: %w", ref, err)
	}

	var files []string
	for _, fp := range patch.FilePatches() {
		if _, to := fp.Files(); to != nil {
			files = append(files, filepath.ToSlash(to.Path()))
		}
	}
	return files, nil
}

// scopeToDir keeps the paths below prefix and makes them relative to it.
func scopeToDir(paths []string, prefix string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if prefix != "." && prefix != "" {
			if !strings.HasPrefix(p, prefix+"/") {
				continue
			}
			p = strings.TrimPrefix(p, prefix+"/")
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
