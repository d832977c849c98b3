package converter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-enry/go-enry/v2"
	"github.com/stackvity/to-utf/pkg/util"
)

// Walker traverses the input directory, applies the extension, ignore,
// vendored and git filters, and dispatches eligible files to the worker pool.
type Walker struct {
	opts                 *Options
	workerChan           chan<- string
	wg                   *sync.WaitGroup
	hooks                Hooks
	logger               *slog.Logger
	ignoreMatcher        *ignoreMatcher
	gitDiffMap           map[string]struct{}
	dispatchWarnDuration time.Duration
}

// NewWalker creates a new Walker instance.
func NewWalker(opts *Options, workerChan chan<- string, wg *sync.WaitGroup, loggerHandler slog.Handler) (*Walker, error) {
	logger := slog.New(loggerHandler).With(slog.String("component", "walker"))
	ignoreMatcher, err := newIgnoreMatcher(opts.InputPath, opts.IgnorePatterns, logger)
	if err != nil {
		logger.Error("Failed to initialize ignore pattern matcher", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to initialize ignore patterns: %w", err)
	}
	logger.Debug("Ignore patterns loaded", slog.Int("count", ignoreMatcher.patternCount()))

	gitDiffMap := make(map[string]struct{})
	if opts.GitDiffMode == GitDiffModeDiffOnly || opts.GitDiffMode == GitDiffModeSince {
		if opts.GitChangedFiles == nil {
			logger.Warn("Git diff mode active but no changed files map provided via Options.GitChangedFiles")
		} else {
			logger.Debug("Git diff mode active, using provided filter map",
				slog.String("mode", string(opts.GitDiffMode)),
				slog.Int("files_in_diff", len(opts.GitChangedFiles)))
			gitDiffMap = opts.GitChangedFiles
		}
	}

	dispatchWarnDuration := opts.DispatchWarnThreshold
	if dispatchWarnDuration <= 0 {
		dispatchWarnDuration = DefaultDispatchWarnThreshold
	}
	hooks := opts.EventHooks
	if hooks == nil {
		hooks = &NoOpHooks{}
	}
	return &Walker{
		opts:                 opts,
		workerChan:           workerChan,
		wg:                   wg,
		hooks:                hooks,
		logger:               logger,
		ignoreMatcher:        ignoreMatcher,
		gitDiffMap:           gitDiffMap,
		dispatchWarnDuration: dispatchWarnDuration,
	}, nil
}

// StartWalk traverses the tree and closes the worker channel when done.
func (w *Walker) StartWalk(ctx context.Context) error {
	w.logger.Info("Starting directory walk", slog.String("path", w.opts.InputPath))
	walkErr := filepath.WalkDir(w.opts.InputPath, w.walkFunc(ctx))
	close(w.workerChan)
	w.logger.Debug("Worker channel closed")
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			w.logger.Info("Directory walk cancelled", slog.String("reason", walkErr.Error()))
			return walkErr
		}
		w.logger.Error("Directory walk encountered an error during traversal", slog.String("error", walkErr.Error()))
		return fmt.Errorf("directory walk failed: %w", walkErr)
	}
	w.logger.Info("Directory walk completed")
	return nil
}

func (w *Walker) skip(relativePath, reason, details string) {
	msg := reason
	if details != "" {
		msg = reason + ": " + details
	}
	if hookErr := w.hooks.OnFileStatusUpdate(relativePath, StatusSkipped, msg, 0); hookErr != nil {
		w.logger.Warn("Event hook OnFileStatusUpdate failed", slog.String("path", relativePath), slog.String("error", hookErr.Error()))
	}
}

func (w *Walker) walkFunc(ctx context.Context) fs.WalkDirFunc {
	isGitDiffActive := w.opts.GitDiffMode == GitDiffModeDiffOnly || w.opts.GitDiffMode == GitDiffModeSince
	return func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Error accessing path during walk", slog.String("path", path), slog.String("error", err.Error()))
			if path == w.opts.InputPath {
				return fmt.Errorf("cannot read input directory %q: %w", path, err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.Type()&fs.ModeSymlink != 0 {
			w.logger.Debug("Skipping symbolic link", slog.String("path", path))
			return nil
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			w.logger.Warn("Could not get absolute path", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		relativePath, err := filepath.Rel(w.opts.InputPath, absPath)
		if err != nil {
			w.logger.Warn("Could not calculate relative path", slog.String("path", absPath), slog.String("error", err.Error()))
			return nil
		}
		relativePath = filepath.ToSlash(relativePath)
		if relativePath == "." {
			return nil
		}

		if d.IsDir() {
			if w.opts.SkipVendored && (enry.IsDotFile(relativePath) || enry.IsVendor(relativePath+"/")) {
				w.logger.Debug("Skipping vendored or hidden directory", slog.String("path", relativePath))
				return filepath.SkipDir
			}
			if w.ignoreMatcher.Match(relativePath, true) {
				w.logger.Debug("Directory ignored", slog.String("path", relativePath),
					slog.String("pattern", w.ignoreMatcher.LastMatchPattern(relativePath, true)))
				return filepath.SkipDir
			}
			return nil
		}

		// Only candidates for conversion are announced; everything else is silent.
		if isOwnArtifact(d.Name()) || !util.MatchesExtension(d.Name(), w.opts.Extensions) {
			return nil
		}
		if hookErr := w.hooks.OnFileDiscovered(relativePath); hookErr != nil {
			w.logger.Warn("Event hook OnFileDiscovered failed", slog.String("path", relativePath), slog.String("error", hookErr.Error()))
		}

		if w.ignoreMatcher.Match(relativePath, false) {
			pattern := w.ignoreMatcher.LastMatchPattern(relativePath, false)
			w.logger.Debug("Path ignored", slog.String("path", relativePath), slog.String("pattern", pattern))
			w.skip(relativePath, SkipReasonIgnored, pattern)
			return nil
		}
		if w.opts.SkipVendored && (enry.IsVendor(relativePath) || enry.IsDotFile(relativePath)) {
			w.logger.Debug("Path is vendored or hidden", slog.String("path", relativePath))
			w.skip(relativePath, SkipReasonVendored, "")
			return nil
		}
		if isGitDiffActive {
			if _, found := w.gitDiffMap[relativePath]; !found {
				w.logger.Debug("Path excluded by Git diff", slog.String("path", relativePath))
				w.skip(relativePath, SkipReasonGitExclude, string(w.opts.GitDiffMode))
				return nil
			}
		}

		w.logger.Debug("Dispatching file to worker channel", slog.String("path", relativePath))
		timer := time.NewTimer(w.dispatchWarnDuration)
		defer timer.Stop()
		select {
		case w.workerChan <- absPath:
		case <-timer.C:
			w.logger.Warn("Worker channel dispatch blocked, workers might be busy or pool too small", slog.String("path", relativePath), slog.Duration("threshold", w.dispatchWarnDuration))
			select {
			case w.workerChan <- absPath:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
}

// --- ignoreMatcher ---

type ignoreMatcher struct {
	patterns []ignorePattern
	basePath string // Absolute path to the input directory
	logger   *slog.Logger
}

type ignorePattern struct {
	pattern     string // Cleaned pattern using '/' separators
	origPattern string // As written, for reporting
	negated     bool
	isDirOnly   bool
	isRooted    bool   // Pattern started with '/' relative to its base
	baseAbsPath string // Directory of the defining ignore file, or the input path
}

func newIgnoreMatcher(inputPath string, configPatterns []string, logger *slog.Logger) (*ignoreMatcher, error) {
	absInputPath, err := filepath.Abs(inputPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for input: %w", err)
	}
	matcher := &ignoreMatcher{
		basePath: absInputPath,
		logger:   logger.With(slog.String("component", "ignoreMatcher")),
	}
	ignoreFilePath, err := findIgnoreFile(absInputPath)
	if err != nil {
		matcher.logger.Warn("Error searching for ignore file", slog.String("name", IgnoreFileName), slog.String("error", err.Error()))
	}
	if ignoreFilePath != "" {
		filePatterns, err := loadPatternsFromFile(ignoreFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load ignore file %s: %w", ignoreFilePath, err)
		}
		matcher.addPatterns(filePatterns, filepath.Dir(ignoreFilePath))
		matcher.logger.Debug("Loaded patterns from ignore file", slog.String("path", ignoreFilePath), slog.Int("count", len(filePatterns)))
	}
	matcher.addPatterns(configPatterns, absInputPath)
	return matcher, nil
}

// findIgnoreFile walks up from absStartPath looking for IgnoreFileName.
func findIgnoreFile(absStartPath string) (string, error) {
	currentPath := absStartPath
	for {
		potentialPath := filepath.Join(currentPath, IgnoreFileName)
		if _, err := os.Stat(potentialPath); err == nil {
			return potentialPath, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("error checking for ignore file at %s: %w", potentialPath, err)
		}
		parent := filepath.Dir(currentPath)
		if parent == currentPath || parent == "" {
			break
		}
		currentPath = parent
	}
	return "", nil
}

func loadPatternsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open ignore file %s: %w", filePath, err)
	}
	defer file.Close()
	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", filePath, err)
	}
	return patterns, nil
}

func (m *ignoreMatcher) addPatterns(rawPatterns []string, baseAbsPath string) {
	for _, rawPattern := range rawPatterns {
		p := ignorePattern{origPattern: rawPattern, baseAbsPath: baseAbsPath}
		trimmed := strings.TrimSpace(rawPattern)
		if strings.HasPrefix(trimmed, "!") {
			p.negated = true
			trimmed = strings.TrimSpace(trimmed[1:])
		}
		if strings.HasPrefix(trimmed, "/") {
			p.isRooted = true
			trimmed = strings.TrimPrefix(trimmed, "/")
		}
		if strings.HasSuffix(trimmed, "/") {
			p.isDirOnly = true
			trimmed = strings.TrimSuffix(trimmed, "/")
		}
		p.pattern = filepath.ToSlash(trimmed)
		if p.pattern == "" {
			continue
		}
		m.patterns = append(m.patterns, p)
	}
}

// evaluate applies the patterns in order; the last match wins.
func (m *ignoreMatcher) evaluate(relativePath string, isDir bool) (ignored bool, pattern string) {
	for _, p := range m.patterns {
		if p.isDirOnly && !isDir {
			continue
		}
		if util.MatchesGitignore(p.pattern, p.baseAbsPath, m.basePath, relativePath, p.isRooted) {
			ignored = !p.negated
			pattern = p.origPattern
		}
	}
	return ignored, pattern
}

// Match reports whether relativePath is excluded by the ignore patterns.
func (m *ignoreMatcher) Match(relativePath string, isDir bool) bool {
	ignored, _ := m.evaluate(relativePath, isDir)
	return ignored
}

// LastMatchPattern returns the pattern that excluded relativePath, or "".
func (m *ignoreMatcher) LastMatchPattern(relativePath string, isDir bool) string {
	ignored, pattern := m.evaluate(relativePath, isDir)
	if !ignored {
		return ""
	}
	return pattern
}

func (m *ignoreMatcher) patternCount() int {
	return len(m.patterns)
}
