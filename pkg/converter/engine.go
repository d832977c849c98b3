package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stackvity/to-utf/pkg/converter/cache"
	"github.com/stackvity/to-utf/pkg/converter/encoding"
)

// ProcessorFactory defines a function type for creating FileProcessors.
type ProcessorFactory func(
	opts *Options,
	loggerHandler slog.Handler,
	cacheMgr CacheManager,
	detector encoding.CharsetDetector,
) *FileProcessor

// WalkerFactory defines a function type for creating Walkers.
type WalkerFactory func(
	opts *Options,
	workerChan chan<- string,
	wg *sync.WaitGroup,
	loggerHandler slog.Handler,
) (*Walker, error)

// Engine orchestrates a conversion run: one walker feeding a pool of workers
// whose results are collected into a Report.
type Engine struct {
	opts             *Options
	logger           *slog.Logger
	cacheManager     CacheManager
	processorFactory ProcessorFactory
	walkerFactory    WalkerFactory
	processor        *FileProcessor
	walker           *Walker
	aggregator       *reportAggregator
	runID            string
	ctx              context.Context
	cancelFunc       context.CancelFunc
	concurrency      int
	totalScanned     atomic.Int64
	fatalOccurred    atomic.Bool
}

// NewEngine validates opts and resolves the default dependencies.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	if opts.InputPath == "" {
		return nil, fmt.Errorf("%w: input path cannot be empty", ErrConfigValidation)
	}
	absInput, err := filepath.Abs(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving input path '%s': %w", ErrConfigValidation, opts.InputPath, err)
	}
	opts.InputPath = absInput
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot access input path '%s': %w", ErrConfigValidation, opts.InputPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: input path '%s' is not a directory", ErrConfigValidation, opts.InputPath)
	}

	if opts.DefaultEncoding == "" {
		opts.DefaultEncoding = DefaultEncoding
	}
	if _, err := encoding.Canonical(opts.DefaultEncoding); err != nil {
		return nil, fmt.Errorf("%w: default encoding: %w", ErrConfigValidation, err)
	}

	// --- Cache ---
	var cacheMgr CacheManager = &NoOpCacheManager{}
	switch {
	case opts.CacheManager != nil:
		cacheMgr = opts.CacheManager
		logger.Debug("Using provided CacheManager implementation")
	case opts.CacheEnabled && !opts.DryRun:
		if opts.CacheFilePath == "" {
			opts.CacheFilePath = filepath.Join(opts.InputPath, CacheFileName)
		}
		if opts.ClearCache {
			if rmErr := os.Remove(opts.CacheFilePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				logger.Warn("Failed to clear cache file", slog.String("path", opts.CacheFilePath), slog.String("error", rmErr.Error()))
			} else {
				logger.Info("Cache cleared", slog.String("path", opts.CacheFilePath))
			}
		}
		appVersion := opts.AppVersion
		if appVersion == "" {
			appVersion = "dev"
			logger.Warn("AppVersion not set in Options, using 'dev' for cache compatibility")
		}
		fileCache := cache.NewFileCacheManager(opts.Logger, cache.CacheSchemaVersion, appVersion, opts.CacheFormat)
		if loadErr := fileCache.Load(opts.CacheFilePath); loadErr != nil {
			logger.Warn("Failed to load cache file, starting with an empty cache", slog.String("path", opts.CacheFilePath), slog.String("error", loadErr.Error()))
		}
		cacheMgr = fileCache
	case opts.CacheEnabled && opts.DryRun:
		logger.Debug("Dry run, cache is read-only and not loaded")
		opts.CacheEnabled = false
	default:
		logger.Debug("Cache disabled. Using NoOpCacheManager.")
	}
	opts.CacheManager = cacheMgr

	if opts.CharsetDetector == nil {
		opts.CharsetDetector = encoding.NewCharsetDetector(encoding.WithSampleLimit(opts.SampleLimit))
	}

	// --- Git ---
	if opts.GitDiffMode == "" {
		opts.GitDiffMode = GitDiffModeNone
	}
	if opts.GitDiffMode != GitDiffModeNone && opts.GitChangedFiles == nil {
		if opts.GitClient == nil {
			return nil, fmt.Errorf("%w: GitClient required but not provided for git diff mode '%s'", ErrConfigValidation, opts.GitDiffMode)
		}
		changed, gitErr := opts.GitClient.GetChangedFiles(opts.InputPath, string(opts.GitDiffMode), opts.GitConfig.SinceRef)
		if gitErr != nil {
			return nil, fmt.Errorf("resolving changed files: %w", gitErr)
		}
		opts.GitChangedFiles = make(map[string]struct{}, len(changed))
		for _, f := range changed {
			opts.GitChangedFiles[filepath.ToSlash(f)] = struct{}{}
		}
		logger.Debug("Git filter resolved", slog.String("mode", string(opts.GitDiffMode)), slog.Int("files", len(changed)))
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
		opts.Concurrency = concurrency
		logger.Debug("Concurrency auto-detected", "count", concurrency)
	}

	processorFactory := opts.ProcessorFactory
	if processorFactory == nil {
		processorFactory = NewFileProcessor
	}
	walkerFactory := opts.WalkerFactory
	if walkerFactory == nil {
		walkerFactory = NewWalker
	}

	engineCtx, cancelFunc := context.WithCancel(ctx)
	return &Engine{
		opts:             &opts,
		logger:           logger,
		cacheManager:     cacheMgr,
		processorFactory: processorFactory,
		walkerFactory:    walkerFactory,
		aggregator:       newReportAggregator(),
		runID:            uuid.NewString(),
		ctx:              engineCtx,
		cancelFunc:       cancelFunc,
		concurrency:      concurrency,
	}, nil
}

// Run walks the input tree and converts every eligible file.
func (e *Engine) Run() (report Report, finalErr error) {
	startTime := time.Now()
	e.logger.Info("Starting conversion run",
		slog.String("runId", e.runID),
		slog.Int("concurrency", e.concurrency),
		slog.Bool("cacheEnabled", e.opts.CacheEnabled),
		slog.Bool("dryRun", e.opts.DryRun))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during engine run", "panicValue", r)
			e.fatalOccurred.Store(true)
			if finalErr == nil {
				finalErr = fmt.Errorf("panic during execution: %v", r)
			}
		}
		e.cancelFunc()

		if e.opts.CacheEnabled && e.cacheManager != nil {
			e.logger.Debug("Persisting cache index", "path", e.opts.CacheFilePath)
			if persistErr := e.cacheManager.Persist(e.opts.CacheFilePath); persistErr != nil {
				e.logger.Error("Failed to persist cache index", slog.String("path", e.opts.CacheFilePath), slog.String("error", persistErr.Error()))
				if finalErr == nil {
					finalErr = fmt.Errorf("failed to persist cache: %w", ErrCachePersist)
				}
			}
		}

		report = e.aggregator.getReport(e.opts, e.runID, startTime, e.totalScanned.Load(), e.fatalOccurred.Load())
		e.logger.Info("Conversion run finished",
			slog.Duration("duration", time.Since(startTime)),
			slog.Int("converted", report.Summary.ConvertedCount),
			slog.Int("assumed", report.Summary.AssumedCount),
			slog.Int("cached", report.Summary.CachedCount),
			slog.Int("skipped", report.Summary.SkippedCount),
			slog.Int("errors", report.Summary.ErrorCount),
			slog.Bool("fatalErrorOccurred", report.Summary.FatalErrorOccurred),
		)
		if hookErr := e.opts.EventHooks.OnRunComplete(report); hookErr != nil {
			e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
		}
	}()

	e.processor = e.processorFactory(e.opts, e.opts.Logger, e.cacheManager, e.opts.CharsetDetector)

	workerChan := make(chan string, e.concurrency)
	resultsChan := make(chan interface{}, e.concurrency)
	var wg sync.WaitGroup

	e.startWorkers(&wg, workerChan, resultsChan)

	walker, walkInitErr := e.walkerFactory(e.opts, workerChan, &wg, e.opts.Logger)
	if walkInitErr != nil {
		e.logger.Error("Failed to initialize directory walker", slog.String("error", walkInitErr.Error()))
		e.fatalOccurred.Store(true)
		close(workerChan)
		wg.Wait()
		close(resultsChan)
		aggregatorDone := make(chan struct{})
		go e.aggregateResults(resultsChan, aggregatorDone)
		<-aggregatorDone
		return Report{}, fmt.Errorf("walker initialization failed: %w", walkInitErr)
	}
	e.walker = walker

	aggregatorDone := make(chan struct{})
	go e.aggregateResults(resultsChan, aggregatorDone)

	walkerDone := make(chan error, 1)
	go func() {
		defer close(walkerDone)
		walkerErr := e.walker.StartWalk(e.ctx)
		if walkerErr != nil && !errors.Is(walkerErr, context.Canceled) && !errors.Is(walkerErr, context.DeadlineExceeded) {
			e.logger.Error("Directory walk failed critically", slog.String("error", walkerErr.Error()))
			walkerDone <- walkerErr
			if !e.fatalOccurred.Load() {
				e.fatalOccurred.Store(true)
				e.cancelFunc()
			}
		}
	}()

	finalWalkErr := <-walkerDone
	wg.Wait()
	close(resultsChan)
	<-aggregatorDone

	switch {
	case e.fatalOccurred.Load() && e.aggregator.getFirstFatalError() != nil:
		finalErr = fmt.Errorf("processing stopped due to fatal error: %w", e.aggregator.getFirstFatalError())
	case finalWalkErr != nil:
		finalErr = finalWalkErr
	case e.ctx.Err() != nil:
		e.logger.Info("Processing run cancelled", slog.String("reason", e.ctx.Err().Error()))
		e.fatalOccurred.Store(true)
		finalErr = e.ctx.Err()
	case e.fatalOccurred.Load():
		finalErr = errors.New("processing stopped due to fatal error")
	}
	// The deferred block builds the report.
	return Report{}, finalErr
}

func (e *Engine) startWorkers(wg *sync.WaitGroup, workerChan <-chan string, resultsChan chan<- interface{}) {
	e.logger.Debug("Starting worker pool", "count", e.concurrency)
	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go e.processFilesWorker(wg, i, workerChan, resultsChan)
	}
}

func (e *Engine) signalFatal(wLogger *slog.Logger, relPath string, err error) {
	if e.fatalOccurred.CompareAndSwap(false, true) {
		wLogger.Info("Worker detected fatal error condition, signalling stop", "path", relPath, "error", err)
		e.cancelFunc()
	}
}

func (e *Engine) processFilesWorker(wg *sync.WaitGroup, workerID int, workerChan <-chan string, resultsChan chan<- interface{}) {
	wLogger := e.logger.With(slog.Int("workerID", workerID))
	defer func() {
		if r := recover(); r != nil {
			wLogger.Error("Panic recovered in worker", "panicValue", r)
			resultsChan <- ErrorInfo{Path: "unknown (panic)", Error: fmt.Sprintf("panic: %v", r), IsFatal: true}
			e.signalFatal(wLogger, "", fmt.Errorf("panic: %v", r))
		}
		wg.Done()
	}()
	wLogger.Debug("Worker started")

	for {
		select {
		case filePath, ok := <-workerChan:
			if !ok {
				wLogger.Debug("Worker shutting down (channel closed)")
				return
			}
			relPath, _ := filepath.Rel(e.opts.InputPath, filePath)
			if relPath == "" || relPath == "." {
				relPath = filepath.Base(filePath)
			}
			relPath = filepath.ToSlash(relPath)
			e.notify(wLogger, relPath, StatusProcessing, "", 0)

			started := time.Now()
			result, status, err := e.processor.ProcessFile(e.ctx, filePath)
			elapsed := time.Since(started)

			if err != nil {
				isFatal := e.opts.OnErrorMode == OnErrorStop
				errorInfo := ErrorInfo{Path: relPath, Error: err.Error(), IsFatal: isFatal}
				if ei, ok := result.(ErrorInfo); ok {
					errorInfo = ei
					errorInfo.IsFatal = isFatal
				}
				resultsChan <- errorInfo
				e.notify(wLogger, relPath, StatusFailed, err.Error(), elapsed)
				if isFatal {
					e.signalFatal(wLogger, relPath, err)
				}
				continue
			}
			if result == nil {
				resultsChan <- ErrorInfo{Path: relPath, Error: "internal error: processor returned nil result without error", IsFatal: false}
				e.notify(wLogger, relPath, StatusFailed, "no result", elapsed)
				continue
			}
			resultsChan <- result
			if info, ok := result.(FileInfo); ok {
				e.notifyResult(wLogger, relPath, status, info, elapsed)
			} else {
				e.notify(wLogger, relPath, status, statusMessage(result), elapsed)
			}

		case <-e.ctx.Done():
			wLogger.Debug("Worker shutting down (context cancelled)")
			return
		}
	}
}

func (e *Engine) notify(wLogger *slog.Logger, relPath string, status Status, message string, d time.Duration) {
	if hookErr := e.opts.EventHooks.OnFileStatusUpdate(relPath, status, message, d); hookErr != nil {
		wLogger.Warn("Event hook OnFileStatusUpdate failed", slog.String("path", relPath), slog.String("error", hookErr.Error()))
	}
}

func (e *Engine) notifyResult(wLogger *slog.Logger, relPath string, status Status, info FileInfo, d time.Duration) {
	rh, ok := e.opts.EventHooks.(ResultHooks)
	if !ok {
		e.notify(wLogger, relPath, status, info.Listing, d)
		return
	}
	if hookErr := rh.OnFileResult(relPath, status, info, d); hookErr != nil {
		wLogger.Warn("Event hook OnFileResult failed", slog.String("path", relPath), slog.String("error", hookErr.Error()))
	}
}

// statusMessage is the text shown next to a finished file in the UI.
func statusMessage(result interface{}) string {
	switch r := result.(type) {
	case FileInfo:
		return r.Listing
	case SkippedInfo:
		if r.Details != "" {
			return r.Reason + ": " + r.Details
		}
		return r.Reason
	default:
		return ""
	}
}

func (e *Engine) aggregateResults(resultsChan <-chan interface{}, done chan<- struct{}) {
	defer close(done)
	scanCount := int64(0)
	for result := range resultsChan {
		scanCount++
		switch r := result.(type) {
		case FileInfo:
			e.aggregator.addProcessed(r)
		case SkippedInfo:
			e.aggregator.addSkipped(r)
		case ErrorInfo:
			e.aggregator.addError(r)
		default:
			e.logger.Warn("Aggregator received unknown result type", "type", fmt.Sprintf("%T", result))
		}
	}
	e.totalScanned.Store(scanCount)
	e.logger.Debug("Result aggregator finished", "resultsProcessed", scanCount)
}

// --- reportAggregator ---

type reportAggregator struct {
	mu             sync.Mutex
	processedFiles []FileInfo
	skippedFiles   []SkippedInfo
	errors         []ErrorInfo
	convertedCount int
	assumedCount   int
	cachedCount    int
	warningCount   int
}

func newReportAggregator() *reportAggregator {
	return &reportAggregator{
		processedFiles: make([]FileInfo, 0, 512),
		skippedFiles:   make([]SkippedInfo, 0, 128),
		errors:         make([]ErrorInfo, 0, 32),
	}
}

func (a *reportAggregator) addProcessed(info FileInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processedFiles = append(a.processedFiles, info)
	if info.Action == ActionConverted {
		a.convertedCount++
	}
	if info.Assumed {
		a.assumedCount++
	}
	if info.CacheStatus == CacheStatusHit {
		a.cachedCount++
	}
	a.warningCount += len(info.Warnings)
}

func (a *reportAggregator) addSkipped(info SkippedInfo) {
	a.mu.Lock()
	a.skippedFiles = append(a.skippedFiles, info)
	a.mu.Unlock()
}

func (a *reportAggregator) addError(info ErrorInfo) {
	a.mu.Lock()
	a.errors = append(a.errors, info)
	a.mu.Unlock()
}

func (a *reportAggregator) getFirstFatalError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.errors {
		if e.IsFatal {
			return fmt.Errorf("fatal error processing file '%s': %s", e.Path, e.Error)
		}
	}
	return nil
}

// getReport compiles the Report. Files are sorted by path so output does not
// depend on worker scheduling.
func (a *reportAggregator) getReport(opts *Options, runID string, startTime time.Time, totalScanned int64, fatalOccurred bool) Report {
	a.mu.Lock()
	processed := make([]FileInfo, len(a.processedFiles))
	copy(processed, a.processedFiles)
	skipped := make([]SkippedInfo, len(a.skippedFiles))
	copy(skipped, a.skippedFiles)
	errorsList := make([]ErrorInfo, len(a.errors))
	copy(errorsList, a.errors)
	summary := ReportSummary{
		RunID:              runID,
		InputPath:          opts.InputPath,
		ProfileUsed:        opts.ProfileName,
		ConfigFilePath:     opts.ConfigFilePath,
		DryRun:             opts.DryRun,
		TotalFilesScanned:  int(totalScanned),
		ProcessedCount:     len(a.processedFiles),
		ConvertedCount:     a.convertedCount,
		AssumedCount:       a.assumedCount,
		CachedCount:        a.cachedCount,
		SkippedCount:       len(a.skippedFiles),
		WarningCount:       a.warningCount,
		ErrorCount:         len(a.errors),
		FatalErrorOccurred: fatalOccurred,
		DurationSeconds:    time.Since(startTime).Seconds(),
		CacheEnabled:       opts.CacheEnabled,
		Concurrency:        opts.Concurrency,
		Timestamp:          time.Now().UTC(),
		SchemaVersion:      ReportSchemaVersion,
	}
	a.mu.Unlock()

	sort.Slice(processed, func(i, j int) bool { return processed[i].Path < processed[j].Path })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })
	sort.Slice(errorsList, func(i, j int) bool { return errorsList[i].Path < errorsList[j].Path })
	return Report{
		Summary:        summary,
		ProcessedFiles: processed,
		SkippedFiles:   skipped,
		Errors:         errorsList,
	}
}
