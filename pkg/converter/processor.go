package converter

import (
	"context"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/stackvity/to-utf/pkg/converter/encoding"
	"github.com/stackvity/to-utf/pkg/converter/filter"
)

// FileProcessor applies the conversion policy to one file at a time.
// It is shared by all workers and holds no per-file state.
type FileProcessor struct {
	opts          *Options
	loggerHandler slog.Handler
	logger        *slog.Logger
	cacheManager  CacheManager
	detector      encoding.CharsetDetector
	metrics       MetricsRecorder
	configHash    string
}

// NewFileProcessor creates a new FileProcessor.
func NewFileProcessor(
	opts *Options,
	loggerHandler slog.Handler,
	cacheMgr CacheManager,
	detector encoding.CharsetDetector,
) *FileProcessor {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "processor"))
	if cacheMgr == nil {
		cacheMgr = &NoOpCacheManager{}
	}
	if detector == nil {
		detector = encoding.NewCharsetDetector(encoding.WithSampleLimit(opts.SampleLimit))
	}
	return &FileProcessor{
		opts:          opts,
		loggerHandler: loggerHandler,
		logger:        logger,
		cacheManager:  cacheMgr,
		detector:      detector,
		metrics:       opts.Metrics,
		configHash:    calculateConfigHash(opts, logger),
	}
}

// ConfigHash returns the hash of the settings that influence conversion output.
func (p *FileProcessor) ConfigHash() string {
	return p.configHash
}

// ProcessFile converts (or, in a dry run, analyzes) the file at absFilePath.
//
// The result is a FileInfo, SkippedInfo or ErrorInfo. A non-nil err always
// comes with StatusFailed and an ErrorInfo result.
func (p *FileProcessor) ProcessFile(ctx context.Context, absFilePath string) (result interface{}, status Status, err error) {
	startTime := time.Now()
	relPath, pathErr := filepath.Rel(p.opts.InputPath, absFilePath)
	if pathErr != nil {
		relPath = filepath.Base(absFilePath)
	}
	relPath = filepath.ToSlash(relPath)
	logArgs := []any{slog.String("path", relPath)}

	var fileSize int64
	var sourceEncoding string

	defer func() {
		duration := time.Since(startTime)
		finalStatus := status
		message := ""
		if err != nil {
			finalStatus = StatusFailed
			if _, ok := result.(ErrorInfo); !ok {
				result = ErrorInfo{Path: relPath, Error: err.Error(), IsFatal: p.opts.OnErrorMode == OnErrorStop}
			}
			message = err.Error()
		} else if finalStatus == "" {
			finalStatus = StatusSuccess
		}
		if fi, ok := result.(FileInfo); ok {
			fi.DurationMs = duration.Milliseconds()
			result = fi
		}
		logLevel := slog.LevelDebug
		if finalStatus == StatusFailed {
			logLevel = slog.LevelError
		}
		p.logger.Log(ctx, logLevel, "Processor finished file task",
			append(logArgs, slog.String("status", string(finalStatus)), slog.String("encoding", sourceEncoding),
				slog.Duration("duration", duration), slog.String("message", message))...)
		if p.metrics != nil {
			p.metrics.ObserveFile(finalStatus, sourceEncoding, fileSize, duration)
		}
		status = finalStatus
	}()

	// 1. Cancellation
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, StatusFailed, ctxErr
	}

	// 2. Stat
	fileInfo, statErr := os.Stat(absFilePath)
	if statErr != nil {
		return nil, StatusFailed, fmt.Errorf("%w: %w", ErrStatFailed, statErr)
	}
	if !fileInfo.Mode().IsRegular() {
		return SkippedInfo{Path: relPath, Reason: SkipReasonNotRegular, Details: fileInfo.Mode().Type().String()}, StatusSkipped, nil
	}
	fileSize = fileInfo.Size()
	modTime := fileInfo.ModTime()

	// 3. Content hash for the cache
	content, readErr := os.ReadFile(absFilePath)
	if readErr != nil {
		return nil, StatusFailed, fmt.Errorf("%w: %w", ErrReadFailed, readErr)
	}
	contentHash := fmt.Sprintf("%x", sha256.Sum256(content))

	// 4. Cache
	cacheStatus := CacheStatusDisabled
	if p.opts.CacheEnabled {
		cacheStatus = CacheStatusMiss
		if p.opts.IgnoreCacheRead {
			p.logger.Debug("Cache read disabled, forcing miss", logArgs...)
		} else if hit, cachedEncoding := p.cacheManager.Check(relPath, modTime, contentHash, p.configHash); hit {
			sourceEncoding = cachedEncoding
			p.logger.Debug("Cache hit, file already converted", append(logArgs, slog.String("from", cachedEncoding))...)
			return FileInfo{
				Path:           relPath,
				SourceEncoding: cachedEncoding,
				Listing:        fmt.Sprintf("%s (cached, converted from %s)", relPath, cachedEncoding),
				SizeBytes:      fileSize,
				ModTime:        modTime,
				CacheStatus:    CacheStatusHit,
			}, StatusCached, nil
		}
	}

	// 5. Binary check
	if encoding.IsBinary(content) {
		p.logger.Info("Skipping binary file", logArgs...)
		return SkippedInfo{Path: relPath, Reason: SkipReasonBinary, Details: ErrBinaryFile.Error()}, StatusSkipped, nil
	}

	// 6. Source encoding
	convertee, err := NewConvertee(absFilePath, WithDetector(p.detector), WithLogger(p.loggerHandler))
	if err != nil {
		return nil, StatusFailed, err
	}
	convertee.SetDisplayString(relPath)
	convertee.SetSourceEncoding(p.opts.DefaultEncoding)
	assumed := false
	if p.opts.ForceEncoding {
		p.logger.Debug("Encoding forced", append(logArgs, slog.String("encoding", p.opts.DefaultEncoding))...)
	} else if !convertee.DetectAndSetSourceEncoding() {
		assumed = true
	}
	canonical, err := encoding.Canonical(convertee.SourceEncoding())
	if err != nil {
		return nil, StatusFailed, err
	}
	convertee.SetSourceEncoding(canonical)
	sourceEncoding = canonical

	hadBOM, err := convertee.HasBOM()
	if err != nil {
		return nil, StatusFailed, err
	}

	// 7. Filter and BOM handling
	var warnings []string
	filterName := ""
	if p.opts.RepairGerman {
		if encoding.IsUTF8(canonical) {
			repair, filterErr := filter.New(filter.KindRepairGerman)
			if filterErr != nil {
				return nil, StatusFailed, filterErr
			}
			convertee.SetFilter(repair)
			filterName = string(filter.KindRepairGerman)
		} else {
			msg := fmt.Sprintf("repair filter not applied: source is %s, not UTF-8", canonical)
			p.logger.Warn("Repair filter requires a UTF-8 source", append(logArgs, slog.String("encoding", canonical))...)
			warnings = append(warnings, msg)
		}
	}
	convertee.SetStripBOM(p.opts.StripBOM)

	info := FileInfo{
		Path:           relPath,
		SourceEncoding: canonical,
		Assumed:        assumed,
		HadBOM:         hadBOM,
		Filter:         filterName,
		Listing:        convertee.Describe(assumed, hadBOM),
		SizeBytes:      fileSize,
		ModTime:        modTime,
		CacheStatus:    cacheStatus,
		Warnings:       warnings,
	}

	// 8. Dry run
	if p.opts.DryRun {
		info.Action = ActionListed
		return info, StatusSuccess, nil
	}

	// 9. Backup, recode to a sibling, replace
	if p.opts.Backup {
		backup := BackupPath(absFilePath)
		if copyErr := CopyFile(absFilePath, backup); copyErr != nil {
			return nil, StatusFailed, fmt.Errorf("%w: %w", ErrBackupFailed, copyErr)
		}
		info.BackupPath = relPath + BackupSuffix
	}
	tmp, err := TempTarget(absFilePath)
	if err != nil {
		return nil, StatusFailed, err
	}
	if recodeErr := convertee.Recode(tmp); recodeErr != nil {
		_ = os.Remove(tmp)
		return nil, StatusFailed, recodeErr
	}
	if replaceErr := ReplaceFile(tmp, absFilePath); replaceErr != nil {
		_ = os.Remove(tmp)
		return nil, StatusFailed, replaceErr
	}
	info.Action = ActionConverted
	p.logger.Debug("File converted", append(logArgs, slog.String("from", canonical), slog.Bool("assumed", assumed))...)

	// 10. Remember the converted state
	if p.opts.CacheEnabled {
		p.rememberConverted(relPath, absFilePath, canonical, logArgs)
	}
	return info, StatusSuccess, nil
}

// rememberConverted records the file as it is after conversion, so the next
// run sees a cache hit as long as nobody touches it.
func (p *FileProcessor) rememberConverted(relPath, absFilePath, sourceEncoding string, logArgs []any) {
	fileInfo, err := os.Stat(absFilePath)
	if err != nil {
		p.logger.Warn("Could not stat converted file, not caching", append(logArgs, slog.String("error", err.Error()))...)
		return
	}
	converted, err := os.ReadFile(absFilePath)
	if err != nil {
		p.logger.Warn("Could not read converted file, not caching", append(logArgs, slog.String("error", err.Error()))...)
		return
	}
	sum := fmt.Sprintf("%x", sha256.Sum256(converted))
	if err := p.cacheManager.Update(relPath, fileInfo.ModTime(), sum, p.configHash, sourceEncoding); err != nil {
		p.logger.Warn("Failed to update cache entry", append(logArgs, slog.String("error", err.Error()))...)
	}
}

// calculateConfigHash hashes the options that change what a conversion writes.
func calculateConfigHash(opts *Options, logger *slog.Logger) string {
	hasher := sha256.New()
	addToHash := func(h hash.Hash, key string, value string) {
		h.Write([]byte(key + ":" + value + ";"))
	}

	defaultEncoding := opts.DefaultEncoding
	if canonical, err := encoding.Canonical(defaultEncoding); err == nil {
		defaultEncoding = canonical
	}
	addToHash(hasher, "DefaultEncoding", defaultEncoding)
	addToHash(hasher, "ForceEncoding", strconv.FormatBool(opts.ForceEncoding))
	addToHash(hasher, "StripBOM", strconv.FormatBool(opts.StripBOM))
	addToHash(hasher, "RepairGerman", strconv.FormatBool(opts.RepairGerman))

	appVersion := opts.AppVersion
	if appVersion == "" {
		appVersion = "dev"
	}
	addToHash(hasher, "AppVersion", appVersion)

	configHash := fmt.Sprintf("%x", hasher.Sum(nil))
	logger.Debug("Calculated config hash", slog.String("hash", configHash))
	return configHash
}
