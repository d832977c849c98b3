// Package converter rewrites text files in legacy character encodings as
// UTF-8. Convert walks a directory tree with a worker pool; Convertee is the
// single-file building block underneath it.
package converter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stackvity/to-utf/pkg/converter/cache"
)

// Convert is the main entry point of the library. It validates opts, runs
// the engine and returns the run's Report. The error is non-nil when the run
// was cancelled, stopped on a fatal per-file error, or could not start.
func Convert(ctx context.Context, opts Options) (Report, error) {
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "converter"))

	if opts.EventHooks == nil {
		return Report{}, fmt.Errorf("%w: EventHooks implementation cannot be nil (use NoOpHooks if needed)", ErrConfigValidation)
	}
	if opts.InputPath == "" {
		err := fmt.Errorf("%w: input path cannot be empty", ErrConfigValidation)
		logger.Error(err.Error())
		return Report{}, err
	}
	if opts.Concurrency < 0 {
		err := fmt.Errorf("%w: concurrency cannot be negative", ErrConfigValidation)
		logger.Error(err.Error(), slog.Int("concurrency", opts.Concurrency))
		return Report{}, err
	}
	switch opts.OnErrorMode {
	case "":
		opts.OnErrorMode = DefaultOnErrorMode
	case OnErrorContinue, OnErrorStop:
	default:
		err := fmt.Errorf("%w: invalid onError mode %q", ErrConfigValidation, opts.OnErrorMode)
		logger.Error(err.Error())
		return Report{}, err
	}
	switch opts.CacheFormat {
	case "":
		opts.CacheFormat = DefaultCacheFormat
	case cache.CacheFormatGob, cache.CacheFormatJSON:
	default:
		err := fmt.Errorf("%w: invalid cache format %q", ErrConfigValidation, opts.CacheFormat)
		logger.Error(err.Error())
		return Report{}, err
	}
	switch opts.GitDiffMode {
	case "", GitDiffModeNone, GitDiffModeDiffOnly:
	case GitDiffModeSince:
		if opts.GitConfig.SinceRef == "" {
			err := fmt.Errorf("%w: git since mode requires a reference", ErrConfigValidation)
			logger.Error(err.Error())
			return Report{}, err
		}
	default:
		err := fmt.Errorf("%w: invalid git diff mode %q", ErrConfigValidation, opts.GitDiffMode)
		logger.Error(err.Error())
		return Report{}, err
	}

	logger.Info("Starting to-utf library execution", slog.String("version", opts.AppVersion), slog.String("input", opts.InputPath))

	engine, err := NewEngine(ctx, opts)
	if err != nil {
		logger.Error("Failed to initialize engine", slog.String("error", err.Error()))
		return Report{}, err
	}
	return engine.Run()
}
