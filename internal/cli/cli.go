package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stackvity/to-utf/internal/cli/hooks"
	"github.com/stackvity/to-utf/internal/cli/ui"
	"github.com/stackvity/to-utf/pkg/converter"
	"github.com/stackvity/to-utf/pkg/converter/git"
	"github.com/stackvity/to-utf/pkg/converter/metrics"
	"golang.org/x/term"
)

// isTerminal is swapped in tests.
var isTerminal = func(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Run wires the CLI collaborators into opts, runs the conversion and prints
// the report to stdout in opts.OutputFormat. The TUI is used only when
// enabled, not verbose, and stdout is a terminal.
func Run(ctx context.Context, opts converter.Options, logger *slog.Logger, stdout io.Writer) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	useTUI := opts.TuiEnabled && !opts.Verbose && isTerminal(os.Stdout)

	var program *tea.Program
	var tuiDone chan error
	var hookProgram hooks.TUIProgram
	if useTUI {
		model := ui.NewModel(opts.AppVersion, opts.DryRun)
		program = tea.NewProgram(&model, tea.WithContext(runCtx))
		hookProgram = program
		tuiDone = make(chan error, 1)
		go func() {
			_, err := program.Run()
			// Quitting the TUI stops the conversion.
			cancel()
			tuiDone <- err
		}()
	}
	opts.EventHooks = hooks.NewCLIHooks(logger, useTUI, opts.Verbose, hookProgram)

	if opts.GitDiffMode != converter.GitDiffModeNone && opts.GitClient == nil {
		opts.GitClient = git.NewGoGitClient(opts.Logger)
	}

	var recorder *metrics.Recorder
	if opts.MetricsFile != "" && opts.Metrics == nil {
		recorder = metrics.New()
		opts.Metrics = recorder
	}

	report, runErr := converter.Convert(runCtx, opts)

	if useTUI {
		if tuiErr := <-tuiDone; tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
			logger.Warn("TUI exited with error", slog.String("error", tuiErr.Error()))
		}
	}

	if recorder != nil {
		if err := recorder.WriteTextfile(opts.MetricsFile); err != nil {
			logger.Error("Failed to write metrics file", slog.String("path", opts.MetricsFile), slog.String("error", err.Error()))
		} else {
			logger.Debug("Metrics written", slog.String("path", opts.MetricsFile))
		}
	}

	// A run that never started has no report to print.
	if report.Summary.RunID != "" {
		if err := writeReport(stdout, report, opts.OutputFormat); err != nil {
			logger.Error("Failed to write report", slog.String("error", err.Error()))
			if runErr == nil {
				runErr = err
			}
		}
	}

	if runErr != nil {
		logger.Error("Conversion failed", slog.String("error", runErr.Error()))
		return runErr
	}
	logger.Debug("Conversion finished",
		slog.Int("processed", report.Summary.ProcessedCount),
		slog.Int("errors", report.Summary.ErrorCount),
	)
	return nil
}

func writeReport(w io.Writer, report converter.Report, format converter.OutputFormat) error {
	switch format {
	case converter.OutputFormatJSON:
		return report.WriteJSON(w)
	case converter.OutputFormatText, "":
		return report.WriteText(w)
	default:
		return fmt.Errorf("%w: unknown output format %q", converter.ErrConfigValidation, format)
	}
}
