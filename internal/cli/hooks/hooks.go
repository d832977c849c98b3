package hooks

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stackvity/to-utf/pkg/converter"
)

// FileDiscoveredMsg signals that the walker queued a file for conversion.
type FileDiscoveredMsg struct{ Path string }

// FileStatusUpdateMsg signals a change in a file's processing status.
// For finished files Message carries the listing line, e.g. "A.java (assuming ISO-8859-1)",
// and Assumed is set when the default encoding was used.
type FileStatusUpdateMsg struct {
	Path     string
	Status   converter.Status
	Message  string
	Assumed  bool
	Duration time.Duration
}

// RunCompleteMsg signals the completion of the entire conversion run.
type RunCompleteMsg struct{ Report converter.Report }

// TUIProgram is the part of *tea.Program the hooks need.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// NoOpTUIProgram drops every message.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg tea.Msg) {}

// CLIHooks implements converter.Hooks, bridging engine events to the TUI or the log.
type CLIHooks struct {
	logger         *slog.Logger
	tuiEnabled     bool
	verboseEnabled bool
	tuiProgram     TUIProgram
}

var _ converter.ResultHooks = (*CLIHooks)(nil)

// NewCLIHooks creates a new CLIHooks instance. A nil tuiProg is replaced by NoOpTUIProgram.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verboseEnabled bool, tuiProg TUIProgram) converter.Hooks {
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	return &CLIHooks{
		logger:         logger,
		tuiEnabled:     tuiEnabled,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
	}
}

// OnFileDiscovered handles a file queued by the walker.
func (h *CLIHooks) OnFileDiscovered(path string) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileDiscoveredMsg{Path: path})
	} else if h.verboseEnabled {
		h.logger.Debug("File discovered", "path", path)
	}
	return nil
}

// OnFileStatusUpdate handles status changes. Called concurrently from workers.
func (h *CLIHooks) OnFileStatusUpdate(path string, status converter.Status, message string, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileStatusUpdateMsg{
			Path:     path,
			Status:   status,
			Message:  message,
			Duration: duration,
		})
		return nil
	}

	if h.verboseEnabled {
		logLevel := slog.LevelDebug
		logMsg := "File status updated"
		attrs := []any{
			slog.String("path", path),
			slog.String("status", string(status)),
		}
		if duration > 0 {
			attrs = append(attrs, slog.Duration("duration", duration))
		}
		if message != "" {
			logKey := "message"
			if status == converter.StatusFailed {
				logKey = "error"
			}
			attrs = append(attrs, slog.String(logKey, message))
		}

		switch status {
		case converter.StatusSuccess, converter.StatusCached, converter.StatusSkipped:
			logLevel = slog.LevelInfo
		case converter.StatusFailed:
			logLevel = slog.LevelError
			logMsg = "File processing failed"
		}
		h.logger.Log(context.Background(), logLevel, logMsg, attrs...)
		return nil
	}

	// Plain mode: the report on stdout carries the listings, only failures go to stderr.
	if status == converter.StatusFailed {
		h.logger.Error("File processing failed", "path", path, "error", message)
	}
	return nil
}

// OnFileResult reports a converted, listed or cached file. The TUI also
// learns whether its encoding was assumed; the log gets the listing line.
func (h *CLIHooks) OnFileResult(path string, status converter.Status, info converter.FileInfo, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileStatusUpdateMsg{
			Path:     path,
			Status:   status,
			Message:  info.Listing,
			Assumed:  info.Assumed,
			Duration: duration,
		})
		return nil
	}
	return h.OnFileStatusUpdate(path, status, info.Listing, duration)
}

// OnRunComplete forwards the final report to the TUI. In plain mode the caller prints it.
func (h *CLIHooks) OnRunComplete(report converter.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
	} else if h.verboseEnabled {
		h.logger.Debug("Run complete", "runId", report.Summary.RunID, "processed", report.Summary.ProcessedCount)
	}
	return nil
}
