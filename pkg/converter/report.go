package converter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Report summarizes the result of a single Convert run.
type Report struct {
	Summary        ReportSummary `json:"summary"`
	ProcessedFiles []FileInfo    `json:"processedFiles"`
	SkippedFiles   []SkippedInfo `json:"skippedFiles"`
	Errors         []ErrorInfo   `json:"errors"`
}

// ReportSummary contains aggregated statistics for a Convert run.
type ReportSummary struct {
	RunID              string    `json:"runId"`
	InputPath          string    `json:"inputPath"`
	ProfileUsed        string    `json:"profileUsed,omitempty"`
	ConfigFilePath     string    `json:"configFilePath,omitempty"`
	DryRun             bool      `json:"dryRun"`
	TotalFilesScanned  int       `json:"totalFilesScanned"`
	ProcessedCount     int       `json:"processedCount"`
	ConvertedCount     int       `json:"convertedCount"`
	AssumedCount       int       `json:"assumedCount"`
	CachedCount        int       `json:"cachedCount"`
	SkippedCount       int       `json:"skippedCount"`
	WarningCount       int       `json:"warningCount"`
	ErrorCount         int       `json:"errorCount"`
	FatalErrorOccurred bool      `json:"fatalError"`
	DurationSeconds    float64   `json:"durationSeconds"`
	CacheEnabled       bool      `json:"cacheEnabled"`
	Concurrency        int       `json:"concurrency"`
	Timestamp          time.Time `json:"timestamp"`
	SchemaVersion      string    `json:"schemaVersion,omitempty"`
}

// FileInfo details a single file that was converted, listed or found in the cache.
type FileInfo struct {
	Path           string    `json:"path"`
	Action         Action    `json:"action,omitempty"`
	SourceEncoding string    `json:"sourceEncoding"`
	Assumed        bool      `json:"assumed"`
	HadBOM         bool      `json:"hadBOM"`
	Filter         string    `json:"filter,omitempty"`
	Listing        string    `json:"listing"`
	BackupPath     string    `json:"backupPath,omitempty"`
	SizeBytes      int64     `json:"sizeBytes"`
	ModTime        time.Time `json:"modTime"`
	CacheStatus    string    `json:"cacheStatus"`
	DurationMs     int64     `json:"durationMs"`
	Warnings       []string  `json:"warnings,omitempty"`
}

// SkippedInfo details a file that was intentionally skipped.
type SkippedInfo struct {
	Path    string `json:"path"`
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

// ErrorInfo details a non-fatal error encountered while processing a specific file.
type ErrorInfo struct {
	Path    string `json:"path"`
	Error   string `json:"error"`
	IsFatal bool   `json:"isFatal"`
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes one listing line per processed file followed by a summary line.
func (r Report) WriteText(w io.Writer) error {
	for _, fi := range r.ProcessedFiles {
		line := fi.Listing
		if line == "" {
			line = fi.Path
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	for _, ei := range r.Errors {
		if _, err := fmt.Fprintf(w, "ERROR %s: %s\n", ei.Path, ei.Error); err != nil {
			return err
		}
	}
	s := r.Summary
	verb := "Converted"
	if s.DryRun {
		verb = "Listed"
	}
	_, err := fmt.Fprintf(w, "%s %d files (%d assumed, %d cached, %d skipped, %d errors) in %.2fs [run %s]\n",
		verb, s.ProcessedCount, s.AssumedCount, s.CachedCount, s.SkippedCount, s.ErrorCount, s.DurationSeconds, s.RunID)
	return err
}
