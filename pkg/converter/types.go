package converter

// Status defines the possible processing states of a file during conversion.
type Status string

// Constants representing the defined file processing statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusCached     Status = "cached"
)

// OnErrorMode defines the behavior when a non-fatal error occurs during file processing.
type OnErrorMode string

const (
	OnErrorContinue OnErrorMode = "continue"
	OnErrorStop     OnErrorMode = "stop"
)

// OutputFormat defines the format for the final summary report printed to standard output when TUI is disabled.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// GitDiffMode defines the strategy for using Git differences to filter processed files.
type GitDiffMode string

const (
	GitDiffModeNone     GitDiffMode = "none"
	GitDiffModeDiffOnly GitDiffMode = "diffOnly"
	GitDiffModeSince    GitDiffMode = "since"
)

// Action describes what happened to a processed file.
type Action string

const (
	// ActionConverted means the file was rewritten as UTF-8.
	ActionConverted Action = "converted"
	// ActionListed means the file was only analyzed (dry run).
	ActionListed Action = "listed"
)
