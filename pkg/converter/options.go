package converter

import (
	"log/slog"
	"time"

	"github.com/stackvity/to-utf/pkg/converter/encoding"
)

// GitConfig holds settings related to Git integration.
type GitConfig struct {
	DiffOnly bool   `mapstructure:"diffOnly"`
	SinceRef string `mapstructure:"sinceRef"`
}

// Hooks defines callbacks for status updates during the conversion process.
// Implementations MUST be thread-safe as methods may be called concurrently.
type Hooks interface {
	OnFileDiscovered(path string) error
	OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error
	OnRunComplete(report Report) error
}

// ResultHooks is optionally implemented by Hooks. For files that were
// converted, listed or found in the cache, the engine then calls OnFileResult
// with the full FileInfo instead of OnFileStatusUpdate.
type ResultHooks interface {
	OnFileResult(path string, status Status, info FileInfo, duration time.Duration) error
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks interface.
type NoOpHooks struct{}

func (h *NoOpHooks) OnFileDiscovered(path string) error { return nil }

func (h *NoOpHooks) OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error {
	return nil
}

func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// CacheManager remembers files that are already UTF-8 under the current settings,
// so repeated runs over a large tree skip them.
type CacheManager interface {
	Load(cachePath string) error
	// Check reports a hit when the stored entry matches modTime, contentHash and configHash.
	// On a hit it returns the encoding the file was converted from.
	Check(filePath string, modTime time.Time, contentHash string, configHash string) (isHit bool, sourceEncoding string)
	Update(filePath string, modTime time.Time, contentHash string, configHash string, sourceEncoding string) error
	Persist(cachePath string) error
}

// NoOpCacheManager is used when caching is disabled.
type NoOpCacheManager struct{}

func (c *NoOpCacheManager) Load(cachePath string) error { return nil }

func (c *NoOpCacheManager) Check(filePath string, modTime time.Time, contentHash string, configHash string) (bool, string) {
	return false, ""
}

func (c *NoOpCacheManager) Update(filePath string, modTime time.Time, contentHash string, configHash string, sourceEncoding string) error {
	return nil
}

func (c *NoOpCacheManager) Persist(cachePath string) error { return nil }

// GitClient defines methods for interacting with Git repositories.
type GitClient interface {
	// GetChangedFiles returns repository-relative, slash-separated paths.
	// mode is "diffOnly" (working tree changes) or "since" (changes after ref).
	GetChangedFiles(repoPath, mode string, ref string) ([]string, error)
}

// MetricsRecorder receives per-file outcomes. The engine calls it from worker goroutines.
type MetricsRecorder interface {
	ObserveFile(outcome Status, sourceEncoding string, bytes int64, duration time.Duration)
}

// Options holds all configuration for a Convert run.
type Options struct {
	// --- Core Paths ---
	InputPath string `mapstructure:"input"` // Required: Absolute path to the tree to convert

	// --- Application Info ---
	AppVersion string `mapstructure:"-"` // Used for cache compatibility. Populated by the caller.

	// --- Behavior & Control ---
	ConfigFilePath string      `mapstructure:"-"`          // Path to the loaded config file (for reporting)
	Verbose        bool        `mapstructure:"verbose"`    // Enable debug logging
	TuiEnabled     bool        `mapstructure:"tuiEnabled"` // Hint for CLI to use TUI (ignored if Verbose)
	OnErrorMode    OnErrorMode `mapstructure:"onError"`    // Behavior on file processing error ("continue", "stop")
	ProfileName    string      `mapstructure:"-"`          // Name of the profile used (for reporting)

	// --- Performance & Caching ---
	Concurrency     int    `mapstructure:"concurrency"` // Number of workers (0=auto)
	CacheEnabled    bool   `mapstructure:"cache"`       // Enable cache read/write
	CacheFormat     string `mapstructure:"cacheFormat"` // "gob" or "json"
	IgnoreCacheRead bool   `mapstructure:"-"`           // Force cache miss (set by --no-cache)
	ClearCache      bool   `mapstructure:"-"`           // Delete cache file before run (set by --clear-cache)
	CacheFilePath   string `mapstructure:"-"`           // Resolved path to cache file

	// --- File Selection ---
	Extensions     []string `mapstructure:"extensions"`   // Name suffixes to convert; empty means all files
	IgnorePatterns []string `mapstructure:"ignore"`       // Glob patterns from config/flags (aggregated with .toutfignore)
	SkipVendored   bool     `mapstructure:"skipVendored"` // Skip vendored and dot directories

	// --- Conversion ---
	DefaultEncoding string `mapstructure:"defaultEncoding"` // Assumed when detection is inconclusive
	ForceEncoding   bool   `mapstructure:"forceEncoding"`   // Use DefaultEncoding without detection
	StripBOM        bool   `mapstructure:"stripBOM"`        // Drop a leading U+FEFF from UTF sources
	RepairGerman    bool   `mapstructure:"repairGerman"`    // Repair doubly encoded umlauts in UTF-8 sources
	Backup          bool   `mapstructure:"backup"`          // Keep "<file>.backup" copies
	DryRun          bool   `mapstructure:"dryRun"`          // Report detected encodings without writing
	SampleLimit     int    `mapstructure:"sampleLimit"`     // Detector sample cap in bytes

	// --- Output & Reporting ---
	OutputFormat OutputFormat `mapstructure:"outputFormat"` // ("text", "json") for final report
	LogFormat    string       `mapstructure:"logFormat"`    // ("text", "json") for the slog handler
	MetricsFile  string       `mapstructure:"metricsFile"`  // Prometheus textfile written after the run

	// --- Workflow Features ---
	GitDiffMode GitDiffMode `mapstructure:"-"` // Derived from GitConfig / flags ("none", "diffOnly", "since")
	GitConfig   GitConfig   `mapstructure:"git"`

	// --- Injected Dependencies & Internal State ---
	EventHooks            Hooks                    `mapstructure:"-"` // Required: Callback interface
	Logger                slog.Handler             `mapstructure:"-"` // Required: Logging backend
	GitClient             GitClient                `mapstructure:"-"` // Optional: required for git diff modes
	CacheManager          CacheManager             `mapstructure:"-"` // Optional: Cache implementation
	CharsetDetector       encoding.CharsetDetector `mapstructure:"-"` // Optional: Detection implementation
	Metrics               MetricsRecorder          `mapstructure:"-"` // Optional: Outcome recorder
	GitChangedFiles       map[string]struct{}      `mapstructure:"-"` // Populated if GitDiffMode is active
	ProcessorFactory      ProcessorFactory         `mapstructure:"-"` // Optional: Factory for FileProcessor (testing)
	WalkerFactory         WalkerFactory            `mapstructure:"-"` // Optional: Factory for Walker (testing)
	DispatchWarnThreshold time.Duration            `mapstructure:"-"` // Internal: Threshold for logging slow worker dispatch
}
