package converter

import (
	"time"

	"github.com/stackvity/to-utf/pkg/converter/cache"
	"github.com/stackvity/to-utf/pkg/converter/encoding"
)

// Constants defining default values for the configuration options.
// They seed the viper defaults in the CLI configuration layer.
const (
	// DefaultConcurrency determines the default number of workers. 0 means runtime.NumCPU().
	DefaultConcurrency = 0
	// DefaultCacheEnabled is the default state for caching.
	DefaultCacheEnabled = true
	// DefaultTuiEnabled is the default state for the Terminal UI.
	DefaultTuiEnabled = true
	// DefaultOnErrorMode is the default behavior on non-fatal file errors.
	DefaultOnErrorMode = OnErrorContinue
	// DefaultEncoding is assumed when detection is inconclusive.
	DefaultEncoding = encoding.Latin1
	// DefaultForceEncoding disables detection when true.
	DefaultForceEncoding = false
	// DefaultStripBOM removes a leading byte-order mark from UTF sources.
	DefaultStripBOM = true
	// DefaultRepairGerman is the default state of the broken-umlaut repair filter.
	DefaultRepairGerman = false
	// DefaultBackup keeps a ".backup" copy of every rewritten file.
	DefaultBackup = true
	// DefaultDryRun only lists files with their detected encodings.
	DefaultDryRun = false
	// DefaultSkipVendored skips vendored directories such as node_modules.
	DefaultSkipVendored = true
	// DefaultGitDiffOnly is the default state for diff-only Git processing.
	DefaultGitDiffOnly = false
	// DefaultGitSinceRef is the default reference for --git-since mode.
	DefaultGitSinceRef = "main"
	// DefaultOutputFormat is the default format for the final summary report.
	DefaultOutputFormat = OutputFormatText
	// DefaultLogFormat selects the slog text handler.
	DefaultLogFormat = "text"
	// DefaultCacheFormat is the cache serialization format.
	DefaultCacheFormat = cache.DefaultCacheFormat
	// DefaultSampleLimit caps the bytes handed to the statistical charset matcher.
	DefaultSampleLimit = encoding.DefaultSampleLimit
	// DefaultVerbose is the default state for verbose logging.
	DefaultVerbose = false
	// DefaultDispatchWarnThreshold is how long the walker waits on a busy pool before warning.
	DefaultDispatchWarnThreshold = 1 * time.Second
)

// DefaultExtensions is the file name suffix list used when none is configured.
var DefaultExtensions = []string{".java"}

// Constants related to files the converter itself creates.
const (
	// CacheFileName is the standard name for the cache index file, placed in the input directory.
	CacheFileName = cache.CacheFileName
	// BackupSuffix is appended to a source path to name its backup copy.
	BackupSuffix = ".backup"
	// tempPattern names the sibling file a conversion is written to before it replaces the source.
	tempPattern = ".toutf-*.tmp"
	// IgnoreFileName is the per-tree ignore file, searched for from the input path upwards.
	IgnoreFileName = ".toutfignore"
)

// Constants related to report schema.
const (
	// ReportSchemaVersion indicates the version of the JSON report structure.
	ReportSchemaVersion = "1.0"
)

// Constants defining cache status strings used in the Report.
const (
	CacheStatusHit      = "hit"
	CacheStatusMiss     = "miss"
	CacheStatusDisabled = "disabled"
)

// Constants defining skip reasons used in the Report.
const (
	SkipReasonBinary     = "binary_file"
	SkipReasonIgnored    = "ignored_pattern"
	SkipReasonGitExclude = "excluded_by_git_diff"
	SkipReasonVendored   = "vendored"
	SkipReasonNotRegular = "not_regular_file"
)
