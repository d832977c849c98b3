package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stackvity/to-utf/pkg/converter"
	"github.com/stackvity/to-utf/pkg/converter/cache"
	"github.com/stackvity/to-utf/pkg/converter/encoding"
	"github.com/stackvity/to-utf/pkg/util"
)

const (
	EnvPrefix         = "TOUTF"
	DefaultConfigName = "to-utf"
	// DotEnvFile is loaded from the working directory, if present, before environment binding.
	DotEnvFile = ".env"
	// SystemEncoding as defaultEncoding selects the charset of the current locale.
	SystemEncoding = "system"
)

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"input":            "input",
	"extensions":       "extensions",
	"ignore":           "ignore",
	"onError":          "onError",
	"concurrency":      "concurrency",
	"cache-format":     "cacheFormat",
	"default-encoding": "defaultEncoding",
	"force-encoding":   "forceEncoding",
	"repair-german":    "repairGerman",
	"dry-run":          "dryRun",
	"sample-limit":     "sampleLimit",
	"output-format":    "outputFormat",
	"log-format":       "logFormat",
	"metrics-file":     "metricsFile",
	"git-diff-only":    "git.diffOnly",
	"git-since":        "git.sinceRef",
}

// RegisterFlags defines the conversion flags on flags. The root command adds
// the persistent ones (--config, --profile, --verbose, --input) itself.
func RegisterFlags(flags *pflag.FlagSet) {
	// Selection
	flags.StringSliceP("extensions", "x", converter.DefaultExtensions, "File name suffixes to convert (empty converts every file)")
	flags.StringArray("ignore", []string{}, "Glob patterns for files/directories to ignore (can be specified multiple times)")
	flags.Bool("include-vendored", false, "Also convert vendored and dot directories (node_modules, .idea, ...)")

	// Conversion
	flags.StringP("default-encoding", "e", converter.DefaultEncoding, `Encoding assumed when detection is inconclusive ("system" uses the locale)`)
	flags.Bool("force-encoding", converter.DefaultForceEncoding, "Skip detection and decode every file with the default encoding")
	flags.Bool("keep-bom", false, "Keep a leading byte-order mark instead of stripping it")
	flags.Bool("repair-german", converter.DefaultRepairGerman, "Repair doubly encoded German umlauts in UTF-8 sources")
	flags.Bool("no-backup", false, "Do not keep .backup copies of converted files")
	flags.BoolP("dry-run", "n", converter.DefaultDryRun, "Only list files with their detected encodings")
	flags.Int("sample-limit", converter.DefaultSampleLimit, "Bytes handed to the statistical charset detector")

	// Run behaviour
	flags.Bool("no-tui", false, "Disable interactive Terminal UI even if in a TTY")
	flags.String("onError", string(converter.DefaultOnErrorMode), `Behavior on non-fatal file errors ("continue" or "stop")`)
	flags.Int("concurrency", converter.DefaultConcurrency, "Number of parallel workers (0 for auto-detect CPU cores)")

	// Cache
	flags.Bool("no-cache", false, "Force reprocessing by ignoring cache reads (still writes cache)")
	flags.Bool("clear-cache", false, "Delete the cache file before starting")
	flags.String("cache-format", converter.DefaultCacheFormat, `Cache file format ("gob" or "json")`)

	// Git
	flags.Bool("git-diff-only", converter.DefaultGitDiffOnly, "Convert only files changed in the working tree vs HEAD")
	flags.String("git-since", "", "Convert only files changed since the specified Git reference (commit/tag/branch)")

	// Output
	flags.String("output-format", string(converter.DefaultOutputFormat), `Final report format ("text", "json")`)
	flags.String("log-format", converter.DefaultLogFormat, `Log format on stderr ("text", "json")`)
	flags.String("metrics-file", "", "Write Prometheus metrics for the run to this file")
}

// LoadAndValidate loads configuration from all sources (defaults, file, profile,
// .env, environment, flags), validates the merged configuration and derives
// the values the engine expects. It also builds the logger.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (converter.Options, *slog.Logger, error) {
	var opts converter.Options
	v := viper.New()

	// Temporary logger for errors before the configured one exists.
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v)

	// --- Config file ---
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			tempLogger.Error("Failed to get user home directory", slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
		v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags.")
		} else {
			configFileUsed := cfgFile
			if configFileUsed == "" {
				configFileUsed = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			tempLogger.Error("Error reading configuration file", slog.String("path", configFileUsed), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error reading config file '%s': %w", configFileUsed, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	// --- Profile ---
	opts.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		if !v.IsSet(profileKey) {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			err := fmt.Errorf("profile '%s' not found in config file '%s'", profileName, configPath)
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		profileSettings := v.Sub(profileKey)
		if profileSettings == nil {
			err := fmt.Errorf("failed to load profile '%s' settings from config file '%s'", profileName, v.ConfigFileUsed())
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		if err := v.MergeConfigMap(profileSettings.AllSettings()); err != nil {
			tempLogger.Error("Error merging profile", slog.String("profile", profileName), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error merging profile '%s': %w", profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	// --- .env and environment ---
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		tempLogger.Warn("Failed to load .env file", slog.String("path", DotEnvFile), slog.Any("error", err))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags (highest priority) ---
	for flagName, key := range flagKeys {
		flag := flags.Lookup(flagName)
		if flag == nil {
			tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", flagName))
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			tempLogger.Error("Error binding flag", slog.String("flag", flagName), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error binding flag '--%s': %w", flagName, err)
		}
	}

	opts.AppVersion = appVersion
	if err := v.Unmarshal(&opts); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.Any("error", err))
		return opts, tempLogger, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// --- Inverted and flag-only booleans ---
	if verbose || (flags.Changed("verbose") && flagBool(flags, "verbose")) {
		opts.Verbose = true
	}
	if flags.Changed("no-tui") && flagBool(flags, "no-tui") {
		opts.TuiEnabled = false
	}
	if flags.Changed("no-cache") {
		opts.IgnoreCacheRead = flagBool(flags, "no-cache")
	}
	if flags.Changed("clear-cache") {
		opts.ClearCache = flagBool(flags, "clear-cache")
	}
	if flags.Changed("keep-bom") && flagBool(flags, "keep-bom") {
		opts.StripBOM = false
	}
	if flags.Changed("no-backup") && flagBool(flags, "no-backup") {
		opts.Backup = false
	}
	if flags.Changed("include-vendored") && flagBool(flags, "include-vendored") {
		opts.SkipVendored = false
	}

	// --- Logger ---
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logHandler, err := NewLogHandler(os.Stderr, opts.LogFormat, logLevel)
	if err != nil {
		tempLogger.Error(err.Error(), slog.String("key", "logFormat"))
		return opts, tempLogger, err
	}
	logger := slog.New(logHandler)
	opts.Logger = logHandler

	if err := validateAndDeriveOptions(&opts, logger, flags); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.Bool("verbose", opts.Verbose),
		slog.String("logLevel", logLevel.String()),
	)
	return opts, logger, nil
}

// NewLogHandler returns a text or JSON slog handler writing to w.
func NewLogHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(w, handlerOpts), nil
	case "json":
		return slog.NewJSONHandler(w, handlerOpts), nil
	default:
		return nil, fmt.Errorf("%w: invalid value '%s' for key 'logFormat' (flag --log-format). Allowed: [text json]", converter.ErrConfigValidation, format)
	}
}

func flagBool(flags *pflag.FlagSet, name string) bool {
	b, _ := flags.GetBool(name)
	return b
}

// setDefaults establishes the default values for configuration options in Viper.
func setDefaults(v *viper.Viper) {
	// --- Behavior & Control ---
	v.SetDefault("verbose", converter.DefaultVerbose)
	v.SetDefault("tuiEnabled", converter.DefaultTuiEnabled)
	v.SetDefault("onError", string(converter.DefaultOnErrorMode))

	// --- Performance & Caching ---
	v.SetDefault("concurrency", converter.DefaultConcurrency)
	v.SetDefault("cache", converter.DefaultCacheEnabled)
	v.SetDefault("cacheFormat", converter.DefaultCacheFormat)

	// --- File Selection ---
	v.SetDefault("extensions", converter.DefaultExtensions)
	v.SetDefault("ignore", []string{})
	v.SetDefault("skipVendored", converter.DefaultSkipVendored)

	// --- Conversion ---
	v.SetDefault("defaultEncoding", converter.DefaultEncoding)
	v.SetDefault("forceEncoding", converter.DefaultForceEncoding)
	v.SetDefault("stripBOM", converter.DefaultStripBOM)
	v.SetDefault("repairGerman", converter.DefaultRepairGerman)
	v.SetDefault("backup", converter.DefaultBackup)
	v.SetDefault("dryRun", converter.DefaultDryRun)
	v.SetDefault("sampleLimit", converter.DefaultSampleLimit)

	// --- Output ---
	v.SetDefault("outputFormat", string(converter.DefaultOutputFormat))
	v.SetDefault("logFormat", converter.DefaultLogFormat)
	v.SetDefault("metricsFile", "")

	// --- Git ---
	v.SetDefault("git.diffOnly", converter.DefaultGitDiffOnly)
	v.SetDefault("git.sinceRef", converter.DefaultGitSinceRef)
}

// isValidEnumValue checks if a given string value is present in a slice of allowed enum values.
func isValidEnumValue[T ~string](value T, allowedValues []T) bool {
	return slices.Contains(allowedValues, value)
}

// validateAndDeriveOptions performs semantic validation on the populated Options
// and calculates derived fields. Errors wrap converter.ErrConfigValidation.
func validateAndDeriveOptions(opts *converter.Options, logger *slog.Logger, flags *pflag.FlagSet) error {
	// === Input path ===
	if opts.InputPath == "" {
		err := fmt.Errorf("%w: input path is required (-i, --input)", converter.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "input"))
		return err
	}
	absInput, err := filepath.Abs(opts.InputPath)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve absolute input path '%s': %w", converter.ErrConfigValidation, opts.InputPath, err)
		logger.Error(err.Error(), slog.String("key", "input"), slog.String("value", opts.InputPath))
		return err
	}
	opts.InputPath = absInput
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("%w: input path '%s' does not exist", converter.ErrConfigValidation, opts.InputPath)
		} else {
			err = fmt.Errorf("%w: cannot access input path '%s': %w", converter.ErrConfigValidation, opts.InputPath, err)
		}
		logger.Error(err.Error(), slog.String("key", "input"), slog.String("value", opts.InputPath))
		return err
	}
	if !info.IsDir() {
		err = fmt.Errorf("%w: input path '%s' is not a directory", converter.ErrConfigValidation, opts.InputPath)
		logger.Error(err.Error(), slog.String("key", "input"), slog.String("value", opts.InputPath))
		return err
	}
	logger.Debug("Validated input path", slog.String("path", opts.InputPath))

	// === Enum validations ===
	allowedOnError := []converter.OnErrorMode{converter.OnErrorContinue, converter.OnErrorStop}
	if !isValidEnumValue(opts.OnErrorMode, allowedOnError) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'onError' (flag --onError). Allowed: %v", converter.ErrConfigValidation, opts.OnErrorMode, allowedOnError)
		logger.Error(err.Error(), slog.String("key", "onError"), slog.String("value", string(opts.OnErrorMode)))
		return err
	}
	allowedOutputFormat := []converter.OutputFormat{converter.OutputFormatText, converter.OutputFormatJSON}
	if !isValidEnumValue(opts.OutputFormat, allowedOutputFormat) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v", converter.ErrConfigValidation, opts.OutputFormat, allowedOutputFormat)
		logger.Error(err.Error(), slog.String("key", "outputFormat"), slog.String("value", string(opts.OutputFormat)))
		return err
	}
	allowedCacheFormat := []string{cache.CacheFormatGob, cache.CacheFormatJSON}
	if !isValidEnumValue(opts.CacheFormat, allowedCacheFormat) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'cacheFormat' (flag --cache-format). Allowed: %v", converter.ErrConfigValidation, opts.CacheFormat, allowedCacheFormat)
		logger.Error(err.Error(), slog.String("key", "cacheFormat"), slog.String("value", opts.CacheFormat))
		return err
	}

	// === Encoding ===
	if strings.EqualFold(opts.DefaultEncoding, SystemEncoding) {
		systemEncoding, ok := encoding.SystemDefault()
		if !ok {
			logger.Warn("Locale names no charset, falling back", slog.String("encoding", systemEncoding))
		}
		opts.DefaultEncoding = systemEncoding
	}
	canonical, err := encoding.Canonical(opts.DefaultEncoding)
	if err != nil {
		err = fmt.Errorf("%w: invalid value '%s' for key 'defaultEncoding' (flag --default-encoding): %w", converter.ErrConfigValidation, opts.DefaultEncoding, err)
		logger.Error(err.Error(), slog.String("key", "defaultEncoding"))
		return err
	}
	opts.DefaultEncoding = canonical

	// === Numeric ranges ===
	if opts.Concurrency < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'concurrency' (flag --concurrency). Must be >= 0", converter.ErrConfigValidation, opts.Concurrency)
		logger.Error(err.Error(), slog.String("key", "concurrency"), slog.Int("value", opts.Concurrency))
		return err
	}
	if opts.SampleLimit < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'sampleLimit' (flag --sample-limit). Must be >= 0", converter.ErrConfigValidation, opts.SampleLimit)
		logger.Error(err.Error(), slog.String("key", "sampleLimit"), slog.Int("value", opts.SampleLimit))
		return err
	}

	// === Derivations ===
	if opts.Concurrency == 0 {
		opts.Concurrency = runtime.NumCPU()
		logger.Debug("Concurrency not set, defaulting to number of CPUs", slog.Int("concurrency", opts.Concurrency))
	}
	opts.Extensions = util.NormalizeExtensions(opts.Extensions)

	opts.GitDiffMode = converter.GitDiffModeNone
	if opts.GitConfig.DiffOnly {
		if flags.Changed("git-since") {
			err = fmt.Errorf("%w: cannot use --git-diff-only and --git-since flags simultaneously", converter.ErrConfigValidation)
			logger.Error(err.Error())
			return err
		}
		opts.GitDiffMode = converter.GitDiffModeDiffOnly
	} else if flags.Changed("git-since") {
		if opts.GitConfig.SinceRef == "" {
			err = fmt.Errorf("%w: flag --git-since requires a non-empty reference (commit/tag/branch)", converter.ErrConfigValidation)
			logger.Error(err.Error())
			return err
		}
		opts.GitDiffMode = converter.GitDiffModeSince
	}
	logger.Debug("Git diff mode derived", slog.String("mode", string(opts.GitDiffMode)), slog.String("sinceRef", opts.GitConfig.SinceRef))

	if opts.MetricsFile != "" {
		absMetrics, err := filepath.Abs(opts.MetricsFile)
		if err != nil {
			err = fmt.Errorf("%w: cannot resolve metrics file path '%s': %w", converter.ErrConfigValidation, opts.MetricsFile, err)
			logger.Error(err.Error(), slog.String("key", "metricsFile"))
			return err
		}
		opts.MetricsFile = absMetrics
	}

	// Verbose logging and the TUI share stderr.
	if opts.Verbose && opts.TuiEnabled {
		logger.Debug("Verbose mode enabled, TUI disabled")
		opts.TuiEnabled = false
	}

	logger.Debug("Final derived settings validated",
		slog.Int("concurrency", opts.Concurrency),
		slog.String("defaultEncoding", opts.DefaultEncoding),
		slog.Any("extensions", opts.Extensions),
		slog.String("gitDiffMode", string(opts.GitDiffMode)),
		slog.Bool("dryRun", opts.DryRun),
		slog.Bool("tuiEnabledEffective", opts.TuiEnabled),
	)
	return nil
}
