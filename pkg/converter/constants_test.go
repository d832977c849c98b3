package converter_test

import (
	"testing"
	"time"

	"github.com/stackvity/to-utf/pkg/converter"
	"github.com/stretchr/testify/assert"
)

// TestDefaultConfigurationConstants verifies default configuration constants.
func TestDefaultConfigurationConstants(t *testing.T) {
	assert.Equal(t, 0, converter.DefaultConcurrency)
	assert.True(t, converter.DefaultCacheEnabled)
	assert.True(t, converter.DefaultTuiEnabled)
	assert.Equal(t, converter.OnErrorContinue, converter.DefaultOnErrorMode)
	assert.Equal(t, "ISO-8859-1", converter.DefaultEncoding)
	assert.False(t, converter.DefaultForceEncoding)
	assert.True(t, converter.DefaultStripBOM)
	assert.False(t, converter.DefaultRepairGerman)
	assert.True(t, converter.DefaultBackup)
	assert.False(t, converter.DefaultDryRun)
	assert.True(t, converter.DefaultSkipVendored)
	assert.False(t, converter.DefaultGitDiffOnly)
	assert.Equal(t, "main", converter.DefaultGitSinceRef)
	assert.Equal(t, converter.OutputFormatText, converter.DefaultOutputFormat)
	assert.Equal(t, "text", converter.DefaultLogFormat)
	assert.Equal(t, "gob", converter.DefaultCacheFormat)
	assert.False(t, converter.DefaultVerbose)
	assert.Equal(t, time.Second, converter.DefaultDispatchWarnThreshold)
	assert.Equal(t, []string{".java"}, converter.DefaultExtensions)
}

// TestArtifactConstants verifies the names of files the converter writes.
func TestArtifactConstants(t *testing.T) {
	assert.Equal(t, ".toutf.cache", converter.CacheFileName)
	assert.Equal(t, ".backup", converter.BackupSuffix)
	assert.Equal(t, ".toutfignore", converter.IgnoreFileName)
}

// TestReportConstants verifies report-related constants.
func TestReportConstants(t *testing.T) {
	assert.Equal(t, "1.0", converter.ReportSchemaVersion)
	assert.Equal(t, "hit", converter.CacheStatusHit)
	assert.Equal(t, "miss", converter.CacheStatusMiss)
	assert.Equal(t, "disabled", converter.CacheStatusDisabled)
	assert.Equal(t, "binary_file", converter.SkipReasonBinary)
	assert.Equal(t, "ignored_pattern", converter.SkipReasonIgnored)
	assert.Equal(t, "excluded_by_git_diff", converter.SkipReasonGitExclude)
	assert.Equal(t, "vendored", converter.SkipReasonVendored)
	assert.Equal(t, "not_regular_file", converter.SkipReasonNotRegular)
}
