package converter_test

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackvity/to-utf/internal/testutil"
	"github.com/stackvity/to-utf/pkg/converter"
	"github.com/stackvity/to-utf/pkg/converter/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func newProcessorOpts(root string) *converter.Options {
	return &converter.Options{
		InputPath:       root,
		AppVersion:      "test",
		Logger:          testutil.DiscardHandler(),
		EventHooks:      &converter.NoOpHooks{},
		DefaultEncoding: encoding.Latin1,
		StripBOM:        true,
		OnErrorMode:     converter.OnErrorContinue,
	}
}

func sha(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func processOne(t *testing.T, opts *converter.Options, cacheMgr converter.CacheManager, abs string) (interface{}, converter.Status, error) {
	t.Helper()
	p := converter.NewFileProcessor(opts, opts.Logger, cacheMgr, nil)
	return p.ProcessFile(context.Background(), abs)
}

func TestProcessFile_ConvertsLatin1(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "A.java")
	testutil.CreateDummyBytes(t, abs, encodeWith(t, charmap.ISO8859_1, "Müller\n"))

	result, status, err := processOne(t, newProcessorOpts(root), nil, abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status)

	info, ok := result.(converter.FileInfo)
	require.True(t, ok, "expected FileInfo, got %T", result)
	assert.Equal(t, "A.java", info.Path)
	assert.Equal(t, converter.ActionConverted, info.Action)
	assert.Equal(t, encoding.Latin1, info.SourceEncoding)
	assert.True(t, info.Assumed)
	assert.False(t, info.HadBOM)
	assert.Equal(t, "A.java (assuming ISO-8859-1)", info.Listing)
	assert.Equal(t, converter.CacheStatusDisabled, info.CacheStatus)
	assert.Empty(t, info.BackupPath)

	assert.Equal(t, "Müller\n", string(testutil.ReadFile(t, abs)))
	assert.Equal(t, []string{"A.java"}, dirNames(t, root), "no temp files left behind")
}

func TestProcessFile_DetectedEncodings(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		listing  string
		expected string
		hadBOM   bool
	}{
		{
			name:     "utf-8",
			content:  []byte("Grüße\n"),
			listing:  "src/A.java (UTF-8)",
			expected: "Grüße\n",
		},
		{
			name:     "utf-8 with bom",
			content:  append([]byte{0xEF, 0xBB, 0xBF}, "Grüße\n"...),
			listing:  "src/A.java (UTF-8, BOM detected)",
			expected: "Grüße\n",
			hadBOM:   true,
		},
		{
			name:     "utf-16le with bom",
			content:  append([]byte{0xFF, 0xFE}, encodeWith(t, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), "Grüße\n")...),
			listing:  "src/A.java (UTF-16LE, BOM detected)",
			expected: "Grüße\n",
			hadBOM:   true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			abs := filepath.Join(root, "src", "A.java")
			testutil.CreateDummyBytes(t, abs, tc.content)

			result, status, err := processOne(t, newProcessorOpts(root), nil, abs)
			require.NoError(t, err)
			assert.Equal(t, converter.StatusSuccess, status)
			info := result.(converter.FileInfo)
			assert.False(t, info.Assumed)
			assert.Equal(t, tc.hadBOM, info.HadBOM)
			assert.Equal(t, tc.listing, info.Listing)
			assert.Equal(t, tc.expected, string(testutil.ReadFile(t, abs)))
		})
	}
}

func TestProcessFile_KeepsBOMWhenStripDisabled(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "A.java")
	content := append([]byte{0xEF, 0xBB, 0xBF}, "class A {}\n"...)
	testutil.CreateDummyBytes(t, abs, content)

	opts := newProcessorOpts(root)
	opts.StripBOM = false
	_, _, err := processOne(t, opts, nil, abs)
	require.NoError(t, err)
	assert.Equal(t, content, testutil.ReadFile(t, abs))
}

func TestProcessFile_SkipsBinary(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "image.java")
	content := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	testutil.CreateDummyBytes(t, abs, content)

	result, status, err := processOne(t, newProcessorOpts(root), nil, abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSkipped, status)
	skipped, ok := result.(converter.SkippedInfo)
	require.True(t, ok)
	assert.Equal(t, "image.java", skipped.Path)
	assert.Equal(t, converter.SkipReasonBinary, skipped.Reason)
	assert.Equal(t, content, testutil.ReadFile(t, abs))
}

func TestProcessFile_DryRunLeavesFileAlone(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "A.java")
	original := encodeWith(t, charmap.ISO8859_1, "Größe\n")
	testutil.CreateDummyBytes(t, abs, original)

	opts := newProcessorOpts(root)
	opts.DryRun = true
	opts.Backup = true
	result, status, err := processOne(t, opts, nil, abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status)
	info := result.(converter.FileInfo)
	assert.Equal(t, converter.ActionListed, info.Action)
	assert.Equal(t, "A.java (assuming ISO-8859-1)", info.Listing)
	assert.Equal(t, original, testutil.ReadFile(t, abs))
	assert.Equal(t, []string{"A.java"}, dirNames(t, root), "dry run writes no backup")
}

func TestProcessFile_ForceEncodingSkipsDetection(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "A.java")
	testutil.CreateDummyFile(t, abs, "Grüße\n")

	opts := newProcessorOpts(root)
	opts.DefaultEncoding = "windows-1252"
	opts.ForceEncoding = true
	result, _, err := processOne(t, opts, nil, abs)
	require.NoError(t, err)
	info := result.(converter.FileInfo)
	assert.False(t, info.Assumed)
	assert.Equal(t, encoding.Windows1252, info.SourceEncoding)
	assert.Equal(t, "GrÃ¼ÃŸe\n", string(testutil.ReadFile(t, abs)), "UTF-8 bytes decoded as windows-1252")
}

func TestProcessFile_UnsupportedDefaultEncoding(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "A.java")
	original := encodeWith(t, charmap.ISO8859_1, "Müller\n")
	testutil.CreateDummyBytes(t, abs, original)

	opts := newProcessorOpts(root)
	opts.DefaultEncoding = "no-such-charset"
	result, status, err := processOne(t, opts, nil, abs)
	require.Error(t, err)
	assert.ErrorIs(t, err, converter.ErrUnsupportedEncoding)
	assert.Equal(t, converter.StatusFailed, status)
	errInfo, ok := result.(converter.ErrorInfo)
	require.True(t, ok)
	assert.Equal(t, "A.java", errInfo.Path)
	assert.Equal(t, original, testutil.ReadFile(t, abs))
}

func TestProcessFile_RepairGerman(t *testing.T) {
	t.Run("utf-8 source is repaired", func(t *testing.T) {
		root := t.TempDir()
		abs := filepath.Join(root, "A.java")
		testutil.CreateDummyFile(t, abs, garble(t, "Müller Straße")+"\n")

		opts := newProcessorOpts(root)
		opts.RepairGerman = true
		result, _, err := processOne(t, opts, nil, abs)
		require.NoError(t, err)
		info := result.(converter.FileInfo)
		assert.Equal(t, "repair-german", info.Filter)
		assert.Empty(t, info.Warnings)
		assert.Equal(t, "Müller Straße\n", string(testutil.ReadFile(t, abs)))
	})

	t.Run("legacy source gets a warning", func(t *testing.T) {
		root := t.TempDir()
		abs := filepath.Join(root, "A.java")
		testutil.CreateDummyBytes(t, abs, encodeWith(t, charmap.ISO8859_1, "Müller\n"))

		opts := newProcessorOpts(root)
		opts.RepairGerman = true
		result, _, err := processOne(t, opts, nil, abs)
		require.NoError(t, err)
		info := result.(converter.FileInfo)
		assert.Empty(t, info.Filter)
		require.Len(t, info.Warnings, 1)
		assert.Contains(t, info.Warnings[0], "ISO-8859-1")
		assert.Equal(t, "Müller\n", string(testutil.ReadFile(t, abs)))
	})
}

func TestProcessFile_Backup(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "pkg", "A.java")
	original := encodeWith(t, charmap.ISO8859_1, "Müller\n")
	testutil.CreateDummyBytes(t, abs, original)

	opts := newProcessorOpts(root)
	opts.Backup = true
	result, _, err := processOne(t, opts, nil, abs)
	require.NoError(t, err)
	info := result.(converter.FileInfo)
	assert.Equal(t, "pkg/A.java.backup", info.BackupPath)
	assert.Equal(t, original, testutil.ReadFile(t, abs+".backup"))
	assert.Equal(t, "Müller\n", string(testutil.ReadFile(t, abs)))
}

func TestProcessFile_CacheMissUpdatesEntry(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "A.java")
	original := encodeWith(t, charmap.ISO8859_1, "Müller\n")
	testutil.CreateDummyBytes(t, abs, original)

	opts := newProcessorOpts(root)
	opts.CacheEnabled = true
	cacheMgr := &testutil.MockCacheManager{}
	p := converter.NewFileProcessor(opts, opts.Logger, cacheMgr, nil)

	cacheMgr.On("Check", "A.java", mock.Anything, sha(original), p.ConfigHash()).Return(false, "").Once()
	cacheMgr.On("Update", "A.java", mock.Anything, sha([]byte("Müller\n")), p.ConfigHash(), encoding.Latin1).Return(nil).Once()

	result, status, err := p.ProcessFile(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status)
	assert.Equal(t, converter.CacheStatusMiss, result.(converter.FileInfo).CacheStatus)
	cacheMgr.AssertExpectations(t)
}

func TestProcessFile_CacheHit(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "A.java")
	testutil.CreateDummyFile(t, abs, "Müller\n")

	opts := newProcessorOpts(root)
	opts.CacheEnabled = true
	cacheMgr := &testutil.MockCacheManager{}
	cacheMgr.On("Check", "A.java", mock.Anything, sha([]byte("Müller\n")), mock.Anything).Return(true, "windows-1252")

	result, status, err := processOne(t, opts, cacheMgr, abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusCached, status)
	info := result.(converter.FileInfo)
	assert.Equal(t, converter.CacheStatusHit, info.CacheStatus)
	assert.Equal(t, "windows-1252", info.SourceEncoding)
	assert.Equal(t, "A.java (cached, converted from windows-1252)", info.Listing)
	assert.Empty(t, info.Action)
	cacheMgr.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessFile_IgnoreCacheRead(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "A.java")
	testutil.CreateDummyFile(t, abs, "plain\n")

	opts := newProcessorOpts(root)
	opts.CacheEnabled = true
	opts.IgnoreCacheRead = true
	cacheMgr := &testutil.MockCacheManager{}
	cacheMgr.On("Update", "A.java", mock.Anything, sha([]byte("plain\n")), mock.Anything, encoding.UTF8).Return(nil)

	_, status, err := processOne(t, opts, cacheMgr, abs)
	require.NoError(t, err)
	assert.Equal(t, converter.StatusSuccess, status)
	cacheMgr.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cacheMgr.AssertExpectations(t)
}

func TestProcessFile_RecordsMetrics(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "A.java")
	content := encodeWith(t, charmap.ISO8859_1, "Müller\n")
	testutil.CreateDummyBytes(t, abs, content)

	recorder := &testutil.MockMetrics{}
	recorder.On("ObserveFile", converter.StatusSuccess, encoding.Latin1, int64(len(content)), mock.Anything).Once()

	opts := newProcessorOpts(root)
	opts.Metrics = recorder
	_, _, err := processOne(t, opts, nil, abs)
	require.NoError(t, err)
	recorder.AssertExpectations(t)
}

func TestProcessFile_Failures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		root := t.TempDir()
		result, status, err := processOne(t, newProcessorOpts(root), nil, filepath.Join(root, "gone.java"))
		require.Error(t, err)
		assert.ErrorIs(t, err, converter.ErrStatFailed)
		assert.Equal(t, converter.StatusFailed, status)
		errInfo, ok := result.(converter.ErrorInfo)
		require.True(t, ok)
		assert.Equal(t, "gone.java", errInfo.Path)
		assert.False(t, errInfo.IsFatal)
	})

	t.Run("fatal in stop mode", func(t *testing.T) {
		root := t.TempDir()
		opts := newProcessorOpts(root)
		opts.OnErrorMode = converter.OnErrorStop
		result, _, err := processOne(t, opts, nil, filepath.Join(root, "gone.java"))
		require.Error(t, err)
		assert.True(t, result.(converter.ErrorInfo).IsFatal)
	})

	t.Run("cancelled context", func(t *testing.T) {
		root := t.TempDir()
		abs := filepath.Join(root, "A.java")
		testutil.CreateDummyFile(t, abs, "x")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		opts := newProcessorOpts(root)
		p := converter.NewFileProcessor(opts, opts.Logger, nil, nil)
		_, status, err := p.ProcessFile(ctx, abs)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, converter.StatusFailed, status)
	})

	t.Run("directory is not regular", func(t *testing.T) {
		root := t.TempDir()
		dir := filepath.Join(root, "odd.java")
		testutil.CreateDummyDir(t, dir)
		result, status, err := processOne(t, newProcessorOpts(root), nil, dir)
		require.NoError(t, err)
		assert.Equal(t, converter.StatusSkipped, status)
		assert.Equal(t, converter.SkipReasonNotRegular, result.(converter.SkippedInfo).Reason)
	})
}

func TestFileProcessor_ConfigHash(t *testing.T) {
	root := t.TempDir()
	hashOf := func(mutate func(*converter.Options)) string {
		opts := newProcessorOpts(root)
		mutate(opts)
		return converter.NewFileProcessor(opts, opts.Logger, nil, nil).ConfigHash()
	}

	base := hashOf(func(*converter.Options) {})
	assert.NotEmpty(t, base)
	assert.Equal(t, base, hashOf(func(*converter.Options) {}), "hash must be stable")
	assert.Equal(t, base, hashOf(func(o *converter.Options) { o.DefaultEncoding = "iso-8859-1" }), "charset aliases hash alike")
	assert.Equal(t, base, hashOf(func(o *converter.Options) { o.Backup = true; o.Concurrency = 7 }), "settings that do not change output are ignored")

	assert.NotEqual(t, base, hashOf(func(o *converter.Options) { o.StripBOM = false }))
	assert.NotEqual(t, base, hashOf(func(o *converter.Options) { o.RepairGerman = true }))
	assert.NotEqual(t, base, hashOf(func(o *converter.Options) { o.ForceEncoding = true }))
	assert.NotEqual(t, base, hashOf(func(o *converter.Options) { o.DefaultEncoding = "windows-1252" }))
	assert.NotEqual(t, base, hashOf(func(o *converter.Options) { o.AppVersion = "2.0.0" }))
}
