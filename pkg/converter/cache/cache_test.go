package cache_test

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stackvity/to-utf/pkg/converter/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheConstants(t *testing.T) {
	assert.Equal(t, ".toutf.cache", cache.CacheFileName)
	assert.Equal(t, "1.0", cache.CacheSchemaVersion)
	assert.Equal(t, "gob", cache.DefaultCacheFormat)
}

func setupCache(t *testing.T, format, version string) (*cache.FileCacheManager, string) {
	t.Helper()
	logBuf := &bytes.Buffer{}
	handler := slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("--- Cache Manager Logs ---\n%s--- End Logs ---", logBuf.String())
		}
	})
	mgr := cache.NewFileCacheManager(handler, cache.CacheSchemaVersion, version, format)
	require.NotNil(t, mgr)
	return mgr, filepath.Join(t.TempDir(), cache.CacheFileName)
}

func TestFileCacheManager_LoadMissingFile(t *testing.T) {
	mgr, path := setupCache(t, cache.CacheFormatGob, "v1")
	require.NoError(t, mgr.Load(path))
	assert.Equal(t, 0, mgr.Len())
}

func TestFileCacheManager_CheckCriteria(t *testing.T) {
	mgr, _ := setupCache(t, cache.CacheFormatGob, "v1")
	mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, mgr.Update("src/A.java", mod, "h1", "cfg", "ISO-8859-1"))

	hit, enc := mgr.Check("src/A.java", mod, "h1", "cfg")
	assert.True(t, hit)
	assert.Equal(t, "ISO-8859-1", enc)

	hit, _ = mgr.Check("src/B.java", mod, "h1", "cfg")
	assert.False(t, hit, "unknown path")
	hit, _ = mgr.Check("src/A.java", mod.Add(time.Second), "h1", "cfg")
	assert.False(t, hit, "modTime changed")
	hit, _ = mgr.Check("src/A.java", mod, "h2", "cfg")
	assert.False(t, hit, "content changed")
	hit, _ = mgr.Check("src/A.java", mod, "h1", "other")
	assert.False(t, hit, "config changed")
}

func TestFileCacheManager_PersistLoadRoundTrip(t *testing.T) {
	for _, format := range []string{cache.CacheFormatGob, cache.CacheFormatJSON} {
		t.Run(format, func(t *testing.T) {
			mgr, path := setupCache(t, format, "v1")
			mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, mgr.Update("a.java", mod, "h1", "cfg", "UTF-8"))
			require.NoError(t, mgr.Update("b.java", mod, "h2", "cfg", "windows-1252"))
			require.NoError(t, mgr.Persist(path))
			require.FileExists(t, path)

			fresh := cache.NewFileCacheManager(nil, cache.CacheSchemaVersion, "v1", format)
			require.NoError(t, fresh.Load(path))
			assert.Equal(t, 2, fresh.Len())
			hit, enc := fresh.Check("b.java", mod, "h2", "cfg")
			assert.True(t, hit)
			assert.Equal(t, "windows-1252", enc)

			matches, err := filepath.Glob(path + ".tmp-*")
			require.NoError(t, err)
			assert.Empty(t, matches, "temp file left behind")
		})
	}
}

func TestFileCacheManager_VersionMismatchInvalidates(t *testing.T) {
	mgr, path := setupCache(t, cache.CacheFormatGob, "v1")
	require.NoError(t, mgr.Update("a.java", time.Unix(100, 0), "h", "c", "UTF-8"))
	require.NoError(t, mgr.Persist(path))

	newer := cache.NewFileCacheManager(nil, cache.CacheSchemaVersion, "v2", cache.CacheFormatGob)
	require.NoError(t, newer.Load(path))
	assert.Equal(t, 0, newer.Len())

	dev := cache.NewFileCacheManager(nil, cache.CacheSchemaVersion, "dev", cache.CacheFormatGob)
	require.NoError(t, dev.Load(path))
	assert.Equal(t, 1, dev.Len(), "dev builds accept any cache")

	otherSchema := cache.NewFileCacheManager(nil, "0.9", "v1", cache.CacheFormatGob)
	require.NoError(t, otherSchema.Load(path))
	assert.Equal(t, 0, otherSchema.Len())
}

func TestFileCacheManager_CorruptFileIsMiss(t *testing.T) {
	mgr, path := setupCache(t, cache.CacheFormatGob, "v1")
	require.NoError(t, os.WriteFile(path, []byte("not a gob stream"), 0644))
	require.NoError(t, mgr.Load(path))
	assert.Equal(t, 0, mgr.Len())

	jsonMgr, jsonPath := setupCache(t, cache.CacheFormatJSON, "v1")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{broken"), 0644))
	require.NoError(t, jsonMgr.Load(jsonPath))
	assert.Equal(t, 0, jsonMgr.Len())

	empty, emptyPath := setupCache(t, cache.CacheFormatGob, "v1")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0644))
	require.NoError(t, empty.Load(emptyPath))
	assert.Equal(t, 0, empty.Len())
}

func TestFileCacheManager_HeaderOnlyGob(t *testing.T) {
	mgr, path := setupCache(t, cache.CacheFormatGob, "v1")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gob.NewEncoder(f).Encode(cache.CacheFileHeader{SchemaVersion: cache.CacheSchemaVersion, ConverterVersion: "v1"}))
	require.NoError(t, f.Close())

	require.NoError(t, mgr.Load(path))
	assert.Equal(t, 0, mgr.Len())
}

func TestFileCacheManager_LoadUnreadablePath(t *testing.T) {
	mgr, _ := setupCache(t, cache.CacheFormatGob, "v1")
	dir := t.TempDir()
	// Opening a directory succeeds on most platforms, so use a path below a regular file.
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	err := mgr.Load(filepath.Join(blocker, "cache"))
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrCacheLoad)
}

func TestFileCacheManager_PersistEmptyRemovesFile(t *testing.T) {
	mgr, path := setupCache(t, cache.CacheFormatGob, "v1")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))
	require.NoError(t, mgr.Persist(path))
	assert.NoFileExists(t, path)
}

func TestFileCacheManager_PersistFailure(t *testing.T) {
	mgr, _ := setupCache(t, cache.CacheFormatGob, "v1")
	require.NoError(t, mgr.Update("a.java", time.Unix(1, 0), "h", "c", "UTF-8"))
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := mgr.Persist(filepath.Join(blocker, "sub", cache.CacheFileName))
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrCachePersist)
}

func TestFileCacheManager_ConcurrentUpdates(t *testing.T) {
	mgr, path := setupCache(t, cache.CacheFormatGob, "v1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("f%02d.java", i)
			_ = mgr.Update(name, time.Unix(int64(i), 0), "h", "c", "UTF-8")
			mgr.Check(name, time.Unix(int64(i), 0), "h", "c")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, mgr.Len())
	require.NoError(t, mgr.Persist(path))
}
