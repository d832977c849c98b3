// Package cache persists which files have already been converted, so that
// repeated runs over a large tree only touch files that changed since.
package cache

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CacheFileName is the standard name for the cache index file.
const CacheFileName = ".toutf.cache"

// CacheSchemaVersion is the version of the on-disk layout. Increment it when
// CacheEntry or the file framing changes incompatibly.
const CacheSchemaVersion = "1.0"

const (
	DefaultCacheFormat = CacheFormatGob
	CacheFormatGob     = "gob"
	CacheFormatJSON    = "json"
)

var (
	// ErrCacheLoad indicates the cache file exists but could not be opened.
	// Corrupt or outdated content is not an error; it yields an empty index.
	ErrCacheLoad = errors.New("failed to load cache index")

	// ErrCachePersist indicates the index could not be written.
	ErrCachePersist = errors.New("failed to persist cache index")
)

// CacheEntry records the state of a file right after it was written as UTF-8.
type CacheEntry struct {
	ModTime          time.Time `json:"modTime"`
	ContentHash      string    `json:"contentHash"`    // SHA-256 of the converted file
	ConfigHash       string    `json:"configHash"`     // settings that affect conversion output
	SourceEncoding   string    `json:"sourceEncoding"` // encoding the file was converted from
	SchemaVersion    string    `json:"schemaVersion"`
	ConverterVersion string    `json:"converterVersion"`
}

// CacheFileHeader is written ahead of the index and validated on Load.
type CacheFileHeader struct {
	SchemaVersion    string `json:"schemaVersion"`
	ConverterVersion string `json:"converterVersion"`
}

type jsonCacheFile struct {
	Header CacheFileHeader       `json:"header"`
	Index  map[string]CacheEntry `json:"index"`
}

// FileCacheManager keeps the index in memory and persists it as gob or JSON.
// All methods are safe for concurrent use.
type FileCacheManager struct {
	index            map[string]CacheEntry // keyed by slash-separated path relative to the input root
	mu               sync.RWMutex
	logger           *slog.Logger
	schemaVersion    string
	converterVersion string
	format           string
}

// NewFileCacheManager creates a manager. Unknown formats fall back to gob,
// an empty converterVersion to "dev" (which matches any version).
func NewFileCacheManager(loggerHandler slog.Handler, schemaVersion string, converterVersion string, cacheFormat string) *FileCacheManager {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	format := strings.ToLower(cacheFormat)
	if format != CacheFormatJSON && format != CacheFormatGob {
		format = DefaultCacheFormat
	}
	logger := slog.New(loggerHandler).With(
		slog.String("component", "cacheManager"),
		slog.String("format", format),
	)
	if schemaVersion == "" {
		schemaVersion = CacheSchemaVersion
	}
	if converterVersion == "" {
		converterVersion = "dev"
		logger.Warn("Converter version not provided, using default", "version", converterVersion)
	}

	return &FileCacheManager{
		index:            make(map[string]CacheEntry),
		logger:           logger,
		schemaVersion:    schemaVersion,
		converterVersion: converterVersion,
		format:           format,
	}
}

// Len returns the number of entries in the index.
func (c *FileCacheManager) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// Load replaces the index with the contents of cachePath. A missing,
// empty, corrupt or version-mismatched file leaves an empty index and
// returns nil; only an unopenable file is an error.
func (c *FileCacheManager) Load(cachePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[string]CacheEntry)

	file, err := os.Open(cachePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Info("Cache file not found, starting with empty index.", "path", cachePath)
			return nil
		}
		c.logger.Error("Critical cache load error", "path", cachePath, "error", err.Error())
		return fmt.Errorf("%w: open '%s': %w", ErrCacheLoad, cachePath, err)
	}
	defer file.Close()

	header, loaded, decodeErr := c.decode(file)
	if decodeErr != nil {
		if errors.Is(decodeErr, io.EOF) || errors.Is(decodeErr, io.ErrUnexpectedEOF) {
			c.logger.Warn("Cache file is empty or truncated, treating as miss.", "path", cachePath)
		} else {
			c.logger.Warn("Failed to decode cache file, treating as miss.", "path", cachePath, "error", decodeErr.Error())
		}
		return nil
	}

	if header.SchemaVersion != c.schemaVersion {
		c.logger.Warn("Cache schema version mismatch, invalidating cache.",
			"path", cachePath, "file_schema", header.SchemaVersion, "expected_schema", c.schemaVersion)
		return nil
	}
	if !c.versionCompatible(header.ConverterVersion) {
		c.logger.Warn("Cache converter version mismatch, invalidating cache.",
			"path", cachePath, "file_converter", header.ConverterVersion, "expected_converter", c.converterVersion)
		return nil
	}

	if loaded != nil {
		c.index = loaded
	}
	c.logger.Info("Cache loaded.", "path", cachePath, "entries", len(c.index))
	return nil
}

func (c *FileCacheManager) decode(r io.Reader) (CacheFileHeader, map[string]CacheEntry, error) {
	if c.format == CacheFormatJSON {
		var data jsonCacheFile
		if err := json.NewDecoder(r).Decode(&data); err != nil {
			return CacheFileHeader{}, nil, err
		}
		return data.Header, data.Index, nil
	}

	var header CacheFileHeader
	dec := gob.NewDecoder(r)
	if err := dec.Decode(&header); err != nil {
		return CacheFileHeader{}, nil, err
	}
	var index map[string]CacheEntry
	if err := dec.Decode(&index); err != nil {
		if errors.Is(err, io.EOF) {
			return header, nil, nil // header only
		}
		return CacheFileHeader{}, nil, err
	}
	return header, index, nil
}

// "dev" builds share caches with every version.
func (c *FileCacheManager) versionCompatible(v string) bool {
	return c.converterVersion == "dev" || v == "dev" || v == c.converterVersion
}

// Check reports a hit when filePath was recorded with the same modTime,
// content hash and config hash. It returns the recorded source encoding.
func (c *FileCacheManager) Check(filePath string, modTime time.Time, contentHash string, configHash string) (bool, string) {
	c.mu.RLock()
	entry, found := c.index[filePath]
	c.mu.RUnlock()

	logArgs := []any{slog.String("path", filePath)}
	switch {
	case !found:
		c.logger.Debug("Cache check: miss (no entry)", logArgs...)
		return false, ""
	case entry.SchemaVersion != c.schemaVersion || !c.versionCompatible(entry.ConverterVersion):
		c.logger.Debug("Cache check: miss (version)", logArgs...)
		return false, ""
	case !entry.ModTime.Equal(modTime):
		c.logger.Debug("Cache check: miss (modTime)", logArgs...)
		return false, ""
	case entry.ContentHash != contentHash:
		c.logger.Debug("Cache check: miss (content)", logArgs...)
		return false, ""
	case entry.ConfigHash != configHash:
		c.logger.Debug("Cache check: miss (config)", logArgs...)
		return false, ""
	}
	c.logger.Debug("Cache check: hit", append(logArgs, slog.String("sourceEncoding", entry.SourceEncoding))...)
	return true, entry.SourceEncoding
}

// Update records the post-conversion state of filePath.
func (c *FileCacheManager) Update(filePath string, modTime time.Time, contentHash string, configHash string, sourceEncoding string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index[filePath] = CacheEntry{
		ModTime:          modTime,
		ContentHash:      contentHash,
		ConfigHash:       configHash,
		SourceEncoding:   sourceEncoding,
		SchemaVersion:    c.schemaVersion,
		ConverterVersion: c.converterVersion,
	}
	c.logger.Debug("Cache index updated", slog.String("path", filePath))
	return nil
}

// Persist writes the index to cachePath through a temp file and rename.
// An empty index removes the file instead.
func (c *FileCacheManager) Persist(cachePath string) error {
	c.mu.RLock()
	indexCopy := make(map[string]CacheEntry, len(c.index))
	for k, v := range c.index {
		indexCopy[k] = v
	}
	c.mu.RUnlock()

	if len(indexCopy) == 0 {
		if err := os.Remove(cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to remove empty cache file", "path", cachePath, "error", err.Error())
		}
		return nil
	}

	cacheDir := filepath.Dir(cachePath)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("%w: create directory '%s': %w", ErrCachePersist, cacheDir, err)
	}

	tempFile, err := os.CreateTemp(cacheDir, filepath.Base(cachePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file in '%s': %w", ErrCachePersist, cacheDir, err)
	}
	tempPath := tempFile.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	header := CacheFileHeader{SchemaVersion: c.schemaVersion, ConverterVersion: c.converterVersion}
	var encodeErr error
	if c.format == CacheFormatJSON {
		enc := json.NewEncoder(tempFile)
		enc.SetIndent("", "  ")
		encodeErr = enc.Encode(jsonCacheFile{Header: header, Index: indexCopy})
	} else {
		enc := gob.NewEncoder(tempFile)
		if encodeErr = enc.Encode(header); encodeErr == nil {
			encodeErr = enc.Encode(indexCopy)
		}
	}
	if encodeErr != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrCachePersist, c.format, encodeErr)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: close '%s': %w", ErrCachePersist, tempPath, err)
	}
	if err := os.Rename(tempPath, cachePath); err != nil {
		_ = os.Remove(tempPath)
		renamed = true
		return fmt.Errorf("%w: rename to '%s': %w", ErrCachePersist, cachePath, err)
	}
	renamed = true

	c.logger.Info("Cache persisted.", "path", cachePath, "entries", len(indexCopy))
	return nil
}
