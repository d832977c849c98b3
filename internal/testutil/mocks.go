// Package testutil provides fixtures and testify mocks for the interfaces of
// the converter library (pkg/converter and subpackages).
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stackvity/to-utf/pkg/converter"
	"github.com/stretchr/testify/mock"
)

// MockCacheManager provides a mock implementation of the converter.CacheManager interface.
// Configure expectations using testify/mock methods (e.g., .On("Check", ...).Return(...)).
type MockCacheManager struct {
	mock.Mock
}

func (m *MockCacheManager) Load(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

func (m *MockCacheManager) Check(filePath string, modTime time.Time, contentHash string, configHash string) (isHit bool, sourceEncoding string) {
	args := m.Called(filePath, modTime, contentHash, configHash)
	isHit, _ = args.Get(0).(bool)
	sourceEncoding, _ = args.Get(1).(string)
	return
}

func (m *MockCacheManager) Update(filePath string, modTime time.Time, contentHash string, configHash string, sourceEncoding string) error {
	args := m.Called(filePath, modTime, contentHash, configHash, sourceEncoding)
	return args.Error(0)
}

func (m *MockCacheManager) Persist(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

// MockCharsetDetector provides a mock implementation of encoding.CharsetDetector.
// The reader is drained before the expectation is matched, so tests can
// assert on the bytes that were offered.
type MockCharsetDetector struct {
	mock.Mock
}

func (m *MockCharsetDetector) Detect(r io.Reader) (charset string, found bool, err error) {
	content, readErr := io.ReadAll(r)
	if readErr != nil {
		return "", false, readErr
	}
	args := m.Called(content)
	charset, _ = args.Get(0).(string)
	found, _ = args.Get(1).(bool)
	err = args.Error(2)
	return
}

// MockGitClient provides a mock implementation of the converter.GitClient interface.
type MockGitClient struct {
	mock.Mock
}

func (m *MockGitClient) GetChangedFiles(repoPath, mode string, ref string) (files []string, err error) {
	args := m.Called(repoPath, mode, ref)
	files, _ = args.Get(0).([]string)
	err = args.Error(1)
	return
}

// MockHooks provides a mock implementation of the converter.Hooks interface.
// Hooks are invoked from worker goroutines; testify's mock is safe for that.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnFileDiscovered(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockHooks) OnFileStatusUpdate(path string, status converter.Status, message string, duration time.Duration) error {
	args := m.Called(path, status, message, duration)
	return args.Error(0)
}

func (m *MockHooks) OnRunComplete(report converter.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// MockMetrics provides a mock implementation of converter.MetricsRecorder.
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) ObserveFile(outcome converter.Status, sourceEncoding string, bytes int64, duration time.Duration) {
	m.Called(outcome, sourceEncoding, bytes, duration)
}

// RecordingHooks is a converter.Hooks that stores every call, for tests that
// care about the sequence of events rather than exact arguments.
type RecordingHooks struct {
	mu         sync.Mutex
	Discovered []string
	Updates    map[string][]converter.Status
	Messages   map[string]string
	Results    map[string]converter.FileInfo
	Report     *converter.Report
}

// NewRecordingHooks returns an empty RecordingHooks.
func NewRecordingHooks() *RecordingHooks {
	return &RecordingHooks{
		Updates:  make(map[string][]converter.Status),
		Messages: make(map[string]string),
		Results:  make(map[string]converter.FileInfo),
	}
}

func (h *RecordingHooks) OnFileDiscovered(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Discovered = append(h.Discovered, path)
	return nil
}

func (h *RecordingHooks) OnFileStatusUpdate(path string, status converter.Status, message string, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Updates[path] = append(h.Updates[path], status)
	h.Messages[path] = message
	return nil
}

func (h *RecordingHooks) OnFileResult(path string, status converter.Status, info converter.FileInfo, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Updates[path] = append(h.Updates[path], status)
	h.Messages[path] = info.Listing
	h.Results[path] = info
	return nil
}

func (h *RecordingHooks) OnRunComplete(report converter.Report) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Report = &report
	return nil
}

// LastStatus returns the most recent status reported for path.
func (h *RecordingHooks) LastStatus(path string) (converter.Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	updates := h.Updates[path]
	if len(updates) == 0 {
		return "", false
	}
	return updates[len(updates)-1], true
}

// MockLoggerHandler provides a mock implementation for slog.Handler.
// Prefer slog.NewTextHandler over a bytes.Buffer for asserting on log output.
type MockLoggerHandler struct {
	mock.Mock
}

func (m *MockLoggerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	args := m.Called(ctx, level)
	enabled, _ := args.Get(0).(bool)
	return enabled
}

func (m *MockLoggerHandler) Handle(ctx context.Context, r slog.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockLoggerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	args := m.Called(attrs)
	retHandler, ok := args.Get(0).(slog.Handler)
	if !ok || retHandler == nil {
		return m
	}
	return retHandler
}

func (m *MockLoggerHandler) WithGroup(name string) slog.Handler {
	args := m.Called(name)
	retHandler, ok := args.Get(0).(slog.Handler)
	if !ok || retHandler == nil {
		return m
	}
	return retHandler
}

// DiscardHandler returns an slog.Handler that drops all records.
func DiscardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}
