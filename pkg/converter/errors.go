package converter

import (
	"errors"

	"github.com/stackvity/to-utf/pkg/converter/cache"
	"github.com/stackvity/to-utf/pkg/converter/encoding"
	"github.com/stackvity/to-utf/pkg/converter/git"
)

// --- Exported Error Variables ---
// These errors are returned by Convert and the Convertee methods, or recorded
// in Report.Errors for non-fatal per-file failures. Check them with errors.Is.

var (
	// ErrInvalidArgument indicates a missing or malformed argument, such as an empty path.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTarget indicates a transcode target that is empty or resolves to the source file.
	// Returned before any output is written.
	ErrInvalidTarget = errors.New("invalid transcode target")

	// ErrReadFailed indicates a failure to open or read a source file.
	// Shared with the encoding package so detection and transcoding failures match the same sentinel.
	ErrReadFailed = encoding.ErrReadFailed

	// ErrUnsupportedEncoding indicates a charset name that cannot be resolved.
	ErrUnsupportedEncoding = encoding.ErrUnsupportedEncoding

	// ErrDecode indicates bytes that are invalid under the declared source encoding.
	// Only the UTF family is decoded strictly; legacy decoders substitute U+FFFD.
	ErrDecode = encoding.ErrDecode

	// ErrWriteFailed indicates a failure to create or write the transcoded output.
	ErrWriteFailed = errors.New("failed to write output file")

	// ErrStatFailed indicates a failure to stat a discovered file.
	ErrStatFailed = errors.New("failed to get file stats")

	// ErrBinaryFile indicates that a file was detected as binary.
	// Binary files are normally skipped; the error appears only in Report.Errors.
	ErrBinaryFile = errors.New("binary file encountered")

	// ErrBackupFailed indicates that the ".backup" copy of a source file could not be made.
	// The source is left untouched.
	ErrBackupFailed = errors.New("failed to back up source file")

	// ErrReplaceFailed indicates that the transcoded temp file could not replace the source.
	ErrReplaceFailed = errors.New("failed to replace source file")

	// ErrConfigValidation indicates that the Options failed validation at the start of Convert.
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrCacheLoad indicates an unreadable cache index. Treated as a cold cache, not returned as fatal.
	ErrCacheLoad = cache.ErrCacheLoad

	// ErrCachePersist indicates the cache index could not be saved. The run itself still succeeds.
	ErrCachePersist = cache.ErrCachePersist

	// ErrGitOperation indicates a failure in the GitClient, such as a bad reference or a
	// directory that is not a repository. Fatal when git filtering was requested.
	ErrGitOperation = git.ErrGitOperation
)
