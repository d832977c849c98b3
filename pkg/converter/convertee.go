package converter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stackvity/to-utf/pkg/converter/encoding"
	"github.com/stackvity/to-utf/pkg/converter/filter"
	xencoding "golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// DefaultSourceEncoding is assumed for a file until detection says otherwise.
const DefaultSourceEncoding = encoding.Latin1

const byteOrderMark = '\uFEFF'

// Convertee describes one file to be recoded to UTF-8: where it is, what it is
// believed to be encoded in, and how it should be rewritten.
//
// All methods lock the instance, so a Convertee may be shared between
// goroutines, but operations on it never run in parallel.
type Convertee struct {
	mu             sync.Mutex
	path           string
	sourceEncoding string
	filter         filter.CharFilter
	stripBOM       bool
	display        string
	detector       encoding.CharsetDetector
	logger         *slog.Logger
}

// ConverteeOption customizes a Convertee at construction.
type ConverteeOption func(*Convertee)

// WithDetector replaces the default charset detector.
func WithDetector(d encoding.CharsetDetector) ConverteeOption {
	return func(c *Convertee) {
		if d != nil {
			c.detector = d
		}
	}
}

// WithLogger sets the handler used for debug output.
func WithLogger(h slog.Handler) ConverteeOption {
	return func(c *Convertee) {
		if h != nil {
			c.logger = slog.New(h).With(slog.String("component", "convertee"))
		}
	}
}

// NewConvertee creates a job for path with the default source encoding,
// no filter and BOM stripping enabled.
func NewConvertee(path string, opts ...ConverteeOption) (*Convertee, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: convertee path cannot be empty", ErrInvalidArgument)
	}
	c := &Convertee{
		path:           path,
		sourceEncoding: DefaultSourceEncoding,
		stripBOM:       true,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.detector == nil {
		c.detector = encoding.NewCharsetDetector()
	}
	return c, nil
}

// Path returns the file this job operates on.
func (c *Convertee) Path() string {
	return c.path // immutable after construction
}

func (c *Convertee) SourceEncoding() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceEncoding
}

// SetSourceEncoding records the charset to decode with. The name is resolved
// only when Recode runs.
func (c *Convertee) SetSourceEncoding(name string) {
	c.mu.Lock()
	c.sourceEncoding = name
	c.mu.Unlock()
}

func (c *Convertee) Filter() filter.CharFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SetFilter installs f; nil means characters are copied unchanged.
func (c *Convertee) SetFilter(f filter.CharFilter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

func (c *Convertee) StripBOM() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stripBOM
}

func (c *Convertee) SetStripBOM(strip bool) {
	c.mu.Lock()
	c.stripBOM = strip
	c.mu.Unlock()
}

// SetDisplayString overrides the path in String and Describe.
func (c *Convertee) SetDisplayString(s string) {
	c.mu.Lock()
	c.display = s
	c.mu.Unlock()
}

// String returns the display override, or the path.
func (c *Convertee) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.display != "" {
		return c.display
	}
	return c.path
}

// Describe renders the listing line for this file, e.g.
// "src/Foo.java (assuming ISO-8859-1, BOM detected)". The display string,
// when set, replaces the path.
func (c *Convertee) Describe(assumed, hasBOM bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sb strings.Builder
	if c.display != "" {
		sb.WriteString(c.display)
	} else {
		sb.WriteString(c.path)
	}
	if assumed {
		sb.WriteString(" (assuming ")
	} else {
		sb.WriteString(" (")
	}
	sb.WriteString(c.sourceEncoding)
	if hasBOM {
		sb.WriteString(", BOM detected")
	}
	sb.WriteString(")")
	return sb.String()
}

// --- Detection ---

// EncodingAccordingToBOM reports the encoding announced by the file's byte-order mark.
func (c *Convertee) EncodingAccordingToBOM() (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return encoding.SniffFileBOM(c.path)
}

// HasBOM reports whether the file starts with any known byte-order mark.
func (c *Convertee) HasBOM() (bool, error) {
	_, found, err := c.EncodingAccordingToBOM()
	return found, err
}

// DetectCharset runs the heuristic detector over the file. The result is
// only trustworthy when it is UTF-8.
func (c *Convertee) DetectCharset() (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return encoding.DetectFile(c.detector, c.path)
}

// LooksLikeUTF8 reports whether the detector recognizes the file as UTF-8.
func (c *Convertee) LooksLikeUTF8() (bool, error) {
	name, found, err := c.DetectCharset()
	if err != nil {
		return false, err
	}
	return found && name == encoding.UTF8, nil
}

// DetectAndSetSourceEncoding determines the source encoding and stores it.
//
// A UTF-16 or UTF-32 byte-order mark is taken at its word. Otherwise the
// file (with or without a UTF-8 mark) must pass the detector's UTF-8 check.
// If neither applies, or the file cannot be read, false is returned and the
// configured encoding is left as it was.
func (c *Convertee) DetectAndSetSourceEncoding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bom, found, err := encoding.SniffFileBOM(c.path)
	if err != nil {
		c.logger.Debug("BOM check failed, detection inconclusive", slog.String("path", c.path), slog.String("error", err.Error()))
		return false
	}
	if found && bom != encoding.UTF8 {
		c.sourceEncoding = bom
		return true
	}

	detected, ok, err := encoding.DetectFile(c.detector, c.path)
	if err != nil {
		c.logger.Debug("Charset detection failed, detection inconclusive", slog.String("path", c.path), slog.String("error", err.Error()))
		return false
	}
	if ok && detected == encoding.UTF8 {
		c.sourceEncoding = encoding.UTF8
		return true
	}
	c.logger.Debug("Detection inconclusive", slog.String("path", c.path), slog.String("guess", detected))
	return false
}

// --- Transcoding ---

// Recode writes the file, decoded with the source encoding and passed
// through the filter, to target as UTF-8. A directory target receives a file
// of the same base name. Writing onto the source itself is refused.
//
// On success the source encoding becomes UTF-8. On failure the target may
// hold partial output and must not be used.
func (c *Convertee) Recode(target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if target == "" {
		return fmt.Errorf("%w: empty target for %s", ErrInvalidTarget, c.path)
	}
	dest, err := c.resolveTarget(target)
	if err != nil {
		return err
	}
	decoder, canonical, err := encoding.NewDecoder(c.sourceEncoding)
	if err != nil {
		return fmt.Errorf("recode %s: %w", c.path, err)
	}

	src, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	transcodeErr := c.transcode(src, dst, decoder, canonical)
	closeErr := dst.Close()
	if transcodeErr != nil {
		return transcodeErr
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrWriteFailed, dest, closeErr)
	}

	c.logger.Debug("Recoded file", slog.String("path", c.path), slog.String("target", dest), slog.String("from", canonical))
	c.sourceEncoding = encoding.UTF8
	return nil
}

func (c *Convertee) resolveTarget(target string) (string, error) {
	dest := target
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		dest = filepath.Join(target, filepath.Base(c.path))
	}
	if samePath(c.path, dest) {
		return "", fmt.Errorf("%w: target %s is the source file", ErrInvalidTarget, dest)
	}
	return dest, nil
}

// samePath compares cleaned absolute paths, then file identity (links, case-folding filesystems).
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}

// readTracker remembers the last error of the underlying file so read
// failures can be told apart from decode failures surfacing through transform.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}

func (c *Convertee) transcode(src io.Reader, dst io.Writer, decoder transform.Transformer, canonical string) error {
	tracked := &readTracker{r: src}
	in := bufio.NewReader(transform.NewReader(tracked, decoder))
	out := bufio.NewWriter(dst)

	if c.filter != nil {
		c.filter.Reset()
	}

	first := true
	for {
		r, _, err := in.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if tracked.err != nil {
				return fmt.Errorf("%w: %s: %w", ErrReadFailed, c.path, err)
			}
			if errors.Is(err, xencoding.ErrInvalidUTF8) {
				return fmt.Errorf("%w: %s is not valid %s: %w", ErrDecode, c.path, canonical, err)
			}
			return fmt.Errorf("%w: %s as %s: %w", ErrDecode, c.path, canonical, err)
		}

		if first {
			first = false
			if r == byteOrderMark && c.stripBOM && encoding.IsUTF(canonical) {
				continue
			}
		}

		if c.filter != nil {
			_, err = out.WriteString(c.filter.Filter(r))
		} else {
			_, err = out.WriteRune(r)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
	}

	if c.filter != nil {
		if _, err := out.WriteString(c.filter.Filter(filter.EOF)); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}
