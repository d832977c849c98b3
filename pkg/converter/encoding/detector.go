package encoding

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
)

const (
	// DetectChunkSize is the read size used while streaming a file through the detector.
	DetectChunkSize = 2048
	// DefaultSampleLimit caps the bytes handed to the probabilistic matcher.
	DefaultSampleLimit = 64 * 1024
)

// CharsetDetector guesses the charset of a byte stream.
//
// Results are best-effort. Only a UTF-8 verdict is reliable: the detector
// verifies every multi-byte sequence in the stream before reporting it.
type CharsetDetector interface {
	Detect(r io.Reader) (charset string, found bool, err error)
}

// DetectorOption configures the default detector.
type DetectorOption func(*chardetDetector)

// WithSampleLimit sets how many bytes (after the first non-ASCII byte) are
// collected for the probabilistic matcher. Values <= 0 keep the default.
func WithSampleLimit(n int) DetectorOption {
	return func(d *chardetDetector) {
		if n > 0 {
			d.sampleLimit = n
		}
	}
}

// WithChunkSize overrides the streaming read size.
func WithChunkSize(n int) DetectorOption {
	return func(d *chardetDetector) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

type chardetDetector struct {
	chunkSize   int
	sampleLimit int
}

// NewCharsetDetector returns the default detector: a streaming UTF-8 verifier
// backed by github.com/saintfish/chardet for everything else.
func NewCharsetDetector(opts ...DetectorOption) CharsetDetector {
	d := &chardetDetector{chunkSize: DetectChunkSize, sampleLimit: DefaultSampleLimit}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect implements CharsetDetector.
func (d *chardetDetector) Detect(r io.Reader) (string, bool, error) {
	buf := make([]byte, d.chunkSize)
	st := &detectState{ascii: true, limit: d.sampleLimit}
	for {
		n, err := r.Read(buf)
		if n > 0 && st.feed(buf[:n]) {
			break // committed, no need to read further
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", false, fmt.Errorf("%w: %w", ErrReadFailed, err)
		}
	}
	return st.conclude()
}

// DetectFile opens path and runs d over its contents.
func DetectFile(d CharsetDetector, path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	defer f.Close()
	return d.Detect(f)
}

// detectState is the per-stream analyzer state.
type detectState struct {
	ascii    bool
	verifier utf8Verifier
	sample   []byte
	limit    int
}

// feed consumes one chunk and reports whether a verdict is already certain:
// UTF-8 has been ruled out and the matcher sample is full.
func (s *detectState) feed(p []byte) bool {
	if s.ascii {
		idx := firstNonASCII(p)
		if idx < 0 {
			return false
		}
		s.ascii = false
		// Bytes before idx are ASCII, so p[idx:] starts on a character boundary.
		s.verifier.feed(p[idx:])
	} else {
		s.verifier.feed(p)
	}

	if room := s.limit - len(s.sample); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		s.sample = append(s.sample, p...)
	}
	return s.verifier.invalid && len(s.sample) >= s.limit
}

func (s *detectState) conclude() (string, bool, error) {
	// Pure ASCII is valid UTF-8, which is also the matcher's first candidate.
	if s.ascii {
		return UTF8, true, nil
	}
	s.verifier.finish()
	if !s.verifier.invalid {
		return UTF8, true, nil
	}

	results, err := chardet.NewTextDetector().DetectAll(s.sample)
	if err != nil {
		// chardet only fails with NotDetectedError.
		return "", false, nil
	}
	for _, res := range results {
		if strings.EqualFold(res.Charset, UTF8) {
			continue
		}
		name := res.Charset
		if canonical, lookupErr := Canonical(name); lookupErr == nil {
			name = canonical
		}
		return name, true, nil
	}
	return "", false, nil
}

func firstNonASCII(p []byte) int {
	for i, c := range p {
		if c >= utf8.RuneSelf {
			return i
		}
	}
	return -1
}

// utf8Verifier validates UTF-8 across arbitrary chunk boundaries.
type utf8Verifier struct {
	pending []byte // truncated sequence from the end of the previous chunk
	invalid bool
}

func (v *utf8Verifier) feed(p []byte) {
	if v.invalid {
		return
	}
	if len(v.pending) > 0 {
		joined := make([]byte, 0, len(v.pending)+len(p))
		joined = append(joined, v.pending...)
		p = append(joined, p...)
		v.pending = v.pending[:0]
	}
	for i := 0; i < len(p); {
		if p[i] < utf8.RuneSelf {
			i++
			continue
		}
		if !utf8.FullRune(p[i:]) {
			v.pending = append(v.pending, p[i:]...)
			return
		}
		r, size := utf8.DecodeRune(p[i:])
		if r == utf8.RuneError && size == 1 {
			v.invalid = true
			return
		}
		i += size
	}
}

// finish marks a sequence still truncated at end of stream as invalid.
func (v *utf8Verifier) finish() {
	if len(v.pending) > 0 {
		v.invalid = true
	}
}
