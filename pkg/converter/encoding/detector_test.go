package encoding_test

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stackvity/to-utf/internal/testutil"
	"github.com/stackvity/to-utf/pkg/converter/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReader records how many bytes the detector pulled.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func detect(t *testing.T, d encoding.CharsetDetector, content []byte) (string, bool) {
	t.Helper()
	name, found, err := d.Detect(bytes.NewReader(content))
	require.NoError(t, err)
	return name, found
}

func TestDetect_ASCIIAndEmptyAreUTF8(t *testing.T) {
	d := encoding.NewCharsetDetector()

	name, found := detect(t, d, []byte("public class Foo {}\n"))
	assert.True(t, found)
	assert.Equal(t, encoding.UTF8, name)

	name, found = detect(t, d, nil)
	assert.True(t, found)
	assert.Equal(t, encoding.UTF8, name)
}

func TestDetect_ValidUTF8(t *testing.T) {
	d := encoding.NewCharsetDetector()
	text := "// Grüße aus München, schöne Äpfel für 5 €\n"
	name, found := detect(t, d, []byte(strings.Repeat(text, 50)))
	assert.True(t, found)
	assert.Equal(t, encoding.UTF8, name)
}

func TestDetect_UTF8SplitAcrossChunks(t *testing.T) {
	// With 3-byte chunks, two-byte and three-byte sequences straddle reads.
	d := encoding.NewCharsetDetector(encoding.WithChunkSize(3))
	name, found := detect(t, d, []byte("aäöü€ßx€"))
	assert.True(t, found)
	assert.Equal(t, encoding.UTF8, name)
}

func TestDetect_Latin1IsNotUTF8(t *testing.T) {
	d := encoding.NewCharsetDetector()
	latin1 := []byte(strings.Repeat("Gr\xfc\xdfe aus M\xfcnchen, sch\xf6ne \xc4pfel f\xfcr alle.\n", 40))
	name, _ := detect(t, d, latin1)
	assert.NotEqual(t, encoding.UTF8, name)
}

func TestDetect_TruncatedSequenceAtEOF(t *testing.T) {
	d := encoding.NewCharsetDetector()
	name, _ := detect(t, d, []byte("abc\xc3"))
	assert.NotEqual(t, encoding.UTF8, name)
}

func TestDetect_CommitsEarlyOnceUTF8RuledOut(t *testing.T) {
	d := encoding.NewCharsetDetector(encoding.WithChunkSize(8), encoding.WithSampleLimit(16))
	content := []byte(strings.Repeat("Gr\xfcn ", 200))
	cr := &countingReader{r: bytes.NewReader(content)}

	name, _, err := d.Detect(cr)
	require.NoError(t, err)
	assert.NotEqual(t, encoding.UTF8, name)
	assert.Less(t, cr.n, len(content), "detector should stop reading after committing")
}

func TestDetect_ValidUTF8ReadsWholeStream(t *testing.T) {
	// A late invalid byte must still be seen, however large the sample limit.
	d := encoding.NewCharsetDetector(encoding.WithSampleLimit(16))
	content := []byte(strings.Repeat("ä", 1000) + "\xff")
	name, _ := detect(t, d, content)
	assert.NotEqual(t, encoding.UTF8, name)
}

func TestDetect_ReadError(t *testing.T) {
	d := encoding.NewCharsetDetector()
	_, _, err := d.Detect(iotest.ErrReader(errors.New("disk on fire")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, encoding.ErrReadFailed))
}

func TestDetectFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Foo.java")
	testutil.CreateDummyFile(t, path, "class Föö {}\n")

	name, found, err := encoding.DetectFile(encoding.NewCharsetDetector(), path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, encoding.UTF8, name)

	_, _, err = encoding.DetectFile(encoding.NewCharsetDetector(), filepath.Join(dir, "nope"))
	assert.True(t, errors.Is(err, encoding.ErrReadFailed))
}
