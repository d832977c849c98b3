package encoding_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stackvity/to-utf/internal/testutil"
	"github.com/stackvity/to-utf/pkg/converter/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffBOM(t *testing.T) {
	testCases := []struct {
		name      string
		input     []byte
		wantName  string
		wantFound bool
	}{
		{"UTF-32BE", []byte{0x00, 0x00, 0xFE, 0xFF, 0x00, 0x00, 0x00, 'A'}, encoding.UTF32BE, true},
		{"UTF-32LE", []byte{0xFF, 0xFE, 0x00, 0x00, 'A', 0x00, 0x00, 0x00}, encoding.UTF32LE, true},
		{"UTF-16BE", []byte{0xFE, 0xFF, 0x00, 'A'}, encoding.UTF16BE, true},
		{"UTF-16LE", []byte{0xFF, 0xFE, 'A', 0x00}, encoding.UTF16LE, true},
		{"UTF-8", []byte{0xEF, 0xBB, 0xBF, 'A'}, encoding.UTF8, true},
		{"UTF-8 BOM only", []byte{0xEF, 0xBB, 0xBF}, encoding.UTF8, true},
		{"UTF-16LE BOM only", []byte{0xFF, 0xFE}, encoding.UTF16LE, true},
		{"plain ASCII", []byte("package main"), "", false},
		{"truncated UTF-8 BOM", []byte{0xEF, 0xBB}, "", false},
		{"empty", []byte{}, "", false},
		{"Latin-1 umlaut", []byte{0xFC, 'b', 'e', 'r'}, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, found, err := encoding.SniffBOM(bytes.NewReader(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.wantFound, found)
			assert.Equal(t, tc.wantName, name)
		})
	}
}

func TestSniffBOM_UTF32LEBeatsUTF16LE(t *testing.T) {
	// FF FE 00 00 is also a valid UTF-16LE BOM followed by U+0000.
	name, found, err := encoding.SniffBOM(bytes.NewReader([]byte{0xFF, 0xFE, 0x00, 0x00}))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, encoding.UTF32LE, name)

	name, found, err = encoding.SniffBOM(bytes.NewReader([]byte{0xFF, 0xFE, 0x00, 0x01}))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, encoding.UTF16LE, name)
}

func TestSniffFileBOM(t *testing.T) {
	dir := t.TempDir()
	withBOM := filepath.Join(dir, "bom.txt")
	without := filepath.Join(dir, "plain.txt")
	testutil.CreateDummyBytes(t, withBOM, []byte{0xFE, 0xFF, 0x00, 'h', 0x00, 'i'})
	testutil.CreateDummyFile(t, without, "hi")

	name, found, err := encoding.SniffFileBOM(withBOM)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, encoding.UTF16BE, name)

	_, found, err = encoding.SniffFileBOM(without)
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = encoding.SniffFileBOM(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, encoding.ErrReadFailed))
}

func TestBOMBytes(t *testing.T) {
	b, ok := encoding.BOMBytes("utf-8")
	require.True(t, ok)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, b)

	b, ok = encoding.BOMBytes("UTF-32LE")
	require.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xFE, 0x00, 0x00}, b)

	_, ok = encoding.BOMBytes("ISO-8859-1")
	assert.False(t, ok)
}
