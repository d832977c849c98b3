package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// maxBOMLen is the length of the longest signature (UTF-32).
const maxBOMLen = 4

type bomSignature struct {
	name string
	seq  []byte
}

// bomTable is ordered longest-first: the UTF-16LE mark FF FE is a prefix
// of the UTF-32LE mark FF FE 00 00.
var bomTable = []bomSignature{
	{UTF32BE, []byte{0x00, 0x00, 0xFE, 0xFF}},
	{UTF32LE, []byte{0xFF, 0xFE, 0x00, 0x00}},
	{UTF16BE, []byte{0xFE, 0xFF}},
	{UTF16LE, []byte{0xFF, 0xFE}},
	{UTF8, []byte{0xEF, 0xBB, 0xBF}},
}

// SniffBOM reads up to four bytes from r and reports the encoding announced
// by a leading byte-order mark, if any. A short stream is not an error.
func SniffBOM(r io.Reader) (string, bool, error) {
	buf := make([]byte, maxBOMLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", false, fmt.Errorf("%w: reading BOM: %w", ErrReadFailed, err)
	}
	name, ok := MatchBOM(buf[:n])
	return name, ok, nil
}

// MatchBOM checks prefix against the signature table.
func MatchBOM(prefix []byte) (string, bool) {
	for _, sig := range bomTable {
		if len(prefix) >= len(sig.seq) && bytes.Equal(prefix[:len(sig.seq)], sig.seq) {
			return sig.name, true
		}
	}
	return "", false
}

// SniffFileBOM opens path and runs SniffBOM on its first bytes.
func SniffFileBOM(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	defer f.Close()
	return SniffBOM(f)
}

// BOMBytes returns the byte-order mark for a UTF encoding name.
func BOMBytes(name string) ([]byte, bool) {
	canonical, err := Canonical(name)
	if err != nil {
		return nil, false
	}
	for _, sig := range bomTable {
		if sig.name == canonical {
			out := make([]byte, len(sig.seq))
			copy(out, sig.seq)
			return out, true
		}
	}
	return nil, false
}
