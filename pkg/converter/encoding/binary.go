package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const (
	// sniffLen is the number of bytes used by http.DetectContentType.
	sniffLen = 512
	// BinaryCheckLen is how much of a file IsBinary looks at.
	BinaryCheckLen = 1024
	// Null byte ratio above which content is considered binary.
	nullThreshold = 0.15
)

// Text-like MIME types that http.DetectContentType may report for source files.
var knownTextMIMETypes = map[string]bool{
	"application/json":         true,
	"application/xml":          true,
	"application/javascript":   true,
	"application/ecmascript":   true,
	"application/postscript":   true,
	"application/rtf":          true,
	"application/octet-stream": true, // undecided, the null check decides
	"image/svg+xml":            true,
}

func isMIMETextBased(contentType string) bool {
	mimeType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	if knownTextMIMETypes[mimeType] {
		return true
	}
	return strings.HasSuffix(mimeType, "+xml") || strings.HasSuffix(mimeType, "+json")
}

// IsBinary reports whether content (typically the first BinaryCheckLen bytes
// of a file) looks like binary data. Content announced by a byte-order mark is
// always text, since UTF-16 and UTF-32 legitimately contain many NUL bytes.
func IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	if _, ok := MatchBOM(content); ok {
		return false
	}

	sniff := content
	if len(sniff) > sniffLen {
		sniff = sniff[:sniffLen]
	}
	if !isMIMETextBased(http.DetectContentType(sniff)) {
		return true
	}

	check := content
	if len(check) > BinaryCheckLen {
		check = check[:BinaryCheckLen]
	}
	nulls := bytes.Count(check, []byte{0x00})
	return float64(nulls)/float64(len(check)) > nullThreshold
}

// IsBinaryFile reads the head of path and applies IsBinary.
func IsBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	defer f.Close()

	head := make([]byte, BinaryCheckLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return IsBinary(head[:n]), nil
}
