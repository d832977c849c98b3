package filter

import (
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// repairChars are the characters whose double-encoded form is repaired.
var repairChars = []rune{'Ä', 'ä', 'Ö', 'ö', 'Ü', 'ü', 'ß', '€', 'é', 'á', 'à', 'è'}

type repairEntry struct {
	correct string
	garbled string
}

// repairTable maps each character's UTF-8 bytes, misread as windows-1252,
// back to the character. None of the garbled forms contains another, so
// applying the entries one after the other is order-independent.
var repairTable = sync.OnceValue(func() []repairEntry {
	dec := charmap.Windows1252.NewDecoder()
	table := make([]repairEntry, 0, len(repairChars))
	for _, c := range repairChars {
		raw := make([]byte, utf8.RuneLen(c))
		utf8.EncodeRune(raw, c)
		garbled, err := dec.Bytes(raw)
		if err != nil {
			panic("filter: building repair table: " + err.Error())
		}
		table = append(table, repairEntry{correct: string(c), garbled: string(garbled)})
	}
	return table
})

// RepairString applies the repair table to s.
func RepairString(s string) string {
	for _, e := range repairTable() {
		s = strings.ReplaceAll(s, e.garbled, e.correct)
	}
	return s
}

// BrokenGermanUTF repairs text that went through one bad round trip: UTF-8
// bytes decoded as windows-1252 and saved again as UTF-8, which turns "ü"
// into "Ã¼". Only the characters in the repair table are restored.
//
// The input stream must already be UTF-8; on anything else the substitutions
// are meaningless. The filter buffers one line at a time and emits it when it
// sees '\n', '\r' or EOF.
type BrokenGermanUTF struct {
	mu   sync.Mutex
	line []rune
}

// NewBrokenGermanUTF returns an empty repair filter.
func NewBrokenGermanUTF() *BrokenGermanUTF {
	return &BrokenGermanUTF{line: make([]rune, 0, 128)}
}

// Filter implements CharFilter.
func (f *BrokenGermanUTF) Filter(r rune) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r {
	case EOF:
		return f.flush()
	case '\n', '\r':
		f.line = append(f.line, r)
		return f.flush()
	default:
		f.line = append(f.line, r)
		return ""
	}
}

// Reset implements CharFilter.
func (f *BrokenGermanUTF) Reset() {
	f.mu.Lock()
	f.line = f.line[:0]
	f.mu.Unlock()
}

// flush repairs and empties the line buffer. Caller holds mu.
func (f *BrokenGermanUTF) flush() string {
	if len(f.line) == 0 {
		return ""
	}
	out := RepairString(string(f.line))
	f.line = f.line[:0]
	return out
}
