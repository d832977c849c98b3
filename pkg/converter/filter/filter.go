// Package filter implements the per-character transforms applied while a
// file is recoded.
//
// A CharFilter receives every decoded character followed by a single EOF.
// Output may lag behind input (a filter can buffer a line), but every
// character fed in appears in some output at the latest on EOF.
// Filters are not safe for concurrent streams; call Reset before reuse.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// EOF marks the end of the character stream.
const EOF rune = -1

// ErrUnknownFilter is returned by New for an unrecognized Kind.
var ErrUnknownFilter = errors.New("unknown filter")

// CharFilter transforms a stream of characters.
type CharFilter interface {
	// Filter consumes r (or EOF) and returns the text ready for output.
	Filter(r rune) string
	// Reset discards any buffered state.
	Reset()
}

// Kind names a filter in configuration.
type Kind string

const (
	KindNone         Kind = "none"
	KindRepairGerman Kind = "repair-german"
)

// Kinds lists the accepted Kind values.
func Kinds() []Kind {
	return []Kind{KindNone, KindRepairGerman}
}

// New builds the filter for kind. KindNone (or "") yields Identity.
func New(kind Kind) (CharFilter, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case "", KindNone:
		return Identity{}, nil
	case KindRepairGerman:
		return NewBrokenGermanUTF(), nil
	default:
		return nil, fmt.Errorf("%w: %q (allowed: %v)", ErrUnknownFilter, kind, Kinds())
	}
}

// Identity passes characters through unchanged.
type Identity struct{}

// Filter implements CharFilter.
func (Identity) Filter(r rune) string {
	if r == EOF {
		return ""
	}
	return string(r)
}

// Reset implements CharFilter.
func (Identity) Reset() {}
