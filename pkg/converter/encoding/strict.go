package encoding

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/transform"
)

// The x/text UTF-16 and UTF-32 decoders substitute U+FFFD for malformed
// input. The validators below run ahead of them and stop the stream instead.

var (
	errTruncatedUnit     = fmt.Errorf("%w: truncated code unit at end of input", ErrDecode)
	errUnpairedSurrogate = fmt.Errorf("%w: unpaired UTF-16 surrogate", ErrDecode)
	errInvalidCodePoint  = fmt.Errorf("%w: code point outside the Unicode range", ErrDecode)
)

// utf16Validator passes UTF-16 bytes through unchanged, failing on an odd
// trailing byte or a surrogate without its partner. With sniff set, a
// leading little-endian BOM switches the byte order, as unicode.UseBOM does.
type utf16Validator struct {
	defaultOrder binary.ByteOrder
	sniff        bool

	order       binary.ByteOrder
	sniffed     bool
	highPending bool
}

func newUTF16Validator(order binary.ByteOrder, sniff bool) *utf16Validator {
	v := &utf16Validator{defaultOrder: order, sniff: sniff}
	v.Reset()
	return v
}

func (v *utf16Validator) Reset() {
	v.order = v.defaultOrder
	v.sniffed = !v.sniff
	v.highPending = false
}

func (v *utf16Validator) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	if !v.sniffed {
		if len(src) < 2 && !atEOF {
			return 0, 0, transform.ErrShortSrc
		}
		if len(src) >= 2 && src[0] == 0xFF && src[1] == 0xFE {
			v.order = binary.LittleEndian
		}
		v.sniffed = true
	}

	n := len(src) &^ 1
	if len(dst) < n {
		n = len(dst) &^ 1
		err = transform.ErrShortDst
	}
	for i := 0; i < n; i += 2 {
		u := v.order.Uint16(src[i:])
		isHigh := u >= 0xD800 && u < 0xDC00
		isLow := u >= 0xDC00 && u < 0xE000
		// A pending high surrogate must be followed by a low one, and a low
		// one is only valid after a high one.
		if v.highPending != isLow {
			copy(dst, src[:i])
			return i, i, errUnpairedSurrogate
		}
		v.highPending = isHigh
	}
	copy(dst, src[:n])
	if err != nil {
		return n, n, err
	}
	if n < len(src) {
		if atEOF {
			return n, n, errTruncatedUnit
		}
		return n, n, transform.ErrShortSrc
	}
	if atEOF && v.highPending {
		return n, n, errUnpairedSurrogate
	}
	return n, n, nil
}

// utf32Validator passes UTF-32 bytes through unchanged, failing on a partial
// trailing unit, a surrogate code point or a value above U+10FFFF.
type utf32Validator struct {
	defaultOrder binary.ByteOrder
	sniff        bool

	order   binary.ByteOrder
	sniffed bool
}

func newUTF32Validator(order binary.ByteOrder, sniff bool) *utf32Validator {
	v := &utf32Validator{defaultOrder: order, sniff: sniff}
	v.Reset()
	return v
}

func (v *utf32Validator) Reset() {
	v.order = v.defaultOrder
	v.sniffed = !v.sniff
}

func (v *utf32Validator) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	if !v.sniffed {
		if len(src) < 4 && !atEOF {
			return 0, 0, transform.ErrShortSrc
		}
		if len(src) >= 4 && src[0] == 0xFF && src[1] == 0xFE && src[2] == 0 && src[3] == 0 {
			v.order = binary.LittleEndian
		}
		v.sniffed = true
	}

	n := len(src) &^ 3
	if len(dst) < n {
		n = len(dst) &^ 3
		err = transform.ErrShortDst
	}
	for i := 0; i < n; i += 4 {
		cp := v.order.Uint32(src[i:])
		if cp > 0x10FFFF || (cp >= 0xD800 && cp < 0xE000) {
			copy(dst, src[:i])
			return i, i, errInvalidCodePoint
		}
	}
	copy(dst, src[:n])
	if err != nil {
		return n, n, err
	}
	if n < len(src) {
		if atEOF {
			return n, n, errTruncatedUnit
		}
		return n, n, transform.ErrShortSrc
	}
	return n, n, nil
}

// strictValidator returns the validator for a UTF-16 or UTF-32 canonical
// name, or nil for every other encoding.
func strictValidator(canonical string) transform.Transformer {
	switch canonical {
	case UTF16BE:
		return newUTF16Validator(binary.BigEndian, false)
	case UTF16LE:
		return newUTF16Validator(binary.LittleEndian, false)
	case UTF16:
		return newUTF16Validator(binary.BigEndian, true)
	case UTF32BE:
		return newUTF32Validator(binary.BigEndian, false)
	case UTF32LE:
		return newUTF32Validator(binary.LittleEndian, false)
	case UTF32:
		return newUTF32Validator(binary.BigEndian, true)
	}
	return nil
}
