package encoding

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// Canonical names used throughout the converter.
const (
	UTF8        = "UTF-8"
	UTF16BE     = "UTF-16BE"
	UTF16LE     = "UTF-16LE"
	UTF16       = "UTF-16"
	UTF32BE     = "UTF-32BE"
	UTF32LE     = "UTF-32LE"
	UTF32       = "UTF-32"
	Latin1      = "ISO-8859-1"
	Windows1252 = "windows-1252"
)

var (
	// ErrUnsupportedEncoding is returned when a charset name cannot be resolved.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")

	// ErrDecode indicates a byte sequence that is invalid under the declared source encoding.
	ErrDecode = errors.New("invalid byte sequence for encoding")

	// ErrReadFailed indicates a failure to open or read a source file.
	ErrReadFailed = errors.New("failed to read file")
)

type namedEncoding struct {
	name string
	enc  encoding.Encoding
}

// The UTF family is resolved explicitly. Fixed-endian variants ignore the BOM
// so a leading U+FEFF survives decoding and can be stripped (or kept) by the caller.
var unicodeEncodings = map[string]namedEncoding{
	"utf-8":    {UTF8, unicode.UTF8},
	"utf8":     {UTF8, unicode.UTF8},
	"utf-16be": {UTF16BE, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
	"utf-16le": {UTF16LE, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	"utf-16":   {UTF16, unicode.UTF16(unicode.BigEndian, unicode.UseBOM)},
	"utf-32be": {UTF32BE, utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)},
	"utf-32le": {UTF32LE, utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)},
	"utf-32":   {UTF32, utf32.UTF32(utf32.BigEndian, utf32.UseBOM)},
}

// Lookup resolves a charset name to an encoding and its canonical name.
// The UTF family is checked first, then the IANA registry, then the WHATWG
// alias table used by browsers (which accepts names such as "latin1" or "sjis").
func Lookup(name string) (encoding.Encoding, string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, "", fmt.Errorf("%w: empty charset name", ErrUnsupportedEncoding)
	}
	if ne, ok := unicodeEncodings[key]; ok {
		return ne.enc, ne.name, nil
	}

	// ianaindex returns (nil, nil) for registered names without an implementation.
	if enc, err := ianaindex.IANA.Encoding(key); err == nil && enc != nil {
		canonical, ok := canonicalName(enc)
		if !ok {
			canonical = name
		}
		return enc, canonical, nil
	}

	if enc, webName := charset.Lookup(key); enc != nil {
		canonical, ok := canonicalName(enc)
		if !ok {
			canonical = webName
		}
		return enc, canonical, nil
	}

	return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
}

// canonicalName prefers the MIME name ("ISO-8859-1") over the IANA
// registry name ("ISO_8859-1:1987").
func canonicalName(enc encoding.Encoding) (string, bool) {
	for _, idx := range []*ianaindex.Index{ianaindex.MIME, ianaindex.IANA} {
		if name, err := idx.Name(enc); err == nil && name != "" {
			return name, true
		}
	}
	return "", false
}

// Canonical returns the canonical form of name, or an error if it is unknown.
func Canonical(name string) (string, error) {
	_, canonical, err := Lookup(name)
	return canonical, err
}

// IsUTF reports whether the (canonical) name belongs to the UTF family.
func IsUTF(name string) bool {
	return strings.HasPrefix(strings.ToUpper(name), "UTF-")
}

// IsUTF8 reports whether name denotes UTF-8.
func IsUTF8(name string) bool {
	canonical, err := Canonical(name)
	return err == nil && canonical == UTF8
}

// NewDecoder returns a transformer decoding from the named charset to UTF-8.
// UTF sources are validated instead of repaired: malformed UTF-8 surfaces as
// encoding.ErrInvalidUTF8, malformed UTF-16 and UTF-32 as ErrDecode.
// Legacy charsets keep their decoders' U+FFFD substitution.
func NewDecoder(name string) (transform.Transformer, string, error) {
	enc, canonical, err := Lookup(name)
	if err != nil {
		return nil, "", err
	}
	if canonical == UTF8 {
		return encoding.UTF8Validator, canonical, nil
	}
	if v := strictValidator(canonical); v != nil {
		return transform.Chain(v, enc.NewDecoder()), canonical, nil
	}
	return enc.NewDecoder(), canonical, nil
}

// Available lists the canonical names of every encoding the registry can decode.
func Available() []string {
	var all []encoding.Encoding
	all = append(all, charmap.All...)
	all = append(all, unicode.All...)
	all = append(all, utf32.All...)
	all = append(all, japanese.All...)
	all = append(all, korean.All...)
	all = append(all, simplifiedchinese.All...)
	all = append(all, traditionalchinese.All...)

	seen := make(map[string]struct{}, len(all))
	names := make([]string, 0, len(all))
	for _, enc := range all {
		name, ok := canonicalName(enc)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}

// SystemDefault returns the charset named by the POSIX locale environment
// (LC_ALL, then LC_CTYPE, then LANG). The boolean is false when the locale
// names no resolvable codeset, in which case ISO-8859-1 is returned.
func SystemDefault() (string, bool) {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		codeset := localeCodeset(value)
		if codeset == "" {
			// C/POSIX or a locale without an explicit codeset.
			break
		}
		if canonical, err := Canonical(codeset); err == nil {
			return canonical, true
		}
		break
	}
	return Latin1, false
}

// localeCodeset extracts "ISO-8859-15" from "de_DE.ISO-8859-15@euro".
func localeCodeset(locale string) string {
	dot := strings.IndexByte(locale, '.')
	if dot < 0 {
		return ""
	}
	codeset := locale[dot+1:]
	if at := strings.IndexByte(codeset, '@'); at >= 0 {
		codeset = codeset[:at]
	}
	return codeset
}
