// Package encoding provides shared text encoding and escaping utilities for
// the RTF and Markdown generators.
package encoding

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Placeholder replaces bytes that cannot be decoded.
const Placeholder = '\uFFFD'

// DefaultCodePage is the ANSI code page assumed when a document declares none.
const DefaultCodePage = 1252

var codePages = map[int]*charmap.Charmap{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	852:   charmap.CodePage852,
	866:   charmap.CodePage866,
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	10000: charmap.Macintosh,
}

func codePage(cp int) *charmap.Charmap {
	if cm, ok := codePages[cp]; ok {
		return cm
	}
	return charmap.Windows1252
}

// SupportedCodePage reports whether cp has a known character map.
func SupportedCodePage(cp int) bool {
	_, ok := codePages[cp]
	return ok
}

// DecodeANSI decodes a single code page byte to a rune.
func DecodeANSI(b byte, cp int) rune {
	if b < utf8.RuneSelf {
		return rune(b)
	}
	return codePage(cp).DecodeByte(b)
}

// EncodeANSI encodes r in the code page, reporting whether it is representable.
func EncodeANSI(r rune, cp int) (byte, bool) {
	return codePage(cp).EncodeRune(r)
}

// RTFOptions controls text escaping in RTF output.
type RTFOptions struct {
	// Legacy writes non-ASCII characters as \'hh code page bytes when the
	// code page can represent them, falling back to \u escapes otherwise.
	Legacy   bool
	CodePage int
}

// EscapeRTF escapes text for an RTF body. Newlines become \line and tabs
// become \tab. Non-ASCII runes become \uN? escapes (with one fallback
// character) or \'hh bytes in legacy mode.
func EscapeRTF(s string, opts RTFOptions) string {
	cp := opts.CodePage
	if cp == 0 {
		cp = DefaultCodePage
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for _, r := range s {
		switch {
		case r == '\\' || r == '{' || r == '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString("\\line ")
		case r == '\t':
			b.WriteString("\\tab ")
		case r == '\r':
		case r < 0x20:
			// control characters are dropped
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		default:
			if opts.Legacy {
				if c, ok := EncodeANSI(r, cp); ok {
					b.WriteString("\\'")
					b.WriteString(hexByte(c))
					continue
				}
			}
			writeUnicodeEscape(&b, r)
		}
	}
	return b.String()
}

func writeUnicodeEscape(b *strings.Builder, r rune) {
	if r > 0xFFFF {
		r -= 0x10000
		writeUnit(b, 0xD800+(r>>10))
		writeUnit(b, 0xDC00+(r&0x3FF))
		return
	}
	writeUnit(b, r)
}

// writeUnit writes one UTF-16 unit as a signed 16-bit \u parameter.
func writeUnit(b *strings.Builder, u rune) {
	n := int(u)
	if n > 32767 {
		n -= 65536
	}
	b.WriteString("\\u")
	b.WriteString(strconv.Itoa(n))
	b.WriteByte('?')
}

func hexByte(c byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[c>>4], digits[c&0x0f]})
}

// markdownSpecial are the characters the Markdown parser treats as inline markup.
const markdownSpecial = "\\*_`~"

// EscapeMarkdown escapes inline markup characters so text parses back literally.
func EscapeMarkdown(s string) string {
	if !strings.ContainsAny(s, markdownSpecial+"![") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case strings.IndexByte(markdownSpecial, c) >= 0:
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '!' && i+1 < len(s) && s[i+1] == '[':
			b.WriteString("\\!")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// EscapeMarkdownCell escapes text for a pipe table cell.
func EscapeMarkdownCell(s string) string {
	s = EscapeMarkdown(s)
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// EscapeLineStart escapes a leading character that would otherwise start a
// block construct (heading, quote, list item, rule or table).
func EscapeLineStart(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '#', '>', '-', '+', '|', '=':
		return "\\" + s
	}
	// "1. text" would become an ordered list item.
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return s[:i] + "\\" + s[i:]
	}
	return s
}
