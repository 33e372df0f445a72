package rtf

import "fmt"

// TokenKind identifies a lexical RTF token.
type TokenKind int

// Token kinds.
const (
	TokenGroupStart TokenKind = iota
	TokenGroupEnd
	TokenControlWord
	TokenControlSymbol
	TokenText
	TokenHex
	TokenUnicode
)

var tokenKindNames = [...]string{
	TokenGroupStart:    "group_start",
	TokenGroupEnd:      "group_end",
	TokenControlWord:   "control_word",
	TokenControlSymbol: "control_symbol",
	TokenText:          "text",
	TokenHex:           "hex",
	TokenUnicode:       "unicode",
}

func (k TokenKind) String() string {
	if k >= 0 && int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is one lexical unit of an RTF stream.
type Token struct {
	Kind TokenKind
	// Offset is the byte offset of the token in the input.
	Offset int
	// Word is the control word name or the control symbol character.
	Word     string
	Param    int
	HasParam bool
	// Text holds raw text bytes. Escaped braces and backslashes appear here
	// unescaped.
	Text string
	// Byte is the value of a \'hh escape.
	Byte byte
	// Unit is the UTF-16 code unit of a \uN escape.
	Unit uint16
}

func (t Token) String() string {
	switch t.Kind {
	case TokenGroupStart:
		return "{"
	case TokenGroupEnd:
		return "}"
	case TokenControlWord:
		if t.HasParam {
			return fmt.Sprintf(`\%s%d`, t.Word, t.Param)
		}
		return `\` + t.Word
	case TokenControlSymbol:
		return `\` + t.Word
	case TokenText:
		return fmt.Sprintf("%q", t.Text)
	case TokenHex:
		return fmt.Sprintf(`\'%02x`, t.Byte)
	case TokenUnicode:
		return fmt.Sprintf(`\u%d`, int16(t.Unit))
	}
	return t.Kind.String()
}
