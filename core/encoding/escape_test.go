package encoding

import "testing"

func TestEscapeRTF(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  RTFOptions
		want  string
	}{
		{"empty", "", RTFOptions{}, ""},
		{"plain text", "Hello World", RTFOptions{}, "Hello World"},
		{"specials", `a\b{c}`, RTFOptions{}, `a\\b\{c\}`},
		{"newline", "a\nb", RTFOptions{}, `a\line b`},
		{"tab", "a\tb", RTFOptions{}, `a\tab b`},
		{"carriage return dropped", "a\r\nb", RTFOptions{}, `a\line b`},
		{"control dropped", "a\x01b", RTFOptions{}, "ab"},
		{"latin unicode", "é", RTFOptions{}, `\u233?`},
		{"high bmp", "\uFFFD", RTFOptions{}, `\u-3?`},
		{"astral", "😀", RTFOptions{}, `\u-10179?\u-8704?`},
		{"legacy cp1252", "é", RTFOptions{Legacy: true}, `\'e9`},
		{"legacy euro", "€", RTFOptions{Legacy: true, CodePage: 1252}, `\'80`},
		{"legacy fallback", "日", RTFOptions{Legacy: true}, `\u26085?`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeRTF(tt.input, tt.opts)
			if got != tt.want {
				t.Errorf("EscapeRTF(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeANSI(t *testing.T) {
	tests := []struct {
		b    byte
		cp   int
		want rune
	}{
		{'A', 1252, 'A'},
		{0xe9, 1252, 'é'},
		{0x80, 1252, '€'},
		{0xe9, 1251, 'й'},
		{0xe9, 9999, 'é'}, // unknown code page falls back to 1252
	}
	for _, tt := range tests {
		if got := DecodeANSI(tt.b, tt.cp); got != tt.want {
			t.Errorf("DecodeANSI(%#x, %d) = %q, want %q", tt.b, tt.cp, got, tt.want)
		}
	}
}

func TestEncodeANSI(t *testing.T) {
	if c, ok := EncodeANSI('é', 1252); !ok || c != 0xe9 {
		t.Errorf("EncodeANSI('é') = %#x, %v", c, ok)
	}
	if _, ok := EncodeANSI('日', 1252); ok {
		t.Error("EncodeANSI('日') should not be representable in cp1252")
	}
	if !SupportedCodePage(1250) || SupportedCodePage(42) {
		t.Error("SupportedCodePage mismatch")
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Hello World", "Hello World"},
		{"emphasis", "*a* _b_", `\*a\* \_b\_`},
		{"code", "a `b`", "a \\`b\\`"},
		{"backslash", `a\b`, `a\\b`},
		{"strike", "~~x~~", `\~\~x\~\~`},
		{"image", "![alt](x)", `\![alt](x)`},
		{"link kept", "[text](url)", "[text](url)"},
		{"bang alone", "wow!", "wow!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EscapeMarkdown(tt.input); got != tt.want {
				t.Errorf("EscapeMarkdown(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEscapeMarkdownCell(t *testing.T) {
	if got := EscapeMarkdownCell("a|b\nc"); got != `a\|b c` {
		t.Errorf("EscapeMarkdownCell() = %q", got)
	}
}

func TestEscapeLineStart(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"# not a heading", `\# not a heading`},
		{"> not a quote", `\> not a quote`},
		{"- not a list", `\- not a list`},
		{"1. not a list", `1\. not a list`},
		{"12) not a list", `12\) not a list`},
		{"2024 was a year", "2024 was a year"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := EscapeLineStart(tt.input); got != tt.want {
			t.Errorf("EscapeLineStart(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
