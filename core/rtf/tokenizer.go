package rtf

import (
	"context"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
)

// State is the tokenizer state.
type State int

// Tokenizer states. StateError is terminal.
const (
	StateNormal State = iota
	StateControlWord
	StateHexEscape
	StateUnicodeEscape
	StateError
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateControlWord:
		return "control_word"
	case StateHexEscape:
		return "hex_escape"
	case StateUnicodeEscape:
		return "unicode_escape"
	case StateError:
		return "error"
	}
	return "unknown"
}

// deadlineInterval is how many tokens are produced between deadline checks.
const deadlineInterval = 1024

// maxParamDigits bounds the digits read for a control word parameter.
const maxParamDigits = 10

// Tokenizer produces tokens lazily from raw RTF bytes. Group nesting is
// tracked with a counter and never by recursion.
type Tokenizer struct {
	ctx    context.Context
	data   []byte
	pos    int
	limits security.Limits
	state  State
	err    error

	depth int
	// ucStack holds the \ucN fallback count for each open group.
	ucStack []int
	count   int
	started bool
}

// NewTokenizer creates a tokenizer over data.
func NewTokenizer(ctx context.Context, data []byte, limits security.Limits) *Tokenizer {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Tokenizer{
		ctx:     ctx,
		data:    data,
		limits:  limits.Normalize(),
		ucStack: []int{1},
	}
}

// State returns the current state.
func (t *Tokenizer) State() State { return t.state }

// Depth returns the number of currently open groups.
func (t *Tokenizer) Depth() int { return t.depth }

// Offset returns the offset of the next unread byte.
func (t *Tokenizer) Offset() int { return t.pos }

// Err returns the terminal error, if any.
func (t *Tokenizer) Err() error { return t.err }

func (t *Tokenizer) fail(err error) (Token, error) {
	t.state = StateError
	t.err = err
	return Token{}, err
}

// Next returns the next token, or io.EOF at the end of a well-formed input.
// Once an error is returned every later call returns the same error.
func (t *Tokenizer) Next() (Token, error) {
	if t.state == StateError {
		return Token{}, t.err
	}
	if !t.started {
		t.started = true
		if len(t.data) > t.limits.MaxFileSize {
			return t.fail(errors.NewLimit(0, "input size %d exceeds maximum %d", len(t.data), t.limits.MaxFileSize))
		}
	}

	t.count++
	if t.count%deadlineInterval == 0 {
		if err := t.ctx.Err(); err != nil {
			le := errors.NewLimit(t.pos, "processing timeout exceeded")
			le.Err = err
			return t.fail(le)
		}
	}

	for t.pos < len(t.data) {
		c := t.data[t.pos]
		switch c {
		case '{':
			return t.groupStart()
		case '}':
			return t.groupEnd()
		case '\\':
			return t.control()
		case '\r', '\n':
			t.pos++
		default:
			return t.text()
		}
	}

	if t.depth > 0 {
		e := errors.NewSyntax(len(t.data), "%d unclosed group(s) at end of input", t.depth)
		e.Missing = t.depth
		e.Depth = t.depth
		return t.fail(e)
	}
	return Token{}, io.EOF
}

func (t *Tokenizer) groupStart() (Token, error) {
	off := t.pos
	if t.depth >= t.limits.MaxNestingDepth {
		e := errors.NewLimit(off, "nesting depth %d exceeds maximum %d", t.depth+1, t.limits.MaxNestingDepth)
		e.Depth = t.depth + 1
		return t.fail(e)
	}
	t.pos++
	t.depth++
	t.ucStack = append(t.ucStack, t.ucStack[len(t.ucStack)-1])
	return Token{Kind: TokenGroupStart, Offset: off}, nil
}

func (t *Tokenizer) groupEnd() (Token, error) {
	off := t.pos
	if t.depth == 0 {
		return t.fail(errors.NewSyntax(off, "unmatched closing brace"))
	}
	t.pos++
	t.depth--
	t.ucStack = t.ucStack[:len(t.ucStack)-1]
	return Token{Kind: TokenGroupEnd, Offset: off}, nil
}

func (t *Tokenizer) text() (Token, error) {
	start := t.pos
	var buf []byte
	for t.pos < len(t.data) && len(buf) < t.limits.MaxTextChunk {
		c := t.data[t.pos]
		if c == '{' || c == '}' || c == '\\' {
			break
		}
		if c == '\r' || c == '\n' {
			t.pos++
			continue
		}
		if c < 0x20 && c != '\t' {
			e := errors.NewEncoding(t.pos, "control byte 0x%02x in text", c)
			return t.fail(e)
		}
		buf = append(buf, c)
		t.pos++
	}
	// Do not split a UTF-8 sequence across chunks.
	if len(buf) == t.limits.MaxTextChunk {
		i := len(buf) - 1
		for i > 0 && len(buf)-i < utf8.UTFMax && !utf8.RuneStart(buf[i]) {
			i--
		}
		if i > 0 && buf[i] >= 0xC0 && !utf8.FullRune(buf[i:]) {
			t.rewindBytes(len(buf) - i)
			buf = buf[:i]
		}
	}
	return Token{Kind: TokenText, Offset: start, Text: string(buf)}, nil
}

// rewindBytes moves back over n text bytes, skipping line breaks that the
// text scanner dropped.
func (t *Tokenizer) rewindBytes(n int) {
	for n > 0 {
		t.pos--
		if c := t.data[t.pos]; c != '\r' && c != '\n' {
			n--
		}
	}
}

func (t *Tokenizer) control() (Token, error) {
	off := t.pos
	t.pos++ // backslash
	if t.pos >= len(t.data) {
		return t.fail(errors.NewSyntax(off, "backslash at end of input"))
	}
	c := t.data[t.pos]
	switch {
	case isLetter(c):
		return t.controlWord(off)
	case c == '\'':
		return t.hexEscape(off)
	case c == '{' || c == '}' || c == '\\':
		t.pos++
		return Token{Kind: TokenText, Offset: off, Text: string(c)}, nil
	case c == '\r' || c == '\n':
		// A backslash before a line break is a paragraph mark.
		t.pos++
		return Token{Kind: TokenControlWord, Offset: off, Word: "par"}, nil
	case c < 0x20 && c != '\t':
		return t.fail(errors.NewEncoding(t.pos, "control byte 0x%02x after backslash", c))
	default:
		t.pos++
		return Token{Kind: TokenControlSymbol, Offset: off, Word: string(c)}, nil
	}
}

func (t *Tokenizer) controlWord(off int) (Token, error) {
	t.state = StateControlWord
	start := t.pos
	for t.pos < len(t.data) && isLetter(t.data[t.pos]) {
		t.pos++
		if t.pos-start > t.limits.MaxControlWordLength {
			return t.fail(errors.NewLimit(off, "control word longer than %d letters", t.limits.MaxControlWordLength))
		}
	}
	tok := Token{Kind: TokenControlWord, Offset: off, Word: string(t.data[start:t.pos])}

	if t.pos < len(t.data) && (isDigit(t.data[t.pos]) ||
		(t.data[t.pos] == '-' && t.pos+1 < len(t.data) && isDigit(t.data[t.pos+1]))) {
		numStart := t.pos
		if t.data[t.pos] == '-' {
			t.pos++
		}
		digits := t.pos
		for t.pos < len(t.data) && isDigit(t.data[t.pos]) {
			t.pos++
			if t.pos-digits > maxParamDigits {
				return t.fail(errors.NewLimit(off, "parameter of \\%s out of range", tok.Word))
			}
		}
		n, err := strconv.Atoi(string(t.data[numStart:t.pos]))
		if err != nil || n < t.limits.MinNumber || n > t.limits.MaxNumber {
			return t.fail(errors.NewLimit(off, "parameter of \\%s out of range [%d, %d]", tok.Word, t.limits.MinNumber, t.limits.MaxNumber))
		}
		tok.Param, tok.HasParam = n, true
	}
	if t.pos < len(t.data) && t.data[t.pos] == ' ' {
		t.pos++
	}
	t.state = StateNormal

	switch tok.Word {
	case "uc":
		if tok.HasParam && tok.Param >= 0 {
			t.ucStack[len(t.ucStack)-1] = tok.Param
		}
	case "u":
		if tok.HasParam {
			return t.unicodeEscape(tok)
		}
	}
	return tok, nil
}

func (t *Tokenizer) hexEscape(off int) (Token, error) {
	t.state = StateHexEscape
	t.pos++ // quote
	if t.pos+2 > len(t.data) {
		return t.fail(errors.NewSyntax(off, `truncated \' escape`))
	}
	hi, ok1 := hexVal(t.data[t.pos])
	lo, ok2 := hexVal(t.data[t.pos+1])
	if !ok1 || !ok2 {
		return t.fail(errors.NewSyntax(off, `invalid \' escape`))
	}
	t.pos += 2
	t.state = StateNormal
	return Token{Kind: TokenHex, Offset: off, Byte: hi<<4 | lo}, nil
}

func (t *Tokenizer) unicodeEscape(word Token) (Token, error) {
	t.state = StateUnicodeEscape
	n := word.Param
	if n < 0 {
		n += 65536
	}
	if n < 0 || n > 0xFFFF {
		return t.fail(errors.NewLimit(word.Offset, `\u parameter %d out of range`, word.Param))
	}
	t.skipFallback(t.ucStack[len(t.ucStack)-1])
	t.state = StateNormal
	return Token{Kind: TokenUnicode, Offset: word.Offset, Unit: uint16(n)}, nil
}

// skipFallback skips the n fallback characters that follow a \uN escape. A
// \'hh escape or control symbol counts as one character; groups and control
// words end the fallback early.
func (t *Tokenizer) skipFallback(n int) {
	for n > 0 && t.pos < len(t.data) {
		c := t.data[t.pos]
		switch {
		case c == '{' || c == '}':
			return
		case c == '\r' || c == '\n':
			t.pos++
			continue
		case c == '\\':
			if t.pos+1 >= len(t.data) {
				return
			}
			next := t.data[t.pos+1]
			switch {
			case next == '\'':
				if t.pos+4 > len(t.data) {
					return
				}
				t.pos += 4
			case isLetter(next) || next == '\r' || next == '\n':
				return
			default:
				t.pos += 2
			}
		default:
			t.pos++
		}
		n--
	}
}

// Tokenize reads every token of data. On error it returns the tokens read so
// far together with the error.
func Tokenize(ctx context.Context, data []byte, limits security.Limits) ([]Token, error) {
	t := NewTokenizer(ctx, data, limits)
	var out []Token
	for {
		tok, err := t.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, tok)
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func hexVal(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
