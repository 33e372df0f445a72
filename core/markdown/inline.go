package markdown

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FocuswithJustin/LegacyBridge/core/ir"
)

// node is a piece of inline text or a delimiter run waiting to be matched.
type node struct {
	text  string
	code  bool
	delim byte // '*', '_', '~' or 'u' for <u> tags; zero for text
	count int
	open  bool
	close bool
}

// span is one matched emphasis pair. Nodes strictly between from and to get
// the attribute.
type span struct {
	from, to int
	attr     byte
}

const (
	attrItalic byte = iota
	attrBold
	attrStrike
	attrUnderline
	attrCount
)

// ParseInline parses inline markup into runs. Unmatched delimiters are kept
// as literal text.
func ParseInline(s string, base ir.Attrs) []ir.Run {
	nodes := scanInline(s)
	spans := matchDelimiters(nodes)
	return buildRuns(nodes, spans, base)
}

func scanInline(s string) []node {
	var nodes []node
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			nodes = append(nodes, node{text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && isASCIIPunct(s[i+1]):
			text.WriteByte(s[i+1])
			i += 2
			continue

		case c == '`':
			n := runLength(s, i, '`')
			if end := findBackticks(s, i+n, n); end >= 0 {
				flush()
				nodes = append(nodes, node{text: trimCodeSpan(s[i+n : end]), code: true})
				i = end + n
				continue
			}
			text.WriteString(s[i : i+n])
			i += n
			continue

		case c == '!' && strings.HasPrefix(s[i:], "!["):
			if alt, n, ok := scanImage(s[i:]); ok {
				text.WriteString("[image: " + alt + "]")
				i += n
				continue
			}

		case c == '*' || c == '_' || c == '~':
			n := runLength(s, i, c)
			if c == '~' && n < 2 {
				break
			}
			prev, next := runeBefore(s, i), runeAfter(s, i+n)
			open := next != 0 && !unicode.IsSpace(next)
			closing := prev != 0 && !unicode.IsSpace(prev)
			if c == '_' {
				open = open && !isAlnum(prev)
				closing = closing && !isAlnum(next)
			}
			if open || closing {
				flush()
				nodes = append(nodes, node{delim: c, count: n, open: open, close: closing})
				i += n
				continue
			}
			text.WriteString(s[i : i+n])
			i += n
			continue

		case c == '<' && strings.HasPrefix(s[i:], "<u>"):
			flush()
			nodes = append(nodes, node{delim: 'u', count: 1, open: true})
			i += 3
			continue

		case c == '<' && strings.HasPrefix(s[i:], "</u>"):
			flush()
			nodes = append(nodes, node{delim: 'u', count: 1, close: true})
			i += 4
			continue
		}
		text.WriteByte(c)
		i++
	}
	flush()
	return nodes
}

// matchDelimiters pairs closing delimiter runs with the nearest compatible
// opener. Openers between a matched pair are discarded, and a search that
// fails for a delimiter character never looks below that point again.
func matchDelimiters(nodes []node) []span {
	var spans []span
	var stack []int
	bottom := map[byte]int{}

	for i := range nodes {
		d := &nodes[i]
		if d.delim == 0 {
			continue
		}
		if d.close {
			for d.count > 0 {
				floor := bottom[d.delim]
				if floor > len(stack) {
					floor = len(stack)
				}
				j := len(stack) - 1
				for ; j >= floor; j-- {
					if o := nodes[stack[j]]; o.delim == d.delim && o.count > 0 {
						break
					}
				}
				if j < floor {
					bottom[d.delim] = len(stack)
					break
				}
				oi := stack[j]
				o := &nodes[oi]
				use, attr := 1, attrItalic
				switch d.delim {
				case '~':
					use, attr = 2, attrStrike
				case 'u':
					attr = attrUnderline
				default:
					if o.count >= 2 && d.count >= 2 {
						use, attr = 2, attrBold
					}
				}
				spans = append(spans, span{from: oi, to: i, attr: attr})
				o.count -= use
				d.count -= use
				stack = stack[:j+1]
				if o.count == 0 {
					stack = stack[:j]
				}
			}
		}
		if d.open && d.count > 0 {
			stack = append(stack, i)
		}
	}
	return spans
}

// buildRuns turns the matched node list into runs. Attribute ranges are
// applied with a difference array so nesting depth does not matter.
func buildRuns(nodes []node, spans []span, base ir.Attrs) []ir.Run {
	diff := make([][attrCount]int, len(nodes)+1)
	for _, sp := range spans {
		diff[sp.from+1][sp.attr]++
		diff[sp.to][sp.attr]--
	}

	var runs []ir.Run
	var text strings.Builder
	var cur ir.Attrs
	flush := func() {
		if text.Len() > 0 {
			runs = append(runs, ir.Run{Text: text.String(), Attrs: cur})
			text.Reset()
		}
	}

	var depth [attrCount]int
	for i, n := range nodes {
		for a := range depth {
			depth[a] += diff[i][a]
		}
		t := n.text
		if n.delim != 0 {
			t = delimText(n)
		}
		if t == "" {
			continue
		}
		a := base
		a.Italic = a.Italic || depth[attrItalic] > 0
		a.Bold = a.Bold || depth[attrBold] > 0
		a.Strike = a.Strike || depth[attrStrike] > 0
		a.Underline = a.Underline || depth[attrUnderline] > 0
		a.Code = a.Code || n.code

		if text.Len() > 0 && a != cur {
			flush()
		}
		cur = a
		text.WriteString(t)
	}
	flush()
	return runs
}

// delimText is the literal text left over from a delimiter run.
func delimText(n node) string {
	if n.count <= 0 {
		return ""
	}
	if n.delim == 'u' {
		if n.open {
			return "<u>"
		}
		return "</u>"
	}
	return strings.Repeat(string(n.delim), n.count)
}

func runLength(s string, i int, c byte) int {
	n := 0
	for i+n < len(s) && s[i+n] == c {
		n++
	}
	return n
}

// findBackticks returns the start of the next backtick run of exactly n
// backticks at or after i, or -1.
func findBackticks(s string, i, n int) int {
	for i < len(s) {
		j := strings.IndexByte(s[i:], '`')
		if j < 0 {
			return -1
		}
		i += j
		k := runLength(s, i, '`')
		if k == n {
			return i
		}
		i += k
	}
	return -1
}

func trimCodeSpan(s string) string {
	if len(s) >= 2 && s[0] == ' ' && s[len(s)-1] == ' ' && strings.Trim(s, " ") != "" {
		return s[1 : len(s)-1]
	}
	return s
}

// scanImage reads "![alt](src)" at the start of s.
func scanImage(s string) (alt string, n int, ok bool) {
	end := strings.Index(s, "](")
	if end < 2 || strings.ContainsAny(s[2:end], "\n[]") {
		return "", 0, false
	}
	rp := strings.IndexByte(s[end+2:], ')')
	if rp < 0 || strings.ContainsAny(s[end+2:end+2+rp], "\n") {
		return "", 0, false
	}
	return s[2:end], end + 3 + rp, true
}

func runeBefore(s string, i int) rune {
	if i == 0 {
		return 0
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r
}

func runeAfter(s string, i int) rune {
	if i >= len(s) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r
}

func isAlnum(r rune) bool {
	return r != 0 && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func isASCIIPunct(c byte) bool {
	return strings.IndexByte("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", c) >= 0
}
