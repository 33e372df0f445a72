package markdown

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/LegacyBridge/core/encoding"
	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
)

// GenerateOptions configures Markdown output.
type GenerateOptions struct {
	// CRLF writes CRLF line endings.
	CRLF bool
	// MaxOutput bounds the output size in bytes. Zero means unbounded.
	MaxOutput int
}

// Generate writes doc as Markdown. Font, size and color attributes have no
// Markdown form and are dropped; underline is written as <u> tags.
func Generate(doc *ir.Document, opts GenerateOptions) ([]byte, error) {
	var sb strings.Builder
	for i := range doc.Blocks {
		b := &doc.Blocks[i]
		if i > 0 {
			prev := &doc.Blocks[i-1]
			if prev.Kind == ir.KindList && b.Kind == ir.KindList {
				sb.WriteByte('\n')
			} else {
				sb.WriteString("\n\n")
			}
		}
		writeBlock(&sb, b)
		if opts.MaxOutput > 0 && sb.Len() > opts.MaxOutput {
			return nil, errors.NewAllocation("Markdown output exceeds %d bytes", opts.MaxOutput)
		}
	}
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	out := sb.String()
	if opts.CRLF {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	if opts.MaxOutput > 0 && len(out) > opts.MaxOutput {
		return nil, errors.NewAllocation("Markdown output exceeds %d bytes", opts.MaxOutput)
	}
	return []byte(out), nil
}

func writeBlock(sb *strings.Builder, b *ir.Block) {
	switch b.Kind {
	case ir.KindHeading:
		level := b.Level
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		sb.WriteString(strings.Repeat("#", level))
		sb.WriteByte(' ')
		sb.WriteString(strings.ReplaceAll(renderRuns(b.Runs), "\n", " "))
	case ir.KindList:
		indent := strings.Repeat("  ", b.Level)
		marker := "- "
		if b.Ordered {
			n := b.Number
			if n <= 0 {
				n = 1
			}
			marker = strconv.Itoa(n) + ". "
		}
		cont := indent + strings.Repeat(" ", len(marker))
		writeLines(sb, renderRuns(b.Runs), indent+marker, cont)
	case ir.KindQuote:
		prefix := strings.Repeat(">", b.Level+1) + " "
		writeLines(sb, renderRuns(b.Runs), prefix, prefix)
	case ir.KindCode:
		text := b.Text()
		fence := strings.Repeat("`", max(3, longestRun(text, '`')+1))
		sb.WriteString(fence)
		sb.WriteString(b.Lang)
		sb.WriteByte('\n')
		if text != "" {
			sb.WriteString(text)
			sb.WriteByte('\n')
		}
		sb.WriteString(fence)
	case ir.KindRule:
		sb.WriteString("---")
	case ir.KindTable:
		writeTable(sb, b)
	default:
		writeLines(sb, renderRuns(b.Runs), "", "")
	}
}

// writeLines writes text whose lines are separated by hard breaks. Every
// line gets a prefix and has a leading block marker escaped.
func writeLines(sb *strings.Builder, text, first, rest string) {
	for i, ln := range strings.Split(text, "\n") {
		if i == 0 {
			sb.WriteString(first)
		} else {
			sb.WriteString("  \n")
			sb.WriteString(rest)
		}
		sb.WriteString(encoding.EscapeLineStart(ln))
	}
}

func writeTable(sb *strings.Builder, b *ir.Block) {
	width := b.Columns()
	if width == 0 {
		return
	}
	for i, row := range b.Rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte('|')
		for j := 0; j < width; j++ {
			sb.WriteByte(' ')
			if j < len(row.Cells) {
				sb.WriteString(renderCell(row.Cells[j]))
			}
			sb.WriteString(" |")
		}
		if i == 0 {
			sb.WriteString("\n|")
			for j := 0; j < width; j++ {
				sb.WriteString(" --- |")
			}
		}
	}
}

func renderCell(c ir.Cell) string {
	parts := make([]string, 0, len(c.Blocks))
	for i := range c.Blocks {
		cb := &c.Blocks[i]
		if cb.Kind == ir.KindCode {
			parts = append(parts, cellCode(strings.ReplaceAll(cb.Text(), "\n", " ")))
			continue
		}
		parts = append(parts, renderInline(cb.Runs, true))
	}
	return strings.ReplaceAll(strings.Join(parts, " "), "\n", " ")
}

func renderRuns(runs []ir.Run) string {
	return renderInline(runs, false)
}

// cellCode writes a code span inside a table cell, where pipes must stay
// escaped even in code.
func cellCode(s string) string {
	return codeSpan(strings.ReplaceAll(s, "|", `\|`))
}

// renderInline writes runs with emphasis markers. Markers are placed inside
// the run's leading and trailing whitespace so they still open and close.
func renderInline(runs []ir.Run, cell bool) string {
	escape, code := encoding.EscapeMarkdown, codeSpan
	if cell {
		escape, code = encoding.EscapeMarkdownCell, cellCode
	}
	var sb strings.Builder
	for _, r := range runs {
		if r.Text == "" {
			continue
		}
		core := strings.TrimSpace(r.Text)
		lead := r.Text[:strings.Index(r.Text, core)]
		if core == "" {
			lead = r.Text
		}
		trail := r.Text[len(lead)+len(core):]

		sb.WriteString(lead)
		if core == "" {
			continue
		}
		open, end := markers(r.Attrs)
		sb.WriteString(open)
		if r.Attrs.Code {
			sb.WriteString(code(core))
		} else {
			sb.WriteString(tagEscaper.Replace(escape(core)))
		}
		sb.WriteString(end)
		sb.WriteString(trail)
	}
	return sb.String()
}

// tagEscaper keeps literal underline tags from parsing as markup.
var tagEscaper = strings.NewReplacer("<u>", `\<u>`, "</u>", `\</u>`)

func markers(a ir.Attrs) (open, end string) {
	if a.Underline {
		open += "<u>"
		end = "</u>" + end
	}
	if a.Strike {
		open += "~~"
		end = "~~" + end
	}
	if a.Bold {
		open += "**"
		end = "**" + end
	}
	if a.Italic {
		open += "*"
		end = "*" + end
	}
	return open, end
}

func codeSpan(s string) string {
	fence := strings.Repeat("`", longestRun(s, '`')+1)
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		return fence + " " + s + " " + fence
	}
	return fence + s + fence
}

func longestRun(s string, c byte) int {
	longest, n := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			n++
			if n > longest {
				longest = n
			}
		} else {
			n = 0
		}
	}
	return longest
}
