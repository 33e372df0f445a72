// Package markdown parses Markdown into the document model and generates
// Markdown from it.
//
// The block grammar covers ATX headings, fenced code, thematic breaks, block
// quotes, list items, pipe tables and paragraphs. Parsing is line based and
// never recurses on nesting; list and quote depth are bounded by the
// configured nesting limit.
package markdown

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
)

// Options configures parsing.
type Options struct {
	Limits security.Limits
	// Report receives recovery actions for padded table rows. Optional.
	Report *report.Report
}

// deadlineLines is how many lines are parsed between deadline checks.
const deadlineLines = 1024

type line struct {
	text   string
	offset int
}

// pending is a text block that is still collecting lines.
type pending struct {
	active  bool
	kind    ir.BlockKind
	level   int
	ordered bool
	number  int
	src     strings.Builder
	hard    bool
}

type tableState struct {
	block  ir.Block
	widest int
}

type parser struct {
	ctx    context.Context
	limits security.Limits
	rep    *report.Report
	doc    *ir.Document
	lines  []line
	pend   pending
	table  *tableState
	off    int   // offset of the current line
	err    error // first timeout seen while building a block
}

// Parse parses Markdown. The input must be valid UTF-8 and no larger than
// the configured maximum file size.
func Parse(ctx context.Context, data []byte, opts Options) (*ir.Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p := &parser{
		ctx:    ctx,
		limits: opts.Limits.Normalize(),
		rep:    opts.Report,
		doc:    ir.NewDocument(ir.FormatMarkdown),
	}
	if p.rep == nil {
		p.rep = report.New()
	}
	p.doc.Meta.ByteLength = len(data)

	if len(data) > p.limits.MaxFileSize {
		return nil, errors.NewLimit(0, "input size %d exceeds maximum %d", len(data), p.limits.MaxFileSize)
	}
	if off := invalidUTF8(data); off >= 0 {
		return nil, errors.NewEncoding(off, "invalid UTF-8 at offset %d", off)
	}
	p.lines = splitLines(string(data))
	if err := p.parse(); err != nil {
		return p.doc, err
	}
	return p.doc, nil
}

func invalidUTF8(data []byte) int {
	for i := 0; i < len(data); {
		if data[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}

func splitLines(s string) []line {
	s = strings.TrimPrefix(s, "\xef\xbb\xbf")
	var out []line
	off := 0
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			if s != "" {
				out = append(out, line{text: strings.TrimSuffix(s, "\r"), offset: off})
			}
			return out
		}
		out = append(out, line{text: strings.TrimSuffix(s[:i], "\r"), offset: off})
		off += i + 1
		s = s[i+1:]
	}
}

func (p *parser) parse() error {
	for i := 0; i < len(p.lines); i++ {
		if p.err != nil {
			return p.err
		}
		if i%deadlineLines == deadlineLines-1 {
			if err := p.expired(p.lines[i].offset); err != nil {
				return err
			}
		}
		ln := p.lines[i]
		p.off = ln.offset
		text := expandTabs(ln.text)
		indent := leadingSpaces(text)
		body := text[indent:]

		if strings.TrimSpace(body) == "" {
			p.flushAll()
			continue
		}

		if indent < 4 {
			if ch, n, info, ok := fenceOpen(body); ok {
				p.flushAll()
				i = p.fencedCode(i+1, ch, n, info)
				continue
			}
			if level, title, ok := atxHeading(body); ok {
				p.flushAll()
				p.appendBlock(ir.Block{Kind: ir.KindHeading, Level: level, Runs: p.inline(title)})
				continue
			}
			if isThematicBreak(body) {
				p.flushAll()
				p.appendBlock(ir.Block{Kind: ir.KindRule})
				continue
			}
		}

		if body[0] == '>' {
			depth, content := quotePrefix(body)
			if depth > p.limits.MaxNestingDepth {
				return errors.NewLimit(ln.offset, "quote nesting %d exceeds maximum %d", depth, p.limits.MaxNestingDepth)
			}
			level := depth - 1
			if strings.TrimSpace(content) == "" {
				p.flushPending()
				continue
			}
			if !p.pend.active || p.pend.kind != ir.KindQuote || p.pend.level != level {
				p.flushAll()
				p.start(ir.KindQuote, level)
			}
			p.addLine(content)
			continue
		}

		if ordered, number, content, ok := listMarker(body); ok {
			level := indent / 2
			if level >= p.limits.MaxNestingDepth {
				return errors.NewLimit(ln.offset, "list nesting %d exceeds maximum %d", level+1, p.limits.MaxNestingDepth)
			}
			p.flushAll()
			p.start(ir.KindList, level)
			p.pend.ordered, p.pend.number = ordered, number
			p.addLine(content)
			continue
		}

		if p.table != nil || p.tableStarts(i, body) {
			if strings.ContainsRune(body, '|') {
				p.flushPending()
				if err := p.tableRow(ln.offset, body); err != nil {
					return err
				}
				continue
			}
			p.closeTable()
		}

		if !p.pend.active {
			p.start(ir.KindParagraph, 0)
		}
		p.addLine(body)
	}
	p.flushAll()
	return p.err
}

// expired returns a Limit error once the context is done.
func (p *parser) expired(offset int) error {
	err := p.ctx.Err()
	if err == nil {
		return nil
	}
	le := errors.NewLimit(offset, "processing timeout exceeded")
	le.Err = err
	return le
}

func (p *parser) flushAll() {
	p.flushPending()
	p.closeTable()
}

func (p *parser) appendBlock(b ir.Block) {
	p.doc.Blocks = append(p.doc.Blocks, b)
}

// inline parses the inline markup of one block. The deadline is checked
// per block since a single paragraph may be most of the input.
func (p *parser) inline(s string) []ir.Run {
	if p.err == nil {
		p.err = p.expired(p.off)
	}
	if p.err != nil {
		return nil
	}
	return ir.SplitRuns(ParseInline(s, ir.DefaultAttrs()), p.limits.MaxTextChunk)
}

func (p *parser) start(kind ir.BlockKind, level int) {
	p.pend.active = true
	p.pend.kind = kind
	p.pend.level = level
	p.pend.ordered = false
	p.pend.number = 0
	p.pend.src.Reset()
	p.pend.hard = false
}

// addLine appends a source line to the pending block. Lines are joined with
// a space, or with a newline after a hard break (two trailing spaces or a
// trailing backslash).
func (p *parser) addLine(s string) {
	s = strings.TrimLeft(s, " ")
	if p.pend.src.Len() > 0 {
		if p.pend.hard {
			p.pend.src.WriteByte('\n')
		} else {
			p.pend.src.WriteByte(' ')
		}
	}
	hard := strings.HasSuffix(s, "  ")
	trimmed := strings.TrimRight(s, " ")
	if n := len(trimmed) - len(strings.TrimRight(trimmed, "\\")); n%2 == 1 {
		hard = true
		trimmed = trimmed[:len(trimmed)-1]
	}
	p.pend.hard = hard
	p.pend.src.WriteString(trimmed)
}

func (p *parser) flushPending() {
	if !p.pend.active {
		return
	}
	p.pend.active = false
	src := p.pend.src.String()
	if strings.TrimSpace(src) == "" && p.pend.kind != ir.KindList {
		return
	}
	b := ir.Block{Kind: p.pend.kind, Level: p.pend.level, Runs: p.inline(src)}
	if p.pend.kind == ir.KindList {
		b.Ordered, b.Number = p.pend.ordered, p.pend.number
	}
	p.appendBlock(b)
}

func (p *parser) fencedCode(i int, ch byte, n int, info string) int {
	var body []string
	for ; i < len(p.lines); i++ {
		text := expandTabs(p.lines[i].text)
		if ind := leadingSpaces(text); ind < 4 && fenceClose(text[ind:], ch, n) {
			break
		}
		body = append(body, p.lines[i].text)
	}
	lang := info
	if f := strings.Fields(info); len(f) > 0 {
		lang = f[0]
	}
	code := strings.Join(body, "\n")
	runs := ir.SplitRuns([]ir.Run{ir.Text(code)}, p.limits.MaxTextChunk)
	if code == "" {
		runs = nil
	}
	p.appendBlock(ir.Block{Kind: ir.KindCode, Lang: lang, Runs: runs})
	return i
}

// tableStarts reports whether line i begins a pipe table: it starts with a
// pipe, or it contains one and the next line is a separator row.
func (p *parser) tableStarts(i int, body string) bool {
	if strings.HasPrefix(body, "|") {
		return true
	}
	if !strings.ContainsRune(body, '|') || i+1 >= len(p.lines) {
		return false
	}
	next := strings.TrimSpace(p.lines[i+1].text)
	return isSeparatorRow(splitCells(next))
}

func (p *parser) tableRow(offset int, body string) error {
	cells := splitCells(strings.TrimSpace(body))
	if isSeparatorRow(cells) {
		return nil
	}
	if len(cells) > p.limits.MaxTableColumns {
		return errors.NewLimit(offset, "table row has %d columns, maximum is %d", len(cells), p.limits.MaxTableColumns)
	}
	if p.table == nil {
		p.table = &tableState{block: ir.Block{Kind: ir.KindTable}}
	}
	t := p.table
	if len(t.block.Rows) >= p.limits.MaxTableRows {
		return errors.NewLimit(offset, "table has more than %d rows", p.limits.MaxTableRows)
	}

	row := ir.Row{Cells: make([]ir.Cell, 0, len(cells))}
	for _, c := range cells {
		var cell ir.Cell
		if c != "" {
			cell.Blocks = []ir.Block{{Kind: ir.KindParagraph, Runs: p.inline(strings.ReplaceAll(c, `\|`, "|"))}}
		}
		row.Cells = append(row.Cells, cell)
	}
	if n := len(row.Cells); n < t.widest {
		row.Cells = append(row.Cells, make([]ir.Cell, t.widest-n)...)
		p.recordPadding(len(t.block.Rows), n, t.widest, offset)
	}
	if len(row.Cells) > t.widest {
		t.widest = len(row.Cells)
	}
	t.block.Rows = append(t.block.Rows, row)
	return nil
}

func (p *parser) closeTable() {
	t := p.table
	if t == nil {
		return
	}
	p.table = nil
	for i := range t.block.Rows {
		if n := len(t.block.Rows[i].Cells); n < t.widest {
			t.block.Rows[i].Cells = append(t.block.Rows[i].Cells, make([]ir.Cell, t.widest-n)...)
			p.recordPadding(i, n, t.widest, -1)
		}
	}
	p.appendBlock(t.block)
}

func (p *parser) recordPadding(row, from, to, offset int) {
	p.rep.Record(report.RecoveryAction{
		Kind:        report.InsertMissingDelimiter,
		Description: "padded table row " + strconv.Itoa(row) + " from " + strconv.Itoa(from) + " to " + strconv.Itoa(to) + " cells",
		Offset:      offset,
		Success:     true,
	})
}

// splitCells splits a table row on unescaped pipes, dropping the outer
// pipes. Escaped pipes stay escaped in the returned cells.
func splitCells(row string) []string {
	row = strings.TrimPrefix(row, "|")
	if strings.HasSuffix(row, "|") && !strings.HasSuffix(row, "\\|") {
		row = row[:len(row)-1]
	}
	var cells []string
	start := 0
	for i := 0; i < len(row); i++ {
		switch row[i] {
		case '\\':
			i++
		case '|':
			cells = append(cells, strings.TrimSpace(row[start:i]))
			start = i + 1
		}
	}
	return append(cells, strings.TrimSpace(row[start:]))
}

func isSeparatorRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		c = strings.TrimSuffix(strings.TrimPrefix(c, ":"), ":")
		if c == "" || strings.Trim(c, "-") != "" {
			return false
		}
	}
	return true
}

func expandTabs(s string) string {
	ws := len(s) - len(strings.TrimLeft(s, " \t"))
	if !strings.Contains(s[:ws], "\t") {
		return s
	}
	var sb strings.Builder
	i := 0
	for ; i < len(s) && (s[i] == ' ' || s[i] == '\t'); i++ {
		if s[i] == '\t' {
			sb.WriteString("    ")
		} else {
			sb.WriteByte(' ')
		}
	}
	sb.WriteString(s[i:])
	return sb.String()
}

func leadingSpaces(s string) int {
	n := 0
	for n < len(s) && s[n] == ' ' {
		n++
	}
	return n
}

func fenceOpen(s string) (ch byte, n int, info string, ok bool) {
	if s == "" || (s[0] != '`' && s[0] != '~') {
		return 0, 0, "", false
	}
	ch = s[0]
	n = runLength(s, 0, ch)
	if n < 3 {
		return 0, 0, "", false
	}
	info = strings.TrimSpace(s[n:])
	if ch == '`' && strings.ContainsRune(info, '`') {
		return 0, 0, "", false
	}
	return ch, n, info, true
}

func fenceClose(s string, ch byte, n int) bool {
	k := runLength(s, 0, ch)
	return k >= n && strings.TrimSpace(s[k:]) == ""
}

func atxHeading(s string) (int, string, bool) {
	n := runLength(s, 0, '#')
	if n < 1 || n > 6 {
		return 0, "", false
	}
	rest := s[n:]
	if rest != "" && rest[0] != ' ' {
		return 0, "", false
	}
	rest = strings.TrimSpace(rest)
	// optional closing sequence
	if t := strings.TrimRight(rest, "#"); t != rest && (t == "" || strings.HasSuffix(t, " ")) {
		rest = strings.TrimSpace(t)
	}
	return n, rest, true
}

func isThematicBreak(s string) bool {
	c := s[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case c:
			n++
		case ' ', '\t':
		default:
			return false
		}
	}
	return n >= 3
}

// quotePrefix counts the leading '>' markers and returns the content after
// them.
func quotePrefix(s string) (int, string) {
	depth := 0
	i := 0
	for i < len(s) {
		if s[i] == '>' {
			depth++
			i++
			if i < len(s) && s[i] == ' ' {
				i++
			}
			continue
		}
		if s[i] == ' ' && i+1 < len(s) && s[i+1] == '>' {
			i++
			continue
		}
		break
	}
	return depth, s[i:]
}

// listMarker recognizes "- ", "* ", "+ ", "N. " and "N) " item markers.
func listMarker(s string) (ordered bool, number int, content string, ok bool) {
	switch s[0] {
	case '-', '*', '+':
		if len(s) == 1 {
			return false, 0, "", true
		}
		if s[1] == ' ' {
			return false, 0, s[2:], true
		}
		return false, 0, "", false
	}
	i := 0
	for i < len(s) && i < 9 && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) || (s[i] != '.' && s[i] != ')') {
		return false, 0, "", false
	}
	if i+1 < len(s) && s[i+1] != ' ' {
		return false, 0, "", false
	}
	number, _ = strconv.Atoi(s[:i])
	content = ""
	if i+2 <= len(s) {
		content = s[i+2:]
	}
	return true, number, content, true
}
