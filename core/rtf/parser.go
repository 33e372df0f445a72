// Package rtf tokenizes and parses RTF into the document model and generates
// RTF from it. Parsing never recurses on group nesting: groups are tracked
// with an explicit stack bounded by the configured depth limit.
package rtf

import (
	"context"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/LegacyBridge/core/cache"
	"github.com/FocuswithJustin/LegacyBridge/core/encoding"
	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
)

// ImagePlaceholder replaces embedded pictures.
const ImagePlaceholder = "[image]"

// Options configures parsing.
type Options struct {
	Limits security.Limits
	// Policy decides which control words are processed. Nil uses the
	// default deny-list.
	Policy *security.Policy
	// Strict aborts on forbidden control words instead of skipping them.
	Strict bool
	// Report receives findings and recovery actions. Optional.
	Report *report.Report
}

type paraProps struct {
	outline int
	ilvl    int
	li, ri  int
	brdrb   bool
	intbl   bool
}

func defaultPara() paraProps {
	return paraProps{outline: -1, ilvl: -1}
}

type groupState struct {
	attrs ir.Attrs
	para  paraProps
	dest  destination
	// ignorable is set by \* until the next control word.
	ignorable bool
}

// Parser builds a Document from RTF tokens.
type Parser struct {
	opts   Options
	limits security.Limits
	policy *security.Policy
	rep    *report.Report

	tok   *Tokenizer
	doc   *ir.Document
	stack []groupState
	cur   groupState

	codePage    int
	defaultFont int

	runs        []ir.Run
	open        strings.Builder // text of the run being built
	openAttrs   ir.Attrs
	code        strings.Builder // text of the last code block while it can still grow
	codeAt      int
	listText    strings.Builder
	hasListText bool
	pendingHigh uint16

	fontIndex  int
	fontFamily string
	fontName   strings.Builder

	colorSet         bool
	red, green, blue int
	colorCount       int

	title, author strings.Builder

	table      *ir.Block
	row        *ir.Row
	cellBlocks []ir.Block

	missingFonts  map[int]bool
	missingColors map[int]bool
}

// NewParser creates a parser.
func NewParser(opts Options) *Parser {
	p := &Parser{
		opts:          opts,
		limits:        opts.Limits.Normalize(),
		policy:        opts.Policy,
		rep:           opts.Report,
		codePage:      encoding.DefaultCodePage,
		defaultFont:   ir.NoFont,
		codeAt:        -1,
		missingFonts:  map[int]bool{},
		missingColors: map[int]bool{},
	}
	if p.policy == nil {
		p.policy = security.DefaultPolicy()
	}
	if p.rep == nil {
		p.rep = report.New()
	}
	return p
}

// Parse parses an RTF document. On error the partially built document is
// returned alongside the error.
func Parse(ctx context.Context, data []byte, opts Options) (*ir.Document, error) {
	return NewParser(opts).Parse(ctx, data)
}

// Report returns the findings and actions collected while parsing.
func (p *Parser) Report() *report.Report { return p.rep }

// Parse parses data.
func (p *Parser) Parse(ctx context.Context, data []byte) (*ir.Document, error) {
	p.tok = NewTokenizer(ctx, data, p.limits)
	p.doc = ir.NewDocument(ir.FormatRTF)
	p.doc.Meta.ByteLength = len(data)
	p.cur = groupState{attrs: ir.DefaultAttrs(), para: defaultPara()}

	for {
		tok, err := p.tok.Next()
		if err == io.EOF {
			break
		}
		if err == nil {
			err = p.handle(tok)
		}
		if err != nil {
			p.finish()
			p.doc.Meta.OpenGroups = p.tok.Depth()
			return p.doc, err
		}
	}
	p.finish()
	return p.doc, nil
}

func (p *Parser) finish() {
	p.flushSurrogate()
	p.flushParagraph()
	p.closeTable()
	p.sealCode()
	p.doc.Meta.CodePage = p.codePage
	p.doc.Meta.Title = strings.TrimSpace(p.title.String())
	p.doc.Meta.Author = strings.TrimSpace(p.author.String())
}

func (p *Parser) handle(tok Token) error {
	if tok.Kind != TokenUnicode {
		p.flushSurrogate()
	}
	switch tok.Kind {
	case TokenGroupStart:
		if len(p.stack) >= p.limits.MaxNestingDepth {
			return errors.NewLimit(tok.Offset, "nesting depth %d exceeds maximum %d", len(p.stack)+1, p.limits.MaxNestingDepth)
		}
		p.stack = append(p.stack, p.cur)
		p.cur.ignorable = false
	case TokenGroupEnd:
		p.endGroup()
	case TokenText:
		p.text(decodeRaw(tok.Text, p.codePage))
	case TokenHex:
		p.text(string(encoding.DecodeANSI(tok.Byte, p.codePage)))
	case TokenUnicode:
		p.unicode(tok.Unit)
	case TokenControlSymbol:
		return p.controlSymbol(tok)
	case TokenControlWord:
		return p.controlWord(tok)
	}
	return nil
}

func (p *Parser) endGroup() {
	switch p.cur.dest {
	case destFontTable:
		if strings.TrimSpace(p.fontName.String()) != "" {
			p.commitFont()
		}
	}
	if len(p.stack) == 0 {
		return
	}
	p.cur = p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
}

func (p *Parser) skipping() bool {
	return p.cur.dest == destSkip || p.cur.dest == destPict
}

func (p *Parser) controlSymbol(tok Token) error {
	if p.skipping() {
		return nil
	}
	if tok.Word == "*" {
		p.cur.ignorable = true
		return nil
	}
	if s, ok := symbols[tok.Word]; ok {
		p.text(s)
	}
	return nil
}

func (p *Parser) controlWord(tok Token) error {
	if p.skipping() {
		return nil
	}
	if !p.policy.Allowed(tok.Word) {
		return p.forbidden(tok)
	}

	class := words[tok.Word]
	if p.cur.ignorable {
		p.cur.ignorable = false
		if _, handled := destinations[tok.Word]; !handled {
			p.cur.dest = destSkip
			return nil
		}
	}

	switch class {
	case classDestination:
		p.destination(tok)
	case classFormat:
		p.format(tok)
	case classParagraph:
		p.paragraph(tok)
	case classTable:
		return p.tableWord(tok)
	case classFontTable:
		if p.cur.dest == destFontTable {
			p.fontFamily = tok.Word
		}
	case classColorTable:
		if p.cur.dest == destColorTable {
			v := clampByte(tok.Param)
			switch tok.Word {
			case "red":
				p.red = v
			case "green":
				p.green = v
			case "blue":
				p.blue = v
			}
			p.colorSet = true
		}
	case classSymbol:
		p.text(symbols[tok.Word])
	case classDocument:
		switch tok.Word {
		case "ansicpg":
			if encoding.SupportedCodePage(tok.Param) {
				p.codePage = tok.Param
			}
		case "deff":
			p.defaultFont = tok.Param
		case "rtf":
		default:
			p.codePage = codePageFor[tok.Word]
		}
	}
	return nil
}

func (p *Parser) forbidden(tok Token) error {
	if p.opts.Strict {
		return errors.NewSecurity(tok.Offset, tok.Word)
	}
	p.rep.Addf(report.SeverityWarning, "forbidden_control_word", report.AtOffset(tok.Offset),
		`forbidden control word \%s skipped`, tok.Word)
	desc := `skipped forbidden control word \` + tok.Word
	if len(p.stack) > 1 {
		p.cur.dest = destSkip
		desc += " and its group"
	}
	p.rep.Record(report.RecoveryAction{
		Kind:        report.SkipToken,
		Description: desc,
		Offset:      tok.Offset,
		Success:     true,
	})
	return nil
}

func (p *Parser) destination(tok Token) {
	d, ok := destinations[tok.Word]
	if !ok {
		p.cur.dest = destSkip
		return
	}
	switch d {
	case destTitle, destAuthor:
		if p.cur.dest != destInfo {
			p.cur.dest = destSkip
			return
		}
	case destListText:
		p.listText.Reset()
		p.hasListText = true
	case destPict:
		if p.cur.dest == destBody {
			p.doc.Meta.Images++
			p.appendRun(ImagePlaceholder)
		}
	}
	p.cur.dest = d
}

func (p *Parser) format(tok Token) {
	on := !tok.HasParam || tok.Param != 0
	a := &p.cur.attrs
	switch tok.Word {
	case "b":
		a.Bold = on
	case "i":
		a.Italic = on
	case "ul", "uld", "uldb", "ulw":
		a.Underline = on
	case "ulnone":
		a.Underline = false
	case "strike", "striked":
		a.Strike = on
	case "plain":
		*a = ir.DefaultAttrs()
	case "f":
		if p.cur.dest == destFontTable {
			p.fontIndex = tok.Param
			p.fontFamily = ""
			p.fontName.Reset()
			return
		}
		if p.doc.HasFont(tok.Param) {
			a.Font = tok.Param
		} else if !p.missingFonts[tok.Param] {
			p.missingFonts[tok.Param] = true
			p.rep.Addf(report.SeverityError, "dangling_font", report.AtOffset(tok.Offset),
				"font %d is not in the font table", tok.Param)
		}
	case "fs":
		if tok.Param > 0 {
			a.Size = tok.Param
		}
	case "cf":
		if p.doc.HasColor(tok.Param) {
			a.Color = tok.Param
		} else if !p.missingColors[tok.Param] {
			p.missingColors[tok.Param] = true
			p.rep.Addf(report.SeverityError, "dangling_color", report.AtOffset(tok.Offset),
				"color %d is not in the color table", tok.Param)
		}
	}
}

func (p *Parser) paragraph(tok Token) {
	pp := &p.cur.para
	switch tok.Word {
	case "par", "page", "sect":
		if p.cur.dest == destBody {
			p.flushParagraph()
		}
	case "pard":
		*pp = defaultPara()
	case "outlinelevel":
		if tok.Param >= 0 && tok.Param <= 5 {
			pp.outline = tok.Param
		} else {
			pp.outline = -1
		}
	case "ilvl":
		pp.ilvl = tok.Param
	case "li":
		pp.li = tok.Param
	case "ri":
		pp.ri = tok.Param
	case "brdrb":
		pp.brdrb = true
	}
}

func (p *Parser) tableWord(tok Token) error {
	if p.cur.dest != destBody {
		return nil
	}
	switch tok.Word {
	case "intbl":
		p.cur.para.intbl = true
	case "cell", "nestcell":
		return p.endCell(tok.Offset)
	case "row", "nestrow":
		return p.endRow(tok.Offset)
	}
	return nil
}

func (p *Parser) endCell(offset int) error {
	if b, ok := p.takeBlock(); ok {
		p.cellBlocks = append(p.cellBlocks, b)
	}
	if p.row == nil {
		p.row = &ir.Row{}
	}
	p.row.Cells = append(p.row.Cells, ir.Cell{Blocks: p.cellBlocks})
	p.cellBlocks = nil
	if len(p.row.Cells) > p.limits.MaxTableColumns {
		return errors.NewLimit(offset, "table row has more than %d columns", p.limits.MaxTableColumns)
	}
	return nil
}

func (p *Parser) endRow(offset int) error {
	p.runs = nil
	p.open.Reset()
	p.hasListText = false
	p.cellBlocks = nil
	if p.table == nil {
		p.table = &ir.Block{Kind: ir.KindTable}
	}
	if p.row == nil {
		p.row = &ir.Row{}
	}
	p.table.Rows = append(p.table.Rows, *p.row)
	p.row = nil
	if len(p.table.Rows) > p.limits.MaxTableRows {
		return errors.NewLimit(offset, "table has more than %d rows", p.limits.MaxTableRows)
	}
	return nil
}

func (p *Parser) closeTable() {
	if p.row != nil && len(p.row.Cells) > 0 {
		if p.table == nil {
			p.table = &ir.Block{Kind: ir.KindTable}
		}
		p.table.Rows = append(p.table.Rows, *p.row)
	}
	p.row = nil
	if p.table == nil {
		return
	}
	for _, i := range p.table.PadRows(p.table.Columns()) {
		p.rep.Record(report.RecoveryAction{
			Kind:        report.InsertMissingDelimiter,
			Description: "padded table row " + strconv.Itoa(i) + " with empty cells",
			Offset:      -1,
			Success:     true,
		})
	}
	p.doc.Blocks = append(p.doc.Blocks, *p.table)
	p.table = nil
}

func (p *Parser) flushParagraph() {
	intbl := p.cur.para.intbl
	b, ok := p.takeBlock()
	if intbl {
		if ok {
			p.cellBlocks = append(p.cellBlocks, b)
		}
		return
	}
	if !ok {
		return
	}
	p.closeTable()
	p.appendBlock(b)
}

// appendBlock adds b to the document. Consecutive code paragraphs are
// joined into one code block.
func (p *Parser) appendBlock(b ir.Block) {
	if b.Kind == ir.KindCode && p.codeAt >= 0 && p.codeAt == len(p.doc.Blocks)-1 {
		p.code.WriteByte('\n')
		p.code.WriteString(b.Text())
		return
	}
	p.sealCode()
	p.doc.Blocks = append(p.doc.Blocks, b)
	if b.Kind == ir.KindCode {
		p.codeAt = len(p.doc.Blocks) - 1
		p.code.WriteString(b.Text())
	}
}

// sealCode stores the text gathered for the last code block.
func (p *Parser) sealCode() {
	if p.codeAt < 0 {
		return
	}
	b := &p.doc.Blocks[p.codeAt]
	b.Runs = ir.SplitRuns([]ir.Run{ir.Text(p.code.String())}, p.limits.MaxTextChunk)
	p.code.Reset()
	p.codeAt = -1
}

// takeBlock turns the pending runs into a block using the current
// paragraph properties.
func (p *Parser) takeBlock() (ir.Block, bool) {
	p.sealRun()
	runs := p.runs[:0:0]
	for _, r := range p.runs {
		if r.Text != "" {
			runs = append(runs, r)
		}
	}
	p.runs = nil
	marker := strings.TrimSpace(p.listText.String())
	hasList := p.hasListText
	p.listText.Reset()
	p.hasListText = false
	pp := p.cur.para

	if len(runs) == 0 && !hasList {
		if pp.brdrb {
			return ir.Block{Kind: ir.KindRule}, true
		}
		return ir.Block{}, false
	}

	switch {
	case pp.outline >= 0:
		return ir.Block{Kind: ir.KindHeading, Level: pp.outline + 1, Runs: runs}, true
	case hasList:
		b := ir.Block{Kind: ir.KindList, Runs: runs}
		if n := leadingNumber(marker); n >= 0 {
			b.Ordered, b.Number = true, n
		}
		switch {
		case pp.ilvl >= 0:
			b.Level = pp.ilvl
		case pp.li >= 720:
			b.Level = pp.li/360 - 1
		}
		return b, true
	case pp.li > 0 && pp.ri > 0:
		return ir.Block{Kind: ir.KindQuote, Runs: runs}, true
	case allCode(runs):
		var sb strings.Builder
		for _, r := range runs {
			sb.WriteString(r.Text)
		}
		return ir.Block{Kind: ir.KindCode, Runs: []ir.Run{ir.Text(sb.String())}}, true
	}
	return ir.Block{Kind: ir.KindParagraph, Runs: runs}, true
}

func allCode(runs []ir.Run) bool {
	for _, r := range runs {
		if !r.Attrs.Code {
			return false
		}
	}
	return len(runs) > 0
}

func leadingNumber(s string) int {
	i := 0
	for i < len(s) && isDigit(s[i]) && i < 9 {
		i++
	}
	if i == 0 {
		return -1
	}
	n, _ := strconv.Atoi(s[:i])
	return n
}

func (p *Parser) text(s string) {
	if s == "" {
		return
	}
	switch p.cur.dest {
	case destBody:
		p.appendRun(s)
	case destFontTable:
		for _, r := range s {
			if r == ';' {
				p.commitFont()
				continue
			}
			p.fontName.WriteRune(r)
		}
	case destColorTable:
		for i := 0; i < strings.Count(s, ";"); i++ {
			p.commitColor()
		}
	case destTitle:
		p.title.WriteString(s)
	case destAuthor:
		p.author.WriteString(s)
	case destListText:
		p.listText.WriteString(s)
	}
}

func (p *Parser) unicode(u uint16) {
	switch {
	case u >= 0xD800 && u <= 0xDBFF:
		p.flushSurrogate()
		p.pendingHigh = u
	case u >= 0xDC00 && u <= 0xDFFF:
		if p.pendingHigh == 0 {
			p.text(string(encoding.Placeholder))
			return
		}
		r := 0x10000 + (rune(p.pendingHigh)-0xD800)<<10 + (rune(u) - 0xDC00)
		p.pendingHigh = 0
		p.text(string(r))
	default:
		p.flushSurrogate()
		p.text(string(rune(u)))
	}
}

// flushSurrogate replaces an unpaired high surrogate.
func (p *Parser) flushSurrogate() {
	if p.pendingHigh != 0 {
		p.pendingHigh = 0
		p.text(string(encoding.Placeholder))
	}
}

func (p *Parser) appendRun(s string) {
	a := p.cur.attrs
	font := a.Font
	if font == ir.NoFont {
		font = p.defaultFont
	}
	if f, ok := p.doc.Font(font); ok && f.Monospace() {
		a.Code = true
	}

	if p.open.Len() > 0 && p.openAttrs != a {
		p.sealRun()
	}
	p.openAttrs = a
	chunk := p.limits.MaxTextChunk
	for s != "" {
		room := chunk - p.open.Len()
		if room <= 0 {
			p.sealRun()
			room = chunk
		}
		var head string
		head, s = splitAt(s, room)
		p.open.WriteString(head)
	}
}

// sealRun closes the run being built. Text of one run never exceeds the
// chunk limit by more than one rune.
func (p *Parser) sealRun() {
	if p.open.Len() == 0 {
		return
	}
	p.runs = append(p.runs, ir.Run{Text: p.open.String(), Attrs: p.openAttrs})
	p.open.Reset()
}

// splitAt splits s at most n bytes in, on a rune boundary.
func splitAt(s string, n int) (string, string) {
	if len(s) <= n {
		return s, ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		_, size := utf8.DecodeRuneInString(s)
		n = size
	}
	return s[:n], s[n:]
}

func (p *Parser) commitFont() {
	name := strings.TrimSpace(p.fontName.String())
	p.fontName.Reset()
	entry := ir.FontEntry{Index: p.fontIndex, Name: cache.Shared().Intern(name), Family: p.fontFamily}
	for i := range p.doc.Fonts {
		if p.doc.Fonts[i].Index == entry.Index {
			p.doc.Fonts[i] = entry
			return
		}
	}
	p.doc.Fonts = append(p.doc.Fonts, entry)
}

func (p *Parser) commitColor() {
	c := ir.ColorEntry{Index: p.colorCount}
	if p.colorSet {
		c.R, c.G, c.B = uint8(p.red), uint8(p.green), uint8(p.blue)
	} else {
		c.Auto = true
	}
	p.doc.Colors = append(p.doc.Colors, c)
	p.colorCount++
	p.colorSet = false
	p.red, p.green, p.blue = 0, 0, 0
}

func clampByte(n int) int {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return n
}

// decodeRaw decodes raw text bytes. Valid UTF-8 is kept; anything else is
// read as code page bytes.
func decodeRaw(s string, cp int) string {
	if utf8.ValidString(s) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		sb.WriteRune(encoding.DecodeANSI(s[i], cp))
	}
	return sb.String()
}
