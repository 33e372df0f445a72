package ir

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
)

// Format identifies a document syntax.
type Format string

// Supported formats.
const (
	FormatRTF      Format = "rtf"
	FormatMarkdown Format = "markdown"
)

// ParseFormat parses a format name such as "rtf", "md" or "markdown".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rtf":
		return FormatRTF, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", errors.NewUnsupported("format", strconv.Quote(s))
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectFormat guesses the format of raw input. Anything that does not start
// with an RTF header is treated as Markdown.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte(`{\rtf`)) {
		return FormatRTF
	}
	return FormatMarkdown
}

// BlockKind is the variant tag of a Block.
type BlockKind int

// Block kinds.
const (
	KindParagraph BlockKind = iota
	KindHeading
	KindList
	KindTable
	KindCode
	KindQuote
	KindRule
)

var blockKindNames = [...]string{
	KindParagraph: "paragraph",
	KindHeading:   "heading",
	KindList:      "list",
	KindTable:     "table",
	KindCode:      "code",
	KindQuote:     "quote",
	KindRule:      "rule",
}

func (k BlockKind) String() string {
	if k >= 0 && int(k) < len(blockKindNames) {
		return blockKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseBlockKind parses a block kind name.
func ParseBlockKind(s string) (BlockKind, bool) {
	for i, name := range blockKindNames {
		if name == s {
			return BlockKind(i), true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (k BlockKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// NoFont marks a run that uses the document default font.
const NoFont = -1

// Attrs is the character formatting of a Run.
type Attrs struct {
	Bold      bool `json:"bold,omitempty"`
	Italic    bool `json:"italic,omitempty"`
	Underline bool `json:"underline,omitempty"`
	Strike    bool `json:"strike,omitempty"`
	Code      bool `json:"code,omitempty"`
	// Font is an index into Document.Fonts, or NoFont.
	Font int `json:"font"`
	// Size is in half-points; 0 means the default size.
	Size int `json:"size,omitempty"`
	// Color is an index into Document.Colors; 0 is the automatic color.
	Color int `json:"color,omitempty"`
}

// DefaultAttrs returns unformatted attributes.
func DefaultAttrs() Attrs {
	return Attrs{Font: NoFont}
}

// Plain reports whether a carries no formatting at all.
func (a Attrs) Plain() bool {
	return a == DefaultAttrs()
}

// Run is a span of text with uniform formatting. Runs are values.
type Run struct {
	Text  string `json:"text"`
	Attrs Attrs  `json:"attrs"`
}

// Text returns an unformatted run.
func Text(s string) Run {
	return Run{Text: s, Attrs: DefaultAttrs()}
}

// With returns a copy of r with the given attributes.
func (r Run) With(a Attrs) Run {
	r.Attrs = a
	return r
}

// WithText returns a copy of r with different text.
func (r Run) WithText(s string) Run {
	r.Text = s
	return r
}

// Cell is a table cell. It owns its own blocks.
type Cell struct {
	Blocks []Block `json:"blocks"`
}

// Row is a table row.
type Row struct {
	Cells []Cell `json:"cells"`
}

// Block is a structural unit of a document.
type Block struct {
	Kind BlockKind `json:"kind"`
	// Level is the heading level (1-6), the list nesting level (0-based) or
	// the quote nesting level (0-based).
	Level int `json:"level,omitempty"`
	// Ordered and Number describe list items.
	Ordered bool `json:"ordered,omitempty"`
	Number  int  `json:"number,omitempty"`
	// Lang is the info string of a code block.
	Lang string `json:"lang,omitempty"`
	Runs []Run  `json:"runs,omitempty"`
	Rows []Row  `json:"rows,omitempty"`
	// Origin names the template that created the block.
	Origin string `json:"origin,omitempty"`
}

// Paragraph builds a paragraph block.
func Paragraph(runs ...Run) Block {
	return Block{Kind: KindParagraph, Runs: runs}
}

// Heading builds a heading block.
func Heading(level int, runs ...Run) Block {
	return Block{Kind: KindHeading, Level: level, Runs: runs}
}

// Columns returns the width of a table, the length of its longest row.
func (b *Block) Columns() int {
	n := 0
	for _, r := range b.Rows {
		if len(r.Cells) > n {
			n = len(r.Cells)
		}
	}
	return n
}

// Text returns the concatenated run text of a block. Table cells are joined
// with tabs and rows with newlines.
func (b *Block) Text() string {
	var sb strings.Builder
	b.writeText(&sb)
	return sb.String()
}

func (b *Block) writeText(sb *strings.Builder) {
	if b.Kind == KindTable {
		for i, row := range b.Rows {
			if i > 0 {
				sb.WriteByte('\n')
			}
			for j, cell := range row.Cells {
				if j > 0 {
					sb.WriteByte('\t')
				}
				for k := range cell.Blocks {
					if k > 0 {
						sb.WriteByte(' ')
					}
					cell.Blocks[k].writeText(sb)
				}
			}
		}
		return
	}
	for _, r := range b.Runs {
		sb.WriteString(r.Text)
	}
}

// FontEntry is a font table entry.
type FontEntry struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Family string `json:"family,omitempty"`
}

// Monospace reports whether the font is a fixed-pitch font.
func (f FontEntry) Monospace() bool {
	if f.Family == "fmodern" {
		return true
	}
	name := strings.ToLower(f.Name)
	for _, m := range []string{"courier", "consolas", "mono", "fixedsys", "lucida console"} {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// ColorEntry is a color table entry. Index 0 is conventionally the
// automatic color.
type ColorEntry struct {
	Index int   `json:"index"`
	R     uint8 `json:"r"`
	G     uint8 `json:"g"`
	B     uint8 `json:"b"`
	Auto  bool  `json:"auto,omitempty"`
}

// Meta holds document-level information.
type Meta struct {
	SourceFormat Format `json:"source_format"`
	ByteLength   int    `json:"byte_length"`
	Truncated    bool   `json:"truncated,omitempty"`
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	// OpenGroups is the group depth left open when parsing stopped.
	OpenGroups int `json:"open_groups"`
	CodePage   int `json:"code_page,omitempty"`
	// Images counts pictures replaced by placeholders.
	Images           int      `json:"images,omitempty"`
	AppliedTemplates []string `json:"applied_templates,omitempty"`
}

// Document is the parsed form of one input.
type Document struct {
	Blocks []Block      `json:"blocks"`
	Fonts  []FontEntry  `json:"fonts,omitempty"`
	Colors []ColorEntry `json:"colors,omitempty"`
	Meta   Meta         `json:"meta"`
}

// NewDocument returns an empty document of the given source format.
func NewDocument(format Format) *Document {
	return &Document{Meta: Meta{SourceFormat: format}}
}

// Font looks up a font by index.
func (d *Document) Font(index int) (FontEntry, bool) {
	for _, f := range d.Fonts {
		if f.Index == index {
			return f, true
		}
	}
	return FontEntry{}, false
}

// Color looks up a color by index.
func (d *Document) Color(index int) (ColorEntry, bool) {
	for _, c := range d.Colors {
		if c.Index == index {
			return c, true
		}
	}
	return ColorEntry{}, false
}

// HasColor reports whether a run color index resolves. The automatic color
// always resolves.
func (d *Document) HasColor(index int) bool {
	if index == 0 {
		return true
	}
	_, ok := d.Color(index)
	return ok
}

// HasFont reports whether a run font index resolves.
func (d *Document) HasFont(index int) bool {
	if index == NoFont {
		return true
	}
	_, ok := d.Font(index)
	return ok
}

// AddFont returns the index of the named font, adding it when missing.
func (d *Document) AddFont(name, family string) int {
	for _, f := range d.Fonts {
		if strings.EqualFold(f.Name, name) {
			return f.Index
		}
	}
	idx := 0
	for _, f := range d.Fonts {
		if f.Index >= idx {
			idx = f.Index + 1
		}
	}
	d.Fonts = append(d.Fonts, FontEntry{Index: idx, Name: name, Family: family})
	return idx
}

// AddColor returns the index of the color, adding it when missing.
func (d *Document) AddColor(r, g, b uint8) int {
	if len(d.Colors) == 0 {
		d.Colors = append(d.Colors, ColorEntry{Index: 0, Auto: true})
	}
	idx := 0
	for _, c := range d.Colors {
		if !c.Auto && c.R == r && c.G == g && c.B == b {
			return c.Index
		}
		if c.Index >= idx {
			idx = c.Index + 1
		}
	}
	d.Colors = append(d.Colors, ColorEntry{Index: idx, R: r, G: g, B: b})
	return idx
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		Blocks: cloneBlocks(d.Blocks),
		Fonts:  append([]FontEntry(nil), d.Fonts...),
		Colors: append([]ColorEntry(nil), d.Colors...),
		Meta:   d.Meta,
	}
	out.Meta.AppliedTemplates = append([]string(nil), d.Meta.AppliedTemplates...)
	return out
}

func cloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b
		out[i].Runs = append([]Run(nil), b.Runs...)
		if b.Rows != nil {
			out[i].Rows = make([]Row, len(b.Rows))
			for j, row := range b.Rows {
				cells := make([]Cell, len(row.Cells))
				for k, c := range row.Cells {
					cells[k] = Cell{Blocks: cloneBlocks(c.Blocks)}
				}
				out[i].Rows[j] = Row{Cells: cells}
			}
		}
	}
	return out
}
