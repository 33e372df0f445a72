package rtf

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/LegacyBridge/core/encoding"
	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
)

// GenerateOptions configures RTF output.
type GenerateOptions struct {
	// Legacy writes cp1252 \'hh escapes where possible and CRLF line endings.
	Legacy bool
	// MaxOutput bounds the output size in bytes. Zero means unbounded.
	MaxOutput int
}

// headingSizes are the font sizes, in half-points, of heading levels 1-6.
var headingSizes = [...]int{0, 36, 32, 28, 26, 24, 22}

const (
	defaultFontName = "Times New Roman"
	monoFontName    = "Courier New"
	listIndent      = 360
	quoteIndent     = 720
	tableCellWidth  = 2000
)

type generator struct {
	opts  GenerateOptions
	esc   encoding.RTFOptions
	sb    strings.Builder
	nl    string
	fonts []ir.FontEntry
	mono  int
	deff  int
}

// Generate writes doc as RTF.
func Generate(doc *ir.Document, opts GenerateOptions) ([]byte, error) {
	g := &generator{
		opts: opts,
		esc:  encoding.RTFOptions{Legacy: opts.Legacy, CodePage: encoding.DefaultCodePage},
		nl:   "\n",
	}
	if opts.Legacy {
		g.nl = "\r\n"
	}
	g.prepareFonts(doc)

	g.sb.WriteString(`{\rtf1\ansi\ansicpg1252\deff`)
	g.sb.WriteString(strconv.Itoa(g.deff))
	g.sb.WriteString(g.nl)
	g.writeFontTable()
	g.writeColorTable(doc)
	g.writeInfo(doc)

	for i := range doc.Blocks {
		g.block(&doc.Blocks[i])
		if err := g.checkSize(); err != nil {
			return nil, err
		}
	}
	g.sb.WriteString("}")
	if err := g.checkSize(); err != nil {
		return nil, err
	}
	return []byte(g.sb.String()), nil
}

func (g *generator) checkSize() error {
	if g.opts.MaxOutput > 0 && g.sb.Len() > g.opts.MaxOutput {
		return errors.NewAllocation("RTF output exceeds %d bytes", g.opts.MaxOutput)
	}
	return nil
}

// prepareFonts copies the document font table, adding a default font and a
// monospace font for code.
func (g *generator) prepareFonts(doc *ir.Document) {
	g.fonts = append([]ir.FontEntry(nil), doc.Fonts...)
	if len(g.fonts) == 0 {
		g.fonts = append(g.fonts, ir.FontEntry{Index: 0, Name: defaultFontName, Family: "froman"})
	}
	g.deff = g.fonts[0].Index
	g.mono = -1
	next := 0
	for _, f := range g.fonts {
		if f.Monospace() && g.mono < 0 {
			g.mono = f.Index
		}
		if f.Index >= next {
			next = f.Index + 1
		}
	}
	if g.mono < 0 {
		g.mono = next
		g.fonts = append(g.fonts, ir.FontEntry{Index: next, Name: monoFontName, Family: "fmodern"})
	}
}

func (g *generator) writeFontTable() {
	g.sb.WriteString(`{\fonttbl`)
	for _, f := range g.fonts {
		g.sb.WriteString(`{\f`)
		g.sb.WriteString(strconv.Itoa(f.Index))
		family := f.Family
		if family == "" {
			family = "fnil"
		}
		g.sb.WriteString(`\` + family + " ")
		g.sb.WriteString(encoding.EscapeRTF(f.Name, g.esc))
		g.sb.WriteString(";}")
	}
	g.sb.WriteString("}")
	g.sb.WriteString(g.nl)
}

func (g *generator) writeColorTable(doc *ir.Document) {
	if len(doc.Colors) == 0 {
		return
	}
	last := 0
	for _, c := range doc.Colors {
		if c.Index > last {
			last = c.Index
		}
	}
	byIndex := make([]*ir.ColorEntry, last+1)
	for i := range doc.Colors {
		byIndex[doc.Colors[i].Index] = &doc.Colors[i]
	}
	g.sb.WriteString(`{\colortbl`)
	for _, c := range byIndex {
		if c != nil && !c.Auto {
			g.sb.WriteString(`\red` + strconv.Itoa(int(c.R)) + `\green` + strconv.Itoa(int(c.G)) + `\blue` + strconv.Itoa(int(c.B)))
		}
		g.sb.WriteString(";")
	}
	g.sb.WriteString("}")
	g.sb.WriteString(g.nl)
}

func (g *generator) writeInfo(doc *ir.Document) {
	if doc.Meta.Title == "" && doc.Meta.Author == "" {
		return
	}
	g.sb.WriteString(`{\info`)
	if doc.Meta.Title != "" {
		g.sb.WriteString(`{\title ` + encoding.EscapeRTF(doc.Meta.Title, g.esc) + "}")
	}
	if doc.Meta.Author != "" {
		g.sb.WriteString(`{\author ` + encoding.EscapeRTF(doc.Meta.Author, g.esc) + "}")
	}
	g.sb.WriteString("}")
	g.sb.WriteString(g.nl)
}

func (g *generator) block(b *ir.Block) {
	switch b.Kind {
	case ir.KindHeading:
		level := b.Level
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		g.sb.WriteString(`\pard\plain\outlinelevel` + strconv.Itoa(level-1) + `\fs` + strconv.Itoa(headingSizes[level]) + " ")
		g.runs(b.Runs, ir.Attrs{Font: ir.NoFont, Size: headingSizes[level]})
		g.endPar()
	case ir.KindList:
		left := listIndent * (b.Level + 1)
		g.sb.WriteString(`\pard\plain\ilvl` + strconv.Itoa(b.Level) + `\li` + strconv.Itoa(left) + `\fi-` + strconv.Itoa(listIndent))
		if b.Ordered {
			g.sb.WriteString(`{\listtext ` + strconv.Itoa(b.Number) + `.\tab}`)
		} else {
			g.sb.WriteString(`{\listtext \bullet\tab}`)
		}
		g.runs(b.Runs, ir.DefaultAttrs())
		g.endPar()
	case ir.KindQuote:
		g.sb.WriteString(`\pard\plain\li` + strconv.Itoa(quoteIndent) + `\ri` + strconv.Itoa(quoteIndent) + " ")
		g.runs(b.Runs, ir.DefaultAttrs())
		g.endPar()
	case ir.KindCode:
		g.sb.WriteString(`\pard\plain\f` + strconv.Itoa(g.mono) + " ")
		g.sb.WriteString(encoding.EscapeRTF(b.Text(), g.esc))
		g.endPar()
	case ir.KindRule:
		g.sb.WriteString(`\pard\plain\brdrb\brdrs\brdrw10\brsp20 \par` + g.nl)
	case ir.KindTable:
		g.table(b)
	default:
		g.sb.WriteString(`\pard\plain `)
		g.runs(b.Runs, ir.DefaultAttrs())
		g.endPar()
	}
}

func (g *generator) endPar() {
	g.sb.WriteString(`\par` + g.nl)
}

func (g *generator) table(b *ir.Block) {
	width := b.Columns()
	for _, row := range b.Rows {
		g.sb.WriteString(`\trowd\trgaph108`)
		for j := 0; j < width; j++ {
			g.sb.WriteString(`\cellx` + strconv.Itoa((j+1)*tableCellWidth))
		}
		g.sb.WriteString(g.nl)
		for j := 0; j < width; j++ {
			g.sb.WriteString(`\pard\plain\intbl `)
			if j < len(row.Cells) {
				for k, cb := range row.Cells[j].Blocks {
					if k > 0 {
						g.sb.WriteString(`\line `)
					}
					if cb.Kind == ir.KindCode {
						g.sb.WriteString(`\f` + strconv.Itoa(g.mono) + " " + encoding.EscapeRTF(cb.Text(), g.esc) + `\f` + strconv.Itoa(g.deff) + " ")
						continue
					}
					g.runs(cb.Runs, ir.DefaultAttrs())
				}
			}
			g.sb.WriteString(`\cell` + g.nl)
		}
		g.sb.WriteString(`\row` + g.nl)
	}
	g.sb.WriteString(`\pard` + g.nl)
}

// runs writes runs, emitting only the control words that change between
// consecutive runs and resetting to base at the end.
func (g *generator) runs(runs []ir.Run, base ir.Attrs) {
	cur := base
	for _, r := range runs {
		next := r.Attrs
		if next.Size == 0 {
			next.Size = base.Size
		}
		g.transition(cur, next)
		g.sb.WriteString(encoding.EscapeRTF(r.Text, g.esc))
		cur = next
	}
	g.transition(cur, base)
}

func (g *generator) fontOf(a ir.Attrs) int {
	if a.Code {
		return g.mono
	}
	if a.Font == ir.NoFont {
		return g.deff
	}
	return a.Font
}

func (g *generator) transition(from, to ir.Attrs) {
	var ctl []string
	toggle := func(was, is bool, on, off string) {
		if was == is {
			return
		}
		if is {
			ctl = append(ctl, on)
		} else {
			ctl = append(ctl, off)
		}
	}
	toggle(from.Bold, to.Bold, `\b`, `\b0`)
	toggle(from.Italic, to.Italic, `\i`, `\i0`)
	toggle(from.Underline, to.Underline, `\ul`, `\ulnone`)
	toggle(from.Strike, to.Strike, `\strike`, `\strike0`)
	if f := g.fontOf(to); f != g.fontOf(from) {
		ctl = append(ctl, `\f`+strconv.Itoa(f))
	}
	if from.Size != to.Size {
		size := to.Size
		if size == 0 {
			size = 24
		}
		ctl = append(ctl, `\fs`+strconv.Itoa(size))
	}
	if from.Color != to.Color {
		ctl = append(ctl, `\cf`+strconv.Itoa(to.Color))
	}
	if len(ctl) == 0 {
		return
	}
	g.sb.WriteString(strings.Join(ctl, ""))
	g.sb.WriteByte(' ')
}
