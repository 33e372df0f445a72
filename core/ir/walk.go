package ir

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Path locates a block inside a document. Top-level blocks have a one
// element path; blocks in table cells append row, cell and block indices.
type Path []int

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return "/" + strings.Join(parts, "/")
}

// WalkFunc is called for every block. Returning false skips the children of
// a table block.
type WalkFunc func(path Path, b *Block) bool

// Walk visits every block depth-first, including blocks inside table cells.
// The callback may modify the block in place.
func Walk(blocks []Block, fn WalkFunc) {
	walk(blocks, nil, fn)
}

func walk(blocks []Block, prefix Path, fn WalkFunc) {
	for i := range blocks {
		path := append(append(Path(nil), prefix...), i)
		b := &blocks[i]
		if !fn(path, b) || b.Kind != KindTable {
			continue
		}
		for r := range b.Rows {
			for c := range b.Rows[r].Cells {
				walk(b.Rows[r].Cells[c].Blocks, append(append(Path(nil), path...), r, c), fn)
			}
		}
	}
}

// MapRuns replaces every run in the document with fn(kind, run).
func MapRuns(d *Document, fn func(kind BlockKind, r Run) Run) {
	Walk(d.Blocks, func(_ Path, b *Block) bool {
		for i := range b.Runs {
			b.Runs[i] = fn(b.Kind, b.Runs[i])
		}
		return true
	})
}

// CountRuns returns the number of runs in the document.
func CountRuns(d *Document) int {
	n := 0
	Walk(d.Blocks, func(_ Path, b *Block) bool {
		n += len(b.Runs)
		return true
	})
	return n
}

// PlainText returns the document text without formatting. Blocks are
// separated by blank lines and table cells by tabs.
func PlainText(d *Document) string {
	var sb strings.Builder
	for i := range d.Blocks {
		b := &d.Blocks[i]
		if b.Kind == KindRule {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		b.writeText(&sb)
	}
	return sb.String()
}

// StripFormatting resets every run to unformatted text. Code runs keep their
// code flag since it changes meaning, not appearance.
func StripFormatting(d *Document) {
	MapRuns(d, func(_ BlockKind, r Run) Run {
		a := DefaultAttrs()
		a.Code = r.Attrs.Code
		return r.With(a)
	})
}

// MergeRuns joins adjacent runs with identical attributes in every block.
func MergeRuns(d *Document) {
	Walk(d.Blocks, func(_ Path, b *Block) bool {
		b.Runs = mergeRuns(b.Runs)
		return true
	})
}

func mergeRuns(runs []Run) []Run {
	if len(runs) < 2 {
		return runs
	}
	out := make([]Run, 0, len(runs))
	var text strings.Builder
	var attrs Attrs
	flush := func() {
		if text.Len() > 0 {
			out = append(out, Run{Text: text.String(), Attrs: attrs})
			text.Reset()
		}
	}
	for _, r := range runs {
		if r.Text == "" {
			continue
		}
		if text.Len() > 0 && r.Attrs != attrs {
			flush()
		}
		attrs = r.Attrs
		text.WriteString(r.Text)
	}
	flush()
	if len(out) == 0 {
		return runs[:1]
	}
	return out
}

// SplitRuns splits every run longer than limit bytes into several runs with
// the same attributes. Splits fall on rune boundaries.
func SplitRuns(runs []Run, limit int) []Run {
	if limit <= 0 {
		return runs
	}
	long := false
	for _, r := range runs {
		if len(r.Text) > limit {
			long = true
			break
		}
	}
	if !long {
		return runs
	}
	out := make([]Run, 0, len(runs)+1)
	for _, r := range runs {
		s := r.Text
		for len(s) > limit {
			n := limit
			for n > 0 && !utf8.RuneStart(s[n]) {
				n--
			}
			if n == 0 {
				_, n = utf8.DecodeRuneInString(s)
			}
			out = append(out, r.WithText(s[:n]))
			s = s[n:]
		}
		out = append(out, r.WithText(s))
	}
	return out
}

// PadRows appends empty cells to every row shorter than width and returns
// the indices of the rows it padded.
func (b *Block) PadRows(width int) []int {
	var padded []int
	for i := range b.Rows {
		if n := len(b.Rows[i].Cells); n < width {
			b.Rows[i].Cells = append(b.Rows[i].Cells, make([]Cell, width-n)...)
			padded = append(padded, i)
		}
	}
	return padded
}

// Ragged reports whether the rows of a table differ in length.
func (b *Block) Ragged() bool {
	w := b.Columns()
	for _, r := range b.Rows {
		if len(r.Cells) != w {
			return true
		}
	}
	return false
}
