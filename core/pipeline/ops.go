package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/validate"
)

// Validate checks input without converting it. An empty format is
// detected from the content. The report is invalid when the input has
// structural errors; Limit and Security errors mark it failed. Nothing is
// repaired.
func (p *Pipeline) Validate(ctx context.Context, input []byte, format ir.Format) *report.Report {
	if ctx == nil {
		ctx = context.Background()
	}
	if format == "" {
		format = ir.DetectFormat(input)
	}
	start := time.Now()
	rep := report.New()
	rep.ID = uuid.NewString()
	rep.Direction = "validate_" + string(format)
	rep.InputBytes = len(input)
	rep.Stage = StageValidating.String()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Limits.ProcessingTimeout)
	defer cancel()

	finish := func(err error) *report.Report {
		if err != nil {
			rep.FailedAt = StageValidating.String()
			rep.Fail(err)
		}
		rep.Duration = time.Since(start)
		return rep
	}

	fs, err := validate.Pre(input, format, p.cfg.Limits, p.policy)
	if err != nil {
		return finish(err)
	}
	rep.Add(fs...)

	doc, err := p.parse(ctx, format, input, rep)
	if err != nil {
		ce, ok := errors.AsConversion(err)
		if !ok || !ce.Recoverable() {
			return finish(err)
		}
		rep.Addf(report.SeverityError, "parse_error", report.AtOffset(ce.Offset), "%s", ce.Message)
	}
	if doc != nil {
		rep.Add(validate.Post(doc, p.cfg.Limits)...)
	}
	return finish(nil)
}

// sameFormat labels a run whose input and output share a format.
func sameFormat(op string, format ir.Format) string {
	return op + "_" + string(format)
}

// ExtractPlainText returns the text of input without formatting. Blocks are
// separated by blank lines and table cells by tabs.
func (p *Pipeline) ExtractPlainText(ctx context.Context, input []byte) (*Result, error) {
	format := ir.DetectFormat(input)
	return p.run(ctx, sameFormat("extract_text", format), format, input, output{
		write: func(doc *ir.Document) ([]byte, error) {
			return []byte(ir.PlainText(doc)), nil
		},
	})
}

// ApplyTemplate applies the named template to input and writes the result
// in the input's format. vars override the template defaults.
func (p *Pipeline) ApplyTemplate(ctx context.Context, input []byte, name string, vars map[string]string) (*Result, error) {
	if _, err := p.templates.Get(name); err != nil {
		return nil, err
	}
	format := ir.DetectFormat(input)
	return p.run(ctx, sameFormat("apply_template", format), format, input, output{
		target:   format,
		template: name,
		vars:     vars,
		write: func(doc *ir.Document) ([]byte, error) {
			return p.generate(doc, format)
		},
	})
}

// NormalizeMarkdown rewrites Markdown in the generator's canonical form:
// ATX headings, "-" bullets, "**" and "*" emphasis, padded tables.
func (p *Pipeline) NormalizeMarkdown(ctx context.Context, input []byte) (*Result, error) {
	return p.roundTrip(ctx, "normalize", ir.FormatMarkdown, input)
}

// CleanRTF rewrites RTF keeping only the structure the document model
// carries. Forbidden control words, unknown destinations and embedded
// objects are dropped.
func (p *Pipeline) CleanRTF(ctx context.Context, input []byte) (*Result, error) {
	return p.roundTrip(ctx, "clean", ir.FormatRTF, input)
}

func (p *Pipeline) roundTrip(ctx context.Context, op string, format ir.Format, input []byte) (*Result, error) {
	return p.run(ctx, sameFormat(op, format), format, input, output{
		target: format,
		write: func(doc *ir.Document) ([]byte, error) {
			return p.generate(doc, format)
		},
	})
}

// ExtractTablesCSV writes every table of input as CSV. Tables are separated
// by an empty line; cell text is the plain text of the cell's blocks. A
// document without tables yields empty output.
func (p *Pipeline) ExtractTablesCSV(ctx context.Context, input []byte) (*Result, error) {
	format := ir.DetectFormat(input)
	return p.run(ctx, sameFormat("extract_tables", format), format, input, output{
		write: func(doc *ir.Document) ([]byte, error) {
			return tablesCSV(doc, p.cfg.Limits.MaxOutputSize)
		},
	})
}

func tablesCSV(doc *ir.Document, maxOutput int) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	tables := 0
	for i := range doc.Blocks {
		b := &doc.Blocks[i]
		if b.Kind != ir.KindTable {
			continue
		}
		if tables > 0 {
			w.Flush()
			buf.WriteByte('\n')
		}
		tables++
		for _, row := range b.Rows {
			record := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				record[j] = ir.PlainText(&ir.Document{Blocks: cell.Blocks})
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if maxOutput > 0 && buf.Len() > maxOutput {
			return nil, errors.NewAllocation("CSV output exceeds %d bytes", maxOutput)
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
