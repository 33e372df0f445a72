package recovery

import (
	"fmt"

	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
	"github.com/FocuswithJustin/LegacyBridge/core/validate"
)

// RepairDocument fixes the document-level problems post-validation reports
// as errors: ragged tables are padded, oversized tables are cut to the
// limits, dangling font and color references are dropped, heading levels are
// clamped and invalid run text is cleaned. It returns one action per repair.
func RepairDocument(doc *ir.Document, limits security.Limits) []report.RecoveryAction {
	limits = limits.Normalize()
	var actions []report.RecoveryAction
	record := func(kind report.ActionKind, p ir.Path, format string, args ...any) {
		actions = append(actions, report.RecoveryAction{
			Kind:        kind,
			Description: fmt.Sprintf("%s: ", p) + fmt.Sprintf(format, args...),
			Offset:      -1,
			Success:     true,
		})
	}

	ir.Walk(doc.Blocks, func(p ir.Path, b *ir.Block) bool {
		switch b.Kind {
		case ir.KindHeading:
			if b.Level < 1 || b.Level > 6 {
				level := min(max(b.Level, 1), 6)
				record(report.BestEffortAccept, p, "clamped heading level %d to %d", b.Level, level)
				b.Level = level
			}
		case ir.KindTable:
			if len(b.Rows) > limits.MaxTableRows {
				record(report.TruncateAtLimit, p, "dropped %d table rows over the limit", len(b.Rows)-limits.MaxTableRows)
				b.Rows = b.Rows[:limits.MaxTableRows]
			}
			if w := b.Columns(); w > limits.MaxTableColumns {
				for i := range b.Rows {
					if len(b.Rows[i].Cells) > limits.MaxTableColumns {
						b.Rows[i].Cells = b.Rows[i].Cells[:limits.MaxTableColumns]
					}
				}
				record(report.TruncateAtLimit, p, "cut table from %d to %d columns", w, limits.MaxTableColumns)
			}
			w := b.Columns()
			for _, i := range b.PadRows(w) {
				record(report.InsertMissingDelimiter, p, "padded table row %d to %d cells", i, w)
			}
		}

		for i := range b.Runs {
			r := &b.Runs[i]
			if !doc.HasFont(r.Attrs.Font) {
				record(report.SkipToken, p, "dropped dangling font reference %d", r.Attrs.Font)
				r.Attrs.Font = ir.NoFont
			}
			if !doc.HasColor(r.Attrs.Color) {
				record(report.SkipToken, p, "dropped dangling color reference %d", r.Attrs.Color)
				r.Attrs.Color = 0
			}
			if clean := validate.CleanText(r.Text); clean != r.Text {
				record(report.ReplaceInvalidByte, p, "replaced invalid characters in run %d", i)
				r.Text = clean
			}
		}
		if len(b.Runs) > 0 {
			b.Runs = ir.SplitRuns(b.Runs, limits.MaxTextChunk)
		}
		return true
	})
	return actions
}
