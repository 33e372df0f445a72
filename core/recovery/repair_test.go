package recovery

import (
	"testing"

	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
	"github.com/FocuswithJustin/LegacyBridge/core/validate"
)

func TestRepairDocument(t *testing.T) {
	dangling := ir.DefaultAttrs()
	dangling.Font = 4
	dangling.Color = 7
	doc := &ir.Document{Blocks: []ir.Block{
		ir.Heading(9, ir.Text("Deep")),
		ir.Paragraph(ir.Text("bad\x00text").With(dangling)),
		{Kind: ir.KindTable, Rows: []ir.Row{
			{Cells: make([]ir.Cell, 3)},
			{Cells: make([]ir.Cell, 1)},
		}},
	}}
	limits := security.DefaultLimits()

	before := validate.Post(doc, limits)
	if len(before) == 0 {
		t.Fatal("expected findings before repair")
	}

	actions := RepairDocument(doc, limits)
	count := map[report.ActionKind]int{}
	for _, a := range actions {
		count[a.Kind]++
		if !a.Success || a.Offset != -1 {
			t.Errorf("action = %+v", a)
		}
	}
	want := map[report.ActionKind]int{
		report.BestEffortAccept:       1,
		report.SkipToken:              2,
		report.ReplaceInvalidByte:     1,
		report.InsertMissingDelimiter: 1,
	}
	for k, n := range want {
		if count[k] != n {
			t.Errorf("%s actions = %d, want %d", k, count[k], n)
		}
	}

	for _, f := range validate.Post(doc, limits) {
		if f.Severity == report.SeverityError {
			t.Errorf("finding after repair: %s", f)
		}
	}
	if doc.Blocks[0].Level != 6 {
		t.Errorf("heading level = %d, want 6", doc.Blocks[0].Level)
	}
}

func TestRepairDocumentTableLimits(t *testing.T) {
	limits := security.DefaultLimits()
	limits.MaxTableRows = 2
	limits.MaxTableColumns = 2
	doc := &ir.Document{Blocks: []ir.Block{{Kind: ir.KindTable, Rows: []ir.Row{
		{Cells: make([]ir.Cell, 4)}, {Cells: make([]ir.Cell, 1)}, {Cells: make([]ir.Cell, 2)},
	}}}}

	RepairDocument(doc, limits)
	tbl := doc.Blocks[0]
	if len(tbl.Rows) != 2 || tbl.Columns() != 2 || tbl.Ragged() {
		t.Errorf("table = %d rows x %d columns, ragged %v", len(tbl.Rows), tbl.Columns(), tbl.Ragged())
	}
}

func TestRepairCleanDocument(t *testing.T) {
	doc := &ir.Document{Blocks: []ir.Block{ir.Paragraph(ir.Text("fine"))}}
	if actions := RepairDocument(doc, security.DefaultLimits()); len(actions) != 0 {
		t.Errorf("actions = %+v, want none", actions)
	}
}
