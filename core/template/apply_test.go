package template

import (
	"reflect"
	"testing"

	"github.com/FocuswithJustin/LegacyBridge/core/ir"
)

func sampleDoc() *ir.Document {
	doc := ir.NewDocument(ir.FormatMarkdown)
	doc.Blocks = []ir.Block{
		ir.Heading(1, ir.Text("Status")),
		ir.Paragraph(ir.Text("Prepared for {{company}} by {{author}}.")),
	}
	return doc
}

func TestApplyMemo(t *testing.T) {
	doc := sampleDoc()
	out, err := Default().Apply(doc, "memo", map[string]string{"company": "Globex"})
	if err != nil {
		t.Fatal(err)
	}

	if len(doc.Blocks) != 2 || len(doc.Meta.AppliedTemplates) != 0 {
		t.Fatal("Apply modified its input")
	}
	// header: paragraph + rule, body: 2 blocks, footer: rule + paragraph
	if len(out.Blocks) != 6 {
		t.Fatalf("got %d blocks, want 6", len(out.Blocks))
	}
	for _, i := range []int{0, 1, 4, 5} {
		if out.Blocks[i].Origin != "memo" {
			t.Errorf("block %d origin = %q, want memo", i, out.Blocks[i].Origin)
		}
	}
	for _, i := range []int{2, 3} {
		if out.Blocks[i].Origin != "" {
			t.Errorf("body block %d origin = %q", i, out.Blocks[i].Origin)
		}
	}

	if got := out.Blocks[0].Text(); got != "Globex - Internal Memorandum" {
		t.Errorf("header text = %q", got)
	}
	if got := out.Blocks[3].Text(); got != "Prepared for Globex by {{author}}." {
		t.Errorf("body text = %q", got)
	}
	if got := out.Blocks[5].Text(); got != "Confidential" {
		t.Errorf("footer text = %q", got)
	}
	if !reflect.DeepEqual(out.Meta.AppliedTemplates, []string{"memo"}) {
		t.Errorf("AppliedTemplates = %v", out.Meta.AppliedTemplates)
	}
}

func TestApplyStyles(t *testing.T) {
	out, err := Default().Apply(sampleDoc(), "memo", nil)
	if err != nil {
		t.Fatal(err)
	}
	heading := out.Blocks[2].Runs[0]
	if !heading.Attrs.Bold {
		t.Error("heading run not bold")
	}
	font, ok := out.Font(heading.Attrs.Font)
	if !ok || font.Name != "Arial" || font.Family != "fswiss" {
		t.Errorf("heading font = %+v, %v", font, ok)
	}
	color, ok := out.Color(heading.Attrs.Color)
	if !ok || color.R != 0x1F || color.G != 0x38 || color.B != 0x64 {
		t.Errorf("heading color = %+v, %v", color, ok)
	}

	para := out.Blocks[3].Runs[0]
	if para.Attrs.Size != 22 {
		t.Errorf("paragraph size = %d, want 22 half-points", para.Attrs.Size)
	}
	if para.Attrs.Font != heading.Attrs.Font {
		t.Error("same font added twice")
	}
	if got := out.Blocks[3].Text(); got != "Prepared for ACME Corporation by {{author}}." {
		t.Errorf("default variable not used: %q", got)
	}
}

func TestApplyKeepsCodeFont(t *testing.T) {
	doc := ir.NewDocument(ir.FormatMarkdown)
	code := ir.Text("x := 1")
	code.Attrs.Code = true
	doc.Blocks = []ir.Block{ir.Paragraph(ir.Text("run "), code)}

	out, err := Default().Apply(doc, "memo", nil)
	if err != nil {
		t.Fatal(err)
	}
	runs := out.Blocks[2].Runs
	if runs[0].Attrs.Font == ir.NoFont {
		t.Error("plain run did not get the template font")
	}
	if runs[1].Attrs.Font != ir.NoFont {
		t.Error("code run lost its font")
	}
}

func TestApplyIdempotent(t *testing.T) {
	vars := map[string]string{"title": "Q3", "date": "2024-10-01"}
	once, err := Default().Apply(sampleDoc(), "report", vars)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Default().Apply(once, "report", vars)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(once.Blocks, twice.Blocks) {
		t.Errorf("re-applying changed blocks:\n%s\n---\n%s", ir.PlainText(once), ir.PlainText(twice))
	}
	if !reflect.DeepEqual(once.Fonts, twice.Fonts) || !reflect.DeepEqual(once.Colors, twice.Colors) {
		t.Error("re-applying changed font or color tables")
	}
	if len(twice.Meta.AppliedTemplates) != 1 {
		t.Errorf("AppliedTemplates = %v", twice.Meta.AppliedTemplates)
	}
}

func TestApplyIdempotentWithoutOrigins(t *testing.T) {
	vars := map[string]string{"company": "Globex"}
	once, err := Default().Apply(sampleDoc(), "memo", vars)
	if err != nil {
		t.Fatal(err)
	}
	// A document read back from its serialized form carries no origins.
	parsed := once.Clone()
	for i := range parsed.Blocks {
		parsed.Blocks[i].Origin = ""
	}
	twice, err := Default().Apply(parsed, "memo", vars)
	if err != nil {
		t.Fatal(err)
	}
	if len(twice.Blocks) != len(once.Blocks) || ir.PlainText(twice) != ir.PlainText(once) {
		t.Errorf("re-applying duplicated content:\n%s\n---\n%s", ir.PlainText(once), ir.PlainText(twice))
	}

	// Different variables are different visible content.
	other, err := Default().Apply(parsed, "memo", map[string]string{"company": "Initech"})
	if err != nil {
		t.Fatal(err)
	}
	if len(other.Blocks) != len(once.Blocks)+2 {
		t.Errorf("got %d blocks, want the old header kept: %s", len(other.Blocks), ir.PlainText(other))
	}
}

func TestApplyTableStyle(t *testing.T) {
	doc := ir.NewDocument(ir.FormatRTF)
	doc.Blocks = []ir.Block{{
		Kind: ir.KindTable,
		Rows: []ir.Row{{Cells: []ir.Cell{
			{Blocks: []ir.Block{ir.Paragraph(ir.Text("a"))}},
			{Blocks: []ir.Block{ir.Paragraph(ir.Text("b"))}},
		}}},
	}}
	out, err := Default().Apply(doc, "report", nil)
	if err != nil {
		t.Fatal(err)
	}
	var table *ir.Block
	for i := range out.Blocks {
		if out.Blocks[i].Kind == ir.KindTable {
			table = &out.Blocks[i]
		}
	}
	if table == nil {
		t.Fatal("table missing")
	}
	cell := table.Rows[0].Cells[1].Blocks[0].Runs[0]
	if cell.Attrs.Size != 20 {
		t.Errorf("cell size = %d, want 20", cell.Attrs.Size)
	}
}

func TestApplyUnknownTemplate(t *testing.T) {
	if _, err := NewRegistry(0).Apply(sampleDoc(), "missing", nil); !IsNotFound(err) {
		t.Errorf("Apply() error = %v, want not found", err)
	}
}

func TestFontFamily(t *testing.T) {
	tests := map[string]string{"": "fnil", "swiss": "fswiss", "FROMAN": "froman", "fmodern": "fmodern"}
	for in, want := range tests {
		if got := fontFamily(in); got != want {
			t.Errorf("fontFamily(%q) = %q, want %q", in, got, want)
		}
	}
}
