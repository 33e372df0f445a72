package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/template"
	"github.com/FocuswithJustin/LegacyBridge/core/validate"
)

func newPipeline(t *testing.T, edit func(*Config)) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	if edit != nil {
		edit(&cfg)
	}
	return New(cfg, nil)
}

func wantKind(t *testing.T, err error, kind errors.Kind) *errors.ConversionError {
	t.Helper()
	ce, ok := errors.AsConversion(err)
	if !ok || ce.Kind != kind {
		t.Fatalf("error = %v, want %s error", err, kind)
	}
	return ce
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"rtf_to_md", DirRTFToMarkdown, false},
		{"RTF-to-Markdown", DirRTFToMarkdown, false},
		{"rtf2md", DirRTFToMarkdown, false},
		{"md_to_rtf", DirMarkdownToRTF, false},
		{" markdown_to_rtf ", DirMarkdownToRTF, false},
		{"md2rtf", DirMarkdownToRTF, false},
		{"rtf_to_html", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDirection(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDirection(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if DirRTFToMarkdown.Source() != ir.FormatRTF || DirRTFToMarkdown.Target() != ir.FormatMarkdown {
		t.Error("rtf_to_md formats wrong")
	}
	if DirMarkdownToRTF.Source() != ir.FormatMarkdown || DirMarkdownToRTF.Target() != ir.FormatRTF {
		t.Error("md_to_rtf formats wrong")
	}
}

func TestStageTransitions(t *testing.T) {
	allowed := [][2]Stage{
		{StageCreated, StageParsing},
		{StageParsing, StageValidating},
		{StageValidating, StageRecovering},
		{StageValidating, StageGenerating},
		{StageValidating, StageTemplateApplication},
		{StageRecovering, StageValidating},
		{StageRecovering, StageGenerating},
		{StageTemplateApplication, StageGenerating},
		{StageGenerating, StageCompleted},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s rejected", tr[0], tr[1])
		}
	}
	denied := [][2]Stage{
		{StageCreated, StageGenerating},
		{StageParsing, StageRecovering},
		{StageGenerating, StageValidating},
		{StageCompleted, StageParsing},
		{StageFailed, StageParsing},
	}
	for _, tr := range denied {
		if CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s allowed", tr[0], tr[1])
		}
	}
	if !StageCompleted.Terminal() || !StageFailed.Terminal() || StageGenerating.Terminal() {
		t.Error("Terminal() wrong")
	}
	if StageTemplateApplication.String() != "template_application" || Stage(42).String() != "stage(42)" {
		t.Error("String() wrong")
	}
}

func TestConfigSet(t *testing.T) {
	cfg := DefaultConfig()
	steps := []struct {
		key, value string
		wantErr    bool
	}{
		{OptStrictValidation, "true", false},
		{OptAutoRecovery, "0", false},
		{OptPreserveFormatting, "false", false},
		{OptLegacyCompatibility, "1", false},
		{OptTemplate, " memo ", false},
		{"var.company", "Globex", false},
		{OptStrictValidation, "maybe", true},
		{"colour", "red", true},
	}
	for _, s := range steps {
		err := cfg.Set(s.key, s.value)
		if (err != nil) != s.wantErr {
			t.Errorf("Set(%q, %q) error = %v", s.key, s.value, err)
		}
	}
	if !cfg.StrictValidation || cfg.AutoRecovery || cfg.PreserveFormatting || !cfg.LegacyCompatibility {
		t.Errorf("flags = %+v", cfg)
	}
	if cfg.Template != "memo" || cfg.TemplateVars["company"] != "Globex" {
		t.Errorf("template = %q vars = %v", cfg.Template, cfg.TemplateVars)
	}
}

func TestConfigDefaults(t *testing.T) {
	p := New(Config{Workers: 1000}, nil)
	cfg := p.Config()
	if cfg.Workers != maxWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, maxWorkers)
	}
	if cfg.Limits.MaxFileSize != 10<<20 || cfg.Limits.ProcessingTimeout != 30*time.Second {
		t.Errorf("Limits = %+v", cfg.Limits)
	}
	if p.Templates() != template.Default() {
		t.Error("nil registry did not select the default registry")
	}
}

func TestRTFToMarkdown(t *testing.T) {
	p := newPipeline(t, nil)
	input := `{\rtf1\ansi{\fonttbl{\f0 Times New Roman;}}{\info{\title Notes}}\f0 Hello \b world\b0\par}`

	res, err := p.RTFToMarkdown(context.Background(), []byte(input))
	if err != nil {
		t.Fatalf("RTFToMarkdown() error = %v", err)
	}
	if !strings.Contains(string(res.Output), "Hello **world**") {
		t.Errorf("output = %q", res.Output)
	}
	if res.Doc.Meta.OpenGroups != 0 {
		t.Errorf("OpenGroups = %d", res.Doc.Meta.OpenGroups)
	}

	rep := res.Report
	if rep.ID == "" || rep.Direction != "rtf_to_md" || rep.Stage != "completed" {
		t.Errorf("report = %+v", rep)
	}
	if rep.Outcome != report.OutcomeClean || !rep.Valid || len(rep.Actions) != 0 {
		t.Errorf("outcome = %s valid = %v actions = %v", rep.Outcome, rep.Valid, rep.Actions)
	}
	if rep.InputBytes != len(input) || rep.OutputBytes != len(res.Output) {
		t.Errorf("sizes = %d/%d", rep.InputBytes, rep.OutputBytes)
	}
	if rep.OutputBLAKE3 != ir.HashBytes(res.Output) {
		t.Error("digest does not match output")
	}
	if rep.LossClass == "" {
		t.Error("missing loss class")
	}
}

func TestBoldItalicRoundTrip(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	res, err := p.MarkdownToRTF(ctx, []byte("**bold** and *italic*"))
	if err != nil {
		t.Fatalf("MarkdownToRTF() error = %v", err)
	}
	rtfOut := string(res.Output)
	for _, want := range []string{`\b bold\b0`, `\i italic\i0`} {
		if !strings.Contains(rtfOut, want) {
			t.Errorf("RTF missing %q:\n%s", want, rtfOut)
		}
	}

	back, err := p.RTFToMarkdown(ctx, res.Output)
	if err != nil {
		t.Fatalf("RTFToMarkdown() error = %v", err)
	}
	var bold, italic bool
	for _, r := range back.Doc.Blocks[0].Runs {
		switch r.Text {
		case "bold":
			bold = r.Attrs.Bold && !r.Attrs.Italic
		case "italic":
			italic = r.Attrs.Italic && !r.Attrs.Bold
		}
	}
	if !bold || !italic {
		t.Errorf("runs = %+v", back.Doc.Blocks[0].Runs)
	}
	if !strings.Contains(string(back.Output), "**bold** and *italic*") {
		t.Errorf("markdown = %q", back.Output)
	}
}

func TestDeepNestingStrict(t *testing.T) {
	p := newPipeline(t, func(c *Config) {
		c.StrictValidation = true
		c.AutoRecovery = false
	})
	var sb strings.Builder
	sb.WriteString(`{\rtf1 `)
	sb.WriteString(strings.Repeat("x", 2<<20-30000))
	sb.WriteString(strings.Repeat("{", 10000))
	sb.WriteString(strings.Repeat("}", 10001))

	start := time.Now()
	res, err := p.RTFToMarkdown(context.Background(), []byte(sb.String()))
	wantKind(t, err, errors.KindLimit)
	if time.Since(start) > 30*time.Second {
		t.Error("conversion exceeded the processing timeout")
	}
	if res == nil || res.Report.Outcome != report.OutcomeFailed || res.Output != nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Report.FailedAt != "parsing" || res.Report.Stage != "failed" {
		t.Errorf("failed at %q, stage %q", res.Report.FailedAt, res.Report.Stage)
	}
}

func TestForbiddenControlWord(t *testing.T) {
	input := []byte(`{\rtf1 {\object secret} visible\par}`)

	strict := newPipeline(t, func(c *Config) { c.StrictValidation = true })
	res, err := strict.RTFToMarkdown(context.Background(), input)
	ce := wantKind(t, err, errors.KindSecurity)
	if ce.Word != "object" {
		t.Errorf("Word = %q", ce.Word)
	}
	if res.Report.Outcome != report.OutcomeFailed {
		t.Errorf("Outcome = %s", res.Report.Outcome)
	}

	lenient := newPipeline(t, nil)
	res, err = lenient.RTFToMarkdown(context.Background(), input)
	if err != nil {
		t.Fatalf("lenient error = %v", err)
	}
	out := string(res.Output)
	if strings.Contains(out, "secret") || !strings.Contains(out, "visible") {
		t.Errorf("output = %q", out)
	}
	found := false
	for _, a := range res.Report.Actions {
		if a.Kind == report.SkipToken && strings.Contains(a.Description, "object") {
			found = true
		}
	}
	if !found {
		t.Errorf("no skip action naming the word: %+v", res.Report.Actions)
	}
}

func TestRaggedMarkdownTable(t *testing.T) {
	p := newPipeline(t, nil)
	res, err := p.MarkdownToRTF(context.Background(), []byte("| a | b | c |\n| d | e |\n| f | g | h | i |\n"))
	if err != nil {
		t.Fatalf("MarkdownToRTF() error = %v", err)
	}
	tbl := res.Doc.Blocks[0]
	if tbl.Kind != ir.KindTable || len(tbl.Rows) != 3 {
		t.Fatalf("table = %+v", tbl)
	}
	for i, row := range tbl.Rows {
		if len(row.Cells) != 4 {
			t.Errorf("row %d has %d cells", i, len(row.Cells))
		}
	}
	n := 0
	for _, a := range res.Report.Actions {
		if a.Kind == report.InsertMissingDelimiter {
			n++
		}
	}
	if n != 3 {
		t.Errorf("got %d padding actions, want 3: %+v", n, res.Report.Actions)
	}
	if res.Report.Outcome != report.OutcomeRepaired {
		t.Errorf("Outcome = %s", res.Report.Outcome)
	}
}

func TestTemplateReapplyIdempotent(t *testing.T) {
	p := newPipeline(t, func(c *Config) {
		c.Template = "memo"
		c.TemplateVars = map[string]string{"company": "Globex"}
	})
	res, err := p.MarkdownToRTF(context.Background(), []byte("Quarterly numbers are in."))
	if err != nil {
		t.Fatalf("MarkdownToRTF() error = %v", err)
	}
	if !strings.Contains(string(res.Output), "Globex") {
		t.Errorf("output lacks header: %s", res.Output)
	}

	again, err := p.Templates().Apply(res.Doc, "memo", map[string]string{"company": "Globex"})
	if err != nil {
		t.Fatal(err)
	}
	if ir.PlainText(again) != ir.PlainText(res.Doc) || len(again.Blocks) != len(res.Doc.Blocks) {
		t.Errorf("re-apply changed content:\n%q\n%q", ir.PlainText(res.Doc), ir.PlainText(again))
	}
}

func TestTemplateReapplySerialized(t *testing.T) {
	p := newPipeline(t, nil)
	vars := map[string]string{"company": "Globex"}
	ctx := context.Background()

	for _, input := range []string{"Quarterly numbers are in.", `{\rtf1 Quarterly numbers are in.\par}`} {
		once, err := p.ApplyTemplate(ctx, []byte(input), "memo", vars)
		if err != nil {
			t.Fatalf("ApplyTemplate(%q) error = %v", input, err)
		}
		twice, err := p.ApplyTemplate(ctx, once.Output, "memo", vars)
		if err != nil {
			t.Fatalf("second ApplyTemplate(%q) error = %v", input, err)
		}
		for _, want := range []string{"Internal Memorandum", "Confidential"} {
			if n := strings.Count(string(twice.Output), want); n != 1 {
				t.Errorf("%q appears %d times after re-apply:\n%s", want, n, twice.Output)
			}
		}
	}
}

func TestMissingTemplate(t *testing.T) {
	p := newPipeline(t, func(c *Config) { c.Template = "nope" })
	res, err := p.MarkdownToRTF(context.Background(), []byte("text"))
	if !template.IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
	if res.Report.FailedAt != "template_application" {
		t.Errorf("FailedAt = %q", res.Report.FailedAt)
	}
}

func TestRecovery(t *testing.T) {
	input := []byte(`{\rtf1 Hello`)

	p := newPipeline(t, nil)
	res, err := p.RTFToMarkdown(context.Background(), input)
	if err != nil {
		t.Fatalf("RTFToMarkdown() error = %v", err)
	}
	if res.Report.Outcome != report.OutcomeRepaired {
		t.Errorf("Outcome = %s", res.Report.Outcome)
	}
	if len(res.Report.Actions) == 0 || res.Report.Actions[0].Kind != report.InsertMissingDelimiter {
		t.Errorf("Actions = %+v", res.Report.Actions)
	}
	if !res.Report.HasCode("parse_error") || !strings.Contains(string(res.Output), "Hello") {
		t.Errorf("report = %+v output = %q", res.Report, res.Output)
	}

	noRecovery := newPipeline(t, func(c *Config) { c.AutoRecovery = false })
	res, err = noRecovery.RTFToMarkdown(context.Background(), input)
	ce := wantKind(t, err, errors.KindSyntax)
	if ce.Missing != 1 {
		t.Errorf("Missing = %d", ce.Missing)
	}
	if res.Report.FailedAt != "validating" || len(res.Report.Actions) != 0 {
		t.Errorf("report = %+v", res.Report)
	}
}

func TestScriptInjection(t *testing.T) {
	input := []byte("[click](javascript:alert(1))")

	res, err := newPipeline(t, nil).MarkdownToRTF(context.Background(), input)
	if err != nil {
		t.Fatalf("lenient error = %v", err)
	}
	if !res.Report.HasCode("script_injection") {
		t.Error("missing script_injection finding")
	}

	strict := newPipeline(t, func(c *Config) { c.StrictValidation = true })
	_, err = strict.MarkdownToRTF(context.Background(), input)
	wantKind(t, err, errors.KindSecurity)
}

func TestInputTooLarge(t *testing.T) {
	p := newPipeline(t, func(c *Config) { c.Limits.MaxFileSize = 16 })
	res, err := p.MarkdownToRTF(context.Background(), []byte(strings.Repeat("a", 100)))
	wantKind(t, err, errors.KindLimit)
	if res.Report.FailedAt != "parsing" {
		t.Errorf("FailedAt = %q", res.Report.FailedAt)
	}
}

func TestPreserveFormattingOff(t *testing.T) {
	p := newPipeline(t, func(c *Config) { c.PreserveFormatting = false })
	res, err := p.MarkdownToRTF(context.Background(), []byte("**bold** text"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(res.Output)
	if strings.Contains(out, `\b bold`) || !strings.Contains(out, "bold text") {
		t.Errorf("output = %s", out)
	}
}

func TestLegacyCompatibility(t *testing.T) {
	p := newPipeline(t, func(c *Config) { c.LegacyCompatibility = true })
	ctx := context.Background()

	res, err := p.MarkdownToRTF(ctx, []byte("# Title\n\nBody"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(res.Output), "\r\n") {
		t.Error("RTF output lacks CRLF")
	}

	res, err = p.RTFToMarkdown(ctx, []byte(`{\rtf1 One\par Two\par}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(res.Output), "\r\n") {
		t.Error("Markdown output lacks CRLF")
	}
}

func TestConvertInvalidDirection(t *testing.T) {
	res, err := newPipeline(t, nil).Convert(context.Background(), "rtf_to_pdf", []byte("x"))
	if res != nil || err == nil {
		t.Errorf("Convert() = %v, %v", res, err)
	}
}

func TestConcurrentConversions(t *testing.T) {
	p := newPipeline(t, func(c *Config) { c.Template = "report" })
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			_, err := p.MarkdownToRTF(context.Background(), []byte("# Heading\n\n| a | b |\n| c | d |\n"))
			errs <- err
		}()
	}
	for i := 0; i < 16; i++ {
		if err := <-errs; err != nil {
			t.Errorf("conversion %d: %v", i, err)
		}
	}
}

func TestValidationErrorsLenientAndStrict(t *testing.T) {
	input := []byte("hello\x01world\n")
	ctx := context.Background()

	lenient := newPipeline(t, func(c *Config) { c.AutoRecovery = false })
	res, err := lenient.MarkdownToRTF(ctx, input)
	if err != nil {
		t.Fatalf("lenient error = %v", err)
	}
	if !res.Report.HasCode(validate.CodeInvalidText) || res.Report.Valid {
		t.Errorf("report = %+v", res.Report)
	}
	if len(res.Report.Actions) != 0 || res.Report.Stage != "completed" {
		t.Errorf("best-effort report = %+v", res.Report)
	}
	if !strings.Contains(string(res.Output), "hello") {
		t.Errorf("output = %q", res.Output)
	}

	repaired, err := newPipeline(t, nil).MarkdownToRTF(ctx, input)
	if err != nil {
		t.Fatalf("recovery error = %v", err)
	}
	if repaired.Report.Outcome != report.OutcomeRepaired {
		t.Errorf("Outcome = %s", repaired.Report.Outcome)
	}

	for _, autoRecover := range []bool{false, true} {
		strict := newPipeline(t, func(c *Config) {
			c.StrictValidation = true
			c.AutoRecovery = autoRecover
		})
		res, err := strict.MarkdownToRTF(ctx, input)
		if !errors.Is(err, errors.ErrInvalidInput) {
			t.Fatalf("strict (recovery %v) error = %v", autoRecover, err)
		}
		if res.Report.FailedAt != "validating" || res.Output != nil {
			t.Errorf("strict (recovery %v) report = %+v", autoRecover, res.Report)
		}
	}
}

func TestLargeFlatInputsBounded(t *testing.T) {
	const bound = 15 * time.Second
	tests := []struct {
		name  string
		dir   Direction
		input string
	}{
		{"markdown openers", DirMarkdownToRTF, strings.Repeat("*a ", 350000)},
		{"markdown lines", DirMarkdownToRTF, strings.Repeat("plain words on a line\n", 50000)},
		{"rtf hex escapes", DirRTFToMarkdown, `{\rtf1\ansi ` + strings.Repeat(`\'e9`, 400000) + `}`},
		{"rtf unicode escapes", DirRTFToMarkdown, `{\rtf1\uc1 ` + strings.Repeat(`\u8364?`, 200000) + `}`},
		{"rtf code lines", DirRTFToMarkdown, `{\rtf1{\fonttbl{\f0\fmodern Courier;}}\f0 ` + strings.Repeat(`x = 1\par `, 100000) + `}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, nil)
			start := time.Now()
			res, err := p.Convert(context.Background(), tt.dir, []byte(tt.input))
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			if d := time.Since(start); d > bound {
				t.Errorf("%d input bytes took %v", len(tt.input), d)
			}
			if len(res.Output) == 0 {
				t.Error("empty output")
			}
		})
	}
}

func TestInvalidStageTransition(t *testing.T) {
	c := newPipeline(t, nil).begin(context.Background(), "md_to_rtf", ir.FormatMarkdown, nil)
	defer c.cancel()

	if err := c.enter(StageGenerating); err == nil {
		t.Fatal("Created -> Generating accepted")
	}
	res, err := c.complete(ir.NewDocument(ir.FormatMarkdown), nil, ir.FormatRTF)
	if err == nil || res.Report.Outcome != report.OutcomeFailed {
		t.Errorf("complete() from Created = %+v, %v", res, err)
	}
}
