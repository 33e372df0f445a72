package recovery

import (
	"context"
	"strings"
	"testing"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/markdown"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/rtf"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
)

func rtfEngine(limits security.Limits) *Engine {
	return &Engine{
		Format: ir.FormatRTF,
		Parse: func(ctx context.Context, data []byte) (*ir.Document, error) {
			return rtf.Parse(ctx, data, rtf.Options{Limits: limits})
		},
	}
}

func recoverRTF(t *testing.T, input string) (*Result, error) {
	t.Helper()
	e := rtfEngine(security.DefaultLimits())
	doc, err := e.Parse(context.Background(), []byte(input))
	if err == nil {
		t.Fatalf("Parse(%q) succeeded, want an error", input)
	}
	return e.Recover(context.Background(), []byte(input), doc, err)
}

func kinds(as []report.RecoveryAction) []report.ActionKind {
	out := make([]report.ActionKind, len(as))
	for i, a := range as {
		out[i] = a.Kind
	}
	return out
}

func TestRecoverRTF(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      []report.ActionKind
		text      string
		truncated bool
	}{
		{"one missing brace", `{\rtf1 Hello`, []report.ActionKind{report.InsertMissingDelimiter}, "Hello", false},
		{"two missing braces", `{\rtf1 {\b Hello`, []report.ActionKind{report.TruncateAtLimit}, "Hello", true},
		{"unmatched brace", `{\rtf1 a}}`, []report.ActionKind{report.SkipToken}, "a", false},
		{"bad hex escape", `{\rtf1 a\'zzb}`, []report.ActionKind{report.SkipToken}, "ab", false},
		{"control byte", "{\\rtf1 a\x01b}", []report.ActionKind{report.ReplaceInvalidByte}, "a" + string(rune(0xFFFD)) + "b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := recoverRTF(t, tt.input)
			if err != nil {
				t.Fatalf("Recover() error = %v, actions %+v", err, res.Actions)
			}
			got := kinds(res.Actions)
			if len(got) != len(tt.want) {
				t.Fatalf("actions = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("action %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
			if !res.Actions[len(res.Actions)-1].Success {
				t.Error("final action not marked successful")
			}
			if text := ir.PlainText(res.Doc); strings.TrimSpace(text) != tt.text {
				t.Errorf("text = %q, want %q", text, tt.text)
			}
			if res.Doc.Meta.Truncated != tt.truncated {
				t.Errorf("Truncated = %v, want %v", res.Doc.Meta.Truncated, tt.truncated)
			}
		})
	}
}

func TestRecoverRepeatedSkips(t *testing.T) {
	res, err := recoverRTF(t, `{\rtf1 a}}b}`)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if len(res.Actions) != 2 || res.Actions[0].Success || !res.Actions[1].Success {
		t.Errorf("actions = %+v", res.Actions)
	}
	if string(res.Input) != `{\rtf1 a}b` {
		t.Errorf("repaired input = %q", res.Input)
	}
}

func TestRecoverNeverRecovers(t *testing.T) {
	limits := security.DefaultLimits()
	limits.MaxNestingDepth = 3
	e := rtfEngine(limits)
	input := []byte(`{\rtf1 {{{{deep}}}}}`)
	doc, cause := e.Parse(context.Background(), input)
	if k, _ := errors.KindOf(cause); k != errors.KindLimit {
		t.Fatalf("Parse() error = %v, want limit error", cause)
	}
	res, err := e.Recover(context.Background(), input, doc, cause)
	if err != cause || len(res.Actions) != 0 {
		t.Errorf("Recover() = %v, %+v; want original error and no actions", err, res.Actions)
	}

	strict := &Engine{
		Format: ir.FormatRTF,
		Parse: func(ctx context.Context, data []byte) (*ir.Document, error) {
			return rtf.Parse(ctx, data, rtf.Options{Strict: true})
		},
	}
	input = []byte(`{\rtf1 {\object x}}`)
	doc, cause = strict.Parse(context.Background(), input)
	if k, _ := errors.KindOf(cause); k != errors.KindSecurity {
		t.Fatalf("Parse() error = %v, want security error", cause)
	}
	if _, err := strict.Recover(context.Background(), input, doc, cause); err != cause {
		t.Errorf("Recover() error = %v, want %v", err, cause)
	}
}

func TestRecoverMarkdown(t *testing.T) {
	e := &Engine{
		Format: ir.FormatMarkdown,
		Parse: func(ctx context.Context, data []byte) (*ir.Document, error) {
			return markdown.Parse(ctx, data, markdown.Options{})
		},
	}
	input := []byte("# Title\n\nbad \xff\xfe bytes\n")
	doc, cause := e.Parse(context.Background(), input)
	res, err := e.Recover(context.Background(), input, doc, cause)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if len(res.Actions) != 1 || res.Actions[0].Kind != report.ReplaceInvalidByte {
		t.Fatalf("actions = %+v", res.Actions)
	}
	if len(res.Doc.Blocks) != 2 || !strings.Contains(res.Doc.Blocks[1].Text(), string(rune(0xFFFD))) {
		t.Errorf("blocks = %+v", res.Doc.Blocks)
	}
}

// stuck always fails with the same error.
func stuck(partial *ir.Document, cause error) ParseFunc {
	return func(context.Context, []byte) (*ir.Document, error) {
		return partial, cause
	}
}

func TestRecoverBestEffort(t *testing.T) {
	cause := errors.NewEncoding(0, "bad byte")
	partial := &ir.Document{Blocks: []ir.Block{ir.Paragraph(ir.Text("kept"))}}
	e := &Engine{Format: ir.FormatMarkdown, Parse: stuck(partial, cause)}

	res, err := e.Recover(context.Background(), []byte("valid text"), partial, cause)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	got := kinds(res.Actions)
	if len(got) != 2 || got[0] != report.ReplaceInvalidByte || got[1] != report.BestEffortAccept {
		t.Fatalf("actions = %v", got)
	}
	if res.Actions[0].Success || !res.Actions[1].Success {
		t.Errorf("action success flags = %+v", res.Actions)
	}
	if res.Doc != partial || !res.Doc.Meta.Truncated {
		t.Errorf("Doc = %+v, want the truncated partial document", res.Doc)
	}
}

func TestRecoverExhausted(t *testing.T) {
	cause := errors.NewEncoding(0, "bad byte")
	e := &Engine{Format: ir.FormatMarkdown, Parse: stuck(&ir.Document{}, cause)}

	res, err := e.Recover(context.Background(), []byte("valid text"), &ir.Document{}, cause)
	if err != cause {
		t.Fatalf("Recover() error = %v, want the original error", err)
	}
	if len(res.Actions) != 1 || res.Actions[0].Success {
		t.Errorf("actions = %+v", res.Actions)
	}
}

func TestRecoverBounded(t *testing.T) {
	cause := errors.NewSyntax(3, "broken")
	calls := 0
	e := &Engine{Format: ir.FormatRTF, Parse: func(context.Context, []byte) (*ir.Document, error) {
		calls++
		return nil, cause
	}}

	res, err := e.Recover(context.Background(), []byte(strings.Repeat("x", 64)), nil, cause)
	if err != cause {
		t.Fatalf("Recover() error = %v", err)
	}
	if len(res.Actions) != DefaultMaxAttempts || calls != DefaultMaxAttempts {
		t.Errorf("got %d actions and %d parses, want %d", len(res.Actions), calls, DefaultMaxAttempts)
	}
}

func TestStrategyOrder(t *testing.T) {
	want := []report.ActionKind{
		report.InsertMissingDelimiter, report.SkipToken, report.ReplaceInvalidByte,
		report.TruncateAtLimit, report.BestEffortAccept,
	}
	for i, s := range Order {
		if s.Action() != want[i] {
			t.Errorf("Order[%d] = %s, want %s", i, s, want[i])
		}
	}
}
