package template

import (
	"slices"
	"strings"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
	"github.com/FocuswithJustin/LegacyBridge/core/validate"
)

// Apply returns a copy of doc with the named template applied. vars
// override the template's default variables.
func (r *Registry) Apply(doc *ir.Document, name string, vars map[string]string) (*ir.Document, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return t.Apply(doc, vars), nil
}

// Apply returns a copy of doc with t applied. Blocks added by an earlier
// application of t are replaced, so applying t again with the same
// variables yields the same content. After a document has been written and
// parsed again the origin marks are gone; a leading header or trailing
// footer whose text matches t's is then replaced instead.
func (t *Template) Apply(doc *ir.Document, vars map[string]string) *ir.Document {
	out := doc.Clone()

	values := make(map[string]string, len(t.Variables)+len(vars))
	for k, v := range t.Variables {
		values[k] = v
	}
	for k, v := range vars {
		values[k] = v
	}

	body := make([]ir.Block, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		if b.Origin != t.Name {
			body = append(body, b)
		}
	}
	if n := len(t.header); n > 0 && matches(body, t.header, values) {
		body = body[n:]
	}
	if n := len(t.footer); n > 0 && matches(body[max(len(body)-n, 0):], t.footer, values) {
		body = body[:len(body)-n]
	}

	blocks := make([]ir.Block, 0, len(t.header)+len(body)+len(t.footer))
	blocks = append(blocks, t.stamp(t.header)...)
	blocks = append(blocks, body...)
	blocks = append(blocks, t.stamp(t.footer)...)
	out.Blocks = blocks

	tableStyle, styleTables := t.styles[ir.KindTable]
	ir.Walk(out.Blocks, func(p ir.Path, b *ir.Block) bool {
		s, styled := t.styles[b.Kind]
		inTable := len(p) > 1
		for i := range b.Runs {
			run := b.Runs[i]
			if styled {
				run = restyle(out, run, s)
			}
			if inTable && styleTables {
				run = restyle(out, run, tableStyle)
			}
			b.Runs[i] = run.WithText(Substitute(run.Text, values))
		}
		return true
	})

	if !slices.Contains(out.Meta.AppliedTemplates, t.Name) {
		out.Meta.AppliedTemplates = append(out.Meta.AppliedTemplates, t.Name)
	}
	return out
}

// matches reports whether blocks starts with the text of tmpl after
// substitution. Rules match rules; other block kinds compare by text only,
// since a heading may come back from RTF as a styled paragraph.
func matches(blocks, tmpl []ir.Block, values map[string]string) bool {
	if len(blocks) < len(tmpl) {
		return false
	}
	seen := false
	for i := range tmpl {
		want := signature(&tmpl[i], values)
		if want != "" && want != ruleSignature {
			seen = true
		}
		if signature(&blocks[i], nil) != want {
			return false
		}
	}
	return seen
}

const ruleSignature = "---"

func signature(b *ir.Block, values map[string]string) string {
	if b.Kind == ir.KindRule {
		return ruleSignature
	}
	text := b.Text()
	if values != nil {
		text = Substitute(text, values)
	}
	return strings.Join(strings.Fields(text), " ")
}

// stamp copies template blocks and marks them with the template name.
func (t *Template) stamp(blocks []ir.Block) []ir.Block {
	if len(blocks) == 0 {
		return nil
	}
	out := (&ir.Document{Blocks: blocks}).Clone().Blocks
	for i := range out {
		out[i].Origin = t.Name
	}
	return out
}

// restyle merges a style onto a run. Style values win. Code runs keep
// their monospace font.
func restyle(doc *ir.Document, r ir.Run, s style) ir.Run {
	a := r.Attrs
	if s.rule.Bold != nil {
		a.Bold = *s.rule.Bold
	}
	if s.rule.Italic != nil {
		a.Italic = *s.rule.Italic
	}
	if s.rule.Underline != nil {
		a.Underline = *s.rule.Underline
	}
	if s.rule.Strike != nil {
		a.Strike = *s.rule.Strike
	}
	if s.rule.Font != "" && !a.Code {
		a.Font = doc.AddFont(s.rule.Font, fontFamily(s.rule.Family))
	}
	if s.rule.Size > 0 {
		a.Size = s.rule.Size * 2
	}
	if s.hasRGB {
		a.Color = doc.AddColor(s.color[0], s.color[1], s.color[2])
	}
	return r.With(a)
}

// fontFamily turns "swiss" into the RTF family word "fswiss".
func fontFamily(family string) string {
	family = strings.ToLower(strings.TrimSpace(family))
	if family == "" {
		return "fnil"
	}
	if !strings.HasPrefix(family, "f") {
		family = "f" + family
	}
	return family
}

// Codes of template validation findings.
const (
	CodeUnboundVariable = "unbound_variable"
	CodeEmptyTemplate   = "empty_template"
)

// Validate checks the named template's header and footer independently of
// any document. Error findings mean the template is structurally invalid.
func (r *Registry) Validate(name string) ([]report.Finding, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return t.Validate(), nil
}

// Validate checks the template content.
func (t *Template) Validate() []report.Finding {
	var fs []report.Finding
	for _, part := range []struct {
		name   string
		blocks []ir.Block
	}{{"header", t.header}, {"footer", t.footer}} {
		doc := &ir.Document{Blocks: part.blocks}
		for _, f := range validate.Post(doc, security.DefaultLimits()) {
			f.Location = part.name + f.Location
			fs = append(fs, f)
		}
		for _, name := range Placeholders(ir.PlainText(doc)) {
			if _, ok := t.Variables[name]; !ok {
				fs = append(fs, report.Finding{
					Severity: report.SeverityInfo,
					Code:     CodeUnboundVariable,
					Location: part.name,
					Message:  "placeholder {{" + name + "}} has no default value",
				})
			}
		}
	}
	if len(t.header) == 0 && len(t.footer) == 0 && len(t.styles) == 0 {
		fs = append(fs, report.Finding{
			Severity: report.SeverityWarning,
			Code:     CodeEmptyTemplate,
			Message:  "template has no header, footer or styles",
		})
	}
	return fs
}

// IsNotFound reports whether err is a missing template.
func IsNotFound(err error) bool {
	var nf *errors.NotFoundError
	return errors.As(err, &nf)
}
