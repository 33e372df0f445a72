// Package pipeline orchestrates conversions between RTF and Markdown.
//
// A conversion moves through the stages Created, Parsing, Validating,
// Recovering (when the input needs repair), TemplateApplication (when a
// template is configured), Generating and Completed. Invalid content fails
// the conversion in Validating or Recovering; Limit, Security and Allocation
// errors fail it from any stage. Every conversion returns a Report, also on
// failure.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/markdown"
	"github.com/FocuswithJustin/LegacyBridge/core/recovery"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/rtf"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
	"github.com/FocuswithJustin/LegacyBridge/core/template"
	"github.com/FocuswithJustin/LegacyBridge/core/validate"
	"github.com/FocuswithJustin/LegacyBridge/internal/logging"
)

// Direction names a conversion.
type Direction string

// Directions.
const (
	DirRTFToMarkdown Direction = "rtf_to_md"
	DirMarkdownToRTF Direction = "md_to_rtf"
)

// ParseDirection parses "rtf_to_md", "md_to_rtf" and their long and
// hyphenated spellings.
func ParseDirection(s string) (Direction, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "rtf_to_md", "rtf_to_markdown", "rtf2md":
		return DirRTFToMarkdown, nil
	case "md_to_rtf", "markdown_to_rtf", "md2rtf":
		return DirMarkdownToRTF, nil
	}
	return "", errors.NewValidation("direction", fmt.Sprintf("unknown direction %q", s))
}

// Source returns the input format.
func (d Direction) Source() ir.Format {
	if d == DirMarkdownToRTF {
		return ir.FormatMarkdown
	}
	return ir.FormatRTF
}

// Target returns the output format.
func (d Direction) Target() ir.Format {
	if d == DirMarkdownToRTF {
		return ir.FormatRTF
	}
	return ir.FormatMarkdown
}

func (d Direction) valid() bool {
	return d == DirRTFToMarkdown || d == DirMarkdownToRTF
}

// Result is the outcome of one conversion. Output and Doc are nil when the
// conversion failed.
type Result struct {
	Output []byte
	Doc    *ir.Document
	Report *report.Report
}

// Pipeline runs conversions with a fixed configuration. It is safe for
// concurrent use; each conversion owns its document.
type Pipeline struct {
	cfg       Config
	policy    *security.Policy
	templates *template.Registry
}

// New creates a pipeline. A nil registry means template.Default().
func New(cfg Config, templates *template.Registry) *Pipeline {
	cfg.defaults()
	if templates == nil {
		templates = template.Default()
	}
	return &Pipeline{cfg: cfg, policy: cfg.policy(), templates: templates}
}

// Config returns the pipeline's configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Templates returns the pipeline's template registry.
func (p *Pipeline) Templates() *template.Registry {
	return p.templates
}

// WithConfig returns a pipeline with a different configuration sharing the
// template registry.
func (p *Pipeline) WithConfig(cfg Config) *Pipeline {
	return New(cfg, p.templates)
}

// RTFToMarkdown converts RTF to Markdown.
func (p *Pipeline) RTFToMarkdown(ctx context.Context, input []byte) (*Result, error) {
	return p.Convert(ctx, DirRTFToMarkdown, input)
}

// MarkdownToRTF converts Markdown to RTF.
func (p *Pipeline) MarkdownToRTF(ctx context.Context, input []byte) (*Result, error) {
	return p.Convert(ctx, DirMarkdownToRTF, input)
}

// Convert runs one conversion. On failure the returned Result still carries
// the Report.
func (p *Pipeline) Convert(ctx context.Context, dir Direction, input []byte) (*Result, error) {
	if !dir.valid() {
		return nil, errors.NewValidation("direction", fmt.Sprintf("unknown direction %q", dir))
	}
	return p.run(ctx, string(dir), dir.Source(), input, output{
		target:   dir.Target(),
		template: p.cfg.Template,
		vars:     p.cfg.TemplateVars,
		write: func(doc *ir.Document) ([]byte, error) {
			return p.generate(doc, dir.Target())
		},
	})
}

// output describes what a run produces from the built document.
type output struct {
	// target is the format used for loss assessment; empty means plain
	// text.
	target   ir.Format
	template string
	vars     map[string]string
	write    func(*ir.Document) ([]byte, error)
}

// run takes input of format src through every stage.
func (p *Pipeline) run(ctx context.Context, label string, src ir.Format, input []byte, out output) (*Result, error) {
	c := p.begin(ctx, label, src, input)
	defer c.cancel()

	doc, err := c.build(input)
	if err != nil {
		return c.fail(err)
	}
	if doc, err = c.transform(doc, out.template, out.vars); err != nil {
		return c.fail(err)
	}

	if err := c.enter(StageGenerating); err != nil {
		return c.fail(err)
	}
	data, err := out.write(doc)
	if err != nil {
		return c.fail(err)
	}
	return c.complete(doc, data, out.target)
}

// conversion tracks the state of one run through the pipeline.
type conversion struct {
	p      *Pipeline
	ctx    context.Context
	cancel context.CancelFunc
	label  string
	src    ir.Format
	rep    *report.Report
	stage  Stage
	start  time.Time
}

func (p *Pipeline) begin(ctx context.Context, label string, src ir.Format, input []byte) *conversion {
	if ctx == nil {
		ctx = context.Background()
	}
	rep := report.New()
	rep.ID = uuid.NewString()
	rep.Direction = label
	rep.InputBytes = len(input)
	rep.Stage = StageCreated.String()

	ctx = logging.WithConversionID(ctx, rep.ID)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Limits.ProcessingTimeout)
	return &conversion{p: p, ctx: ctx, cancel: cancel, label: label, src: src, rep: rep, stage: StageCreated, start: time.Now()}
}

// enter moves the conversion to stage s. An invalid transition is an
// internal error.
func (c *conversion) enter(s Stage) error {
	if !CanTransition(c.stage, s) {
		return fmt.Errorf("pipeline: invalid stage transition %s -> %s", c.stage, s)
	}
	c.stage = s
	c.rep.Stage = s.String()
	return nil
}

func (c *conversion) fail(err error) (*Result, error) {
	if ce, ok := errors.AsConversion(err); ok && ce.Kind == errors.KindSecurity {
		logging.SecurityEventContext(c.ctx, "conversion_rejected", string(c.src), "word", ce.Word, "offset", ce.Offset)
	}
	c.rep.FailedAt = c.stage.String()
	c.stage = StageFailed
	c.rep.Fail(err)
	c.rep.Duration = time.Since(c.start)
	logging.ConversionEvent(c.ctx, c.label, string(c.rep.Outcome), c.rep.InputBytes, 0, c.rep.Duration,
		"failed_at", c.rep.FailedAt, "error", err.Error())
	return &Result{Report: c.rep}, err
}

func (c *conversion) complete(doc *ir.Document, out []byte, target ir.Format) (*Result, error) {
	if err := c.enter(StageCompleted); err != nil {
		return c.fail(err)
	}
	c.rep.OutputBytes = len(out)
	c.rep.OutputBLAKE3 = ir.HashBytes(out)
	c.rep.LossClass = ir.LossL4
	if target != "" {
		c.rep.LossClass = ir.Assess(doc, target).LossClass
	}
	c.rep.Duration = time.Since(c.start)
	logging.ConversionEvent(c.ctx, c.label, string(c.rep.Outcome), c.rep.InputBytes, len(out), c.rep.Duration,
		"findings", len(c.rep.Findings), "actions", len(c.rep.Actions), "runs", ir.CountRuns(doc))
	return &Result{Output: out, Doc: doc, Report: c.rep}, nil
}

// fatal reports whether err fails a conversion from any stage. Only Syntax
// and Encoding errors may be repaired.
func fatal(err error) bool {
	ce, ok := errors.AsConversion(err)
	return !ok || !ce.Recoverable()
}

// build runs Parsing, Validating and Recovering and returns a document that
// passed validation or was repaired.
func (c *conversion) build(input []byte) (*ir.Document, error) {
	cfg := &c.p.cfg
	src := c.src

	if err := c.enter(StageParsing); err != nil {
		return nil, err
	}
	fs, err := validate.Pre(input, src, cfg.Limits, c.p.policy)
	if err != nil {
		return nil, err
	}
	c.rep.Add(fs...)
	if err := c.screen(fs); err != nil {
		return nil, err
	}

	scratch := report.New()
	doc, parseErr := c.p.parse(c.ctx, src, input, scratch)
	if parseErr == nil || fatal(parseErr) {
		c.merge(scratch)
	}
	if parseErr != nil && fatal(parseErr) {
		return nil, parseErr
	}

	if err := c.enter(StageValidating); err != nil {
		return nil, err
	}
	if parseErr != nil {
		ce, _ := errors.AsConversion(parseErr)
		c.rep.Addf(report.SeverityError, "parse_error", report.AtOffset(ce.Offset), "%s", ce.Message)
		if !cfg.AutoRecovery {
			c.merge(scratch)
			return nil, parseErr
		}

		if err := c.enter(StageRecovering); err != nil {
			return nil, err
		}
		if doc, err = c.recoverInput(input, doc, parseErr, scratch); err != nil {
			return nil, err
		}
		if err := c.enter(StageValidating); err != nil {
			return nil, err
		}
	}

	invalid, err := c.postValidate(doc)
	if err != nil {
		return nil, err
	}
	if invalid == 0 {
		return doc, nil
	}
	if cfg.StrictValidation {
		return nil, errors.NewValidation("document", fmt.Sprintf("%d validation errors", invalid))
	}
	if !cfg.AutoRecovery {
		// Lenient: the findings stay on the report and the document is
		// generated as it is.
		return doc, nil
	}

	if err := c.enter(StageRecovering); err != nil {
		return nil, err
	}
	actions := recovery.RepairDocument(doc, cfg.Limits)
	c.record(actions...)
	return doc, nil
}

// screen applies strict-mode rejections to pre-validation findings.
func (c *conversion) screen(fs []report.Finding) error {
	for _, f := range fs {
		if f.Code != validate.CodeScriptInjection {
			continue
		}
		logging.SecurityEventContext(c.ctx, "script_injection", "markdown", "location", f.Location)
		if c.p.cfg.StrictValidation {
			return &errors.ConversionError{Kind: errors.KindSecurity, Offset: offsetOf(f.Location), Message: f.Message}
		}
	}
	return nil
}

// recoverInput runs the recovery engine over the input. The findings of
// the parse that produced the accepted document are merged into the report:
// first for a best-effort partial document, otherwise the last re-parse.
func (c *conversion) recoverInput(input []byte, partial *ir.Document, cause error, first *report.Report) (*ir.Document, error) {
	last := first
	eng := &recovery.Engine{
		Format: c.src,
		Parse: func(ctx context.Context, data []byte) (*ir.Document, error) {
			last = report.New()
			return c.p.parse(ctx, c.src, data, last)
		},
	}
	if partial == nil {
		partial = ir.NewDocument(c.src)
	}
	res, err := eng.Recover(c.ctx, input, partial, cause)
	if err != nil {
		c.record(res.Actions...)
		return nil, err
	}
	if res.Doc == partial {
		last = first
	}
	c.merge(last)
	c.record(res.Actions...)
	return res.Doc, nil
}

// merge copies the findings and parser actions of a parse into the report.
func (c *conversion) merge(r *report.Report) {
	c.rep.Add(r.Findings...)
	c.record(r.Actions...)
}

func (c *conversion) record(actions ...report.RecoveryAction) {
	for _, a := range actions {
		logging.RecoveryEvent(c.ctx, a.Kind.String(), a.Offset, a.Success, "description", a.Description)
	}
	c.rep.Record(actions...)
}

// postValidate adds post-validation findings and returns the number of
// errors. An oversized table is a Limit error.
func (c *conversion) postValidate(doc *ir.Document) (int, error) {
	fs := validate.Post(doc, c.p.cfg.Limits)
	c.rep.Add(fs...)
	n := 0
	for _, f := range fs {
		if f.Code == validate.CodeTableTooLarge {
			return n, errors.NewLimit(-1, "%s at %s", f.Message, f.Location)
		}
		if f.Severity == report.SeverityError {
			n++
		}
	}
	return n, nil
}

// transform applies the formatting option and the named template.
func (c *conversion) transform(doc *ir.Document, name string, vars map[string]string) (*ir.Document, error) {
	if !c.p.cfg.PreserveFormatting {
		ir.StripFormatting(doc)
	}
	if name == "" {
		return doc, nil
	}
	if err := c.enter(StageTemplateApplication); err != nil {
		return nil, err
	}
	return c.p.templates.Apply(doc, name, vars)
}

// parse parses input of the given format, sending findings and parser
// recovery actions to rep.
func (p *Pipeline) parse(ctx context.Context, format ir.Format, input []byte, rep *report.Report) (*ir.Document, error) {
	if format == ir.FormatRTF {
		return rtf.Parse(ctx, input, rtf.Options{
			Limits: p.cfg.Limits,
			Policy: p.policy,
			Strict: p.cfg.StrictValidation,
			Report: rep,
		})
	}
	return markdown.Parse(ctx, input, markdown.Options{Limits: p.cfg.Limits, Report: rep})
}

// generate writes doc in the target format.
func (p *Pipeline) generate(doc *ir.Document, target ir.Format) ([]byte, error) {
	if target == ir.FormatRTF {
		return rtf.Generate(doc, rtf.GenerateOptions{
			Legacy:    p.cfg.LegacyCompatibility,
			MaxOutput: p.cfg.Limits.MaxOutputSize,
		})
	}
	return markdown.Generate(doc, markdown.GenerateOptions{
		CRLF:      p.cfg.LegacyCompatibility,
		MaxOutput: p.cfg.Limits.MaxOutputSize,
	})
}

// offsetOf parses an "offset N" location.
func offsetOf(location string) int {
	var n int
	if _, err := fmt.Sscanf(location, "offset %d", &n); err != nil {
		return -1
	}
	return n
}
