package ffi

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/pipeline"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/template"
	"github.com/FocuswithJustin/LegacyBridge/internal/config"
	"github.com/FocuswithJustin/LegacyBridge/internal/logging"
)

// Library is the state behind the C exports: one pipeline, its template
// registry and optional store, the batch in flight, per-thread last errors
// and the tracked output buffers. It is safe for concurrent use.
type Library struct {
	pipe    *pipeline.Pipeline
	store   *template.Store
	current atomic.Pointer[pipeline.Batch]
	errs    *ErrorSlots
	bufs    *Buffers
}

// NewLibrary creates a library. A nil registry means template.Default();
// store may be nil.
func NewLibrary(cfg pipeline.Config, reg *template.Registry, store *template.Store) *Library {
	return &Library{
		pipe:  pipeline.New(cfg, reg),
		store: store,
		errs:  NewErrorSlots(),
		bufs:  NewBuffers(),
	}
}

// NewLibraryFromEnv creates a library from the configuration file named by
// LEGACYBRIDGE_CONFIG, or from defaults when it is unset.
func NewLibraryFromEnv(ctx context.Context) (*Library, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.InitLogging()
	reg := template.Default()
	store, err := cfg.LoadTemplates(ctx, reg)
	if err != nil {
		return nil, err
	}
	return NewLibrary(cfg.Pipeline, reg, store), nil
}

// Close releases the template store.
func (l *Library) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

// Pipeline returns the library's pipeline.
func (l *Library) Pipeline() *pipeline.Pipeline { return l.pipe }

// Errors returns the per-thread last errors.
func (l *Library) Errors() *ErrorSlots { return l.errs }

// Buffers returns the output buffer tracker.
func (l *Library) Buffers() *Buffers { return l.bufs }

// Do runs fn on behalf of thread. The thread's last error is cleared
// first and set when fn fails or panics. A panic becomes
// StatusConversionFailed.
func (l *Library) Do(thread uintptr, op string, fn func() error) (status int) {
	l.errs.Clear(thread)
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%s: internal error: %v", op, r)
			logging.Error("panic in library call", "op", op, "panic", r, "stack", string(debug.Stack()))
			l.errs.Set(thread, msg)
			status = StatusConversionFailed
		}
	}()
	if err := fn(); err != nil {
		l.errs.Set(thread, fmt.Sprintf("%s: %v", op, err))
		logging.Debug("library call failed", "op", op, "error", err)
		return StatusFor(err)
	}
	return StatusOK
}

// Text checks that a string argument is valid UTF-8.
func Text(name string, b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%s: %w", name, ErrInvalidUTF8)
	}
	return string(b), nil
}

// Convert converts input in direction dir. options is an option string
// applied on top of the library configuration.
func (l *Library) Convert(ctx context.Context, dir, options string, input []byte) ([]byte, error) {
	d, err := pipeline.ParseDirection(dir)
	if err != nil {
		return nil, err
	}
	p := l.pipe
	if options != "" {
		cfg := p.Config()
		if err := ApplyOptions(&cfg, options); err != nil {
			return nil, err
		}
		p = p.WithConfig(cfg)
	}
	res, err := p.Convert(ctx, d, input)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// track makes b the batch reported by Progress. It stays current after it
// finishes so the host can read the final count.
func (l *Library) track(b *pipeline.Batch) {
	l.current.Store(b)
}

// ConvertBatch converts inputs concurrently. The batch can be observed
// with Progress and stopped with CancelBatch while it runs.
func (l *Library) ConvertBatch(ctx context.Context, dir pipeline.Direction, inputs [][]byte) []pipeline.BatchItem {
	b := l.pipe.NewBatch(dir)
	l.track(b)
	return b.Run(ctx, inputs)
}

// ConvertFile converts one file.
func (l *Library) ConvertFile(ctx context.Context, dir pipeline.Direction, in, out string) error {
	_, err := l.pipe.ConvertFile(ctx, dir, in, out)
	return err
}

// ConvertFolder converts every matching file below in into out and returns
// the number converted. When some files fail, the count is still returned
// along with an error summarizing the failures.
func (l *Library) ConvertFolder(ctx context.Context, dir pipeline.Direction, in, out string) (int, error) {
	b := l.pipe.NewBatch(dir)
	l.track(b)
	items, err := b.RunDir(ctx, in, out)
	if err != nil {
		return 0, err
	}
	n := pipeline.Converted(items)
	if failed := len(items) - n; failed > 0 {
		var first error
		for _, it := range items {
			if it.Err != nil {
				first = it.Err
				break
			}
		}
		return n, fmt.Errorf("processed %d files with %d errors, first: %w", len(items), failed, first)
	}
	return n, nil
}

// Validate returns the JSON validation report of input and whether the
// document is structurally valid.
func (l *Library) Validate(ctx context.Context, input []byte) ([]byte, bool, error) {
	rep := l.pipe.Validate(ctx, input, "")
	data, err := rep.JSON()
	if err != nil {
		return nil, false, errors.Wrap(err, "encode report")
	}
	return data, rep.Valid, nil
}

// ExtractPlainText returns the text of input.
func (l *Library) ExtractPlainText(ctx context.Context, input []byte) ([]byte, error) {
	return output(l.pipe.ExtractPlainText(ctx, input))
}

// ApplyTemplate applies the named template to input.
func (l *Library) ApplyTemplate(ctx context.Context, input []byte, name string) ([]byte, error) {
	return output(l.pipe.ApplyTemplate(ctx, input, name, nil))
}

// CleanRTF rewrites input keeping only supported structure.
func (l *Library) CleanRTF(ctx context.Context, input []byte) ([]byte, error) {
	if f := ir.DetectFormat(input); f != ir.FormatRTF {
		return nil, errors.NewValidation("input", "not an RTF document")
	}
	return output(l.pipe.CleanRTF(ctx, input))
}

// NormalizeMarkdown rewrites input in canonical Markdown.
func (l *Library) NormalizeMarkdown(ctx context.Context, input []byte) ([]byte, error) {
	return output(l.pipe.NormalizeMarkdown(ctx, input))
}

// ExtractTablesCSV writes the tables of input as CSV.
func (l *Library) ExtractTablesCSV(ctx context.Context, input []byte) ([]byte, error) {
	return output(l.pipe.ExtractTablesCSV(ctx, input))
}

func output(res *pipeline.Result, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// CreateTemplate registers a template from a YAML or XML definition under
// name, replacing any template of that name, and saves it to the store
// when one is configured.
func (l *Library) CreateTemplate(ctx context.Context, name string, definition []byte) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.NewValidation("name", "template name is empty")
	}
	def, err := template.Load(definition)
	if err != nil {
		return err
	}
	def.Name = name
	if l.store == nil {
		return l.pipe.Templates().Register(def, true)
	}
	return template.RegisterAndSave(ctx, l.pipe.Templates(), l.store, def, true)
}

// ListTemplates returns the registered template names, one per line.
func (l *Library) ListTemplates() []byte {
	return []byte(strings.Join(l.pipe.Templates().List(), "\n"))
}

// ValidateTemplate checks the named template. Findings of error severity
// make it invalid.
func (l *Library) ValidateTemplate(name string) error {
	fs, err := l.pipe.Templates().Validate(name)
	if err != nil {
		return err
	}
	var msgs []string
	for _, f := range fs {
		if f.Severity == report.SeverityError {
			msgs = append(msgs, f.Message)
		}
	}
	if len(msgs) > 0 {
		return errors.NewValidation(name, strings.Join(msgs, "; "))
	}
	return nil
}

// Progress returns the number of documents the latest batch has finished
// and its size. Both are 0 before the first batch.
func (l *Library) Progress() (done, total int) {
	b := l.current.Load()
	if b == nil {
		return 0, 0
	}
	return b.Progress()
}

// CancelBatch cancels the latest batch. Documents not yet started fail
// with context.Canceled. It reports whether there was a batch.
func (l *Library) CancelBatch() bool {
	b := l.current.Load()
	if b == nil {
		return false
	}
	b.Cancel()
	return true
}
