// Command legacybridge converts documents between RTF and Markdown, manages
// conversion templates and serves the conversion API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/pipeline"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/template"
	"github.com/FocuswithJustin/LegacyBridge/internal/api"
	"github.com/FocuswithJustin/LegacyBridge/internal/archive"
	"github.com/FocuswithJustin/LegacyBridge/internal/config"
	"github.com/FocuswithJustin/LegacyBridge/internal/ffi"
	"github.com/FocuswithJustin/LegacyBridge/internal/logging"
)

// CLI defines the command-line interface.
type CLI struct {
	Config   string   `short:"c" help:"Configuration file (default: $LEGACYBRIDGE_CONFIG)" type:"path"`
	Set      []string `short:"s" help:"Set a pipeline option (key=value), e.g. strict_validation=true or var.company=Acme" placeholder:"KEY=VALUE" sep:"none"`
	LogLevel string   `name:"log-level" help:"Log level (debug, info, warn, error)"`

	Convert       ConvertCmd       `cmd:"" help:"Convert a document"`
	Validate      ValidateCmd      `cmd:"" help:"Validate a document and print the report"`
	Batch         BatchCmd         `cmd:"" help:"Convert several documents into a directory"`
	Dir           DirCmd           `cmd:"" help:"Convert every document below a directory"`
	Extract       ExtractGroup     `cmd:"" help:"Extract plain text or tables"`
	Normalize     NormalizeCmd     `cmd:"" help:"Rewrite Markdown in canonical form"`
	Clean         CleanCmd         `cmd:"" help:"Strip RTF down to supported structure"`
	ApplyTemplate ApplyTemplateCmd `cmd:"" name:"apply-template" help:"Apply a template to a document"`
	Templates     TemplatesGroup   `cmd:"" help:"Template management"`
	Serve         ServeCmd         `cmd:"" help:"Start the REST and WebSocket API server"`
	Version       VersionCmd       `cmd:"" help:"Print version information"`
}

// ExtractGroup contains extraction commands.
type ExtractGroup struct {
	Text   ExtractTextCmd   `cmd:"" help:"Extract plain text"`
	Tables ExtractTablesCmd `cmd:"" help:"Extract tables as CSV"`
}

// TemplatesGroup contains template management commands.
type TemplatesGroup struct {
	List   TemplatesListCmd   `cmd:"" help:"List registered templates"`
	Show   TemplatesShowCmd   `cmd:"" help:"Print a template definition and its findings"`
	Add    TemplatesAddCmd    `cmd:"" help:"Register a template from a YAML or XML file"`
	Remove TemplatesRemoveCmd `cmd:"" help:"Remove a stored template"`
}

// app is the state shared by every command.
type app struct {
	cfg    config.Config
	pipe   *pipeline.Pipeline
	store  *template.Store
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// newApp loads the configuration, applies the flag overrides and builds the
// pipeline over a registry holding the built-in and configured templates.
func newApp(ctx context.Context, c *CLI, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	var cfg config.Config
	var err error
	if c.Config != "" {
		cfg, err = config.Load(c.Config)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, err
	}
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			return nil, errors.NewValidation("log-level", err.Error())
		}
		cfg.Log.Level = c.LogLevel
	}
	for _, kv := range c.Set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.NewValidation("set", fmt.Sprintf("%q is not key=value", kv))
		}
		if err := cfg.Pipeline.Set(strings.TrimSpace(key), value); err != nil {
			return nil, err
		}
	}
	cfg.InitLogging()

	reg := template.NewRegistry(0)
	for _, def := range template.Builtins() {
		if err := reg.Register(def, false); err != nil {
			return nil, err
		}
	}
	store, err := cfg.LoadTemplates(ctx, reg)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		pipe:   pipeline.New(cfg.Pipeline, reg),
		store:  store,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// read returns the input at path, or standard input for "-". Compressed
// files are decompressed by extension.
func (a *app) read(path string) ([]byte, error) {
	limit := a.pipe.Config().Limits.MaxFileSize
	if path != "-" {
		return archive.ReadFile(path, limit)
	}
	data, err := io.ReadAll(io.LimitReader(a.stdin, int64(limit)+1))
	if err != nil {
		return nil, errors.NewIO("read", "stdin", err)
	}
	if len(data) > limit {
		return nil, errors.NewLimit(limit, "input exceeds %d bytes", limit)
	}
	return data, nil
}

// write stores data at path, or prints it for "" and "-".
func (a *app) write(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	return archive.WriteFile(path, data)
}

// writeReport prints the report as JSON to path, or to standard error for
// "-". An empty path writes nothing.
func (a *app) writeReport(path string, rep *report.Report) error {
	if path == "" || rep == nil {
		return nil
	}
	data, err := rep.JSON()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = a.stderr.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// direction resolves a --to flag, detecting the source format from the
// content when it is empty.
func direction(to string, data []byte) (pipeline.Direction, error) {
	switch strings.ToLower(to) {
	case "md", "markdown":
		return pipeline.DirRTFToMarkdown, nil
	case "rtf":
		return pipeline.DirMarkdownToRTF, nil
	case "":
		if ir.DetectFormat(data) == ir.FormatRTF {
			return pipeline.DirRTFToMarkdown, nil
		}
		return pipeline.DirMarkdownToRTF, nil
	}
	return "", errors.NewValidation("to", fmt.Sprintf("unknown target format %q", to))
}

// ConvertCmd converts one document.
type ConvertCmd struct {
	Input  string `arg:"" help:"Input file, or - for standard input"`
	Out    string `short:"o" help:"Output file (default: standard output)" type:"path"`
	To     string `help:"Target format (md or rtf); detected from the input when omitted"`
	Report string `help:"Write the conversion report as JSON to this file, or - for standard error"`
}

func (c *ConvertCmd) Run(a *app) error {
	data, err := a.read(c.Input)
	if err != nil {
		return err
	}
	dir, err := direction(c.To, data)
	if err != nil {
		return err
	}
	res, err := a.pipe.Convert(context.Background(), dir, data)
	if res != nil {
		if rerr := a.writeReport(c.Report, res.Report); rerr != nil {
			logging.Warn("failed to write report", "error", rerr)
		}
	}
	if err != nil {
		return err
	}
	return a.write(c.Out, res.Output)
}

// ValidateCmd validates a document.
type ValidateCmd struct {
	Input  string `arg:"" help:"Input file, or - for standard input"`
	Format string `help:"Input format (rtf or markdown); detected when omitted"`
}

func (c *ValidateCmd) Run(a *app) error {
	data, err := a.read(c.Input)
	if err != nil {
		return err
	}
	var format ir.Format
	if c.Format != "" {
		if format, err = ir.ParseFormat(c.Format); err != nil {
			return errors.NewValidation("format", err.Error())
		}
	}
	rep := a.pipe.Validate(context.Background(), data, format)
	out, err := rep.JSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, string(out))
	if !rep.Valid {
		return fmt.Errorf("%s: document is invalid (%d errors)", c.Input, len(rep.Errors()))
	}
	return nil
}

// BatchCmd converts several documents concurrently.
type BatchCmd struct {
	Inputs []string `arg:"" help:"Input files" type:"existingfile"`
	OutDir string   `name:"out-dir" short:"o" required:"" help:"Output directory" type:"path"`
	To     string   `required:"" help:"Target format (md or rtf)" enum:"md,markdown,rtf"`
}

func (c *BatchCmd) Run(a *app) error {
	dir, err := direction(c.To, nil)
	if err != nil {
		return err
	}
	inputs := make([][]byte, len(c.Inputs))
	for i, path := range c.Inputs {
		if inputs[i], err = a.read(path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(c.OutDir, 0755); err != nil {
		return errors.NewIO("mkdir", c.OutDir, err)
	}

	items := a.pipe.NewBatch(dir).Run(context.Background(), inputs)
	failed := 0
	for _, it := range items {
		in := c.Inputs[it.Index]
		if it.Err != nil {
			failed++
			fmt.Fprintf(a.stderr, "FAIL %s: %v\n", in, it.Err)
			continue
		}
		name, ok := pipeline.OutputName(filepath.Base(in), dir)
		if !ok {
			name = filepath.Base(in) + "." + string(dir.Target())
		}
		out := filepath.Join(c.OutDir, name)
		if err := archive.WriteFile(out, it.Result.Output); err != nil {
			failed++
			fmt.Fprintf(a.stderr, "FAIL %s: %v\n", in, err)
			continue
		}
		fmt.Fprintf(a.stdout, "%s -> %s\n", in, out)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(items))
	}
	return nil
}

// DirCmd converts a directory tree.
type DirCmd struct {
	In     string `arg:"" help:"Input directory" type:"existingdir"`
	Out    string `arg:"" help:"Output directory" type:"path"`
	To     string `required:"" help:"Target format (md or rtf)" enum:"md,markdown,rtf"`
	Bundle string `help:"Also pack the output directory into this archive (.tar, .tar.gz or .tar.xz)" type:"path"`
}

func (c *DirCmd) Run(a *app) error {
	dir, err := direction(c.To, nil)
	if err != nil {
		return err
	}
	items, err := a.pipe.ConvertDir(context.Background(), dir, c.In, c.Out)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.Err != nil {
			fmt.Fprintf(a.stderr, "FAIL %s: %v\n", it.In, it.Err)
			continue
		}
		fmt.Fprintf(a.stdout, "%s -> %s\n", it.In, it.Out)
	}
	n := pipeline.Converted(items)
	fmt.Fprintf(a.stdout, "Converted %d of %d files\n", n, len(items))

	if c.Bundle != "" && n > 0 {
		if err := archive.Bundle(c.Out, c.Bundle); err != nil {
			return err
		}
		entries, err := archive.Entries(c.Bundle)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Bundled: %s (%d files)\n", c.Bundle, len(entries))
	}
	if n < len(items) {
		return fmt.Errorf("processed %d files with %d errors", len(items), len(items)-n)
	}
	return nil
}

// OperationArgs are the arguments of the single-document operations.
type OperationArgs struct {
	Input string `arg:"" help:"Input file, or - for standard input"`
	Out   string `short:"o" help:"Output file (default: standard output)" type:"path"`
}

func (c *OperationArgs) run(a *app, op func(*pipeline.Pipeline, context.Context, []byte) (*pipeline.Result, error)) error {
	data, err := a.read(c.Input)
	if err != nil {
		return err
	}
	res, err := op(a.pipe, context.Background(), data)
	if err != nil {
		return err
	}
	return a.write(c.Out, res.Output)
}

// ExtractTextCmd extracts plain text.
type ExtractTextCmd struct{ OperationArgs }

func (c *ExtractTextCmd) Run(a *app) error {
	return c.run(a, (*pipeline.Pipeline).ExtractPlainText)
}

// ExtractTablesCmd extracts tables as CSV.
type ExtractTablesCmd struct{ OperationArgs }

func (c *ExtractTablesCmd) Run(a *app) error {
	return c.run(a, (*pipeline.Pipeline).ExtractTablesCSV)
}

// NormalizeCmd normalizes Markdown.
type NormalizeCmd struct{ OperationArgs }

func (c *NormalizeCmd) Run(a *app) error {
	return c.run(a, (*pipeline.Pipeline).NormalizeMarkdown)
}

// CleanCmd cleans RTF.
type CleanCmd struct{ OperationArgs }

func (c *CleanCmd) Run(a *app) error {
	return c.run(a, (*pipeline.Pipeline).CleanRTF)
}

// ApplyTemplateCmd applies a template to a document.
type ApplyTemplateCmd struct {
	OperationArgs
	Template string            `short:"t" required:"" help:"Template name"`
	Var      map[string]string `help:"Template variable (key=value)" placeholder:"KEY=VALUE"`
}

func (c *ApplyTemplateCmd) Run(a *app) error {
	return c.run(a, func(p *pipeline.Pipeline, ctx context.Context, data []byte) (*pipeline.Result, error) {
		return p.ApplyTemplate(ctx, data, c.Template, c.Var)
	})
}

// TemplatesListCmd lists templates.
type TemplatesListCmd struct{}

func (c *TemplatesListCmd) Run(a *app) error {
	reg := a.pipe.Templates()
	for _, name := range reg.List() {
		t, err := reg.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(a.stdout, "%-16s %s\n", name, t.Description)
	}
	return nil
}

// TemplatesShowCmd prints a template.
type TemplatesShowCmd struct {
	Name string `arg:"" help:"Template name"`
}

func (c *TemplatesShowCmd) Run(a *app) error {
	t, err := a.pipe.Templates().Get(c.Name)
	if err != nil {
		return err
	}
	data, err := template.MarshalYAML(t.Definition)
	if err != nil {
		return err
	}
	fmt.Fprint(a.stdout, string(data))
	fmt.Fprintf(a.stdout, "# fingerprint: %s\n", t.Fingerprint)
	findings := t.Validate()
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Severity > findings[j].Severity })
	for _, f := range findings {
		fmt.Fprintf(a.stdout, "# %s\n", f)
	}
	return nil
}

// TemplatesAddCmd registers a template and stores it when a store is
// configured.
type TemplatesAddCmd struct {
	File      string `arg:"" help:"YAML or XML template definition" type:"existingfile"`
	Name      string `help:"Template name, overriding the one in the file"`
	Overwrite bool   `help:"Replace an existing template of the same name"`
}

func (c *TemplatesAddCmd) Run(a *app) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return errors.NewIO("read", c.File, err)
	}
	def, err := template.Load(data)
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	if c.Name != "" {
		def.Name = c.Name
	}
	if err := template.RegisterAndSave(context.Background(), a.pipe.Templates(), a.store, def, c.Overwrite); err != nil {
		return err
	}
	if a.store == nil {
		logging.Warn("no template store configured, template not persisted", "name", def.Name)
	}
	fmt.Fprintf(a.stdout, "Added template: %s\n", strings.TrimSpace(def.Name))
	return nil
}

// TemplatesRemoveCmd deletes a stored template.
type TemplatesRemoveCmd struct {
	Name string `arg:"" help:"Template name"`
}

func (c *TemplatesRemoveCmd) Run(a *app) error {
	if a.store == nil {
		return errors.NewValidation("templates.store", "no template store configured")
	}
	if err := a.store.Delete(context.Background(), c.Name); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Removed template: %s\n", c.Name)
	return nil
}

// ServeCmd starts the API server. Flags override the configuration file.
type ServeCmd struct {
	Port           int      `help:"HTTP server port (default from configuration, 8080)"`
	APIKey         string   `name:"api-key" help:"Require this API key" env:"LEGACYBRIDGE_API_KEY"`
	RateLimit      int      `name:"rate-limit" help:"Requests per minute per client (0 = configuration value)"`
	AllowedOrigins []string `name:"allowed-origin" help:"Allowed CORS and WebSocket origin (repeatable)"`
	TLSCert        string   `name:"tls-cert" help:"TLS certificate file" type:"existingfile"`
	TLSKey         string   `name:"tls-key" help:"TLS private key file" type:"existingfile"`
}

// serverConfig merges the flags into the configuration file's settings.
func (c *ServeCmd) serverConfig(base config.ServerConfig) config.ServerConfig {
	if c.Port != 0 {
		base.Port = c.Port
	}
	if c.APIKey != "" {
		base.APIKey = c.APIKey
	}
	if c.RateLimit != 0 {
		base.RateLimitRequests = c.RateLimit
	}
	if len(c.AllowedOrigins) > 0 {
		base.AllowedOrigins = c.AllowedOrigins
	}
	if c.TLSCert != "" {
		base.TLSCert, base.TLSKey = c.TLSCert, c.TLSKey
	}
	return base
}

func (c *ServeCmd) Run(a *app) error {
	srv, err := api.NewServer(api.ConfigFrom(c.serverConfig(a.cfg.Server)), a.pipe, a.store)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx)
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	fmt.Fprintf(a.stdout, "legacybridge version %s\n", ffi.Version)
	return nil
}

// run parses args and runs the selected command.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer, options ...kong.Option) error {
	var cli CLI
	options = append([]kong.Option{
		kong.Name("legacybridge"),
		kong.Description("LegacyBridge - RTF and Markdown conversion"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Writers(stdout, stderr),
	}, options...)
	parser, err := kong.New(&cli, options...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	a, err := newApp(context.Background(), &cli, stdin, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	return kctx.Run(a)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "legacybridge: error: %v\n", err)
		os.Exit(1)
	}
}
