package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/LegacyBridge/internal/archive"
	"github.com/FocuswithJustin/LegacyBridge/internal/config"
)

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

// runCLI runs the command line with stdin and returns standard output and
// standard error.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.EnvPath, "")
	var stdout, stderr bytes.Buffer
	err := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "legacybridge version 1.") {
		t.Errorf("output = %q", out)
	}
}

func TestConvertStdin(t *testing.T) {
	out, _, err := runCLI(t, `{\rtf1 Hello \b world\b0}`, "convert", "-")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "Hello **world**" {
		t.Errorf("output = %q", out)
	}

	out, _, err = runCLI(t, "# Title", "convert", "-", "--to", "rtf")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, `{\rtf1`) {
		t.Errorf("output = %q", out)
	}
}

func TestConvertFileWithReport(t *testing.T) {
	dir := t.TempDir()
	in := createTestFile(t, dir, "doc.md", "**bold** text")
	out := filepath.Join(dir, "doc.rtf.gz")
	rep := filepath.Join(dir, "report.json")

	if _, _, err := runCLI(t, "", "convert", in, "-o", out, "--report", rep); err != nil {
		t.Fatal(err)
	}
	data, err := archive.ReadFile(out, 1<<20)
	if err != nil {
		t.Fatalf("read compressed output: %v", err)
	}
	if !strings.Contains(string(data), `\b`) {
		t.Errorf("output = %q", data)
	}

	raw, err := os.ReadFile(rep)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m["valid"] != true {
		t.Errorf("report = %s, %v", raw, err)
	}
}

func TestConvertOptions(t *testing.T) {
	input := `{\rtf1 {\object secret} visible\par}`

	out, _, err := runCLI(t, input, "convert", "-")
	if err != nil || strings.Contains(out, "secret") || !strings.Contains(out, "visible") {
		t.Errorf("lenient = %q, %v", out, err)
	}

	_, _, err = runCLI(t, input, "--set", "strict_validation=true", "convert", "-")
	if err == nil || !strings.Contains(err.Error(), "object") {
		t.Errorf("strict error = %v", err)
	}

	out, _, err = runCLI(t, "Body", "-s", "template=memo", "-s", "var.company=Globex, Inc", "convert", "-", "--to", "rtf")
	if err != nil || !strings.Contains(out, "Globex, Inc") {
		t.Errorf("template output = %q, %v", out, err)
	}

	if _, _, err := runCLI(t, "x", "--set", "bogus", "convert", "-"); err == nil {
		t.Error("option without value accepted")
	}
	if _, _, err := runCLI(t, "x", "--set", "bogus=1", "convert", "-"); err == nil {
		t.Error("unknown option accepted")
	}
	if _, _, err := runCLI(t, "x", "convert", "-", "--to", "docx"); err == nil {
		t.Error("unknown target accepted")
	}
}

func TestValidate(t *testing.T) {
	out, _, err := runCLI(t, `{\rtf1 Hello\par}`, "validate", "-")
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil || m["valid"] != true {
		t.Errorf("report = %s, %v", out, err)
	}

	out, _, err = runCLI(t, `{\rtf1 Hello`, "validate", "-", "--format", "rtf")
	if err == nil || !strings.Contains(err.Error(), "document is invalid") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(out, `"valid": false`) && !strings.Contains(out, `"valid":false`) {
		t.Errorf("report = %s", out)
	}

	if _, _, err := runCLI(t, "x", "validate", "-", "--format", "docx"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.md", "# A")
	b := createTestFile(t, dir, "b.markdown", "b")
	outDir := filepath.Join(dir, "out")

	out, _, err := runCLI(t, "", "batch", a, b, "--out-dir", outDir, "--to", "rtf")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.rtf", "b.rtf"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing %s: %v (output %q)", name, err, out)
		}
	}

	bad := createTestFile(t, dir, "bad.rtf", `{\rtf1 {\b bad}`)
	good := createTestFile(t, dir, "good.rtf", `{\rtf1 good}`)
	_, stderr, err := runCLI(t, "", "-s", "auto_recovery=false", "batch", bad, good, "-o", outDir, "--to", "md")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 documents failed") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(stderr, "FAIL "+bad) {
		t.Errorf("stderr = %q", stderr)
	}
	if _, err := os.Stat(filepath.Join(outDir, "good.md")); err != nil {
		t.Error(err)
	}
}

func TestDir(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	createTestFile(t, in, "one.md", "# One")
	if err := os.MkdirAll(filepath.Join(in, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	createTestFile(t, in, "sub/two.md", "two")
	createTestFile(t, in, "skip.txt", "ignored")
	bundle := filepath.Join(t.TempDir(), "out.tar.xz")

	stdout, _, err := runCLI(t, "", "dir", in, out, "--to", "rtf", "--bundle", bundle)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Converted 2 of 2 files") || !strings.Contains(stdout, "(2 files)") {
		t.Errorf("output = %q", stdout)
	}
	entries, err := archive.Entries(bundle)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(entries, ",") != "one.rtf,sub/two.rtf" {
		t.Errorf("bundle entries = %v", entries)
	}
}

func TestOperations(t *testing.T) {
	tests := []struct {
		args []string
		in   string
		want string
	}{
		{[]string{"extract", "text", "-"}, `{\rtf1 First \b bold\b0\par Second}`, "First bold\n\nSecond"},
		{[]string{"extract", "tables", "-"}, "| a | b |\n|---|---|\n| 1 | 2 |\n", "a,b\n1,2\n"},
		{[]string{"normalize", "-"}, "* one\n", "- one"},
		{[]string{"clean", "-"}, `{\rtf1{\object{\objdata 0102}secret} visible\par}`, "visible"},
		{[]string{"apply-template", "-", "-t", "memo", "--var", "company=Initech"}, "Body", "Initech"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args[:len(tt.args)-1], " "), func(t *testing.T) {
			out, _, err := runCLI(t, tt.in, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}

	if _, _, err := runCLI(t, "Body", "apply-template", "-", "-t", "missing"); err == nil {
		t.Error("missing template accepted")
	}
}

func TestTemplates(t *testing.T) {
	dir := t.TempDir()
	cfgPath := createTestFile(t, dir, "config.yaml", "templates:\n  store: "+filepath.Join(dir, "templates.db")+"\n")
	def := createTestFile(t, dir, "letter.yaml", "name: letter\ndescription: Plain letter\nheader: \"# {{title}}\"\n")

	out, _, err := runCLI(t, "", "-c", cfgPath, "templates", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "memo") || !strings.Contains(out, "report") || strings.Contains(out, "letter") {
		t.Errorf("list = %q", out)
	}

	if _, _, err := runCLI(t, "", "-c", cfgPath, "templates", "add", def); err != nil {
		t.Fatal(err)
	}
	// Persisted across runs through the store.
	out, _, err = runCLI(t, "", "-c", cfgPath, "templates", "list")
	if err != nil || !strings.Contains(out, "Plain letter") {
		t.Errorf("list after add = %q, %v", out, err)
	}
	out, _, err = runCLI(t, "", "-c", cfgPath, "templates", "show", "letter")
	if err != nil || !strings.Contains(out, "name: letter") || !strings.Contains(out, "unbound_variable") {
		t.Errorf("show = %q, %v", out, err)
	}
	out, _, err = runCLI(t, "Body", "-c", cfgPath, "apply-template", "-", "-t", "letter", "--var", "title=Dear")
	if err != nil || !strings.Contains(out, "# Dear") {
		t.Errorf("apply stored template = %q, %v", out, err)
	}

	if _, _, err := runCLI(t, "", "-c", cfgPath, "templates", "add", def); err == nil {
		t.Error("duplicate add accepted")
	}
	if _, _, err := runCLI(t, "", "-c", cfgPath, "templates", "add", def, "--name", "letter2"); err != nil {
		t.Errorf("add under another name: %v", err)
	}

	if _, _, err := runCLI(t, "", "-c", cfgPath, "templates", "remove", "letter"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, "", "-c", cfgPath, "templates", "remove", "letter"); err == nil {
		t.Error("second remove succeeded")
	}
	if _, _, err := runCLI(t, "", "templates", "remove", "memo"); err == nil {
		t.Error("remove without a store succeeded")
	}
}

func TestServeConfig(t *testing.T) {
	cmd := ServeCmd{Port: 9090, APIKey: "k", AllowedOrigins: []string{"https://a.example"}}
	got := cmd.serverConfig(config.Default().Server)
	if got.Port != 9090 || got.APIKey != "k" || len(got.AllowedOrigins) != 1 || got.RateLimitBurst != 10 {
		t.Errorf("serverConfig() = %+v", got)
	}

	got = (&ServeCmd{}).serverConfig(config.Default().Server)
	if got.Port != 8080 || got.APIKey != "" {
		t.Errorf("serverConfig() without flags = %+v", got)
	}
}

func TestBadConfig(t *testing.T) {
	cfgPath := createTestFile(t, t.TempDir(), "config.yaml", "bogus: 1\n")
	if _, _, err := runCLI(t, "", "-c", cfgPath, "version"); err == nil {
		t.Error("unknown configuration key accepted")
	}
	if _, _, err := runCLI(t, "", "--log-level", "loud", "version"); err == nil {
		t.Error("unknown log level accepted")
	}
	if _, _, err := runCLI(t, "", "nonsense"); err == nil {
		t.Error("unknown command accepted")
	}
}
