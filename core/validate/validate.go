// Package validate checks raw input before parsing and the built document
// after parsing. Checks never fail on content; they return findings. Only
// the input size check returns an error.
package validate

import (
	"bytes"
	"regexp"
	"strconv"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
	"github.com/FocuswithJustin/LegacyBridge/core/security"
)

// Finding codes.
const (
	CodeNestingLimit    = "nesting_limit"
	CodeMissingHeader   = "missing_rtf_header"
	CodeForbiddenWord   = "forbidden_control_word"
	CodeNULByte         = "nul_byte"
	CodeScriptInjection = "script_injection"
	CodeDanglingFont    = "dangling_font"
	CodeDanglingColor   = "dangling_color"
	CodeTableTooLarge   = "table_too_large"
	CodeRaggedTable     = "ragged_table"
	CodeHeadingLevel    = "heading_level"
	CodeInvalidText     = "invalid_text"
	CodeRunTooLong      = "run_too_long"
	CodeNotNFC          = "not_nfc"
)

// scriptPatterns flag Markdown content that would execute when the output
// is rendered as HTML.
var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)<iframe[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)\bon(load|error|click|mouseover)\s*=`),
}

// Pre runs the cheap checks on raw input. It returns a Limit error when the
// input is larger than the configured maximum.
func Pre(input []byte, format ir.Format, limits security.Limits, policy *security.Policy) ([]report.Finding, error) {
	limits = limits.Normalize()
	if len(input) > limits.MaxFileSize {
		return nil, errors.NewLimit(0, "input size %d exceeds maximum %d", len(input), limits.MaxFileSize)
	}
	if policy == nil {
		policy = security.DefaultPolicy()
	}

	var fs []report.Finding
	if i := bytes.IndexByte(input, 0); i >= 0 {
		fs = append(fs, report.Finding{
			Severity: report.SeverityWarning, Code: CodeNULByte, Location: report.AtOffset(i),
			Message: "input contains NUL bytes",
		})
	}

	switch format {
	case ir.FormatRTF:
		fs = append(fs, preRTF(input, limits, policy)...)
	case ir.FormatMarkdown:
		fs = append(fs, preMarkdown(input)...)
	}
	return fs, nil
}

func preRTF(input []byte, limits security.Limits, policy *security.Policy) []report.Finding {
	var fs []report.Finding
	trimmed := bytes.TrimLeft(input, " \t\r\n\xef\xbb\xbf")
	if !bytes.HasPrefix(trimmed, []byte(`{\rtf`)) {
		fs = append(fs, report.Finding{
			Severity: report.SeverityWarning, Code: CodeMissingHeader, Location: report.AtOffset(0),
			Message: `input does not start with {\rtf`,
		})
	}

	depth, deepest, deepAt := 0, 0, -1
	seen := map[string]bool{}
	for i := 0; i < len(input); i++ {
		switch input[i] {
		case '{':
			depth++
			if depth > deepest {
				deepest = depth
				if depth > limits.MaxNestingDepth && deepAt < 0 {
					deepAt = i
				}
			}
		case '}':
			if depth > 0 {
				depth--
			}
		case '\\':
			if i+1 >= len(input) {
				continue
			}
			if !isLetter(input[i+1]) {
				i++
				continue
			}
			j := i + 1
			for j < len(input) && isLetter(input[j]) && j-i <= limits.MaxControlWordLength {
				j++
			}
			word := string(input[i+1 : j])
			if !seen[word] && !policy.Allowed(word) {
				seen[word] = true
				fs = append(fs, report.Finding{
					Severity: report.SeverityWarning, Code: CodeForbiddenWord, Location: report.AtOffset(i),
					Message: `forbidden control word \` + word,
				})
			}
			i = j - 1
		}
	}
	if deepAt >= 0 {
		fs = append(fs, report.Finding{
			Severity: report.SeverityError, Code: CodeNestingLimit, Location: report.AtOffset(deepAt),
			Message: "group nesting reaches " + itoa(deepest) + ", maximum is " + itoa(limits.MaxNestingDepth),
		})
	}
	return fs
}

func preMarkdown(input []byte) []report.Finding {
	var fs []report.Finding
	for _, re := range scriptPatterns {
		if loc := re.FindIndex(input); loc != nil {
			fs = append(fs, report.Finding{
				Severity: report.SeverityWarning, Code: CodeScriptInjection, Location: report.AtOffset(loc[0]),
				Message: "possible script injection: " + string(input[loc[0]:loc[1]]),
			})
		}
	}
	return fs
}

// Post checks a built document.
func Post(doc *ir.Document, limits security.Limits) []report.Finding {
	limits = limits.Normalize()
	var fs []report.Finding
	add := func(sev report.Severity, code string, p ir.Path, msg string) {
		fs = append(fs, report.Finding{Severity: sev, Code: code, Location: p.String(), Message: msg})
	}

	ir.Walk(doc.Blocks, func(p ir.Path, b *ir.Block) bool {
		switch b.Kind {
		case ir.KindHeading:
			if b.Level < 1 || b.Level > 6 {
				add(report.SeverityError, CodeHeadingLevel, p, "heading level "+itoa(b.Level)+" outside 1-6")
			}
		case ir.KindTable:
			if len(b.Rows) > limits.MaxTableRows || b.Columns() > limits.MaxTableColumns {
				add(report.SeverityError, CodeTableTooLarge, p,
					"table is "+itoa(len(b.Rows))+"x"+itoa(b.Columns())+", maximum is "+
						itoa(limits.MaxTableRows)+"x"+itoa(limits.MaxTableColumns))
			}
			if b.Ragged() {
				add(report.SeverityError, CodeRaggedTable, p, "table rows have different cell counts")
			}
		}

		for i, r := range b.Runs {
			rp := append(append(ir.Path{}, p...), i)
			if !doc.HasFont(r.Attrs.Font) {
				add(report.SeverityError, CodeDanglingFont, rp, "font "+itoa(r.Attrs.Font)+" is not in the font table")
			}
			if !doc.HasColor(r.Attrs.Color) {
				add(report.SeverityError, CodeDanglingColor, rp, "color "+itoa(r.Attrs.Color)+" is not in the color table")
			}
			if msg := checkText(r.Text); msg != "" {
				add(report.SeverityError, CodeInvalidText, rp, msg)
			}
			if len(r.Text) > limits.MaxTextChunk {
				add(report.SeverityWarning, CodeRunTooLong, rp, "run of "+itoa(len(r.Text))+" bytes exceeds the chunk size")
			}
			if !norm.NFC.IsNormalString(r.Text) {
				add(report.SeverityInfo, CodeNotNFC, rp, "text is not in NFC form")
			}
		}
		return true
	})
	return fs
}

// checkText reports invalid UTF-8 or control characters other than tab
// and newline.
func checkText(s string) string {
	if !utf8.ValidString(s) {
		return "run text is not valid UTF-8"
	}
	for _, r := range s {
		if r != '\t' && r != '\n' && unicode.IsControl(r) {
			return "run text contains control character " + quoteRune(r)
		}
	}
	return ""
}

// CleanText replaces invalid UTF-8 and disallowed control characters.
func CleanText(s string) string {
	if checkText(s) == "" {
		return s
	}
	var b []byte
	for _, r := range s {
		if r == utf8.RuneError || (r != '\t' && r != '\n' && unicode.IsControl(r)) {
			b = utf8.AppendRune(b, 0xFFFD)
			continue
		}
		b = utf8.AppendRune(b, r)
	}
	return string(b)
}

func itoa(n int) string { return strconv.Itoa(n) }

func quoteRune(r rune) string { return strconv.QuoteRune(r) }

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
