package template

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// textGrammar splits run text into literal parts and {{NAME}} placeholders.
// Every input lexes, so parsing only fails on internal errors.
//
//nolint:govet // participle grammar tags are not standard struct tags
type textGrammar struct {
	Parts []*textPart `parser:"@@*"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type textPart struct {
	Var     *string `parser:"  @Placeholder"`
	Literal *string `parser:"| @(Text | Brace)"`
}

var textLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Placeholder", Pattern: `\{\{[ \t]*[A-Za-z_][A-Za-z0-9_.-]*[ \t]*\}\}`},
	{Name: "Text", Pattern: `[^{]+`},
	{Name: "Brace", Pattern: `\{`},
})

var textParser = participle.MustBuild[textGrammar](
	participle.Lexer(textLexer),
)

// placeholderName strips the braces and padding of a placeholder token.
func placeholderName(tok string) string {
	return strings.TrimSpace(tok[2 : len(tok)-2])
}

func parseText(s string) (*textGrammar, error) {
	return textParser.ParseString("", s)
}

// Substitute replaces {{NAME}} placeholders in s with values from vars.
// Unknown placeholders are kept verbatim.
func Substitute(s string, vars map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	g, err := parseText(s)
	if err != nil {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, p := range g.Parts {
		switch {
		case p.Var != nil:
			if v, ok := vars[placeholderName(*p.Var)]; ok {
				sb.WriteString(v)
			} else {
				sb.WriteString(*p.Var)
			}
		case p.Literal != nil:
			sb.WriteString(*p.Literal)
		}
	}
	return sb.String()
}

// Placeholders returns the distinct placeholder names in s, in order of
// first appearance.
func Placeholders(s string) []string {
	if !strings.Contains(s, "{{") {
		return nil
	}
	g, err := parseText(s)
	if err != nil {
		return nil
	}
	var names []string
	seen := map[string]bool{}
	for _, p := range g.Parts {
		if p.Var == nil {
			continue
		}
		name := placeholderName(*p.Var)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
