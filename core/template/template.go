// Package template holds named document templates and applies them to
// documents. A template adds header and footer blocks, merges per-kind
// style rules onto runs and substitutes {{NAME}} placeholders.
package template

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/markdown"
)

// DefaultCapacity bounds the number of registered templates.
const DefaultCapacity = 256

// StyleRule overrides run attributes of one block kind. Unset fields leave
// the run unchanged.
type StyleRule struct {
	Bold      *bool  `yaml:"bold,omitempty" json:"bold,omitempty"`
	Italic    *bool  `yaml:"italic,omitempty" json:"italic,omitempty"`
	Underline *bool  `yaml:"underline,omitempty" json:"underline,omitempty"`
	Strike    *bool  `yaml:"strike,omitempty" json:"strike,omitempty"`
	Font      string `yaml:"font,omitempty" json:"font,omitempty"`
	// Family is the RTF font family of Font, such as "swiss" or "roman".
	Family string `yaml:"family,omitempty" json:"family,omitempty"`
	// Size is in points.
	Size int `yaml:"size,omitempty" json:"size,omitempty"`
	// Color is "#RRGGBB".
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// Definition describes a template. Header and Footer are Markdown source.
type Definition struct {
	Name        string               `yaml:"name" json:"name"`
	Description string               `yaml:"description,omitempty" json:"description,omitempty"`
	Header      string               `yaml:"header,omitempty" json:"header,omitempty"`
	Footer      string               `yaml:"footer,omitempty" json:"footer,omitempty"`
	Styles      map[string]StyleRule `yaml:"styles,omitempty" json:"styles,omitempty"`
	Variables   map[string]string    `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// Template is a registered, compiled definition. It is never modified after
// registration.
type Template struct {
	Definition
	// Fingerprint is the BLAKE3 digest of the definition's content.
	Fingerprint string

	header, footer []ir.Block
	styles         map[ir.BlockKind]style
}

type style struct {
	rule   StyleRule
	color  [3]uint8
	hasRGB bool
}

// compile parses the header and footer and checks the style rules.
func compile(def Definition) (*Template, error) {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return nil, errors.NewValidation("name", "template name is empty")
	}
	t := &Template{Definition: def, styles: map[ir.BlockKind]style{}}

	var err error
	if t.header, err = parseBlocks(def.Header); err != nil {
		return nil, errors.NewValidation("header", err.Error())
	}
	if t.footer, err = parseBlocks(def.Footer); err != nil {
		return nil, errors.NewValidation("footer", err.Error())
	}
	for key, rule := range def.Styles {
		kind, ok := ir.ParseBlockKind(key)
		if !ok {
			return nil, errors.NewValidation("styles", fmt.Sprintf("unknown block kind %q", key))
		}
		s := style{rule: rule}
		if rule.Color != "" {
			rgb, err := parseColor(rule.Color)
			if err != nil {
				return nil, errors.NewValidation("styles."+key+".color", err.Error())
			}
			s.color, s.hasRGB = rgb, true
		}
		if rule.Size < 0 || rule.Size > 1638 {
			return nil, errors.NewValidation("styles."+key+".size", fmt.Sprintf("size %d out of range", rule.Size))
		}
		t.styles[kind] = s
	}
	t.Fingerprint = fingerprint(def)
	return t, nil
}

func parseBlocks(src string) ([]ir.Block, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	doc, err := markdown.Parse(context.Background(), []byte(src), markdown.Options{})
	if err != nil {
		return nil, err
	}
	return doc.Blocks, nil
}

func parseColor(s string) ([3]uint8, error) {
	var rgb [3]uint8
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return rgb, fmt.Errorf("color %q is not #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return rgb, fmt.Errorf("color %q is not #RRGGBB", s)
	}
	return [3]uint8{uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
}

// fingerprint hashes the definition in a stable field order.
func fingerprint(def Definition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\x00%s\x00%s\x00%s\x00", def.Name, def.Description, def.Header, def.Footer)
	for _, k := range sortedKeys(def.Styles) {
		fmt.Fprintf(&sb, "%s=%s\x00", k, describeRule(def.Styles[k]))
	}
	for _, k := range sortedKeys(def.Variables) {
		fmt.Fprintf(&sb, "%s=%s\x00", k, def.Variables[k])
	}
	return ir.HashString(sb.String())
}

func describeRule(r StyleRule) string {
	b := func(p *bool) string {
		if p == nil {
			return "-"
		}
		return strconv.FormatBool(*p)
	}
	return fmt.Sprintf("%s,%s,%s,%s,%s,%s,%d,%s", b(r.Bold), b(r.Italic), b(r.Underline), b(r.Strike), r.Font, r.Family, r.Size, r.Color)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Registry is a bounded, concurrency-safe set of templates. Apply calls
// share a read lock; Register and Clear are exclusive.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	capacity  int
}

// NewRegistry creates an empty registry. A capacity of zero or less means
// DefaultCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{templates: make(map[string]*Template), capacity: capacity}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry. It is created on first use
// with the built-in templates registered.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(DefaultCapacity)
		for _, def := range Builtins() {
			if err := defaultRegistry.Register(def, false); err != nil {
				panic(fmt.Sprintf("template: built-in %q: %v", def.Name, err))
			}
		}
	})
	return defaultRegistry
}

// Register adds def. An existing template of the same name is replaced only
// when overwrite is set. A full registry rejects new names with a Limit
// error.
func (r *Registry) Register(def Definition, overwrite bool) error {
	t, err := compile(def)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[t.Name]; exists {
		if !overwrite {
			return errors.NewAlreadyExists("template", t.Name)
		}
	} else if len(r.templates) >= r.capacity {
		return errors.NewLimit(-1, "template registry is full (%d templates)", r.capacity)
	}
	r.templates[t.Name] = t
	return nil
}

// Get returns the named template.
func (r *Registry) Get(name string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	if !ok {
		return nil, errors.NewNotFound("template", name)
	}
	return t, nil
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.templates)
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// Remove deletes the named template.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[name]; !ok {
		return errors.NewNotFound("template", name)
	}
	delete(r.templates, name)
	return nil
}

// Clear removes every template.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = make(map[string]*Template)
}

// Builtins returns the definitions of the built-in templates.
func Builtins() []Definition {
	yes := true
	return []Definition{
		{
			Name:        "memo",
			Description: "Internal memorandum with company header and confidentiality footer",
			Header:      "**{{company}}** - Internal Memorandum\n\n---",
			Footer:      "---\n\nConfidential",
			Styles: map[string]StyleRule{
				"heading":   {Bold: &yes, Font: "Arial", Family: "swiss", Color: "#1F3864"},
				"paragraph": {Font: "Arial", Family: "swiss", Size: 11},
			},
			Variables: map[string]string{"company": "ACME Corporation"},
		},
		{
			Name:        "report",
			Description: "Report with title header and proprietary footer",
			Header:      "# {{title}}\n\n{{date}}",
			Footer:      "---\n\n{{company}} - Proprietary Information",
			Styles: map[string]StyleRule{
				"heading":   {Bold: &yes, Font: "Times New Roman", Family: "roman"},
				"paragraph": {Font: "Times New Roman", Family: "roman", Size: 12},
				"table":     {Font: "Times New Roman", Family: "roman", Size: 10},
			},
			Variables: map[string]string{"company": "ACME Corporation", "title": "Report"},
		},
	}
}
