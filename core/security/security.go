// Package security defines the resource limits and control-word policy
// enforced while parsing untrusted documents.
package security

import (
	"sort"
	"time"
)

// Limits bounds the resources a single conversion may use.
type Limits struct {
	// MaxFileSize is the maximum input size in bytes (default 10 MiB).
	MaxFileSize int `json:"max_file_size" yaml:"max_file_size"`
	// MaxOutputSize is the maximum generated output size in bytes (default 4x MaxFileSize).
	MaxOutputSize int `json:"max_output_size" yaml:"max_output_size"`
	// MaxTextChunk is the maximum length of a single text run (default 1 MiB).
	MaxTextChunk int `json:"max_text_chunk" yaml:"max_text_chunk"`
	// MaxNestingDepth is the maximum group or delimiter depth (default 50).
	MaxNestingDepth int `json:"max_nesting_depth" yaml:"max_nesting_depth"`
	// MinNumber and MaxNumber bound control word parameters.
	MinNumber int `json:"min_number" yaml:"min_number"`
	MaxNumber int `json:"max_number" yaml:"max_number"`
	// MaxControlWordLength bounds the letters of a control word (default 32).
	MaxControlWordLength int `json:"max_control_word_length" yaml:"max_control_word_length"`
	// MaxTableRows and MaxTableColumns bound table dimensions (default 1000 x 100).
	MaxTableRows    int `json:"max_table_rows" yaml:"max_table_rows"`
	MaxTableColumns int `json:"max_table_columns" yaml:"max_table_columns"`
	// ProcessingTimeout bounds wall-clock time per conversion (default 30s).
	ProcessingTimeout time.Duration `json:"processing_timeout" yaml:"processing_timeout"`
}

// DefaultLimits returns the shipped limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:          10 << 20,
		MaxOutputSize:        40 << 20,
		MaxTextChunk:         1 << 20,
		MaxNestingDepth:      50,
		MinNumber:            -1_000_000,
		MaxNumber:            1_000_000,
		MaxControlWordLength: 32,
		MaxTableRows:         1000,
		MaxTableColumns:      100,
		ProcessingTimeout:    30 * time.Second,
	}
}

// Normalize fills zero fields with their defaults.
func (l Limits) Normalize() Limits {
	d := DefaultLimits()
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = d.MaxFileSize
	}
	if l.MaxOutputSize <= 0 {
		l.MaxOutputSize = 4 * l.MaxFileSize
	}
	if l.MaxTextChunk <= 0 {
		l.MaxTextChunk = d.MaxTextChunk
	}
	if l.MaxNestingDepth <= 0 {
		l.MaxNestingDepth = d.MaxNestingDepth
	}
	if l.MinNumber == 0 && l.MaxNumber == 0 {
		l.MinNumber, l.MaxNumber = d.MinNumber, d.MaxNumber
	}
	if l.MaxControlWordLength <= 0 {
		l.MaxControlWordLength = d.MaxControlWordLength
	}
	if l.MaxTableRows <= 0 {
		l.MaxTableRows = d.MaxTableRows
	}
	if l.MaxTableColumns <= 0 {
		l.MaxTableColumns = d.MaxTableColumns
	}
	if l.ProcessingTimeout <= 0 {
		l.ProcessingTimeout = d.ProcessingTimeout
	}
	return l
}

// defaultDenied are control words that embed objects, run field code or
// carry template/script-like payloads.
var defaultDenied = []string{
	"object", "objdata", "objemb", "objlink", "objautlink", "objsub", "objpub",
	"objicemb", "objhtml", "objocx",
	"datafield", "datastore", "result",
	"xe", "tc", "bkmkstart", "bkmkend",
	"field", "fldinst", "fldrslt",
	"shppict", "nonshppict",
}

// Policy decides which control words may be processed.
type Policy struct {
	denied  map[string]bool
	allowed map[string]bool // nil means allow everything not denied
}

// DefaultPolicy returns the default deny-list policy.
func DefaultPolicy() *Policy {
	return NewPolicy(defaultDenied, nil)
}

// NewPolicy builds a policy from a deny-list and an optional allow-list.
func NewPolicy(denied, allowed []string) *Policy {
	p := &Policy{denied: make(map[string]bool, len(denied))}
	for _, w := range denied {
		p.denied[w] = true
	}
	if allowed != nil {
		p.allowed = make(map[string]bool, len(allowed))
		for _, w := range allowed {
			p.allowed[w] = true
		}
	}
	return p
}

// DefaultDenied returns a copy of the default deny-list.
func DefaultDenied() []string {
	out := make([]string, len(defaultDenied))
	copy(out, defaultDenied)
	return out
}

// Allowed reports whether word may be processed.
func (p *Policy) Allowed(word string) bool {
	if p == nil {
		return true
	}
	if p.denied[word] {
		return false
	}
	if p.allowed != nil {
		return p.allowed[word]
	}
	return true
}

// Denied returns the sorted deny-list.
func (p *Policy) Denied() []string {
	out := make([]string, 0, len(p.denied))
	for w := range p.denied {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Whitelist returns the restrictive allow-list policy with the words a
// plain document needs.
func Whitelist() *Policy {
	return NewPolicy(nil, []string{
		"rtf", "ansi", "ansicpg", "deff", "deflang", "uc", "u",
		"fonttbl", "f", "froman", "fswiss", "fmodern", "fscript", "fdecor", "ftech", "fbidi", "fnil", "fcharset", "fprq",
		"colortbl", "red", "green", "blue",
		"par", "pard", "ql", "qr", "qc", "qj", "li", "ri", "fi", "sa", "sb", "sl", "slmult",
		"outlinelevel", "s", "ilvl", "listtext", "pntext", "brdrb", "brdrs", "brdrw", "brsp",
		"b", "i", "ul", "ulnone", "strike", "plain", "fs", "cf", "cb", "highlight",
		"line", "page", "bullet", "tab", "emdash", "endash", "lquote", "rquote", "ldblquote", "rdblquote",
		"trowd", "trgaph", "trleft", "cellx", "intbl", "cell", "row",
		"info", "title", "author", "creatim", "revtim",
		"paperw", "paperh", "margl", "margr", "margt", "margb",
	})
}
