// Package recovery repairs malformed input after a failed parse. Strategies
// are tried least destructive first, each at most once per error location,
// within a single bounded pass.
package recovery

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
)

// Strategy is one repair technique.
type Strategy int

// Strategies in the order they are tried.
const (
	InsertMissingDelimiter Strategy = iota
	SkipToken
	ReplaceInvalidByte
	TruncateAtLimit
	BestEffortAccept
)

// Order lists every strategy, least destructive first.
var Order = []Strategy{InsertMissingDelimiter, SkipToken, ReplaceInvalidByte, TruncateAtLimit, BestEffortAccept}

// DefaultMaxAttempts bounds the repairs of one pass.
const DefaultMaxAttempts = 8

func (s Strategy) String() string {
	return s.Action().String()
}

// Action returns the report action kind recorded for s.
func (s Strategy) Action() report.ActionKind {
	switch s {
	case InsertMissingDelimiter:
		return report.InsertMissingDelimiter
	case SkipToken:
		return report.SkipToken
	case ReplaceInvalidByte:
		return report.ReplaceInvalidByte
	case TruncateAtLimit:
		return report.TruncateAtLimit
	case BestEffortAccept:
		return report.BestEffortAccept
	}
	panic(fmt.Sprintf("recovery: unknown strategy %d", int(s)))
}

// ParseFunc parses input. On error it may return the partially built
// document.
type ParseFunc func(ctx context.Context, data []byte) (*ir.Document, error)

// Engine runs recovery passes for one input format.
type Engine struct {
	Format ir.Format
	Parse  ParseFunc
	// MaxAttempts bounds the repairs tried in one pass. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int
}

// Result is the outcome of a recovery pass. Actions holds every attempted
// repair, successful or not, in order.
type Result struct {
	Doc     *ir.Document
	Input   []byte
	Actions []report.RecoveryAction
}

type attemptKey struct {
	strategy Strategy
	offset   int
}

// Recover repairs input after cause, the error returned by parsing it, and
// partial, the document built before the error. Errors that are not
// recoverable are returned unchanged with no actions. When no strategy
// succeeds, cause is returned with the attempted actions.
func (e *Engine) Recover(ctx context.Context, input []byte, partial *ir.Document, cause error) (*Result, error) {
	res := &Result{Input: input}
	ce, ok := errors.AsConversion(cause)
	if !ok || !ce.Recoverable() {
		return res, cause
	}

	limit := e.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	tried := map[attemptKey]bool{}
	data, doc, cur := input, partial, ce

	for attempt := 0; attempt < limit; attempt++ {
		s, ok := e.next(cur, doc, tried)
		if !ok {
			break
		}

		if s == BestEffortAccept {
			doc.Meta.Truncated = true
			res.Actions = append(res.Actions, report.RecoveryAction{
				Kind:        s.Action(),
				Description: fmt.Sprintf("accepted partial document of %d blocks after: %s", len(doc.Blocks), cur.Message),
				Offset:      cur.Offset,
				Success:     true,
			})
			res.Doc, res.Input = doc, data
			return res, nil
		}

		repaired, desc := e.apply(s, data, cur)
		next, err := e.Parse(ctx, repaired)
		res.Actions = append(res.Actions, report.RecoveryAction{
			Kind: s.Action(), Description: desc, Offset: cur.Offset, Success: err == nil,
		})

		if err == nil {
			if s == TruncateAtLimit {
				next.Meta.Truncated = true
			}
			res.Doc, res.Input = next, repaired
			return res, nil
		}

		nce, ok := errors.AsConversion(err)
		if !ok || !nce.Recoverable() {
			break
		}
		// A repair that leaves the same error in place has failed at this
		// location; otherwise continue from the repaired input.
		if nce.Kind == cur.Kind && nce.Offset == cur.Offset && len(repaired) == len(data) {
			tried[attemptKey{s, cur.Offset}] = true
			continue
		}
		data, cur = repaired, nce
		if next != nil {
			doc = next
		}
	}
	return res, cause
}

// next picks the first applicable strategy not yet tried at the error's
// location.
func (e *Engine) next(ce *errors.ConversionError, doc *ir.Document, tried map[attemptKey]bool) (Strategy, bool) {
	for _, s := range Order {
		if tried[attemptKey{s, ce.Offset}] {
			continue
		}
		if e.applies(s, ce, doc) {
			return s, true
		}
	}
	return 0, false
}

func (e *Engine) applies(s Strategy, ce *errors.ConversionError, doc *ir.Document) bool {
	switch s {
	case InsertMissingDelimiter:
		return e.Format == ir.FormatRTF && ce.Kind == errors.KindSyntax && ce.Missing == 1
	case SkipToken:
		return ce.Kind == errors.KindSyntax && ce.Missing == 0 && ce.Offset >= 0
	case ReplaceInvalidByte:
		return ce.Kind == errors.KindEncoding && ce.Offset >= 0
	case TruncateAtLimit:
		return ce.Offset > 0
	case BestEffortAccept:
		return doc != nil && len(doc.Blocks) > 0
	}
	panic(fmt.Sprintf("recovery: unknown strategy %d", int(s)))
}

func (e *Engine) apply(s Strategy, data []byte, ce *errors.ConversionError) ([]byte, string) {
	switch s {
	case InsertMissingDelimiter:
		out := append(append([]byte(nil), data...), '}')
		return out, "inserted missing closing brace at end of input"
	case SkipToken:
		n := tokenLength(data, ce.Offset)
		out := append(append([]byte(nil), data[:ce.Offset]...), data[ce.Offset+n:]...)
		return out, fmt.Sprintf("skipped malformed token %q", truncate(data[ce.Offset:ce.Offset+n]))
	case ReplaceInvalidByte:
		out, n := e.replaceInvalid(data)
		return out, fmt.Sprintf("replaced %d invalid byte(s) with a placeholder", n)
	case TruncateAtLimit:
		return e.truncate(data, ce.Offset)
	}
	panic(fmt.Sprintf("recovery: strategy %s does not rewrite input", s))
}

// tokenLength returns the byte length of the token at off: a control word
// with its parameter and delimiting space, or a single byte.
func tokenLength(data []byte, off int) int {
	if off >= len(data) {
		return 0
	}
	if data[off] != '\\' || off+1 >= len(data) {
		return 1
	}
	i := off + 1
	if !isLetter(data[i]) {
		if data[i] == '\'' {
			return min(len(data)-off, 4)
		}
		return 2
	}
	for i < len(data) && isLetter(data[i]) {
		i++
	}
	if i < len(data) && data[i] == '-' {
		i++
	}
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}
	if i < len(data) && data[i] == ' ' {
		i++
	}
	return i - off
}

// rtfPlaceholder is the replacement character as an RTF unicode escape.
var rtfPlaceholder = []byte("\\u" + "65533?")

var utf8Placeholder = []byte(string(rune(0xFFFD)))

func (e *Engine) replaceInvalid(data []byte) ([]byte, int) {
	if e.Format != ir.FormatRTF {
		out := bytes.ToValidUTF8(data, utf8Placeholder)
		n := 0
		for i := 0; i < len(data); {
			r, size := utf8.DecodeRune(data[i:])
			if r == utf8.RuneError && size == 1 {
				n++
			}
			i += size
		}
		return out, n
	}
	var out []byte
	n := 0
	for _, c := range data {
		if c < 0x20 && c != '\t' && c != '\r' && c != '\n' {
			out = append(out, rtfPlaceholder...)
			n++
			continue
		}
		out = append(out, c)
	}
	return out, n
}

// truncate cuts data at off. RTF input gets its open groups closed.
func (e *Engine) truncate(data []byte, off int) ([]byte, string) {
	if off > len(data) {
		off = len(data)
	}
	if e.Format != ir.FormatRTF {
		cut := bytes.LastIndexByte(data[:off], '\n')
		if cut < 0 {
			cut = off
		}
		return append([]byte(nil), data[:cut]...), fmt.Sprintf("truncated input at offset %d", cut)
	}
	out := append([]byte(nil), data[:off]...)
	depth := openGroups(out)
	out = append(out, bytes.Repeat([]byte{'}'}, depth)...)
	return out, fmt.Sprintf("truncated input at offset %d and closed %d group(s)", off, depth)
}

// openGroups counts the groups left open in RTF data.
func openGroups(data []byte) int {
	depth := 0
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return depth
}

func truncate(b []byte) string {
	const n = 32
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
