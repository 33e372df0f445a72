// Package report defines validation findings, recovery actions and the
// per-conversion report returned alongside every output.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/FocuswithJustin/LegacyBridge/core/ir"
)

// Severity ranks a validation finding.
type Severity int

// Severities, least to most serious.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Finding is one validation result.
type Finding struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	// Location is a byte offset ("offset 12") or a block path ("/3/0/1/0").
	Location string `json:"location,omitempty"`
}

func (f Finding) String() string {
	if f.Location == "" {
		return fmt.Sprintf("%s: %s: %s", f.Severity, f.Code, f.Message)
	}
	return fmt.Sprintf("%s: %s at %s: %s", f.Severity, f.Code, f.Location, f.Message)
}

// AtOffset formats a byte offset location.
func AtOffset(off int) string { return fmt.Sprintf("offset %d", off) }

// ActionKind is the strategy a recovery action applied.
type ActionKind int

// Recovery action kinds.
const (
	SkipToken ActionKind = iota
	InsertMissingDelimiter
	ReplaceInvalidByte
	TruncateAtLimit
	BestEffortAccept
)

var actionNames = [...]string{
	SkipToken:              "skip_token",
	InsertMissingDelimiter: "insert_missing_delimiter",
	ReplaceInvalidByte:     "replace_invalid_byte",
	TruncateAtLimit:        "truncate_at_limit",
	BestEffortAccept:       "best_effort_accept",
}

func (k ActionKind) String() string {
	if k >= 0 && int(k) < len(actionNames) {
		return actionNames[k]
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActionKind) UnmarshalText(b []byte) error {
	for i, name := range actionNames {
		if name == string(b) {
			*k = ActionKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown recovery action %q", b)
}

// RecoveryAction records one repair attempt.
type RecoveryAction struct {
	Kind        ActionKind `json:"kind"`
	Description string     `json:"description"`
	// Offset is the input byte offset, or -1 for document-level repairs.
	Offset  int  `json:"offset"`
	Success bool `json:"success"`
}

// Outcome summarizes a conversion.
type Outcome string

// Outcomes.
const (
	OutcomeClean    Outcome = "clean"
	OutcomeRepaired Outcome = "repaired"
	OutcomeFailed   Outcome = "failed"
)

// Report accompanies every conversion. Findings and actions are appended in
// order and never removed.
type Report struct {
	ID           string           `json:"id,omitempty"`
	Direction    string           `json:"direction,omitempty"`
	Stage        string           `json:"stage,omitempty"`
	FailedAt     string           `json:"failed_at,omitempty"`
	Outcome      Outcome          `json:"outcome"`
	Valid        bool             `json:"valid"`
	Findings     []Finding        `json:"findings"`
	Actions      []RecoveryAction `json:"recovery_actions"`
	InputBytes   int              `json:"input_bytes"`
	OutputBytes  int              `json:"output_bytes,omitempty"`
	OutputBLAKE3 string           `json:"output_blake3,omitempty"`
	LossClass    ir.LossClass     `json:"loss_class,omitempty"`
	Duration     time.Duration    `json:"duration_ns,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// New returns an empty report.
func New() *Report {
	return &Report{Outcome: OutcomeClean, Valid: true, Findings: []Finding{}, Actions: []RecoveryAction{}}
}

// Add appends findings.
func (r *Report) Add(fs ...Finding) {
	r.Findings = append(r.Findings, fs...)
	for _, f := range fs {
		if f.Severity == SeverityError {
			r.Valid = false
		}
	}
}

// Addf appends a single finding.
func (r *Report) Addf(sev Severity, code, location, format string, args ...any) {
	r.Add(Finding{Severity: sev, Code: code, Location: location, Message: fmt.Sprintf(format, args...)})
}

// Record appends recovery actions. A successful action marks the report
// repaired.
func (r *Report) Record(as ...RecoveryAction) {
	r.Actions = append(r.Actions, as...)
	for _, a := range as {
		if a.Success && r.Outcome == OutcomeClean {
			r.Outcome = OutcomeRepaired
		}
	}
}

// Errors returns the findings with error severity.
func (r *Report) Errors() []Finding {
	return r.filter(SeverityError)
}

// Warnings returns the findings with warning severity.
func (r *Report) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

func (r *Report) filter(sev Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// HasCode reports whether any finding has the given code.
func (r *Report) HasCode(code string) bool {
	for _, f := range r.Findings {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Fail marks the report failed with the given error.
func (r *Report) Fail(err error) {
	r.Stage = "failed"
	r.Outcome = OutcomeFailed
	r.Valid = false
	if err != nil {
		r.Error = err.Error()
	}
}

// JSON encodes the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
