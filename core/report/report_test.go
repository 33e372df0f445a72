package report

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestReportAccumulates(t *testing.T) {
	r := New()
	if r.Outcome != OutcomeClean || !r.Valid {
		t.Fatalf("New() = %+v", r)
	}

	r.Addf(SeverityWarning, "missing_header", "", "no RTF header")
	if !r.Valid {
		t.Error("a warning should not invalidate the report")
	}
	r.Add(Finding{Severity: SeverityError, Code: "dangling_font", Location: "/2", Message: "font 4 is not defined"})
	if r.Valid {
		t.Error("an error finding should invalidate the report")
	}
	if len(r.Errors()) != 1 || len(r.Warnings()) != 1 {
		t.Errorf("Errors() = %v, Warnings() = %v", r.Errors(), r.Warnings())
	}
	if !r.HasCode("dangling_font") || r.HasCode("other") {
		t.Error("HasCode mismatch")
	}

	r.Record(RecoveryAction{Kind: SkipToken, Description: "skip", Offset: 3})
	if r.Outcome != OutcomeClean {
		t.Error("a failed action should not mark the report repaired")
	}
	r.Record(RecoveryAction{Kind: InsertMissingDelimiter, Offset: 10, Success: true})
	if r.Outcome != OutcomeRepaired {
		t.Errorf("Outcome = %s, want repaired", r.Outcome)
	}

	r.Fail(errors.New("boom"))
	if r.Outcome != OutcomeFailed || r.Error != "boom" {
		t.Errorf("Fail() = %+v", r)
	}
}

func TestFindingString(t *testing.T) {
	f := Finding{Severity: SeverityError, Code: "syntax", Location: AtOffset(7), Message: "bad"}
	if got := f.String(); got != "error: syntax at offset 7: bad" {
		t.Errorf("String() = %q", got)
	}
	f.Location = ""
	if got := f.String(); got != "error: syntax: bad" {
		t.Errorf("String() = %q", got)
	}
}

func TestReportJSON(t *testing.T) {
	r := New()
	r.Addf(SeverityInfo, "not_nfc", "/0", "text is not NFC normalized")
	r.Record(RecoveryAction{Kind: BestEffortAccept, Offset: -1, Success: true})

	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	for _, want := range []string{`"severity": "info"`, `"kind": "best_effort_accept"`, `"outcome": "repaired"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON() missing %s:\n%s", want, data)
		}
	}

	var back Report
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Actions[0].Kind != BestEffortAccept || back.Findings[0].Severity != SeverityInfo {
		t.Errorf("round trip = %+v", back)
	}
}

func TestEnumStrings(t *testing.T) {
	if Severity(9).String() != "severity(9)" {
		t.Error("unknown severity string")
	}
	if ActionKind(9).String() != "action(9)" {
		t.Error("unknown action string")
	}
	var k ActionKind
	if err := k.UnmarshalText([]byte("nope")); err == nil {
		t.Error("expected error for unknown action")
	}
	var s Severity
	if err := s.UnmarshalText([]byte("fatal")); err == nil {
		t.Error("expected error for unknown severity")
	}
}
