package pipeline

import "fmt"

// Stage is a step of a conversion.
type Stage int

// Stages in the order a conversion visits them. Recovering and
// TemplateApplication are skipped when not needed.
const (
	StageCreated Stage = iota
	StageParsing
	StageValidating
	StageRecovering
	StageTemplateApplication
	StageGenerating
	StageCompleted
	StageFailed
)

var stageNames = [...]string{
	StageCreated:             "created",
	StageParsing:             "parsing",
	StageValidating:          "validating",
	StageRecovering:          "recovering",
	StageTemplateApplication: "template_application",
	StageGenerating:          "generating",
	StageCompleted:           "completed",
	StageFailed:              "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// transitions lists the forward moves of the state machine. Failing is
// handled separately: Validating and Recovering fail on invalid content,
// any stage fails on a fatal error.
var transitions = map[Stage][]Stage{
	StageCreated:             {StageParsing},
	StageParsing:             {StageValidating},
	StageValidating:          {StageRecovering, StageTemplateApplication, StageGenerating},
	StageRecovering:          {StageValidating, StageTemplateApplication, StageGenerating},
	StageTemplateApplication: {StageGenerating},
	StageGenerating:          {StageCompleted},
}

// CanTransition reports whether a conversion may move from one stage to
// another without failing.
func CanTransition(from, to Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a conversion.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}
