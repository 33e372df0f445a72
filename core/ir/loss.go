package ir

// LossClass represents the fidelity level of a conversion.
type LossClass string

// Loss class constants, from most to least fidelity.
const (
	// LossL0 indicates lossless conversion.
	LossL0 LossClass = "L0"

	// LossL1 indicates all content preserved, formatting may differ.
	LossL1 LossClass = "L1"

	// LossL2 indicates minor loss (fonts, sizes, colors, underline).
	LossL2 LossClass = "L2"

	// LossL3 indicates significant loss (pictures replaced by placeholders).
	LossL3 LossClass = "L3"

	// LossL4 indicates plain text only.
	LossL4 LossClass = "L4"
)

// Level returns the numeric level (0-4) of the loss class, or -1.
func (l LossClass) Level() int {
	switch l {
	case LossL0:
		return 0
	case LossL1:
		return 1
	case LossL2:
		return 2
	case LossL3:
		return 3
	case LossL4:
		return 4
	default:
		return -1
	}
}

// IsValid returns true if the loss class is valid.
func (l LossClass) IsValid() bool {
	return l.Level() >= 0
}

// IsSemanticallyLossless returns true if content is fully preserved.
func (l LossClass) IsSemanticallyLossless() bool {
	return l == LossL0 || l == LossL1
}

// LostElement describes a piece of data that was lost during conversion.
type LostElement struct {
	// Path is the block location in the source document.
	Path string `json:"path"`

	// ElementType describes what was lost (e.g., "font", "underline").
	ElementType string `json:"element_type"`

	// Reason explains why the element was lost.
	Reason string `json:"reason"`
}

// LossReport documents the fidelity of a conversion.
type LossReport struct {
	SourceFormat Format        `json:"source_format"`
	TargetFormat Format        `json:"target_format"`
	LossClass    LossClass     `json:"loss_class"`
	LostElements []LostElement `json:"lost_elements,omitempty"`
}

// HasLoss returns true if any elements were lost.
func (r *LossReport) HasLoss() bool {
	return len(r.LostElements) > 0 || r.LossClass.Level() > 0
}

// AddLostElement adds a lost element to the report.
func (r *LossReport) AddLostElement(path, elementType, reason string) {
	r.LostElements = append(r.LostElements, LostElement{
		Path:        path,
		ElementType: elementType,
		Reason:      reason,
	})
}

// maxLostElements caps the per-element detail of a loss report.
const maxLostElements = 100

// Assess classifies what generating target from d will lose. Each element
// type is reported once per block.
func Assess(d *Document, target Format) LossReport {
	r := LossReport{SourceFormat: d.Meta.SourceFormat, TargetFormat: target, LossClass: LossL0}
	if d.Meta.SourceFormat != target {
		r.LossClass = LossL1
	}
	raise := func(c LossClass) {
		if c.Level() > r.LossClass.Level() {
			r.LossClass = c
		}
	}
	if d.Meta.Images > 0 {
		raise(LossL3)
		r.AddLostElement("/", "picture", "embedded pictures are replaced by placeholders")
	}
	if target != FormatMarkdown {
		return r
	}
	Walk(d.Blocks, func(path Path, b *Block) bool {
		seen := map[string]bool{}
		for _, run := range b.Runs {
			a := run.Attrs
			lost := map[string]bool{
				"font":      a.Font != NoFont && b.Kind != KindCode,
				"size":      a.Size != 0 && b.Kind != KindHeading,
				"color":     a.Color != 0,
				"underline": a.Underline,
			}
			for _, el := range []string{"font", "size", "color", "underline"} {
				if !lost[el] || seen[el] {
					continue
				}
				seen[el] = true
				raise(LossL2)
				if len(r.LostElements) < maxLostElements {
					r.AddLostElement(path.String(), el, "Markdown has no "+el+" markup")
				}
			}
		}
		return true
	})
	return r
}
