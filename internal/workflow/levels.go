package workflow

import "strings"

// EducationLevel controls vocabulary and explanation depth.
type EducationLevel string

const (
	LevelNoTechnical   EducationLevel = "no_technical"
	LevelHighSchool    EducationLevel = "high_school"
	LevelUndergraduate EducationLevel = "undergraduate"
	LevelMasters       EducationLevel = "masters"
	LevelPhD           EducationLevel = "phd"
)

// ParseEducationLevel returns the matching level, defaulting to
// undergraduate for unknown input.
func ParseEducationLevel(s string) EducationLevel {
	switch EducationLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelNoTechnical, LevelHighSchool, LevelUndergraduate, LevelMasters, LevelPhD:
		return EducationLevel(strings.ToLower(strings.TrimSpace(s)))
	default:
		return LevelUndergraduate
	}
}

// KnowledgeScore maps a level to the deterministic 1-10 user knowledge
// score used alongside the LLM's complexity assessment.
func (l EducationLevel) KnowledgeScore() int {
	switch l {
	case LevelPhD:
		return 9
	case LevelMasters:
		return 7
	case LevelUndergraduate:
		return 5
	case LevelHighSchool:
		return 3
	case LevelNoTechnical:
		return 2
	default:
		return 5
	}
}

// Guidance is the prompt fragment describing how to address a reader at
// this level.
func (l EducationLevel) Guidance() string {
	switch l {
	case LevelNoTechnical:
		return "Explain for a general reader with no technical background. Avoid jargon entirely; use everyday analogies and plain language."
	case LevelHighSchool:
		return "Explain for a high school student. Connect ideas to the scientific method and concepts from school science classes; define any advanced term."
	case LevelUndergraduate:
		return "Explain for an undergraduate student. Use standard terminology from the field but unpack methodology and statistics as you go."
	case LevelMasters:
		return "Explain for a graduate student. Assume solid methodological grounding; focus on theoretical framing, design choices, and nuance."
	case LevelPhD:
		return "Explain for a doctoral researcher. Engage with methodological innovation, theoretical contributions, and open problems directly."
	default:
		return "Explain for an undergraduate student."
	}
}
