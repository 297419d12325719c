package qualification

import (
	"fmt"
	"strings"
)

const maxNextQuestions = 3

// AssessmentSource marks assessments produced from keyword rules.
const AssessmentSource = "keyword-rules"

// Assess summarises status and proposes follow-up questions for criteria
// that are still unknown, required ones first.
func Assess(schema Schema, status Status) Assessment {
	var qualified, unqualified []string
	var required, optional []string
	var confidenceSum float64
	var known int

	for _, def := range schema.Criteria {
		c, ok := status.Criteria[def.ID]
		if !ok {
			continue
		}
		switch c.Status {
		case StatusQualified:
			qualified = append(qualified, strings.ToLower(def.Name))
			confidenceSum += c.Confidence
			known++
		case StatusUnqualified:
			unqualified = append(unqualified, strings.ToLower(def.Name))
			confidenceSum += c.Confidence
			known++
		default:
			if def.Question == "" {
				continue
			}
			if def.Required {
				required = append(required, def.Question)
			} else {
				optional = append(optional, def.Question)
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d criteria qualified", len(qualified), len(schema.Criteria))
	if len(qualified) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(qualified, ", "))
	}
	if len(unqualified) > 0 {
		fmt.Fprintf(&b, "; disqualified: %s", strings.Join(unqualified, ", "))
	}
	fmt.Fprintf(&b, "; score %d/100", status.Score)

	questions := append(required, optional...)
	if len(questions) > maxNextQuestions {
		questions = questions[:maxNextQuestions]
	}
	if questions == nil {
		questions = []string{}
	}

	confidence := 0.0
	if known > 0 {
		confidence = confidenceSum / float64(known)
	}
	return Assessment{
		Summary:       b.String(),
		Confidence:    confidence,
		NextQuestions: questions,
		Source:        AssessmentSource,
	}
}
