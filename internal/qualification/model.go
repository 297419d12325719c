// Package qualification detects buying signals in conversation text, scores
// them against a schema and tracks per-criterion status for a conversation.
package qualification

import "time"

// CriterionStatus is the lifecycle state of a single criterion.
type CriterionStatus string

const (
	StatusUnknown     CriterionStatus = "unknown"
	StatusQualified   CriterionStatus = "qualified"
	StatusUnqualified CriterionStatus = "unqualified"
)

// Criterion is the current state of one scored dimension.
type Criterion struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Weight      float64         `json:"weight"`
	Status      CriterionStatus `json:"status"`
	Confidence  float64         `json:"confidence"`
	Evidence    []string        `json:"evidence"`
}

// Assessment is a rule-based summary of where a conversation stands. It is
// derived from keyword evidence only.
type Assessment struct {
	Summary       string   `json:"summary"`
	Confidence    float64  `json:"confidence"`
	NextQuestions []string `json:"nextQuestions"`
	Source        string   `json:"source"`
}

// Status is the qualification state owned by one conversation. Score and
// ReadyToConnect are always recomputed from Criteria.
type Status struct {
	SchemaID       string               `json:"schemaId"`
	Criteria       map[string]Criterion `json:"criteria"`
	Score          int                  `json:"score"`
	ReadyToConnect bool                 `json:"readyToConnect"`
	LastUpdated    time.Time            `json:"lastUpdated"`
	Notes          string               `json:"notes,omitempty"`
	AIAssessment   *Assessment          `json:"aiAssessment,omitempty"`
}

// QualifiedCriteria returns the names of qualified criteria in schema order.
func (s Status) QualifiedCriteria(schema Schema) []string {
	var out []string
	for _, def := range schema.Criteria {
		if c, ok := s.Criteria[def.ID]; ok && c.Status == StatusQualified {
			out = append(out, def.Name)
		}
	}
	return out
}

// Clone returns a deep copy.
func (s Status) Clone() Status {
	out := s
	out.Criteria = make(map[string]Criterion, len(s.Criteria))
	for id, c := range s.Criteria {
		c.Evidence = append([]string(nil), c.Evidence...)
		out.Criteria[id] = c
	}
	if s.AIAssessment != nil {
		a := *s.AIAssessment
		a.NextQuestions = append([]string(nil), a.NextQuestions...)
		out.AIAssessment = &a
	}
	return out
}

// Role of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is the slice of a message the detector needs.
type Turn struct {
	Role    string
	Content string
}
