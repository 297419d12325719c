package qualification

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Strategy names a scoring model. One strategy is active per deployment.
type Strategy string

const (
	// StrategyWeightedConfidence scores fractional weights times confidence
	// over qualified criteria.
	StrategyWeightedConfidence Strategy = "weighted_confidence"
	// StrategyBooleanSum adds point weights for every qualified signal,
	// capped at 100.
	StrategyBooleanSum Strategy = "boolean_sum"
)

// Criterion IDs shared by the built-in schemas and the environment overrides.
const (
	CriterionBudget       = "budget"
	CriterionTimeline     = "timeline"
	CriterionPainPoint    = "painPoint"
	CriterionAuthority    = "authority"
	CriterionNeed         = "need"
	CriterionContactInfo  = "contactInfo"
	CriterionDemoInterest = "demoInterest"
	CriterionCompanySize  = "companySize"
)

// DefaultConfidence is used for a criterion definition without its own value.
const DefaultConfidence = 0.8

// ErrEmptySchema is returned for a schema without criteria.
var ErrEmptySchema = errors.New("qualification: schema has no criteria")

// CriterionDef describes one scored dimension and how to detect it.
type CriterionDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Weight is a fraction in [0,1] for weighted confidence and a point
	// value for boolean sum.
	Weight   float64  `json:"weight"`
	Required bool     `json:"required"`
	Keywords []string `json:"keywords"`
	// DisqualifyKeywords mark the criterion unqualified. A qualifying match
	// in the same message takes precedence.
	DisqualifyKeywords []string `json:"disqualifyKeywords,omitempty"`
	// Confidence is the fixed confidence assigned when this criterion fires.
	Confidence float64 `json:"confidence"`
	// Question is asked when the criterion is still unknown.
	Question string `json:"question,omitempty"`

	Patterns []*regexp.Regexp `json:"-"`
	// Match replaces keyword and pattern matching when set.
	Match func(text string) bool `json:"-"`
}

// Schema is a named set of criteria plus the scoring rules applied to them.
type Schema struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Strategy       Strategy       `json:"strategy"`
	ScoreThreshold int            `json:"scoreThreshold"`
	Criteria       []CriterionDef `json:"criteria"`
}

// Validate checks structural invariants. For weighted confidence the weights
// should sum to 1.0; a mismatch is reported through WeightWarning rather than
// rejected, since the score is normalised by the total weight anyway.
func (s Schema) Validate() error {
	if len(s.Criteria) == 0 {
		return ErrEmptySchema
	}
	seen := make(map[string]struct{}, len(s.Criteria))
	for _, c := range s.Criteria {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("qualification: schema %s has a criterion without id", s.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("qualification: schema %s repeats criterion %s", s.ID, c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Weight < 0 {
			return fmt.Errorf("qualification: criterion %s has negative weight", c.ID)
		}
		if s.Strategy == StrategyWeightedConfidence && c.Weight > 1 {
			return fmt.Errorf("qualification: criterion %s weight %.2f exceeds 1", c.ID, c.Weight)
		}
	}
	switch s.Strategy {
	case StrategyWeightedConfidence, StrategyBooleanSum:
	default:
		return fmt.Errorf("qualification: unknown scoring strategy %q", s.Strategy)
	}
	if s.ScoreThreshold < 0 || s.ScoreThreshold > 100 {
		return fmt.Errorf("qualification: score threshold %d out of range", s.ScoreThreshold)
	}
	return nil
}

// WeightWarning returns a non-empty message when weighted-confidence weights
// do not sum to 1.0.
func (s Schema) WeightWarning() string {
	if s.Strategy != StrategyWeightedConfidence {
		return ""
	}
	total := 0.0
	for _, c := range s.Criteria {
		total += c.Weight
	}
	if math.Abs(total-1.0) > 1e-6 {
		return fmt.Sprintf("criterion weights sum to %.3f, expected 1.0", total)
	}
	return ""
}

// Criterion returns the definition with the given id.
func (s Schema) Criterion(id string) (CriterionDef, bool) {
	for _, c := range s.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return CriterionDef{}, false
}

// Override adjusts one criterion in place. Zero values leave fields alone.
func (s *Schema) Override(id string, weight *float64, required *bool, keywords []string) bool {
	for i := range s.Criteria {
		if s.Criteria[i].ID != id {
			continue
		}
		if weight != nil {
			s.Criteria[i].Weight = *weight
		}
		if required != nil {
			s.Criteria[i].Required = *required
		}
		if len(keywords) > 0 {
			s.Criteria[i].Keywords = keywords
		}
		return true
	}
	return false
}

// BANTSchema is the five-criterion budget/authority/need/timeline/pain model
// scored with weighted confidence.
func BANTSchema() Schema {
	return Schema{
		ID:             "bant",
		Name:           "BANT",
		Strategy:       StrategyWeightedConfidence,
		ScoreThreshold: 75,
		Criteria: []CriterionDef{
			{
				ID:          CriterionBudget,
				Name:        "Budget",
				Description: "Prospect has money set aside or is discussing spend",
				Weight:      0.25,
				Required:    true,
				Keywords: []string{
					"budget", "funding", "funded", "approved", "allocated",
					"spend", "invest", "pricing", "price", "cost", "quote",
				},
				DisqualifyKeywords: []string{"can't afford", "cannot afford", "too expensive", "no money"},
				Confidence:         0.8,
				Question:           "Do you have a budget range in mind for this project?",
			},
			{
				ID:          CriterionAuthority,
				Name:        "Authority",
				Description: "Prospect makes or signs off on the purchase decision",
				Weight:      0.2,
				Required:    true,
				Keywords: []string{
					"decision maker", "i decide", "my decision", "final say",
					"ceo", "cfo", "cto", "founder", "owner", "vp", "vice president",
					"director", "head of", "sign off", "signs off",
				},
				DisqualifyKeywords: []string{"not my call", "ask my boss", "check with my manager"},
				Confidence:         0.9,
				Question:           "Who else is involved in making this decision?",
			},
			{
				ID:          CriterionNeed,
				Name:        "Need",
				Description: "Prospect has a concrete requirement",
				Weight:      0.2,
				Keywords: []string{
					"need", "looking for", "require", "must have", "want to", "interested in",
				},
				Confidence: 0.75,
				Question:   "What would you like a solution like ours to do for you?",
			},
			{
				ID:          CriterionTimeline,
				Name:        "Timeline",
				Description: "Prospect has a purchase or go-live timeframe",
				Weight:      0.2,
				Required:    true,
				Keywords: []string{
					"next month", "this month", "this quarter", "next quarter", "asap",
					"urgent", "deadline", "timeline", "go live", "live by", "launch",
					"immediately", "this week", "next week",
				},
				DisqualifyKeywords: []string{"just browsing", "no rush", "not anytime soon"},
				Confidence:         0.85,
				Question:           "When are you hoping to have something in place?",
			},
			{
				ID:          CriterionPainPoint,
				Name:        "Pain Point",
				Description: "Prospect describes a problem the product solves",
				Weight:      0.15,
				Keywords: []string{
					"problem", "issue", "struggl", "challenge", "pain", "frustrat",
					"difficult", "manual", "too slow", "losing", "broken", "inefficien",
				},
				Confidence: 0.7,
				Question:   "What's the biggest challenge you're facing today?",
			},
		},
	}
}

var (
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{8,}\d`)
)

// SignalSchema is the point-based budget/timeline/pain/demo-interest model
// scored with boolean sum.
func SignalSchema() Schema {
	return Schema{
		ID:             "signals",
		Name:           "Buying Signals",
		Strategy:       StrategyBooleanSum,
		ScoreThreshold: 60,
		Criteria: []CriterionDef{
			{
				ID:         CriterionBudget,
				Name:       "Budget",
				Weight:     20,
				Keywords:   []string{"budget", "price", "pricing", "cost", "afford", "spend", "invest"},
				Confidence: 0.8,
				Question:   "Do you have a budget in mind?",
			},
			{
				ID:         CriterionTimeline,
				Name:       "Timeline",
				Weight:     15,
				Keywords:   []string{"asap", "urgent", "soon", "this month", "next month", "this quarter", "deadline", "timeline"},
				Confidence: 0.85,
				Question:   "What's your timeline for getting started?",
			},
			{
				ID:         CriterionPainPoint,
				Name:       "Pain Point",
				Weight:     15,
				Keywords:   []string{"problem", "issue", "struggl", "challenge", "pain", "frustrat", "difficult"},
				Confidence: 0.7,
				Question:   "What problem are you trying to solve?",
			},
			{
				ID:         CriterionContactInfo,
				Name:       "Contact Info",
				Weight:     10,
				Patterns:   []*regexp.Regexp{emailPattern, phonePattern},
				Confidence: 0.95,
				Question:   "What's the best email to reach you at?",
			},
			{
				ID:         CriterionDemoInterest,
				Name:       "Demo Interest",
				Weight:     15,
				Keywords:   []string{"demo", "trial", "walkthrough", "see it in action", "show me", "try it"},
				Confidence: 0.9,
				Question:   "Would a quick demo be helpful?",
			},
			{
				ID:         CriterionAuthority,
				Name:       "Authority",
				Weight:     15,
				Keywords:   []string{"decision maker", "ceo", "cfo", "cto", "founder", "owner", "vp", "director", "head of"},
				Confidence: 0.9,
				Question:   "Are you the one making the call on this?",
			},
			{
				ID:         CriterionCompanySize,
				Name:       "Company Size",
				Weight:     10,
				Keywords:   []string{"employees", "enterprise", "team of", "company of", "locations", "offices"},
				Confidence: 0.75,
				Question:   "How big is your team?",
			},
		},
	}
}

// SchemaByID returns a built-in schema.
func SchemaByID(id string) (Schema, bool) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "", "bant":
		return BANTSchema(), true
	case "signals":
		return SignalSchema(), true
	default:
		return Schema{}, false
	}
}
