package qualification

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/salesfusion/pkg/logging"
)

// DefaultWindow is the number of most recent messages scanned for evidence.
const DefaultWindow = 10

const maxSnippetRunes = 160

// Detection is the evidence found for one criterion within the window.
type Detection struct {
	Status     CriterionStatus
	Confidence float64
	Evidence   []string
}

// Detector matches conversation text against a schema's keyword tables.
//
// Matching is case-insensitive substring search with no stemming and no
// negation handling: "no budget" matches the budget keywords exactly like
// "have budget" does.
type Detector struct {
	schema Schema
	window int
	logger *logging.Logger
}

// NewDetector builds a detector for schema scanning the last window messages.
func NewDetector(schema Schema, window int, logger *logging.Logger) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{schema: schema, window: window, logger: logger}
}

// DetectSignal reports whether text carries a qualifying signal for criterionID.
func (d *Detector) DetectSignal(text, criterionID string) bool {
	def, ok := d.schema.Criterion(criterionID)
	if !ok {
		return false
	}
	matched, err := safeMatch(def, text, false)
	if err != nil {
		d.logger.Error("qualification: signal matcher failed", "criterion", criterionID, "error", err)
		return false
	}
	return matched
}

// IsRelevant reports whether text touches any criterion at all, qualifying
// or disqualifying.
func (d *Detector) IsRelevant(text string) bool {
	for _, def := range d.schema.Criteria {
		if ok, _ := safeMatch(def, text, false); ok {
			return true
		}
		if ok, _ := safeMatch(def, text, true); ok {
			return true
		}
	}
	return false
}

// Detect scans the user turns among the last window turns and returns a
// detection for every criterion with evidence. Criteria without evidence are
// absent from the result. Within the window the latest matching message
// decides the status.
func (d *Detector) Detect(turns []Turn) map[string]Detection {
	recent := turns
	if len(recent) > d.window {
		recent = recent[len(recent)-d.window:]
	}
	userTurns := make([]string, 0, len(recent))
	for _, t := range recent {
		if t.Role == RoleUser {
			userTurns = append(userTurns, t.Content)
		}
	}

	out := make(map[string]Detection)
	for _, def := range d.schema.Criteria {
		det, found, err := d.detectCriterion(def, userTurns)
		if err != nil {
			d.logger.Error("qualification: detection failed", "criterion", def.ID, "error", err)
			continue
		}
		if found {
			out[def.ID] = det
		}
	}
	return out
}

func (d *Detector) detectCriterion(def CriterionDef, texts []string) (det Detection, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("qualification: matcher for %s panicked: %v", def.ID, r)
			found = false
		}
	}()

	var qualifiedEvidence, unqualifiedEvidence []string
	status := StatusUnknown
	for _, text := range texts {
		switch {
		case matches(def, text, false):
			status = StatusQualified
			qualifiedEvidence = appendUnique(qualifiedEvidence, snippet(text))
		case matches(def, text, true):
			status = StatusUnqualified
			unqualifiedEvidence = appendUnique(unqualifiedEvidence, snippet(text))
		}
	}
	if status == StatusUnknown {
		return Detection{}, false, nil
	}

	confidence := def.Confidence
	if confidence <= 0 {
		confidence = DefaultConfidence
	}
	det = Detection{Status: status, Confidence: confidence}
	if status == StatusQualified {
		det.Evidence = qualifiedEvidence
	} else {
		det.Evidence = unqualifiedEvidence
	}
	return det, true, nil
}

func safeMatch(def CriterionDef, text string, disqualify bool) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("qualification: matcher for %s panicked: %v", def.ID, r)
			ok = false
		}
	}()
	return matches(def, text, disqualify), nil
}

func matches(def CriterionDef, text string, disqualify bool) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if disqualify {
		return containsAny(strings.ToLower(text), def.DisqualifyKeywords)
	}
	if def.Match != nil {
		return def.Match(text)
	}
	if containsAny(strings.ToLower(text), def.Keywords) {
		return true
	}
	for _, re := range def.Patterns {
		if re != nil && re.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxSnippetRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxSnippetRunes]) + "…"
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
